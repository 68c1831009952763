package models

import (
	"time"
)

// Role partitions users into the three actor kinds the platform knows.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleDealer Role = "dealer"
	RoleAdmin  Role = "admin"
)

// User is the account record shared by buyers, dealers and admins.
// Credential issuance lives with the auth collaborator; this core only
// reads users to authorize operations and to walk referral ancestry.
type User struct {
	Base      `bson:",inline"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email" json:"email"`
	Role      Role      `bson:"role" json:"role"`
	Suspended bool      `bson:"suspended" json:"suspended"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	Deleted   bool      `bson:"deleted" json:"-"`
}
