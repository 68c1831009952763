package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	userID := utils.NewSixID()
	token, err := GenerateJWT(userID, models.RoleDealer, "test-secret", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, models.RoleDealer, claims.Role)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestValidateJWT_WrongSecret(t *testing.T) {
	token, err := GenerateJWT(utils.NewSixID(), models.RoleBuyer, "right-secret", time.Hour)
	require.NoError(t, err)

	_, err = ValidateJWT(token, "wrong-secret")
	assert.Error(t, err)
}

func TestValidateJWT_Expired(t *testing.T) {
	token, err := GenerateJWT(utils.NewSixID(), models.RoleBuyer, "test-secret", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateJWT(token, "test-secret")
	assert.Error(t, err)
}

func TestValidateJWT_Garbage(t *testing.T) {
	_, err := ValidateJWT("not.a.jwt", "test-secret")
	assert.Error(t, err)
}
