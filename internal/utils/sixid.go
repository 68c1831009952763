package utils

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// SixID is a compact 6-byte identifier stored in MongoDB as BinData with
// custom subtype 0x80 and rendered to users as 10 characters of Crockford
// Base32 (case-insensitive, confusable characters folded).
type SixID [6]byte

// bsonBinarySubtype marks SixID values in BinData so they are
// distinguishable from other binary fields.
const bsonBinarySubtype = 0x80

// SixIDHookFunc is the signature of the NewSixID test hook.
type SixIDHookFunc func() (id SixID, override bool)

// NewSixIDHook lets tests make ID generation deterministic.
var NewSixIDHook SixIDHookFunc

// NewSixID returns a fresh random SixID.
func NewSixID() SixID {
	if NewSixIDHook != nil {
		if id, override := NewSixIDHook(); override {
			return id
		}
	}
	var id SixID
	if _, err := rand.Read(id[:]); err != nil {
		// crypto/rand failing is unrecoverable for ID generation
		panic(err)
	}
	return id
}

// IsZero reports whether the ID is the all-zero value.
func (u SixID) IsZero() bool {
	return u == SixID{}
}

const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var crockfordValues = func() map[byte]byte {
	m := make(map[byte]byte, 64)
	for i := 0; i < len(crockfordAlphabet); i++ {
		m[crockfordAlphabet[i]] = byte(i)
	}
	lower := strings.ToLower(crockfordAlphabet)
	for i := 10; i < len(lower); i++ {
		m[lower[i]] = byte(i)
	}
	// Commonly confused characters decode leniently.
	m['o'], m['O'] = 0, 0
	m['i'], m['I'] = 1, 1
	m['l'], m['L'] = 1, 1
	return m
}()

// String renders the ID as 10 uppercase Crockford Base32 characters
// (48 bits, 5 bits per character, the leading character carries 3 bits).
func (u SixID) String() string {
	var out [10]byte
	var acc uint64
	for _, b := range u {
		acc = acc<<8 | uint64(b)
	}
	for i := 9; i >= 0; i-- {
		out[i] = crockfordAlphabet[acc&0x1F]
		acc >>= 5
	}
	return string(out[:])
}

// ParseSixID decodes the 10-character Crockford Base32 form. Hyphens and
// spaces are tolerated and stripped first.
func ParseSixID(s string) (SixID, error) {
	s = strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, s)
	if len(s) != 10 {
		return SixID{}, errors.New("SixID must be 10 base32 characters")
	}
	var acc uint64
	for i := 0; i < 10; i++ {
		v, ok := crockfordValues[s[i]]
		if !ok {
			return SixID{}, errors.New("invalid character in SixID")
		}
		acc = acc<<5 | uint64(v)
	}
	var id SixID
	for i := 5; i >= 0; i-- {
		id[i] = byte(acc)
		acc >>= 8
	}
	return id, nil
}

// MarshalBSONValue stores the ID as BinData subtype 0x80.
func (u SixID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(primitive.Binary{Subtype: bsonBinarySubtype, Data: u[:]})
}

// UnmarshalBSONValue accepts BinData of length 6 regardless of subtype, so
// documents written by earlier tooling still decode.
func (u *SixID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bsontype.Null {
		*u = SixID{}
		return nil
	}
	if t != bsontype.Binary {
		return errors.New("SixID: expected BSON binary")
	}
	_, raw, _, ok := bsoncore.ReadBinary(data)
	if !ok || len(raw) != 6 {
		return errors.New("SixID: malformed BSON binary")
	}
	copy(u[:], raw)
	return nil
}

// MarshalJSON renders the Crockford Base32 string form.
func (u SixID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON parses the Crockford Base32 string form.
func (u *SixID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := ParseSixID(s)
	if err != nil {
		return err
	}
	*u = id
	return nil
}
