package utils

import (
	"crypto/rand"
	"math/big"
)

// RandomCode returns n characters drawn from the Crockford Base32 alphabet.
// Used for affiliate referral codes and vehicle pickup codes, which are read
// out loud or typed by humans, hence the confusion-resistant alphabet.
func RandomCode(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(crockfordAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		out[i] = crockfordAlphabet[idx.Int64()]
	}
	return string(out)
}

// NewReferralCode returns an 8-character affiliate referral code.
func NewReferralCode() string {
	return RandomCode(8)
}

// NewPickupCode returns a 6-character vehicle pickup code.
func NewPickupCode() string {
	return RandomCode(6)
}
