package room

import (
	"crypto/rand"
	"math/big"
)

// codeLength is the number of ASCII digits in a room code.
const codeLength = 6

// maxCodeAttempts bounds the generate-and-check loop in CreateRoom. The code
// space holds a million rooms; this many collisions in a row means the store
// is effectively full and the caller gets ErrCodeSpaceExhausted.
const maxCodeAttempts = 50

// generateCode returns a random 6-digit code, each digit sampled uniformly.
// Leading zeros are valid.
func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}
