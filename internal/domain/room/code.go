package room

import (
	"crypto/rand"
	"regexp"
)

// codeAlphabet has 32 symbols; I, O, 0 and 1 are excluded because they are
// easy to misread when a code is shared verbally or on a projector.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

var codePattern = regexp.MustCompile(`^[A-HJ-NP-Z2-9]{6}$`)

// ValidCode reports whether s has the shape of a room code. It says nothing
// about whether such a room exists.
func ValidCode(s string) bool {
	return codePattern.MatchString(s)
}

func newCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		// 32 symbols, so masking the low five bits is an unbiased draw
		buf[i] = codeAlphabet[b&31]
	}
	return string(buf), nil
}
