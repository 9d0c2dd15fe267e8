package auth

import "crypto/rand"

const verificationCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewVerificationCode returns a 6-character one-time code sent to (or shown
// to) a freshly registered user.
func NewVerificationCode() string {
	b := make([]byte, 6)
	rand.Read(b)
	for i := range b {
		b[i] = verificationCodeAlphabet[int(b[i])%len(verificationCodeAlphabet)]
	}
	return string(b)
}
