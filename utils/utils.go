package utils

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	return b, nil
}

func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func Rand(len int) ([]byte, error) {
	salt := make([]byte, len)
	if n, err := rand.Read(salt); err != nil || n != len {
		return nil, fmt.Errorf("failed to read random bytes: %v", err)
	}
	return salt, nil
}

// Clear zeroes sensitive bytes in place.
func Clear(sensi []byte) {
	for i := range sensi {
		sensi[i] = 0
	}
}

// VerifyPassFormat returns a recommendation when pwd is too weak to protect
// a data key, or "" when it is acceptable.
func VerifyPassFormat(pwd []byte) string {
	if len(pwd) < 8 {
		return "Password must be at least 8 characters long."
	}
	if len(bytes.TrimSpace(pwd)) != len(pwd) {
		return "Password cannot start or end with whitespace."
	}
	return ""
}
