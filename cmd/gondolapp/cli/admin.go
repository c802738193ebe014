package cli

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashAdminToken produces the bcrypt hash expected in ADMIN_TOKEN_HASH.
func HashAdminToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if len(token) < 12 {
		return "", errors.New("admin token must be at least 12 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
