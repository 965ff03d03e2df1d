// ABOUTME: Admin password checking with bcrypt
// ABOUTME: Unknown usernames still pay for a bcrypt comparison so timing does not leak them

package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for any failed login.
var ErrInvalidCredentials = errors.New("invalid username or password")

// dummyHash is compared against when the username is wrong.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Credentials checks the single configured admin account.
type Credentials struct {
	username     string
	passwordHash []byte
}

// NewCredentials validates that passwordHash is a bcrypt hash.
func NewCredentials(username, passwordHash string) (*Credentials, error) {
	if username == "" {
		return nil, errors.New("admin username is required")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("admin password hash: %w", err)
	}
	return &Credentials{username: username, passwordHash: []byte(passwordHash)}, nil
}

// Check returns nil when username and password match the admin account.
func (c *Credentials) Check(username, password string) error {
	if subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) != 1 {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(c.passwordHash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for auth.admin_password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
