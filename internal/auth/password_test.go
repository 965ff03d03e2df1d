// ABOUTME: Tests for admin credential checks and password hashing
// ABOUTME: Uses the minimum bcrypt cost to keep the suite fast

package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestCredentials_Check(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}
	creds, err := NewCredentials("admin", string(hash))
	if err != nil {
		t.Fatalf("NewCredentials() error = %v", err)
	}

	if err := creds.Check("admin", "hunter2"); err != nil {
		t.Errorf("Check() with valid credentials error = %v", err)
	}
	if err := creds.Check("admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Check() wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if err := creds.Check("someone", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Check() wrong username error = %v, want ErrInvalidCredentials", err)
	}
}

func TestNewCredentials_Validation(t *testing.T) {
	if _, err := NewCredentials("", "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"); err == nil {
		t.Error("NewCredentials() should reject an empty username")
	}
	if _, err := NewCredentials("admin", "plaintext"); err == nil {
		t.Error("NewCredentials() should reject a non-bcrypt hash")
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")); err != nil {
		t.Errorf("hash does not match password: %v", err)
	}

	if _, err := HashPassword(""); err == nil {
		t.Error("HashPassword(\"\") should fail")
	}
}
