// Package authpw manages the password credential stored on each roster
// entry. Credentials are opaque bcrypt hashes; nothing here issues sessions
// or authenticates requests.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"docflow/internal/lockmgr"
	"docflow/internal/store"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound  = errors.New("user not found in roster")
	ErrWrongPassword = errors.New("password does not match")
)

// RosterStore is the slice of the data layer the credential service needs.
type RosterStore interface {
	LoadUsers(ctx context.Context, deptID string) ([]store.User, error)
	SaveUsers(ctx context.Context, deptID string, users []store.User) error
}

type Service struct {
	roster RosterStore
	locks  *lockmgr.Manager
}

func NewService(roster RosterStore, locks *lockmgr.Manager) *Service {
	return &Service{roster: roster, locks: locks}
}

// HashPassword produces a bcrypt hash for storage on a roster entry.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks a plaintext password against a stored hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ChangePassword verifies the old password and replaces the stored hash. The
// whole roster read-modify-write runs under the roster file's lock.
func (s *Service) ChangePassword(ctx context.Context, deptID, userID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return errors.New("new password is required")
	}

	key := filepath.Join("departments", deptID, "users", "users.json")
	lease, err := s.locks.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer lease.Release()

	users, err := s.roster.LoadUsers(ctx, deptID)
	if err != nil {
		return err
	}

	found := false
	for i := range users {
		if users[i].ID != userID {
			continue
		}
		found = true
		if !VerifyPassword(users[i].PasswordHash, oldPassword) {
			return ErrWrongPassword
		}
		hash, err := HashPassword(newPassword)
		if err != nil {
			return err
		}
		users[i].PasswordHash = hash
		break
	}
	if !found {
		return ErrUserNotFound
	}

	return s.roster.SaveUsers(ctx, deptID, users)
}
