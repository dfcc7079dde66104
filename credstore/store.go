// Package credstore persists user names and their secrets for the chat
// server's register and login commands.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrUserExists is returned by Insert when the name is already registered.
	ErrUserExists = errors.New("credstore: user already exists")
	// ErrInvalidName is returned for empty names or names containing whitespace.
	ErrInvalidName = errors.New("credstore: invalid user name")
)

// Store looks up and registers users. Implementations are safe for concurrent use.
type Store interface {
	// Lookup returns the stored secret for name.
	//
	// Returns:
	//   - The secret and true if name is registered, "" and false otherwise
	//   - An error only when the backend failed
	Lookup(ctx context.Context, name string) (string, bool, error)

	// Insert registers name with secret.
	//
	// Returns:
	//   - ErrInvalidName or ErrUserExists, or a backend error
	Insert(ctx context.Context, name, secret string) error

	// Close releases the backend.
	Close() error
}

// ValidateName rejects names that cannot be stored or sent on the wire.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidName, name)
	}

	return nil
}
