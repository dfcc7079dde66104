package credstore

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps one "name secret" line per user in a plain text file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore opens the user file at path, creating it and its directory
// when missing.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("credstore: create directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("credstore: open %s: %w", path, err)
	}
	_ = f.Close()

	return &FileStore{path: path}, nil
}

// Lookup implements Store. The first line naming the user wins.
func (s *FileStore) Lookup(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(name)
}

func (s *FileStore) lookup(name string) (string, bool, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return "", false, fmt.Errorf("credstore: open %s: %w", s.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		user, secret, _ := strings.Cut(scanner.Text(), " ")
		if user == name {
			return secret, secret != "", nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", false, fmt.Errorf("credstore: read %s: %w", s.path, err)
	}

	return "", false, nil
}

// Insert implements Store.
func (s *FileStore) Insert(ctx context.Context, name, secret string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if strings.ContainsAny(secret, "\r\n") {
		return fmt.Errorf("credstore: secret must be a single line")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found, err := s.lookup(name); err != nil {
		return err
	} else if found {
		return ErrUserExists
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("credstore: open %s: %w", s.path, err)
	}

	if _, err := fmt.Fprintf(f, "%s %s\n", name, secret); err != nil {
		_ = f.Close()
		return fmt.Errorf("credstore: append %s: %w", s.path, err)
	}

	return f.Close()
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
