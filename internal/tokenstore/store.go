// Package tokenstore persists the session bearer token.
package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// Key is the fixed name the token is stored under.
const Key = "authToken"

// ErrNoToken is returned by Token when nothing is stored.
var ErrNoToken = errors.New("no session token")

// Store holds a single bearer credential. Reads are synchronous and never
// touch the network.
type Store interface {
	// Get returns the stored token and whether one is present.
	Get() (string, bool)

	// Set replaces the stored token.
	Set(token string) error

	// Remove deletes the stored token. Removing an absent token is not an error.
	Remove() error
}

// FileStore keeps the token in a JSON file so it survives process restarts.
// The file holds an oauth2.Token document.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Get implements Store. An unreadable or corrupt file counts as no token.
func (s *FileStore) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return "", false
	}
	if tok.AccessToken == "" {
		return "", false
	}
	return tok.AccessToken, true
}

// Set implements Store. The file is written with mode 0600 via a temp file
// and rename so readers never observe a partial write.
func (s *FileStore) Set(token string) error {
	if token == "" {
		return s.Remove()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".token-*")
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save token: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Remove implements Store.
func (s *FileStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return nil
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore returns a store seeded with token ("" for none).
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

// Get implements Store.
func (m *MemoryStore) Get() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

// Set implements Store.
func (m *MemoryStore) Set(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

// Remove implements Store.
func (m *MemoryStore) Remove() error {
	return m.Set("")
}

// TokenSource adapts a Store to oauth2.TokenSource. Each call re-reads the store.
func TokenSource(s Store) oauth2.TokenSource {
	return storeSource{s}
}

type storeSource struct {
	s Store
}

func (src storeSource) Token() (*oauth2.Token, error) {
	raw, ok := src.s.Get()
	if !ok {
		return nil, ErrNoToken
	}
	return &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}, nil
}
