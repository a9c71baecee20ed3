package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fjod/shop_client/internal/domain"
)

var ErrNoCredentials = errors.New("no stored credentials")

// CredentialStore is the opaque key-value store holding the session tokens
// and the user id. Consumers define this interface, not the storage backend.
type CredentialStore interface {
	Tokens(ctx context.Context) (domain.TokenPair, error)
	SetTokens(ctx context.Context, pair domain.TokenPair) error
	UserID(ctx context.Context) (string, error)
	SetUserID(ctx context.Context, userID string) error

	// Clear removes both tokens and the user id in one step.
	Clear(ctx context.Context) error
}

// MemoryCredentialStore keeps the session in process memory. Used in tests
// and as a fallback when no credentials file is configured.
type MemoryCredentialStore struct {
	mu     sync.RWMutex
	pair   *domain.TokenPair
	userID string
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (s *MemoryCredentialStore) Tokens(context.Context) (domain.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pair == nil {
		return domain.TokenPair{}, ErrNoCredentials
	}
	return *s.pair, nil
}

func (s *MemoryCredentialStore) SetTokens(_ context.Context, pair domain.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = &pair
	return nil
}

func (s *MemoryCredentialStore) UserID(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID == "" {
		return "", ErrNoCredentials
	}
	return s.userID, nil
}

func (s *MemoryCredentialStore) SetUserID(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	return nil
}

func (s *MemoryCredentialStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = nil
	s.userID = ""
	return nil
}

// FileCredentialStore persists the session as a JSON file with 0600
// permissions. Writes go through a temp file and rename so a token pair is
// replaced atomically or not at all.
type FileCredentialStore struct {
	mu   sync.Mutex
	path string
}

type credentialsFile struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
}

func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

func (s *FileCredentialStore) Tokens(context.Context) (domain.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return domain.TokenPair{}, err
	}
	if f.AccessToken == "" && f.RefreshToken == "" {
		return domain.TokenPair{}, ErrNoCredentials
	}
	return domain.TokenPair{AccessToken: f.AccessToken, RefreshToken: f.RefreshToken}, nil
}

func (s *FileCredentialStore) SetTokens(_ context.Context, pair domain.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil && !errors.Is(err, ErrNoCredentials) {
		return err
	}
	f.AccessToken = pair.AccessToken
	f.RefreshToken = pair.RefreshToken
	return s.write(f)
}

func (s *FileCredentialStore) UserID(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return "", err
	}
	if f.UserID == "" {
		return "", ErrNoCredentials
	}
	return f.UserID, nil
}

func (s *FileCredentialStore) SetUserID(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil && !errors.Is(err, ErrNoCredentials) {
		return err
	}
	f.UserID = userID
	return s.write(f)
}

func (s *FileCredentialStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials file: %w", err)
	}
	return nil
}

func (s *FileCredentialStore) read() (credentialsFile, error) {
	var f credentialsFile
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return f, ErrNoCredentials
	}
	if err != nil {
		return f, fmt.Errorf("failed to read credentials file: %w", err)
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return f, nil
}

func (s *FileCredentialStore) write(f credentialsFile) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}
	return nil
}
