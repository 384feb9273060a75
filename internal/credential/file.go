package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileName is the credential document's name inside the config directory.
const FileName = "credentials.json"

type document struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

// FileStore keeps the token in a JSON document on disk. Writes go to a
// temporary file that is renamed over the target, so readers never observe a
// partial document.
type FileStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileStore creates a FileStore backed by path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// DefaultPath returns $XDG_CONFIG_HOME/kurosadmin/credentials.json, falling
// back to the user config directory of the platform.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("resolve config dir: %w", err)
		}
	}
	return filepath.Join(dir, "kurosadmin", FileName), nil
}

// Path returns the document location.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes the token atomically with owner-only permissions.
func (s *FileStore) Save(_ context.Context, token string) error {
	data, err := json.Marshal(document{Token: token, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp credentials: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credentials: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}

// Load reads the token. A missing, unreadable or corrupt document counts as
// no token.
func (s *FileStore) Load(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.WarnContext(ctx, "failed to read credentials",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
		}
		return "", false
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.WarnContext(ctx, "ignoring corrupt credentials file",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return "", false
	}
	return doc.Token, doc.Token != ""
}

// Clear removes the document. Clearing an absent document is not an error.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}
