// YAML file store for per-session filter criteria
package filter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultSession is used when no session ID is configured.
const DefaultSession = "default"

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// FileStore keeps criteria for many sessions in one YAML file.
type FileStore struct {
	path    string
	session string
	mu      sync.Mutex
}

type fileState struct {
	Sessions map[string]fileSession `yaml:"sessions"`
}

type fileSession struct {
	Criteria Criteria  `yaml:"criteria"`
	Updated  time.Time `yaml:"updated"`
}

// NewFileStore returns a store for session backed by the YAML file at path.
// The file is created on first save.
func NewFileStore(path, session string) *FileStore {
	if session == "" {
		session = DefaultSession
	}
	return &FileStore{path: path, session: session}
}

// Session returns the session this store reads and writes.
func (s *FileStore) Session() string { return s.session }

func (s *FileStore) Load(_ context.Context) (Criteria, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if err != nil {
		return Criteria{}, err
	}
	saved, ok := state.Sessions[s.session]
	if !ok {
		return Criteria{}, ErrNoState
	}
	return saved.Criteria, nil
}

func (s *FileStore) Save(_ context.Context, c Criteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// An absent or unreadable file is replaced rather than blocking every save.
	state, err := s.read()
	if err != nil {
		state = fileState{}
	}
	if state.Sessions == nil {
		state.Sessions = make(map[string]fileSession)
	}
	state.Sessions[s.session] = fileSession{Criteria: c, Updated: time.Now().UTC()}
	return s.write(state)
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read()
	if errors.Is(err, ErrNoState) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, ok := state.Sessions[s.session]; !ok {
		return nil
	}
	delete(state.Sessions, s.session)
	return s.write(state)
}

func (s *FileStore) read() (fileState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileState{}, ErrNoState
	}
	if err != nil {
		return fileState{}, fmt.Errorf("reading filter store: %w", err)
	}
	var state fileState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return fileState{}, fmt.Errorf("parsing filter store %s: %w", s.path, err)
	}
	return state, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (s *FileStore) write(state fileState) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding filter store: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating filter store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".filters-*.yaml")
	if err != nil {
		return fmt.Errorf("writing filter store: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing filter store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing filter store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("writing filter store: %w", err)
	}
	return nil
}
