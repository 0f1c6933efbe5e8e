// Package store persists the pseudonym table as an indented JSON document.
//
// The on-disk format is an object mapping pseudonym to a [username, ip, port]
// tuple. The whole file is rewritten on every mutation; there is no locking
// against concurrent invocations of the tool.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"tailnym/internal/appconfig"
	"tailnym/internal/model"
)

// EnvConfigPath overrides the pseudonym table location when set.
const EnvConfigPath = "TAILNYM_CONFIG"

// Store reads and writes the pseudonym table at a fixed path.
type Store struct {
	path string
}

// New creates a store for the given table path.
func New(path string) *Store {
	return &Store{path: path}
}

// Open creates a store at the default path, honoring the TAILNYM_CONFIG
// environment override.
func Open() (*Store, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return New(path), nil
}

// DefaultPath resolves the pseudonym table location: the TAILNYM_CONFIG
// environment variable if set, otherwise pseudonyms.json in the application
// config directory.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pseudonyms.json"), nil
}

// Path returns the table location backing this store.
func (s *Store) Path() string { return s.path }

// Load reads the pseudonym table. A missing file yields an empty table; an
// unreadable or unparseable file yields a PersistenceError.
func (s *Store) Load() (model.Table, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Table{}, nil
		}
		return nil, &model.PersistenceError{Op: "read", Path: s.path, Err: err}
	}
	var t model.Table
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, &model.PersistenceError{Op: "parse", Path: s.path, Err: err}
	}
	if t == nil {
		t = model.Table{}
	}
	return t, nil
}

// Save writes the full table, creating the containing directory on first use.
func (s *Store) Save(t model.Table) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return &model.PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return &model.PersistenceError{Op: "encode", Path: s.path, Err: err}
	}
	if err := os.WriteFile(s.path, append(b, '\n'), 0o600); err != nil {
		return &model.PersistenceError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}
