// Package kubefwd supervises the background kubefwd process that exposes
// in-cluster services on local hostnames: starting it detached, tracking it
// through a process record on disk, and stopping it again later, possibly
// from a different invocation of the CLI.
package kubefwd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	stateDir   = ".hops/local"
	recordFile = "kubefwd.yaml"
	logFile    = "kubefwd.log"
)

// Record identifies a forwarder process started by this CLI.
type Record struct {
	PID       int       `yaml:"pid"`
	LogFile   string    `yaml:"logFile"`
	StartedAt time.Time `yaml:"startedAt"`
}

// Store persists the forwarder process record across CLI invocations.
type Store interface {
	// Load returns the current record, or nil when none exists.
	Load() (*Record, error)

	// Save writes the record.
	Save(Record) error

	// Clear removes the record. Clearing an absent record is a no-op.
	Clear() error

	// LogPath is where the forwarder's output goes.
	LogPath() string
}

// fileStore keeps the record as YAML under the state directory.
type fileStore struct {
	dir string
}

// NewStore creates the default file-backed store under the user's home
// directory.
func NewStore() (Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine home directory: %w", err)
	}
	return NewStoreAt(filepath.Join(home, stateDir)), nil
}

// NewStoreAt creates a file-backed store rooted at dir.
func NewStoreAt(dir string) Store {
	return &fileStore{dir: dir}
}

func (s *fileStore) Load() (*Record, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, recordFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read forwarder record: %w", err)
	}

	var record Record
	if err := yaml.Unmarshal(data, &record); err != nil || record.PID <= 0 {
		log.Printf("Ignoring unreadable forwarder record in %s", s.dir)
		return nil, nil
	}
	return &record, nil
}

func (s *fileStore) Save(record Record) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", s.dir, err)
	}

	data, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode forwarder record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, recordFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write forwarder record: %w", err)
	}
	return nil
}

func (s *fileStore) Clear() error {
	err := os.Remove(filepath.Join(s.dir, recordFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove forwarder record: %w", err)
	}
	return nil
}

func (s *fileStore) LogPath() string {
	return filepath.Join(s.dir, logFile)
}
