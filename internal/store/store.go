// Package store keeps the JSON run history: flashes, task results and
// discovery runs.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const (
	tasksFile       = "tasks.json"
	flashesFile     = "flashes.json"
	discoveriesFile = "discoveries.json"
)

// Store manages persistence of history records.
type Store struct {
	root string
	mu   sync.Mutex
}

// New creates a Store rooted at the given directory (typically .attest/).
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) historyDir() string {
	return filepath.Join(s.root, "history")
}

// AddTask appends a task record.
func (s *Store) AddTask(r TaskRecord) error {
	return s.appendRecord(tasksFile, r)
}

// AddFlash appends a flash record.
func (s *Store) AddFlash(r FlashRecord) error {
	return s.appendRecord(flashesFile, r)
}

// AddDiscovery appends a discovery record.
func (s *Store) AddDiscovery(r DiscoveryRecord) error {
	return s.appendRecord(discoveriesFile, r)
}

// Tasks returns all task records.
func (s *Store) Tasks() ([]TaskRecord, error) {
	var records []TaskRecord
	err := s.loadRecords(tasksFile, &records)
	return records, err
}

// Flashes returns all flash records.
func (s *Store) Flashes() ([]FlashRecord, error) {
	var records []FlashRecord
	err := s.loadRecords(flashesFile, &records)
	return records, err
}

// Discoveries returns all discovery records.
func (s *Store) Discoveries() ([]DiscoveryRecord, error) {
	var records []DiscoveryRecord
	err := s.loadRecords(discoveriesFile, &records)
	return records, err
}

func (s *Store) appendRecord(filename string, record any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.historyDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(dir, filename)

	var records []json.RawMessage
	if data, err := os.ReadFile(path); err == nil {
		json.Unmarshal(data, &records)
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	records = append(records, raw)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	// Replace atomically.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) loadRecords(filename string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.historyDir(), filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, dest)
}
