// Package history persists the parameters of past builds and reconciles
// them against a job's current parameter schema.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/kairyou/jenkins-cli/internal/jenkins"
)

// FileName is the history file inside the CLI data directory.
const FileName = "history.toml"

const currentVersion = 1

// Entry records one triggered build. Entries are keyed by (JobURL, Name):
// triggering the same job again overwrites its entry.
type Entry struct {
	JobURL      string                        `toml:"job_url"`
	Name        string                        `toml:"name"`
	DisplayName string                        `toml:"display_name,omitempty"`
	Params      map[string]jenkins.ParamValue `toml:"params,omitempty"`
	CreatedAt   int64                         `toml:"created_at,omitempty"`
	CompletedAt int64                         `toml:"completed_at,omitempty"`
}

type historyFile struct {
	Version int     `toml:"version,omitempty"`
	Entries []Entry `toml:"entries"`
}

// Store is the on-disk history store.
type Store struct {
	path    string
	entries []Entry
	now     func() int64
}

// Open loads the history file at path, creating it when missing. Empty or
// unparseable files load as an empty history rather than failing the run.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		now:  func() int64 { return time.Now().Unix() },
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read history file: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			return nil, fmt.Errorf("failed to create history file: %w", err)
		}
		return s, nil
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return s, nil
	}

	var file historyFile
	if err := toml.Unmarshal(data, &file); err != nil {
		// Corrupt history is not worth blocking a build over.
		return s, nil
	}
	s.entries = file.Entries
	return s, nil
}

func (s *Store) save() error {
	data, err := toml.Marshal(historyFile{Version: currentVersion, Entries: s.entries})
	if err != nil {
		return fmt.Errorf("failed to serialize history: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}

func matches(e *Entry, jobURL, name string) bool {
	return e.JobURL == jobURL && e.Name == name
}

// Upsert inserts or overwrites the entry for (entry.JobURL, entry.Name),
// stamping created_at with the current time.
func (s *Store) Upsert(entry Entry) error {
	entry.CreatedAt = s.now()
	for i := range s.entries {
		if matches(&s.entries[i], entry.JobURL, entry.Name) {
			s.entries[i] = entry
			return s.save()
		}
	}
	s.entries = append(s.entries, entry)
	return s.save()
}

// Get returns the entry for (jobURL, name) scoped to baseURL, or nil.
func (s *Store) Get(baseURL, jobURL, name string) *Entry {
	input := simplifyURL(baseURL)
	for i := range s.entries {
		e := &s.entries[i]
		if strings.Contains(e.JobURL, input) && matches(e, jobURL, name) {
			clone := *e
			return &clone
		}
	}
	return nil
}

// Recent returns up to limit entries for baseURL, newest first.
func (s *Store) Recent(baseURL string, limit int) []Entry {
	input := simplifyURL(baseURL)
	var items []Entry
	for _, e := range s.entries {
		if strings.Contains(e.JobURL, input) {
			items = append(items, e)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt > items[j].CreatedAt
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// UpdateCompleted patches completed_at on the entry for (jobURL, name).
func (s *Store) UpdateCompleted(jobURL, name string) error {
	for i := range s.entries {
		if matches(&s.entries[i], jobURL, name) {
			s.entries[i].CompletedAt = s.now()
			return s.save()
		}
	}
	return fmt.Errorf("history entry not found: %s", name)
}

// Prune removes entries under baseURL whose job name is no longer in
// existing. Returns the removed names.
func (s *Store) Prune(baseURL string, existing []string) ([]string, error) {
	keep := make(map[string]bool, len(existing))
	for _, name := range existing {
		keep[name] = true
	}

	input := simplifyURL(baseURL)
	var removed []string
	kept := s.entries[:0]
	for _, e := range s.entries {
		if strings.Contains(e.JobURL, input) && !keep[e.Name] {
			removed = append(removed, e.Name)
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept

	if len(removed) > 0 {
		if err := s.save(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// simplifyURL reduces a URL to a scheme-less, slash-trimmed form so entries
// recorded against http://host/ still match https://host.
func simplifyURL(rawURL string) string {
	u := strings.TrimSpace(rawURL)
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	return strings.TrimRight(u, "/")
}
