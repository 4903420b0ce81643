// Package ledger persists the set of video IDs that failed processing, as a
// plain text file with one ID per line. The file is human-editable; lines
// starting with "#" are comments.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const header = "# Videos that failed processing; one ID per line. Entries are retried by the retry command."

// Ledger is a persistent record of failed video IDs. All methods re-read the
// file, so external edits between calls are honored.
type Ledger struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Record adds an ID to the ledger, creating the file if needed. Recording an
// ID that is already present is a no-op.
func (l *Ledger) Record(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids, err := l.read()
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return l.write(append(ids, id))
}

// Contains reports whether the exact ID is recorded.
func (l *Ledger) Contains(id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids, err := l.read()
	if err != nil {
		return false, err
	}
	for _, existing := range ids {
		if existing == id {
			return true, nil
		}
	}
	return false, nil
}

// Clear removes an ID from the ledger. Only a whole-line match is removed;
// an ID that is a substring of another ID is never affected.
func (l *Ledger) Clear(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids, err := l.read()
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	return l.write(kept)
}

// List returns all recorded IDs in file order.
func (l *Ledger) List() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

func (l *Ledger) read() ([]string, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, nil
}

func (l *Ledger) write(ids []string) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}
	lines := append([]string{header}, ids...)
	data := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(l.path, []byte(data), 0644); err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}
	return nil
}
