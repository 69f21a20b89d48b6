package common

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	OpSetField = "set-field"
	OpSplice   = "splice"
	OpUndo     = "undo"
)

// PatchEntry captures a single modification to a container.
type PatchEntry struct {
	ID           string    `json:"id"`
	Op           string    `json:"op"`
	Path         string    `json:"path"`
	Ref          string    `json:"ref,omitempty"`
	Field        string    `json:"field,omitempty"`
	Kind         string    `json:"kind,omitempty"`
	Donor        string    `json:"donor,omitempty"`
	Offset       int64     `json:"offset,omitempty"`
	BeforeHex    string    `json:"beforeHex,omitempty"`
	AfterHex     string    `json:"afterHex,omitempty"`
	BeforeSHA256 string    `json:"beforeSha256,omitempty"`
	AfterSHA256  string    `json:"afterSha256,omitempty"`
	Backup       string    `json:"backup,omitempty"`
	Ts           time.Time `json:"ts"`
}

// NewOpID returns a fresh operation identifier.
func NewOpID() string {
	return uuid.NewString()
}

// BeforeBytes decodes the bytes present before the edit.
func (p PatchEntry) BeforeBytes() ([]byte, error) {
	if strings.TrimSpace(p.BeforeHex) == "" {
		return nil, nil
	}
	return hex.DecodeString(p.BeforeHex)
}

// AfterBytes decodes the bytes written by the edit.
func (p PatchEntry) AfterBytes() ([]byte, error) {
	if strings.TrimSpace(p.AfterHex) == "" {
		return nil, nil
	}
	return hex.DecodeString(p.AfterHex)
}

// PatchLog provides append-only access to a JSONL audit log.
type PatchLog struct {
	path string
	mu   sync.Mutex
}

// NewPatchLog returns a PatchLog that writes to the provided path.
func NewPatchLog(path string) *PatchLog {
	return &PatchLog{path: path}
}

// Path returns the backing file path for the log.
func (p *PatchLog) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// Append writes entry as one JSON line. Missing ids and timestamps are
// filled in; the stored entry is returned.
func (p *PatchLog) Append(entry PatchEntry) (PatchEntry, error) {
	if p == nil {
		return entry, errors.New("nil patch log")
	}
	if entry.Op == "" {
		return entry, errors.New("patch entry missing op")
	}
	if entry.ID == "" {
		entry.ID = NewOpID()
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return entry, err
	}
	dir := filepath.Dir(p.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return entry, err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return entry, err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return entry, err
	}
	return entry, f.Sync()
}

// ReadPatchLog loads every entry from the supplied JSONL file.
func ReadPatchLog(path string) ([]PatchEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var entries []PatchEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry PatchEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode patch entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// UndoTarget picks the entry to revert: the one with the given id, or the
// newest entry that has not already been undone.
func UndoTarget(entries []PatchEntry, id string) (PatchEntry, error) {
	undone := make(map[string]bool)
	for _, e := range entries {
		if e.Op == OpUndo && e.Ref != "" {
			undone[e.Ref] = true
		}
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Op == OpUndo {
			continue
		}
		if id != "" && e.ID != id {
			continue
		}
		if undone[e.ID] {
			if id != "" {
				return PatchEntry{}, fmt.Errorf("entry %s already undone", id)
			}
			continue
		}
		return e, nil
	}
	if id != "" {
		return PatchEntry{}, fmt.Errorf("entry %s not found", id)
	}
	return PatchEntry{}, errors.New("nothing to undo")
}
