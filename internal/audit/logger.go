// Package audit appends cleanup run records to a hash-chained JSONL trail.
// Each record carries the hash of its predecessor, so any tampering breaks
// the chain and is caught by Verify.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// dateFileRe matches audit log files named YYYY-MM-DD.jsonl
var dateFileRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.jsonl$`)

func auditFiles(dir string) ([]string, error) {
	all, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	var filtered []string
	for _, f := range all {
		if dateFileRe.MatchString(filepath.Base(f)) {
			filtered = append(filtered, f)
		}
	}
	return filtered, nil
}

// Entry is one cleanup run as reported by the orchestrator.
type Entry struct {
	Operation       string
	Root            string
	RiskLevel       string
	Outcome         string
	Duration        time.Duration
	FilesScanned    int
	FilesDeleted    int
	FilesPreserved  int
	RecoveryPointID string
	DryRun          bool
	Error           string
}

// Record is the persisted form of an Entry.
type Record struct {
	Timestamp       string `json:"timestamp"`
	ActionID        string `json:"action_id"`
	Operation       string `json:"operation"`
	Root            string `json:"root"`
	RiskLevel       string `json:"risk_level"`
	Outcome         string `json:"outcome"`
	DurationMs      int64  `json:"duration_ms"`
	FilesScanned    int    `json:"files_scanned"`
	FilesDeleted    int    `json:"files_deleted"`
	FilesPreserved  int    `json:"files_preserved"`
	RecoveryPointID string `json:"recovery_point_id,omitempty"`
	DryRun          bool   `json:"dry_run,omitempty"`
	Error           string `json:"error,omitempty"`
	PrevHash        string `json:"prev_hash,omitempty"`
	Hash            string `json:"hash,omitempty"`
}

type Logger struct {
	dir      string
	lastHash string
	now      func() time.Time
}

func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	l := &Logger{dir: dir, now: time.Now}
	l.initLastHash()
	return l, nil
}

// SetClock overrides the logger clock; tests only.
func (l *Logger) SetClock(now func() time.Time) { l.now = now }

func (l *Logger) initLastHash() {
	files, err := auditFiles(l.dir)
	if err != nil || len(files) == 0 {
		return
	}
	sort.Strings(files)
	data, err := os.ReadFile(files[len(files)-1])
	if err != nil {
		return
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return
	}
	lines := strings.Split(content, "\n")
	var r Record
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &r); err != nil {
		return
	}
	l.lastHash = r.Hash
}

func computeHash(r Record) string {
	r.Hash = ""
	data, _ := json.Marshal(r)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func (l *Logger) Log(entry Entry) error {
	record := Record{
		Timestamp:       l.now().UTC().Format(time.RFC3339),
		ActionID:        uuid.New().String(),
		Operation:       entry.Operation,
		Root:            entry.Root,
		RiskLevel:       entry.RiskLevel,
		Outcome:         entry.Outcome,
		DurationMs:      entry.Duration.Milliseconds(),
		FilesScanned:    entry.FilesScanned,
		FilesDeleted:    entry.FilesDeleted,
		FilesPreserved:  entry.FilesPreserved,
		RecoveryPointID: entry.RecoveryPointID,
		DryRun:          entry.DryRun,
		Error:           entry.Error,
		PrevHash:        l.lastHash,
	}
	record.Hash = computeHash(record)

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	filename := l.now().Format("2006-01-02") + ".jsonl"
	path := filepath.Join(l.dir, filename)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err = f.Write(data); err != nil {
		return err
	}
	l.lastHash = record.Hash
	return nil
}

// Recent returns up to n records, newest first.
func (l *Logger) Recent(n int) ([]Record, error) {
	files, err := auditFiles(l.dir)
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	var records []Record
	for _, f := range files {
		if len(records) >= n {
			break
		}
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		for i := len(lines) - 1; i >= 0; i-- {
			if len(records) >= n {
				break
			}
			var r Record
			if err := json.Unmarshal([]byte(lines[i]), &r); err != nil {
				continue
			}
			records = append(records, r)
		}
	}
	return records, nil
}

// Verify walks the whole chain in date order. It returns the index of the
// first broken record, or -1 when the chain is intact.
func (l *Logger) Verify() (bool, int, error) {
	files, err := auditFiles(l.dir)
	if err != nil {
		return false, -1, err
	}
	sort.Strings(files)

	var expectedPrevHash string
	index := 0

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return false, -1, err
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		for _, line := range strings.Split(content, "\n") {
			var r Record
			if err := json.Unmarshal([]byte(line), &r); err != nil {
				return false, -1, err
			}
			// Records without a hash predate chaining; treat as chain head.
			if r.Hash == "" {
				expectedPrevHash = ""
				index++
				continue
			}
			if computeHash(r) != r.Hash {
				return false, index, nil
			}
			if r.PrevHash != expectedPrevHash {
				return false, index, nil
			}
			expectedPrevHash = r.Hash
			index++
		}
	}

	return true, -1, nil
}

// RecordsForDate returns all records logged on date (YYYY-MM-DD).
func (l *Logger) RecordsForDate(date string) ([]Record, error) {
	path := filepath.Join(l.dir, date+".jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, nil
	}
	var records []Record
	for _, line := range strings.Split(content, "\n") {
		var r Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, fmt.Errorf("parse audit record: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}

func (l *Logger) Dir() string {
	return l.dir
}
