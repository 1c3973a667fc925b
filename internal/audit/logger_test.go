package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger(t.TempDir())
	require.NoError(t, err)
	return l
}

func sampleEntry(outcome string) Entry {
	return Entry{
		Operation:    "clean",
		Root:         "/work/project",
		RiskLevel:    "safe",
		Outcome:      outcome,
		Duration:     1500 * time.Millisecond,
		FilesScanned: 4,
		FilesDeleted: 2,
	}
}

func TestLogAndRecent(t *testing.T) {
	l := newLogger(t)
	require.NoError(t, l.Log(sampleEntry("success")))
	require.NoError(t, l.Log(sampleEntry("policy_violation")))

	records, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// newest first
	assert.Equal(t, "policy_violation", records[0].Outcome)
	assert.Equal(t, "success", records[1].Outcome)
	assert.Equal(t, int64(1500), records[0].DurationMs)
	assert.NotEmpty(t, records[0].ActionID)
	assert.NotEqual(t, records[0].ActionID, records[1].ActionID)
}

func TestRecentLimit(t *testing.T) {
	l := newLogger(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Log(sampleEntry("success")))
	}
	records, err := l.Recent(3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestChainLinksRecords(t *testing.T) {
	l := newLogger(t)
	require.NoError(t, l.Log(sampleEntry("success")))
	require.NoError(t, l.Log(sampleEntry("success")))
	require.NoError(t, l.Log(sampleEntry("success")))

	records, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Recent is newest first; each record carries its predecessor's hash.
	assert.Equal(t, records[1].Hash, records[0].PrevHash)
	assert.Equal(t, records[2].Hash, records[1].PrevHash)
	assert.Empty(t, records[2].PrevHash)
}

func TestVerifyIntactChain(t *testing.T) {
	l := newLogger(t)
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Log(sampleEntry("success")))
	}
	ok, brokenAt, err := l.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, -1, brokenAt)
}

func TestVerifyEmptyTrail(t *testing.T) {
	l := newLogger(t)
	ok, brokenAt, err := l.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, -1, brokenAt)
}

func TestVerifyDetectsTampering(t *testing.T) {
	l := newLogger(t)
	require.NoError(t, l.Log(sampleEntry("success")))
	require.NoError(t, l.Log(sampleEntry("success")))
	require.NoError(t, l.Log(sampleEntry("success")))

	files, err := filepath.Glob(filepath.Join(l.Dir(), "*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	// doctor the middle record's deleted count without fixing its hash
	var r Record
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &r))
	r.FilesDeleted = 999
	doctored, err := json.Marshal(r)
	require.NoError(t, err)
	lines[1] = string(doctored)
	require.NoError(t, os.WriteFile(files[0], []byte(strings.Join(lines, "\n")+"\n"), 0644))

	ok, brokenAt, err := l.Verify()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, brokenAt)
}

func TestVerifyDetectsDeletedRecord(t *testing.T) {
	l := newLogger(t)
	require.NoError(t, l.Log(sampleEntry("success")))
	require.NoError(t, l.Log(sampleEntry("success")))
	require.NoError(t, l.Log(sampleEntry("success")))

	files, err := filepath.Glob(filepath.Join(l.Dir(), "*.jsonl"))
	require.NoError(t, err)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")

	// drop the middle record: the chain around the gap no longer links
	require.NoError(t, os.WriteFile(files[0], []byte(lines[0]+"\n"+lines[2]+"\n"), 0644))

	ok, brokenAt, err := l.Verify()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, brokenAt)
}

func TestChainContinuesAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	l1, err := NewLogger(dir)
	require.NoError(t, err)
	require.NoError(t, l1.Log(sampleEntry("success")))

	l2, err := NewLogger(dir)
	require.NoError(t, err)
	require.NoError(t, l2.Log(sampleEntry("success")))

	ok, _, err := l2.Verify()
	require.NoError(t, err)
	assert.True(t, ok, "a restarted logger must pick up the chain tail")
}

func TestRecordsForDate(t *testing.T) {
	l := newLogger(t)
	fixed := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return fixed })

	require.NoError(t, l.Log(sampleEntry("success")))

	records, err := l.RecordsForDate("2024-06-15")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2024-06-15T12:00:00Z", records[0].Timestamp)

	none, err := l.RecordsForDate("1999-01-01")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNonDateFilesIgnored(t *testing.T) {
	l := newLogger(t)
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), "notes.jsonl"), []byte("not json\n"), 0644))
	require.NoError(t, l.Log(sampleEntry("success")))

	ok, _, err := l.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
}
