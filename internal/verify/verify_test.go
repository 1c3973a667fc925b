package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyndonlyu/sweepsafe/internal/config"
	"github.com/lyndonlyu/sweepsafe/internal/gitx"
	"github.com/lyndonlyu/sweepsafe/internal/scan"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, git gitx.Inspector) *Engine {
	t.Helper()
	e := NewEngine(config.Default().Verification, git, scan.NewFS(), nil, nil)
	e.SetClock(func() time.Time { return testNow })
	return e
}

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))
	mtime := testNow.Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestGitStateNonRepo(t *testing.T) {
	git := gitx.NewFake()
	git.Repo = false
	e := newEngine(t, git)

	res := e.checkGitState(t.TempDir())
	assert.True(t, res.Passed)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Contains(t, res.Warnings, "target is not a git repository")
}

func TestGitStateActiveOperationBlocks(t *testing.T) {
	git := gitx.NewFake()
	git.Ops = []string{"merge in progress"}
	e := newEngine(t, git)

	res := e.checkGitState(t.TempDir())
	assert.False(t, res.Passed)
	assert.True(t, res.Critical)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Contains(t, res.FailureReason, "active git operations")
}

func TestGitStateStagedChangesBlock(t *testing.T) {
	git := gitx.NewFake()
	git.Stat = gitx.Status{Staged: []string{"main.go"}}
	e := newEngine(t, git)

	res := e.checkGitState(t.TempDir())
	assert.False(t, res.Passed)
	assert.True(t, res.Critical)
	assert.InDelta(t, 0.3, res.Confidence, 1e-9)
}

func TestGitStateUntrackedOnlyWarns(t *testing.T) {
	git := gitx.NewFake()
	git.Stat = gitx.Status{Untracked: []string{"scratch.txt"}}
	e := newEngine(t, git)

	res := e.checkGitState(t.TempDir())
	assert.True(t, res.Passed)
	assert.NotEmpty(t, res.Warnings)
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
}

func TestBackupAgeFreshFailsNonCritically(t *testing.T) {
	root := t.TempDir()
	writeAged(t, filepath.Join(root, "new.bak"), 2*time.Hour)
	e := newEngine(t, gitx.NewFake())

	res := e.checkBackupAge(root)
	assert.False(t, res.Passed)
	assert.False(t, res.Critical, "age violations never block on their own")
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
	assert.Contains(t, res.FailureReason, "too fresh")
}

func TestBackupAgeStalePasses(t *testing.T) {
	root := t.TempDir()
	writeAged(t, filepath.Join(root, "old.bak"), 120*24*time.Hour)
	e := newEngine(t, gitx.NewFake())

	res := e.checkBackupAge(root)
	assert.True(t, res.Passed)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, 1, res.Details["stale_backups"])
}

func TestBackupAgeStableWarns(t *testing.T) {
	root := t.TempDir()
	writeAged(t, filepath.Join(root, "mid.bak"), 10*24*time.Hour)
	e := newEngine(t, gitx.NewFake())

	res := e.checkBackupAge(root)
	assert.True(t, res.Passed)
	assert.NotEmpty(t, res.Warnings)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
}

func TestReferenceChainNonRepo(t *testing.T) {
	git := gitx.NewFake()
	git.Repo = false
	e := newEngine(t, git)

	res := e.checkReferenceChain(t.TempDir())
	assert.True(t, res.Passed)
	assert.Equal(t, 1.0, res.Confidence)
	require.NotNil(t, res.References)
	assert.Equal(t, 0, res.References.Total())
}

func TestReferenceChainLowersConfidence(t *testing.T) {
	git := gitx.NewFake()
	git.LogEntries = []gitx.LogEntry{
		{Hash: "abc1234", Message: "restore from backup"},
		{Hash: "def5678", Message: "keep config backup around"},
	}
	git.BranchList = []string{"main", "backup/old-state"}
	e := newEngine(t, git)

	res := e.checkReferenceChain(t.TempDir())
	assert.True(t, res.Passed, "reference chain is informational, never blocks")
	require.NotNil(t, res.References)
	assert.Equal(t, 2, len(res.References.Commits))
	assert.Equal(t, []string{"backup/old-state"}, res.References.Branches)
	assert.Less(t, res.Confidence, 1.0)
	assert.GreaterOrEqual(t, res.Confidence, 0.3)
}

func TestReferenceChainLogErrorDegrades(t *testing.T) {
	git := gitx.NewFake()
	git.FailLog = true
	e := newEngine(t, git)

	res := e.checkReferenceChain(t.TempDir())
	assert.True(t, res.Passed)
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
	assert.Contains(t, res.FailureReason, "reference chain analysis failed")
}

func TestEmergencyPatternsCrashFileBlocks(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.crash"), []byte("boom"), 0644))
	e := newEngine(t, gitx.NewFake())

	res := e.checkEmergencyPatterns(root)
	assert.False(t, res.Passed)
	assert.True(t, res.Critical)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestEmergencyPatternsIndexLockBlocks(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "index.lock"), nil, 0644))
	e := newEngine(t, gitx.NewFake())

	res := e.checkEmergencyPatterns(root)
	assert.False(t, res.Passed)
	assert.Contains(t, res.FailureReason, "index.lock")
}

func TestEmergencyPatternsCriticalBackupWarns(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "db.production.backup.20240110"), []byte("x"), 0644))
	e := newEngine(t, gitx.NewFake())

	res := e.checkEmergencyPatterns(root)
	assert.True(t, res.Passed)
	assert.NotEmpty(t, res.Warnings)
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
}

func TestEmergencyPatternsOpenHandlesLowerConfidence(t *testing.T) {
	root := t.TempDir()
	e := newEngine(t, gitx.NewFake())
	e.procs = func(string) ([]string, error) {
		return []string{"vim (pid 4242)"}, nil
	}

	res := e.checkEmergencyPatterns(root)
	assert.True(t, res.Passed)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
	assert.Contains(t, res.Warnings, "active processes detected with open files: 1")
	assert.Equal(t, 1, res.Details["active_processes"])
}

func TestEmergencyPatternsProcessListerErrorIgnored(t *testing.T) {
	root := t.TempDir()
	e := newEngine(t, gitx.NewFake())
	e.procs = func(string) ([]string, error) {
		return []string{"stale"}, errors.New("lsof not available")
	}

	res := e.checkEmergencyPatterns(root)
	assert.True(t, res.Passed)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Empty(t, res.Warnings)
}

func TestParseLsofProcesses(t *testing.T) {
	out := "p1234\ncvim\np5678\ncpython3\n"
	assert.Equal(t, []string{"vim (pid 1234)", "python3 (pid 5678)"}, parseLsofProcesses(out))
	assert.Empty(t, parseLsofProcesses(""))
}

func TestVerifyAllCleanRun(t *testing.T) {
	root := t.TempDir()
	writeAged(t, filepath.Join(root, "ancient.bak"), 200*24*time.Hour)
	e := newEngine(t, gitx.NewFake())

	results := e.VerifyAll(context.Background(), root)
	require.Len(t, results, 4)

	passed, confidence, issues := Aggregate(results)
	assert.True(t, passed)
	assert.Equal(t, 1.0, confidence)
	assert.Empty(t, issues)
}

func TestAggregateEmpty(t *testing.T) {
	passed, confidence, issues := Aggregate(nil)
	assert.False(t, passed)
	assert.Equal(t, 0.0, confidence)
	assert.Equal(t, []string{"no verification results available"}, issues)
}

func TestAggregateMinimumConfidenceWins(t *testing.T) {
	results := map[Factor]Result{
		GitState:  {Factor: GitState, FactorName: "git_state", Passed: true, Confidence: 1.0},
		BackupAge: {Factor: BackupAge, FactorName: "backup_age", Passed: true, Confidence: 0.4},
	}
	passed, confidence, _ := Aggregate(results)
	assert.True(t, passed)
	assert.Equal(t, 0.4, confidence, "one weak factor caps the whole run")
	assert.Equal(t, 0.4, MinConfidence(results))
}

func TestAggregateCriticalFailure(t *testing.T) {
	results := map[Factor]Result{
		GitState: {Factor: GitState, FactorName: "git_state", Passed: false, Critical: true,
			FailureReason: "active git operations detected: merge"},
		BackupAge: {Factor: BackupAge, FactorName: "backup_age", Passed: true, Confidence: 1.0},
	}
	passed, _, issues := Aggregate(results)
	assert.False(t, passed)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "git_state:")
}

func TestRunGuardedConvertsPanic(t *testing.T) {
	res := runGuarded(GitState, func(string) Result { panic("boom") }, "/tmp")
	assert.False(t, res.Passed)
	assert.True(t, res.Critical)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Contains(t, res.FailureReason, "boom")
}
