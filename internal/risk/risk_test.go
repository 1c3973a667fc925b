package risk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyndonlyu/sweepsafe/internal/config"
	"github.com/lyndonlyu/sweepsafe/internal/gitx"
	"github.com/lyndonlyu/sweepsafe/internal/scan"
	"github.com/lyndonlyu/sweepsafe/internal/verify"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, git gitx.Inspector, grep TreeGrep) *Engine {
	t.Helper()
	if grep == nil {
		grep = func(root, needle string) (int, error) { return 0, nil }
	}
	e := NewEngine(config.Default().Risk, git, scan.NewFS(), grep, nil)
	e.SetClock(func() time.Time { return testNow })
	return e
}

func writeAged(t *testing.T, path, content string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	mtime := testNow.Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		path string
		want BackupType
	}{
		{"main.go.bak", SourceCode},
		{"app.py.backup.20240110", SourceCode},
		{"settings.backup", Configuration},
		{"prod.env.bak", Configuration},
		{"database.bak", DataFile},
		{"export.data.backup", DataFile},
		{"tool.exe", Binary},
		{"readme.bak", Documentation},
		{"scratch.tmp.bak", Temporary},
		{"mystery.bak", Unknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classify(tc.path), tc.path)
	}
}

func TestFileTypeFactorBonuses(t *testing.T) {
	e := newEngine(t, gitx.NewFake(), nil)

	plain := e.fileTypeFactor("notes.bak", Unknown)
	assert.InDelta(t, 0.5, plain.Score, 1e-9)

	critical := e.fileTypeFactor("critical.notes.bak", Unknown)
	assert.InDelta(t, 0.6, critical.Score, 1e-9)

	prod := e.fileTypeFactor("prod.notes.bak", Unknown)
	assert.InDelta(t, 0.65, prod.Score, 1e-9)

	// source + production clamps at 1.0
	capped := e.fileTypeFactor("production.app.py.bak", SourceCode)
	assert.Equal(t, 1.0, capped.Score)
}

func TestRecencyFactorTiers(t *testing.T) {
	e := newEngine(t, gitx.NewFake(), nil)
	root := t.TempDir()

	cases := []struct {
		age  time.Duration
		want float64
	}{
		{2 * time.Hour, 1.0},
		{3 * 24 * time.Hour, 0.8},
		{15 * 24 * time.Hour, 0.5},
		{60 * 24 * time.Hour, 0.2},
		{200 * 24 * time.Hour, 0.1},
	}
	for i, tc := range cases {
		path := filepath.Join(root, "f"+string(rune('a'+i))+".bak")
		writeAged(t, path, "x", tc.age)
		f := e.recencyFactor(path)
		assert.Equal(t, tc.want, f.Score, "age %v", tc.age)
	}
}

func TestRecencyFactorMissingFileIsNeutral(t *testing.T) {
	e := newEngine(t, gitx.NewFake(), nil)
	f := e.recencyFactor(filepath.Join(t.TempDir(), "gone.bak"))
	assert.Equal(t, 0.5, f.Score)
}

func TestReferenceDensityTiers(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "config.bak")
	writeAged(t, path, "x", time.Hour)

	git := gitx.NewFake()
	git.Repo = false

	none := newEngine(t, git, nil).referenceDensityFactor(root, path, &verify.ReferenceSet{})
	assert.Equal(t, 0.1, none.Score)

	low := newEngine(t, git, nil).referenceDensityFactor(root, path, &verify.ReferenceSet{
		Commits: []gitx.LogEntry{{Hash: "a1", Message: "touch config.bak"}},
	})
	assert.Equal(t, 0.3, low.Score)

	moderate := newEngine(t, git, nil).referenceDensityFactor(root, path, &verify.ReferenceSet{
		Commits: []gitx.LogEntry{
			{Hash: "a1", Files: []string{"config.bak"}},
			{Hash: "a2", Message: "mentions config.bak"},
		},
		Branches: []string{"save/config.bak"},
	})
	assert.Equal(t, 0.6, moderate.Score)
}

func TestReferenceDensityGrepHits(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "app.py.bak")
	writeAged(t, path, "x", time.Hour)

	grep := func(root, needle string) (int, error) { return 7, nil }
	f := newEngine(t, gitx.NewFake(), grep).referenceDensityFactor(root, path, nil)
	assert.Equal(t, 0.9, f.Score)
}

func TestUniquenessFactor(t *testing.T) {
	git := gitx.NewFake()

	t.Run("unique", func(t *testing.T) {
		root := t.TempDir()
		path := filepath.Join(root, "lonely.bak")
		writeAged(t, path, "content", time.Hour)
		f := newEngine(t, git, nil).uniquenessFactor(root, path)
		assert.Equal(t, 0.9, f.Score)
	})

	t.Run("exact duplicate", func(t *testing.T) {
		root := t.TempDir()
		path := filepath.Join(root, "config.backup.20240110")
		writeAged(t, path, "same content", time.Hour)
		writeAged(t, filepath.Join(root, "config"), "same content", time.Hour)
		f := newEngine(t, git, nil).uniquenessFactor(root, path)
		assert.Equal(t, 0.2, f.Score)
	})

	t.Run("many similar", func(t *testing.T) {
		root := t.TempDir()
		path := filepath.Join(root, "config.backup.20240110")
		writeAged(t, path, "v1", time.Hour)
		writeAged(t, filepath.Join(root, "config.backup.20240111"), "v2", time.Hour)
		writeAged(t, filepath.Join(root, "config.backup.20240112"), "v3", time.Hour)
		writeAged(t, filepath.Join(root, "config.backup.20240113"), "v4", time.Hour)
		f := newEngine(t, git, nil).uniquenessFactor(root, path)
		assert.Equal(t, 0.4, f.Score)
	})
}

func TestGitContextFactorNonRepo(t *testing.T) {
	git := gitx.NewFake()
	git.Repo = false
	f := newEngine(t, git, nil).gitContextFactor(t.TempDir(), "x.bak")
	assert.Equal(t, 0.5, f.Score)
	assert.Equal(t, 0.1, f.Weight)
}

func TestGitContextFactorTrackedWithHistory(t *testing.T) {
	root := t.TempDir()
	git := gitx.NewFake()
	git.Tracked = map[string]bool{"x.bak": true}
	git.Modified = map[string]bool{"x.bak": true}
	git.Commits = map[string]int{"x.bak": 10}

	f := newEngine(t, git, nil).gitContextFactor(root, filepath.Join(root, "x.bak"))
	// 0.5 + 0.3 tracked + 0.2 modified + 0.3 capped commit bump, clamped
	assert.Equal(t, 1.0, f.Score)
	assert.Equal(t, 0.15, f.Weight)
}

func TestGitContextFactorUntracked(t *testing.T) {
	root := t.TempDir()
	f := newEngine(t, gitx.NewFake(), nil).gitContextFactor(root, filepath.Join(root, "x.bak"))
	assert.InDelta(t, 0.4, f.Score, 1e-9)
}

func TestFactorWeightsComeFromConfig(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "x.bak")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

	cfg := config.Default().Risk
	cfg.GitContextWeight = 0.2
	cfg.ContentWeight = 0.05
	e := NewEngine(cfg, gitx.NewFake(), scan.NewFS(), func(string, string) (int, error) { return 0, nil }, nil)

	assert.Equal(t, 0.2, e.gitContextFactor(root, path).Weight)
	assert.Equal(t, 0.05, e.contentFactor(path).Weight)
}

func TestContentFactor(t *testing.T) {
	e := newEngine(t, gitx.NewFake(), nil)
	root := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		f := e.contentFactor(filepath.Join(root, "gone.bak"))
		assert.Equal(t, 0.0, f.Score)
		assert.Equal(t, 0.1, f.Weight)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(root, "empty.bak")
		require.NoError(t, os.WriteFile(path, nil, 0644))
		f := e.contentFactor(path)
		assert.Equal(t, 0.1, f.Score)
	})

	t.Run("secrets raise score", func(t *testing.T) {
		path := filepath.Join(root, "creds.bak")
		writeAged(t, path, "password: hunter2\ndatabase url here", time.Hour)
		f := e.contentFactor(path)
		assert.Greater(t, f.Score, 0.5)
	})

	t.Run("code-like content", func(t *testing.T) {
		path := filepath.Join(root, "code.bak")
		writeAged(t, path, "import os;\nclass Foo:\n    def bar(self):\n        x = (1)\n", time.Hour)
		f := e.contentFactor(path)
		assert.GreaterOrEqual(t, f.Score, 0.75)
	})
}

func TestConfidenceCappedByVerification(t *testing.T) {
	e := newEngine(t, gitx.NewFake(), nil)

	factors := []Factor{{Evidence: []string{"a", "b", "c", "d", "e"}}}
	assert.InDelta(t, 0.8, e.confidence(factors, SourceCode, 1.0), 1e-9)
	assert.InDelta(t, 0.3, e.confidence(factors, SourceCode, 0.3), 1e-9, "weak verification caps confidence")
	assert.Equal(t, 0.1, e.confidence(factors, SourceCode, 0.0), "confidence floor")

	sparse := []Factor{{Evidence: []string{"a"}}}
	assert.InDelta(t, 0.6, e.confidence(sparse, SourceCode, 1.0), 1e-9)
	assert.InDelta(t, 0.5, e.confidence(sparse, Unknown, 1.0), 1e-9)
}

func TestSafetyLevelThresholds(t *testing.T) {
	e := newEngine(t, gitx.NewFake(), nil)

	// riskScore = importance + (1-confidence)*0.3
	assert.Equal(t, Safe, e.safetyLevel(0.3, 1.0))
	assert.Equal(t, Cautious, e.safetyLevel(0.6, 1.0))
	assert.Equal(t, Risky, e.safetyLevel(0.85, 1.0))
	// low confidence pushes a borderline file up a tier
	assert.Equal(t, Cautious, e.safetyLevel(0.5, 0.5))
	assert.Equal(t, Risky, e.safetyLevel(0.7, 0.3))
}

func TestSafetyLevelMonotonic(t *testing.T) {
	e := newEngine(t, gitx.NewFake(), nil)
	for conf := 0.1; conf <= 1.0; conf += 0.1 {
		prev := Safe
		for imp := 0.0; imp <= 1.0; imp += 0.01 {
			level := e.safetyLevel(imp, conf)
			assert.GreaterOrEqual(t, int(level), int(prev),
				"level must never drop as importance rises (imp=%.2f conf=%.1f)", imp, conf)
			prev = level
		}
	}
}

func TestRecommendAction(t *testing.T) {
	e := newEngine(t, gitx.NewFake(), nil)
	assert.Equal(t, AutoCleanup, e.recommendAction(Safe, 0.2))
	assert.Equal(t, ConfirmStandard, e.recommendAction(Cautious, 0.5))
	assert.Equal(t, ConfirmDetailed, e.recommendAction(Cautious, 0.75))
	assert.Equal(t, ManualReview, e.recommendAction(Risky, 0.9))
}

func TestAssessStaleTempIsSafe(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "scratch.tmp.bak")
	writeAged(t, path, "throwaway", 200*24*time.Hour)
	writeAged(t, filepath.Join(root, "scratch.tmp"), "throwaway", 200*24*time.Hour)

	git := gitx.NewFake()
	git.Repo = false
	a := newEngine(t, git, nil).Assess(root, path, &verify.ReferenceSet{}, 1.0)

	assert.Equal(t, Temporary, a.Type)
	assert.Equal(t, Safe, a.Level)
	assert.Equal(t, "auto_cleanup", a.ActionName)
	assert.Len(t, a.Factors, 6)
}

func TestAssessFreshTrackedSourceIsNotSafe(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "prod.app.py.critical.bak")
	writeAged(t, path, "import os;\nclass App:\n    password = (1)\n", 2*time.Hour)

	git := gitx.NewFake()
	git.Tracked = map[string]bool{"prod.app.py.critical.bak": true}
	git.Modified = map[string]bool{"prod.app.py.critical.bak": true}
	git.Commits = map[string]int{"prod.app.py.critical.bak": 8}
	grep := func(root, needle string) (int, error) { return 6, nil }

	a := newEngine(t, git, grep).Assess(root, path, nil, 0.5)

	assert.Equal(t, SourceCode, a.Type)
	assert.Equal(t, Risky, a.Level)
	assert.Equal(t, "manual_review_required", a.ActionName)
	assert.NotEmpty(t, a.Concerns)
	assert.NotEmpty(t, a.Recommendations)
}

func TestWeightedMeanEmptyWeights(t *testing.T) {
	assert.Equal(t, 0.5, weightedMean([]Factor{{Score: 1.0, Weight: 0}}))
}

func TestBackupStem(t *testing.T) {
	assert.Equal(t, "config", backupStem("config.backup.20240110"))
	assert.Equal(t, "config", backupStem("config.bak"))
	assert.Equal(t, "app.py", backupStem("app.py.backup"))
}
