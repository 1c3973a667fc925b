package risk

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/lyndonlyu/sweepsafe/internal/verify"
)

var sourceExtensions = []string{".py", ".js", ".ts", ".java", ".cpp", ".c", ".h", ".rb", ".go", ".rs"}
var configPatterns = []string{"config", "settings", "env", ".conf", ".ini", ".yaml", ".yml", ".json", ".toml"}
var dataExtensions = map[string]bool{".db": true, ".sql": true, ".csv": true, ".json": true, ".xml": true, ".log": true}
var binaryExtensions = map[string]bool{".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true, ".img": true, ".iso": true}
var docExtensions = map[string]bool{".md": true, ".txt": true, ".rst": true, ".pdf": true, ".doc": true, ".docx": true}
var tempPatterns = []string{"tmp", "temp", "cache", ".swp", ".tmp"}

// classify buckets a backup by its original file kind. Checks run in
// priority order; the first match wins.
func classify(path string) BackupType {
	name := strings.ToLower(filepath.Base(path))
	suffix := strings.ToLower(filepath.Ext(name))

	for _, ext := range sourceExtensions {
		if strings.Contains(name, ext) {
			return SourceCode
		}
	}
	for _, pat := range configPatterns {
		if strings.Contains(name, pat) {
			return Configuration
		}
	}
	if dataExtensions[suffix] || strings.Contains(name, "database") || strings.Contains(name, "data") {
		return DataFile
	}
	if binaryExtensions[suffix] {
		return Binary
	}
	if docExtensions[suffix] || strings.Contains(name, "readme") || strings.Contains(name, "doc") {
		return Documentation
	}
	for _, pat := range tempPatterns {
		if strings.Contains(name, pat) {
			return Temporary
		}
	}
	return Unknown
}

var typeImportance = map[BackupType]float64{
	SourceCode:    0.9,
	Configuration: 0.8,
	DataFile:      0.85,
	Binary:        0.6,
	Documentation: 0.4,
	Temporary:     0.1,
	Unknown:       0.5,
}

func (e *Engine) fileTypeFactor(path string, btype BackupType) Factor {
	score := typeImportance[btype]
	evidence := []string{"file type classified as: " + btype.String()}

	name := strings.ToLower(filepath.Base(path))
	if strings.Contains(name, "critical") || strings.Contains(name, "important") {
		score += 0.1
		evidence = append(evidence, "contains 'critical' or 'important' in name")
	}
	if strings.Contains(name, "test") || strings.Contains(name, "spec") {
		score += 0.05
		evidence = append(evidence, "test-related file")
	}
	if strings.Contains(name, "production") || strings.Contains(name, "prod") {
		score += 0.15
		evidence = append(evidence, "production-related file")
	}

	return Factor{
		Name:        "file_type_importance",
		Weight:      e.cfg.FileTypeWeight,
		Score:       clamp01(score),
		Description: fmt.Sprintf("importance based on file type (%s)", btype),
		Evidence:    evidence,
	}
}

func (e *Engine) recencyFactor(path string) Factor {
	info, err := e.scanner.Stat(path)
	if err != nil {
		return Factor{
			Name:        "recency_risk",
			Weight:      e.cfg.RecencyWeight,
			Score:       0.5,
			Description: "could not determine backup age",
			Evidence:    []string{fmt.Sprintf("error accessing file stats: %v", err)},
		}
	}

	age := e.now().Sub(info.MTime)
	ageDays := age.Hours() / 24
	evidence := []string{fmt.Sprintf("backup age: %.1f days", ageDays)}

	var score float64
	switch {
	case age < time.Duration(e.cfg.FreshHours)*time.Hour:
		score = 1.0
		evidence = append(evidence, "very fresh backup (< 24 hours)")
	case ageDays < float64(e.cfg.RecentDays):
		score = 0.8
		evidence = append(evidence, "recent backup (< 7 days)")
	case ageDays < float64(e.cfg.StableDays):
		score = 0.5
		evidence = append(evidence, "stable backup (< 30 days)")
	case ageDays < float64(e.cfg.StaleDays):
		score = 0.2
		evidence = append(evidence, "aging backup (< 90 days)")
	default:
		score = 0.1
		evidence = append(evidence, "stale backup (> 90 days)")
	}

	return Factor{
		Name:        "recency_risk",
		Weight:      e.cfg.RecencyWeight,
		Score:       score,
		Description: fmt.Sprintf("risk based on backup age (%.1f days)", ageDays),
		Evidence:    evidence,
	}
}

func (e *Engine) referenceDensityFactor(root, path string, refs *verify.ReferenceSet) Factor {
	name := filepath.Base(path)
	stem := fileStem(name)

	count := 0
	var evidence []string

	if refs != nil {
		for _, c := range refs.Commits {
			matched := false
			for _, f := range c.Files {
				if strings.Contains(f, name) {
					count++
					evidence = append(evidence, "referenced in commit: "+c.Hash)
					matched = true
					break
				}
			}
			if !matched && (strings.Contains(c.Message, name) || strings.Contains(c.Message, stem)) {
				count++
				evidence = append(evidence, "mentioned in commit message: "+c.Hash)
			}
		}
		for _, b := range refs.Branches {
			if strings.Contains(b, name) || strings.Contains(b, stem) {
				count++
				evidence = append(evidence, "referenced in branch: "+b)
			}
		}
	}

	if e.git.IsRepository() {
		if hits, err := e.grep(root, name); err != nil {
			evidence = append(evidence, fmt.Sprintf("could not search for file references: %v", err))
		} else if hits > 0 {
			count += hits
			evidence = append(evidence, fmt.Sprintf("found %d direct file references", hits))
		}
	}

	var score float64
	switch {
	case count == 0:
		score = 0.1
		evidence = append(evidence, "no references found")
	case count <= 2:
		score = 0.3
		evidence = append(evidence, fmt.Sprintf("low reference count: %d", count))
	case count <= 5:
		score = 0.6
		evidence = append(evidence, fmt.Sprintf("moderate reference count: %d", count))
	default:
		score = 0.9
		evidence = append(evidence, fmt.Sprintf("high reference count: %d", count))
	}

	return Factor{
		Name:        "reference_density",
		Weight:      e.cfg.ReferenceDensityWeight,
		Score:       score,
		Description: fmt.Sprintf("risk based on reference density (%d references)", count),
		Evidence:    evidence,
	}
}

func (e *Engine) uniquenessFactor(root, path string) Factor {
	stem := backupStem(filepath.Base(path))
	parent := filepath.Dir(path)

	var similar []string
	err := filepath.WalkDir(parent, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || p == path {
			return nil
		}
		name := d.Name()
		if strings.Contains(name, stem) || backupStem(name) == stem {
			similar = append(similar, p)
		}
		return nil
	})
	if err != nil {
		return Factor{
			Name:        "uniqueness_risk",
			Weight:      e.cfg.UniquenessWeight,
			Score:       0.5,
			Description: "could not assess uniqueness",
			Evidence:    []string{fmt.Sprintf("error during uniqueness analysis: %v", err)},
		}
	}

	evidence := []string{fmt.Sprintf("found %d similar files", len(similar))}

	duplicates := 0
	if selfHash, err := e.scanner.ContentHash(path); err == nil {
		for _, s := range similar {
			if h, err := e.scanner.ContentHash(s); err == nil && h == selfHash {
				duplicates++
				evidence = append(evidence, "exact duplicate: "+filepath.Base(s))
			}
		}
	} else {
		evidence = append(evidence, fmt.Sprintf("could not calculate content hashes: %v", err))
	}

	var score float64
	switch {
	case duplicates > 0:
		score = 0.2
		evidence = append(evidence, fmt.Sprintf("has %d exact duplicates", duplicates))
	case len(similar) > 2:
		score = 0.4
		evidence = append(evidence, "multiple similar files exist")
	case len(similar) > 0:
		score = 0.6
		evidence = append(evidence, "some similar files exist")
	default:
		score = 0.9
		evidence = append(evidence, "appears to be unique")
	}

	return Factor{
		Name:        "uniqueness_risk",
		Weight:      e.cfg.UniquenessWeight,
		Score:       score,
		Description: fmt.Sprintf("risk based on uniqueness (%d duplicates, %d similar)", duplicates, len(similar)),
		Evidence:    evidence,
	}
}

func (e *Engine) gitContextFactor(root, path string) Factor {
	score := 0.5

	if !e.git.IsRepository() {
		return Factor{
			Name:        "git_context_risk",
			Weight:      0.1,
			Score:       score,
			Description: "no git context available",
			Evidence:    []string{"not in a git repository"},
		}
	}

	var evidence []string
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	tracked, modified, commits, err := e.git.TrackedWithHistory(rel)
	if err != nil {
		evidence = append(evidence, fmt.Sprintf("could not assess git context: %v", err))
	} else {
		if tracked {
			score += 0.3
			evidence = append(evidence, "file is tracked by git")
			if modified {
				score += 0.2
				evidence = append(evidence, "file has git modifications")
			}
		} else {
			score -= 0.1
			evidence = append(evidence, "file is not tracked by git")
		}
		if commits > 0 {
			bump := float64(commits) * 0.05
			if bump > 0.3 {
				bump = 0.3
			}
			score += bump
			evidence = append(evidence, fmt.Sprintf("has %d recent commits", commits))
		} else {
			evidence = append(evidence, "no git history found")
		}
	}

	return Factor{
		Name:        "git_context_risk",
		Weight:      e.cfg.GitContextWeight,
		Score:       clamp01(score),
		Description: "risk based on git repository context",
		Evidence:    evidence,
	}
}

var importantContentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)password|secret|key|token`),
	regexp.MustCompile(`(?i)config|setting|environment`),
	regexp.MustCompile(`(?i)database|connection|url`),
	regexp.MustCompile(`(?i)api|endpoint|service`),
	regexp.MustCompile(`(?i)class|function|def|import`),
}

var codeIndicators = []string{"{", "}", "(", ")", ";", "=", "import", "function", "class"}

func (e *Engine) contentFactor(path string) Factor {
	score := 0.5

	info, err := e.scanner.Stat(path)
	if err != nil {
		return Factor{
			Name:        "content_risk",
			Weight:      0.1,
			Score:       0.0,
			Description: "cannot analyze content",
			Evidence:    []string{"file does not exist or is not a regular file"},
		}
	}

	evidence := []string{fmt.Sprintf("file size: %d bytes", info.Size)}

	if info.Size == 0 {
		return Factor{
			Name:        "content_risk",
			Weight:      0.1,
			Score:       0.1,
			Description: "empty backup file",
			Evidence:    append(evidence, "empty file"),
		}
	}

	if info.Size > 10*1024*1024 {
		score += 0.2
		evidence = append(evidence, "large file (>10MB)")
	}

	if sample, ok := readTextSample(path); ok {
		for _, pat := range importantContentPatterns {
			if pat.MatchString(sample) {
				score += 0.1
				first := strings.SplitN(pat.String(), "|", 2)[0]
				first = strings.TrimPrefix(first, "(?i)")
				evidence = append(evidence, fmt.Sprintf("contains %s-related content", first))
			}
		}
		hits := 0
		for _, ind := range codeIndicators {
			if strings.Contains(sample, ind) {
				hits++
			}
		}
		if hits > 3 {
			score += 0.15
			evidence = append(evidence, "contains code-like patterns")
		}
	}

	return Factor{
		Name:        "content_risk",
		Weight:      e.cfg.ContentWeight,
		Score:       clamp01(score),
		Description: "risk based on file content analysis",
		Evidence:    evidence,
	}
}

// readTextSample returns the first 1KB of path if it looks like text.
func readTextSample(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	buf := make([]byte, 1024)
	n, err := f.Read(buf)
	if n == 0 {
		return "", false
	}
	buf = buf[:n]
	for _, b := range buf {
		if b == 0 {
			return "", false
		}
	}
	return string(buf), true
}

// fileStem is the filename without its last extension.
func fileStem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// backupStem strips the backup decoration: "config.backup.20240110" and
// "config.bak" both reduce to "config".
func backupStem(name string) string {
	stem := fileStem(name)
	if i := strings.Index(stem, ".backup"); i >= 0 {
		stem = stem[:i]
	}
	return stem
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
