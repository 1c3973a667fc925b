package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lyndonlyu/sweepsafe/internal/scan"
)

func (e *Engine) checkGitState(root string) Result {
	res := Result{Factor: GitState, FactorName: GitState.String()}

	if !e.git.IsRepository() {
		res.Passed = true
		res.Confidence = 1.0
		res.Warnings = append(res.Warnings, "target is not a git repository")
		return res
	}

	ops, err := e.git.ActiveOperations()
	if err != nil {
		return Result{
			Factor:        GitState,
			FactorName:    GitState.String(),
			Confidence:    0,
			FailureReason: fmt.Sprintf("git state verification failed: %v", err),
			Critical:      true,
		}
	}
	status, err := e.git.Status()
	if err != nil {
		return Result{
			Factor:        GitState,
			FactorName:    GitState.String(),
			Confidence:    0,
			FailureReason: fmt.Sprintf("git state verification failed: %v", err),
			Critical:      true,
		}
	}

	var criticalIssues []string
	if len(ops) > 0 {
		criticalIssues = append(criticalIssues, "active git operations detected: "+strings.Join(ops, ", "))
	}
	if e.cfg.RequireCleanWorkingTree && !status.Clean() {
		if len(status.Staged) > 0 {
			criticalIssues = append(criticalIssues, "staged changes detected in working tree")
		}
		if len(status.Unstaged) > 0 {
			res.Warnings = append(res.Warnings, "unstaged changes detected - recommend committing first")
		}
		if len(status.Untracked) > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("untracked files detected: %d files", len(status.Untracked)))
		}
	}

	confidence := 1.0
	switch {
	case len(ops) > 0:
		confidence = 0
	case !status.Clean():
		confidence -= 0.3
		if len(status.Staged) > 0 {
			confidence -= 0.4
		}
	}

	res.Passed = len(criticalIssues) == 0
	res.Critical = !res.Passed
	res.Confidence = clamp01(confidence)
	res.Details = map[string]any{
		"active_operations": ops,
		"staged":            len(status.Staged),
		"unstaged":          len(status.Unstaged),
		"untracked":         len(status.Untracked),
		"critical_issues":   criticalIssues,
	}
	if len(criticalIssues) > 0 {
		res.FailureReason = strings.Join(criticalIssues, "; ")
	}
	return res
}

func (e *Engine) checkBackupAge(root string) Result {
	res := Result{Factor: BackupAge, FactorName: BackupAge.String()}

	files, err := e.scanner.FindByPatterns(root, scan.BackupPatterns)
	if err != nil {
		res.FailureReason = fmt.Sprintf("backup age verification failed: %v", err)
		return res
	}

	now := e.now()
	minAge := time.Duration(e.cfg.MinimumAgeHours) * time.Hour
	stable := time.Duration(e.cfg.StableThresholdDays) * 24 * time.Hour
	stale := time.Duration(e.cfg.StaleThresholdDays) * 24 * time.Hour

	var fresh, stableN, aging, staleN int
	var issues []string
	for _, f := range files {
		info, err := e.scanner.Stat(f)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("could not analyze backup %s: %v", filepath.Base(f), err))
			continue
		}
		age := now.Sub(info.MTime)
		switch {
		case age < minAge:
			fresh++
			issues = append(issues, fmt.Sprintf("backup too fresh for cleanup: %s (%.1fh old)", filepath.Base(f), age.Hours()))
		case age < stable:
			stableN++
			res.Warnings = append(res.Warnings, "stable backup requires confirmation: "+filepath.Base(f))
		case age < stale:
			aging++
		default:
			staleN++
		}
	}

	confidence := 1.0
	if fresh > 0 {
		confidence -= 0.5
	}
	if stableN > staleN {
		confidence -= 0.2
	}

	res.Passed = len(issues) == 0
	res.Critical = false // age violations are risky, not blocking
	res.Confidence = clamp01(confidence)
	res.Details = map[string]any{
		"total_backups":  len(files),
		"fresh_backups":  fresh,
		"stable_backups": stableN,
		"aging_backups":  aging,
		"stale_backups":  staleN,
	}
	if len(issues) > 0 {
		res.FailureReason = strings.Join(issues, "; ")
	}
	return res
}

// checkReferenceChain is informational: it never blocks, it only lowers
// confidence as more backup mentions turn up in history.
func (e *Engine) checkReferenceChain(root string) Result {
	res := Result{Factor: ReferenceChain, FactorName: ReferenceChain.String(), Passed: true}

	if !e.git.IsRepository() {
		res.Confidence = 1.0
		res.References = &ReferenceSet{}
		return res
	}

	since := e.now().AddDate(0, 0, -e.cfg.ReferenceLookbackDays)
	refs := &ReferenceSet{}

	msgRefs, err := e.git.Log(since, "backup", false)
	if err != nil {
		res.Confidence = 0.5
		res.FailureReason = fmt.Sprintf("reference chain analysis failed: %v", err)
		return res
	}
	refs.Commits = append(refs.Commits, msgRefs...)

	// Commits that touched backup-named files also count, even when the
	// message never mentions them.
	fileRefs, err := e.git.Log(since, "", true)
	if err == nil {
		for _, entry := range fileRefs {
			for _, f := range entry.Files {
				if isBackupName(f) {
					refs.Commits = append(refs.Commits, entry)
					break
				}
			}
		}
	}

	branches, err := e.git.Branches(true)
	if err == nil {
		for _, b := range branches {
			lower := strings.ToLower(b)
			if strings.Contains(lower, "backup") || strings.Contains(lower, "bak") || strings.Contains(lower, "save") {
				refs.Branches = append(refs.Branches, b)
			}
		}
	}

	reflog, err := e.git.Reflog(since, "backup")
	if err == nil {
		refs.Reflog = reflog
	}

	total := refs.Total()
	confidence := 1.0
	if total > 0 {
		confidence = 1.0 - float64(total)*0.1
		if confidence < 0.3 {
			confidence = 0.3
		}
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("found %d references to backup files in git history", total),
			"consider preserving referenced backups")
	}

	res.Confidence = confidence
	res.References = refs
	res.Details = map[string]any{"total_references": total}
	return res
}

// failureMarkerPatterns indicate an interrupted or crashed process.
var failureMarkerPatterns = []string{"*.crash", "core.*", "*.emergency"}

// criticalBackupPatterns name backups that must never be swept silently.
var criticalBackupPatterns = []string{
	"*.critical.backup.*",
	"*.emergency.backup.*",
	"*.production.backup.*",
	"*.db.backup.*",
	"*.config.backup.*",
}

// systemBackupDirs are well-known backup locations relative to the root.
var systemBackupDirs = []string{"var/backups", "backup", "system_backup", "db_backup"}

func (e *Engine) checkEmergencyPatterns(root string) Result {
	res := Result{Factor: EmergencyPatterns, FactorName: EmergencyPatterns.String()}

	var criticalIssues []string
	var failures, criticals, systems []string

	if _, err := os.Stat(filepath.Join(root, ".git", "index.lock")); err == nil {
		failures = append(failures, filepath.Join(root, ".git", "index.lock"))
		criticalIssues = append(criticalIssues, "recent failure indicators found: .git/index.lock")
	}
	for _, pat := range failureMarkerPatterns {
		matches, err := e.scanner.FindByPatterns(root, []string{pat})
		if err != nil {
			res.Passed = true
			res.Confidence = 0.5
			res.FailureReason = fmt.Sprintf("emergency pattern detection failed: %v", err)
			return res
		}
		if len(matches) > 0 {
			failures = append(failures, matches...)
			criticalIssues = append(criticalIssues, "recent failure indicators found: "+pat)
		}
	}

	for _, pat := range criticalBackupPatterns {
		matches, _ := e.scanner.FindByPatterns(root, []string{pat})
		if len(matches) > 0 {
			criticals = append(criticals, matches...)
			res.Warnings = append(res.Warnings, fmt.Sprintf("critical backups found: %d files matching %s", len(matches), pat))
		}
	}

	for _, dir := range systemBackupDirs {
		if info, err := os.Stat(filepath.Join(root, dir)); err == nil && info.IsDir() {
			systems = append(systems, dir)
			res.Warnings = append(res.Warnings, "system backup directory detected: "+dir)
		}
	}

	procs, err := e.procs(root)
	if err != nil {
		procs = nil // process listing is best-effort
	}
	if len(procs) > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("active processes detected with open files: %d", len(procs)))
	}

	confidence := 1.0
	switch {
	case len(criticalIssues) > 0:
		confidence = 0
	case len(criticals) > 0:
		confidence -= 0.3
	case len(systems) > 0:
		confidence -= 0.2
	case len(procs) > 0:
		confidence -= 0.1
	}

	res.Passed = len(criticalIssues) == 0
	res.Critical = !res.Passed
	res.Confidence = clamp01(confidence)
	res.Details = map[string]any{
		"recent_failures":  failures,
		"critical_backups": criticals,
		"system_backups":   systems,
		"active_processes": len(procs),
	}
	if len(criticalIssues) > 0 {
		res.FailureReason = strings.Join(criticalIssues, "; ")
	}
	return res
}

func isBackupName(name string) bool {
	for _, marker := range []string{".backup", ".bak", "~", ".orig"} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
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
