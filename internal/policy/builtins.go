package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func (e *Engine) registerBuiltins() {
	e.register(&Policy{
		ID:          "no_cleanup_during_git_operations",
		Category:    GitOperations,
		Name:        "No Cleanup During Git Operations",
		Description: "Prevent backup cleanup during active git operations",
		Severity:    Critical,
		Check:       e.checkGitOperations,
		Enabled:     true,
	})
	e.register(&Policy{
		ID:          "minimum_backup_age",
		Category:    BackupAge,
		Name:        "Minimum Backup Age",
		Description: "Ensure backups meet minimum age before cleanup",
		Severity:    Warning,
		Check:       e.checkBackupAge,
		Enabled:     true,
	})
	e.register(&Policy{
		ID:          "preserve_referenced_backups",
		Category:    ReferencePreservation,
		Name:        "Preserve Referenced Backups",
		Description: "Preserve backups that are referenced in recent commits",
		Severity:    Warning,
		Check:       e.checkReferencePreservation,
		Enabled:     true,
	})
	e.register(&Policy{
		ID:          "emergency_pattern_detection",
		Category:    EmergencyPatterns,
		Name:        "Emergency Pattern Detection",
		Description: "Detect emergency patterns that should prevent cleanup",
		Severity:    Critical,
		Check:       e.checkEmergencyPatterns,
		Enabled:     true,
	})
	e.register(&Policy{
		ID:          "user_confirmation_required",
		Category:    UserConfirmation,
		Name:        "User Confirmation Required",
		Description: "Require user confirmation for risky operations",
		Severity:    Warning,
		Check:       e.checkUserConfirmation,
		Enabled:     true,
	})
	e.register(&Policy{
		ID:          "rollback_safety_check",
		Category:    RollbackSafety,
		Name:        "Rollback Safety Check",
		Description: "Ensure rollback mechanisms are available",
		Severity:    Warning,
		Check:       e.checkRollbackSafety,
		Enabled:     true,
	})
}

func (e *Engine) violation(policyID string, cat Category, sev Severity, msg string) Violation {
	return Violation{
		PolicyID:     policyID,
		Category:     cat,
		CategoryName: cat.String(),
		Severity:     sev,
		SeverityName: sev.String(),
		Message:      msg,
		DetectedAt:   e.now(),
	}
}

func (e *Engine) checkGitOperations(ctx Context) ([]Violation, error) {
	if !e.git.IsRepository() {
		return nil, nil
	}

	var violations []Violation

	ops, err := e.git.ActiveOperations()
	if err != nil {
		return nil, fmt.Errorf("check active operations: %w", err)
	}
	if len(ops) > 0 {
		v := e.violation("no_cleanup_during_git_operations", GitOperations, Critical,
			"active git operations detected: "+strings.Join(ops, ", "))
		v.Details = map[string]any{"active_operations": ops}
		v.Remediation = "complete or abort git operations before cleanup"
		violations = append(violations, v)
	}

	if e.cfg.RequireCleanTreePolicy {
		status, err := e.git.Status()
		if err != nil {
			return violations, fmt.Errorf("check working tree: %w", err)
		}
		if !status.Clean() {
			v := e.violation("no_cleanup_during_git_operations", GitOperations, Warning,
				"working tree has uncommitted changes")
			v.Details = map[string]any{
				"staged":    len(status.Staged),
				"unstaged":  len(status.Unstaged),
				"untracked": len(status.Untracked),
			}
			v.Remediation = "commit or stash changes before cleanup"
			violations = append(violations, v)
		}
	}

	return violations, nil
}

// checkBackupAge escalates per file: under the critical age the violation
// is blocking, under the minimum age it is a warning.
func (e *Engine) checkBackupAge(ctx Context) ([]Violation, error) {
	var violations []Violation

	criticalAge := time.Duration(e.cfg.CriticalAgeHours) * time.Hour
	minimumAge := time.Duration(e.cfg.MinimumAgeHours) * time.Hour
	now := e.now()

	for _, f := range ctx.BackupFiles {
		info, err := e.scanner.Stat(f)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			violations = append(violations, e.violation("minimum_backup_age", BackupAge, Warning,
				fmt.Sprintf("could not check age of backup %s: %v", f, err)))
			continue
		}

		age := now.Sub(info.MTime)
		name := filepath.Base(f)
		switch {
		case age < criticalAge:
			v := e.violation("minimum_backup_age", BackupAge, Critical,
				fmt.Sprintf("backup too recent for cleanup: %s (%.1fh old)", name, age.Hours()))
			v.Details = map[string]any{
				"backup_file":      f,
				"age_hours":        age.Hours(),
				"minimum_required": e.cfg.CriticalAgeHours,
			}
			v.Remediation = fmt.Sprintf("wait at least %.1f hours before cleanup", criticalAge.Hours()-age.Hours())
			violations = append(violations, v)
		case age < minimumAge:
			v := e.violation("minimum_backup_age", BackupAge, Warning,
				fmt.Sprintf("backup below minimum age: %s (%.1fh old)", name, age.Hours()))
			v.Details = map[string]any{
				"backup_file":         f,
				"age_hours":           age.Hours(),
				"minimum_recommended": e.cfg.MinimumAgeHours,
			}
			v.Remediation = "consider waiting longer or confirm cleanup intent"
			violations = append(violations, v)
		}
	}

	return violations, nil
}

func (e *Engine) checkReferencePreservation(ctx Context) ([]Violation, error) {
	if !e.git.IsRepository() {
		return nil, nil
	}

	var violations []Violation
	since := e.now().AddDate(0, 0, -e.cfg.ReferenceLookbackDays)

	commits, err := e.git.Log(since, "", false)
	if err != nil {
		return nil, fmt.Errorf("check commit references: %w", err)
	}
	var messages strings.Builder
	for _, c := range commits {
		messages.WriteString(strings.ToLower(c.Message))
		messages.WriteByte('\n')
	}
	recent := messages.String()

	for _, f := range ctx.BackupFiles {
		name := strings.ToLower(filepath.Base(f))
		stem := strings.ToLower(strings.TrimSuffix(filepath.Base(f), filepath.Ext(f)))
		if strings.Contains(recent, name) || strings.Contains(recent, stem) {
			v := e.violation("preserve_referenced_backups", ReferencePreservation, Warning,
				"backup referenced in recent commits: "+filepath.Base(f))
			v.Details = map[string]any{
				"backup_file":    f,
				"reference_type": "commit_message",
				"lookback_days":  e.cfg.ReferenceLookbackDays,
			}
			v.Remediation = "verify references before cleanup or preserve backup"
			violations = append(violations, v)
		}
	}

	branches, err := e.git.Branches(true)
	if err != nil {
		return violations, fmt.Errorf("check branch references: %w", err)
	}
	branchBlob := strings.ToLower(strings.Join(branches, "\n"))
	for _, f := range ctx.BackupFiles {
		name := strings.ToLower(filepath.Base(f))
		if strings.Contains(branchBlob, name) {
			v := e.violation("preserve_referenced_backups", ReferencePreservation, Warning,
				"backup name appears in branch names: "+filepath.Base(f))
			v.Details = map[string]any{
				"backup_file":    f,
				"reference_type": "branch_name",
			}
			v.Remediation = "verify branch references before cleanup"
			violations = append(violations, v)
		}
	}

	return violations, nil
}

var failureIndicatorPatterns = []string{"*.crash", "core.*", "*.emergency"}

var criticalBackupPatterns = []string{
	"*.critical.backup.*",
	"*.emergency.backup.*",
	"*.production.backup.*",
}

func (e *Engine) checkEmergencyPatterns(ctx Context) ([]Violation, error) {
	var violations []Violation

	if e.stop != nil && e.stop.Active() {
		v := e.violation("emergency_pattern_detection", EmergencyPatterns, Critical,
			"emergency stop file detected")
		v.Details = map[string]any{"emergency_file": e.stop.Path()}
		v.Remediation = "remove emergency stop file or investigate emergency condition"
		violations = append(violations, v)
	}

	if _, err := os.Stat(filepath.Join(ctx.Root, ".git", "index.lock")); err == nil {
		v := e.violation("emergency_pattern_detection", EmergencyPatterns, Critical,
			"failure indicators found: .git/index.lock")
		v.Remediation = "investigate failure indicators before cleanup"
		violations = append(violations, v)
	}
	for _, pattern := range failureIndicatorPatterns {
		matches, err := e.scanner.FindByPatterns(ctx.Root, []string{pattern})
		if err != nil {
			return violations, fmt.Errorf("scan failure indicators: %w", err)
		}
		if len(matches) > 0 {
			v := e.violation("emergency_pattern_detection", EmergencyPatterns, Critical,
				"failure indicators found: "+pattern)
			v.Details = map[string]any{"pattern": pattern, "matches": matches}
			v.Remediation = "investigate failure indicators before cleanup"
			violations = append(violations, v)
		}
	}

	for _, pattern := range criticalBackupPatterns {
		matches, err := e.scanner.FindByPatterns(ctx.Root, []string{pattern})
		if err != nil {
			return violations, fmt.Errorf("scan critical patterns: %w", err)
		}
		if len(matches) > 0 {
			v := e.violation("emergency_pattern_detection", EmergencyPatterns, Warning,
				"critical backup pattern found: "+pattern)
			v.Details = map[string]any{"pattern": pattern, "matches": matches}
			v.Remediation = "exercise extra caution with critical backups"
			violations = append(violations, v)
		}
	}

	return violations, nil
}

// checkUserConfirmation flags any operation that is not provably safe,
// including those with unknown risk.
func (e *Engine) checkUserConfirmation(ctx Context) ([]Violation, error) {
	level := ctx.RiskLevel
	if level == "" {
		level = "unknown"
	}
	switch level {
	case "risky", "cautious", "unknown":
		v := e.violation("user_confirmation_required", UserConfirmation, Warning,
			fmt.Sprintf("user confirmation required for %s operation", level))
		v.Details = map[string]any{
			"risk_level":      level,
			"timeout_seconds": e.cfg.ConfirmTimeoutSeconds,
		}
		v.Remediation = "obtain explicit user confirmation before proceeding"
		return []Violation{v}, nil
	}
	return nil, nil
}

func (e *Engine) checkRollbackSafety(ctx Context) ([]Violation, error) {
	if !e.cfg.RequireRecoveryPoints {
		return nil, nil
	}
	if info, err := os.Stat(e.recoveryDir); err == nil && info.IsDir() {
		return nil, nil
	}
	v := e.violation("rollback_safety_check", RollbackSafety, Warning,
		"no recovery points directory found")
	v.Details = map[string]any{"expected_dir": e.recoveryDir}
	v.Remediation = "create recovery point before cleanup"
	return []Violation{v}, nil
}
