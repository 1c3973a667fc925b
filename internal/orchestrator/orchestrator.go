// Package orchestrator sequences the cleanup safety pipeline: verification,
// recovery point creation, risk assessment, policy enforcement, decision
// making, and execution with automatic rollback.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lyndonlyu/sweepsafe/internal/audit"
	"github.com/lyndonlyu/sweepsafe/internal/emergency"
	"github.com/lyndonlyu/sweepsafe/internal/policy"
	"github.com/lyndonlyu/sweepsafe/internal/recovery"
	"github.com/lyndonlyu/sweepsafe/internal/risk"
	"github.com/lyndonlyu/sweepsafe/internal/scan"
	"github.com/lyndonlyu/sweepsafe/internal/verify"
)

// Prompter asks the user for a per-file cleanup decision. Implementations
// must return one of approve, reject, skip, investigate; any error means
// reject.
type Prompter interface {
	Decide(a risk.Assessment) (string, error)
}

// Options controls one orchestration run.
type Options struct {
	Root        string
	DryRun      bool
	Interactive bool
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	verifier    *verify.Engine
	riskEngine  *risk.Engine
	policies    *policy.Engine
	coordinator *recovery.Coordinator
	scanner     scan.Scanner
	stop        *emergency.Stop
	auditor     *audit.Logger
	prompter    Prompter
	now         func() time.Time
	log         *zap.Logger
}

func New(
	verifier *verify.Engine,
	riskEngine *risk.Engine,
	policies *policy.Engine,
	coordinator *recovery.Coordinator,
	scanner scan.Scanner,
	stop *emergency.Stop,
	auditor *audit.Logger,
	prompter Prompter,
	log *zap.Logger,
) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		verifier:    verifier,
		riskEngine:  riskEngine,
		policies:    policies,
		coordinator: coordinator,
		scanner:     scanner,
		stop:        stop,
		auditor:     auditor,
		prompter:    prompter,
		now:         time.Now,
		log:         log,
	}
}

// SetClock overrides the orchestrator clock; tests only.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// Run executes the full pipeline. It never panics outward: any panic in a
// stage is converted into a system-error report. The emergency stop is
// watched for the whole run and wins over every other outcome.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (report *Report) {
	start := o.now()
	report = &Report{
		Timestamp: start,
		TargetDir: opts.Root,
		Summary:   Summary{DryRun: opts.DryRun},
	}

	defer func() {
		if r := recover(); r != nil {
			report.Outcome = SystemError
			report.Error = fmt.Sprintf("orchestration panicked: %v", r)
			o.log.Error("orchestration panicked", zap.Any("panic", r))
		}
		report.OutcomeName = report.Outcome.String()
		o.logAudit(report, opts, o.now().Sub(start))
	}()

	watchCtx, cancel := o.stop.Watch(ctx)
	defer cancel()

	if o.interrupted(watchCtx, report) {
		return report
	}

	// Phase 1: multi-factor verification.
	results := o.verifier.VerifyAll(watchCtx, opts.Root)
	report.Verification = make(map[string]verify.Result, len(results))
	for _, r := range results {
		report.Verification[r.FactorName] = r
		report.Summary.TotalFactors++
		if r.Passed {
			report.Summary.PassedFactors++
		} else {
			report.Summary.FailedFactors++
		}
	}
	passed, confidence, criticalIssues := verify.Aggregate(results)
	o.log.Info("verification complete",
		zap.Bool("passed", passed),
		zap.Float64("confidence", confidence))
	if !passed {
		report.Outcome = VerificationFailed
		report.Error = fmt.Sprintf("verification failed: %v", criticalIssues)
		return report
	}

	if o.interrupted(watchCtx, report) {
		return report
	}

	// Phase 2: recovery point. Created even for dry runs so the analyzed
	// state can always be restored.
	point, err := o.coordinator.CreatePoint(
		opts.Root,
		"pre-cleanup snapshot - "+start.Format(time.RFC3339),
		recovery.FullSnapshot,
		true,
	)
	if err != nil {
		report.Outcome = SystemError
		report.Error = fmt.Sprintf("could not create recovery point: %v", err)
		return report
	}
	report.RecoveryPointID = point.ID

	// Phase 3: discovery and risk assessment.
	backups, err := o.scanner.FindByPatterns(opts.Root, scan.BackupPatterns)
	if err != nil {
		report.Outcome = SystemError
		report.Error = fmt.Sprintf("could not discover backups: %v", err)
		return report
	}
	o.log.Info("discovered backup candidates", zap.Int("count", len(backups)))

	refs := referenceSet(results)
	minConf := verify.MinConfidence(results)
	for _, path := range backups {
		a := o.riskEngine.Assess(opts.Root, path, refs, minConf)
		report.Assessments = append(report.Assessments, a)
		report.Summary.TotalBackups++
		switch a.Level {
		case risk.Safe:
			report.Summary.Safe++
		case risk.Cautious:
			report.Summary.Cautious++
		case risk.Risky:
			report.Summary.Risky++
		}
	}

	if o.interrupted(watchCtx, report) {
		return report
	}

	// Phase 4: policy enforcement.
	report.Policy = o.policies.Enforce(policy.Context{
		Root:          opts.Root,
		BackupFiles:   backups,
		RiskLevel:     overallRiskLevel(report.Assessments),
		OperationType: "cleanup",
	})
	if !report.Policy.Passed {
		if report.Policy.BlockedOperations["all"] {
			report.Outcome = EmergencyStop
		} else {
			report.Outcome = PolicyViolation
		}
		report.Error = "policy enforcement failed"
		return report
	}

	// Phase 5: per-file decisions.
	for _, a := range report.Assessments {
		d := o.decide(a, opts)
		report.Decisions = append(report.Decisions, d)
		switch d.Action {
		case "auto_cleanup", "would_auto_cleanup":
			report.Summary.AutoCleanup++
		case "user_approved", "would_user_approve":
			report.Summary.UserApproved++
		case "preserved":
			report.Summary.Preserved++
		case "manual_review":
			report.Summary.ManualReview++
		}
	}

	if o.interrupted(watchCtx, report) {
		return report
	}

	// Phase 6: execution. Dry runs never reach the filesystem.
	if !opts.DryRun {
		deleted, err := o.executeDecisions(opts.Root, report.Decisions, point.ID)
		report.Summary.Deleted = deleted
		if err != nil {
			report.Outcome = SystemError
			report.Error = fmt.Sprintf("cleanup execution failed: %v", err)
			return report
		}
	}

	report.Outcome = Success
	return report
}

// interrupted checks for cancellation between phases. An emergency stop
// latch takes precedence over a plain context cancellation.
func (o *Orchestrator) interrupted(ctx context.Context, report *Report) bool {
	if o.stop.Latched() {
		report.Outcome = EmergencyStop
		report.Error = "emergency stop activated"
		o.log.Warn("run halted by emergency stop", zap.String("reason", o.stop.Reason()))
		return true
	}
	if ctx.Err() != nil {
		report.Outcome = UserCancelled
		report.Error = "operation cancelled"
		return true
	}
	return false
}

func referenceSet(results map[verify.Factor]verify.Result) *verify.ReferenceSet {
	if r, ok := results[verify.ReferenceChain]; ok {
		return r.References
	}
	return nil
}

func overallRiskLevel(assessments []risk.Assessment) string {
	if len(assessments) == 0 {
		return "unknown"
	}
	level := "safe"
	for _, a := range assessments {
		switch a.Level {
		case risk.Risky:
			return "risky"
		case risk.Cautious:
			level = "cautious"
		}
	}
	return level
}

func (o *Orchestrator) decide(a risk.Assessment, opts Options) Decision {
	d := Decision{
		Path:        a.Path,
		SafetyLevel: a.LevelName,
		Importance:  a.Importance,
		Confidence:  a.Confidence,
	}

	switch a.Level {
	case risk.Safe:
		if opts.DryRun {
			d.Action = "would_auto_cleanup"
		} else {
			d.Action = "auto_cleanup"
		}
		d.Reason = "high confidence, safe for automatic cleanup"

	case risk.Cautious:
		if opts.Interactive && o.prompter != nil {
			choice, err := o.prompter.Decide(a)
			if err != nil {
				choice = "reject"
			}
			d.UserInput = choice
			if choice == "approve" {
				if opts.DryRun {
					d.Action = "would_user_approve"
				} else {
					d.Action = "user_approved"
				}
				d.Reason = "user approved cleanup"
			} else {
				d.Action = "preserved"
				d.Reason = "user chose to " + choice
			}
		} else {
			d.Action = "preserved"
			d.Reason = "cautious level requires user confirmation (non-interactive mode)"
		}

	default:
		d.Action = "manual_review"
		d.Reason = "high risk - requires manual review"
	}

	return d
}

// executeDecisions deletes approved files under operation tracking. A
// delete failure aborts the batch and triggers the coordinator's automatic
// rollback to the pre-cleanup recovery point.
func (o *Orchestrator) executeDecisions(root string, decisions []Decision, recoveryPointID string) (int, error) {
	var approved []string
	for _, d := range decisions {
		if d.Action == "auto_cleanup" || d.Action == "user_approved" {
			approved = append(approved, d.Path)
		}
	}

	op, err := o.coordinator.StartOperation("backup cleanup execution", recoveryPointID)
	if err != nil {
		return 0, err
	}

	total := 0
	err = o.coordinator.Execute(root, op.ID, approved, func() ([]string, error) {
		var deleted []string
		for _, path := range approved {
			if err := os.Remove(path); err != nil {
				if os.IsNotExist(err) {
					o.log.Warn("file already gone", zap.String("path", path))
					continue
				}
				return deleted, fmt.Errorf("delete %s: %w", filepath.Base(path), err)
			}
			deleted = append(deleted, path)
			o.log.Info("deleted backup", zap.String("path", path))
		}
		total = len(deleted)
		return deleted, nil
	})
	return total, err
}

func (o *Orchestrator) logAudit(report *Report, opts Options, elapsed time.Duration) {
	if o.auditor == nil {
		return
	}
	entry := audit.Entry{
		Operation:       "clean",
		Root:            opts.Root,
		RiskLevel:       overallRiskLevel(report.Assessments),
		Outcome:         report.Outcome.String(),
		Duration:        elapsed,
		FilesScanned:    report.Summary.TotalBackups,
		FilesDeleted:    report.Summary.Deleted,
		FilesPreserved:  report.Summary.Preserved + report.Summary.ManualReview,
		RecoveryPointID: report.RecoveryPointID,
		DryRun:          opts.DryRun,
		Error:           report.Error,
	}
	if err := o.auditor.Log(entry); err != nil {
		o.log.Warn("could not write audit record", zap.Error(err))
	}
}
