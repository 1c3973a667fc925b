// Package verify implements the multi-factor verification engine that gates
// backup cleanup. Each factor is an independent check; a factor failure is
// data, never a panic that escapes the engine.
package verify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lyndonlyu/sweepsafe/internal/config"
	"github.com/lyndonlyu/sweepsafe/internal/gitx"
	"github.com/lyndonlyu/sweepsafe/internal/scan"
)

// Factor identifies a verification factor.
type Factor int

const (
	GitState Factor = iota
	BackupAge
	ReferenceChain
	EmergencyPatterns
)

func (f Factor) String() string {
	switch f {
	case GitState:
		return "git_state"
	case BackupAge:
		return "backup_age"
	case ReferenceChain:
		return "reference_chain"
	case EmergencyPatterns:
		return "emergency_patterns"
	default:
		return "unknown"
	}
}

// Result is the outcome of one factor check. Immutable once returned.
type Result struct {
	Factor        Factor         `json:"factor"`
	FactorName    string         `json:"factor_name"`
	Passed        bool           `json:"passed"`
	Confidence    float64        `json:"confidence"`
	Details       map[string]any `json:"details,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	Critical      bool           `json:"is_critical"`

	// References is populated only by the reference-chain factor; the risk
	// engine consumes it for per-file reference counting.
	References *ReferenceSet `json:"references,omitempty"`
}

// ReferenceSet holds backup mentions found in repository history.
type ReferenceSet struct {
	Commits  []gitx.LogEntry `json:"commits"`
	Branches []string        `json:"branches"`
	Reflog   []string        `json:"reflog"`
}

func (r *ReferenceSet) Total() int {
	if r == nil {
		return 0
	}
	return len(r.Commits) + len(r.Branches) + len(r.Reflog)
}

// ProcessLister reports processes holding open files under root. The
// production implementation is ListOpenHandles in procs.go; tests inject a
// stub.
type ProcessLister func(root string) ([]string, error)

// Engine runs the factor checks.
type Engine struct {
	cfg     config.VerificationConfig
	git     gitx.Inspector
	scanner scan.Scanner
	procs   ProcessLister
	now     func() time.Time
	log     *zap.Logger
}

func NewEngine(cfg config.VerificationConfig, git gitx.Inspector, scanner scan.Scanner, procs ProcessLister, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if procs == nil {
		procs = func(string) ([]string, error) { return nil, nil }
	}
	return &Engine{
		cfg:     cfg,
		git:     git,
		scanner: scanner,
		procs:   procs,
		now:     time.Now,
		log:     log,
	}
}

// SetClock overrides the engine clock; tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// VerifyAll fans out every factor check concurrently and joins the results.
// A panic inside a check becomes a synthetic critical failure for that
// factor instead of aborting the batch.
func (e *Engine) VerifyAll(ctx context.Context, root string) map[Factor]Result {
	checks := map[Factor]func(string) Result{
		GitState:          e.checkGitState,
		BackupAge:         e.checkBackupAge,
		ReferenceChain:    e.checkReferenceChain,
		EmergencyPatterns: e.checkEmergencyPatterns,
	}

	var mu sync.Mutex
	results := make(map[Factor]Result, len(checks))

	g, _ := errgroup.WithContext(ctx)
	for factor, check := range checks {
		g.Go(func() error {
			res := runGuarded(factor, check, root)
			mu.Lock()
			results[res.Factor] = res
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	for _, res := range results {
		e.log.Debug("verification factor done",
			zap.String("factor", res.FactorName),
			zap.Bool("passed", res.Passed),
			zap.Float64("confidence", res.Confidence))
	}
	return results
}

func runGuarded(factor Factor, check func(string) Result, root string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Factor:        factor,
				FactorName:    factor.String(),
				Passed:        false,
				Confidence:    0,
				FailureReason: fmt.Sprintf("verification check panicked: %v", r),
				Critical:      true,
			}
		}
	}()
	return check(root)
}

// Aggregate reduces factor results to the overall verdict. Overall pass
// requires every critical factor to pass; overall confidence is the minimum
// factor confidence, so one weak factor caps the whole run.
func Aggregate(results map[Factor]Result) (passed bool, confidence float64, criticalIssues []string) {
	if len(results) == 0 {
		return false, 0, []string{"no verification results available"}
	}
	passed = true
	confidence = 1.0
	for _, r := range results {
		if !r.Passed && r.Critical {
			passed = false
			criticalIssues = append(criticalIssues, fmt.Sprintf("%s: %s", r.FactorName, r.FailureReason))
		}
		if r.Confidence < confidence {
			confidence = r.Confidence
		}
	}
	return passed, confidence, criticalIssues
}

// MinConfidence returns the lowest confidence among results, 1.0 if empty.
func MinConfidence(results map[Factor]Result) float64 {
	min := 1.0
	for _, r := range results {
		if r.Confidence < min {
			min = r.Confidence
		}
	}
	return min
}
