// Package policy enforces cleanup safety policies. Enforcement is fail
// closed: an active emergency stop blocks everything before any individual
// policy runs, and a policy whose check errors degrades to a warning rather
// than silently passing.
package policy

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lyndonlyu/sweepsafe/internal/config"
	"github.com/lyndonlyu/sweepsafe/internal/emergency"
	"github.com/lyndonlyu/sweepsafe/internal/gitx"
	"github.com/lyndonlyu/sweepsafe/internal/scan"
)

// Severity ranks how hard a violation blocks.
type Severity int

const (
	Critical Severity = iota // blocks all operations
	Warning                  // allows with confirmation
	Advisory                 // informational only
)

func (s Severity) String() string {
	switch s {
	case Critical:
		return "critical"
	case Warning:
		return "warning"
	default:
		return "advisory"
	}
}

// Category groups policies by concern.
type Category int

const (
	GitOperations Category = iota
	BackupAge
	ReferencePreservation
	EmergencyPatterns
	UserConfirmation
	RollbackSafety
)

func (c Category) String() string {
	switch c {
	case GitOperations:
		return "git_operations"
	case BackupAge:
		return "backup_age"
	case ReferencePreservation:
		return "reference_preservation"
	case EmergencyPatterns:
		return "emergency_patterns"
	case UserConfirmation:
		return "user_confirmation"
	case RollbackSafety:
		return "rollback_safety"
	default:
		return "unknown"
	}
}

// Violation is one detected policy breach.
type Violation struct {
	PolicyID     string         `json:"policy_id"`
	Category     Category       `json:"-"`
	CategoryName string         `json:"category"`
	Severity     Severity       `json:"-"`
	SeverityName string         `json:"severity"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details,omitempty"`
	Remediation  string         `json:"remediation,omitempty"`
	DetectedAt   time.Time      `json:"detected_at"`
}

// Context describes the operation under evaluation.
type Context struct {
	Root          string
	BackupFiles   []string
	RiskLevel     string
	OperationType string
}

// CheckFunc evaluates one policy against an operation context.
type CheckFunc func(ctx Context) ([]Violation, error)

// Policy is one registered safety policy.
type Policy struct {
	ID          string
	Category    Category
	Name        string
	Description string
	Severity    Severity
	Check       CheckFunc
	Enabled     bool
}

// EnforcementResult is the combined verdict across all policies.
type EnforcementResult struct {
	Passed            bool            `json:"passed"`
	Violations        []Violation     `json:"violations,omitempty"`
	Warnings          []string        `json:"warnings,omitempty"`
	BlockedOperations map[string]bool `json:"blocked_operations,omitempty"`
}

func (r *EnforcementResult) block(op string) {
	if r.BlockedOperations == nil {
		r.BlockedOperations = make(map[string]bool)
	}
	r.BlockedOperations[op] = true
	r.Passed = false
}

// Engine holds the registered policies and a violation history.
type Engine struct {
	cfg         config.PolicyConfig
	git         gitx.Inspector
	scanner     scan.Scanner
	stop        *emergency.Stop
	recoveryDir string
	now         func() time.Time
	log         *zap.Logger

	mu       sync.Mutex
	policies []*Policy
	history  []Violation
}

func NewEngine(cfg config.PolicyConfig, git gitx.Inspector, scanner scan.Scanner, stop *emergency.Stop, recoveryDir string, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		cfg:         cfg,
		git:         git,
		scanner:     scanner,
		stop:        stop,
		recoveryDir: recoveryDir,
		now:         time.Now,
		log:         log,
	}
	e.registerBuiltins()
	return e
}

// SetClock overrides the engine clock; tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func (e *Engine) register(p *Policy) {
	e.policies = append(e.policies, p)
}

// Enforce runs every enabled policy against ctx. The emergency stop latch
// is checked before anything else; when latched, enforcement short-circuits
// with everything blocked.
func (e *Engine) Enforce(ctx Context) EnforcementResult {
	result := EnforcementResult{Passed: true}

	if e.stop != nil && (e.stop.Latched() || e.stop.Active()) {
		v := Violation{
			PolicyID:     "emergency_stop",
			Category:     EmergencyPatterns,
			CategoryName: EmergencyPatterns.String(),
			Severity:     Critical,
			SeverityName: Critical.String(),
			Message:      "emergency stop is active - all operations blocked",
			DetectedAt:   e.now(),
		}
		e.record(v)
		result.Violations = append(result.Violations, v)
		result.block("all")
		e.log.Warn("policy enforcement blocked by emergency stop")
		return result
	}

	for _, p := range e.policies {
		if !p.Enabled {
			continue
		}

		violations, err := p.Check(ctx)
		if err != nil {
			v := Violation{
				PolicyID:     p.ID,
				Category:     p.Category,
				CategoryName: p.Category.String(),
				Severity:     Warning,
				SeverityName: Warning.String(),
				Message:      fmt.Sprintf("policy check failed: %v", err),
				DetectedAt:   e.now(),
			}
			e.record(v)
			result.Violations = append(result.Violations, v)
			result.Warnings = append(result.Warnings, "could not verify policy: "+p.Name)
			e.log.Warn("policy check failed", zap.String("policy", p.ID), zap.Error(err))
			continue
		}

		for _, v := range violations {
			e.record(v)
			result.Violations = append(result.Violations, v)
			switch v.Severity {
			case Critical:
				result.block(v.PolicyID)
			case Warning:
				result.Warnings = append(result.Warnings, v.Message)
			}
		}
	}

	e.log.Debug("policy enforcement complete",
		zap.Bool("passed", result.Passed),
		zap.Int("violations", len(result.Violations)))
	return result
}

func (e *Engine) record(v Violation) {
	e.mu.Lock()
	e.history = append(e.history, v)
	e.mu.Unlock()
}

// History returns a copy of the violation history.
func (e *Engine) History() []Violation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Violation, len(e.history))
	copy(out, e.history)
	return out
}

// ClearHistory drops the recorded violations.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	e.history = nil
	e.mu.Unlock()
}

// SetEnabled toggles a policy by id.
func (e *Engine) SetEnabled(policyID string, enabled bool) {
	for _, p := range e.policies {
		if p.ID == policyID {
			p.Enabled = enabled
			return
		}
	}
}

// Status summarizes the engine for reporting.
type Status struct {
	Timestamp        time.Time      `json:"timestamp"`
	EmergencyActive  bool           `json:"emergency_stop_active"`
	TotalPolicies    int            `json:"total_policies"`
	EnabledPolicies  int            `json:"enabled_policies"`
	RecentViolations int            `json:"recent_violations"`
	Summary          map[string]int `json:"violation_summary"`
	Policies         []PolicyStatus `json:"policies"`
}

type PolicyStatus struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Enabled  bool   `json:"enabled"`
}

// GetStatus reports policy inventory and violation counts. Recent means
// within the last hour.
func (e *Engine) GetStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	st := Status{
		Timestamp:       now,
		EmergencyActive: e.stop != nil && (e.stop.Latched() || e.stop.Active()),
		TotalPolicies:   len(e.policies),
		Summary:         map[string]int{"critical": 0, "warning": 0, "advisory": 0},
	}
	for _, p := range e.policies {
		if p.Enabled {
			st.EnabledPolicies++
		}
		st.Policies = append(st.Policies, PolicyStatus{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.Category.String(),
			Severity: p.Severity.String(),
			Enabled:  p.Enabled,
		})
	}
	for _, v := range e.history {
		st.Summary[v.Severity.String()]++
		if now.Sub(v.DetectedAt) < time.Hour {
			st.RecentViolations++
		}
	}
	return st
}
