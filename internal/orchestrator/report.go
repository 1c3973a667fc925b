package orchestrator

import (
	"time"

	"github.com/lyndonlyu/sweepsafe/internal/policy"
	"github.com/lyndonlyu/sweepsafe/internal/risk"
	"github.com/lyndonlyu/sweepsafe/internal/verify"
)

// Outcome is the final verdict of one orchestrated cleanup run.
type Outcome int

const (
	Success Outcome = iota
	VerificationFailed
	PolicyViolation
	RiskTooHigh
	UserCancelled
	EmergencyStop
	SystemError
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case VerificationFailed:
		return "verification_failed"
	case PolicyViolation:
		return "policy_violation"
	case RiskTooHigh:
		return "risk_too_high"
	case UserCancelled:
		return "user_cancelled"
	case EmergencyStop:
		return "emergency_stop"
	default:
		return "system_error"
	}
}

// ExitCode maps an outcome to the process exit code.
func (o Outcome) ExitCode() int {
	switch o {
	case Success:
		return 0
	case VerificationFailed:
		return 1
	case PolicyViolation:
		return 2
	case RiskTooHigh:
		return 3
	case UserCancelled:
		return 4
	case EmergencyStop:
		return 5
	default:
		return 6
	}
}

// Decision records how one candidate file was handled.
type Decision struct {
	Path        string  `json:"backup_path"`
	SafetyLevel string  `json:"safety_level"`
	Importance  float64 `json:"importance_score"`
	Confidence  float64 `json:"confidence_score"`
	Action      string  `json:"action"`
	Reason      string  `json:"reason,omitempty"`
	UserInput   string  `json:"user_input,omitempty"`
}

// Summary aggregates counts for the run.
type Summary struct {
	TotalFactors  int  `json:"total_factors"`
	PassedFactors int  `json:"passed_factors"`
	FailedFactors int  `json:"failed_factors"`
	TotalBackups  int  `json:"total_backups"`
	Safe          int  `json:"safe"`
	Cautious      int  `json:"cautious"`
	Risky         int  `json:"risky"`
	AutoCleanup   int  `json:"auto_cleanup"`
	UserApproved  int  `json:"user_approved"`
	Preserved     int  `json:"preserved"`
	ManualReview  int  `json:"manual_review"`
	Deleted       int  `json:"deleted"`
	DryRun        bool `json:"dry_run"`
}

// Report is the full record of an orchestration run.
type Report struct {
	Outcome         Outcome                  `json:"-"`
	OutcomeName     string                   `json:"result"`
	Timestamp       time.Time                `json:"timestamp"`
	TargetDir       string                   `json:"target_directory"`
	Verification    map[string]verify.Result `json:"verification_results,omitempty"`
	Assessments     []risk.Assessment        `json:"risk_assessments,omitempty"`
	Policy          policy.EnforcementResult `json:"policy_enforcement"`
	RecoveryPointID string                   `json:"recovery_point_id,omitempty"`
	Decisions       []Decision               `json:"cleanup_decisions,omitempty"`
	Summary         Summary                  `json:"summary"`
	Error           string                   `json:"error,omitempty"`
}
