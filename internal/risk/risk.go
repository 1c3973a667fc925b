// Package risk scores backup candidates across weighted factors and folds
// the result, together with verification confidence, into a three-tier
// safety classification.
package risk

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lyndonlyu/sweepsafe/internal/config"
	"github.com/lyndonlyu/sweepsafe/internal/gitx"
	"github.com/lyndonlyu/sweepsafe/internal/scan"
	"github.com/lyndonlyu/sweepsafe/internal/verify"
)

// SafetyLevel is the classification driving the execution decision.
type SafetyLevel int

const (
	Safe SafetyLevel = iota
	Cautious
	Risky
)

func (l SafetyLevel) String() string {
	switch l {
	case Safe:
		return "safe"
	case Cautious:
		return "cautious"
	case Risky:
		return "risky"
	default:
		return "unknown"
	}
}

// BackupType classifies what kind of file was backed up.
type BackupType int

const (
	SourceCode BackupType = iota
	Configuration
	DataFile
	Binary
	Documentation
	Temporary
	Unknown
)

func (t BackupType) String() string {
	switch t {
	case SourceCode:
		return "source_code"
	case Configuration:
		return "configuration"
	case DataFile:
		return "data_file"
	case Binary:
		return "binary"
	case Documentation:
		return "documentation"
	case Temporary:
		return "temporary"
	default:
		return "unknown"
	}
}

// Action is the recommended handling for a candidate.
type Action int

const (
	AutoCleanup Action = iota
	ConfirmStandard
	ConfirmDetailed
	ManualReview
)

func (a Action) String() string {
	switch a {
	case AutoCleanup:
		return "auto_cleanup"
	case ConfirmStandard:
		return "user_confirmation_standard"
	case ConfirmDetailed:
		return "user_confirmation_detailed"
	default:
		return "manual_review_required"
	}
}

// Factor is one weighted sub-score of an assessment.
type Factor struct {
	Name        string   `json:"name"`
	Weight      float64  `json:"weight"`
	Score       float64  `json:"score"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence,omitempty"`
}

// Assessment is the full risk verdict for one candidate file.
type Assessment struct {
	Path            string      `json:"path"`
	Type            BackupType  `json:"backup_type"`
	TypeName        string      `json:"backup_type_name"`
	Importance      float64     `json:"importance_score"`
	Confidence      float64     `json:"confidence_score"`
	Level           SafetyLevel `json:"safety_level"`
	LevelName       string      `json:"safety_level_name"`
	Factors         []Factor    `json:"risk_factors"`
	Concerns        []string    `json:"concerns,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
	Action          Action      `json:"recommended_action"`
	ActionName      string      `json:"recommended_action_name"`
}

// TreeGrep counts textual references to needle in files under root. The
// production implementation lives in grep.go; tests inject a stub.
type TreeGrep func(root, needle string) (int, error)

// Engine performs per-file assessments.
type Engine struct {
	cfg     config.RiskConfig
	git     gitx.Inspector
	scanner scan.Scanner
	grep    TreeGrep
	now     func() time.Time
	log     *zap.Logger
}

func NewEngine(cfg config.RiskConfig, git gitx.Inspector, scanner scan.Scanner, grep TreeGrep, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if grep == nil {
		grep = GrepTree
	}
	return &Engine{
		cfg:     cfg,
		git:     git,
		scanner: scanner,
		grep:    grep,
		now:     time.Now,
		log:     log,
	}
}

// SetClock overrides the engine clock; tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Assess produces one Assessment for path. refs carries the reference-chain
// verification output; minVerifConfidence caps assessment confidence so a
// weak verification run can never be outvoted by file-local evidence.
func (e *Engine) Assess(root, path string, refs *verify.ReferenceSet, minVerifConfidence float64) Assessment {
	btype := classify(path)

	factors := []Factor{
		e.fileTypeFactor(path, btype),
		e.recencyFactor(path),
		e.referenceDensityFactor(root, path, refs),
		e.uniquenessFactor(root, path),
		e.gitContextFactor(root, path),
		e.contentFactor(path),
	}

	importance := weightedMean(factors)
	confidence := e.confidence(factors, btype, minVerifConfidence)
	level := e.safetyLevel(importance, confidence)
	action := e.recommendAction(level, importance)

	a := Assessment{
		Path:            path,
		Type:            btype,
		TypeName:        btype.String(),
		Importance:      importance,
		Confidence:      confidence,
		Level:           level,
		LevelName:       level.String(),
		Factors:         factors,
		Concerns:        concerns(factors, level),
		Recommendations: recommendations(factors, level),
		Action:          action,
		ActionName:      action.String(),
	}
	e.log.Debug("assessed backup candidate",
		zap.String("path", path),
		zap.String("level", a.LevelName),
		zap.Float64("importance", importance),
		zap.Float64("confidence", confidence))
	return a
}

// weightedMean is the importance score: sum(score*weight)/sum(weight).
func weightedMean(factors []Factor) float64 {
	var sum, weights float64
	for _, f := range factors {
		sum += f.Score * f.Weight
		weights += f.Weight
	}
	if weights == 0 {
		return 0.5
	}
	return sum / weights
}

func (e *Engine) confidence(factors []Factor, btype BackupType, minVerifConfidence float64) float64 {
	c := 0.8

	evidence := 0
	for _, f := range factors {
		evidence += len(f.Evidence)
	}
	if evidence < 5 {
		c -= 0.2
	}
	if btype == Unknown {
		c -= 0.1
	}
	if minVerifConfidence < c {
		c = minVerifConfidence
	}

	if c < 0.1 {
		c = 0.1
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}

// safetyLevel combines importance and confidence: low confidence inflates
// the effective risk. The upper threshold bounds the risky tier and the
// lower one the cautious tier; monotonicity is covered by an explicit test.
func (e *Engine) safetyLevel(importance, confidence float64) SafetyLevel {
	riskScore := importance + (1.0-confidence)*0.3
	switch {
	case riskScore >= e.cfg.SafeThreshold:
		return Risky
	case riskScore >= e.cfg.CautiousThreshold:
		return Cautious
	default:
		return Safe
	}
}

func (e *Engine) recommendAction(level SafetyLevel, importance float64) Action {
	switch level {
	case Safe:
		return AutoCleanup
	case Cautious:
		if importance > 0.7 {
			return ConfirmDetailed
		}
		return ConfirmStandard
	default:
		return ManualReview
	}
}

func concerns(factors []Factor, level SafetyLevel) []string {
	var out []string
	for _, f := range factors {
		if f.Score > 0.7 {
			out = append(out, fmt.Sprintf("high %s: %s", f.Name, f.Description))
		}
	}
	switch level {
	case Risky:
		out = append(out, "overall assessment indicates high risk for cleanup")
	case Cautious:
		out = append(out, "moderate risk factors present - user confirmation recommended")
	}
	return out
}

func recommendations(factors []Factor, level SafetyLevel) []string {
	var out []string
	switch level {
	case Safe:
		out = append(out,
			"safe for automatic cleanup",
			"create backup before deletion as precaution")
	case Cautious:
		out = append(out,
			"request user confirmation before cleanup",
			"provide detailed reasoning for cleanup decision",
			"create recovery point before proceeding")
	default:
		out = append(out,
			"manual review required before any action",
			"consider preserving this backup",
			"if cleanup necessary, require explicit approval",
			"ensure complete backup of original content")
	}

	for _, f := range factors {
		switch {
		case f.Name == "recency_risk" && f.Score > 0.8:
			out = append(out, "consider waiting longer before cleanup (file is very recent)")
		case f.Name == "reference_density" && f.Score > 0.7:
			out = append(out, "verify all references before cleanup")
		case f.Name == "uniqueness_risk" && f.Score > 0.8:
			out = append(out, "backup appears unique - extra caution advised")
		}
	}
	return out
}
