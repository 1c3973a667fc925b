package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// VerificationConfig controls the multi-factor verification engine.
type VerificationConfig struct {
	RequireCleanWorkingTree bool `yaml:"require_clean_working_tree"`
	MinimumAgeHours         int  `yaml:"minimum_age_hours" validate:"gt=0"`
	StableThresholdDays     int  `yaml:"stable_threshold_days" validate:"gt=0"`
	StaleThresholdDays      int  `yaml:"stale_threshold_days" validate:"gtefield=StableThresholdDays"`
	ReferenceLookbackDays   int  `yaml:"reference_lookback_days" validate:"gt=0"`
}

// RiskConfig holds the weighted-scoring parameters for risk assessment.
// Weights and thresholds live here rather than as scattered literals so a
// threshold change is a config diff, not a code hunt.
type RiskConfig struct {
	FileTypeWeight         float64 `yaml:"file_type_weight" validate:"gte=0,lte=1"`
	RecencyWeight          float64 `yaml:"recency_weight" validate:"gte=0,lte=1"`
	ReferenceDensityWeight float64 `yaml:"reference_density_weight" validate:"gte=0,lte=1"`
	UniquenessWeight       float64 `yaml:"uniqueness_weight" validate:"gte=0,lte=1"`
	GitContextWeight       float64 `yaml:"git_context_weight" validate:"gte=0,lte=1"`
	ContentWeight          float64 `yaml:"content_weight" validate:"gte=0,lte=1"`

	SafeThreshold     float64 `yaml:"safe_threshold" validate:"gte=0,lte=1"`
	CautiousThreshold float64 `yaml:"cautious_threshold" validate:"gte=0,lte=1,ltefield=SafeThreshold"`

	FreshHours int `yaml:"fresh_hours" validate:"gt=0"`
	RecentDays int `yaml:"recent_days" validate:"gt=0"`
	StableDays int `yaml:"stable_days" validate:"gtefield=RecentDays"`
	StaleDays  int `yaml:"stale_days" validate:"gtefield=StableDays"`
}

// PolicyConfig controls the safety policy engine.
type PolicyConfig struct {
	MinimumAgeHours        int    `yaml:"minimum_age_hours" validate:"gt=0"`
	CriticalAgeHours       int    `yaml:"critical_age_hours" validate:"gt=0,ltefield=MinimumAgeHours"`
	ReferenceLookbackDays  int    `yaml:"reference_lookback_days" validate:"gt=0"`
	EmergencyStopFile      string `yaml:"emergency_stop_file" validate:"required"`
	WatchIntervalSeconds   int    `yaml:"watch_interval_seconds" validate:"gt=0"`
	ConfirmTimeoutSeconds  int    `yaml:"confirm_timeout_seconds" validate:"gt=0"`
	RequireRecoveryPoints  bool   `yaml:"require_recovery_points"`
	RequireCleanTreePolicy bool   `yaml:"require_clean_tree_policy"`
}

// RecoveryConfig controls the rollback coordinator.
type RecoveryConfig struct {
	Dir           string `yaml:"dir" validate:"required"`
	RetentionDays int    `yaml:"retention_days" validate:"gt=0"`
}

type Config struct {
	Verification VerificationConfig `yaml:"verification"`
	Risk         RiskConfig         `yaml:"risk"`
	Policy       PolicyConfig       `yaml:"policy"`
	Recovery     RecoveryConfig     `yaml:"recovery"`
	BaseDir      string             `yaml:"-"`
}

func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".sweepsafe")
	return &Config{
		Verification: VerificationConfig{
			RequireCleanWorkingTree: true,
			MinimumAgeHours:         168,
			StableThresholdDays:     30,
			StaleThresholdDays:      90,
			ReferenceLookbackDays:   30,
		},
		Risk: RiskConfig{
			FileTypeWeight:         0.25,
			RecencyWeight:          0.25,
			ReferenceDensityWeight: 0.30,
			UniquenessWeight:       0.20,
			GitContextWeight:       0.15,
			ContentWeight:          0.15,
			SafeThreshold:          0.85,
			CautiousThreshold:      0.60,
			FreshHours:             24,
			RecentDays:             7,
			StableDays:             30,
			StaleDays:              90,
		},
		Policy: PolicyConfig{
			MinimumAgeHours:       168,
			CriticalAgeHours:      24,
			ReferenceLookbackDays: 30,
			EmergencyStopFile:     filepath.Join(base, "EMERGENCY_STOP"),
			WatchIntervalSeconds:  5,
			ConfirmTimeoutSeconds: 300,
			RequireRecoveryPoints: true,
		},
		Recovery: RecoveryConfig{
			Dir:           filepath.Join(base, "recovery"),
			RetentionDays: 30,
		},
		BaseDir: base,
	}
}

// Load reads the config file at path, applies defaults for zero values, and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Verification.MinimumAgeHours == 0 {
		cfg.Verification.MinimumAgeHours = def.Verification.MinimumAgeHours
	}
	if cfg.Verification.StableThresholdDays == 0 {
		cfg.Verification.StableThresholdDays = def.Verification.StableThresholdDays
	}
	if cfg.Verification.StaleThresholdDays == 0 {
		cfg.Verification.StaleThresholdDays = def.Verification.StaleThresholdDays
	}
	if cfg.Verification.ReferenceLookbackDays == 0 {
		cfg.Verification.ReferenceLookbackDays = def.Verification.ReferenceLookbackDays
	}
	if cfg.Risk.FileTypeWeight == 0 {
		cfg.Risk.FileTypeWeight = def.Risk.FileTypeWeight
	}
	if cfg.Risk.RecencyWeight == 0 {
		cfg.Risk.RecencyWeight = def.Risk.RecencyWeight
	}
	if cfg.Risk.ReferenceDensityWeight == 0 {
		cfg.Risk.ReferenceDensityWeight = def.Risk.ReferenceDensityWeight
	}
	if cfg.Risk.UniquenessWeight == 0 {
		cfg.Risk.UniquenessWeight = def.Risk.UniquenessWeight
	}
	if cfg.Risk.GitContextWeight == 0 {
		cfg.Risk.GitContextWeight = def.Risk.GitContextWeight
	}
	if cfg.Risk.ContentWeight == 0 {
		cfg.Risk.ContentWeight = def.Risk.ContentWeight
	}
	if cfg.Risk.SafeThreshold == 0 {
		cfg.Risk.SafeThreshold = def.Risk.SafeThreshold
	}
	if cfg.Risk.CautiousThreshold == 0 {
		cfg.Risk.CautiousThreshold = def.Risk.CautiousThreshold
	}
	if cfg.Risk.FreshHours == 0 {
		cfg.Risk.FreshHours = def.Risk.FreshHours
	}
	if cfg.Risk.RecentDays == 0 {
		cfg.Risk.RecentDays = def.Risk.RecentDays
	}
	if cfg.Risk.StableDays == 0 {
		cfg.Risk.StableDays = def.Risk.StableDays
	}
	if cfg.Risk.StaleDays == 0 {
		cfg.Risk.StaleDays = def.Risk.StaleDays
	}
	if cfg.Policy.MinimumAgeHours == 0 {
		cfg.Policy.MinimumAgeHours = def.Policy.MinimumAgeHours
	}
	if cfg.Policy.CriticalAgeHours == 0 {
		cfg.Policy.CriticalAgeHours = def.Policy.CriticalAgeHours
	}
	if cfg.Policy.ReferenceLookbackDays == 0 {
		cfg.Policy.ReferenceLookbackDays = def.Policy.ReferenceLookbackDays
	}
	if cfg.Policy.EmergencyStopFile == "" {
		cfg.Policy.EmergencyStopFile = def.Policy.EmergencyStopFile
	}
	if cfg.Policy.WatchIntervalSeconds == 0 {
		cfg.Policy.WatchIntervalSeconds = def.Policy.WatchIntervalSeconds
	}
	if cfg.Policy.ConfirmTimeoutSeconds == 0 {
		cfg.Policy.ConfirmTimeoutSeconds = def.Policy.ConfirmTimeoutSeconds
	}
	if cfg.Recovery.Dir == "" {
		cfg.Recovery.Dir = def.Recovery.Dir
	}
	if cfg.Recovery.RetentionDays == 0 {
		cfg.Recovery.RetentionDays = def.Recovery.RetentionDays
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = def.BaseDir
	}
}

// Validate checks weight ranges and threshold ordering.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.BaseDir,
		filepath.Join(c.BaseDir, "audit"),
		c.Recovery.Dir,
		filepath.Join(c.Recovery.Dir, "snapshots"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}
