package main

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lyndonlyu/sweepsafe/internal/archive"
	"github.com/lyndonlyu/sweepsafe/internal/audit"
	"github.com/lyndonlyu/sweepsafe/internal/config"
	"github.com/lyndonlyu/sweepsafe/internal/emergency"
	"github.com/lyndonlyu/sweepsafe/internal/gitx"
	"github.com/lyndonlyu/sweepsafe/internal/orchestrator"
	"github.com/lyndonlyu/sweepsafe/internal/policy"
	"github.com/lyndonlyu/sweepsafe/internal/recovery"
	"github.com/lyndonlyu/sweepsafe/internal/risk"
	"github.com/lyndonlyu/sweepsafe/internal/scan"
	"github.com/lyndonlyu/sweepsafe/internal/verify"
)

// loadConfig resolves the config file, falling back to the default path
// when no --config flag was given.
func loadConfig(flagPath string) (*config.Config, error) {
	path := flagPath
	if path == "" {
		var err error
		path, err = defaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to create dirs: %w", err)
	}
	return cfg, nil
}

func newLogger() *zap.Logger {
	if !verboseFlag {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// app bundles the wired pipeline components for one invocation.
type app struct {
	cfg         *config.Config
	log         *zap.Logger
	git         gitx.Inspector
	scanner     scan.Scanner
	stop        *emergency.Stop
	auditor     *audit.Logger
	coordinator *recovery.Coordinator
	policies    *policy.Engine
	orch        *orchestrator.Orchestrator
}

// buildApp wires every pipeline stage for the tree at root.
func buildApp(cfg *config.Config, root string, prompter orchestrator.Prompter) (*app, error) {
	log := newLogger()

	git := gitx.NewCLI(root)
	scanner := scan.NewFS()
	stop := emergency.New(cfg.Policy.EmergencyStopFile,
		time.Duration(cfg.Policy.WatchIntervalSeconds)*time.Second)

	auditor, err := audit.NewLogger(filepath.Join(cfg.BaseDir, "audit"))
	if err != nil {
		return nil, fmt.Errorf("audit init: %w", err)
	}

	coordinator, err := recovery.NewCoordinator(
		cfg.Recovery.Dir, cfg.Recovery.RetentionDays,
		git, scanner, archive.NewTarGz(), log)
	if err != nil {
		return nil, fmt.Errorf("recovery init: %w", err)
	}

	verifier := verify.NewEngine(cfg.Verification, git, scanner, verify.ListOpenHandles, log)
	riskEngine := risk.NewEngine(cfg.Risk, git, scanner, nil, log)
	policies := policy.NewEngine(cfg.Policy, git, scanner, stop, cfg.Recovery.Dir, log)

	orch := orchestrator.New(verifier, riskEngine, policies, coordinator, scanner, stop, auditor, prompter, log)

	return &app{
		cfg:         cfg,
		log:         log,
		git:         git,
		scanner:     scanner,
		stop:        stop,
		auditor:     auditor,
		coordinator: coordinator,
		policies:    policies,
		orch:        orch,
	}, nil
}
