package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/sweepsafe/internal/orchestrator"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [target_dir]",
	Short: "Analyze and clean up backup files with full safety checks",
	Long:  "Runs verification, risk assessment, and policy enforcement over backup files under the target directory. Dry run by default; pass --execute to delete.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runClean,
}

var (
	cleanExecute        bool
	cleanNonInteractive bool
	cleanReportFile     string
	cleanConfigPath     string
)

func init() {
	cleanCmd.Flags().BoolVar(&cleanExecute, "execute", false, "Actually delete files (default is dry run)")
	cleanCmd.Flags().BoolVar(&cleanNonInteractive, "non-interactive", false, "Never prompt; cautious files are preserved")
	cleanCmd.Flags().StringVar(&cleanReportFile, "report-file", "", "Save detailed JSON report to file")
	cleanCmd.Flags().StringVar(&cleanConfigPath, "config", "", "Path to configuration file")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}
	root, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("target directory does not exist: %s", root)
	}

	cfg, err := loadConfig(cleanConfigPath)
	if err != nil {
		return err
	}

	interactive := !cleanNonInteractive
	var prompter orchestrator.Prompter
	if interactive {
		prompter = newTerminalPrompter(cfg.Policy.ConfirmTimeoutSeconds)
	}

	a, err := buildApp(cfg, root, prompter)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	mode := "DRY RUN"
	if cleanExecute {
		mode = "EXECUTION"
	}
	fmt.Println(styleBanner.Render("SweepSafe backup cleanup"))
	fmt.Printf("Target: %s\n", root)
	fmt.Printf("Mode:   %s\n", mode)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := a.orch.Run(ctx, orchestrator.Options{
		Root:        root,
		DryRun:      !cleanExecute,
		Interactive: interactive,
	})

	printReport(report)

	if cleanReportFile != "" {
		if err := saveReport(report, cleanReportFile); err != nil {
			fmt.Println(styleWarn.Render("could not save report: " + err.Error()))
		} else {
			fmt.Printf("\nDetailed report saved to: %s\n", cleanReportFile)
		}
	}

	if report.Outcome != orchestrator.Success {
		os.Exit(report.Outcome.ExitCode())
	}
	return nil
}

func printReport(r *orchestrator.Report) {
	fmt.Printf("Verification: %d/%d factors passed\n",
		r.Summary.PassedFactors, r.Summary.TotalFactors)

	if len(r.Assessments) > 0 {
		fmt.Printf("Risk assessment: %d files analyzed\n", r.Summary.TotalBackups)
		for _, a := range r.Assessments {
			fmt.Printf("  %s %s (importance %.2f, confidence %.2f)\n",
				renderLevel(a.LevelName), filepath.Base(a.Path), a.Importance, a.Confidence)
		}
	}

	for _, w := range r.Policy.Warnings {
		fmt.Println(styleWarn.Render("  warning: " + w))
	}

	if len(r.Decisions) > 0 {
		fmt.Println("Decisions:")
		for _, d := range r.Decisions {
			fmt.Printf("  %-22s %s\n", d.Action, filepath.Base(d.Path))
			if d.Reason != "" {
				fmt.Println(styleDim.Render("      " + d.Reason))
			}
		}
	}

	fmt.Println()
	switch r.Outcome {
	case orchestrator.Success:
		fmt.Println(styleSuccess.Render("Result: " + r.OutcomeName))
	default:
		fmt.Println(styleError.Render("Result: " + r.OutcomeName))
		if r.Error != "" {
			fmt.Println(styleError.Render("  " + r.Error))
		}
	}
	if r.RecoveryPointID != "" {
		fmt.Println(styleDim.Render("Recovery point: " + r.RecoveryPointID))
	}
	if r.Summary.DryRun {
		fmt.Println(styleDim.Render("Dry run - no files were deleted"))
	} else {
		fmt.Printf("Deleted %d file(s)\n", r.Summary.Deleted)
	}
}

func saveReport(r *orchestrator.Report, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
