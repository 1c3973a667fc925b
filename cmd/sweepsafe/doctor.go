package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/sweepsafe/internal/audit"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify system integrity",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}

	fmt.Println("SweepSafe Doctor")
	fmt.Println("================")
	fmt.Println()

	// 1. Audit hash chain
	fmt.Print("Audit hash chain...... ")
	logger, err := audit.NewLogger(filepath.Join(cfg.BaseDir, "audit"))
	if err != nil {
		fmt.Println("SKIP (no audit directory)")
	} else {
		valid, brokenAt, err := logger.Verify()
		switch {
		case err != nil:
			fmt.Printf("ERROR: %v\n", err)
		case valid:
			fmt.Println("OK")
		default:
			fmt.Printf("BROKEN at record #%d\n", brokenAt)
			fmt.Println("  The audit log may have been tampered with.")
		}
	}

	// 2. Recovery store
	fmt.Print("Recovery store........ ")
	a, err := buildApp(cfg, ".", nil)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
	} else {
		rep := a.coordinator.Status()
		if rep.TotalPoints == 0 {
			fmt.Println("OK (empty)")
		} else if rep.ValidPoints == rep.TotalPoints {
			fmt.Printf("OK (%d points, %.1f MB)\n", rep.TotalPoints, rep.TotalSizeMB)
		} else {
			fmt.Printf("WARNING: %d/%d points invalid\n",
				rep.TotalPoints-rep.ValidPoints, rep.TotalPoints)
		}
	}

	// 3. Emergency stop
	fmt.Print("Emergency stop........ ")
	if _, err := os.Stat(cfg.Policy.EmergencyStopFile); err == nil {
		fmt.Printf("ACTIVE at %s\n", cfg.Policy.EmergencyStopFile)
		fmt.Println("  Use 'sweepsafe resume' to clear.")
	} else {
		fmt.Println("clear")
	}

	// 4. Git availability (best-effort)
	fmt.Print("Git binary............ ")
	if _, err := exec.LookPath("git"); err != nil {
		fmt.Println("NOT FOUND (git-based checks will degrade)")
	} else {
		fmt.Println("OK")
	}

	// 5. Config validity
	fmt.Print("Configuration......... ")
	if err := cfg.Validate(); err != nil {
		fmt.Printf("INVALID: %v\n", err)
	} else {
		fmt.Println("OK")
	}

	return nil
}
