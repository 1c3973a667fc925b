package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show safety system status",
	RunE:  showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}
	a, err := buildApp(cfg, ".", nil)
	if err != nil {
		return err
	}

	pst := a.policies.GetStatus()
	rst := a.coordinator.Status()

	var md strings.Builder
	md.WriteString("# SweepSafe Status\n\n")

	md.WriteString("## Emergency Stop\n\n")
	if pst.EmergencyActive {
		md.WriteString("**ACTIVE** - all cleanup operations blocked\n\n")
		if reason := a.stop.Reason(); reason != "" {
			md.WriteString("Reason: " + reason + "\n\n")
		}
	} else {
		md.WriteString("clear\n\n")
	}

	md.WriteString("## Policies\n\n")
	md.WriteString(fmt.Sprintf("%d of %d policies enabled\n\n", pst.EnabledPolicies, pst.TotalPolicies))
	md.WriteString("| Policy | Category | Severity | Enabled |\n")
	md.WriteString("|--------|----------|----------|--------|\n")
	for _, p := range pst.Policies {
		enabled := "yes"
		if !p.Enabled {
			enabled = "no"
		}
		md.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", p.Name, p.Category, p.Severity, enabled))
	}
	md.WriteString("\n")

	md.WriteString("## Recovery Points\n\n")
	md.WriteString(fmt.Sprintf("- Total: %d (%d valid)\n", rst.TotalPoints, rst.ValidPoints))
	md.WriteString(fmt.Sprintf("- Size: %.1f MB\n", rst.TotalSizeMB))
	if !rst.Newest.IsZero() {
		md.WriteString(fmt.Sprintf("- Newest: %s\n", rst.Newest.Format("2006-01-02 15:04:05")))
		md.WriteString(fmt.Sprintf("- Oldest: %s\n", rst.Oldest.Format("2006-01-02 15:04:05")))
	}
	md.WriteString("\n")

	md.WriteString("## Operations\n\n")
	md.WriteString(fmt.Sprintf("- Total: %d (%d in last 24h)\n", rst.TotalOps, rst.Recent24h))
	md.WriteString(fmt.Sprintf("- Completed: %d, failed: %d, rolled back: %d\n",
		rst.Completed, rst.FailedOps, rst.RolledBack))

	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		fmt.Print(md.String())
		return nil
	}
	out, err := r.Render(md.String())
	if err != nil {
		fmt.Print(md.String())
		return nil
	}
	fmt.Print(out)
	return nil
}
