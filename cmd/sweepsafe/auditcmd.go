package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/sweepsafe/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the cleanup audit trail",
}

var auditRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show recent cleanup runs",
	RunE:  showRecentAudit,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit hash chain",
	RunE:  verifyAudit,
}

var auditLast int

func init() {
	auditRecentCmd.Flags().IntVar(&auditLast, "last", 10, "Number of recent records to show")
	auditCmd.AddCommand(auditRecentCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(auditCmd)
}

func auditLogger() (*audit.Logger, error) {
	cfg, err := loadConfig("")
	if err != nil {
		return nil, err
	}
	return audit.NewLogger(filepath.Join(cfg.BaseDir, "audit"))
}

func showRecentAudit(cmd *cobra.Command, args []string) error {
	if auditLast < 1 {
		return fmt.Errorf("--last must be at least 1, got %d", auditLast)
	}
	logger, err := auditLogger()
	if err != nil {
		return err
	}

	records, err := logger.Recent(auditLast)
	if err != nil {
		return fmt.Errorf("failed to read audit trail: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No audit records found.")
		return nil
	}

	fmt.Printf("%-20s %-10s %-20s %-8s %-8s %s\n",
		"TIMESTAMP", "OPERATION", "OUTCOME", "SCANNED", "DELETED", "RECOVERY_POINT")
	for _, r := range records {
		fmt.Printf("%-20s %-10s %-20s %-8d %-8d %s\n",
			r.Timestamp, r.Operation, r.Outcome, r.FilesScanned, r.FilesDeleted, r.RecoveryPointID)
	}
	return nil
}

func verifyAudit(cmd *cobra.Command, args []string) error {
	logger, err := auditLogger()
	if err != nil {
		return err
	}

	valid, brokenAt, err := logger.Verify()
	if err != nil {
		return fmt.Errorf("verification error: %w", err)
	}
	if valid {
		fmt.Println(styleSuccess.Render("Audit hash chain OK"))
		return nil
	}
	fmt.Println(styleError.Render(fmt.Sprintf("Audit hash chain BROKEN at record #%d", brokenAt)))
	fmt.Println("The audit log may have been tampered with.")
	return nil
}
