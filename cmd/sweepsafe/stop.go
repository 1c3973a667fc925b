package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lyndonlyu/sweepsafe/internal/emergency"
)

var stopCmd = &cobra.Command{
	Use:   "stop [reason]",
	Short: "Activate the emergency stop to halt all cleanup activity",
	RunE:  activateStop,
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Clear the emergency stop and allow cleanup to continue",
	RunE:  clearStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(resumeCmd)
}

func emergencyStop() (*emergency.Stop, error) {
	cfg, err := loadConfig("")
	if err != nil {
		return nil, err
	}
	return emergency.New(cfg.Policy.EmergencyStopFile,
		time.Duration(cfg.Policy.WatchIntervalSeconds)*time.Second), nil
}

func activateStop(cmd *cobra.Command, args []string) error {
	s, err := emergencyStop()
	if err != nil {
		return err
	}

	if s.Active() {
		fmt.Printf("Emergency stop already active at %s\n", s.Path())
		return nil
	}

	reason := "manual activation"
	if len(args) > 0 {
		reason = strings.Join(args, " ")
	}

	if err := s.Activate(reason); err != nil {
		return fmt.Errorf("failed to activate emergency stop: %w", err)
	}

	fmt.Printf("Emergency stop ACTIVATED at %s\n", s.Path())
	fmt.Printf("Reason: %s\n", reason)
	fmt.Println("All cleanup operations will be blocked.")
	fmt.Println("Use 'sweepsafe resume' to clear.")
	return nil
}

func clearStop(cmd *cobra.Command, args []string) error {
	s, err := emergencyStop()
	if err != nil {
		return err
	}

	if !s.Active() {
		fmt.Println("No emergency stop active.")
		return nil
	}

	if err := s.Reset(); err != nil {
		return fmt.Errorf("failed to clear emergency stop: %w", err)
	}

	fmt.Println("Emergency stop CLEARED. Cleanup may resume.")
	return nil
}
