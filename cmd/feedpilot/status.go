package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [account-id]",
	Short: "Show system or account status",
	Long: `Without arguments, print the status of every managed account plus
storage usage. With an account id, print that account's tasks as well.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, _, err := loadApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}

		if len(args) == 0 {
			status, err := a.Orchestrator().GetSystemStatus()
			if err != nil {
				fmt.Fprintf(os.Stderr, "❌ %v\n", err)
				os.Exit(1)
			}
			out, _ := json.MarshalIndent(status, "", "  ")
			fmt.Println(string(out))
			return
		}

		accountID := args[0]
		active, completed, err := a.Orchestrator().GetAccountTasks(accountID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(map[string]any{
			"account_id":      accountID,
			"active_tasks":    active,
			"completed_tasks": completed,
			"trends":          a.Store().Trends(accountID, 0),
		}, "", "  ")
		fmt.Println(string(out))
	},
}

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stored data past the retention window",
	Run: func(cmd *cobra.Command, args []string) {
		a, log, err := loadApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}

		removed, err := a.Store().Cleanup(a.Config().Cleanup.RetentionDays)
		if err != nil {
			log.Error("cleanup failed", err)
			os.Exit(1)
		}
		fmt.Printf("Removed %d files\n", removed)
	},
}
