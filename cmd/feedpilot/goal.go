package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/feedpilot/internal/logger"
)

// goalCmd represents the goal command
var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Manage account goals",
}

// goalAddCmd represents the goal add command
var goalAddCmd = &cobra.Command{
	Use:   "add <account-id> <goal text...>",
	Short: "Add a natural-language goal to an account",
	Long: `Add a goal described in natural language. The goal is parsed into
target metrics and a deadline, then decomposed into tasks. Parsing never
fails outright: unparseable text becomes a general-progress goal.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, log, err := loadApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}

		accountID := args[0]
		text := strings.Join(args[1:], " ")
		goal, err := a.Orchestrator().AddGoalFromNaturalLanguage(context.Background(), accountID, text)
		if err != nil {
			log.Error("failed to add goal", err)
			os.Exit(1)
		}

		log.Info("goal added",
			logger.Field{Key: "account", Value: accountID},
			logger.Field{Key: "goal", Value: goal.ID},
		)
		out, _ := json.MarshalIndent(goal, "", "  ")
		fmt.Println(string(out))
	},
}

// goalListCmd represents the goal list command
var goalListCmd = &cobra.Command{
	Use:   "list <account-id>",
	Short: "List an account's current goals",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, _, err := loadApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}

		goals, err := a.Orchestrator().GetAccountGoals(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(goals, "", "  ")
		fmt.Println(string(out))
	},
}

func init() {
	goalCmd.AddCommand(goalAddCmd)
	goalCmd.AddCommand(goalListCmd)
}
