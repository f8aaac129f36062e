package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// cycleCmd represents the cycle command
var cycleCmd = &cobra.Command{
	Use:   "cycle [account-id]",
	Short: "Run a single agent cycle for one or all accounts",
	Long: `Run one decide-execute-learn cycle and print the result. With an
account id only that account runs; without one every account runs in turn
and the results are printed per account. The context and performance
snapshot are persisted afterwards, exactly as in continuous mode.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, log, err := loadApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}

		var result any
		if len(args) == 1 {
			result, err = a.Orchestrator().RunSingleCycle(context.Background(), args[0])
		} else {
			result, err = a.Orchestrator().RunAllCycles(context.Background())
		}
		if err != nil {
			log.Error("cycle failed", err)
			os.Exit(1)
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
	},
}
