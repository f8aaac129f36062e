package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/feedpilot/internal/logger"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start continuous account management",
	Long: `Start feedpilot in continuous mode. All active accounts are cycled
in parallel batches until the process receives SIGINT or SIGTERM; the batch
in flight always finishes before shutdown.`,
	Run: runHandler,
}

func runHandler(cmd *cobra.Command, args []string) {
	a, log, err := loadApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	log.Info("🚀 Starting feedpilot",
		logger.Field{Key: "version", Value: Version},
		logger.Field{Key: "git_commit", Value: GitCommit},
		logger.Field{Key: "config", Value: configPath},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Info("⏳ Received shutdown signal",
			logger.Field{Key: "signal", Value: sig.String()})
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Error("continuous mode failed", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	a.Shutdown(shutdownCtx)
	log.Info("👋 Feedpilot stopped gracefully")
}
