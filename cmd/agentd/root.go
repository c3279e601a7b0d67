package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/dlyss/ai-agent-framework/internal/config"
	"github.com/dlyss/ai-agent-framework/pkg/log"
)

var (
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "agentd",
	Short: "agentd — conversational memory daemon",
	Long:  `agentd keeps per-session conversation history, archives important turns into a searchable long-term store, and assembles budgeted context windows for language-model calls.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", config.IsDebug(), "enable debug logging")
}

func setupLogger(ctx context.Context) (context.Context, func()) {
	return log.NewContext(ctx, debug || config.IsDebug())
}
