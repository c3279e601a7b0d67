package main

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/dlyss/ai-agent-framework/pkg/log"
	"github.com/dlyss/ai-agent-framework/pkg/srv"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the memory services",
	Long:  `Initializes storage, the vector index, and the embedding provider, then runs the background archiver until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting agentd")

		services := NewServices(ctx)
		srv.Run(ctx, services...)

		logger.Info().Msg("agentd has been shut down gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
