package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dlyss/ai-agent-framework/internal/providers/embedder/mock"
	"github.com/dlyss/ai-agent-framework/pkg/log"
	"github.com/dlyss/ai-agent-framework/pkg/srv"
)

// demoCmd runs a scripted conversation through the whole pipeline with
// the deterministic embedder, so the wiring can be smoke-tested without
// an embedding endpoint.
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted conversation through the memory pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		app := NewApp(ctx, mock.New(mock.DefaultDimensions))

		runCtx, stop := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			srv.Run(runCtx, app.Services...)
		}()
		defer func() {
			stop()
			<-done
		}()

		const session = "demo"
		exchanges := [][2]string{
			{"Hi, my name is Dana and I prefer short answers", "Noted, Dana."},
			{"My order #42 has not arrived yet", "I see order #42 is delayed in transit."},
			{"What is the weather like today", "Sunny with a light breeze."},
		}
		for _, ex := range exchanges {
			if err := app.Manager.RecordExchange(ctx, session, ex[0], ex[1]); err != nil {
				return err
			}
		}

		if item, ok, err := app.Manager.SummarizeAndArchive(ctx, session, 0); err != nil {
			return err
		} else if ok {
			log.FromCtx(ctx).Info().
				Str("id", item.ID).
				Float64("importance", item.Importance).
				Msg("archived summary")
		}

		// Let the archiver drain the auto-archive queue.
		time.Sleep(200 * time.Millisecond)

		window, err := app.Assembler.Build(ctx, session, "where is my order", 1024, 5)
		if err != nil {
			return err
		}

		fmt.Printf("context window (%d units):\n", window.TotalSize)
		for _, t := range window.Turns {
			fmt.Printf("  [%s] %s\n", t.Role, t.Content)
		}
		for _, r := range window.Retrieved {
			fmt.Printf("  [memory %.2f] %s\n", r.Score, firstLine(r.Item.Content))
		}
		return nil
	},
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i] + " ..."
		}
	}
	return s
}

func init() {
	rootCmd.AddCommand(demoCmd)
}
