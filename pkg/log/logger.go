package log

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"github.com/rs/zerolog/log"
)

// NewContext attaches a configured logger to ctx and returns a flush
// function that must be called before the process exits.
func NewContext(ctx context.Context, debug bool) (context.Context, func()) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	// Ring-buffered writer so logging never blocks the hot path.
	wr := diode.NewWriter(os.Stderr, 1000, 10*time.Millisecond, func(missed int) {
		fmt.Fprintf(os.Stderr, "log writer dropped %d messages\n", missed)
	})

	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        wr,
		TimeFormat: time.DateTime,
	}).With().Timestamp().Logger()

	log.Logger = logger

	return logger.WithContext(ctx), func() { wr.Close() }
}

// FromCtx returns the logger carried by ctx, or the package default.
func FromCtx(ctx context.Context) *zerolog.Logger {
	return log.Ctx(ctx)
}

// With returns a child logger tagged with a component name.
func With(ctx context.Context, component string) zerolog.Logger {
	return FromCtx(ctx).With().Str("component", component).Logger()
}
