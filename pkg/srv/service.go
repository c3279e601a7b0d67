// Package srv runs long-lived background services with graceful shutdown.
package srv

import (
	"context"

	"github.com/dlyss/ai-agent-framework/pkg/log"
)

// Service is a long-running unit of work. Start blocks until ctx is
// cancelled or the service fails; Shutdown releases resources.
type Service interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Run starts every service in its own goroutine, blocks until ctx is
// cancelled, then shuts them down in reverse registration order so that
// dependencies outlive their dependents.
func Run(ctx context.Context, services ...Service) {
	logger := log.FromCtx(ctx)

	for _, s := range services {
		go func(s Service) {
			if err := s.Start(ctx); err != nil {
				logger.Error().Err(err).Msgf("%T stopped with error", s)
			}
		}(s)
	}

	<-ctx.Done()

	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msgf("%T failed to shut down", services[i])
		}
	}
}

type cleanup struct {
	fn func() error
}

func (c *cleanup) Start(ctx context.Context) error { return nil }

func (c *cleanup) Shutdown(ctx context.Context) error {
	if c.fn == nil {
		return nil
	}
	return c.fn()
}

// NewCleanup wraps a close function as a shutdown-only Service.
func NewCleanup(fn func() error) Service {
	return &cleanup{fn: fn}
}
