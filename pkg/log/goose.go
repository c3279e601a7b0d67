package log

import (
	"context"

	"github.com/rs/zerolog"
)

// MigrationLogger adapts zerolog to the goose Logger interface.
type MigrationLogger struct {
	logger *zerolog.Logger
}

func NewMigrationLogger(ctx context.Context) *MigrationLogger {
	return &MigrationLogger{logger: FromCtx(ctx)}
}

func (m *MigrationLogger) Fatalf(format string, v ...interface{}) {
	m.logger.Fatal().Msgf(format, v...)
}

func (m *MigrationLogger) Printf(format string, v ...interface{}) {
	m.logger.Debug().Msgf(format, v...)
}
