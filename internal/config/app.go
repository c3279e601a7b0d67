package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"github.com/dlyss/ai-agent-framework/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"AGENTD_RUNTIME_PATH" envDefault:".agentd"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse app config")
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	path := c.RuntimePath
	if !filepath.IsAbs(path) {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path)
	}
	return path
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.GetRuntimePath(), "memory.db")
}

func (c AppConfig) GetVectorPath() string {
	return filepath.Join(c.GetRuntimePath(), "vectors")
}

func (c AppConfig) GetEnvPath() string {
	return filepath.Join(c.GetRuntimePath(), ".env")
}

func IsDebug() bool {
	return os.Getenv("AGENTD_DEBUG") == "1"
}
