// Package syncd parses authority command flags and launches the sync
// authority runtime.
package syncd

import (
	"context"
	"flag"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/app"
	entrypoint "github.com/GetwithitMan/gwi-pos-sub015/internal/platform/cmd"
)

// Config holds syncd command configuration.
type Config struct {
	Port            int           `env:"GWI_POS_SYNCD_PORT" envDefault:"8432"`
	DBPath          string        `env:"GWI_POS_SYNCD_DB_PATH" envDefault:"data/syncd.db"`
	TokenIssuer     string        `env:"GWI_POS_TOKEN_ISSUER" envDefault:"gwi-pos-syncd"`
	TokenAudience   string        `env:"GWI_POS_TOKEN_AUDIENCE" envDefault:"gwi-pos-devices"`
	TokenSecret     string        `env:"GWI_POS_TOKEN_SECRET"`
	ShutdownTimeout time.Duration `env:"GWI_POS_SYNCD_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The authority HTTP server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The authority SQLite database path")
	fs.StringVar(&cfg.TokenIssuer, "token-issuer", cfg.TokenIssuer, "Device token issuer")
	fs.StringVar(&cfg.TokenAudience, "token-audience", cfg.TokenAudience, "Device token audience")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the authority runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSyncd, func(context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			Port:            cfg.Port,
			DBPath:          cfg.DBPath,
			TokenIssuer:     cfg.TokenIssuer,
			TokenAudience:   cfg.TokenAudience,
			TokenSecret:     cfg.TokenSecret,
			ShutdownTimeout: cfg.ShutdownTimeout,
		})
	})
}
