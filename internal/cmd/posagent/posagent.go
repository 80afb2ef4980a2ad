// Package posagent parses device agent flags and launches the
// device-side sync loop.
package posagent

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/app"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/projection"
	entrypoint "github.com/GetwithitMan/gwi-pos-sub015/internal/platform/cmd"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/storage/sqlite"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/sync/dispatch"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/sync/outbox"
)

// Config holds posagent command configuration.
type Config struct {
	DeviceID     string        `env:"GWI_POS_AGENT_DEVICE_ID"`
	LocationID   string        `env:"GWI_POS_AGENT_LOCATION_ID"`
	ServerURL    string        `env:"GWI_POS_AGENT_SERVER_URL" envDefault:"http://localhost:8432"`
	DeviceToken  string        `env:"GWI_POS_AGENT_DEVICE_TOKEN"`
	DBPath       string        `env:"GWI_POS_AGENT_DB_PATH" envDefault:"data/posagent.db"`
	PollInterval time.Duration `env:"GWI_POS_AGENT_POLL_INTERVAL" envDefault:"2s"`
	BatchSize    int           `env:"GWI_POS_AGENT_BATCH_SIZE" envDefault:"50"`
	MaxAttempts  int           `env:"GWI_POS_AGENT_MAX_ATTEMPTS" envDefault:"8"`
	AckRetention time.Duration `env:"GWI_POS_AGENT_ACK_RETENTION" envDefault:"24h"`
	StreamOff    bool          `env:"GWI_POS_AGENT_STREAM_OFF"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DeviceID, "device-id", cfg.DeviceID, "This device's identifier")
	fs.StringVar(&cfg.LocationID, "location-id", cfg.LocationID, "The location this device serves")
	fs.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "The sync authority base URL")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The device SQLite database path")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Outbox upload and pull interval")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Maximum events per upload batch")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Upload attempts before an entry expires")
	fs.DurationVar(&cfg.AckRetention, "ack-retention", cfg.AckRetention, "How long acknowledged entries are kept")
	fs.BoolVar(&cfg.StreamOff, "stream-off", cfg.StreamOff, "Disable the real-time stream and rely on polling")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the device agent runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePOSAgent, func(context.Context) error {
		return run(ctx, cfg)
	})
}

func run(ctx context.Context, cfg Config) error {
	if strings.TrimSpace(cfg.DeviceID) == "" {
		return fmt.Errorf("device id is required")
	}
	if strings.TrimSpace(cfg.LocationID) == "" {
		return fmt.Errorf("location id is required")
	}
	if strings.TrimSpace(cfg.DeviceToken) == "" {
		return fmt.Errorf("device token is required")
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create agent storage dir: %w", err)
		}
	}

	store, err := sqlite.OpenDevice(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open device sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close device sqlite store: %v", closeErr)
		}
	}()

	client := app.NewClient(cfg.ServerURL, cfg.DeviceToken, nil)
	applier := projection.NewApplier(store, store)
	agent := outbox.New(cfg.DeviceID, store, client, applier, outbox.Config{
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
		MaxAttempts:  cfg.MaxAttempts,
		AckRetention: cfg.AckRetention,
	})

	if !cfg.StreamOff {
		go streamLoop(ctx, client, agent, cfg.LocationID, cfg.PollInterval)
	}

	log.Printf("posagent syncing device=%s location=%s against %s", cfg.DeviceID, cfg.LocationID, cfg.ServerURL)
	if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// streamLoop keeps a live stream attached, reconnecting after drops.
// Missed events are covered by the agent's pull cursor, so the loop only
// has to care about staying subscribed.
func streamLoop(ctx context.Context, client *app.Client, agent *outbox.Agent, locationID string, retry time.Duration) {
	if retry <= 0 {
		retry = 2 * time.Second
	}
	for {
		err := client.ListenStream(ctx, locationID, func(env dispatch.Envelope) {
			evt := dispatch.EnvelopeEvent(env)
			if applyErr := agent.ObserveRemote(ctx, evt); applyErr != nil {
				log.Printf("posagent: apply pushed event order=%s seq=%d: %v", env.OrderID, env.Seq, applyErr)
			}
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("posagent: stream disconnected: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}
