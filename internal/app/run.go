package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/auth/devicetoken"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/platform/timeouts"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/storage/sqlite"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/sync/dispatch"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/sync/sequencer"
)

// RuntimeConfig controls authority startup.
type RuntimeConfig struct {
	Port            int
	DBPath          string
	TokenIssuer     string
	TokenAudience   string
	TokenSecret     string
	ShutdownTimeout time.Duration
}

const (
	defaultSyncdPort = 8432
	defaultSyncdDB   = "data/syncd.db"
)

// Run starts the authority: opens the event store, wires the sequencer
// and dispatch hub, and serves HTTP until the context is canceled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultSyncdPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultSyncdDB
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = timeouts.Shutdown
	}
	if strings.TrimSpace(cfg.TokenSecret) == "" {
		return fmt.Errorf("device token secret is required")
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}

	registry := event.NewRegistry()
	store, err := sqlite.OpenAuthority(cfg.DBPath, registry)
	if err != nil {
		return fmt.Errorf("open authority sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close authority sqlite store: %v", closeErr)
		}
	}()

	hub := dispatch.NewHub()
	seq := sequencer.New(store, registry, hub)
	server := NewServer(seq, store, hub, devicetoken.Config{
		Issuer:   cfg.TokenIssuer,
		Audience: cfg.TokenAudience,
		Secret:   []byte(cfg.TokenSecret),
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	log.Printf("syncd listening at %s", httpServer.Addr)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-serveErr
	return nil
}
