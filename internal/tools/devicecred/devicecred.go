// Package devicecred issues device credentials for fleet provisioning.
package devicecred

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/auth/devicetoken"
)

// Config holds configuration for device credential issuance.
type Config struct {
	DeviceID   string
	LocationID string
	Secret     string
	Issuer     string
	Audience   string
	TTL        time.Duration
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{
		Issuer:   "gwi-pos-syncd",
		Audience: "gwi-pos-devices",
		TTL:      12 * time.Hour,
	}
	fs.StringVar(&cfg.DeviceID, "device-id", cfg.DeviceID, "device identifier to embed in the token")
	fs.StringVar(&cfg.LocationID, "location-id", cfg.LocationID, "location the device is registered at")
	fs.StringVar(&cfg.Secret, "secret", cfg.Secret, "fleet shared signing secret")
	fs.StringVar(&cfg.Issuer, "issuer", cfg.Issuer, "token issuer")
	fs.StringVar(&cfg.Audience, "audience", cfg.Audience, "token audience")
	fs.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run issues the token and writes it to out.
func Run(cfg Config, out io.Writer) error {
	if out == nil {
		return errors.New("output is required")
	}
	token, err := devicetoken.Issue(cfg.DeviceID, cfg.LocationID, devicetoken.Config{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		Secret:   []byte(cfg.Secret),
		TTL:      cfg.TTL,
	})
	if err != nil {
		return fmt.Errorf("issue device token: %w", err)
	}
	_, err = fmt.Fprintf(out, "GWI_POS_AGENT_DEVICE_TOKEN=%s\n", token)
	return err
}
