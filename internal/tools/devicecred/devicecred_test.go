package devicecred

import (
	"bytes"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/auth/devicetoken"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("devicecred", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Issuer != "gwi-pos-syncd" {
		t.Fatalf("expected default issuer, got %q", cfg.Issuer)
	}
	if cfg.Audience != "gwi-pos-devices" {
		t.Fatalf("expected default audience, got %q", cfg.Audience)
	}
	if cfg.TTL != 12*time.Hour {
		t.Fatalf("expected default ttl 12h, got %s", cfg.TTL)
	}
}

func TestParseConfigOverride(t *testing.T) {
	fs := flag.NewFlagSet("devicecred", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-device-id", "device-7", "-location-id", "loc-2", "-ttl", "30m"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DeviceID != "device-7" {
		t.Fatalf("expected flag device id, got %q", cfg.DeviceID)
	}
	if cfg.LocationID != "loc-2" {
		t.Fatalf("expected flag location id, got %q", cfg.LocationID)
	}
	if cfg.TTL != 30*time.Minute {
		t.Fatalf("expected ttl 30m, got %s", cfg.TTL)
	}
}

func TestRunWritesTokenEnvLine(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := Config{
		DeviceID:   "device-7",
		LocationID: "loc-2",
		Secret:     testSecret,
		Issuer:     "gwi-pos-syncd",
		Audience:   "gwi-pos-devices",
		TTL:        time.Hour,
	}
	if err := Run(cfg, buf); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := strings.TrimSpace(buf.String())
	const prefix = "GWI_POS_AGENT_DEVICE_TOKEN="
	if !strings.HasPrefix(got, prefix) {
		t.Fatalf("expected env prefix, got %q", got)
	}

	token := strings.TrimPrefix(got, prefix)
	claims, err := devicetoken.Validate(token, devicetoken.Config{
		Issuer:   "gwi-pos-syncd",
		Audience: "gwi-pos-devices",
		Secret:   []byte(testSecret),
	})
	if err != nil {
		t.Fatalf("validate issued token: %v", err)
	}
	if claims.DeviceID != "device-7" || claims.LocationID != "loc-2" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestRunNilOutput(t *testing.T) {
	if err := Run(Config{}, nil); err == nil {
		t.Fatal("expected error for nil output")
	}
}

func TestRunRejectsMissingIdentity(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Run(Config{Secret: testSecret, TTL: time.Hour}, buf); err == nil {
		t.Fatal("expected error for missing device identity")
	}
}

func TestRunRejectsShortSecret(t *testing.T) {
	buf := &bytes.Buffer{}
	cfg := Config{DeviceID: "device-7", LocationID: "loc-2", Secret: "short", TTL: time.Hour}
	if err := Run(cfg, buf); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestParseConfigBadArgs(t *testing.T) {
	fs := flag.NewFlagSet("devicecred", flag.ContinueOnError)
	fs.SetOutput(&bytes.Buffer{})
	if _, err := ParseConfig(fs, []string{"-invalid"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}
