package devicetoken

import (
	"strings"
	"testing"
	"time"

	apperrors "github.com/GetwithitMan/gwi-pos-sub015/internal/platform/errors"
)

func testConfig() Config {
	return Config{
		Issuer:   "gwi-pos-syncd",
		Audience: "gwi-pos-devices",
		Secret:   []byte("0123456789abcdef0123456789abcdef"),
		TTL:      time.Hour,
	}
}

func TestIssueValidateRoundTrip(t *testing.T) {
	cfg := testConfig()

	raw, err := Issue("device-1", "loc-1", cfg)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if strings.Count(raw, ".") != 2 {
		t.Fatalf("expected a compact JWT, got %q", raw)
	}

	claims, err := Validate(raw, cfg)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.DeviceID != "device-1" || claims.LocationID != "loc-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.JWTID == "" {
		t.Fatal("expected a token id")
	}
	if !claims.ExpiresAt.After(claims.IssuedAt) {
		t.Fatalf("expected expiry after issuance: %+v", claims)
	}
}

func TestIssueRequiresIdentity(t *testing.T) {
	cfg := testConfig()
	if _, err := Issue(" ", "loc-1", cfg); err == nil {
		t.Fatal("expected error for empty device id")
	}
	if _, err := Issue("device-1", "", cfg); err == nil {
		t.Fatal("expected error for empty location id")
	}
}

func TestIssueRequiresStrongSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Secret = []byte("short")
	if _, err := Issue("device-1", "loc-1", cfg); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestValidateRequiresToken(t *testing.T) {
	_, err := Validate("  ", testConfig())
	if apperrors.CodeOf(err) != apperrors.CodeDeviceTokenRequired {
		t.Fatalf("expected token required code, got %v", err)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	cfg := testConfig()
	raw, err := Issue("device-1", "loc-1", cfg)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := cfg
	other.Secret = []byte("ffffffffffffffffffffffffffffffff")
	_, err = Validate(raw, other)
	if apperrors.CodeOf(err) != apperrors.CodeDeviceTokenInvalid {
		t.Fatalf("expected invalid token code, got %v", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	cfg := testConfig()
	cfg.Now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	raw, err := Issue("device-1", "loc-1", cfg)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cfg.Now = nil
	_, err = Validate(raw, cfg)
	if apperrors.CodeOf(err) != apperrors.CodeDeviceTokenInvalid {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestValidateRejectsIssuerMismatch(t *testing.T) {
	cfg := testConfig()
	raw, err := Issue("device-1", "loc-1", cfg)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := cfg
	other.Issuer = "someone-else"
	_, err = Validate(raw, other)
	if apperrors.CodeOf(err) != apperrors.CodeDeviceTokenInvalid {
		t.Fatalf("expected issuer mismatch rejected, got %v", err)
	}
}

func TestValidateRejectsAudienceMismatch(t *testing.T) {
	cfg := testConfig()
	raw, err := Issue("device-1", "loc-1", cfg)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := cfg
	other.Audience = "another-fleet"
	_, err = Validate(raw, other)
	if apperrors.CodeOf(err) != apperrors.CodeDeviceTokenInvalid {
		t.Fatalf("expected audience mismatch rejected, got %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	_, err := Validate("not.a.token", testConfig())
	if apperrors.CodeOf(err) != apperrors.CodeDeviceTokenInvalid {
		t.Fatalf("expected invalid token code, got %v", err)
	}
}

func TestValidateWithoutSecretConfigured(t *testing.T) {
	cfg := testConfig()
	raw, err := Issue("device-1", "loc-1", cfg)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cfg.Secret = nil
	if _, err := Validate(raw, cfg); err == nil {
		t.Fatal("expected error when verifier has no secret")
	}
}
