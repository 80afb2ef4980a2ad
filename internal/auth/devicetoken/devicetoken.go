// Package devicetoken issues and verifies the signed credentials POS
// devices present on submit, pull, and stream requests. Tokens are
// HS256 over a fleet shared secret and bind a device to one location.
package devicetoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/GetwithitMan/gwi-pos-sub015/internal/platform/errors"
)

// Config defines how device tokens are signed and verified.
type Config struct {
	Issuer   string
	Audience string
	Secret   []byte
	TTL      time.Duration
	Now      func() time.Time
}

// Claims captures a validated device credential.
type Claims struct {
	DeviceID   string
	LocationID string
	ExpiresAt  time.Time
	IssuedAt   time.Time
	JWTID      string
}

// deviceClaims is the internal claims type used for JWT parsing.
type deviceClaims struct {
	jwt.RegisteredClaims
	DeviceID   string `json:"device_id"`
	LocationID string `json:"location_id"`
}

const minSecretBytes = 32

// Issue signs a token for a device at a location.
func Issue(deviceID, locationID string, cfg Config) (string, error) {
	deviceID = strings.TrimSpace(deviceID)
	locationID = strings.TrimSpace(locationID)
	if deviceID == "" {
		return "", errors.New("device id is required")
	}
	if locationID == "" {
		return "", errors.New("location id is required")
	}
	if len(cfg.Secret) < minSecretBytes {
		return "", errors.New("device token secret is too short")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	issuedAt := now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, deviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			ID:        uuid.NewString(),
		},
		DeviceID:   deviceID,
		LocationID: locationID,
	})
	return token.SignedString(cfg.Secret)
}

// Validate verifies a device token and returns its claims.
func Validate(raw string, cfg Config) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, apperrors.New(apperrors.CodeDeviceTokenRequired, "device token is required")
	}
	if len(cfg.Secret) < minSecretBytes {
		return Claims{}, errors.New("device token verifier is not configured")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	var parsed deviceClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if cfg.Issuer != "" && parsed.Issuer != cfg.Issuer {
		return Claims{}, apperrors.WithMetadata(apperrors.CodeDeviceTokenInvalid,
			"device token issuer mismatch", map[string]string{"Field": "issuer"})
	}
	if cfg.Audience != "" && !audienceContains(parsed.Audience, cfg.Audience) {
		return Claims{}, apperrors.WithMetadata(apperrors.CodeDeviceTokenInvalid,
			"device token audience mismatch", map[string]string{"Field": "audience"})
	}
	if strings.TrimSpace(parsed.DeviceID) == "" {
		return Claims{}, apperrors.New(apperrors.CodeDeviceTokenInvalid, "device token device_id is required")
	}
	if strings.TrimSpace(parsed.LocationID) == "" {
		return Claims{}, apperrors.New(apperrors.CodeDeviceTokenInvalid, "device token location_id is required")
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, apperrors.New(apperrors.CodeDeviceTokenInvalid, "device token exp is required")
	}
	if !parsed.ExpiresAt.Time.UTC().After(now().UTC()) {
		return Claims{}, apperrors.New(apperrors.CodeDeviceTokenInvalid, "device token is expired")
	}

	claims := Claims{
		DeviceID:   parsed.DeviceID,
		LocationID: parsed.LocationID,
		ExpiresAt:  parsed.ExpiresAt.Time.UTC(),
		JWTID:      parsed.ID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperrors.New(apperrors.CodeDeviceTokenInvalid, "device token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeDeviceTokenInvalid, "device token alg is invalid")
	}
	return apperrors.New(apperrors.CodeDeviceTokenInvalid, "device token is invalid")
}

func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}
