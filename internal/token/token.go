// Package token implements the signed, timestamped credentials used by the
// activation, password-reset and session flows. One process-wide secret is
// shared by all three purposes; the actual signing key is derived per purpose,
// so a token minted for one flow fails signature verification in another.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	internal_errors "github.com/readshelf/readshelf/internal/errors"
	"github.com/readshelf/readshelf/internal/logger"
)

type Purpose string

const (
	PurposeActivation    Purpose = "activation"
	PurposePasswordReset Purpose = "password_reset"
	PurposeSession       Purpose = "session"
)

// Claims is the payload embedded into every minted token. ExpiresAt is the
// business expiry; the codec itself never checks it, because different flows
// enforce it against wall-clock time at different points.
type Claims struct {
	UserUid   uuid.UUID
	Purpose   Purpose
	ExpiresAt time.Time
	IssuedAt  time.Time
}

type Codec struct {
	secret string
	maxAge time.Duration // codec-level staleness bound, 0 disables
}

func New(secret string, maxAge time.Duration) *Codec {
	return &Codec{secret: secret, maxAge: maxAge}
}

// key derives the purpose-specific signing key from the shared secret.
func (c *Codec) key(purpose Purpose) []byte {
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte("readshelf.token." + string(purpose)))
	return mac.Sum(nil)
}

// Mint encodes and signs the payload. No side effects, no storage.
func (c *Codec) Mint(purpose Purpose, userUid uuid.UUID, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"user_uid":   userUid.String(),
		"purpose":    string(purpose),
		"expires_at": float64(expiresAt.UnixNano()) / float64(time.Second),
		"iat":        time.Now().Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.key(purpose))
	if err != nil {
		logger.Log.Error("failed to sign token", "purpose", purpose, "error", err)
		return "", err
	}
	return signed, nil
}

// Verify checks signature, structure and codec-level staleness for a token
// expected to carry the given purpose. The embedded ExpiresAt is returned
// untouched; enforcing it is the caller's job.
func (c *Codec) Verify(tokenStr string, purpose Purpose) (Claims, error) {
	parsed, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, internal_errors.InvalidToken()
		}
		return c.key(purpose), nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, internal_errors.InvalidToken()
	}

	claims, err := extractClaims(parsed)
	if err != nil {
		return Claims{}, err
	}
	if claims.Purpose != purpose {
		return Claims{}, internal_errors.InvalidToken()
	}
	if c.maxAge > 0 && !claims.IssuedAt.IsZero() && time.Since(claims.IssuedAt) > c.maxAge {
		return Claims{}, internal_errors.TokenExpired()
	}
	return claims, nil
}

// Decode extracts claims without verifying the signature. Used only where a
// token is being revoked (logout), where even a forged string is safe to
// blacklist and the embedded expiry merely bounds how long the row lives.
func (c *Codec) Decode(tokenStr string) (Claims, error) {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(tokenStr, jwt.MapClaims{})
	if err != nil {
		return Claims{}, internal_errors.InvalidToken()
	}
	return extractClaims(parsed)
}

func extractClaims(parsed *jwt.Token) (Claims, error) {
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, internal_errors.InvalidToken()
	}

	uidStr, ok := mapClaims["user_uid"].(string)
	if !ok {
		return Claims{}, internal_errors.InvalidToken()
	}
	userUid, err := uuid.Parse(uidStr)
	if err != nil {
		return Claims{}, internal_errors.InvalidToken()
	}

	// time.Unix(0, ...) overflows past ~year 2262; an expiry out of that
	// range is garbage, not a credential.
	const maxExpiresAt = float64(math.MaxInt64) / float64(time.Second)
	expiresAt, ok := mapClaims["expires_at"].(float64)
	if !ok || expiresAt <= 0 || expiresAt > maxExpiresAt {
		return Claims{}, internal_errors.InvalidToken()
	}

	purpose, _ := mapClaims["purpose"].(string)

	claims := Claims{
		UserUid:   userUid,
		Purpose:   Purpose(purpose),
		ExpiresAt: time.Unix(0, int64(expiresAt*float64(time.Second))),
	}
	if iat, ok := mapClaims["iat"].(float64); ok {
		claims.IssuedAt = time.Unix(int64(iat), 0)
	}
	return claims, nil
}
