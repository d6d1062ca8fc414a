package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	internal_errors "github.com/readshelf/readshelf/internal/errors"
)

// =========================================================================
// Token blacklist (revocation store)
//
// The exact signed token string is the key, so a revocation check is a
// single indexed lookup with no need to decode the token first. The unique
// constraint on the token column, not any application-level lock, is what
// arbitrates concurrent consumption of the same single-use token.
// =========================================================================

// BlacklistToken records a token as permanently rejected. The insert is
// conditional: if the token is already present the call fails with a
// revocation error, which callers use as the "someone consumed it first"
// signal for single-use tokens.
func (s *Storage) BlacklistToken(tokenStr string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.blacklistToken(tx, tokenStr, expiresAt)
	})
}

// IsTokenBlacklisted is an exact-match lookup on the connection pool.
func (s *Storage) IsTokenBlacklisted(tokenStr string) (bool, error) {
	return s.isTokenBlacklisted(s.db, tokenStr)
}

// DeleteExpiredTokens removes rows whose expiry has passed. Called by the
// background sweeper, never on the request path. Deleting an expired row is
// always safe: the token it guarded is already rejected by the expiry check.
func (s *Storage) DeleteExpiredTokens() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var deleted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		deleted, err = s.deleteExpiredTokens(tx)
		return err
	})
	return deleted, err
}

func (s *Storage) blacklistToken(q Querier, tokenStr string, expiresAt time.Time) error {
	// expires_at is a tz-less column compared against utc wall clock;
	// binding a zoned value would store the local clock reading instead.
	result, err := q.Exec(`
		INSERT INTO token_blacklist (uid, token, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING`,
		uuid.New(), tokenStr, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows for blacklist insert: %w", err)
	}
	if rowsAffected == 0 {
		// Token row already present: a concurrent caller won the race.
		return internal_errors.TokenRevoked()
	}
	return nil
}

func (s *Storage) isTokenBlacklisted(q Querier, tokenStr string) (bool, error) {
	var exists bool
	err := q.QueryRow("SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE token = $1)", tokenStr).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist status: %w", err)
	}
	return exists, nil
}

func (s *Storage) deleteExpiredTokens(q Querier) (int64, error) {
	result, err := q.Exec("DELETE FROM token_blacklist WHERE expires_at < now() at time zone 'utc'")
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired blacklisted tokens: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows for blacklist sweep: %w", err)
	}
	return deleted, nil
}
