package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =========================================================================
// Password reset ledger (rate limit)
//
// Append-mostly log keyed by the raw email string, with no foreign key to
// users: the limit must hold for emails that never matched a user at all.
// =========================================================================

// LogResetRequest appends one timestamped entry for the email. It is called
// for every forgot-password request that passes the limit check, whether or
// not the email belongs to a registered user.
func (s *Storage) LogResetRequest(email string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.logResetRequest(tx, email)
	})
}

// CountResetRequests returns the number of entries for the email newer than
// the cutoff.
func (s *Storage) CountResetRequests(email string, since time.Time) (int, error) {
	return s.countResetRequests(s.db, email, since)
}

// DeleteExpiredResetLogs removes entries older than the cutoff. Called by
// the background sweeper only.
func (s *Storage) DeleteExpiredResetLogs(before time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var deleted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		deleted, err = s.deleteExpiredResetLogs(tx, before)
		return err
	})
	return deleted, err
}

func (s *Storage) logResetRequest(q Querier, email string) error {
	_, err := q.Exec(`
		INSERT INTO password_reset_log (uid, user_email, requested_at)
		VALUES ($1, $2, now() at time zone 'utc')`,
		uuid.New(), email,
	)
	if err != nil {
		return fmt.Errorf("failed to log password reset request: %w", err)
	}
	return nil
}

func (s *Storage) countResetRequests(q Querier, email string, since time.Time) (int, error) {
	var count int
	err := q.QueryRow(`
		SELECT COUNT(*) FROM password_reset_log
		WHERE user_email = $1 AND requested_at >= $2`,
		email, since.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count password reset requests: %w", err)
	}
	return count, nil
}

func (s *Storage) deleteExpiredResetLogs(q Querier, before time.Time) (int64, error) {
	// requested_at rows are stored as utc wall clock, compare likewise.
	result, err := q.Exec("DELETE FROM password_reset_log WHERE requested_at < $1", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reset logs: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows for reset log sweep: %w", err)
	}
	return deleted, nil
}
