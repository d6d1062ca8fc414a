package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/readshelf/readshelf/internal/domain"
	internal_errors "github.com/readshelf/readshelf/internal/errors"
)

const uniqueViolation = "23505"

const userColumns = `uid, username, email, first_name, last_name, role, is_verified, is_active, password_hash,
	(created_at at time zone 'utc'), (updated_at at time zone 'utc')`

// =========================================================================
// Public Methods (satisfy the service user store interfaces)
// =========================================================================

// SaveUser inserts a new user record and returns it with the generated uid
// and timestamps. A duplicate email or username surfaces as a conflict.
func (s *Storage) SaveUser(user domain.User) (domain.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var saved domain.User
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		saved, err = s.saveUser(tx, user)
		return err
	})
	return saved, err
}

// UserByEmail is a read-only lookup on the connection pool.
func (s *Storage) UserByEmail(email string) (domain.User, error) {
	return s.userBy(s.db, "email", email)
}

// UserByUid resolves the subject of a verified token to the current record.
func (s *Storage) UserByUid(uid uuid.UUID) (domain.User, error) {
	return s.userBy(s.db, "uid", uid)
}

// ActivateUser consumes the activation token and flips both account flags
// in one transaction. The conditional blacklist insert decides a replay
// race, and a failure on the update rolls the consumption back, so the
// token stays usable. The two flags always move together; there is no
// state with only one of them set.
func (s *Storage) ActivateUser(uid uuid.UUID, tokenStr string, tokenExpiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.blacklistToken(tx, tokenStr, tokenExpiresAt); err != nil {
			return err
		}
		return s.activateUser(tx, uid)
	})
}

// UpdatePassword consumes the reset token and replaces the stored password
// hash, with the same single-transaction contract as ActivateUser.
func (s *Storage) UpdatePassword(uid uuid.UUID, passwordHash, tokenStr string, tokenExpiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.blacklistToken(tx, tokenStr, tokenExpiresAt); err != nil {
			return err
		}
		return s.updatePassword(tx, uid, passwordHash)
	})
}

// =========================================================================
// Internal Methods (Core Database Logic)
// These methods accept a Querier and are transaction-agnostic.
// =========================================================================

func (s *Storage) saveUser(q Querier, user domain.User) (domain.User, error) {
	role := user.Role
	if role == "" {
		role = domain.DefaultRole
	}

	var saved domain.User
	err := q.QueryRow(`
		INSERT INTO users (uid, username, email, first_name, last_name, role, is_verified, is_active, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, false, $7, now() at time zone 'utc', now() at time zone 'utc')
		RETURNING `+userColumns,
		uuid.New(), user.Username, user.Email, user.FirstName, user.LastName, role, user.PasswordHash,
	).Scan(
		&saved.Uid, &saved.Username, &saved.Email, &saved.FirstName, &saved.LastName,
		&saved.Role, &saved.IsVerified, &saved.IsActive, &saved.PasswordHash,
		&saved.CreatedAt, &saved.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.User{}, internal_errors.UserExists()
		}
		return domain.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return saved, nil
}

func (s *Storage) userBy(q Querier, column string, value interface{}) (domain.User, error) {
	var user domain.User
	err := q.QueryRow(
		fmt.Sprintf("SELECT %s FROM users WHERE %s = $1", userColumns, column),
		value,
	).Scan(
		&user.Uid, &user.Username, &user.Email, &user.FirstName, &user.LastName,
		&user.Role, &user.IsVerified, &user.IsActive, &user.PasswordHash,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, internal_errors.UserNotFound()
		}
		return domain.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func (s *Storage) activateUser(q Querier, uid uuid.UUID) error {
	result, err := q.Exec(`
		UPDATE users SET is_verified = true, is_active = true, updated_at = now() at time zone 'utc'
		WHERE uid = $1`,
		uid,
	)
	if err != nil {
		return fmt.Errorf("failed to activate user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows for activation: %w", err)
	}
	if rowsAffected == 0 {
		return internal_errors.UserNotFound()
	}
	return nil
}

func (s *Storage) updatePassword(q Querier, uid uuid.UUID, passwordHash string) error {
	result, err := q.Exec(`
		UPDATE users SET password_hash = $1, updated_at = now() at time zone 'utc'
		WHERE uid = $2`,
		passwordHash, uid,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows for password update: %w", err)
	}
	if rowsAffected == 0 {
		return internal_errors.UserNotFound()
	}
	return nil
}
