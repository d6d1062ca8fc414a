package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/readshelf/readshelf/internal/domain"
	internal_errors "github.com/readshelf/readshelf/internal/errors"
	"github.com/readshelf/readshelf/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func resetFixture(t *testing.T) (*PasswordReset, *MockUserStore, *MockRevocationStore, *MockResetLedger, *MockMailer, domain.User) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.MinCost)
	require.NoError(t, err)
	user := domain.User{
		Uid:          uuid.New(),
		Username:     "johndoe",
		Email:        "johndoe@example.com",
		IsVerified:   true,
		IsActive:     true,
		PasswordHash: string(hash),
	}
	revoked := &MockRevocationStore{}
	users := &MockUserStore{
		UserByEmailFunc: func(email string) (domain.User, error) {
			if email == user.Email {
				return user, nil
			}
			return domain.User{}, internal_errors.UserNotFound()
		},
		UserByUidFunc: func(uid uuid.UUID) (domain.User, error) {
			if uid == user.Uid {
				return user, nil
			}
			return domain.User{}, internal_errors.UserNotFound()
		},
		// Consume the token against the revocation store before mutating,
		// mirroring the storage contract.
		UpdatePasswordFunc: func(uid uuid.UUID, passwordHash, tokenStr string, tokenExpiresAt time.Time) error {
			if err := revoked.BlacklistToken(tokenStr, tokenExpiresAt); err != nil {
				return err
			}
			if uid != user.Uid {
				return internal_errors.UserNotFound()
			}
			return nil
		},
	}
	ledger := &MockResetLedger{}
	mail := &MockMailer{}
	reset := NewPasswordReset(users, revoked, ledger, testCodec(), mail, testPublicConfig())
	return reset, users, revoked, ledger, mail, user
}

func TestForgotPassword(t *testing.T) {
	t.Run("sends reset link and records the request", func(t *testing.T) {
		reset, _, _, ledger, mail, user := resetFixture(t)

		err := reset.ForgotPassword("johndoe@example.com")
		require.NoError(t, err)

		assert.Equal(t, []string{"johndoe@example.com"}, ledger.Recorded())

		sent := mail.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "password_reset.html", sent[0].Template)

		link := sent[0].Context["link"]
		require.Contains(t, link, "https://readshelf.test/auth/password-reset/")
		tokenStr := strings.TrimPrefix(link, "https://readshelf.test/auth/password-reset/")

		claims, err := reset.codec.Verify(tokenStr, token.PurposePasswordReset)
		require.NoError(t, err)
		assert.Equal(t, user.Uid, claims.UserUid)
	})

	t.Run("unknown email still consumes allowance", func(t *testing.T) {
		reset, _, _, ledger, mail, _ := resetFixture(t)

		err := reset.ForgotPassword("nobody@example.com")
		require.Error(t, err)
		assert.Equal(t, "user_not_found", internal_errors.Code(err))

		// The attempt counts against the address even though no mail went out.
		assert.Equal(t, []string{"nobody@example.com"}, ledger.Recorded())
		assert.Empty(t, mail.Sent())
	})

	t.Run("limit reached within lookback", func(t *testing.T) {
		reset, _, _, ledger, mail, _ := resetFixture(t)

		for i := 0; i < 5; i++ {
			require.NoError(t, reset.ForgotPassword("johndoe@example.com"))
		}

		err := reset.ForgotPassword("johndoe@example.com")
		require.Error(t, err)
		assert.Equal(t, "reset_limit_exceeded", internal_errors.Code(err))

		// The rejected attempt is not recorded; the window does not extend.
		assert.Len(t, ledger.Recorded(), 5)
		assert.Len(t, mail.Sent(), 5)
	})

	t.Run("requests outside lookback do not count", func(t *testing.T) {
		reset, _, _, ledger, _, _ := resetFixture(t)

		ledger.CountResetRequestsFunc = func(email string, since time.Time) (int, error) {
			// Five earlier requests, all older than the window.
			assert.WithinDuration(t, time.Now().Add(-15*24*time.Hour), since, 2*time.Second)
			return 0, nil
		}

		require.NoError(t, reset.ForgotPassword("johndoe@example.com"))
	})

	t.Run("limit is per address", func(t *testing.T) {
		reset, users, _, _, _, _ := resetFixture(t)

		other := domain.User{Uid: uuid.New(), Username: "alice", Email: "alice@example.com", IsVerified: true, IsActive: true}
		base := users.UserByEmailFunc
		users.UserByEmailFunc = func(email string) (domain.User, error) {
			if email == other.Email {
				return other, nil
			}
			return base(email)
		}

		for i := 0; i < 5; i++ {
			require.NoError(t, reset.ForgotPassword("johndoe@example.com"))
		}
		require.Error(t, reset.ForgotPassword("johndoe@example.com"))

		// A different address keeps its own allowance.
		require.NoError(t, reset.ForgotPassword("alice@example.com"))
	})
}

func TestResetPassword(t *testing.T) {
	mintReset := func(t *testing.T, reset *PasswordReset, uid uuid.UUID) string {
		t.Helper()
		tokenStr, err := reset.codec.Mint(token.PurposePasswordReset, uid, time.Now().Add(15*time.Minute))
		require.NoError(t, err)
		return tokenStr
	}

	t.Run("successful reset", func(t *testing.T) {
		reset, users, revoked, _, mail, user := resetFixture(t)

		var updatedHash string
		users.UpdatePasswordFunc = func(uid uuid.UUID, passwordHash, tokenStr string, tokenExpiresAt time.Time) error {
			assert.Equal(t, user.Uid, uid)
			if err := revoked.BlacklistToken(tokenStr, tokenExpiresAt); err != nil {
				return err
			}
			updatedHash = passwordHash
			return nil
		}

		tokenStr := mintReset(t, reset, user.Uid)
		err := reset.ResetPassword(tokenStr, "new-password", "new-password")
		require.NoError(t, err)

		require.NotEmpty(t, updatedHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(updatedHash), []byte("new-password")))

		blacklisted, err := revoked.IsTokenBlacklisted(tokenStr)
		require.NoError(t, err)
		assert.True(t, blacklisted, "consumed reset token must be blacklisted")

		sent := mail.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "password_changed.html", sent[0].Template)
	})

	t.Run("token is single use", func(t *testing.T) {
		reset, _, _, _, _, user := resetFixture(t)

		tokenStr := mintReset(t, reset, user.Uid)
		require.NoError(t, reset.ResetPassword(tokenStr, "new-password", "new-password"))

		err := reset.ResetPassword(tokenStr, "another-password", "another-password")
		require.Error(t, err)
		assert.Equal(t, "token_revoked", internal_errors.Code(err))
	})

	t.Run("password confirmation mismatch checked first", func(t *testing.T) {
		reset, _, _, _, _, _ := resetFixture(t)

		// Even a garbage token reports the mismatch, not a token error.
		err := reset.ResetPassword("not-a-token", "one", "two")
		require.Error(t, err)
		assert.Equal(t, "password_mismatch", internal_errors.Code(err))
	})

	t.Run("mismatch does not consume the token", func(t *testing.T) {
		reset, _, _, _, _, user := resetFixture(t)

		tokenStr := mintReset(t, reset, user.Uid)
		err := reset.ResetPassword(tokenStr, "one", "two")
		require.Error(t, err)

		require.NoError(t, reset.ResetPassword(tokenStr, "new-password", "new-password"))
	})

	t.Run("expired token", func(t *testing.T) {
		reset, _, _, _, _, user := resetFixture(t)

		expired, err := reset.codec.Mint(token.PurposePasswordReset, user.Uid, time.Now().Add(-time.Minute))
		require.NoError(t, err)

		err = reset.ResetPassword(expired, "new-password", "new-password")
		require.Error(t, err)
		assert.Equal(t, "token_expired", internal_errors.Code(err))
	})

	t.Run("activation token rejected", func(t *testing.T) {
		reset, _, _, _, _, user := resetFixture(t)

		wrongPurpose, err := reset.codec.Mint(token.PurposeActivation, user.Uid, time.Now().Add(15*time.Minute))
		require.NoError(t, err)

		err = reset.ResetPassword(wrongPurpose, "new-password", "new-password")
		require.Error(t, err)
		assert.Equal(t, "invalid_token", internal_errors.Code(err))
	})

	t.Run("failed reset leaves old password usable", func(t *testing.T) {
		reset, users, _, _, _, user := resetFixture(t)

		users.UpdatePasswordFunc = func(uuid.UUID, string, string, time.Time) error {
			t.Fatal("UpdatePassword must not be called")
			return nil
		}

		tokenStr := mintReset(t, reset, user.Uid)
		err := reset.ResetPassword(tokenStr, "one", "two")
		require.Error(t, err)

		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("old-password")))
	})
}

func TestSweeper(t *testing.T) {
	t.Run("sweeps run on their tickers", func(t *testing.T) {
		blacklistSwept := make(chan struct{}, 1)
		resetSwept := make(chan struct{}, 1)

		revoked := &MockRevocationStore{
			DeleteExpiredTokensFunc: func() (int64, error) {
				select {
				case blacklistSwept <- struct{}{}:
				default:
				}
				return 3, nil
			},
		}
		ledger := &MockResetLedger{
			DeleteExpiredResetLogsFunc: func(before time.Time) (int64, error) {
				assert.WithinDuration(t, time.Now().Add(-15*24*time.Hour), before, 2*time.Second)
				select {
				case resetSwept <- struct{}{}:
				default:
				}
				return 1, nil
			},
		}

		cfg := testPublicConfig()
		cfg.BlacklistSweepInterval = 10 * time.Millisecond
		cfg.ResetLogSweepInterval = 10 * time.Millisecond

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		NewSweeper(revoked, ledger, cfg).Start(ctx)

		select {
		case <-blacklistSwept:
		case <-time.After(time.Second):
			t.Fatal("blacklist sweep never ran")
		}
		select {
		case <-resetSwept:
		case <-time.After(time.Second):
			t.Fatal("reset log sweep never ran")
		}
	})

	t.Run("sweep error does not stop the loop", func(t *testing.T) {
		calls := make(chan int, 4)
		n := 0
		revoked := &MockRevocationStore{
			DeleteExpiredTokensFunc: func() (int64, error) {
				n++
				calls <- n
				if n == 1 {
					return 0, fmt.Errorf("connection refused")
				}
				return 0, nil
			},
		}

		cfg := testPublicConfig()
		cfg.BlacklistSweepInterval = 10 * time.Millisecond
		cfg.ResetLogSweepInterval = time.Hour

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		NewSweeper(revoked, &MockResetLedger{}, cfg).Start(ctx)

		deadline := time.After(time.Second)
		for {
			select {
			case n := <-calls:
				if n >= 2 {
					return
				}
			case <-deadline:
				t.Fatal("sweep did not run again after a failure")
			}
		}
	})
}
