package service

import (
	"fmt"
	"time"

	"github.com/readshelf/readshelf/internal/config"
	internal_errors "github.com/readshelf/readshelf/internal/errors"
	"github.com/readshelf/readshelf/internal/logger"
	"github.com/readshelf/readshelf/internal/mailer"
	"github.com/readshelf/readshelf/internal/metrics"
	"github.com/readshelf/readshelf/internal/token"
	"golang.org/x/crypto/bcrypt"
)

type PasswordResetService interface {
	ForgotPassword(email string) error
	ResetPassword(tokenStr, newPassword, confirmPassword string) error
}

type ResetLedger interface {
	LogResetRequest(email string) error
	CountResetRequests(email string, since time.Time) (int, error)
	DeleteExpiredResetLogs(before time.Time) (int64, error)
}

type PasswordReset struct {
	users   UserStore
	revoked RevocationStore
	ledger  ResetLedger
	codec   TokenCodec
	mail    Mailer
	cfg     *config.Public
}

func NewPasswordReset(users UserStore, revoked RevocationStore, ledger ResetLedger, codec TokenCodec, mail Mailer, cfg *config.Public) *PasswordReset {
	return &PasswordReset{
		users:   users,
		revoked: revoked,
		ledger:  ledger,
		codec:   codec,
		mail:    mail,
		cfg:     cfg,
	}
}

// ForgotPassword mints a reset token and mails the reset link, bounded by
// the per-email allowance. The attempt is recorded before the user lookup,
// so probing unknown addresses consumes the same allowance as real
// requests.
func (p *PasswordReset) ForgotPassword(email string) error {
	email = normalizeEmail(email)

	since := time.Now().Add(-p.cfg.ResetLookback)
	count, err := p.ledger.CountResetRequests(email, since)
	if err != nil {
		return err
	}
	if count >= p.cfg.ResetMaxRequests {
		metrics.PasswordResetRequests.WithLabelValues("limit_exceeded").Inc()
		return internal_errors.ResetLimitExceeded()
	}

	if err := p.ledger.LogResetRequest(email); err != nil {
		return err
	}

	user, err := p.users.UserByEmail(email)
	if err != nil {
		if internal_errors.IsNotFound(err) {
			metrics.PasswordResetRequests.WithLabelValues("unknown_email").Inc()
		}
		return err
	}

	expiresAt := time.Now().Add(p.cfg.TokenTTL)
	resetToken, err := p.codec.Mint(token.PurposePasswordReset, user.Uid, expiresAt)
	if err != nil {
		logger.Log.Error("failed to mint reset token", "user_uid", user.Uid, "error", err)
		return err
	}
	metrics.TokensMinted.WithLabelValues(string(token.PurposePasswordReset)).Inc()

	p.mail.Enqueue(mailer.Message{
		Recipients: []string{user.Email},
		Subject:    "Reset your Readshelf password",
		Template:   "password_reset.html",
		Context: map[string]string{
			"link":        actionLink(p.cfg.Domain, "password-reset", resetToken),
			"ttl_minutes": fmt.Sprintf("%.0f", p.cfg.TokenTTL.Minutes()),
		},
	})
	metrics.PasswordResetRequests.WithLabelValues("sent").Inc()

	return nil
}

// ResetPassword consumes a reset token and replaces the password hash. Like
// activation, the conditional blacklist insert decides the first consumer;
// a second caller holding the same token gets the revocation error.
func (p *PasswordReset) ResetPassword(tokenStr, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return internal_errors.PasswordMismatch()
	}

	claims, err := verifyUsableToken(p.codec, p.revoked, tokenStr, token.PurposePasswordReset)
	if err != nil {
		return err
	}

	user, err := p.users.UserByUid(claims.UserUid)
	if err != nil {
		return err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.cfg.BcryptCost)
	if err != nil {
		logger.Log.Error("failed to hash password", "error", err)
		return err
	}

	if err := p.users.UpdatePassword(user.Uid, string(passwordHash), tokenStr, claims.ExpiresAt); err != nil {
		return err
	}

	p.mail.Enqueue(mailer.Message{
		Recipients: []string{user.Email},
		Subject:    "Your Readshelf password was changed",
		Template:   "password_changed.html",
		Context:    map[string]string{"username": user.Username},
	})

	return nil
}
