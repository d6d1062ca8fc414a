package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/readshelf/readshelf/internal/config"
	"github.com/readshelf/readshelf/internal/domain"
	internal_errors "github.com/readshelf/readshelf/internal/errors"
	"github.com/readshelf/readshelf/internal/logger"
	"github.com/readshelf/readshelf/internal/mailer"
	"github.com/readshelf/readshelf/internal/metrics"
	"github.com/readshelf/readshelf/internal/token"
	"golang.org/x/crypto/bcrypt"
)

type AuthService interface {
	Register(input RegisterInput) (domain.User, error)
	Activate(tokenStr string) error
	Login(email, password, currentToken string) (string, domain.User, error)
	Logout(currentToken string) error
	Me(tokenStr string) (domain.User, error)
}

// UserStore persists user records. ActivateUser and UpdatePassword consume
// the presented single-use token in the same transaction as the account
// mutation: a failure on either side rolls both back, so a storage error
// never burns the token.
type UserStore interface {
	SaveUser(user domain.User) (domain.User, error)
	UserByEmail(email string) (domain.User, error)
	UserByUid(uid uuid.UUID) (domain.User, error)
	ActivateUser(uid uuid.UUID, tokenStr string, tokenExpiresAt time.Time) error
	UpdatePassword(uid uuid.UUID, passwordHash, tokenStr string, tokenExpiresAt time.Time) error
}

type RevocationStore interface {
	BlacklistToken(tokenStr string, expiresAt time.Time) error
	IsTokenBlacklisted(tokenStr string) (bool, error)
	DeleteExpiredTokens() (int64, error)
}

type TokenCodec interface {
	Mint(purpose token.Purpose, userUid uuid.UUID, expiresAt time.Time) (string, error)
	Verify(tokenStr string, purpose token.Purpose) (token.Claims, error)
	Decode(tokenStr string) (token.Claims, error)
}

type Mailer interface {
	Enqueue(msg mailer.Message)
}

type RegisterInput struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
}

type Auth struct {
	users   UserStore
	revoked RevocationStore
	codec   TokenCodec
	mail    Mailer
	cfg     *config.Public
}

func NewAuth(users UserStore, revoked RevocationStore, codec TokenCodec, mail Mailer, cfg *config.Public) *Auth {
	return &Auth{
		users:   users,
		revoked: revoked,
		codec:   codec,
		mail:    mail,
		cfg:     cfg,
	}
}

// Register creates a user in the pending state (not verified, not active),
// then mints an activation token and mails the activation link. The token
// is single-use and expires after the configured TTL.
func (a *Auth) Register(input RegisterInput) (domain.User, error) {
	email := normalizeEmail(input.Email)

	_, err := a.users.UserByEmail(email)
	if err == nil {
		return domain.User{}, internal_errors.UserExists()
	}
	if !internal_errors.IsNotFound(err) {
		return domain.User{}, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), a.cfg.BcryptCost)
	if err != nil {
		logger.Log.Error("failed to hash password", "error", err)
		return domain.User{}, err
	}

	user, err := a.users.SaveUser(domain.User{
		Username:     input.Username,
		Email:        email,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PasswordHash: string(passwordHash),
	})
	if err != nil {
		return domain.User{}, err
	}

	expiresAt := time.Now().Add(a.cfg.TokenTTL)
	activationToken, err := a.codec.Mint(token.PurposeActivation, user.Uid, expiresAt)
	if err != nil {
		return domain.User{}, err
	}
	metrics.TokensMinted.WithLabelValues(string(token.PurposeActivation)).Inc()

	a.mail.Enqueue(mailer.Message{
		Recipients: []string{user.Email},
		Subject:    "Activate your Readshelf account",
		Template:   "activation.html",
		Context: map[string]string{
			"username":    user.Username,
			"link":        actionLink(a.cfg.Domain, "activate", activationToken),
			"ttl_minutes": fmt.Sprintf("%.0f", a.cfg.TokenTTL.Minutes()),
		},
	})

	return user, nil
}

// Activate consumes an activation token and flips the account flags. The
// conditional blacklist insert, not the preceding lookup, is what decides
// the winner when the same token is replayed concurrently.
func (a *Auth) Activate(tokenStr string) error {
	claims, err := verifyUsableToken(a.codec, a.revoked, tokenStr, token.PurposeActivation)
	if err != nil {
		return err
	}

	user, err := a.users.UserByUid(claims.UserUid)
	if err != nil {
		return err
	}
	if user.IsVerified && user.IsActive {
		return internal_errors.AlreadyActivated()
	}

	// Consumption and activation commit together: a replayed link fails
	// with a revocation error even if both requests passed the lookup
	// above, and a failed activation leaves the token unconsumed.
	if err := a.users.ActivateUser(user.Uid, tokenStr, claims.ExpiresAt); err != nil {
		return err
	}

	a.mail.Enqueue(mailer.Message{
		Recipients: []string{user.Email},
		Subject:    "Welcome to Readshelf",
		Template:   "welcome.html",
		Context:    map[string]string{"username": user.Username},
	})

	return nil
}

// Login checks credentials and account state, revokes any session token the
// caller still holds, and hands back a fresh one. The four failure modes
// (unknown user, not activated, not verified, wrong password) stay distinct.
func (a *Auth) Login(email, password, currentToken string) (string, domain.User, error) {
	user, err := a.users.UserByEmail(normalizeEmail(email))
	if err != nil {
		return "", domain.User{}, err
	}

	if !user.IsActive {
		return "", domain.User{}, internal_errors.AccountNotActivated()
	}
	if !user.IsVerified {
		return "", domain.User{}, internal_errors.AccountNotVerified()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", domain.User{}, internal_errors.InvalidCredentials()
	}

	// A stale cookie from an earlier session must not stay valid next to
	// the new token.
	if currentToken != "" {
		a.revokeBestEffort(currentToken)
	}

	sessionToken, err := a.codec.Mint(token.PurposeSession, user.Uid, time.Now().Add(a.cfg.TokenTTL))
	if err != nil {
		logger.Log.Error("failed to mint session token", "user_uid", user.Uid, "error", err)
		return "", domain.User{}, err
	}
	metrics.TokensMinted.WithLabelValues(string(token.PurposeSession)).Inc()

	return sessionToken, user, nil
}

// Logout revokes the presented session token. It never fails the caller:
// an absent, malformed or already-revoked token all leave the client in the
// same logged-out state.
func (a *Auth) Logout(currentToken string) error {
	if currentToken == "" {
		return nil
	}
	a.revokeBestEffort(currentToken)
	return nil
}

// Me resolves a session token to the current user record. A distinct
// expiry error tells the handler to clear the stored credential.
func (a *Auth) Me(tokenStr string) (domain.User, error) {
	if tokenStr == "" {
		return domain.User{}, internal_errors.TokenRequired()
	}

	claims, err := verifyUsableToken(a.codec, a.revoked, tokenStr, token.PurposeSession)
	if err != nil {
		return domain.User{}, err
	}

	return a.users.UserByUid(claims.UserUid)
}

// revokeBestEffort blacklists a token without failing the surrounding
// operation. The row lives for the configured TTL, which outlives any
// token the codec could have minted by now. The embedded expiry comes
// from an unverified decode, so it may only shorten that lifetime:
// logout takes no authentication, and honoring a forged far-future
// expiry would let anyone grow the blacklist with unsweepable rows.
func (a *Auth) revokeBestEffort(tokenStr string) {
	expiresAt := time.Now().Add(a.cfg.TokenTTL)
	if claims, err := a.codec.Decode(tokenStr); err == nil && claims.ExpiresAt.Before(expiresAt) {
		expiresAt = claims.ExpiresAt
	}

	if err := a.revoked.BlacklistToken(tokenStr, expiresAt); err != nil {
		if internal_errors.IsStatus(err, 401) {
			return // already revoked
		}
		logger.Log.Error("failed to blacklist token", "error", err)
	}
}

// verifyUsableToken runs the shared token gauntlet: blacklist lookup,
// codec verification, then the embedded business expiry. The order keeps
// revoked, malformed and expired outcomes distinct.
func verifyUsableToken(codec TokenCodec, revoked RevocationStore, tokenStr string, purpose token.Purpose) (token.Claims, error) {
	blacklisted, err := revoked.IsTokenBlacklisted(tokenStr)
	if err != nil {
		return token.Claims{}, err
	}
	if blacklisted {
		metrics.TokensRejected.WithLabelValues("token_revoked").Inc()
		return token.Claims{}, internal_errors.TokenRevoked()
	}

	claims, err := codec.Verify(tokenStr, purpose)
	if err != nil {
		metrics.TokensRejected.WithLabelValues(internal_errors.Code(err)).Inc()
		return token.Claims{}, err
	}

	if time.Now().After(claims.ExpiresAt) {
		metrics.TokensRejected.WithLabelValues("token_expired").Inc()
		return token.Claims{}, internal_errors.TokenExpired()
	}

	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func actionLink(domain, action, tokenStr string) string {
	return fmt.Sprintf("https://%s/auth/%s/%s", domain, action, tokenStr)
}
