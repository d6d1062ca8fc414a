package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/readshelf/readshelf/internal/domain"
	internal_errors "github.com/readshelf/readshelf/internal/errors"
	"github.com/readshelf/readshelf/internal/mailer"
)

// --- Mocks ---

type MockUserStore struct {
	SaveUserFunc       func(user domain.User) (domain.User, error)
	UserByEmailFunc    func(email string) (domain.User, error)
	UserByUidFunc      func(uid uuid.UUID) (domain.User, error)
	ActivateUserFunc   func(uid uuid.UUID, tokenStr string, tokenExpiresAt time.Time) error
	UpdatePasswordFunc func(uid uuid.UUID, passwordHash, tokenStr string, tokenExpiresAt time.Time) error
}

func (m *MockUserStore) SaveUser(user domain.User) (domain.User, error) {
	if m.SaveUserFunc != nil {
		return m.SaveUserFunc(user)
	}
	user.Uid = uuid.New()
	user.Role = domain.DefaultRole
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	return user, nil
}

func (m *MockUserStore) UserByEmail(email string) (domain.User, error) {
	if m.UserByEmailFunc != nil {
		return m.UserByEmailFunc(email)
	}
	// Default: not found
	return domain.User{}, internal_errors.UserNotFound()
}

func (m *MockUserStore) UserByUid(uid uuid.UUID) (domain.User, error) {
	if m.UserByUidFunc != nil {
		return m.UserByUidFunc(uid)
	}
	// Default: not found
	return domain.User{}, internal_errors.UserNotFound()
}

func (m *MockUserStore) ActivateUser(uid uuid.UUID, tokenStr string, tokenExpiresAt time.Time) error {
	if m.ActivateUserFunc != nil {
		return m.ActivateUserFunc(uid, tokenStr, tokenExpiresAt)
	}
	return nil
}

func (m *MockUserStore) UpdatePassword(uid uuid.UUID, passwordHash, tokenStr string, tokenExpiresAt time.Time) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(uid, passwordHash, tokenStr, tokenExpiresAt)
	}
	return nil
}

// MockRevocationStore keeps an in-memory blacklist with the same
// first-insert-wins contract as the real table.
type MockRevocationStore struct {
	BlacklistTokenFunc      func(tokenStr string, expiresAt time.Time) error
	IsTokenBlacklistedFunc  func(tokenStr string) (bool, error)
	DeleteExpiredTokensFunc func() (int64, error)

	mu      sync.Mutex
	entries map[string]time.Time
}

func (m *MockRevocationStore) BlacklistToken(tokenStr string, expiresAt time.Time) error {
	if m.BlacklistTokenFunc != nil {
		return m.BlacklistTokenFunc(tokenStr, expiresAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]time.Time)
	}
	if _, exists := m.entries[tokenStr]; exists {
		return internal_errors.TokenRevoked()
	}
	m.entries[tokenStr] = expiresAt
	return nil
}

func (m *MockRevocationStore) IsTokenBlacklisted(tokenStr string) (bool, error) {
	if m.IsTokenBlacklistedFunc != nil {
		return m.IsTokenBlacklistedFunc(tokenStr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.entries[tokenStr]
	return exists, nil
}

func (m *MockRevocationStore) DeleteExpiredTokens() (int64, error) {
	if m.DeleteExpiredTokensFunc != nil {
		return m.DeleteExpiredTokensFunc()
	}
	return 0, nil
}

type MockResetLedger struct {
	LogResetRequestFunc        func(email string) error
	CountResetRequestsFunc     func(email string, since time.Time) (int, error)
	DeleteExpiredResetLogsFunc func(before time.Time) (int64, error)

	mu       sync.Mutex
	requests []string
}

func (m *MockResetLedger) LogResetRequest(email string) error {
	if m.LogResetRequestFunc != nil {
		return m.LogResetRequestFunc(email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, email)
	return nil
}

func (m *MockResetLedger) CountResetRequests(email string, since time.Time) (int, error) {
	if m.CountResetRequestsFunc != nil {
		return m.CountResetRequestsFunc(email, since)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.requests {
		if e == email {
			count++
		}
	}
	return count, nil
}

func (m *MockResetLedger) DeleteExpiredResetLogs(before time.Time) (int64, error) {
	if m.DeleteExpiredResetLogsFunc != nil {
		return m.DeleteExpiredResetLogsFunc(before)
	}
	return 0, nil
}

func (m *MockResetLedger) Recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}

// MockMailer records enqueued messages for assertions.
type MockMailer struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (m *MockMailer) Enqueue(msg mailer.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *MockMailer) Sent() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.messages...)
}
