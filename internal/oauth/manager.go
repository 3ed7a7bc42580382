package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/unimail/unimail/internal/gmail"
	"github.com/unimail/unimail/internal/store"
)

// refreshSkew is the lead time before token expiry at which a proactive
// refresh is triggered.
const refreshSkew = 60 * time.Second

// AuthError indicates an unusable credential: a revoked or invalid
// refresh token, or a missing application credential. The account, when
// set, stays stored but is disconnected until re-authorized.
type AuthError struct {
	Account string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Account == "" {
		return fmt.Sprintf("auth: %v", e.Err)
	}
	return fmt.Sprintf("auth for %s: %v", e.Account, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TokenUpdater persists refreshed tokens. Satisfied by *store.Store.
type TokenUpdater interface {
	UpdateTokens(email, accessToken string, tokenExpiry int64) error
}

// Manager owns token freshness. Given a stored credential, it returns a
// ready-to-use provider client, refreshing and persisting tokens
// transparently when they are within the skew window of expiry.
type Manager struct {
	config *oauth2.Config
	repo   TokenUpdater
	logger *slog.Logger

	rateLimitQPS float64
	concurrency  int
	baseURL      string // test override for constructed clients

	// Hooks overridable in tests.
	now     func() time.Time
	refresh func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRateLimit sets the per-account request pacing for constructed clients.
func WithRateLimit(qps float64) ManagerOption {
	return func(m *Manager) {
		if qps > 0 {
			m.rateLimitQPS = qps
		}
	}
}

// WithConcurrency sets the fan-out bound for constructed clients.
func WithConcurrency(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithBaseURL points constructed clients at an alternate endpoint. Used by tests.
func WithBaseURL(u string) ManagerOption {
	return func(m *Manager) {
		m.baseURL = u
	}
}

// NewManager creates a credential manager sharing the consent flow's
// application credential.
func NewManager(config *oauth2.Config, repo TokenUpdater, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		config:       config,
		repo:         repo,
		logger:       logger,
		rateLimitQPS: 5,
		concurrency:  10,
		now:          time.Now,
		locks:        make(map[string]*sync.Mutex),
	}
	m.refresh = m.refreshWithConfig

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// accountLock returns the per-account mutex, creating it on first use.
// Serializing check-expiry, refresh, and persist per account prevents a
// stale refresh from clobbering a newer token.
func (m *Manager) accountLock(email string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[email]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[email] = lock
	}
	return lock
}

// expiresSoon reports whether the credential is within the skew window
// of expiry (or already past it).
func (m *Manager) expiresSoon(acct *store.Account) bool {
	return acct.TokenExpiry <= m.now().Add(refreshSkew).UnixMilli()
}

// refreshWithConfig exchanges the refresh token for a new access token
// at the provider's token endpoint.
func (m *Manager) refreshWithConfig(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ts := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return ts.Token()
}

// ClientFor returns a ready-to-use client for the account's mailbox.
// If the access token is expired or about to expire, it is refreshed and
// persisted first, and the passed credential is updated in place so the
// caller's subsequent uses within the same request see the fresh token.
// A failed refresh surfaces as *AuthError; the credential is not deleted.
func (m *Manager) ClientFor(ctx context.Context, acct *store.Account) (gmail.API, error) {
	lock := m.accountLock(acct.Email)
	lock.Lock()
	if m.expiresSoon(acct) {
		token, err := m.refresh(ctx, acct.RefreshToken)
		if err != nil {
			lock.Unlock()
			return nil, &AuthError{Account: acct.Email, Err: err}
		}

		acct.AccessToken = token.AccessToken
		acct.TokenExpiry = token.Expiry.UnixMilli()

		if err := m.repo.UpdateTokens(acct.Email, acct.AccessToken, acct.TokenExpiry); err != nil {
			lock.Unlock()
			return nil, fmt.Errorf("persist refreshed tokens for %s: %w", acct.Email, err)
		}
		m.logger.Debug("refreshed access token", "account", acct.Email)
	}
	// Capture the token while still holding the lock; concurrent callers
	// for the same account may be mutating the credential.
	token := &oauth2.Token{
		AccessToken:  acct.AccessToken,
		RefreshToken: acct.RefreshToken,
		Expiry:       time.UnixMilli(acct.TokenExpiry),
	}
	lock.Unlock()

	ts := m.config.TokenSource(ctx, token)

	opts := []gmail.ClientOption{
		gmail.WithLogger(m.logger),
		gmail.WithRateLimit(m.rateLimitQPS),
		gmail.WithConcurrency(m.concurrency),
	}
	if m.baseURL != "" {
		opts = append(opts, gmail.WithBaseURL(m.baseURL))
	}
	return gmail.NewClient(ts, acct.Email, opts...), nil
}
