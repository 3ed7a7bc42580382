package oauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/unimail/unimail/internal/store"
)

type fakeUpdater struct {
	mu      sync.Mutex
	updates []struct {
		email  string
		token  string
		expiry int64
	}
	err error
}

func (f *fakeUpdater) UpdateTokens(email, accessToken string, tokenExpiry int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, struct {
		email  string
		token  string
		expiry int64
	}{email, accessToken, tokenExpiry})
	return nil
}

func newTestManager(repo TokenUpdater) *Manager {
	cfg := &oauth2.Config{ClientID: "id", ClientSecret: "secret"}
	return NewManager(cfg, repo, nil)
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestClientForFreshTokenSkipsRefresh(t *testing.T) {
	repo := &fakeUpdater{}
	m := newTestManager(repo)
	m.now = fixedNow

	refreshCalls := 0
	m.refresh = func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		refreshCalls++
		return nil, errors.New("should not be called")
	}

	acct := &store.Account{
		Email:        "fresh@example.com",
		AccessToken:  "valid",
		RefreshToken: "refresh",
		TokenExpiry:  fixedNow().Add(time.Hour).UnixMilli(),
	}

	client, err := m.ClientFor(context.Background(), acct)
	if err != nil {
		t.Fatalf("client for: %v", err)
	}
	if client == nil {
		t.Fatal("expected client")
	}
	if refreshCalls != 0 {
		t.Errorf("refresh calls = %d, want 0", refreshCalls)
	}
	if len(repo.updates) != 0 {
		t.Errorf("repository updates = %d, want 0", len(repo.updates))
	}
}

func TestClientForExpiredTokenRefreshesOnce(t *testing.T) {
	repo := &fakeUpdater{}
	m := newTestManager(repo)
	m.now = fixedNow

	newExpiry := fixedNow().Add(time.Hour)
	refreshCalls := 0
	m.refresh = func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		refreshCalls++
		if refreshToken != "refresh-token" {
			t.Errorf("refresh token = %q", refreshToken)
		}
		return &oauth2.Token{AccessToken: "new-access", Expiry: newExpiry}, nil
	}

	acct := &store.Account{
		Email:        "stale@example.com",
		AccessToken:  "old-access",
		RefreshToken: "refresh-token",
		TokenExpiry:  fixedNow().Add(-time.Millisecond).UnixMilli(),
	}

	if _, err := m.ClientFor(context.Background(), acct); err != nil {
		t.Fatalf("client for: %v", err)
	}

	if refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", refreshCalls)
	}
	if len(repo.updates) != 1 {
		t.Fatalf("repository updates = %d, want 1", len(repo.updates))
	}
	if repo.updates[0].token != "new-access" || repo.updates[0].expiry != newExpiry.UnixMilli() {
		t.Errorf("persisted update = %+v", repo.updates[0])
	}

	// The in-memory credential must reflect the refresh too.
	if acct.AccessToken != "new-access" {
		t.Errorf("in-memory access token = %q", acct.AccessToken)
	}
	if acct.RefreshToken != "refresh-token" {
		t.Errorf("refresh token must never change, got %q", acct.RefreshToken)
	}
}

func TestClientForWithinSkewWindowRefreshes(t *testing.T) {
	repo := &fakeUpdater{}
	m := newTestManager(repo)
	m.now = fixedNow

	refreshCalls := 0
	m.refresh = func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		refreshCalls++
		return &oauth2.Token{AccessToken: "new", Expiry: fixedNow().Add(time.Hour)}, nil
	}

	// 30s from expiry: inside the 60s skew window.
	acct := &store.Account{
		Email:        "soon@example.com",
		AccessToken:  "soon-to-expire",
		RefreshToken: "refresh",
		TokenExpiry:  fixedNow().Add(30 * time.Second).UnixMilli(),
	}

	if _, err := m.ClientFor(context.Background(), acct); err != nil {
		t.Fatalf("client for: %v", err)
	}
	if refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", refreshCalls)
	}
}

func TestClientForRefreshFailureIsAuthError(t *testing.T) {
	repo := &fakeUpdater{}
	m := newTestManager(repo)
	m.now = fixedNow
	m.refresh = func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		return nil, errors.New("invalid_grant")
	}

	acct := &store.Account{
		Email:        "revoked@example.com",
		RefreshToken: "revoked",
		TokenExpiry:  0,
	}

	_, err := m.ClientFor(context.Background(), acct)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Account != "revoked@example.com" {
		t.Errorf("AuthError account = %q", authErr.Account)
	}
	if len(repo.updates) != 0 {
		t.Errorf("failed refresh must not persist tokens, got %d updates", len(repo.updates))
	}
}

func TestClientForConcurrentCallsRefreshOnce(t *testing.T) {
	repo := &fakeUpdater{}
	m := newTestManager(repo)
	m.now = fixedNow

	var mu sync.Mutex
	refreshCalls := 0
	m.refresh = func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		mu.Lock()
		refreshCalls++
		mu.Unlock()
		time.Sleep(10 * time.Millisecond) // Widen the race window.
		return &oauth2.Token{AccessToken: "new", Expiry: fixedNow().Add(time.Hour)}, nil
	}

	acct := &store.Account{
		Email:        "racy@example.com",
		RefreshToken: "refresh",
		TokenExpiry:  0,
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.ClientFor(context.Background(), acct); err != nil {
				t.Errorf("client for: %v", err)
			}
		}()
	}
	wg.Wait()

	// The per-account lock serializes check-refresh-persist: the first
	// caller refreshes, the rest see the updated in-memory expiry.
	if refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", refreshCalls)
	}
	if len(repo.updates) != 1 {
		t.Errorf("repository updates = %d, want 1", len(repo.updates))
	}
}

func TestClientForPersistFailurePropagates(t *testing.T) {
	repo := &fakeUpdater{err: errors.New("disk full")}
	m := newTestManager(repo)
	m.now = fixedNow
	m.refresh = func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: "new", Expiry: fixedNow().Add(time.Hour)}, nil
	}

	acct := &store.Account{Email: "a@example.com", RefreshToken: "r", TokenExpiry: 0}
	if _, err := m.ClientFor(context.Background(), acct); err == nil {
		t.Fatal("expected error when persistence fails")
	}
}

func TestNewFlowRequiresCredential(t *testing.T) {
	if _, err := NewFlow("", "", nil); err == nil {
		t.Fatal("expected error for missing application credential")
	}
	var authErr *AuthError
	_, err := NewFlow("id", "", nil)
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}

	f, err := NewFlow("id", "secret", nil)
	if err != nil {
		t.Fatalf("new flow: %v", err)
	}
	if f.Config().ClientID != "id" {
		t.Errorf("config client id = %q", f.Config().ClientID)
	}
}
