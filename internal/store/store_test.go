package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "accounts.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return s
}

func testAccount(email string) *Account {
	return &Account{
		Email:        email,
		AccessToken:  "access-" + email,
		RefreshToken: "refresh-" + email,
		TokenExpiry:  1700000000000,
	}
}

func TestSaveAndGetAccount(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveAccount(testAccount("alice@example.com")); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetAccount("alice@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected account, got nil")
	}
	if got.AccessToken != "access-alice@example.com" || got.RefreshToken != "refresh-alice@example.com" {
		t.Errorf("unexpected tokens: %+v", got)
	}
	if got.TokenExpiry != 1700000000000 {
		t.Errorf("expiry = %d, want 1700000000000", got.TokenExpiry)
	}
}

func TestGetAccountMissing(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetAccount("nobody@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing account, got %+v", got)
	}
}

func TestSaveAccountUpsert(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveAccount(testAccount("alice@example.com")); err != nil {
		t.Fatalf("save: %v", err)
	}
	replacement := &Account{
		Email:        "alice@example.com",
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		TokenExpiry:  1800000000000,
	}
	if err := s.SaveAccount(replacement); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetAccount("alice@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessToken != "new-access" || got.RefreshToken != "new-refresh" || got.TokenExpiry != 1800000000000 {
		t.Errorf("upsert did not replace record: %+v", got)
	}

	accounts, err := s.GetAccounts()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("expected 1 account after upsert, got %d", len(accounts))
	}
}

func TestUpdateTokensPreservesRefreshToken(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveAccount(testAccount("bob@example.com")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.UpdateTokens("bob@example.com", "rotated-access", 1900000000000); err != nil {
		t.Fatalf("update tokens: %v", err)
	}

	got, err := s.GetAccount("bob@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessToken != "rotated-access" {
		t.Errorf("access token = %q, want rotated-access", got.AccessToken)
	}
	if got.TokenExpiry != 1900000000000 {
		t.Errorf("expiry = %d, want 1900000000000", got.TokenExpiry)
	}
	if got.RefreshToken != "refresh-bob@example.com" {
		t.Errorf("refresh token was overwritten: %q", got.RefreshToken)
	}
}

func TestUpdateTokensMissingAccount(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpdateTokens("ghost@example.com", "token", 1); err == nil {
		t.Error("expected error updating tokens for missing account")
	}
}

func TestGetAccountsOrdered(t *testing.T) {
	s := openTestStore(t)

	for _, email := range []string{"carol@example.com", "alice@example.com", "bob@example.com"} {
		if err := s.SaveAccount(testAccount(email)); err != nil {
			t.Fatalf("save %s: %v", email, err)
		}
	}

	accounts, err := s.GetAccounts()
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	var emails []string
	for _, a := range accounts {
		emails = append(emails, a.Email)
	}
	want := []string{"alice@example.com", "bob@example.com", "carol@example.com"}
	for i := range want {
		if i >= len(emails) || emails[i] != want[i] {
			t.Fatalf("accounts = %v, want %v", emails, want)
		}
	}
}

func TestRemoveAccount(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveAccount(testAccount("alice@example.com")); err != nil {
		t.Fatalf("save: %v", err)
	}

	removed, err := s.RemoveAccount("alice@example.com")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Error("expected removed=true for existing account")
	}

	removed, err = s.RemoveAccount("alice@example.com")
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if removed {
		t.Error("expected removed=false for missing account")
	}
}
