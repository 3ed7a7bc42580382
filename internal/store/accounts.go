package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// GetAccounts returns all stored accounts ordered by email.
func (s *Store) GetAccounts() ([]*Account, error) {
	rows, err := s.db.Query(`
		SELECT email, access_token, refresh_token, token_expiry
		FROM accounts
		ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []*Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Email, &a.AccessToken, &a.RefreshToken, &a.TokenExpiry); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

// GetAccount returns the account for the given email, or nil if no such
// account exists.
func (s *Store) GetAccount(email string) (*Account, error) {
	var a Account
	err := s.db.QueryRow(`
		SELECT email, access_token, refresh_token, token_expiry
		FROM accounts
		WHERE email = ?
	`, email).Scan(&a.Email, &a.AccessToken, &a.RefreshToken, &a.TokenExpiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	return &a, nil
}

// SaveAccount inserts or replaces the whole credential record.
func (s *Store) SaveAccount(a *Account) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO accounts (email, access_token, refresh_token, token_expiry)
		VALUES (?, ?, ?, ?)
	`, a.Email, a.AccessToken, a.RefreshToken, a.TokenExpiry)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

// UpdateTokens updates the access token and expiry for an account after a
// refresh. The refresh token is never touched by this path.
func (s *Store) UpdateTokens(email, accessToken string, tokenExpiry int64) error {
	res, err := s.db.Exec(`
		UPDATE accounts SET access_token = ?, token_expiry = ? WHERE email = ?
	`, accessToken, tokenExpiry, email)
	if err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("account %s not found", email)
	}
	return nil
}

// RemoveAccount deletes an account's credential. It reports whether a
// record was actually removed.
func (s *Store) RemoveAccount(email string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM accounts WHERE email = ?`, email)
	if err != nil {
		return false, fmt.Errorf("delete account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return rows > 0, nil
}
