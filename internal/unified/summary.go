package unified

import (
	"context"

	"github.com/unimail/unimail/internal/gmail"
	"github.com/unimail/unimail/internal/store"
)

// recentSubjects is how many recent inbox subjects a summary carries per
// account.
const recentSubjects = 5

// AccountSummary is one account's slice of the inbox summary. An account
// whose provider calls failed reports zero counts and no subjects.
type AccountSummary struct {
	Account        string   `json:"account"`
	UnreadCount    int64    `json:"unreadCount"`
	TotalCount     int64    `json:"totalCount"`
	RecentSubjects []string `json:"recentSubjects"`
}

// Summary aggregates counts across all accounts.
type Summary struct {
	Accounts    []*AccountSummary `json:"accounts"`
	TotalUnread int64             `json:"totalUnread"`
}

// summarizeAccount gathers one account's counts and recent subjects.
// Count failures zero the counts; a subject listing failure just leaves
// subjects empty. Neither fails the summary.
func (a *Aggregator) summarizeAccount(ctx context.Context, acct *store.Account) *AccountSummary {
	s := &AccountSummary{Account: acct.Email}

	api, err := a.clients.ClientFor(ctx, acct)
	if err != nil {
		a.logger.Warn("summary skipping account", "account", acct.Email, "error", err)
		return s
	}

	if n, err := api.UnreadCount(ctx); err != nil {
		a.logger.Warn("unread count failed", "account", acct.Email, "error", err)
	} else {
		s.UnreadCount = n
	}
	if n, err := api.TotalCount(ctx); err != nil {
		a.logger.Warn("total count failed", "account", acct.Email, "error", err)
	} else {
		s.TotalCount = n
	}

	page, err := api.ListMessages(ctx, gmail.ListOptions{
		MaxResults: recentSubjects,
		LabelIDs:   []string{gmail.LabelInbox},
	})
	if err != nil {
		a.logger.Warn("recent subjects failed", "account", acct.Email, "error", err)
		return s
	}
	for _, msg := range page.Messages {
		s.RecentSubjects = append(s.RecentSubjects, msg.Subject)
	}
	return s
}

// Summary builds a cross-account inbox summary, querying accounts
// concurrently. Results keep account store order regardless of which
// branch finished first.
func (a *Aggregator) Summary(ctx context.Context) (*Summary, error) {
	accounts, err := a.accounts.GetAccounts()
	if err != nil {
		return nil, err
	}

	summaries := make([]*AccountSummary, len(accounts))
	sem := make(chan struct{}, a.concurrency)
	done := make(chan struct{})
	for i, acct := range accounts {
		go func(i int, acct *store.Account) {
			defer func() { done <- struct{}{} }()
			sem <- struct{}{}
			defer func() { <-sem }()
			summaries[i] = a.summarizeAccount(ctx, acct)
		}(i, acct)
	}
	for range accounts {
		<-done
	}

	out := &Summary{Accounts: summaries}
	for _, s := range summaries {
		out.TotalUnread += s.UnreadCount
	}
	return out, nil
}

// AccountInfo describes one stored account for listing purposes.
type AccountInfo struct {
	Email string `json:"email"`
}

// ListAccounts returns the stored accounts.
func (a *Aggregator) ListAccounts() ([]*AccountInfo, error) {
	accounts, err := a.accounts.GetAccounts()
	if err != nil {
		return nil, err
	}
	infos := make([]*AccountInfo, 0, len(accounts))
	for _, acct := range accounts {
		infos = append(infos, &AccountInfo{Email: acct.Email})
	}
	return infos, nil
}

// AccountStatus reports whether a stored credential still works.
type AccountStatus struct {
	Email       string `json:"email"`
	Status      string `json:"status"` // "connected" or "error"
	UnreadCount int64  `json:"unreadCount,omitempty"`
	Error       string `json:"error,omitempty"`
}

// AccountStatuses probes every account by building a client (refreshing
// the token if needed) and fetching its unread count. A failing probe
// marks the account "error" instead of failing the listing.
func (a *Aggregator) AccountStatuses(ctx context.Context) ([]*AccountStatus, error) {
	accounts, err := a.accounts.GetAccounts()
	if err != nil {
		return nil, err
	}

	statuses := make([]*AccountStatus, len(accounts))
	sem := make(chan struct{}, a.concurrency)
	done := make(chan struct{})
	for i, acct := range accounts {
		go func(i int, acct *store.Account) {
			defer func() { done <- struct{}{} }()
			sem <- struct{}{}
			defer func() { <-sem }()

			status := &AccountStatus{Email: acct.Email, Status: "connected"}
			statuses[i] = status

			api, err := a.clients.ClientFor(ctx, acct)
			if err != nil {
				status.Status = "error"
				status.Error = err.Error()
				return
			}
			n, err := api.UnreadCount(ctx)
			if err != nil {
				status.Status = "error"
				status.Error = err.Error()
				return
			}
			status.UnreadCount = n
		}(i, acct)
	}
	for range accounts {
		<-done
	}
	return statuses, nil
}
