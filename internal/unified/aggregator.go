// Package unified merges several independent mail accounts into one
// logical inbox: a single ranked message stream, one search surface, and
// one summary.
package unified

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/unimail/unimail/internal/gmail"
	"github.com/unimail/unimail/internal/store"
)

// AccountSource provides read access to stored credentials.
// Satisfied by *store.Store.
type AccountSource interface {
	GetAccounts() ([]*store.Account, error)
	GetAccount(email string) (*store.Account, error)
}

// ClientSource turns a credential into a ready-to-use mailbox client,
// refreshing tokens as needed. Satisfied by *oauth.Manager.
type ClientSource interface {
	ClientFor(ctx context.Context, acct *store.Account) (gmail.API, error)
}

// AccountNotFoundError indicates an operation referenced an account with
// no stored credential.
type AccountNotFoundError struct {
	Account string
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account not found: %s", e.Account)
}

// Aggregator fans requests out across accounts and merges the results.
// Per-account failures degrade to empty contributions; they never fail
// the whole operation.
type Aggregator struct {
	accounts    AccountSource
	clients     ClientSource
	logger      *slog.Logger
	concurrency int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithConcurrency bounds how many accounts are queried in parallel.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// New creates an aggregator over the given credential store and client
// source.
func New(accounts AccountSource, clients ClientSource, logger *slog.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		accounts:    accounts,
		clients:     clients,
		logger:      logger,
		concurrency: 10,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetOptions controls a unified message listing.
type GetOptions struct {
	MaxResults int
	Accounts   []string // filter to these accounts; empty means all
	LabelIDs   []string
}

// resolveTargets returns the accounts an operation applies to. An empty
// filter selects every known account.
func (a *Aggregator) resolveTargets(filter []string) ([]*store.Account, error) {
	all, err := a.accounts.GetAccounts()
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	if len(filter) == 0 {
		return all, nil
	}

	wanted := make(map[string]bool, len(filter))
	for _, email := range filter {
		wanted[email] = true
	}
	var targets []*store.Account
	for _, acct := range all {
		if wanted[acct.Email] {
			targets = append(targets, acct)
		}
	}
	return targets, nil
}

// accountResult is one branch's outcome in a fan-out. A branch that
// failed contributes nothing to the merged result.
type accountResult struct {
	account  string
	messages []*gmail.Message
	err      error
}

// scatter runs fetch against every target account concurrently, bounded
// by the aggregator concurrency. Results come back in target order; each
// branch catches its own failure.
func (a *Aggregator) scatter(ctx context.Context, targets []*store.Account, fetch func(ctx context.Context, api gmail.API) ([]*gmail.Message, error)) []accountResult {
	results := make([]accountResult, len(targets))
	sem := make(chan struct{}, a.concurrency)

	done := make(chan int)
	for i, acct := range targets {
		go func(i int, acct *store.Account) {
			defer func() { done <- i }()
			results[i].account = acct.Email

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i].err = ctx.Err()
				return
			}

			api, err := a.clients.ClientFor(ctx, acct)
			if err != nil {
				results[i].err = err
				return
			}
			msgs, err := fetch(ctx, api)
			if err != nil {
				results[i].err = err
				return
			}
			results[i].messages = msgs
		}(i, acct)
	}
	for range targets {
		<-done
	}
	return results
}

// merge flattens branch results, drops failed branches, sorts by date
// descending (stable, so same-date messages keep input order), and
// truncates to the budget.
func (a *Aggregator) merge(results []accountResult, maxResults int) []*gmail.Message {
	var merged []*gmail.Message
	for _, r := range results {
		if r.err != nil {
			a.logger.Warn("account fan-out branch failed", "account", r.account, "error", r.err)
			continue
		}
		merged = append(merged, r.messages...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.After(merged[j].Date)
	})

	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}
	return merged
}

// ceilDiv returns ceil(a / b) for positive b.
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// GetMessages returns a date-ranked stream merged across accounts. Each
// account is asked for ceil(maxResults/accounts) messages, so the merged
// total never exceeds maxResults but may fall short when some accounts
// return fewer than their share — an accepted approximation.
func (a *Aggregator) GetMessages(ctx context.Context, opts GetOptions) ([]*gmail.Message, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}

	targets, err := a.resolveTargets(opts.Accounts)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	perAccount := ceilDiv(maxResults, len(targets))
	results := a.scatter(ctx, targets, func(ctx context.Context, api gmail.API) ([]*gmail.Message, error) {
		page, err := api.ListMessages(ctx, gmail.ListOptions{
			MaxResults: perAccount,
			LabelIDs:   opts.LabelIDs,
		})
		if err != nil {
			return nil, err
		}
		return page.Messages, nil
	})

	return a.merge(results, maxResults), nil
}

// Search runs a provider search across accounts with the same
// scatter-gather-merge shape as GetMessages.
func (a *Aggregator) Search(ctx context.Context, query string, maxResults int, accounts []string) ([]*gmail.Message, error) {
	if maxResults <= 0 {
		maxResults = 20
	}

	targets, err := a.resolveTargets(accounts)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	perAccount := ceilDiv(maxResults, len(targets))
	results := a.scatter(ctx, targets, func(ctx context.Context, api gmail.API) ([]*gmail.Message, error) {
		return api.SearchMessages(ctx, query, perAccount)
	})

	return a.merge(results, maxResults), nil
}

// clientForAccount resolves a single account to a mailbox client,
// failing with AccountNotFoundError for unknown accounts.
func (a *Aggregator) clientForAccount(ctx context.Context, account string) (gmail.API, error) {
	acct, err := a.accounts.GetAccount(account)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, &AccountNotFoundError{Account: account}
	}
	return a.clients.ClientFor(ctx, acct)
}

// GetMessage fetches metadata for one message in one account.
func (a *Aggregator) GetMessage(ctx context.Context, id, account string) (*gmail.Message, error) {
	api, err := a.clientForAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	return api.GetMessage(ctx, id)
}

// GetFullMessage fetches body content for one message in one account.
func (a *Aggregator) GetFullMessage(ctx context.Context, id, account string) (*gmail.MessageBody, error) {
	api, err := a.clientForAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	return api.GetFullMessage(ctx, id)
}

// ArchiveMessage archives one message in one account.
func (a *Aggregator) ArchiveMessage(ctx context.Context, id, account string) error {
	api, err := a.clientForAccount(ctx, account)
	if err != nil {
		return err
	}
	return api.ArchiveMessage(ctx, id)
}

// ArchiveMessages archives several messages in one account, reporting
// per-message outcomes.
func (a *Aggregator) ArchiveMessages(ctx context.Context, ids []string, account string) (*gmail.ArchiveResult, error) {
	api, err := a.clientForAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	return api.ArchiveMessages(ctx, ids)
}
