// Package gmail provides a per-account Gmail API client.
package gmail

import (
	"context"
	"fmt"
	"time"
)

// Well-known system label IDs used by count and filter operations.
const (
	LabelInbox  = "INBOX"
	LabelUnread = "UNREAD"
)

// Message is the provider-independent view of one message. The ID is
// unique only within its account; two accounts may share an ID.
type Message struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	ThreadID  string    `json:"threadId"`
	Subject   string    `json:"subject"`
	From      string    `json:"from"`
	To        []string  `json:"to"`
	Date      time.Time `json:"date"`
	Snippet   string    `json:"snippet"`
	Labels    []string  `json:"labels"`
	Unread    bool      `json:"isUnread"`
	MessageID string    `json:"rfc2822MessageId,omitempty"` // RFC 2822 Message-ID header, for reply threading
}

// MessageBody holds the decoded body content of one message.
type MessageBody struct {
	Text string `json:"body"`
	HTML string `json:"html,omitempty"`
}

// Label is a provider label with its inbox-relative counters.
type Label struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MessagesTotal  int64  `json:"messagesTotal"`
	MessagesUnread int64  `json:"messagesUnread"`
}

// ListOptions controls a message listing.
type ListOptions struct {
	MaxResults int
	PageToken  string
	LabelIDs   []string
	Query      string
}

// ListResult is one page of resolved messages.
type ListResult struct {
	Messages      []*Message
	NextPageToken string
}

// ArchiveResult reports the outcome of a bulk archive.
type ArchiveResult struct {
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

// API defines the per-account mailbox operations. This interface enables
// mocking for tests without hitting the real API.
type API interface {
	// ListMessages lists messages matching the options, resolving each
	// listed ID to metadata. A failed per-message fetch drops that message
	// from the page rather than failing the page.
	ListMessages(ctx context.Context, opts ListOptions) (*ListResult, error)

	// GetMessage fetches metadata for a single message.
	// Returns *NotFoundError if the message does not exist.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// GetFullMessage fetches and decodes the body content of a message.
	GetFullMessage(ctx context.Context, id string) (*MessageBody, error)

	// SearchMessages lists messages matching a Gmail search query.
	SearchMessages(ctx context.Context, query string, maxResults int) ([]*Message, error)

	// UnreadCount returns the unread message count of the inbox.
	UnreadCount(ctx context.Context) (int64, error)

	// TotalCount returns the total message count of the inbox.
	TotalCount(ctx context.Context) (int64, error)

	// Send submits a raw MIME message, optionally threading it into an
	// existing conversation. Returns the remote message ID.
	Send(ctx context.Context, raw []byte, threadID string) (string, error)

	// ListLabels returns all labels for the account.
	ListLabels(ctx context.Context) ([]*Label, error)

	// ArchiveMessage removes the inbox label from a message.
	ArchiveMessage(ctx context.Context, id string) error

	// ArchiveMessages archives messages concurrently, counting outcomes.
	// It never aborts early on a single failure.
	ArchiveMessages(ctx context.Context, ids []string) (*ArchiveResult, error)
}

// NotFoundError indicates a 404 response from the provider.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}
