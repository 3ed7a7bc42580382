package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

// Client implements the Gmail API interface for one account.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
	account     string // email of the mailbox owner
	userID      string // "me" for authenticated user
	concurrency int    // Max parallel requests for per-message fan-out
	baseURL     string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithConcurrency sets the max concurrent requests for per-message fan-out.
func WithConcurrency(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithRateLimit sets the request pacing in queries per second.
func WithRateLimit(qps float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(qps), int(qps)+1)
	}
}

// WithBaseURL overrides the API endpoint. Used by tests.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// NewClient creates a Gmail API client for the given account. The token
// source must yield valid access tokens for that account's mailbox.
func NewClient(tokenSource oauth2.TokenSource, account string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:  oauth2.NewClient(context.Background(), tokenSource),
		account:     account,
		userID:      "me",
		concurrency: 10,
		logger:      slog.Default(),
		baseURL:     defaultBaseURL,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Limit(5.0), 6)
	}

	return c
}

// request makes a rate-limited HTTP request against the API.
// bodyBytes can be nil for requests without a body.
func (c *Client) request(ctx context.Context, method, path string, bodyBytes []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	var body io.Reader
	if bodyBytes != nil {
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{Path: path}
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("unauthorized (401): token may be invalid")
	default:
		return nil, fmt.Errorf("request failed (%d): %s", resp.StatusCode, string(respBody))
	}
}

// Gmail API JSON response types (unexported, used only for JSON unmarshaling).

type messageHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type partBody struct {
	Data string `json:"data"`
	Size int64  `json:"size"`
}

type messagePart struct {
	MimeType string          `json:"mimeType"`
	Headers  []messageHeader `json:"headers"`
	Body     *partBody       `json:"body"`
	Parts    []*messagePart  `json:"parts"`
}

type messageResponse struct {
	ID           string       `json:"id"`
	ThreadID     string       `json:"threadId"`
	LabelIDs     []string     `json:"labelIds"`
	Snippet      string       `json:"snippet"`
	InternalDate string       `json:"internalDate"`
	Payload      *messagePart `json:"payload"`
}

type gmailMessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type listMessagesResponse struct {
	Messages      []gmailMessageRef `json:"messages"`
	NextPageToken string            `json:"nextPageToken"`
}

type labelResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MessagesTotal  int64  `json:"messagesTotal"`
	MessagesUnread int64  `json:"messagesUnread"`
}

type listLabelsResponse struct {
	Labels []labelResponse `json:"labels"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// decodeBase64URL decodes a base64url-encoded string, tolerating optional
// padding. Gmail typically returns unpadded base64url.
func decodeBase64URL(s string) ([]byte, error) {
	if strings.ContainsRune(s, '=') {
		return base64.URLEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}

// ListMessages lists a page of messages and resolves each ID to metadata.
// Per-message fetches run concurrently, bounded by the client concurrency;
// a failed fetch drops that message from the page.
func (c *Client) ListMessages(ctx context.Context, opts ListOptions) (*ListResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	params := url.Values{}
	params.Set("maxResults", strconv.Itoa(maxResults))
	if opts.PageToken != "" {
		params.Set("pageToken", opts.PageToken)
	}
	for _, id := range opts.LabelIDs {
		params.Add("labelIds", id)
	}
	if opts.Query != "" {
		params.Set("q", opts.Query)
	}

	path := fmt.Sprintf("/users/%s/messages?%s", c.userID, params.Encode())
	data, err := c.request(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp listMessagesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}

	if len(resp.Messages) == 0 {
		return &ListResult{}, nil
	}

	resolved := make([]*Message, len(resp.Messages))
	sem := make(chan struct{}, c.concurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i, ref := range resp.Messages {
		i, id := i, ref.ID

		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return ctx.Err()
			}

			msg, err := c.GetMessage(ctx, id)
			if err != nil {
				// Drop this message from the page rather than failing it.
				c.logger.Warn("failed to fetch message", "account", c.account, "id", id, "error", err)
				return nil
			}
			resolved[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	messages := make([]*Message, 0, len(resolved))
	for _, m := range resolved {
		if m != nil {
			messages = append(messages, m)
		}
	}

	return &ListResult{
		Messages:      messages,
		NextPageToken: resp.NextPageToken,
	}, nil
}

// GetMessage fetches metadata for a single message.
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	params := url.Values{}
	params.Set("format", "metadata")
	for _, h := range []string{"From", "To", "Subject", "Date", "Message-ID"} {
		params.Add("metadataHeaders", h)
	}

	path := fmt.Sprintf("/users/%s/messages/%s?%s", c.userID, url.PathEscape(id), params.Encode())
	data, err := c.request(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp messageResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	return c.toMessage(&resp), nil
}

// toMessage converts a provider metadata response to the domain type.
func (c *Client) toMessage(resp *messageResponse) *Message {
	var headers []messageHeader
	if resp.Payload != nil {
		headers = resp.Payload.Headers
	}
	getHeader := func(name string) string {
		for _, h := range headers {
			if strings.EqualFold(h.Name, name) {
				return h.Value
			}
		}
		return ""
	}

	var to []string
	if v := getHeader("To"); v != "" {
		for _, addr := range strings.Split(v, ",") {
			to = append(to, strings.TrimSpace(addr))
		}
	}

	subject := getHeader("Subject")
	if subject == "" {
		subject = "(No subject)"
	}

	// internalDate is epoch millis as a string; absent means epoch 0.
	millis, _ := strconv.ParseInt(resp.InternalDate, 10, 64)

	unread := false
	for _, l := range resp.LabelIDs {
		if l == LabelUnread {
			unread = true
			break
		}
	}

	return &Message{
		ID:        resp.ID,
		Account:   c.account,
		ThreadID:  resp.ThreadID,
		Subject:   subject,
		From:      getHeader("From"),
		To:        to,
		Date:      time.UnixMilli(millis).UTC(),
		Snippet:   resp.Snippet,
		Labels:    resp.LabelIDs,
		Unread:    unread,
		MessageID: getHeader("Message-ID"),
	}
}

// GetFullMessage fetches a message and decodes its body content. The part
// tree is walked recursively: all text/plain parts are concatenated into
// the plain body and all text/html parts into the HTML body. A message
// with no parts falls back to the top-level body payload as plain text.
func (c *Client) GetFullMessage(ctx context.Context, id string) (*MessageBody, error) {
	path := fmt.Sprintf("/users/%s/messages/%s?format=full", c.userID, url.PathEscape(id))
	data, err := c.request(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp messageResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	var text, html strings.Builder
	var walk func(p *messagePart)
	walk = func(p *messagePart) {
		if p == nil {
			return
		}
		if p.Body != nil && p.Body.Data != "" {
			if decoded, err := decodeBase64URL(p.Body.Data); err == nil {
				switch p.MimeType {
				case "text/plain":
					text.Write(decoded)
				case "text/html":
					html.Write(decoded)
				}
			} else {
				c.logger.Warn("failed to decode message part", "account", c.account, "id", id, "error", err)
			}
		}
		for _, sub := range p.Parts {
			walk(sub)
		}
	}

	if resp.Payload != nil {
		if len(resp.Payload.Parts) == 0 {
			// Single-part message: the top-level payload is the body.
			if resp.Payload.Body != nil && resp.Payload.Body.Data != "" {
				if decoded, err := decodeBase64URL(resp.Payload.Body.Data); err == nil {
					text.Write(decoded)
				}
			}
		} else {
			for _, p := range resp.Payload.Parts {
				walk(p)
			}
		}
	}

	body := &MessageBody{
		Text: text.String(),
		HTML: html.String(),
	}
	if body.Text == "" {
		body.Text = body.HTML
	}
	return body, nil
}

// SearchMessages lists messages matching a Gmail search query.
func (c *Client) SearchMessages(ctx context.Context, query string, maxResults int) ([]*Message, error) {
	result, err := c.ListMessages(ctx, ListOptions{
		MaxResults: maxResults,
		Query:      query,
	})
	if err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// getInboxLabel reads the inbox label resource with its counters.
func (c *Client) getInboxLabel(ctx context.Context) (*labelResponse, error) {
	path := fmt.Sprintf("/users/%s/labels/%s", c.userID, LabelInbox)
	data, err := c.request(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp labelResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse label: %w", err)
	}
	return &resp, nil
}

// UnreadCount returns the unread message count of the inbox.
func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	label, err := c.getInboxLabel(ctx)
	if err != nil {
		return 0, err
	}
	return label.MessagesUnread, nil
}

// TotalCount returns the total message count of the inbox.
func (c *Client) TotalCount(ctx context.Context) (int64, error) {
	label, err := c.getInboxLabel(ctx)
	if err != nil {
		return 0, err
	}
	return label.MessagesTotal, nil
}

// Send submits a raw MIME message. The payload is base64url-encoded for
// the provider's send endpoint.
func (c *Client) Send(ctx context.Context, raw []byte, threadID string) (string, error) {
	body := struct {
		Raw      string `json:"raw"`
		ThreadID string `json:"threadId,omitempty"`
	}{
		Raw:      base64.RawURLEncoding.EncodeToString(raw),
		ThreadID: threadID,
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}

	path := fmt.Sprintf("/users/%s/messages/send", c.userID)
	data, err := c.request(ctx, "POST", path, bodyBytes)
	if err != nil {
		return "", err
	}

	var resp sendResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse send response: %w", err)
	}
	return resp.ID, nil
}

// ListLabels returns all labels for the account.
func (c *Client) ListLabels(ctx context.Context) ([]*Label, error) {
	path := fmt.Sprintf("/users/%s/labels", c.userID)
	data, err := c.request(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp listLabelsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}

	labels := make([]*Label, len(resp.Labels))
	for i, l := range resp.Labels {
		labels[i] = &Label{
			ID:             l.ID,
			Name:           l.Name,
			MessagesTotal:  l.MessagesTotal,
			MessagesUnread: l.MessagesUnread,
		}
	}
	return labels, nil
}

// ArchiveMessage removes the inbox label from a message. The message
// stays in the account.
func (c *Client) ArchiveMessage(ctx context.Context, id string) error {
	body := struct {
		RemoveLabelIDs []string `json:"removeLabelIds"`
	}{
		RemoveLabelIDs: []string{LabelInbox},
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	path := fmt.Sprintf("/users/%s/messages/%s/modify", c.userID, url.PathEscape(id))
	_, err = c.request(ctx, "POST", path, bodyBytes)
	return err
}

// ArchiveMessages archives messages concurrently, bounded by the client
// concurrency. Individual failures are counted, never propagated.
func (c *Client) ArchiveMessages(ctx context.Context, ids []string) (*ArchiveResult, error) {
	if len(ids) == 0 {
		return &ArchiveResult{}, nil
	}

	outcomes := make([]error, len(ids))
	sem := make(chan struct{}, c.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id

		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				outcomes[i] = gctx.Err()
				return nil
			}

			if err := c.ArchiveMessage(gctx, id); err != nil {
				c.logger.Warn("failed to archive message", "account", c.account, "id", id, "error", err)
				outcomes[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &ArchiveResult{}
	for _, err := range outcomes {
		if err != nil {
			result.Failed++
		} else {
			result.Archived++
		}
	}
	return result, nil
}

// Ensure Client implements the API interface.
var _ API = (*Client)(nil)
