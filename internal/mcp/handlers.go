package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/unimail/unimail/internal/compose"
	"github.com/unimail/unimail/internal/gmail"
	"github.com/unimail/unimail/internal/store"
	"github.com/unimail/unimail/internal/unified"
)

const maxResultsLimit = 500

// Mailbox is the cross-account inbox surface the tools operate on.
// Satisfied by *unified.Aggregator.
type Mailbox interface {
	GetMessages(ctx context.Context, opts unified.GetOptions) ([]*gmail.Message, error)
	Search(ctx context.Context, query string, maxResults int, accounts []string) ([]*gmail.Message, error)
	GetMessage(ctx context.Context, id, account string) (*gmail.Message, error)
	GetFullMessage(ctx context.Context, id, account string) (*gmail.MessageBody, error)
	ArchiveMessage(ctx context.Context, id, account string) error
	ArchiveMessages(ctx context.Context, ids []string, account string) (*gmail.ArchiveResult, error)
	Summary(ctx context.Context) (*unified.Summary, error)
	AccountStatuses(ctx context.Context) ([]*unified.AccountStatus, error)
	Send(ctx context.Context, account string, req compose.Request) (string, error)
	Reply(ctx context.Context, req unified.ReplyRequest) (string, error)
}

// AccountStore persists account credentials. Satisfied by *store.Store.
type AccountStore interface {
	SaveAccount(a *store.Account) error
	RemoveAccount(email string) (bool, error)
}

// Authorizer runs the interactive OAuth consent flow. Satisfied by
// *oauth.Flow.
type Authorizer interface {
	Authorize(ctx context.Context) (*store.Account, error)
}

type handlers struct {
	mailbox  Mailbox
	accounts AccountStore
	auth     Authorizer
}

// stringArg extracts a required non-empty string from the arguments map.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s parameter is required", key)
	}
	return v, nil
}

// stringsArg extracts an optional string array. JSON arrays arrive as
// []any.
func stringsArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// attachmentsArg extracts attachment objects from a JSON argument list.
// Entries without a filename or content are skipped.
func attachmentsArg(args map[string]any) []compose.Attachment {
	raw, ok := args["attachments"].([]any)
	if !ok {
		return nil
	}
	var out []compose.Attachment
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		filename, _ := obj["filename"].(string)
		content, _ := obj["content"].(string)
		mimeType, _ := obj["mimeType"].(string)
		if filename == "" || content == "" {
			continue
		}
		out = append(out, compose.Attachment{
			Filename:      filename,
			MimeType:      mimeType,
			ContentBase64: content,
		})
	}
	return out
}

// limitArg extracts a non-negative integer limit from a map, with a
// default. JSON numbers arrive as float64. Clamps to maxResultsLimit to
// prevent excessive result sets.
func limitArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok {
		return def
	}
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) || v > float64(maxResultsLimit) {
		return maxResultsLimit
	}
	return int(v)
}

// accountFilter extracts the optional accounts argument into the
// filter slice the aggregator takes. Empty means all accounts.
func accountFilter(args map[string]any) []string {
	return stringsArg(args, "accounts")
}

func (h *handlers) addAccount(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	acct, err := h.auth.Authorize(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("authorization failed: %v", err)), nil
	}
	if err := h.accounts.SaveAccount(acct); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save account failed: %v", err)), nil
	}

	resp := struct {
		Account string `json:"account"`
		Status  string `json:"status"`
	}{Account: acct.Email, Status: "connected"}
	return jsonResult(resp)
}

func (h *handlers) listAccounts(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	statuses, err := h.mailbox.AccountStatuses(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list accounts failed: %v", err)), nil
	}
	if statuses == nil {
		statuses = []*unified.AccountStatus{}
	}
	return jsonResult(statuses)
}

func (h *handlers) removeAccount(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	account, err := stringArg(args, "account")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	removed, err := h.accounts.RemoveAccount(account)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("remove account failed: %v", err)), nil
	}
	if !removed {
		return mcp.NewToolResultError(fmt.Sprintf("account not found: %s", account)), nil
	}

	resp := struct {
		Account string `json:"account"`
		Status  string `json:"status"`
	}{Account: account, Status: "removed"}
	return jsonResult(resp)
}

func (h *handlers) getMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	opts := unified.GetOptions{
		MaxResults: limitArg(args, "maxResults", 50),
		Accounts:   accountFilter(args),
	}
	if ids := stringsArg(args, "labelIds"); len(ids) > 0 {
		opts.LabelIDs = ids
	}

	msgs, err := h.mailbox.GetMessages(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get messages failed: %v", err)), nil
	}
	if msgs == nil {
		msgs = []*gmail.Message{}
	}
	return jsonResult(msgs)
}

func (h *handlers) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	query, err := stringArg(args, "query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	msgs, err := h.mailbox.Search(ctx, query, limitArg(args, "maxResults", 20), accountFilter(args))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if msgs == nil {
		msgs = []*gmail.Message{}
	}
	return jsonResult(msgs)
}

func (h *handlers) getMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, err := stringArg(args, "messageId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	account, err := stringArg(args, "account")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	msg, err := h.mailbox.GetMessage(ctx, id, account)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get message failed: %v", err)), nil
	}

	full, _ := args["full"].(bool)
	if !full {
		return jsonResult(msg)
	}

	body, err := h.mailbox.GetFullMessage(ctx, id, account)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get message body failed: %v", err)), nil
	}

	resp := struct {
		*gmail.Message
		Body string `json:"body"`
		HTML string `json:"html,omitempty"`
	}{Message: msg, Body: body.Text, HTML: body.HTML}
	return jsonResult(resp)
}

func (h *handlers) summary(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := h.mailbox.Summary(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("summary failed: %v", err)), nil
	}
	return jsonResult(summary)
}

func (h *handlers) archiveMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, err := stringArg(args, "messageId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	account, err := stringArg(args, "account")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := h.mailbox.ArchiveMessage(ctx, id, account); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("archive failed: %v", err)), nil
	}

	resp := struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}{ID: id, Status: "archived"}
	return jsonResult(resp)
}

func (h *handlers) archiveMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	ids := stringsArg(args, "messageIds")
	if len(ids) == 0 {
		return mcp.NewToolResultError("messageIds parameter is required"), nil
	}
	account, err := stringArg(args, "account")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := h.mailbox.ArchiveMessages(ctx, ids, account)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("archive failed: %v", err)), nil
	}
	return jsonResult(result)
}

func (h *handlers) send(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	account, err := stringArg(args, "account")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to := stringsArg(args, "to")
	if len(to) == 0 {
		return mcp.NewToolResultError("to parameter is required"), nil
	}
	subject, err := stringArg(args, "subject")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := stringArg(args, "body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	format, _ := args["format"].(string)

	id, err := h.mailbox.Send(ctx, account, compose.Request{
		To:          to,
		Subject:     subject,
		Body:        body,
		Format:      compose.Format(format),
		CC:          stringsArg(args, "cc"),
		BCC:         stringsArg(args, "bcc"),
		Attachments: attachmentsArg(args),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("send failed: %v", err)), nil
	}

	resp := struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}{ID: id, Status: "sent"}
	return jsonResult(resp)
}

func (h *handlers) reply(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, err := stringArg(args, "messageId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	account, err := stringArg(args, "account")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := stringArg(args, "body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	format, _ := args["format"].(string)
	replyAll, _ := args["replyAll"].(bool)

	sentID, err := h.mailbox.Reply(ctx, unified.ReplyRequest{
		MessageID:   id,
		Account:     account,
		Body:        body,
		Format:      compose.Format(format),
		ReplyAll:    replyAll,
		Attachments: attachmentsArg(args),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reply failed: %v", err)), nil
	}

	resp := struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}{ID: sentID, Status: "sent"}
	return jsonResult(resp)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
