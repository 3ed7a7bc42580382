package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Tool name constants.
const (
	ToolAddAccount      = "add_account"
	ToolListAccounts    = "list_accounts"
	ToolRemoveAccount   = "remove_account"
	ToolGetMessages     = "get_messages"
	ToolSearch          = "search"
	ToolGetMessage      = "get_message"
	ToolSummary         = "summary"
	ToolArchiveMessage  = "archive_message"
	ToolArchiveMessages = "archive_messages"
	ToolSend            = "send"
	ToolReply           = "reply"
)

// Common argument helpers for recurring tool option definitions.

func withMaxResults(defaultDesc string) mcp.ToolOption {
	return mcp.WithNumber("maxResults",
		mcp.Description("Maximum results to return across all accounts (default "+defaultDesc+")"),
	)
}

func withAccount() mcp.ToolOption {
	return mcp.WithString("account",
		mcp.Required(),
		mcp.Description("Email address of the account to operate on"),
	)
}

func withMessageID() mcp.ToolOption {
	return mcp.WithString("messageId",
		mcp.Required(),
		mcp.Description("Provider message ID (from get_messages or search)"),
	)
}

func withBodyFormat() mcp.ToolOption {
	return mcp.WithString("format",
		mcp.Description("Body format: plain, html, or markdown (default plain)"),
		mcp.Enum("plain", "html", "markdown"),
	)
}

func withAccountsFilter() mcp.ToolOption {
	return mcp.WithArray("accounts",
		mcp.Description("Restrict to specific accounts (email addresses); all accounts when omitted"),
		mcp.WithStringItems(),
	)
}

func withAttachments() mcp.ToolOption {
	return mcp.WithArray("attachments",
		mcp.Description("File attachments as objects with filename, content (base64), and mimeType"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"filename": map[string]any{"type": "string"},
				"content":  map[string]any{"type": "string", "description": "Base64-encoded file content"},
				"mimeType": map[string]any{"type": "string"},
			},
			"required": []string{"filename", "content"},
		}),
	)
}

// Serve creates an MCP server with unified inbox tools and serves over
// stdio. It blocks until stdin is closed or the context is cancelled.
func Serve(ctx context.Context, mailbox Mailbox, accounts AccountStore, auth Authorizer) error {
	s := server.NewMCPServer(
		"unimail",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	h := &handlers{mailbox: mailbox, accounts: accounts, auth: auth}

	s.AddTool(addAccountTool(), h.addAccount)
	s.AddTool(listAccountsTool(), h.listAccounts)
	s.AddTool(removeAccountTool(), h.removeAccount)
	s.AddTool(getMessagesTool(), h.getMessages)
	s.AddTool(searchTool(), h.search)
	s.AddTool(getMessageTool(), h.getMessage)
	s.AddTool(summaryTool(), h.summary)
	s.AddTool(archiveMessageTool(), h.archiveMessage)
	s.AddTool(archiveMessagesTool(), h.archiveMessages)
	s.AddTool(sendTool(), h.send)
	s.AddTool(replyTool(), h.reply)

	stdio := server.NewStdioServer(s)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func addAccountTool() mcp.Tool {
	return mcp.NewTool(ToolAddAccount,
		mcp.WithDescription("Connect a Gmail account via OAuth. Opens a browser for consent and stores the resulting credential."),
	)
}

func listAccountsTool() mcp.Tool {
	return mcp.NewTool(ToolListAccounts,
		mcp.WithDescription("List the connected Gmail accounts with their connection status and unread count."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func removeAccountTool() mcp.Tool {
	return mcp.NewTool(ToolRemoveAccount,
		mcp.WithDescription("Disconnect a Gmail account and delete its stored credential."),
		withAccount(),
	)
}

func getMessagesTool() mcp.Tool {
	return mcp.NewTool(ToolGetMessages,
		mcp.WithDescription("Get recent messages merged across all connected accounts, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		withMaxResults("50"),
		mcp.WithArray("labelIds",
			mcp.Description("Filter by Gmail label IDs (e.g. INBOX, UNREAD, STARRED)"),
			mcp.WithStringItems(),
		),
		withAccountsFilter(),
	)
}

func searchTool() mcp.Tool {
	return mcp.NewTool(ToolSearch,
		mcp.WithDescription("Search all connected accounts with Gmail query syntax (from:, to:, subject:, is:unread, has:attachment, free text)."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Gmail-style search query (e.g. 'from:alice is:unread')"),
		),
		withMaxResults("20"),
		withAccountsFilter(),
	)
}

func getMessageTool() mcp.Tool {
	return mcp.NewTool(ToolGetMessage,
		mcp.WithDescription("Get a single message's metadata by ID, optionally including the full body content."),
		mcp.WithReadOnlyHintAnnotation(true),
		withMessageID(),
		withAccount(),
		mcp.WithBoolean("full",
			mcp.Description("Include the decoded message body (default: false)"),
		),
	)
}

func summaryTool() mcp.Tool {
	return mcp.NewTool(ToolSummary,
		mcp.WithDescription("Get an inbox overview per account: unread count, total messages, and recent subjects."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func archiveMessageTool() mcp.Tool {
	return mcp.NewTool(ToolArchiveMessage,
		mcp.WithDescription("Archive a message (remove it from the inbox)."),
		withMessageID(),
		withAccount(),
	)
}

func archiveMessagesTool() mcp.Tool {
	return mcp.NewTool(ToolArchiveMessages,
		mcp.WithDescription("Archive several messages in one account. Reports how many succeeded and failed."),
		mcp.WithArray("messageIds",
			mcp.Required(),
			mcp.Description("Provider message IDs to archive"),
			mcp.WithStringItems(),
		),
		withAccount(),
	)
}

func sendTool() mcp.Tool {
	return mcp.NewTool(ToolSend,
		mcp.WithDescription("Send an email from one of the connected accounts. Markdown bodies are rendered to styled HTML with a plain-text alternative."),
		withAccount(),
		mcp.WithArray("to",
			mcp.Required(),
			mcp.Description("Recipient email addresses"),
			mcp.WithStringItems(),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Message subject"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Message body"),
		),
		withBodyFormat(),
		mcp.WithArray("cc",
			mcp.Description("CC email addresses"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("bcc",
			mcp.Description("BCC email addresses"),
			mcp.WithStringItems(),
		),
		withAttachments(),
	)
}

func replyTool() mcp.Tool {
	return mcp.NewTool(ToolReply,
		mcp.WithDescription("Reply to a message in its thread. Addresses the original sender and preserves threading headers."),
		withMessageID(),
		withAccount(),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Reply body"),
		),
		withBodyFormat(),
		mcp.WithBoolean("replyAll",
			mcp.Description("Also address the original To recipients"),
		),
		withAttachments(),
	)
}
