package unified

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/unimail/unimail/internal/compose"
)

// Send builds an RFC 2822 message from req and sends it from the given
// account. Returns the provider's id for the sent message.
func (a *Aggregator) Send(ctx context.Context, account string, req compose.Request) (string, error) {
	api, err := a.clientForAccount(ctx, account)
	if err != nil {
		return "", err
	}
	email, err := compose.Build(req)
	if err != nil {
		return "", fmt.Errorf("compose message: %w", err)
	}
	return api.Send(ctx, []byte(email.Raw), "")
}

// ReplyRequest describes a reply to an existing message.
type ReplyRequest struct {
	MessageID   string // provider id of the message being replied to
	Account     string
	Body        string
	Format      compose.Format
	ReplyAll    bool
	Attachments []compose.Attachment
}

// Reply sends a threaded reply: the original sender becomes the
// recipient, the subject gains a single "Re:" prefix, and In-Reply-To /
// References carry the original's RFC 2822 message id so clients thread
// it correctly.
func (a *Aggregator) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	api, err := a.clientForAccount(ctx, req.Account)
	if err != nil {
		return "", err
	}

	orig, err := api.GetMessage(ctx, req.MessageID)
	if err != nil {
		return "", fmt.Errorf("load original message: %w", err)
	}

	to := []string{replyAddress(orig.From)}
	if req.ReplyAll {
		for _, addr := range orig.To {
			addr = replyAddress(addr)
			if addr != "" && addr != to[0] {
				to = append(to, addr)
			}
		}
	}

	email, err := compose.Build(compose.Request{
		To:          to,
		Subject:     replySubject(orig.Subject),
		Body:        req.Body,
		Format:      req.Format,
		InReplyTo:   orig.MessageID,
		Attachments: req.Attachments,
	})
	if err != nil {
		return "", fmt.Errorf("compose reply: %w", err)
	}
	return api.Send(ctx, []byte(email.Raw), orig.ThreadID)
}

// replyAddress extracts the bare address from a header value like
// "Name <addr@example.com>". Unparseable values pass through as-is.
func replyAddress(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	return addr.Address
}

// replySubject prefixes "Re: " unless some casing of it is already
// there.
func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
