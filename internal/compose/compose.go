// Package compose builds wire-correct MIME email documents.
//
// The assembly rules are deliberately explicit rather than delegated to a
// MIME library: single-part text/plain when there is nothing else,
// multipart/alternative for plain+HTML, and an outer multipart/mixed
// wrapping either of those when attachments are present.
package compose

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Format selects how the body text is interpreted.
type Format string

const (
	FormatPlain    Format = "plain"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// Attachment is one file to attach. Content is base64-encoded.
type Attachment struct {
	Filename      string `json:"filename"`
	MimeType      string `json:"mimeType"`
	ContentBase64 string `json:"content"`
}

// Request is a logical send request.
type Request struct {
	To          []string
	Subject     string
	Body        string
	Format      Format
	CC          []string
	BCC         []string
	InReplyTo   string // provider-level Message-ID of the message being replied to
	Attachments []Attachment
}

// Email is a fully formed MIME document plus the boundary tokens used to
// build it. It exists only for the duration of a send.
type Email struct {
	Raw           string
	MixedBoundary string // set when attachments produced a multipart/mixed wrapper
	AltBoundary   string // set when an HTML part produced a multipart/alternative
}

// base64LineLength is the maximum encoded line length permitted by MIME.
const base64LineLength = 76

// Build turns a send request into a wire-ready MIME document.
func Build(req Request) (*Email, error) {
	if len(req.To) == 0 {
		return nil, fmt.Errorf("no recipients")
	}

	plain := req.Body
	html := ""
	switch req.Format {
	case FormatMarkdown:
		rendered, err := renderMarkdown(req.Body)
		if err != nil {
			return nil, fmt.Errorf("render markdown: %w", err)
		}
		html = rendered
		// The raw markdown is a perfectly readable plain-text fallback.
	case FormatHTML:
		html = req.Body
		plain = htmlToText(req.Body)
	case FormatPlain, "":
	default:
		return nil, fmt.Errorf("unknown format %q", req.Format)
	}

	headers := []string{
		"To: " + strings.Join(req.To, ", "),
	}
	if len(req.CC) > 0 {
		headers = append(headers, "Cc: "+strings.Join(req.CC, ", "))
	}
	if len(req.BCC) > 0 {
		headers = append(headers, "Bcc: "+strings.Join(req.BCC, ", "))
	}
	headers = append(headers, "Subject: "+req.Subject)
	if req.InReplyTo != "" {
		headers = append(headers, "In-Reply-To: "+req.InReplyTo)
		headers = append(headers, "References: "+req.InReplyTo)
	}
	headers = append(headers, "MIME-Version: 1.0")

	email := &Email{}
	var lines []string

	switch {
	case len(req.Attachments) == 0 && html == "":
		// Single-part plain message, no boundaries at all.
		lines = append(headers,
			"Content-Type: text/plain; charset=utf-8",
			"",
			plain,
		)

	case len(req.Attachments) == 0:
		email.AltBoundary = newBoundary("alt")
		lines = append(headers,
			fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q", email.AltBoundary),
			"",
		)
		lines = append(lines, alternativeParts(email.AltBoundary, plain, html)...)

	default:
		email.MixedBoundary = newBoundary("mixed")
		lines = append(headers,
			fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q", email.MixedBoundary),
			"",
			"--"+email.MixedBoundary,
		)

		if html == "" {
			lines = append(lines,
				"Content-Type: text/plain; charset=utf-8",
				"",
				plain,
			)
		} else {
			email.AltBoundary = newBoundary("alt")
			lines = append(lines,
				fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q", email.AltBoundary),
				"",
			)
			lines = append(lines, alternativeParts(email.AltBoundary, plain, html)...)
		}

		for _, att := range req.Attachments {
			part, err := attachmentPart(email.MixedBoundary, att)
			if err != nil {
				return nil, err
			}
			lines = append(lines, part...)
		}
		lines = append(lines, "--"+email.MixedBoundary+"--")
	}

	email.Raw = strings.Join(lines, "\r\n")
	return email, nil
}

// alternativeParts renders the body of a multipart/alternative: plain
// first, HTML second. Mail clients render the last part they understand,
// so HTML last maximizes fidelity.
func alternativeParts(boundary, plain, html string) []string {
	return []string{
		"--" + boundary,
		"Content-Type: text/plain; charset=utf-8",
		"",
		plain,
		"",
		"--" + boundary,
		"Content-Type: text/html; charset=utf-8",
		"",
		html,
		"",
		"--" + boundary + "--",
	}
}

// attachmentPart renders one attachment part under the mixed boundary.
// The content is decoded and re-encoded so malformed input fails here
// rather than producing a corrupt document, and the encoded body is
// hard-wrapped at 76 characters per line.
func attachmentPart(boundary string, att Attachment) ([]string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, att.ContentBase64)

	content, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("attachment %s: invalid base64 content: %w", att.Filename, err)
	}

	mimeType := att.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return []string{
		"--" + boundary,
		fmt.Sprintf("Content-Type: %s; name=%q", mimeType, att.Filename),
		"Content-Transfer-Encoding: base64",
		fmt.Sprintf("Content-Disposition: attachment; filename=%q", att.Filename),
		"",
		wrapBase64(base64.StdEncoding.EncodeToString(content)),
		"",
	}, nil
}

// wrapBase64 hard-wraps an encoded string at the MIME line-length limit.
func wrapBase64(s string) string {
	if len(s) <= base64LineLength {
		return s
	}
	var b strings.Builder
	for len(s) > base64LineLength {
		b.WriteString(s[:base64LineLength])
		b.WriteString("\r\n")
		s = s[base64LineLength:]
	}
	b.WriteString(s)
	return b.String()
}

// newBoundary returns a boundary token unique per message: a prefix (so
// mixed- and alternative-level boundaries can never collide), a
// high-resolution timestamp, and random bits.
func newBoundary(prefix string) string {
	random := make([]byte, 8)
	_, _ = rand.Read(random)
	return fmt.Sprintf("%s-%x-%x", prefix, time.Now().UnixNano(), random)
}
