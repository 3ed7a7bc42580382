package compose

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/jhillyerd/enmime"
)

func parseEnvelope(t *testing.T, raw string) *enmime.Envelope {
	t.Helper()
	env, err := enmime.ReadEnvelope(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("composed document does not parse as MIME: %v", err)
	}
	return env
}

func TestPlainSingleFormat(t *testing.T) {
	email, err := Build(Request{
		To:      []string{"bob@example.com"},
		Subject: "Hello",
		Body:    "Just plain text.",
		Format:  FormatPlain,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if email.MixedBoundary != "" || email.AltBoundary != "" {
		t.Errorf("plain message should have no boundaries: %+v", email)
	}
	if strings.Contains(email.Raw, "boundary") {
		t.Error("plain message must not contain boundary markers")
	}
	if !strings.Contains(email.Raw, "Content-Type: text/plain; charset=utf-8") {
		t.Error("missing plain content type header")
	}

	env := parseEnvelope(t, email.Raw)
	if got := strings.TrimSpace(env.Text); got != "Just plain text." {
		t.Errorf("text = %q", got)
	}
	if env.HTML != "" {
		t.Errorf("unexpected html part: %q", env.HTML)
	}
	if env.GetHeader("To") != "bob@example.com" {
		t.Errorf("to header = %q", env.GetHeader("To"))
	}
}

func TestEmptyFormatDefaultsToPlain(t *testing.T) {
	email, err := Build(Request{
		To:   []string{"bob@example.com"},
		Body: "body",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if email.AltBoundary != "" {
		t.Error("default format should not produce an HTML part")
	}
}

func TestHTMLFormatProducesAlternative(t *testing.T) {
	email, err := Build(Request{
		To:      []string{"bob@example.com"},
		Subject: "Hi",
		Body:    "<p>Hello <b>world</b></p>",
		Format:  FormatHTML,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if email.AltBoundary == "" {
		t.Fatal("expected alternative boundary")
	}
	if email.MixedBoundary != "" {
		t.Error("no attachments, so no mixed boundary")
	}

	// Plain must come before HTML so clients preferring HTML render it.
	plainIdx := strings.Index(email.Raw, "Content-Type: text/plain")
	htmlIdx := strings.Index(email.Raw, "Content-Type: text/html")
	if plainIdx < 0 || htmlIdx < 0 || plainIdx > htmlIdx {
		t.Errorf("part order wrong: plain at %d, html at %d", plainIdx, htmlIdx)
	}

	env := parseEnvelope(t, email.Raw)
	if !strings.Contains(env.HTML, "<b>world</b>") {
		t.Errorf("html part = %q", env.HTML)
	}
	// The plain fallback is the HTML with tags stripped.
	if !strings.Contains(env.Text, "Hello") || !strings.Contains(env.Text, "world") {
		t.Errorf("plain fallback = %q", env.Text)
	}
	if strings.Contains(env.Text, "<p>") {
		t.Errorf("plain fallback still contains tags: %q", env.Text)
	}
}

func TestMarkdownFormat(t *testing.T) {
	source := "# Title\n\nSome *emphasis* and `code`.\n"
	email, err := Build(Request{
		To:      []string{"bob@example.com"},
		Subject: "Doc",
		Body:    source,
		Format:  FormatMarkdown,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	env := parseEnvelope(t, email.Raw)
	if !strings.Contains(env.HTML, "<h1") || !strings.Contains(env.HTML, "<em>emphasis</em>") {
		t.Errorf("markdown was not rendered: %q", env.HTML)
	}
	if !strings.Contains(env.HTML, "<style>") {
		t.Error("rendered HTML should embed the email stylesheet")
	}
	// The raw markdown is the plain-text fallback.
	if !strings.Contains(env.Text, "# Title") {
		t.Errorf("plain fallback should be the raw markdown, got %q", env.Text)
	}
}

func TestMarkdownWithAttachment(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("attachment bytes ", 50)))
	email, err := Build(Request{
		To:      []string{"bob@example.com"},
		Subject: "Report",
		Body:    "## Summary\n\nAll good.\n",
		Format:  FormatMarkdown,
		Attachments: []Attachment{
			{Filename: "report.pdf", MimeType: "application/pdf", ContentBase64: payload},
		},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if email.MixedBoundary == "" || email.AltBoundary == "" {
		t.Fatalf("expected both boundaries, got %+v", email)
	}
	if email.MixedBoundary == email.AltBoundary {
		t.Error("mixed and alternative boundaries must not collide")
	}
	if !strings.Contains(email.Raw, "Content-Type: multipart/mixed") {
		t.Error("outer content type must be multipart/mixed")
	}
	if !strings.Contains(email.Raw, "Content-Type: multipart/alternative") {
		t.Error("expected nested multipart/alternative")
	}

	env := parseEnvelope(t, email.Raw)
	if len(env.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(env.Attachments))
	}
	att := env.Attachments[0]
	if att.FileName != "report.pdf" {
		t.Errorf("attachment filename = %q", att.FileName)
	}
	if string(att.Content) != strings.Repeat("attachment bytes ", 50) {
		t.Error("attachment content did not round-trip")
	}
	if env.HTML == "" || env.Text == "" {
		t.Error("nested alternative should produce both text and html parts")
	}

	// Every line of the encoded attachment body must fit in 76 columns.
	inAttachment := false
	for _, line := range strings.Split(email.Raw, "\r\n") {
		if strings.HasPrefix(line, "Content-Transfer-Encoding: base64") {
			inAttachment = true
			continue
		}
		if inAttachment && strings.HasPrefix(line, "--") {
			inAttachment = false
		}
		if inAttachment && len(line) > 76 {
			t.Errorf("encoded line exceeds 76 characters: %d", len(line))
		}
	}
}

func TestPlainWithAttachment(t *testing.T) {
	email, err := Build(Request{
		To:      []string{"bob@example.com"},
		Subject: "File",
		Body:    "see attached",
		Format:  FormatPlain,
		Attachments: []Attachment{
			{Filename: "notes.txt", MimeType: "text/plain", ContentBase64: base64.StdEncoding.EncodeToString([]byte("notes"))},
		},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if email.MixedBoundary == "" {
		t.Fatal("expected mixed boundary")
	}
	if email.AltBoundary != "" {
		t.Error("plain body should not produce an alternative part")
	}

	env := parseEnvelope(t, email.Raw)
	if strings.TrimSpace(env.Text) != "see attached" {
		t.Errorf("text = %q", env.Text)
	}
	if len(env.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(env.Attachments))
	}
}

func TestInvalidAttachmentContent(t *testing.T) {
	_, err := Build(Request{
		To:   []string{"bob@example.com"},
		Body: "x",
		Attachments: []Attachment{
			{Filename: "bad.bin", ContentBase64: "!!! definitely not base64 !!!"},
		},
	})
	if err == nil {
		t.Fatal("expected error for malformed attachment content")
	}
}

func TestReplyHeaders(t *testing.T) {
	email, err := Build(Request{
		To:        []string{"jane@x.com"},
		Subject:   "Re: question",
		Body:      "answer",
		InReplyTo: "<orig-123@mail.example.com>",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	env := parseEnvelope(t, email.Raw)
	if env.GetHeader("In-Reply-To") != "<orig-123@mail.example.com>" {
		t.Errorf("In-Reply-To = %q", env.GetHeader("In-Reply-To"))
	}
	if env.GetHeader("References") != "<orig-123@mail.example.com>" {
		t.Errorf("References = %q", env.GetHeader("References"))
	}
}

func TestRecipientHeadersCommaJoined(t *testing.T) {
	email, err := Build(Request{
		To:      []string{"a@example.com", "b@example.com"},
		CC:      []string{"c@example.com"},
		BCC:     []string{"d@example.com"},
		Subject: "multi",
		Body:    "x",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	env := parseEnvelope(t, email.Raw)
	if env.GetHeader("To") != "a@example.com, b@example.com" {
		t.Errorf("To = %q", env.GetHeader("To"))
	}
	if env.GetHeader("Cc") != "c@example.com" {
		t.Errorf("Cc = %q", env.GetHeader("Cc"))
	}
	if env.GetHeader("Bcc") != "d@example.com" {
		t.Errorf("Bcc = %q", env.GetHeader("Bcc"))
	}
}

func TestNoRecipients(t *testing.T) {
	if _, err := Build(Request{Body: "x"}); err == nil {
		t.Fatal("expected error for empty recipient list")
	}
}

func TestBoundariesUniquePerMessage(t *testing.T) {
	req := Request{
		To:     []string{"bob@example.com"},
		Body:   "<p>hi</p>",
		Format: FormatHTML,
	}
	first, err := Build(req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	second, err := Build(req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if first.AltBoundary == second.AltBoundary {
		t.Error("boundaries must be unique per message")
	}
}

func TestWrapBase64(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"short", "abcd"},
		{"exact", strings.Repeat("a", 76)},
		{"long", strings.Repeat("b", 300)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := wrapBase64(tt.input)
			for _, line := range strings.Split(wrapped, "\r\n") {
				if len(line) > 76 {
					t.Errorf("line length %d exceeds 76", len(line))
				}
			}
			if strings.ReplaceAll(wrapped, "\r\n", "") != tt.input {
				t.Error("wrapping must not alter content")
			}
		})
	}
}
