package compose

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/jaytaylor/html2text"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// md renders GitHub-flavored markdown; tables and strikethrough show up
// in real email often enough to warrant the extension.
var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// emailCSS is a fixed email-safe stylesheet. External stylesheets are not
// supported by mail clients, so everything is embedded in the document.
const emailCSS = `body { font-family: -apple-system, Helvetica, Arial, sans-serif; font-size: 14px; line-height: 1.5; color: #24292e; }
h1, h2, h3 { margin-top: 24px; margin-bottom: 12px; font-weight: 600; }
h1 { font-size: 20px; border-bottom: 1px solid #eaecef; padding-bottom: 6px; }
h2 { font-size: 17px; }
h3 { font-size: 15px; }
pre { background-color: #f6f8fa; padding: 12px; border-radius: 4px; overflow-x: auto; }
code { background-color: #f6f8fa; padding: 2px 4px; border-radius: 3px; font-family: SFMono-Regular, Consolas, Menlo, monospace; font-size: 13px; }
pre code { padding: 0; }
blockquote { margin: 0; padding-left: 12px; border-left: 3px solid #dfe2e5; color: #6a737d; }
table { border-collapse: collapse; }
th, td { border: 1px solid #dfe2e5; padding: 6px 12px; }
th { background-color: #f6f8fa; }`

// renderMarkdown converts markdown to a complete HTML document wrapped in
// the email-safe template.
func renderMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("<!DOCTYPE html>\n<html><head><style>\n%s\n</style></head><body>\n%s</body></html>", emailCSS, buf.String()), nil
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// htmlToText derives a plain-text fallback from an HTML body.
func htmlToText(html string) string {
	text, err := html2text.FromString(html, html2text.Options{TextOnly: true})
	if err != nil {
		// Degrade to a crude strip-and-collapse.
		stripped := tagPattern.ReplaceAllString(html, " ")
		return strings.Join(strings.Fields(stripped), " ")
	}
	return text
}
