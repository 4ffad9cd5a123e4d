package telegram

import (
	"html"
	"regexp"

	"github.com/h1v3-io/relay/pkg/protocol"
)

var reTag = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)

// parseMode maps relay markup to the Bot API parse_mode value.
func parseMode(m protocol.Markup) string {
	if m == protocol.MarkupHTML {
		return "HTML"
	}
	return ""
}

// StripHTML removes Telegram HTML tags and unescapes entities, returning
// plain text.
func StripHTML(s string) string {
	return html.UnescapeString(reTag.ReplaceAllString(s, ""))
}
