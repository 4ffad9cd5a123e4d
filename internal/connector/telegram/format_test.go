package telegram

import (
	"testing"

	"github.com/h1v3-io/relay/pkg/protocol"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"bot of <b>Acme</b>.", "bot of Acme."},
		{"<b>Tom &amp; Jerry &lt;3</b>", "Tom & Jerry <3"},
		{`<a href="https://x">link</a>`, "link"},
		{"a < b", "a < b"},
	}
	for _, tt := range tests {
		if got := StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	if got := parseMode(protocol.MarkupHTML); got != "HTML" {
		t.Errorf("html → %q", got)
	}
	if got := parseMode(protocol.MarkupNone); got != "" {
		t.Errorf("none → %q", got)
	}
}
