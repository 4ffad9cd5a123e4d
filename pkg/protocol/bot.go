package protocol

import (
	"log/slog"
	"time"
)

// Credential is an opaque bot secret. It never appears in logs or JSON.
type Credential string

func (Credential) String() string { return "[redacted]" }

// LogValue keeps slog handlers from printing the secret.
func (Credential) LogValue() slog.Value { return slog.StringValue("[redacted]") }

func (Credential) MarshalJSON() ([]byte, error) { return []byte(`"[redacted]"`), nil }

// Reveal returns the raw secret for the gateway that needs it on the wire.
func (c Credential) Reveal() string { return string(c) }

// BotIdentity is one externally addressable relay endpoint.
type BotIdentity struct {
	Key         string     `json:"key"`
	Credential  Credential `json:"-"`
	DisplayName string     `json:"display_name,omitempty"`
	CachedAt    time.Time  `json:"cached_at,omitempty"`
}
