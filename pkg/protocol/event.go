package protocol

// EventKind classifies what the transport received.
type EventKind string

const (
	EventCommand  EventKind = "command"
	EventCallback EventKind = "callback"
	EventContent  EventKind = "content"
)

// MediaKind is the kind of media attached to a message, if any.
type MediaKind string

const (
	MediaNone     MediaKind = ""
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
	MediaVoice    MediaKind = "voice"
)

// Valid reports whether m is one of the known media kinds (or none).
func (m MediaKind) Valid() bool {
	switch m {
	case MediaNone, MediaPhoto, MediaVideo, MediaDocument, MediaAudio, MediaVoice:
		return true
	}
	return false
}

// Content is the relayable payload of a message: text, media, or both.
// For media, Text is the caption.
type Content struct {
	Text      string    `json:"text,omitempty"`
	MediaKind MediaKind `json:"media_kind,omitempty"`
	MediaRef  string    `json:"media_ref,omitempty"`
}

// HasMedia reports whether the content carries a media reference.
func (c Content) HasMedia() bool {
	return c.MediaKind != MediaNone && c.MediaRef != ""
}

// IsEmpty reports whether there is nothing to relay.
func (c Content) IsEmpty() bool {
	return c.Text == "" && !c.HasMedia()
}

// InboundEvent is what a transport hands to the relay core.
type InboundEvent struct {
	BotKey     string    `json:"bot_key"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Kind       EventKind `json:"kind"`
	Text       string    `json:"text,omitempty"`
	MediaKind  MediaKind `json:"media_kind,omitempty"`
	MediaRef   string    `json:"media_ref,omitempty"`

	// Callback fields. Transports that already decoded the token fill
	// CallbackAction and CallbackTargetID; otherwise CallbackData carries the
	// raw token and the classifier decodes it.
	CallbackAction   Action `json:"callback_action,omitempty"`
	CallbackTargetID string `json:"callback_target_id,omitempty"`
	CallbackData     string `json:"callback_data,omitempty"`

	// CorrelationHint is the provider's handle for this event. For callbacks
	// it is the id the acknowledgment must answer.
	CorrelationHint string `json:"correlation_hint,omitempty"`
}

// Content extracts the relayable payload of the event.
func (e InboundEvent) Content() Content {
	return Content{Text: e.Text, MediaKind: e.MediaKind, MediaRef: e.MediaRef}
}
