package protocol

// SendKind selects the gateway operation for an outbound send.
type SendKind string

const (
	SendText     SendKind = "text"
	SendPhoto    SendKind = "photo"
	SendVideo    SendKind = "video"
	SendDocument SendKind = "document"
	SendAudio    SendKind = "audio"
	SendVoice    SendKind = "voice"
)

// SendKindFor maps a media kind to the send operation that carries it.
func SendKindFor(m MediaKind) SendKind {
	switch m {
	case MediaPhoto:
		return SendPhoto
	case MediaVideo:
		return SendVideo
	case MediaDocument:
		return SendDocument
	case MediaAudio:
		return SendAudio
	case MediaVoice:
		return SendVoice
	default:
		return SendText
	}
}

// Markup tells the gateway how to render Text/Caption.
type Markup string

const (
	MarkupNone Markup = ""
	MarkupHTML Markup = "html"
)

// ActionButton is an affordance attached to an outbound message. Token is
// built with EncodeAction and comes back verbatim as callback data.
type ActionButton struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// OutboundSend is one message the core asks the gateway to deliver.
type OutboundSend struct {
	BotKey   string         `json:"bot_key"`
	TargetID string         `json:"target_id"`
	Kind     SendKind       `json:"kind"`
	Text     string         `json:"text,omitempty"`
	Caption  string         `json:"caption,omitempty"`
	MediaRef string         `json:"media_ref,omitempty"`
	Markup   Markup         `json:"markup,omitempty"`
	Actions  []ActionButton `json:"actions,omitempty"`
}

// Ack answers a callback action at its origin instead of sending a new
// message.
type Ack struct {
	BotKey     string `json:"bot_key"`
	CallbackID string `json:"callback_id"`
	Text       string `json:"text,omitempty"`
	Alert      bool   `json:"alert,omitempty"`
}
