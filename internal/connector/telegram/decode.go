package telegram

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/h1v3-io/relay/pkg/protocol"
)

const noUsername = "(no username)"

// DecodeUpdate converts an update received by botKey into an inbound event.
// ok is false for update types the relay does not handle (edits, channel
// posts, inline queries).
func DecodeUpdate(botKey string, update tgbotapi.Update) (ev protocol.InboundEvent, ok bool) {
	hint := strconv.Itoa(update.UpdateID)

	if cq := update.CallbackQuery; cq != nil {
		ev = protocol.InboundEvent{
			BotKey:          botKey,
			Kind:            protocol.EventCallback,
			CallbackData:    cq.Data,
			CorrelationHint: cq.ID,
		}
		if cq.From != nil {
			ev.SenderID = strconv.FormatInt(cq.From.ID, 10)
			ev.SenderName = senderName(cq.From)
		}
		return ev, true
	}

	msg := update.Message
	if msg == nil {
		return protocol.InboundEvent{}, false
	}

	ev = protocol.InboundEvent{
		BotKey:          botKey,
		Kind:            protocol.EventContent,
		Text:            msg.Text,
		CorrelationHint: hint,
	}
	if msg.From != nil {
		ev.SenderID = strconv.FormatInt(msg.From.ID, 10)
		ev.SenderName = senderName(msg.From)
	}
	if msg.IsCommand() {
		ev.Kind = protocol.EventCommand
	}
	if ev.Text == "" {
		ev.Text = msg.Caption
	}

	switch {
	case len(msg.Photo) > 0:
		// Sizes are ordered smallest first.
		ev.MediaKind, ev.MediaRef = protocol.MediaPhoto, msg.Photo[len(msg.Photo)-1].FileID
	case msg.Video != nil:
		ev.MediaKind, ev.MediaRef = protocol.MediaVideo, msg.Video.FileID
	case msg.Document != nil:
		ev.MediaKind, ev.MediaRef = protocol.MediaDocument, msg.Document.FileID
	case msg.Audio != nil:
		ev.MediaKind, ev.MediaRef = protocol.MediaAudio, msg.Audio.FileID
	case msg.Voice != nil:
		ev.MediaKind, ev.MediaRef = protocol.MediaVoice, msg.Voice.FileID
	}
	return ev, true
}

// DecodeWebhook reads one webhook body for botKey.
func DecodeWebhook(botKey string, body io.Reader) (protocol.InboundEvent, bool, error) {
	var update tgbotapi.Update
	if err := json.NewDecoder(body).Decode(&update); err != nil {
		return protocol.InboundEvent{}, false, fmt.Errorf("telegram: decode update: %w", err)
	}
	ev, ok := DecodeUpdate(botKey, update)
	return ev, ok, nil
}

func senderName(u *tgbotapi.User) string {
	switch {
	case u.UserName != "":
		return "@" + u.UserName
	case u.FirstName != "":
		return u.FirstName
	}
	return noUsername
}
