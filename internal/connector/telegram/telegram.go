package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/h1v3-io/relay/internal/connector"
	"github.com/h1v3-io/relay/pkg/protocol"
)

// Receive modes.
const (
	ModeWebhook = "webhook"
	ModePolling = "polling"
)

const (
	defaultPollTimeout = 30 // seconds
	pollRetryDelay     = 3 * time.Second
)

// Config holds Telegram connector configuration.
type Config struct {
	Bots        map[string]protocol.Credential // bot key → token
	Mode        string                         // ModeWebhook (default) or ModePolling
	APIEndpoint string                         // format string with token and method; "" = api.telegram.org
	PollTimeout int                            // long-poll timeout in seconds
	HTTPClient  *http.Client                   // nil = client with a timeout above PollTimeout
}

// Connector implements connector.Connector for any number of Telegram bot
// identities. Outbound calls pick the bot by OutboundSend.BotKey.
type Connector struct {
	bots    map[string]*tgbotapi.BotAPI
	config  Config
	handler connector.InboundHandler
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Telegram connector. No network calls are made until Start
// (polling mode) or the first send.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) (*Connector, error) {
	if len(cfg.Bots) == 0 {
		return nil, fmt.Errorf("telegram: no bots configured")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeWebhook
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.PollTimeout+15) * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	bots := make(map[string]*tgbotapi.BotAPI, len(cfg.Bots))
	for key, token := range cfg.Bots {
		if token.Reveal() == "" {
			return nil, fmt.Errorf("telegram: bot %q has no token", key)
		}
		bot := &tgbotapi.BotAPI{
			Token:  token.Reveal(),
			Client: client,
			Buffer: 100,
		}
		bot.SetAPIEndpoint(endpoint)
		bots[key] = bot
	}

	return &Connector{
		bots:    bots,
		config:  cfg,
		handler: handler,
		logger:  logger,
	}, nil
}

func (c *Connector) Name() string { return "telegram" }

// Start begins receiving updates. In polling mode one long-poll loop runs per
// bot identity; in webhook mode updates arrive over HTTP and Start only waits.
// Blocks until context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	if c.config.Mode == ModePolling {
		for _, key := range c.keys() {
			c.wg.Add(1)
			go c.poll(ctx, key, c.bots[key])
		}
	}
	c.logger.Info("telegram connector started", "mode", c.config.Mode, "bots", len(c.bots))

	<-ctx.Done()
	c.wg.Wait()
	c.logger.Info("telegram connector stopped")
	return ctx.Err()
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *Connector) poll(ctx context.Context, key string, bot *tgbotapi.BotAPI) {
	defer c.wg.Done()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.config.PollTimeout
	logger := c.logger.With("bot", key)

	for ctx.Err() == nil {
		updates, err := bot.GetUpdates(u)
		if err != nil {
			logger.Warn("get updates failed, retrying", "error", err, "retry_in", pollRetryDelay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollRetryDelay):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= u.Offset {
				u.Offset = update.UpdateID + 1
			}
			ev, ok := DecodeUpdate(key, update)
			if !ok {
				continue
			}
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				if err := c.handler(ctx, ev); err != nil {
					logger.Error("inbound handler error", "sender", ev.SenderID, "error", err)
				}
			}()
		}
	}
}

// Send delivers one message through the bot named in msg.BotKey.
func (c *Connector) Send(ctx context.Context, msg protocol.OutboundSend) error {
	bot, err := c.bot(msg.BotKey)
	if err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(msg.TargetID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat_id %q: %w", msg.TargetID, err)
	}

	chattable, err := buildSend(chatID, msg)
	if err != nil {
		return err
	}

	err = c.call(ctx, func() error {
		_, err := bot.Send(chattable)
		return err
	})
	if err != nil && msg.Kind == protocol.SendText && msg.Markup == protocol.MarkupHTML {
		// Fallback to plain text if HTML fails
		c.logger.Warn("HTML send failed, falling back to plain text",
			"bot", msg.BotKey,
			"chat_id", msg.TargetID,
			"error", err,
		)
		plain := msg
		plain.Text = StripHTML(msg.Text)
		plain.Markup = protocol.MarkupNone
		chattable, _ = buildSend(chatID, plain)
		err = c.call(ctx, func() error {
			_, err := bot.Send(chattable)
			return err
		})
	}
	if err != nil {
		return fmt.Errorf("telegram: send %s: %w", msg.Kind, err)
	}
	return nil
}

// Acknowledge answers a callback query.
func (c *Connector) Acknowledge(ctx context.Context, ack protocol.Ack) error {
	bot, err := c.bot(ack.BotKey)
	if err != nil {
		return err
	}

	cb := tgbotapi.NewCallback(ack.CallbackID, ack.Text)
	if ack.Alert {
		cb = tgbotapi.NewCallbackWithAlert(ack.CallbackID, ack.Text)
	}
	err = c.call(ctx, func() error {
		_, err := bot.Request(cb)
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

// FetchDisplayName returns the bot's first name from getMe.
func (c *Connector) FetchDisplayName(ctx context.Context, botKey string) (string, error) {
	bot, err := c.bot(botKey)
	if err != nil {
		return "", err
	}

	var me tgbotapi.User
	err = c.call(ctx, func() error {
		var err error
		me, err = bot.GetMe()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("telegram: getMe: %w", err)
	}
	if me.FirstName != "" {
		return me.FirstName, nil
	}
	return me.UserName, nil
}

func (c *Connector) bot(key string) (*tgbotapi.BotAPI, error) {
	bot, ok := c.bots[key]
	if !ok {
		return nil, fmt.Errorf("telegram: bot %q: %w", key, protocol.ErrUnknownBotKey)
	}
	return bot, nil
}

func (c *Connector) keys() []string {
	keys := make([]string, 0, len(c.bots))
	for k := range c.bots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// call runs fn and returns early when ctx is done. The bot API client has no
// context support; fn keeps running until the HTTP client timeout.
func (c *Connector) call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildSend(chatID int64, msg protocol.OutboundSend) (tgbotapi.Chattable, error) {
	markup := keyboard(msg.Actions)
	mode := parseMode(msg.Markup)
	file := tgbotapi.FileID(msg.MediaRef)

	if msg.Kind != protocol.SendText && msg.MediaRef == "" {
		return nil, fmt.Errorf("telegram: %s send without media ref", msg.Kind)
	}

	switch msg.Kind {
	case protocol.SendText:
		m := tgbotapi.NewMessage(chatID, msg.Text)
		m.ParseMode = mode
		m.DisableWebPagePreview = true
		m.ReplyMarkup = markup
		return m, nil
	case protocol.SendPhoto:
		p := tgbotapi.NewPhoto(chatID, file)
		p.Caption, p.ParseMode, p.ReplyMarkup = msg.Caption, mode, markup
		return p, nil
	case protocol.SendVideo:
		v := tgbotapi.NewVideo(chatID, file)
		v.Caption, v.ParseMode, v.ReplyMarkup = msg.Caption, mode, markup
		return v, nil
	case protocol.SendDocument:
		d := tgbotapi.NewDocument(chatID, file)
		d.Caption, d.ParseMode, d.ReplyMarkup = msg.Caption, mode, markup
		return d, nil
	case protocol.SendAudio:
		a := tgbotapi.NewAudio(chatID, file)
		a.Caption, a.ParseMode, a.ReplyMarkup = msg.Caption, mode, markup
		return a, nil
	case protocol.SendVoice:
		v := tgbotapi.NewVoice(chatID, file)
		v.Caption, v.ParseMode, v.ReplyMarkup = msg.Caption, mode, markup
		return v, nil
	}
	return nil, fmt.Errorf("telegram: unsupported send kind %q", msg.Kind)
}

// keyboard returns nil for no actions so no reply_markup is sent.
func keyboard(actions []protocol.ActionButton) any {
	if len(actions) == 0 {
		return nil
	}
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(actions))
	for _, a := range actions {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Token))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}
