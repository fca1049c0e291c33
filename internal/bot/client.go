// Package bot runs the Telegram side of holdtrack: the API client, the update
// dispatcher and the chat commands.
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrNoAPI is returned when a Client was built without a Telegram API.
var ErrNoAPI = errors.New("telegram api not configured")

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	GetMe() (tgbotapi.User, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

var _ API = (*tgbotapi.BotAPI)(nil)

// ClientConfig holds configuration for the Telegram client.
type ClientConfig struct {
	Token string

	// Timeout bounds each Bot API HTTP call. Long polling adds PollTimeout on top.
	// Default: 10 seconds
	Timeout time.Duration

	// SendRate and SendBurst throttle outgoing messages.
	// Default: 25 per second, burst 5
	SendRate  rate.Limit
	SendBurst int

	Logger zerolog.Logger
}

// DefaultClientConfig returns default client settings for token.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:     token,
		Timeout:   10 * time.Second,
		SendRate:  25,
		SendBurst: 5,
		Logger:    zerolog.Nop(),
	}
}

// Client wraps the Telegram Bot API with context support and send throttling.
type Client struct {
	api     API
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient connects to Telegram. The token is verified with getMe before returning.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	// Long-poll requests hold the connection for PollTimeout seconds.
	httpClient := &http.Client{Timeout: cfg.Timeout + pollTimeout*time.Second}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}

	return NewClientWithAPI(api, cfg), nil
}

// NewClientWithAPI wraps an existing API implementation.
func NewClientWithAPI(api API, cfg ClientConfig) *Client {
	if cfg.SendRate <= 0 {
		cfg.SendRate = 25
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 5
	}

	return &Client{
		api:     api,
		limiter: rate.NewLimiter(cfg.SendRate, cfg.SendBurst),
		log:     cfg.Logger.With().Str("component", "telegram").Logger(),
	}
}

// API returns the underlying Bot API.
func (c *Client) API() API {
	return c.api
}

// GetMe asks Telegram who the bot is. It returns early with ctx.Err() when ctx
// ends first; the underlying HTTP call is bounded by the client timeout.
func (c *Client) GetMe(ctx context.Context) (tgbotapi.User, error) {
	if c == nil || c.api == nil {
		return tgbotapi.User{}, ErrNoAPI
	}

	type result struct {
		user tgbotapi.User
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		u, err := c.api.GetMe()
		ch <- result{user: u, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return tgbotapi.User{}, fmt.Errorf("getMe: %w", r.err)
		}
		return r.user, nil
	case <-ctx.Done():
		return tgbotapi.User{}, ctx.Err()
	}
}

// Reply sends text to chatID as HTML, split into as many messages as needed.
func (c *Client) Reply(ctx context.Context, chatID int64, replyTo int, text string) error {
	for i, chunk := range SplitMessage(text, MaxMessageLength) {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for send slot: %w", err)
		}

		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if i == 0 && replyTo != 0 {
			msg.ReplyToMessageID = replyTo
		}

		if _, err := c.api.Send(msg); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}
