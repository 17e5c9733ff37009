package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// DefaultAPIURL is the Telegram Bot API root.
const DefaultAPIURL = "https://api.telegram.org"

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	client   *resty.Client
	// poll is used for long polling and outlives the 30s send timeout.
	poll *resty.Client
}

// NewTelegramNotifier creates a notifier with optional proxy support.
// An empty apiURL uses DefaultAPIURL.
func NewTelegramNotifier(apiURL, botToken, chatID, proxyURL string) *TelegramNotifier {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	base := fmt.Sprintf("%s/bot%s", apiURL, botToken)
	newClient := func(timeout time.Duration) *resty.Client {
		c := resty.New().SetBaseURL(base).SetTimeout(timeout)
		if proxyURL != "" {
			c.SetProxy(proxyURL)
		}
		return c
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		client:   newClient(30 * time.Second),
		poll:     newClient(35 * time.Second),
	}
}

// Send sends a message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    t.ChatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := t.Send(ctx, text); err != nil {
			lastErr = err
			if i == maxRetries {
				break
			}
			backoff := time.Duration(1<<uint(i)) * time.Second
			log.Warn().Err(err).Int("attempt", i+1).Dur("backoff", backoff).Msg("telegram send failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}
