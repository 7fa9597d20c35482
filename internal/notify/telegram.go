package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	logctx "github.com/pribylovaa/go-admin-gateway/pkg/log"
)

var (
	ErrTelegramNilClient     = errors.New("telegram client is nil")
	ErrTelegramMissingConfig = errors.New("telegram token or chat_id missing")
)

// TelegramClient - обёртка над sendMessage Bot API.
type TelegramClient struct {
	token      string
	chatID     int64
	prefix     string
	baseURL    string
	httpClient *http.Client
}

func NewTelegramClient(token string, chatID int64, prefix string) *TelegramClient {
	return &TelegramClient{
		token:   token,
		chatID:  chatID,
		prefix:  prefix,
		baseURL: "https://api.telegram.org",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendMessage отправляет текст в чат.
func (c *TelegramClient) SendMessage(ctx context.Context, text string) error {
	if c == nil {
		return ErrTelegramNilClient
	}
	if c.token == "" || c.chatID == 0 {
		return ErrTelegramMissingConfig
	}

	fullText := text
	if c.prefix != "" {
		fullText = fmt.Sprintf("[%s] %s", c.prefix, text)
	}

	body, err := json.Marshal(map[string]any{
		"chat_id": c.chatID,
		"text":    fullText,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("telegram send failed status=%d body=%s", resp.StatusCode, string(raw))
	}

	return nil
}

// Telegram - Notifier поверх TelegramClient.
type Telegram struct {
	client *TelegramClient
}

func NewTelegram(client *TelegramClient) *Telegram { return &Telegram{client: client} }

func (t *Telegram) Error(ctx context.Context, title, description string) {
	if err := t.client.SendMessage(ctx, title+": "+description); err != nil {
		logctx.From(ctx).Warn("telegram_notify_failed", slog.String("err", err.Error()))
	}
}
