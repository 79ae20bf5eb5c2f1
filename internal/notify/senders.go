package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

var webhookClient = &http.Client{Timeout: 10 * time.Second}

// TelegramSender posts through the Bot API sendMessage call, formatting the
// title in bold Markdown.
type TelegramSender struct {
	baseURL string
	token   string
	chatID  string
}

func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{baseURL: "https://api.telegram.org", token: token, chatID: chatID}
}

func (t *TelegramSender) Name() string { return "telegram" }

func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	payload := struct {
		ChatID    string `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}{t.chatID, "*" + title + "*\n" + message, "Markdown"}
	return post(ctx, t.Name(), t.baseURL+"/bot"+t.token+"/sendMessage", payload)
}

// DiscordSender posts to a channel webhook.
type DiscordSender struct {
	webhookURL string
}

func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL}
}

func (d *DiscordSender) Name() string { return "discord" }

func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	payload := struct {
		Content string `json:"content"`
	}{"**" + title + "**\n" + message}
	return post(ctx, d.Name(), d.webhookURL, payload)
}

// post sends payload as JSON. The token-bearing URL is never included in
// the returned error.
func post(ctx context.Context, sender, target string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify/%s: encode: %w", sender, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify/%s: build request", sender)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := webhookClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("notify/%s: %w", sender, ctx.Err())
		}
		return fmt.Errorf("notify/%s: request failed", sender)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify/%s: status %d: %s", sender, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
