package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tashaleeh/api/internal/platform/config"
	"github.com/tashaleeh/api/internal/services"
)

const defaultTimeout = 10 * time.Second

// Client talks to the Telegram Bot API and implements services.Messenger.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient constructs a Bot API client from the Telegram configuration.
func NewClient(cfg config.TelegramConfig) (*Client, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		token:      token,
	}, nil
}

// Error carries the Bot API failure classification for a single delivery.
type Error struct {
	Op          string
	ChatID      int64
	StatusCode  int
	Description string
	err         error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Description != "" {
		return fmt.Sprintf("telegram: %s to %d: %s", e.Op, e.ChatID, e.Description)
	}
	return fmt.Sprintf("telegram: %s to %d: %v", e.Op, e.ChatID, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// Unreachable reports whether the recipient can never be delivered to:
// the bot is blocked, the chat is gone, or the handle is unknown.
func (e *Error) Unreachable() bool {
	if e == nil {
		return false
	}
	if e.StatusCode == http.StatusForbidden {
		return true
	}
	desc := strings.ToLower(e.Description)
	return e.StatusCode == http.StatusBadRequest &&
		(strings.Contains(desc, "chat not found") || strings.Contains(desc, "user is deactivated"))
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      int64        `json:"chat_id"`
	Text        string       `json:"text"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

type sendPhotoRequest struct {
	ChatID  int64  `json:"chat_id"`
	Photo   string `json:"photo"`
	Caption string `json:"caption,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// SendMessage delivers text with optional inline controls to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, msg services.OutboundMessage) error {
	req := sendMessageRequest{ChatID: chatID, Text: msg.Text}
	if markup := buildMarkup(msg.Keyboard); markup != nil {
		req.ReplyMarkup = markup
	}
	return c.call(ctx, "sendMessage", chatID, req)
}

// SendPhoto delivers a previously uploaded media reference with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, fileID string, caption string) error {
	return c.call(ctx, "sendPhoto", chatID, sendPhotoRequest{
		ChatID:  chatID,
		Photo:   fileID,
		Caption: caption,
	})
}

func (c *Client) call(ctx context.Context, method string, chatID int64, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal %s: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &Error{Op: method, ChatID: chatID, err: err}
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return &Error{Op: method, ChatID: chatID, StatusCode: resp.StatusCode, err: err}
	}
	if !parsed.OK {
		status := parsed.ErrorCode
		if status == 0 {
			status = resp.StatusCode
		}
		return &Error{Op: method, ChatID: chatID, StatusCode: status, Description: parsed.Description}
	}
	return nil
}

func buildMarkup(keyboard [][]services.Button) *replyMarkup {
	if len(keyboard) == 0 {
		return nil
	}
	rows := make([][]inlineButton, 0, len(keyboard))
	for _, row := range keyboard {
		if len(row) == 0 {
			continue
		}
		buttons := make([]inlineButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, inlineButton{Text: b.Text, CallbackData: b.Data})
		}
		rows = append(rows, buttons)
	}
	if len(rows) == 0 {
		return nil
	}
	return &replyMarkup{InlineKeyboard: rows}
}
