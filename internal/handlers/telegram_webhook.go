package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tashaleeh/api/internal/platform/httpx"
	"github.com/tashaleeh/api/internal/platform/requestctx"
	"github.com/tashaleeh/api/internal/platform/telegram"
)

const (
	maxWebhookBody = 1 << 20

	secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// UpdateHandler consumes one decoded Bot API update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update telegram.Update) error
}

// TelegramWebhookHandlers receives Bot API updates pushed to the webhook URL.
type TelegramWebhookHandlers struct {
	updates UpdateHandler
	secret  string
}

// NewTelegramWebhookHandlers constructs the webhook endpoint. The secret, when
// configured, must match the header Telegram attaches to every delivery.
func NewTelegramWebhookHandlers(updates UpdateHandler, secret string) (*TelegramWebhookHandlers, error) {
	if updates == nil {
		return nil, errors.New("handlers: update handler is required")
	}
	return &TelegramWebhookHandlers{updates: updates, secret: secret}, nil
}

// Routes registers the webhook endpoint under the provided router.
func (h *TelegramWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/telegram", h.receive)
}

func (h *TelegramWebhookHandlers) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.secret != "" {
		token := r.Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
			httpx.WriteError(ctx, w, httpx.NewError("webhook_unauthorized", "invalid webhook secret token", http.StatusUnauthorized))
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_read_failed", "failed to read request body", http.StatusBadRequest))
		return
	}

	var update telegram.Update
	if err := json.Unmarshal(body, &update); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_malformed", "request body is not a valid update", http.StatusBadRequest))
		return
	}

	// Routing failures are acknowledged anyway: Telegram retries non-2xx
	// responses and a poison update would wedge the whole queue.
	if err := h.updates.HandleUpdate(ctx, update); err != nil {
		requestctx.Logger(ctx).Error("webhook: update handling failed",
			zap.Int64("update_id", update.UpdateID), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
