package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskbot/api/transport"
	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/pkg/httpcontext"
)

// SecretHeader carries the secret registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateSink handles one inbound update, replies included.
type UpdateSink interface {
	Handle(ctx context.Context, upd domain.Update)
}

type WebhookHandler struct {
	baseHandler
	sink   UpdateSink
	secret []byte
}

func NewWebhookHandler(sink UpdateSink, secret string, adapter *httpcontext.Adapter, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		baseHandler: newBaseHandler(adapter, logger),
		sink:        sink,
		secret:      []byte(secret),
	}
}

// @Summary Telegram webhook
// @Tags telegram
// @Router /telegram/webhook [post]
func (h *WebhookHandler) Receive(ctx *fasthttp.RequestCtx) {
	if len(h.secret) > 0 && subtle.ConstantTimeCompare(ctx.Request.Header.Peek(SecretHeader), h.secret) != 1 {
		h.respondJSON(ctx, http.StatusUnauthorized, transport.NewError(string(domain.ErrCodeUnauthorized), "invalid webhook secret", nil))
		return
	}

	var raw transport.TelegramUpdate
	if err := json.Unmarshal(ctx.PostBody(), &raw); err != nil {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid update", nil))
		return
	}

	upd, ok := raw.ToDomain()
	if !ok {
		h.logger.Debug("ignoring unsupported update", zap.Int64("update_id", raw.UpdateID))
		h.respondSuccess(ctx, http.StatusOK, nil)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	h.sink.Handle(stdCtx, upd)
	h.respondSuccess(ctx, http.StatusOK, nil)
}
