package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat-bot/internal/common"
	"github.com/suPer8Hu/gopherchat-bot/internal/httpapi/middleware"
	"github.com/suPer8Hu/gopherchat-bot/internal/telegram"
	"go.uber.org/zap"
)

// SecretHeader carries the secret_token given to setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type UpdateSink interface {
	Submit(ctx context.Context, upd telegram.Update) error
}

type Handler struct {
	Sink   UpdateSink
	Secret string
	Log    *zap.Logger
}

func NewHandler(sink UpdateSink, secret string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Sink: sink, Secret: secret, Log: log.Named("webhook")}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// TelegramWebhook accepts one update and queues it. A non-2xx answer makes
// Telegram redeliver the update later.
func (h *Handler) TelegramWebhook(c *gin.Context) {
	if h.Secret != "" {
		got := c.GetHeader(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			common.Fail(c, http.StatusUnauthorized, 40101, "bad secret token")
			return
		}
	}

	var upd telegram.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid update")
		return
	}

	if err := h.Sink.Submit(c.Request.Context(), upd); err != nil {
		h.Log.Warn("queue update failed",
			zap.Int64("update_id", upd.UpdateID),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err),
		)
		common.Fail(c, http.StatusServiceUnavailable, 50301, "busy")
		return
	}
	common.OK(c, nil)
}
