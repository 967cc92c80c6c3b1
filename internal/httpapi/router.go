package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat-bot/internal/common"
	"github.com/suPer8Hu/gopherchat-bot/internal/config"
	"github.com/suPer8Hu/gopherchat-bot/internal/httpapi/handlers"
	"github.com/suPer8Hu/gopherchat-bot/internal/httpapi/middleware"
	"go.uber.org/zap"
)

// WebhookPath is where Telegram posts updates in webhook mode.
const WebhookPath = "/telegram/webhook"

// NewRouter serves the health check and, when sink is non-nil, the Telegram
// webhook.
func NewRouter(cfg config.Config, sink handlers.UpdateSink, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(sink, cfg.WebhookSecret, log)

	r.GET("/ping", h.Ping)

	if sink != nil {
		r.POST(WebhookPath, h.TelegramWebhook)
	}
	return r
}
