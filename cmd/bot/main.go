package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/openai/openai-go"
	"github.com/suPer8Hu/gopherchat-bot/internal/ai"
	"github.com/suPer8Hu/gopherchat-bot/internal/analytics"
	"github.com/suPer8Hu/gopherchat-bot/internal/bot"
	"github.com/suPer8Hu/gopherchat-bot/internal/chat"
	"github.com/suPer8Hu/gopherchat-bot/internal/config"
	"github.com/suPer8Hu/gopherchat-bot/internal/db"
	"github.com/suPer8Hu/gopherchat-bot/internal/httpapi"
	"github.com/suPer8Hu/gopherchat-bot/internal/httpapi/handlers"
	"github.com/suPer8Hu/gopherchat-bot/internal/logger"
	"github.com/suPer8Hu/gopherchat-bot/internal/session"
	"github.com/suPer8Hu/gopherchat-bot/internal/store/rabbitmq"
	"github.com/suPer8Hu/gopherchat-bot/internal/store/redisstore"
	"github.com/suPer8Hu/gopherchat-bot/internal/telegram"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.RequireBot(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	// sessions
	var sessions session.Store = session.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rdb, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal("redis connect", zap.Error(err))
		}
		defer rdb.Close()
		sessions = redisstore.New(rdb, cfg.SessionTTL)
	} else {
		log.Warn("REDIS_ADDR not set, sessions are kept in memory")
	}

	// analytics
	var events analytics.Publisher = analytics.NopPublisher{}
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatal("rabbit connect", zap.Error(err))
		}
		defer pub.Close()
		events = pub
	}

	oa := ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	catalog := buildCatalog(cfg)
	reg := buildRegistry(cfg, oa)
	for _, m := range catalog.Models() {
		if !reg.Has(m.Provider) {
			log.Warn("model has no registered provider", zap.String("model", m.ID), zap.String("provider", m.Provider))
		}
	}

	svc := chat.NewService(chat.NewRepo(gdb), reg, catalog, cfg.ChatContextWindowSize,
		chat.WithSystemPrompt(cfg.SystemPrompt),
		chat.WithLogger(log),
	)

	// long polling needs a client timeout above the poll timeout
	tg := telegram.NewClient(cfg.BotAPIBase(), time.Duration(cfg.PollTimeoutSeconds+30)*time.Second)
	if err := tg.SetMyCommands(ctx, bot.Commands()); err != nil {
		log.Warn("setMyCommands failed", zap.Error(err))
	}

	h := bot.NewHandler(bot.Deps{
		Chats:         svc,
		Sessions:      sessions,
		Telegram:      tg,
		Images:        ai.NewOpenAIImageGenerator(oa, cfg.ImageModel, cfg.ImageSize),
		Events:        events,
		Stats:         analytics.NewRecorder(gdb),
		IsAdmin:       cfg.IsAdmin,
		SelectQuality: cfg.ImageQualitySelection,
		Logger:        log,
	})

	pool := bot.NewPool(h, cfg.WorkerConcurrency, log)
	pool.Start(ctx)

	var sink handlers.UpdateSink
	if cfg.WebhookURL != "" {
		sink = pool
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(cfg, sink, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	if cfg.WebhookURL != "" {
		url := strings.TrimRight(cfg.WebhookURL, "/") + httpapi.WebhookPath
		if err := tg.SetWebhook(ctx, url, cfg.WebhookSecret); err != nil {
			log.Fatal("setWebhook failed", zap.Error(err))
		}
		log.Info("webhook mode", zap.String("url", url))
		<-ctx.Done()
	} else {
		if err := tg.DeleteWebhook(ctx); err != nil {
			log.Warn("deleteWebhook failed", zap.Error(err))
		}
		log.Info("polling mode", zap.Int("timeout_seconds", cfg.PollTimeoutSeconds))
		if err := bot.NewPoller(tg, pool, cfg.PollTimeoutSeconds, log).Run(ctx); err != nil {
			log.Error("poller stopped", zap.Error(err))
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	// queued updates finish on a context detached from the signal
	pool.Stop(15 * time.Second)
}

// buildCatalog lists the OpenAI models plus the OpenRouter and Ollama ones
// when those backends are configured.
func buildCatalog(cfg config.Config) *ai.Catalog {
	models := ai.DefaultModels()
	if cfg.OpenRouterAPIKey != "" && cfg.OpenRouterModel != "" {
		models = append(models, ai.ModelInfo{
			ID:       cfg.OpenRouterModel,
			Label:    cfg.OpenRouterModel + " (OpenRouter)",
			Provider: "openrouter",
		})
	}
	if cfg.OllamaBaseURL != "" && cfg.OllamaModel != "" {
		models = append(models, ai.ModelInfo{
			ID:       cfg.OllamaModel,
			Label:    cfg.OllamaModel + " (local)",
			Provider: "ollama",
		})
	}
	return ai.NewCatalog(models, ai.DefaultQualities(), cfg.DefaultModel)
}

func buildRegistry(cfg config.Config, oa openai.Client) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOpenAIProvider(oa, model), nil
	})

	if cfg.OpenRouterAPIKey != "" {
		reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
			m := strings.TrimSpace(model)
			if m == "" {
				m = cfg.OpenRouterModel
			}
			return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
		})
	}

	if cfg.OllamaBaseURL != "" {
		reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
			m := strings.TrimSpace(model)
			if m == "" {
				m = cfg.OllamaModel
			}
			return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
		})
	}
	return reg
}
