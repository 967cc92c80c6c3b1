package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/gopherchat-bot/internal/analytics"
	"github.com/suPer8Hu/gopherchat-bot/internal/config"
	"github.com/suPer8Hu/gopherchat-bot/internal/db"
	"github.com/suPer8Hu/gopherchat-bot/internal/logger"
	"github.com/suPer8Hu/gopherchat-bot/internal/store/rabbitmq"
	"go.uber.org/zap"
)

const (
	maxAttempts = 3
	retryDelay  = 5 * time.Second
)

var errBadMessage = errors.New("bad message")

type eventSink interface {
	Insert(ctx context.Context, e analytics.Event) error
}

type retrier interface {
	Retry(ctx context.Context, body []byte, attempt int, delay time.Duration) error
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = log.Named("worker")

	if err := cfg.RequireWorker(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}
	rec := analytics.NewRecorder(gdb)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	if err := rabbitmq.Declare(ch, cfg.RabbitQueue); err != nil {
		log.Fatal("queue declare", zap.Error(err))
	}
	retries := rabbitmq.NewChannelPublisher(ch, cfg.RabbitQueue)

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal("qos", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker started", zap.String("queue", cfg.RabbitQueue), zap.Int("concurrency", concurrency))

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With(zap.Int("worker", workerID))
			for d := range jobs {
				settle(ctx, wlog, d, rec, retries)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Error("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

// settle stores one delivery and acknowledges it. Failed inserts are parked on
// the retry queue; malformed messages and exhausted retries go to the DLQ.
func settle(ctx context.Context, log *zap.Logger, d amqp.Delivery, sink eventSink, retries retrier) {
	start := time.Now()
	err := handleDelivery(ctx, sink, d.Body)
	if err == nil {
		if err := d.Ack(false); err != nil {
			log.Warn("ack failed", zap.Error(err))
		}
		return
	}

	attempt := rabbitmq.Attempt(d) + 1
	log.Warn("event not stored",
		zap.Int("attempt", attempt),
		zap.Duration("cost", time.Since(start)),
		zap.Error(err),
	)

	if errors.Is(err, errBadMessage) || attempt >= maxAttempts {
		_ = d.Nack(false, false)
		return
	}
	if rerr := retries.Retry(ctx, d.Body, attempt, retryDelay); rerr != nil {
		log.Error("retry publish failed", zap.Error(rerr))
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func handleDelivery(ctx context.Context, sink eventSink, body []byte) error {
	var e analytics.Event
	if err := json.Unmarshal(body, &e); err != nil {
		return fmt.Errorf("%w: %v", errBadMessage, err)
	}
	if e.Type == "" {
		return fmt.Errorf("%w: missing type", errBadMessage)
	}
	return sink.Insert(ctx, e)
}
