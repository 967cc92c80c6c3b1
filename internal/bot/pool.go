package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/suPer8Hu/gopherchat-bot/internal/telegram"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("bot: pool closed")

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd telegram.Update)
}

// Pool runs updates on a fixed set of workers. Updates of one Telegram chat
// always land on the same worker, so a conversation is handled in order while
// different chats proceed in parallel.
type Pool struct {
	handler UpdateHandler
	shards  []chan telegram.Update
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewPool(handler UpdateHandler, workers int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{
		handler: handler,
		shards:  make([]chan telegram.Update, workers),
		log:     log.Named("pool"),
	}
	for i := range p.shards {
		p.shards[i] = make(chan telegram.Update, 16)
	}
	return p
}

// Start launches the workers. HandleUpdate gets a context that keeps ctx's
// values but outlives its cancellation; it is cancelled only when Stop runs
// out of drain time.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	p.wg.Add(len(p.shards))
	for i, ch := range p.shards {
		go func(workerID int, updates <-chan telegram.Update) {
			defer p.wg.Done()
			for upd := range updates {
				p.handler.HandleUpdate(ctx, upd)
			}
			p.log.Debug("worker stopped", zap.Int("worker", workerID))
		}(i, ch)
	}
	p.log.Info("pool started", zap.Int("workers", len(p.shards)))
}

// Submit queues an update, blocking while its worker is busy.
func (p *Pool) Submit(ctx context.Context, upd telegram.Update) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.shards[p.shard(upd.ChatID())] <- upd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) shard(chatID int64) int {
	n := int64(len(p.shards))
	i := chatID % n
	if i < 0 {
		i += n
	}
	return int(i)
}

// Stop stops accepting updates and waits up to drain for queued ones to
// finish. Updates still running after that see their context cancelled.
func (p *Pool) Stop(drain time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, ch := range p.shards {
		close(ch)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(drain)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		p.log.Warn("drain timeout, cancelling in-flight updates", zap.Duration("drain", drain))
	}
	if p.cancel != nil {
		p.cancel()
	}
	<-done
}
