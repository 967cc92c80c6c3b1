package bot

import (
	"context"
	"time"

	"github.com/suPer8Hu/gopherchat-bot/internal/telegram"
	"go.uber.org/zap"
)

type Updater interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]telegram.Update, error)
}

type Submitter interface {
	Submit(ctx context.Context, upd telegram.Update) error
}

// Poller long-polls getUpdates and feeds the results to a Submitter.
type Poller struct {
	updates Updater
	sink    Submitter
	timeout int
	backoff time.Duration
	log     *zap.Logger
}

func NewPoller(updates Updater, sink Submitter, timeoutSeconds int, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		updates: updates,
		sink:    sink,
		timeout: timeoutSeconds,
		backoff: 3 * time.Second,
		log:     log.Named("poller"),
	}
}

// Run polls until ctx is cancelled. Transport errors are logged and retried
// after a pause.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}

		batch, err := p.updates.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Warn("getUpdates failed", zap.Int64("offset", offset), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.backoff):
			}
			continue
		}

		for _, upd := range batch {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			if err := p.sink.Submit(ctx, upd); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
