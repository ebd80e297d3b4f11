package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/chitragupt/chitragupt/pkg/observability"
)

// retryDelay is how long the poller backs off after a failed getUpdates
const retryDelay = 5 * time.Second

// UpdateSource fetches inbound updates; satisfied by *Client
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64) ([]Update, error)
}

// Poller runs the long-poll intake loop, handing every update to submit.
// Submission must not block on the update's actual handling.
type Poller struct {
	source UpdateSource
	submit func(Update)
	logger *observability.Logger
}

// NewPoller creates a poller feeding updates into submit
func NewPoller(source UpdateSource, submit func(Update), logger *observability.Logger) *Poller {
	return &Poller{
		source: source,
		submit: submit,
		logger: logger,
	}
}

// Run polls until ctx is cancelled. A failed fetch is retried after a
// fixed delay; the confirmed offset only advances past submitted updates.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64

	p.logger.Info("Update poller started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Update poller stopped")
			return ctx.Err()
		default:
		}

		updates, err := p.source.GetUpdates(ctx, offset)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			p.logger.WithError(err).Warn("getUpdates failed, retrying")
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
			continue
		}

		for _, update := range updates {
			p.submit(update)
			offset = update.UpdateID + 1
		}
	}
}
