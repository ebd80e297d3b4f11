package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chitragupt/chitragupt/pkg/observability"
	"github.com/chitragupt/chitragupt/pkg/rbac"
)

// Sweeper expires approval requests that sat pending longer than the
// configured TTL, rejecting them and cleaning up their prompts. A TTL of
// zero means requests wait indefinitely and no sweeper should run.
type Sweeper struct {
	store   *rbac.Store
	api     ChatAPI
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
	cron    *cron.Cron
}

func NewSweeper(store *rbac.Store, api ChatAPI, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{
		store:   store,
		api:     api,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
		cron:    cron.New(),
	}
}

// Start schedules the sweep every minute
func (s *Sweeper) Start() error {
	if s.ttl <= 0 {
		return fmt.Errorf("sweeper requires a positive ttl, got %s", s.ttl)
	}
	if _, err := s.cron.AddFunc("@every 1m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("ttl", s.ttl.String()).Info("approval sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep rejects every request pending longer than the TTL
func (s *Sweeper) Sweep(ctx context.Context) {
	expired, err := s.store.ExpireRequests(time.Now().UTC().Add(-s.ttl))
	if err != nil {
		s.logger.WithError(err).Error("approval sweep failed")
		return
	}
	for _, req := range expired {
		for _, prompt := range req.Prompts {
			text := fmt.Sprintf("Request from id %d expired unanswered.", req.RequesterID)
			if err := s.api.EditMessageText(ctx, prompt.ChatID, prompt.MessageID, text, nil); err != nil {
				s.logger.WithError(err).WithField("chat", prompt.ChatID).Warn("could not settle expired prompt")
			}
		}
		if _, err := s.api.SendMessage(ctx, req.RequesterID, "Your request expired without a decision. Send /start to try again.", nil); err != nil {
			s.logger.WithError(err).WithField("requester", req.RequesterID).Warn("could not notify requester of expiry")
		}
		if s.metrics != nil {
			s.metrics.ApprovalsTotal.WithLabelValues("expired").Inc()
		}
		s.logger.WithField("requester", req.RequesterID).Info("approval request expired")
	}
}
