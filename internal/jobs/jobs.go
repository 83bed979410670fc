// Package jobs runs the periodic maintenance tasks: replaying undelivered
// drop box codes and reporting cards nobody has been able to notify.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/lostcard-service/internal/config"
	"github.com/Dan9191/lostcard-service/internal/models"
	"github.com/Dan9191/lostcard-service/internal/repository"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Replayer resends queued box codes
type Replayer interface {
	Replay() int
	Pending() int
}

// Scheduler owns the cron runner and the jobs registered on it
type Scheduler struct {
	cron  *cron.Cron
	store repository.CardStore
	queue Replayer
	log   *logrus.Logger
	now   func() time.Time
}

// NewScheduler registers the box replay and stale card jobs from cfg
func NewScheduler(cfg *config.Config, store repository.CardStore, queue Replayer, log *logrus.Logger) (*Scheduler, error) {
	cronLog := cron.PrintfLogger(log.WithField("component", "cron"))
	s := &Scheduler{
		cron:  cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog))),
		store: store,
		queue: queue,
		log:   log,
		now:   time.Now,
	}

	if queue != nil && cfg.BoxReplaySchedule != "" {
		if _, err := s.cron.AddFunc(cfg.BoxReplaySchedule, s.ReplayBoxCodes); err != nil {
			return nil, fmt.Errorf("invalid BOX_REPLAY_SCHEDULE: %w", err)
		}
	}
	if cfg.StaleCardSchedule != "" {
		age := cfg.StaleCardAge
		_, err := s.cron.AddFunc(cfg.StaleCardSchedule, func() {
			if _, err := s.ReportStaleCards(context.Background(), age); err != nil {
				s.log.WithError(err).Error("Stale card report failed")
			}
		})
		if err != nil {
			return nil, fmt.Errorf("invalid STALE_CARD_SCHEDULE: %w", err)
		}
	}
	return s, nil
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs or ctx, whichever ends first
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// ReplayBoxCodes retries every undelivered box code
func (s *Scheduler) ReplayBoxCodes() {
	if s.queue == nil || s.queue.Pending() == 0 {
		return
	}
	delivered := s.queue.Replay()
	s.log.WithFields(logrus.Fields{
		"delivered": delivered,
		"pending":   s.queue.Pending(),
	}).Info("Replayed box codes")
}

// ReportStaleCards logs the cards still waiting for an email after age
func (s *Scheduler) ReportStaleCards(ctx context.Context, age time.Duration) ([]*models.Card, error) {
	waiting, err := s.store.GetAll(ctx, models.CardFilter{Status: models.Ptr(models.StatusWaitingForEmail)})
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting cards: %w", err)
	}

	cutoff := s.now().Add(-age)
	var stale []*models.Card
	for _, card := range waiting {
		if card.CreatedAt.Before(cutoff) {
			stale = append(stale, card)
		}
	}
	if len(stale) > 0 {
		ids := make([]string, 0, len(stale))
		for _, card := range stale {
			ids = append(ids, card.ReferenceCode())
		}
		s.log.WithFields(logrus.Fields{
			"count":      len(stale),
			"references": ids,
		}).Warn("Cards still waiting for an owner email")
	}
	return stale, nil
}
