package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	appErrors "github.com/masswhatsapp/campaign-engine/internal/errors"
	"github.com/masswhatsapp/campaign-engine/internal/repository"
)

// Scheduler periodically scans for scheduled campaigns whose due time
// has elapsed and hands them to the engine. The scheduled→processing
// compare-and-swap inside Dispatch is the idempotence guard, so a
// campaign is never double-triggered even if two scans overlap.
type Scheduler struct {
	Engine    *Engine
	Campaigns repository.CampaignRepositoryInterface
	Log       zerolog.Logger
	Every     time.Duration

	cron *cron.Cron
	now  func() time.Time
}

func NewScheduler(eng *Engine, campaigns repository.CampaignRepositoryInterface, log zerolog.Logger, every time.Duration) *Scheduler {
	if every <= 0 {
		every = 5 * time.Second
	}
	return &Scheduler{
		Engine:    eng,
		Campaigns: campaigns,
		Log:       log,
		Every:     every,
		now:       time.Now,
	}
}

func (s *Scheduler) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.Every), s.Scan)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.Log.Info().Dur("every", s.Every).Msg("scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Scan dispatches every scheduled campaign that is due.
func (s *Scheduler) Scan() {
	due, err := s.Campaigns.ListDueScheduled(s.now().UTC())
	if err != nil {
		s.Log.Error().Err(err).Msg("scheduler scan failed")
		return
	}
	for _, c := range due {
		if err := s.Engine.Dispatch(c.ID); err != nil {
			// Another trigger may have won the transition already.
			var invalid *appErrors.ErrInvalidTransition
			if errors.As(err, &invalid) {
				continue
			}
			s.Log.Error().Err(err).Str("campaign_id", c.ID).Msg("failed to dispatch scheduled campaign")
			continue
		}
		s.Log.Info().Str("campaign_id", c.ID).Msg("scheduled campaign dispatched")
	}
}
