package queue

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/masswhatsapp/campaign-engine/internal/engine"
	appErrors "github.com/masswhatsapp/campaign-engine/internal/errors"
)

// DispatchJob is the payload carried on TopicDispatch.
type DispatchJob struct {
	CampaignID string `json:"campaign_id"`
}

// StartDispatchSubscriber wires the dispatch topic to the engine: each
// job starts (or resumes) the campaign's dispatcher.
func StartDispatchSubscriber(q Queue, eng *engine.Engine, log zerolog.Logger) error {
	return q.Subscribe(TopicDispatch, func(payload []byte) error {
		var job DispatchJob
		if err := json.Unmarshal(payload, &job); err != nil {
			log.Error().Err(err).Msg("invalid dispatch job payload")
			return nil // malformed, no retry
		}

		if err := eng.Dispatch(job.CampaignID); err != nil {
			var notFound *appErrors.ErrCampaignNotFound
			var invalid *appErrors.ErrInvalidTransition
			if errors.As(err, &notFound) || errors.As(err, &invalid) {
				// Terminal or already handled elsewhere; retrying
				// cannot change the outcome.
				log.Warn().Err(err).Str("campaign_id", job.CampaignID).Msg("dispatch job skipped")
				return nil
			}
			log.Error().Err(err).Str("campaign_id", job.CampaignID).Msg("dispatch job failed")
			return err
		}
		return nil
	})
}

// PublishDispatch enqueues a campaign for delivery.
func PublishDispatch(q Queue, campaignID string) error {
	body, err := json.Marshal(DispatchJob{CampaignID: campaignID})
	if err != nil {
		return err
	}
	return q.Publish(TopicDispatch, body)
}
