package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	appErrors "github.com/masswhatsapp/campaign-engine/internal/errors"
	"github.com/masswhatsapp/campaign-engine/internal/model"
	"github.com/masswhatsapp/campaign-engine/internal/provider"
	"github.com/masswhatsapp/campaign-engine/internal/ratelimit"
)

// run drains one campaign's recipient queue with a bounded worker pool.
// It exits when the queue is empty, the run context is cancelled
// (pause/cancel/shutdown) or a provider configuration error makes the
// whole campaign undeliverable.
func (e *Engine) run(ctx context.Context, ctl *control, c *model.Campaign, acct *model.Account, q *RecipientQueue) {
	defer e.runs.Done()
	defer func() {
		ctl.mu.Lock()
		ctl.running = false
		ctl.stop = nil
		close(ctl.done)
		ctl.mu.Unlock()
	}()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// Watch the persisted status so a pause or cancel issued by another
	// process also interrupts this loop.
	go func() {
		ticker := time.NewTicker(e.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				cur, err := e.campaigns.GetByID(c.ID)
				if err == nil && cur.Status != model.StatusProcessing {
					// Interrupt rather than a bare cancel so a dispatch
					// arriving during the drain waits for this run.
					e.Interrupt(c.ID)
					return
				}
			}
		}
	}()

	var fatalMu sync.Mutex
	var fatalErr error
	fatal := func(err error) {
		fatalMu.Lock()
		if fatalErr == nil {
			fatalErr = err
			cancelRun()
		}
		fatalMu.Unlock()
	}

	limiter := e.limiters.For(acct.ProviderVendorUID)
	cred := provider.Credential{Token: acct.ProviderToken, VendorUID: acct.ProviderVendorUID}

	e.log.Info().
		Str("campaign_id", c.ID).
		Str("account_id", acct.ID).
		Int("workers", e.cfg.Workers).
		Msg("dispatch started")

	var wg sync.WaitGroup
	for w := 0; w < e.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if runCtx.Err() != nil {
					return
				}
				i, rec := q.NextPending()
				if i < 0 {
					return
				}
				e.sendRecipient(runCtx, cred, limiter, c, q, i, rec, fatal)
			}
		}()
	}
	wg.Wait()
	cancelRun()

	// One authoritative snapshot after the workers stop, so the stored
	// counters match the queue no matter how per-send persists landed.
	e.persistCounters(c.ID, q)

	fatalMu.Lock()
	ferr := fatalErr
	fatalMu.Unlock()

	sent, failed, pending, total := q.Progress()
	logEvent := e.log.Info().
		Str("campaign_id", c.ID).
		Int("sent", sent).
		Int("failed", failed).
		Int("pending", pending).
		Int("total", total)

	switch {
	case ferr != nil:
		if _, err := e.campaigns.UpdateStatusIf(c.ID, model.StatusProcessing, model.StatusFailed, nil); err != nil {
			e.log.Error().Err(err).Str("campaign_id", c.ID).Msg("failed to persist failed status")
		}
		e.log.Error().Err(ferr).Str("campaign_id", c.ID).Msg("campaign failed: provider configuration invalid")
	case pending == 0:
		now := time.Now().UTC()
		ok, err := e.campaigns.UpdateStatusIf(c.ID, model.StatusProcessing, model.StatusCompleted, &now)
		if err != nil {
			e.log.Error().Err(err).Str("campaign_id", c.ID).Msg("failed to persist completed status")
			return
		}
		if ok {
			logEvent.Msg("campaign completed")
		}
	default:
		// Pause, cancel or shutdown; remaining recipients stay pending.
		logEvent.Msg("dispatch interrupted")
	}
}

// sendRecipient delivers one recipient, applying the retry policy. A
// cancelled context abandons the recipient as pending; it is never
// marked failed because of an interruption.
func (e *Engine) sendRecipient(ctx context.Context, cred provider.Credential,
	limiter *ratelimit.Limiter, c *model.Campaign, q *RecipientQueue,
	i int, rec model.Recipient, fatal func(error)) {

	for attempt := 1; attempt <= e.cfg.Retry.MaxAttempts; attempt++ {
		if err := limiter.Acquire(ctx); err != nil {
			return
		}

		// The send itself runs on the engine context, not the run
		// context: an in-flight send completes and is recorded even
		// when the campaign is paused or cancelled meanwhile.
		res, err := e.client.SendTemplate(e.ctx, cred, rec.Phone, c.TemplateName, c.TemplateLanguage, rec.Fields)
		if err == nil {
			sentAt := time.Now().UTC()
			q.MarkSent(i, res.MessageID, sentAt)
			e.persistSent(c.ID, rec.ID, res.MessageID, sentAt, q)
			return
		}

		var cfgErr *appErrors.ErrProviderConfig
		if errors.As(err, &cfgErr) {
			fatal(err)
			return
		}

		var sendErr *provider.SendError
		retryable := errors.As(err, &sendErr) && sendErr.Retryable
		if !retryable || attempt == e.cfg.Retry.MaxAttempts {
			q.MarkFailed(i, err.Error(), attempt)
			e.persistFailed(c.ID, rec.ID, err.Error(), attempt, q)
			e.log.Warn().
				Str("campaign_id", c.ID).
				Str("phone", rec.Phone).
				Int("attempts", attempt).
				Err(err).
				Msg("recipient failed")
			return
		}

		if err := sleepCtx(ctx, e.cfg.Retry.Backoff(attempt)); err != nil {
			return
		}
	}
}

func (e *Engine) persistSent(campaignID string, recipientID int64, messageID string, sentAt time.Time, q *RecipientQueue) {
	if err := e.campaigns.MarkRecipientSent(recipientID, messageID, sentAt); err != nil {
		e.log.Error().Err(err).Int64("recipient_id", recipientID).Msg("failed to persist sent recipient")
	}
	e.persistCounters(campaignID, q)
}

func (e *Engine) persistFailed(campaignID string, recipientID int64, lastError string, attempts int, q *RecipientQueue) {
	if err := e.campaigns.MarkRecipientFailed(recipientID, lastError, attempts); err != nil {
		e.log.Error().Err(err).Int64("recipient_id", recipientID).Msg("failed to persist failed recipient")
	}
	e.persistCounters(campaignID, q)
}

// persistCounters holds the queue's persist lock across the snapshot
// and the write, so concurrent workers cannot store snapshots out of
// order and the last write always carries the freshest counts.
func (e *Engine) persistCounters(campaignID string, q *RecipientQueue) {
	q.persistMu.Lock()
	defer q.persistMu.Unlock()
	sent, failed, pending, _ := q.Progress()
	if err := e.campaigns.UpdateCounters(campaignID, sent, failed, pending); err != nil {
		e.log.Error().Err(err).Str("campaign_id", campaignID).Msg("failed to persist campaign counters")
	}
}
