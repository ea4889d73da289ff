// Package engine drives campaign delivery: it owns the campaign
// lifecycle, runs one dispatcher per processing campaign, and applies
// the retry policy per recipient. Control requests (pause, resume,
// cancel) flip the persisted status via compare-and-swap; the engine
// interrupts the matching dispatcher so the change takes effect within
// one in-flight send.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/masswhatsapp/campaign-engine/internal/errors"
	"github.com/masswhatsapp/campaign-engine/internal/model"
	"github.com/masswhatsapp/campaign-engine/internal/provider"
	"github.com/masswhatsapp/campaign-engine/internal/ratelimit"
	"github.com/masswhatsapp/campaign-engine/internal/repository"
)

type Config struct {
	// Workers bounds the send concurrency within one campaign. All
	// workers still share the per-credential rate limiter.
	Workers int
	// PollInterval is how often a running dispatcher re-reads the
	// persisted status, so pause/cancel issued by another process is
	// picked up too.
	PollInterval time.Duration
	Retry        RetryPolicy
}

type Engine struct {
	cfg       Config
	campaigns repository.CampaignRepositoryInterface
	accounts  repository.AccountRepositoryInterface
	client    provider.Client
	limiters  *ratelimit.Registry
	log       zerolog.Logger

	ctx      context.Context
	shutdown context.CancelFunc
	runs     sync.WaitGroup

	mu       sync.Mutex
	controls map[string]*control
}

// control serializes lifecycle operations for one campaign and tracks
// its active dispatcher, enforcing at most one per campaign. done is
// closed when the run's goroutine has fully exited, so a dispatch that
// arrives while an interrupted run is still draining can wait for it.
type control struct {
	mu          sync.Mutex
	running     bool
	interrupted bool
	stop        context.CancelFunc
	done        chan struct{}
}

func NewEngine(cfg Config, campaigns repository.CampaignRepositoryInterface,
	accounts repository.AccountRepositoryInterface, client provider.Client,
	limiters *ratelimit.Registry, log zerolog.Logger) *Engine {

	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:       cfg,
		campaigns: campaigns,
		accounts:  accounts,
		client:    client,
		limiters:  limiters,
		log:       log,
		ctx:       ctx,
		shutdown:  cancel,
		controls:  make(map[string]*control),
	}
}

func (e *Engine) control(id string) *control {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.controls[id]
	if !ok {
		c = &control{}
		e.controls[id] = c
	}
	return c
}

// Dispatch moves a pending or scheduled campaign to processing and
// starts its dispatcher. A campaign already in processing without an
// active dispatcher (process restart, redelivered job) is picked up
// from its queue cursor. Dispatch is idempotent for a campaign whose
// dispatcher is running undisturbed; when the dispatcher has been
// interrupted but is still draining its in-flight sends, Dispatch waits
// for it to exit instead of dropping the request, so a resume issued
// mid-drain still starts a fresh run.
func (e *Engine) Dispatch(id string) error {
	ctl := e.control(id)
	ctl.mu.Lock()
	defer ctl.mu.Unlock()

	for ctl.running {
		if !ctl.interrupted {
			return nil
		}
		done := ctl.done
		ctl.mu.Unlock()
		select {
		case <-done:
		case <-e.ctx.Done():
			ctl.mu.Lock()
			return nil
		}
		ctl.mu.Lock()
	}

	c, err := e.campaigns.GetByID(id)
	if err != nil {
		return err
	}

	switch c.Status {
	case model.StatusPending, model.StatusScheduled:
		ok, err := e.campaigns.UpdateStatusIf(id, c.Status, model.StatusProcessing, nil)
		if err != nil {
			return err
		}
		if !ok {
			// Raced with another transition; a concurrent dispatcher
			// winning the swap is not an error.
			cur, err := e.campaigns.GetByID(id)
			if err != nil {
				return err
			}
			if cur.Status == model.StatusProcessing {
				return nil
			}
			return appErrors.NewInvalidTransition(cur.Status, model.StatusProcessing)
		}
		c.Status = model.StatusProcessing
	case model.StatusProcessing:
		// resume an interrupted run
	default:
		return appErrors.NewInvalidTransition(c.Status, model.StatusProcessing)
	}

	acct, err := e.accounts.GetByID(c.AccountID)
	if err != nil {
		return err
	}
	if acct.ProviderToken == "" || acct.ProviderVendorUID == "" {
		if _, err := e.campaigns.UpdateStatusIf(id, model.StatusProcessing, model.StatusFailed, nil); err != nil {
			return err
		}
		return appErrors.NewProviderConfig("account has no provider credential")
	}

	recipients, err := e.campaigns.ListRecipients(id)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(e.ctx)
	ctl.running = true
	ctl.interrupted = false
	ctl.stop = cancel
	ctl.done = make(chan struct{})

	e.runs.Add(1)
	go e.run(runCtx, ctl, c, acct, NewRecipientQueue(recipients))
	return nil
}

// Interrupt stops the campaign's dispatcher if one is running. The
// persisted status must already reflect the requested state; in-flight
// sends finish and their outcomes are recorded before the loop exits.
func (e *Engine) Interrupt(id string) {
	ctl := e.control(id)
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.running && ctl.stop != nil {
		ctl.interrupted = true
		ctl.stop()
	}
}

// Running reports whether the campaign has an active dispatcher.
func (e *Engine) Running(id string) bool {
	ctl := e.control(id)
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.running
}

// Recover re-dispatches campaigns left in processing by a previous
// process, resuming each from its last persisted counters.
func (e *Engine) Recover() error {
	stuck, err := e.campaigns.ListByStatus(model.StatusProcessing)
	if err != nil {
		return err
	}
	for _, c := range stuck {
		if err := e.Dispatch(c.ID); err != nil {
			e.log.Error().Err(err).Str("campaign_id", c.ID).Msg("failed to recover campaign")
			continue
		}
		e.log.Info().Str("campaign_id", c.ID).Msg("recovered interrupted campaign")
	}
	return nil
}

// Shutdown stops all dispatchers and waits for them to exit. Campaigns
// stay in processing and are picked up by Recover on the next start.
func (e *Engine) Shutdown() {
	e.shutdown()
	e.runs.Wait()
}
