// internal/service/campaign_service.go
package service

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/masswhatsapp/campaign-engine/internal/engine"
	appErrors "github.com/masswhatsapp/campaign-engine/internal/errors"
	"github.com/masswhatsapp/campaign-engine/internal/model"
	"github.com/masswhatsapp/campaign-engine/internal/quota"
	"github.com/masswhatsapp/campaign-engine/internal/queue"
	"github.com/masswhatsapp/campaign-engine/internal/repository"
)

// CampaignService is the admission and control surface of the engine:
// it reserves quota, creates campaigns, and applies pause/resume/cancel
// transitions.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	AccountRepo  repository.AccountRepositoryInterface
	Ledger       *quota.Ledger
	Queue        queue.Queue
	// Engine is set when the engine runs in this process; control
	// requests then interrupt the dispatcher immediately instead of
	// waiting for its status poll.
	Engine *engine.Engine
	Log    zerolog.Logger
}

type RecipientInput struct {
	Phone  string
	Name   string
	Fields map[string]string
}

type CreateCampaignInput struct {
	AccountID        string
	Name             string
	TemplateName     string
	TemplateLanguage string
	CountryCode      string
	ScheduledAt      *time.Time
	Recipients       []RecipientInput
}

// CreateCampaignResult mirrors what the admission endpoint reports back
// to the caller alongside the campaign itself.
type CreateCampaignResult struct {
	Campaign   *model.Campaign
	DailyUsage int
	DailyLimit int
}

// Request validation errors, mapped to 400 by the controller.
var (
	ErrTemplateRequired = errors.New("template name is required")
	ErrNoRecipients     = errors.New("recipients list is empty")
)

// CreateCampaign admits a campaign: it reserves quota for the full
// recipient list (all-or-nothing), materializes the recipients once,
// and enqueues delivery unless the campaign is scheduled for later.
func (s *CampaignService) CreateCampaign(in CreateCampaignInput) (*CreateCampaignResult, error) {
	if strings.TrimSpace(in.TemplateName) == "" {
		return nil, ErrTemplateRequired
	}
	if len(in.Recipients) == 0 {
		return nil, ErrNoRecipients
	}

	recipients := make([]model.Recipient, len(in.Recipients))
	for i, r := range in.Recipients {
		recipients[i] = model.Recipient{
			Phone:  NormalizePhone(r.Phone, in.CountryCode),
			Name:   r.Name,
			Fields: r.Fields,
			Status: model.RecipientPending,
		}
	}

	if _, err := s.Ledger.Reserve(in.AccountID, len(recipients)); err != nil {
		return nil, err
	}

	status := model.StatusPending
	if in.ScheduledAt != nil && in.ScheduledAt.After(time.Now()) {
		status = model.StatusScheduled
	}

	c := &model.Campaign{
		ID:               uuid.NewString(),
		AccountID:        in.AccountID,
		Name:             in.Name,
		TemplateName:     in.TemplateName,
		TemplateLanguage: defaultLanguage(in.TemplateLanguage),
		Status:           status,
		TotalCount:       len(recipients),
		PendingCount:     len(recipients),
		ScheduledAt:      in.ScheduledAt,
	}

	if err := s.CampaignRepo.Create(c, recipients); err != nil {
		// The reservation must not outlive the failed insert.
		if rerr := s.Ledger.Release(in.AccountID, len(recipients)); rerr != nil {
			s.Log.Error().Err(rerr).Str("account_id", in.AccountID).Msg("failed to release quota reservation")
		}
		return nil, err
	}

	if status == model.StatusPending {
		if err := queue.PublishDispatch(s.Queue, c.ID); err != nil {
			s.Log.Error().Err(err).Str("campaign_id", c.ID).Msg("failed to enqueue dispatch")
		}
	}

	acct, err := s.AccountRepo.GetByID(in.AccountID)
	if err != nil {
		return nil, err
	}

	s.Log.Info().
		Str("campaign_id", c.ID).
		Str("account_id", in.AccountID).
		Int("recipients", len(recipients)).
		Str("status", string(status)).
		Msg("campaign created")

	return &CreateCampaignResult{
		Campaign:   c,
		DailyUsage: acct.DailyUsage,
		DailyLimit: acct.DailyLimit,
	}, nil
}

// Pause stops a processing campaign after its in-flight sends finish.
// Remaining recipients stay pending for resumption.
func (s *CampaignService) Pause(campaignID string) error {
	ok, err := s.CampaignRepo.UpdateStatusIf(campaignID, model.StatusProcessing, model.StatusPaused, nil)
	if err != nil {
		return err
	}
	if !ok {
		return s.transitionError(campaignID, model.StatusPaused)
	}
	if s.Engine != nil {
		s.Engine.Interrupt(campaignID)
	}
	s.Log.Info().Str("campaign_id", campaignID).Msg("campaign paused")
	return nil
}

// Resume continues a paused campaign from its queue cursor.
func (s *CampaignService) Resume(campaignID string) error {
	ok, err := s.CampaignRepo.UpdateStatusIf(campaignID, model.StatusPaused, model.StatusProcessing, nil)
	if err != nil {
		return err
	}
	if !ok {
		return s.transitionError(campaignID, model.StatusProcessing)
	}
	if err := queue.PublishDispatch(s.Queue, campaignID); err != nil {
		s.Log.Error().Err(err).Str("campaign_id", campaignID).Msg("failed to enqueue resume")
		return err
	}
	s.Log.Info().Str("campaign_id", campaignID).Msg("campaign resumed")
	return nil
}

// Cancel terminally stops a campaign. Pending recipients are left as
// pending but can never be processed again.
func (s *CampaignService) Cancel(campaignID string) error {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	if !c.Status.CanTransition(model.StatusCancelled) {
		return appErrors.NewInvalidTransition(c.Status, model.StatusCancelled)
	}
	ok, err := s.CampaignRepo.UpdateStatusIf(campaignID, c.Status, model.StatusCancelled, nil)
	if err != nil {
		return err
	}
	if !ok {
		return s.transitionError(campaignID, model.StatusCancelled)
	}
	if s.Engine != nil {
		s.Engine.Interrupt(campaignID)
	}
	s.Log.Info().Str("campaign_id", campaignID).Msg("campaign cancelled")
	return nil
}

// transitionError reloads the campaign to report which state blocked
// the request.
func (s *CampaignService) transitionError(campaignID string, to model.CampaignStatus) error {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	return appErrors.NewInvalidTransition(c.Status, to)
}

// GetCampaign returns the campaign with its recipients.
func (s *CampaignService) GetCampaign(campaignID string) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	recipients, err := s.CampaignRepo.ListRecipients(campaignID)
	if err != nil {
		return nil, err
	}
	c.Recipients = recipients
	return c, nil
}

// CampaignStats is the polling payload: counters plus status.
type CampaignStats struct {
	CampaignID   string               `json:"campaignId"`
	Name         string               `json:"name"`
	TotalCount   int                  `json:"totalCount"`
	SentCount    int                  `json:"sentCount"`
	FailedCount  int                  `json:"failedCount"`
	PendingCount int                  `json:"pendingCount"`
	Status       model.CampaignStatus `json:"status"`
}

func (s *CampaignService) GetCampaignStats(campaignID string) (*CampaignStats, error) {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	return &CampaignStats{
		CampaignID:   c.ID,
		Name:         c.Name,
		TotalCount:   c.TotalCount,
		SentCount:    c.SentCount,
		FailedCount:  c.FailedCount,
		PendingCount: c.PendingCount,
		Status:       c.Status,
	}, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(page, pageSize int, accountID, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, accountID, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// SetAccountDailyLimit raises or lowers an account's daily allowance.
func (s *CampaignService) SetAccountDailyLimit(accountID string, limit int) error {
	return s.AccountRepo.UpdateDailyLimit(accountID, limit)
}

// SetAccountPaused toggles the admin kill switch on an account.
func (s *CampaignService) SetAccountPaused(accountID string, paused bool) error {
	return s.AccountRepo.SetPaused(accountID, paused)
}

func defaultLanguage(lang string) string {
	if strings.TrimSpace(lang) == "" {
		return "en"
	}
	return lang
}
