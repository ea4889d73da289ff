// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/masswhatsapp/campaign-engine/internal/errors"
	"github.com/masswhatsapp/campaign-engine/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

// createRequest mirrors the admission contract: recipients arrive as
// flat maps, phone and name are well-known keys, everything else is a
// per-recipient template field.
type createRequest struct {
	AccountID        string              `json:"account_id"`
	CampaignName     string              `json:"campaign_name"`
	TemplateName     string              `json:"template_name"`
	TemplateLanguage string              `json:"template_language"`
	CountryCode      string              `json:"country_code"`
	ScheduledAt      *time.Time          `json:"scheduled_at"`
	Recipients       []map[string]string `json:"recipients"`
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	in := service.CreateCampaignInput{
		AccountID:        body.AccountID,
		Name:             body.CampaignName,
		TemplateName:     body.TemplateName,
		TemplateLanguage: body.TemplateLanguage,
		CountryCode:      body.CountryCode,
		ScheduledAt:      body.ScheduledAt,
	}
	for _, raw := range body.Recipients {
		rec := service.RecipientInput{
			Phone:  raw["phone"],
			Name:   raw["name"],
			Fields: map[string]string{},
		}
		for k, v := range raw {
			if k != "phone" && k != "name" {
				rec.Fields[k] = v
			}
		}
		in.Recipients = append(in.Recipients, rec)
	}

	result, err := c.CampaignService.CreateCampaign(in)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":     "Campaign created successfully",
		"campaign_id": result.Campaign.ID,
		"status":      result.Campaign.Status,
		"total_count": result.Campaign.TotalCount,
		"daily_usage": result.DailyUsage,
		"daily_limit": result.DailyLimit,
	})
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	accountID := r.URL.Query().Get("account_id")
	status := r.URL.Query().Get("status")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	campaigns, pagination, err := c.CampaignService.ListCampaigns(page, pageSize, accountID, status)
	if err != nil {
		writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := c.CampaignService.Pause(id); err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": "Campaign paused successfully"})
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := c.CampaignService.Resume(id); err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": "Campaign resumed successfully"})
}

func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := c.CampaignService.Cancel(id); err != nil {
		writeError(w, err)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": "Campaign cancelled successfully"})
}

// writeError maps engine error types onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var quotaErr *appErrors.ErrQuotaExhausted
	if errors.As(err, &quotaErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":     err.Error(),
			"remaining": quotaErr.Remaining,
			"limit":     quotaErr.Limit,
		})
		return
	}

	var invalidErr *appErrors.ErrInvalidTransition
	var campaignNotFound *appErrors.ErrCampaignNotFound
	var accountNotFound *appErrors.ErrAccountNotFound
	var pausedErr *appErrors.ErrAccountPaused
	switch {
	case errors.As(err, &invalidErr),
		errors.Is(err, service.ErrTemplateRequired),
		errors.Is(err, service.ErrNoRecipients):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &campaignNotFound), errors.As(err, &accountNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &pausedErr):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
