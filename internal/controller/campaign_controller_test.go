package controller_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/masswhatsapp/campaign-engine/internal/controller"
	appErrors "github.com/masswhatsapp/campaign-engine/internal/errors"
	"github.com/masswhatsapp/campaign-engine/internal/handler"
	"github.com/masswhatsapp/campaign-engine/internal/model"
	"github.com/masswhatsapp/campaign-engine/internal/quota"
	"github.com/masswhatsapp/campaign-engine/internal/service"
)

// --- Mocks ---

type stubCampaignRepo struct {
	mu         sync.Mutex
	campaigns  map[string]*model.Campaign
	recipients map[string][]model.Recipient
}

func newStubCampaignRepo() *stubCampaignRepo {
	return &stubCampaignRepo{
		campaigns:  map[string]*model.Campaign{},
		recipients: map[string][]model.Recipient{},
	}
}

func (s *stubCampaignRepo) Create(c *model.Campaign, recipients []model.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *c
	s.campaigns[c.ID] = &copied
	s.recipients[c.ID] = recipients
	return nil
}

func (s *stubCampaignRepo) GetByID(id string) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	copied := *c
	return &copied, nil
}

func (s *stubCampaignRepo) ListCampaigns(offset, limit int, accountID, status string) ([]*model.Campaign, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range s.campaigns {
		copied := *c
		out = append(out, &copied)
	}
	return out, len(out), nil
}

func (s *stubCampaignRepo) ListDueScheduled(now time.Time) ([]*model.Campaign, error) {
	return nil, nil
}

func (s *stubCampaignRepo) ListByStatus(status model.CampaignStatus) ([]*model.Campaign, error) {
	return nil, nil
}

func (s *stubCampaignRepo) UpdateStatusIf(id string, from, to model.CampaignStatus, completedAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (s *stubCampaignRepo) UpdateCounters(id string, sent, failed, pending int) error { return nil }

func (s *stubCampaignRepo) ListRecipients(campaignID string) ([]model.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recipients[campaignID], nil
}

func (s *stubCampaignRepo) MarkRecipientSent(id int64, messageID string, sentAt time.Time) error {
	return nil
}

func (s *stubCampaignRepo) MarkRecipientFailed(id int64, lastError string, attempts int) error {
	return nil
}

type stubAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
}

func newStubAccountRepo(accounts ...*model.Account) *stubAccountRepo {
	s := &stubAccountRepo{accounts: map[string]*model.Account{}}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *stubAccountRepo) GetByID(id string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, appErrors.NewAccountNotFound(id)
	}
	copied := *a
	return &copied, nil
}

func (s *stubAccountRepo) Create(a *model.Account) error { return nil }

func (s *stubAccountRepo) UpdateUsage(id string, usage int, resetAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		a.DailyUsage = usage
		a.UsageResetAt = resetAt
	}
	return nil
}

func (s *stubAccountRepo) UpdateDailyLimit(id string, limit int) error { return nil }
func (s *stubAccountRepo) SetPaused(id string, paused bool) error      { return nil }

type nopQueue struct{}

func (nopQueue) Publish(topic string, payload []byte) error { return nil }
func (nopQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	return nil
}
func (nopQueue) Close() error { return nil }

// --- Router wiring, mirroring cmd/server ---

func newTestRouter(campaigns *stubCampaignRepo, accounts *stubAccountRepo) http.Handler {
	svc := &service.CampaignService{
		CampaignRepo: campaigns,
		AccountRepo:  accounts,
		Ledger:       quota.NewLedger(accounts),
		Queue:        nopQueue{},
		Log:          zerolog.Nop(),
	}
	ctl := &controller.CampaignController{CampaignService: svc}
	h := handler.NewCampaignHandler(svc)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/messages/send", ctl.CreateCampaign)
		r.Get("/campaigns", ctl.ListCampaigns)
		r.Get("/campaigns/{id}", h.GetCampaignHandler)
		r.Get("/campaigns/{id}/stats", h.GetCampaignStatsHandler)
		r.Post("/campaigns/{id}/pause", ctl.PauseCampaign)
		r.Post("/campaigns/{id}/resume", ctl.ResumeCampaign)
		r.Post("/campaigns/{id}/cancel", ctl.CancelCampaign)
	})
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func testAccount(limit, usage int) *model.Account {
	return &model.Account{
		ID:                "acct-1",
		DailyLimit:        limit,
		DailyUsage:        usage,
		UsageResetAt:      time.Now().UTC(),
		ProviderToken:     "token",
		ProviderVendorUID: "vendor-1",
	}
}

// --- Tests ---

func TestCreateCampaignEndpoint(t *testing.T) {
	campaigns := newStubCampaignRepo()
	router := newTestRouter(campaigns, newStubAccountRepo(testAccount(100, 0)))

	w := postJSON(t, router, "/api/messages/send", map[string]interface{}{
		"account_id":    "acct-1",
		"campaign_name": "promo",
		"template_name": "welcome",
		"country_code":  "254",
		"recipients": []map[string]string{
			{"phone": "712345678", "name": "Jane", "discount": "10%"},
			{"phone": "722000111", "name": "John"},
		},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["campaign_id"] == "" {
		t.Error("missing campaign_id")
	}
	if resp["status"] != string(model.StatusPending) {
		t.Errorf("expected pending, got %v", resp["status"])
	}
	if resp["total_count"].(float64) != 2 {
		t.Errorf("wrong total_count: %v", resp["total_count"])
	}
	if resp["daily_usage"].(float64) != 2 || resp["daily_limit"].(float64) != 100 {
		t.Errorf("wrong usage report: %v / %v", resp["daily_usage"], resp["daily_limit"])
	}

	// Extra recipient keys become template fields.
	id := resp["campaign_id"].(string)
	stored, _ := campaigns.ListRecipients(id)
	if stored[0].Fields["discount"] != "10%" {
		t.Errorf("custom field lost: %+v", stored[0].Fields)
	}
}

func TestCreateCampaignQuotaExceeded(t *testing.T) {
	router := newTestRouter(newStubCampaignRepo(), newStubAccountRepo(testAccount(100, 99)))

	w := postJSON(t, router, "/api/messages/send", map[string]interface{}{
		"account_id":    "acct-1",
		"campaign_name": "too big",
		"template_name": "welcome",
		"recipients": []map[string]string{
			{"phone": "+254712345678"},
			{"phone": "+254712345679"},
		},
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["remaining"].(float64) != 1 || resp["limit"].(float64) != 100 {
		t.Errorf("quota detail missing: %v", resp)
	}
}

func TestCreateCampaignValidationErrors(t *testing.T) {
	router := newTestRouter(newStubCampaignRepo(), newStubAccountRepo(testAccount(100, 0)))

	w := postJSON(t, router, "/api/messages/send", map[string]interface{}{
		"account_id": "acct-1",
		"recipients": []map[string]string{{"phone": "+254712345678"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing template: expected 400, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/messages/send", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}
}

func TestPauseEndpoint(t *testing.T) {
	campaigns := newStubCampaignRepo()
	campaigns.Create(&model.Campaign{ID: "camp-1", Status: model.StatusProcessing}, nil)
	campaigns.Create(&model.Campaign{ID: "camp-done", Status: model.StatusCompleted}, nil)
	router := newTestRouter(campaigns, newStubAccountRepo())

	w := postJSON(t, router, "/api/campaigns/camp-1/pause", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	c, _ := campaigns.GetByID("camp-1")
	if c.Status != model.StatusPaused {
		t.Errorf("expected paused, got %s", c.Status)
	}

	// Completed campaigns cannot be paused.
	w = postJSON(t, router, "/api/campaigns/camp-done/pause", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	// Unknown campaigns are a 404.
	w = postJSON(t, router, "/api/campaigns/missing/pause", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestCancelEndpointIsTerminal(t *testing.T) {
	campaigns := newStubCampaignRepo()
	campaigns.Create(&model.Campaign{ID: "camp-1", Status: model.StatusPaused}, nil)
	router := newTestRouter(campaigns, newStubAccountRepo())

	w := postJSON(t, router, "/api/campaigns/camp-1/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = postJSON(t, router, "/api/campaigns/camp-1/resume", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("resume after cancel: expected 400, got %d", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	campaigns := newStubCampaignRepo()
	campaigns.Create(&model.Campaign{
		ID: "camp-1", Name: "promo", Status: model.StatusProcessing,
		TotalCount: 10, SentCount: 4, FailedCount: 1, PendingCount: 5,
	}, nil)
	router := newTestRouter(campaigns, newStubAccountRepo())

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns/camp-1/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats service.CampaignStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.SentCount != 4 || stats.FailedCount != 1 || stats.PendingCount != 5 {
		t.Errorf("wrong stats: %+v", stats)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/campaigns/missing/stats", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestListCampaignsEndpoint(t *testing.T) {
	campaigns := newStubCampaignRepo()
	campaigns.Create(&model.Campaign{ID: "camp-1", Status: model.StatusCompleted}, nil)
	campaigns.Create(&model.Campaign{ID: "camp-2", Status: model.StatusPending}, nil)
	router := newTestRouter(campaigns, newStubAccountRepo())

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns?page=1&page_size=10", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Data       []model.Campaign `json:"data"`
		Pagination map[string]int   `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("expected 2 campaigns, got %d", len(resp.Data))
	}
	if resp.Pagination["total_count"] != 2 {
		t.Errorf("wrong pagination: %v", resp.Pagination)
	}
}
