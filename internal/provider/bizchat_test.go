package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appErrors "github.com/masswhatsapp/campaign-engine/internal/errors"
	"github.com/masswhatsapp/campaign-engine/internal/provider"
)

var testCred = provider.Credential{Token: "secret-token", VendorUID: "vendor-42"}

func TestSendTemplateSuccess(t *testing.T) {
	var gotPath, gotToken string
	var gotPayload map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("token")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"message_id":"wamid.abc123"}}`))
	}))
	defer srv.Close()

	client := provider.NewBizChatClient(srv.URL)
	res, err := client.SendTemplate(context.Background(), testCred,
		"+254712345678", "welcome", "en", map[string]string{"name": "Jane"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if res.MessageID != "wamid.abc123" {
		t.Errorf("wrong message id: %s", res.MessageID)
	}

	if !strings.HasPrefix(gotPath, "/vendor-42/") {
		t.Errorf("vendor uid missing from path: %s", gotPath)
	}
	if gotToken != "secret-token" {
		t.Errorf("token not passed as query param: %s", gotToken)
	}
	if gotPayload["phone_number"] != "254712345678" {
		t.Errorf("phone not stripped of plus: %v", gotPayload["phone_number"])
	}
	if gotPayload["template_name"] != "welcome" || gotPayload["template_language"] != "en" {
		t.Errorf("template fields wrong: %v", gotPayload)
	}
	if gotPayload["name"] != "Jane" {
		t.Errorf("custom field not flattened into payload: %v", gotPayload)
	}
}

func TestSendTemplateDefaultsLanguage(t *testing.T) {
	var gotPayload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Write([]byte(`{"data":{"message_id":"wamid.x"}}`))
	}))
	defer srv.Close()

	client := provider.NewBizChatClient(srv.URL)
	if _, err := client.SendTemplate(context.Background(), testCred,
		"+254712345678", "welcome", "", nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if gotPayload["template_language"] != "en" {
		t.Errorf("language not defaulted: %v", gotPayload["template_language"])
	}
}

func TestSendTemplateAuthFailureIsCampaignFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	client := provider.NewBizChatClient(srv.URL)
	_, err := client.SendTemplate(context.Background(), testCred,
		"+254712345678", "welcome", "en", nil)

	var cfgErr *appErrors.ErrProviderConfig
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ErrProviderConfig, got %v", err)
	}
	if !strings.Contains(cfgErr.Reason, "401") {
		t.Errorf("status code missing from reason: %s", cfgErr.Reason)
	}
}

func TestSendTemplateRetryableStatuses(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		client := provider.NewBizChatClient(srv.URL)
		_, err := client.SendTemplate(context.Background(), testCred,
			"+254712345678", "welcome", "en", nil)
		srv.Close()

		var sendErr *provider.SendError
		if !errors.As(err, &sendErr) {
			t.Fatalf("status %d: expected SendError, got %v", status, err)
		}
		if !sendErr.Retryable {
			t.Errorf("status %d must be retryable", status)
		}
	}
}

func TestSendTemplateClientErrorIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unknown template"}`))
	}))
	defer srv.Close()

	client := provider.NewBizChatClient(srv.URL)
	_, err := client.SendTemplate(context.Background(), testCred,
		"+254712345678", "welcome", "en", nil)

	var sendErr *provider.SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("expected SendError, got %v", err)
	}
	if sendErr.Retryable {
		t.Error("client error must not be retryable")
	}
	if sendErr.Code != "http_400" {
		t.Errorf("wrong code: %s", sendErr.Code)
	}
}

func TestSendTemplateNetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := provider.NewBizChatClient(srv.URL)
	_, err := client.SendTemplate(context.Background(), testCred,
		"+254712345678", "welcome", "en", nil)

	var sendErr *provider.SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("expected SendError, got %v", err)
	}
	if !sendErr.Retryable {
		t.Error("network error must be retryable")
	}
}
