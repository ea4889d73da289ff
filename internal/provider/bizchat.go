package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appErrors "github.com/masswhatsapp/campaign-engine/internal/errors"
)

// BizChatClient talks to the BizChat send-template-message endpoint.
type BizChatClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewBizChatClient(baseURL string) *BizChatClient {
	return &BizChatClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type bizChatResponse struct {
	Data struct {
		MessageID string `json:"message_id"`
	} `json:"data"`
}

func (c *BizChatClient) SendTemplate(ctx context.Context, cred Credential, phone, templateName, language string, fields map[string]string) (*SendResult, error) {
	if language == "" {
		language = "en"
	}

	payload := map[string]interface{}{
		"phone_number":      strippedPhone(phone),
		"template_name":     templateName,
		"template_language": language,
	}
	for k, v := range fields {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &SendError{Code: "encode", Detail: err.Error(), Retryable: false}
	}

	endpoint := fmt.Sprintf("%s/%s/contact/send-template-message?token=%s",
		c.BaseURL, cred.VendorUID, url.QueryEscape(cred.Token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &SendError{Code: "request", Detail: err.Error(), Retryable: false}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &SendError{Code: "network", Detail: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var parsed bizChatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, &SendError{Code: "decode", Detail: err.Error(), Retryable: false}
		}
		return &SendResult{MessageID: parsed.Data.MessageID}, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Bad token or vendor UID: no recipient of this credential can
		// be delivered, so this aborts the whole campaign.
		return nil, appErrors.NewProviderConfig(
			fmt.Sprintf("provider returned %d: %s", resp.StatusCode, truncate(respBody, 200)))

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &SendError{
			Code:      fmt.Sprintf("http_%d", resp.StatusCode),
			Detail:    truncate(respBody, 200),
			Retryable: true,
		}

	default:
		return nil, &SendError{
			Code:      fmt.Sprintf("http_%d", resp.StatusCode),
			Detail:    truncate(respBody, 200),
			Retryable: false,
		}
	}
}

// strippedPhone reduces a normalized number to the digits-only form the
// provider expects.
func strippedPhone(phone string) string {
	r := strings.NewReplacer("+", "", "-", "", " ", "")
	return r.Replace(phone)
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n]
	}
	return s
}

var _ Client = (*BizChatClient)(nil)
