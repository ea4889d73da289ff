// Package provider wraps the external WhatsApp Business API used to
// deliver template messages.
package provider

import (
	"context"
	"fmt"
)

// Credential identifies one provider tenant. All campaigns of an
// account dispatch under the account's credential.
type Credential struct {
	Token     string
	VendorUID string
}

// SendResult is the provider's acknowledgement of an accepted message.
type SendResult struct {
	MessageID string
}

// SendError is a per-recipient delivery failure. Retryable is the sole
// signal the dispatcher uses to decide whether to retry.
type SendError struct {
	Code      string
	Detail    string
	Retryable bool
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed (%s): %s", e.Code, e.Detail)
}

// Client is the templated-message send operation. Implementations must
// return *SendError for per-recipient failures and ErrProviderConfig
// (internal/errors) when the credential itself is rejected.
type Client interface {
	SendTemplate(ctx context.Context, cred Credential, phone, templateName, language string, fields map[string]string) (*SendResult, error)
}
