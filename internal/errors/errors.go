// internal/errors/errors.go
package appErrors

import (
	"fmt"

	"github.com/masswhatsapp/campaign-engine/internal/model"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrAccountNotFound signals an unknown sending account.
type ErrAccountNotFound struct {
	AccountID string
}

func (e *ErrAccountNotFound) Error() string {
	return fmt.Sprintf("account %s not found", e.AccountID)
}

func NewAccountNotFound(id string) error {
	return &ErrAccountNotFound{AccountID: id}
}

// ErrAccountPaused signals the account has been paused by an admin and
// cannot create campaigns.
type ErrAccountPaused struct {
	AccountID string
}

func (e *ErrAccountPaused) Error() string {
	return fmt.Sprintf("account %s is paused", e.AccountID)
}

func NewAccountPaused(id string) error {
	return &ErrAccountPaused{AccountID: id}
}

// ErrQuotaExhausted is returned at admission time when the account's
// daily allowance cannot cover the requested recipient count.
type ErrQuotaExhausted struct {
	Requested int
	Remaining int
	Limit     int
}

func (e *ErrQuotaExhausted) Error() string {
	return fmt.Sprintf("daily limit exceeded: requested %d, %d of %d remaining today",
		e.Requested, e.Remaining, e.Limit)
}

func NewQuotaExhausted(requested, remaining, limit int) error {
	return &ErrQuotaExhausted{Requested: requested, Remaining: remaining, Limit: limit}
}

// ErrInvalidTransition is returned when a control request does not apply
// to the campaign's current state, e.g. resuming a completed campaign.
type ErrInvalidTransition struct {
	From model.CampaignStatus
	To   model.CampaignStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func NewInvalidTransition(from, to model.CampaignStatus) error {
	return &ErrInvalidTransition{From: from, To: to}
}

// ErrProviderConfig is campaign-fatal: the provider rejected the
// account's credential, so no recipient of the campaign can be sent.
type ErrProviderConfig struct {
	Reason string
}

func (e *ErrProviderConfig) Error() string {
	return fmt.Sprintf("provider configuration invalid: %s", e.Reason)
}

func NewProviderConfig(reason string) error {
	return &ErrProviderConfig{Reason: reason}
}
