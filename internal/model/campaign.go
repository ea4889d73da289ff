package model

import "time"

// Campaign is one bulk-send job: a template, an ordered recipient list
// and its delivery progress. sent + failed + pending always equals total.
type Campaign struct {
	ID               string         `db:"id" json:"id"`
	AccountID        string         `db:"account_id" json:"account_id"`
	Name             string         `db:"name" json:"name"`
	TemplateName     string         `db:"template_name" json:"template_name"`
	TemplateLanguage string         `db:"template_language" json:"template_language"`
	Status           CampaignStatus `db:"status" json:"status"`
	TotalCount       int            `db:"total_count" json:"total_count"`
	SentCount        int            `db:"sent_count" json:"sent_count"`
	FailedCount      int            `db:"failed_count" json:"failed_count"`
	PendingCount     int            `db:"pending_count" json:"pending_count"`
	ScheduledAt      *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	CompletedAt      *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt        *time.Time     `db:"updated_at" json:"updated_at,omitempty"`

	// Recipients is loaded on demand, not by every campaign query.
	Recipients []Recipient `db:"-" json:"recipients,omitempty"`
}
