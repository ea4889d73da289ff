package model

import "time"

// Account is a sending account with a daily message quota and the
// provider credential used for its campaigns.
type Account struct {
	ID                string     `db:"id" json:"id"`
	Email             string     `db:"email" json:"email"`
	Name              string     `db:"name" json:"name"`
	DailyLimit        int        `db:"daily_limit" json:"daily_limit"`
	DailyUsage        int        `db:"daily_usage" json:"daily_usage"`
	UsageResetAt      time.Time  `db:"usage_reset_at" json:"usage_reset_at"`
	IsPaused          bool       `db:"is_paused" json:"is_paused"`
	ProviderToken     string     `db:"provider_token" json:"-"`
	ProviderVendorUID string     `db:"provider_vendor_uid" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
