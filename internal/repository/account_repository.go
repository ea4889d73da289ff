package repository

import (
	"database/sql"
	"time"

	appErrors "github.com/masswhatsapp/campaign-engine/internal/errors"
	"github.com/masswhatsapp/campaign-engine/internal/model"
)

// AccountRepositoryInterface defines the account operations the quota
// ledger and services need.
type AccountRepositoryInterface interface {
	GetByID(id string) (*model.Account, error)
	Create(a *model.Account) error
	UpdateUsage(id string, usage int, resetAt time.Time) error
	UpdateDailyLimit(id string, limit int) error
	SetPaused(id string, paused bool) error
}

type AccountRepository struct {
	DB *sql.DB
}

func (r *AccountRepository) GetByID(id string) (*model.Account, error) {
	query := `
        SELECT id, email, name, daily_limit, daily_usage, usage_reset_at,
               is_paused, provider_token, provider_vendor_uid, created_at, updated_at
        FROM accounts WHERE id=$1
    `
	var a model.Account
	err := r.DB.QueryRow(query, id).Scan(
		&a.ID, &a.Email, &a.Name, &a.DailyLimit, &a.DailyUsage, &a.UsageResetAt,
		&a.IsPaused, &a.ProviderToken, &a.ProviderVendorUID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewAccountNotFound(id)
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepository) Create(a *model.Account) error {
	a.CreatedAt = time.Now().UTC()
	if a.UsageResetAt.IsZero() {
		a.UsageResetAt = a.CreatedAt.Truncate(24 * time.Hour)
	}
	query := `
        INSERT INTO accounts (id, email, name, daily_limit, daily_usage, usage_reset_at,
                              is_paused, provider_token, provider_vendor_uid, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := r.DB.Exec(query, a.ID, a.Email, a.Name, a.DailyLimit, a.DailyUsage,
		a.UsageResetAt, a.IsPaused, a.ProviderToken, a.ProviderVendorUID, a.CreatedAt)
	return err
}

func (r *AccountRepository) UpdateUsage(id string, usage int, resetAt time.Time) error {
	query := `UPDATE accounts SET daily_usage=$1, usage_reset_at=$2, updated_at=NOW() WHERE id=$3`
	_, err := r.DB.Exec(query, usage, resetAt, id)
	return err
}

func (r *AccountRepository) UpdateDailyLimit(id string, limit int) error {
	query := `UPDATE accounts SET daily_limit=$1, updated_at=NOW() WHERE id=$2`
	res, err := r.DB.Exec(query, limit, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewAccountNotFound(id)
	}
	return nil
}

func (r *AccountRepository) SetPaused(id string, paused bool) error {
	query := `UPDATE accounts SET is_paused=$1, updated_at=NOW() WHERE id=$2`
	res, err := r.DB.Exec(query, paused, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewAccountNotFound(id)
	}
	return nil
}

var _ AccountRepositoryInterface = (*AccountRepository)(nil)
