package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/masswhatsapp/campaign-engine/internal/errors"
	"github.com/masswhatsapp/campaign-engine/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	Create(c *model.Campaign, recipients []model.Recipient) error
	GetByID(id string) (*model.Campaign, error)
	ListCampaigns(offset, limit int, accountID string, status string) ([]*model.Campaign, int, error)
	ListDueScheduled(now time.Time) ([]*model.Campaign, error)
	ListByStatus(status model.CampaignStatus) ([]*model.Campaign, error)

	// Status and progress; UpdateStatusIf is a compare-and-swap so racing
	// control requests cannot produce an illegal transition.
	UpdateStatusIf(id string, from, to model.CampaignStatus, completedAt *time.Time) (bool, error)
	UpdateCounters(id string, sent, failed, pending int) error

	// Recipients
	ListRecipients(campaignID string) ([]model.Recipient, error)
	MarkRecipientSent(id int64, messageID string, sentAt time.Time) error
	MarkRecipientFailed(id int64, lastError string, attempts int) error
}

type CampaignRepository struct {
	DB *sql.DB
}

// ====================== Campaign CRUD ======================

// Create inserts the campaign and its recipient rows in one transaction
// so a campaign is never admitted with a partial recipient list.
func (r *CampaignRepository) Create(c *model.Campaign, recipients []model.Recipient) error {
	c.CreatedAt = time.Now().UTC()

	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO campaigns (id, account_id, name, template_name, template_language,
                               status, total_count, sent_count, failed_count, pending_count,
                               scheduled_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `
	_, err = tx.Exec(query, c.ID, c.AccountID, c.Name, c.TemplateName, c.TemplateLanguage,
		c.Status, c.TotalCount, c.SentCount, c.FailedCount, c.PendingCount,
		c.ScheduledAt, c.CreatedAt)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
        INSERT INTO recipients (campaign_id, position, phone, name, fields, status, attempts)
        VALUES ($1, $2, $3, $4, $5, $6, 0)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range recipients {
		recipients[i].CampaignID = c.ID
		recipients[i].Position = i
		if recipients[i].Status == "" {
			recipients[i].Status = model.RecipientPending
		}
		_, err = stmt.Exec(c.ID, i, recipients[i].Phone, recipients[i].Name,
			recipients[i].Fields, recipients[i].Status)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *CampaignRepository) GetByID(id string) (*model.Campaign, error) {
	query := `
        SELECT id, account_id, name, template_name, template_language, status,
               total_count, sent_count, failed_count, pending_count,
               scheduled_at, created_at, completed_at, updated_at
        FROM campaigns WHERE id=$1
    `
	var c model.Campaign
	err := r.DB.QueryRow(query, id).Scan(
		&c.ID, &c.AccountID, &c.Name, &c.TemplateName, &c.TemplateLanguage, &c.Status,
		&c.TotalCount, &c.SentCount, &c.FailedCount, &c.PendingCount,
		&c.ScheduledAt, &c.CreatedAt, &c.CompletedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, accountID string, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT id, account_id, name, template_name, template_language, status,
                     total_count, sent_count, failed_count, pending_count,
                     scheduled_at, created_at, completed_at, updated_at
              FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if accountID != "" {
		query += fmt.Sprintf(" AND account_id=$%d", argPos)
		args = append(args, accountID)
		argPos++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c := &model.Campaign{}
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Name, &c.TemplateName, &c.TemplateLanguage,
			&c.Status, &c.TotalCount, &c.SentCount, &c.FailedCount, &c.PendingCount,
			&c.ScheduledAt, &c.CreatedAt, &c.CompletedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	// Count total
	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	argPosCount := 1
	if accountID != "" {
		countQuery += fmt.Sprintf(" AND account_id=$%d", argPosCount)
		argsCount = append(argsCount, accountID)
		argPosCount++
	}
	if status != "" {
		countQuery += fmt.Sprintf(" AND status=$%d", argPosCount)
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) ListDueScheduled(now time.Time) ([]*model.Campaign, error) {
	query := `SELECT id, account_id, name, template_name, template_language, status,
                     total_count, sent_count, failed_count, pending_count,
                     scheduled_at, created_at, completed_at, updated_at
              FROM campaigns
              WHERE status=$1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
              ORDER BY scheduled_at`
	return r.queryCampaigns(query, model.StatusScheduled, now)
}

func (r *CampaignRepository) ListByStatus(status model.CampaignStatus) ([]*model.Campaign, error) {
	query := `SELECT id, account_id, name, template_name, template_language, status,
                     total_count, sent_count, failed_count, pending_count,
                     scheduled_at, created_at, completed_at, updated_at
              FROM campaigns WHERE status=$1 ORDER BY created_at`
	return r.queryCampaigns(query, status)
}

func (r *CampaignRepository) queryCampaigns(query string, args ...interface{}) ([]*model.Campaign, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c := &model.Campaign{}
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Name, &c.TemplateName, &c.TemplateLanguage,
			&c.Status, &c.TotalCount, &c.SentCount, &c.FailedCount, &c.PendingCount,
			&c.ScheduledAt, &c.CreatedAt, &c.CompletedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// UpdateStatusIf flips the status only when the row still holds the
// expected current status. Returns false when the swap did not apply.
func (r *CampaignRepository) UpdateStatusIf(id string, from, to model.CampaignStatus, completedAt *time.Time) (bool, error) {
	query := `UPDATE campaigns SET status=$1, completed_at=COALESCE($2, completed_at), updated_at=NOW()
              WHERE id=$3 AND status=$4`
	res, err := r.DB.Exec(query, to, completedAt, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRepository) UpdateCounters(id string, sent, failed, pending int) error {
	query := `UPDATE campaigns SET sent_count=$1, failed_count=$2, pending_count=$3, updated_at=NOW()
              WHERE id=$4`
	_, err := r.DB.Exec(query, sent, failed, pending, id)
	return err
}

// ====================== Recipients ======================

func (r *CampaignRepository) ListRecipients(campaignID string) ([]model.Recipient, error) {
	query := `SELECT id, campaign_id, position, phone, name, fields, status,
                     message_id, last_error, attempts, sent_at
              FROM recipients WHERE campaign_id=$1 ORDER BY position`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		var rec model.Recipient
		if err := rows.Scan(&rec.ID, &rec.CampaignID, &rec.Position, &rec.Phone, &rec.Name,
			&rec.Fields, &rec.Status, &rec.MessageID, &rec.LastError, &rec.Attempts,
			&rec.SentAt); err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

// MarkRecipientSent only applies to rows still pending, so a recipient
// never moves out of sent or failed again.
func (r *CampaignRepository) MarkRecipientSent(id int64, messageID string, sentAt time.Time) error {
	query := `UPDATE recipients SET status=$1, message_id=$2, sent_at=$3, attempts=attempts+1
              WHERE id=$4 AND status=$5`
	_, err := r.DB.Exec(query, model.RecipientSent, messageID, sentAt, id, model.RecipientPending)
	return err
}

func (r *CampaignRepository) MarkRecipientFailed(id int64, lastError string, attempts int) error {
	query := `UPDATE recipients SET status=$1, last_error=$2, attempts=$3
              WHERE id=$4 AND status=$5`
	_, err := r.DB.Exec(query, model.RecipientFailed, lastError, attempts, id, model.RecipientPending)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
