package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FieldMap holds per-recipient template field values, stored as JSONB.
type FieldMap map[string]string

func (f FieldMap) Value() (driver.Value, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f)
}

func (f *FieldMap) Scan(src interface{}) error {
	if src == nil {
		*f = FieldMap{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into FieldMap", src)
	}
	return json.Unmarshal(b, f)
}

// Recipient is one addressable target within a campaign. It moves from
// pending to sent or failed exactly once and never reverts.
type Recipient struct {
	ID         int64           `db:"id" json:"id"`
	CampaignID string          `db:"campaign_id" json:"campaign_id"`
	Position   int             `db:"position" json:"position"`
	Phone      string          `db:"phone" json:"phone"`
	Name       string          `db:"name" json:"name"`
	Fields     FieldMap        `db:"fields" json:"fields,omitempty"`
	Status     RecipientStatus `db:"status" json:"status"`
	MessageID  string          `db:"message_id" json:"message_id,omitempty"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	Attempts   int             `db:"attempts" json:"attempts"`
	SentAt     *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
}
