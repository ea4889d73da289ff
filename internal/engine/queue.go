package engine

import (
	"sync"
	"time"

	"github.com/masswhatsapp/campaign-engine/internal/model"
)

// RecipientQueue is the ordered, resumable work list of one campaign.
// The cursor only moves forward, so each pending recipient is handed to
// exactly one worker, and rows already sent or failed (e.g. after a
// resume) are skipped without re-processing.
type RecipientQueue struct {
	mu         sync.Mutex
	recipients []model.Recipient
	cursor     int

	// persistMu orders counter persistence; see Engine.persistCounters.
	persistMu sync.Mutex

	sent    int
	failed  int
	pending int
	total   int
}

func NewRecipientQueue(recipients []model.Recipient) *RecipientQueue {
	q := &RecipientQueue{
		recipients: recipients,
		total:      len(recipients),
	}
	for i := range recipients {
		switch recipients[i].Status {
		case model.RecipientSent:
			q.sent++
		case model.RecipientFailed:
			q.failed++
		default:
			q.pending++
		}
	}
	return q
}

// NextPending returns the index and a copy of the next unprocessed
// recipient, or -1 when the queue is drained. The recipient stays
// pending (in flight) until marked.
func (q *RecipientQueue) NextPending() (int, model.Recipient) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.cursor < len(q.recipients) {
		i := q.cursor
		q.cursor++
		if q.recipients[i].Status == model.RecipientPending {
			return i, q.recipients[i]
		}
	}
	return -1, model.Recipient{}
}

func (q *RecipientQueue) MarkSent(i int, messageID string, sentAt time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r := &q.recipients[i]
	if r.Status != model.RecipientPending {
		return
	}
	r.Status = model.RecipientSent
	r.MessageID = messageID
	r.SentAt = &sentAt
	r.Attempts++
	q.sent++
	q.pending--
}

func (q *RecipientQueue) MarkFailed(i int, lastError string, attempts int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r := &q.recipients[i]
	if r.Status != model.RecipientPending {
		return
	}
	r.Status = model.RecipientFailed
	r.LastError = lastError
	r.Attempts = attempts
	q.failed++
	q.pending--
}

// Recipient returns a copy of the recipient at i for persistence.
func (q *RecipientQueue) Recipient(i int) model.Recipient {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.recipients[i]
}

// Progress snapshots the counters under the same lock as the marks, so
// sent+failed+pending always equals total for any observer.
func (q *RecipientQueue) Progress() (sent, failed, pending, total int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sent, q.failed, q.pending, q.total
}
