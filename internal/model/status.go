package model

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	StatusPending    CampaignStatus = "pending"
	StatusScheduled  CampaignStatus = "scheduled"
	StatusProcessing CampaignStatus = "processing"
	StatusPaused     CampaignStatus = "paused"
	StatusCompleted  CampaignStatus = "completed"
	StatusCancelled  CampaignStatus = "cancelled"
	StatusFailed     CampaignStatus = "failed"
)

// transitions lists the allowed next states per state. Terminal states
// (completed, cancelled, failed) have no entries.
var transitions = map[CampaignStatus][]CampaignStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusScheduled:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusPaused, StatusCompleted, StatusCancelled, StatusFailed},
	StatusPaused:     {StatusProcessing, StatusCancelled},
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle transition.
func (s CampaignStatus) CanTransition(next CampaignStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s CampaignStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known campaign status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusProcessing, StatusPaused,
		StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// RecipientStatus is the delivery state of a single recipient.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)
