package journey

import "time"

// CompletionRecord is the durable, append-only entry written for every
// terminal journey transition, keyed for frequency-policy lookups by
// (distinctId, campaignId).
type CompletionRecord struct {
	CampaignID  string     `json:"campaignId"`
	DistinctID  string     `json:"distinctId"`
	JourneyID   ID         `json:"journeyId"`
	CompletedAt time.Time  `json:"completedAt"`
	ExitReason  ExitReason `json:"exitReason"`
}

// RecordFrom builds the completion record for a now-terminal journey.
func RecordFrom(j Journey) CompletionRecord {
	completedAt := j.UpdatedAt
	if j.CompletedAt != nil {
		completedAt = *j.CompletedAt
	}
	reason := ExitReasonCompleted
	if j.ExitReason != nil {
		reason = *j.ExitReason
	}
	return CompletionRecord{
		CampaignID:  j.CampaignID,
		DistinctID:  j.DistinctID,
		JourneyID:   j.ID,
		CompletedAt: completedAt,
		ExitReason:  reason,
	}
}
