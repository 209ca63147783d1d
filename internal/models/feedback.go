package models

import "time"

// FeedbackRecord reports a device token the feedback service considers
// no longer valid, along with the time it was found to be so.
type FeedbackRecord struct {
	Timestamp int64
	Token     []byte
}

func (r FeedbackRecord) Time() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

// StoredFeedback is a feedback record as persisted by the storage layer.
type StoredFeedback struct {
	ID         string    `json:"id"`
	Token      string    `json:"token"`
	ReportedAt time.Time `json:"reported_at"`
	ReceivedAt time.Time `json:"received_at"`
}
