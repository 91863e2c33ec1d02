package models

import "time"

const ResolutionRemoteWins = "remote_wins"

// ConflictRecord remembers a pending local change that lost to a newer remote
// version and was dropped.
type ConflictRecord struct {
	ID              int64     `json:"id"`
	TaskID          int64     `json:"task_id"`
	EntryID         int64     `json:"entry_id"`
	Operation       Operation `json:"operation"`
	LocalTimestamp  time.Time `json:"local_timestamp"`
	RemoteTimestamp time.Time `json:"remote_timestamp"`
	Resolution      string    `json:"resolution"`
	DetectedAt      time.Time `json:"detected_at"`
}
