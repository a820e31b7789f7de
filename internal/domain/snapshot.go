package domain

import "time"

// Status is the lifecycle state published in a Snapshot.
type Status string

const (
	StatusStarted   Status = "started"
	StatusRunning   Status = "running"
	StatusSummarize Status = "summarizing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further snapshots will follow.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Snapshot is the externally stored progress record of one run.
// Each write replaces the previous one.
type Snapshot struct {
	RunID     string    `json:"run_id"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Processed int       `json:"processed"`
	Expected  int       `json:"expected"`
	Sections  []Section `json:"sections,omitempty"`
	Final     bool      `json:"final,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Report is the final artifact of a successful run.
type Report struct {
	RunID     string    `json:"run_id"`
	Sections  []Section `json:"sections"`
	Items     int       `json:"items"`
	CreatedAt time.Time `json:"created_at"`
}
