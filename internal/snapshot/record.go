package snapshot

import "time"

// Record is one immutable entry in a snapshot log: a saved copy of a
// buffer's content at a point in time, tagged with why it was captured.
type Record struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	Reason      string    `json:"reason"`
	Content     string    `json:"content"`
	ContentHash string    `json:"contentHash"`
}

// Reason tags used when appending snapshots. Matched against the state
// machine in spec.md §4.4.2.
const (
	ReasonOpenBuffer         = "open_buffer"
	ReasonAutosave           = "autosave"
	ReasonBeforeExternalApply = "before_external_apply"
	ReasonAppHide            = "app_hide"
	ReasonRestore            = "restore"
)
