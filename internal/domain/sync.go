package domain

// SyncStatus is the outcome reported by the Gateway's ingestion trigger.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncSkipped SyncStatus = "skipped"
	SyncNoData  SyncStatus = "no_data"
	SyncError   SyncStatus = "error"
)

// SyncResult is returned once to the caller of a sync and never stored.
type SyncResult struct {
	Status  SyncStatus       `json:"status"`
	Message string           `json:"message"`
	Details []map[string]any `json:"details,omitempty"`
}

// Failed reports whether the backend answered but declared the ingestion
// itself a failure.
func (r SyncResult) Failed() bool { return r.Status == SyncError }
