package domain

// SnapshotRequest holds the signed fields of a submission.
type SnapshotRequest struct {
	SlotID      uint64 `json:"slotId"`
	Deadline    uint64 `json:"deadline"`
	SnapshotCID string `json:"snapshotCid"`
	EpochID     uint64 `json:"epochId"`
	ProjectID   string `json:"projectId"`
}

// SnapshotSubmission is sent once to the local collector.
type SnapshotSubmission struct {
	Request    SnapshotRequest `json:"request"`
	Signature  string          `json:"signature"`
	Header     string          `json:"header"`
	DataMarket string          `json:"dataMarket"`
	Simulation bool            `json:"simulation"`
}

type SubmissionOutcome string

const (
	OutcomeSubmitted     SubmissionOutcome = "submitted"
	OutcomeStorageFailed SubmissionOutcome = "storage_failed"
	OutcomeSubmitFailed  SubmissionOutcome = "submit_failed"
)

// SubmissionRecord is one row of the local submission ledger.
type SubmissionRecord struct {
	ID          string            `db:"id"           json:"id"`
	EpochID     uint64            `db:"epoch_id"     json:"epochId"`
	ProjectID   string            `db:"project_id"   json:"projectId"`
	SnapshotCID string            `db:"snapshot_cid" json:"snapshotCid"`
	Outcome     SubmissionOutcome `db:"outcome"      json:"outcome"`
	Error       string            `db:"error"        json:"error,omitempty"`
	CreatedAt   int64             `db:"created_at"   json:"createdAt"`
}
