package domain

// SnapshotterStatus is the process-lifetime submission health.
type SnapshotterStatus struct {
	TotalSuccessfulSubmissions   int      `json:"totalSuccessfulSubmissions"`
	TotalMissedSubmissions       int      `json:"totalMissedSubmissions"`
	ConsecutiveMissedSubmissions int      `json:"consecutiveMissedSubmissions"`
	Projects                     []string `json:"projects"`
}

type IssueType string

const (
	IssueMissedSnapshot           IssueType = "MISSED_SNAPSHOT"
	IssueUnhealthyEpochProcessing IssueType = "UNHEALTHY_EPOCH_PROCESSING"
)

// SnapshotterIssue is the structured report sent to notification sinks.
type SnapshotterIssue struct {
	InstanceID      string    `json:"instanceID"`
	IssueType       IssueType `json:"issueType"`
	ProjectID       string    `json:"projectID"`
	EpochID         string    `json:"epochId"`
	TimeOfReporting string    `json:"timeOfReporting"`
	Extra           string    `json:"extra"`
}

// SnapshotterPing is posted periodically to the reporting service.
type SnapshotterPing struct {
	InstanceID        string `json:"instanceID"`
	SlotID            uint64 `json:"slotId"`
	DataMarketAddress string `json:"dataMarketAddress"`
	Namespace         string `json:"namespace"`
	NodeVersion       string `json:"nodeVersion"`
}
