package domain

// ChainHeightRange is the inclusive source chain range a snapshot covers.
type ChainHeightRange struct {
	Begin uint64 `json:"begin"`
	End   uint64 `json:"end"`
}

// SnapshotBase carries the fields every snapshot payload embeds.
type SnapshotBase struct {
	Contract         string           `json:"contract"`
	ChainHeightRange ChainHeightRange `json:"chainHeightRange"`
	Timestamp        uint64           `json:"timestamp"`
}

// ProcessorOutput is one snapshot emitted by a processor.
// DataSource is empty, a single source, or "primary_source".
type ProcessorOutput struct {
	DataSource string
	Snapshot   any
}
