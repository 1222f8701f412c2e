package domain

// Epoch is one unit of snapshot work. It is immutable once emitted.
type Epoch struct {
	EpochID uint64 `json:"epochId"`
	Begin   uint64 `json:"begin"`
	End     uint64 `json:"end"`
	Day     uint64 `json:"day"`
}

// IsSimulation reports whether the epoch is the synthetic startup epoch.
func (e Epoch) IsSimulation() bool {
	return e.EpochID == 0
}

// PreloaderResult is the keyed output of one preloader run for one epoch.
type PreloaderResult struct {
	Keyword string
	Result  any
}
