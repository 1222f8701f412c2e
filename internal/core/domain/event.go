package domain

// EventKind is the protocol event name as it appears in the contract ABI.
type EventKind string

const (
	EventKindEpochReleased      EventKind = "EpochReleased"
	EventKindDayStarted         EventKind = "DayStartedEvent"
	EventKindDailyTaskCompleted EventKind = "DailyTaskCompletedEvent"
)

// Event is a decoded protocol event handed from the detector to the distributor.
type Event interface {
	Kind() EventKind
}

// EpochReleasedEvent announces a new epoch over the source chain block range [Begin, End].
type EpochReleasedEvent struct {
	DataMarket string `json:"dataMarket"`
	EpochID    uint64 `json:"epochId"`
	Begin      uint64 `json:"begin"`
	End        uint64 `json:"end"`
	Timestamp  uint64 `json:"timestamp"`
}

func (EpochReleasedEvent) Kind() EventKind { return EventKindEpochReleased }

// DayStartedEvent opens a new protocol day.
type DayStartedEvent struct {
	DataMarket string `json:"dataMarket"`
	DayID      uint64 `json:"dayId"`
	Timestamp  uint64 `json:"timestamp"`
}

func (DayStartedEvent) Kind() EventKind { return EventKindDayStarted }

// DailyTaskCompletedEvent acknowledges that a slot reached its daily quota.
type DailyTaskCompletedEvent struct {
	DataMarket         string `json:"dataMarket"`
	SnapshotterAddress string `json:"snapshotterAddress"`
	SlotID             uint64 `json:"slotId"`
	DayID              uint64 `json:"dayId"`
	Timestamp          uint64 `json:"timestamp"`
}

func (DailyTaskCompletedEvent) Kind() EventKind { return EventKindDailyTaskCompleted }
