package contract

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/vietddude/snapshotter/internal/core/domain"
)

var ErrUnknownEvent = errors.New("unknown event signature")

var watchedEvents = []domain.EventKind{
	domain.EventKindEpochReleased,
	domain.EventKindDayStarted,
	domain.EventKindDailyTaskCompleted,
}

// FilterQuery selects the watched protocol events in [from, to].
func (p *ProtocolState) FilterQuery(from, to uint64) ethereum.FilterQuery {
	sigs := make([]common.Hash, 0, len(watchedEvents))
	for _, kind := range watchedEvents {
		if ev, ok := p.abi.Events[string(kind)]; ok {
			sigs = append(sigs, ev.ID)
		}
	}
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{p.address},
		Topics:    [][]common.Hash{sigs},
	}
}

// DecodeLog turns a raw log into a domain event.
// Filtering by data market or slot is left to the caller.
func (p *ProtocolState) DecodeLog(log types.Log) (domain.Event, error) {
	if len(log.Topics) == 0 {
		return nil, ErrUnknownEvent
	}
	ev, err := p.abi.EventByID(log.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, log.Topics[0].Hex())
	}

	fields := make(map[string]interface{})
	var indexed abi.Arguments
	for _, input := range ev.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
			return nil, fmt.Errorf("failed to parse %s topics: %w", ev.Name, err)
		}
	}
	if err := ev.Inputs.UnpackIntoMap(fields, log.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack %s data: %w", ev.Name, err)
	}

	switch domain.EventKind(ev.Name) {
	case domain.EventKindEpochReleased:
		return domain.EpochReleasedEvent{
			DataMarket: addressField(fields, "dataMarketAddress"),
			EpochID:    uintField(fields, "epochId"),
			Begin:      uintField(fields, "begin"),
			End:        uintField(fields, "end"),
			Timestamp:  uintField(fields, "timestamp"),
		}, nil
	case domain.EventKindDayStarted:
		return domain.DayStartedEvent{
			DataMarket: addressField(fields, "dataMarketAddress"),
			DayID:      uintField(fields, "dayId"),
			Timestamp:  uintField(fields, "timestamp"),
		}, nil
	case domain.EventKindDailyTaskCompleted:
		return domain.DailyTaskCompletedEvent{
			DataMarket:         addressField(fields, "dataMarketAddress"),
			SnapshotterAddress: addressField(fields, "snapshotterAddress"),
			SlotID:             uintField(fields, "slotId"),
			DayID:              uintField(fields, "dayId"),
			Timestamp:          uintField(fields, "timestamp"),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Name)
	}
}

func uintField(fields map[string]interface{}, name string) uint64 {
	if v, ok := fields[name].(*big.Int); ok {
		return v.Uint64()
	}
	return 0
}

func addressField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(common.Address); ok {
		return v.Hex()
	}
	return ""
}
