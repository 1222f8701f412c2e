package collector

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/vietddude/snapshotter/internal/core/domain"
)

// Field numbers of the submission.proto messages.
const (
	fieldRequestSlotID      protowire.Number = 1
	fieldRequestDeadline    protowire.Number = 2
	fieldRequestSnapshotCID protowire.Number = 3
	fieldRequestEpochID     protowire.Number = 4
	fieldRequestProjectID   protowire.Number = 5

	fieldSubmissionRequest    protowire.Number = 1
	fieldSubmissionSignature  protowire.Number = 2
	fieldSubmissionHeader     protowire.Number = 3
	fieldSubmissionDataMarket protowire.Number = 4
	fieldSubmissionSimulation protowire.Number = 5

	fieldResponseMessage protowire.Number = 1
)

var errUnsupportedMessage = errors.New("unsupported message type")

// SubmissionResponse is the collector's reply after the client closes its stream.
type SubmissionResponse struct {
	Message string
}

// Codec is a grpc encoding.Codec for the submission messages.
// It registers under the "proto" name, so it is wire compatible with generated stubs.
type Codec struct{}

func (Codec) Name() string { return "proto" }

func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *domain.SnapshotSubmission:
		return appendSubmission(nil, m), nil
	case *SubmissionResponse:
		return appendString(nil, fieldResponseMessage, m.Message), nil
	default:
		return nil, fmt.Errorf("%w: %T", errUnsupportedMessage, v)
	}
}

func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *domain.SnapshotSubmission:
		return decodeSubmission(data, m)
	case *SubmissionResponse:
		return decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
			if num == fieldResponseMessage && typ == protowire.BytesType {
				s, n := protowire.ConsumeString(b)
				m.Message = s
				return n, true, nil
			}
			return 0, false, nil
		})
	default:
		return fmt.Errorf("%w: %T", errUnsupportedMessage, v)
	}
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendRequest(b []byte, r *domain.SnapshotRequest) []byte {
	b = appendVarint(b, fieldRequestSlotID, r.SlotID)
	b = appendVarint(b, fieldRequestDeadline, r.Deadline)
	b = appendString(b, fieldRequestSnapshotCID, r.SnapshotCID)
	b = appendVarint(b, fieldRequestEpochID, r.EpochID)
	b = appendString(b, fieldRequestProjectID, r.ProjectID)
	return b
}

func appendSubmission(b []byte, s *domain.SnapshotSubmission) []byte {
	b = protowire.AppendTag(b, fieldSubmissionRequest, protowire.BytesType)
	b = protowire.AppendBytes(b, appendRequest(nil, &s.Request))
	b = appendString(b, fieldSubmissionSignature, s.Signature)
	b = appendString(b, fieldSubmissionHeader, s.Header)
	b = appendString(b, fieldSubmissionDataMarket, s.DataMarket)
	if s.Simulation {
		b = appendVarint(b, fieldSubmissionSimulation, 1)
	}
	return b
}

// fieldFunc consumes one known field and reports the bytes used.
// It returns ok=false for fields it does not know, which are skipped.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (used int, ok bool, err error)

func decodeFields(data []byte, field fieldFunc) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		used, ok, err := field(num, typ, data)
		if err != nil {
			return err
		}
		if !ok {
			used = protowire.ConsumeFieldValue(num, typ, data)
		}
		if used < 0 {
			return protowire.ParseError(used)
		}
		data = data[used:]
	}
	return nil
}

func decodeRequest(data []byte, r *domain.SnapshotRequest) error {
	return decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch {
		case typ == protowire.VarintType && num == fieldRequestSlotID:
			v, n := protowire.ConsumeVarint(b)
			r.SlotID = v
			return n, true, nil
		case typ == protowire.VarintType && num == fieldRequestDeadline:
			v, n := protowire.ConsumeVarint(b)
			r.Deadline = v
			return n, true, nil
		case typ == protowire.VarintType && num == fieldRequestEpochID:
			v, n := protowire.ConsumeVarint(b)
			r.EpochID = v
			return n, true, nil
		case typ == protowire.BytesType && num == fieldRequestSnapshotCID:
			s, n := protowire.ConsumeString(b)
			r.SnapshotCID = s
			return n, true, nil
		case typ == protowire.BytesType && num == fieldRequestProjectID:
			s, n := protowire.ConsumeString(b)
			r.ProjectID = s
			return n, true, nil
		}
		return 0, false, nil
	})
}

func decodeSubmission(data []byte, s *domain.SnapshotSubmission) error {
	return decodeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool, error) {
		switch {
		case typ == protowire.BytesType && num == fieldSubmissionRequest:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, true, nil
			}
			return n, true, decodeRequest(raw, &s.Request)
		case typ == protowire.BytesType && num == fieldSubmissionSignature:
			v, n := protowire.ConsumeString(b)
			s.Signature = v
			return n, true, nil
		case typ == protowire.BytesType && num == fieldSubmissionHeader:
			v, n := protowire.ConsumeString(b)
			s.Header = v
			return n, true, nil
		case typ == protowire.BytesType && num == fieldSubmissionDataMarket:
			v, n := protowire.ConsumeString(b)
			s.DataMarket = v
			return n, true, nil
		case typ == protowire.VarintType && num == fieldSubmissionSimulation:
			v, n := protowire.ConsumeVarint(b)
			s.Simulation = v != 0
			return n, true, nil
		}
		return 0, false, nil
	})
}
