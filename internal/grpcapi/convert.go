package grpcapi

import (
	"fmt"
	"math"

	"github.com/jmerrifield20/WavePortal/internal/events"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"google.golang.org/protobuf/types/known/structpb"
)

func recordToStruct(r waveledger.Record) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"index":          r.Index,
		"waver":          r.Waver.String(),
		"message":        r.Message,
		"timestamp":      r.Timestamp,
		"owner_approved": r.OwnerApproved,
	})
}

func recordsToList(records []waveledger.Record) (*structpb.ListValue, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(records))}
	for _, r := range records {
		s, err := recordToStruct(r)
		if err != nil {
			return nil, err
		}
		list.Values = append(list.Values, structpb.NewStructValue(s))
	}
	return list, nil
}

func eventToStruct(ev events.NewWave) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"index":     ev.Index,
		"from":      ev.From.String(),
		"timestamp": ev.Timestamp,
		"message":   ev.Message,
	})
}

// RecordFromStruct decodes a record produced by the Wave and GetAllWaves methods.
func RecordFromStruct(s *structpb.Struct) (waveledger.Record, error) {
	f := s.GetFields()
	waver, err := waveledger.ParseAddress(f["waver"].GetStringValue())
	if err != nil {
		return waveledger.Record{}, err
	}
	return waveledger.Record{
		Index:         int(f["index"].GetNumberValue()),
		Waver:         waver,
		Message:       f["message"].GetStringValue(),
		Timestamp:     int64(f["timestamp"].GetNumberValue()),
		OwnerApproved: f["owner_approved"].GetBoolValue(),
	}, nil
}

// EventFromStruct decodes a Subscribe stream message.
func EventFromStruct(s *structpb.Struct) (events.NewWave, error) {
	f := s.GetFields()
	from, err := waveledger.ParseAddress(f["from"].GetStringValue())
	if err != nil {
		return events.NewWave{}, err
	}
	return events.NewWave{
		Index:     int(f["index"].GetNumberValue()),
		From:      from,
		Timestamp: int64(f["timestamp"].GetNumberValue()),
		Message:   f["message"].GetStringValue(),
	}, nil
}

// ApprovalRequest builds the SetApproveMessage request body.
func ApprovalRequest(index int, approved bool) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"index":    structpb.NewNumberValue(float64(index)),
		"approved": structpb.NewBoolValue(approved),
	}}
}

func approvalFromStruct(s *structpb.Struct) (int, bool, error) {
	f := s.GetFields()
	idxV, ok := f["index"]
	if !ok {
		return 0, false, fmt.Errorf("index is required")
	}
	n, ok := idxV.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, false, fmt.Errorf("index must be an integer")
	}
	if math.Abs(n.NumberValue) > math.MaxInt32 {
		return 0, false, fmt.Errorf("index out of bounds")
	}
	apV, ok := f["approved"]
	if !ok {
		return 0, false, fmt.Errorf("approved is required")
	}
	b, ok := apV.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return 0, false, fmt.Errorf("approved must be a bool")
	}
	return int(n.NumberValue), b.BoolValue, nil
}
