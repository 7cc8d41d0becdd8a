package envelope

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/drblury/viewbridge/internal/runtime/jsoncodec"
)

// Value is a view value on the wire. It travels as a google.protobuf.Value
// in its canonical JSON form, so numbers are doubles and byte slices are
// base64 strings.
type Value struct {
	pb *structpb.Value
}

// NewValue converts v into a wire value. A nil v yields a nil Value.
// Types structpb cannot take directly, such as structs or typed maps, are
// converted through their JSON form first. NaN and infinities are rejected.
func NewValue(v any) (*Value, error) {
	if v == nil {
		return nil, nil
	}
	pb, err := structpb.NewValue(v)
	if err != nil {
		generic, jerr := toGeneric(v)
		if jerr != nil {
			return nil, fmt.Errorf("convert value: %w", jerr)
		}
		if pb, err = structpb.NewValue(generic); err != nil {
			return nil, fmt.Errorf("convert value: %w", err)
		}
	}
	if _, err := protojson.Marshal(pb); err != nil {
		return nil, fmt.Errorf("convert value: %w", err)
	}
	return &Value{pb: pb}, nil
}

func toGeneric(v any) (any, error) {
	raw, err := jsoncodec.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := jsoncodec.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

// Proto returns the protobuf form of v.
func (v *Value) Proto() *structpb.Value {
	if v == nil {
		return nil
	}
	return v.pb
}

// Interface returns v as plain Go data: nil, bool, float64, string,
// []any or map[string]any.
func (v *Value) Interface() any {
	if v == nil || v.pb == nil {
		return nil
	}
	return v.pb.AsInterface()
}

func (v *Value) MarshalJSON() ([]byte, error) {
	if v == nil || v.pb == nil {
		return []byte("null"), nil
	}
	return protojson.Marshal(v.pb)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	pb := &structpb.Value{}
	if err := protojson.Unmarshal(data, pb); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	v.pb = pb
	return nil
}
