package submission

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType is wrapped by DecodeError when the discriminator is
// missing or not one of the known tags.
var ErrUnknownType = errors.New("unrecognized or missing type")

// DecodeError reports a payload that could not be turned into a variant.
type DecodeError struct {
	Tag string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("decode submission: %v", e.Err)
	}
	return fmt.Sprintf("decode %s submission: %v", e.Tag, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// discriminator is the exact key carrying the tag. Keys differing only in
// case do not count.
const discriminator = "type"

// Decode reads the "type" discriminator of body and decodes the matching
// variant. It never falls back to a default variant.
func Decode(body []byte) (Submission, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &DecodeError{Err: err}
	}

	raw, ok := fields[discriminator]
	if !ok {
		return nil, &DecodeError{Err: ErrUnknownType}
	}
	var name *string
	if err := json.Unmarshal(raw, &name); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if name == nil {
		return nil, &DecodeError{Err: ErrUnknownType}
	}

	tag := Tag(*name)
	switch tag {
	case TagTemperatureHumidity:
		return decodeAs[TemperatureHumidity](tag, body)
	case TagHumidity:
		return decodeAs[Humidity](tag, body)
	case TagTemperature:
		return decodeAs[Temperature](tag, body)
	default:
		return nil, &DecodeError{Tag: string(tag), Err: ErrUnknownType}
	}
}

func decodeAs[T Submission](tag Tag, body []byte) (Submission, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &DecodeError{Tag: string(tag), Err: err}
	}
	return v, nil
}

// Encode renders s with its discriminator, the inverse of Decode.
func Encode(s Submission) ([]byte, error) {
	switch v := s.(type) {
	case TemperatureHumidity:
		return json.Marshal(struct {
			Type Tag `json:"type"`
			TemperatureHumidity
		}{v.Type(), v})
	case Humidity:
		return json.Marshal(struct {
			Type Tag `json:"type"`
			Humidity
		}{v.Type(), v})
	case Temperature:
		return json.Marshal(struct {
			Type Tag `json:"type"`
			Temperature
		}{v.Type(), v})
	default:
		return nil, fmt.Errorf("encode submission: unknown variant %T", s)
	}
}
