package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"analytics-service/internal/model"
)

var (
	// ErrDecode marks a payload that is not a well-formed event document.
	ErrDecode = errors.New("malformed event payload")
	// ErrValidation marks an event missing one of its required fields.
	ErrValidation = errors.New("event failed validation")
)

// Decode parses a JSON document into an Event. Field names are matched
// case-insensitively (encoding/json falls back to a case-insensitive match)
// and unknown fields are ignored. Required-ness is not enforced here; callers
// run Validate afterwards.
func Decode(data []byte) (*model.Event, error) {
	var evt model.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &evt, nil
}

// Encode serializes an event with its canonical field names, including null
// optional fields, suitable for queue transport and wire exposure.
func Encode(evt *model.Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return data, nil
}

// Validate reports whether the event carries all required fields. Pure check,
// no trimming, no I/O.
func Validate(evt *model.Event) bool {
	return evt != nil && evt.EventType != "" && evt.UserID != "" && evt.SessionID != ""
}
