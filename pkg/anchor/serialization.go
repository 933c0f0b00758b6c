package anchor

import (
	"encoding/json"
	"fmt"
)

// MarshalAnchor serializes an Anchor to JSON bytes.
func MarshalAnchor(a *Anchor) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("cannot marshal nil Anchor")
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Anchor to JSON: %w", err)
	}
	return data, nil
}

// UnmarshalAnchor deserializes an Anchor from JSON bytes.
func UnmarshalAnchor(data []byte) (*Anchor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}
	var a Anchor
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to Anchor: %w", err)
	}
	return &a, nil
}
