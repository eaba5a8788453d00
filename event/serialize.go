package event

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// MarshalDetection serialises a Detection to JSON.
func MarshalDetection(d *Detection) ([]byte, error) {
	return json.Marshal(d)
}

// UnmarshalDetection deserialises a Detection from JSON.
func UnmarshalDetection(data []byte) (*Detection, error) {
	var d Detection
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// UnmarshalBatch deserialises a Batch from JSON.
func UnmarshalBatch(data []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Hash returns the SHA-256 hex digest of s.
func Hash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h)
}
