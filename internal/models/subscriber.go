package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Properties maps a custom-property title to its resolved value.
// Stored as a JSON object in the subscribers table.
type Properties map[string]string

// MarshalDB serializes the map for storage. A nil map serializes as {}.
func (p Properties) MarshalDB() (string, error) {
	if p == nil {
		return "{}", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal properties: %w", err)
	}
	return string(data), nil
}

// UnmarshalDB deserializes the stored JSON object. Empty input yields an
// empty, non-nil map.
func (p *Properties) UnmarshalDB(data string) error {
	if data == "" {
		*p = Properties{}
		return nil
	}
	if err := json.Unmarshal([]byte(data), p); err != nil {
		return fmt.Errorf("failed to unmarshal properties: %w", err)
	}
	if *p == nil {
		*p = Properties{}
	}
	return nil
}

// Subscriber is a single recipient belonging to exactly one list.
// (ListID, Email) is unique per list; Token is globally unique, assigned
// at creation and never reissued. Unsubscribed only ever goes false to
// true.
type Subscriber struct {
	ID           string     `json:"id"`
	ListID       string     `json:"listId"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Token        string     `json:"-"`
	Properties   Properties `json:"customProperties"`
	Unsubscribed bool       `json:"unsubscribed"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
