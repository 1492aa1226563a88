package models

import "time"

// CustomProperty is a list-scoped attribute definition. Every subscriber
// ingested into the list gets a resolved value for it: the CSV column
// matching Title when present and non-empty, DefaultValue otherwise.
type CustomProperty struct {
	Title        string `json:"title"`
	DefaultValue string `json:"defaultValue"`
}

// List is a named target audience with a custom-property schema.
// The schema is copied into subscribers at ingestion time; changing it
// later does not affect already-ingested subscribers.
type List struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Properties []CustomProperty `json:"customProperties"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}
