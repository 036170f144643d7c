package model

import "time"

// TestType represents a laboratory analysis that can be requested for a
// sample (e.g. total coliform, nitrates).
type TestType struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Method    string     `json:"method,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
