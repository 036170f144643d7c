// Package model defines the domain types shared by the store, service, and
// API layers.
package model

import "time"

// Sample statuses. A sample starts in 'pending', moves through the chain of
// custody ('in_coc'), is handed to the lab ('submitted'), and ends in 'pass'
// or 'fail'. 'pass' is terminal; a failed sample can be resubmitted.
const (
	StatusPending   = "pending"
	StatusInCOC     = "in_coc"
	StatusSubmitted = "submitted"
	StatusPass      = "pass"
	StatusFail      = "fail"
)

// ValidStatus reports whether s is a known sample status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInCOC, StatusSubmitted, StatusPass, StatusFail:
		return true
	}
	return false
}

// Sample is a collected specimen tracked through the chain of custody.
type Sample struct {
	ID          string     `json:"id"`
	AgencyID    string     `json:"agency_id"`
	AccountID   string     `json:"account_id,omitempty"`
	CreatedBy   string     `json:"created_by"`
	TestTypeID  string     `json:"test_type_id,omitempty"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	CollectedAt time.Time  `json:"collected_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	// AgencyName is populated by list queries that join agencies.
	AgencyName string `json:"agency_name,omitempty"`
}
