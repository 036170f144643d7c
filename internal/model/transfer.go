package model

import "time"

// CustodyTransfer is one handoff event in a sample's chain of custody.
// Rows are append-only: they are created once by the transfer service and
// never updated. The latest non-deleted row for a sample, ordered by
// transferred_at, is the current custody state.
type CustodyTransfer struct {
	ID            string     `json:"id"`
	SampleID      string     `json:"sample_id"`
	TransferredBy string     `json:"transferred_by"`
	ReceivedBy    string     `json:"received_by"`
	Signature     []byte     `json:"-"` // encrypted at rest, never serialized
	PhotoURL      string     `json:"photo_url,omitempty"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	TransferredAt time.Time  `json:"transferred_at"`
	CreatedAt     time.Time  `json:"created_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}
