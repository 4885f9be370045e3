package model

import "time"

// Reservation is a promise to consume rate-limiter tokens at a future time
// (§3). ExecuteAt is always >= ReservedAt; ExpiresAt is always
// ExecuteAt + 60s.
type Reservation struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	TokenCount int       `json:"token_count"`
	ReservedAt time.Time `json:"reserved_at"`
	ExecuteAt  time.Time `json:"execute_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	ShardID    int       `json:"shard_id,omitempty"`
}

// ReservationTTL is the fixed offset between ExecuteAt and ExpiresAt.
const ReservationTTL = 60 * time.Second
