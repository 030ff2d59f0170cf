package session

import "time"

// CreateRequest defines payload for creating a new session.
type CreateRequest struct {
	ParticipantID string `json:"participant_id"`
	SpaceID       string `json:"space_id"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	ParticipantID   string    `json:"participant_id"`
	SpaceID         string    `json:"space_id"`
	Status          Status    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
