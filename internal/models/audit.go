package models

import (
	"time"

	"github.com/google/uuid"
)

// Security log actions.
const (
	AuditActionTokensIssued = "tokens_issued"
	AuditActionTokenRotated = "token_rotated"
)

// AuditLog is an append-only security record (token issuance and rotation).
// It is not used to build deal history.
type AuditLog struct {
	ID         uuid.UUID `json:"id"`
	DealID     uuid.UUID `json:"deal_id"`
	Action     string    `json:"action"`
	Role       Role      `json:"role,omitempty"`
	ActorEmail string    `json:"actor_email"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

type AuditEventKind string

const (
	AuditEventCreated      AuditEventKind = "created"
	AuditEventStatusChange AuditEventKind = "status_change"
	AuditEventDispute      AuditEventKind = "dispute"
	AuditEventResolution   AuditEventKind = "resolution"
	AuditEventMessage      AuditEventKind = "message"
)

// AuditEvent is derived on every read and never stored.
type AuditEvent struct {
	Timestamp  time.Time      `json:"timestamp"`
	Kind       AuditEventKind `json:"kind"`
	ActorEmail string         `json:"actor_email,omitempty"`
	Detail     string         `json:"detail,omitempty"`
}
