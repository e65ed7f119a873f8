package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypeStatusChange EventType = "status_change"
	EventTypeDispute      EventType = "dispute"
	EventTypeResolution   EventType = "resolution"
	EventTypeMessage      EventType = "message"
)

var AllEventTypes = []EventType{EventTypeStatusChange, EventTypeDispute, EventTypeResolution, EventTypeMessage}

func ParseEventType(s string) (EventType, error) {
	for _, t := range AllEventTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown event type %q", ErrValidation, s)
}

// EventTypeForAction maps a committed transition to the notification event type.
func EventTypeForAction(a Action) EventType {
	switch a {
	case ActionFileDispute:
		return EventTypeDispute
	case ActionResolve:
		return EventTypeResolution
	case ActionMarkPaid, ActionMarkComplete:
		return EventTypeStatusChange
	}
	return EventTypeStatusChange
}

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

type Notification struct {
	ID             uuid.UUID      `json:"id"`
	DealID         uuid.UUID      `json:"deal_id"`
	RecipientEmail string         `json:"recipient_email"`
	EventType      EventType      `json:"event_type"`
	Subject        string         `json:"subject"`
	Body           string         `json:"body"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	Attempts       int            `json:"attempts"`
	LastError      *string        `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// CanRetry reports whether a failed delivery may be attempted again.
func (n *Notification) CanRetry(maxAttempts int) bool {
	return n.DeliveryStatus == DeliveryFailed && n.Attempts < maxAttempts
}

// NotificationPreference is keyed by (UserEmail, EventType). A missing row means enabled.
type NotificationPreference struct {
	UserEmail string    `json:"user_email"`
	EventType EventType `json:"event_type"`
	Enabled   bool      `json:"enabled"`
}
