package events

import "context"

// Channel carrying every deal event.
const DealStream = "events:deal"

// Event types
const (
	EventDealStatusChanged = "deal_status_changed"
	EventDealMessagePosted = "deal_message_posted"
)

// Event payloads carry ids and statuses only, never terms, emails or tokens,
// because every socket subscribed to a deal receives them.
type Event struct {
	Type    string         `json:"type"`
	DealID  string         `json:"deal_id"`
	Payload map[string]any `json:"payload,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
