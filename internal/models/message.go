package models

import (
	"time"

	"github.com/google/uuid"
)

const MaxMessageLength = 4000

// Message is an append-only chat entry. Ordered by (CreatedAt, ID).
type Message struct {
	ID          uuid.UUID `json:"id"`
	DealID      uuid.UUID `json:"deal_id"`
	SenderEmail string    `json:"sender_email"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}
