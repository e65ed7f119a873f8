package services

import (
	"context"
	"time"

	"github.com/dealroom/backend/internal/models"
	"github.com/dealroom/backend/internal/repositories"
	"github.com/dealroom/backend/internal/repositories/memstore"
	"github.com/google/uuid"
)

// DealStore is the durable deal record. ApplyTransition must only write while
// the row still has status patch.From and report models.ErrConflict otherwise.
type DealStore interface {
	Create(ctx context.Context, d *models.Deal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	List(ctx context.Context, f models.DealFilter) ([]models.Deal, error)
	ApplyTransition(ctx context.Context, id uuid.UUID, p models.TransitionPatch) (*models.Deal, error)
	RotateToken(ctx context.Context, id uuid.UUID, rot models.TokenRotation) error
}

type MessageStore interface {
	Append(ctx context.Context, m *models.Message) error
	ListByDeal(ctx context.Context, dealID uuid.UUID) ([]models.Message, error)
}

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	RecordDelivery(ctx context.Context, id uuid.UUID, status models.DeliveryStatus, lastErr *string) error
	MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error
	ListForRecipient(ctx context.Context, dealID uuid.UUID, email string) ([]models.Notification, error)
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]models.Notification, error)
}

type PreferenceStore interface {
	IsEnabled(ctx context.Context, email string, eventType models.EventType) (bool, error)
	Set(ctx context.Context, p models.NotificationPreference) error
	ListForUser(ctx context.Context, email string) ([]models.NotificationPreference, error)
}

type AuditLogStore interface {
	Log(ctx context.Context, entry models.AuditLog) error
	ListByDeal(ctx context.Context, dealID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

var (
	_ DealStore         = (*repositories.DealRepo)(nil)
	_ MessageStore      = (*repositories.MessageRepo)(nil)
	_ NotificationStore = (*repositories.NotificationRepo)(nil)
	_ PreferenceStore   = (*repositories.PreferenceRepo)(nil)
	_ AuditLogStore     = (*repositories.AuditRepo)(nil)

	_ DealStore         = (*memstore.Deals)(nil)
	_ MessageStore      = (*memstore.Messages)(nil)
	_ NotificationStore = (*memstore.Notifications)(nil)
	_ PreferenceStore   = (*memstore.Preferences)(nil)
	_ AuditLogStore     = (*memstore.AuditLog)(nil)
)
