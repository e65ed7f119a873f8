package services

import (
	"context"
	"time"

	"github.com/dealroom/backend/internal/models"
	"github.com/dealroom/backend/internal/rbac"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type NotificationService struct {
	notifications NotificationStore
	prefs         PreferenceStore
	log           *zap.Logger
}

func NewNotificationService(notifications NotificationStore, prefs PreferenceStore, log *zap.Logger) *NotificationService {
	return &NotificationService{notifications: notifications, prefs: prefs, log: log}
}

// List returns the actor's notifications on a deal, unread first.
func (s *NotificationService) List(ctx context.Context, dealID uuid.UUID, actor models.Actor) ([]models.Notification, error) {
	if !rbac.HasPermission(actor.Role, rbac.PermReadNotifications) || actor.Email == "" {
		return nil, models.ErrForbidden
	}
	list, err := s.notifications.ListForRecipient(ctx, dealID, actor.Email)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Notification{}
	}
	return list, nil
}

// MarkRead marks one of the actor's notifications on dealID as read. A
// notification belonging to another deal is reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, dealID, id uuid.UUID, actor models.Actor) error {
	n, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.DealID != dealID {
		return models.ErrNotFound
	}
	if actor.Email == "" || n.RecipientEmail != actor.Email {
		return models.ErrForbidden
	}
	return s.notifications.MarkRead(ctx, id, time.Now().UTC())
}

// Preferences returns one entry per event type, filling unset ones as enabled.
func (s *NotificationService) Preferences(ctx context.Context, actor models.Actor) ([]models.NotificationPreference, error) {
	if !rbac.HasPermission(actor.Role, rbac.PermManagePreferences) || actor.Email == "" {
		return nil, models.ErrForbidden
	}
	stored, err := s.prefs.ListForUser(ctx, actor.Email)
	if err != nil {
		return nil, err
	}
	set := make(map[models.EventType]bool, len(stored))
	for _, p := range stored {
		set[p.EventType] = p.Enabled
	}

	out := make([]models.NotificationPreference, 0, len(models.AllEventTypes))
	for _, t := range models.AllEventTypes {
		enabled, ok := set[t]
		if !ok {
			enabled = true
		}
		out = append(out, models.NotificationPreference{UserEmail: actor.Email, EventType: t, Enabled: enabled})
	}
	return out, nil
}

func (s *NotificationService) SetPreference(ctx context.Context, actor models.Actor, eventType models.EventType, enabled bool) error {
	if !rbac.HasPermission(actor.Role, rbac.PermManagePreferences) || actor.Email == "" {
		return models.ErrForbidden
	}
	if _, err := models.ParseEventType(string(eventType)); err != nil {
		return err
	}
	if err := s.prefs.Set(ctx, models.NotificationPreference{
		UserEmail: actor.Email,
		EventType: eventType,
		Enabled:   enabled,
	}); err != nil {
		return err
	}
	s.log.Info("notification preference updated",
		zap.String("event_type", string(eventType)),
		zap.Bool("enabled", enabled),
	)
	return nil
}
