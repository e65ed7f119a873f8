package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/dealroom/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

const notificationColumns = `
	id, deal_id, recipient_email, event_type, subject, body, read_at,
	delivery_status, attempts, last_error, created_at`

func scanNotification(row pgx.Row) (*models.Notification, error) {
	var n models.Notification
	err := row.Scan(&n.ID, &n.DealID, &n.RecipientEmail, &n.EventType, &n.Subject, &n.Body, &n.ReadAt,
		&n.DeliveryStatus, &n.Attempts, &n.LastError, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, deal_id, recipient_email, event_type, subject, body, delivery_status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.ID, n.DealID, n.RecipientEmail, n.EventType, n.Subject, n.Body, n.DeliveryStatus, n.Attempts, n.CreatedAt)
	return err
}

func (r *NotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	return scanNotification(r.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
}

// RecordDelivery stores the outcome of one delivery attempt.
func (r *NotificationRepo) RecordDelivery(ctx context.Context, id uuid.UUID, status models.DeliveryStatus, lastErr *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET delivery_status = $2, attempts = attempts + 1, last_error = $3 WHERE id = $1
	`, id, status, lastErr)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read_at = COALESCE(read_at, $2) WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListForRecipient returns unread notifications first, newest first within each group.
func (r *NotificationRepo) ListForRecipient(ctx context.Context, dealID uuid.UUID, email string) ([]models.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications WHERE deal_id = $1 AND recipient_email = $2
		ORDER BY (read_at IS NULL) DESC, created_at DESC
		LIMIT 100
	`, dealID, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func (r *NotificationRepo) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications WHERE delivery_status = 'failed' AND attempts < $1
		ORDER BY created_at LIMIT $2
	`, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNotifications(rows)
}

func collectNotifications(rows pgx.Rows) ([]models.Notification, error) {
	var list []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *n)
	}
	return list, rows.Err()
}

type PreferenceRepo struct {
	pool *pgxpool.Pool
}

func NewPreferenceRepo(pool *pgxpool.Pool) *PreferenceRepo {
	return &PreferenceRepo{pool: pool}
}

// IsEnabled defaults to true when no preference row exists.
func (r *PreferenceRepo) IsEnabled(ctx context.Context, email string, eventType models.EventType) (bool, error) {
	var enabled bool
	err := r.pool.QueryRow(ctx, `
		SELECT enabled FROM notification_preferences WHERE user_email = $1 AND event_type = $2
	`, email, eventType).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return enabled, nil
}

func (r *PreferenceRepo) Set(ctx context.Context, p models.NotificationPreference) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_preferences (user_email, event_type, enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_email, event_type) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = now()
	`, p.UserEmail, p.EventType, p.Enabled)
	return err
}

func (r *PreferenceRepo) ListForUser(ctx context.Context, email string) ([]models.NotificationPreference, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_email, event_type, enabled FROM notification_preferences WHERE user_email = $1
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []models.NotificationPreference
	for rows.Next() {
		var p models.NotificationPreference
		if err := rows.Scan(&p.UserEmail, &p.EventType, &p.Enabled); err != nil {
			return nil, err
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
