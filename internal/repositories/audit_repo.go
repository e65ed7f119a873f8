package repositories

import (
	"context"

	"github.com/dealroom/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Log(ctx context.Context, entry models.AuditLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (deal_id, action, role, actor_email, source, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`, entry.DealID, entry.Action, entry.Role, entry.ActorEmail, entry.Source, nullTime(entry.CreatedAt))
	return err
}

func (r *AuditRepo) ListByDeal(ctx context.Context, dealID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, deal_id, action, role, actor_email, source, created_at
		FROM audit_log WHERE deal_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, dealID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.DealID, &l.Action, &l.Role, &l.ActorEmail, &l.Source, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
