package repositories

import (
	"context"

	"github.com/dealroom/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Append(ctx context.Context, m *models.Message) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO deal_messages (id, deal_id, sender_email, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.DealID, m.SenderEmail, m.Message, m.CreatedAt)
	return err
}

func (r *MessageRepo) ListByDeal(ctx context.Context, dealID uuid.UUID) ([]models.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, deal_id, sender_email, message, created_at
		FROM deal_messages WHERE deal_id = $1
		ORDER BY created_at, id
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.DealID, &m.SenderEmail, &m.Message, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
