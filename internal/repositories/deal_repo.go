package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/dealroom/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type DealRepo struct {
	pool *pgxpool.Pool
}

func NewDealRepo(pool *pgxpool.Pool) *DealRepo {
	return &DealRepo{pool: pool}
}

const dealColumns = `
	id, title, description, amount::text, buyer_email, seller_email, status,
	buyer_token_hash, seller_token_hash, buyer_token_expires_at, seller_token_expires_at,
	dispute_reason, disputed_at, disputed_by, resolution_note, resolved_at, resolved_by,
	created_at, updated_at`

func scanDeal(row pgx.Row) (*models.Deal, error) {
	var d models.Deal
	var amount string
	err := row.Scan(&d.ID, &d.Title, &d.Description, &amount, &d.BuyerEmail, &d.SellerEmail, &d.Status,
		&d.BuyerTokenHash, &d.SellerTokenHash, &d.BuyerTokenExpiresAt, &d.SellerTokenExpiresAt,
		&d.DisputeReason, &d.DisputedAt, &d.DisputedBy, &d.ResolutionNote, &d.ResolvedAt, &d.ResolvedBy,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	d.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("deal %s: parse amount %q: %w", d.ID, amount, err)
	}
	return &d, nil
}

func (r *DealRepo) Create(ctx context.Context, d *models.Deal) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO deals (id, title, description, amount, buyer_email, seller_email, status,
		                   buyer_token_hash, seller_token_hash, buyer_token_expires_at, seller_token_expires_at,
		                   created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING created_at, updated_at
	`, d.ID, d.Title, d.Description, d.Amount.String(), d.BuyerEmail, d.SellerEmail, d.Status,
		d.BuyerTokenHash, d.SellerTokenHash, d.BuyerTokenExpiresAt, d.SellerTokenExpiresAt, d.CreatedAt,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *DealRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	return scanDeal(r.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id))
}

func (r *DealRepo) List(ctx context.Context, f models.DealFilter) ([]models.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}
	if f.Email != nil {
		where = append(where, fmt.Sprintf("(buyer_email = $%d OR seller_email = $%d)", argIdx, argIdx))
		args = append(args, *f.Email)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}

// ApplyTransition writes the patch only if the row still has status patch.From.
// A missing row yields ErrNotFound, a changed status ErrConflict.
func (r *DealRepo) ApplyTransition(ctx context.Context, id uuid.UUID, p models.TransitionPatch) (*models.Deal, error) {
	d, err := scanDeal(r.pool.QueryRow(ctx, `
		UPDATE deals SET
			status          = $3,
			updated_at      = $4,
			dispute_reason  = COALESCE($5, dispute_reason),
			disputed_at     = CASE WHEN $5::text IS NOT NULL THEN $4 ELSE disputed_at END,
			disputed_by     = COALESCE($6, disputed_by),
			resolution_note = COALESCE($7, resolution_note),
			resolved_at     = CASE WHEN $7::text IS NOT NULL THEN $4 ELSE resolved_at END,
			resolved_by     = COALESCE($8, resolved_by)
		WHERE id = $1 AND status = $2
		RETURNING `+dealColumns,
		id, p.From, p.To, p.At, p.DisputeReason, p.DisputedBy, p.ResolutionNote, p.ResolvedBy))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM deals WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.ErrNotFound
	}
	return nil, models.ErrConflict
}

// RotateToken replaces one role's token hash. The expiry never moves backwards.
func (r *DealRepo) RotateToken(ctx context.Context, id uuid.UUID, rot models.TokenRotation) error {
	var query string
	switch rot.Role {
	case models.RoleBuyer:
		query = `UPDATE deals SET buyer_token_hash = $2, buyer_token_expires_at = GREATEST(buyer_token_expires_at, $3) WHERE id = $1`
	case models.RoleSeller:
		query = `UPDATE deals SET seller_token_hash = $2, seller_token_expires_at = GREATEST(seller_token_expires_at, $3) WHERE id = $1`
	case models.RoleObserver, models.RoleAdmin:
		return fmt.Errorf("%w: %s has no access token", models.ErrValidation, rot.Role)
	default:
		return fmt.Errorf("%w: unknown role %q", models.ErrValidation, rot.Role)
	}

	tag, err := r.pool.Exec(ctx, query, id, rot.TokenHash, rot.ExpiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
