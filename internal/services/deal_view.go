package services

import (
	"time"

	"github.com/dealroom/backend/internal/models"
	"github.com/dealroom/backend/internal/rbac"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DealView is what a role may see of a deal. It never carries tokens.
type DealView struct {
	ID          uuid.UUID         `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Amount      decimal.Decimal   `json:"amount"`
	Status      models.DealStatus `json:"status"`
	BuyerEmail  string            `json:"buyer_email"`
	SellerEmail string            `json:"seller_email"`

	DisputeReason  *string    `json:"dispute_reason,omitempty"`
	DisputedAt     *time.Time `json:"disputed_at,omitempty"`
	ResolutionNote *string    `json:"resolution_note,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`

	Role           models.Role `json:"role"`
	TokenExpiresAt *time.Time  `json:"token_expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDealView masks the deal for role. Roles without view_terms get the title,
// status, amount and masked emails only.
func NewDealView(d *models.Deal, role models.Role) *DealView {
	v := &DealView{
		ID:          d.ID,
		Title:       d.Title,
		Amount:      d.Amount,
		Status:      d.Status,
		BuyerEmail:  models.MaskEmail(d.BuyerEmail),
		SellerEmail: models.MaskEmail(d.SellerEmail),
		Role:        role,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}

	if role.IsParty() {
		exp := d.TokenExpiryFor(role)
		v.TokenExpiresAt = &exp
	}
	if rbac.HasPermission(role, rbac.PermViewTerms) {
		v.Description = d.Description
		v.BuyerEmail = d.BuyerEmail
		v.SellerEmail = d.SellerEmail
		v.DisputeReason = d.DisputeReason
		v.DisputedAt = d.DisputedAt
		v.ResolutionNote = d.ResolutionNote
		v.ResolvedAt = d.ResolvedAt
	}
	return v
}
