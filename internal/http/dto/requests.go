package dto

import "github.com/shopspring/decimal"

type CreateDealRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	BuyerEmail  string          `json:"buyer_email"`
	SellerEmail string          `json:"seller_email"`
	CreatorRole string          `json:"creator_role,omitempty"` // buyer / seller
}

type TransitionRequest struct {
	Action string `json:"action"` // mark_paid / mark_complete / file_dispute / resolve
	Role   string `json:"role,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type RotateTokenRequest struct {
	Role  string `json:"role"`
	Email string `json:"email"`
}

type PostMessageRequest struct {
	Message string `json:"message"`
}

type SetPreferenceRequest struct {
	EventType string `json:"event_type"`
	Enabled   *bool  `json:"enabled"`
}

type AdminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ResolveDisputeRequest struct {
	Note string `json:"note"`
}
