package dto

import "time"

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// CreateDealResponse carries the creator's own link only. The counterparty's
// link goes out by mail.
type CreateDealResponse struct {
	Deal           any        `json:"deal"`
	Role           string     `json:"role"`
	AccessToken    string     `json:"access_token,omitempty"`
	AccessURL      string     `json:"access_url,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

type AccessResponse struct {
	DealID string `json:"deal_id"`
	Role   string `json:"role"`
}

type AdminLoginResponse struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AuditTrailResponse struct {
	DealID string `json:"deal_id"`
	Events any    `json:"events"`
}
