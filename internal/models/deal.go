package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DealStatus string

// Deal statuses
const (
	DealStatusPending  DealStatus = "pending"
	DealStatusPaid     DealStatus = "paid"
	DealStatusComplete DealStatus = "complete"
	DealStatusDisputed DealStatus = "disputed"
	DealStatusResolved DealStatus = "resolved"
)

var AllDealStatuses = []DealStatus{
	DealStatusPending, DealStatusPaid, DealStatusComplete, DealStatusDisputed, DealStatusResolved,
}

func (s DealStatus) Valid() bool {
	switch s {
	case DealStatusPending, DealStatusPaid, DealStatusComplete, DealStatusDisputed, DealStatusResolved:
		return true
	}
	return false
}

// IsTerminal reports whether no action can move the deal out of s.
// A resolved deal cannot be disputed again.
func (s DealStatus) IsTerminal() bool {
	return s == DealStatusComplete || s == DealStatusResolved
}

type Action string

const (
	ActionMarkPaid     Action = "mark_paid"
	ActionMarkComplete Action = "mark_complete"
	ActionFileDispute  Action = "file_dispute"
	ActionResolve      Action = "resolve"
)

// TransitionRule is one row of the lifecycle table: who may apply the action,
// from which statuses, and where it leads.
type TransitionRule struct {
	From          []DealStatus
	Actors        []Role
	To            DealStatus
	RequiresInput bool
}

// DealTransitions is the complete lifecycle. Anything not listed is illegal.
var DealTransitions = map[Action]TransitionRule{
	ActionMarkPaid: {
		From:   []DealStatus{DealStatusPending},
		Actors: []Role{RoleBuyer},
		To:     DealStatusPaid,
	},
	ActionMarkComplete: {
		From:   []DealStatus{DealStatusPaid},
		Actors: []Role{RoleSeller},
		To:     DealStatusComplete,
	},
	ActionFileDispute: {
		From:          []DealStatus{DealStatusPending, DealStatusPaid},
		Actors:        []Role{RoleBuyer, RoleSeller},
		To:            DealStatusDisputed,
		RequiresInput: true,
	},
	ActionResolve: {
		From:          []DealStatus{DealStatusDisputed},
		Actors:        []Role{RoleAdmin},
		To:            DealStatusResolved,
		RequiresInput: true,
	},
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.TrimSpace(s))
	if _, ok := DealTransitions[a]; !ok {
		return "", fmt.Errorf("%w: unknown action %q", ErrValidation, s)
	}
	return a, nil
}

// AllowsActor reports whether role may ever apply the action, regardless of status.
func (a Action) AllowsActor(role Role) bool {
	rule, ok := DealTransitions[a]
	if !ok {
		return false
	}
	for _, r := range rule.Actors {
		if r == role {
			return true
		}
	}
	return false
}

// NextStatus returns the status reached by applying action as actor on a deal
// currently in from. Every combination outside the table yields ErrInvalidTransition.
func NextStatus(from DealStatus, action Action, actor Role) (DealStatus, error) {
	rule, ok := DealTransitions[action]
	if !ok {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
	if !action.AllowsActor(actor) {
		return "", fmt.Errorf("%w: %s cannot %s", ErrInvalidTransition, actor, action)
	}
	for _, s := range rule.From {
		if s == from {
			return rule.To, nil
		}
	}
	return "", fmt.Errorf("%w: cannot %s a %s deal", ErrInvalidTransition, action, from)
}

type Deal struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	BuyerEmail  string          `json:"buyer_email"`
	SellerEmail string          `json:"seller_email"`
	Status      DealStatus      `json:"status"`

	BuyerTokenHash       string    `json:"-"`
	SellerTokenHash      string    `json:"-"`
	BuyerTokenExpiresAt  time.Time `json:"-"`
	SellerTokenExpiresAt time.Time `json:"-"`

	// Latest dispute/resolution only; a second cycle overwrites the first.
	DisputeReason  *string    `json:"dispute_reason,omitempty"`
	DisputedAt     *time.Time `json:"disputed_at,omitempty"`
	DisputedBy     *string    `json:"disputed_by,omitempty"`
	ResolutionNote *string    `json:"resolution_note,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     *string    `json:"resolved_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailFor returns the email on record for a party role, or "" for any other role.
func (d *Deal) EmailFor(role Role) string {
	switch role {
	case RoleBuyer:
		return d.BuyerEmail
	case RoleSeller:
		return d.SellerEmail
	case RoleObserver, RoleAdmin:
		return ""
	}
	return ""
}

func (d *Deal) TokenHashFor(role Role) string {
	switch role {
	case RoleBuyer:
		return d.BuyerTokenHash
	case RoleSeller:
		return d.SellerTokenHash
	case RoleObserver, RoleAdmin:
		return ""
	}
	return ""
}

func (d *Deal) TokenExpiryFor(role Role) time.Time {
	switch role {
	case RoleBuyer:
		return d.BuyerTokenExpiresAt
	case RoleSeller:
		return d.SellerTokenExpiresAt
	case RoleObserver, RoleAdmin:
		return time.Time{}
	}
	return time.Time{}
}

// TransitionPatch is the conditional write produced by a legal transition.
// The store applies it only while the row still has status From.
type TransitionPatch struct {
	From DealStatus
	To   DealStatus
	At   time.Time

	DisputeReason  *string
	DisputedBy     *string
	ResolutionNote *string
	ResolvedBy     *string
}

// TokenRotation replaces one role's token. ExpiresAt never moves backwards.
type TokenRotation struct {
	Role      Role
	TokenHash string
	ExpiresAt time.Time
}

// DealFilter narrows admin listings.
type DealFilter struct {
	Status *DealStatus
	Email  *string
	Limit  int
	Offset int
}
