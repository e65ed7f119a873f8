package models

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSeller   Role = "seller"
	RoleObserver Role = "observer"
	RoleAdmin    Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleBuyer, RoleSeller, RoleObserver, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

// IsParty reports whether the role is one of the two deal parties.
func (r Role) IsParty() bool {
	switch r {
	case RoleBuyer, RoleSeller:
		return true
	case RoleObserver, RoleAdmin:
		return false
	}
	return false
}

// Session is an authenticated admin session. It is passed explicitly with the
// actor instead of being looked up from ambient state.
type Session struct {
	Subject   string    `json:"subject"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Actor is whoever performs an operation on a deal.
type Actor struct {
	Role    Role
	Email   string
	Session *Session
}

func ObserverActor() Actor {
	return Actor{Role: RoleObserver}
}

func AdminActor(s Session) Actor {
	return Actor{Role: RoleAdmin, Email: s.Subject, Session: &s}
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
