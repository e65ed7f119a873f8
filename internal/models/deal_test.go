package models

import (
	"errors"
	"testing"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		from     DealStatus
		action   Action
		actor    Role
		expected DealStatus
	}{
		// Happy path
		{DealStatusPending, ActionMarkPaid, RoleBuyer, DealStatusPaid},
		{DealStatusPaid, ActionMarkComplete, RoleSeller, DealStatusComplete},

		// Dispute path
		{DealStatusPending, ActionFileDispute, RoleBuyer, DealStatusDisputed},
		{DealStatusPending, ActionFileDispute, RoleSeller, DealStatusDisputed},
		{DealStatusPaid, ActionFileDispute, RoleBuyer, DealStatusDisputed},
		{DealStatusPaid, ActionFileDispute, RoleSeller, DealStatusDisputed},
		{DealStatusDisputed, ActionResolve, RoleAdmin, DealStatusResolved},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action)+"/"+string(tt.actor), func(t *testing.T) {
			got, err := NextStatus(tt.from, tt.action, tt.actor)
			if err != nil {
				t.Fatalf("NextStatus(%q, %q, %q) unexpected error: %v", tt.from, tt.action, tt.actor, err)
			}
			if got != tt.expected {
				t.Errorf("NextStatus(%q, %q, %q) = %q, want %q", tt.from, tt.action, tt.actor, got, tt.expected)
			}
		})
	}
}

func TestNextStatusRejectsEverythingOffTable(t *testing.T) {
	roles := []Role{RoleBuyer, RoleSeller, RoleObserver, RoleAdmin}
	actions := []Action{ActionMarkPaid, ActionMarkComplete, ActionFileDispute, ActionResolve}

	legal := map[[3]string]bool{
		{"pending", "mark_paid", "buyer"}:        true,
		{"paid", "mark_complete", "seller"}:      true,
		{"pending", "file_dispute", "buyer"}:     true,
		{"pending", "file_dispute", "seller"}:    true,
		{"paid", "file_dispute", "buyer"}:        true,
		{"paid", "file_dispute", "seller"}:       true,
		{"disputed", "resolve", "admin"}:         true,
	}

	for _, from := range AllDealStatuses {
		for _, action := range actions {
			for _, actor := range roles {
				key := [3]string{string(from), string(action), string(actor)}
				next, err := NextStatus(from, action, actor)
				if legal[key] {
					if err != nil {
						t.Errorf("%v: expected legal, got %v", key, err)
					}
					if !next.Valid() {
						t.Errorf("%v: reached invalid status %q", key, next)
					}
					continue
				}
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("%v: expected ErrInvalidTransition, got %v", key, err)
				}
			}
		}
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	for _, status := range AllDealStatuses {
		if !status.IsTerminal() {
			continue
		}
		for action, rule := range DealTransitions {
			for _, from := range rule.From {
				if from == status {
					t.Errorf("terminal status %q is a source of %q", status, action)
				}
			}
		}
	}
}

func TestAllTransitionTargetsAreValidStatuses(t *testing.T) {
	for action, rule := range DealTransitions {
		if !rule.To.Valid() {
			t.Errorf("action %q leads to invalid status %q", action, rule.To)
		}
		if len(rule.Actors) == 0 {
			t.Errorf("action %q has no actors", action)
		}
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		input    string
		expected Role
		wantErr  bool
	}{
		{"buyer", RoleBuyer, false},
		{" Seller ", RoleSeller, false},
		{"ADMIN", RoleAdmin, false},
		{"observer", RoleObserver, false},
		{"owner", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("ParseRole(%q) error = %v, want ErrValidation", tt.input, err)
				}
				return
			}
			if err != nil || got != tt.expected {
				t.Errorf("ParseRole(%q) = %q, %v, want %q", tt.input, got, err, tt.expected)
			}
		})
	}
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"buyer@x.com", "b***@x.com"},
		{"s@x.com", "s***@x.com"},
		{"broken", "***"},
		{"@x.com", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := MaskEmail(tt.input); got != tt.expected {
				t.Errorf("MaskEmail(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestThrottledErrorMatchesSentinel(t *testing.T) {
	var err error = &ThrottledError{RetryAfter: 42}
	if !errors.Is(err, ErrThrottled) {
		t.Fatal("ThrottledError should match ErrThrottled")
	}
	if errors.Is(err, ErrForbidden) {
		t.Fatal("ThrottledError should not match ErrForbidden")
	}
}
