// Package memstore holds in-process implementations of the deal, message,
// notification, preference and audit stores. They honour the same contracts
// as the Postgres repositories, including the status compare-and-swap.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dealroom/backend/internal/models"
	"github.com/google/uuid"
)

type Deals struct {
	mu    sync.RWMutex
	deals map[uuid.UUID]models.Deal
}

func NewDeals() *Deals {
	return &Deals{deals: make(map[uuid.UUID]models.Deal)}
}

func (s *Deals) Create(_ context.Context, d *models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deals[d.ID]; ok {
		return fmt.Errorf("deal %s already exists", d.ID)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.UpdatedAt = d.CreatedAt
	s.deals[d.ID] = cloneDeal(*d)
	return nil
}

func (s *Deals) GetByID(_ context.Context, id uuid.UUID) (*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deals[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := cloneDeal(d)
	return &c, nil
}

func (s *Deals) List(_ context.Context, f models.DealFilter) ([]models.Deal, error) {
	s.mu.RLock()
	var out []models.Deal
	for _, d := range s.deals {
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		if f.Email != nil && d.BuyerEmail != *f.Email && d.SellerEmail != *f.Email {
			continue
		}
		out = append(out, cloneDeal(d))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Deals) ApplyTransition(_ context.Context, id uuid.UUID, p models.TransitionPatch) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if d.Status != p.From {
		return nil, models.ErrConflict
	}

	at := p.At
	d.Status = p.To
	d.UpdatedAt = at
	if p.DisputeReason != nil {
		d.DisputeReason = p.DisputeReason
		d.DisputedAt = &at
	}
	if p.DisputedBy != nil {
		d.DisputedBy = p.DisputedBy
	}
	if p.ResolutionNote != nil {
		d.ResolutionNote = p.ResolutionNote
		d.ResolvedAt = &at
	}
	if p.ResolvedBy != nil {
		d.ResolvedBy = p.ResolvedBy
	}
	s.deals[id] = cloneDeal(d)

	c := cloneDeal(d)
	return &c, nil
}

func (s *Deals) RotateToken(_ context.Context, id uuid.UUID, rot models.TokenRotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok {
		return models.ErrNotFound
	}
	switch rot.Role {
	case models.RoleBuyer:
		d.BuyerTokenHash = rot.TokenHash
		d.BuyerTokenExpiresAt = laterOf(d.BuyerTokenExpiresAt, rot.ExpiresAt)
	case models.RoleSeller:
		d.SellerTokenHash = rot.TokenHash
		d.SellerTokenExpiresAt = laterOf(d.SellerTokenExpiresAt, rot.ExpiresAt)
	case models.RoleObserver, models.RoleAdmin:
		return fmt.Errorf("%w: %s has no access token", models.ErrValidation, rot.Role)
	default:
		return fmt.Errorf("%w: unknown role %q", models.ErrValidation, rot.Role)
	}
	s.deals[id] = d
	return nil
}

// SetTokenExpiry overwrites a role's expiry. Tests use it to simulate elapsed time.
func (s *Deals) SetTokenExpiry(id uuid.UUID, role models.Role, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok {
		return
	}
	if role == models.RoleBuyer {
		d.BuyerTokenExpiresAt = at
	} else if role == models.RoleSeller {
		d.SellerTokenExpiresAt = at
	}
	s.deals[id] = d
}

type Messages struct {
	mu   sync.RWMutex
	msgs map[uuid.UUID][]models.Message
}

func NewMessages() *Messages {
	return &Messages{msgs: make(map[uuid.UUID][]models.Message)}
}

func (s *Messages) Append(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[m.DealID] = append(s.msgs[m.DealID], *m)
	return nil
}

func (s *Messages) ListByDeal(_ context.Context, dealID uuid.UUID) ([]models.Message, error) {
	s.mu.RLock()
	out := slices.Clone(s.msgs[dealID])
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

type Notifications struct {
	mu    sync.RWMutex
	order []uuid.UUID
	items map[uuid.UUID]models.Notification
}

func NewNotifications() *Notifications {
	return &Notifications{items: make(map[uuid.UUID]models.Notification)}
}

func (s *Notifications) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[n.ID] = *n
	s.order = append(s.order, n.ID)
	return nil
}

func (s *Notifications) GetByID(_ context.Context, id uuid.UUID) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.items[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &n, nil
}

func (s *Notifications) RecordDelivery(_ context.Context, id uuid.UUID, status models.DeliveryStatus, lastErr *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok {
		return models.ErrNotFound
	}
	n.DeliveryStatus = status
	n.Attempts++
	n.LastError = lastErr
	s.items[id] = n
	return nil
}

func (s *Notifications) MarkRead(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok {
		return models.ErrNotFound
	}
	if n.ReadAt == nil {
		n.ReadAt = &at
	}
	s.items[id] = n
	return nil
}

func (s *Notifications) ListForRecipient(_ context.Context, dealID uuid.UUID, email string) ([]models.Notification, error) {
	s.mu.RLock()
	var out []models.Notification
	for _, id := range s.order {
		n := s.items[id]
		if n.DealID == dealID && n.RecipientEmail == email {
			out = append(out, n)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsRead() != out[j].IsRead() {
			return !out[i].IsRead()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Notifications) ListRetryable(_ context.Context, maxAttempts, limit int) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Notification
	for _, id := range s.order {
		n := s.items[id]
		if n.CanRetry(maxAttempts) {
			out = append(out, n)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// All returns every stored notification in insertion order.
func (s *Notifications) All() []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Notification, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

type prefKey struct {
	email     string
	eventType models.EventType
}

type Preferences struct {
	mu    sync.RWMutex
	prefs map[prefKey]bool
}

func NewPreferences() *Preferences {
	return &Preferences{prefs: make(map[prefKey]bool)}
}

func (s *Preferences) IsEnabled(_ context.Context, email string, eventType models.EventType) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enabled, ok := s.prefs[prefKey{email, eventType}]
	if !ok {
		return true, nil
	}
	return enabled, nil
}

func (s *Preferences) Set(_ context.Context, p models.NotificationPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[prefKey{p.UserEmail, p.EventType}] = p.Enabled
	return nil
}

func (s *Preferences) ListForUser(_ context.Context, email string) ([]models.NotificationPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.NotificationPreference
	for _, t := range models.AllEventTypes {
		if enabled, ok := s.prefs[prefKey{email, t}]; ok {
			out = append(out, models.NotificationPreference{UserEmail: email, EventType: t, Enabled: enabled})
		}
	}
	return out, nil
}

type AuditLog struct {
	mu      sync.RWMutex
	entries []models.AuditLog
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (s *AuditLog) Log(_ context.Context, entry models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *AuditLog) ListByDeal(_ context.Context, dealID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AuditLog
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].DealID == dealID {
			out = append(out, s.entries[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func cloneDeal(d models.Deal) models.Deal {
	d.DisputeReason = cloneString(d.DisputeReason)
	d.DisputedBy = cloneString(d.DisputedBy)
	d.ResolutionNote = cloneString(d.ResolutionNote)
	d.ResolvedBy = cloneString(d.ResolvedBy)
	d.DisputedAt = cloneTime(d.DisputedAt)
	d.ResolvedAt = cloneTime(d.ResolvedAt)
	return d
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
