package services

import (
	"context"
	"iter"
	"slices"

	"github.com/dealroom/backend/internal/models"
	"github.com/dealroom/backend/internal/rbac"
	"github.com/google/uuid"
)

// TimelineService derives deal history from the current deal row and the
// message log. Nothing it returns is stored.
//
// The deal keeps only its latest dispute and resolution, so a second dispute
// cycle replaces the first one in the history.
type TimelineService struct {
	deals    DealStore
	messages MessageStore
}

func NewTimelineService(deals DealStore, messages MessageStore) *TimelineService {
	return &TimelineService{deals: deals, messages: messages}
}

// Reconstruct reads the store once and returns the ordered history. The
// sequence is merged lazily and may be ranged over any number of times with
// the same result.
func (s *TimelineService) Reconstruct(ctx context.Context, dealID uuid.UUID) (iter.Seq[models.AuditEvent], error) {
	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	return mergeTimeline(synthesize(deal), msgs), nil
}

// ForActor reconstructs the history as the actor may see it.
func (s *TimelineService) ForActor(ctx context.Context, dealID uuid.UUID, actor models.Actor) (iter.Seq[models.AuditEvent], error) {
	if !rbac.HasPermission(actor.Role, rbac.PermViewAuditTrail) {
		return nil, models.ErrForbidden
	}
	seq, err := s.Reconstruct(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleObserver {
		return seq, nil
	}
	return maskForObserver(seq), nil
}

func synthesize(d *models.Deal) []models.AuditEvent {
	events := []models.AuditEvent{{
		Timestamp: d.CreatedAt,
		Kind:      models.AuditEventCreated,
		Detail:    d.Title,
	}}

	switch d.Status {
	case models.DealStatusPaid:
		events = append(events, models.AuditEvent{
			Timestamp:  d.UpdatedAt,
			Kind:       models.AuditEventStatusChange,
			ActorEmail: d.BuyerEmail,
			Detail:     string(models.DealStatusPaid),
		})
	case models.DealStatusComplete:
		events = append(events, models.AuditEvent{
			Timestamp:  d.UpdatedAt,
			Kind:       models.AuditEventStatusChange,
			ActorEmail: d.SellerEmail,
			Detail:     string(models.DealStatusComplete),
		})
	case models.DealStatusDisputed, models.DealStatusResolved:
		if d.DisputedAt != nil && d.DisputeReason != nil {
			events = append(events, models.AuditEvent{
				Timestamp:  *d.DisputedAt,
				Kind:       models.AuditEventDispute,
				ActorEmail: deref(d.DisputedBy),
				Detail:     *d.DisputeReason,
			})
		}
		if d.Status == models.DealStatusResolved && d.ResolvedAt != nil && d.ResolutionNote != nil {
			events = append(events, models.AuditEvent{
				Timestamp:  *d.ResolvedAt,
				Kind:       models.AuditEventResolution,
				ActorEmail: deref(d.ResolvedBy),
				Detail:     *d.ResolutionNote,
			})
		}
	case models.DealStatusPending:
	}

	slices.SortStableFunc(events, func(a, b models.AuditEvent) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return events
}

// mergeTimeline interleaves two already ordered inputs. On equal timestamps
// deal events come before messages.
func mergeTimeline(synthetic []models.AuditEvent, msgs []models.Message) iter.Seq[models.AuditEvent] {
	return func(yield func(models.AuditEvent) bool) {
		i, j := 0, 0
		for i < len(synthetic) || j < len(msgs) {
			var ev models.AuditEvent
			if j >= len(msgs) || (i < len(synthetic) && !msgs[j].CreatedAt.Before(synthetic[i].Timestamp)) {
				ev = synthetic[i]
				i++
			} else {
				ev = messageEvent(msgs[j])
				j++
			}
			if !yield(ev) {
				return
			}
		}
	}
}

func messageEvent(m models.Message) models.AuditEvent {
	return models.AuditEvent{
		Timestamp:  m.CreatedAt,
		Kind:       models.AuditEventMessage,
		ActorEmail: m.SenderEmail,
		Detail:     m.Message,
	}
}

func maskForObserver(seq iter.Seq[models.AuditEvent]) iter.Seq[models.AuditEvent] {
	return func(yield func(models.AuditEvent) bool) {
		for ev := range seq {
			if ev.ActorEmail != "" {
				ev.ActorEmail = models.MaskEmail(ev.ActorEmail)
			}
			if ev.Kind != models.AuditEventStatusChange && ev.Kind != models.AuditEventCreated {
				ev.Detail = ""
			}
			if !yield(ev) {
				return
			}
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Collect drains a history sequence, for callers that need a slice.
func Collect(seq iter.Seq[models.AuditEvent]) []models.AuditEvent {
	out := slices.Collect(seq)
	if out == nil {
		return []models.AuditEvent{}
	}
	return out
}

