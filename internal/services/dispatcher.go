package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dealroom/backend/internal/config"
	"github.com/dealroom/backend/internal/events"
	"github.com/dealroom/backend/internal/mailrender"
	"github.com/dealroom/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	deliveryTimeout = 30 * time.Second
	fanOutLimit     = 4
)

// DealEvent is a committed change that interested parties hear about.
type DealEvent struct {
	Deal      *models.Deal
	EventType models.EventType
	Actor     models.Actor
	Message   *models.Message
}

// Dispatcher fans committed deal events out to every interested party except
// the actor. Nothing it does can undo the change that triggered it.
type Dispatcher struct {
	notifications NotificationStore
	prefs         PreferenceStore
	mailer        Mailer
	renderer      *mailrender.Renderer
	publisher     events.Publisher
	cfg           *config.Config
	log           *zap.Logger

	wg sync.WaitGroup
}

func NewDispatcher(
	notifications NotificationStore,
	prefs PreferenceStore,
	mailer Mailer,
	renderer *mailrender.Renderer,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		prefs:         prefs,
		mailer:        mailer,
		renderer:      renderer,
		publisher:     publisher,
		cfg:           cfg,
		log:           log,
	}
}

// Recipients lists who hears about an event: both parties, plus every admin for
// disputes, minus the actor.
func (d *Dispatcher) Recipients(deal *models.Deal, eventType models.EventType, actor models.Actor) []string {
	candidates := []string{deal.BuyerEmail, deal.SellerEmail}
	if eventType == models.EventTypeDispute {
		candidates = append(candidates, d.cfg.AdminEmails...)
	}

	actorEmail := strings.ToLower(actor.Email)
	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, c := range candidates {
		c = strings.ToLower(c)
		if c == "" || c == actorEmail || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Dispatch publishes the realtime refresh signal and starts delivery in the
// background. It returns without waiting for mail.
func (d *Dispatcher) Dispatch(ctx context.Context, ev DealEvent) {
	d.publish(ctx, ev)

	recipients := d.Recipients(ev.Deal, ev.EventType, ev.Actor)
	if len(recipients) == 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()

		if err := d.fanOut(bg, ev, recipients); err != nil {
			d.log.Warn("notification fan-out incomplete",
				zap.String("deal_id", ev.Deal.ID.String()),
				zap.String("event_type", string(ev.EventType)),
				zap.Error(err),
			)
		}
	}()
}

func (d *Dispatcher) fanOut(ctx context.Context, ev DealEvent, recipients []string) error {
	rendered, err := d.renderer.Render(mailKind(ev.EventType), d.mailData(ev))
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(fanOutLimit)
	for _, r := range recipients {
		g.Go(func() error {
			return d.notify(ctx, ev, r, rendered)
		})
	}
	return g.Wait()
}

func (d *Dispatcher) notify(ctx context.Context, ev DealEvent, recipient string, rendered mailrender.Rendered) error {
	enabled, err := d.prefs.IsEnabled(ctx, recipient, ev.EventType)
	if err != nil {
		// Unreadable preference falls back to the default.
		d.log.Warn("failed to read notification preference", zap.String("recipient", recipient), zap.Error(err))
		enabled = true
	}
	if !enabled {
		return nil
	}

	n := &models.Notification{
		ID:             uuid.New(),
		DealID:         ev.Deal.ID,
		RecipientEmail: recipient,
		EventType:      ev.EventType,
		Subject:        rendered.Subject,
		Body:           rendered.HTML,
		DeliveryStatus: models.DeliveryPending,
		CreatedAt:      time.Now().UTC(),
	}
	persisted := true
	if err := d.notifications.Create(ctx, n); err != nil {
		persisted = false
		d.log.Error("failed to persist notification",
			zap.String("deal_id", ev.Deal.ID.String()),
			zap.String("recipient", recipient),
			zap.Error(err),
		)
	}

	sendErr := d.mailer.Send(ctx, Mail{To: recipient, Subject: rendered.Subject, HTML: rendered.HTML, Text: rendered.Text})
	if sendErr != nil {
		d.log.Warn("notification delivery failed",
			zap.String("notification_id", n.ID.String()),
			zap.String("recipient", recipient),
			zap.Error(sendErr),
		)
	}
	if persisted {
		d.recordDelivery(ctx, n.ID, sendErr)
	}
	if sendErr != nil {
		return fmt.Errorf("deliver to %s: %w", recipient, sendErr)
	}
	return nil
}

func (d *Dispatcher) recordDelivery(ctx context.Context, id uuid.UUID, sendErr error) {
	status := models.DeliverySent
	var lastErr *string
	if sendErr != nil {
		status = models.DeliveryFailed
		msg := sendErr.Error()
		lastErr = &msg
	}
	if err := d.notifications.RecordDelivery(ctx, id, status, lastErr); err != nil {
		d.log.Error("failed to record notification delivery", zap.String("notification_id", id.String()), zap.Error(err))
	}
}

// SendAccessLink mails a party its private link in the background. Access
// links are never stored as notifications.
func (d *Dispatcher) SendAccessLink(ctx context.Context, deal *models.Deal, role models.Role, token string, expiresAt time.Time) {
	recipient := deal.EmailFor(role)
	if recipient == "" {
		return
	}
	rendered, err := d.renderer.Render(mailrender.KindAccessLink, mailrender.Data{
		DealTitle: deal.Title,
		DealURL:   d.DealURL(deal.ID, token),
		Role:      string(role),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		d.log.Error("failed to render access link", zap.String("deal_id", deal.ID.String()), zap.Error(err))
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()

		err := d.mailer.Send(bg, Mail{To: recipient, Subject: rendered.Subject, HTML: rendered.HTML, Text: rendered.Text})
		if err != nil {
			d.log.Warn("access link delivery failed",
				zap.String("deal_id", deal.ID.String()),
				zap.String("role", string(role)),
				zap.String("recipient", models.MaskEmail(recipient)),
				zap.Error(err),
			)
		}
	}()
}

// RetryFailed re-sends failed notifications that still have attempts left and
// returns how many went through.
func (d *Dispatcher) RetryFailed(ctx context.Context, limit int) (int, error) {
	pending, err := d.notifications.ListRetryable(ctx, d.cfg.NotifyMaxAttempts, limit)
	if err != nil {
		return 0, fmt.Errorf("list retryable notifications: %w", err)
	}

	sent := 0
	for _, n := range pending {
		text, err := mailrender.PlainText(n.Body)
		if err != nil {
			text = ""
		}
		sendErr := d.mailer.Send(ctx, Mail{To: n.RecipientEmail, Subject: n.Subject, HTML: n.Body, Text: text})
		if sendErr != nil {
			d.log.Warn("notification delivery failed",
				zap.String("notification_id", n.ID.String()),
				zap.String("recipient", n.RecipientEmail),
				zap.Int("attempt", n.Attempts+1),
				zap.Error(sendErr),
			)
		} else {
			sent++
		}
		d.recordDelivery(ctx, n.ID, sendErr)
	}
	return sent, nil
}

// Wait blocks until every background delivery started so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// DealURL builds the link a party opens. An empty token gives the observer link.
func (d *Dispatcher) DealURL(dealID uuid.UUID, token string) string {
	u := fmt.Sprintf("%s/deals/%s", d.cfg.PublicBaseURL, dealID)
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

func (d *Dispatcher) publish(ctx context.Context, ev DealEvent) {
	event := events.Event{
		Type:   events.EventDealStatusChanged,
		DealID: ev.Deal.ID.String(),
		Payload: map[string]any{
			"status": string(ev.Deal.Status),
		},
	}
	if ev.Message != nil {
		event.Type = events.EventDealMessagePosted
		event.Payload = map[string]any{
			"message_id": ev.Message.ID.String(),
		}
	}
	if err := d.publisher.Publish(ctx, events.DealStream, event); err != nil {
		d.log.Warn("failed to publish deal event", zap.String("deal_id", event.DealID), zap.Error(err))
	}
}

func (d *Dispatcher) mailData(ev DealEvent) mailrender.Data {
	data := mailrender.Data{
		DealTitle:  ev.Deal.Title,
		DealURL:    d.DealURL(ev.Deal.ID, ""),
		Status:     string(ev.Deal.Status),
		ActorEmail: ev.Actor.Email,
	}
	if ev.Actor.Role == models.RoleAdmin {
		data.ActorEmail = "An administrator"
	}
	if ev.Deal.DisputeReason != nil {
		data.Reason = *ev.Deal.DisputeReason
	}
	if ev.Deal.ResolutionNote != nil {
		data.Note = *ev.Deal.ResolutionNote
	}
	if ev.Message != nil {
		data.Message = ev.Message.Message
	}
	return data
}

func mailKind(t models.EventType) mailrender.Kind {
	switch t {
	case models.EventTypeDispute:
		return mailrender.KindDispute
	case models.EventTypeResolution:
		return mailrender.KindResolution
	case models.EventTypeMessage:
		return mailrender.KindMessage
	case models.EventTypeStatusChange:
		return mailrender.KindStatusChange
	}
	return mailrender.KindStatusChange
}
