package services_test

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/dealroom/backend/internal/config"
	"github.com/dealroom/backend/internal/events"
	"github.com/dealroom/backend/internal/mailrender"
	"github.com/dealroom/backend/internal/ratelimit"
	"github.com/dealroom/backend/internal/repositories/memstore"
	"github.com/dealroom/backend/internal/services"
	"go.uber.org/zap/zaptest"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// stepClock advances one second on every read so events get distinct times.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock { return &stepClock{t: baseTime} }

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []services.Mail
	fail map[string]error
}

func (m *recordingMailer) Send(_ context.Context, mail services.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[mail.To]; err != nil {
		return err
	}
	m.sent = append(m.sent, mail)
	return nil
}

func (m *recordingMailer) To(addr string) []services.Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []services.Mail
	for _, s := range m.sent {
		if s.To == addr {
			out = append(out, s)
		}
	}
	return out
}

var tokenRe = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

// lastToken extracts the access token from the newest link mailed to addr.
func (m *recordingMailer) lastToken(t *testing.T, addr string) string {
	t.Helper()
	mails := m.To(addr)
	for i := len(mails) - 1; i >= 0; i-- {
		if match := tokenRe.FindStringSubmatch(mails[i].Text); match != nil {
			return match[1]
		}
	}
	t.Fatalf("no access link mailed to %s", addr)
	return ""
}

type env struct {
	cfg           *config.Config
	deals         *memstore.Deals
	messages      *memstore.Messages
	notifications *memstore.Notifications
	prefs         *memstore.Preferences
	audit         *memstore.AuditLog
	bus           *events.LocalBus
	mailer        *recordingMailer
	clock         *stepClock

	dispatcher *services.Dispatcher
	tokens     *services.TokenService
	deal       *services.DealService
	timeline   *services.TimelineService
	notifySvc  *services.NotificationService
	admin      *services.AdminService
}

func testConfig() *config.Config {
	return &config.Config{
		TokenTTL:          168 * time.Hour,
		RotationLimit:     3,
		RotationWindow:    time.Hour,
		PublicBaseURL:     "http://localhost:3000",
		AdminEmails:       []string{"admin@x.com"},
		JWTSecret:         "test-secret",
		AdminSessionTTL:   time.Hour,
		NotifyMaxAttempts: 3,
	}
}

func newEnv(t *testing.T, opts ...func(*env)) *env {
	t.Helper()
	e := &env{
		cfg:           testConfig(),
		deals:         memstore.NewDeals(),
		messages:      memstore.NewMessages(),
		notifications: memstore.NewNotifications(),
		prefs:         memstore.NewPreferences(),
		audit:         memstore.NewAuditLog(),
		bus:           events.NewLocalBus(),
		mailer:        &recordingMailer{fail: map[string]error{}},
		clock:         newStepClock(),
	}
	for _, o := range opts {
		o(e)
	}
	return e.wire(t, e.deals, e.mailer)
}

func (e *env) wire(t *testing.T, deals services.DealStore, mailer services.Mailer) *env {
	log := zaptest.NewLogger(t)
	e.dispatcher = services.NewDispatcher(e.notifications, e.prefs, mailer, mailrender.NewRenderer(), e.bus, e.cfg, log)
	e.tokens = services.NewTokenService(e.deals, e.audit, ratelimit.NewMemoryLimiter(), e.dispatcher, e.cfg, log).WithClock(e.clock.Now)
	e.deal = services.NewDealService(deals, e.messages, e.tokens, e.dispatcher, e.cfg, log).WithClock(e.clock.Now)
	e.timeline = services.NewTimelineService(deals, e.messages)
	e.notifySvc = services.NewNotificationService(e.notifications, e.prefs, log)
	e.admin = services.NewAdminService(e.audit, e.cfg, log)
	t.Cleanup(e.dispatcher.Wait)
	return e
}
