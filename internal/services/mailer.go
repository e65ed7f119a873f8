package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

//go:generate mockgen -destination=mocks/mock_mailer.go -package=mocks github.com/dealroom/backend/internal/services Mailer

type Mail struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer is the outbound mail transport. Send reports failure but never retries.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// HTTPMailer posts mail to a relay service's internal API.
type HTTPMailer struct {
	baseURL    string
	from       string
	httpClient *http.Client
	log        *zap.Logger
}

func NewHTTPMailer(baseURL, from string, log *zap.Logger) *HTTPMailer {
	return &HTTPMailer{
		baseURL: strings.TrimRight(baseURL, "/"),
		from:    from,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

type relayRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

func (c *HTTPMailer) Send(ctx context.Context, m Mail) error {
	body, err := json.Marshal(relayRequest{
		From:    c.from,
		To:      m.To,
		Subject: m.Subject,
		HTML:    m.HTML,
		Text:    m.Text,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/internal/mail/send", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail relay unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail relay returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// LogMailer stands in for a relay in development. It logs the envelope only;
// bodies may carry access links.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, mail Mail) error {
	m.log.Info("mail not sent, no relay configured",
		zap.String("to", mail.To),
		zap.String("subject", mail.Subject),
	)
	return nil
}
