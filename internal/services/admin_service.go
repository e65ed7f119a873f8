package services

import (
	"context"
	"strings"
	"time"

	"github.com/dealroom/backend/internal/auth"
	"github.com/dealroom/backend/internal/config"
	"github.com/dealroom/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AdminService struct {
	audit AuditLogStore
	cfg   *config.Config
	log   *zap.Logger
}

func NewAdminService(audit AuditLogStore, cfg *config.Config, log *zap.Logger) *AdminService {
	return &AdminService{audit: audit, cfg: cfg, log: log}
}

// Login checks the admin allow-list and the shared bcrypt password, then
// issues a signed session.
func (s *AdminService) Login(_ context.Context, email, password, source string) (string, models.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !s.cfg.IsAdmin(email) || !auth.VerifyPassword(s.cfg.AdminPasswordHash, password) {
		s.log.Warn("admin login rejected", zap.String("source", source))
		return "", models.Session{}, models.ErrForbidden
	}

	token, sess, err := auth.IssueSession(s.cfg.JWTSecret, email, s.cfg.AdminSessionTTL, time.Now())
	if err != nil {
		return "", models.Session{}, err
	}
	s.log.Info("admin logged in", zap.String("subject", email), zap.String("source", source))
	return token, sess, nil
}

// Authenticate verifies a session token and that its subject is still an admin.
func (s *AdminService) Authenticate(token string) (models.Session, error) {
	sess, err := auth.ParseSession(s.cfg.JWTSecret, token)
	if err != nil {
		return models.Session{}, models.ErrForbidden
	}
	if sess.IsExpired(time.Now()) || !s.cfg.IsAdmin(sess.Subject) {
		return models.Session{}, models.ErrForbidden
	}
	return sess, nil
}

// SecurityLog lists token issuance and rotation records for a deal, newest first.
func (s *AdminService) SecurityLog(ctx context.Context, dealID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	logs, err := s.audit.ListByDeal(ctx, dealID, limit, offset)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return logs, nil
}
