package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dealroom/backend/internal/config"
	"github.com/dealroom/backend/internal/models"
	"github.com/dealroom/backend/internal/ratelimit"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// tokenBytes of randomness gives 256 bits per access token.
const tokenBytes = 32

// IssuedTokens holds plaintext tokens. They are never persisted.
type IssuedTokens struct {
	BuyerToken      string
	SellerToken     string
	BuyerExpiresAt  time.Time
	SellerExpiresAt time.Time
}

// TokenFor returns the plaintext token and expiry for a party role.
func (t *IssuedTokens) TokenFor(role models.Role) (string, time.Time) {
	switch role {
	case models.RoleBuyer:
		return t.BuyerToken, t.BuyerExpiresAt
	case models.RoleSeller:
		return t.SellerToken, t.SellerExpiresAt
	case models.RoleObserver, models.RoleAdmin:
		return "", time.Time{}
	}
	return "", time.Time{}
}

// TokenService stands in for authentication: it issues, resolves and rotates
// the per-role secrets of a deal.
type TokenService struct {
	deals      DealStore
	audit      AuditLogStore
	limiter    ratelimit.Limiter
	dispatcher *Dispatcher
	cfg        *config.Config
	log        *zap.Logger
	now        func() time.Time
}

func NewTokenService(
	deals DealStore,
	audit AuditLogStore,
	limiter ratelimit.Limiter,
	dispatcher *Dispatcher,
	cfg *config.Config,
	log *zap.Logger,
) *TokenService {
	return &TokenService{
		deals:      deals,
		audit:      audit,
		limiter:    limiter,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// GenerateToken returns a URL-safe random token with no relation to the deal.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken is the at-rest form of a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IssueInitialTokens fills both token hashes of a deal that has not been stored
// yet and returns the plaintexts.
func (s *TokenService) IssueInitialTokens(deal *models.Deal) (*IssuedTokens, error) {
	if deal.BuyerTokenHash != "" || deal.SellerTokenHash != "" {
		return nil, fmt.Errorf("%w: tokens already issued for deal %s", models.ErrValidation, deal.ID)
	}

	buyer, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	seller, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	issuedAt := deal.CreatedAt
	if issuedAt.IsZero() {
		issuedAt = s.now().UTC()
	}
	expires := issuedAt.Add(s.cfg.TokenTTL)
	deal.BuyerTokenHash = HashToken(buyer)
	deal.SellerTokenHash = HashToken(seller)
	deal.BuyerTokenExpiresAt = expires
	deal.SellerTokenExpiresAt = expires

	return &IssuedTokens{
		BuyerToken:      buyer,
		SellerToken:     seller,
		BuyerExpiresAt:  expires,
		SellerExpiresAt: expires,
	}, nil
}

// RecordIssuance appends the security log entry for a freshly created deal.
func (s *TokenService) RecordIssuance(ctx context.Context, deal *models.Deal, actorEmail, source string) {
	s.logAudit(ctx, models.AuditLog{
		DealID:     deal.ID,
		Action:     models.AuditActionTokensIssued,
		ActorEmail: actorEmail,
		Source:     source,
		CreatedAt:  deal.CreatedAt,
	})
}

// ResolveAccess maps a presented token to the role it grants on the deal.
// A missing or unknown token is an observer; a matching but expired token is
// models.ErrAccessExpired.
func (s *TokenService) ResolveAccess(ctx context.Context, dealID uuid.UUID, token string) (models.Role, error) {
	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return "", err
	}
	return s.resolveRole(deal, token)
}

// ResolveActor is ResolveAccess that also returns the deal it read.
func (s *TokenService) ResolveActor(ctx context.Context, dealID uuid.UUID, token string) (*models.Deal, models.Actor, error) {
	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, models.Actor{}, err
	}
	role, err := s.resolveRole(deal, token)
	if err != nil {
		return nil, models.Actor{}, err
	}
	return deal, models.Actor{Role: role, Email: deal.EmailFor(role)}, nil
}

func (s *TokenService) resolveRole(deal *models.Deal, token string) (models.Role, error) {
	if token == "" {
		return models.RoleObserver, nil
	}
	presented := []byte(HashToken(token))

	// Compare against both hashes unconditionally.
	buyer := subtle.ConstantTimeCompare(presented, []byte(deal.BuyerTokenHash)) == 1
	seller := subtle.ConstantTimeCompare(presented, []byte(deal.SellerTokenHash)) == 1

	now := s.now()
	switch {
	case buyer:
		if !now.Before(deal.BuyerTokenExpiresAt) {
			return "", models.ErrAccessExpired
		}
		return models.RoleBuyer, nil
	case seller:
		if !now.Before(deal.SellerTokenExpiresAt) {
			return "", models.ErrAccessExpired
		}
		return models.RoleSeller, nil
	}
	return models.RoleObserver, nil
}

// RotateToken replaces a party's token and mails the new link to the address
// on record. The requester proves ownership by email, not by the old token.
// Attempts are limited per deal and role, counted before the email check.
func (s *TokenService) RotateToken(ctx context.Context, dealID uuid.UUID, role models.Role, email, source string) error {
	if !role.IsParty() {
		return fmt.Errorf("%w: only buyer or seller links can be rotated", models.ErrValidation)
	}

	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return err
	}

	// Budgets are per requester so wrong-email attempts cannot lock out the owner.
	requester := strings.ToLower(strings.TrimSpace(email))
	key := fmt.Sprintf("rotate:%s:%s:%s", dealID, role, requester)
	decision, err := s.limiter.Allow(ctx, key, s.cfg.RotationLimit, s.cfg.RotationWindow)
	if err != nil {
		return fmt.Errorf("rotation rate limit: %w", err)
	}
	if !decision.Allowed {
		s.log.Info("token rotation throttled",
			zap.String("deal_id", dealID.String()),
			zap.String("role", string(role)),
			zap.String("source", source),
		)
		return &models.ThrottledError{RetryAfter: decision.RetryAfter}
	}

	onRecord := deal.EmailFor(role)
	if !strings.EqualFold(requester, onRecord) {
		s.log.Info("token rotation rejected",
			zap.String("deal_id", dealID.String()),
			zap.String("role", string(role)),
			zap.String("source", source),
		)
		return models.ErrForbidden
	}

	token, err := GenerateToken()
	if err != nil {
		return err
	}
	now := s.now().UTC()
	expires := now.Add(s.cfg.TokenTTL)
	if err := s.deals.RotateToken(ctx, dealID, models.TokenRotation{
		Role:      role,
		TokenHash: HashToken(token),
		ExpiresAt: expires,
	}); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return fmt.Errorf("rotate token: %w", err)
	}

	if prev := deal.TokenExpiryFor(role); prev.After(expires) {
		expires = prev
	}

	s.logAudit(ctx, models.AuditLog{
		DealID:     dealID,
		Action:     models.AuditActionTokenRotated,
		Role:       role,
		ActorEmail: onRecord,
		Source:     source,
		CreatedAt:  now,
	})
	s.log.Info("token rotated",
		zap.String("deal_id", dealID.String()),
		zap.String("role", string(role)),
	)

	s.dispatcher.SendAccessLink(ctx, deal, role, token, expires)
	return nil
}

func (s *TokenService) logAudit(ctx context.Context, entry models.AuditLog) {
	if err := s.audit.Log(ctx, entry); err != nil {
		s.log.Error("failed to write audit log",
			zap.String("deal_id", entry.DealID.String()),
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}
