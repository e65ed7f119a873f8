package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dealroom/backend/internal/config"
	"github.com/dealroom/backend/internal/models"
	"github.com/dealroom/backend/internal/rbac"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxTitleLength = 200

type DealService struct {
	deals      DealStore
	messages   MessageStore
	tokens     *TokenService
	dispatcher *Dispatcher
	cfg        *config.Config
	log        *zap.Logger
	now        func() time.Time
}

func NewDealService(
	deals DealStore,
	messages MessageStore,
	tokens *TokenService,
	dispatcher *Dispatcher,
	cfg *config.Config,
	log *zap.Logger,
) *DealService {
	return &DealService{
		deals:      deals,
		messages:   messages,
		tokens:     tokens,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

func (s *DealService) WithClock(now func() time.Time) *DealService {
	s.now = now
	return s
}

type CreateDealInput struct {
	Title       string
	Description string
	Amount      decimal.Decimal
	BuyerEmail  string
	SellerEmail string
	// CreatorRole, when set, gets its own link back in the response.
	CreatorRole models.Role
	Source      string
}

type CreatedDeal struct {
	Deal           *models.Deal
	CreatorRole    models.Role
	CreatorToken   string
	TokenExpiresAt time.Time
}

// CreateDeal stores a pending deal, issues both tokens and mails each party
// its own link.
func (s *DealService) CreateDeal(ctx context.Context, in CreateDealInput) (*CreatedDeal, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", models.ErrValidation)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, fmt.Errorf("%w: title exceeds %d characters", models.ErrValidation, maxTitleLength)
	}
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", models.ErrValidation)
	}
	buyer, err := normalizeEmail("buyer_email", in.BuyerEmail)
	if err != nil {
		return nil, err
	}
	seller, err := normalizeEmail("seller_email", in.SellerEmail)
	if err != nil {
		return nil, err
	}
	if buyer == seller {
		return nil, fmt.Errorf("%w: buyer and seller must differ", models.ErrValidation)
	}
	if in.CreatorRole != "" && !in.CreatorRole.IsParty() {
		return nil, fmt.Errorf("%w: creator_role must be buyer or seller", models.ErrValidation)
	}

	now := s.now().UTC()
	deal := &models.Deal{
		ID:          uuid.New(),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		BuyerEmail:  buyer,
		SellerEmail: seller,
		Status:      models.DealStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	issued, err := s.tokens.IssueInitialTokens(deal)
	if err != nil {
		return nil, err
	}
	if err := s.deals.Create(ctx, deal); err != nil {
		return nil, fmt.Errorf("create deal: %w", err)
	}

	s.tokens.RecordIssuance(ctx, deal, deal.EmailFor(in.CreatorRole), in.Source)
	s.log.Info("deal created",
		zap.String("deal_id", deal.ID.String()),
		zap.String("amount", deal.Amount.String()),
	)

	for _, role := range []models.Role{models.RoleBuyer, models.RoleSeller} {
		token, exp := issued.TokenFor(role)
		s.dispatcher.SendAccessLink(ctx, deal, role, token, exp)
	}

	out := &CreatedDeal{Deal: deal, CreatorRole: in.CreatorRole}
	if in.CreatorRole != "" {
		out.CreatorToken, out.TokenExpiresAt = issued.TokenFor(in.CreatorRole)
	}
	return out, nil
}

func normalizeEmail(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", fmt.Errorf("%w: %s is not a valid email address", models.ErrValidation, field)
	}
	return strings.ToLower(addr.Address), nil
}

// ResolveActor turns request credentials into an actor. A live admin session
// wins over any token.
func (s *DealService) ResolveActor(ctx context.Context, dealID uuid.UUID, token string, session *models.Session) (*models.Deal, models.Actor, error) {
	if session != nil {
		if session.IsExpired(s.now()) {
			return nil, models.Actor{}, models.ErrForbidden
		}
		deal, err := s.deals.GetByID(ctx, dealID)
		if err != nil {
			return nil, models.Actor{}, err
		}
		return deal, models.AdminActor(*session), nil
	}
	return s.tokens.ResolveActor(ctx, dealID, token)
}

func (s *DealService) GetDeal(ctx context.Context, dealID uuid.UUID, actor models.Actor) (*DealView, error) {
	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	return NewDealView(deal, actor.Role), nil
}

type TransitionRequest struct {
	Action models.Action
	// ClaimedRole is the role the caller believes it holds. Empty means "whatever the token grants".
	ClaimedRole models.Role
	Reason      string
}

// Transition applies one lifecycle action as actor. The write is a
// compare-and-swap on the status read here; losing the race is models.ErrConflict
// and the caller must re-read before deciding again.
func (s *DealService) Transition(ctx context.Context, dealID uuid.UUID, actor models.Actor, req TransitionRequest) (*models.Deal, error) {
	rule, ok := models.DealTransitions[req.Action]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", models.ErrValidation, req.Action)
	}
	if req.ClaimedRole != "" && req.ClaimedRole != actor.Role {
		return nil, fmt.Errorf("%w: credentials grant %s, not %s", models.ErrForbidden, actor.Role, req.ClaimedRole)
	}
	if actor.Role == models.RoleAdmin && (actor.Session == nil || actor.Session.IsExpired(s.now())) {
		return nil, fmt.Errorf("%w: admin session required", models.ErrForbidden)
	}
	if !req.Action.AllowsActor(actor.Role) {
		return nil, fmt.Errorf("%w: %s cannot %s", models.ErrForbidden, actor.Role, req.Action)
	}
	reason := strings.TrimSpace(req.Reason)
	if rule.RequiresInput && reason == "" {
		return nil, fmt.Errorf("%w: %s requires a reason", models.ErrValidation, req.Action)
	}

	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}

	next, err := models.NextStatus(deal.Status, req.Action, actor.Role)
	if err != nil {
		s.log.Info("deal transition rejected",
			zap.String("deal_id", dealID.String()),
			zap.String("action", string(req.Action)),
			zap.String("status", string(deal.Status)),
		)
		return nil, err
	}

	patch := models.TransitionPatch{From: deal.Status, To: next, At: s.now().UTC()}
	actorEmail := actor.Email
	switch req.Action {
	case models.ActionFileDispute:
		patch.DisputeReason = &reason
		patch.DisputedBy = &actorEmail
	case models.ActionResolve:
		patch.ResolutionNote = &reason
		patch.ResolvedBy = &actorEmail
	case models.ActionMarkPaid, models.ActionMarkComplete:
	}

	updated, err := s.deals.ApplyTransition(ctx, dealID, patch)
	if err != nil {
		if errors.Is(err, models.ErrConflict) || errors.Is(err, models.ErrNotFound) {
			s.log.Info("deal transition rejected",
				zap.String("deal_id", dealID.String()),
				zap.String("action", string(req.Action)),
				zap.Error(err),
			)
			return nil, err
		}
		s.log.Error("deal transition failed",
			zap.String("deal_id", dealID.String()),
			zap.String("action", string(req.Action)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("apply transition: %w", err)
	}

	s.log.Info("deal transitioned",
		zap.String("deal_id", dealID.String()),
		zap.String("from", string(patch.From)),
		zap.String("to", string(patch.To)),
		zap.String("role", string(actor.Role)),
	)

	s.dispatcher.Dispatch(ctx, DealEvent{
		Deal:      updated,
		EventType: models.EventTypeForAction(req.Action),
		Actor:     actor,
	})
	return updated, nil
}

func (s *DealService) PostMessage(ctx context.Context, dealID uuid.UUID, actor models.Actor, text string) (*models.Message, error) {
	if !rbac.HasPermission(actor.Role, rbac.PermPostMessage) {
		return nil, models.ErrForbidden
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message is empty", models.ErrValidation)
	}
	if utf8.RuneCountInString(text) > models.MaxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", models.ErrValidation, models.MaxMessageLength)
	}

	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	msg := &models.Message{
		ID:          id,
		DealID:      dealID,
		SenderEmail: actor.Email,
		Message:     text,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	s.dispatcher.Dispatch(ctx, DealEvent{
		Deal:      deal,
		EventType: models.EventTypeMessage,
		Actor:     actor,
		Message:   msg,
	})
	return msg, nil
}

func (s *DealService) ListMessages(ctx context.Context, dealID uuid.UUID, actor models.Actor) ([]models.Message, error) {
	if !rbac.HasPermission(actor.Role, rbac.PermReadMessages) {
		return nil, models.ErrForbidden
	}
	if _, err := s.deals.GetByID(ctx, dealID); err != nil {
		return nil, err
	}
	return s.messages.ListByDeal(ctx, dealID)
}

func (s *DealService) ListDeals(ctx context.Context, actor models.Actor, f models.DealFilter) ([]models.Deal, error) {
	if !rbac.HasPermission(actor.Role, rbac.PermListDeals) {
		return nil, models.ErrForbidden
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrValidation, *f.Status)
	}
	return s.deals.List(ctx, f)
}
