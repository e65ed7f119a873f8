package handlers

import (
	"github.com/dealroom/backend/internal/http/dto"
	"github.com/dealroom/backend/internal/middleware"
	"github.com/dealroom/backend/internal/models"
	"github.com/dealroom/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DealHandler struct {
	dealService     *services.DealService
	timelineService *services.TimelineService
	dispatcher      *services.Dispatcher
	log             *zap.Logger
}

func NewDealHandler(
	dealService *services.DealService,
	timelineService *services.TimelineService,
	dispatcher *services.Dispatcher,
	log *zap.Logger,
) *DealHandler {
	return &DealHandler{
		dealService:     dealService,
		timelineService: timelineService,
		dispatcher:      dispatcher,
		log:             log,
	}
}

func (h *DealHandler) CreateDeal(c *fiber.Ctx) error {
	var req dto.CreateDealRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	var creator models.Role
	if req.CreatorRole != "" {
		r, err := models.ParseRole(req.CreatorRole)
		if err != nil {
			return respondError(c, h.log, err)
		}
		creator = r
	}

	created, err := h.dealService.CreateDeal(c.UserContext(), services.CreateDealInput{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		BuyerEmail:  req.BuyerEmail,
		SellerEmail: req.SellerEmail,
		CreatorRole: creator,
		Source:      c.IP(),
	})
	if err != nil {
		return respondError(c, h.log, err)
	}

	resp := dto.CreateDealResponse{Role: string(models.RoleObserver)}
	viewRole := models.RoleObserver
	if created.CreatorToken != "" {
		viewRole = created.CreatorRole
		resp.Role = string(created.CreatorRole)
		resp.AccessToken = created.CreatorToken
		resp.AccessURL = h.dispatcher.DealURL(created.Deal.ID, created.CreatorToken)
		resp.TokenExpiresAt = &created.TokenExpiresAt
	}
	resp.Deal = services.NewDealView(created.Deal, viewRole)

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: resp})
}

func (h *DealHandler) GetDeal(c *fiber.Ctx) error {
	actor := middleware.GetActor(c)
	return c.JSON(dto.SuccessResponse{OK: true, Data: services.NewDealView(middleware.GetDeal(c), actor.Role)})
}

// GetAccess tells the client which role its credentials resolve to.
func (h *DealHandler) GetAccess(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.AccessResponse{
		DealID: middleware.GetDeal(c).ID.String(),
		Role:   string(middleware.GetActor(c).Role),
	}})
}

func (h *DealHandler) Transition(c *fiber.Ctx) error {
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	action, err := models.ParseAction(req.Action)
	if err != nil {
		return respondError(c, h.log, err)
	}
	var claimed models.Role
	if req.Role != "" {
		if claimed, err = models.ParseRole(req.Role); err != nil {
			return respondError(c, h.log, err)
		}
	}

	actor := middleware.GetActor(c)
	deal, err := h.dealService.Transition(c.UserContext(), middleware.GetDeal(c).ID, actor, services.TransitionRequest{
		Action:      action,
		ClaimedRole: claimed,
		Reason:      req.Reason,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: services.NewDealView(deal, actor.Role)})
}

func (h *DealHandler) GetAuditTrail(c *fiber.Ctx) error {
	dealID := middleware.GetDeal(c).ID
	seq, err := h.timelineService.ForActor(c.UserContext(), dealID, middleware.GetActor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.AuditTrailResponse{
		DealID: dealID.String(),
		Events: services.Collect(seq),
	}})
}

func (h *DealHandler) ListMessages(c *fiber.Ctx) error {
	msgs, err := h.dealService.ListMessages(c.UserContext(), middleware.GetDeal(c).ID, middleware.GetActor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: msgs})
}

func (h *DealHandler) PostMessage(c *fiber.Ctx) error {
	var req dto.PostMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	msg, err := h.dealService.PostMessage(c.UserContext(), middleware.GetDeal(c).ID, middleware.GetActor(c), req.Message)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: msg})
}

// parseDealID is for routes that run without DealAccessMiddleware.
func parseDealID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}
