package handlers

import (
	"strconv"
	"strings"

	"github.com/dealroom/backend/internal/http/dto"
	"github.com/dealroom/backend/internal/middleware"
	"github.com/dealroom/backend/internal/models"
	"github.com/dealroom/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AdminHandler struct {
	adminService    *services.AdminService
	dealService     *services.DealService
	timelineService *services.TimelineService
	log             *zap.Logger
}

func NewAdminHandler(
	adminService *services.AdminService,
	dealService *services.DealService,
	timelineService *services.TimelineService,
	log *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		adminService:    adminService,
		dealService:     dealService,
		timelineService: timelineService,
		log:             log,
	}
}

func (h *AdminHandler) Login(c *fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "email and password are required"})
	}

	token, sess, err := h.adminService.Login(c.UserContext(), req.Email, req.Password, c.IP())
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid credentials"})
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.AdminLoginResponse{
		Token:     token,
		Subject:   sess.Subject,
		ExpiresAt: sess.ExpiresAt,
	}})
}

// actor is only valid behind AdminMiddleware.
func (h *AdminHandler) actor(c *fiber.Ctx) models.Actor {
	return models.AdminActor(*middleware.GetSession(c))
}

func (h *AdminHandler) ListDeals(c *fiber.Ctx) error {
	filter := models.DealFilter{
		Limit:  20,
		Offset: 0,
	}

	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		status := models.DealStatus(v)
		filter.Status = &status
	}
	if v := c.Query("email"); v != "" {
		email := strings.ToLower(strings.TrimSpace(v))
		filter.Email = &email
	}

	deals, err := h.dealService.ListDeals(c.UserContext(), h.actor(c), filter)
	if err != nil {
		return respondError(c, h.log, err)
	}

	views := make([]*services.DealView, 0, len(deals))
	for i := range deals {
		views = append(views, services.NewDealView(&deals[i], models.RoleAdmin))
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: views})
}

func (h *AdminHandler) GetDeal(c *fiber.Ctx) error {
	dealID, err := parseDealID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}
	view, err := h.dealService.GetDeal(c.UserContext(), dealID, h.actor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: view})
}

func (h *AdminHandler) ResolveDispute(c *fiber.Ctx) error {
	dealID, err := parseDealID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	var req dto.ResolveDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}

	deal, err := h.dealService.Transition(c.UserContext(), dealID, h.actor(c), services.TransitionRequest{
		Action: models.ActionResolve,
		Reason: req.Note,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: services.NewDealView(deal, models.RoleAdmin)})
}

func (h *AdminHandler) GetAuditTrail(c *fiber.Ctx) error {
	dealID, err := parseDealID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}
	seq, err := h.timelineService.ForActor(c.UserContext(), dealID, h.actor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.AuditTrailResponse{
		DealID: dealID.String(),
		Events: services.Collect(seq),
	}})
}

func (h *AdminHandler) GetSecurityLog(c *fiber.Ctx) error {
	dealID, err := parseDealID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	logs, err := h.adminService.SecurityLog(c.UserContext(), dealID, limit, max(offset, 0))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: logs})
}
