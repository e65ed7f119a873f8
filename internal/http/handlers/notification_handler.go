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

type NotificationHandler struct {
	notificationService *services.NotificationService
	log                 *zap.Logger
}

func NewNotificationHandler(notificationService *services.NotificationService, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService, log: log}
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	list, err := h.notificationService.List(c.UserContext(), middleware.GetDeal(c).ID, middleware.GetActor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if list == nil {
		list = []models.Notification{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: list})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("notificationId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid notification id"})
	}
	if err := h.notificationService.MarkRead(c.UserContext(), middleware.GetDeal(c).ID, id, middleware.GetActor(c)); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *NotificationHandler) GetPreferences(c *fiber.Ctx) error {
	prefs, err := h.notificationService.Preferences(c.UserContext(), middleware.GetActor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: prefs})
}

func (h *NotificationHandler) SetPreference(c *fiber.Ctx) error {
	var req dto.SetPreferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	if req.Enabled == nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "enabled is required"})
	}
	eventType, err := models.ParseEventType(req.EventType)
	if err != nil {
		return respondError(c, h.log, err)
	}

	actor := middleware.GetActor(c)
	if err := h.notificationService.SetPreference(c.UserContext(), actor, eventType, *req.Enabled); err != nil {
		return respondError(c, h.log, err)
	}
	return h.GetPreferences(c)
}
