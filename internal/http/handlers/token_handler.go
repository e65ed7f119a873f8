package handlers

import (
	"github.com/dealroom/backend/internal/http/dto"
	"github.com/dealroom/backend/internal/models"
	"github.com/dealroom/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type TokenHandler struct {
	tokenService *services.TokenService
	log          *zap.Logger
}

func NewTokenHandler(tokenService *services.TokenService, log *zap.Logger) *TokenHandler {
	return &TokenHandler{tokenService: tokenService, log: log}
}

// RotateToken mails a fresh link to the address on record. The response never
// contains the token.
func (h *TokenHandler) RotateToken(c *fiber.Ctx) error {
	dealID, err := parseDealID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid deal id"})
	}

	var req dto.RotateTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return respondError(c, h.log, err)
	}

	if err := h.tokenService.RotateToken(c.UserContext(), dealID, role, req.Email, c.IP()); err != nil {
		return respondError(c, h.log, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{
		"message": "a new link has been sent to the email on record",
	}})
}
