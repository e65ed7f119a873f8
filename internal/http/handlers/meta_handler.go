package handlers

import (
	"github.com/dealroom/backend/internal/http/dto"
	"github.com/dealroom/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

type MetaHandler struct{}

func NewMetaHandler() *MetaHandler {
	return &MetaHandler{}
}

type MetaTransition struct {
	Action        models.Action       `json:"action"`
	From          []models.DealStatus `json:"from"`
	Actors        []models.Role       `json:"actors"`
	To            models.DealStatus   `json:"to"`
	RequiresInput bool                `json:"requires_input"`
}

// actionOrder keeps the response stable; DealTransitions is a map.
var actionOrder = []models.Action{
	models.ActionMarkPaid,
	models.ActionMarkComplete,
	models.ActionFileDispute,
	models.ActionResolve,
}

// GetLifecycle returns the deal status table so clients can render only the
// actions a role may take.
func (h *MetaHandler) GetLifecycle(c *fiber.Ctx) error {
	transitions := make([]MetaTransition, 0, len(actionOrder))
	for _, a := range actionOrder {
		rule := models.DealTransitions[a]
		transitions = append(transitions, MetaTransition{
			Action:        a,
			From:          rule.From,
			Actors:        rule.Actors,
			To:            rule.To,
			RequiresInput: rule.RequiresInput,
		})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{
		"statuses":    models.AllDealStatuses,
		"transitions": transitions,
	}})
}

func (h *MetaHandler) GetEventTypes(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: models.AllEventTypes})
}
