package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/dealroom/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	CtxSession = "admin_session"
	CtxActor   = "deal_actor"
	CtxDeal    = "deal"

	HeaderDealToken = "X-Deal-Token"
)

type SessionVerifier interface {
	Authenticate(token string) (models.Session, error)
}

type ActorResolver interface {
	ResolveActor(ctx context.Context, dealID uuid.UUID, token string, session *models.Session) (*models.Deal, models.Actor, error)
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenStr == authHeader {
		return "", true
	}
	return tokenStr, true
}

// AdminMiddleware requires a valid admin session in the Authorization header.
func AdminMiddleware(v SessionVerifier, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr, present := bearerToken(c)
		if !present {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		sess, err := v.Authenticate(tokenStr)
		if err != nil {
			log.Debug("admin session rejected", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired session"})
		}

		c.Locals(CtxSession, &sess)
		return c.Next()
	}
}

// OptionalAdminMiddleware attaches an admin session when one is presented.
// A malformed or expired session is rejected rather than downgraded.
func OptionalAdminMiddleware(v SessionVerifier, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr, present := bearerToken(c)
		if !present {
			return c.Next()
		}
		sess, err := v.Authenticate(tokenStr)
		if err != nil {
			log.Debug("admin session rejected", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired session"})
		}
		c.Locals(CtxSession, &sess)
		return c.Next()
	}
}

// DealAccessMiddleware resolves who is calling on /deals/:id routes from the
// admin session or the deal token.
func DealAccessMiddleware(r ActorResolver, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dealID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid deal id"})
		}

		deal, actor, err := r.ResolveActor(c.UserContext(), dealID, DealToken(c), GetSession(c))
		switch {
		case err == nil:
		case errors.Is(err, models.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "deal not found"})
		case errors.Is(err, models.ErrAccessExpired):
			return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "access link expired", "renewable": true})
		case errors.Is(err, models.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
		default:
			log.Error("failed to resolve deal access", zap.String("deal_id", dealID.String()), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}

		c.Locals(CtxDeal, deal)
		c.Locals(CtxActor, actor)
		return c.Next()
	}
}

// DealToken reads the deal token from the header, falling back to the query string.
func DealToken(c *fiber.Ctx) string {
	if t := strings.TrimSpace(c.Get(HeaderDealToken)); t != "" {
		return t
	}
	return strings.TrimSpace(c.Query("token"))
}

func GetSession(c *fiber.Ctx) *models.Session {
	s, _ := c.Locals(CtxSession).(*models.Session)
	return s
}

// GetActor defaults to an observer when no actor was resolved.
func GetActor(c *fiber.Ctx) models.Actor {
	a, ok := c.Locals(CtxActor).(models.Actor)
	if !ok {
		return models.ObserverActor()
	}
	return a
}

func GetDeal(c *fiber.Ctx) *models.Deal {
	d, _ := c.Locals(CtxDeal).(*models.Deal)
	return d
}
