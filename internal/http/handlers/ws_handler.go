package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dealroom/backend/internal/events"
	"github.com/dealroom/backend/internal/middleware"
	"github.com/dealroom/backend/internal/models"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const ctxWSDealID = "ws_deal_id"

const (
	wsSendBuffer   = 16
	wsWriteTimeout = 10 * time.Second
)

type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// wsClient owns the only goroutine that writes to its connection.
type wsClient struct {
	conn wsConn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSClient(conn wsConn) *wsClient {
	c := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *wsClient) writeLoop() {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// enqueue reports false when the client is closed or too far behind.
func (c *wsClient) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// WSHub pushes deal events to every socket watching that deal.
type WSHub struct {
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[uuid.UUID][]*wsClient
}

func NewWSHub(subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		subscriber:  subscriber,
		log:         log,
		connections: make(map[uuid.UUID][]*wsClient),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.DealStream, h.broadcast)
}

func (h *WSHub) broadcast(event events.Event) {
	dealID, err := uuid.Parse(event.DealID)
	if err != nil {
		h.log.Warn("deal event without deal id", zap.String("type", event.Type))
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := append([]*wsClient(nil), h.connections[dealID]...)
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.enqueue(data) {
			h.log.Debug("dropping slow websocket client", zap.String("deal_id", event.DealID))
			h.unregister(dealID, c)
			c.close()
		}
	}
}

func (h *WSHub) register(dealID uuid.UUID, conn wsConn) *wsClient {
	client := newWSClient(conn)
	h.mu.Lock()
	h.connections[dealID] = append(h.connections[dealID], client)
	h.mu.Unlock()
	return client
}

func (h *WSHub) unregister(dealID uuid.UUID, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.connections[dealID]
	for i, c := range clients {
		if c == client {
			h.connections[dealID] = append(clients[:i:i], clients[i+1:]...)
			break
		}
	}
	if len(h.connections[dealID]) == 0 {
		delete(h.connections, dealID)
	}
}

// Watchers returns how many sockets follow a deal.
func (h *WSHub) Watchers(dealID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[dealID])
}

// WSUpgradeMiddleware checks for a websocket upgrade and that the caller may
// watch the requested deal. Observers may watch; expired links may not.
func WSUpgradeMiddleware(resolver middleware.ActorResolver, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		dealID, err := uuid.Parse(c.Query("deal_id"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid deal_id")
		}
		_, _, err = resolver.ResolveActor(c.UserContext(), dealID, middleware.DealToken(c), nil)
		switch {
		case err == nil:
		case errors.Is(err, models.ErrNotFound):
			return fiber.NewError(fiber.StatusNotFound, "deal not found")
		case errors.Is(err, models.ErrAccessExpired):
			return fiber.NewError(fiber.StatusGone, "access link expired")
		default:
			log.Error("websocket access check failed", zap.Error(err))
			return fiber.ErrInternalServerError
		}

		c.Locals(ctxWSDealID, dealID)
		return c.Next()
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	dealID, ok := conn.Locals(ctxWSDealID).(uuid.UUID)
	if !ok {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing deal"}`))
		conn.Close()
		return
	}

	client := h.register(dealID, conn)
	defer func() {
		h.unregister(dealID, client)
		client.close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
