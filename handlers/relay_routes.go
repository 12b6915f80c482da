// handlers/relay_routes.go
package handlers

import (
	"context"

	"relay-hub/middleware"
	"relay-hub/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SetupRelayRoutes mounts the UI socket, the gateway webhook and the health probe.
// ctx bounds the work started by handlers; it is the process lifetime.
func SetupRelayRoutes(ctx context.Context, app *fiber.App, relay *services.RelayController, gateway services.ExternalChannel, gatewayToken string, logger *zap.Logger) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":       "ok",
			"gateway_open": gateway != nil && gateway.IsOpen(),
		})
	})

	// 🔐 Gateway push: same envelopes as the socket link, over HTTP
	app.Post("/gateway/inbound", middleware.GatewayAuthMiddleware(gatewayToken, logger), func(c *fiber.Ctx) error {
		// fasthttp reuses the body buffer after the handler returns
		body := append([]byte(nil), c.Body()...)
		go relay.HandleGatewayPayload(ctx, body)
		return c.SendStatus(fiber.StatusAccepted)
	})

	app.Use("/ws", middleware.WebSocketUpgradeMiddleware(logger))
	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		serveUIConn(ctx, relay, conn, logger)
	}))
}

// serveUIConn pumps frames from one UI socket into the relay, in order,
// until the client goes away.
func serveUIConn(ctx context.Context, relay *services.RelayController, conn *websocket.Conn, logger *zap.Logger) {
	session := relay.Open(conn)
	defer relay.Close(session)

	remote, _ := conn.Locals(middleware.RemoteAddrLocal).(string)
	logger.Info("👤 [WS] client connected", zap.String("session", session.ID), zap.String("ip", remote))

	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			logger.Info("[WS] client disconnected", zap.String("session", session.ID), zap.Error(err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		relay.HandleUIMessage(ctx, session, raw)
	}
}
