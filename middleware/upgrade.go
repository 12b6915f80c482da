// middleware/upgrade.go
package middleware

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RemoteAddrLocal is the fiber local carrying the client IP into the socket handler.
const RemoteAddrLocal = "remote_addr"

// WebSocketUpgradeMiddleware only lets websocket upgrade requests reach the
// UI socket route.
func WebSocketUpgradeMiddleware(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			logger.Debug("[WS] rejected non-upgrade request", zap.String("path", c.Path()), zap.String("ip", c.IP()))
			return fiber.ErrUpgradeRequired
		}
		c.Locals(RemoteAddrLocal, c.IP())
		return c.Next()
	}
}
