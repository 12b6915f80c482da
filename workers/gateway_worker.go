// workers/gateway_worker.go
package workers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"relay-hub/models"
	"relay-hub/services"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DefaultReconnectDelay is the fixed wait between gateway reconnect attempts.
const DefaultReconnectDelay = 5 * time.Second

const gatewayWriteTimeout = 10 * time.Second

// InboundHandler receives every raw frame read from the gateway. Each frame
// is handled on its own goroutine.
type InboundHandler func(ctx context.Context, raw []byte)

// GatewayLink owns the single duplex connection to the messaging gateway.
// Run keeps it alive with a fixed-delay retry; nothing is queued while it is down.
type GatewayLink struct {
	url            string
	token          string
	reconnectDelay time.Duration
	clock          clockwork.Clock
	dialer         *websocket.Dialer
	log            *zap.Logger

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn
}

func NewGatewayLink(url, token string, reconnectDelay time.Duration, clock clockwork.Clock, logger *zap.Logger) *GatewayLink {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &GatewayLink{
		url:            url,
		token:          token,
		reconnectDelay: reconnectDelay,
		clock:          clock,
		dialer:         websocket.DefaultDialer,
		log:            logger,
	}
}

// IsOpen reports whether a connection is currently established.
func (g *GatewayLink) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conn != nil
}

// Send writes a {chatId, text} envelope. It fails with
// ErrUpstreamUnavailable when the link is down.
func (g *GatewayLink) Send(ctx context.Context, chatID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return services.ErrUpstreamUnavailable
	}

	deadline := time.Now().Add(gatewayWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = g.conn.SetWriteDeadline(deadline)
	return g.conn.WriteJSON(models.OutboundEnvelope{ChatID: chatID, Text: text})
}

// Run dials, reads until the connection drops, waits reconnectDelay and
// repeats until ctx is cancelled.
func (g *GatewayLink) Run(ctx context.Context, handle InboundHandler) {
	g.log.Info("🔁 [GATEWAY] starting gateway link", zap.String("url", g.url))
	for {
		if err := g.session(ctx, handle); err != nil && ctx.Err() == nil {
			g.log.Warn("[GATEWAY] connection lost", zap.Error(err), zap.Duration("retry_in", g.reconnectDelay))
		}

		select {
		case <-ctx.Done():
			g.log.Info("⏹️ [GATEWAY] gateway link stopped")
			return
		case <-g.clock.After(g.reconnectDelay):
		}
	}
}

// session runs one connection lifetime.
func (g *GatewayLink) session(ctx context.Context, handle InboundHandler) error {
	header := http.Header{}
	if g.token != "" {
		header.Set("Authorization", "Bearer "+g.token)
	}
	conn, _, err := g.dialer.DialContext(ctx, g.url, header)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()
	g.log.Info("✅ [GATEWAY] connected", zap.String("url", g.url))

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		g.mu.Lock()
		g.conn = nil
		g.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		go handle(ctx, raw)
	}
}
