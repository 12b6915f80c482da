package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

// genai's opencensus dependency starts a package-level worker at init.
var leakOptions = []goleak.Option{
	goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
}

type payload struct {
	Type string `json:"type"`
	N    int    `json:"n"`
}

func TestBroadcastReachesOnlyBoundWallet(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)
	reg := NewSessionRegistry(zap.NewNop())

	a1, a2, b, unbound := &recordingConn{}, &recordingConn{}, &recordingConn{}, &recordingConn{}
	sa1, sa2, sb, su := reg.Register(a1), reg.Register(a2), reg.Register(b), reg.Register(unbound)
	defer func() {
		for _, s := range []*Session{sa1, sa2, sb, su} {
			reg.Unregister(s)
		}
	}()

	reg.Bind(sa1, "w1")
	reg.Bind(sa2, "w1")
	reg.Bind(sb, "w2")

	assert.Equal(t, 2, reg.BroadcastToWallet("w1", payload{Type: "X", N: 1}))
	waitFrames(t, a1, 1)
	waitFrames(t, a2, 1)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, b.count())
	assert.Zero(t, unbound.count())
	assert.Equal(t, "X", a1.messages()[0]["type"])
}

func TestBroadcastToEmptyWallet(t *testing.T) {
	reg := NewSessionRegistry(zap.NewNop())
	s := reg.Register(&recordingConn{})
	defer reg.Unregister(s)

	assert.Zero(t, reg.BroadcastToWallet("", payload{}))
	assert.Zero(t, reg.BroadcastToWallet("nobody", payload{}))
}

func TestBindIsIdempotentAndMoves(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)
	reg := NewSessionRegistry(zap.NewNop())
	conn := &recordingConn{}
	s := reg.Register(conn)

	reg.Bind(s, "w1")
	reg.Bind(s, "w1")
	assert.Equal(t, 1, reg.WalletCount())
	assert.Equal(t, "w1", s.Wallet())

	reg.Bind(s, "w2")
	assert.Equal(t, 1, reg.WalletCount())
	assert.Zero(t, reg.BroadcastToWallet("w1", payload{}))
	assert.Equal(t, 1, reg.BroadcastToWallet("w2", payload{}))

	reg.Unregister(s)
	assert.Zero(t, reg.Count())
	assert.Zero(t, reg.WalletCount())
}

func TestUnregisteredSessionIsSkipped(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)
	reg := NewSessionRegistry(zap.NewNop())
	conn := &recordingConn{}
	s := reg.Register(conn)
	reg.Bind(s, "w1")
	reg.Unregister(s)

	assert.Zero(t, reg.BroadcastToWallet("w1", payload{}))
	assert.False(t, s.Send([]byte("{}")))

	// Unregister twice is harmless.
	reg.Unregister(s)
}

func TestFailedWriteClosesSessionWithoutBlockingOthers(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)
	reg := NewSessionRegistry(zap.NewNop())

	broken := &recordingConn{err: errors.New("broken pipe")}
	healthy := &recordingConn{}
	sb, sh := reg.Register(broken), reg.Register(healthy)
	reg.Bind(sb, "w1")
	reg.Bind(sh, "w1")

	reg.BroadcastToWallet("w1", payload{N: 1})
	waitFrames(t, healthy, 1)

	require.Eventually(t, func() bool { return !sb.Send([]byte("{}")) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, reg.BroadcastToWallet("w1", payload{N: 2}))
	waitFrames(t, healthy, 2)

	reg.Unregister(sb)
	reg.Unregister(sh)
}

// blockingConn never completes a write until released.
type blockingConn struct{ release chan struct{} }

func (c *blockingConn) SetWriteDeadline(time.Time) error { return nil }

func (c *blockingConn) WriteMessage(int, []byte) error {
	<-c.release
	return nil
}

func TestSlowSessionDoesNotBlockBroadcast(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)
	reg := NewSessionRegistry(zap.NewNop())

	slow := &blockingConn{release: make(chan struct{})}
	fast := &recordingConn{}
	ss, sf := reg.Register(slow), reg.Register(fast)
	reg.Bind(ss, "w1")
	reg.Bind(sf, "w1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sessionQueueSize*2; i++ {
			reg.BroadcastToWallet("w1", payload{N: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow session")
	}
	waitFrames(t, fast, 1)

	close(slow.release)
	reg.Unregister(ss)
	reg.Unregister(sf)
}

func TestSessionWritesCarryDeadline(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)
	reg := NewSessionRegistry(zap.NewNop())
	conn := &recordingConn{}
	s := reg.Register(conn)
	reg.Bind(s, "w1")

	start := time.Now()
	reg.BroadcastToWallet("w1", payload{N: 1})
	reg.BroadcastToWallet("w1", payload{N: 2})
	waitFrames(t, conn, 2)
	reg.Unregister(s)

	deadlines := conn.writeDeadlines()
	require.Len(t, deadlines, 2)
	for _, d := range deadlines {
		assert.True(t, d.After(start), "deadline must be in the future")
		assert.False(t, d.After(time.Now().Add(sessionWriteTimeout)))
	}
}
