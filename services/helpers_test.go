package services

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"relay-hub/models"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *GormUserStore {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := NewGormUserStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

type testWallet struct {
	Address string
	priv    ed25519.PrivateKey
}

func newTestWallet(t *testing.T) testWallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return testWallet{Address: base58.Encode(pub), priv: priv}
}

func (w testWallet) Sign(message string) string {
	return hex.EncodeToString(ed25519.Sign(w.priv, []byte(message)))
}

// recordingConn captures frames written by a session.
type recordingConn struct {
	mu        sync.Mutex
	frames    [][]byte
	deadlines []time.Time
	err       error
}

func (c *recordingConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines = append(c.deadlines, t)
	return nil
}

func (c *recordingConn) writeDeadlines() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Time(nil), c.deadlines...)
}

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *recordingConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// messages decodes every captured frame's type and body.
func (c *recordingConn) messages() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (c *recordingConn) ofType(kind string) []map[string]any {
	var out []map[string]any
	for _, m := range c.messages() {
		if m["type"] == kind {
			out = append(out, m)
		}
	}
	return out
}

// waitFrames blocks until conn has captured at least n frames.
func waitFrames(t *testing.T, conn *recordingConn, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return conn.count() >= n }, 2*time.Second, 5*time.Millisecond)
}

type sentMessage struct {
	ChatID string
	Text   string
}

// fakeGateway records outbound external messages.
type fakeGateway struct {
	mu   sync.Mutex
	open bool
	sent []sentMessage
}

func (g *fakeGateway) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

func (g *fakeGateway) Send(_ context.Context, chatID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return ErrUpstreamUnavailable
	}
	g.sent = append(g.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (g *fakeGateway) messages() []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentMessage(nil), g.sent...)
}

// echoPersona replies deterministically so assertions can match on text.
type echoPersona struct{}

func (echoPersona) GenerateReply(_ context.Context, userText, displayName string) string {
	return "echo(" + displayName + "): " + userText
}

// failingStore fails every call with a fixed error.
type failingStore struct{ err error }

func (s failingStore) FindByWallet(context.Context, string) (*models.UserRecord, error) {
	return nil, s.err
}
func (s failingStore) FindByExternalID(context.Context, string) (*models.UserRecord, error) {
	return nil, s.err
}
func (s failingStore) Upsert(context.Context, string) (*models.UserRecord, error) { return nil, s.err }
func (s failingStore) SetExternalID(context.Context, string, string) error     { return s.err }
func (s failingStore) AppendTask(context.Context, string, string) (models.Task, error) {
	return models.Task{}, s.err
}
func (s failingStore) ToggleTask(context.Context, string, int64) (bool, error) { return false, s.err }
func (s failingStore) ListTasks(context.Context, string) ([]models.Task, error) {
	return nil, s.err
}

var errDiskFull = errors.New("disk full")
