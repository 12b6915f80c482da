package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TextMessage is the websocket text frame opcode (RFC 6455).
const TextMessage = 1

const (
	sessionQueueSize    = 64
	sessionWriteTimeout = 10 * time.Second
)

// Conn is the write side of a UI connection.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// Session is one live UI connection. Outbound frames go through a bounded
// queue drained by a dedicated writer, so Send never blocks.
type Session struct {
	ID string

	conn Conn
	out  chan []byte
	stop chan struct{}
	done chan struct{}

	mu     sync.RWMutex
	wallet string
	closed bool
}

// Wallet returns the bound wallet, or "" while unauthenticated.
func (s *Session) Wallet() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wallet
}

// Authenticated reports whether the session has bound a wallet.
func (s *Session) Authenticated() bool {
	return s.Wallet() != ""
}

// Send enqueues a frame. It returns false when the session is closed or its
// queue is full.
func (s *Session) Send(frame []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

// SendJSON marshals payload and enqueues it.
func (s *Session) SendJSON(payload any) bool {
	frame, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return s.Send(frame)
}

func (s *Session) writeLoop(log *zap.Logger) {
	defer close(s.done)
	for {
		select {
		case frame := <-s.out:
			// Unregister waits on this loop; a stalled peer must not hold it forever
			_ = s.conn.SetWriteDeadline(time.Now().Add(sessionWriteTimeout))
			if err := s.conn.WriteMessage(TextMessage, frame); err != nil {
				log.Debug("[SESSIONS] write failed, closing session", zap.String("session", s.ID), zap.Error(err))
				s.markClosed()
				return
			}
		case <-s.stop:
			return
		}
	}
}

func (s *Session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// SessionRegistry tracks live UI sessions and indexes them by bound wallet.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byWallet map[string]map[string]*Session
	log      *zap.Logger
}

func NewSessionRegistry(logger *zap.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		byWallet: make(map[string]map[string]*Session),
		log:      logger,
	}
}

// Register creates an unbound session and starts its writer.
func (r *SessionRegistry) Register(conn Conn) *Session {
	s := &Session{
		ID:   uuid.NewString(),
		conn: conn,
		out:  make(chan []byte, sessionQueueSize),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.writeLoop(r.log)

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Bind attaches wallet to the session. Binding again to another wallet
// moves the session.
func (r *SessionRegistry) Bind(s *Session, wallet string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; !ok {
		return
	}
	prev := s.Wallet()
	if prev == wallet {
		return
	}
	if prev != "" {
		r.removeFromWalletLocked(prev, s.ID)
	}
	set, ok := r.byWallet[wallet]
	if !ok {
		set = make(map[string]*Session)
		r.byWallet[wallet] = set
	}
	set[s.ID] = s

	s.mu.Lock()
	s.wallet = wallet
	s.mu.Unlock()
}

// Unregister removes the session and waits for its writer to exit.
func (r *SessionRegistry) Unregister(s *Session) {
	r.mu.Lock()
	if _, ok := r.sessions[s.ID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, s.ID)
	if w := s.Wallet(); w != "" {
		r.removeFromWalletLocked(w, s.ID)
	}
	r.mu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	close(s.stop)
	<-s.done
}

// BroadcastToWallet delivers payload to every open session bound to wallet
// and returns how many accepted it. Full or closed sessions are skipped.
func (r *SessionRegistry) BroadcastToWallet(wallet string, payload any) int {
	if wallet == "" {
		return 0
	}
	frame, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("[SESSIONS] marshal broadcast payload", zap.Error(err))
		return 0
	}

	r.mu.RLock()
	targets := make([]*Session, 0, len(r.byWallet[wallet]))
	for _, s := range r.byWallet[wallet] {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.Send(frame) {
			delivered++
		} else {
			r.log.Warn("[SESSIONS] dropped frame for session", zap.String("session", s.ID), zap.String("wallet", wallet))
		}
	}
	return delivered
}

// Count is the number of registered sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// WalletCount is the number of distinct wallets with at least one session.
func (r *SessionRegistry) WalletCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byWallet)
}

func (r *SessionRegistry) removeFromWalletLocked(wallet, id string) {
	set := r.byWallet[wallet]
	delete(set, id)
	if len(set) == 0 {
		delete(r.byWallet, wallet)
	}
}
