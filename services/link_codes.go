package services

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"relay-hub/models"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	// DefaultLinkCodeTTL is how long an issued code stays redeemable.
	DefaultLinkCodeTTL = 5 * time.Minute

	linkCodeMin  = 100000
	linkCodeSpan = 900000 // 100000..999999
)

// LinkCodeRegistry issues and redeems one-time codes that bind a wallet to
// an external chat identity. State is process-local.
type LinkCodeRegistry struct {
	mu     sync.Mutex
	codes  map[string]models.LinkingCode
	clock  clockwork.Clock
	ttl    time.Duration
	random io.Reader
	log    *zap.Logger
}

func NewLinkCodeRegistry(clock clockwork.Clock, ttl time.Duration, logger *zap.Logger) *LinkCodeRegistry {
	if ttl <= 0 {
		ttl = DefaultLinkCodeTTL
	}
	return &LinkCodeRegistry{
		codes:  make(map[string]models.LinkingCode),
		clock:  clock,
		ttl:    ttl,
		random: rand.Reader,
		log:    logger,
	}
}

// Issue stores a fresh code for ownerWallet and sweeps expired ones.
// A colliding code silently replaces the older entry.
func (r *LinkCodeRegistry) Issue(ownerWallet string) (string, error) {
	n, err := rand.Int(r.random, big.NewInt(linkCodeSpan))
	if err != nil {
		return "", fmt.Errorf("generate link code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64()+linkCodeMin)
	now := r.clock.Now()

	r.mu.Lock()
	swept := r.sweepLocked(now)
	r.codes[code] = models.LinkingCode{
		Code:        code,
		OwnerWallet: ownerWallet,
		ExpiresAt:   now.Add(r.ttl),
	}
	r.mu.Unlock()

	r.log.Info("[LINK] code issued",
		zap.String("wallet", ownerWallet),
		zap.Time("expires_at", now.Add(r.ttl)),
		zap.Int("swept", swept))
	return code, nil
}

// Redeem consumes code and returns its owner. Unknown or expired codes
// yield ErrLinkFailure and leave the table untouched.
func (r *LinkCodeRegistry) Redeem(code string) (string, error) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.codes[code]
	if !ok || entry.ExpiredAt(now) {
		return "", ErrLinkFailure
	}
	delete(r.codes, code)
	return entry.OwnerWallet, nil
}

// Sweep drops every expired code and returns how many were removed.
func (r *LinkCodeRegistry) Sweep() int {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked(now)
}

// Pending is the number of stored codes, expired or not.
func (r *LinkCodeRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes)
}

func (r *LinkCodeRegistry) sweepLocked(now time.Time) int {
	removed := 0
	for code, entry := range r.codes {
		if entry.ExpiredAt(now) {
			delete(r.codes, code)
			removed++
		}
	}
	return removed
}
