package models

import "time"

// LinkingCode binds a wallet to a pending external-identity link.
// Codes live only in process memory and are single-use.
type LinkingCode struct {
	Code        string    `json:"code"`
	OwnerWallet string    `json:"owner_wallet"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the code is no longer redeemable at t.
func (c LinkingCode) ExpiredAt(t time.Time) bool {
	return !t.Before(c.ExpiresAt)
}
