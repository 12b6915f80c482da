package services

import "strings"

// AdminPolicy decides which wallets may use privileged commands.
type AdminPolicy interface {
	IsAdmin(wallet string) bool
}

// WalletAllowlist grants admin to a fixed set of wallets.
type WalletAllowlist map[string]struct{}

// NewWalletAllowlist parses a comma-separated wallet list.
func NewWalletAllowlist(csv string) WalletAllowlist {
	list := WalletAllowlist{}
	for _, w := range strings.Split(csv, ",") {
		if w = strings.TrimSpace(w); w != "" {
			list[w] = struct{}{}
		}
	}
	return list
}

func (l WalletAllowlist) IsAdmin(wallet string) bool {
	if wallet == "" {
		return false
	}
	_, ok := l[wallet]
	return ok
}
