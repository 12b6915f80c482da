package services

import (
	"crypto/ed25519"
	"encoding/hex"

	"github.com/mr-tron/base58"
)

// SignatureVerifier checks a detached signature against a wallet public key.
type SignatureVerifier interface {
	Verify(publicKey, signatureHex, message string) bool
}

// Ed25519Verifier verifies Solana-style wallet signatures: a base58 public
// key and a hex-encoded 64-byte ed25519 signature over the UTF-8 message.
type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(publicKey, signatureHex, message string) bool {
	return VerifySignature(publicKey, signatureHex, message)
}

// VerifySignature returns false on any decoding failure or mismatch.
func VerifySignature(publicKey, signatureHex, message string) bool {
	pub, err := base58.Decode(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig)
}
