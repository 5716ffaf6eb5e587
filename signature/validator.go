// Package signature canonicalizes instructions and signs/verifies them with
// HMAC-SHA256 over the RFC 8785 canonical JSON form.
package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/secrets"
)

// Validator signs and verifies instructions against per-agent signing keys.
type Validator struct {
	secrets secrets.Store
}

// NewValidator creates a Validator backed by the given secret store.
func NewValidator(store secrets.Store) *Validator {
	return &Validator{secrets: store}
}

// CanonicalPayload returns the RFC 8785 canonical encoding of the instruction
// with the signature field excluded. Signers and verifiers must agree on this
// byte sequence exactly.
func CanonicalPayload(instr domain.Instruction) ([]byte, error) {
	instr.Signature = ""
	raw, err := json.Marshal(instr)
	if err != nil {
		return nil, fmt.Errorf("marshal instruction: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize instruction: %w", err)
	}
	return canonical, nil
}

// Sign computes the hex HMAC-SHA256 digest of the instruction's canonical
// payload using the agent's signing key.
func (v *Validator) Sign(ctx context.Context, instr domain.Instruction) (string, error) {
	key, err := v.signingKey(ctx, instr.AgentID)
	if err != nil {
		return "", err
	}
	payload, err := CanonicalPayload(instr)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the instruction digest and compares it to the supplied
// signature in constant time. Any mismatch, including a missing signature,
// yields domain.ErrInvalidSignature.
func (v *Validator) Verify(ctx context.Context, instr domain.Instruction) error {
	if instr.Signature == "" {
		return domain.ErrInvalidSignature
	}
	expected, err := v.Sign(ctx, instr)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(instr.Signature)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (v *Validator) signingKey(ctx context.Context, agentID string) ([]byte, error) {
	key, err := secrets.GetWithFallback(ctx, v.secrets, secrets.SigningKeyFor(agentID), secrets.KeySigningKey)
	if err != nil {
		return nil, fmt.Errorf("signing key for %s: %w", agentID, err)
	}
	return []byte(key), nil
}
