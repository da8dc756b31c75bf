// Package security signs analysis reports so downstream consumers can verify
// they were produced by this service and not altered in transit.
package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// SignedReport wraps a JSON payload with its ed25519 signature.
type SignedReport struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
	PublicKey string          `json:"public_key"`
	SignedAt  int64           `json:"signed_at"`
}

// ReportSigner holds the signing key pair.
type ReportSigner struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewReportSigner builds a signer from a hex-encoded 32-byte seed, or
// generates an ephemeral key when seed is empty.
func NewReportSigner(seedHex string) (*ReportSigner, error) {
	if seedHex == "" {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("security: generate key: %w", err)
		}
		return &ReportSigner{priv: priv, pub: pub}, nil
	}

	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("security: decode seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("security: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &ReportSigner{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Sign marshals v to canonical JSON and signs it.
func (s *ReportSigner) Sign(v interface{}) (*SignedReport, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("security: marshal payload: %w", err)
	}
	sig := ed25519.Sign(s.priv, payload)
	return &SignedReport{
		Payload:   payload,
		Signature: base64.StdEncoding.EncodeToString(sig),
		PublicKey: hex.EncodeToString(s.pub),
		SignedAt:  time.Now().Unix(),
	}, nil
}

// PublicKey returns the hex-encoded verification key.
func (s *ReportSigner) PublicKey() string {
	return hex.EncodeToString(s.pub)
}

// Verify checks a signed report against its embedded public key.
func Verify(r *SignedReport) (bool, error) {
	pub, err := hex.DecodeString(r.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("security: bad public key")
	}
	sig, err := base64.StdEncoding.DecodeString(r.Signature)
	if err != nil {
		return false, fmt.Errorf("security: bad signature encoding")
	}
	return ed25519.Verify(ed25519.PublicKey(pub), r.Payload, sig), nil
}
