// Package fingerprint provides one-way digests of secrets and secure random identifiers.
package fingerprint

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Source of randomness for identifiers. Replaced in tests only
var random io.Reader = rand.Reader

// Digest returns base64 encoded SHA-256 of input UTF-8 bytes
// Used to store tokens and serials at rest: it is deterministic and never reversed
func Digest(input string) string {
	sum := sha256.Sum256([]byte(input))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// NewSecureID returns 128 bit identifier read from the cryptographically secure source
// All the 16 bytes are random: version and variant bits are not forced
func NewSecureID() (uuid.UUID, error) {
	var id uuid.UUID
	if _, err := io.ReadFull(random, id[:]); err != nil {
		return uuid.Nil, fmt.Errorf("can't read random bytes. Err: %w", err)
	}
	return id, nil
}

// NewSerial returns secure id as 32 lowercase hex chars
func NewSerial() (string, error) {
	id, err := NewSecureID()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(id[:]), nil
}
