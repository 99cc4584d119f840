package models

import (
	"time"

	"github.com/google/uuid"
)

// Session record of issued token pair
// Raw token values are never stored, only their fingerprints
type Session struct {
	ID     uuid.UUID
	UserID uuid.UUID

	// Fingerprint of the refresh token serial. Unique among live sessions
	RefreshHash string

	// Fingerprint of the serial this session was rotated from; nil for a fresh login
	PredecessorHash *string

	// Fingerprint of the issued access token
	AccessHash string

	RefreshExpiresAt time.Time
	AccessExpiresAt  time.Time
	CreatedAt        time.Time
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by TokenManager
// RefreshSerial is the plain serial embedded into refresh token, it is never sent to the client
type TokenPair struct {
	Access        IssuedToken
	Refresh       IssuedToken
	RefreshSerial string
}
