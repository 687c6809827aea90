/**
 * @description
 * This file implements the in-process manager for one-time PIN authorization
 * tokens. Each token is an unguessable random string bound to a single transfer
 * request with a short expiry. Tokens are single-use: consuming one invalidates
 * it immediately. Expired entries are swept opportunistically on issue.
 *
 * The manager is the fast path; the secure_tokens table holds the authoritative
 * copy so consumption stays single-winner when multiple instances run.
 *
 * @dependencies
 * - crypto/rand, encoding/base64, sync, time: Standard Go libraries.
 * - github.com/google/uuid: Transfer request identifiers.
 */

package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenUsed     = errors.New("token already used")
)

type entry struct {
	transferID uuid.UUID
	expiresAt  time.Time
	used       bool
}

// Manager issues and redeems one-time transfer authorization tokens.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewManager creates an empty token manager.
func NewManager() *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Issue creates a new token bound to the given transfer request, valid for ttl.
func (m *Manager) Issue(transferID uuid.UUID, ttl time.Duration) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	tok := base64.RawURLEncoding.EncodeToString(buf)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	m.entries[tok] = &entry{
		transferID: transferID,
		expiresAt:  m.now().Add(ttl),
	}
	return tok, nil
}

// Peek returns the transfer bound to a token without consuming it. Used when
// rendering the PIN form so an expired or spent link can be rejected up front.
func (m *Manager) Peek(tok string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[tok]
	if !ok {
		return uuid.Nil, ErrTokenNotFound
	}
	if e.used {
		return uuid.Nil, ErrTokenUsed
	}
	if m.now().After(e.expiresAt) {
		return uuid.Nil, ErrTokenExpired
	}
	return e.transferID, nil
}

// Consume redeems a token exactly once and returns the transfer it authorizes.
// A second Consume of the same token fails with ErrTokenUsed.
func (m *Manager) Consume(tok string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[tok]
	if !ok {
		return uuid.Nil, ErrTokenNotFound
	}
	if e.used {
		return uuid.Nil, ErrTokenUsed
	}
	if m.now().After(e.expiresAt) {
		return uuid.Nil, ErrTokenExpired
	}
	e.used = true
	return e.transferID, nil
}

// sweepLocked drops expired and spent entries. Caller holds the mutex.
func (m *Manager) sweepLocked() {
	now := m.now()
	for tok, e := range m.entries {
		if e.used || now.After(e.expiresAt) {
			delete(m.entries, tok)
		}
	}
}
