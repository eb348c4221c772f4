// Package auth issues and checks the tokens clients present on the socket.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	tokenBytes      = 32 // 256-bit tokens
	maxAuthFailures = 5
	lockoutDuration = 60 * time.Second
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrLockedOut      = errors.New("too many failed attempts")
)

// ClientInfo describes a paired client
type ClientInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// failureRecord counts recent auth failures of one peer
type failureRecord struct {
	count int
	last  time.Time
}

// Manager pairs clients and validates their tokens. Failures are counted
// per peer and lock the peer out for a while after too many. Records older
// than the lockout window are pruned.
type Manager struct {
	store *Store

	mu       sync.Mutex
	failures map[string]*failureRecord
	lockouts map[string]time.Time
	requests map[string]*PairingRequest
	now      func() time.Time
}

// NewManager creates a manager over store
func NewManager(store *Store) *Manager {
	return &Manager{
		store:    store,
		failures: make(map[string]*failureRecord),
		lockouts: make(map[string]time.Time),
		requests: make(map[string]*PairingRequest),
		now:      time.Now,
	}
}

// Pair registers a client directly and returns its token and ID. The token
// is only ever returned here; the store keeps its hash. Socket clients go
// through BeginPairing instead.
func (m *Manager) Pair(clientName string) (token, clientID string, err error) {
	token, err = generateToken()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	clientID = uuid.NewString()

	if err := m.store.AddClient(clientID, clientName, HashToken(token)); err != nil {
		return "", "", fmt.Errorf("failed to store client: %w", err)
	}
	log.Printf("[AUTH] Paired client %q (%s)", clientName, clientID)
	return token, clientID, nil
}

// Authorize checks token for the given peer and records the outcome
func (m *Manager) Authorize(peer, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.pruneLocked(now)

	if _, ok := m.lockouts[peer]; ok {
		return ErrLockedOut
	}

	if token != "" && m.store.HasTokenHash(HashToken(token)) {
		delete(m.failures, peer)
		return nil
	}

	rec, ok := m.failures[peer]
	if !ok {
		rec = &failureRecord{}
		m.failures[peer] = rec
	}
	rec.count++
	rec.last = now
	if rec.count >= maxAuthFailures {
		m.lockouts[peer] = now.Add(lockoutDuration)
		delete(m.failures, peer)
		log.Printf("[AUTH] Locking out %s for %v", peer, lockoutDuration)
	}
	return ErrUnauthorized
}

// Forget drops all failure state for a peer. Only call it for peers whose
// identity dies with their connection.
func (m *Manager) Forget(peer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, peer)
	delete(m.lockouts, peer)
}

// pruneLocked drops expired lockouts and failures outside the lockout window
func (m *Manager) pruneLocked(now time.Time) {
	for peer, end := range m.lockouts {
		if !now.Before(end) {
			delete(m.lockouts, peer)
		}
	}
	for peer, rec := range m.failures {
		if now.Sub(rec.last) >= lockoutDuration {
			delete(m.failures, peer)
		}
	}
}

// Revoke removes a paired client
func (m *Manager) Revoke(clientID string) error {
	return m.store.RemoveClient(clientID)
}

// Clients lists the paired clients
func (m *Manager) Clients() []ClientInfo {
	return m.store.Clients()
}

// HashToken creates a SHA-256 hash of a token for storage
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
