package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
)

// PairingState represents the state of a pairing request
type PairingState string

const (
	PairingPending  PairingState = "pending"
	PairingApproved PairingState = "approved"
	PairingDenied   PairingState = "denied"
	PairingExpired  PairingState = "expired"
)

const pairingTimeout = 60 * time.Second

var (
	ErrPairingDenied  = errors.New("pairing denied")
	ErrPairingExpired = errors.New("pairing request expired")
)

// PairingRequest is a client waiting to be paired. The first client ever
// paired is approved on the spot; later ones need approval from a client
// that is already paired.
type PairingRequest struct {
	ID         string
	ClientName string
	CreatedAt  time.Time

	state    PairingState
	token    string
	clientID string
	done     chan struct{}
}

// BeginPairing registers a pairing request. approved is true when the
// request was approved immediately because no client is paired yet.
func (m *Manager) BeginPairing(clientName string) (req *PairingRequest, approved bool, err error) {
	req = &PairingRequest{
		ID:         uuid.NewString(),
		ClientName: clientName,
		CreatedAt:  m.now(),
		state:      PairingPending,
		done:       make(chan struct{}),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests[req.ID] = req

	if len(m.store.Clients()) == 0 {
		if err := m.approveLocked(req); err != nil {
			delete(m.requests, req.ID)
			return nil, false, err
		}
		log.Printf("[AUTH] No paired clients yet, approving %q", clientName)
		return req, true, nil
	}

	log.Printf("[AUTH] Pairing request %s from %q awaiting approval", req.ID, clientName)
	return req, false, nil
}

// Approve approves a pending request and issues its token
func (m *Manager) Approve(requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return ErrClientNotFound
	}
	if req.state != PairingPending {
		return ErrUnauthorized
	}
	return m.approveLocked(req)
}

func (m *Manager) approveLocked(req *PairingRequest) error {
	token, clientID, err := m.Pair(req.ClientName)
	if err != nil {
		return err
	}
	req.state = PairingApproved
	req.token = token
	req.clientID = clientID
	close(req.done)
	return nil
}

// Deny rejects a pending request
func (m *Manager) Deny(requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return ErrClientNotFound
	}
	if req.state != PairingPending {
		return ErrUnauthorized
	}
	req.state = PairingDenied
	close(req.done)
	log.Printf("[AUTH] Pairing request %s denied", requestID)
	return nil
}

// WaitForPairing blocks until the request is decided, ctx is done or the
// request times out. The request is removed either way.
func (m *Manager) WaitForPairing(ctx context.Context, requestID string) (token, clientID string, err error) {
	m.mu.Lock()
	req, ok := m.requests[requestID]
	m.mu.Unlock()
	if !ok {
		return "", "", ErrClientNotFound
	}

	timer := time.NewTimer(pairingTimeout)
	defer timer.Stop()

	select {
	case <-req.done:
	case <-ctx.Done():
	case <-timer.C:
	}

	m.mu.Lock()
	if req.state == PairingPending {
		req.state = PairingExpired
	}
	delete(m.requests, requestID)
	state := req.state
	m.mu.Unlock()

	switch state {
	case PairingApproved:
		return req.token, req.clientID, nil
	case PairingDenied:
		return "", "", ErrPairingDenied
	default:
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		return "", "", ErrPairingExpired
	}
}

// PendingPairings returns the number of requests awaiting a decision
func (m *Manager) PendingPairings() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, req := range m.requests {
		if req.state == PairingPending {
			n++
		}
	}
	return n
}
