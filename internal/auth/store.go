package auth

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

type storedClient struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TokenHash string    `json:"tokenHash"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists paired clients as JSON
type Store struct {
	path    string
	mu      sync.RWMutex
	clients map[string]storedClient
}

// NewStore opens the store at path. A missing file is an empty store.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:    path,
		clients: make(map[string]storedClient),
	}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load client store: %w", err)
	}
	return s, nil
}

func (s *Store) AddClient(id, name, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[id] = storedClient{
		ID:        id,
		Name:      name,
		TokenHash: tokenHash,
		CreatedAt: time.Now().UTC(),
	}
	return s.saveLocked()
}

func (s *Store) RemoveClient(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[id]; !ok {
		return ErrClientNotFound
	}
	delete(s.clients, id)
	return s.saveLocked()
}

// HasTokenHash reports whether any client holds the token with this hash
func (s *Store) HasTokenHash(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := false
	for _, c := range s.clients {
		if subtle.ConstantTimeCompare([]byte(c.TokenHash), []byte(hash)) == 1 {
			found = true
		}
	}
	return found
}

// Clients returns the paired clients, oldest first
func (s *Store) Clients() []ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, ClientInfo{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var stored struct {
		Clients []storedClient `json:"clients"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse store: %w", err)
	}
	for _, c := range stored.Clients {
		s.clients[c.ID] = c
	}
	return nil
}

func (s *Store) saveLocked() error {
	stored := struct {
		Clients []storedClient `json:"clients"`
	}{Clients: make([]storedClient, 0, len(s.clients))}
	for _, c := range s.clients {
		stored.Clients = append(stored.Clients, c)
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	return nil
}
