package clients

import (
	"context"
	"fmt"
	"sync"

	"flowgate/internal/flowrequest/models"
	"flowgate/pkg/platform/sentinel"
)

// Store persists clients and destinations.
type Store interface {
	FindClient(ctx context.Context, clientID string) (*RESTClient, error)
	SaveClient(ctx context.Context, c *RESTClient) error
	FindDestination(ctx context.Context, id string) (*models.Destination, error)
	SaveDestination(ctx context.Context, d *models.Destination) error
}

// InMemoryStore backs development runs without a database.
type InMemoryStore struct {
	mu           sync.RWMutex
	clients      map[string]*RESTClient
	destinations map[string]*models.Destination
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		clients:      make(map[string]*RESTClient),
		destinations: make(map[string]*models.Destination),
	}
}

func (s *InMemoryStore) FindClient(_ context.Context, clientID string) (*RESTClient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	cp.Scopes = append(cp.Scopes[:0:0], c.Scopes...)
	return &cp, nil
}

func (s *InMemoryStore) SaveClient(_ context.Context, c *RESTClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.DestinationID != "" {
		if _, ok := s.destinations[c.DestinationID]; !ok {
			return fmt.Errorf("destination %s: %w", c.DestinationID, sentinel.ErrNotFound)
		}
	}
	cp := *c
	s.clients[c.ClientID] = &cp
	return nil
}

func (s *InMemoryStore) FindDestination(_ context.Context, id string) (*models.Destination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.destinations[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *InMemoryStore) SaveDestination(_ context.Context, d *models.Destination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.destinations[d.ID] = &cp
	return nil
}
