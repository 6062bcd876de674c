package issuer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"attesto/internal/registry/models"
	id "attesto/pkg/domain"
	"attesto/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the requested identity does not exist
// - Return ErrAlreadyUsed when an address is already registered
// - Return nil for successful operations
//
// The registry is small (one entry per institution) and changes rarely, so a
// single RWMutex over the map is enough; per-record locking is a token ledger
// concern, not a registry one.

// InMemory stores issuer identities in memory for tests/dev.
type InMemory struct {
	mu      sync.RWMutex
	issuers map[id.IssuerAddress]*models.IssuerIdentity
}

// NewInMemory constructs an empty in-memory issuer store.
func NewInMemory() *InMemory {
	return &InMemory{
		issuers: make(map[id.IssuerAddress]*models.IssuerIdentity),
	}
}

func (s *InMemory) Create(_ context.Context, identity *models.IssuerIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issuers[identity.Address]; ok {
		return fmt.Errorf("issuer address taken: %w", sentinel.ErrAlreadyUsed)
	}
	s.issuers[identity.Address] = identity.Clone()
	return nil
}

func (s *InMemory) FindByAddress(_ context.Context, address id.IssuerAddress) (*models.IssuerIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if identity, ok := s.issuers[address]; ok {
		return identity.Clone(), nil
	}
	return nil, fmt.Errorf("issuer not found: %w", sentinel.ErrNotFound)
}

// List returns all identities ordered by address for deterministic output.
func (s *InMemory) List(_ context.Context) ([]*models.IssuerIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.IssuerIdentity, 0, len(s.issuers))
	for _, identity := range s.issuers {
		out = append(out, identity.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// Execute runs validate then apply while holding the write lock, so the
// mutation commits against exactly the state validate saw.
func (s *InMemory) Execute(_ context.Context, address id.IssuerAddress, validate func(*models.IssuerIdentity) error, apply func(*models.IssuerIdentity)) (*models.IssuerIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.issuers[address]
	if !ok {
		return nil, fmt.Errorf("issuer not found: %w", sentinel.ErrNotFound)
	}

	if err := validate(identity); err != nil {
		return nil, err
	}
	apply(identity)
	return identity.Clone(), nil
}
