package escrow

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory escrow store for demo/development mode.
type MemoryStore struct {
	escrows map[string]*Escrow
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory escrow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		escrows: make(map[string]*Escrow),
	}
}

func (m *MemoryStore) Create(ctx context.Context, e *Escrow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.escrows[e.ID] = copyEscrow(e)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Escrow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.escrows[id]
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return copyEscrow(e), nil
}

func (m *MemoryStore) FindByContractID(ctx context.Context, contractID string) (*Escrow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.escrows {
		if e.ContractID == contractID {
			return copyEscrow(e), nil
		}
	}
	return nil, ErrEscrowNotFound
}

func (m *MemoryStore) ListByRole(ctx context.Context, role Role, address string) ([]*Escrow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []*Escrow{}
	for _, e := range m.escrows {
		if strings.EqualFold(e.RoleAddress(role), address) {
			result = append(result, copyEscrow(e))
		}
	}
	return result, nil
}

func (m *MemoryStore) Update(ctx context.Context, e *Escrow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.escrows[e.ID]; !ok {
		return ErrEscrowNotFound
	}
	m.escrows[e.ID] = copyEscrow(e)
	return nil
}

// copyEscrow returns a deep copy so callers never share the stored
// pointer or its milestones backing array.
func copyEscrow(e *Escrow) *Escrow {
	cp := *e
	if e.Milestones != nil {
		cp.Milestones = make([]Milestone, len(e.Milestones))
		copy(cp.Milestones, e.Milestones)
	}
	return &cp
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
