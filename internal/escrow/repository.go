package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/idgen"
)

// Store persists escrow documents. Implementations perform no retries;
// retry policy belongs to callers.
type Store interface {
	Create(ctx context.Context, e *Escrow) error
	Get(ctx context.Context, id string) (*Escrow, error)
	FindByContractID(ctx context.Context, contractID string) (*Escrow, error)
	ListByRole(ctx context.Context, role Role, address string) ([]*Escrow, error)
	Update(ctx context.Context, e *Escrow) error
}

// CreatePayload contains the escrow definition supplied at initialization.
type CreatePayload struct {
	Title           string      `json:"title" binding:"required"`
	EngagementID    string      `json:"engagementId"`
	Description     string      `json:"description"`
	Client          string      `json:"client" binding:"required"`
	ServiceProvider string      `json:"serviceProvider" binding:"required"`
	PlatformAddress string      `json:"platformAddress" binding:"required"`
	PlatformFee     string      `json:"platformFee"`
	Amount          string      `json:"amount" binding:"required"`
	ReleaseSigner   string      `json:"releaseSigner" binding:"required"`
	DisputeResolver string      `json:"disputeResolver" binding:"required"`
	Milestones      []Milestone `json:"milestones" binding:"required"`
}

// UpdatePayload is a well-typed partial update; nil fields are unchanged.
// ContractID is deliberately absent: it is immutable once set.
type UpdatePayload struct {
	Title           *string     `json:"title"`
	EngagementID    *string     `json:"engagementId"`
	Description     *string     `json:"description"`
	Client          *string     `json:"client"`
	ServiceProvider *string     `json:"serviceProvider"`
	PlatformAddress *string     `json:"platformAddress"`
	PlatformFee     *string     `json:"platformFee"`
	Amount          *string     `json:"amount"`
	ReleaseSigner   *string     `json:"releaseSigner"`
	DisputeResolver *string     `json:"disputeResolver"`
	Balance         *string     `json:"balance"`
	Milestones      []Milestone `json:"milestones"`
}

// Repository layers document semantics over a Store: server-assigned ids
// and timestamps, write-then-read-back confirmation, and partial-update
// merging.
type Repository struct {
	store Store
}

// NewRepository creates a repository over the given store.
func NewRepository(store Store) *Repository {
	return &Repository{store: store}
}

// Create writes a new escrow record and re-reads it to confirm existence
// before returning success. Defends against silent write failures in
// eventually-consistent stores.
func (r *Repository) Create(ctx context.Context, payload CreatePayload, issuer, contractID string) (*Escrow, error) {
	now := time.Now()
	e := &Escrow{
		ID:              idgen.WithPrefix("esc_"),
		ContractID:      contractID,
		EngagementID:    payload.EngagementID,
		Title:           payload.Title,
		Description:     payload.Description,
		Client:          payload.Client,
		ServiceProvider: payload.ServiceProvider,
		PlatformAddress: payload.PlatformAddress,
		PlatformFee:     payload.PlatformFee,
		Amount:          payload.Amount,
		ReleaseSigner:   payload.ReleaseSigner,
		DisputeResolver: payload.DisputeResolver,
		Issuer:          issuer,
		Balance:         "0",
		Milestones:      payload.Milestones,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := r.store.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create escrow record: %w", err)
	}

	created, err := r.store.Get(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("record was created but could not be read back: %w", err)
	}

	return created, nil
}

// Get returns an escrow by its store-assigned id.
func (r *Repository) Get(ctx context.Context, id string) (*Escrow, error) {
	return r.store.Get(ctx, id)
}

// FindByContractID returns the escrow holding the given ledger contract id.
func (r *Repository) FindByContractID(ctx context.Context, contractID string) (*Escrow, error) {
	return r.store.FindByContractID(ctx, contractID)
}

// ListByRole returns all escrows where the given role field equals address.
// No matches is an empty slice, not an error.
func (r *Repository) ListByRole(ctx context.Context, address string, role Role) ([]*Escrow, error) {
	return r.store.ListByRole(ctx, role, address)
}

// Update merges the partial payload into the stored record, forces the
// balance default, sets updatedAt, and re-reads the record. Fails with
// ErrEscrowNotFound if the record disappears between write and read-back.
func (r *Repository) Update(ctx context.Context, escrowID string, partial UpdatePayload) (*Escrow, error) {
	e, err := r.store.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}

	merge(e, partial)

	// Balance is forced to the payload value when present; otherwise the
	// existing value is preserved, defaulting to zero.
	if partial.Balance != nil {
		e.Balance = *partial.Balance
	} else if e.Balance == "" {
		e.Balance = "0"
	}

	e.UpdatedAt = time.Now()

	if err := r.store.Update(ctx, e); err != nil {
		return nil, fmt.Errorf("update escrow record: %w", err)
	}

	updated, err := r.store.Get(ctx, escrowID)
	if err != nil {
		return nil, fmt.Errorf("record was updated but could not be read back: %w", err)
	}

	return updated, nil
}

func merge(e *Escrow, p UpdatePayload) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.EngagementID != nil {
		e.EngagementID = *p.EngagementID
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Client != nil {
		e.Client = *p.Client
	}
	if p.ServiceProvider != nil {
		e.ServiceProvider = *p.ServiceProvider
	}
	if p.PlatformAddress != nil {
		e.PlatformAddress = *p.PlatformAddress
	}
	if p.PlatformFee != nil {
		e.PlatformFee = *p.PlatformFee
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.ReleaseSigner != nil {
		e.ReleaseSigner = *p.ReleaseSigner
	}
	if p.DisputeResolver != nil {
		e.DisputeResolver = *p.DisputeResolver
	}
	if p.Milestones != nil {
		e.Milestones = p.Milestones
	}
}
