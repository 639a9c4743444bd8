package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/testutil"
)

func pgEscrow(id, contractID string) *Escrow {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &Escrow{
		ID:              id,
		ContractID:      contractID,
		EngagementID:    "eng_1",
		Title:           "Integration test escrow",
		Description:     "stored in postgres",
		Client:          addrClient,
		ServiceProvider: addrProvider,
		PlatformAddress: addrPlatform,
		PlatformFee:     "5",
		Amount:          "300",
		ReleaseSigner:   addrSigner,
		DisputeResolver: addrResolver,
		Issuer:          addrIssuer,
		Balance:         "0",
		Milestones: []Milestone{
			{Description: "Design", Amount: "100"},
			{Description: "Build", Amount: "200"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPostgresStore_CRUD(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	e := pgEscrow("esc_pg1", "ct_pg1")
	if err := store.Create(ctx, e); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "esc_pg1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != e.Title || got.Balance != "0" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if len(got.Milestones) != 2 || got.Milestones[1].Amount != "200" {
		t.Errorf("milestones mismatch: %+v", got.Milestones)
	}

	byContract, err := store.FindByContractID(ctx, "ct_pg1")
	if err != nil {
		t.Fatalf("FindByContractID failed: %v", err)
	}
	if byContract.ID != "esc_pg1" {
		t.Errorf("found wrong record: %s", byContract.ID)
	}

	got.Balance = "150"
	got.Title = "Renamed"
	got.UpdatedAt = time.Now().UTC()
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	updated, err := store.Get(ctx, "esc_pg1")
	if err != nil {
		t.Fatalf("Get after update failed: %v", err)
	}
	if updated.Balance != "150" || updated.Title != "Renamed" {
		t.Errorf("update not persisted: %+v", updated)
	}
}

func TestPostgresStore_NotFound(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	if _, err := store.Get(ctx, "esc_none"); !errors.Is(err, ErrEscrowNotFound) {
		t.Errorf("Get: expected ErrEscrowNotFound, got %v", err)
	}
	if _, err := store.FindByContractID(ctx, "ct_none"); !errors.Is(err, ErrEscrowNotFound) {
		t.Errorf("FindByContractID: expected ErrEscrowNotFound, got %v", err)
	}

	phantom := pgEscrow("esc_none", "ct_none")
	if err := store.Update(ctx, phantom); !errors.Is(err, ErrEscrowNotFound) {
		t.Errorf("Update: expected ErrEscrowNotFound, got %v", err)
	}
}

func TestPostgresStore_ListByRole(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	if err := store.Create(ctx, pgEscrow("esc_a", "ct_a")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, pgEscrow("esc_b", "ct_b")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	escrows, err := store.ListByRole(ctx, RoleClient, addrClient)
	if err != nil {
		t.Fatalf("ListByRole failed: %v", err)
	}
	if len(escrows) != 2 {
		t.Fatalf("expected 2 escrows, got %d", len(escrows))
	}

	// Role columns are isolated: the client address holds no provider role.
	escrows, err = store.ListByRole(ctx, RoleServiceProvider, addrClient)
	if err != nil {
		t.Fatalf("ListByRole failed: %v", err)
	}
	if len(escrows) != 0 {
		t.Errorf("expected 0 escrows, got %d", len(escrows))
	}

	// Lookup is case-insensitive on the stored address.
	escrows, err = store.ListByRole(ctx, RoleServiceProvider, "0xABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD")
	if err != nil {
		t.Fatalf("ListByRole failed: %v", err)
	}
	if len(escrows) != 2 {
		t.Errorf("case-insensitive lookup returned %d escrows", len(escrows))
	}

	if _, err := store.ListByRole(ctx, Role("beneficiary"), addrClient); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole, got %v", err)
	}
}
