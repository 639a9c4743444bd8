package escrow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists escrow documents in PostgreSQL. Milestones are
// stored as a JSONB column: they have no identity outside their parent.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed escrow store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the escrows table if it does not exist. The goose
// migrations under migrations/ are the canonical schema; this keeps
// fresh deployments working without a separate migrate step.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS escrows (
			id               TEXT PRIMARY KEY,
			contract_id      TEXT NOT NULL UNIQUE,
			engagement_id    TEXT,
			title            TEXT NOT NULL,
			description      TEXT,
			client           TEXT NOT NULL,
			service_provider TEXT NOT NULL,
			platform_address TEXT NOT NULL,
			platform_fee     TEXT,
			amount           TEXT NOT NULL,
			release_signer   TEXT NOT NULL,
			dispute_resolver TEXT NOT NULL,
			issuer           TEXT NOT NULL,
			balance          TEXT NOT NULL DEFAULT '0',
			milestones       JSONB NOT NULL DEFAULT '[]',
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL
		)`)
	return err
}

const escrowColumns = `id, contract_id, engagement_id, title, description,
	       client, service_provider, platform_address, platform_fee,
	       amount, release_signer, dispute_resolver, issuer, balance,
	       milestones, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, e *Escrow) error {
	milestonesJSON, err := json.Marshal(e.Milestones)
	if err != nil {
		return fmt.Errorf("encode milestones: %w", err)
	}
	if e.Milestones == nil {
		milestonesJSON = []byte("[]")
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO escrows (
			id, contract_id, engagement_id, title, description,
			client, service_provider, platform_address, platform_fee,
			amount, release_signer, dispute_resolver, issuer, balance,
			milestones, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, $17
		)`,
		e.ID, e.ContractID, nullString(e.EngagementID), e.Title, nullString(e.Description),
		e.Client, e.ServiceProvider, e.PlatformAddress, nullString(e.PlatformFee),
		e.Amount, e.ReleaseSigner, e.DisputeResolver, e.Issuer, e.Balance,
		milestonesJSON, e.CreatedAt, e.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Escrow, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id = $1`, id)

	e, err := scanEscrow(row)
	if err == sql.ErrNoRows {
		return nil, ErrEscrowNotFound
	}
	return e, err
}

func (p *PostgresStore) FindByContractID(ctx context.Context, contractID string) (*Escrow, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE contract_id = $1`, contractID)

	e, err := scanEscrow(row)
	if err == sql.ErrNoRows {
		return nil, ErrEscrowNotFound
	}
	return e, err
}

func (p *PostgresStore) ListByRole(ctx context.Context, role Role, address string) ([]*Escrow, error) {
	column, ok := roleColumns[role]
	if !ok {
		return nil, ErrUnknownRole
	}

	// column comes from the fixed roleColumns map, not user input.
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+escrowColumns+`
		FROM escrows
		WHERE LOWER(`+column+`) = LOWER($1)
		ORDER BY created_at DESC`, address)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanEscrows(rows)
}

func (p *PostgresStore) Update(ctx context.Context, e *Escrow) error {
	milestonesJSON, err := json.Marshal(e.Milestones)
	if err != nil {
		return fmt.Errorf("encode milestones: %w", err)
	}
	if e.Milestones == nil {
		milestonesJSON = []byte("[]")
	}

	result, err := p.db.ExecContext(ctx, `
		UPDATE escrows SET
			engagement_id = $1, title = $2, description = $3,
			client = $4, service_provider = $5, platform_address = $6,
			platform_fee = $7, amount = $8, release_signer = $9,
			dispute_resolver = $10, balance = $11, milestones = $12,
			updated_at = $13
		WHERE id = $14`,
		nullString(e.EngagementID), e.Title, nullString(e.Description),
		e.Client, e.ServiceProvider, e.PlatformAddress,
		nullString(e.PlatformFee), e.Amount, e.ReleaseSigner,
		e.DisputeResolver, e.Balance, milestonesJSON,
		e.UpdatedAt, e.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrEscrowNotFound
	}
	return nil
}

// roleColumns maps role fields to their database columns. Queries must go
// through this map so a request can never name an arbitrary column.
var roleColumns = map[Role]string{
	RoleClient:          "client",
	RoleServiceProvider: "service_provider",
	RolePlatformAddress: "platform_address",
	RoleReleaseSigner:   "release_signer",
	RoleIssuer:          "issuer",
	RoleDisputeResolver: "dispute_resolver",
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEscrow(s scanner) (*Escrow, error) {
	e := &Escrow{}
	var (
		engagementID   sql.NullString
		description    sql.NullString
		platformFee    sql.NullString
		milestonesJSON []byte
	)

	err := s.Scan(
		&e.ID, &e.ContractID, &engagementID, &e.Title, &description,
		&e.Client, &e.ServiceProvider, &e.PlatformAddress, &platformFee,
		&e.Amount, &e.ReleaseSigner, &e.DisputeResolver, &e.Issuer, &e.Balance,
		&milestonesJSON, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.EngagementID = engagementID.String
	e.Description = description.String
	e.PlatformFee = platformFee.String
	if len(milestonesJSON) > 0 {
		if err := json.Unmarshal(milestonesJSON, &e.Milestones); err != nil {
			return nil, fmt.Errorf("decode milestones: %w", err)
		}
	}

	return e, nil
}

func scanEscrows(rows *sql.Rows) ([]*Escrow, error) {
	result := []*Escrow{}
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
