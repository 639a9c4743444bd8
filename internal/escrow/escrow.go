// Package escrow implements milestone-based escrow lifecycle orchestration.
//
// Flow:
//  1. A participant submits an escrow definition → the ledger deploys the
//     contract → only then is the off-chain record written
//  2. Any participant funds the escrow, either directly from a wallet or
//     through a fiat on-ramp gateway
//  3. Milestone approval and release run on-chain through a separate
//     workflow; this service only ever writes milestone flags as false
//
// The ordering invariant throughout: on-chain confirmation always precedes
// the corresponding off-chain write. The store must never contain an escrow
// without a confirmed contract id.
package escrow

import (
	"errors"
	"time"
)

var (
	ErrEscrowNotFound = errors.New("escrow not found")
	ErrInvalidState   = errors.New("escrow has no contract id")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrUnknownRole    = errors.New("unknown role field")
	ErrUnknownDeposit = errors.New("no pending deposit matches the confirmation token")
	ErrLedgerFailure  = errors.New("ledger transaction failed")

	// ErrStoreAfterLedger marks the partial-success condition: the ledger
	// step confirmed but the subsequent store write failed, so an on-chain
	// contract exists with no off-chain record.
	ErrStoreAfterLedger = errors.New("store write failed after ledger confirmation")
)

// Role is one of the six named participant positions on an escrow.
type Role string

const (
	RoleClient          Role = "client"
	RoleServiceProvider Role = "serviceProvider"
	RolePlatformAddress Role = "platformAddress"
	RoleReleaseSigner   Role = "releaseSigner"
	RoleIssuer          Role = "issuer"
	RoleDisputeResolver Role = "disputeResolver"
)

// rolePrecedence is the fixed order used to break ties when one address
// occupies several roles (issuer frequently equals client).
var rolePrecedence = []Role{
	RoleClient,
	RoleServiceProvider,
	RolePlatformAddress,
	RoleReleaseSigner,
	RoleIssuer,
	RoleDisputeResolver,
}

// ValidRole reports whether s names a queryable role field.
func ValidRole(s string) bool {
	switch Role(s) {
	case RoleClient, RoleServiceProvider, RolePlatformAddress,
		RoleReleaseSigner, RoleIssuer, RoleDisputeResolver:
		return true
	}
	return false
}

// Milestone is a unit of deliverable/payment within an escrow. It has no
// identity or lifecycle outside its parent document.
type Milestone struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Flag        bool   `json:"flag"`
}

// Escrow is one agreement instance. ContractID is assigned by the ledger
// and immutable once set; Balance never goes negative.
type Escrow struct {
	ID              string      `json:"id"`
	ContractID      string      `json:"contractId"`
	EngagementID    string      `json:"engagementId,omitempty"`
	Title           string      `json:"title"`
	Description     string      `json:"description,omitempty"`
	Client          string      `json:"client"`
	ServiceProvider string      `json:"serviceProvider"`
	PlatformAddress string      `json:"platformAddress"`
	PlatformFee     string      `json:"platformFee"`
	Amount          string      `json:"amount"`
	ReleaseSigner   string      `json:"releaseSigner"`
	DisputeResolver string      `json:"disputeResolver"`
	Issuer          string      `json:"issuer"`
	Balance         string      `json:"balance"`
	Milestones      []Milestone `json:"milestones"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// RoleAddress returns the address occupying the given role.
func (e *Escrow) RoleAddress(r Role) string {
	switch r {
	case RoleClient:
		return e.Client
	case RoleServiceProvider:
		return e.ServiceProvider
	case RolePlatformAddress:
		return e.PlatformAddress
	case RoleReleaseSigner:
		return e.ReleaseSigner
	case RoleIssuer:
		return e.Issuer
	case RoleDisputeResolver:
		return e.DisputeResolver
	}
	return ""
}

// Participants returns the distinct addresses holding any role.
func (e *Escrow) Participants() []string {
	seen := make(map[string]bool, len(rolePrecedence))
	var out []string
	for _, r := range rolePrecedence {
		addr := e.RoleAddress(r)
		if addr != "" && !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

// RoleQuery is the result of resolving which role an address holds.
// Computed on demand, never stored.
type RoleQuery struct {
	Matched bool `json:"matched"`
	Role    Role `json:"role,omitempty"`
}

// Result is the uniform envelope every public lifecycle operation resolves
// to. Message is suitable for direct display.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}
