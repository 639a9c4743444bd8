package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/idgen"
	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/money"
	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/syncutil"
	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/validation"
)

// PaymentMethod is the tagged union of funding paths. Exactly two
// implementations exist; the router dispatches with an exhaustive type
// switch rather than a string tag.
type PaymentMethod interface {
	methodName() string
}

// WalletPayment funds the escrow directly through the ledger pipeline.
type WalletPayment struct {
	Amount string
}

func (WalletPayment) methodName() string { return "wallet" }

// CardPayment funds the escrow through the fiat on-ramp gateway. The
// router's responsibility ends at producing the redirect; completion
// arrives later through ConfirmDeposit.
type CardPayment struct {
	Amount string
}

func (CardPayment) methodName() string { return "card" }

// FundingRequest is a transient value object: built from form input,
// consumed once by the router, discarded.
type FundingRequest struct {
	ContractID   string
	EngagementID string
	Method       PaymentMethod
}

// ParseFundingRequest validates raw form input and builds a FundingRequest.
func ParseFundingRequest(contractID, engagementID, amount, method string) (FundingRequest, error) {
	if !money.IsPositive(amount) {
		return FundingRequest{}, fmt.Errorf("%w: amount must be a positive number", ErrInvalidAmount)
	}

	req := FundingRequest{ContractID: contractID, EngagementID: engagementID}
	switch method {
	case "wallet":
		req.Method = WalletPayment{Amount: amount}
	case "card":
		req.Method = CardPayment{Amount: amount}
	default:
		return FundingRequest{}, validation.ValidationErrors{{
			Field:   "paymentMethod",
			Message: "must be one of: wallet, card",
		}}
	}
	return req, nil
}

// Amount returns the requested funding amount regardless of path.
func (r FundingRequest) Amount() string {
	switch m := r.Method.(type) {
	case WalletPayment:
		return m.Amount
	case CardPayment:
		return m.Amount
	}
	return ""
}

// FundingStatus is the per-attempt state: an attempt moves from in-flight
// to exactly one of succeeded, pending (card redirect issued) or failed.
type FundingStatus string

const (
	FundingSucceeded FundingStatus = "succeeded"
	FundingPending   FundingStatus = "pending"
	FundingFailed    FundingStatus = "failed"
)

// FundingOutcome is the router's answer for one funding attempt.
type FundingOutcome struct {
	Status      FundingStatus `json:"status"`
	Balance     string        `json:"balance,omitempty"`
	RedirectURL string        `json:"redirectUrl,omitempty"`
	Token       string        `json:"token,omitempty"`
}

// FundingLedger is the slice of the ledger client the router needs.
type FundingLedger interface {
	SubmitFunding(ctx context.Context, contractID, signerAddr, amount string) (*TxOutcome, error)
}

// TxOutcome mirrors the ledger's verdict without importing the ledger
// package (the router only cares about acceptance and the display message).
type TxOutcome struct {
	Accepted bool
	Message  string
}

// CheckoutBuilder constructs the fiat gateway redirect URL.
type CheckoutBuilder interface {
	CheckoutURL(contractID, engagementID, amount, token string) string
}

// ListRefresher pushes an escrow-list refresh to the given participants.
type ListRefresher interface {
	RefreshEscrowList(addresses ...string)
}

// pendingDeposit is the transient funding-in-progress state for a card
// payment awaiting the gateway callback.
type pendingDeposit struct {
	ContractID   string
	EngagementID string
	Amount       string
	CreatedAt    time.Time
}

// Router drives one funding attempt to completion or failure. Wallet
// attempts for the same contract are serialized in-process; cross-process
// races remain last-writer-wins on balance.
type Router struct {
	ledger    FundingLedger
	repo      *Repository
	checkout  CheckoutBuilder
	refresher ListRefresher
	logger    *slog.Logger

	locks *syncutil.KeyedMutex // serializes wallet funding per contract

	mu      sync.Mutex
	pending map[string]pendingDeposit // confirmation token -> deposit
}

// NewRouter creates a funding router.
func NewRouter(l FundingLedger, repo *Repository, checkout CheckoutBuilder, refresher ListRefresher, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		ledger:    l,
		repo:      repo,
		checkout:  checkout,
		refresher: refresher,
		logger:    logger,
		locks:     syncutil.NewKeyedMutex(),
		pending:   make(map[string]pendingDeposit),
	}
}

// Fund routes the request down its payment path.
func (r *Router) Fund(ctx context.Context, req FundingRequest, payerAddr string) (*FundingOutcome, error) {
	// Precondition, checked before any network call: an escrow that was
	// never initialized on-chain cannot be funded.
	if req.ContractID == "" {
		return nil, ErrInvalidState
	}

	switch m := req.Method.(type) {
	case WalletPayment:
		return r.fundByWallet(ctx, req, m, payerAddr)
	case CardPayment:
		return r.fundByCard(ctx, req, m)
	default:
		return nil, fmt.Errorf("unsupported payment method %T", req.Method)
	}
}

func (r *Router) fundByWallet(ctx context.Context, req FundingRequest, m WalletPayment, payerAddr string) (*FundingOutcome, error) {
	unlock, err := r.locks.Lock(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result, err := r.ledger.SubmitFunding(ctx, req.ContractID, payerAddr, m.Amount)
	if err != nil {
		return nil, err
	}
	if !result.Accepted {
		msg := result.Message
		if msg == "" {
			msg = "ledger rejected the funding transaction"
		}
		return nil, fmt.Errorf("%w: %s", ErrLedgerFailure, msg)
	}

	// Ledger confirmed; now reflect it off-chain.
	outcome, err := r.applyDeposit(ctx, req.ContractID, m.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: funds are on-chain for contract %s: %v", ErrStoreAfterLedger, req.ContractID, err)
	}
	return outcome, nil
}

func (r *Router) fundByCard(_ context.Context, req FundingRequest, m CardPayment) (*FundingOutcome, error) {
	token := idgen.WithPrefix("dep_")

	r.mu.Lock()
	r.pending[token] = pendingDeposit{
		ContractID:   req.ContractID,
		EngagementID: req.EngagementID,
		Amount:       m.Amount,
		CreatedAt:    time.Now(),
	}
	r.mu.Unlock()

	url := r.checkout.CheckoutURL(req.ContractID, req.EngagementID, m.Amount, token)

	// Fire and forget: there is no synchronous success signal. If the user
	// abandons the gateway, no callback ever arrives and the deposit stays
	// pending.
	return &FundingOutcome{
		Status:      FundingPending,
		RedirectURL: url,
		Token:       token,
	}, nil
}

// ConfirmDeposit completes a card-path funding after the gateway callback.
// The pending record's amount is authoritative unless the gateway reports
// a different confirmed amount.
func (r *Router) ConfirmDeposit(ctx context.Context, contractID, token, confirmedAmount string) (*FundingOutcome, error) {
	r.mu.Lock()
	dep, ok := r.pending[token]
	if ok && dep.ContractID == contractID {
		delete(r.pending, token)
	}
	r.mu.Unlock()

	if !ok || dep.ContractID != contractID {
		return nil, ErrUnknownDeposit
	}

	amount := dep.Amount
	if confirmedAmount != "" && money.IsPositive(confirmedAmount) {
		amount = confirmedAmount
	}

	return r.applyDeposit(ctx, contractID, amount)
}

// PendingDeposits reports the number of card payments awaiting a callback.
func (r *Router) PendingDeposits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// applyDeposit raises the escrow balance, clears transient state, and
// pushes a list refresh to the participants.
func (r *Router) applyDeposit(ctx context.Context, contractID, amount string) (*FundingOutcome, error) {
	e, err := r.repo.FindByContractID(ctx, contractID)
	if err != nil {
		return nil, err
	}

	newBalance, ok := money.Add(e.Balance, amount)
	if !ok {
		return nil, fmt.Errorf("%w: cannot add %q to balance %q", ErrInvalidAmount, amount, e.Balance)
	}

	updated, err := r.repo.Update(ctx, e.ID, UpdatePayload{Balance: &newBalance})
	if err != nil {
		return nil, err
	}

	if r.refresher != nil {
		r.refresher.RefreshEscrowList(updated.Participants()...)
	}

	r.logger.Info("escrow funded",
		"contract_id", contractID,
		"amount", amount,
		"balance", updated.Balance,
	)

	return &FundingOutcome{
		Status:  FundingSucceeded,
		Balance: updated.Balance,
	}, nil
}
