package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/metrics"
	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/money"
	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/traces"
	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/validation"
)

// LedgerClient abstracts the on-chain transaction pipeline so escrow
// doesn't import the ledger package.
type LedgerClient interface {
	// InitializeEscrow deploys the escrow contract and returns its
	// ledger-assigned contract id.
	InitializeEscrow(ctx context.Context, payload CreatePayload, issuer string) (string, error)

	// SubmitFunding moves funds into an existing contract. The outcome
	// carries the ledger's verdict; a non-accepted outcome is not an error.
	SubmitFunding(ctx context.Context, contractID, signerAddr, amount string) (*TxOutcome, error)
}

// Service orchestrates the escrow lifecycle: initialize, update, list,
// fund, confirm funding, and role resolution. All dependencies are
// injected; there is no ambient global state.
type Service struct {
	repo   *Repository
	ledger LedgerClient
	router *Router
	logger *slog.Logger
}

// NewService creates the lifecycle service.
func NewService(repo *Repository, l LedgerClient, checkout CheckoutBuilder, refresher ListRefresher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		ledger: l,
		router: NewRouter(l, repo, checkout, refresher, logger),
		logger: logger,
	}
}

// InitializeEscrow deploys the escrow on-chain and records it off-chain.
// The repository write happens only after the ledger confirms; a ledger
// failure leaves no off-chain trace.
func (s *Service) InitializeEscrow(ctx context.Context, payload CreatePayload, issuer string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.initialize",
		traces.ParticipantAddr(issuer),
		traces.Amount(payload.Amount),
	)
	defer span.End()

	if errs := validateCreatePayload(payload, issuer); len(errs) > 0 {
		return &Result{Success: false, Message: errs.Error()}, errs
	}

	// Every milestone starts unreleased regardless of what the form sent.
	milestones := make([]Milestone, len(payload.Milestones))
	for i, m := range payload.Milestones {
		milestones[i] = Milestone{Description: m.Description, Amount: m.Amount, Flag: false}
	}
	payload.Milestones = milestones

	contractID, err := s.ledger.InitializeEscrow(ctx, payload, issuer)
	if err != nil {
		metrics.EscrowsInitializedTotal.WithLabelValues("ledger_failure").Inc()
		return &Result{Success: false, Message: displayMessage(err, "error initializing escrow")},
			fmt.Errorf("%w: %v", ErrLedgerFailure, err)
	}

	e, err := s.repo.Create(ctx, payload, issuer, contractID)
	if err != nil {
		// Partial success: the contract exists on-chain but the record
		// write failed. Surfaced distinctly so it is never mistaken for
		// a total failure.
		metrics.EscrowsInitializedTotal.WithLabelValues("store_failure").Inc()
		s.logger.Error("escrow deployed but record write failed",
			"contract_id", contractID, "issuer", issuer, "error", err)
		return &Result{
			Success: false,
			Message: fmt.Sprintf("escrow was deployed on-chain (contract %s) but saving the record failed: %v", contractID, err),
			Data:    map[string]string{"contractId": contractID},
		}, fmt.Errorf("%w: contract %s", ErrStoreAfterLedger, contractID)
	}

	metrics.EscrowsInitializedTotal.WithLabelValues("success").Inc()
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Escrow %s created successfully", e.Title),
		Data:    e,
	}, nil
}

// UpdateEscrow validates the provided fields and merges them into the
// stored record. Absent fields are left untouched.
func (s *Service) UpdateEscrow(ctx context.Context, escrowID string, partial UpdatePayload) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.update", traces.EscrowID(escrowID))
	defer span.End()

	if errs := validateUpdatePayload(partial); len(errs) > 0 {
		return &Result{Success: false, Message: errs.Error()}, errs
	}

	e, err := s.repo.Update(ctx, escrowID, partial)
	if err != nil {
		if errors.Is(err, ErrEscrowNotFound) {
			return &Result{Success: false, Message: "Escrow not found."}, err
		}
		return &Result{Success: false, Message: displayMessage(err, "an error occurred during the update")}, err
	}

	return &Result{
		Success: true,
		Message: fmt.Sprintf("Escrow with ID %s updated successfully.", escrowID),
		Data:    e,
	}, nil
}

// ListEscrows returns every escrow where the given role field equals the
// address. A successful read with no matches is still a success.
func (s *Service) ListEscrows(ctx context.Context, address string, roleField string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.list", traces.ParticipantAddr(address))
	defer span.End()

	if !ValidRole(roleField) {
		return &Result{Success: false, Message: fmt.Sprintf("unknown role field: %s", roleField)},
			fmt.Errorf("%w: %s", ErrUnknownRole, roleField)
	}

	escrows, err := s.repo.ListByRole(ctx, address, Role(roleField))
	if err != nil {
		return &Result{Success: false, Message: displayMessage(err, "an error occurred")}, err
	}

	return &Result{Success: true, Message: "ok", Data: escrows}, nil
}

// ResolveRole determines which role, if any, the address occupies on the
// escrow with the given contract id. Ties follow the fixed precedence
// order since one address may hold several roles.
func (s *Service) ResolveRole(ctx context.Context, contractID, address string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.resolve_role",
		traces.ContractID(contractID),
		traces.ParticipantAddr(address),
	)
	defer span.End()

	e, err := s.repo.FindByContractID(ctx, contractID)
	if err != nil {
		if errors.Is(err, ErrEscrowNotFound) {
			return &Result{
				Success: false,
				Message: fmt.Sprintf("No escrow found with contractId: %s", contractID),
			}, err
		}
		return &Result{Success: false, Message: displayMessage(err, "an error occurred during the role determination")}, err
	}

	for _, role := range rolePrecedence {
		if strings.EqualFold(e.RoleAddress(role), address) {
			return &Result{
				Success: true,
				Message: fmt.Sprintf("User is identified as %s in the escrow.", role),
				Data:    RoleQuery{Matched: true, Role: role},
			}, nil
		}
	}

	return &Result{
		Success: true,
		Message: fmt.Sprintf("No role found for the provided address in escrow with contractId: %s", contractID),
		Data:    RoleQuery{Matched: false},
	}, nil
}

// FundEscrow routes a funding request down its payment path.
func (s *Service) FundEscrow(ctx context.Context, req FundingRequest, payerAddr string) (*Result, error) {
	method := "unknown"
	if req.Method != nil {
		method = req.Method.methodName()
	}

	ctx, span := traces.StartSpan(ctx, "escrow.fund",
		traces.ContractID(req.ContractID),
		traces.Amount(req.Amount()),
		traces.PaymentMethod(method),
	)
	defer span.End()

	outcome, err := s.router.Fund(ctx, req, payerAddr)
	if err != nil {
		metrics.FundingAttemptsTotal.WithLabelValues(method, "failure").Inc()
		if errors.Is(err, ErrInvalidState) {
			return &Result{Success: false, Message: "escrow is missing an on-chain contract id"}, err
		}
		return &Result{Success: false, Message: displayMessage(err, "an error occurred while funding the escrow")}, err
	}

	metrics.FundingAttemptsTotal.WithLabelValues(method, string(outcome.Status)).Inc()

	switch outcome.Status {
	case FundingPending:
		return &Result{
			Success: true,
			Message: "Redirect to the payment gateway to complete funding",
			Data:    outcome,
		}, nil
	default:
		return &Result{
			Success: true,
			Message: "Escrow funded successfully",
			Data:    outcome,
		}, nil
	}
}

// ConfirmFunding completes a card-path funding attempt after the fiat
// gateway confirms payment out-of-band.
func (s *Service) ConfirmFunding(ctx context.Context, contractID, token, confirmedAmount string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.confirm_funding", traces.ContractID(contractID))
	defer span.End()

	outcome, err := s.router.ConfirmDeposit(ctx, contractID, token, confirmedAmount)
	if err != nil {
		metrics.OnrampCallbacksTotal.WithLabelValues("failure").Inc()
		if errors.Is(err, ErrUnknownDeposit) {
			return &Result{Success: false, Message: "no pending deposit matches this confirmation"}, err
		}
		return &Result{Success: false, Message: displayMessage(err, "failed to process payment")}, err
	}

	metrics.OnrampCallbacksTotal.WithLabelValues("success").Inc()
	return &Result{
		Success: true,
		Message: "Payment processed successfully",
		Data:    outcome,
	}, nil
}

// GetEscrow returns a single escrow by its store-assigned id.
func (s *Service) GetEscrow(ctx context.Context, id string) (*Escrow, error) {
	return s.repo.Get(ctx, id)
}

// Router exposes the funding router for collaborators that need pending
// deposit introspection.
func (s *Service) Router() *Router {
	return s.router
}

// validateCreatePayload checks addresses, amounts, and the invariant that
// the escrow amount equals the sum of milestone amounts.
func validateCreatePayload(p CreatePayload, issuer string) validation.ValidationErrors {
	errs := validation.Validate(
		validation.Required("title", p.Title),
		validation.MaxLength("title", p.Title, validation.MaxTitleLength),
		validation.Required("client", p.Client),
		validation.ValidAddress("client", p.Client),
		validation.Required("serviceProvider", p.ServiceProvider),
		validation.ValidAddress("serviceProvider", p.ServiceProvider),
		validation.Required("platformAddress", p.PlatformAddress),
		validation.ValidAddress("platformAddress", p.PlatformAddress),
		validation.Required("releaseSigner", p.ReleaseSigner),
		validation.ValidAddress("releaseSigner", p.ReleaseSigner),
		validation.Required("disputeResolver", p.DisputeResolver),
		validation.ValidAddress("disputeResolver", p.DisputeResolver),
		validation.Required("issuer", issuer),
		validation.ValidAddress("issuer", issuer),
		validation.Required("amount", p.Amount),
		validation.ValidAmount("amount", p.Amount),
		validation.ValidNonNegativeAmount("platformFee", p.PlatformFee),
	)

	if len(p.Milestones) == 0 {
		errs = append(errs, validation.ValidationError{Field: "milestones", Message: "at least one milestone is required"})
		return errs
	}

	total := "0"
	for i, m := range p.Milestones {
		if !money.IsPositive(m.Amount) {
			errs = append(errs, validation.ValidationError{
				Field:   fmt.Sprintf("milestones[%d].amount", i),
				Message: "must be a positive number",
			})
			continue
		}
		total, _ = money.Add(total, m.Amount)
	}

	if len(errs) == 0 && !money.Equal(total, p.Amount) {
		errs = append(errs, validation.ValidationError{
			Field:   "amount",
			Message: "must equal the sum of milestone amounts",
		})
	}

	return errs
}

// validateUpdatePayload checks only the fields the caller supplied. A
// nil field means "leave unchanged" and is never validated. The store
// holds whatever passes here, so malformed or negative values must not
// get through.
func validateUpdatePayload(p UpdatePayload) validation.ValidationErrors {
	var validators []func() *validation.ValidationError

	if p.Title != nil {
		validators = append(validators,
			validation.Required("title", *p.Title),
			validation.MaxLength("title", *p.Title, validation.MaxTitleLength),
		)
	}

	roleFields := []struct {
		name  string
		value *string
	}{
		{"client", p.Client},
		{"serviceProvider", p.ServiceProvider},
		{"platformAddress", p.PlatformAddress},
		{"releaseSigner", p.ReleaseSigner},
		{"disputeResolver", p.DisputeResolver},
	}
	for _, f := range roleFields {
		if f.value != nil {
			validators = append(validators,
				validation.Required(f.name, *f.value),
				validation.ValidAddress(f.name, *f.value),
			)
		}
	}

	if p.Amount != nil {
		validators = append(validators,
			validation.Required("amount", *p.Amount),
			validation.ValidAmount("amount", *p.Amount),
		)
	}
	if p.PlatformFee != nil {
		validators = append(validators,
			validation.ValidNonNegativeAmount("platformFee", *p.PlatformFee),
		)
	}
	if p.Balance != nil {
		validators = append(validators,
			validation.ValidNonNegativeAmount("balance", *p.Balance),
		)
	}

	errs := validation.Validate(validators...)

	for i, m := range p.Milestones {
		if !money.IsPositive(m.Amount) {
			errs = append(errs, validation.ValidationError{
				Field:   fmt.Sprintf("milestones[%d].amount", i),
				Message: "must be a positive number",
			})
		}
	}

	return errs
}

// displayMessage prefers the provider's message when available, else a
// generic one.
func displayMessage(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
