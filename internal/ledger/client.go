// Package ledger drives escrow transactions through the on-chain pipeline.
//
// Every operation runs the same three steps against the transaction
// service: build an unsigned transaction, obtain an external signature,
// broadcast the signed result and wait for confirmation. Failure at any
// step aborts the whole operation; no partial on-chain state is assumed.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/circuitbreaker"
	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/metrics"
	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/retry"
	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/signer"
)

// Step identifies which stage of the transaction pipeline failed.
type Step string

const (
	StepBuild     Step = "build"
	StepSign      Step = "sign"
	StepBroadcast Step = "broadcast"
)

// Error is a ledger pipeline failure tagged with the step that failed.
// Message is suitable for direct display.
type Error struct {
	Step    Step
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ledger: %s failed: %s", e.Step, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Endpoint paths on the transaction service.
const (
	deployPath    = "/deployer/invoke-deployer-contract"
	fundPath      = "/escrow/fund-escrow"
	broadcastPath = "/helper/send-transaction"
)

// The build step has no on-chain effect, so transient failures are
// retried. Broadcast is never retried: an ambiguous failure there could
// mean the transaction already landed.
const (
	buildAttempts  = 3
	buildBaseDelay = 200 * time.Millisecond
)

// MilestonePayload is one milestone inside an initialization payload.
type MilestonePayload struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Flag        bool   `json:"flag"`
}

// InitializePayload is the structured escrow-initialization request sent
// to the transaction-build service.
type InitializePayload struct {
	Title           string             `json:"title"`
	EngagementID    string             `json:"engagementId"`
	Description     string             `json:"description,omitempty"`
	Client          string             `json:"client"`
	ServiceProvider string             `json:"serviceProvider"`
	PlatformAddress string             `json:"platformAddress"`
	PlatformFee     string             `json:"platformFee"`
	Amount          string             `json:"amount"`
	ReleaseSigner   string             `json:"releaseSigner"`
	DisputeResolver string             `json:"disputeResolver"`
	Issuer          string             `json:"issuer"`
	Milestones      []MilestonePayload `json:"milestones"`
}

// TxResult is the ledger outcome of a broadcast transaction.
type TxResult struct {
	Status  string
	Code    int
	Message string
	Data    json.RawMessage
}

// Successful reports whether the ledger accepted the transaction: either an
// explicit success status or a creation-style success code.
func (r *TxResult) Successful() bool {
	return r != nil && (strings.EqualFold(r.Status, "SUCCESS") || r.Code == http.StatusCreated)
}

// ContractID extracts the contract identifier from the result payload,
// if the ledger returned one.
func (r *TxResult) ContractID() string {
	if r == nil || len(r.Data) == 0 {
		return ""
	}
	var data struct {
		ContractID string `json:"contractId"`
	}
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return ""
	}
	return data.ContractID
}

// Client talks to the transaction-build/broadcast service and a signing
// provider. It never persists anything; callers translate outcomes into
// repository writes.
type Client struct {
	httpClient *http.Client
	baseURL    string
	signer     signer.Signer
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a ledger client for the given transaction service.
func New(baseURL string, sig signer.Signer, opts ...Option) *Client {
	c := &Client{
		// No overall timeout: the signature step may involve user
		// interaction with arbitrary delay. Callers cancel via ctx.
		httpClient: &http.Client{Timeout: 0},
		baseURL:    strings.TrimRight(baseURL, "/"),
		signer:     sig,
		breaker:    circuitbreaker.New(5, 30*time.Second),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InitializeEscrow deploys a new escrow contract and returns its
// ledger-assigned contract ID.
func (c *Client) InitializeEscrow(ctx context.Context, payload InitializePayload) (string, error) {
	result, err := c.run(ctx, deployPath, payload, true)
	if err != nil {
		return "", err
	}

	if !result.Successful() {
		return "", c.stepError(StepBroadcast, broadcastMessage(result), nil)
	}

	contractID := result.ContractID()
	if contractID == "" {
		return "", c.stepError(StepBroadcast, "ledger confirmed the transaction but returned no contract id", nil)
	}

	return contractID, nil
}

// fundingPayload is the structured funding request sent to the build service.
type fundingPayload struct {
	ContractID string `json:"contractId"`
	Signer     string `json:"signer"`
	Amount     string `json:"amount"`
}

// SubmitFunding moves funds into an existing escrow contract. The returned
// TxResult carries the ledger's verdict; callers must check Successful().
func (c *Client) SubmitFunding(ctx context.Context, contractID, signerAddr, amount string) (*TxResult, error) {
	payload := fundingPayload{
		ContractID: contractID,
		Signer:     signerAddr,
		Amount:     amount,
	}
	return c.run(ctx, fundPath, payload, false)
}

// run executes the build -> sign -> broadcast pipeline for one operation.
func (c *Client) run(ctx context.Context, buildPath string, payload any, returnValue bool) (*TxResult, error) {
	// Step 1: build the unsigned transaction.
	if !c.breaker.Allow(buildPath) {
		return nil, c.stepError(StepBuild, "transaction service temporarily unavailable", nil)
	}
	var build struct {
		UnsignedTransaction string `json:"unsignedTransaction"`
	}
	err := retry.Do(ctx, buildAttempts, buildBaseDelay, func() error {
		return c.postJSON(ctx, buildPath, payload, &build)
	})
	if err != nil {
		c.breaker.RecordFailure(buildPath)
		return nil, c.stepError(StepBuild, "transaction service unavailable or rejected the payload", err)
	}
	c.breaker.RecordSuccess(buildPath)
	if build.UnsignedTransaction == "" {
		return nil, c.stepError(StepBuild, "transaction service returned no unsigned transaction", nil)
	}

	// Step 2: request the external signature. May block on user
	// interaction; ctx is the only way out.
	signedTx, err := c.signer.SignTransaction(ctx, build.UnsignedTransaction)
	if err != nil {
		if errors.Is(err, signer.ErrRejected) {
			return nil, c.stepError(StepSign, "transaction rejected by signer", err)
		}
		return nil, c.stepError(StepSign, "signing failed", err)
	}

	// Step 3: broadcast and await confirmation. Not retried: an
	// ambiguous failure could mean the transaction already landed.
	if !c.breaker.Allow(broadcastPath) {
		return nil, c.stepError(StepBroadcast, "transaction service temporarily unavailable", nil)
	}
	broadcast := struct {
		SignedTx              string `json:"signedTx"`
		ReturnValueIsRequired bool   `json:"returnValueIsRequired"`
	}{SignedTx: signedTx, ReturnValueIsRequired: returnValue}

	var resp struct {
		Status  txStatus        `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := c.postJSON(ctx, broadcastPath, broadcast, &resp); err != nil {
		c.breaker.RecordFailure(broadcastPath)
		return nil, c.stepError(StepBroadcast, "broadcast rejected", err)
	}
	c.breaker.RecordSuccess(broadcastPath)

	return &TxResult{
		Status:  resp.Status.Text,
		Code:    resp.Status.Code,
		Message: resp.Message,
		Data:    resp.Data,
	}, nil
}

func (c *Client) stepError(step Step, message string, err error) *Error {
	metrics.LedgerStepFailuresTotal.WithLabelValues(string(step)).Inc()
	c.logger.Warn("ledger pipeline failure", "step", step, "error", err)
	return &Error{Step: step, Message: message, Err: err}
}

func broadcastMessage(r *TxResult) string {
	if r.Message != "" {
		return r.Message
	}
	if r.Status != "" {
		return "ledger returned status " + r.Status
	}
	return fmt.Sprintf("ledger returned status code %d", r.Code)
}

// postJSON sends a JSON POST and decodes the JSON response into out.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Message string `json:"message"`
		}
		err := fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			err = fmt.Errorf("%s: %s", path, apiErr.Message)
		}
		// Client-side rejections won't heal on retry.
		if resp.StatusCode < http.StatusInternalServerError {
			return retry.Permanent(err)
		}
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// txStatus accepts both string statuses ("SUCCESS") and creation-style
// numeric codes (201) from the broadcast endpoint.
type txStatus struct {
	Text string
	Code int
}

func (s *txStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &s.Text)
	}
	return json.Unmarshal(b, &s.Code)
}
