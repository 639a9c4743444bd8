package onramp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/escrow"
	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/metrics"
)

// signatureHeader carries the provider's hex HMAC-SHA256 of the raw body.
const signatureHeader = "X-Onramp-Signature"

// maxCallbackSize bounds the callback body read.
const maxCallbackSize = 64 << 10

// DepositConfirmer completes a pending card deposit.
type DepositConfirmer interface {
	ConfirmFunding(ctx context.Context, contractID, token, confirmedAmount string) (*escrow.Result, error)
}

// Handler receives settlement callbacks from the fiat gateway.
type Handler struct {
	confirmer DepositConfirmer
	secret    []byte
}

// NewHandler creates the callback handler. If secret is empty, signature
// verification is disabled; only do that in demo mode.
func NewHandler(confirmer DepositConfirmer, secret string) *Handler {
	h := &Handler{confirmer: confirmer}
	if secret != "" {
		h.secret = []byte(secret)
	}
	return h
}

// RegisterRoutes sets up the callback route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/onramp/callback", h.Callback)
}

// callbackPayload is the provider's settlement notification.
type callbackPayload struct {
	ContractID            string `json:"contractId"`
	ExternalTransactionID string `json:"externalTransactionId"`
	Status                string `json:"status"`
	BaseCurrencyAmount    string `json:"baseCurrencyAmount"`
}

// Callback handles POST /v1/onramp/callback
func (h *Handler) Callback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, escrow.Result{Success: false, Message: "unreadable body"})
		return
	}

	if !h.verify(body, c.GetHeader(signatureHeader)) {
		metrics.OnrampCallbacksTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusUnauthorized, escrow.Result{Success: false, Message: "invalid signature"})
		return
	}

	var payload callbackPayload
	if err := bindJSON(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, escrow.Result{
			Success: false,
			Message: "contractId, externalTransactionId, and status are required",
		})
		return
	}

	// Anything other than a completed purchase is acknowledged and dropped;
	// the deposit stays pending until the provider reports completion.
	if payload.Status != "completed" {
		c.JSON(http.StatusOK, escrow.Result{Success: true, Message: "ignored"})
		return
	}

	result, err := h.confirmer.ConfirmFunding(
		c.Request.Context(),
		payload.ContractID,
		payload.ExternalTransactionID,
		payload.BaseCurrencyAmount,
	)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, escrow.ErrUnknownDeposit) {
			status = http.StatusNotFound
		}
		c.JSON(status, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// verify checks the HMAC-SHA256 signature of the raw callback body.
func (h *Handler) verify(body []byte, signature string) bool {
	if h.secret == nil {
		return true
	}
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func bindJSON(body []byte, payload *callbackPayload) error {
	if err := json.Unmarshal(body, payload); err != nil {
		return err
	}
	if payload.ContractID == "" || payload.ExternalTransactionID == "" || payload.Status == "" {
		return errors.New("missing required fields")
	}
	return nil
}
