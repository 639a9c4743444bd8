package escrow

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/validation"
)

// participantHeader carries the caller's wallet address. The dapp signs
// transactions client-side, so the address is self-declared here; an
// authenticating gateway in front of this service is expected in
// production deployments.
const participantHeader = "X-Participant-Address"

// Handler provides HTTP endpoints for escrow lifecycle operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new escrow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up escrow routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/escrows", h.InitializeEscrow)
	r.GET("/escrows", h.ListEscrows)
	r.GET("/escrows/resolve-role", h.ResolveRole)
	r.GET("/escrows/:id", h.GetEscrow)
	r.PATCH("/escrows/:id", h.UpdateEscrow)
	r.POST("/escrows/fund", h.FundEscrow)
}

// InitializeEscrow handles POST /v1/escrows
func (h *Handler) InitializeEscrow(c *gin.Context) {
	var payload CreatePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, Result{
			Success: false,
			Message: "invalid request body: " + err.Error(),
		})
		return
	}

	issuer := validation.SanitizeAddress(c.GetHeader(participantHeader))
	if issuer == "" {
		c.JSON(http.StatusBadRequest, Result{
			Success: false,
			Message: participantHeader + " header is required",
		})
		return
	}

	result, err := h.service.InitializeEscrow(c.Request.Context(), payload, issuer)
	if err != nil {
		c.JSON(initializeStatus(err), result)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func initializeStatus(err error) int {
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, ErrLedgerFailure):
		return http.StatusBadGateway
	default:
		// Includes the partial-success case where the contract deployed
		// but the record write failed.
		return http.StatusInternalServerError
	}
}

// GetEscrow handles GET /v1/escrows/:id
func (h *Handler) GetEscrow(c *gin.Context) {
	e, err := h.service.GetEscrow(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrEscrowNotFound) {
			c.JSON(http.StatusNotFound, Result{Success: false, Message: "Escrow not found."})
			return
		}
		c.JSON(http.StatusInternalServerError, Result{Success: false, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, Result{Success: true, Message: "ok", Data: e})
}

// UpdateEscrow handles PATCH /v1/escrows/:id
func (h *Handler) UpdateEscrow(c *gin.Context) {
	var partial UpdatePayload
	if err := c.ShouldBindJSON(&partial); err != nil {
		c.JSON(http.StatusBadRequest, Result{
			Success: false,
			Message: "invalid request body: " + err.Error(),
		})
		return
	}

	result, err := h.service.UpdateEscrow(c.Request.Context(), c.Param("id"), partial)
	if err != nil {
		var verrs validation.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			c.JSON(http.StatusBadRequest, result)
		case errors.Is(err, ErrEscrowNotFound):
			c.JSON(http.StatusNotFound, result)
		default:
			c.JSON(http.StatusInternalServerError, result)
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListEscrows handles GET /v1/escrows?address=0x..&role=client
func (h *Handler) ListEscrows(c *gin.Context) {
	address := validation.SanitizeAddress(c.Query("address"))
	role := c.Query("role")

	if errs := validation.Validate(
		validation.Required("address", address),
		validation.ValidAddress("address", address),
		validation.Required("role", role),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, Result{Success: false, Message: errs.Error(), Data: errs})
		return
	}

	result, err := h.service.ListEscrows(c.Request.Context(), address, role)
	if err != nil {
		if errors.Is(err, ErrUnknownRole) {
			c.JSON(http.StatusBadRequest, result)
			return
		}
		c.JSON(http.StatusInternalServerError, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ResolveRole handles GET /v1/escrows/resolve-role?contractId=..&address=0x..
func (h *Handler) ResolveRole(c *gin.Context) {
	contractID := c.Query("contractId")
	address := validation.SanitizeAddress(c.Query("address"))

	if errs := validation.Validate(
		validation.Required("contractId", contractID),
		validation.Required("address", address),
		validation.ValidAddress("address", address),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, Result{Success: false, Message: errs.Error(), Data: errs})
		return
	}

	result, err := h.service.ResolveRole(c.Request.Context(), contractID, address)
	if err != nil {
		if errors.Is(err, ErrEscrowNotFound) {
			c.JSON(http.StatusNotFound, result)
			return
		}
		c.JSON(http.StatusInternalServerError, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// fundRequest is the wire form of a funding attempt.
type fundRequest struct {
	ContractID    string `json:"contractId" binding:"required"`
	EngagementID  string `json:"engagementId"`
	Amount        string `json:"amount" binding:"required"`
	PaymentMethod string `json:"paymentMethod" binding:"required"`
}

// FundEscrow handles POST /v1/escrows/fund
func (h *Handler) FundEscrow(c *gin.Context) {
	var req fundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Result{
			Success: false,
			Message: "contractId, amount, and paymentMethod are required",
		})
		return
	}

	payer := validation.SanitizeAddress(c.GetHeader(participantHeader))
	if payer == "" {
		c.JSON(http.StatusBadRequest, Result{
			Success: false,
			Message: participantHeader + " header is required",
		})
		return
	}

	funding, err := ParseFundingRequest(req.ContractID, req.EngagementID, req.Amount, req.PaymentMethod)
	if err != nil {
		c.JSON(http.StatusBadRequest, Result{Success: false, Message: err.Error()})
		return
	}

	result, err := h.service.FundEscrow(c.Request.Context(), funding, payer)
	if err != nil {
		c.JSON(fundStatus(err), result)
		return
	}

	if outcome, ok := result.Data.(*FundingOutcome); ok && outcome.Status == FundingPending {
		c.JSON(http.StatusAccepted, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func fundStatus(err error) int {
	switch {
	case errors.Is(err, ErrEscrowNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ErrLedgerFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
