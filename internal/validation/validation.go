// Package validation provides input validation for the escrow API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxTitleLength is the maximum length for the escrow title
const MaxTitleLength = 200

// addressRegex validates ledger account addresses
var addressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAddress checks if a string is a valid ledger address
func IsValidAddress(addr string) bool {
	return addressRegex.MatchString(addr)
}

// SanitizeAddress normalizes a ledger address
func SanitizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.ToLower(addr)

	if !strings.HasPrefix(addr, "0x") && len(addr) == 40 {
		addr = "0x" + addr
	}

	return addr
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs the given validators and collects their errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAddress checks if a field is a valid ledger address
func ValidAddress(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidAddress(value) {
			return &ValidationError{Field: field, Message: "must be a valid ledger address (0x...)"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// MaxAmountDecimals is the precision amounts are stored with; more
// fractional digits would be silently lost, so they are rejected.
const MaxAmountDecimals = 6

// amountFormatError checks decimal syntax: digits with at most one
// interior decimal point and at most MaxAmountDecimals fractional
// digits. Returns the failure message, or "" when well-formed.
func amountFormatError(value string) string {
	dot := -1
	for i, c := range value {
		if c == '.' {
			if dot >= 0 || i == 0 || i == len(value)-1 {
				return "invalid amount format"
			}
			dot = i
			continue
		}
		if c < '0' || c > '9' {
			return "invalid amount format"
		}
	}
	if dot >= 0 && len(value)-dot-1 > MaxAmountDecimals {
		return "exceeds 6 decimal places"
	}
	return ""
}

// hasNonZeroDigit reports whether value contains a digit other than zero.
func hasNonZeroDigit(value string) bool {
	return strings.ContainsAny(value, "123456789")
}

// ValidAmount checks if a value is a positive decimal amount
func ValidAmount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if msg := amountFormatError(value); msg != "" {
			return &ValidationError{Field: field, Message: msg}
		}
		if !hasNonZeroDigit(value) {
			return &ValidationError{Field: field, Message: "amount must be greater than zero"}
		}
		return nil
	}
}

// ValidNonNegativeAmount checks if a value is a well-formed decimal
// amount, zero included. Fee and balance fields use this: a free
// platform or an unfunded escrow are legitimate states.
func ValidNonNegativeAmount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if msg := amountFormatError(value); msg != "" {
			return &ValidationError{Field: field, Message: msg}
		}
		return nil
	}
}

// AddressParamMiddleware validates the :address URL parameter on routes that use it.
func AddressParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.Param("address")
		if addr != "" && !IsValidAddress(addr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "address must be a valid ledger address (0x + 40 hex chars)",
			})
			return
		}
		c.Next()
	}
}
