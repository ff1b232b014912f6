package common

import (
	"net/http"
	"strconv"

	"github.com/tendant/qr-table-ordering/internal/httputil"
	"github.com/tendant/qr-table-ordering/pkg/ratelimit"
	"github.com/tendant/qr-table-ordering/pkg/tablesession"
)

// ValidationStatus maps a failed validation to its HTTP status.
func ValidationStatus(code tablesession.ValidationCode) int {
	switch code {
	case tablesession.CodeSessionIDRequired:
		return http.StatusBadRequest
	case tablesession.CodeSessionNotFound:
		return http.StatusNotFound
	case tablesession.CodeSessionExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// WriteValidationFailure writes a failed session validation.
func WriteValidationFailure(w http.ResponseWriter, result tablesession.ValidationResult) {
	httputil.ErrorCode(w, ValidationStatus(result.Code), string(result.Code), result.Message)
}

// RateLimitedResponse is the body of a 429 from the order limiter.
type RateLimitedResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter *int   `json:"retryAfter"`
}

// WriteRateLimited writes an order limiter denial, with Retry-After when the
// limiter computed a wait.
func WriteRateLimited(w http.ResponseWriter, result ratelimit.Result) {
	if result.RetryAfter != nil {
		w.Header().Set("Retry-After", strconv.Itoa(*result.RetryAfter))
	}
	httputil.JSON(w, http.StatusTooManyRequests, RateLimitedResponse{
		Error:      result.Message,
		Code:       string(result.Reason),
		RetryAfter: result.RetryAfter,
	})
}
