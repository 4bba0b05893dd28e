package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/tollgate/internal/apikey/domain"
	authdomain "github.com/smallbiznis/tollgate/internal/auth/domain"
	gatewaydomain "github.com/smallbiznis/tollgate/internal/gateway/domain"
	"github.com/smallbiznis/tollgate/internal/money"
	paymentdomain "github.com/smallbiznis/tollgate/internal/payment/domain"
	providerdomain "github.com/smallbiznis/tollgate/internal/provider/domain"
	"github.com/smallbiznis/tollgate/internal/ratelimit"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"github.com/smallbiznis/tollgate/pkg/db/pagination"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// mapError turns domain errors into a status and a client-safe body. Provider and
// settlement failures share a generic message; the difference lives in the logs.
func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	// Settlement errors also unwrap to their cause; they must match first.
	switch {
	case errors.Is(err, gatewaydomain.ErrSettlement):
		return http.StatusInternalServerError, errorPayload{
			Type:    "settlement_error",
			Message: "generation could not be completed",
		}
	case errors.Is(err, providerdomain.ErrProvider):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_error",
			Message: "generation could not be completed",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, authdomain.ErrUserExists):
		return http.StatusBadRequest, errorPayload{
			Type:    "conflict",
			Message: "username already taken",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrTokenExpired),
		errors.Is(err, authdomain.ErrTokenInvalid),
		errors.Is(err, authdomain.ErrTokenWrongType),
		errors.Is(err, apikeydomain.ErrInvalidKey):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, walletdomain.ErrInsufficientFunds):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_funds",
			Message: "insufficient funds",
		}
	case errors.Is(err, paymentdomain.ErrChargeDeclined):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_declined",
			Message: "payment declined",
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, walletdomain.ErrWalletNotFound),
		errors.Is(err, authdomain.ErrUserNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ratelimit.ErrConcurrentRequest),
		errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "another request is in progress, retry later",
		}
	case errors.Is(err, walletdomain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable, retry later",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds error_type/error_code into the request log line.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= 500:
		return "server", payload.Type
	case status == http.StatusUnauthorized:
		return "auth", payload.Type
	default:
		if len(payload.Errors) > 0 {
			return "client", payload.Errors[0].Code
		}
		return "client", payload.Type
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request", true
	case errors.Is(err, authdomain.ErrInvalidUsername):
		return "invalid_username", true
	case errors.Is(err, authdomain.ErrInvalidPassword):
		return "invalid_password", true
	case errors.Is(err, walletdomain.ErrInvalidAmount),
		errors.Is(err, money.ErrInvalidAmount):
		return "invalid_amount", true
	case errors.Is(err, gatewaydomain.ErrMissingPrompt):
		return "missing_prompt", true
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return "invalid_page_token", true
	case errors.Is(err, apikeydomain.ErrInvalidKeyID):
		return "invalid_key_id", true
	default:
		return "", false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_username":
		return "username"
	case "invalid_password":
		return "password"
	case "invalid_amount":
		return "amount"
	case "missing_prompt":
		return "prompt"
	case "invalid_page_token":
		return "page_token"
	case "invalid_key_id":
		return "key_id"
	default:
		return "request"
	}
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_username":
		return "username is required"
	case "invalid_password":
		return "password is required"
	case "invalid_amount":
		return "amount must be a positive number with at most 6 decimal places"
	case "missing_prompt":
		return "prompt is required"
	case "invalid_page_token":
		return "page_token is invalid"
	case "invalid_key_id":
		return "key_id is invalid"
	default:
		return "invalid request"
	}
}
