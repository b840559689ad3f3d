package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
	"gorm.io/gorm"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes for failures that do not carry an engine error kind
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
)

// statusForKind maps the engine's stable error kinds to HTTP statuses.
// The kind itself is surfaced as the error code so clients can switch on
// it without parsing messages.
func statusForKind(kind types.ErrorKind) int {
	switch kind {
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrDuplicateID:
		return http.StatusConflict
	case types.ErrEntityBusy, types.ErrAlreadyMatched:
		return http.StatusConflict
	case types.ErrNotOwner:
		return http.StatusForbidden
	case types.ErrInsufficientCollateral, types.ErrInsufficientPayment,
		types.ErrIllegalTransition, types.ErrNotExpired,
		types.ErrInvalidTerms, types.ErrDivisionByZero:
		return http.StatusUnprocessableEntity
	case types.ErrStaleOracleData, types.ErrOracleUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrLedgerRejected, types.ErrNetworkError:
		return http.StatusBadGateway
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Handle processes the error and returns appropriate response
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	var engineErr *types.Error
	switch {
	case errors.As(err, &engineErr):
		c.JSON(statusForKind(engineErr.Kind), Response{
			Success: false,
			Error: &Error{
				Code:    string(engineErr.Kind),
				Message: engineErr.Reason,
			},
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "Resource already exists")
	default:
		InternalError(c, "An unexpected error occurred")
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeNotFound,
			Message: message,
		},
	})
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeBadRequest,
			Message: message,
		},
	})
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeUnauthorized,
			Message: message,
		},
	})
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeForbidden,
			Message: message,
		},
	})
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeInternalError,
			Message: message,
		},
	})
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeDuplicateResource,
			Message: message,
		},
	})
}
