package server

import (
	"errors"
	"net/http"

	admindomain "github.com/craftbase/meridian/internal/adminops/domain"
	auditdomain "github.com/craftbase/meridian/internal/audit/domain"
	earningsdomain "github.com/craftbase/meridian/internal/earnings/domain"
	settlementdomain "github.com/craftbase/meridian/internal/settlement/domain"
	verificationdomain "github.com/craftbase/meridian/internal/verification/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
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
	ErrForbidden      = errors.New("forbidden")
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

var validationErrors = []error{
	verificationdomain.ErrInvalidLevel,
	verificationdomain.ErrLevelNotEnabled,
	verificationdomain.ErrInvalidScore,
	verificationdomain.ErrMissingComments,
	verificationdomain.ErrMissingRecommendation,
	verificationdomain.ErrRejectRequiresComments,
	admindomain.ErrRejectRequiresNote,
	earningsdomain.ErrInvalidAmount,
	earningsdomain.ErrInvalidPeriod,
	settlementdomain.ErrInvalidPeriod,
	settlementdomain.ErrInvalidOwnerType,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
	ErrInvalidRequest,
}

var conflictErrors = []error{
	verificationdomain.ErrAlreadyClaimed,
	verificationdomain.ErrNotPending,
	verificationdomain.ErrNotAssigned,
	verificationdomain.ErrNotInProgress,
	verificationdomain.ErrNotCompleted,
	verificationdomain.ErrNotAssignee,
	verificationdomain.ErrNotRequester,
	verificationdomain.ErrAlreadySubmitted,
	verificationdomain.ErrExpertNotAssignee,
	verificationdomain.ErrExpertPanelRequired,
	admindomain.ErrNotAssignable,
	settlementdomain.ErrNotPendingStatus,
	settlementdomain.ErrPeriodOverlap,
	settlementdomain.ErrNotProcessingStatus,
	settlementdomain.ErrPayoutBindConflict,
}

var notFoundErrors = []error{
	verificationdomain.ErrVerificationNotFound,
	verificationdomain.ErrExpertReviewNotFound,
	verificationdomain.ErrProductNotFound,
	settlementdomain.ErrSettlementNotFound,
	admindomain.ErrUserNotFound,
	ErrNotFound,
	gorm.ErrRecordNotFound,
}

var forbiddenErrors = []error{
	admindomain.ErrNotAdmin,
	admindomain.ErrCannotReview,
	admindomain.ErrCannotExpertReview,
	ErrForbidden,
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case matchesAny(err, validationErrors):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case matchesAny(err, forbiddenErrors):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: err.Error(),
		}
	case matchesAny(err, conflictErrors):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case matchesAny(err, notFoundErrors):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
