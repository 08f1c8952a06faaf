package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	assetdomain "github.com/smallbiznis/warrantyhub/internal/asset/domain"
	"github.com/smallbiznis/warrantyhub/internal/auth/token"
	"github.com/smallbiznis/warrantyhub/internal/authorization"
	"github.com/smallbiznis/warrantyhub/internal/coverage"
	featuredomain "github.com/smallbiznis/warrantyhub/internal/feature/domain"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	plandomain "github.com/smallbiznis/warrantyhub/internal/plan/domain"
	signupdomain "github.com/smallbiznis/warrantyhub/internal/signup/domain"
	usagedomain "github.com/smallbiznis/warrantyhub/internal/usage/domain"
	"github.com/smallbiznis/warrantyhub/pkg/db/pagination"
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
	Kind    string            `json:"kind,omitempty"`
	Current *int64            `json:"current,omitempty"`
	Limit   *int64            `json:"limit,omitempty"`
	Flag    string            `json:"flag,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrServiceUnavailable = errors.New("service_unavailable")
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

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var limitErr *featuredomain.LimitError
	if errors.As(err, &limitErr) {
		current, limit := limitErr.Current, limitErr.Limit
		return http.StatusPaymentRequired, errorPayload{
			Type:    "limit_exceeded",
			Message: limitErr.Message(),
			Kind:    limitErr.Kind,
			Current: &current,
			Limit:   &limit,
		}
	}

	var featureErr *featuredomain.FeatureError
	if errors.As(err, &featureErr) {
		return http.StatusForbidden, errorPayload{
			Type:    "feature_disabled",
			Message: "this feature is not available on your plan",
			Flag:    featureErr.Flag,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
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
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, signupdomain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, featuredomain.ErrFeatureDisabled),
		errors.Is(err, signupdomain.ErrInactiveOrg):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, featuredomain.ErrLimitExceeded):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "limit_exceeded",
			Message: "plan limit reached",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger with the mapped error type
// and the raw error code.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if payload.Type != "internal_error" {
		code = err.Error()
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, coverage.ErrInvalidQuery):
		return true
	case isSignupValidationError(err),
		isOrganizationValidationError(err),
		isPlanValidationError(err),
		isAssetValidationError(err):
		return true
	default:
		return false
	}
}

func isSignupValidationError(err error) bool {
	switch {
	case errors.Is(err, signupdomain.ErrInvalidRequest),
		errors.Is(err, signupdomain.ErrInvalidName),
		errors.Is(err, signupdomain.ErrInvalidOwnerName),
		errors.Is(err, signupdomain.ErrInvalidEmail),
		errors.Is(err, signupdomain.ErrInvalidSlug),
		errors.Is(err, signupdomain.ErrReservedSlug):
		return true
	default:
		return false
	}
}

func isOrganizationValidationError(err error) bool {
	switch {
	case errors.Is(err, orgdomain.ErrInvalidOrg),
		errors.Is(err, orgdomain.ErrInvalidStatus),
		errors.Is(err, orgdomain.ErrInvalidRole),
		errors.Is(err, orgdomain.ErrInvalidName),
		errors.Is(err, orgdomain.ErrInvalidEmail),
		errors.Is(err, orgdomain.ErrPasswordTooShort):
		return true
	default:
		return false
	}
}

func isPlanValidationError(err error) bool {
	switch {
	case errors.Is(err, plandomain.ErrInvalidID),
		errors.Is(err, plandomain.ErrInvalidName),
		errors.Is(err, plandomain.ErrInvalidPrice):
		return true
	default:
		return false
	}
}

func isAssetValidationError(err error) bool {
	switch {
	case errors.Is(err, assetdomain.ErrInvalidOrg),
		errors.Is(err, assetdomain.ErrInvalidID),
		errors.Is(err, assetdomain.ErrInvalidName),
		errors.Is(err, assetdomain.ErrInvalidSerial),
		errors.Is(err, assetdomain.ErrInvalidDevice),
		errors.Is(err, assetdomain.ErrInvalidDate),
		errors.Is(err, assetdomain.ErrInvalidDateRange),
		errors.Is(err, assetdomain.ErrInvalidWarrantyMonths),
		errors.Is(err, assetdomain.ErrInvalidStatus),
		errors.Is(err, assetdomain.ErrInvalidBillingType),
		errors.Is(err, assetdomain.ErrInvalidCost),
		errors.Is(err, assetdomain.ErrInvalidServiceRecord),
		errors.Is(err, assetdomain.ErrInvalidContract):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, orgdomain.ErrSlugTaken),
		errors.Is(err, orgdomain.ErrEmailTaken),
		errors.Is(err, orgdomain.ErrLastOwner),
		errors.Is(err, plandomain.ErrDuplicatePlan),
		errors.Is(err, assetdomain.ErrDuplicateSerial),
		errors.Is(err, assetdomain.ErrOverlappingAssignment),
		errors.Is(err, assetdomain.ErrCompanyInUse):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, orgdomain.ErrSlugTaken):
		return "subdomain is already taken"
	case errors.Is(err, orgdomain.ErrEmailTaken):
		return "email is already registered"
	case errors.Is(err, assetdomain.ErrDuplicateSerial):
		return "a device with this serial number already exists"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orgdomain.ErrNotFound),
		errors.Is(err, orgdomain.ErrUserNotFound),
		errors.Is(err, plandomain.ErrNotFound),
		errors.Is(err, assetdomain.ErrCompanyNotFound),
		errors.Is(err, assetdomain.ErrDeviceNotFound),
		errors.Is(err, assetdomain.ErrPartNotFound),
		errors.Is(err, assetdomain.ErrContractNotFound),
		errors.Is(err, assetdomain.ErrAssignmentNotFound),
		errors.Is(err, usagedomain.ErrNotFound),
		errors.Is(err, coverage.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, signupdomain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return "invalid_page_token"
	default:
		return rootCode(err)
	}
}

// rootCode returns the first line of a joined error, which is the sentinel
// code when the domain wrapped a driver error.
func rootCode(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "password_too_short":
		return "password must be at least 8 characters"
	case "reserved_slug":
		return "this subdomain is reserved"
	default:
		return "invalid value"
	}
}
