// Package psaerr translates upstream Autotask failures into a closed error
// taxonomy with correlation ids and remediation guidance.
//
// The translator prefers the structured error strings from the Autotask
// response body ("errors" array) and falls back to substring matching on the
// flattened message only when no structured entry matches a known pattern;
// upstream wording changes are absorbed by the fallback landing on the
// generic validation code. Raw upstream bodies are logged internally and
// never echoed to callers.
package psaerr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/psabridge/internal/autotask"
)

// Code identifies one member of the closed error taxonomy.
type Code string

const (
	CodeValidationError      Code = "VALIDATION_ERROR"
	CodeInactiveResource     Code = "INACTIVE_RESOURCE"
	CodeInvalidStatus        Code = "INVALID_STATUS"
	CodeInvalidPriority      Code = "INVALID_PRIORITY"
	CodeAuthenticationFailed Code = "AUTHENTICATION_FAILED"
	CodePermissionDenied     Code = "PERMISSION_DENIED"
	CodeResourceNotFound     Code = "RESOURCE_NOT_FOUND"
	CodeMethodNotAllowed     Code = "METHOD_NOT_ALLOWED"
	CodeConflict             Code = "CONFLICT"
	CodeServerError          Code = "SERVER_ERROR"
	CodeUnknownError         Code = "UNKNOWN_ERROR"
)

// MappedError is a translated upstream failure.
type MappedError struct {
	Code          Code   `json:"code"`
	Message       string `json:"message"`
	Guidance      string `json:"guidance"`
	CorrelationID string `json:"correlationId"`

	cause error
}

// Error implements error.
func (e *MappedError) Error() string {
	return fmt.Sprintf("%s: %s [%s]", e.Code, e.Message, e.CorrelationID)
}

// Unwrap returns the original upstream error for internal inspection.
func (e *MappedError) Unwrap() error {
	return e.cause
}

// Translator converts failures into MappedErrors. Correlation ids combine a
// monotonic counter with a timestamp and are generated once per occurrence.
type Translator struct {
	logger *zap.Logger
	seq    atomic.Uint64
}

// NewTranslator creates a translator.
func NewTranslator(logger *zap.Logger) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{logger: logger.Named("psaerr")}
}

func (t *Translator) correlationID() string {
	return fmt.Sprintf("PSA-%06d-%d", t.seq.Add(1), time.Now().UnixMilli())
}

// Validation builds a MappedError for a pre-network validation failure. The
// messages are psabridge's own and safe to surface.
func (t *Translator) Validation(errs []string) *MappedError {
	return &MappedError{
		Code:          CodeValidationError,
		Message:       strings.Join(errs, "; "),
		Guidance:      "Correct the listed fields and resubmit; no request was sent to Autotask.",
		CorrelationID: t.correlationID(),
	}
}

// Translate maps an upstream failure into the taxonomy. The raw upstream
// body is logged at debug level with the correlation id for
// cross-referencing and does not appear in the returned message.
func (t *Translator) Translate(err error) *MappedError {
	correlationID := t.correlationID()

	var apiErr *autotask.APIError
	if !errors.As(err, &apiErr) {
		t.logger.Debug("untranslatable upstream error",
			zap.String("correlation_id", correlationID),
			zap.Error(err))
		return &MappedError{
			Code:          CodeUnknownError,
			Message:       "unexpected error communicating with Autotask",
			Guidance:      "Check server logs using the correlation id.",
			CorrelationID: correlationID,
			cause:         err,
		}
	}

	t.logger.Debug("translating autotask api error",
		zap.String("correlation_id", correlationID),
		zap.Int("status", apiErr.StatusCode),
		zap.Strings("upstream_errors", apiErr.Errors),
		zap.String("upstream_body", apiErr.Body))

	code := t.classify(apiErr)
	return &MappedError{
		Code:          code,
		Message:       messageFor(code, apiErr.StatusCode),
		Guidance:      guidanceFor(code),
		CorrelationID: correlationID,
		cause:         err,
	}
}

func (t *Translator) classify(apiErr *autotask.APIError) Code {
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized:
		return CodeAuthenticationFailed
	case apiErr.StatusCode == http.StatusForbidden:
		return CodePermissionDenied
	case apiErr.StatusCode == http.StatusNotFound:
		return CodeResourceNotFound
	case apiErr.StatusCode == http.StatusMethodNotAllowed:
		return CodeMethodNotAllowed
	case apiErr.StatusCode == http.StatusConflict:
		return CodeConflict
	case apiErr.StatusCode >= http.StatusInternalServerError:
		return CodeServerError
	case apiErr.StatusCode >= http.StatusBadRequest:
		return classifyBadRequest(apiErr)
	default:
		return CodeUnknownError
	}
}

// classifyBadRequest disambiguates the bad-request class. Structured error
// entries are inspected first; the flattened body is a last resort.
func classifyBadRequest(apiErr *autotask.APIError) Code {
	for _, msg := range apiErr.Errors {
		if code, ok := matchMessage(msg); ok {
			return code
		}
	}
	if code, ok := matchMessage(apiErr.Body); ok {
		return code
	}
	return CodeValidationError
}

// matchMessage maps known upstream wording to a code. The substring list is
// not assumed exhaustive; unmatched messages fall through to the generic
// validation code.
func matchMessage(msg string) (Code, bool) {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "inactive"):
		return CodeInactiveResource, true
	case strings.Contains(lower, "status"):
		return CodeInvalidStatus, true
	case strings.Contains(lower, "priority"):
		return CodeInvalidPriority, true
	case strings.Contains(lower, "missing"), strings.Contains(lower, "required"):
		return CodeValidationError, true
	default:
		return CodeUnknownError, false
	}
}

func messageFor(code Code, status int) string {
	switch code {
	case CodeValidationError:
		return "Autotask rejected the request as invalid"
	case CodeInactiveResource:
		return "Autotask rejected the request because a referenced resource is inactive"
	case CodeInvalidStatus:
		return "Autotask rejected the requested status value"
	case CodeInvalidPriority:
		return "Autotask rejected the requested priority value"
	case CodeAuthenticationFailed:
		return "Autotask rejected the API credentials"
	case CodePermissionDenied:
		return "the API user is not permitted to perform this operation"
	case CodeResourceNotFound:
		return "the requested entity does not exist in Autotask"
	case CodeMethodNotAllowed:
		return "Autotask does not allow this operation on the entity"
	case CodeConflict:
		return "the entity was modified upstream since it was last read"
	case CodeServerError:
		return fmt.Sprintf("Autotask reported a server error (status %d)", status)
	default:
		return fmt.Sprintf("Autotask returned an unexpected response (status %d)", status)
	}
}

func guidanceFor(code Code) string {
	switch code {
	case CodeValidationError:
		return "Correct the request fields and resubmit."
	case CodeInactiveResource:
		return "Assign an active resource id, or null to unassign."
	case CodeInvalidStatus:
		return "Choose a status id from the current reference list."
	case CodeInvalidPriority:
		return "Choose a priority id from the current reference list."
	case CodeAuthenticationFailed:
		return "The credential set is invalid; operator intervention is required. Do not retry."
	case CodePermissionDenied:
		return "Grant the API user the required security level; retrying will not help."
	case CodeResourceNotFound:
		return "Verify the entity id and try again."
	case CodeMethodNotAllowed:
		return "Use a supported operation for this entity type."
	case CodeConflict:
		return "Refresh the ticket state and retry the update."
	case CodeServerError:
		return "This is a transient upstream failure; retry after a short delay."
	default:
		return "Check server logs using the correlation id."
	}
}
