package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/fairstack/engine-go/internal/auth"
	"github.com/fairstack/engine-go/internal/control"
	"github.com/fairstack/engine-go/internal/games"
	"github.com/fairstack/engine-go/internal/replay"
	"github.com/fairstack/engine-go/internal/seeds"
	"github.com/fairstack/engine-go/internal/settle"
	"github.com/fairstack/engine-go/internal/store"
	"github.com/fairstack/engine-go/internal/verify"
)

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]any
	requestID string
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]any),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// Build creates the final EngineError
func (eb *ErrorBuilder) Build() EngineError {
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// classify maps a domain error to its HTTP status and wire type. Seed
// secrets never appear in responses, so the raw error text is safe to
// forward for everything but internal failures.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, settle.ErrInvalidParams), errors.Is(err, replay.ErrInvalidRange),
		errors.Is(err, replay.ErrRangeTooLarge):
		return http.StatusBadRequest, ErrTypeInvalidParams
	case errors.Is(err, games.ErrGameNotFound):
		return http.StatusNotFound, ErrTypeGameNotFound
	case errors.Is(err, store.ErrBetNotFound):
		return http.StatusNotFound, ErrTypeBetNotFound
	case errors.Is(err, seeds.ErrSeedNotFound), errors.Is(err, seeds.ErrNoActiveSeed):
		return http.StatusNotFound, ErrTypeSeedNotFound
	case errors.Is(err, control.ErrControlNotFound):
		return http.StatusNotFound, ErrTypeControlNotFound
	case errors.Is(err, seeds.ErrSeedStillActive):
		return http.StatusConflict, ErrTypeSeedStillActive
	case errors.Is(err, settle.ErrNotSettleable):
		return http.StatusConflict, ErrTypeNotSettleable
	case errors.Is(err, verify.ErrBetPending):
		return http.StatusConflict, ErrTypeBetPending
	case errors.Is(err, settle.ErrInsufficientBalance):
		return http.StatusPaymentRequired, ErrTypeInsufficientBalance
	case errors.Is(err, auth.ErrNoToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, ErrTypeUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, ErrTypeForbidden
	default:
		return http.StatusInternalServerError, ErrTypeInternal
	}
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger *log.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *log.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError classifies a domain error and writes the HTTP response
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())
	status, errType := classify(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		// Internal detail stays in the log, not on the wire.
		message = "internal error"
	}

	engineErr := NewError(errType, message).
		WithRequestID(requestID).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.logError(r, err, engineErr, status)
	eh.writeErrorResponse(w, status, engineErr)
}

// HandleValidationError handles request-shape errors before any domain
// code runs
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	requestID := middleware.GetReqID(r.Context())

	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(requestID).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		Build()

	eh.logError(r, nil, engineErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, engineErr)
}

// logError logs the error with appropriate level and context
func (eh *ErrorHandler) logError(r *http.Request, cause error, engineErr EngineError, status int) {
	level := "WARN"
	if status >= 500 {
		level = "ERROR"
	}
	detail := engineErr.Message
	if cause != nil {
		detail = cause.Error()
	}
	eh.logger.Printf(
		"error_occurred level=%s type=%s category=%s status=%d request_id=%s path=%s message=%q",
		level, engineErr.Type, GetErrorCategory(engineErr.Type), status, engineErr.RequestID, r.URL.Path, detail,
	)
}

// writeErrorResponse writes the error response as JSON
func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	w.WriteHeader(status)

	if err := writeJSONBody(w, engineErr); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// RecoveryHandler provides panic recovery with structured error logging
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				requestID := middleware.GetReqID(r.Context())
				eh.logger.Printf(
					"panic_recovered request_id=%s path=%s method=%s panic=%v",
					requestID, r.URL.Path, r.Method, rvr,
				)

				engineErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("path", r.URL.Path).
					Build()
				eh.writeErrorResponse(w, http.StatusInternalServerError, engineErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
