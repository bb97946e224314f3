// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps ledger errors to HTTP responses using RFC7807. System
// failures are logged with a correlation id that is returned to the caller
// instead of internal details.
func RespondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		verr    *shared.ValidationError
		berr    *shared.BalanceError
		serr    *shared.InvalidStateError
		problem ProblemDetail
	)
	switch {
	case errors.As(err, &berr):
		problem = newProblem(http.StatusBadRequest, "Unbalanced Voucher", err.Error())
		problem.Fields = map[string]string{"lines": berr.Error()}
	case errors.As(err, &verr):
		problem = newProblem(http.StatusBadRequest, "Validation Failed", err.Error())
		problem.Fields = verr.Fields
	case errors.Is(err, ErrBadRequest):
		problem = newProblem(http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, ErrUnauthorized):
		problem = newProblem(http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.As(err, &serr):
		problem = newProblem(http.StatusConflict, "Invalid State", err.Error())
		problem.CurrentStatus = serr.Current
		problem.ExpectedStatuses = serr.Expected
	case errors.Is(err, shared.ErrPeriodLocked):
		problem = newProblem(http.StatusLocked, "Period Locked", err.Error())
	case errors.Is(err, shared.ErrVoucherNotFound),
		errors.Is(err, shared.ErrAccountNotFound),
		errors.Is(err, shared.ErrGroupNotFound),
		errors.Is(err, shared.ErrPartyNotFound),
		errors.Is(err, shared.ErrPeriodNotFound),
		errors.Is(err, shared.ErrFiscalYearNotFound):
		problem = newProblem(http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicate),
		errors.Is(err, shared.ErrGroupInUse),
		errors.Is(err, shared.ErrAccountInUse):
		problem = newProblem(http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrWorkflow) && !errors.Is(err, shared.ErrSequenceMissing):
		problem = newProblem(http.StatusUnprocessableEntity, "Workflow Error", err.Error())
	default:
		problem = newProblem(http.StatusInternalServerError, "Internal Error", "")
		problem.CorrelationID = uuid.NewString()
		if logger == nil {
			logger = slog.Default()
		}
		attrs := []any{slog.String("correlation_id", problem.CorrelationID), slog.Any("error", err)}
		if r != nil {
			attrs = append(attrs,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		}
		logger.Error("request failed", attrs...)
	}
	JSON(w, problem.Status, problem)
}

func newProblem(status int, title, detail string) ProblemDetail {
	return ProblemDetail{Title: title, Status: status, Detail: detail}
}

// ValidationFromStruct converts validator failures into a ValidationError
// keyed by JSON field name.
func ValidationFromStruct(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &shared.ValidationError{}
	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		verr.Add(field, fe.Tag()+" constraint failed")
	}
	return verr.OrNil()
}

// NewValidator returns a validator reporting JSON field names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}
