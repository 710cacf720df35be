package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"agency-checkout/internal/domain"
	"agency-checkout/internal/infra/logging"
)

type apiError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Field      string            `json:"field,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	PurchaseID string            `json:"purchaseId,omitempty"`
	TraceID    string            `json:"traceId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, e apiError) {
	writeJSON(w, status, struct {
		Error apiError `json:"error"`
	}{e})
}

// writeError maps the domain error taxonomy onto HTTP. purchaseID is echoed
// when a purchase was already recorded, so the buyer can quote it.
func writeError(w http.ResponseWriter, r *http.Request, log *zerolog.Logger, err error, purchaseID string) {
	status, e := classifyError(err)
	e.PurchaseID = purchaseID
	e.TraceID = logging.TraceIDFrom(r.Context())

	l := logging.With(r.Context(), log)
	ev := l.Warn()
	if status >= 500 {
		ev = l.Error()
	}
	ev.Err(err).Int("status", status).Str("code", e.Code).Str("purchase_id", purchaseID).Msg("request failed")
	writeJSONError(w, status, e)
}

func classifyError(err error) (int, apiError) {
	var (
		ve  *domain.ValidationError
		ce  *domain.ConfigurationError
		ge  *domain.PaymentGatewayError
		re  *domain.ReconciliationError
		pe  *domain.PersistenceError
		vle validator.ValidationErrors
	)
	switch {
	case errors.As(err, &vle):
		return http.StatusUnprocessableEntity, apiError{Code: "validation_error", Message: "invalid request", Fields: fieldErrors(vle)}
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, apiError{Code: "validation_error", Message: ve.Msg, Field: ve.Field}
	case errors.As(err, &ce):
		return http.StatusServiceUnavailable, apiError{Code: "configuration_error", Message: ce.Error()}
	case errors.As(err, &ge):
		code := "gateway_error"
		if errors.Is(err, domain.ErrGatewayTimeout) {
			code = "gateway_timeout"
		}
		return http.StatusBadGateway, apiError{Code: code, Message: ge.Error()}
	case errors.Is(err, domain.ErrTransactionClash):
		return http.StatusConflict, apiError{Code: "transaction_clash", Message: domain.ErrTransactionClash.Error()}
	case errors.As(err, &re) && errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, apiError{Code: "paid_after_failure", Message: "payment received for a purchase that was marked failed; it will be reviewed"}
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, apiError{Code: "invalid_transition", Message: domain.ErrInvalidTransition.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, apiError{Code: "not_found", Message: "purchase not found"}
	case errors.As(err, &re):
		return http.StatusInternalServerError, apiError{Code: "reconciliation_error", Message: "payment may have been captured but could not be recorded"}
	case errors.As(err, &pe):
		return http.StatusInternalServerError, apiError{Code: "persistence_error", Message: pe.Error()}
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, apiError{Code: "bad_request", Message: err.Error()}
	}
	return http.StatusInternalServerError, apiError{Code: "internal_error", Message: "internal error"}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates its tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(dst); err != nil {
		return domain.NewValidationError("", "malformed JSON body: "+err.Error())
	}
	return validate.Struct(dst)
}

func fieldErrors(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = messageForTag(fe.Tag(), fe.Param())
	}
	return out
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required", "required_without":
		return "this field is required"
	case "max":
		return "must be at most " + param + " characters"
	case "oneof":
		return "must be one of: " + param
	case "uuid":
		return "must be a UUID"
	default:
		return "invalid value"
	}
}
