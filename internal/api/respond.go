package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"televet/internal/booking"
	"televet/internal/repository"
	"televet/internal/scheduling"
	"televet/internal/settings"
	"televet/internal/slots"
	"televet/internal/templates"
)

type errorResponse struct {
	Error   string                  `json:"error"`
	Code    string                  `json:"code,omitempty"`
	Dates   []string                `json:"dates,omitempty"`
	Results []scheduling.DateResult `json:"results,omitempty"`
}

var (
	errBadJSON   = errors.New("invalid JSON body")
	errBadFilter = errors.New("invalid schedule filter")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decode reads a JSON body into v and runs its validate tags.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errBadJSON
	}
	return s.validate.Struct(v)
}

// fail writes err with the status its kind maps to. Unknown errors are
// logged and reported as 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.failWith(w, r, err, nil)
}

func (s *Server) failWith(w http.ResponseWriter, r *http.Request, err error, results []scheduling.DateResult) {
	resp := errorResponse{Error: err.Error(), Results: results}
	status := http.StatusInternalServerError

	var (
		verrs    validator.ValidationErrors
		hard     *scheduling.HardConflictError
		decision *scheduling.DecisionRequiredError
		parseErr *time.ParseError
	)
	switch {
	case errors.Is(err, errBadJSON), errors.Is(err, errBadFilter):
		status, resp.Code = http.StatusBadRequest, "bad_request"
	case errors.As(err, &verrs):
		status, resp.Code = http.StatusBadRequest, "validation"
		resp.Error = fieldMessage(verrs[0])
	case errors.As(err, &hard):
		status, resp.Code, resp.Dates = http.StatusConflict, "hard_conflict", hard.Dates
	case errors.As(err, &decision):
		status, resp.Code, resp.Dates = http.StatusConflict, "decision_required", decision.Dates
	case errors.Is(err, templates.ErrNotFound), errors.Is(err, repository.ErrAppointmentNotFound):
		status, resp.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, templates.ErrInvalidTemplate), errors.Is(err, templates.ErrEmptySource),
		errors.Is(err, settings.ErrInvalidAdvance), errors.Is(err, booking.ErrInvalidRequest),
		errors.Is(err, slots.ErrInvalidRange), errors.As(err, &parseErr):
		status, resp.Code = http.StatusBadRequest, "invalid"
	case errors.Is(err, scheduling.ErrStartInPast), errors.Is(err, scheduling.ErrRangeTooLong),
		errors.Is(err, scheduling.ErrAllSlotsPastCutoff):
		status, resp.Code = http.StatusUnprocessableEntity, "rejected"
	case errors.Is(err, scheduling.ErrDateBlocked), errors.Is(err, scheduling.ErrDateHasBookings),
		errors.Is(err, scheduling.ErrBookedSlotRemoved), errors.Is(err, scheduling.ErrHardConflict),
		errors.Is(err, booking.ErrSlotUnavailable):
		status, resp.Code = http.StatusConflict, "conflict"
	case errors.Is(err, scheduling.ErrSessionClosed):
		status, resp.Code = http.StatusServiceUnavailable, "unavailable"
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("request_id", RequestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		resp.Error, resp.Code = "internal server error", "internal"
	}
	writeJSON(w, status, resp)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "datetime":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD format", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
