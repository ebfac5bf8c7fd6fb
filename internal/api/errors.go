package api

import (
	"errors"
	"net/http"

	"github.com/example/event-ticketing/internal/domain/catalog"
	"github.com/example/event-ticketing/internal/domain/ledger"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// errorStatus maps domain errors to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, ledger.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, ledger.ErrTicketNotFound), errors.Is(err, catalog.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found"
	case errors.Is(err, catalog.ErrEventNotFound):
		return http.StatusNotFound, "event_not_found"
	case errors.Is(err, ledger.ErrTransientConflict):
		return http.StatusServiceUnavailable, "transient_conflict"
	case errors.Is(err, catalog.ErrQuantityBelowSold):
		return http.StatusConflict, "quantity_below_sold"
	case errors.Is(err, catalog.ErrNotOwner):
		return http.StatusForbidden, "not_owner"
	case errors.Is(err, catalog.ErrInvalidName),
		errors.Is(err, catalog.ErrInvalidTicketType),
		errors.Is(err, catalog.ErrInvalidPrice),
		errors.Is(err, catalog.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_request"
	}
	return http.StatusInternalServerError, "storage_failure"
}

func (h *Handlers) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)

	msg := rootMessage(err)
	switch status {
	case http.StatusInternalServerError:
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal server error"
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		msg = ledger.ErrTransientConflict.Error()
	}

	respondJSON(w, status, errorResponse{Error: msg, Code: code})
}

// rootMessage returns the sentinel text for known errors so responses never
// leak driver details.
func rootMessage(err error) string {
	for _, known := range []error{
		ledger.ErrInvalidQuantity,
		ledger.ErrInsufficientStock,
		ledger.ErrTicketNotFound,
		catalog.ErrTicketNotFound,
		catalog.ErrEventNotFound,
		catalog.ErrNotOwner,
		catalog.ErrInvalidName,
		catalog.ErrInvalidTicketType,
		catalog.ErrInvalidPrice,
		catalog.ErrInvalidQuantity,
		catalog.ErrQuantityBelowSold,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}
