package api

import (
	"context"
	"net/http"

	"github.com/example/event-ticketing/internal/api/middleware"
	"github.com/example/event-ticketing/internal/command"
	"github.com/example/event-ticketing/internal/query"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	validate     *validator.Validate
	logger       *zap.Logger
	healthCheck  func(ctx context.Context) error
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, logger *zap.Logger) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		validate:     newValidator(),
		logger:       logger.Named("api"),
	}
}

// SetHealthCheck makes /healthz report the backend state.
func (h *Handlers) SetHealthCheck(fn func(ctx context.Context) error) {
	h.healthCheck = fn
}

// Ledger Handlers

func (h *Handlers) PurchaseTickets(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	record, err := h.cmdHandler.PurchaseTickets(r.Context(), command.PurchaseTickets{
		UserID:   middleware.UserID(r.Context()),
		TicketID: req.TicketID,
		Quantity: *req.Quantity,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, record)
}

func (h *Handlers) GetPurchaseHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.queryHandler.ListPurchases(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (h *Handlers) GetRemaining(w http.ResponseWriter, r *http.Request) {
	remaining, err := h.queryHandler.GetRemaining(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, remaining)
}

func (h *Handlers) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.queryHandler.Analytics(r.Context())
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// Health

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.healthCheck != nil {
		if err := h.healthCheck(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
