package api

import (
	"net/http"

	"github.com/example/event-ticketing/internal/api/middleware"
	"github.com/example/event-ticketing/internal/command"
	"github.com/gorilla/mux"
)

// Event Handlers

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.queryHandler.ListEvents(r.Context())
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.queryHandler.GetEvent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, event)
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	event, err := h.cmdHandler.CreateEvent(r.Context(), command.CreateEvent{
		OrganizerID: middleware.UserID(r.Context()),
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		StartsAt:    req.StartsAt,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, event)
}

// Ticket Handlers

func (h *Handlers) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	ticket, err := h.cmdHandler.CreateTicket(r.Context(), command.CreateTicket{
		OrganizerID:       middleware.UserID(r.Context()),
		EventID:           mux.Vars(r)["id"],
		TicketType:        req.TicketType,
		Price:             *req.Price,
		QuantityAvailable: *req.QuantityAvailable,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, ticket)
}

func (h *Handlers) UpdateTicketPrice(w http.ResponseWriter, r *http.Request) {
	var req updatePriceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	err := h.cmdHandler.UpdateTicketPrice(r.Context(), command.UpdateTicketPrice{
		OrganizerID: middleware.UserID(r.Context()),
		TicketID:    mux.Vars(r)["id"],
		Price:       *req.Price,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "price updated"})
}

func (h *Handlers) UpdateTicketQuantity(w http.ResponseWriter, r *http.Request) {
	var req updateQuantityRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	err := h.cmdHandler.UpdateTicketQuantity(r.Context(), command.UpdateTicketQuantity{
		OrganizerID:       middleware.UserID(r.Context()),
		TicketID:          mux.Vars(r)["id"],
		QuantityAvailable: *req.QuantityAvailable,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "quantity updated"})
}
