package api

import (
	"net/http"

	"github.com/example/event-ticketing/internal/api/middleware"
	"github.com/example/event-ticketing/internal/auth"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

const serviceName = "event-ticketing"

func NewRouter(handlers *Handlers, jwtService *auth.JWTService, logger *zap.Logger, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware(serviceName))

	authn := middleware.Authenticate(jwtService, logger)
	withRole := func(role string, fn http.HandlerFunc) http.Handler {
		return authn(middleware.RequireRole(role, logger)(fn))
	}

	// Public
	r.HandleFunc("/healthz", handlers.Health).Methods(http.MethodGet)
	r.HandleFunc("/events", handlers.ListEvents).Methods(http.MethodGet)
	r.HandleFunc("/events/{id}", handlers.GetEvent).Methods(http.MethodGet)
	r.HandleFunc("/tickets/{id}/remaining", handlers.GetRemaining).Methods(http.MethodGet)

	// Buyers
	r.Handle("/tickets/purchase", withRole(auth.RoleUser, handlers.PurchaseTickets)).Methods(http.MethodPost)
	r.Handle("/purchases/history", withRole(auth.RoleUser, handlers.GetPurchaseHistory)).Methods(http.MethodGet)

	// Organizers
	r.Handle("/analytics", withRole(auth.RoleOrganizer, handlers.GetAnalytics)).Methods(http.MethodGet)
	r.Handle("/events", withRole(auth.RoleOrganizer, handlers.CreateEvent)).Methods(http.MethodPost)
	r.Handle("/events/{id}/tickets", withRole(auth.RoleOrganizer, handlers.CreateTicket)).Methods(http.MethodPost)
	r.Handle("/tickets/{id}/price", withRole(auth.RoleOrganizer, handlers.UpdateTicketPrice)).Methods(http.MethodPatch)
	r.Handle("/tickets/{id}/quantity", withRole(auth.RoleOrganizer, handlers.UpdateTicketQuantity)).Methods(http.MethodPatch)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
	})

	return middleware.Recover(logger)(middleware.Logging(logger)(c.Handler(r)))
}
