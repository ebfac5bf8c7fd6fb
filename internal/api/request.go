package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

type purchaseRequest struct {
	TicketID string `json:"ticket_id" validate:"required,max=64"`
	Quantity *int   `json:"quantity" validate:"required"`
}

type createEventRequest struct {
	Name        string    `json:"name" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=2000"`
	Location    string    `json:"location" validate:"max=200"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
}

type createTicketRequest struct {
	TicketType        string `json:"ticket_type" validate:"required,max=100"`
	Price             *int64 `json:"price" validate:"required,gte=0"`
	QuantityAvailable *int   `json:"quantity_available" validate:"required,gte=0"`
}

type updatePriceRequest struct {
	Price *int64 `json:"price" validate:"required,gte=0"`
}

type updateQuantityRequest struct {
	QuantityAvailable *int `json:"quantity_available" validate:"required,gte=0"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and checks its shape. On
// failure it writes the 400 response and returns false.
func (h *Handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("invalid JSON body: %v", err),
			Code:  "invalid_request",
		})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		resp := errorResponse{Error: "validation failed", Code: "invalid_request"}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			resp.Details = make(map[string]string, len(verrs))
			for _, fe := range verrs {
				resp.Details[fe.Field()] = fe.Tag()
			}
		}
		respondJSON(w, http.StatusBadRequest, resp)
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
