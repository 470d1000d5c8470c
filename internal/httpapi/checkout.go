package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/jawad0110/taqa-bff/internal/errors"
	"github.com/jawad0110/taqa-bff/internal/middleware"
)

// ShippingAddress is the address shape the checkout endpoint accepts.
type ShippingAddress struct {
	FullName        string `json:"full_name"`
	PhoneNumber     string `json:"phone_number"`
	Country         string `json:"country"`
	City            string `json:"city"`
	Area            string `json:"area"`
	Street          string `json:"street"`
	BuildingNumber  string `json:"building_number,omitempty"`
	ApartmentNumber string `json:"apartment_number,omitempty"`
	ZipCode         string `json:"zip_code,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// CheckoutRequest is the checkout submission payload.
type CheckoutRequest struct {
	ShippingAddress ShippingAddress `json:"shipping_address"`
	CouponCode      string          `json:"coupon_code,omitempty"`
	ShippingRateUID string          `json:"shipping_rate_uid,omitempty"`
}

// missingAddressFields returns the required fields absent from addr, in a
// stable order so the client can rely on the response shape.
func missingAddressFields(addr ShippingAddress) []string {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"full_name", addr.FullName},
		{"phone_number", addr.PhoneNumber},
		{"country", addr.Country},
		{"city", addr.City},
		{"area", addr.Area},
		{"street", addr.Street},
	}
	for _, field := range required {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// checkout validates the shipping address locally and forwards the order to
// the backend. An incomplete address is rejected naming exactly the missing
// fields, before any backend call.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	sess, svcErr := middleware.RequireSession(r.Context())
	if svcErr != nil {
		h.writeError(w, r, svcErr)
		return
	}

	var req CheckoutRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		h.writeError(w, r, errors.InvalidInput("invalid request body"))
		return
	}

	if missing := missingAddressFields(req.ShippingAddress); len(missing) > 0 {
		h.writeError(w, r, errors.InvalidInput("shipping address is incomplete", missing...))
		return
	}

	ts := h.sessions.TokenSource(sess)
	var order json.RawMessage
	if err := h.backend.Post(r.Context(), ts, "/checkout", req, &order); err != nil {
		h.writeError(w, r, err)
		return
	}

	// A successful checkout empties the backend cart; refresh the mirror so
	// the next cart read does not show stale items.
	container := h.carts.For(sess.ID)
	if err := container.Hydrate(r.Context(), ts); err != nil {
		h.log.WithContext(r.Context()).WithError(err).Warn("cart refresh after checkout failed")
	}

	writeRaw(w, http.StatusCreated, order)
}
