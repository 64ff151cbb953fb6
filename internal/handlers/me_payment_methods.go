package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stylehive/api/internal/platform/httpx"
	"github.com/stylehive/api/internal/services"
)

func (h *MeHandlers) paymentMethodRoutes(r chi.Router) {
	r.Get("/", h.listPaymentMethods)
	r.Post("/", h.addPaymentMethod)
	r.Delete("/{paymentMethodID}", h.removePaymentMethod)
}

func (h *MeHandlers) listPaymentMethods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, _, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	methods, err := h.users.ListPaymentMethods(ctx, uid)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	payloads := make([]paymentMethodPayload, 0, len(methods))
	for _, method := range methods {
		payloads = append(payloads, buildPaymentMethodPayload(method))
	}
	writeJSONResponse(w, http.StatusOK, paymentMethodListResponse{PaymentMethods: payloads})
}

func (h *MeHandlers) addPaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, _, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxProfileBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req addPaymentMethodRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	method, err := h.users.AddPaymentMethod(ctx, services.AddPaymentMethodCommand{
		UserID: uid,
		Token:  strings.TrimSpace(req.Token),
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, paymentMethodResponse{PaymentMethod: buildPaymentMethodPayload(method)})
}

func (h *MeHandlers) removePaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, _, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	if err := h.users.RemovePaymentMethod(ctx, uid, chi.URLParam(r, "paymentMethodID")); err != nil {
		writeUserError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addPaymentMethodRequest struct {
	Token string `json:"token"`
}

type paymentMethodListResponse struct {
	PaymentMethods []paymentMethodPayload `json:"payment_methods"`
}

type paymentMethodResponse struct {
	PaymentMethod paymentMethodPayload `json:"payment_method"`
}

type paymentMethodPayload struct {
	ID        string `json:"id"`
	Provider  string `json:"provider"`
	Brand     string `json:"brand,omitempty"`
	Last4     string `json:"last4,omitempty"`
	ExpMonth  int    `json:"exp_month,omitempty"`
	ExpYear   int    `json:"exp_year,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func buildPaymentMethodPayload(method services.SavedPaymentMethod) paymentMethodPayload {
	return paymentMethodPayload{
		ID:        method.ID,
		Provider:  method.Provider,
		Brand:     method.Brand,
		Last4:     method.Last4,
		ExpMonth:  method.ExpMonth,
		ExpYear:   method.ExpYear,
		CreatedAt: formatTime(method.CreatedAt),
	}
}
