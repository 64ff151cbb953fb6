package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stylehive/api/internal/platform/httpx"
	"github.com/stylehive/api/internal/services"
)

func (h *MeHandlers) addressRoutes(r chi.Router) {
	r.Get("/", h.listAddresses)
	r.Post("/", h.createAddress)
	r.Put("/{addressID}", h.updateAddress)
	r.Delete("/{addressID}", h.deleteAddress)
	r.Post("/{addressID}/default", h.setDefaultAddress)
}

func (h *MeHandlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, _, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	addresses, err := h.users.ListAddresses(ctx, uid)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	payloads := make([]savedAddressPayload, 0, len(addresses))
	for _, addr := range addresses {
		payloads = append(payloads, buildSavedAddressPayload(addr))
	}
	writeJSONResponse(w, http.StatusOK, addressListResponse{Addresses: payloads})
}

func (h *MeHandlers) createAddress(w http.ResponseWriter, r *http.Request) {
	h.upsertAddress(w, r, "")
}

func (h *MeHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	h.upsertAddress(w, r, chi.URLParam(r, "addressID"))
}

func (h *MeHandlers) upsertAddress(w http.ResponseWriter, r *http.Request, addressID string) {
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
	var req savedAddressRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	saved, err := h.users.UpsertAddress(ctx, services.UpsertAddressCommand{
		UserID:    uid,
		AddressID: strings.TrimSpace(addressID),
		Label:     strings.TrimSpace(req.Label),
		Address:   req.Address.toDomain(),
		IsDefault: req.IsDefault,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if addressID == "" {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, addressResponse{Address: buildSavedAddressPayload(saved)})
}

func (h *MeHandlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, _, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	if err := h.users.DeleteAddress(ctx, uid, chi.URLParam(r, "addressID")); err != nil {
		writeUserError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MeHandlers) setDefaultAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, _, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	saved, err := h.users.SetDefaultAddress(ctx, uid, chi.URLParam(r, "addressID"))
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, addressResponse{Address: buildSavedAddressPayload(saved)})
}

type savedAddressRequest struct {
	Label     string         `json:"label"`
	Address   addressRequest `json:"address"`
	IsDefault bool           `json:"is_default"`
}

type addressListResponse struct {
	Addresses []savedAddressPayload `json:"addresses"`
}

type addressResponse struct {
	Address savedAddressPayload `json:"address"`
}

type savedAddressPayload struct {
	ID        string         `json:"id"`
	Label     string         `json:"label,omitempty"`
	Address   addressPayload `json:"address"`
	IsDefault bool           `json:"is_default"`
	CreatedAt string         `json:"created_at,omitempty"`
	UpdatedAt string         `json:"updated_at,omitempty"`
}

type addressPayload struct {
	FullName   string  `json:"full_name"`
	Email      string  `json:"email,omitempty"`
	Phone      string  `json:"phone,omitempty"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      *string `json:"state,omitempty"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		FullName:   addr.FullName,
		Email:      addr.Email,
		Phone:      addr.Phone,
		Line1:      addr.Line1,
		Line2:      cloneStringPointer(addr.Line2),
		City:       addr.City,
		State:      cloneStringPointer(addr.State),
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func buildSavedAddressPayload(saved services.SavedAddress) savedAddressPayload {
	return savedAddressPayload{
		ID:        saved.ID,
		Label:     saved.Label,
		Address:   buildAddressPayload(saved.Address),
		IsDefault: saved.IsDefault,
		CreatedAt: formatTime(saved.CreatedAt),
		UpdatedAt: formatTime(saved.UpdatedAt),
	}
}
