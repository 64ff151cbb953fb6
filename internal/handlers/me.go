package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stylehive/api/internal/platform/auth"
	"github.com/stylehive/api/internal/platform/httpx"
	"github.com/stylehive/api/internal/services"
)

const maxProfileBodySize = 64 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

// MeHandlers exposes authenticated profile endpoints for the current user.
type MeHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewMeHandlers constructs handlers enforcing Firebase authentication before invoking the user service.
func NewMeHandlers(authn *auth.Authenticator, users services.UserService) *MeHandlers {
	return &MeHandlers{
		authn: authn,
		users: users,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Post("/sync", h.syncProfile)
	r.Route("/addresses", h.addressRoutes)
	r.Route("/payment-methods", h.paymentMethodRoutes)
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, identity, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	profile, err := h.users.GetProfile(ctx, uid)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, meResponse{Profile: buildProfilePayload(profile, identity)})
}

// syncProfile refreshes the stored projection from the verified token claims.
func (h *MeHandlers) syncProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, identity, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	cmd := services.SyncProfileCommand{UserID: uid}
	if identity != nil {
		cmd.Email = identity.Email
		cmd.Roles = slices.Clone(identity.Roles)
		if record, err := identity.User(ctx); err == nil && record != nil {
			cmd.DisplayName = record.DisplayName
			cmd.PhoneNumber = record.PhoneNumber
			cmd.PhotoURL = record.PhotoURL
		}
	}

	profile, err := h.users.SyncProfile(ctx, cmd)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, meResponse{Profile: buildProfilePayload(profile, identity)})
}

func (h *MeHandlers) requireUser(ctx context.Context, w http.ResponseWriter) (string, *auth.Identity, bool) {
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return "", nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", nil, false
	}
	return identity.UID, identity, true
}

type meResponse struct {
	Profile meProfilePayload `json:"profile"`
}

type meProfilePayload struct {
	ID           string   `json:"id"`
	DisplayName  string   `json:"display_name"`
	Email        string   `json:"email"`
	PhoneNumber  string   `json:"phone_number,omitempty"`
	PhotoURL     string   `json:"photo_url,omitempty"`
	Roles        []string `json:"roles"`
	IsActive     bool     `json:"is_active"`
	CreatedAt    string   `json:"created_at,omitempty"`
	UpdatedAt    string   `json:"updated_at,omitempty"`
	LastSyncTime string   `json:"last_sync_time,omitempty"`
}

func buildProfilePayload(profile services.UserProfile, identity *auth.Identity) meProfilePayload {
	email := strings.TrimSpace(strings.ToLower(profile.Email))
	if email == "" && identity != nil {
		email = strings.TrimSpace(strings.ToLower(identity.Email))
	}

	roles := slices.Clone(profile.Roles)
	if len(roles) == 0 && identity != nil {
		roles = slices.Clone(identity.Roles)
	}
	if len(roles) == 0 {
		roles = []string{}
	}

	return meProfilePayload{
		ID:           strings.TrimSpace(profile.ID),
		DisplayName:  profile.DisplayName,
		Email:        email,
		PhoneNumber:  profile.PhoneNumber,
		PhotoURL:     profile.PhotoURL,
		Roles:        roles,
		IsActive:     profile.IsActive,
		CreatedAt:    formatTime(profile.CreatedAt),
		UpdatedAt:    formatTime(profile.UpdatedAt),
		LastSyncTime: formatTime(profile.LastSyncTime),
	}
}

func writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("profile_not_found", "profile not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "address not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserPaymentMethodNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_method_not_found", "payment method not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserPaymentMethodDuplicate):
		httpx.WriteError(ctx, w, httpx.NewError("payment_method_duplicate", "payment method already exists", http.StatusConflict))
	case errors.Is(err, services.ErrUserPaymentTokenRejected):
		httpx.WriteError(ctx, w, httpx.NewError("payment_token_rejected", "payment token was rejected by the provider", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrUserUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("profile_error", "profile operation failed", http.StatusInternalServerError))
	}
}

// Shared handler helpers -----------------------------------------------------

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxProfileBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func cloneStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}
