package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/stylehive/api/internal/domain"
	"github.com/stylehive/api/internal/services"
)

type stubUserService struct {
	getProfileFn       func(userID string) (services.UserProfile, error)
	syncProfileFn      func(cmd services.SyncProfileCommand) (services.UserProfile, error)
	listAddressesFn    func(userID string) ([]services.SavedAddress, error)
	upsertAddressFn    func(cmd services.UpsertAddressCommand) (services.SavedAddress, error)
	deleteAddressFn    func(userID, addressID string) error
	setDefaultFn       func(userID, addressID string) (services.SavedAddress, error)
	listPaymentsFn     func(userID string) ([]services.SavedPaymentMethod, error)
	addPaymentMethodFn func(cmd services.AddPaymentMethodCommand) (services.SavedPaymentMethod, error)
	removePaymentFn    func(userID, paymentMethodID string) error
}

func (s *stubUserService) GetProfile(_ context.Context, userID string) (services.UserProfile, error) {
	if s.getProfileFn == nil {
		return services.UserProfile{}, errors.New("unexpected GetProfile call")
	}
	return s.getProfileFn(userID)
}

func (s *stubUserService) SyncProfile(_ context.Context, cmd services.SyncProfileCommand) (services.UserProfile, error) {
	if s.syncProfileFn == nil {
		return services.UserProfile{}, errors.New("unexpected SyncProfile call")
	}
	return s.syncProfileFn(cmd)
}

func (s *stubUserService) ListAddresses(_ context.Context, userID string) ([]services.SavedAddress, error) {
	if s.listAddressesFn == nil {
		return nil, errors.New("unexpected ListAddresses call")
	}
	return s.listAddressesFn(userID)
}

func (s *stubUserService) UpsertAddress(_ context.Context, cmd services.UpsertAddressCommand) (services.SavedAddress, error) {
	if s.upsertAddressFn == nil {
		return services.SavedAddress{}, errors.New("unexpected UpsertAddress call")
	}
	return s.upsertAddressFn(cmd)
}

func (s *stubUserService) DeleteAddress(_ context.Context, userID, addressID string) error {
	if s.deleteAddressFn == nil {
		return errors.New("unexpected DeleteAddress call")
	}
	return s.deleteAddressFn(userID, addressID)
}

func (s *stubUserService) SetDefaultAddress(_ context.Context, userID, addressID string) (services.SavedAddress, error) {
	if s.setDefaultFn == nil {
		return services.SavedAddress{}, errors.New("unexpected SetDefaultAddress call")
	}
	return s.setDefaultFn(userID, addressID)
}

func (s *stubUserService) ListPaymentMethods(_ context.Context, userID string) ([]services.SavedPaymentMethod, error) {
	if s.listPaymentsFn == nil {
		return nil, errors.New("unexpected ListPaymentMethods call")
	}
	return s.listPaymentsFn(userID)
}

func (s *stubUserService) AddPaymentMethod(_ context.Context, cmd services.AddPaymentMethodCommand) (services.SavedPaymentMethod, error) {
	if s.addPaymentMethodFn == nil {
		return services.SavedPaymentMethod{}, errors.New("unexpected AddPaymentMethod call")
	}
	return s.addPaymentMethodFn(cmd)
}

func (s *stubUserService) RemovePaymentMethod(_ context.Context, userID, paymentMethodID string) error {
	if s.removePaymentFn == nil {
		return errors.New("unexpected RemovePaymentMethod call")
	}
	return s.removePaymentFn(userID, paymentMethodID)
}

func TestGetProfileFallsBackToIdentityClaims(t *testing.T) {
	users := &stubUserService{
		getProfileFn: func(userID string) (services.UserProfile, error) {
			if userID != "user-1" {
				t.Fatalf("userID = %q", userID)
			}
			return domain.UserProfile{ID: "user-1", DisplayName: "Ava", IsActive: true}, nil
		},
	}
	h := NewMeHandlers(nil, users)
	router := mountRoutes("/me", customerIdentity(), h.Routes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	var resp struct {
		Profile struct {
			ID       string   `json:"id"`
			Email    string   `json:"email"`
			Roles    []string `json:"roles"`
			IsActive bool     `json:"is_active"`
		} `json:"profile"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Profile.Email != "ava@example.com" {
		t.Fatalf("email = %q, want fallback to the token claim", resp.Profile.Email)
	}
	if resp.Profile.Roles == nil || len(resp.Profile.Roles) != 0 {
		t.Fatalf("roles = %v, want empty array", resp.Profile.Roles)
	}
	if !resp.Profile.IsActive {
		t.Fatalf("is_active = false")
	}
}

func TestMeRequiresAuthentication(t *testing.T) {
	h := NewMeHandlers(nil, &stubUserService{})
	router := mountRoutes("/me", nil, h.Routes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if body := decodeErrorBody(t, rec); body["error"] != "unauthenticated" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestSyncProfileForwardsTokenClaims(t *testing.T) {
	var got services.SyncProfileCommand
	users := &stubUserService{
		syncProfileFn: func(cmd services.SyncProfileCommand) (services.UserProfile, error) {
			got = cmd
			return domain.UserProfile{ID: cmd.UserID, Email: cmd.Email}, nil
		},
	}
	h := NewMeHandlers(nil, users)
	router := mountRoutes("/me", customerIdentity(), h.Routes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/me/sync", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if got.UserID != "user-1" || got.Email != "ava@example.com" {
		t.Fatalf("command = %+v", got)
	}
}

func TestCreateAddressReturnsCreated(t *testing.T) {
	var got services.UpsertAddressCommand
	users := &stubUserService{
		upsertAddressFn: func(cmd services.UpsertAddressCommand) (services.SavedAddress, error) {
			got = cmd
			return domain.SavedAddress{ID: "addr-1", Label: cmd.Label, Address: cmd.Address, IsDefault: cmd.IsDefault}, nil
		},
	}
	h := NewMeHandlers(nil, users)
	router := mountRoutes("/me", customerIdentity(), h.Routes)

	body := `{
		"label": " Home ",
		"is_default": true,
		"address": {
			"full_name": "Ava Nguyen",
			"line1": "12 Market St",
			"city": "Springfield",
			"postal_code": "12345",
			"country": "US"
		}
	}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/me/addresses", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if got.AddressID != "" {
		t.Fatalf("AddressID = %q, want empty for create", got.AddressID)
	}
	if got.Label != "Home" || !got.IsDefault || got.Address.PostalCode != "12345" {
		t.Fatalf("command = %+v", got)
	}
}

func TestUpdateAddressUsesPathID(t *testing.T) {
	var got services.UpsertAddressCommand
	users := &stubUserService{
		upsertAddressFn: func(cmd services.UpsertAddressCommand) (services.SavedAddress, error) {
			got = cmd
			return domain.SavedAddress{ID: cmd.AddressID, Address: cmd.Address}, nil
		},
	}
	h := NewMeHandlers(nil, users)
	router := mountRoutes("/me", customerIdentity(), h.Routes)

	body := `{"address": {"full_name": "Ava Nguyen", "line1": "12 Market St", "city": "Springfield", "postal_code": "12345", "country": "US"}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/me/addresses/addr-7", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if got.AddressID != "addr-7" {
		t.Fatalf("AddressID = %q, want addr-7", got.AddressID)
	}
}

func TestDeleteAddressReturnsNoContent(t *testing.T) {
	var gotUser, gotAddress string
	users := &stubUserService{
		deleteAddressFn: func(userID, addressID string) error {
			gotUser, gotAddress = userID, addressID
			return nil
		},
	}
	h := NewMeHandlers(nil, users)
	router := mountRoutes("/me", customerIdentity(), h.Routes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/me/addresses/addr-7", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if gotUser != "user-1" || gotAddress != "addr-7" {
		t.Fatalf("delete called with (%q, %q)", gotUser, gotAddress)
	}
}

func TestSetDefaultAddressMapsNotFound(t *testing.T) {
	users := &stubUserService{
		setDefaultFn: func(string, string) (services.SavedAddress, error) {
			return services.SavedAddress{}, services.ErrUserAddressNotFound
		},
	}
	h := NewMeHandlers(nil, users)
	router := mountRoutes("/me", customerIdentity(), h.Routes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/me/addresses/ghost/default", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decodeErrorBody(t, rec); body["error"] != "address_not_found" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestAddPaymentMethodStoresTrimmedToken(t *testing.T) {
	var got services.AddPaymentMethodCommand
	users := &stubUserService{
		addPaymentMethodFn: func(cmd services.AddPaymentMethodCommand) (services.SavedPaymentMethod, error) {
			got = cmd
			return domain.SavedPaymentMethod{
				ID:       "pm-1",
				Provider: "stripe",
				Brand:    "visa",
				Last4:    "4242",
			}, nil
		},
	}
	h := NewMeHandlers(nil, users)
	router := mountRoutes("/me", customerIdentity(), h.Routes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/me/payment-methods", strings.NewReader(`{"token": " tok_visa "}`)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	if got.UserID != "user-1" || got.Token != "tok_visa" {
		t.Fatalf("command = %+v", got)
	}
	var resp struct {
		PaymentMethod struct {
			ID       string `json:"id"`
			Provider string `json:"provider"`
			Last4    string `json:"last4"`
		} `json:"payment_method"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PaymentMethod.Provider != "stripe" || resp.PaymentMethod.Last4 != "4242" {
		t.Fatalf("payment method = %+v", resp.PaymentMethod)
	}
}

func TestAddPaymentMethodMapsRejectedToken(t *testing.T) {
	users := &stubUserService{
		addPaymentMethodFn: func(services.AddPaymentMethodCommand) (services.SavedPaymentMethod, error) {
			return services.SavedPaymentMethod{}, services.ErrUserPaymentTokenRejected
		},
	}
	h := NewMeHandlers(nil, users)
	router := mountRoutes("/me", customerIdentity(), h.Routes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/me/payment-methods", strings.NewReader(`{"token": "tok_bad"}`)))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if body := decodeErrorBody(t, rec); body["error"] != "payment_token_rejected" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestRemovePaymentMethodReturnsNoContent(t *testing.T) {
	var gotID string
	users := &stubUserService{
		removePaymentFn: func(_, paymentMethodID string) error {
			gotID = paymentMethodID
			return nil
		},
	}
	h := NewMeHandlers(nil, users)
	router := mountRoutes("/me", customerIdentity(), h.Routes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/me/payment-methods/pm-1", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if gotID != "pm-1" {
		t.Fatalf("removed %q, want pm-1", gotID)
	}
}
