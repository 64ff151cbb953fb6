package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/stylehive/api/internal/domain"
	"github.com/stylehive/api/internal/payments"
	"github.com/stylehive/api/internal/platform/auth"
	"github.com/stylehive/api/internal/repositories"
)

var (
	// ErrUserInvalidInput indicates the caller supplied invalid profile data.
	ErrUserInvalidInput = errors.New("user service: invalid input")
	// ErrUserNotFound indicates no profile exists for the user.
	ErrUserNotFound = errors.New("user service: not found")
	// ErrUserUnavailable indicates the user backend cannot serve the request.
	ErrUserUnavailable = errors.New("user service: unavailable")
	// ErrUserAddressNotFound indicates the requested address does not exist.
	ErrUserAddressNotFound = errors.New("user service: address not found")
	// ErrUserPaymentMethodNotFound indicates the requested payment method does not exist.
	ErrUserPaymentMethodNotFound = errors.New("user service: payment method not found")
	// ErrUserPaymentMethodDuplicate indicates the provider token is already stored.
	ErrUserPaymentMethodDuplicate = errors.New("user service: payment method already exists")
	// ErrUserPaymentTokenRejected indicates the payments provider rejected the token.
	ErrUserPaymentTokenRejected = errors.New("user service: payment token rejected")
)

var (
	addressPhonePattern   = regexp.MustCompile(`^[0-9+()\-\s]{6,20}$`)
	addressCountryPattern = regexp.MustCompile(`^[A-Za-z]{2}$`)
	addressPostalPattern  = regexp.MustCompile(`^[0-9A-Za-z\-\s]{3,16}$`)
)

// PaymentMethodVerifier resolves a provider payment token into masked card
// metadata. Raw card numbers never reach this service.
type PaymentMethodVerifier interface {
	Lookup(ctx context.Context, token string) (payments.PaymentMethodDetails, error)
}

// UserServiceDeps bundles the dependencies required to construct a user service instance.
type UserServiceDeps struct {
	Users           repositories.UserRepository
	Addresses       repositories.AddressRepository
	PaymentMethods  repositories.PaymentMethodRepository
	PaymentVerifier PaymentMethodVerifier
	Firebase        auth.UserGetter
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users           repositories.UserRepository
	addresses       repositories.AddressRepository
	paymentMethods  repositories.PaymentMethodRepository
	paymentVerifier PaymentMethodVerifier
	firebase        auth.UserGetter
	clock           func() time.Time
	newID           func() string
	logger          func(context.Context, string, map[string]any)
}

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("user service: address repository is required")
	}
	if deps.PaymentMethods == nil {
		return nil, errors.New("user service: payment method repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &userService{
		users:           deps.Users,
		addresses:       deps.Addresses,
		paymentMethods:  deps.PaymentMethods,
		paymentVerifier: deps.PaymentVerifier,
		firebase:        deps.Firebase,
		clock:           func() time.Time { return clock().UTC() },
		newID:           idGen,
		logger:          logger,
	}, nil
}

// GetProfile returns the stored projection for the user. A missing projection
// is backfilled from the identity provider when a Firebase client is wired.
func (s *userService) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return UserProfile{}, ErrUserInvalidInput
	}

	profile, err := s.users.FindByID(ctx, uid)
	if err == nil {
		return profile, nil
	}
	if !isRepoNotFound(err) {
		return UserProfile{}, s.translateRepoError(err)
	}
	if s.firebase == nil {
		return UserProfile{}, ErrUserNotFound
	}

	record, err := s.firebase.GetUser(ctx, uid)
	if err != nil || record == nil {
		return UserProfile{}, ErrUserNotFound
	}

	now := s.clock()
	profile = domain.UserProfile{
		ID:           uid,
		DisplayName:  record.DisplayName,
		Email:        record.Email,
		PhoneNumber:  record.PhoneNumber,
		PhotoURL:     record.PhotoURL,
		IsActive:     !record.Disabled,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSyncTime: now,
	}
	saved, err := s.users.UpsertProfile(ctx, profile)
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}
	return saved, nil
}

// SyncProfile refreshes the stored projection from identity provider claims.
func (s *userService) SyncProfile(ctx context.Context, cmd SyncProfileCommand) (UserProfile, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return UserProfile{}, ErrUserInvalidInput
	}

	now := s.clock()
	profile, err := s.users.FindByID(ctx, uid)
	if err != nil {
		if !isRepoNotFound(err) {
			return UserProfile{}, s.translateRepoError(err)
		}
		profile = domain.UserProfile{ID: uid, IsActive: true, CreatedAt: now}
	}

	if name := strings.TrimSpace(cmd.DisplayName); name != "" {
		profile.DisplayName = name
	}
	if email := strings.TrimSpace(cmd.Email); email != "" {
		profile.Email = email
	}
	if phone := strings.TrimSpace(cmd.PhoneNumber); phone != "" {
		profile.PhoneNumber = phone
	}
	if photo := strings.TrimSpace(cmd.PhotoURL); photo != "" {
		profile.PhotoURL = photo
	}
	if len(cmd.Roles) > 0 {
		profile.Roles = cmd.Roles
	}
	profile.UpdatedAt = now
	profile.LastSyncTime = now

	saved, err := s.users.UpsertProfile(ctx, profile)
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}
	s.logger(ctx, "user.profile_synced", map[string]any{"user_id": uid})
	return saved, nil
}

func (s *userService) ListAddresses(ctx context.Context, userID string) ([]SavedAddress, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, ErrUserInvalidInput
	}
	addresses, err := s.addresses.List(ctx, uid)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return addresses, nil
}

func (s *userService) UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (SavedAddress, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return SavedAddress{}, ErrUserInvalidInput
	}
	if err := validateSavedAddress(cmd.Address); err != nil {
		return SavedAddress{}, err
	}

	now := s.clock()
	address := domain.SavedAddress{
		ID:        strings.TrimSpace(cmd.AddressID),
		Label:     strings.TrimSpace(cmd.Label),
		Address:   cmd.Address,
		IsDefault: cmd.IsDefault,
		UpdatedAt: now,
	}
	if address.ID == "" {
		address.ID = s.newID()
		address.CreatedAt = now
	} else {
		existing, err := s.addresses.Get(ctx, uid, address.ID)
		if err != nil {
			if isRepoNotFound(err) {
				return SavedAddress{}, ErrUserAddressNotFound
			}
			return SavedAddress{}, s.translateRepoError(err)
		}
		address.CreatedAt = existing.CreatedAt
	}

	saved, err := s.addresses.Upsert(ctx, uid, address)
	if err != nil {
		return SavedAddress{}, s.translateRepoError(err)
	}
	if cmd.IsDefault {
		saved, err = s.addresses.SetDefault(ctx, uid, saved.ID)
		if err != nil {
			return SavedAddress{}, s.translateRepoError(err)
		}
	}

	s.logger(ctx, "user.address_saved", map[string]any{"user_id": uid, "address_id": saved.ID})
	return saved, nil
}

// DeleteAddress removes a saved address. Deleting an absent address is a no-op.
func (s *userService) DeleteAddress(ctx context.Context, userID string, addressID string) error {
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(addressID)
	if uid == "" || id == "" {
		return ErrUserInvalidInput
	}
	if err := s.addresses.Delete(ctx, uid, id); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *userService) SetDefaultAddress(ctx context.Context, userID string, addressID string) (SavedAddress, error) {
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(addressID)
	if uid == "" || id == "" {
		return SavedAddress{}, ErrUserInvalidInput
	}
	address, err := s.addresses.SetDefault(ctx, uid, id)
	if err != nil {
		if isRepoNotFound(err) {
			return SavedAddress{}, ErrUserAddressNotFound
		}
		return SavedAddress{}, s.translateRepoError(err)
	}
	return address, nil
}

func (s *userService) ListPaymentMethods(ctx context.Context, userID string) ([]SavedPaymentMethod, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, ErrUserInvalidInput
	}
	methods, err := s.paymentMethods.List(ctx, uid)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return methods, nil
}

// AddPaymentMethod verifies the provider token and stores only the masked
// metadata the provider returns.
func (s *userService) AddPaymentMethod(ctx context.Context, cmd AddPaymentMethodCommand) (SavedPaymentMethod, error) {
	uid := strings.TrimSpace(cmd.UserID)
	token := strings.TrimSpace(cmd.Token)
	if uid == "" || token == "" {
		return SavedPaymentMethod{}, ErrUserInvalidInput
	}
	if s.paymentVerifier == nil {
		return SavedPaymentMethod{}, ErrUserUnavailable
	}

	details, err := s.paymentVerifier.Lookup(ctx, token)
	if err != nil {
		return SavedPaymentMethod{}, fmt.Errorf("%w: %v", ErrUserPaymentTokenRejected, err)
	}

	existing, err := s.paymentMethods.List(ctx, uid)
	if err != nil {
		return SavedPaymentMethod{}, s.translateRepoError(err)
	}
	for _, method := range existing {
		if method.Reference == details.Token {
			return SavedPaymentMethod{}, ErrUserPaymentMethodDuplicate
		}
	}

	method := domain.SavedPaymentMethod{
		ID:        s.newID(),
		Provider:  "stripe",
		Reference: details.Token,
		Brand:     details.Brand,
		Last4:     details.Last4,
		ExpMonth:  details.ExpMonth,
		ExpYear:   details.ExpYear,
		CreatedAt: s.clock(),
	}
	saved, err := s.paymentMethods.Insert(ctx, uid, method)
	if err != nil {
		if isRepoConflict(err) {
			return SavedPaymentMethod{}, ErrUserPaymentMethodDuplicate
		}
		return SavedPaymentMethod{}, s.translateRepoError(err)
	}

	s.logger(ctx, "user.payment_method_added", map[string]any{
		"user_id": uid,
		"brand":   saved.Brand,
		"last4":   saved.Last4,
	})
	return saved, nil
}

// RemovePaymentMethod drops the stored reference. Removing an absent method is a no-op.
func (s *userService) RemovePaymentMethod(ctx context.Context, userID string, paymentMethodID string) error {
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(paymentMethodID)
	if uid == "" || id == "" {
		return ErrUserInvalidInput
	}
	if err := s.paymentMethods.Delete(ctx, uid, id); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *userService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return ErrUserNotFound
	default:
		return ErrUserUnavailable
	}
}

func validateSavedAddress(addr domain.Address) error {
	if strings.TrimSpace(addr.FullName) == "" {
		return fmt.Errorf("%w: recipient name is required", ErrUserInvalidInput)
	}
	if strings.TrimSpace(addr.Line1) == "" {
		return fmt.Errorf("%w: address line1 is required", ErrUserInvalidInput)
	}
	if strings.TrimSpace(addr.City) == "" {
		return fmt.Errorf("%w: city is required", ErrUserInvalidInput)
	}
	if !addressPostalPattern.MatchString(strings.TrimSpace(addr.PostalCode)) {
		return fmt.Errorf("%w: postal code is malformed", ErrUserInvalidInput)
	}
	if !addressCountryPattern.MatchString(strings.TrimSpace(addr.Country)) {
		return fmt.Errorf("%w: country must be a two letter code", ErrUserInvalidInput)
	}
	if phone := strings.TrimSpace(addr.Phone); phone != "" && !addressPhonePattern.MatchString(phone) {
		return fmt.Errorf("%w: phone number is malformed", ErrUserInvalidInput)
	}
	return nil
}
