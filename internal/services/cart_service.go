package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/stylehive/api/internal/domain"
	"github.com/stylehive/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: cart repository is required")
	errCartProductsRequired   = errors.New("cart service: product repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartProductNotFound indicates the referenced product does not exist or is not published.
var ErrCartProductNotFound = errors.New("cart service: product not found")

// ErrCartLineNotFound indicates the referenced cart line does not exist.
var ErrCartLineNotFound = errors.New("cart service: line not found")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// CartServiceDeps wires the repositories and pricing configuration for cart operations.
type CartServiceDeps struct {
	Repository      repositories.CartRepository
	Products        repositories.ProductRepository
	Pricing         domain.PricingConfig
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
}

type cartService struct {
	repo     repositories.CartRepository
	products repositories.ProductRepository
	pricing  domain.PricingConfig
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errCartProductsRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	defaultCurrency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}

	pricing := deps.Pricing
	if pricing.TaxRate == 0 && pricing.FreeShippingThreshold == 0 && pricing.FlatShippingFee == 0 {
		pricing = domain.DefaultPricingConfig()
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	service := &cartService{
		repo:     deps.Repository,
		products: deps.Products,
		pricing:  pricing,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: defaultCurrency,
		logger:   logger,
	}
	return service, nil
}

// GetCart loads the user's cart. A user with no stored cart gets an empty one.
func (s *cartService) GetCart(ctx context.Context, userID string) (CartView, error) {
	if s == nil || s.repo == nil {
		return CartView{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CartView{}, ErrCartInvalidInput
	}

	cart, err := s.repo.Get(ctx, uid)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	return s.view(s.normaliseCart(cart, uid)), nil
}

// AddItem merges the requested quantity into the (product, size) line,
// bounded by the live stock for that size.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	if s == nil || s.repo == nil {
		return CartView{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	size := strings.TrimSpace(cmd.Size)
	if uid == "" || productID == "" || size == "" || cmd.Quantity <= 0 {
		return CartView{}, ErrCartInvalidInput
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return CartView{}, ErrCartProductNotFound
		}
		return CartView{}, s.translateRepoError(err)
	}
	if !product.IsPublished {
		return CartView{}, ErrCartProductNotFound
	}

	available, ok := product.SizeQuantity(size)
	if !ok {
		return CartView{}, ErrCartProductNotFound
	}

	cart, err := s.repo.Get(ctx, uid)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	cart = s.normaliseCart(cart, uid)

	now := s.now()
	merged := cmd.Quantity
	idx, found := cart.FindItem(productID, size)
	if found {
		merged += cart.Items[idx].Quantity
	}
	if merged > available {
		return CartView{}, &InsufficientStockError{
			ProductID: productID,
			Size:      size,
			Requested: merged,
			Available: available,
		}
	}

	if found {
		cart.Items[idx].Quantity = merged
		cart.Items[idx].UnitPrice = product.EffectivePrice()
		cart.Items[idx].UpdatedAt = &now
	} else {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: productID,
			SKU:       product.SKU,
			Size:      size,
			Quantity:  merged,
			UnitPrice: product.EffectivePrice(),
			AddedAt:   now,
		})
	}
	cart.UpdatedAt = now

	saved, err := s.repo.Save(ctx, cart)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.item_added", map[string]any{
		"user_id":    uid,
		"product_id": productID,
		"size":       size,
		"quantity":   merged,
	})
	return s.view(saved), nil
}

// UpdateItem replaces the quantity of an existing line.
func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error) {
	if s == nil || s.repo == nil {
		return CartView{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	size := strings.TrimSpace(cmd.Size)
	if uid == "" || productID == "" || size == "" || cmd.Quantity <= 0 {
		return CartView{}, ErrCartInvalidInput
	}

	cart, err := s.repo.Get(ctx, uid)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	cart = s.normaliseCart(cart, uid)

	idx, found := cart.FindItem(productID, size)
	if !found {
		return CartView{}, ErrCartLineNotFound
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return CartView{}, ErrCartProductNotFound
		}
		return CartView{}, s.translateRepoError(err)
	}
	available, ok := product.SizeQuantity(size)
	if !ok {
		return CartView{}, ErrCartProductNotFound
	}
	if cmd.Quantity > available {
		return CartView{}, &InsufficientStockError{
			ProductID: productID,
			Size:      size,
			Requested: cmd.Quantity,
			Available: available,
		}
	}

	now := s.now()
	cart.Items[idx].Quantity = cmd.Quantity
	cart.Items[idx].UnitPrice = product.EffectivePrice()
	cart.Items[idx].UpdatedAt = &now
	cart.UpdatedAt = now

	saved, err := s.repo.Save(ctx, cart)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.item_updated", map[string]any{
		"user_id":    uid,
		"product_id": productID,
		"size":       size,
		"quantity":   cmd.Quantity,
	})
	return s.view(saved), nil
}

// RemoveItem drops a line from the cart. Removing an absent line is a no-op.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error) {
	if s == nil || s.repo == nil {
		return CartView{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	size := strings.TrimSpace(cmd.Size)
	if uid == "" || productID == "" || size == "" {
		return CartView{}, ErrCartInvalidInput
	}

	cart, err := s.repo.Get(ctx, uid)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}
	cart = s.normaliseCart(cart, uid)

	kept := cart.Items[:0]
	removed := false
	for _, item := range cart.Items {
		if item.ProductID == productID && strings.EqualFold(item.Size, size) {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return s.view(cart), nil
	}

	cart.Items = kept
	cart.UpdatedAt = s.now()

	saved, err := s.repo.Save(ctx, cart)
	if err != nil {
		return CartView{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.item_removed", map[string]any{
		"user_id":    uid,
		"product_id": productID,
		"size":       size,
	})
	return s.view(saved), nil
}

// ClearCart removes every line from the user's cart.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	if s == nil || s.repo == nil {
		return ErrCartUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrCartInvalidInput
	}

	if err := s.repo.Clear(ctx, uid); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "cart.cleared", map[string]any{"user_id": uid})
	return nil
}

func (s *cartService) view(cart domain.Cart) CartView {
	lines := make([]domain.PricingLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, domain.PricingLine{UnitPrice: item.UnitPrice, Quantity: item.Quantity})
	}
	return CartView{
		Cart:     cart,
		Estimate: s.pricing.Calculate(lines, 0),
	}
}

func (s *cartService) normaliseCart(cart domain.Cart, userID string) domain.Cart {
	cart.UserID = userID
	if strings.TrimSpace(cart.Currency) == "" {
		cart.Currency = s.currency
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return cart
}

func (s *cartService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return ErrCartLineNotFound
	case isRepoConflict(err):
		return ErrCartConflict
	default:
		return ErrCartUnavailable
	}
}
