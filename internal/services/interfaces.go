package services

import (
	"context"
	"time"

	domain "github.com/stylehive/api/internal/domain"
)

// Type aliases keep handler signatures tied to the domain package without a
// second import.
type (
	Product            = domain.Product
	SizeStock          = domain.SizeStock
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	TimelineEntry      = domain.TimelineEntry
	Address            = domain.Address
	PaymentMethod      = domain.PaymentMethod
	PaymentDetails     = domain.PaymentDetails
	Pricing            = domain.Pricing
	UserProfile        = domain.UserProfile
	SavedAddress       = domain.SavedAddress
	SavedPaymentMethod = domain.SavedPaymentMethod
	OrderEvent         = domain.OrderEvent
	SystemHealthReport = domain.SystemHealthReport
	Pagination         = domain.Pagination
)

// CursorPage re-exports the generic page container for handler layers.
type CursorPage[T any] = domain.CursorPage[T]

// CatalogService manages products and their per-size stock.
type CatalogService interface {
	ListProducts(ctx context.Context, query ListProductsQuery) (CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	Restock(ctx context.Context, cmd RestockCommand) (Product, error)
	ImageUploadURL(ctx context.Context, cmd ProductImageUploadCommand) (SignedImageUpload, error)
}

// CartService manages the per-user cart working state.
type CartService interface {
	GetCart(ctx context.Context, userID string) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error)
	ClearCart(ctx context.Context, userID string) error
}

// OrderService places orders atomically and drives the status timeline.
type OrderService interface {
	Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, userID string, orderID string) (Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) (CursorPage[Order], error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	TransitionStatus(ctx context.Context, cmd TransitionOrderStatusCommand) (Order, error)
}

// UserService manages profile projections, the address book and stored
// payment method references.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (UserProfile, error)
	SyncProfile(ctx context.Context, cmd SyncProfileCommand) (UserProfile, error)

	ListAddresses(ctx context.Context, userID string) ([]SavedAddress, error)
	UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (SavedAddress, error)
	DeleteAddress(ctx context.Context, userID string, addressID string) error
	SetDefaultAddress(ctx context.Context, userID string, addressID string) (SavedAddress, error)

	ListPaymentMethods(ctx context.Context, userID string) ([]SavedPaymentMethod, error)
	AddPaymentMethod(ctx context.Context, cmd AddPaymentMethodCommand) (SavedPaymentMethod, error)
	RemovePaymentMethod(ctx context.Context, userID string, paymentMethodID string) error
}

// SystemService surfaces dependency health for liveness/readiness endpoints.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher delivers order lifecycle events to downstream
// consumers. Implementations must be safe for concurrent use.
type OrderEventPublisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}

// CartView pairs the stored cart with an informational pricing estimate
// computed from the same calculator the placement path uses.
type CartView struct {
	Cart     Cart
	Estimate Pricing
}

// SignedImageUpload carries a signed URL for a product image upload.
type SignedImageUpload struct {
	ImagePath string
	URL       string
	Method    string
	Headers   map[string]string
	ExpiresAt time.Time
}

// Commands and queries ------------------------------------------------------

// ListProductsQuery filters public or admin catalog listings.
type ListProductsQuery struct {
	Category      *string
	Search        string
	IncludeHidden bool
	SortOrder     domain.SortOrder
	Pagination    Pagination
	SignImageURLs bool
}

// CreateProductCommand captures the admin payload for a new product.
type CreateProductCommand struct {
	SKU           string
	Name          string
	Description   string
	Category      string
	Price         int64
	DiscountPrice *int64
	Currency      string
	Images        []string
	Sizes         []SizeStock
	IsPublished   bool
}

// UpdateProductCommand mutates an existing product. Nil fields keep their
// stored value.
type UpdateProductCommand struct {
	ProductID     string
	SKU           *string
	Name          *string
	Description   *string
	Category      *string
	Price         *int64
	DiscountPrice *int64
	ClearDiscount bool
	Images        []string
	Sizes         []SizeStock
	IsPublished   *bool
}

// RestockCommand adds stock to one size of a product.
type RestockCommand struct {
	ProductID string
	Size      string
	Quantity  int
}

// ProductImageUploadCommand requests a signed upload URL for a product image.
type ProductImageUploadCommand struct {
	ProductID   string
	FileName    string
	ContentType string
}

// AddCartItemCommand merges a (product, size) line into the cart.
type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Size      string
	Quantity  int
}

// UpdateCartItemCommand replaces the quantity of an existing line.
type UpdateCartItemCommand struct {
	UserID    string
	ProductID string
	Size      string
	Quantity  int
}

// RemoveCartItemCommand removes a line. Removing an absent line is a no-op.
type RemoveCartItemCommand struct {
	UserID    string
	ProductID string
	Size      string
}

// OrderLineInput is one requested (product, size, quantity) line.
type OrderLineInput struct {
	ProductID string
	Size      string
	Quantity  int
}

// PlaceOrderCommand is the orchestrator input. PaymentDetails carries masked
// card metadata only, never a raw card number.
type PlaceOrderCommand struct {
	UserID          string
	Items           []OrderLineInput
	ShippingAddress Address
	PaymentMethod   PaymentMethod
	PaymentDetails  *PaymentDetails
}

// ListOrdersQuery scopes order listings to their owner.
type ListOrdersQuery struct {
	UserID     string
	Status     []OrderStatus
	Pagination Pagination
}

// CancelOrderCommand cancels a customer's own order.
type CancelOrderCommand struct {
	UserID  string
	OrderID string
	Reason  string
}

// TransitionOrderStatusCommand advances the fulfillment status timeline.
type TransitionOrderStatusCommand struct {
	OrderID string
	Status  OrderStatus
	Note    string
	Actor   string
}

// SyncProfileCommand refreshes the stored profile projection from the
// identity provider record.
type SyncProfileCommand struct {
	UserID      string
	DisplayName string
	Email       string
	PhoneNumber string
	PhotoURL    string
	Roles       []string
}

// UpsertAddressCommand creates or updates a saved address.
type UpsertAddressCommand struct {
	UserID    string
	AddressID string
	Label     string
	Address   Address
	IsDefault bool
}

// AddPaymentMethodCommand registers a provider payment token. The token is
// verified with the payments provider; only the returned masked metadata is
// stored.
type AddPaymentMethodCommand struct {
	UserID string
	Token  string
}
