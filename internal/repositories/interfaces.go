package repositories

import (
	"context"
	"time"

	domain "github.com/stylehive/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository owns the catalog: product documents and their per-size
// stock counts.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindBySKU(ctx context.Context, sku string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	// AdjustStock applies a signed delta to one size's quantity inside a
	// transaction. The resulting quantity must stay >= 0 or the call fails
	// with a StockError.
	AdjustStock(ctx context.Context, productID string, size string, delta int) (domain.Product, error)
}

// CartRepository persists one cart document per user.
type CartRepository interface {
	// Get returns the user's cart, or an empty cart when none exists.
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// StockLine identifies one (product, size) decrement requested by an order.
type StockLine struct {
	ProductID string
	Size      string
	Quantity  int
}

// OrderBuilder assembles the order record once stock and order number are
// secured. It runs inside the placement transaction and must be pure: the
// products map holds the live catalog state read in the same transaction.
type OrderBuilder func(products map[string]domain.Product, orderNumber string) (domain.Order, error)

// OrderPlacement carries everything the store needs to commit one order
// atomically: conditional stock decrements for every line, order number
// allocation, order insert and cart clear all succeed or all roll back.
type OrderPlacement struct {
	UserID string
	Lines  []StockLine
	Build  OrderBuilder
	Now    time.Time
}

// OrderRepository persists order records. Orders are append-only: after
// Place only the status and timeline change, through UpdateStatus.
type OrderRepository interface {
	Place(ctx context.Context, placement OrderPlacement) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// UpdateStatus reads the order, applies the mutator and writes the result
	// in one transaction. The mutator may only touch Status, Timeline,
	// CancelReason and UpdatedAt.
	UpdateStatus(ctx context.Context, orderID string, apply StatusMutator) (domain.Order, error)
}

// StatusMutator transforms an order during a transactional status update.
type StatusMutator func(order domain.Order) (domain.Order, error)

// UserRepository stores user profile projections synced from Firebase Auth.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	UpsertProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
}

// AddressRepository stores the per-user shipping address book.
type AddressRepository interface {
	List(ctx context.Context, userID string) ([]domain.SavedAddress, error)
	Get(ctx context.Context, userID string, addressID string) (domain.SavedAddress, error)
	Upsert(ctx context.Context, userID string, address domain.SavedAddress) (domain.SavedAddress, error)
	Delete(ctx context.Context, userID string, addressID string) error
	SetDefault(ctx context.Context, userID string, addressID string) (domain.SavedAddress, error)
}

// PaymentMethodRepository stores provider reference tokens per user. Only
// masked card metadata is persisted.
type PaymentMethodRepository interface {
	List(ctx context.Context, userID string) ([]domain.SavedPaymentMethod, error)
	Get(ctx context.Context, userID string, paymentMethodID string) (domain.SavedPaymentMethod, error)
	Insert(ctx context.Context, userID string, method domain.SavedPaymentMethod) (domain.SavedPaymentMethod, error)
	Delete(ctx context.Context, userID string, paymentMethodID string) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

// ProductListFilter controls catalog listings.
type ProductListFilter struct {
	Category      *string
	Search        string
	OnlyPublished bool
	SortOrder     domain.SortOrder
	Pagination    domain.Pagination
}

// OrderListFilter scopes order listings to a user and optional statuses.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}
