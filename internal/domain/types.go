package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// SizeStock tracks the sellable units for one size label of a product.
type SizeStock struct {
	Size     string
	Quantity int
}

// Product is the catalog record shared across layers. Monetary amounts are in
// the smallest currency unit.
type Product struct {
	ID             string
	SKU            string
	Name           string
	Description    string
	Category       string
	Price          int64
	DiscountPrice  *int64
	Currency       string
	Images         []string
	AvailableSizes []SizeStock
	IsPublished    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EffectivePrice returns the discount price when one is set, otherwise the
// list price.
func (p Product) EffectivePrice() int64 {
	if p.DiscountPrice != nil && *p.DiscountPrice > 0 && *p.DiscountPrice < p.Price {
		return *p.DiscountPrice
	}
	return p.Price
}

// SizeQuantity reports the stock count for a size label.
func (p Product) SizeQuantity(size string) (int, bool) {
	for _, s := range p.AvailableSizes {
		if strings.EqualFold(s.Size, size) {
			return s.Quantity, true
		}
	}
	return 0, false
}

// PrimaryImage returns the first image reference or an empty string.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Cart aggregates the mutable shopping cart state for a user. A cart is keyed
// by its owner; at most one item exists per (ProductID, Size) pair.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem stores a single (product, size) line within a cart.
type CartItem struct {
	ProductID string
	SKU       string
	Size      string
	Quantity  int
	UnitPrice int64
	AddedAt   time.Time
	UpdatedAt *time.Time
}

// FindItem locates the cart line for a (productID, size) pair.
func (c Cart) FindItem(productID, size string) (int, bool) {
	for i, item := range c.Items {
		if item.ProductID == productID && strings.EqualFold(item.Size, size) {
			return i, true
		}
	}
	return -1, false
}

// Address represents the postal address structure shared by user and order
// layers.
type Address struct {
	FullName   string
	Email      string
	Phone      string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
}

// PaymentMethod tags how the customer intends to pay. No charge is processed
// by this service; the tag and masked details are recorded on the order.
type PaymentMethod string

const (
	// PaymentMethodCard indicates payment by card.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodCOD indicates cash on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
)

// PaymentDetails carries masked card metadata only. Raw card numbers never
// enter the system.
type PaymentDetails struct {
	CardBrand    string
	CardLastFour string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPlaced indicates the order has been accepted and stock deducted.
	OrderStatusPlaced OrderStatus = "placed"
	// OrderStatusProcessing indicates fulfillment has started.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before delivery.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further status transitions are permitted.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// TimelineEntry records one status transition on an order.
type TimelineEntry struct {
	Status    OrderStatus
	Timestamp time.Time
	Note      string
}

// OrderItem snapshots a product line at placement time. Later catalog changes
// never alter it.
type OrderItem struct {
	ProductID string
	SKU       string
	Name      string
	Image     string
	Size      string
	UnitPrice int64
	Quantity  int
	Total     int64
}

// Order captures the durable order record. Items, ShippingAddress,
// PaymentMethod, PaymentDetails and Pricing are immutable after creation;
// only Status, Timeline and UpdatedAt change.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Status          OrderStatus
	Currency        string
	Items           []OrderItem
	ShippingAddress Address
	PaymentMethod   PaymentMethod
	PaymentDetails  *PaymentDetails
	Pricing         Pricing
	Timeline        []TimelineEntry
	CancelReason    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderEvent describes an order lifecycle notification published for
// downstream consumers (fulfillment, notifications).
type OrderEvent struct {
	ID         string
	Type       string
	OrderID    string
	UserID     string
	OccurredAt time.Time
	Payload    map[string]any
}

// UserProfile captures the canonical projection of a Firebase Auth user.
type UserProfile struct {
	ID           string
	DisplayName  string
	Email        string
	PhoneNumber  string
	PhotoURL     string
	Roles        []string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSyncTime time.Time
}

// SavedAddress stores a reusable shipping address in the user's address book.
type SavedAddress struct {
	ID        string
	Label     string
	Address   Address
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SavedPaymentMethod stores provider-backed payment references without
// sensitive card data.
type SavedPaymentMethod struct {
	ID        string
	Provider  string
	Reference string
	Brand     string
	Last4     string
	ExpMonth  int
	ExpYear   int
	CreatedAt time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
