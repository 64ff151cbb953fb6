package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/stylehive/api/internal/domain"
	"github.com/stylehive/api/internal/repositories"
)

const (
	orderEventPlaced        = "order.placed"
	orderEventStatusChanged = "order.status_changed"
	orderEventCancelled     = "order.cancelled"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order service: invalid input")
	// ErrOrderEmpty indicates a placement request with no items.
	ErrOrderEmpty = errors.New("order service: order has no items")
	// ErrOrderNotFound indicates the order could not be located for the caller.
	ErrOrderNotFound = errors.New("order service: not found")
	// ErrOrderProductNotFound indicates a requested product or size does not exist.
	ErrOrderProductNotFound = errors.New("order service: product not found")
	// ErrOrderInvalidTransition indicates an illegal status transition was attempted.
	ErrOrderInvalidTransition = errors.New("order service: invalid status transition")
	// ErrOrderConflict indicates a duplicate order number or conflicting write.
	ErrOrderConflict = errors.New("order service: conflict")
	// ErrOrderAborted indicates the placement transaction was aborted by
	// contention and may be retried.
	ErrOrderAborted = errors.New("order service: transaction aborted")
	// ErrOrderUnavailable indicates the order backend cannot serve the request.
	ErrOrderUnavailable = errors.New("order service: unavailable")
)

// Legal forward transitions. Cancellation is a side exit from every
// non-terminal state.
var orderStatusTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPlaced:     {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
}

func canTransition(from, to domain.OrderStatus) bool {
	for _, next := range orderStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Pricing     domain.PricingConfig
	Clock       func() time.Time
	IDGenerator func() string
	Currency    string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	pricing  domain.PricingConfig
	clock    func() time.Time
	newID    func() string
	currency string
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	pricing := deps.Pricing
	if pricing.TaxRate == 0 && pricing.FreeShippingThreshold == 0 && pricing.FlatShippingFee == 0 {
		pricing = domain.DefaultPricingConfig()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "USD"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:  deps.Orders,
		pricing: pricing,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		currency: currency,
		events:   deps.Events,
		logger:   logger,
	}, nil
}

// Place validates the request, then hands the repository one atomic unit:
// conditional stock decrements, order number allocation, the order insert and
// the cart clear commit together or not at all. The builder snapshots product
// name, image and price from the same transactional read the stock check used.
func (s *orderService) Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, ErrOrderEmpty
	}
	lines, err := mergeOrderLines(cmd.Items)
	if err != nil {
		return Order{}, err
	}
	if err := validateShippingAddress(cmd.ShippingAddress); err != nil {
		return Order{}, err
	}
	if err := validatePayment(cmd.PaymentMethod, cmd.PaymentDetails); err != nil {
		return Order{}, err
	}

	now := s.clock()
	placement := repositories.OrderPlacement{
		UserID: userID,
		Lines:  lines,
		Now:    now,
		Build: func(products map[string]domain.Product, orderNumber string) (domain.Order, error) {
			items := make([]domain.OrderItem, 0, len(lines))
			pricingLines := make([]domain.PricingLine, 0, len(lines))
			for _, line := range lines {
				product, ok := products[line.ProductID]
				if !ok || !product.IsPublished {
					return domain.Order{}, fmt.Errorf("%w: product %s", ErrOrderProductNotFound, line.ProductID)
				}
				unitPrice := product.EffectivePrice()
				items = append(items, domain.OrderItem{
					ProductID: line.ProductID,
					SKU:       product.SKU,
					Name:      product.Name,
					Image:     product.PrimaryImage(),
					Size:      line.Size,
					UnitPrice: unitPrice,
					Quantity:  line.Quantity,
					Total:     unitPrice * int64(line.Quantity),
				})
				pricingLines = append(pricingLines, domain.PricingLine{UnitPrice: unitPrice, Quantity: line.Quantity})
			}

			return domain.Order{
				ID:              s.newID(),
				OrderNumber:     orderNumber,
				UserID:          userID,
				Status:          domain.OrderStatusPlaced,
				Currency:        s.currency,
				Items:           items,
				ShippingAddress: cmd.ShippingAddress,
				PaymentMethod:   cmd.PaymentMethod,
				PaymentDetails:  cmd.PaymentDetails,
				Pricing:         s.pricing.Calculate(pricingLines, 0),
				Timeline: []domain.TimelineEntry{
					{Status: domain.OrderStatusPlaced, Timestamp: now, Note: "order placed"},
				},
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		},
	}

	order, err := s.orders.Place(ctx, placement)
	if err != nil {
		return Order{}, s.translatePlaceError(err)
	}

	s.logger(ctx, "order.placed", map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"user_id":      order.UserID,
		"total":        order.Pricing.Total,
	})
	s.publish(ctx, orderEventPlaced, order, "")
	return order, nil
}

// GetOrder loads one order for its owner. Orders belonging to another user
// are reported as missing rather than forbidden.
func (s *orderService) GetOrder(ctx context.Context, userID string, orderID string) (Order, error) {
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(orderID)
	if uid == "" || id == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if order.UserID != uid {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) (CursorPage[Order], error) {
	uid := strings.TrimSpace(query.UserID)
	if uid == "" {
		return CursorPage[Order]{}, ErrOrderInvalidInput
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     uid,
		Status:     query.Status,
		Pagination: query.Pagination,
	})
	if err != nil {
		return CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

// Cancel lets a customer cancel their own order while it is still in the
// placed state.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	uid := strings.TrimSpace(cmd.UserID)
	id := strings.TrimSpace(cmd.OrderID)
	if uid == "" || id == "" {
		return Order{}, ErrOrderInvalidInput
	}

	now := s.clock()
	reason := strings.TrimSpace(cmd.Reason)
	var previous domain.OrderStatus
	order, err := s.orders.UpdateStatus(ctx, id, func(order domain.Order) (domain.Order, error) {
		if order.UserID != uid {
			return domain.Order{}, ErrOrderNotFound
		}
		if order.Status != domain.OrderStatusPlaced {
			return domain.Order{}, fmt.Errorf("%w: cannot cancel order in status %s", ErrOrderInvalidTransition, order.Status)
		}
		previous = order.Status

		note := "cancelled by customer"
		if reason != "" {
			note = reason
		}
		order.Status = domain.OrderStatusCancelled
		order.Timeline = append(order.Timeline, domain.TimelineEntry{
			Status:    domain.OrderStatusCancelled,
			Timestamp: now,
			Note:      note,
		})
		order.CancelReason = &note
		order.UpdatedAt = now
		return order, nil
	})
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.logger(ctx, "order.cancelled", map[string]any{
		"order_id": order.ID,
		"user_id":  uid,
		"from":     string(previous),
	})
	s.publish(ctx, orderEventCancelled, order, previous)
	return order, nil
}

// TransitionStatus advances the fulfillment timeline along the legal graph.
func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionOrderStatusCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, ErrOrderInvalidInput
	}
	target := cmd.Status
	switch target {
	case domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled:
	default:
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}

	now := s.clock()
	note := strings.TrimSpace(cmd.Note)
	var previous domain.OrderStatus
	order, err := s.orders.UpdateStatus(ctx, id, func(order domain.Order) (domain.Order, error) {
		if !canTransition(order.Status, target) {
			return domain.Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, target)
		}
		previous = order.Status

		order.Status = target
		order.Timeline = append(order.Timeline, domain.TimelineEntry{
			Status:    target,
			Timestamp: now,
			Note:      note,
		})
		if target == domain.OrderStatusCancelled {
			cancelNote := note
			if cancelNote == "" {
				cancelNote = "cancelled by fulfillment"
			}
			order.CancelReason = &cancelNote
		}
		order.UpdatedAt = now
		return order, nil
	})
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.logger(ctx, "order.status_changed", map[string]any{
		"order_id": order.ID,
		"from":     string(previous),
		"to":       string(target),
		"actor":    strings.TrimSpace(cmd.Actor),
	})
	s.publish(ctx, orderEventStatusChanged, order, previous)
	return order, nil
}

// publish emits an order lifecycle event. Delivery is best effort; a publish
// failure never fails the committed operation.
func (s *orderService) publish(ctx context.Context, eventType string, order domain.Order, previous domain.OrderStatus) {
	if s.events == nil {
		return
	}
	event := domain.OrderEvent{
		ID:         s.newID(),
		Type:       eventType,
		OrderID:    order.ID,
		UserID:     order.UserID,
		OccurredAt: s.clock(),
		Payload: map[string]any{
			"orderNumber": order.OrderNumber,
			"status":      string(order.Status),
			"total":       order.Pricing.Total,
		},
	}
	if previous != "" {
		event.Payload["previousStatus"] = string(previous)
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"order_id": order.ID,
			"type":     eventType,
			"error":    err.Error(),
		})
	}
}

// mergeOrderLines validates each requested line and merges duplicates of the
// same (product, size) pair, preserving first-seen order.
func mergeOrderLines(items []OrderLineInput) ([]repositories.StockLine, error) {
	merged := make([]repositories.StockLine, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		size := strings.TrimSpace(item.Size)
		if productID == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
		}
		if size == "" {
			return nil, fmt.Errorf("%w: size is required for product %s", ErrOrderInvalidInput, productID)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for product %s must be positive", ErrOrderInvalidInput, productID)
		}

		key := productID + "\x00" + strings.ToLower(size)
		if i, seen := index[key]; seen {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[key] = len(merged)
		merged = append(merged, repositories.StockLine{ProductID: productID, Size: size, Quantity: item.Quantity})
	}
	return merged, nil
}

func validateShippingAddress(addr Address) error {
	if strings.TrimSpace(addr.FullName) == "" {
		return fmt.Errorf("%w: shipping address full name is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.Line1) == "" {
		return fmt.Errorf("%w: shipping address line1 is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.City) == "" {
		return fmt.Errorf("%w: shipping address city is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		return fmt.Errorf("%w: shipping address postal code is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.Country) == "" {
		return fmt.Errorf("%w: shipping address country is required", ErrOrderInvalidInput)
	}
	if email := strings.TrimSpace(addr.Email); email != "" && !strings.Contains(email, "@") {
		return fmt.Errorf("%w: shipping address email is malformed", ErrOrderInvalidInput)
	}
	return nil
}

func validatePayment(method PaymentMethod, details *PaymentDetails) error {
	switch method {
	case domain.PaymentMethodCard:
		if details == nil {
			return fmt.Errorf("%w: card payments require payment details", ErrOrderInvalidInput)
		}
		last4 := strings.TrimSpace(details.CardLastFour)
		if len(last4) != 4 {
			return fmt.Errorf("%w: card last four must be 4 digits", ErrOrderInvalidInput)
		}
		for _, r := range last4 {
			if r < '0' || r > '9' {
				return fmt.Errorf("%w: card last four must be 4 digits", ErrOrderInvalidInput)
			}
		}
		return nil
	case domain.PaymentMethodCOD:
		return nil
	default:
		return fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, method)
	}
}

// translatePlaceError maps placement failures onto the service error surface.
// Stock shortfalls keep their per-line detail.
func (s *orderService) translatePlaceError(err error) error {
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Code == repositories.StockErrorSizeNotFound {
			return fmt.Errorf("%w: product %s has no size %s", ErrOrderProductNotFound, stockErr.ProductID, stockErr.Size)
		}
		return newInsufficientStockError(stockErr)
	}
	var numberErr *repositories.OrderNumberError
	if errors.As(err, &numberErr) {
		return fmt.Errorf("%w: %s", ErrOrderConflict, numberErr.Message)
	}
	if errors.Is(err, ErrOrderProductNotFound) {
		return err
	}
	switch {
	case isRepoNotFound(err):
		return ErrOrderProductNotFound
	case isRepoConflict(err):
		return ErrOrderAborted
	case isRepoUnavailable(err):
		return ErrOrderUnavailable
	default:
		return ErrOrderUnavailable
	}
}

func (s *orderService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrOrderInvalidTransition):
		return err
	case isRepoNotFound(err):
		return ErrOrderNotFound
	case isRepoConflict(err):
		return ErrOrderConflict
	case isRepoUnavailable(err):
		return ErrOrderUnavailable
	default:
		return ErrOrderUnavailable
	}
}
