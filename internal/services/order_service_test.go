package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/stylehive/api/internal/domain"
	"github.com/stylehive/api/internal/repositories"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// fakeOrderRepository delegates to function fields so each test wires only
// the calls it expects.
type fakeOrderRepository struct {
	placeFn        func(ctx context.Context, placement repositories.OrderPlacement) (domain.Order, error)
	findByIDFn     func(ctx context.Context, orderID string) (domain.Order, error)
	listFn         func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	updateStatusFn func(ctx context.Context, orderID string, apply repositories.StatusMutator) (domain.Order, error)
}

func (f *fakeOrderRepository) Place(ctx context.Context, placement repositories.OrderPlacement) (domain.Order, error) {
	if f.placeFn == nil {
		return domain.Order{}, errors.New("unexpected Place call")
	}
	return f.placeFn(ctx, placement)
}

func (f *fakeOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if f.findByIDFn == nil {
		return domain.Order{}, errors.New("unexpected FindByID call")
	}
	return f.findByIDFn(ctx, orderID)
}

func (f *fakeOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if f.listFn == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("unexpected List call")
	}
	return f.listFn(ctx, filter)
}

func (f *fakeOrderRepository) UpdateStatus(ctx context.Context, orderID string, apply repositories.StatusMutator) (domain.Order, error) {
	if f.updateStatusFn == nil {
		return domain.Order{}, errors.New("unexpected UpdateStatus call")
	}
	return f.updateStatusFn(ctx, orderID, apply)
}

// repoFault implements repositories.RepositoryError with configurable flags.
type repoFault struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (f repoFault) Error() string       { return "repository fault" }
func (f repoFault) IsNotFound() bool    { return f.notFound }
func (f repoFault) IsConflict() bool    { return f.conflict }
func (f repoFault) IsUnavailable() bool { return f.unavailable }

type capturingPublisher struct {
	events []domain.OrderEvent
	err    error
}

func (p *capturingPublisher) Publish(_ context.Context, event domain.OrderEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func sequentialIDs(prefix string) func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newOrderServiceForTest(t *testing.T, repo repositories.OrderRepository, events OrderEventPublisher) OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      repo,
		Clock:       func() time.Time { return testNow },
		IDGenerator: sequentialIDs("ord"),
		Events:      events,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func testShippingAddress() domain.Address {
	return domain.Address{
		FullName:   "Ava Customer",
		Email:      "ava@example.com",
		Line1:      "1 Market St",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "US",
	}
}

func testCatalog() map[string]domain.Product {
	discount := int64(4000)
	return map[string]domain.Product{
		"p1": {
			ID:            "p1",
			SKU:           "HOODIE-01",
			Name:          "Fleece Hoodie",
			Price:         6000,
			DiscountPrice: &discount,
			Currency:      "USD",
			Images:        []string{"products/p1/front.png"},
			AvailableSizes: []domain.SizeStock{
				{Size: "M", Quantity: 5},
			},
			IsPublished: true,
		},
		"p2": {
			ID:       "p2",
			SKU:      "TEE-02",
			Name:     "Logo Tee",
			Price:    2500,
			Currency: "USD",
			AvailableSizes: []domain.SizeStock{
				{Size: "L", Quantity: 4},
			},
			IsPublished: true,
		},
	}
}

// repoBuildingFrom returns a repository whose Place invokes the placement
// builder against the given catalog, the way the transactional path does.
func repoBuildingFrom(products map[string]domain.Product, orderNumber string, captured *repositories.OrderPlacement) *fakeOrderRepository {
	return &fakeOrderRepository{
		placeFn: func(_ context.Context, placement repositories.OrderPlacement) (domain.Order, error) {
			if captured != nil {
				*captured = placement
			}
			return placement.Build(products, orderNumber)
		},
	}
}

func TestPlaceBuildsOrderFromCatalogSnapshot(t *testing.T) {
	var placement repositories.OrderPlacement
	publisher := &capturingPublisher{}
	svc := newOrderServiceForTest(t, repoBuildingFrom(testCatalog(), "SH-20260314-0001", &placement), publisher)

	order, err := svc.Place(context.Background(), PlaceOrderCommand{
		UserID: "user-1",
		Items: []OrderLineInput{
			{ProductID: "p1", Size: "M", Quantity: 1},
			{ProductID: "p2", Size: "L", Quantity: 2},
			{ProductID: "p1", Size: "m", Quantity: 1},
		},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodCard,
		PaymentDetails:  &domain.PaymentDetails{CardBrand: "visa", CardLastFour: "4242"},
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	if len(placement.Lines) != 2 {
		t.Fatalf("placement lines = %d, want 2 after merge", len(placement.Lines))
	}
	if placement.Lines[0].ProductID != "p1" || placement.Lines[0].Quantity != 2 {
		t.Fatalf("merged line = %+v, want p1 quantity 2", placement.Lines[0])
	}
	if placement.UserID != "user-1" || !placement.Now.Equal(testNow) {
		t.Fatalf("placement metadata = %+v", placement)
	}

	if order.OrderNumber != "SH-20260314-0001" {
		t.Fatalf("OrderNumber = %q", order.OrderNumber)
	}
	if order.Status != domain.OrderStatusPlaced {
		t.Fatalf("Status = %q, want placed", order.Status)
	}
	if order.Currency != "USD" {
		t.Fatalf("Currency = %q, want USD", order.Currency)
	}
	if len(order.Items) != 2 {
		t.Fatalf("Items = %d, want 2", len(order.Items))
	}
	first := order.Items[0]
	if first.UnitPrice != 4000 || first.Quantity != 2 || first.Total != 8000 {
		t.Fatalf("first item = %+v, want discounted unit price 4000 x2", first)
	}
	if first.SKU != "HOODIE-01" || first.Name != "Fleece Hoodie" || first.Image != "products/p1/front.png" {
		t.Fatalf("first item snapshot = %+v", first)
	}
	if order.Items[1].UnitPrice != 2500 || order.Items[1].Total != 5000 {
		t.Fatalf("second item = %+v", order.Items[1])
	}

	// 8000 + 5000 = 13000 subtotal, 8% tax, free shipping above $100.
	if order.Pricing.Subtotal != 13000 || order.Pricing.Tax != 1040 || order.Pricing.Shipping != 0 || order.Pricing.Total != 14040 {
		t.Fatalf("Pricing = %+v", order.Pricing)
	}

	if len(order.Timeline) != 1 || order.Timeline[0].Status != domain.OrderStatusPlaced || order.Timeline[0].Note != "order placed" {
		t.Fatalf("Timeline = %+v", order.Timeline)
	}
	if !order.CreatedAt.Equal(testNow) || !order.UpdatedAt.Equal(testNow) {
		t.Fatalf("timestamps = %v / %v, want %v", order.CreatedAt, order.UpdatedAt, testNow)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("published events = %d, want 1", len(publisher.events))
	}
	event := publisher.events[0]
	if event.Type != "order.placed" || event.OrderID != order.ID || event.UserID != "user-1" {
		t.Fatalf("event = %+v", event)
	}
	if event.Payload["orderNumber"] != "SH-20260314-0001" || event.Payload["status"] != "placed" {
		t.Fatalf("event payload = %+v", event.Payload)
	}
	if _, ok := event.Payload["previousStatus"]; ok {
		t.Fatalf("placed event must not carry previousStatus: %+v", event.Payload)
	}
}

func TestPlaceValidatesInput(t *testing.T) {
	repo := &fakeOrderRepository{
		placeFn: func(context.Context, repositories.OrderPlacement) (domain.Order, error) {
			return domain.Order{}, errors.New("repository must not be reached")
		},
	}
	svc := newOrderServiceForTest(t, repo, nil)

	valid := func() PlaceOrderCommand {
		return PlaceOrderCommand{
			UserID:          "user-1",
			Items:           []OrderLineInput{{ProductID: "p1", Size: "M", Quantity: 1}},
			ShippingAddress: testShippingAddress(),
			PaymentMethod:   domain.PaymentMethodCOD,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*PlaceOrderCommand)
		wantErr error
	}{
		{"missing user", func(c *PlaceOrderCommand) { c.UserID = "  " }, ErrOrderInvalidInput},
		{"no items", func(c *PlaceOrderCommand) { c.Items = nil }, ErrOrderEmpty},
		{"blank product id", func(c *PlaceOrderCommand) { c.Items[0].ProductID = "" }, ErrOrderInvalidInput},
		{"blank size", func(c *PlaceOrderCommand) { c.Items[0].Size = " " }, ErrOrderInvalidInput},
		{"zero quantity", func(c *PlaceOrderCommand) { c.Items[0].Quantity = 0 }, ErrOrderInvalidInput},
		{"negative quantity", func(c *PlaceOrderCommand) { c.Items[0].Quantity = -2 }, ErrOrderInvalidInput},
		{"missing full name", func(c *PlaceOrderCommand) { c.ShippingAddress.FullName = "" }, ErrOrderInvalidInput},
		{"missing line1", func(c *PlaceOrderCommand) { c.ShippingAddress.Line1 = "" }, ErrOrderInvalidInput},
		{"missing city", func(c *PlaceOrderCommand) { c.ShippingAddress.City = "" }, ErrOrderInvalidInput},
		{"missing postal code", func(c *PlaceOrderCommand) { c.ShippingAddress.PostalCode = "" }, ErrOrderInvalidInput},
		{"missing country", func(c *PlaceOrderCommand) { c.ShippingAddress.Country = "" }, ErrOrderInvalidInput},
		{"malformed email", func(c *PlaceOrderCommand) { c.ShippingAddress.Email = "not-an-email" }, ErrOrderInvalidInput},
		{"card without details", func(c *PlaceOrderCommand) {
			c.PaymentMethod = domain.PaymentMethodCard
			c.PaymentDetails = nil
		}, ErrOrderInvalidInput},
		{"card last four too short", func(c *PlaceOrderCommand) {
			c.PaymentMethod = domain.PaymentMethodCard
			c.PaymentDetails = &domain.PaymentDetails{CardLastFour: "42"}
		}, ErrOrderInvalidInput},
		{"card last four not digits", func(c *PlaceOrderCommand) {
			c.PaymentMethod = domain.PaymentMethodCard
			c.PaymentDetails = &domain.PaymentDetails{CardLastFour: "42ab"}
		}, ErrOrderInvalidInput},
		{"unsupported payment method", func(c *PlaceOrderCommand) { c.PaymentMethod = "wire" }, ErrOrderInvalidInput},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := valid()
			tc.mutate(&cmd)
			if _, err := svc.Place(context.Background(), cmd); !errors.Is(err, tc.wantErr) {
				t.Fatalf("Place error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestPlaceRejectsUnpublishedProduct(t *testing.T) {
	products := testCatalog()
	hidden := products["p1"]
	hidden.IsPublished = false
	products["p1"] = hidden

	svc := newOrderServiceForTest(t, repoBuildingFrom(products, "SH-1", nil), nil)

	_, err := svc.Place(context.Background(), PlaceOrderCommand{
		UserID:          "user-1",
		Items:           []OrderLineInput{{ProductID: "p1", Size: "M", Quantity: 1}},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	if !errors.Is(err, ErrOrderProductNotFound) {
		t.Fatalf("Place error = %v, want ErrOrderProductNotFound", err)
	}
}

func TestPlaceRejectsUnknownProduct(t *testing.T) {
	svc := newOrderServiceForTest(t, repoBuildingFrom(testCatalog(), "SH-1", nil), nil)

	_, err := svc.Place(context.Background(), PlaceOrderCommand{
		UserID:          "user-1",
		Items:           []OrderLineInput{{ProductID: "ghost", Size: "M", Quantity: 1}},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	if !errors.Is(err, ErrOrderProductNotFound) {
		t.Fatalf("Place error = %v, want ErrOrderProductNotFound", err)
	}
}

func TestPlaceTranslatesStockShortfall(t *testing.T) {
	repo := &fakeOrderRepository{
		placeFn: func(context.Context, repositories.OrderPlacement) (domain.Order, error) {
			return domain.Order{}, repositories.NewStockError(repositories.StockErrorInsufficient, "p1", "M", 3, 1)
		},
	}
	publisher := &capturingPublisher{}
	svc := newOrderServiceForTest(t, repo, publisher)

	_, err := svc.Place(context.Background(), PlaceOrderCommand{
		UserID:          "user-1",
		Items:           []OrderLineInput{{ProductID: "p1", Size: "M", Quantity: 3}},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})

	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("Place error = %v, want InsufficientStockError", err)
	}
	if stockErr.ProductID != "p1" || stockErr.Size != "M" || stockErr.Requested != 3 || stockErr.Available != 1 {
		t.Fatalf("stock error detail = %+v", stockErr)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("no event expected after failed placement, got %d", len(publisher.events))
	}
}

func TestPlaceTranslatesSizeNotFound(t *testing.T) {
	repo := &fakeOrderRepository{
		placeFn: func(context.Context, repositories.OrderPlacement) (domain.Order, error) {
			return domain.Order{}, repositories.NewStockError(repositories.StockErrorSizeNotFound, "p1", "XXL", 1, 0)
		},
	}
	svc := newOrderServiceForTest(t, repo, nil)

	_, err := svc.Place(context.Background(), PlaceOrderCommand{
		UserID:          "user-1",
		Items:           []OrderLineInput{{ProductID: "p1", Size: "XXL", Quantity: 1}},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	if !errors.Is(err, ErrOrderProductNotFound) {
		t.Fatalf("Place error = %v, want ErrOrderProductNotFound", err)
	}
}

func TestPlaceTranslatesRepositoryFailures(t *testing.T) {
	tests := []struct {
		name    string
		repoErr error
		wantErr error
	}{
		{"contention aborts", repoFault{conflict: true}, ErrOrderAborted},
		{"order number exhausted", repositories.NewOrderNumberError(repositories.OrderNumberErrorExhausted, "all candidates collided", nil), ErrOrderConflict},
		{"backend unavailable", repoFault{unavailable: true}, ErrOrderUnavailable},
		{"unclassified failure", errors.New("boom"), ErrOrderUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeOrderRepository{
				placeFn: func(context.Context, repositories.OrderPlacement) (domain.Order, error) {
					return domain.Order{}, tc.repoErr
				},
			}
			svc := newOrderServiceForTest(t, repo, nil)
			_, err := svc.Place(context.Background(), PlaceOrderCommand{
				UserID:          "user-1",
				Items:           []OrderLineInput{{ProductID: "p1", Size: "M", Quantity: 1}},
				ShippingAddress: testShippingAddress(),
				PaymentMethod:   domain.PaymentMethodCOD,
			})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Place error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestPlacePublishFailureDoesNotFailPlacement(t *testing.T) {
	publisher := &capturingPublisher{err: errors.New("broker down")}
	svc := newOrderServiceForTest(t, repoBuildingFrom(testCatalog(), "SH-1", nil), publisher)

	_, err := svc.Place(context.Background(), PlaceOrderCommand{
		UserID:          "user-1",
		Items:           []OrderLineInput{{ProductID: "p2", Size: "L", Quantity: 1}},
		ShippingAddress: testShippingAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
	})
	if err != nil {
		t.Fatalf("Place must succeed despite publish failure: %v", err)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("publish attempts = %d, want 1", len(publisher.events))
	}
}

func TestGetOrderScopedToOwner(t *testing.T) {
	repo := &fakeOrderRepository{
		findByIDFn: func(_ context.Context, orderID string) (domain.Order, error) {
			if orderID != "o1" {
				return domain.Order{}, repoFault{notFound: true}
			}
			return domain.Order{ID: "o1", UserID: "owner"}, nil
		},
	}
	svc := newOrderServiceForTest(t, repo, nil)

	if _, err := svc.GetOrder(context.Background(), "owner", "o1"); err != nil {
		t.Fatalf("GetOrder for owner: %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), "intruder", "o1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("GetOrder for other user = %v, want ErrOrderNotFound", err)
	}
	if _, err := svc.GetOrder(context.Background(), "owner", "missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("GetOrder for missing order = %v, want ErrOrderNotFound", err)
	}
	if _, err := svc.GetOrder(context.Background(), "", "o1"); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("GetOrder without user = %v, want ErrOrderInvalidInput", err)
	}
}

func TestListOrdersPassesFilterThrough(t *testing.T) {
	var got repositories.OrderListFilter
	repo := &fakeOrderRepository{
		listFn: func(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			got = filter
			return domain.CursorPage[domain.Order]{Items: []domain.Order{{ID: "o1"}}, NextPageToken: "tok"}, nil
		},
	}
	svc := newOrderServiceForTest(t, repo, nil)

	query := ListOrdersQuery{UserID: " user-1 ", Status: []domain.OrderStatus{domain.OrderStatusPlaced}}
	query.Pagination.PageSize = 10
	query.Pagination.PageToken = "cursor"

	page, err := svc.ListOrders(context.Background(), query)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if got.UserID != "user-1" || got.Pagination.PageSize != 10 || got.Pagination.PageToken != "cursor" {
		t.Fatalf("filter = %+v", got)
	}
	if len(got.Status) != 1 || got.Status[0] != domain.OrderStatusPlaced {
		t.Fatalf("status filter = %+v", got.Status)
	}
	if len(page.Items) != 1 || page.NextPageToken != "tok" {
		t.Fatalf("page = %+v", page)
	}

	if _, err := svc.ListOrders(context.Background(), ListOrdersQuery{}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("ListOrders without user = %v, want ErrOrderInvalidInput", err)
	}
}

// mutatingRepo applies the status mutator against a stored order, the way the
// transactional update path does.
func mutatingRepo(stored domain.Order) *fakeOrderRepository {
	return &fakeOrderRepository{
		updateStatusFn: func(_ context.Context, orderID string, apply repositories.StatusMutator) (domain.Order, error) {
			if orderID != stored.ID {
				return domain.Order{}, repoFault{notFound: true}
			}
			return apply(stored)
		},
	}
}

func placedOrder() domain.Order {
	created := testNow.Add(-time.Hour)
	return domain.Order{
		ID:          "o1",
		OrderNumber: "SH-20260314-0001",
		UserID:      "owner",
		Status:      domain.OrderStatusPlaced,
		Timeline: []domain.TimelineEntry{
			{Status: domain.OrderStatusPlaced, Timestamp: created, Note: "order placed"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestCancelPlacedOrder(t *testing.T) {
	publisher := &capturingPublisher{}
	svc := newOrderServiceForTest(t, mutatingRepo(placedOrder()), publisher)

	order, err := svc.Cancel(context.Background(), CancelOrderCommand{
		UserID:  "owner",
		OrderID: "o1",
		Reason:  "changed my mind",
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("Status = %q, want cancelled", order.Status)
	}
	if order.CancelReason == nil || *order.CancelReason != "changed my mind" {
		t.Fatalf("CancelReason = %v", order.CancelReason)
	}
	if len(order.Timeline) != 2 {
		t.Fatalf("Timeline entries = %d, want 2", len(order.Timeline))
	}
	last := order.Timeline[1]
	if last.Status != domain.OrderStatusCancelled || last.Note != "changed my mind" || !last.Timestamp.Equal(testNow) {
		t.Fatalf("timeline tail = %+v", last)
	}
	if !order.UpdatedAt.Equal(testNow) {
		t.Fatalf("UpdatedAt = %v, want %v", order.UpdatedAt, testNow)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("events = %d, want 1", len(publisher.events))
	}
	event := publisher.events[0]
	if event.Type != "order.cancelled" || event.Payload["previousStatus"] != "placed" {
		t.Fatalf("event = %+v", event)
	}
}

func TestCancelDefaultsNote(t *testing.T) {
	svc := newOrderServiceForTest(t, mutatingRepo(placedOrder()), nil)

	order, err := svc.Cancel(context.Background(), CancelOrderCommand{UserID: "owner", OrderID: "o1"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if order.CancelReason == nil || *order.CancelReason != "cancelled by customer" {
		t.Fatalf("CancelReason = %v, want default note", order.CancelReason)
	}
}

func TestCancelRejectsForeignOrMovedOrders(t *testing.T) {
	svc := newOrderServiceForTest(t, mutatingRepo(placedOrder()), nil)
	if _, err := svc.Cancel(context.Background(), CancelOrderCommand{UserID: "intruder", OrderID: "o1"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("Cancel by other user = %v, want ErrOrderNotFound", err)
	}

	shipped := placedOrder()
	shipped.Status = domain.OrderStatusShipped
	svc = newOrderServiceForTest(t, mutatingRepo(shipped), nil)
	if _, err := svc.Cancel(context.Background(), CancelOrderCommand{UserID: "owner", OrderID: "o1"}); !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("Cancel of shipped order = %v, want ErrOrderInvalidTransition", err)
	}
}

func TestTransitionStatusFollowsGraph(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.OrderStatus
		to      domain.OrderStatus
		wantErr error
	}{
		{"placed to processing", domain.OrderStatusPlaced, domain.OrderStatusProcessing, nil},
		{"processing to shipped", domain.OrderStatusProcessing, domain.OrderStatusShipped, nil},
		{"shipped to delivered", domain.OrderStatusShipped, domain.OrderStatusDelivered, nil},
		{"processing to cancelled", domain.OrderStatusProcessing, domain.OrderStatusCancelled, nil},
		{"placed skips to delivered", domain.OrderStatusPlaced, domain.OrderStatusDelivered, ErrOrderInvalidTransition},
		{"delivered is terminal", domain.OrderStatusDelivered, domain.OrderStatusProcessing, ErrOrderInvalidTransition},
		{"cancelled is terminal", domain.OrderStatusCancelled, domain.OrderStatusProcessing, ErrOrderInvalidTransition},
		{"backwards move", domain.OrderStatusShipped, domain.OrderStatusProcessing, ErrOrderInvalidTransition},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stored := placedOrder()
			stored.Status = tc.from
			publisher := &capturingPublisher{}
			svc := newOrderServiceForTest(t, mutatingRepo(stored), publisher)

			order, err := svc.TransitionStatus(context.Background(), TransitionOrderStatusCommand{
				OrderID: "o1",
				Status:  tc.to,
				Actor:   "fulfillment-bot",
			})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("TransitionStatus error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("TransitionStatus: %v", err)
			}
			if order.Status != tc.to {
				t.Fatalf("Status = %q, want %q", order.Status, tc.to)
			}
			if len(publisher.events) != 1 || publisher.events[0].Type != "order.status_changed" {
				t.Fatalf("events = %+v", publisher.events)
			}
			if publisher.events[0].Payload["previousStatus"] != string(tc.from) {
				t.Fatalf("previousStatus = %v, want %q", publisher.events[0].Payload["previousStatus"], tc.from)
			}
		})
	}
}

func TestTransitionStatusRejectsUnknownTarget(t *testing.T) {
	svc := newOrderServiceForTest(t, mutatingRepo(placedOrder()), nil)
	_, err := svc.TransitionStatus(context.Background(), TransitionOrderStatusCommand{OrderID: "o1", Status: "packed"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("TransitionStatus error = %v, want ErrOrderInvalidInput", err)
	}
}

func TestTransitionStatusCancelDefaultsReason(t *testing.T) {
	svc := newOrderServiceForTest(t, mutatingRepo(placedOrder()), nil)

	order, err := svc.TransitionStatus(context.Background(), TransitionOrderStatusCommand{
		OrderID: "o1",
		Status:  domain.OrderStatusCancelled,
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if order.CancelReason == nil || *order.CancelReason != "cancelled by fulfillment" {
		t.Fatalf("CancelReason = %v, want fulfillment default", order.CancelReason)
	}
}
