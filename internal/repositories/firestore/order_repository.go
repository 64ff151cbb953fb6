package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/stylehive/api/internal/domain"
	pfirestore "github.com/stylehive/api/internal/platform/firestore"
	"github.com/stylehive/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderNumbersCollection = "orderNumbers"
	countersCollection     = "counters"

	orderNumberPrefix   = "SH"
	orderNumberAttempts = 5
)

// OrderRepository persists order records. Place commits stock decrements,
// order number allocation, the order insert and the cart clear in a single
// Firestore transaction, so concurrent requests for the same stock serialize
// and a failed request leaves no partial writes.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	orders := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)
	return &OrderRepository{provider: provider, orders: orders}, nil
}

// Place executes the atomic order placement unit. All reads happen before any
// write, as Firestore transactions require: product snapshots and stock
// checks first, then the order number allocation, then every mutation. Any
// returned error means nothing was committed.
func (r *OrderRepository) Place(ctx context.Context, placement repositories.OrderPlacement) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	userID := strings.TrimSpace(placement.UserID)
	if userID == "" {
		return domain.Order{}, errors.New("order place: user id is required")
	}
	if len(placement.Lines) == 0 {
		return domain.Order{}, errors.New("order place: at least one line is required")
	}
	if placement.Build == nil {
		return domain.Order{}, errors.New("order place: build callback is required")
	}
	for _, line := range placement.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return domain.Order{}, errors.New("order place: product id is required")
		}
		if strings.TrimSpace(line.Size) == "" {
			return domain.Order{}, errors.New("order place: size is required")
		}
		if line.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("order place: quantity for %s must be > 0", line.ProductID)
		}
	}

	now := placement.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var placed domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}

		// Read phase: product documents for every distinct line.
		productRefs := make(map[string]*firestore.DocumentRef)
		productDocs := make(map[string]productDocument)
		products := make(map[string]domain.Product)
		for _, line := range placement.Lines {
			id := strings.TrimSpace(line.ProductID)
			if _, seen := productDocs[id]; seen {
				continue
			}
			ref := client.Collection(productsCollection).Doc(id)
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return pfirestore.WrapError(fmt.Sprintf("orders.place product %s", id), err)
				}
				return err
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", id, err)
			}
			productRefs[id] = ref
			productDocs[id] = doc
			products[id] = doc.toDomain(id)
		}

		// Conditional decrements applied to the in-transaction copies. The
		// first failing line aborts the transaction with a typed error.
		for _, line := range placement.Lines {
			id := strings.TrimSpace(line.ProductID)
			doc := productDocs[id]
			if err := doc.applySizeDelta(id, line.Size, -line.Quantity); err != nil {
				return err
			}
			doc.UpdatedAt = now
			productDocs[id] = doc
		}

		// Order number allocation: read the per-year counter, then probe
		// candidates against the registry within the bounded attempt budget.
		counterRef := client.Collection(countersCollection).Doc(orderCounterID(now))
		var counter counterDocument
		counterSnap, err := tx.Get(counterRef)
		switch status.Code(err) {
		case codes.NotFound:
			counter = counterDocument{}
		case codes.OK:
			if err := counterSnap.DataTo(&counter); err != nil {
				return fmt.Errorf("decode counter %s: %w", counterRef.ID, err)
			}
		default:
			return err
		}

		var orderNumber string
		var chosenSeq int64
		var numberRef *firestore.DocumentRef
		for attempt := 0; attempt < orderNumberAttempts; attempt++ {
			seq := counter.CurrentValue + int64(attempt) + 1
			candidate := formatOrderNumber(now, seq)
			ref := client.Collection(orderNumbersCollection).Doc(candidate)
			if _, err := tx.Get(ref); err != nil {
				if status.Code(err) != codes.NotFound {
					return err
				}
				orderNumber = candidate
				chosenSeq = seq
				numberRef = ref
				break
			}
		}
		if orderNumber == "" {
			return repositories.NewOrderNumberError(repositories.OrderNumberErrorExhausted,
				fmt.Sprintf("no free order number after %d attempts", orderNumberAttempts), nil)
		}

		order, err := placement.Build(products, orderNumber)
		if err != nil {
			return err
		}
		if strings.TrimSpace(order.ID) == "" {
			return errors.New("order place: built order is missing an id")
		}
		if order.UserID != userID {
			return fmt.Errorf("order place: built order user %s does not match %s", order.UserID, userID)
		}

		// Write phase.
		counter.CurrentValue = chosenSeq
		counter.Step = 1
		counter.UpdatedAt = now
		if err := tx.Set(counterRef, counter); err != nil {
			return err
		}
		for id, doc := range productDocs {
			if err := tx.Set(productRefs[id], doc); err != nil {
				return err
			}
		}
		if err := tx.Create(numberRef, orderNumberClaim{OrderID: order.ID, CreatedAt: now}); err != nil {
			return err
		}
		orderRef := client.Collection(ordersCollection).Doc(order.ID)
		orderDoc := newOrderDocument(order)
		if err := tx.Create(orderRef, orderDoc); err != nil {
			return err
		}
		cartRef := client.Collection(cartsCollection).Doc(userID)
		if err := tx.Set(cartRef, cartDocument{UserID: userID, Items: []cartItemDocument{}, UpdatedAt: now}); err != nil {
			return err
		}

		placed = orderDoc.toDomain(order.ID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.place", err)
	}
	return placed, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	userID := strings.TrimSpace(filter.UserID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order list: user id is required")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query.Where("userId", "==", userID)
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		query = query.Where("status", "in", statuses)
	}
	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy("orderNumber", firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.OrderNumber)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := encodeOrderPageToken(orderPageToken{CreatedAt: last.CreatedAt, OrderNumber: last.OrderNumber})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

// UpdateStatus reads the order, applies the mutator and writes the result in
// one transaction. Item, address and pricing fields are copied from the
// stored document, so mutators cannot rewrite placement history.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, apply repositories.StatusMutator) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order update status: id is required")
	}
	if apply == nil {
		return domain.Order{}, errors.New("order update status: mutator is required")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored orderDocument
		if err := snap.DataTo(&stored); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		mutated, err := apply(stored.toDomain(orderID))
		if err != nil {
			return err
		}

		next := stored
		next.Status = string(mutated.Status)
		next.Timeline = newTimelineDocuments(mutated.Timeline)
		next.CancelReason = mutated.CancelReason
		next.UpdatedAt = mutated.UpdatedAt.UTC()
		if next.UpdatedAt.IsZero() {
			next.UpdatedAt = time.Now().UTC()
		}
		if err := tx.Set(ref, next); err != nil {
			return err
		}
		updated = next.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.updateStatus", err)
	}
	return updated, nil
}

// Helper structures ---------------------------------------------------------

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	Step         int64     `firestore:"step"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

type orderNumberClaim struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func orderCounterID(now time.Time) string {
	return fmt.Sprintf("order-numbers-%04d", now.Year())
}

func formatOrderNumber(now time.Time, seq int64) string {
	return fmt.Sprintf("%s-%04d-%06d", orderNumberPrefix, now.Year(), seq)
}

type orderDocument struct {
	OrderNumber     string                  `firestore:"orderNumber"`
	UserID          string                  `firestore:"userId"`
	Status          string                  `firestore:"status"`
	Currency        string                  `firestore:"currency,omitempty"`
	Items           []orderItemDocument     `firestore:"items"`
	ShippingAddress addressDocument         `firestore:"shippingAddress"`
	PaymentMethod   string                  `firestore:"paymentMethod"`
	PaymentDetails  *paymentDetailsDocument `firestore:"paymentDetails,omitempty"`
	Pricing         pricingDocument         `firestore:"pricing"`
	Timeline        []timelineEntryDocument `firestore:"timeline"`
	CancelReason    *string                 `firestore:"cancelReason,omitempty"`
	CreatedAt       time.Time               `firestore:"createdAt"`
	UpdatedAt       time.Time               `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	SKU       string `firestore:"sku,omitempty"`
	Name      string `firestore:"name"`
	Image     string `firestore:"image,omitempty"`
	Size      string `firestore:"size"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"qty"`
	Total     int64  `firestore:"total"`
}

type addressDocument struct {
	FullName   string  `firestore:"fullName"`
	Email      string  `firestore:"email,omitempty"`
	Phone      string  `firestore:"phone,omitempty"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	State      *string `firestore:"state,omitempty"`
	PostalCode string  `firestore:"postalCode"`
	Country    string  `firestore:"country"`
}

type paymentDetailsDocument struct {
	CardBrand    string `firestore:"cardBrand,omitempty"`
	CardLastFour string `firestore:"cardLastFour,omitempty"`
}

type pricingDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Tax      int64 `firestore:"tax"`
	Shipping int64 `firestore:"shipping"`
	Discount int64 `firestore:"discount"`
	Total    int64 `firestore:"total"`
}

type timelineEntryDocument struct {
	Status    string    `firestore:"status"`
	Timestamp time.Time `firestore:"timestamp"`
	Note      string    `firestore:"note,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ProductID: strings.TrimSpace(item.ProductID),
			SKU:       strings.TrimSpace(item.SKU),
			Name:      strings.TrimSpace(item.Name),
			Image:     strings.TrimSpace(item.Image),
			Size:      strings.TrimSpace(item.Size),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Total:     item.Total,
		}
	}
	var details *paymentDetailsDocument
	if order.PaymentDetails != nil {
		details = &paymentDetailsDocument{
			CardBrand:    strings.TrimSpace(order.PaymentDetails.CardBrand),
			CardLastFour: strings.TrimSpace(order.PaymentDetails.CardLastFour),
		}
	}
	return orderDocument{
		OrderNumber:     strings.TrimSpace(order.OrderNumber),
		UserID:          strings.TrimSpace(order.UserID),
		Status:          string(order.Status),
		Currency:        strings.ToUpper(strings.TrimSpace(order.Currency)),
		Items:           items,
		ShippingAddress: newAddressDocument(order.ShippingAddress),
		PaymentMethod:   string(order.PaymentMethod),
		PaymentDetails:  details,
		Pricing: pricingDocument{
			Subtotal: order.Pricing.Subtotal,
			Tax:      order.Pricing.Tax,
			Shipping: order.Pricing.Shipping,
			Discount: order.Pricing.Discount,
			Total:    order.Pricing.Total,
		},
		Timeline:     newTimelineDocuments(order.Timeline),
		CancelReason: order.CancelReason,
		CreatedAt:    order.CreatedAt.UTC(),
		UpdatedAt:    order.UpdatedAt.UTC(),
	}
}

func newTimelineDocuments(timeline []domain.TimelineEntry) []timelineEntryDocument {
	docs := make([]timelineEntryDocument, len(timeline))
	for i, entry := range timeline {
		docs[i] = timelineEntryDocument{
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp.UTC(),
			Note:      entry.Note,
		}
	}
	return docs
}

func newAddressDocument(addr domain.Address) addressDocument {
	return addressDocument{
		FullName:   strings.TrimSpace(addr.FullName),
		Email:      strings.TrimSpace(addr.Email),
		Phone:      strings.TrimSpace(addr.Phone),
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      addr.Line2,
		City:       strings.TrimSpace(addr.City),
		State:      addr.State,
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.TrimSpace(addr.Country),
	}
}

func (d addressDocument) toDomain() domain.Address {
	return domain.Address{
		FullName:   d.FullName,
		Email:      d.Email,
		Phone:      d.Phone,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Name:      item.Name,
			Image:     item.Image,
			Size:      item.Size,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Total:     item.Total,
		}
	}
	timeline := make([]domain.TimelineEntry, len(d.Timeline))
	for i, entry := range d.Timeline {
		timeline[i] = domain.TimelineEntry{
			Status:    domain.OrderStatus(entry.Status),
			Timestamp: entry.Timestamp,
			Note:      entry.Note,
		}
	}
	var details *domain.PaymentDetails
	if d.PaymentDetails != nil {
		details = &domain.PaymentDetails{
			CardBrand:    d.PaymentDetails.CardBrand,
			CardLastFour: d.PaymentDetails.CardLastFour,
		}
	}
	return domain.Order{
		ID:              id,
		OrderNumber:     d.OrderNumber,
		UserID:          d.UserID,
		Status:          domain.OrderStatus(d.Status),
		Currency:        d.Currency,
		Items:           items,
		ShippingAddress: d.ShippingAddress.toDomain(),
		PaymentMethod:   domain.PaymentMethod(d.PaymentMethod),
		PaymentDetails:  details,
		Pricing: domain.Pricing{
			Subtotal: d.Pricing.Subtotal,
			Tax:      d.Pricing.Tax,
			Shipping: d.Pricing.Shipping,
			Discount: d.Pricing.Discount,
			Total:    d.Pricing.Total,
		},
		Timeline:     timeline,
		CancelReason: d.CancelReason,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type orderPageToken struct {
	CreatedAt   time.Time
	OrderNumber string
}

func encodeOrderPageToken(token orderPageToken) (string, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	if err := enc.Encode(token); err != nil {
		return "", fmt.Errorf("encode order page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeOrderPageToken(encoded string) (orderPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return orderPageToken{}, fmt.Errorf("decode order page token: %w", err)
	}
	var token orderPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return orderPageToken{}, fmt.Errorf("decode order page token json: %w", err)
	}
	return token, nil
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	var numberErr *repositories.OrderNumberError
	if errors.As(err, &numberErr) {
		if numberErr.Op == "" {
			numberErr.Op = op
		}
		return numberErr
	}
	return pfirestore.WrapError(op, err)
}
