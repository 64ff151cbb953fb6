package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/stylehive/api/internal/domain"
	pfirestore "github.com/stylehive/api/internal/platform/firestore"
)

const cartsCollection = "carts"

// CartRepository persists one cart document per user, items embedded.
type CartRepository struct {
	provider *pfirestore.Provider
	carts    *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	carts := pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection)
	return &CartRepository{provider: provider, carts: carts}, nil
}

// Get returns the user's cart. A missing document yields an empty cart, never
// an error.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.carts == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.carts.Get(ctx, userID)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return emptyCart(userID), nil
		}
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Save writes the full cart document.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.carts == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID := strings.TrimSpace(cart.UserID)
	if userID == "" {
		userID = strings.TrimSpace(cart.ID)
	}
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc := newCartDocument(cart)
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	if _, err := r.carts.Set(ctx, userID, doc); err != nil {
		return domain.Cart{}, err
	}
	return doc.toDomain(userID), nil
}

// Clear empties the user's cart. Clearing an absent cart is a no-op.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if r == nil || r.carts == nil {
		return errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("cart repository: user id is required")
	}

	doc := cartDocument{UserID: userID, Items: []cartItemDocument{}, UpdatedAt: time.Now().UTC()}
	_, err := r.carts.Set(ctx, userID, doc)
	return err
}

// Helper structures ---------------------------------------------------------

type cartDocument struct {
	UserID    string             `firestore:"userId"`
	Currency  string             `firestore:"currency,omitempty"`
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string     `firestore:"productId"`
	SKU       string     `firestore:"sku,omitempty"`
	Size      string     `firestore:"size"`
	Quantity  int        `firestore:"qty"`
	UnitPrice int64      `firestore:"unitPrice"`
	AddedAt   time.Time  `firestore:"addedAt"`
	UpdatedAt *time.Time `firestore:"updatedAt,omitempty"`
}

func newCartDocument(cart domain.Cart) cartDocument {
	items := make([]cartItemDocument, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = cartItemDocument{
			ProductID: strings.TrimSpace(item.ProductID),
			SKU:       strings.TrimSpace(item.SKU),
			Size:      strings.TrimSpace(item.Size),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			AddedAt:   item.AddedAt.UTC(),
			UpdatedAt: item.UpdatedAt,
		}
	}
	userID := strings.TrimSpace(cart.UserID)
	if userID == "" {
		userID = strings.TrimSpace(cart.ID)
	}
	return cartDocument{
		UserID:    userID,
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:     items,
		UpdatedAt: cart.UpdatedAt.UTC(),
	}
}

func (d cartDocument) toDomain(id string) domain.Cart {
	items := make([]domain.CartItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.CartItem{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			AddedAt:   item.AddedAt,
			UpdatedAt: item.UpdatedAt,
		}
	}
	userID := d.UserID
	if userID == "" {
		userID = id
	}
	return domain.Cart{
		ID:        id,
		UserID:    userID,
		Currency:  d.Currency,
		Items:     items,
		UpdatedAt: d.UpdatedAt,
	}
}

func emptyCart(userID string) domain.Cart {
	return domain.Cart{ID: userID, UserID: userID, Items: []domain.CartItem{}}
}
