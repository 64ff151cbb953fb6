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
	"github.com/stylehive/api/internal/platform/textutil"
	"github.com/stylehive/api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository persists catalog products and their per-size stock counts.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs the Firestore-backed catalog store.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[productDocument](provider, productsCollection)
	return &ProductRepository{provider: provider, products: products}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product insert: id is required")
	}
	sku := strings.TrimSpace(product.SKU)
	if sku == "" {
		return errors.New("product insert: sku is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		dupe := client.Collection(productsCollection).Where("sku", "==", sku).Limit(1)
		snaps, err := tx.Documents(dupe).GetAll()
		if err != nil {
			return err
		}
		if len(snaps) > 0 {
			return status.Errorf(codes.AlreadyExists, "product sku %s already exists", sku)
		}

		ref, err := r.products.DocumentRef(ctx, product.ID)
		if err != nil {
			return err
		}
		return tx.Create(ref, newProductDocument(product))
	})
	return pfirestore.WrapError("products.insert", err)
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product update: id is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.DocumentRef(ctx, product.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var existing productDocument
		if err := snap.DataTo(&existing); err != nil {
			return fmt.Errorf("decode product %s: %w", product.ID, err)
		}

		sku := strings.TrimSpace(product.SKU)
		if sku != "" && !strings.EqualFold(sku, existing.SKU) {
			client, err := r.provider.Client(ctx)
			if err != nil {
				return err
			}
			dupe := client.Collection(productsCollection).Where("sku", "==", sku).Limit(1)
			snaps, err := tx.Documents(dupe).GetAll()
			if err != nil {
				return err
			}
			if len(snaps) > 0 && snaps[0].Ref.ID != product.ID {
				return status.Errorf(codes.AlreadyExists, "product sku %s already exists", sku)
			}
		}

		doc := newProductDocument(product)
		doc.CreatedAt = existing.CreatedAt
		return tx.Set(ref, doc)
	})
	return pfirestore.WrapError("products.update", err)
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	ref, err := r.products.DocumentRef(ctx, productID)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx, firestore.Exists)
	return pfirestore.WrapError("products.delete", err)
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ProductRepository) FindBySKU(ctx context.Context, sku string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return domain.Product{}, errors.New("product find by sku: sku is required")
	}

	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("sku", "==", sku).Limit(1)
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, pfirestore.WrapError("products.findBySku", status.Errorf(codes.NotFound, "product sku %s not found", sku))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
	}

	query := client.Collection(productsCollection).Query
	if filter.OnlyPublished {
		query = query.Where("isPublished", "==", true)
	}
	if filter.Category != nil && strings.TrimSpace(*filter.Category) != "" {
		query = query.Where("category", "==", strings.TrimSpace(*filter.Category))
	}

	search := textutil.FoldSearchTerm(filter.Search)
	if search != "" {
		query = query.
			Where("nameFold", ">=", search).
			Where("nameFold", "<", search+"\uf8ff").
			OrderBy("nameFold", firestore.Asc)
	} else {
		direction := firestore.Desc
		if filter.SortOrder == domain.SortAsc {
			direction = firestore.Asc
		}
		query = query.OrderBy("createdAt", direction)
	}
	query = query.OrderBy("sku", firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := decodeProductPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		if search != "" {
			query = query.StartAfter(cursor.NameFold, cursor.SKU)
		} else {
			query = query.StartAfter(cursor.CreatedAt, cursor.SKU)
		}
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var items []domain.Product
	var lastDoc productDocument
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID))
		lastDoc = doc
	}

	hasMore := len(items) > pageSize
	if hasMore {
		items = items[:pageSize]
		lastDoc = newProductDocument(items[len(items)-1])
	}

	var nextToken string
	if hasMore && len(items) > 0 {
		encoded, err := encodeProductPageToken(productPageToken{
			SKU:       lastDoc.SKU,
			NameFold:  lastDoc.NameFold,
			CreatedAt: lastDoc.CreatedAt,
		})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Product]{Items: items, NextPageToken: nextToken}, nil
}

// AdjustStock applies a signed quantity delta to one size inside a
// transaction. Negative results are rejected with a StockError so stock can
// never be observed below zero.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, size string, delta int) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product adjust stock: id is required")
	}
	size = strings.TrimSpace(size)
	if size == "" {
		return domain.Product{}, errors.New("product adjust stock: size is required")
	}

	var updated domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}
		if err := doc.applySizeDelta(productID, size, delta); err != nil {
			return err
		}
		doc.UpdatedAt = time.Now().UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(productID)
		return nil
	})
	if err != nil {
		return domain.Product{}, wrapStockError("products.adjustStock", err)
	}
	return updated, nil
}

// Helper structures ---------------------------------------------------------

type productDocument struct {
	SKU           string         `firestore:"sku"`
	Name          string         `firestore:"name"`
	NameFold      string         `firestore:"nameFold"`
	Description   string         `firestore:"description,omitempty"`
	Category      string         `firestore:"category,omitempty"`
	Price         int64          `firestore:"price"`
	DiscountPrice *int64         `firestore:"discountPrice,omitempty"`
	Currency      string         `firestore:"currency"`
	Images        []string       `firestore:"images,omitempty"`
	Sizes         []sizeDocument `firestore:"sizes"`
	IsPublished   bool           `firestore:"isPublished"`
	CreatedAt     time.Time      `firestore:"createdAt"`
	UpdatedAt     time.Time      `firestore:"updatedAt"`
}

type sizeDocument struct {
	Size     string `firestore:"size"`
	Quantity int    `firestore:"qty"`
}

func newProductDocument(product domain.Product) productDocument {
	sizes := make([]sizeDocument, len(product.AvailableSizes))
	for i, s := range product.AvailableSizes {
		sizes[i] = sizeDocument{Size: strings.TrimSpace(s.Size), Quantity: s.Quantity}
	}
	name := strings.TrimSpace(product.Name)
	return productDocument{
		SKU:           strings.TrimSpace(product.SKU),
		Name:          name,
		NameFold:      textutil.FoldSearchTerm(name),
		Description:   strings.TrimSpace(product.Description),
		Category:      strings.TrimSpace(product.Category),
		Price:         product.Price,
		DiscountPrice: product.DiscountPrice,
		Currency:      strings.TrimSpace(product.Currency),
		Images:        product.Images,
		Sizes:         sizes,
		IsPublished:   product.IsPublished,
		CreatedAt:     product.CreatedAt.UTC(),
		UpdatedAt:     product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	sizes := make([]domain.SizeStock, len(d.Sizes))
	for i, s := range d.Sizes {
		sizes[i] = domain.SizeStock{Size: s.Size, Quantity: s.Quantity}
	}
	return domain.Product{
		ID:             id,
		SKU:            d.SKU,
		Name:           d.Name,
		Description:    d.Description,
		Category:       d.Category,
		Price:          d.Price,
		DiscountPrice:  d.DiscountPrice,
		Currency:       d.Currency,
		Images:         d.Images,
		AvailableSizes: sizes,
		IsPublished:    d.IsPublished,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// applySizeDelta mutates one size quantity, refusing deltas that would make
// the count negative.
func (d *productDocument) applySizeDelta(productID, size string, delta int) error {
	for i := range d.Sizes {
		if strings.EqualFold(d.Sizes[i].Size, size) {
			next := d.Sizes[i].Quantity + delta
			if next < 0 {
				return repositories.NewStockError(repositories.StockErrorInsufficient, productID, d.Sizes[i].Size, -delta, d.Sizes[i].Quantity)
			}
			d.Sizes[i].Quantity = next
			return nil
		}
	}
	return repositories.NewStockError(repositories.StockErrorSizeNotFound, productID, size, -delta, 0)
}

type productPageToken struct {
	SKU       string
	NameFold  string
	CreatedAt time.Time
}

func encodeProductPageToken(token productPageToken) (string, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	if err := enc.Encode(token); err != nil {
		return "", fmt.Errorf("encode product page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeProductPageToken(encoded string) (productPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return productPageToken{}, fmt.Errorf("decode product page token: %w", err)
	}
	var token productPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return productPageToken{}, fmt.Errorf("decode product page token json: %w", err)
	}
	return token, nil
}

func wrapStockError(op string, err error) error {
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
	return pfirestore.WrapError(op, err)
}
