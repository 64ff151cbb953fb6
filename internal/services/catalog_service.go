package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/stylehive/api/internal/domain"
	"github.com/stylehive/api/internal/platform/storage"
	"github.com/stylehive/api/internal/repositories"
)

const (
	productImageMaxBytes   = 10 << 20
	productImageURLExpiry  = 10 * time.Minute
	productUploadURLExpiry = 15 * time.Minute
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid product data.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogProductNotFound indicates the product does not exist.
	ErrCatalogProductNotFound = errors.New("catalog service: product not found")
	// ErrCatalogSKUConflict indicates another product already carries the SKU.
	ErrCatalogSKUConflict = errors.New("catalog service: sku already exists")
	// ErrCatalogSizeNotFound indicates the product does not carry the size.
	ErrCatalogSizeNotFound = errors.New("catalog service: size not found")
	// ErrCatalogUnavailable indicates the catalog backend cannot serve the request.
	ErrCatalogUnavailable = errors.New("catalog service: unavailable")
)

// newDescriptionPolicy allows basic formatting in product descriptions while
// stripping scripts and event handlers.
func newDescriptionPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("p", "span", "ul", "ol", "li")
	return policy
}

// ImageURLSigner issues signed storage URLs for product image objects.
type ImageURLSigner interface {
	SignedURL(ctx context.Context, bucket, object string, opts storage.SignedURLOptions) (storage.SignedURLResult, error)
}

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Storage     ImageURLSigner
	ImageBucket string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products    repositories.ProductRepository
	storage     ImageURLSigner
	imageBucket string
	sanitizer   *bluemonday.Policy
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
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
	return &catalogService{
		products:    deps.Products,
		storage:     deps.Storage,
		imageBucket: strings.TrimSpace(deps.ImageBucket),
		sanitizer:   newDescriptionPolicy(),
		clock:       func() time.Time { return clock().UTC() },
		newID:       idGen,
		logger:      logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, query ListProductsQuery) (CursorPage[Product], error) {
	filter := repositories.ProductListFilter{
		Category:      normalizeFilterPointer(query.Category),
		Search:        strings.TrimSpace(query.Search),
		OnlyPublished: !query.IncludeHidden,
		SortOrder:     query.SortOrder,
		Pagination: domain.Pagination{
			PageSize:  query.Pagination.PageSize,
			PageToken: strings.TrimSpace(query.Pagination.PageToken),
		},
	}

	page, err := s.products.List(ctx, filter)
	if err != nil {
		return CursorPage[Product]{}, s.translateRepoError(err)
	}

	if query.SignImageURLs {
		for i := range page.Items {
			page.Items[i].Images = s.signImageURLs(ctx, page.Items[i].Images)
		}
	}
	return page, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	now := s.clock()
	product := domain.Product{
		ID:            s.newID(),
		SKU:           strings.ToUpper(strings.TrimSpace(cmd.SKU)),
		Name:          strings.TrimSpace(cmd.Name),
		Description:   s.sanitizer.Sanitize(strings.TrimSpace(cmd.Description)),
		Category:      strings.TrimSpace(cmd.Category),
		Price:         cmd.Price,
		DiscountPrice: cmd.DiscountPrice,
		Currency:      strings.ToUpper(strings.TrimSpace(cmd.Currency)),
		Images:        normalizeImagePaths(cmd.Images),
		IsPublished:   cmd.IsPublished,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if product.Currency == "" {
		product.Currency = "USD"
	}

	sizes, err := normalizeSizes(cmd.Sizes)
	if err != nil {
		return Product{}, err
	}
	product.AvailableSizes = sizes

	if err := validateProduct(product); err != nil {
		return Product{}, err
	}

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.translateRepoError(err)
	}

	s.logger(ctx, "catalog.product_created", map[string]any{
		"product_id": product.ID,
		"sku":        product.SKU,
	})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}

	if cmd.SKU != nil {
		product.SKU = strings.ToUpper(strings.TrimSpace(*cmd.SKU))
	}
	if cmd.Name != nil {
		product.Name = strings.TrimSpace(*cmd.Name)
	}
	if cmd.Description != nil {
		product.Description = s.sanitizer.Sanitize(strings.TrimSpace(*cmd.Description))
	}
	if cmd.Category != nil {
		product.Category = strings.TrimSpace(*cmd.Category)
	}
	if cmd.Price != nil {
		product.Price = *cmd.Price
	}
	if cmd.ClearDiscount {
		product.DiscountPrice = nil
	} else if cmd.DiscountPrice != nil {
		product.DiscountPrice = cmd.DiscountPrice
	}
	if cmd.Images != nil {
		product.Images = normalizeImagePaths(cmd.Images)
	}
	if cmd.Sizes != nil {
		sizes, err := normalizeSizes(cmd.Sizes)
		if err != nil {
			return Product{}, err
		}
		product.AvailableSizes = sizes
	}
	if cmd.IsPublished != nil {
		product.IsPublished = *cmd.IsPublished
	}
	product.UpdatedAt = s.clock()

	if err := validateProduct(product); err != nil {
		return Product{}, err
	}

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.translateRepoError(err)
	}

	s.logger(ctx, "catalog.product_updated", map[string]any{"product_id": product.ID})
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.product_deleted", map[string]any{"product_id": productID})
	return nil
}

// Restock adds stock to one size. Decrements happen only through order
// placement.
func (s *catalogService) Restock(ctx context.Context, cmd RestockCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	size := strings.TrimSpace(cmd.Size)
	if productID == "" || size == "" || cmd.Quantity <= 0 {
		return Product{}, fmt.Errorf("%w: restock requires product, size and a positive quantity", ErrCatalogInvalidInput)
	}

	product, err := s.products.AdjustStock(ctx, productID, size, cmd.Quantity)
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) && stockErr.Code == repositories.StockErrorSizeNotFound {
			return Product{}, fmt.Errorf("%w: %s", ErrCatalogSizeNotFound, size)
		}
		return Product{}, s.translateRepoError(err)
	}

	s.logger(ctx, "catalog.restocked", map[string]any{
		"product_id": productID,
		"size":       size,
		"quantity":   cmd.Quantity,
	})
	return product, nil
}

// ImageUploadURL issues a short-lived signed PUT URL for a product image.
func (s *catalogService) ImageUploadURL(ctx context.Context, cmd ProductImageUploadCommand) (SignedImageUpload, error) {
	if s.storage == nil || s.imageBucket == "" {
		return SignedImageUpload{}, ErrCatalogUnavailable
	}
	productID := strings.TrimSpace(cmd.ProductID)
	fileName := sanitizeFileName(cmd.FileName)
	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	if productID == "" || fileName == "" {
		return SignedImageUpload{}, fmt.Errorf("%w: product id and file name are required", ErrCatalogInvalidInput)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return SignedImageUpload{}, fmt.Errorf("%w: content type must be an image", ErrCatalogInvalidInput)
	}

	if _, err := s.products.FindByID(ctx, productID); err != nil {
		return SignedImageUpload{}, s.translateRepoError(err)
	}

	object, err := storage.BuildObjectPath(storage.PurposeProductImage, storage.PathParams{
		ProductID: productID,
		UploadID:  s.newID(),
		FileName:  fileName,
	})
	if err != nil {
		return SignedImageUpload{}, fmt.Errorf("%w: %s", ErrCatalogInvalidInput, err)
	}
	result, err := s.storage.SignedURL(ctx, s.imageBucket, object, storage.SignedURLOptions{
		Upload: &storage.UploadOptions{
			ContentType:         contentType,
			AllowedContentTypes: []string{"image/*"},
			MaxSize:             productImageMaxBytes,
			ExpiresIn:           productUploadURLExpiry,
		},
	})
	if err != nil {
		return SignedImageUpload{}, fmt.Errorf("%w: sign upload url", ErrCatalogUnavailable)
	}

	return SignedImageUpload{
		ImagePath: object,
		URL:       result.URL,
		Method:    result.Method,
		Headers:   result.Headers,
		ExpiresAt: result.ExpiresAt,
	}, nil
}

// signImageURLs swaps stored object paths for signed download URLs. Failures
// keep the raw path so listings degrade instead of erroring.
func (s *catalogService) signImageURLs(ctx context.Context, images []string) []string {
	if s.storage == nil || s.imageBucket == "" || len(images) == 0 {
		return images
	}
	signed := make([]string, len(images))
	for i, image := range images {
		result, err := s.storage.SignedURL(ctx, s.imageBucket, image, storage.SignedURLOptions{
			Download: &storage.DownloadOptions{
				ExpiresIn:      productImageURLExpiry,
				AllowAnonymous: true,
			},
		})
		if err != nil {
			signed[i] = image
			continue
		}
		signed[i] = result.URL
	}
	return signed
}

func (s *catalogService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return ErrCatalogProductNotFound
	case isRepoConflict(err):
		return ErrCatalogSKUConflict
	default:
		return ErrCatalogUnavailable
	}
}

func validateProduct(product domain.Product) error {
	if product.SKU == "" {
		return fmt.Errorf("%w: sku is required", ErrCatalogInvalidInput)
	}
	if product.Name == "" {
		return fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if product.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}
	if product.DiscountPrice != nil {
		if *product.DiscountPrice <= 0 {
			return fmt.Errorf("%w: discount price must be positive", ErrCatalogInvalidInput)
		}
		if *product.DiscountPrice >= product.Price {
			return fmt.Errorf("%w: discount price must be below the list price", ErrCatalogInvalidInput)
		}
	}
	if len(product.AvailableSizes) == 0 {
		return fmt.Errorf("%w: at least one size is required", ErrCatalogInvalidInput)
	}
	return nil
}

func normalizeSizes(sizes []SizeStock) ([]domain.SizeStock, error) {
	normalized := make([]domain.SizeStock, 0, len(sizes))
	seen := make(map[string]bool, len(sizes))
	for _, size := range sizes {
		label := strings.ToUpper(strings.TrimSpace(size.Size))
		if label == "" {
			return nil, fmt.Errorf("%w: size label is required", ErrCatalogInvalidInput)
		}
		if size.Quantity < 0 {
			return nil, fmt.Errorf("%w: size %s quantity must not be negative", ErrCatalogInvalidInput, label)
		}
		if seen[label] {
			return nil, fmt.Errorf("%w: duplicate size %s", ErrCatalogInvalidInput, label)
		}
		seen[label] = true
		normalized = append(normalized, domain.SizeStock{Size: label, Quantity: size.Quantity})
	}
	return normalized, nil
}

func normalizeImagePaths(images []string) []string {
	out := make([]string, 0, len(images))
	for _, image := range images {
		image = strings.TrimSpace(image)
		if image == "" {
			continue
		}
		out = append(out, image)
	}
	return out
}

func sanitizeFileName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	name = path.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-.")
}

func normalizeFilterPointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
