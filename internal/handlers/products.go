package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stylehive/api/internal/domain"
	"github.com/stylehive/api/internal/platform/httpx"
	"github.com/stylehive/api/internal/platform/pagination"
	"github.com/stylehive/api/internal/services"
)

const defaultProductPageSize = 20

// ProductHandlers exposes the public, unauthenticated catalog endpoints. Only
// published products are visible through this surface.
type ProductHandlers struct {
	catalog services.CatalogService
}

// NewProductHandlers constructs the public catalog handlers.
func NewProductHandlers(catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{catalog: catalog}
}

// Routes wires the /products endpoints onto the provided router.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultProductPageSize,
		AllowedSorts:    []string{string(domain.SortAsc), string(domain.SortDesc)},
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be a positive integer and sort must be asc or desc", http.StatusBadRequest))
		return
	}

	query := services.ListProductsQuery{
		Search:        strings.TrimSpace(r.URL.Query().Get("q")),
		SignImageURLs: true,
		SortOrder:     domain.SortOrder(params.Sort),
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		query.Category = &category
	}

	page, err := h.catalog.ListProducts(ctx, query)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Products:      items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	if !product.IsPublished {
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogSizeNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("size_not_found", "size not found for product", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogSKUConflict):
		httpx.WriteError(ctx, w, httpx.NewError("sku_conflict", "a product with this SKU already exists", http.StatusConflict))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "catalog operation failed", http.StatusInternalServerError))
	}
}

type productListResponse struct {
	Products      []productPayload `json:"products"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productPayload struct {
	ID             string             `json:"id"`
	SKU            string             `json:"sku"`
	Name           string             `json:"name"`
	Description    string             `json:"description,omitempty"`
	Category       string             `json:"category,omitempty"`
	Price          int64              `json:"price"`
	DiscountPrice  *int64             `json:"discount_price,omitempty"`
	EffectivePrice int64              `json:"effective_price"`
	Currency       string             `json:"currency"`
	Images         []string           `json:"images"`
	Sizes          []sizeStockPayload `json:"sizes"`
	IsPublished    bool               `json:"is_published"`
	CreatedAt      string             `json:"created_at,omitempty"`
	UpdatedAt      string             `json:"updated_at,omitempty"`
}

type sizeStockPayload struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
	InStock  bool   `json:"in_stock"`
}

func buildProductPayload(product services.Product) productPayload {
	images := product.Images
	if images == nil {
		images = []string{}
	}
	sizes := make([]sizeStockPayload, 0, len(product.AvailableSizes))
	for _, size := range product.AvailableSizes {
		sizes = append(sizes, sizeStockPayload{
			Size:     size.Size,
			Quantity: size.Quantity,
			InStock:  size.Quantity > 0,
		})
	}

	var discount *int64
	if product.DiscountPrice != nil {
		value := *product.DiscountPrice
		discount = &value
	}

	return productPayload{
		ID:             product.ID,
		SKU:            product.SKU,
		Name:           product.Name,
		Description:    product.Description,
		Category:       product.Category,
		Price:          product.Price,
		DiscountPrice:  discount,
		EffectivePrice: product.EffectivePrice(),
		Currency:       strings.ToUpper(strings.TrimSpace(product.Currency)),
		Images:         images,
		Sizes:          sizes,
		IsPublished:    product.IsPublished,
		CreatedAt:      formatTime(product.CreatedAt),
		UpdatedAt:      formatTime(product.UpdatedAt),
	}
}
