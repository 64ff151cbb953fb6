package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stylehive/api/internal/platform/auth"
	"github.com/stylehive/api/internal/platform/httpx"
	"github.com/stylehive/api/internal/platform/pagination"
	"github.com/stylehive/api/internal/services"
)

const maxAdminCatalogBodySize = 256 * 1024

// AdminCatalogHandlers exposes staff-only catalog management endpoints:
// product CRUD, restocking, and signed image upload URLs.
type AdminCatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewAdminCatalogHandlers constructs the admin catalog handlers.
func NewAdminCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{authn: authn, catalog: catalog}
}

// Routes registers the admin catalog endpoints.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Route("/products", func(rt chi.Router) {
		rt.Get("/", h.listProducts)
		rt.Post("/", h.createProduct)
		rt.Get("/{productID}", h.getProduct)
		rt.Put("/{productID}", h.updateProduct)
		rt.Delete("/{productID}", h.deleteProduct)
		rt.Post("/{productID}/stock", h.restock)
		rt.Post("/{productID}/images", h.imageUploadURL)
	})
}

func (h *AdminCatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{DefaultPageSize: defaultProductPageSize, MaxPageSize: 200})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be a positive integer", http.StatusBadRequest))
		return
	}

	query := services.ListProductsQuery{
		Search:        strings.TrimSpace(r.URL.Query().Get("q")),
		IncludeHidden: true,
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

func (h *AdminCatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}

	var req adminProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(ctx, services.CreateProductCommand{
		SKU:           req.SKU,
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		Price:         req.Price,
		DiscountPrice: req.DiscountPrice,
		Currency:      req.Currency,
		Images:        req.Images,
		Sizes:         buildSizeStocks(req.Sizes),
		IsPublished:   req.IsPublished,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}

	var req adminProductUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}

	cmd := services.UpdateProductCommand{
		ProductID:     chi.URLParam(r, "productID"),
		SKU:           req.SKU,
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		Price:         req.Price,
		DiscountPrice: req.DiscountPrice,
		ClearDiscount: req.ClearDiscount,
		IsPublished:   req.IsPublished,
	}
	if req.Images != nil {
		cmd.Images = *req.Images
	}
	if req.Sizes != nil {
		cmd.Sizes = buildSizeStocks(*req.Sizes)
	}

	product, err := h.catalog.UpdateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}

	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productID")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) restock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}

	var req restockRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.catalog.Restock(ctx, services.RestockCommand{
		ProductID: chi.URLParam(r, "productID"),
		Size:      req.Size,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) imageUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}

	var req imageUploadRequest
	if !h.decode(w, r, &req) {
		return
	}

	upload, err := h.catalog.ImageUploadURL(ctx, services.ProductImageUploadCommand{
		ProductID:   chi.URLParam(r, "productID"),
		FileName:    req.FileName,
		ContentType: req.ContentType,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, imageUploadResponse{
		ImagePath: upload.ImagePath,
		URL:       upload.URL,
		Method:    upload.Method,
		Headers:   upload.Headers,
		ExpiresAt: formatTime(upload.ExpiresAt),
	})
}

func (h *AdminCatalogHandlers) ready(w http.ResponseWriter, r *http.Request) bool {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return false
	}
	return true
}

func (h *AdminCatalogHandlers) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxAdminCatalogBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

type adminProductRequest struct {
	SKU           string             `json:"sku"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Category      string             `json:"category"`
	Price         int64              `json:"price"`
	DiscountPrice *int64             `json:"discount_price"`
	Currency      string             `json:"currency"`
	Images        []string           `json:"images"`
	Sizes         []sizeStockRequest `json:"sizes"`
	IsPublished   bool               `json:"is_published"`
}

// adminProductUpdateRequest uses pointers so that absent fields keep their
// stored value.
type adminProductUpdateRequest struct {
	SKU           *string             `json:"sku"`
	Name          *string             `json:"name"`
	Description   *string             `json:"description"`
	Category      *string             `json:"category"`
	Price         *int64              `json:"price"`
	DiscountPrice *int64              `json:"discount_price"`
	ClearDiscount bool                `json:"clear_discount"`
	Images        *[]string           `json:"images"`
	Sizes         *[]sizeStockRequest `json:"sizes"`
	IsPublished   *bool               `json:"is_published"`
}

type sizeStockRequest struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

type restockRequest struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

type imageUploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

type imageUploadResponse struct {
	ImagePath string            `json:"image_path"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt string            `json:"expires_at"`
}

func buildSizeStocks(entries []sizeStockRequest) []services.SizeStock {
	sizes := make([]services.SizeStock, 0, len(entries))
	for _, entry := range entries {
		sizes = append(sizes, services.SizeStock{Size: entry.Size, Quantity: entry.Quantity})
	}
	return sizes
}
