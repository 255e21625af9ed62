package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/ecomarket/internal/domain"
	"github.com/joao-fontenele/ecomarket/internal/identity"
)

// Store is the catalog persistence used by the HTTP handler.
type Store interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, p *domain.Product) error
	UpdateProduct(ctx context.Context, p *domain.Product) error
	AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
}

// maxPageSize bounds the limit query parameter of the product listing.
const maxPageSize = 100

type Handler struct {
	store    Store
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

type productRequest struct {
	Name           string          `json:"name" validate:"required,max=200"`
	Description    string          `json:"description" validate:"max=2000"`
	Price          decimal.Decimal `json:"price"`
	StockQuantity  int             `json:"stock_quantity" validate:"gte=0,lte=2147483647"`
	CategoryID     string          `json:"category_id" validate:"max=64"`
	ImageFilename  string          `json:"image_filename" validate:"max=255"`
	IsOrganic      bool            `json:"is_organic"`
	Certifications string          `json:"certifications" validate:"max=500"`
	OriginCountry  string          `json:"origin_country" validate:"max=100"`
	IsActive       *bool           `json:"is_active"`
	IsFeatured     bool            `json:"is_featured"`
}

type stockRequest struct {
	Delta int `json:"delta" validate:"ne=0"`
}

type productResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Price          string    `json:"price"`
	StockQuantity  int       `json:"stock_quantity"`
	InStock        bool      `json:"in_stock"`
	CategoryID     string    `json:"category_id"`
	ImageFilename  string    `json:"image_filename"`
	IsOrganic      bool      `json:"is_organic"`
	Certifications string    `json:"certifications"`
	OriginCountry  string    `json:"origin_country"`
	IsActive       bool      `json:"is_active"`
	IsFeatured     bool      `json:"is_featured"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type categoryResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toCategoryResponse(c *domain.Category) categoryResponse {
	return categoryResponse{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		ImageURL:    c.ImageURL,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toProductResponse(p *domain.Product) productResponse {
	return productResponse{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Price:          p.Price.StringFixed(2),
		StockQuantity:  p.StockQuantity,
		InStock:        p.IsInStock(),
		CategoryID:     p.CategoryID,
		ImageFilename:  p.ImageFilename,
		IsOrganic:      p.IsOrganic,
		Certifications: p.Certifications,
		OriginCountry:  p.OriginCountry,
		IsActive:       p.IsActive,
		IsFeatured:     p.IsFeatured,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func (req productRequest) apply(p *domain.Product) error {
	if err := p.UpdatePrice(req.Price); err != nil {
		return err
	}
	p.Name = req.Name
	p.Description = req.Description
	p.CategoryID = req.CategoryID
	p.ImageFilename = req.ImageFilename
	p.IsOrganic = req.IsOrganic
	p.Certifications = req.Certifications
	p.OriginCountry = req.OriginCountry
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	p.IsFeatured = req.IsFeatured
	return nil
}

// parseFilter reads the product listing query: category, active, featured,
// organic, q, min_price, max_price, sort (name or latest), limit and offset.
func parseFilter(r *http.Request) (ProductFilter, error) {
	q := r.URL.Query()
	filter := ProductFilter{
		CategoryID:   q.Get("category"),
		ActiveOnly:   parseBool(q.Get("active")),
		FeaturedOnly: parseBool(q.Get("featured")),
		OrganicOnly:  parseBool(q.Get("organic")),
		Query:        q.Get("q"),
	}

	var err error
	if filter.MinPrice, err = parsePrice(q.Get("min_price")); err != nil {
		return filter, fmt.Errorf("invalid min_price: %w", err)
	}
	if filter.MaxPrice, err = parsePrice(q.Get("max_price")); err != nil {
		return filter, fmt.Errorf("invalid max_price: %w", err)
	}
	if filter.MinPrice.Valid && filter.MaxPrice.Valid && filter.MinPrice.Decimal.GreaterThan(filter.MaxPrice.Decimal) {
		return filter, errors.New("min_price must not exceed max_price")
	}

	switch q.Get("sort") {
	case "", "name":
	case "latest":
		filter.Latest = true
	default:
		return filter, fmt.Errorf("invalid sort %q", q.Get("sort"))
	}

	if filter.Limit, err = parseBounded(q.Get("limit"), maxPageSize); err != nil {
		return filter, fmt.Errorf("invalid limit: %w", err)
	}
	if filter.Offset, err = parseBounded(q.Get("offset"), -1); err != nil {
		return filter, fmt.Errorf("invalid offset: %w", err)
	}

	return filter, nil
}

func parsePrice(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	if d.IsNegative() {
		return decimal.NullDecimal{}, domain.ErrInvalidPrice
	}
	return decimal.NewNullDecimal(d), nil
}

// parseBounded parses a non-negative integer no larger than limit, or of any
// size when limit is negative.
func parseBounded(s string, limit int) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 || (limit >= 0 && n > limit) {
		return 0, fmt.Errorf("%d out of range", n)
	}
	return n, nil
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	products, err := h.store.ListProducts(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]productResponse, 0, len(products))
	for i := range products {
		resp = append(resp, toProductResponse(&products[i]))
	}

	h.logger.Info("products listed", "count", len(resp))
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	product, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "failed to get product", "product_id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}

	product := &domain.Product{IsActive: true, StockQuantity: req.StockQuantity}
	if err := req.apply(product); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CreateProduct(r.Context(), product); err != nil {
		h.writeStoreError(w, err, "failed to create product")
		return
	}

	h.logger.Info("product created", "product_id", product.ID, "name", product.Name)
	h.writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "failed to get product", "product_id", id)
		return
	}

	if err := req.apply(product); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.UpdateProduct(r.Context(), product); err != nil {
		h.writeStoreError(w, err, "failed to update product", "product_id", id)
		return
	}

	h.logger.Info("product updated", "product_id", id, "price", product.Price.String())
	h.writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) HandleAdjustStock(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req stockRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.store.AdjustStock(r.Context(), id, req.Delta)
	if err != nil {
		h.writeStoreError(w, err, "failed to adjust stock", "product_id", id, "delta", req.Delta)
		return
	}

	h.logger.Info("stock adjusted", "product_id", id, "delta", req.Delta, "stock", product.StockQuantity)
	h.writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		h.logger.Error("failed to list categories", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]categoryResponse, 0, len(categories))
	for i := range categories {
		resp = append(resp, toCategoryResponse(&categories[i]))
	}

	h.logger.Info("categories listed", "count", len(resp))
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGetCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing category id")
		return
	}

	category, err := h.store.GetCategory(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "failed to get category", "category_id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, toCategoryResponse(category))
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	user, ok := identity.FromRequest(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !user.IsAdmin() {
		h.writeError(w, http.StatusForbidden, "access denied")
		return false
	}
	return true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error, msg string, args ...any) {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.Is(err, domain.ErrCategoryNotFound):
		h.writeError(w, http.StatusNotFound, "category not found")
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "product not found")
	case errors.As(err, &stockErr):
		h.writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "insufficient stock",
			"product":   stockErr.ProductName,
			"available": stockErr.Available,
			"requested": stockErr.Requested,
		})
	case errors.Is(err, domain.ErrInvalidPrice), errors.Is(err, domain.ErrInvalidQuantity):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(msg, append([]any{"error", err}, args...)...)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
