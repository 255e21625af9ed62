package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/ecomarket/internal/database"
	"github.com/joao-fontenele/ecomarket/internal/domain"
)

type ProductFilter struct {
	CategoryID   string
	ActiveOnly   bool
	FeaturedOnly bool
	OrganicOnly  bool
	// Query matches product names case-insensitively.
	Query string
	// MinPrice and MaxPrice bound the price, both inclusive.
	MinPrice decimal.NullDecimal
	MaxPrice decimal.NullDecimal
	// Latest orders newest first instead of by name.
	Latest bool
	// Limit caps the result when positive. Offset skips that many rows.
	Limit  int
	Offset int
}

const productColumns = `id, name, description, price, stock_quantity, category_id, image_filename,
	is_organic, certifications, origin_country, is_active, is_featured, created_at, updated_at`

// productSelect reads an absent category as the empty string.
const productSelect = `id, name, description, price, stock_quantity, COALESCE(category_id, '') AS category_id,
	image_filename, is_organic, certifications, origin_country, is_active, is_featured, created_at, updated_at`

const categoryForeignKey = "fk_products_category"

type Repository struct {
	db database.DBTX
}

func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.StockQuantity, &p.CategoryID,
		&p.ImageFilename, &p.IsOrganic, &p.Certifications, &p.OriginCountry, &p.IsActive,
		&p.IsFeatured, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, error) {
	var (
		conds []string
		args  []any
	)
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		conds = append(conds, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "is_active")
	}
	if filter.FeaturedOnly {
		conds = append(conds, "is_featured")
	}
	if filter.OrganicOnly {
		conds = append(conds, "is_organic")
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, q)
		conds = append(conds, fmt.Sprintf("strpos(lower(name), lower($%d)) > 0", len(args)))
	}
	if filter.MinPrice.Valid {
		args = append(args, filter.MinPrice.Decimal)
		conds = append(conds, fmt.Sprintf("price >= $%d", len(args)))
	}
	if filter.MaxPrice.Valid {
		args = append(args, filter.MaxPrice.Decimal)
		conds = append(conds, fmt.Sprintf("price <= $%d", len(args)))
	}

	query := `SELECT ` + productSelect + ` FROM products`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	if filter.Latest {
		query += ` ORDER BY created_at DESC, id`
	} else {
		query += ` ORDER BY name, id`
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return r.getProduct(ctx, id, false)
}

// GetProductForUpdate locks the product row until the surrounding
// transaction ends. Outside a transaction it behaves like GetProduct.
func (r *Repository) GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	return r.getProduct(ctx, id, true)
}

func (r *Repository) getProduct(ctx context.Context, id string, lock bool) (*domain.Product, error) {
	query := `SELECT ` + productSelect + ` FROM products WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AdjustStock adds delta (negative to decrement) to the product's stock in a
// single conditional statement, so concurrent callers can never drive the
// stock below zero or past domain.MaxStock.
func (r *Repository) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	if delta == 0 || delta > domain.MaxStock || delta < -domain.MaxStock {
		return nil, domain.ErrInvalidQuantity
	}

	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2::bigint, updated_at = NOW()
		WHERE id = $1 AND stock_quantity + $2::bigint BETWEEN 0 AND $3
		RETURNING `+productSelect, id, delta, domain.MaxStock))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	current, err := r.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if delta > 0 {
		return nil, fmt.Errorf("%w: stock of %s would exceed %d", domain.ErrInvalidQuantity, current.Name, domain.MaxStock)
	}
	return nil, &domain.InsufficientStockError{
		ProductID:   current.ID,
		ProductName: current.Name,
		Available:   current.StockQuantity,
		Requested:   -delta,
	}
}

// CreateProduct inserts p with its price rounded to cents. An unknown
// category fails with domain.ErrCategoryNotFound.
func (r *Repository) CreateProduct(ctx context.Context, p *domain.Product) error {
	if p.Price.IsNegative() {
		return domain.ErrInvalidPrice
	}
	if p.StockQuantity < 0 || p.StockQuantity > domain.MaxStock {
		return domain.ErrInvalidQuantity
	}
	p.Price = domain.RoundPrice(p.Price)

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13, $13)
	`, p.ID, p.Name, p.Description, p.Price, p.StockQuantity, p.CategoryID, p.ImageFilename,
		p.IsOrganic, p.Certifications, p.OriginCountry, p.IsActive, p.IsFeatured, now)
	return categoryError(err, p.CategoryID)
}

// UpdateProduct persists everything but the stock quantity, which only
// changes through AdjustStock.
func (r *Repository) UpdateProduct(ctx context.Context, p *domain.Product) error {
	if p.Price.IsNegative() {
		return domain.ErrInvalidPrice
	}
	p.Price = domain.RoundPrice(p.Price)

	p.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, category_id = NULLIF($5, ''), image_filename = $6,
			is_organic = $7, certifications = $8, origin_country = $9, is_active = $10,
			is_featured = $11, updated_at = $12
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Price, p.CategoryID, p.ImageFilename, p.IsOrganic,
		p.Certifications, p.OriginCountry, p.IsActive, p.IsFeatured, p.UpdatedAt)
	if err != nil {
		return categoryError(err, p.CategoryID)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, p.ID)
	}

	return nil
}

// categoryError maps a violation of the product category foreign key to
// domain.ErrCategoryNotFound and returns any other error unchanged.
func categoryError(err error, categoryID string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" && pqErr.Constraint == categoryForeignKey {
		return fmt.Errorf("%w: %s", domain.ErrCategoryNotFound, categoryID)
	}
	return err
}

const categoryColumns = `id, name, description, image_url, is_active, created_at, updated_at`

func scanCategory(row rowScanner) (*domain.Category, error) {
	c := &domain.Category{}
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.ImageURL, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCategories returns the active categories by name.
func (r *Repository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE is_active
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	categories := []domain.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return categories, nil
}

func (r *Repository) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrCategoryNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repository) CreateCategory(ctx context.Context, c *domain.Category) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, c.ID, c.Name, c.Description, c.ImageURL, c.IsActive, now)
	return err
}
