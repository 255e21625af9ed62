package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MaxStock is the largest stock quantity a product can hold.
	MaxStock = math.MaxInt32
	// MoneyScale is the number of decimal places prices are kept at.
	MoneyScale = 2
)

// RoundPrice rounds d half away from zero to MoneyScale places.
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	StockQuantity  int             `json:"stock_quantity"`
	CategoryID     string          `json:"category_id"`
	ImageFilename  string          `json:"image_filename"`
	IsOrganic      bool            `json:"is_organic"`
	Certifications string          `json:"certifications"`
	OriginCountry  string          `json:"origin_country"`
	IsActive       bool            `json:"is_active"`
	IsFeatured     bool            `json:"is_featured"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// DecreaseStock removes quantity units, failing with an
// *InsufficientStockError when fewer are available.
func (p *Product) DecreaseStock(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if p.StockQuantity < quantity {
		return &InsufficientStockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Available:   p.StockQuantity,
			Requested:   quantity,
		}
	}
	p.StockQuantity -= quantity
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// IncreaseStock adds quantity units. The result may not exceed MaxStock.
func (p *Product) IncreaseStock(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > MaxStock-p.StockQuantity {
		return fmt.Errorf("%w: stock of %s would exceed %d", ErrInvalidQuantity, p.Name, MaxStock)
	}
	p.StockQuantity += quantity
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// AdjustStock applies a signed delta. A zero delta is rejected.
func (p *Product) AdjustStock(delta int) error {
	switch {
	case delta < 0:
		return p.DecreaseStock(-delta)
	case delta > 0:
		return p.IncreaseStock(delta)
	default:
		return ErrInvalidQuantity
	}
}

func (p *Product) HasStock(quantity int) bool {
	return p.StockQuantity >= quantity
}

func (p *Product) IsInStock() bool {
	return p.StockQuantity > 0
}

func (p *Product) UpdatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return ErrInvalidPrice
	}
	p.Price = RoundPrice(price)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (p *Product) Activate() {
	p.IsActive = true
}

func (p *Product) Deactivate() {
	p.IsActive = false
}

func (p *Product) SetFeatured() {
	p.IsFeatured = true
}

func (p *Product) RemoveFromFeatured() {
	p.IsFeatured = false
}

// TotalPrice is the price of quantity units at the current price.
func (p *Product) TotalPrice(quantity int) decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(quantity)))
}
