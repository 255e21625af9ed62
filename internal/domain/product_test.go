package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduct_Stock(t *testing.T) {
	p := &Product{ID: "p1", Name: "Honey", StockQuantity: 5, Price: decimal.RequireFromString("10.00")}

	require.NoError(t, p.DecreaseStock(3))
	assert.Equal(t, 2, p.StockQuantity)

	err := p.DecreaseStock(10)
	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "Honey", stockErr.ProductName)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 10, stockErr.Requested)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 2, p.StockQuantity)

	require.NoError(t, p.IncreaseStock(3))
	assert.Equal(t, 5, p.StockQuantity)

	assert.ErrorIs(t, p.DecreaseStock(0), ErrInvalidQuantity)
	assert.ErrorIs(t, p.IncreaseStock(-2), ErrInvalidQuantity)
	assert.ErrorIs(t, p.AdjustStock(0), ErrInvalidQuantity)

	require.NoError(t, p.AdjustStock(-5))
	assert.False(t, p.IsInStock())
	assert.True(t, p.HasStock(0))
}

func TestProduct_IncreaseStockCeiling(t *testing.T) {
	p := &Product{Name: "Honey", StockQuantity: 10}

	assert.ErrorIs(t, p.IncreaseStock(MaxStock), ErrInvalidQuantity)
	assert.Equal(t, 10, p.StockQuantity)

	require.NoError(t, p.IncreaseStock(MaxStock-10))
	assert.Equal(t, MaxStock, p.StockQuantity)

	assert.ErrorIs(t, p.AdjustStock(1), ErrInvalidQuantity)
	assert.Equal(t, MaxStock, p.StockQuantity)
}

func TestProduct_UpdatePrice(t *testing.T) {
	p := &Product{Price: decimal.NewFromInt(4)}

	assert.ErrorIs(t, p.UpdatePrice(decimal.NewFromInt(-1)), ErrInvalidPrice)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(4)))

	require.NoError(t, p.UpdatePrice(decimal.Zero))
	assert.True(t, p.Price.IsZero())

	require.NoError(t, p.UpdatePrice(decimal.RequireFromString("2.5")))
	assert.True(t, p.TotalPrice(4).Equal(decimal.NewFromInt(10)))

	t.Run("rounds to cents", func(t *testing.T) {
		require.NoError(t, p.UpdatePrice(decimal.RequireFromString("10.005")))
		assert.Equal(t, "10.01", p.Price.String())

		require.NoError(t, p.UpdatePrice(decimal.RequireFromString("3.14159")))
		assert.Equal(t, "3.14", p.Price.String())
	})
}

func TestProduct_Flags(t *testing.T) {
	p := &Product{}
	p.Activate()
	p.SetFeatured()
	assert.True(t, p.IsActive)
	assert.True(t, p.IsFeatured)
	p.Deactivate()
	p.RemoveFromFeatured()
	assert.False(t, p.IsActive)
	assert.False(t, p.IsFeatured)
}
