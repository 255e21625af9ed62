package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/ecomarket/internal/catalog"
	"github.com/joao-fontenele/ecomarket/internal/domain"
	"github.com/joao-fontenele/ecomarket/internal/orders"
)

// Memory keeps products and orders in process. Transactions are serialised
// by a single mutex and work on a copy of the state that replaces the live
// state only when the transaction succeeds.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, s orders.Stores) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := m.state.clone()
	if err := fn(ctx, orders.Stores{Products: tx, Orders: tx}); err != nil {
		return err
	}
	m.state = tx
	return nil
}

// Catalog operations outside a transaction; each call is atomic on its own.

func (m *Memory) ListProducts(ctx context.Context, filter catalog.ProductFilter) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListProducts(ctx, filter)
}

func (m *Memory) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetProduct(ctx, id)
}

func (m *Memory) CreateProduct(ctx context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateProduct(ctx, p)
}

func (m *Memory) UpdateProduct(ctx context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateProduct(ctx, p)
}

func (m *Memory) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AdjustStock(ctx, id, delta)
}

func (m *Memory) ListCategories(ctx context.Context) ([]domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListCategories(ctx)
}

func (m *Memory) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetCategory(ctx, id)
}

func (m *Memory) CreateCategory(ctx context.Context, c *domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateCategory(ctx, c)
}

type memState struct {
	categories map[string]domain.Category
	products   map[string]domain.Product
	orders     map[string]domain.Order
	// seq orders orders by creation when timestamps tie.
	seq map[string]int
}

func newMemState() *memState {
	return &memState{
		categories: make(map[string]domain.Category),
		products:   make(map[string]domain.Product),
		orders:     make(map[string]domain.Order),
		seq:        make(map[string]int),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for id, cat := range s.categories {
		c.categories[id] = cat
	}
	for id, p := range s.products {
		c.products[id] = p
	}
	for id, o := range s.orders {
		c.orders[id] = copyOrder(o)
	}
	for id, n := range s.seq {
		c.seq[id] = n
	}
	return c
}

func copyOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	if o.Items == nil {
		o.Items = []domain.OrderItem{}
	}
	return o
}

func (s *memState) ListProducts(_ context.Context, filter catalog.ProductFilter) ([]domain.Product, error) {
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	products := []domain.Product{}
	for _, p := range s.products {
		if !matchesFilter(p, filter, query) {
			continue
		}
		products = append(products, p)
	}

	sort.Slice(products, func(i, j int) bool {
		a, b := products[i], products[j]
		if filter.Latest {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		} else if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})

	if filter.Offset > 0 {
		products = products[min(filter.Offset, len(products)):]
	}
	if filter.Limit > 0 && len(products) > filter.Limit {
		products = products[:filter.Limit]
	}
	return products, nil
}

func matchesFilter(p domain.Product, filter catalog.ProductFilter, query string) bool {
	switch {
	case filter.CategoryID != "" && p.CategoryID != filter.CategoryID:
		return false
	case filter.ActiveOnly && !p.IsActive:
		return false
	case filter.FeaturedOnly && !p.IsFeatured:
		return false
	case filter.OrganicOnly && !p.IsOrganic:
		return false
	case query != "" && !strings.Contains(strings.ToLower(p.Name), query):
		return false
	case filter.MinPrice.Valid && p.Price.LessThan(filter.MinPrice.Decimal):
		return false
	case filter.MaxPrice.Valid && p.Price.GreaterThan(filter.MaxPrice.Decimal):
		return false
	}
	return true
}

func (s *memState) ListCategories(_ context.Context) ([]domain.Category, error) {
	categories := []domain.Category{}
	for _, c := range s.categories {
		if c.IsActive {
			categories = append(categories, c)
		}
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Name != categories[j].Name {
			return categories[i].Name < categories[j].Name
		}
		return categories[i].ID < categories[j].ID
	})
	return categories, nil
}

func (s *memState) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	c, ok := s.categories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCategoryNotFound, id)
	}
	return &c, nil
}

func (s *memState) CreateCategory(_ context.Context, c *domain.Category) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if _, exists := s.categories[c.ID]; exists {
		return fmt.Errorf("category %s already exists", c.ID)
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	s.categories[c.ID] = *c
	return nil
}

func (s *memState) checkCategory(id string) error {
	if id == "" {
		return nil
	}
	if _, ok := s.categories[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrCategoryNotFound, id)
	}
	return nil
}

func (s *memState) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}
	return &p, nil
}

func (s *memState) GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	return s.GetProduct(ctx, id)
}

func (s *memState) AdjustStock(_ context.Context, id string, delta int) (*domain.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}
	if err := p.AdjustStock(delta); err != nil {
		return nil, err
	}
	s.products[id] = p
	return &p, nil
}

func (s *memState) CreateProduct(_ context.Context, p *domain.Product) error {
	if p.Price.IsNegative() {
		return domain.ErrInvalidPrice
	}
	if p.StockQuantity < 0 || p.StockQuantity > domain.MaxStock {
		return domain.ErrInvalidQuantity
	}
	if err := s.checkCategory(p.CategoryID); err != nil {
		return err
	}
	p.Price = domain.RoundPrice(p.Price)
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if _, exists := s.products[p.ID]; exists {
		return fmt.Errorf("product %s already exists", p.ID)
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.products[p.ID] = *p
	return nil
}

func (s *memState) UpdateProduct(_ context.Context, p *domain.Product) error {
	if p.Price.IsNegative() {
		return domain.ErrInvalidPrice
	}
	current, ok := s.products[p.ID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, p.ID)
	}
	if err := s.checkCategory(p.CategoryID); err != nil {
		return err
	}
	p.Price = domain.RoundPrice(p.Price)
	updated := *p
	updated.StockQuantity = current.StockQuantity
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	p.UpdatedAt = updated.UpdatedAt
	s.products[p.ID] = updated
	return nil
}

func (s *memState) CreateOrder(_ context.Context, order *domain.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.New().String()
		}
		order.Items[i].OrderID = order.ID
	}
	s.orders[order.ID] = copyOrder(*order)
	s.seq[order.ID] = len(s.seq)
	return nil
}

func (s *memState) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	o = copyOrder(o)
	return &o, nil
}

func (s *memState) GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *memState) UpdateOrder(_ context.Context, order *domain.Order) error {
	current, ok := s.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, order.ID)
	}
	current.Status = order.Status
	current.TotalAmount = order.TotalAmount
	current.PaymentStatus = order.PaymentStatus
	current.TrackingNumber = order.TrackingNumber
	current.UpdatedAt = order.UpdatedAt
	s.orders[order.ID] = current
	return nil
}

func (s *memState) ListOrders(_ context.Context, filter orders.OrderFilter) ([]domain.Order, error) {
	out := []domain.Order{}
	for _, o := range s.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		if si, sj := s.seq[out[i].ID], s.seq[out[j].ID]; si != sj {
			return si > sj
		}
		return strings.Compare(out[i].ID, out[j].ID) < 0
	})
	return out, nil
}
