package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/ecomarket/internal/domain"
)

var (
	tracer = otel.Tracer("orders/service")
	meter  = otel.Meter("orders/service")
)

// ProductStore is the slice of the catalog the order workflows need.
type ProductStore interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error)
	AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, order *domain.Order) error
	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
}

// Stores groups the stores bound to one transaction.
type Stores struct {
	Products ProductStore
	Orders   OrderStore
}

// UnitOfWork runs fn atomically: every change made through the given
// stores is committed when fn returns nil and discarded otherwise.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

type PlaceOrderLine struct {
	ProductID string
	Quantity  int
}

type PlaceOrderRequest struct {
	Lines           []PlaceOrderLine
	ShippingAddress string
	BillingAddress  string
	Notes           string
	PaymentMethod   string
}

type Service struct {
	uow               UnitOfWork
	publisher         EventPublisher
	logger            *slog.Logger
	lowStockThreshold int
	strictTransitions bool

	placed          metric.Int64Counter
	cancelled       metric.Int64Counter
	stockRejections metric.Int64Counter
}

type Option func(*Service)

// WithLowStockThreshold sets the stock level at or below which a
// PRODUCT_STOCK_LOW event is published after an order is placed.
func WithLowStockThreshold(n int) Option {
	return func(s *Service) {
		s.lowStockThreshold = n
	}
}

// WithStrictTransitions controls whether UpdateStatus enforces the order
// lifecycle graph. When disabled any status can be forced.
func WithStrictTransitions(strict bool) Option {
	return func(s *Service) {
		s.strictTransitions = strict
	}
}

// NewService builds the order service. publisher may be nil, in which case
// no events are emitted.
func NewService(uow UnitOfWork, publisher EventPublisher, logger *slog.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		uow:               uow,
		publisher:         publisher,
		logger:            logger,
		lowStockThreshold: 5,
		strictTransitions: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.placed, err = meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders successfully placed")); err != nil {
		return nil, err
	}
	if s.cancelled, err = meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Orders cancelled with stock restored")); err != nil {
		return nil, err
	}
	if s.stockRejections, err = meter.Int64Counter("orders.stock_rejections",
		metric.WithDescription("Placements rejected for insufficient stock")); err != nil {
		return nil, err
	}

	return s, nil
}

// PlaceOrder validates every line against current stock, decrements it and
// persists the order, all in one transaction. If any line fails no stock is
// changed.
func (s *Service) PlaceOrder(ctx context.Context, user domain.User, req PlaceOrderRequest) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "PlaceOrder", trace.WithAttributes(
		attribute.String("user.id", user.ID),
		attribute.Int("order.lines", len(req.Lines)),
	))
	defer span.End()

	if err := validatePlacement(user, req); err != nil {
		recordError(span, err)
		return nil, err
	}

	var (
		order   *domain.Order
		touched []*domain.Product
	)
	err := s.uow.InTx(ctx, func(ctx context.Context, st Stores) error {
		order = domain.NewOrder(user, req.ShippingAddress, req.BillingAddress, req.Notes)
		order.PaymentMethod = req.PaymentMethod

		products, err := lockProducts(ctx, st.Products, req.Lines)
		if err != nil {
			return err
		}

		for _, line := range req.Lines {
			product, ok := products[line.ProductID]
			if !ok {
				return fmt.Errorf("%w: %s", domain.ErrProductNotFound, line.ProductID)
			}

			if !product.HasStock(line.Quantity) {
				return &domain.InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Available:   product.StockQuantity,
					Requested:   line.Quantity,
				}
			}

			updated, err := st.Products.AdjustStock(ctx, product.ID, -line.Quantity)
			if err != nil {
				return err
			}
			products[product.ID] = updated

			item, err := domain.NewOrderItem(product.ID, product.Name, line.Quantity, product.Price)
			if err != nil {
				return err
			}
			order.AddItem(item)
		}

		if err := st.Orders.CreateOrder(ctx, order); err != nil {
			return err
		}

		touched = touchedProducts(products, req.Lines)
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			s.stockRejections.Add(ctx, 1)
		}
		recordError(span, err)
		return nil, err
	}

	s.placed.Add(ctx, 1)
	span.SetAttributes(attribute.String("order.id", order.ID))
	s.logger.Info("order placed", "order_id", order.ID, "user_id", user.ID,
		"items", len(order.Items), "total", order.TotalAmount.String())

	s.publish(ctx, domain.NewOrderEvent(domain.EventOrderCreated, "New order created", order))
	for _, p := range touched {
		if p.StockQuantity <= s.lowStockThreshold {
			s.publish(ctx, domain.NewStockLowEvent(p))
		}
	}

	return order, nil
}

func validatePlacement(user domain.User, req PlaceOrderRequest) error {
	if user.ID == "" {
		return fmt.Errorf("%w: missing user", domain.ErrInvalidOrder)
	}
	if len(req.Lines) == 0 {
		return fmt.Errorf("%w: at least one item is required", domain.ErrInvalidOrder)
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return fmt.Errorf("%w: shipping address is required", domain.ErrInvalidOrder)
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: product %s", domain.ErrInvalidQuantity, line.ProductID)
		}
	}
	return nil
}

// lockProducts locks every distinct product referenced by lines in id
// order, so two placements sharing products cannot deadlock. Missing
// products are left out of the result; the caller reports them in line
// order.
func lockProducts(ctx context.Context, store ProductStore, lines []PlaceOrderLine) (map[string]*domain.Product, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	products := make(map[string]*domain.Product, len(ids))
	for _, id := range ids {
		p, err := store.GetProductForUpdate(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock product %s: %w", id, err)
		}
		products[id] = p
	}
	return products, nil
}

func touchedProducts(products map[string]*domain.Product, lines []PlaceOrderLine) []*domain.Product {
	seen := make(map[string]bool, len(lines))
	var out []*domain.Product
	for _, line := range lines {
		if seen[line.ProductID] {
			continue
		}
		seen[line.ProductID] = true
		out = append(out, products[line.ProductID])
	}
	return out
}

// GetOrder returns the order if user owns it or is an admin.
func (s *Service) GetOrder(ctx context.Context, user domain.User, id string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "GetOrder", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	var order *domain.Order
	err := s.uow.InTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		order, err = st.Orders.GetOrder(ctx, id)
		return err
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	if !order.IsOwnedBy(user) && !user.IsAdmin() {
		recordError(span, domain.ErrAccessDenied)
		return nil, domain.ErrAccessDenied
	}

	return order, nil
}

// ListOrders returns the user's orders, or every order for an admin.
func (s *Service) ListOrders(ctx context.Context, user domain.User) ([]domain.Order, error) {
	ctx, span := tracer.Start(ctx, "ListOrders")
	defer span.End()

	filter := OrderFilter{UserID: user.ID}
	if user.IsAdmin() {
		filter.UserID = ""
	}

	var orders []domain.Order
	err := s.uow.InTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		orders, err = st.Orders.ListOrders(ctx, filter)
		return err
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	return orders, nil
}

// UpdateStatus moves an order to status. Moving to CANCELLED restores the
// stock of every item; moving a cancelled order to any other status takes
// that stock back and fails with an *InsufficientStockError when it is no
// longer available.
func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, trackingNumber string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status", string(status)),
	))
	defer span.End()

	if !status.Valid() {
		err := fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
		recordError(span, err)
		return nil, err
	}

	var (
		order    *domain.Order
		restored bool
		reserved []*domain.Product
	)
	err := s.uow.InTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		order, err = st.Orders.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if s.strictTransitions && !order.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, status)
		}

		wasCancelled := order.Status == domain.OrderStatusCancelled
		switch {
		case status == domain.OrderStatusCancelled && !wasCancelled:
			if err := restoreStock(ctx, st.Products, order); err != nil {
				return err
			}
			restored = true
		case wasCancelled && status != domain.OrderStatusCancelled:
			reserved, err = reserveStock(ctx, st.Products, order)
			if err != nil {
				return err
			}
		}

		if err := order.ApplyStatus(status, trackingNumber); err != nil {
			return err
		}

		return st.Orders.UpdateOrder(ctx, order)
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	s.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	if restored {
		s.cancelled.Add(ctx, 1)
		s.publish(ctx, domain.NewOrderEvent(domain.EventOrderCancelled, "Order cancelled", order))
	} else {
		s.publish(ctx, domain.NewOrderEvent(domain.EventOrderUpdated,
			"Order status updated to: "+string(order.Status), order))
	}
	for _, p := range reserved {
		if p.StockQuantity <= s.lowStockThreshold {
			s.publish(ctx, domain.NewStockLowEvent(p))
		}
	}

	return order, nil
}

// CancelOrder cancels an order on behalf of its owner and puts every item
// back into stock.
func (s *Service) CancelOrder(ctx context.Context, user domain.User, id string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "CancelOrder", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("user.id", user.ID),
	))
	defer span.End()

	var order *domain.Order
	err := s.uow.InTx(ctx, func(ctx context.Context, st Stores) error {
		var err error
		order, err = st.Orders.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if !order.IsOwnedBy(user) {
			return domain.ErrAccessDenied
		}

		if !order.CanBeCancelled() {
			return fmt.Errorf("%w: status is %s", domain.ErrOrderNotCancellable, order.Status)
		}

		if err := restoreStock(ctx, st.Products, order); err != nil {
			return err
		}

		order.Cancel()
		return st.Orders.UpdateOrder(ctx, order)
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	s.cancelled.Add(ctx, 1)
	s.logger.Info("order cancelled", "order_id", order.ID, "user_id", user.ID)
	s.publish(ctx, domain.NewOrderEvent(domain.EventOrderCancelled, "Order cancelled", order))

	return order, nil
}

// itemQuantities sums the order's quantities per product and returns the
// product ids sorted, the same order lockProducts takes row locks in.
func itemQuantities(order *domain.Order) ([]string, map[string]int) {
	quantities := make(map[string]int, len(order.Items))
	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		if _, ok := quantities[item.ProductID]; !ok {
			ids = append(ids, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}
	slices.Sort(ids)
	return ids, quantities
}

func restoreStock(ctx context.Context, products ProductStore, order *domain.Order) error {
	ids, quantities := itemQuantities(order)
	for _, id := range ids {
		if _, err := products.AdjustStock(ctx, id, quantities[id]); err != nil {
			return fmt.Errorf("restore stock for product %s: %w", id, err)
		}
	}
	return nil
}

func reserveStock(ctx context.Context, products ProductStore, order *domain.Order) ([]*domain.Product, error) {
	ids, quantities := itemQuantities(order)
	updated := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		p, err := products.AdjustStock(ctx, id, -quantities[id])
		if err != nil {
			return nil, fmt.Errorf("reserve stock for product %s: %w", id, err)
		}
		updated = append(updated, p)
	}
	return updated, nil
}

func (s *Service) publish(ctx context.Context, event domain.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "error", err, "type", event.Type, "key", event.Key())
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
