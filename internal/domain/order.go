package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// ParseOrderStatus accepts a status token in any letter case.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether next directly follows s in the order
// lifecycle graph.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type OrderItem struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// NewOrderItem snapshots unitPrice so later price changes on the product do
// not affect the line.
func NewOrderItem(productID, productName string, quantity int, unitPrice decimal.Decimal) (OrderItem, error) {
	if quantity <= 0 {
		return OrderItem{}, ErrInvalidQuantity
	}
	if unitPrice.IsNegative() {
		return OrderItem{}, ErrInvalidPrice
	}
	item := OrderItem{
		ProductID:   productID,
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
	}
	item.CalculateLineTotal()
	return item, nil
}

func (i *OrderItem) CalculateLineTotal() {
	i.LineTotal = i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i *OrderItem) UpdateQuantity(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	i.Quantity = quantity
	i.CalculateLineTotal()
	return nil
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Username        string          `json:"username"`
	Items           []OrderItem     `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          OrderStatus     `json:"status"`
	ShippingAddress string          `json:"shipping_address"`
	BillingAddress  string          `json:"billing_address"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentStatus   string          `json:"payment_status"`
	TrackingNumber  string          `json:"tracking_number"`
	Notes           string          `json:"notes"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func NewOrder(user User, shippingAddress, billingAddress, notes string) *Order {
	now := time.Now().UTC()
	return &Order{
		UserID:          user.ID,
		Username:        user.Username,
		Items:           []OrderItem{},
		TotalAmount:     decimal.Zero,
		Status:          OrderStatusPending,
		ShippingAddress: shippingAddress,
		BillingAddress:  billingAddress,
		Notes:           notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (o *Order) AddItem(item OrderItem) {
	o.Items = append(o.Items, item)
	o.RecalculateTotal()
}

// RemoveItem drops the item with the given id. It reports whether an item
// was removed.
func (o *Order) RemoveItem(itemID string) bool {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			o.Items = append(o.Items[:i], o.Items[i+1:]...)
			o.RecalculateTotal()
			return true
		}
	}
	return false
}

func (o *Order) RecalculateTotal() {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal)
	}
	o.TotalAmount = total
	o.touch()
}

func (o *Order) Confirm() {
	o.setStatus(OrderStatusConfirmed)
}

func (o *Order) Process() {
	o.setStatus(OrderStatusProcessing)
}

func (o *Order) Ship(trackingNumber string) {
	o.TrackingNumber = trackingNumber
	o.setStatus(OrderStatusShipped)
}

func (o *Order) Deliver() {
	o.setStatus(OrderStatusDelivered)
}

func (o *Order) Cancel() {
	o.setStatus(OrderStatusCancelled)
}

// Reopen puts the order back to PENDING. Only reachable through a forced
// status update.
func (o *Order) Reopen() {
	o.setStatus(OrderStatusPending)
}

func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

func (o *Order) IsDelivered() bool {
	return o.Status == OrderStatusDelivered
}

func (o *Order) IsOwnedBy(user User) bool {
	return o.UserID == user.ID
}

// ApplyStatus dispatches to the aggregate method for status.
func (o *Order) ApplyStatus(status OrderStatus, trackingNumber string) error {
	switch status {
	case OrderStatusPending:
		o.Reopen()
	case OrderStatusConfirmed:
		o.Confirm()
	case OrderStatusProcessing:
		o.Process()
	case OrderStatusShipped:
		o.Ship(trackingNumber)
	case OrderStatusDelivered:
		o.Deliver()
	case OrderStatusCancelled:
		o.Cancel()
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return nil
}

func (o *Order) setStatus(status OrderStatus) {
	o.Status = status
	o.touch()
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
