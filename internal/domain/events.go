package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventOrderCreated   EventType = "ORDER_CREATED"
	EventOrderUpdated   EventType = "ORDER_UPDATED"
	EventOrderCancelled EventType = "ORDER_CANCELLED"
	EventStockLow       EventType = "PRODUCT_STOCK_LOW"
)

type OrderEventData struct {
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	Username       string          `json:"username"`
	Status         OrderStatus     `json:"status"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ItemCount      int             `json:"item_count"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
}

type StockEventData struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	CurrentStock int    `json:"current_stock"`
}

// Event is the envelope published on the events topic. Exactly one of
// Order and Stock is set, depending on Type.
type Event struct {
	Type      EventType       `json:"type"`
	Message   string          `json:"message"`
	Order     *OrderEventData `json:"order,omitempty"`
	Stock     *StockEventData `json:"stock,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Key is the partitioning key: events for one order or product stay ordered.
func (e Event) Key() string {
	switch {
	case e.Order != nil:
		return e.Order.OrderID
	case e.Stock != nil:
		return e.Stock.ProductID
	}
	return ""
}

func NewOrderEvent(eventType EventType, message string, o *Order) Event {
	return Event{
		Type:    eventType,
		Message: message,
		Order: &OrderEventData{
			OrderID:        o.ID,
			UserID:         o.UserID,
			Username:       o.Username,
			Status:         o.Status,
			TotalAmount:    o.TotalAmount,
			ItemCount:      len(o.Items),
			TrackingNumber: o.TrackingNumber,
		},
		Timestamp: time.Now().UTC(),
	}
}

func NewStockLowEvent(p *Product) Event {
	return Event{
		Type:    EventStockLow,
		Message: "Low stock alert for: " + p.Name,
		Stock: &StockEventData{
			ProductID:    p.ID,
			ProductName:  p.Name,
			CurrentStock: p.StockQuantity,
		},
		Timestamp: time.Now().UTC(),
	}
}
