package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/ecomarket/internal/domain"
)

type mailbox struct {
	mu     sync.Mutex
	emails []emailMessage
	status int
}

func (m *mailbox) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send" {
			t.Errorf("expected /send, got %s", r.URL.Path)
		}
		var msg emailMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode email: %v", err)
		}
		m.mu.Lock()
		m.emails = append(m.emails, msg)
		status := m.status
		m.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestHandler(srv *httptest.Server) *NotificationHandler {
	return NewNotificationHandler(srv.URL, "stock@example.com", srv.Client(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func orderPayload(t *testing.T, eventType domain.EventType, status domain.OrderStatus, tracking string) []byte {
	t.Helper()
	order := domain.NewOrder(domain.User{ID: "u1", Username: "alice"}, "12 Orchard Lane, Springfield", "", "")
	order.ID = "order-1"
	order.Status = status
	order.TrackingNumber = tracking
	item, err := domain.NewOrderItem("p1", "Apples", 3, decimal.RequireFromString("10"))
	if err != nil {
		t.Fatal(err)
	}
	order.AddItem(item)

	data, err := json.Marshal(domain.NewOrderEvent(eventType, "test", order))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestNotificationHandler_Handle(t *testing.T) {
	t.Run("sends an order confirmation to the customer", func(t *testing.T) {
		box := &mailbox{}
		h := newTestHandler(box.server(t))

		err := h.Handle(context.Background(), domain.EventOrderCreated,
			orderPayload(t, domain.EventOrderCreated, domain.OrderStatusPending, ""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(box.emails) != 1 {
			t.Fatalf("expected 1 email, got %d", len(box.emails))
		}
		got := box.emails[0]
		if got.To != "alice@example.com" {
			t.Errorf("expected alice@example.com, got %s", got.To)
		}
		if got.Subject != "Order Confirmation: order-1" {
			t.Errorf("unexpected subject: %s", got.Subject)
		}
		if !strings.Contains(got.Body, "30.00") {
			t.Errorf("expected total in body: %s", got.Body)
		}
	})

	t.Run("includes the tracking number for shipped orders", func(t *testing.T) {
		box := &mailbox{}
		h := newTestHandler(box.server(t))

		err := h.Handle(context.Background(), domain.EventOrderUpdated,
			orderPayload(t, domain.EventOrderUpdated, domain.OrderStatusShipped, "TRK-9"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(box.emails[0].Body, "TRK-9") {
			t.Errorf("expected tracking number in body: %s", box.emails[0].Body)
		}
	})

	t.Run("sends cancellations", func(t *testing.T) {
		box := &mailbox{}
		h := newTestHandler(box.server(t))

		err := h.Handle(context.Background(), domain.EventOrderCancelled,
			orderPayload(t, domain.EventOrderCancelled, domain.OrderStatusCancelled, ""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if box.emails[0].Subject != "Order Cancelled: order-1" {
			t.Errorf("unexpected subject: %s", box.emails[0].Subject)
		}
	})

	t.Run("sends low stock alerts to the admin address", func(t *testing.T) {
		box := &mailbox{}
		h := newTestHandler(box.server(t))

		payload, _ := json.Marshal(domain.NewStockLowEvent(&domain.Product{ID: "p1", Name: "Apples", StockQuantity: 2}))
		if err := h.Handle(context.Background(), domain.EventStockLow, payload); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := box.emails[0]
		if got.To != "stock@example.com" {
			t.Errorf("expected stock@example.com, got %s", got.To)
		}
		if !strings.Contains(got.Body, "2 units") {
			t.Errorf("unexpected body: %s", got.Body)
		}
	})

	t.Run("falls back to the payload type when the header is missing", func(t *testing.T) {
		box := &mailbox{}
		h := newTestHandler(box.server(t))

		err := h.Handle(context.Background(), "",
			orderPayload(t, domain.EventOrderCancelled, domain.OrderStatusCancelled, ""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(box.emails) != 1 {
			t.Fatalf("expected 1 email, got %d", len(box.emails))
		}
	})

	t.Run("ignores unknown event types", func(t *testing.T) {
		box := &mailbox{}
		h := newTestHandler(box.server(t))

		if err := h.Handle(context.Background(), "SOMETHING_ELSE", []byte(`{}`)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(box.emails) != 0 {
			t.Errorf("expected no email, got %d", len(box.emails))
		}
	})

	t.Run("returns an error for malformed payloads", func(t *testing.T) {
		box := &mailbox{}
		h := newTestHandler(box.server(t))

		if err := h.Handle(context.Background(), domain.EventOrderCreated, []byte(`{`)); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("returns an error when the email service fails", func(t *testing.T) {
		box := &mailbox{status: http.StatusInternalServerError}
		h := newTestHandler(box.server(t))

		err := h.Handle(context.Background(), domain.EventOrderCreated,
			orderPayload(t, domain.EventOrderCreated, domain.OrderStatusPending, ""))
		if err == nil {
			t.Error("expected error")
		}
	})
}
