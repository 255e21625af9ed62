package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/ecomarket/internal/domain"
)

// NotificationHandler turns domain events into emails sent through the
// email service.
type NotificationHandler struct {
	emailServiceURL string
	adminEmail      string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL, adminEmail string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		adminEmail:      adminEmail,
		httpClient:      client,
		logger:          logger,
	}
}

type emailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Handle processes one event. Unknown event types are ignored so that new
// producers do not stall the consumer.
func (h *NotificationHandler) Handle(ctx context.Context, eventType domain.EventType, payload []byte) error {
	var event domain.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal %s event: %w", eventType, err)
	}
	if eventType == "" {
		eventType = event.Type
	}

	msg, ok := h.compose(eventType, event)
	if !ok {
		h.logger.Warn("ignoring event", "type", eventType)
		return nil
	}

	if err := h.sendEmail(ctx, msg); err != nil {
		h.logger.Error("failed to send notification", "error", err, "type", eventType, "key", event.Key())
		return fmt.Errorf("send %s notification: %w", eventType, err)
	}

	h.logger.Info("notification sent", "type", eventType, "key", event.Key(), "to", msg.To)
	return nil
}

func (h *NotificationHandler) compose(eventType domain.EventType, event domain.Event) (emailMessage, bool) {
	if eventType == domain.EventStockLow {
		if event.Stock == nil {
			return emailMessage{}, false
		}
		return emailMessage{
			To:      h.adminEmail,
			Subject: "Low stock: " + event.Stock.ProductName,
			Body: fmt.Sprintf("Product %s (%s) is down to %d units.",
				event.Stock.ProductName, event.Stock.ProductID, event.Stock.CurrentStock),
		}, true
	}

	o := event.Order
	if o == nil {
		return emailMessage{}, false
	}
	to := o.Username + "@example.com"

	switch eventType {
	case domain.EventOrderCreated:
		return emailMessage{
			To:      to,
			Subject: "Order Confirmation: " + o.OrderID,
			Body: fmt.Sprintf("Your order %s with %d items totalling %s has been received.",
				o.OrderID, o.ItemCount, o.TotalAmount.StringFixed(2)),
		}, true
	case domain.EventOrderUpdated:
		body := fmt.Sprintf("Your order %s is now %s.", o.OrderID, o.Status)
		if o.Status == domain.OrderStatusShipped && o.TrackingNumber != "" {
			body += " Tracking number: " + o.TrackingNumber + "."
		}
		return emailMessage{
			To:      to,
			Subject: "Order Update: " + o.OrderID,
			Body:    body,
		}, true
	case domain.EventOrderCancelled:
		return emailMessage{
			To:      to,
			Subject: "Order Cancelled: " + o.OrderID,
			Body:    fmt.Sprintf("Your order %s has been cancelled. You will be reimbursed.", o.OrderID),
		}, true
	}
	return emailMessage{}, false
}

func (h *NotificationHandler) sendEmail(ctx context.Context, msg emailMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
