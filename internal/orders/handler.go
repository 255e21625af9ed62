package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/joao-fontenele/ecomarket/internal/domain"
	"github.com/joao-fontenele/ecomarket/internal/identity"
)

type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

type orderLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type placeOrderRequest struct {
	Items           []orderLineRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddress string             `json:"shipping_address" validate:"required,min=10,max=500"`
	BillingAddress  string             `json:"billing_address" validate:"max=500"`
	Notes           string             `json:"notes" validate:"max=1000"`
	PaymentMethod   string             `json:"payment_method" validate:"max=50"`
}

func (req placeOrderRequest) toServiceRequest() PlaceOrderRequest {
	lines := make([]PlaceOrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, PlaceOrderLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return PlaceOrderRequest{
		Lines:           lines,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Notes:           req.Notes,
		PaymentMethod:   req.PaymentMethod,
	}
}

type updateStatusRequest struct {
	Status         string `json:"status" validate:"required"`
	TrackingNumber string `json:"tracking_number" validate:"max=100"`
}

type orderItemResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	Username        string              `json:"username"`
	Items           []orderItemResponse `json:"items"`
	TotalAmount     string              `json:"total_amount"`
	Status          string              `json:"status"`
	ShippingAddress string              `json:"shipping_address"`
	BillingAddress  string              `json:"billing_address,omitempty"`
	PaymentMethod   string              `json:"payment_method,omitempty"`
	PaymentStatus   string              `json:"payment_status,omitempty"`
	TrackingNumber  string              `json:"tracking_number,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			LineTotal:   item.LineTotal.StringFixed(2),
		})
	}

	return orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Username:        o.Username,
		Items:           items,
		TotalAmount:     o.TotalAmount.StringFixed(2),
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		TrackingNumber:  o.TrackingNumber,
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.PlaceOrder(r.Context(), user, req.toServiceRequest())
	if err != nil {
		h.writeServiceError(w, err, "failed to place order", "user_id", user.ID)
		return
	}

	h.logger.Info("order created", "order_id", order.ID, "user_id", user.ID)
	h.writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.service.GetOrder(r.Context(), user, id)
	if err != nil {
		h.writeServiceError(w, err, "failed to get order", "id", id)
		return
	}

	h.logger.Info("order retrieved", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOrders(r.Context(), user)
	if err != nil {
		h.writeServiceError(w, err, "failed to list orders")
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	h.logger.Info("orders listed", "count", len(resp), "user_id", user.ID)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if !user.IsAdmin() {
		h.writeError(w, http.StatusForbidden, "access denied")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), id, status, req.TrackingNumber)
	if err != nil {
		h.writeServiceError(w, err, "failed to update order status", "id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.service.CancelOrder(r.Context(), user, id)
	if err != nil {
		h.writeServiceError(w, err, "failed to cancel order", "id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	user, ok := identity.FromRequest(r)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
	}
	return user, ok
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

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string, args ...any) {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		h.writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "insufficient stock",
			"product_id": stockErr.ProductID,
			"product":    stockErr.ProductName,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		})
	case errors.Is(err, domain.ErrProductNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrAccessDenied):
		h.writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, domain.ErrOrderNotCancellable), errors.Is(err, domain.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidOrder), errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidStatus):
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
