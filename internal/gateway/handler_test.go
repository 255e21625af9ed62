package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joao-fontenele/ecomarket/internal/domain"
	"github.com/joao-fontenele/ecomarket/internal/identity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func unusedProxy() *ServiceProxy {
	return NewServiceProxy("http://unused", http.DefaultClient, true)
}

func TestHandler_HandleOrders(t *testing.T) {
	t.Run("proxies POST /orders with body and identity", func(t *testing.T) {
		ordersServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/orders" {
				t.Errorf("expected /orders, got %s", r.URL.Path)
			}
			if got := r.Header.Get(identity.HeaderUserID); got != "u1" {
				t.Errorf("expected user id u1, got %q", got)
			}
			if got := r.Header.Get(identity.HeaderUserRole); got != "USER" {
				t.Errorf("expected role USER, got %q", got)
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"items":[]}` {
				t.Errorf("unexpected body: %s", body)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"order-1"}`))
		}))
		defer ordersServer.Close()

		handler := NewHandler(NewServiceProxy(ordersServer.URL, ordersServer.Client(), true), unusedProxy(), discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":[]}`))
		identity.SetHeaders(req.Header, domain.User{ID: "u1", Username: "alice", Role: domain.RoleUser})
		rec := httptest.NewRecorder()

		handler.HandleOrders(rec, req)

		if rec.Code != http.StatusCreated {
			t.Errorf("expected status 201, got %d", rec.Code)
		}
		if rec.Header().Get("Content-Type") != "application/json" {
			t.Errorf("expected application/json, got %s", rec.Header().Get("Content-Type"))
		}
		if rec.Body.String() != `{"id":"order-1"}` {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("preserves downstream conflict responses", func(t *testing.T) {
		ordersServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/orders/order-1/cancel" {
				t.Errorf("expected /orders/order-1/cancel, got %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"order cannot be cancelled"}`))
		}))
		defer ordersServer.Close()

		handler := NewHandler(NewServiceProxy(ordersServer.URL, ordersServer.Client(), true), unusedProxy(), discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/orders/order-1/cancel", nil)
		rec := httptest.NewRecorder()

		handler.HandleOrders(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rec.Code)
		}
	})

	t.Run("returns 502 when orders service unavailable", func(t *testing.T) {
		handler := NewHandler(NewServiceProxy("http://localhost:99999", &http.Client{}, true), unusedProxy(), discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		rec := httptest.NewRecorder()

		handler.HandleOrders(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["error"] != "service unavailable" {
			t.Errorf("expected 'service unavailable', got %s", resp["error"])
		}
	})
}

func TestHandler_HandleCatalog(t *testing.T) {
	t.Run("forwards product listing with its query", func(t *testing.T) {
		catalogServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/products" {
				t.Errorf("expected /products, got %s", r.URL.Path)
			}
			if r.URL.Query().Get("category") != "fruit" {
				t.Errorf("expected category=fruit, got %s", r.URL.RawQuery)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[]`))
		}))
		defer catalogServer.Close()

		handler := NewHandler(unusedProxy(), NewServiceProxy(catalogServer.URL, catalogServer.Client(), true), discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/products?category=fruit", nil)
		rec := httptest.NewRecorder()

		handler.HandleCatalog(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
		if rec.Body.String() != `[]` {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("preserves downstream not found", func(t *testing.T) {
		catalogServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"product not found"}`))
		}))
		defer catalogServer.Close()

		handler := NewHandler(unusedProxy(), NewServiceProxy(catalogServer.URL, catalogServer.Client(), true), discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/products/unknown", nil)
		rec := httptest.NewRecorder()

		handler.HandleCatalog(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})
}
