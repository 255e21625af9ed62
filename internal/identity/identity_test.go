package identity

import (
	"net/http/httptest"
	"testing"

	"github.com/joao-fontenele/ecomarket/internal/domain"
)

func TestFromRequest(t *testing.T) {
	t.Run("missing user id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/orders", nil)
		if _, ok := FromRequest(req); ok {
			t.Fatal("expected no user")
		}
	})

	t.Run("admin role is case insensitive", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/orders", nil)
		req.Header.Set(HeaderUserID, "u-1")
		req.Header.Set(HeaderUsername, "alice")
		req.Header.Set(HeaderUserRole, "admin")

		user, ok := FromRequest(req)
		if !ok {
			t.Fatal("expected user")
		}
		if !user.IsAdmin() {
			t.Errorf("expected admin, got %s", user.Role)
		}
		if user.Username != "alice" {
			t.Errorf("expected alice, got %s", user.Username)
		}
	})

	t.Run("round trips through headers", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/orders", nil)
		SetHeaders(req.Header, domain.User{ID: "u-2", Username: "bob", Role: domain.RoleUser})

		user, ok := FromRequest(req)
		if !ok {
			t.Fatal("expected user")
		}
		if user.ID != "u-2" || user.Username != "bob" || user.IsAdmin() {
			t.Errorf("unexpected user %+v", user)
		}
	})

	t.Run("username defaults to id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/orders", nil)
		req.Header.Set(HeaderUserID, "u-3")

		user, _ := FromRequest(req)
		if user.Username != "u-3" {
			t.Errorf("expected u-3, got %s", user.Username)
		}
	})
}
