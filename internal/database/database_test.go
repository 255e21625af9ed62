package database

import (
	"net/url"
	"testing"
)

func TestWithSearchPath(t *testing.T) {
	t.Run("adds search_path to existing query", func(t *testing.T) {
		dsn, err := withSearchPath("postgres://u:p@localhost:5432/shop?sslmode=disable", "ecomarket")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		u, err := url.Parse(dsn)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := u.Query().Get("search_path"); got != "ecomarket" {
			t.Errorf("expected search_path ecomarket, got %q", got)
		}
		if got := u.Query().Get("sslmode"); got != "disable" {
			t.Errorf("expected sslmode preserved, got %q", got)
		}
	})

	t.Run("leaves url untouched without schema", func(t *testing.T) {
		in := "postgres://localhost/shop"
		dsn, err := withSearchPath(in, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dsn != in {
			t.Errorf("expected %s, got %s", in, dsn)
		}
	})
}
