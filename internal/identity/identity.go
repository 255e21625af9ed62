// Package identity carries the authenticated caller between the edge and
// the services. Authentication itself happens before the gateway; services
// trust these headers.
package identity

import (
	"net/http"
	"strings"

	"github.com/joao-fontenele/ecomarket/internal/domain"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUsername = "X-Username"
	HeaderUserRole = "X-User-Role"
)

// Headers lists the identity headers, in the order the gateway forwards them.
var Headers = []string{HeaderUserID, HeaderUsername, HeaderUserRole}

// FromRequest returns the caller of r. ok is false when no user id is present.
func FromRequest(r *http.Request) (user domain.User, ok bool) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return domain.User{}, false
	}

	role := domain.RoleUser
	if strings.EqualFold(r.Header.Get(HeaderUserRole), string(domain.RoleAdmin)) {
		role = domain.RoleAdmin
	}

	username := strings.TrimSpace(r.Header.Get(HeaderUsername))
	if username == "" {
		username = id
	}

	return domain.User{ID: id, Username: username, Role: role}, true
}

// SetHeaders writes user onto h.
func SetHeaders(h http.Header, user domain.User) {
	h.Set(HeaderUserID, user.ID)
	h.Set(HeaderUsername, user.Username)
	h.Set(HeaderUserRole, string(user.Role))
}
