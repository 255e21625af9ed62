package gateway

import (
	"context"
	"net/http"

	"github.com/joao-fontenele/ecomarket/internal/identity"
)

// forwardedHeaders are copied from the inbound request to the upstream one.
// Identity headers are only copied by a proxy that trusts its caller.
var forwardedHeaders = []string{"Content-Type", "Accept"}

type ServiceProxy struct {
	baseURL       string
	client        *http.Client
	trustIdentity bool
}

// NewServiceProxy builds a proxy to baseURL. When trustIdentity is false the
// caller's identity headers are dropped, so upstream services see an
// anonymous request.
func NewServiceProxy(baseURL string, client *http.Client, trustIdentity bool) *ServiceProxy {
	return &ServiceProxy{
		baseURL:       baseURL,
		client:        client,
		trustIdentity: trustIdentity,
	}
}

// ForwardRequest replays r against the upstream at path, keeping its query
// string and body.
func (p *ServiceProxy) ForwardRequest(ctx context.Context, r *http.Request, path string) (*http.Response, error) {
	target := p.baseURL + path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		return nil, err
	}

	copyHeaders(req.Header, r.Header, forwardedHeaders)
	if p.trustIdentity {
		copyHeaders(req.Header, r.Header, identity.Headers)
	}

	return p.client.Do(req)
}

func copyHeaders(dst, src http.Header, names []string) {
	for _, name := range names {
		if value := src.Get(name); value != "" {
			dst.Set(name, value)
		}
	}
}
