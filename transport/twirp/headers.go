package twirp

import (
	"context"
	"net/http"
)

type headersKey struct{}

// WithHTTPRequestHeaders returns a context whose upstream calls carry h. Background
// refreshes started from a call keep the request's context values, so they send
// the same headers. Content-Type and Accept are always set by the client.
func WithHTTPRequestHeaders(ctx context.Context, h http.Header) context.Context {
	return context.WithValue(ctx, headersKey{}, h.Clone())
}

// HTTPRequestHeaders returns the headers attached by WithHTTPRequestHeaders.
func HTTPRequestHeaders(ctx context.Context) (http.Header, bool) {
	h, ok := ctx.Value(headersKey{}).(http.Header)
	return h, ok
}
