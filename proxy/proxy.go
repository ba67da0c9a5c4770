// Package proxy is a caching reverse proxy for Twirp services.
//
// Clients POST to <prefix>/<service>/<method> exactly as they would to the upstream
// and pass their caching policy in the Cache-Control request header. Responses carry
// X-Cache (HIT/MISS) and Age.
package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/rpccache"
	"github.com/unkn0wn-root/rpccache/transport/twirp"
)

const (
	DefaultPrefix      = "/twirp"
	DefaultMaxBodySize = 1 << 20

	HeaderRequestID = "X-Request-Id"
)

var (
	ErrNoUpstream  = errors.New("proxy: upstream URL is required")
	ErrNoDecorator = errors.New("proxy: decorator is required")
)

type Config struct {
	Upstream    string // base URL, e.g. http://localhost:3001/twirp
	Prefix      string // path prefix served by the proxy; "" => DefaultPrefix
	Decorator   *rpccache.Decorator
	HTTPClient  *http.Client // nil => twirp client default
	MaxBodySize int64        // 0 => DefaultMaxBodySize
	Logger      *zap.Logger  // nil => no logging
}

type Handler struct {
	client  *twirp.Client
	prefix  string
	maxBody int64
	log     *zap.Logger
}

var _ http.Handler = (*Handler)(nil)

func New(cfg Config) (*Handler, error) {
	if cfg.Upstream == "" {
		return nil, ErrNoUpstream
	}
	if cfg.Decorator == nil {
		return nil, ErrNoDecorator
	}

	opts := []twirp.Option{twirp.WithDecorator(cfg.Decorator)}
	if cfg.HTTPClient != nil {
		opts = append(opts, twirp.WithHTTPClient(cfg.HTTPClient))
	}
	h := &Handler{
		client:  twirp.NewClient(cfg.Upstream, opts...),
		prefix:  strings.TrimRight(cfg.Prefix, "/"),
		maxBody: cfg.MaxBodySize,
		log:     cfg.Logger,
	}
	if h.prefix == "" {
		h.prefix = DefaultPrefix
	}
	if h.maxBody <= 0 {
		h.maxBody = DefaultMaxBodySize
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	h.log = h.log.Named("proxy")
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := r.Header.Get(HeaderRequestID)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, reqID)

	if r.Method != http.MethodPost {
		twirp.WriteError(w, &twirp.Error{Code: twirp.BadRoute, Msg: "unsupported method " + r.Method + " (only POST is allowed)"})
		return
	}
	service, method, ok := h.route(r.URL.Path)
	if !ok {
		twirp.WriteError(w, &twirp.Error{Code: twirp.BadRoute, Msg: "no handler for path " + r.URL.Path})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody+1))
	if err != nil {
		twirp.WriteError(w, &twirp.Error{Code: twirp.Malformed, Msg: "failed to read request body"})
		return
	}
	if int64(len(body)) > h.maxBody {
		twirp.WriteError(w, &twirp.Error{Code: twirp.Malformed, Msg: "request body too large"})
		return
	}

	contentType := r.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if contentType == "" {
		contentType = twirp.ContentTypeProtobuf
	}
	directives := r.Header.Get(rpccache.HeaderCacheControl)

	log := h.log.With(
		zap.String("request_id", reqID),
		zap.String("service", service),
		zap.String("method", method),
	)

	ctx := twirp.WithHTTPRequestHeaders(r.Context(), http.Header{HeaderRequestID: {reqID}})
	resp, err := h.client.Do(ctx, rpccache.Request{Service: service, Method: method, Body: body}, contentType, directives)
	if err != nil {
		h.writeUpstreamError(ctx, w, err)
		log.Info("upstream call failed",
			zap.String("cache_control", directives),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}

	ct := resp.Header["Content-Type"]
	if ct == "" {
		ct = contentType
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set(rpccache.HeaderCache, string(resp.Cache))
	w.Header().Set(rpccache.HeaderAge, strconv.FormatInt(int64(resp.Age/time.Second), 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Payload)

	log.Debug("served",
		zap.String("cache", string(resp.Cache)),
		zap.Duration("age", resp.Age),
		zap.String("cache_control", directives),
		zap.Duration("elapsed", time.Since(start)))
}

// route splits "<prefix>/<service>/<method>".
func (h *Handler) route(path string) (service, method string, ok bool) {
	rest, found := strings.CutPrefix(path, h.prefix+"/")
	if !found {
		return "", "", false
	}
	service, method, ok = strings.Cut(rest, "/")
	if !ok || service == "" || method == "" || strings.Contains(method, "/") {
		return "", "", false
	}
	return service, method, true
}

// writeUpstreamError relays Twirp errors from the upstream verbatim and maps
// transport failures to Twirp codes.
func (h *Handler) writeUpstreamError(ctx context.Context, w http.ResponseWriter, err error) {
	if te, ok := twirp.AsError(err); ok {
		if te.HTTPStatus != 0 && len(te.Body) > 0 {
			w.Header().Set("Content-Type", twirp.ContentTypeJSON)
			w.WriteHeader(te.HTTPStatus)
			_, _ = w.Write(te.Body)
			return
		}
		twirp.WriteError(w, te)
		return
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		twirp.WriteError(w, &twirp.Error{Code: twirp.DeadlineExceeded, Msg: "upstream timed out"})
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		twirp.WriteError(w, &twirp.Error{Code: twirp.Canceled, Msg: "request canceled"})
	default:
		twirp.WriteError(w, &twirp.Error{Code: twirp.Unavailable, Msg: "upstream unavailable", HTTPStatus: http.StatusBadGateway})
	}
}
