package twirp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/unkn0wn-root/rpccache"
	"github.com/unkn0wn-root/rpccache/provider/lru"
	"github.com/unkn0wn-root/rpccache/store/local"
)

const (
	helloService = "example.hello_world.HelloWorld"
	helloMethod  = "Hello"
)

// helloServer answers "Hello <name> #<n>". Names containing "error" succeed once and
// then fail with unavailable.
type helloServer struct {
	calls   atomic.Int32
	mu      sync.Mutex
	errored map[string]bool
}

func (s *helloServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/twirp/"+helloService+"/"+helloMethod {
		WriteError(w, &Error{Code: BadRoute, Msg: "no handler for " + r.URL.Path})
		return
	}
	body, _ := io.ReadAll(r.Body)
	var in wrapperspb.StringValue
	if err := proto.Unmarshal(body, &in); err != nil {
		WriteError(w, &Error{Code: Malformed, Msg: err.Error()})
		return
	}
	n := s.calls.Add(1)

	if strings.Contains(in.Value, "error") {
		s.mu.Lock()
		seen := s.errored[in.Value]
		s.errored[in.Value] = true
		s.mu.Unlock()
		if seen {
			WriteError(w, &Error{Code: Unavailable, Msg: "Error on request " + in.Value})
			return
		}
	}

	out, _ := proto.Marshal(wrapperspb.String(fmt.Sprintf("Hello %s #%d", in.Value, n)))
	w.Header().Set("Content-Type", ContentTypeProtobuf)
	_, _ = w.Write(out)
}

type clock struct{ t atomic.Int64 }

func (c *clock) Now() time.Time          { return time.Unix(0, c.t.Load()) }
func (c *clock) Advance(d time.Duration) { c.t.Add(int64(d)) }

func newTestClient(t *testing.T) (*Client, *helloServer, *clock) {
	t.Helper()
	hs := &helloServer{errored: make(map[string]bool)}
	srv := httptest.NewServer(hs)
	t.Cleanup(srv.Close)

	clk := &clock{}
	clk.t.Store(time.Unix(1_700_000_000, 0).UnixNano())
	p, err := lru.New(lru.Config{Now: clk.Now})
	if err != nil {
		t.Fatalf("lru: %v", err)
	}
	st, err := local.New(local.Config{Provider: p, Namespace: "twirp-experiment", Now: clk.Now})
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	dec, err := rpccache.New(rpccache.Options{Store: st, Clock: clk.Now})
	if err != nil {
		t.Fatalf("rpccache.New: %v", err)
	}
	t.Cleanup(func() { _ = dec.Close(context.Background()) })

	return NewClient(srv.URL+"/twirp/", WithDecorator(dec)), hs, clk
}

func hello(t *testing.T, c *Client, name, cc string) (string, *rpccache.Response) {
	t.Helper()
	var out wrapperspb.StringValue
	resp, err := c.Call(context.Background(), helloService, helloMethod, wrapperspb.String(name), &out, cc)
	if err != nil {
		t.Fatalf("Call(%q, %q): %v", name, cc, err)
	}
	return out.Value, resp
}

func TestCallCachesAndTagsResponses(t *testing.T) {
	c, hs, clk := newTestClient(t)

	first, r1 := hello(t, c, "TTL World", "max-age=2")
	if r1.Cache != rpccache.Miss || r1.Header["Content-Type"] != ContentTypeProtobuf {
		t.Fatalf("first call: cache=%s header=%v", r1.Cache, r1.Header)
	}

	clk.Advance(time.Second)
	second, r2 := hello(t, c, "TTL World", "max-age=2")
	if second != first || r2.Cache != rpccache.Hit || r2.Header[rpccache.HeaderAge] != "1" {
		t.Fatalf("second call: %q cache=%s age=%s", second, r2.Cache, r2.Header[rpccache.HeaderAge])
	}

	clk.Advance(2 * time.Second)
	third, _ := hello(t, c, "TTL World", "max-age=2")
	if third == first {
		t.Fatal("expired entry was served")
	}
	if n := hs.calls.Load(); n != 2 {
		t.Fatalf("server calls = %d, want 2", n)
	}
}

func TestNoCacheForcesRefresh(t *testing.T) {
	c, _, _ := newTestClient(t)

	a, _ := hello(t, c, "Refresh World", "no-cache")
	b, _ := hello(t, c, "Refresh World", "no-cache")
	if a == b {
		t.Fatal("no-cache served a cached response")
	}
	d, resp := hello(t, c, "Refresh World", "")
	if d != b || resp.Cache != rpccache.Hit {
		t.Fatalf("default policy after no-cache: %q cache=%s, want %q HIT", d, resp.Cache, b)
	}
}

func TestStaleIfErrorThenTwirpError(t *testing.T) {
	c, _, clk := newTestClient(t)
	const cc = "max-age=2, stale-if-error=2"

	first, _ := hello(t, c, "error world", cc)
	clk.Advance(3 * time.Second)
	stale, resp := hello(t, c, "error world", cc)
	if stale != first || resp.Cache != rpccache.Hit {
		t.Fatalf("stale-if-error: %q cache=%s", stale, resp.Cache)
	}

	clk.Advance(3 * time.Second)
	var out wrapperspb.StringValue
	_, err := c.Call(context.Background(), helloService, helloMethod, wrapperspb.String("error world"), &out, cc)
	te, ok := AsError(err)
	if !ok {
		t.Fatalf("err = %v, want *Error", err)
	}
	if te.Code != Unavailable || te.HTTPStatus != http.StatusServiceUnavailable || !strings.Contains(te.Msg, "error world") {
		t.Fatalf("unexpected twirp error %+v", te)
	}
}

func TestBadRouteAndIntermediaryErrors(t *testing.T) {
	c, _, _ := newTestClient(t)
	var out wrapperspb.StringValue
	_, err := c.Call(context.Background(), helloService, "Missing", wrapperspb.String("x"), &out, "")
	if te, ok := AsError(err); !ok || te.Code != BadRoute || te.HTTPStatus != http.StatusNotFound {
		t.Fatalf("err = %v", err)
	}

	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "<html>bad gateway</html>", http.StatusBadGateway)
	}))
	defer gw.Close()
	_, err = NewClient(gw.URL).Call(context.Background(), helloService, helloMethod, wrapperspb.String("x"), &out, "")
	if te, ok := AsError(err); !ok || te.Code != Unavailable || te.HTTPStatus != http.StatusBadGateway {
		t.Fatalf("err = %v", err)
	}
}

func TestWithoutDecoratorAlwaysCallsUpstream(t *testing.T) {
	hs := &helloServer{errored: make(map[string]bool)}
	srv := httptest.NewServer(hs)
	defer srv.Close()

	c := NewClient(srv.URL+"/twirp", WithHeader("X-Request-Id", "test"))
	for i := 0; i < 2; i++ {
		var out wrapperspb.StringValue
		resp, err := c.Call(context.Background(), helloService, helloMethod, wrapperspb.String("World"), &out, "max-age=60")
		if err != nil || resp.Cache != rpccache.Miss {
			t.Fatalf("Call: resp=%v err=%v", resp, err)
		}
	}
	if n := hs.calls.Load(); n != 2 {
		t.Fatalf("server calls = %d, want 2", n)
	}
}

func TestResponseTooLarge(t *testing.T) {
	big := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer big.Close()

	var out wrapperspb.StringValue
	_, err := NewClient(big.URL, WithMaxResponse(16)).Call(context.Background(), helloService, helloMethod, wrapperspb.String("x"), &out, "")
	var te *Error
	if !errors.As(err, &te) || te.Code != Malformed {
		t.Fatalf("err = %v", err)
	}
}

func TestRequestHeadersFromContext(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Clone())
		w.Header().Set("Content-Type", ContentTypeProtobuf)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithHeader("X-Request-Id", "static"), WithHeader("X-Client", "rpccache"))
	ctx := WithHTTPRequestHeaders(context.Background(), http.Header{
		"X-Request-Id": {"per-call"},
		"Content-Type": {"text/plain"},
	})
	if _, err := c.Do(ctx, rpccache.Request{Service: helloService, Method: helloMethod}, ContentTypeProtobuf, ""); err != nil {
		t.Fatalf("Do: %v", err)
	}

	h, _ := got.Load().(http.Header)
	if v := h.Values("X-Request-Id"); len(v) != 1 || v[0] != "per-call" {
		t.Fatalf("X-Request-Id = %v, want [per-call]", v)
	}
	if h.Get("X-Client") != "rpccache" {
		t.Fatalf("static header lost: %v", h)
	}
	if h.Get("Content-Type") != ContentTypeProtobuf {
		t.Fatalf("Content-Type = %q", h.Get("Content-Type"))
	}
}
