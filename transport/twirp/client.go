// Package twirp is a Twirp-style HTTP client (protobuf over POST) whose calls run
// through a rpccache.Decorator.
//
//	c := twirp.NewClient("http://localhost:3001/twirp", twirp.WithDecorator(dec))
//	var out pb.HelloResponse
//	resp, err := c.Call(ctx, "example.hello_world.HelloWorld", "Hello", &pb.HelloRequest{Name: "World"}, &out,
//	    "max-age=2, stale-while-revalidate=2")
//	// resp.Cache == rpccache.Hit on the second call
package twirp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"

	"github.com/unkn0wn-root/rpccache"
	"github.com/unkn0wn-root/rpccache/codec"
)

const (
	ContentTypeProtobuf = "application/protobuf"
	ContentTypeJSON     = "application/json"

	// DefaultMaxResponse bounds response bodies read from the upstream.
	DefaultMaxResponse = 4 << 20
)

// Headers copied from upstream responses into the cached Response.
var keptHeaders = []string{"Content-Type", "Twirp-Version"}

type Client struct {
	base    string
	hc      *http.Client
	dec     *rpccache.Decorator
	maxBody int64
	header  http.Header
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithDecorator routes calls through dec. Without it every call goes upstream.
func WithDecorator(dec *rpccache.Decorator) Option { return func(c *Client) { c.dec = dec } }

func WithMaxResponse(n int64) Option { return func(c *Client) { c.maxBody = n } }

// WithHeader adds a static request header to every upstream call.
func WithHeader(k, v string) Option { return func(c *Client) { c.header.Add(k, v) } }

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		maxBody: DefaultMaxResponse,
		header:  make(http.Header),
	}
	for _, o := range opts {
		o(c)
	}
	if c.hc == nil {
		c.hc = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: 30 * time.Second,
		}
	}
	return c
}

// Call sends in to <base>/<service>/<method> and decodes the reply into out.
// directives is the request's Cache-Control value; "" applies the defaults.
// Upstream failures are returned as *Error.
func (c *Client) Call(ctx context.Context, service, method string, in, out proto.Message, directives string) (*rpccache.Response, error) {
	pb := codec.NewProtobuf(func() proto.Message { return out })
	body, err := pb.Encode(in)
	if err != nil {
		return nil, fmt.Errorf("twirp: marshal request: %w", err)
	}

	resp, err := c.Do(ctx, rpccache.Request{Service: service, Method: method, Body: body}, ContentTypeProtobuf, directives)
	if err != nil {
		return nil, err
	}
	if err := pb.DecodeInto(resp.Payload, out); err != nil {
		return nil, fmt.Errorf("twirp: unmarshal response: %w", err)
	}
	return resp, nil
}

// Do runs a raw request body through the decorator (when configured).
func (c *Client) Do(ctx context.Context, req rpccache.Request, contentType, directives string) (*rpccache.Response, error) {
	invoke := c.Invoker(req, contentType)
	if c.dec == nil {
		resp, err := invoke(ctx)
		if err != nil {
			return nil, err
		}
		resp.Cache = rpccache.Miss
		return resp, nil
	}
	return c.dec.Handle(ctx, req, directives, invoke)
}

// Invoker returns the upstream call for req. It may be invoked more than once (for
// background revalidation), so it never consumes req.Body.
func (c *Client) Invoker(req rpccache.Request, contentType string) rpccache.Invoker {
	url := c.base + "/" + req.Service + "/" + req.Method
	return func(ctx context.Context) (*rpccache.Response, error) {
		hr, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req.Body))
		if err != nil {
			return nil, fmt.Errorf("twirp: build request: %w", err)
		}
		for k, vs := range c.header {
			for _, v := range vs {
				hr.Header.Add(k, v)
			}
		}
		if h, ok := HTTPRequestHeaders(ctx); ok {
			for k, vs := range h {
				hr.Header[k] = append([]string(nil), vs...)
			}
		}
		hr.Header.Set("Content-Type", contentType)
		hr.Header.Set("Accept", contentType)

		res, err := c.hc.Do(hr)
		if err != nil {
			return nil, fmt.Errorf("twirp: %s/%s: %w", req.Service, req.Method, err)
		}
		defer res.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(res.Body, c.maxBody+1))
		if err != nil {
			return nil, fmt.Errorf("twirp: read response: %w", err)
		}
		if int64(len(payload)) > c.maxBody {
			return nil, &Error{Code: Malformed, Msg: "response body too large", HTTPStatus: http.StatusBadGateway}
		}
		if res.StatusCode < 200 || res.StatusCode > 299 {
			return nil, errorFromResponse(res, payload)
		}

		out := &rpccache.Response{Payload: payload, Header: make(map[string]string, len(keptHeaders))}
		for _, h := range keptHeaders {
			if v := res.Header.Get(h); v != "" {
				out.Header[h] = v
			}
		}
		return out, nil
	}
}

// AsError unwraps err to a *Error when one is in the chain.
func AsError(err error) (*Error, bool) {
	var te *Error
	ok := errors.As(err, &te)
	return te, ok
}
