// Package otel records decorator events as OpenTelemetry counters.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/rpccache"
)

const (
	RequestsMetric = "rpccache.requests"
	EventsMetric   = "rpccache.events"
)

type Hooks struct {
	requests metric.Int64Counter
	events   metric.Int64Counter
}

var _ rpccache.Hooks = (*Hooks)(nil)

func New(meter metric.Meter) (*Hooks, error) {
	requests, err := meter.Int64Counter(
		RequestsMetric,
		metric.WithDescription("Calls handled by the cache decorator, by outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}
	events, err := meter.Int64Counter(
		EventsMetric,
		metric.WithDescription("Store failures, rejected writes and revalidation problems"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	return &Hooks{requests: requests, events: events}, nil
}

// Hooks have no context; counters are recorded against Background.
func (h *Hooks) request(key, result string) {
	attrs := []attribute.KeyValue{attribute.String("cache.result", result)}
	if svc, m, ok := rpccache.SplitKey(key); ok {
		attrs = append(attrs, attribute.String("rpc.service", svc), attribute.String("rpc.method", m))
	}
	h.requests.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func (h *Hooks) event(name string) {
	h.events.Add(context.Background(), 1, metric.WithAttributes(attribute.String("cache.event", name)))
}

func (h *Hooks) Hit(k string)                     { h.request(k, "hit") }
func (h *Hooks) Miss(k string)                    { h.request(k, "miss") }
func (h *Hooks) StaleServed(k, reason string)     { h.request(k, "stale_"+reason) }
func (h *Hooks) StoreReadError(string, error)     { h.event("store_read_error") }
func (h *Hooks) StoreWriteError(string, error)    { h.event("store_write_error") }
func (h *Hooks) EntryDecodeError(string, error)   { h.event("entry_decode_error") }
func (h *Hooks) WriteRejected(string)             { h.event("write_rejected") }
func (h *Hooks) RevalidationDropped(string)       { h.event("revalidation_dropped") }
func (h *Hooks) RevalidationFailed(string, error) { h.event("revalidation_failed") }
