// Package prom exports decorator events as Prometheus counters.
//
//	rpccache_requests_total{service,method,result}   result ∈ hit, miss, stale_revalidate, stale_error
//	rpccache_events_total{event}                      store_read_error, store_write_error,
//	                                                  entry_decode_error, write_rejected,
//	                                                  revalidation_dropped, revalidation_failed
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/rpccache"
)

type Hooks struct {
	requests *prometheus.CounterVec
	events   *prometheus.CounterVec
}

var _ rpccache.Hooks = (*Hooks)(nil)

// New registers the collectors with reg (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) (*Hooks, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := &Hooks{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpccache",
			Name:      "requests_total",
			Help:      "Calls handled by the cache decorator, by outcome.",
		}, []string{"service", "method", "result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpccache",
			Name:      "events_total",
			Help:      "Degraded-path events: store failures, rejected writes and revalidation problems.",
		}, []string{"event"}),
	}
	for _, c := range []prometheus.Collector{h.requests, h.events} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) request(key, result string) {
	svc, m, ok := rpccache.SplitKey(key)
	if !ok {
		svc, m = "unknown", "unknown"
	}
	h.requests.WithLabelValues(svc, m, result).Inc()
}

func (h *Hooks) event(name string) { h.events.WithLabelValues(name).Inc() }

func (h *Hooks) Hit(k string)                     { h.request(k, "hit") }
func (h *Hooks) Miss(k string)                    { h.request(k, "miss") }
func (h *Hooks) StaleServed(k, reason string)     { h.request(k, "stale_"+reason) }
func (h *Hooks) StoreReadError(string, error)     { h.event("store_read_error") }
func (h *Hooks) StoreWriteError(string, error)    { h.event("store_write_error") }
func (h *Hooks) EntryDecodeError(string, error)   { h.event("entry_decode_error") }
func (h *Hooks) WriteRejected(string)             { h.event("write_rejected") }
func (h *Hooks) RevalidationDropped(string)       { h.event("revalidation_dropped") }
func (h *Hooks) RevalidationFailed(string, error) { h.event("revalidation_failed") }
