// Package asynchook moves hook delivery off the request path.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{HitEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	dec, _ := rpccache.New(rpccache.Options{
//	    Store: st,
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
//
// Events are dropped when the queue is full.
package asynchook

import (
	"github.com/unkn0wn-root/rpccache"
	"github.com/unkn0wn-root/rpccache/revalidate"
)

type Hooks struct {
	inner rpccache.Hooks
	pool  *revalidate.Pool
}

var _ rpccache.Hooks = (*Hooks)(nil)

func New(inner rpccache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}
	return &Hooks{inner: inner, pool: revalidate.New(workers, qlen)}
}

// Close delivers queued events and stops the workers.
func (h *Hooks) Close() { h.pool.Close() }

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.pool.Stats().Dropped }

func (h *Hooks) try(f func()) { _ = h.pool.Submit(f) }

func (h *Hooks) Hit(k string)                 { h.try(func() { h.inner.Hit(k) }) }
func (h *Hooks) Miss(k string)                { h.try(func() { h.inner.Miss(k) }) }
func (h *Hooks) StaleServed(k, reason string) { h.try(func() { h.inner.StaleServed(k, reason) }) }
func (h *Hooks) WriteRejected(k string)       { h.try(func() { h.inner.WriteRejected(k) }) }
func (h *Hooks) RevalidationDropped(k string) { h.try(func() { h.inner.RevalidationDropped(k) }) }
func (h *Hooks) StoreReadError(k string, err error) {
	h.try(func() { h.inner.StoreReadError(k, err) })
}
func (h *Hooks) StoreWriteError(k string, err error) {
	h.try(func() { h.inner.StoreWriteError(k, err) })
}
func (h *Hooks) EntryDecodeError(k string, err error) {
	h.try(func() { h.inner.EntryDecodeError(k, err) })
}
func (h *Hooks) RevalidationFailed(k string, err error) {
	h.try(func() { h.inner.RevalidationFailed(k, err) })
}
