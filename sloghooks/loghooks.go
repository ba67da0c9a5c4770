package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/rpccache"
	"github.com/unkn0wn-root/rpccache/internal/util"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitEvery     uint64
	MissEvery    uint64
	DroppedEvery uint64
	// Optional key redactor. Defaults to service/method plus a short hash of the key.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr     atomic.Uint64
	missCtr    atomic.Uint64
	droppedCtr atomic.Uint64
}

var _ rpccache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	if svc, m, ok := rpccache.SplitKey(k); ok {
		return svc + "/" + m + "/" + util.ShortHash(k)
	}
	return util.ShortHash(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hit(key string) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("rpccache.hit", "key", h.redact(key))
}

func (h *Hooks) Miss(key string) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("rpccache.miss", "key", h.redact(key))
}

func (h *Hooks) StaleServed(key, reason string) {
	if h.l == nil {
		return
	}
	h.l.Info("rpccache.stale_served",
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) StoreReadError(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("rpccache.store_read_error",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) StoreWriteError(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("rpccache.store_write_error",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) EntryDecodeError(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("rpccache.entry_decode_error",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) WriteRejected(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("rpccache.write_rejected", "key", h.redact(key))
}

func (h *Hooks) RevalidationDropped(key string) {
	if h.l == nil || !sample(h.opts.DroppedEvery, &h.droppedCtr) {
		return
	}
	h.l.Warn("rpccache.revalidation_dropped",
		"key", h.redact(key),
		"msg", "revalidation queue full; entry stays stale until the next request")
}

func (h *Hooks) RevalidationFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("rpccache.revalidation_failed",
		"key", h.redact(key),
		"err", err)
}
