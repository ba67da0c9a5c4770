package rpccache

import (
	"errors"
	"testing"
)

func TestMultiHooksFanOut(t *testing.T) {
	a, b := newRecHooks(), newRecHooks()
	m := MultiHooks{a, b}
	err := errors.New("boom")

	m.Hit("k")
	m.Miss("k")
	m.StaleServed("k", "error")
	m.StoreReadError("k", err)
	m.StoreWriteError("k", err)
	m.EntryDecodeError("k", err)
	m.WriteRejected("k")
	m.RevalidationDropped("k")
	m.RevalidationFailed("k", err)

	for _, h := range []*recHooks{a, b} {
		for _, name := range []string{"hit", "miss", "stale_error", "read_error", "write_error",
			"decode_error", "write_rejected", "reval_dropped", "reval_failed"} {
			if got := h.Count(name); got != 1 {
				t.Fatalf("%s = %d, want 1", name, got)
			}
		}
	}
}
