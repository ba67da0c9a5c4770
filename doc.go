// Package rpccache is a caching decorator for synchronous RPC calls with HTTP-style
// Cache-Control semantics, backed by a compare-and-swap (CAS) key-value store.
//
// Components:
//   - cachecontrol: parses request directives (max-age, no-cache, no-store,
//     stale-while-revalidate, stale-if-error) into a Policy.
//   - KeyFor: "<service>/<method>/<sha256(body)>" cache keys.
//   - store.Store: byte store with TTLs and CAS tokens (store/redis, store/local).
//   - revalidate: fixed workers + bounded queue for background refreshes; drops
//     on overflow.
//   - Decorator: ties the above around the real call.
//
// Request flow:
//
//	resp, err := dec.Handle(ctx, rpccache.Request{Service: svc, Method: m, Body: body},
//	    "max-age=30, stale-while-revalidate=10", func(ctx context.Context) (*rpccache.Response, error) {
//	        return callUpstream(ctx, body)
//	    })
//	// resp.Cache is HIT or MISS; resp.Age is the entry age in seconds.
//
// CAS pattern: every write carries the token observed by the read that preceded
// it. A slow background refresh that started from an older read loses to any
// write committed since, so last-committed-wins rather than last-submitted-wins.
package rpccache
