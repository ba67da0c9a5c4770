package rpccache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/rpccache/cachecontrol"
	c "github.com/unkn0wn-root/rpccache/codec"
	"github.com/unkn0wn-root/rpccache/revalidate"
	"github.com/unkn0wn-root/rpccache/store"
)

// Decorator wraps RPC calls with a cache. Safe for concurrent use.
type Decorator struct {
	store   store.Store
	sched   Scheduler
	pool    *revalidate.Pool // non-nil when the Decorator owns its scheduler
	codec   c.Codec[Entry]
	log     Logger
	hooks   Hooks
	now     func() time.Time
	timeout time.Duration
	enabled bool

	flight singleflight.Group
}

func New(opts Options) (*Decorator, error) {
	if opts.Store == nil {
		return nil, ErrNilStore
	}

	d := &Decorator{
		store:   opts.Store,
		enabled: !opts.Disabled,
	}

	// defaults
	d.log = coalesce[Logger](opts.Logger, NopLogger{})
	d.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	d.codec = coalesce[c.Codec[Entry]](opts.Codec, c.Msgpack[Entry]{})
	d.timeout = coalesce(opts.RevalidateTimeout, defaultRevalidateTimeout)
	d.now = opts.Clock
	if d.now == nil {
		d.now = time.Now
	}

	if opts.Scheduler != nil {
		d.sched = opts.Scheduler
	} else {
		d.pool = revalidate.New(opts.Workers, opts.QueueSize, revalidate.WithPanicHandler(func(v any) {
			d.log.Error("revalidation task panicked", Fields{"panic": fmt.Sprint(v)})
		}))
		d.sched = d.pool
	}
	return d, nil
}

func (d *Decorator) Enabled() bool { return d.enabled }

// SchedulerStats reports the owned revalidation pool's counters. ok is false when
// the scheduler was supplied through Options.
func (d *Decorator) SchedulerStats() (s revalidate.Stats, ok bool) {
	if d.pool == nil {
		return revalidate.Stats{}, false
	}
	return d.pool.Stats(), true
}

// Close drains the owned revalidation pool (queued refreshes still run) and then
// closes the store.
func (d *Decorator) Close(ctx context.Context) error {
	if d.pool != nil {
		d.pool.Close()
	}
	return d.store.Close(ctx)
}

// Handle serves one call according to directives (a Cache-Control value).
//
//   - fresh entry: returned without calling invoke
//   - stale within stale-while-revalidate: returned, and a refresh is scheduled
//   - otherwise invoke runs; on failure a stale entry within stale-if-error is
//     returned, else the upstream error unchanged
//   - successful results are stored unless no-store is set
//
// Store and codec failures never fail the call; they degrade to a miss.
func (d *Decorator) Handle(ctx context.Context, req Request, directives string, invoke Invoker) (*Response, error) {
	if invoke == nil {
		return nil, ErrNilInvoker
	}
	if !d.enabled {
		resp, err := invoke(ctx)
		if err != nil {
			return nil, err
		}
		return tag(resp, Miss, 0), nil
	}

	key := KeyFor(req.Service, req.Method, req.Body)
	policy := cachecontrol.Parse(directives)
	now := d.now().Unix()

	var cached *Entry
	tok := store.Unconditional // no-cache: the fresh result replaces whatever is there
	if !policy.NoCache {
		cached, tok = d.read(ctx, key)
	}

	if cached != nil {
		if policy.Fresh(cached.CachedAt, now) {
			d.hooks.Hit(key)
			return cached.serve(now), nil
		}
		if policy.CanRevalidate(cached.CachedAt, now) {
			if !policy.NoStore {
				d.revalidate(ctx, key, policy, tok, invoke)
			}
			d.hooks.StaleServed(key, "revalidate")
			return cached.serve(now), nil
		}
	}

	resp, err := invoke(ctx)
	if err != nil {
		if cached != nil && policy.CanServeOnError(cached.CachedAt, now) {
			d.log.Warn("upstream failed; serving stale entry", Fields{"key": key, "err": err.Error()})
			d.hooks.StaleServed(key, "error")
			return cached.serve(now), nil
		}
		return nil, err
	}
	if resp == nil {
		resp = &Response{}
	}

	if !policy.NoStore {
		d.write(ctx, key, resp, policy, tok)
	}
	d.hooks.Miss(key)
	return tag(resp, Miss, 0), nil
}

// read never fails: store errors become a miss with an absent token, so a later
// write can only create and never clobber an entry this read did not see.
func (d *Decorator) read(ctx context.Context, key string) (*Entry, store.Token) {
	raw, tok, err := d.store.Read(ctx, key)
	if err != nil {
		d.log.Warn("cache read failed", Fields{"key": key, "err": err.Error()})
		d.hooks.StoreReadError(key, err)
		return nil, store.Absent
	}
	if raw == nil {
		return nil, tok
	}
	e, err := d.codec.Decode(raw)
	if err != nil {
		// keep tok: the next write replaces the bad entry
		d.log.Warn("cache entry decode failed", Fields{"key": key, "err": err.Error()})
		d.hooks.EntryDecodeError(key, err)
		return nil, tok
	}
	return &e, tok
}

func (d *Decorator) write(ctx context.Context, key string, resp *Response, policy cachecontrol.Policy, tok store.Token) {
	e := Entry{
		Response: Response{Payload: resp.Payload, Header: resp.Header},
		CachedAt: d.now().Unix(),
	}
	raw, err := d.codec.Encode(e)
	if err != nil {
		d.log.Error("cache entry encode failed", Fields{"key": key, "err": err.Error()})
		d.hooks.StoreWriteError(key, err)
		return
	}

	// ttl 0 means "no expiry" to a store; keep max-age=0 entries bounded
	ttl := max(policy.StoreTTL(), time.Second)
	applied, err := d.store.Write(ctx, key, raw, ttl, tok)
	if err != nil {
		d.log.Warn("cache write failed", Fields{"key": key, "err": err.Error()})
		d.hooks.StoreWriteError(key, err)
		return
	}
	if !applied {
		d.log.Debug("cache write skipped (token mismatch)", Fields{"key": key, "token": tok.String()})
		d.hooks.WriteRejected(key)
	}
}

// revalidate schedules a background refresh. The task outlives the request, so it
// runs on a detached context bounded by the revalidate timeout. Concurrent refreshes
// of the same key and token collapse into one upstream call; a refresh holding a
// different token runs on its own so its write is judged against its own token.
func (d *Decorator) revalidate(ctx context.Context, key string, policy cachecontrol.Policy, tok store.Token, invoke Invoker) {
	base := context.WithoutCancel(ctx)
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("rpccache: revalidation panic: %v", r)
				d.log.Error("revalidation panicked", Fields{"key": key, "err": err.Error()})
				d.hooks.RevalidationFailed(key, err)
			}
		}()

		ctx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()

		_, err, _ := d.flight.Do(flightKey(key, tok), func() (any, error) {
			resp, err := invoke(ctx)
			if err != nil {
				return nil, err
			}
			if resp == nil {
				resp = &Response{}
			}
			d.write(ctx, key, resp, policy, tok)
			return nil, nil
		})
		if err != nil {
			d.log.Debug("revalidation failed", Fields{"key": key, "err": err.Error()})
			d.hooks.RevalidationFailed(key, err)
		}
	}

	if !d.sched.Submit(task) {
		d.log.Debug("revalidation dropped (queue full)", Fields{"key": key})
		d.hooks.RevalidationDropped(key)
	}
}

func flightKey(key string, tok store.Token) string { return key + "#" + tok.String() }

// serve returns a HIT copy of the cached response with its age.
func (e *Entry) serve(now int64) *Response {
	age := max(now-e.CachedAt, 0)
	return tag(&e.Response, Hit, time.Duration(age)*time.Second)
}

// tag returns a copy of r annotated with the disposition and age, both as fields
// and as X-Cache / Age headers. r itself is not modified.
func tag(r *Response, disp Disposition, age time.Duration) *Response {
	if r == nil {
		r = &Response{}
	}
	h := make(map[string]string, len(r.Header)+2)
	for k, v := range r.Header {
		h[k] = v
	}
	h[HeaderCache] = string(disp)
	h[HeaderAge] = strconv.FormatInt(int64(age/time.Second), 10)
	return &Response{Payload: r.Payload, Header: h, Cache: disp, Age: age}
}
