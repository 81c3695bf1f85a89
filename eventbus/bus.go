// Package eventbus is the unified event dispatch center: exact, prefix,
// and regex subscriptions, priority ordering, per-handler timeouts, and
// exception isolation.
package eventbus

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ncatbot/ncatbot-go/errors"
	"github.com/ncatbot/ncatbot-go/event"
	"github.com/ncatbot/ncatbot-go/logger"
)

// Handler is the single signature every subscriber is normalized to,
// regardless of whether the original caller registered a free function
// or a plugin method bound via closure.
type Handler func(ctx context.Context, ev *event.Event) (any, error)

// DefaultTimeout is used for subscriptions that don't specify one.
const DefaultTimeout = 120 * time.Second

type subscription struct {
	id       uuid.UUID
	matcher  string // exact type, or "" for regex subscriptions
	pattern  *regexp.Regexp
	priority int
	name     string
	handler  Handler
	timeout  time.Duration
	owner    string
}

// Bus is the event dispatch center. The zero value is not usable; call
// New.
type Bus struct {
	mu      sync.Mutex
	exact   map[string][]*subscription
	regex   []*subscription
	byID    map[uuid.UUID]*subscription
	timeout time.Duration
}

// New constructs a Bus with the given default per-handler timeout. Pass
// 0 to use DefaultTimeout.
func New(defaultTimeout time.Duration) *Bus {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	return &Bus{
		exact:   make(map[string][]*subscription),
		byID:    make(map[uuid.UUID]*subscription),
		timeout: defaultTimeout,
	}
}

// SubscribeOptions configures an individual subscription.
type SubscribeOptions struct {
	Priority int
	Timeout  time.Duration
	// Owner identifies the plugin (or other component) that created
	// this subscription, surfaced in HandlerTimeout entries and used by
	// the plugin loader to unsubscribe everything it owns on unload.
	Owner string
	// Name is used as the stable tiebreak on priority ties; defaults to
	// a synthetic "anon-<8 hex>" if empty.
	Name string
}

// Subscribe registers handler against typeExpr, which is either an
// exact event type, a dotted prefix (implicit: subscribing to "a.b"
// matches "a.b" and every "a.b.*"), or a regex prefixed with "re:".
// Returns a fresh id unique across the bus's lifetime.
func (b *Bus) Subscribe(typeExpr string, handler Handler, opts SubscribeOptions) (uuid.UUID, error) {
	if handler == nil {
		return uuid.Nil, errors.New("eventbus: nil handler")
	}
	id := uuid.New()
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = b.timeout
	}
	name := opts.Name
	if name == "" {
		name = "anon-" + id.String()[:8]
	}

	sub := &subscription{
		id:       id,
		priority: opts.Priority,
		name:     name,
		handler:  handler,
		timeout:  timeout,
		owner:    opts.Owner,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if strings.HasPrefix(typeExpr, "re:") {
		// Anchored at the start to match the original's re.match
		// semantics (unanchored at the end, same as re.match).
		pattern, err := regexp.Compile(`^(?:` + typeExpr[len("re:"):] + `)`)
		if err != nil {
			return uuid.Nil, errors.Wrapf(err, "eventbus: invalid regex subscription %q", typeExpr)
		}
		sub.pattern = pattern
		b.regex = append(b.regex, sub)
		sortSubs(b.regex)
	} else {
		sub.matcher = typeExpr
		b.exact[typeExpr] = append(b.exact[typeExpr], sub)
		sortSubs(b.exact[typeExpr])
	}
	b.byID[id] = sub

	logger.DispatchDebugw("subscribed handler",
		logger.FieldEventID, typeExpr, "handler", name, "priority", opts.Priority)
	return id, nil
}

// Unsubscribe removes a subscription from every bucket. Idempotent:
// unsubscribing an unknown or already-removed id returns false without
// error.
func (b *Bus) Unsubscribe(id uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.byID[id]
	if !ok {
		return false
	}
	delete(b.byID, id)

	if sub.pattern != nil {
		b.regex = removeSub(b.regex, id)
		return true
	}
	bucket := removeSub(b.exact[sub.matcher], id)
	if len(bucket) == 0 {
		delete(b.exact, sub.matcher)
	} else {
		b.exact[sub.matcher] = bucket
	}
	return true
}

// UnsubscribeOwner removes every subscription registered with the given
// owner, returning the ids removed. Used by the plugin loader on unload.
func (b *Bus) UnsubscribeOwner(owner string) []uuid.UUID {
	b.mu.Lock()
	var ids []uuid.UUID
	for id, sub := range b.byID {
		if sub.owner == owner {
			ids = append(ids, id)
		}
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.Unsubscribe(id)
	}
	return ids
}

// Shutdown clears every subscription and all owner metadata.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exact = make(map[string][]*subscription)
	b.regex = nil
	b.byID = make(map[uuid.UUID]*subscription)
	logger.DispatchInfow("event bus shut down")
}

// Publish dispatches ev to every matching handler in priority order,
// blocking until the full dispatch set has run (or been timed out).
// Each handler runs on its own goroutine so its timeout can be enforced
// without its cooperation; the dispatch loop blocks on that goroutine's
// completion before advancing to the next handler, preserving strict
// sequential-per-event semantics.
func (b *Bus) Publish(ctx context.Context, ev *event.Event) []any {
	handlers := b.collect(ev.Type)

	logger.DispatchInfow("dispatching event",
		logger.FieldEventID, ev.Type, "subscribers", len(handlers), "handlers", len(handlers))

	for _, sub := range handlers {
		if ev.PropagationStopped() {
			break
		}
		b.runOne(ctx, sub, ev)
	}

	return ev.Results()
}

func (b *Bus) runOne(ctx context.Context, sub *subscription, ev *event.Event) {
	hctx, cancel := context.WithTimeout(ctx, sub.timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errors.Newf("eventbus: handler %s panicked: %v", sub.name, r)}
			}
		}()
		result, err := sub.handler(hctx, ev)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			logger.DispatchErrorw("handler returned error",
				"handler", sub.name, "error", out.err)
			ev.AddException(out.err)
			return
		}
		ev.AddResult(out.result)
	case <-hctx.Done():
		logger.DispatchErrorw("handler timed out",
			"handler", sub.name, "owner", sub.owner, "timeout", sub.timeout)
		ev.AddHandlerTimeout(event.HandlerTimeout{
			HandlerName: sub.name,
			Owner:       sub.owner,
			Limit:       sub.timeout.String(),
		})
		ev.AddException(errors.Newf("eventbus: handler %s timed out after %s", sub.name, sub.timeout))
	}
}

// collect gathers the full dispatch set for typ: exact matches, every
// strict dotted prefix, and regex matches, merged and sorted by
// (descending priority, ascending handler name).
func (b *Bus) collect(typ string) []*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	var all []*subscription
	all = append(all, b.exact[typ]...)

	parts := strings.Split(typ, ".")
	for i := len(parts) - 1; i > 0; i-- {
		prefix := strings.Join(parts[:i], ".")
		all = append(all, b.exact[prefix]...)
	}

	for _, sub := range b.regex {
		if sub.pattern.MatchString(typ) {
			all = append(all, sub)
		}
	}

	out := make([]*subscription, len(all))
	copy(out, all)
	sortSubs(out)
	return out
}

func sortSubs(subs []*subscription) {
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].priority != subs[j].priority {
			return subs[i].priority > subs[j].priority
		}
		return subs[i].name < subs[j].name
	})
}

func removeSub(subs []*subscription, id uuid.UUID) []*subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
