package events

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	apperrors "github.com/jrsteele09/equiptrack-client/internal/errors"
	"github.com/jrsteele09/equiptrack-client/internal/glob"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Event is what a handler receives. Name is the emitted name, which for wildcard
// subscriptions differs from the subscribed pattern.
type Event struct {
	Name    string
	Args    []any
	Context any
}

// Arg returns the i-th argument or nil.
func (e Event) Arg(i int) any {
	if i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}

// Handler reacts to an event. A returned error is logged and the value is dropped from
// the Emit results.
type Handler func(evt Event) (any, error)

type listener struct {
	id      uint64
	name    string
	handler Handler
	once    bool
	context any
	pattern *glob.Pattern

	fired   atomic.Bool
	removed atomic.Bool
}

// Bus is an in-process publish/subscribe hub supporting exact names and `*` patterns.
type Bus struct {
	mu        sync.RWMutex
	exact     map[string][]*listener
	wildcards []*listener
	nextID    uint64
	log       zerolog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report failing listeners.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bus) {
		b.log = l
	}
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*listener)

// Once removes the listener after its first invocation.
func Once() SubscribeOption {
	return func(l *listener) {
		l.once = true
	}
}

// WithContext attaches a value handed back to the handler as Event.Context.
func WithContext(v any) SubscribeOption {
	return func(l *listener) {
		l.context = v
	}
}

// Subscription identifies one registered listener.
type Subscription struct {
	id   uint64
	name string
	bus  *Bus
}

// Unsubscribe removes the listener. Calling it more than once is harmless.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.remove(s.id)
}

// Name returns the name or pattern the subscription was registered under.
func (s *Subscription) Name() string {
	return s.name
}

// New creates an empty bus.
func New(options ...Option) *Bus {
	b := &Bus{
		exact: make(map[string][]*listener),
		log:   log.Logger,
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Subscribe registers handler for name, which may contain `*` wildcards.
func (b *Bus) Subscribe(name string, handler Handler, options ...SubscribeOption) (*Subscription, error) {
	if handler == nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidListener, "[Bus.Subscribe] %q", name)
	}

	l := &listener{name: name, handler: handler}
	for _, opt := range options {
		opt(l)
	}
	if glob.HasWildcard(name) {
		l.pattern = glob.Compile(name)
	}

	b.mu.Lock()
	b.nextID++
	l.id = b.nextID
	if l.pattern != nil {
		b.wildcards = append(b.wildcards, l)
	} else {
		b.exact[name] = append(b.exact[name], l)
	}
	b.mu.Unlock()

	return &Subscription{id: l.id, name: name, bus: b}, nil
}

// Once is shorthand for Subscribe with the Once option.
func (b *Bus) Once(name string, handler Handler, options ...SubscribeOption) (*Subscription, error) {
	return b.Subscribe(name, handler, append(options, Once())...)
}

// Unsubscribe removes one listener.
func (b *Bus) Unsubscribe(sub *Subscription) {
	sub.Unsubscribe()
}

// Off removes every exact listener for name and every wildcard listener registered
// under exactly the same spelling.
func (b *Bus) Off(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, l := range b.exact[name] {
		l.removed.Store(true)
	}
	delete(b.exact, name)

	kept := b.wildcards[:0]
	for _, l := range b.wildcards {
		if l.name == name {
			l.removed.Store(true)
			continue
		}
		kept = append(kept, l)
	}
	b.wildcards = kept
}

// OffAll removes every listener.
func (b *Bus) OffAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ls := range b.exact {
		for _, l := range ls {
			l.removed.Store(true)
		}
	}
	for _, l := range b.wildcards {
		l.removed.Store(true)
	}
	b.exact = make(map[string][]*listener)
	b.wildcards = nil
}

// Emit calls exact listeners and then matching wildcard listeners, each in registration
// order, and returns the values of the handlers that did not fail.
func (b *Bus) Emit(name string, args ...any) []any {
	b.mu.RLock()
	matched := make([]*listener, 0, len(b.exact[name])+len(b.wildcards))
	matched = append(matched, b.exact[name]...)
	for _, l := range b.wildcards {
		if l.pattern.Match(name) {
			matched = append(matched, l)
		}
	}
	b.mu.RUnlock()

	results := make([]any, 0, len(matched))
	for _, l := range matched {
		if l.removed.Load() {
			continue
		}
		if l.once {
			if !l.fired.CompareAndSwap(false, true) {
				continue
			}
			b.remove(l.id)
		}

		result, err := invoke(l, Event{Name: name, Args: args, Context: l.context})
		if err != nil {
			b.log.Error().Err(err).Str("event", name).Str("listener", l.name).Msg("event listener failed")
			continue
		}
		results = append(results, result)
	}
	return results
}

func invoke(l *listener, evt Event) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return l.handler(evt)
}

// ListenerCount returns the listeners that would receive name, or every listener when
// name is empty.
func (b *Bus) ListenerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if name == "" {
		count := len(b.wildcards)
		for _, ls := range b.exact {
			count += len(ls)
		}
		return count
	}

	count := len(b.exact[name])
	for _, l := range b.wildcards {
		if l.pattern.Match(name) {
			count++
		}
	}
	return count
}

// Has reports whether emitting name would reach at least one listener.
func (b *Bus) Has(name string) bool {
	return b.ListenerCount(name) > 0
}

// EventNames lists the exact names (sorted) followed by the distinct wildcard patterns in
// registration order.
func (b *Bus) EventNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.exact)+len(b.wildcards))
	for name := range b.exact {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]struct{})
	for _, l := range b.wildcards {
		if _, ok := seen[l.name]; ok {
			continue
		}
		seen[l.name] = struct{}{}
		names = append(names, l.name)
	}
	return names
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, l := range b.wildcards {
		if l.id == id {
			l.removed.Store(true)
			b.wildcards = append(b.wildcards[:i:i], b.wildcards[i+1:]...)
			return
		}
	}
	for name, ls := range b.exact {
		for i, l := range ls {
			if l.id != id {
				continue
			}
			l.removed.Store(true)
			if len(ls) == 1 {
				delete(b.exact, name)
			} else {
				b.exact[name] = append(ls[:i:i], ls[i+1:]...)
			}
			return
		}
	}
}
