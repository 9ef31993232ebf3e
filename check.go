package brickz

import (
	"reflect"
	"sync"
)

// typePair keys conversions and adapters by declared source and target.
type typePair struct {
	from reflect.Type
	to   reflect.Type
}

// Registry holds the known-safe conversion set and the type adapters the
// compatibility checker may suggest or the Builder may insert. Registries
// are plain values owned by the caller - brickz keeps no global mutable
// state - and are safe for concurrent use.
//
// Example:
//
//	reg := brickz.NewRegistry()
//	brickz.RegisterAdapterFunc(reg, "itoa", func(_ context.Context, n int) (string, error) {
//	    return strconv.Itoa(n), nil
//	})
type Registry struct {
	mu          sync.RWMutex
	conversions map[typePair]struct{}
	adapters    map[typePair]*Stage
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conversions: make(map[typePair]struct{}),
		adapters:    make(map[typePair]*Stage),
	}
}

// RegisterConversion marks the from-to pair as a known-safe conversion, so
// the checker passes stages whose declared types match the pair even when
// they are not assignable. Use this for structurally compatible types the
// caller vouches for.
func (r *Registry) RegisterConversion(from, to reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversions[typePair{from, to}] = struct{}{}
}

// RegisterAdapter stores the stage as the adapter for its declared type
// pair. A later registration for the same pair replaces the earlier one.
func (r *Registry) RegisterAdapter(s *Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[typePair{s.In(), s.Out()}] = s
}

// Lookup returns the adapter registered for the type pair, if any.
func (r *Registry) Lookup(from, to reflect.Type) (*Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.adapters[typePair{from, to}]
	return s, ok
}

// Suggest returns the name of the adapter bridging from-to, or "" when
// none is registered. Used to enrich TypeMismatchError messages.
func (r *Registry) Suggest(from, to reflect.Type) Name {
	if r == nil {
		return ""
	}
	if s, ok := r.Lookup(from, to); ok {
		return s.Name()
	}
	return ""
}

// hasConversion reports whether the pair was registered as known-safe.
func (r *Registry) hasConversion(from, to reflect.Type) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conversions[typePair{from, to}]
	return ok
}

// checkCompat decides whether left's declared output can feed right's
// declared input. Exact match passes, then Go assignability, then the
// registry's known-safe conversion set. On failure it returns a
// *TypeMismatchError carrying both types and a suggested adapter when the
// registry knows one. The check uses declared types only and runs at
// compose or build time, never per invocation.
func checkCompat(left, right *Stage, reg *Registry) error {
	return checkTypes(left.Out(), right.In(), left.Name(), right.Name(), reg)
}

func checkTypes(from, to reflect.Type, fromName, toName Name, reg *Registry) error {
	if from == to {
		return nil
	}
	if from.AssignableTo(to) {
		return nil
	}
	// any accepts every type on the erased path.
	if to.Kind() == reflect.Interface && to.NumMethod() == 0 {
		return nil
	}
	if reg.hasConversion(from, to) {
		return nil
	}
	return &TypeMismatchError{
		FromBrick: fromName,
		ToBrick:   toName,
		FromType:  from,
		ToType:    to,
		Suggested: reg.Suggest(from, to),
	}
}
