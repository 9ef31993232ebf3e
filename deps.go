package brickz

// Deps is the shared dependency bag passed by reference through a composed
// chain. It is read-mostly: every brick in a chain sees the same bag, no
// brick may assume exclusive ownership, and nothing in brickz ever writes
// to a bag after it enters a chain. A brick that needs to hand its children
// a narrowed or extended view derives a copy instead of mutating the bag
// its siblings see.
//
// Callers that need mutable shared state must place their own externally
// synchronized object inside the bag; brickz provides no mutation protocol.
//
// Example:
//
//	deps := brickz.Deps{"db": conn, "log": logger}
//	result, err := pipeline.Invoke(ctx, order, deps)
type Deps map[string]any

// Get returns the value stored under key and whether it was present.
// A nil bag behaves as an empty bag.
func (d Deps) Get(key string) (any, bool) {
	v, ok := d[key]
	return v, ok
}

// Derive returns a copy of the bag with key set to value. The receiver is
// never modified, so siblings sharing the original bag are unaffected.
func (d Deps) Derive(key string, value any) Deps {
	out := make(Deps, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	out[key] = value
	return out
}

// Without returns a copy of the bag with key removed.
func (d Deps) Without(key string) Deps {
	out := make(Deps, len(d))
	for k, v := range d {
		if k != key {
			out[k] = v
		}
	}
	return out
}
