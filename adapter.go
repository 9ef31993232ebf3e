package brickz

import (
	"context"
	"reflect"
)

// NewAdapter creates a type adapter: a brick whose sole job is converting
// a value of type From into a value of type To, insertable into a pipeline
// to bridge otherwise-incompatible stages. Adapters must be side-effect
// free. A total adapter returns a nil error for every value of its domain;
// a partial adapter returns an error for unconvertible values, and every
// such failure is surfaced as a *AdapterError naming the adapter, both
// declared types, and the offending value.
//
//	itoa := brickz.NewAdapter("itoa", func(_ context.Context, n int) (string, error) {
//	    return strconv.Itoa(n), nil
//	})
func NewAdapter[From, To any](name Name, fn func(context.Context, From) (To, error)) Func[From, To] {
	from := reflect.TypeFor[From]()
	to := reflect.TypeFor[To]()
	return Func[From, To]{
		name: name,
		fn: func(ctx context.Context, input From, _ Deps) (To, error) {
			out, err := fn(ctx, input)
			if err != nil {
				var zero To
				return zero, &AdapterError{
					Adapter:  name,
					FromType: from,
					ToType:   to,
					Value:    input,
					Err:      err,
				}
			}
			return out, nil
		},
	}
}

// AdapterStage erases an adapter into a Stage whose node renders with the
// adapter variant, for use with the Builder and the Registry.
func AdapterStage[From, To any](a Func[From, To]) *Stage {
	s := NewStage[From, To](a)
	s.node.Variant = VariantAdapter
	return s
}

// RegisterAdapterFunc builds an adapter from fn, registers it in reg, and
// returns its erased stage. This is the common path for populating a
// registry the compatibility checker can suggest from.
func RegisterAdapterFunc[From, To any](reg *Registry, name Name, fn func(context.Context, From) (To, error)) *Stage {
	s := AdapterStage(NewAdapter(name, fn))
	reg.RegisterAdapter(s)
	return s
}
