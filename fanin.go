package brickz

import "context"

// Reducer merges the ordered results of a parallel group into a single
// output. Reducers must be deterministic given the same ordered inputs;
// the framework guarantees the slice order matches child registration
// order, so a deterministic reducer makes the whole fan-out/fan-in
// deterministic in value.
type Reducer[Mid, Out any] func(context.Context, []Mid) (Out, error)

// FanIn binds a parallel group to a reducer, producing a single brick
// that fans the input out to the group's children and folds their ordered
// results into one output.
//
//	quotes := brickz.NewParallel("fetch-quotes", vendorA, vendorB, vendorC)
//	best := brickz.FanIn("best-quote", quotes,
//	    func(_ context.Context, qs []Quote) (Quote, error) { return cheapest(qs) },
//	)
func FanIn[In, Mid, Out any](name Name, group *Parallel[In, Mid], reduce Reducer[Mid, Out]) Func[In, Out] {
	return Func[In, Out]{
		name: name,
		fn: func(ctx context.Context, input In, deps Deps) (Out, error) {
			var zero Out
			mids, err := group.Invoke(ctx, input, deps)
			if err != nil {
				return zero, wrapError(name, input, err)
			}
			out, err := reduce(ctx, mids)
			if err != nil {
				return zero, wrapError(name, input, err)
			}
			return out, nil
		},
	}
}
