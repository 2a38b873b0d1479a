package sweep

import (
	"context"
	"fmt"
)

// RunFunc executes one record and returns it with its outcome filled in.
type RunFunc func(ctx context.Context, rec Record) (Record, error)

// Enumerate returns every combination of the space, depth-first: the
// first parameter varies slowest and values are taken in list order.
func Enumerate(space Space) []Record {
	records := make([]Record, 0, space.Size())

	visit(space, nil, func(settings []Setting) error {
		records = append(records, Record{
			Index:    len(records),
			Settings: settings,
		})

		return nil
	})

	return records
}

// Walk runs every combination of the space through run, one at a time,
// and returns the results in enumeration order. The first error aborts
// the sweep; the records completed before it are returned with it.
func Walk(ctx context.Context, space Space, run RunFunc) ([]Record, error) {
	results := make([]Record, 0, space.Size())

	err := visit(space, nil, func(settings []Setting) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := Record{Index: len(results), Settings: settings}

		done, err := run(ctx, rec)
		if err != nil {
			return fmt.Errorf("run %d (%s): %w", rec.Index, rec.Key(), err)
		}

		results = append(results, done)

		return nil
	})

	return results, err
}

// visit calls fn with a private copy of each complete combination.
func visit(space Space, prefix []Setting, fn func([]Setting) error) error {
	if len(space) == 0 {
		if len(prefix) == 0 {
			return nil
		}

		settings := make([]Setting, len(prefix))
		copy(settings, prefix)

		return fn(settings)
	}

	p := space[0]
	for _, v := range p.Values {
		next := append(prefix[:len(prefix):len(prefix)], Setting{Name: p.Name, Value: v})
		if err := visit(space[1:], next, fn); err != nil {
			return err
		}
	}

	return nil
}
