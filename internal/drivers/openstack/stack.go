package openstack

import (
	"context"
	"errors"
	"slices"
)

type (
	// stack is a LIFO queue of destructors, releasing resources in the
	// reverse order they were created.
	stack struct {
		destructors []destructor
	}
	destructor func(ctx context.Context) error
)

// Push adds a destructor, to be run after every destructor pushed later.
func (s *stack) Push(d destructor) {
	s.destructors = append(s.destructors, d)
}

// Destroy calls all accumulated destructors in the reverse order they were
// added. Every destructor runs even when earlier ones fail; all encountered
// errors are returned joined.
func (s *stack) Destroy(ctx context.Context) error {
	var errs error
	for _, destructor := range slices.Backward(s.destructors) {
		errs = errors.Join(errs, destructor(ctx))
	}
	return errs
}
