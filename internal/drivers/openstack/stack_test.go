package openstack

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackDestroyOrder(t *testing.T) {
	var s stack
	var order []string
	for _, name := range []string{"keypair", "server", "floating-ip"} {
		s.Push(func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	require.NoError(t, s.Destroy(t.Context()))
	assert.Equal(t, []string{"floating-ip", "server", "keypair"}, order)
}

func TestStackDestroyCollectsErrors(t *testing.T) {
	var s stack
	errA := fmt.Errorf("a failed")
	errB := fmt.Errorf("b failed")
	var ran int
	s.Push(func(ctx context.Context) error { ran++; return errA })
	s.Push(func(ctx context.Context) error { ran++; return nil })
	s.Push(func(ctx context.Context) error { ran++; return errB })

	err := s.Destroy(t.Context())
	require.Error(t, err)
	// All destructors run even when one fails.
	assert.Equal(t, 3, ran)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestStackDestroyEmpty(t *testing.T) {
	var s stack
	assert.NoError(t, s.Destroy(t.Context()))
}
