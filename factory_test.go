package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryFuncsDefaults(t *testing.T) {
	var f FactoryFuncs[string, int]
	ctx := context.Background()

	obj, err := f.Make(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 0, obj)

	assert.NoError(t, f.Activate(ctx, "k", obj))
	assert.NoError(t, f.Passivate(ctx, "k", obj))
	assert.True(t, f.Validate(ctx, "k", obj))
	assert.NoError(t, f.Destroy(ctx, "k", obj))
}

func TestFactoryFuncsDelegates(t *testing.T) {
	var calls []string
	f := FactoryFuncs[string, int]{
		MakeFunc: func(ctx context.Context, key string) (int, error) {
			calls = append(calls, "make")
			return 1, nil
		},
		ActivateFunc: func(ctx context.Context, key string, obj int) error {
			calls = append(calls, "activate")
			return nil
		},
		ValidateFunc: func(ctx context.Context, key string, obj int) bool {
			calls = append(calls, "validate")
			return false
		},
	}
	ctx := context.Background()
	obj, err := f.Make(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, f.Activate(ctx, "k", obj))
	assert.False(t, f.Validate(ctx, "k", obj))
	assert.Equal(t, []string{"make", "activate", "validate"}, calls)
}
