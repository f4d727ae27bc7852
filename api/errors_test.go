package api_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-worker/api"
)

func TestError_UnwrapsToSentinel(t *testing.T) {
	err := api.NewError(api.ErrCodeNotFound, "missing").WithContext("id", 7)
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.NotErrorIs(t, err, api.ErrInvalidArgument)
	assert.Equal(t, "missing (context: map[id:7])", err.Error())

	assert.ErrorIs(t, api.NewError(api.ErrCodeInvalidArgument, "bad"), api.ErrInvalidArgument)
	assert.NoError(t, errors.Unwrap(api.NewError(api.ErrCodeInternal, "oops")))
	assert.Equal(t, "plain", (&api.Error{Message: "plain"}).Error())
}

func TestInvariant_PanicsWithInvariantError(t *testing.T) {
	defer func() {
		inv, ok := recover().(*api.InvariantError)
		require.True(t, ok)
		assert.Equal(t, "registry", inv.Op)
		assert.Equal(t, "invariant violated in registry: id 3 twice", inv.Error())
	}()
	api.Invariant("registry", "id %d twice", 3)
}
