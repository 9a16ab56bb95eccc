package tools

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry(fixedNow)
	assert.Equal(t, []string{"Calculator", "current_time", "reverse_string", "weather"}, r.Names())

	for _, tool := range r.List() {
		assert.NotEmpty(t, tool.Description(), tool.Name())
		d, ok := tool.(InputDescriber)
		require.True(t, ok, tool.Name())
		assert.NotEmpty(t, d.InputDescription())
	}

	out, err := r.Call(context.Background(), "Calculator", "25 * 4 + 10")
	require.NoError(t, err)
	assert.Equal(t, "110", out)
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	echo := New("echo", "Echoes input", func(input string) (string, error) {
		return input, nil
	})

	require.NoError(t, r.Register(echo))
	err := r.Register(echo)
	assert.True(t, errors.Is(err, ErrDuplicateTool))

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(New("  ", "blank", nil)))

	got, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "Echoes input", got.Description())
	assert.Len(t, r.List(), 1)
}

func TestRegistryCallUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call(context.Background(), "missing", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolNotFound))
}

func TestNewPassesInput(t *testing.T) {
	tool := New("upper", "", func(input string) (string, error) {
		return input + "!", nil
	})
	out, err := tool.Call(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi!", out)
}
