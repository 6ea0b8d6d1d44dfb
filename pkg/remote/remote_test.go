package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(v interface{}) ServiceFunc {
	return func(ctx context.Context, input interface{}) (interface{}, error) {
		return v, nil
	}
}

func TestStaticResolver_HighestMatchingVersion(t *testing.T) {
	r := NewStaticResolver()
	require.NoError(t, r.Register("solver", "1.0.0", constant("v1.0")))
	require.NoError(t, r.Register("solver", "1.4.2", constant("v1.4")))
	require.NoError(t, r.Register("solver", "2.0.0", constant("v2")))

	tests := []struct {
		constraint string
		want       string
	}{
		{"", "v2"},
		{"^1.0", "v1.4"},
		{"~1.0", "v1.0"},
		{">=2", "v2"},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			svc, err := r.Resolve(context.Background(), "solver", tt.constraint)
			require.NoError(t, err)

			out, err := svc.Execute(context.Background(), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestStaticResolver_NotFound(t *testing.T) {
	r := NewStaticResolver()
	require.NoError(t, r.Register("solver", "1.0.0", constant(nil)))

	_, err := r.Resolve(context.Background(), "missing", "")
	assert.ErrorIs(t, err, ErrServiceNotFound)

	_, err = r.Resolve(context.Background(), "solver", "^3")
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestStaticResolver_InvalidConstraint(t *testing.T) {
	r := NewStaticResolver()
	require.NoError(t, r.Register("solver", "1.0.0", constant(nil)))

	_, err := r.Resolve(context.Background(), "solver", "not a version")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrServiceNotFound)
}

func TestStaticResolver_Register(t *testing.T) {
	r := NewStaticResolver()

	assert.Error(t, r.Register("", "1.0.0", constant(nil)))
	assert.Error(t, r.Register("solver", "1.0.0", nil))
	assert.Error(t, r.Register("solver", "one", constant(nil)))

	require.NoError(t, r.Register("solver", "", constant("unversioned")))
	assert.Error(t, r.Register("solver", "0.0.0", constant(nil)), "duplicate version")

	svc, err := r.Resolve(context.Background(), "solver", "")
	require.NoError(t, err)
	out, _ := svc.Execute(context.Background(), nil)
	assert.Equal(t, "unversioned", out)
}

func TestChain(t *testing.T) {
	first := NewStaticResolver()
	second := NewStaticResolver()
	require.NoError(t, first.Register("a", "1.0.0", constant("first")))
	require.NoError(t, second.Register("a", "2.0.0", constant("second")))
	require.NoError(t, second.Register("b", "1.0.0", constant("b")))

	chain := Chain{first, second}
	ctx := context.Background()

	svc, err := chain.Resolve(ctx, "a", "")
	require.NoError(t, err)
	out, _ := svc.Execute(ctx, nil)
	assert.Equal(t, "first", out)

	// first has "a" but not at ^2, so the chain moves on
	svc, err = chain.Resolve(ctx, "a", "^2")
	require.NoError(t, err)
	out, _ = svc.Execute(ctx, nil)
	assert.Equal(t, "second", out)

	svc, err = chain.Resolve(ctx, "b", "")
	require.NoError(t, err)
	out, _ = svc.Execute(ctx, nil)
	assert.Equal(t, "b", out)

	_, err = chain.Resolve(ctx, "c", "")
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

type failingResolver struct{ err error }

func (f failingResolver) Resolve(context.Context, string, string) (Service, error) {
	return nil, f.err
}

func TestChain_StopsOnHardError(t *testing.T) {
	boom := errors.New("boom")
	fallback := NewStaticResolver()
	require.NoError(t, fallback.Register("a", "1.0.0", constant("fallback")))

	_, err := Chain{failingResolver{err: boom}, fallback}.Resolve(context.Background(), "a", "")
	assert.ErrorIs(t, err, boom)
}
