package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestGetSetDelete(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "products")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "products", []byte(`[]`), time.Minute))
	got, err := c.Get(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))
	assert.Equal(t, time.Minute, mr.TTL("products"))

	require.NoError(t, c.Delete(ctx, "products"))
	_, err = c.Get(ctx, "products")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestIsRateLimited(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.False(t, c.IsRateLimited(ctx, "login:10.0.0.1", 3, time.Minute), "hit %d", i+1)
	}
	assert.True(t, c.IsRateLimited(ctx, "login:10.0.0.1", 3, time.Minute))
	assert.False(t, c.IsRateLimited(ctx, "login:10.0.0.2", 3, time.Minute), "keys are independent")

	mr.FastForward(time.Minute + time.Second)
	assert.False(t, c.IsRateLimited(ctx, "login:10.0.0.1", 3, time.Minute), "window resets")
}

func TestUpdate(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	appendX := func(cur []byte) ([]byte, error) {
		return append(cur, 'x'), nil
	}
	require.NoError(t, c.Update(ctx, "k", time.Minute, appendX))
	require.NoError(t, c.Update(ctx, "k", time.Minute, appendX))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "xx", string(got))
}
