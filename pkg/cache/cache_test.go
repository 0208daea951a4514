package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetThenGetRoundTrips(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestMemoryCache_GetMissingKeyReturnsErrNotFound(t *testing.T) {
	c := NewMemory(time.Minute)
	_, err := c.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCache_EntryExpiresAfterTTL(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 20*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCache_DeleteRemovesKey(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	require.NoError(t, c.Delete(ctx, "k"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCache_SetNXOnlySetsWhenAbsent(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "k", "first", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "k", "second", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
}

func TestMemoryCache_SetNXSucceedsAfterExpiry(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()

	_, err := c.SetNX(ctx, "k", "first", 20*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	ok, err := c.SetNX(ctx, "k", "second", 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache_SetMarshalsStructsAsJSON(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.Set(ctx, "k", payload{Name: "bridge-alpha"}, 0))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"bridge-alpha"}`, string(got))
}
