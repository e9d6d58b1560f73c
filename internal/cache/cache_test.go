package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache()

	_, err := c.Get(ctx, KeyStationsFeed)
	assert.ErrorIs(t, err, ErrMiss)

	value := []byte(`{"EVSEData":[]}`)
	require.NoError(t, c.Set(ctx, KeyStationsFeed, value, 0))
	value[0] = 'x'

	got, err := c.Get(ctx, KeyStationsFeed)
	require.NoError(t, err)
	assert.Equal(t, `{"EVSEData":[]}`, string(got), "stored value must not alias the caller's buffer")

	require.NoError(t, c.Delete(ctx, KeyStationsFeed))
	_, err = c.Get(ctx, KeyStationsFeed)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestLocalCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewLocalCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, KeyStatusFeed, []byte("s"), time.Minute))

	now = now.Add(59 * time.Second)
	_, err := c.Get(ctx, KeyStatusFeed)
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = c.Get(ctx, KeyStatusFeed)
	assert.ErrorIs(t, err, ErrMiss)
}
