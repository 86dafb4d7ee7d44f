package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prefs struct {
	TopN      int    `json:"top_n"`
	CheckTime string `json:"check_time"`
}

func TestTieredLocalOnly(t *testing.T) {
	ctx := context.Background()
	c := NewTiered(nil, time.Minute)

	var got prefs
	hit, err := c.GetJSON(ctx, "prefs:u1", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetJSON(ctx, "prefs:u1", prefs{TopN: 3, CheckTime: "07:30"}, time.Hour))

	hit, err = c.GetJSON(ctx, "prefs:u1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, prefs{TopN: 3, CheckTime: "07:30"}, got)

	require.NoError(t, c.Delete(ctx, "prefs:u1"))
	hit, err = c.GetJSON(ctx, "prefs:u1", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestTieredValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	c := NewTiered(nil, time.Minute)

	in := prefs{TopN: 5}
	require.NoError(t, c.SetJSON(ctx, "k", in, 0))
	in.TopN = 9

	var out prefs
	_, err := c.GetJSON(ctx, "k", &out)
	require.NoError(t, err)
	assert.Equal(t, 5, out.TopN)
}
