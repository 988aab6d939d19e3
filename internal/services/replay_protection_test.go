package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayProtection_LocalClaimAndRelease(t *testing.T) {
	rp := NewReplayProtection(nil, time.Minute)
	ctx := context.Background()

	replay, err := rp.IsReplay(ctx, "done_TX-1", 10)
	require.NoError(t, err)
	assert.False(t, replay)

	replay, err = rp.IsReplay(ctx, "done_TX-1", 10)
	require.NoError(t, err)
	assert.True(t, replay)

	// a different message is a different action
	replay, err = rp.IsReplay(ctx, "done_TX-1", 11)
	require.NoError(t, err)
	assert.False(t, replay)

	rp.Release(ctx, "done_TX-1", 10)
	replay, err = rp.IsReplay(ctx, "done_TX-1", 10)
	require.NoError(t, err)
	assert.False(t, replay)
}

func TestReplayProtection_LocalClaimExpires(t *testing.T) {
	rp := NewReplayProtection(nil, time.Minute)
	now := fixedTime()
	rp.now = func() time.Time { return now }

	replay, _ := rp.IsReplay(context.Background(), "done_TX-1", 10)
	require.False(t, replay)

	now = now.Add(2 * time.Minute)
	replay, _ = rp.IsReplay(context.Background(), "done_TX-1", 10)
	assert.False(t, replay)
}

func TestReplayProtection_EmptyActionAlwaysAllowed(t *testing.T) {
	rp := NewReplayProtection(nil, 0)
	assert.Equal(t, 2*time.Minute, rp.ttl)

	for i := 0; i < 2; i++ {
		replay, err := rp.IsReplay(context.Background(), "", 1)
		require.NoError(t, err)
		assert.False(t, replay)
	}
}

func TestReplayProtection_Redis(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	rp := NewReplayProtection(rdb, time.Minute)
	key := rp.key("done_TX-1", 10)
	ctx := context.Background()

	mock.Regexp().ExpectSetNX(key, `.*`, time.Minute).SetVal(true)
	mock.Regexp().ExpectSetNX(key, `.*`, time.Minute).SetVal(false)
	mock.ExpectDel(key).SetVal(1)

	replay, err := rp.IsReplay(ctx, "done_TX-1", 10)
	require.NoError(t, err)
	assert.False(t, replay)

	replay, err = rp.IsReplay(ctx, "done_TX-1", 10)
	require.NoError(t, err)
	assert.True(t, replay)

	rp.Release(ctx, "done_TX-1", 10)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplayProtection_RedisError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	rp := NewReplayProtection(rdb, time.Minute)
	mock.Regexp().ExpectSetNX(rp.key("done_TX-1", 10), `.*`, time.Minute).SetErr(assert.AnError)

	_, err := rp.IsReplay(context.Background(), "done_TX-1", 10)
	assert.Error(t, err)
}

func TestReplayProtection_KeyIsHashed(t *testing.T) {
	rp := NewReplayProtection(nil, 0)
	key := rp.key("done_TX-1", 10)

	assert.Regexp(t, `^operator_action:[0-9a-f]{64}$`, key)
	assert.NotEqual(t, key, rp.key("done_TX-1", 11))
}
