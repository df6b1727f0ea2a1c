package pkg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestDistributedLimiter_DisabledAllowsEverything(t *testing.T) {
	l := NewDistributedLimiter(nil, "k", 0, 0, time.Second, zap.NewNop())
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow(context.Background()))
	}
}

func TestDistributedLimiter_LocalBucket(t *testing.T) {
	l := NewDistributedLimiter(nil, "k", 1, 2, time.Second, zap.NewNop())
	assert.True(t, l.Allow(context.Background()))
	assert.True(t, l.Allow(context.Background()))
	assert.False(t, l.Allow(context.Background()))
}

func TestDistributedLimiter_GlobalWindow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewDistributedLimiter(db, "order_api:place_order_rate", 100, 100, time.Second, zap.NewNop())
	l.now = fixedClock(time.Unix(1700000000, 0))
	key := "order_api:place_order_rate:1700000000"

	mock.ExpectIncr(key).SetVal(100)
	mock.ExpectExpire(key, 2*time.Second).SetVal(true)
	assert.True(t, l.Allow(context.Background()))

	// another replica already used the window
	mock.ExpectIncr(key).SetVal(101)
	mock.ExpectExpire(key, 2*time.Second).SetVal(true)
	assert.False(t, l.Allow(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributedLimiter_NextWindowUsesFreshCounter(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewDistributedLimiter(db, "rl", 10, 10, time.Second, zap.NewNop())

	l.now = fixedClock(time.Unix(1700000000, 0))
	mock.ExpectIncr("rl:1700000000").SetVal(11)
	mock.ExpectExpire("rl:1700000000", 2*time.Second).SetVal(true)
	assert.False(t, l.Allow(context.Background()))

	l.now = fixedClock(time.Unix(1700000001, 0))
	mock.ExpectIncr("rl:1700000001").SetVal(1)
	mock.ExpectExpire("rl:1700000001", 2*time.Second).SetVal(true)
	assert.True(t, l.Allow(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributedLimiter_RedisFailureFailsOpen(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewDistributedLimiter(db, "rl", 10, 10, time.Second, zap.NewNop())
	l.now = fixedClock(time.Unix(1700000000, 0))

	mock.ExpectIncr("rl:1700000000").SetErr(errors.New("connection refused"))
	assert.True(t, l.Allow(context.Background()))
}
