package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributedLock_TryLock(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewDistributedLock(client, "k", "owner-1", 30*time.Second)

	mock.ExpectSetNX("k", "owner-1", 30*time.Second).SetVal(true)
	ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectSetNX("k", "owner-1", 30*time.Second).SetVal(false)
	ok, err = l.TryLock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributedLock_LockGivesUp(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewDistributedLock(client, "k", "v", time.Second)

	mock.ExpectSetNX("k", "v", time.Second).SetVal(false)
	mock.ExpectSetNX("k", "v", time.Second).SetVal(false)

	err := l.Lock(context.Background(), time.Millisecond, 2)
	assert.ErrorIs(t, err, ErrLockFailed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDistributedLock_LockRedisError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewDistributedLock(client, "k", "v", time.Second)

	mock.ExpectSetNX("k", "v", time.Second).SetErr(errors.New("connection refused"))

	err := l.Lock(context.Background(), time.Millisecond, 3)
	assert.EqualError(t, err, "connection refused")
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewRedisLocker(client, 30*time.Second, time.Millisecond, 3)

	key := PayoutKey("seller-1")
	mock.ExpectSetNX(key, "WDR1", 30*time.Second).SetVal(false)
	mock.ExpectSetNX(key, "WDR1", 30*time.Second).SetVal(true)
	mock.ExpectEval(unlockScript, []string{key}, "WDR1").SetVal(int64(1))

	release, err := locker.Acquire(context.Background(), key, "WDR1")
	require.NoError(t, err)
	release()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "payout:lock:seller:s1", PayoutKey("s1"))
	assert.Equal(t, "deposit:lock:paystack:ref-1", DepositKey("paystack", "ref-1"))
}

func TestMemoryLocker(t *testing.T) {
	locker := NewMemoryLocker()

	release, err := locker.Acquire(context.Background(), "k", "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "k", "b")
	assert.ErrorIs(t, err, ErrLockFailed)

	// 不同 key 互不影响
	other, err := locker.Acquire(context.Background(), "k2", "c")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := locker.Acquire(context.Background(), "k", "d")
	require.NoError(t, err)
	again()
}
