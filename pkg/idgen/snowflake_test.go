package idgen

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidWorker(t *testing.T) {
	_, err := New(-1)
	assert.ErrorIs(t, err, ErrInvalidWorkerID)

	_, err = New(maxWorkerID + 1)
	assert.ErrorIs(t, err, ErrInvalidWorkerID)
}

func TestGenerate_UniqueUnderConcurrency(t *testing.T) {
	s, err := New(3)
	require.NoError(t, err)

	const workers, perWorker = 8, 500
	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				id := s.Generate()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestNumbers(t *testing.T) {
	s, err := New(1)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(s.OrderNo(), PrefixOrder))
	assert.True(t, strings.HasPrefix(s.WithdrawalNo(), PrefixWithdrawal))
	assert.NotEqual(t, s.OrderNo(), s.OrderNo())
}

func TestParseTime(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err := New(1)
	require.NoError(t, err)
	s.now = func() time.Time { return fixed }

	got, err := ParseTime(s.Generate())
	require.NoError(t, err)
	assert.Equal(t, fixed.UnixMilli(), got.UnixMilli())
}
