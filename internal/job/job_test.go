package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketpay/internal/infrastructure/mq"
	"marketpay/internal/model"
	"marketpay/internal/service"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbox struct {
	mu      sync.Mutex
	pending []*model.OutboxMessage
	sent    []int64
	retried map[int64]bool
}

func (f *fakeOutbox) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, nil
}

func (f *fakeOutbox) MarkSent(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeOutbox) MarkRetry(ctx context.Context, id int64, exhausted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retried == nil {
		f.retried = map[int64]bool{}
	}
	f.retried[id] = exhausted
	return nil
}

func TestOutboxSender_Process(t *testing.T) {
	store := &fakeOutbox{pending: []*model.OutboxMessage{
		{ID: 1, Topic: "notify", MessageKey: "ref-1", EventType: model.EventDepositCredited, Payload: "{}"},
		{ID: 2, Topic: "notify", MessageKey: "WDR1", EventType: model.EventPayoutSent, Payload: "{}", RetryCount: 1},
		{ID: 3, Topic: "notify", MessageKey: "WDR2", EventType: model.EventPayoutFailed, Payload: "{}", RetryCount: 4},
	}}

	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if string(msg.Headers[0].Value) != model.EventDepositCredited {
			return errors.New("wrong event_type header")
		}
		return nil
	})
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	sender := NewOutboxSender(store, mq.NewProducer(sp), 5)
	sender.processPendingMessages(context.Background())

	assert.Equal(t, []int64{1}, store.sent)
	assert.Equal(t, map[int64]bool{2: false, 3: true}, store.retried)
	require.NoError(t, sp.Close())
}

func TestOutboxSender_StartStop(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sender := NewOutboxSender(&fakeOutbox{}, mq.NewProducer(sp), 0)
	sender.interval = time.Millisecond

	done := make(chan struct{})
	go func() {
		sender.Start(context.Background())
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	sender.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sender did not stop")
	}
	require.NoError(t, sp.Close())
}

type fakePayouts struct {
	mu        sync.Mutex
	sweeps    int
	resolves  int
	olderThan time.Duration
}

func (f *fakePayouts) RunAutoPayout(ctx context.Context) ([]service.PayoutOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return []service.PayoutOutcome{
		{SellerID: "A", Amount: decimal.NewFromInt(15000), Status: service.PayoutStatusSent},
		{SellerID: "B", Amount: decimal.NewFromInt(12000), Status: service.PayoutStatusError, Error: "rejected"},
	}, nil
}

func (f *fakePayouts) ResolvePending(ctx context.Context, olderThan time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	f.olderThan = olderThan
	return 1, nil
}

func TestAutoPayoutJob_DisabledWithoutInterval(t *testing.T) {
	runner := &fakePayouts{}
	j := NewAutoPayoutJob(runner, 0)
	assert.False(t, j.Enabled())

	// 未启用时 Start 立即返回
	j.Start(context.Background())
	assert.Zero(t, runner.sweeps)
}

func TestAutoPayoutJob_RunsOnTick(t *testing.T) {
	runner := &fakePayouts{}
	j := NewAutoPayoutJob(runner, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	j.Start(ctx)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Positive(t, runner.sweeps)
}

func TestPendingWithdrawalJob(t *testing.T) {
	runner := &fakePayouts{}
	j := NewPendingWithdrawalJob(runner, 0)
	assert.Equal(t, 5*time.Minute, j.olderThan)

	j.runOnce(context.Background())
	assert.Equal(t, 1, runner.resolves)
	assert.Equal(t, 5*time.Minute, runner.olderThan)
}
