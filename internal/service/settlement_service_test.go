package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"marketpay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchase_SplitsCommission(t *testing.T) {
	tests := []struct {
		price      string
		commission string
		credit     string
	}{
		{"100", "5", "95"},
		{"99.99", "5", "94.99"},
		{"10.10", "0.51", "9.59"},
		{"0.01", "0", "0.01"},
	}

	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			f := newFixture(t)
			f.account("buyer", model.RoleBuyer, "500")
			f.account("seller", model.RoleSeller, "0")
			f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "seller", Name: "电子书", Price: d(tt.price)})

			summary, err := f.settlement(t).Purchase(context.Background(), "buyer", "p1")
			require.NoError(t, err)

			assert.True(t, d(tt.commission).Equal(summary.Commission), "commission=%s", summary.Commission)
			assert.True(t, d(tt.credit).Equal(summary.SellerCredit), "credit=%s", summary.SellerCredit)
			assert.True(t, summary.Commission.Add(summary.SellerCredit).Equal(d(tt.price)))

			assert.True(t, d("500").Sub(d(tt.price)).Equal(f.store.Balance("buyer")))
			assert.True(t, d(tt.credit).Equal(f.store.Balance("seller")))
			assert.True(t, d(tt.commission).Equal(f.store.Revenue()))
			assert.True(t, summary.BuyerBalance.Equal(f.store.Balance("buyer")))
		})
	}
}

func TestPurchase_RoundsPriceBeforeCharging(t *testing.T) {
	tests := []struct {
		price      string
		charged    string
		commission string
		credit     string
	}{
		{"9.999", "10", "0.5", "9.5"},
		{"19.994", "19.99", "1", "18.99"},
		{"0.005", "0.01", "0", "0.01"},
	}

	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			f := newFixture(t)
			f.account("buyer", model.RoleBuyer, "500")
			f.account("seller", model.RoleSeller, "0")
			f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "seller", Name: "电子书", Price: d(tt.price)})

			summary, err := f.settlement(t).Purchase(context.Background(), "buyer", "p1")
			require.NoError(t, err)

			assert.True(t, d(tt.charged).Equal(summary.Price), "price=%s", summary.Price)
			assert.True(t, d(tt.commission).Equal(summary.Commission), "commission=%s", summary.Commission)
			assert.True(t, d(tt.credit).Equal(summary.SellerCredit), "credit=%s", summary.SellerCredit)
			assert.True(t, d("500").Sub(d(tt.charged)).Equal(f.store.Balance("buyer")))
			assert.True(t, d(tt.credit).Equal(f.store.Balance("seller")))
			assert.True(t, d(tt.commission).Equal(f.store.Revenue()))
		})
	}
}

func TestPurchase_WritesOrderAndNotifications(t *testing.T) {
	f := newFixture(t)
	f.account("buyer", model.RoleBuyer, "500")
	f.account("seller", model.RoleSeller, "0")
	f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "seller", Name: "电子书", Price: d("100")})

	summary, err := f.settlement(t).Purchase(context.Background(), "buyer", "p1")
	require.NoError(t, err)

	orders := f.store.Orders()
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, summary.OrderNo, o.OrderNo)
	assert.Equal(t, "电子书", o.ProductName)
	assert.Equal(t, "buyer", o.BuyerID)
	assert.Equal(t, "seller", o.SellerID)
	assert.False(t, o.Reviewed)

	notices := f.store.Notifications()
	require.Len(t, notices, 2)
	assert.Equal(t, model.NotificationTypePurchase, notices[0].Type)
	assert.Equal(t, "buyer", notices[0].UserID)
	assert.Equal(t, model.NotificationTypeSale, notices[1].Type)
	assert.Equal(t, "seller", notices[1].UserID)

	outbox := f.store.Outbox()
	require.Len(t, outbox, 1)
	assert.Equal(t, model.EventPurchaseCompleted, outbox[0].EventType)
	assert.Equal(t, summary.OrderNo, outbox[0].MessageKey)
	assert.Equal(t, model.OutboxStatusPending, outbox[0].Status)
}

func TestPurchase_FailuresLeaveNoTrace(t *testing.T) {
	tests := []struct {
		name    string
		buyerID string
		setup   func(f *fixture)
		wantErr error
	}{
		{
			name:    "买家不存在",
			buyerID: "ghost",
			setup: func(f *fixture) {
				f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "seller", Name: "x", Price: d("100")})
			},
			wantErr: ErrBuyerNotFound,
		},
		{
			name:    "买家已封禁",
			buyerID: "buyer",
			setup: func(f *fixture) {
				f.store.PutAccount(model.Account{UserID: "buyer", Role: model.RoleBuyer, Balance: d("500"), Banned: true})
				f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "seller", Name: "x", Price: d("100")})
			},
			wantErr: ErrAccountBanned,
		},
		{
			name:    "商品不存在",
			buyerID: "buyer",
			setup:   func(f *fixture) {},
			wantErr: ErrProductNotFound,
		},
		{
			name:    "价格为零",
			buyerID: "buyer",
			setup: func(f *fixture) {
				f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "seller", Name: "x", Price: d("0")})
			},
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "价格取整后为零",
			buyerID: "buyer",
			setup: func(f *fixture) {
				f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "seller", Name: "x", Price: d("0.004")})
			},
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "价格为负",
			buyerID: "buyer",
			setup: func(f *fixture) {
				f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "seller", Name: "x", Price: d("-5")})
			},
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "余额不足",
			buyerID: "buyer",
			setup: func(f *fixture) {
				f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "seller", Name: "x", Price: d("500.01")})
			},
			wantErr: ErrInsufficientFunds,
		},
		{
			name:    "缺少卖家",
			buyerID: "buyer",
			setup: func(f *fixture) {
				f.store.PutProduct(model.Product{ProductID: "p1", Name: "x", Price: d("100")})
			},
			wantErr: ErrMissingSeller,
		},
		{
			name:    "购买自己的商品",
			buyerID: "buyer",
			setup: func(f *fixture) {
				f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "buyer", Name: "x", Price: d("100")})
			},
			wantErr: ErrSelfPurchaseForbidden,
		},
		{
			name:    "卖家账户不存在",
			buyerID: "buyer",
			setup: func(f *fixture) {
				f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "nobody", Name: "x", Price: d("100")})
			},
			wantErr: ErrSellerNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.account("buyer", model.RoleBuyer, "500")
			f.account("seller", model.RoleSeller, "20")
			tt.setup(f)
			before := f.store.Balance("buyer")

			_, err := f.settlement(t).Purchase(context.Background(), tt.buyerID, "p1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.True(t, before.Equal(f.store.Balance("buyer")))
			assert.True(t, d("20").Equal(f.store.Balance("seller")))
			assert.True(t, f.store.Revenue().IsZero())
			assert.Empty(t, f.store.Orders())
			assert.Empty(t, f.store.Notifications())
			assert.Empty(t, f.store.Outbox())
		})
	}
}

func TestPurchase_StoreFailureRollsBack(t *testing.T) {
	for _, op := range []string{"UpdateAccount", "UpdatePlatformMetrics", "CreateOrder"} {
		t.Run(op, func(t *testing.T) {
			f := newFixture(t)
			f.account("buyer", model.RoleBuyer, "500")
			f.account("seller", model.RoleSeller, "0")
			f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "seller", Name: "x", Price: d("100")})

			failOp := op
			f.store.FailOn = func(got string) error {
				if got == failOp {
					return errors.New("disk full")
				}
				return nil
			}

			_, err := f.settlement(t).Purchase(context.Background(), "buyer", "p1")
			require.Error(t, err)
			be := AsBusinessError(err)
			assert.Equal(t, KindDependency, be.Kind)

			assert.True(t, d("500").Equal(f.store.Balance("buyer")))
			assert.True(t, f.store.Balance("seller").IsZero())
			assert.True(t, f.store.Revenue().IsZero())
			assert.Empty(t, f.store.Orders())
		})
	}
}

func TestPurchase_ConcurrentBuyersCannotOverspend(t *testing.T) {
	f := newFixture(t)
	f.account("buyer", model.RoleBuyer, "100")
	f.account("seller", model.RoleSeller, "0")
	f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "seller", Name: "x", Price: d("100")})
	svc := f.settlement(t)

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		errs      []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Purchase(context.Background(), "buyer", "p1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	require.Len(t, errs, n-1)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	}
	assert.True(t, f.store.Balance("buyer").IsZero())
	assert.True(t, d("95").Equal(f.store.Balance("seller")))
	assert.True(t, d("5").Equal(f.store.Revenue()))
	assert.Len(t, f.store.Orders(), 1)
}

func TestPurchase_RetriesOnConflict(t *testing.T) {
	f := newFixture(t)
	f.account("buyer", model.RoleBuyer, "500")
	f.account("seller", model.RoleSeller, "0")
	f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "seller", Name: "x", Price: d("100")})

	f.store.SimulateConflicts(2)
	_, err := f.settlement(t).Purchase(context.Background(), "buyer", "p1")
	require.NoError(t, err)

	assert.Equal(t, 3, f.store.Attempts())
	assert.True(t, d("400").Equal(f.store.Balance("buyer")))
	assert.Len(t, f.store.Orders(), 1)
}

func TestPurchase_ConflictRetriesExhausted(t *testing.T) {
	f := newFixture(t)
	f.account("buyer", model.RoleBuyer, "500")
	f.account("seller", model.RoleSeller, "0")
	f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "seller", Name: "x", Price: d("100")})

	f.store.SimulateConflicts(100)
	_, err := f.settlement(t).Purchase(context.Background(), "buyer", "p1")
	assert.ErrorIs(t, err, ErrSystemBusy)

	// 首次执行 + 5 次重试
	assert.Equal(t, 6, f.store.Attempts())
	assert.True(t, d("500").Equal(f.store.Balance("buyer")))
	assert.Empty(t, f.store.Orders())
}

func TestPurchase_InvalidParams(t *testing.T) {
	f := newFixture(t)
	_, err := f.settlement(t).Purchase(context.Background(), "", "p1")
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestMarkReviewed(t *testing.T) {
	f := newFixture(t)
	f.account("buyer", model.RoleBuyer, "500")
	f.account("seller", model.RoleSeller, "0")
	f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "seller", Name: "x", Price: d("100")})
	svc := f.settlement(t)

	summary, err := svc.Purchase(context.Background(), "buyer", "p1")
	require.NoError(t, err)

	tests := []struct {
		name    string
		orderNo string
		buyerID string
		wantErr error
	}{
		{"非买家本人", summary.OrderNo, "seller", ErrNotOrderBuyer},
		{"订单不存在", "ORD_missing", "buyer", ErrOrderNotFound},
		{"首次评价", summary.OrderNo, "buyer", nil},
		{"重复评价", summary.OrderNo, "buyer", ErrOrderAlreadyReviewed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.MarkReviewed(context.Background(), tt.orderNo, tt.buyerID)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	orders := f.store.Orders()
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Reviewed)
	assert.True(t, orders[0].Price.Equal(d("100")))
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	f.account("buyer", model.RoleBuyer, "500")
	f.account("seller", model.RoleSeller, "0")
	f.store.PutProduct(model.Product{ProductID: "p1", SellerID: "seller", Name: "x", Price: d("100")})
	svc := f.settlement(t)

	for i := 0; i < 3; i++ {
		_, err := svc.Purchase(context.Background(), "buyer", "p1")
		require.NoError(t, err)
	}

	list, total, err := svc.ListOrders(context.Background(), "buyer", false, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, list, 2)

	list, total, err = svc.ListOrders(context.Background(), "seller", true, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, list, 3)

	_, total, err = svc.ListOrders(context.Background(), "seller", false, 1, 20)
	require.NoError(t, err)
	assert.Zero(t, total)
}
