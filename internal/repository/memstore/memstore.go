// Package memstore 提供 repository.Store 的内存实现，用于业务层和接口层测试。
//
// 每个事务在整份状态的副本上执行，成功后整体替换，失败则丢弃副本，
// 因此具备与数据库事务相同的"全部生效或全部不生效"语义；事务之间由互斥锁串行化。
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"marketpay/internal/model"
	"marketpay/internal/repository"

	"github.com/shopspring/decimal"
)

type state struct {
	accounts      map[string]model.Account
	products      map[string]model.Product
	orders        map[string]model.Order
	deposits      map[string]model.Deposit
	withdrawals   map[string]model.Withdrawal
	metrics       *model.PlatformMetrics
	notifications []model.Notification
	outbox        []model.OutboxMessage
	nextID        int64
}

func newState() *state {
	return &state{
		accounts:    make(map[string]model.Account),
		products:    make(map[string]model.Product),
		orders:      make(map[string]model.Order),
		deposits:    make(map[string]model.Deposit),
		withdrawals: make(map[string]model.Withdrawal),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.deposits {
		c.deposits[k] = v
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = v
	}
	if s.metrics != nil {
		m := *s.metrics
		c.metrics = &m
	}
	c.notifications = append([]model.Notification(nil), s.notifications...)
	c.outbox = append([]model.OutboxMessage(nil), s.outbox...)
	c.nextID = s.nextID
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store 内存版余额存储
type Store struct {
	mu         sync.Mutex
	st         *state
	maxRetries uint64
	conflicts  int
	attempts   int

	// FailOn 非空时在每个写操作前调用，返回错误即模拟存储故障
	FailOn func(op string) error
}

var _ repository.Store = (*Store)(nil)
var _ repository.Queries = (*Store)(nil)

func New() *Store {
	return &Store{st: newState(), maxRetries: 5}
}

// SimulateConflicts 让接下来的 n 次事务在提交时报告乐观锁冲突
func (s *Store) SimulateConflicts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = n
}

// Attempts 累计执行过的事务次数（含重试）
func (s *Store) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return repository.RunWithRetry(ctx, s.maxRetries, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.attempts++
		working := s.st.clone()
		if err := fn(&memTx{st: working, failOn: s.FailOn}); err != nil {
			return err
		}
		if s.conflicts > 0 {
			s.conflicts--
			return repository.ErrOptimisticLock
		}
		s.st = working
		return nil
	})
}

func (s *Store) EnsureAccount(ctx context.Context, acc *model.Account) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.st.accounts[acc.UserID]; ok {
		return &existing, nil
	}
	a := model.Account{
		ID:          s.st.id(),
		UserID:      acc.UserID,
		Email:       acc.Email,
		DisplayName: acc.DisplayName,
		Role:        acc.Role,
		Balance:     decimal.Zero,
		CreatedAt:   time.Now(),
	}
	if a.Role == "" {
		a.Role = model.RoleBuyer
	}
	s.st.accounts[a.UserID] = a
	return &a, nil
}

// ============================================================================
// 测试辅助：直接写入/读取状态
// ============================================================================

func (s *Store) PutAccount(acc model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc.ID == 0 {
		acc.ID = s.st.id()
	}
	s.st.accounts[acc.UserID] = acc
}

func (s *Store) PutProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.st.id()
	}
	s.st.products[p.ProductID] = p
}

func (s *Store) PutWithdrawal(w model.Withdrawal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == 0 {
		w.ID = s.st.id()
	}
	s.st.withdrawals[w.WithdrawalNo] = w
}

func (s *Store) Account(userID string) (model.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.accounts[userID]
	return a, ok
}

func (s *Store) Balance(userID string) decimal.Decimal {
	a, _ := s.Account(userID)
	return a.Balance
}

func (s *Store) Revenue() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.metrics == nil {
		return decimal.Zero
	}
	return s.st.metrics.Revenue
}

func (s *Store) Orders() []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Order, 0, len(s.st.orders))
	for _, o := range s.st.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Deposits() []model.Deposit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Deposit, 0, len(s.st.deposits))
	for _, d := range s.st.deposits {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reference < out[j].Reference })
	return out
}

func (s *Store) Withdrawals() []model.Withdrawal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Withdrawal, 0, len(s.st.withdrawals))
	for _, w := range s.st.withdrawals {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Notifications() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Notification(nil), s.st.notifications...)
}

func (s *Store) Outbox() []model.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OutboxMessage(nil), s.st.outbox...)
}

// ============================================================================
// 只读查询
// ============================================================================

func (s *Store) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.accounts[userID]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	return &a, nil
}

func paginate[T any](items []T, page, pageSize int) []T {
	page, pageSize = repository.Normalize(page, pageSize)
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (s *Store) ListOrders(ctx context.Context, userID string, asSeller bool, page, pageSize int) ([]*model.Order, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []*model.Order
	for _, o := range s.st.orders {
		o := o
		if (asSeller && o.SellerID == userID) || (!asSeller && o.BuyerID == userID) {
			list = append(list, &o)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return paginate(list, page, pageSize), int64(len(list)), nil
}

func (s *Store) ListDeposits(ctx context.Context, userID string, page, pageSize int) ([]*model.Deposit, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []*model.Deposit
	for _, d := range s.st.deposits {
		d := d
		if d.UserID == userID {
			list = append(list, &d)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return paginate(list, page, pageSize), int64(len(list)), nil
}

func (s *Store) ListWithdrawals(ctx context.Context, sellerID string, page, pageSize int) ([]*model.Withdrawal, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []*model.Withdrawal
	for _, w := range s.st.withdrawals {
		w := w
		if w.SellerID == sellerID {
			list = append(list, &w)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return paginate(list, page, pageSize), int64(len(list)), nil
}

func (s *Store) ListPayoutCandidates(ctx context.Context, threshold decimal.Decimal) ([]*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []*model.Account
	for _, a := range s.st.accounts {
		a := a
		if a.Role == model.RoleSeller && a.Balance.GreaterThanOrEqual(threshold) && a.RecipientCode != "" {
			list = append(list, &a)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *Store) ListPendingWithdrawals(ctx context.Context, before time.Time, limit int) ([]*model.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []*model.Withdrawal
	for _, w := range s.st.withdrawals {
		w := w
		if w.Status == model.WithdrawalStatusPending && w.CreatedAt.Before(before) {
			list = append(list, &w)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *Store) Totals(ctx context.Context) (*repository.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &repository.Totals{}
	for _, a := range s.st.accounts {
		t.Users++
		if a.Role == model.RoleSeller {
			t.Sellers++
		}
		t.Balances = t.Balances.Add(a.Balance)
	}
	if s.st.metrics != nil {
		t.Revenue = s.st.metrics.Revenue
	}
	for _, d := range s.st.deposits {
		t.Deposits = t.Deposits.Add(d.Amount)
	}
	for _, w := range s.st.withdrawals {
		switch w.Status {
		case model.WithdrawalStatusSent:
			t.PayoutsSent = t.PayoutsSent.Add(w.Amount)
		case model.WithdrawalStatusPending:
			t.PayoutsInFlight = t.PayoutsInFlight.Add(w.Amount)
		}
	}
	return t, nil
}

// ============================================================================
// 事务
// ============================================================================

type memTx struct {
	st     *state
	failOn func(op string) error
}

func (t *memTx) fail(op string) error {
	if t.failOn == nil {
		return nil
	}
	return t.failOn(op)
}

func (t *memTx) GetAccount(userID string) (*model.Account, error) {
	a, ok := t.st.accounts[userID]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	return &a, nil
}

func (t *memTx) FindAccountByEmail(email string) (*model.Account, error) {
	var found *model.Account
	for _, a := range t.st.accounts {
		a := a
		if a.Email == email && (found == nil || a.ID < found.ID) {
			found = &a
		}
	}
	if found == nil {
		return nil, repository.ErrAccountNotFound
	}
	return found, nil
}

func (t *memTx) UpdateAccount(acc *model.Account) error {
	if err := t.fail("UpdateAccount"); err != nil {
		return err
	}
	current, ok := t.st.accounts[acc.UserID]
	if !ok || current.Version != acc.Version {
		return repository.ErrOptimisticLock
	}
	acc.Version++
	current.Balance = acc.Balance
	current.Banned = acc.Banned
	current.RecipientCode = acc.RecipientCode
	current.LastPayoutAt = acc.LastPayoutAt
	current.Version = acc.Version
	current.UpdatedAt = time.Now()
	t.st.accounts[acc.UserID] = current
	return nil
}

func (t *memTx) GetProduct(productID string) (*model.Product, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return &p, nil
}

func (t *memTx) GetPlatformMetrics() (*model.PlatformMetrics, error) {
	if t.st.metrics == nil {
		t.st.metrics = &model.PlatformMetrics{ID: model.PlatformMetricsID, Revenue: decimal.Zero}
	}
	m := *t.st.metrics
	return &m, nil
}

func (t *memTx) UpdatePlatformMetrics(m *model.PlatformMetrics) error {
	if err := t.fail("UpdatePlatformMetrics"); err != nil {
		return err
	}
	if t.st.metrics == nil || t.st.metrics.Version != m.Version {
		return repository.ErrOptimisticLock
	}
	m.Version++
	saved := *m
	t.st.metrics = &saved
	return nil
}

func (t *memTx) CreateOrder(order *model.Order) error {
	if err := t.fail("CreateOrder"); err != nil {
		return err
	}
	if _, exists := t.st.orders[order.OrderNo]; exists {
		return errors.New("duplicate order_no")
	}
	order.ID = t.st.id()
	t.st.orders[order.OrderNo] = *order
	return nil
}

func (t *memTx) GetOrder(orderNo string) (*model.Order, error) {
	o, ok := t.st.orders[orderNo]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return &o, nil
}

func (t *memTx) MarkOrderReviewed(orderNo string) error {
	o, ok := t.st.orders[orderNo]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if o.Reviewed {
		return repository.ErrOrderAlreadyReviewed
	}
	o.Reviewed = true
	t.st.orders[orderNo] = o
	return nil
}

func (t *memTx) GetDeposit(reference string) (*model.Deposit, error) {
	d, ok := t.st.deposits[reference]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (t *memTx) CreateDeposit(d *model.Deposit) error {
	if err := t.fail("CreateDeposit"); err != nil {
		return err
	}
	if _, exists := t.st.deposits[d.Reference]; exists {
		return repository.ErrDuplicateReference
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	t.st.deposits[d.Reference] = *d
	return nil
}

func (t *memTx) CreateWithdrawal(w *model.Withdrawal) error {
	if err := t.fail("CreateWithdrawal"); err != nil {
		return err
	}
	if _, exists := t.st.withdrawals[w.WithdrawalNo]; exists {
		return errors.New("duplicate withdrawal_no")
	}
	w.ID = t.st.id()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	t.st.withdrawals[w.WithdrawalNo] = *w
	return nil
}

func (t *memTx) GetWithdrawal(withdrawalNo string) (*model.Withdrawal, error) {
	w, ok := t.st.withdrawals[withdrawalNo]
	if !ok {
		return nil, repository.ErrWithdrawalNotFound
	}
	return &w, nil
}

func (t *memTx) UpdateWithdrawalStatus(w *model.Withdrawal, fromStatus string) error {
	if err := t.fail("UpdateWithdrawalStatus"); err != nil {
		return err
	}
	if !model.CanTransitionTo(fromStatus, w.Status) {
		return repository.ErrWithdrawalStatusInvalid
	}
	current, ok := t.st.withdrawals[w.WithdrawalNo]
	if !ok || current.Status != fromStatus {
		return repository.ErrWithdrawalStatusInvalid
	}
	current.Status = w.Status
	current.TransferRef = w.TransferRef
	current.FailureReason = w.FailureReason
	current.ResolvedAt = w.ResolvedAt
	t.st.withdrawals[w.WithdrawalNo] = current
	return nil
}

func (t *memTx) CreateNotification(n *model.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	t.st.notifications = append(t.st.notifications, *n)
	return nil
}

func (t *memTx) CreateOutbox(msg *model.OutboxMessage) error {
	msg.ID = t.st.id()
	if msg.Status == "" {
		msg.Status = model.OutboxStatusPending
	}
	t.st.outbox = append(t.st.outbox, *msg)
	return nil
}
