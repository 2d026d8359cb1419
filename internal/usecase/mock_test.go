//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/adapter"
	"telegram-group-subscription/internal/domain/ports/repository"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func today() time.Time { return model.DateOf(time.Now()) }

func datePtr(t time.Time) *time.Time { return &t }

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func standardPlan() model.Plan {
	return model.Plan{ID: "standard", Name: "Standard", Stars: 100, Days: 30}
}

func testCatalog() *model.PlanCatalog {
	c, err := model.NewPlanCatalog([]model.Plan{
		{ID: "basic", Name: "Basic (7 days)", Stars: 50, Days: 7},
		standardPlan(),
	})
	if err != nil {
		panic(err)
	}
	return c
}

// ---- In-memory UserRepository ----

type MockUserRepo struct {
	mu    sync.Mutex
	users map[int64]*model.User
	// activity receives the entry written by the stored procedure path.
	activity *MockActivityRepo

	SaveFunc               func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByTelegramIDFunc   func(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error)
	ExtendSubscriptionFunc func(ctx context.Context, tx repository.Tx, req repository.ExtendRequest) (time.Time, error)

	// ProcedureAvailable switches ExtendSubscription from "missing" to an
	// in-memory emulation of the stored procedure.
	ProcedureAvailable bool
	LockCalls          int
}

func NewMockUserRepo(activity *MockActivityRepo) *MockUserRepo {
	return &MockUserRepo{users: map[int64]*model.User{}, activity: activity}
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func (m *MockUserRepo) Put(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.TelegramID] = &cp
}

func (m *MockUserRepo) Get(tgID int64) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[tgID]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (m *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, u)
	}
	m.Put(u)
	return nil
}

func (m *MockUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	if m.FindByTelegramIDFunc != nil {
		return m.FindByTelegramIDFunc(ctx, tx, tgID)
	}
	if u := m.Get(tgID); u != nil {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockUserRepo) LockUser(ctx context.Context, tx repository.Tx, tgID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LockCalls++
	return nil
}

func (m *MockUserRepo) SaveMany(ctx context.Context, tx repository.Tx, users []*model.User, batchSize int) (int, error) {
	for _, u := range users {
		m.Put(u)
	}
	return len(users), nil
}

func (m *MockUserRepo) filter(pred func(u *model.User) bool) []*model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.User
	for _, u := range m.users {
		if pred(u) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out
}

func (m *MockUserRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.SubscriptionStatus) ([]*model.User, error) {
	return m.filter(func(u *model.User) bool { return u.Status == status }), nil
}

func (m *MockUserRepo) ListExpiringBetween(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.User, error) {
	return m.filter(func(u *model.User) bool {
		return u.Status == model.SubscriptionActive && u.NextPaymentDate != nil &&
			!u.NextPaymentDate.Before(from) && !u.NextPaymentDate.After(to)
	}), nil
}

func (m *MockUserRepo) ListOverdue(ctx context.Context, tx repository.Tx, before time.Time) ([]*model.User, error) {
	return m.filter(func(u *model.User) bool {
		return u.Status == model.SubscriptionActive && u.NextPaymentDate != nil && u.NextPaymentDate.Before(before)
	}), nil
}

func (m *MockUserRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	out := map[model.SubscriptionStatus]int{}
	for _, u := range m.filter(func(*model.User) bool { return true }) {
		out[u.Status]++
	}
	return out, nil
}

func (m *MockUserRepo) ExtendSubscription(ctx context.Context, tx repository.Tx, req repository.ExtendRequest) (time.Time, error) {
	if m.ExtendSubscriptionFunc != nil {
		return m.ExtendSubscriptionFunc(ctx, tx, req)
	}
	if !m.ProcedureAvailable {
		return time.Time{}, domain.ErrProcedureUnavailable
	}
	u := m.Get(req.TelegramID)
	if u == nil {
		u = &model.User{TelegramID: req.TelegramID, CreatedAt: time.Now()}
	}
	var current *time.Time
	if u.Status == model.SubscriptionActive {
		current = u.NextPaymentDate
	}
	exp := model.NextExpiry(current, req.Today, req.Days)
	u.Status = model.SubscriptionActive
	u.PaymentMethod = req.Method
	u.NextPaymentDate = &exp
	if req.Method == model.PaymentMethodCard {
		u.CardPaymentID = req.TransactionID
	} else {
		u.StarsTransactionID = req.TransactionID
	}
	m.Put(u)
	if m.activity != nil {
		_ = m.activity.Append(ctx, tx, model.NewActivity(req.TelegramID, model.ActionPaymentSuccessful, req.Details))
	}
	return exp, nil
}

// ---- In-memory ActivityLogRepository ----

type MockActivityRepo struct {
	mu      sync.Mutex
	entries []*model.ActivityLogEntry

	AppendFunc func(ctx context.Context, tx repository.Tx, e *model.ActivityLogEntry) error
}

func NewMockActivityRepo() *MockActivityRepo { return &MockActivityRepo{} }

var _ repository.ActivityLogRepository = (*MockActivityRepo)(nil)

func (m *MockActivityRepo) Append(ctx context.Context, tx repository.Tx, e *model.ActivityLogEntry) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, tx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, &cp)
	return nil
}

// Count returns how many entries for tgID carry the action.
func (m *MockActivityRepo) Count(tgID int64, action model.ActivityAction) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.TelegramID == tgID && e.Action == action {
			n++
		}
	}
	return n
}

func (m *MockActivityRepo) ListByUser(ctx context.Context, tx repository.Tx, tgID int64, action model.ActivityAction, limit int) ([]*model.ActivityLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ActivityLogEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.entries[i]
		if e.TelegramID == tgID && (action == "" || e.Action == action) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockActivityRepo) ExistsSince(ctx context.Context, tx repository.Tx, tgID int64, action model.ActivityAction, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.TelegramID == tgID && e.Action == action && !e.Timestamp.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockActivityRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	var n int64
	for _, e := range m.entries {
		if e.Timestamp.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return n, nil
}

func (m *MockActivityRepo) PaymentStatsSince(ctx context.Context, tx repository.Tx, since time.Time) (*model.PaymentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &model.PaymentStats{}
	for _, e := range m.entries {
		if e.Timestamp.Before(since) {
			continue
		}
		switch e.Action {
		case model.ActionPaymentSuccessful:
			st.Successful++
			if e.Details["method"] == string(model.PaymentMethodCard) {
				st.CardCount++
				if v, ok := e.Details["amount_usd"].(float64); ok {
					st.CardUSD += v
				}
			} else {
				st.StarsCount++
				if v, ok := e.Details["stars"].(int); ok {
					st.StarsTotal += int64(v)
				}
			}
		case model.ActionPaymentFailed:
			st.Failed++
		}
	}
	return st, nil
}

// ---- Transactions and locks ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

var _ repository.Locker = (*MockLocker)(nil)

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrLocked
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

// ---- Telegram side ----

type MockGroupManager struct {
	mu         sync.Mutex
	Invites    []int64
	Removals   []int64
	RemoveErr  error
	InviteErr  error
	InviteLink string
}

var _ adapter.GroupManager = (*MockGroupManager)(nil)

func (g *MockGroupManager) CreateInviteLink(ctx context.Context, tgID int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Invites = append(g.Invites, tgID)
	if g.InviteErr != nil {
		return "", g.InviteErr
	}
	if g.InviteLink == "" {
		return "https://t.me/+invite", nil
	}
	return g.InviteLink, nil
}

func (g *MockGroupManager) RemoveMember(ctx context.Context, tgID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Removals = append(g.Removals, tgID)
	return g.RemoveErr
}

type MockNotifier struct {
	mu        sync.Mutex
	Activated []int64
	Failed    []string
	Expired   []int64
	LinkGone  []int64
	Reminders map[int64][]int
	Refunds   []string
	Err       error
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func NewMockNotifier() *MockNotifier { return &MockNotifier{Reminders: map[int64][]int{}} }

func (n *MockNotifier) NotifySubscriptionActivated(ctx context.Context, tgID int64, res *model.SubscriptionResult, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Activated = append(n.Activated, tgID)
	return n.Err
}

func (n *MockNotifier) NotifyPaymentFailed(ctx context.Context, tgID int64, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Failed = append(n.Failed, reason)
	return n.Err
}

func (n *MockNotifier) NotifyLinkExpired(ctx context.Context, tgID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.LinkGone = append(n.LinkGone, tgID)
	return n.Err
}

func (n *MockNotifier) NotifySubscriptionExpired(ctx context.Context, tgID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Expired = append(n.Expired, tgID)
	return n.Err
}

func (n *MockNotifier) NotifyExpiryReminder(ctx context.Context, tgID int64, daysLeft int, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Reminders[tgID] = append(n.Reminders[tgID], daysLeft)
	return n.Err
}

func (n *MockNotifier) NotifyRefund(ctx context.Context, tgID int64, amount string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Refunds = append(n.Refunds, amount)
	return n.Err
}

type MockRefunder struct {
	Calls []string
	Err   error
}

func (r *MockRefunder) RefundStarPayment(ctx context.Context, tgID int64, chargeID string) error {
	r.Calls = append(r.Calls, chargeID)
	return r.Err
}

// ---- Card gateway ----

type MockGateway struct {
	mu      sync.Mutex
	NoCreds bool

	CreatePaymentLinkFunc    func(ctx context.Context, req adapter.PaymentLinkRequest) (*adapter.PaymentLink, error)
	GetPaymentLinkStatusFunc func(ctx context.Context, linkID string) (*adapter.PaymentLinkStatus, error)

	Created     []adapter.PaymentLinkRequest
	StatusCalls int
	Cancelled   map[string]int
}

func NewMockGateway() *MockGateway { return &MockGateway{Cancelled: map[string]int{}} }

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (g *MockGateway) Name() string     { return "mock" }
func (g *MockGateway) Configured() bool { return !g.NoCreds }

func (g *MockGateway) Authenticate(ctx context.Context) error { return nil }

func (g *MockGateway) CreatePaymentLink(ctx context.Context, req adapter.PaymentLinkRequest) (*adapter.PaymentLink, error) {
	g.mu.Lock()
	g.Created = append(g.Created, req)
	n := len(g.Created)
	g.mu.Unlock()
	if g.CreatePaymentLinkFunc != nil {
		return g.CreatePaymentLinkFunc(ctx, req)
	}
	id := "plink_" + string(rune('a'+n-1))
	return &adapter.PaymentLink{ID: id, URL: "https://pay.example/" + id, ExpiresAt: time.Now().Add(req.ExpiresIn)}, nil
}

func (g *MockGateway) GetPaymentLinkStatus(ctx context.Context, linkID string) (*adapter.PaymentLinkStatus, error) {
	g.mu.Lock()
	g.StatusCalls++
	g.mu.Unlock()
	if g.GetPaymentLinkStatusFunc != nil {
		return g.GetPaymentLinkStatusFunc(ctx, linkID)
	}
	return &adapter.PaymentLinkStatus{ID: linkID, Status: "ACTIVE"}, nil
}

func (g *MockGateway) CancelPaymentLink(ctx context.Context, linkID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Cancelled[linkID]++
	return nil
}

// paidStatus reports every link as PAID with a stable intent id.
func paidStatus(ctx context.Context, linkID string) (*adapter.PaymentLinkStatus, error) {
	return &adapter.PaymentLinkStatus{ID: linkID, Status: adapter.LinkStatusPaid, PaymentIntentID: "int_" + linkID}, nil
}
