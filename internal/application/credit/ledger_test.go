package credit

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubRefresher struct {
	balance int
	err     error
	calls   atomic.Int32
	delay   time.Duration
}

func (s *stubRefresher) Refresh(ctx context.Context, walletID string) (int, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.balance, s.err
}

func TestOptimisticDecrement_FloorsAtZero(t *testing.T) {
	l := NewLedgerSync(NewStore(10), nil, "w1")

	assert.Equal(t, 4, l.OptimisticDecrement(6))
	assert.Equal(t, 0, l.OptimisticDecrement(6))
	assert.Equal(t, 0, l.Balance())
}

func TestBalanceNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ref := &stubRefresher{}
	l := NewLedgerSync(NewStore(50), ref, "w1")

	for i := 0; i < 500; i++ {
		switch rng.Intn(3) {
		case 0:
			l.OptimisticDecrement(rng.Intn(80))
		case 1:
			l.ApplyAuthoritative(rng.Intn(200) - 100)
		case 2:
			ref.balance = rng.Intn(200) - 100
			_ = l.Reconcile(context.Background())
		}
		require.GreaterOrEqual(t, l.Balance(), 0)
	}
}

func TestNewStore_NegativeInitial(t *testing.T) {
	assert.Equal(t, 0, NewStore(-5).Value())
}

func TestReconcile_AuthoritativeOverwrites(t *testing.T) {
	ref := &stubRefresher{balance: 73}
	l := NewLedgerSync(NewStore(100), ref, "w1")

	l.OptimisticDecrement(40)
	require.Equal(t, 60, l.Balance())

	require.NoError(t, l.Reconcile(context.Background()))
	assert.Equal(t, 73, l.Balance())
}

func TestReconcile_FailureKeepsOptimisticValue(t *testing.T) {
	ref := &stubRefresher{err: errors.New("ledger unavailable")}
	l := NewLedgerSync(NewStore(100), ref, "w1")
	l.OptimisticDecrement(30)

	err := l.Reconcile(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 70, l.Balance())
}

func TestReconcile_CoalescesConcurrentCalls(t *testing.T) {
	ref := &stubRefresher{balance: 5, delay: 50 * time.Millisecond}
	l := NewLedgerSync(NewStore(100), ref, "w1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Reconcile(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, l.Balance())
	assert.Less(t, ref.calls.Load(), int32(8))
}

func TestPrecheck(t *testing.T) {
	l := NewLedgerSync(NewStore(10), nil, "w1")

	assert.NoError(t, l.Precheck(10))

	err := l.Precheck(11)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientCredit)

	var ice InsufficientCreditError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, 11, ice.Required)
	assert.Equal(t, 10, ice.Available)
}

func TestStoreSubscribe(t *testing.T) {
	store := NewStore(20)
	l := NewLedgerSync(store, nil, "w1")

	var seen []int
	cancel := store.Subscribe(func(v int) { seen = append(seen, v) })

	l.OptimisticDecrement(5)
	l.ApplyAuthoritative(15)
	l.ApplyAuthoritative(9)
	cancel()
	l.OptimisticDecrement(1)

	assert.Equal(t, []int{15, 9}, seen)
}
