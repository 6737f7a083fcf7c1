package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-genstudio-api/internal/application/credit"
	"z-genstudio-api/internal/application/generation"
	"z-genstudio-api/internal/domain/service"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(func(ctx context.Context, id string, session service.Session) (*Orchestrator, error) {
		ledger := credit.NewLedgerSync(credit.NewStore(session.CurrentCredits()), &fakeRefresher{balance: session.CurrentCredits()}, session.Identifier())
		return New(id, Config{InterpretTimeout: time.Second}, Deps{
			Session:     session,
			Interpreter: &fakeInterpreter{},
			Executor:    generation.NewExecutor(&fakeGenerator{}, &fakeGenerator{}, &fakeGenerator{}, time.Second),
			Ledger:      ledger,
		}), nil
	})
}

func TestRegistry_CreateGetDelete(t *testing.T) {
	r := newTestRegistry(t)
	t.Cleanup(r.CloseAll)

	o, err := r.Create(context.Background(), service.StaticSession{User: "u1", WalletID: "w1", Credits: 30})
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID())
	assert.Equal(t, 1, r.Len())

	got, err := r.Get(o.ID(), "w1")
	require.NoError(t, err)
	assert.Same(t, o, got)
	assert.Equal(t, 30, got.State().Balance)

	_, err = r.Get(o.ID(), "w2")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, r.Delete(o.ID(), "w2"), ErrSessionNotFound)

	require.NoError(t, r.Delete(o.ID(), "w1"))
	assert.Equal(t, 0, r.Len())
	_, err = r.Get(o.ID(), "w1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_RejectsAnonymous(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Create(context.Background(), service.StaticSession{User: "u1"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = r.Create(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_FactoryError(t *testing.T) {
	boom := errors.New("wallet unavailable")
	r := NewRegistry(func(context.Context, string, service.Session) (*Orchestrator, error) {
		return nil, boom
	})

	_, err := r.Create(context.Background(), service.StaticSession{WalletID: "w1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_CloseAll(t *testing.T) {
	r := newTestRegistry(t)
	for range 3 {
		_, err := r.Create(context.Background(), service.StaticSession{WalletID: "w1", Credits: 5})
		require.NoError(t, err)
	}
	require.Equal(t, 3, r.Len())

	r.CloseAll()
	assert.Equal(t, 0, r.Len())
}
