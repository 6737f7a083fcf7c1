package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-genstudio-api/internal/domain/entity"
)

type fakeRepo struct {
	mu      sync.Mutex
	wallets map[string]*entity.Wallet
	err     error
	reads   int
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*entity.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	w, ok := f.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (f *fakeRepo) Create(ctx context.Context, w *entity.Wallet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wallets[w.ID] = w
	return nil
}

func (f *fakeRepo) setBalance(id string, v int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wallets[id].Balance = v
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func (m *memCache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (any, error)) ([]byte, error) {
	m.mu.Lock()
	if v, ok := m.data[key]; ok {
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Unlock()
	v, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	b, _ := json.Marshal(v)
	m.mu.Lock()
	m.data[key] = b
	m.mu.Unlock()
	return b, nil
}

func (m *memCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	b, _ := json.Marshal(value)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	return nil
}

func newFixture() (*fakeRepo, *memCache, *Service) {
	repo := &fakeRepo{wallets: map[string]*entity.Wallet{"w1": {ID: "w1", Balance: 100}}}
	cache := &memCache{data: map[string][]byte{}}
	return repo, cache, NewService(repo, cache, time.Minute)
}

func TestBootstrap_UsesCache(t *testing.T) {
	repo, _, svc := newFixture()

	v, err := svc.Bootstrap(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 100, v)

	repo.setBalance("w1", 40)
	v, err = svc.Bootstrap(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 100, v, "bootstrap may serve a cached balance")
	assert.Equal(t, 1, repo.reads)
}

func TestRefresh_BypassesCacheAndBackfills(t *testing.T) {
	repo, _, svc := newFixture()
	_, err := svc.Bootstrap(context.Background(), "w1")
	require.NoError(t, err)

	repo.setBalance("w1", 40)
	v, err := svc.Refresh(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 40, v)

	v, err = svc.Bootstrap(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 40, v)
}

func TestRefresh_Errors(t *testing.T) {
	repo, cache, svc := newFixture()

	_, err := svc.Refresh(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrWalletNotFound)

	cache.err = errors.New("redis down")
	v, err := svc.Refresh(context.Background(), "w1")
	require.NoError(t, err, "cache failures do not fail the refresh")
	assert.Equal(t, 100, v)

	repo.err = errors.New("db down")
	_, err = svc.Refresh(context.Background(), "w1")
	assert.Error(t, err)
}

func TestRefresh_FloorsNegativeBalance(t *testing.T) {
	repo, _, _ := newFixture()
	repo.setBalance("w1", -5)
	v, err := NewService(repo, nil, 0).Refresh(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}
