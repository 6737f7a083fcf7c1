package conversation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"z-genstudio-api/internal/application/credit"
	"z-genstudio-api/internal/application/generation"
	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/internal/domain/service"
)

type interpretReply struct {
	res *service.InterpretResult
	err error
}

// fakeInterpreter 按顺序返回预设回复；gate 非空时每次调用都等待放行
type fakeInterpreter struct {
	mu      sync.Mutex
	replies []interpretReply
	calls   []*service.InterpretRequest
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeInterpreter) Interpret(ctx context.Context, req *service.InterpretRequest) (*service.InterpretResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	var r interpretReply
	if len(f.replies) > 0 {
		r, f.replies = f.replies[0], f.replies[1:]
	} else {
		r = interpretReply{res: &service.InterpretResult{Message: "ok"}}
	}
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.res, r.err
}

func (f *fakeInterpreter) lastCall() *service.InterpretRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

// fakeGenerator 支持阻塞直到放行，用于观察执行中的状态
type fakeGenerator struct {
	mu      sync.Mutex
	results []genReply
	calls   atomic.Int32
	gate    chan struct{}
	entered chan struct{}
}

type genReply struct {
	res *service.GenerateResult
	err error
}

func (f *fakeGenerator) Generate(ctx context.Context, req *service.GenerateRequest) (*service.GenerateResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	var r genReply
	if len(f.results) > 0 {
		r, f.results = f.results[0], f.results[1:]
	}
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return r.res, r.err
}

type fakeRefresher struct {
	mu      sync.Mutex
	balance int
	err     error
	calls   atomic.Int32
}

func (f *fakeRefresher) Refresh(ctx context.Context, walletID string) (int, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, f.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*entity.GenerationUsageEvent
}

func (f *fakePublisher) PublishSettled(ctx context.Context, evt *entity.GenerationUsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

type harness struct {
	o         *Orchestrator
	interp    *fakeInterpreter
	image     *fakeGenerator
	video     *fakeGenerator
	music     *fakeGenerator
	refresher *fakeRefresher
	publisher *fakePublisher
}

func newHarness(t *testing.T, balance int) *harness {
	t.Helper()
	h := &harness{
		interp:    &fakeInterpreter{},
		image:     &fakeGenerator{},
		video:     &fakeGenerator{},
		music:     &fakeGenerator{},
		refresher: &fakeRefresher{balance: balance},
		publisher: &fakePublisher{},
	}
	session := service.StaticSession{User: "u1", WalletID: "w1", Credits: balance}
	ledger := credit.NewLedgerSync(credit.NewStore(balance), h.refresher, session.Identifier())
	h.o = New("s1", Config{InterpretTimeout: time.Second, HistoryTurns: 10, ModelID: "gpt-4o-mini"}, Deps{
		Session:     session,
		Interpreter: h.interp,
		Executor:    generation.NewExecutor(h.image, h.video, h.music, time.Second),
		Ledger:      ledger,
		Publisher:   h.publisher,
	})
	t.Cleanup(h.o.Close)
	return h
}

func proposeReply(typ entity.ActionType, params map[string]any) interpretReply {
	return interpretReply{res: &service.InterpretResult{
		Message: "Here is what I will make.",
		Action: &service.ProposedAction{
			Type:        string(typ),
			Description: "proposal",
			Params:      params,
		},
	}}
}

// propose 发送一条消息并返回带提案的助手 Turn
func (h *harness) propose(t *testing.T, typ entity.ActionType, params map[string]any) *entity.Turn {
	t.Helper()
	h.interp.mu.Lock()
	h.interp.replies = append(h.interp.replies, proposeReply(typ, params))
	h.interp.mu.Unlock()

	turn, err := h.o.Send(context.Background(), "please make "+string(typ))
	require.NoError(t, err)
	require.NotNil(t, turn.PendingAction)
	return turn
}

func (h *harness) turn(t *testing.T, id string) *entity.Turn {
	t.Helper()
	turn, ok := h.o.log.Get(id)
	require.True(t, ok)
	return turn
}

func credits(v int) *int { return &v }
