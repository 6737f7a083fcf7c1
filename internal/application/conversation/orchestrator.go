package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"z-genstudio-api/internal/application/action"
	"z-genstudio-api/internal/application/attachment"
	"z-genstudio-api/internal/application/credit"
	"z-genstudio-api/internal/application/generation"
	"z-genstudio-api/internal/application/params"
	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/internal/domain/service"
	"z-genstudio-api/pkg/logger"
	"z-genstudio-api/pkg/metrics"
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrUnauthenticated = errors.New("session is not authenticated")
	ErrBusy            = errors.New("another operation is in flight")
	ErrTurnNotFound    = errors.New("turn not found")
	ErrNoPendingAction = errors.New("turn has no pending action")
	ErrNotRetryable    = errors.New("turn is not retryable")
)

const reconcileTimeout = 15 * time.Second

// Config 编排器配置
type Config struct {
	InterpretTimeout  time.Duration
	HistoryTurns      int
	ModelID           string
	MaxAttachments    int
	MaxAttachmentSize int64
}

// Deps 编排器依赖
type Deps struct {
	Session     service.Session
	Interpreter service.Interpreter
	Executor    *generation.Executor
	Ledger      *credit.LedgerSync
	Resolver    *params.Resolver
	Publisher   service.UsagePublisher
}

type retryKind int

const (
	retryInterpret retryKind = iota + 1
	retryGenerate
)

// retryRecord 传输失败时保存的原始请求
type retryRecord struct {
	kind       retryKind
	text       string
	refs       []string
	history    []service.HistoryEntry
	proposalID string
	action     *entity.PendingAction
}

// Orchestrator 单个对话的协调者，所有方法并发安全
// 同一时刻最多一个 send、一个执行在途
type Orchestrator struct {
	id          string
	cfg         Config
	session     service.Session
	interpreter service.Interpreter
	executor    *generation.Executor
	ledger      *credit.LedgerSync
	resolver    *params.Resolver
	publisher   service.UsagePublisher
	attachments *attachment.Store
	log         *Log
	hub         *Hub

	mu           sync.Mutex
	isLoading    bool
	isGenerating bool
	flows        map[string]*action.Flow
	retries      map[string]retryRecord
	version      uint64
	closed       bool

	wg          sync.WaitGroup
	unsubscribe func()
}

// New 创建编排器
func New(id string, cfg Config, deps Deps) *Orchestrator {
	if id == "" {
		id = uuid.NewString()
	}
	if deps.Resolver == nil {
		deps.Resolver = params.NewResolver(params.DefaultCatalog())
	}
	o := &Orchestrator{
		id:          id,
		cfg:         cfg,
		session:     deps.Session,
		interpreter: deps.Interpreter,
		executor:    deps.Executor,
		ledger:      deps.Ledger,
		resolver:    deps.Resolver,
		publisher:   deps.Publisher,
		log:         NewLog(),
		hub:         NewHub(),
		flows:       make(map[string]*action.Flow),
		retries:     make(map[string]retryRecord),
	}
	o.attachments = attachment.NewStore(cfg.MaxAttachments, cfg.MaxAttachmentSize, o.publish)
	o.unsubscribe = o.ledger.Store().Subscribe(func(int) { o.publish() })
	return o
}

// ID 会话 ID
func (o *Orchestrator) ID() string { return o.id }

// WalletID 会话所属钱包
func (o *Orchestrator) WalletID() string { return o.session.Identifier() }

// Attachments 附件存储
func (o *Orchestrator) Attachments() *attachment.Store { return o.attachments }

// Resolver 参数解析器
func (o *Orchestrator) Resolver() *params.Resolver { return o.resolver }

// State 当前状态快照
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Subscribe 订阅状态变化，订阅时立即收到当前状态
func (o *Orchestrator) Subscribe(buffer int) (<-chan State, func()) {
	ch, cancel := o.hub.Subscribe(buffer)
	o.publish()
	return ch, cancel
}

// Wait 等待后台执行结束
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close 等待后台执行并关闭订阅，可重复调用
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()
	o.wg.Wait()
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	o.hub.Close()
}

// Send 发送用户消息并等待助手解析结果
// 第二次调用在解析未完成时返回 ErrBusy，不改变任何状态
func (o *Orchestrator) Send(ctx context.Context, text string) (*entity.Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if o.session == nil || !o.session.IsAuthenticated() {
		return nil, ErrUnauthenticated
	}

	o.mu.Lock()
	if o.isLoading {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	o.isLoading = true
	o.mu.Unlock()

	// 附件在网络往返之前清空
	refs := attachment.DataURIs(o.attachments.Take())

	o.mu.Lock()
	history := o.log.History(o.cfg.HistoryTurns)
	o.log.Append(entity.NewTurn(entity.RoleUser, withMarker(text, len(refs))))
	pending := entity.NewLoadingTurn("")
	o.log.Append(pending)
	o.mu.Unlock()
	o.publish()

	return o.interpret(ctx, pending.ID, text, refs, history)
}

// ConfirmAction 确认提案 Turn 上的动作，校验通过后在后台执行
// 返回新追加的 "generating" Turn
func (o *Orchestrator) ConfirmAction(ctx context.Context, turnID string, edits map[string]string) (*entity.Turn, error) {
	o.mu.Lock()
	flow, err := o.flowLocked(turnID)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if o.isGenerating {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	turn, cost, err := o.startLocked(ctx, turnID, flow, edits)
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}

	o.charge(flow.Type(), cost)
	o.publish()
	return turn, nil
}

// ActionPreview 编辑后的参数选择与费用
type ActionPreview struct {
	Params           entity.Params
	EstimatedCredits int
}

// EditAction 修改提案上的单个参数并重新计价
// 只改变工作选择，日志中的 PendingAction 保持原样，确认时按最新选择扣费
func (o *Orchestrator) EditAction(ctx context.Context, turnID, name, value string) (*ActionPreview, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	flow, err := o.flowLocked(turnID)
	if err != nil {
		return nil, err
	}
	if err := flow.Edit(name, value); err != nil {
		return nil, err
	}
	logger.Debug(ctx, "pending action edited", "session_id", o.id, "turn_id", turnID, "param", name)
	return &ActionPreview{Params: flow.Selection(), EstimatedCredits: flow.Cost()}, nil
}

// CancelAction 取消提案，不影响余额也不调用生成服务
func (o *Orchestrator) CancelAction(ctx context.Context, turnID string) (*entity.Turn, error) {
	o.mu.Lock()
	flow, err := o.flowLocked(turnID)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if err := flow.Cancel(); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	delete(o.flows, turnID)
	_ = o.log.Update(turnID, func(t *entity.Turn) { t.ActionState = entity.ActionStateCancelled })
	sys := entity.NewTurn(entity.RoleSystem, "Action cancelled.")
	o.log.Append(sys)
	o.mu.Unlock()

	logger.Info(ctx, "pending action cancelled", "session_id", o.id, "turn_id", turnID)
	o.publish()
	return sys.Clone(), nil
}

// Retry 重新发起传输失败的请求；服务端语义失败不可重试
func (o *Orchestrator) Retry(ctx context.Context, turnID string) (*entity.Turn, error) {
	o.mu.Lock()
	if _, ok := o.log.Get(turnID); !ok {
		o.mu.Unlock()
		return nil, ErrTurnNotFound
	}
	rec, ok := o.retries[turnID]
	if !ok {
		o.mu.Unlock()
		return nil, ErrNotRetryable
	}

	switch rec.kind {
	case retryInterpret:
		if o.isLoading {
			o.mu.Unlock()
			return nil, ErrBusy
		}
		o.isLoading = true
		delete(o.retries, turnID)
		pending := entity.NewLoadingTurn("")
		o.log.Append(pending)
		o.mu.Unlock()
		o.publish()
		return o.interpret(ctx, pending.ID, rec.text, rec.refs, rec.history)

	case retryGenerate:
		if o.isGenerating {
			o.mu.Unlock()
			return nil, ErrBusy
		}
		flow := action.NewFlow(o.resolver, rec.action)
		turn, cost, err := o.startLocked(ctx, rec.proposalID, flow, nil)
		if err != nil {
			o.mu.Unlock()
			return nil, err
		}
		o.flows[rec.proposalID] = flow
		delete(o.retries, turnID)
		o.mu.Unlock()

		o.charge(flow.Type(), cost)
		o.publish()
		return turn, nil
	}

	o.mu.Unlock()
	return nil, ErrNotRetryable
}

// interpret 调用解析服务并原地回填 loading Turn
func (o *Orchestrator) interpret(ctx context.Context, turnID, text string, refs []string, history []service.HistoryEntry) (*entity.Turn, error) {
	ictx := context.WithoutCancel(ctx)
	if o.cfg.InterpretTimeout > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ictx, o.cfg.InterpretTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := o.interpreter.Interpret(ictx, &service.InterpretRequest{
		Text:    withMarker(text, len(refs)),
		History: history,
		Context: service.InterpretContext{
			UserID:   o.session.UserID(),
			WalletID: o.session.Identifier(),
			Credits:  o.ledger.Balance(),
		},
		Attachments: refs,
		ModelID:     o.cfg.ModelID,
	})
	metrics.InterpretDuration.WithLabelValues(o.cfg.ModelID).Observe(time.Since(start).Seconds())

	var (
		flow *action.Flow
		pa   *entity.PendingAction
	)
	if err == nil && res != nil && res.Action != nil && res.Error == "" {
		if flow = o.proposal(ctx, res.Action, refs); flow != nil {
			pa = flow.Final()
		}
	}

	o.mu.Lock()
	_ = o.log.Update(turnID, func(t *entity.Turn) {
		t.IsLoading = false
		switch {
		case err != nil:
			t.Error = interpretMessage(err)
			t.ErrorKind = entity.ErrorKindTransport
		case res == nil:
			t.Error = "empty response from assistant"
			t.ErrorKind = entity.ErrorKindProvider
		default:
			t.Content = res.Message
			if res.Error != "" {
				t.Error = res.Error
				t.ErrorKind = entity.ErrorKindProvider
			}
			if pa != nil {
				t.PendingAction = pa
				t.ActionState = entity.ActionStateProposed
			}
		}
	})
	if err != nil {
		o.retries[turnID] = retryRecord{kind: retryInterpret, text: text, refs: refs, history: history}
	}
	if flow != nil {
		o.flows[turnID] = flow
	}
	o.isLoading = false
	turn, _ := o.log.Get(turnID)
	o.mu.Unlock()

	status, kind := "success", "none"
	if err != nil {
		status = "transport"
		logger.Error(ctx, "assistant interpretation failed", err, "session_id", o.id, "turn_id", turnID)
	} else if res != nil && res.Error != "" {
		status = "provider"
	}
	if pa != nil {
		kind = pa.Type.Short()
	}
	metrics.InterpretTotal.WithLabelValues(status, kind).Inc()

	o.publish()
	return turn, nil
}

// proposal 把解析服务给出的动作转成类型化、已定价的状态机
// 估价以解析后的默认选择为准，不信任服务端给出的值
func (o *Orchestrator) proposal(ctx context.Context, raw *service.ProposedAction, refs []string) *action.Flow {
	typ := entity.ActionType(raw.Type)
	p, err := entity.DecodeParams(typ, raw.Params)
	if err != nil {
		logger.Warn(ctx, "ignoring unknown action from assistant", "type", raw.Type)
		return nil
	}
	p = withReferences(p, refs)

	return action.NewFlow(o.resolver, &entity.PendingAction{
		Type:        typ,
		Description: raw.Description,
		Params:      p,
	})
}

// startLocked 确认并进入执行，调用方持有 o.mu
// 余额扣减由调用方在释放锁后进行
func (o *Orchestrator) startLocked(ctx context.Context, proposalID string, flow *action.Flow, edits map[string]string) (*entity.Turn, int, error) {
	// 关闭后不再登记后台任务，避免与 Close 中的 wg.Wait 竞争
	if o.closed {
		return nil, 0, ErrSessionNotFound
	}
	_, cost, err := flow.Preview(edits)
	if err != nil {
		return nil, 0, err
	}
	if err := o.ledger.Precheck(cost); err != nil {
		return nil, 0, err
	}
	if _, _, err := flow.Confirm(edits); err != nil {
		return nil, 0, err
	}
	if err := flow.Start(); err != nil {
		return nil, 0, err
	}

	pa := flow.Final()
	_ = o.log.Update(proposalID, func(t *entity.Turn) { t.ActionState = entity.ActionStateExecuting })
	gen := entity.NewLoadingTurn(fmt.Sprintf("Generating %s...", pa.Type.Short()))
	o.log.Append(gen)
	o.isGenerating = true

	o.wg.Add(1)
	go o.execute(context.WithoutCancel(ctx), flow, proposalID, gen.ID, pa)

	return gen.Clone(), cost, nil
}

// execute 后台执行，结束后写终态 Turn、对账并复位 isGenerating
func (o *Orchestrator) execute(ctx context.Context, flow *action.Flow, proposalID, turnID string, pa *entity.PendingAction) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		o.isGenerating = false
		o.mu.Unlock()
		o.publish()
	}()

	start := time.Now()
	content, err := o.executor.Execute(ctx, o.session.Identifier(), pa)

	o.mu.Lock()
	if err != nil {
		_ = flow.Fail()
		kind := generation.Classify(err)
		_ = o.log.Update(turnID, func(t *entity.Turn) {
			t.IsLoading = false
			t.Error = generation.Message(err)
			t.ErrorKind = kind
		})
		_ = o.log.Update(proposalID, func(t *entity.Turn) { t.ActionState = entity.ActionStateFailed })
		if kind == entity.ErrorKindTransport {
			o.retries[turnID] = retryRecord{kind: retryGenerate, proposalID: proposalID, action: pa.Clone()}
		}
	} else {
		_ = flow.Complete()
		_ = o.log.Update(turnID, func(t *entity.Turn) {
			t.IsLoading = false
			t.Content = fmt.Sprintf("Your %s is ready.", pa.Type.Short())
			t.GeneratedContent = content
		})
		_ = o.log.Update(proposalID, func(t *entity.Turn) { t.ActionState = entity.ActionStateComplete })
	}
	o.mu.Unlock()
	o.publish()

	// 服务端未报告余额时保留乐观值，等对账覆盖
	if err == nil && content.RemainingCredits != nil {
		o.ledger.ApplyAuthoritative(*content.RemainingCredits)
	}
	// 失败的付费动作也要对账，服务端可能已部分扣费
	rctx, cancel := context.WithTimeout(ctx, reconcileTimeout)
	_ = o.ledger.Reconcile(rctx)
	cancel()

	o.report(ctx, turnID, pa, content, err, time.Since(start))
}

// report 发布结算事件，失败不影响对话
func (o *Orchestrator) report(ctx context.Context, turnID string, pa *entity.PendingAction, content *entity.GeneratedContent, execErr error, elapsed time.Duration) {
	if o.publisher == nil {
		return
	}
	evt := &entity.GenerationUsageEvent{
		MessageID:        uuid.NewString(),
		WalletID:         o.session.Identifier(),
		SessionID:        o.id,
		TurnID:           turnID,
		ActionType:       pa.Type,
		Model:            generation.ModelOf(pa.Params),
		Status:           entity.GenerationUsageSucceeded,
		CreditsEstimated: pa.EstimatedCredits,
		RemainingCredits: o.ledger.Balance(),
		DurationMs:       int(elapsed.Milliseconds()),
	}
	if execErr != nil {
		evt.Status = entity.GenerationUsageFailed
		evt.Error = generation.Message(execErr)
	} else {
		evt.CreditsUsed = content.CreditsUsed
		evt.URLs = append(evt.URLs, content.URLs...)
	}
	if err := o.publisher.PublishSettled(ctx, evt); err != nil {
		logger.Warn(ctx, "failed to publish generation usage", "session_id", o.id, "turn_id", turnID, "error", err.Error())
	}
}

func (o *Orchestrator) charge(t entity.ActionType, cost int) {
	o.ledger.OptimisticDecrement(cost)
	metrics.CreditsCharged.WithLabelValues(t.Short()).Add(float64(cost))
}

func (o *Orchestrator) flowLocked(turnID string) (*action.Flow, error) {
	if flow, ok := o.flows[turnID]; ok {
		return flow, nil
	}
	if _, ok := o.log.Get(turnID); !ok {
		return nil, ErrTurnNotFound
	}
	return nil, ErrNoPendingAction
}

func (o *Orchestrator) snapshotLocked() State {
	o.version++
	return State{
		Version:      o.version,
		Turns:        o.log.Snapshot(),
		Balance:      o.ledger.Balance(),
		Attachments:  o.attachments.List(),
		IsLoading:    o.isLoading,
		IsGenerating: o.isGenerating,
	}
}

// publish 构造快照并分发；调用方不能持有 o.mu
func (o *Orchestrator) publish() {
	o.mu.Lock()
	s := o.snapshotLocked()
	o.mu.Unlock()
	o.hub.Publish(s)
}

// withMarker 为带附件的消息加前缀，让解析服务感知图片数量
func withMarker(text string, n int) string {
	switch {
	case n == 1:
		return "[ref:image_attached] " + text
	case n > 1:
		return fmt.Sprintf("[ref:%d_images] %s", n, text)
	}
	return text
}

// withReferences 随消息发送的参考图填入动作参数，索引 0 为基准图
func withReferences(p entity.Params, refs []string) entity.Params {
	if len(refs) == 0 {
		return p
	}
	switch v := p.(type) {
	case entity.ImageParams:
		if len(v.ReferenceImages) == 0 {
			v.ReferenceImages = append([]string(nil), refs...)
		}
		return v
	case entity.VideoParams:
		if len(v.ReferenceImages) == 0 {
			v.ReferenceImages = append([]string(nil), refs...)
		}
		return v
	}
	return p
}

func interpretMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "assistant timed out, please retry"
	}
	return err.Error()
}
