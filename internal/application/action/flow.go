// Package action 实现单个待执行动作从提出到终态的状态机
package action

import (
	"errors"
	"fmt"
	"slices"

	"z-genstudio-api/internal/application/params"
	"z-genstudio-api/internal/application/pricing"
	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/pkg/metrics"
)

var (
	// ErrIllegalTransition 当前状态不允许该操作
	ErrIllegalTransition = errors.New("illegal action transition")
	// ErrInvalidSelection 参数缺失或非法，动作保持 PROPOSED
	ErrInvalidSelection = errors.New("invalid action parameters")
)

var transitions = map[entity.ActionState][]entity.ActionState{
	entity.ActionStateProposed:  {entity.ActionStateProposed, entity.ActionStateConfirmed, entity.ActionStateCancelled},
	entity.ActionStateConfirmed: {entity.ActionStateExecuting},
	entity.ActionStateExecuting: {entity.ActionStateComplete, entity.ActionStateFailed},
}

// CanTransition 是否允许从 from 迁移到 to
func CanTransition(from, to entity.ActionState) bool {
	return slices.Contains(transitions[from], to)
}

// Flow 单个动作的状态机，非并发安全，由持有者加锁
type Flow struct {
	resolver  *params.Resolver
	action    *entity.PendingAction
	state     entity.ActionState
	selection entity.Params
	cost      int
}

// NewFlow 以 PROPOSED 状态创建，当前选择为解析后的默认值
func NewFlow(resolver *params.Resolver, pa *entity.PendingAction) *Flow {
	sel := resolver.Resolve(pa.Params)
	cost, _ := pricing.Estimate(sel)
	return &Flow{
		resolver:  resolver,
		action:    pa.Clone(),
		state:     entity.ActionStateProposed,
		selection: sel,
		cost:      cost,
	}
}

// State 当前状态
func (f *Flow) State() entity.ActionState { return f.state }

// Type 动作类型
func (f *Flow) Type() entity.ActionType { return f.action.Type }

// Selection 当前选择的参数副本
func (f *Flow) Selection() entity.Params { return entity.CloneParams(f.selection) }

// Cost 当前选择对应的成本
func (f *Flow) Cost() int { return f.cost }

// Edit 修改参数，仅在 PROPOSED 下允许，状态自环
func (f *Flow) Edit(name, value string) error {
	if err := f.guard(entity.ActionStateProposed); err != nil {
		return err
	}
	next, err := f.resolver.Select(f.selection, name, value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}
	cost, err := pricing.Estimate(next)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}
	f.selection, f.cost = next, cost
	f.transition(entity.ActionStateProposed)
	return nil
}

// Preview 计算确认后的最终参数与成本，不改变状态
func (f *Flow) Preview(edits map[string]string) (entity.Params, int, error) {
	if err := f.guard(entity.ActionStateConfirmed); err != nil {
		return nil, 0, err
	}
	next, err := f.resolver.Apply(f.selection, edits)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}
	if err := f.resolver.Validate(next); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}
	cost, err := pricing.Estimate(next)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}
	return next, cost, nil
}

// Confirm 应用最终编辑并按最终选择重新计价，成功后进入 CONFIRMED
// 任一校验失败都保持 PROPOSED 且不改变已有选择
func (f *Flow) Confirm(edits map[string]string) (entity.Params, int, error) {
	next, cost, err := f.Preview(edits)
	if err != nil {
		return nil, 0, err
	}
	f.selection, f.cost = next, cost
	f.transition(entity.ActionStateConfirmed)
	return entity.CloneParams(next), cost, nil
}

// Start CONFIRMED -> EXECUTING
func (f *Flow) Start() error {
	return f.move(entity.ActionStateExecuting)
}

// Complete EXECUTING -> COMPLETE
func (f *Flow) Complete() error {
	return f.move(entity.ActionStateComplete)
}

// Fail EXECUTING -> FAILED
func (f *Flow) Fail() error {
	return f.move(entity.ActionStateFailed)
}

// Cancel PROPOSED -> CANCELLED
func (f *Flow) Cancel() error {
	return f.move(entity.ActionStateCancelled)
}

// Final 返回最终动作：原动作描述加最终参数和成本
func (f *Flow) Final() *entity.PendingAction {
	pa := f.action.Clone()
	pa.Params = entity.CloneParams(f.selection)
	pa.EstimatedCredits = f.cost
	return pa
}

func (f *Flow) move(to entity.ActionState) error {
	if err := f.guard(to); err != nil {
		return err
	}
	f.transition(to)
	return nil
}

func (f *Flow) guard(to entity.ActionState) error {
	if !CanTransition(f.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, f.state, to)
	}
	return nil
}

func (f *Flow) transition(to entity.ActionState) {
	f.state = to
	metrics.ActionTransitionsTotal.WithLabelValues(f.action.Type.Short(), string(to)).Inc()
}
