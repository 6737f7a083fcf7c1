// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/google/uuid"
)

// Role 对话角色枚举
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrorKind Turn 级错误分类
type ErrorKind string

const (
	ErrorKindNone               ErrorKind = ""
	ErrorKindValidation         ErrorKind = "validation"
	ErrorKindTransport          ErrorKind = "transport"
	ErrorKindProvider           ErrorKind = "provider"
	ErrorKindInsufficientCredit ErrorKind = "insufficient_credit"
)

// Turn 对话中的一条记录
// 仅在 IsLoading 为 true 时允许原地修改；带结果或最终错误且不再 loading 即为终态
type Turn struct {
	ID               string            `json:"id"`
	Role             Role              `json:"role"`
	Content          string            `json:"content"`
	Timestamp        time.Time         `json:"timestamp"`
	IsLoading        bool              `json:"is_loading"`
	Error            string            `json:"error,omitempty"`
	ErrorKind        ErrorKind         `json:"error_kind,omitempty"`
	PendingAction    *PendingAction    `json:"pending_action,omitempty"`
	ActionState      ActionState       `json:"action_state,omitempty"`
	GeneratedContent *GeneratedContent `json:"generated_content,omitempty"`
}

// NewTurn 创建新 Turn
func NewTurn(role Role, content string) *Turn {
	return &Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewLoadingTurn 创建等待结果的助手 Turn
func NewLoadingTurn(content string) *Turn {
	t := NewTurn(RoleAssistant, content)
	t.IsLoading = true
	return t
}

// IsTerminal 是否为终态
func (t *Turn) IsTerminal() bool {
	if t.IsLoading {
		return false
	}
	return t.GeneratedContent != nil || t.Error != ""
}

// Retryable 只有传输类失败可以重试
func (t *Turn) Retryable() bool {
	return !t.IsLoading && t.ErrorKind == ErrorKindTransport
}

// Clone 深拷贝，日志外部只持有副本
func (t *Turn) Clone() *Turn {
	if t == nil {
		return nil
	}
	cp := *t
	cp.PendingAction = t.PendingAction.Clone()
	cp.GeneratedContent = t.GeneratedContent.Clone()
	return &cp
}
