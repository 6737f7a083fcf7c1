// Package service 定义领域层对外部协作者的契约（port）
package service

import "context"

// HistoryEntry 传给解析服务的历史消息
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InterpretContext 解析上下文，至少包含钱包标识与当前余额
type InterpretContext struct {
	UserID   string `json:"user_id,omitempty"`
	WalletID string `json:"wallet_id"`
	Credits  int    `json:"credits"`
}

// InterpretRequest 一次助手意图解析请求
type InterpretRequest struct {
	Text        string
	History     []HistoryEntry
	Context     InterpretContext
	Attachments []string
	ModelID     string
}

// ProposedAction 解析服务提出的动作，参数为松散 map
type ProposedAction struct {
	Type             string         `json:"type"`
	Description      string         `json:"description"`
	Params           map[string]any `json:"params"`
	EstimatedCredits int            `json:"estimated_credits"`
}

// InterpretResult 解析结果；Error 非空表示服务端给出的可读错误
type InterpretResult struct {
	Message string          `json:"message"`
	Error   string          `json:"error,omitempty"`
	Action  *ProposedAction `json:"action,omitempty"`
}

// Interpreter 助手回复解析服务
type Interpreter interface {
	Interpret(ctx context.Context, req *InterpretRequest) (*InterpretResult, error)
}
