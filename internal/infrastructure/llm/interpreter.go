// Package llm 基于 Eino 的助手意图解析
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/internal/domain/service"
	"z-genstudio-api/pkg/logger"
	"z-genstudio-api/pkg/tracer"
)

// Interpreter 以 Eino Chain 实现 service.Interpreter
type Interpreter struct {
	factory  ChatModelFactory
	provider string

	chainOnce sync.Once
	chain     compose.Runnable[*service.InterpretRequest, *service.InterpretResult]
	chainErr  error
}

var _ service.Interpreter = (*Interpreter)(nil)

// NewInterpreter provider 为空时使用工厂默认提供商
func NewInterpreter(factory ChatModelFactory, provider string) *Interpreter {
	return &Interpreter{factory: factory, provider: strings.TrimSpace(provider)}
}

// Interpret 调用失败（含超时）原样返回错误，由调用方按传输错误处理
func (i *Interpreter) Interpret(ctx context.Context, req *service.InterpretRequest) (*service.InterpretResult, error) {
	if i == nil || i.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if req == nil {
		return nil, fmt.Errorf("input is nil")
	}

	ctx, span := tracer.Start(ctx, "llm.interpret")
	defer span.End()

	chain, err := i.getChain()
	if err != nil {
		return nil, err
	}
	return chain.Invoke(withProvider(ctx, i.provider), req)
}

type interpretChainState struct {
	In       *service.InterpretRequest
	Messages []*schema.Message
	OutMsg   *schema.Message
}

func (i *Interpreter) getChain() (compose.Runnable[*service.InterpretRequest, *service.InterpretResult], error) {
	i.chainOnce.Do(func() {
		i.chain, i.chainErr = i.buildChain(context.Background())
	})
	return i.chain, i.chainErr
}

func (i *Interpreter) buildChain(ctx context.Context) (compose.Runnable[*service.InterpretRequest, *service.InterpretResult], error) {
	chain := compose.NewChain[*service.InterpretRequest, *service.InterpretResult]()

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, in *service.InterpretRequest) (*interpretChainState, error) {
			msgs, err := formatInterpretMessages(ctx, in)
			if err != nil {
				return nil, err
			}
			return &interpretChainState{In: in, Messages: msgs}, nil
		}),
		compose.WithNodeName("interpret.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *interpretChainState) (*interpretChainState, error) {
			chatModel, err := i.factory.Get(ctx, i.provider)
			if err != nil {
				return nil, err
			}

			outMsg, err := chatModel.Generate(ctx, st.Messages, buildInterpretModelOptions(st.In, true)...)
			if err != nil && IsResponseFormatUnsupportedError(err) {
				logger.Warn(ctx, "llm json response_format not supported, fallback to prompt-only",
					"provider", i.provider,
					"model", st.In.ModelID,
					"error", err.Error(),
				)
				outMsg, err = chatModel.Generate(ctx, st.Messages, buildInterpretModelOptions(st.In, false)...)
			}
			if err != nil {
				return nil, err
			}
			if outMsg == nil {
				return nil, fmt.Errorf("empty llm response")
			}
			st.OutMsg = outMsg
			return st, nil
		}),
		compose.WithNodeName("interpret.llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *interpretChainState) (*service.InterpretResult, error) {
			return ParseEnvelope(st.OutMsg.Content), nil
		}),
		compose.WithNodeName("interpret.parse"),
	)

	return chain.Compile(ctx)
}

func formatInterpretMessages(ctx context.Context, in *service.InterpretRequest) ([]*schema.Message, error) {
	tpl, err := defaultPromptRegistry.ChatTemplate(PromptInterpretV1)
	if err != nil {
		return nil, err
	}
	history := make([]*schema.Message, 0, len(in.History))
	for _, h := range in.History {
		switch h.Role {
		case string(entity.RoleAssistant):
			history = append(history, schema.AssistantMessage(h.Content, nil))
		case string(entity.RoleUser):
			history = append(history, schema.UserMessage(h.Content))
		}
	}
	vars := map[string]any{
		historyPlaceholder:  history,
		"credits":           strconv.Itoa(in.Context.Credits),
		"attachments_block": attachmentsBlock(len(in.Attachments)),
		"text":              strings.TrimSpace(in.Text),
	}
	return tpl.Format(ctx, vars)
}

func attachmentsBlock(n int) string {
	switch n {
	case 0:
		return "none"
	case 1:
		return "1 image attached, pass it through reference_images"
	default:
		return fmt.Sprintf("%d images attached, pass them through reference_images", n)
	}
}

func buildInterpretModelOptions(in *service.InterpretRequest, jsonMode bool) []model.Option {
	opts := make([]model.Option, 0, 2)
	if m := strings.TrimSpace(in.ModelID); m != "" {
		opts = append(opts, model.WithModel(m))
	}
	if jsonMode {
		opts = append(opts, openaiopts.WithExtraFields(map[string]any{
			"response_format": map[string]any{"type": "json_object"},
		}))
	}
	return opts
}

type envelope struct {
	Message string                  `json:"message"`
	Error   string                  `json:"error"`
	Action  *service.ProposedAction `json:"action"`
}

// ParseEnvelope 解析模型输出；无法解析为 JSON 时整段文本作为普通回复
func ParseEnvelope(content string) *service.InterpretResult {
	raw := ExtractJSONObject(content)
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return &service.InterpretResult{Message: strings.TrimSpace(content)}
	}

	res := &service.InterpretResult{
		Message: strings.TrimSpace(env.Message),
		Error:   strings.TrimSpace(env.Error),
	}
	if env.Action != nil && strings.TrimSpace(env.Action.Type) != "" {
		a := *env.Action
		a.Type = strings.TrimSpace(a.Type)
		if a.Params == nil {
			a.Params = map[string]any{}
		}
		res.Action = &a
	}
	return res
}
