package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-genstudio-api/internal/domain/service"
)

type chatReply struct {
	content string
	err     error
}

type fakeChatModel struct {
	mu      sync.Mutex
	replies []chatReply
	inputs  [][]*schema.Message
	optLens []int
}

func (f *fakeChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	f.optLens = append(f.optLens, len(opts))
	if len(f.replies) == 0 {
		return nil, errors.New("no reply scripted")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return schema.AssistantMessage(r.content, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

type fakeFactory struct {
	m   model.BaseChatModel
	err error
}

func (f fakeFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	return f.m, f.err
}

func TestInterpreter_ProposesAction(t *testing.T) {
	cm := &fakeChatModel{replies: []chatReply{{content: "```json\n" +
		`{"message":"A sunset it is.","error":"","action":{"type":"generate_image","description":"Sunset over the sea","params":{"prompt":"sunset over the sea","aspect_ratio":"16:9"},"estimated_credits":2}}` +
		"\n```"}}}
	in := NewInterpreter(fakeFactory{m: cm}, "")

	res, err := in.Interpret(context.Background(), &service.InterpretRequest{
		Text: "make me a sunset",
		History: []service.HistoryEntry{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
		Context:     service.InterpretContext{WalletID: "w1", Credits: 100},
		Attachments: []string{"data:image/png;base64,AAAA"},
	})
	require.NoError(t, err)
	assert.Equal(t, "A sunset it is.", res.Message)
	require.NotNil(t, res.Action)
	assert.Equal(t, "generate_image", res.Action.Type)
	assert.Equal(t, "16:9", res.Action.Params["aspect_ratio"])
	assert.Equal(t, 2, res.Action.EstimatedCredits)

	require.Len(t, cm.inputs, 1)
	msgs := cm.inputs[0]
	require.Len(t, msgs, 4)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, schema.Assistant, msgs[2].Role)
	assert.Contains(t, msgs[3].Content, "make me a sunset")
	assert.Contains(t, msgs[3].Content, "100 credits")
	assert.Contains(t, msgs[3].Content, "1 image attached")
	assert.Equal(t, []int{1}, cm.optLens)
}

func TestInterpreter_FallsBackWhenJSONModeRejected(t *testing.T) {
	cm := &fakeChatModel{replies: []chatReply{
		{err: errors.New("400 unknown parameter: response_format")},
		{content: `{"message":"Sure, what style?","action":null}`},
	}}
	in := NewInterpreter(fakeFactory{m: cm}, "openai")

	res, err := in.Interpret(context.Background(), &service.InterpretRequest{Text: "draw something"})
	require.NoError(t, err)
	assert.Equal(t, "Sure, what style?", res.Message)
	assert.Nil(t, res.Action)
	assert.Equal(t, []int{1, 0}, cm.optLens)
}

func TestInterpreter_TransportErrorSurfaces(t *testing.T) {
	cm := &fakeChatModel{replies: []chatReply{{err: errors.New("connection refused")}}}
	in := NewInterpreter(fakeFactory{m: cm}, "")

	_, err := in.Interpret(context.Background(), &service.InterpretRequest{Text: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	_, err = NewInterpreter(fakeFactory{err: errors.New("provider x not found")}, "x").
		Interpret(context.Background(), &service.InterpretRequest{Text: "hello"})
	assert.Error(t, err)
}

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    *service.InterpretResult
	}{
		{
			name:    "plain text reply",
			content: "  just chatting  ",
			want:    &service.InterpretResult{Message: "just chatting"},
		},
		{
			name:    "service error",
			content: `{"message":"","error":"content policy violation"}`,
			want:    &service.InterpretResult{Error: "content policy violation"},
		},
		{
			name:    "empty action type is no action",
			content: `{"message":"ok","action":{"type":"  "}}`,
			want:    &service.InterpretResult{Message: "ok"},
		},
		{
			name:    "action without params",
			content: `prefix {"message":"ok","action":{"type":"generate_music"}} suffix`,
			want: &service.InterpretResult{Message: "ok", Action: &service.ProposedAction{
				Type:   "generate_music",
				Params: map[string]any{},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseEnvelope(tt.content))
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a":{"b":1}}`, ExtractJSONObject("noise {\"a\":{\"b\":1}} trailing } brace"))
	assert.Equal(t, "no json", ExtractJSONObject(" no json "))
	assert.True(t, IsResponseFormatUnsupportedError(errors.New("Invalid value for response_format")))
	assert.False(t, IsResponseFormatUnsupportedError(errors.New("timeout")))
	assert.False(t, IsResponseFormatUnsupportedError(nil))
}
