package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"z-genstudio-api/pkg/metrics"
)

func TestChatModelCallback_RecordsTokens(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := withProvider(context.Background(), "cb-test")

	prompt := metrics.LLMTokensUsed.WithLabelValues("cb-test", "gpt-test", "prompt")
	completion := metrics.LLMTokensUsed.WithLabelValues("cb-test", "gpt-test", "completion")
	calls := metrics.LLMCallTotal.WithLabelValues("cb-test", "gpt-test", "success")
	beforePrompt, beforeCompletion, beforeCalls := testutil.ToFloat64(prompt), testutil.ToFloat64(completion), testutil.ToFloat64(calls)

	ctx = h.OnStart(ctx, nil, &model.CallbackInput{Config: &model.Config{Model: "gpt-test"}})
	h.OnEnd(ctx, nil, &model.CallbackOutput{
		Config:     &model.Config{Model: "gpt-test"},
		TokenUsage: &model.TokenUsage{PromptTokens: 120, CompletionTokens: 30},
	})

	assert.Equal(t, beforePrompt+120, testutil.ToFloat64(prompt))
	assert.Equal(t, beforeCompletion+30, testutil.ToFloat64(completion))
	assert.Equal(t, beforeCalls+1, testutil.ToFloat64(calls))
}

func TestChatModelCallback_Error(t *testing.T) {
	h := newChatModelCallbackHandler()
	failed := metrics.LLMCallTotal.WithLabelValues("default", "", "error")
	before := testutil.ToFloat64(failed)

	ctx := h.OnStart(context.Background(), nil, nil)
	h.OnError(ctx, nil, errors.New("upstream 500"))

	assert.Equal(t, before+1, testutil.ToFloat64(failed))
}

func TestProviderFromContext(t *testing.T) {
	assert.Equal(t, "default", providerFromContext(context.Background()))
	assert.Equal(t, "default", providerFromContext(withProvider(context.Background(), "")))
	assert.Equal(t, "openai", providerFromContext(withProvider(context.Background(), "openai")))
	assert.Zero(t, elapsedSeconds(context.Background()))
}
