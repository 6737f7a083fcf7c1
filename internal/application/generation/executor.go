// Package generation 把已确认的动作分派给对应的生成服务
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/internal/domain/service"
	"z-genstudio-api/pkg/logger"
	"z-genstudio-api/pkg/metrics"
	"z-genstudio-api/pkg/tracer"
)

// ErrNoResult 调用成功但没有可用结果
var ErrNoResult = errors.New("generation returned no result")

// ErrNoGenerator 未配置该类型的生成服务
var ErrNoGenerator = errors.New("no generator for action type")

// NoResultError 生成服务没有返回任何 URL
type NoResultError struct {
	Type entity.ActionType
}

func (e NoResultError) Error() string {
	switch e.Type {
	case entity.ActionGenerateMusic:
		return "no audio URL returned"
	case entity.ActionGenerateVideo:
		return "no video URL returned"
	}
	return "no image URL returned"
}

func (e NoResultError) Is(target error) bool {
	return target == ErrNoResult
}

// Executor 生成执行器；调用方保证同一会话同时只有一个执行
type Executor struct {
	generators map[entity.ActionType]service.Generator
	timeout    time.Duration
}

// NewExecutor 创建执行器，timeout<=0 表示不限时
func NewExecutor(image, video, music service.Generator, timeout time.Duration) *Executor {
	gens := make(map[entity.ActionType]service.Generator, 3)
	if image != nil {
		gens[entity.ActionGenerateImage] = image
	}
	if video != nil {
		gens[entity.ActionGenerateVideo] = video
	}
	if music != nil {
		gens[entity.ActionGenerateMusic] = music
	}
	return &Executor{generators: gens, timeout: timeout}
}

// Execute 按动作类型调用生成服务
func (e *Executor) Execute(ctx context.Context, walletID string, action *entity.PendingAction) (*entity.GeneratedContent, error) {
	gen, ok := e.generators[action.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGenerator, action.Type)
	}

	model := ModelOf(action.Params)
	ctx, span := tracer.Start(ctx, "generation.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("generation.type", action.Type.Short()),
		attribute.String("generation.model", model),
		attribute.Int("generation.estimated_credits", action.EstimatedCredits),
	)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := gen.Generate(ctx, &service.GenerateRequest{
		WalletID: walletID,
		Params:   entity.CloneParams(action.Params),
	})
	if err == nil && (res == nil || len(res.URLs) == 0) {
		err = NoResultError{Type: action.Type}
	}
	metrics.GenerationDuration.WithLabelValues(action.Type.Short()).Observe(time.Since(start).Seconds())

	if err != nil {
		kind := Classify(err)
		metrics.GenerationTotal.WithLabelValues(action.Type.Short(), model, string(kind)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error(ctx, "generation failed", err,
			"type", action.Type,
			"model", model,
			"error_kind", kind,
		)
		return nil, err
	}

	metrics.GenerationTotal.WithLabelValues(action.Type.Short(), model, "success").Inc()
	logger.Info(ctx, "generation succeeded",
		"type", action.Type,
		"model", model,
		"urls", len(res.URLs),
		"credits_used", res.CreditsUsed,
	)

	return &entity.GeneratedContent{
		Type:             action.Type,
		URLs:             append([]string(nil), res.URLs...),
		CreditsUsed:      res.CreditsUsed,
		RemainingCredits: copyInt(res.RemainingCredits),
	}, nil
}

// Classify 把执行错误映射到 Turn 级错误分类
func Classify(err error) entity.ErrorKind {
	if err == nil {
		return entity.ErrorKindNone
	}
	var pe *service.ProviderError
	switch {
	case errors.Is(err, ErrNoResult):
		return entity.ErrorKindProvider
	case errors.As(err, &pe):
		if pe.InsufficientCredit {
			return entity.ErrorKindInsufficientCredit
		}
		return entity.ErrorKindProvider
	case errors.Is(err, ErrNoGenerator):
		return entity.ErrorKindValidation
	}
	return entity.ErrorKindTransport
}

// Message 面向用户的错误文本，服务端给出的信息原样透出
func Message(err error) string {
	var pe *service.ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "generation timed out"
	}
	return err.Error()
}

// ModelOf 提取参数中的模型名
func ModelOf(p entity.Params) string {
	switch v := p.(type) {
	case entity.ImageParams:
		return v.Model
	case entity.VideoParams:
		return v.Model
	case entity.MusicParams:
		return v.Model
	}
	return ""
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
