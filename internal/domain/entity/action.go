package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ActionType 待执行动作类型
type ActionType string

const (
	ActionGenerateImage ActionType = "generate_image"
	ActionGenerateVideo ActionType = "generate_video"
	ActionGenerateMusic ActionType = "generate_music"
)

// Valid 是否为已知类型
func (t ActionType) Valid() bool {
	switch t {
	case ActionGenerateImage, ActionGenerateVideo, ActionGenerateMusic:
		return true
	}
	return false
}

// Short 用于指标标签和用量事件的短名
func (t ActionType) Short() string {
	return strings.TrimPrefix(string(t), "generate_")
}

// ActionState 待执行动作的生命周期状态
type ActionState string

const (
	ActionStateProposed  ActionState = "proposed"
	ActionStateConfirmed ActionState = "confirmed"
	ActionStateExecuting ActionState = "executing"
	ActionStateComplete  ActionState = "complete"
	ActionStateFailed    ActionState = "failed"
	ActionStateCancelled ActionState = "cancelled"
)

// IsTerminal 是否为终态
func (s ActionState) IsTerminal() bool {
	switch s {
	case ActionStateComplete, ActionStateFailed, ActionStateCancelled:
		return true
	}
	return false
}

// Params 按动作类型区分的参数，只有本包内的三种变体实现它
type Params interface {
	Kind() ActionType
	PromptText() string
	isParams()
}

// ImageParams 图片生成参数
type ImageParams struct {
	Prompt          string   `json:"prompt"`
	Model           string   `json:"model,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	ReferenceImages []string `json:"reference_images,omitempty"`
}

// VideoParams 视频生成参数，Duration 形如 "4s"
type VideoParams struct {
	Prompt          string   `json:"prompt"`
	Model           string   `json:"model,omitempty"`
	Duration        string   `json:"duration,omitempty"`
	ReferenceImages []string `json:"reference_images,omitempty"`
}

// MusicParams 音乐生成参数，Duration 单位秒
type MusicParams struct {
	Prompt   string `json:"prompt"`
	Model    string `json:"model,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

func (ImageParams) Kind() ActionType { return ActionGenerateImage }
func (VideoParams) Kind() ActionType { return ActionGenerateVideo }
func (MusicParams) Kind() ActionType { return ActionGenerateMusic }

func (p ImageParams) PromptText() string { return p.Prompt }
func (p VideoParams) PromptText() string { return p.Prompt }
func (p MusicParams) PromptText() string { return p.Prompt }

func (ImageParams) isParams() {}
func (VideoParams) isParams() {}
func (MusicParams) isParams() {}

// CloneParams 深拷贝参数
func CloneParams(p Params) Params {
	switch v := p.(type) {
	case ImageParams:
		v.ReferenceImages = append([]string(nil), v.ReferenceImages...)
		return v
	case VideoParams:
		v.ReferenceImages = append([]string(nil), v.ReferenceImages...)
		return v
	case MusicParams:
		return v
	}
	return nil
}

// PendingAction 助手提出、尚未执行的生成请求
type PendingAction struct {
	Type             ActionType `json:"type"`
	Description      string     `json:"description"`
	Params           Params     `json:"params"`
	EstimatedCredits int        `json:"estimated_credits"`
}

// Clone 深拷贝
func (a *PendingAction) Clone() *PendingAction {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Params = CloneParams(a.Params)
	return &cp
}

// UnmarshalJSON 先读 type，再按类型解码 params 变体
func (a *PendingAction) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type             ActionType      `json:"type"`
		Description      string          `json:"description"`
		Params           json.RawMessage `json:"params"`
		EstimatedCredits int             `json:"estimated_credits"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	var params Params
	if len(wire.Params) > 0 && string(wire.Params) != "null" {
		var err error
		switch wire.Type {
		case ActionGenerateImage:
			var v ImageParams
			err = json.Unmarshal(wire.Params, &v)
			params = v
		case ActionGenerateVideo:
			var v VideoParams
			err = json.Unmarshal(wire.Params, &v)
			params = v
		case ActionGenerateMusic:
			var v MusicParams
			err = json.Unmarshal(wire.Params, &v)
			params = v
		default:
			return fmt.Errorf("unknown action type %q", wire.Type)
		}
		if err != nil {
			return fmt.Errorf("decode %s params: %w", wire.Type, err)
		}
	}

	*a = PendingAction{
		Type:             wire.Type,
		Description:      wire.Description,
		Params:           params,
		EstimatedCredits: wire.EstimatedCredits,
	}
	return nil
}

// DecodeParams 把解析服务返回的松散 map 转成类型化参数
// 无法识别的字段置为零值，由参数解析器补默认值
func DecodeParams(t ActionType, raw map[string]any) (Params, error) {
	switch t {
	case ActionGenerateImage:
		return ImageParams{
			Prompt:          stringField(raw, "prompt"),
			Model:           stringField(raw, "model"),
			AspectRatio:     stringField(raw, "aspect_ratio", "aspectRatio"),
			ReferenceImages: stringsField(raw, "reference_images", "referenceImages", "image_urls"),
		}, nil
	case ActionGenerateVideo:
		return VideoParams{
			Prompt:          stringField(raw, "prompt"),
			Model:           stringField(raw, "model"),
			Duration:        NormalizeVideoDuration(anyField(raw, "duration")),
			ReferenceImages: stringsField(raw, "reference_images", "referenceImages", "image_urls"),
		}, nil
	case ActionGenerateMusic:
		return MusicParams{
			Prompt:   stringField(raw, "prompt"),
			Model:    stringField(raw, "model"),
			Duration: NormalizeSeconds(anyField(raw, "duration", "duration_seconds", "durationSeconds")),
		}, nil
	}
	return nil, fmt.Errorf("unknown action type %q", t)
}

// NormalizeVideoDuration 把 8、"8"、"8s" 统一成 "8s"，无法解析返回空串
func NormalizeVideoDuration(v any) string {
	n := NormalizeSeconds(v)
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n) + "s"
}

// NormalizeSeconds 把数字或 "60"、"60s" 解析成秒数，无法解析返回 0
func NormalizeSeconds(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		if x != math.Trunc(x) {
			return 0
		}
		return int(x)
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(strings.ToLower(x)), "s")
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func anyField(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringField(raw map[string]any, keys ...string) string {
	if s, ok := anyField(raw, keys...).(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func stringsField(raw map[string]any, keys ...string) []string {
	switch v := anyField(raw, keys...).(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
