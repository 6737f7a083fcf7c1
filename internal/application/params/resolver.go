// Package params 提供生成参数的合法取值域与默认值解析
package params

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"z-genstudio-api/internal/domain/entity"
)

var (
	ErrUnknownParam = errors.New("unknown parameter")
	ErrIllegalValue = errors.New("illegal parameter value")
)

// 参数名
const (
	ParamPrompt      = "prompt"
	ParamModel       = "model"
	ParamAspectRatio = "aspect_ratio"
	ParamDuration    = "duration"
)

// Catalog 各动作类型的合法取值，顺序即默认优先级
type Catalog struct {
	ImageModels    []string `json:"image_models"`
	AspectRatios   []string `json:"aspect_ratios"`
	VideoModels    []string `json:"video_models"`
	VideoDurations []string `json:"video_durations"`
	MusicModels    []string `json:"music_models"`
	MusicDurations []int    `json:"music_durations"`
}

// DefaultCatalog 内置目录
func DefaultCatalog() Catalog {
	return Catalog{
		ImageModels:    []string{"flux-schnell", "flux-dev", "flux-pro", "imagen-4"},
		AspectRatios:   []string{"1:1", "3:4", "4:3", "16:9", "9:16"},
		VideoModels:    []string{"veo-3-fast", "veo-3", "kling-2.1"},
		VideoDurations: []string{"4s", "6s", "8s"},
		MusicModels:    []string{"stable-audio-2"},
		MusicDurations: []int{30, 60, 120, 180},
	}
}

// Resolver 参数解析器，所有操作返回新值，不修改传入的参数
type Resolver struct {
	catalog Catalog
}

// NewResolver 创建参数解析器
func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Catalog 返回目录副本
func (r *Resolver) Catalog() Catalog {
	c := r.catalog
	c.ImageModels = slices.Clone(c.ImageModels)
	c.AspectRatios = slices.Clone(c.AspectRatios)
	c.VideoModels = slices.Clone(c.VideoModels)
	c.VideoDurations = slices.Clone(c.VideoDurations)
	c.MusicModels = slices.Clone(c.MusicModels)
	c.MusicDurations = slices.Clone(c.MusicDurations)
	return c
}

// LegalModels 按类型返回有序模型列表
func (r *Resolver) LegalModels(t entity.ActionType) []string {
	switch t {
	case entity.ActionGenerateImage:
		return slices.Clone(r.catalog.ImageModels)
	case entity.ActionGenerateVideo:
		return slices.Clone(r.catalog.VideoModels)
	case entity.ActionGenerateMusic:
		return slices.Clone(r.catalog.MusicModels)
	}
	return nil
}

// LegalAspectRatios 图片宽高比
func (r *Resolver) LegalAspectRatios() []string {
	return slices.Clone(r.catalog.AspectRatios)
}

// LegalVideoDurations 视频时长档位
func (r *Resolver) LegalVideoDurations() []string {
	return slices.Clone(r.catalog.VideoDurations)
}

// LegalMusicDurations 音乐时长档位（秒）
func (r *Resolver) LegalMusicDurations() []int {
	return slices.Clone(r.catalog.MusicDurations)
}

// Resolve 填充默认值：提出的值合法则保留，否则取合法序列的第一个
func (r *Resolver) Resolve(p entity.Params) entity.Params {
	switch v := entity.CloneParams(p).(type) {
	case entity.ImageParams:
		v.Model = pick(v.Model, r.catalog.ImageModels)
		v.AspectRatio = pick(v.AspectRatio, r.catalog.AspectRatios)
		return v
	case entity.VideoParams:
		v.Model = pick(v.Model, r.catalog.VideoModels)
		v.Duration = pick(v.Duration, r.catalog.VideoDurations)
		return v
	case entity.MusicParams:
		v.Model = pick(v.Model, r.catalog.MusicModels)
		v.Duration = pick(v.Duration, r.catalog.MusicDurations)
		return v
	}
	return nil
}

// Select 设置单个参数，返回新参数
func (r *Resolver) Select(p entity.Params, name, value string) (entity.Params, error) {
	value = strings.TrimSpace(value)
	if name == ParamPrompt {
		if value == "" {
			return nil, fmt.Errorf("%w: empty prompt", ErrIllegalValue)
		}
		return withPrompt(p, value), nil
	}

	switch v := entity.CloneParams(p).(type) {
	case entity.ImageParams:
		switch name {
		case ParamModel:
			if !slices.Contains(r.catalog.ImageModels, value) {
				return nil, illegal(name, value)
			}
			v.Model = value
		case ParamAspectRatio:
			if !slices.Contains(r.catalog.AspectRatios, value) {
				return nil, illegal(name, value)
			}
			v.AspectRatio = value
		default:
			return nil, fmt.Errorf("%w: %s for %s", ErrUnknownParam, name, v.Kind())
		}
		return v, nil
	case entity.VideoParams:
		switch name {
		case ParamModel:
			if !slices.Contains(r.catalog.VideoModels, value) {
				return nil, illegal(name, value)
			}
			v.Model = value
		case ParamDuration:
			d := entity.NormalizeVideoDuration(value)
			if !slices.Contains(r.catalog.VideoDurations, d) {
				return nil, illegal(name, value)
			}
			v.Duration = d
		default:
			return nil, fmt.Errorf("%w: %s for %s", ErrUnknownParam, name, v.Kind())
		}
		return v, nil
	case entity.MusicParams:
		switch name {
		case ParamModel:
			if !slices.Contains(r.catalog.MusicModels, value) {
				return nil, illegal(name, value)
			}
			v.Model = value
		case ParamDuration:
			d := entity.NormalizeSeconds(value)
			if !slices.Contains(r.catalog.MusicDurations, d) {
				return nil, illegal(name, value)
			}
			v.Duration = d
		default:
			return nil, fmt.Errorf("%w: %s for %s", ErrUnknownParam, name, v.Kind())
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: no params", ErrUnknownParam)
}

// Apply 依次应用多个编辑，任何一个失败则整体失败
func (r *Resolver) Apply(p entity.Params, edits map[string]string) (entity.Params, error) {
	names := make([]string, 0, len(edits))
	for name := range edits {
		names = append(names, name)
	}
	slices.Sort(names)

	cur := p
	for _, name := range names {
		next, err := r.Select(cur, name, edits[name])
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// Validate 检查参数是否全部合法且必填项齐全
func (r *Resolver) Validate(p entity.Params) error {
	if p == nil {
		return fmt.Errorf("%w: no params", ErrIllegalValue)
	}
	if strings.TrimSpace(p.PromptText()) == "" {
		return fmt.Errorf("%w: prompt is required", ErrIllegalValue)
	}
	switch v := p.(type) {
	case entity.ImageParams:
		if !slices.Contains(r.catalog.ImageModels, v.Model) {
			return illegal(ParamModel, v.Model)
		}
		if !slices.Contains(r.catalog.AspectRatios, v.AspectRatio) {
			return illegal(ParamAspectRatio, v.AspectRatio)
		}
	case entity.VideoParams:
		if v.Duration == "" {
			return fmt.Errorf("%w: video duration is required", ErrIllegalValue)
		}
		if !slices.Contains(r.catalog.VideoModels, v.Model) {
			return illegal(ParamModel, v.Model)
		}
		if !slices.Contains(r.catalog.VideoDurations, v.Duration) {
			return illegal(ParamDuration, v.Duration)
		}
	case entity.MusicParams:
		if v.Duration == 0 {
			return fmt.Errorf("%w: music duration is required", ErrIllegalValue)
		}
		if !slices.Contains(r.catalog.MusicModels, v.Model) {
			return illegal(ParamModel, v.Model)
		}
		if !slices.Contains(r.catalog.MusicDurations, v.Duration) {
			return illegal(ParamDuration, fmt.Sprint(v.Duration))
		}
	}
	return nil
}

func pick[T comparable](proposed T, legal []T) T {
	if slices.Contains(legal, proposed) {
		return proposed
	}
	var zero T
	if len(legal) == 0 {
		return zero
	}
	return legal[0]
}

func withPrompt(p entity.Params, prompt string) entity.Params {
	switch v := entity.CloneParams(p).(type) {
	case entity.ImageParams:
		v.Prompt = prompt
		return v
	case entity.VideoParams:
		v.Prompt = prompt
		return v
	case entity.MusicParams:
		v.Prompt = prompt
		return v
	}
	return p
}

func illegal(name, value string) error {
	return fmt.Errorf("%w: %s=%q", ErrIllegalValue, name, value)
}
