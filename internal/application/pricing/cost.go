// Package pricing 计算生成动作的积分成本
// 所有函数都是纯函数，相同参数总是得到相同结果
package pricing

import (
	"errors"
	"fmt"

	"z-genstudio-api/internal/domain/entity"
)

// ErrUnpriced 参数组合不在价目表中
var ErrUnpriced = errors.New("no price for parameters")

var imagePrices = map[string]int{
	"flux-schnell": 2,
	"flux-dev":     5,
	"flux-pro":     8,
	"imagen-4":     10,
}

// 视频价格按 (模型, 时长) 查表，每个模型独立
var videoPrices = map[string]map[string]int{
	"veo-3-fast": {"4s": 40, "6s": 60, "8s": 80},
	"veo-3":      {"4s": 100, "6s": 150, "8s": 200},
	"kling-2.1":  {"4s": 30, "6s": 45, "8s": 60},
}

var musicPrices = map[int]int{
	30:  10,
	60:  18,
	120: 32,
	180: 45,
}

// ImageCost 图片按模型平价，宽高比不影响价格
func ImageCost(model string) (int, error) {
	if c, ok := imagePrices[model]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("%w: image model %q", ErrUnpriced, model)
}

// VideoCost 视频按时长和模型计价
func VideoCost(duration, model string) (int, error) {
	if tiers, ok := videoPrices[model]; ok {
		if c, ok := tiers[duration]; ok {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: video %q on %q", ErrUnpriced, duration, model)
}

// MusicCost 音乐按时长档位计价
func MusicCost(seconds int) (int, error) {
	if c, ok := musicPrices[seconds]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("%w: music %ds", ErrUnpriced, seconds)
}

// Estimate 按参数变体计算成本
func Estimate(p entity.Params) (int, error) {
	switch v := p.(type) {
	case entity.ImageParams:
		return ImageCost(v.Model)
	case entity.VideoParams:
		return VideoCost(v.Duration, v.Model)
	case entity.MusicParams:
		return MusicCost(v.Duration)
	case nil:
		return 0, fmt.Errorf("%w: missing params", ErrUnpriced)
	}
	return 0, fmt.Errorf("%w: %T", ErrUnpriced, p)
}

// PriceList 价目表快照，供目录接口展示
type PriceList struct {
	Image map[string]int            `json:"image"`
	Video map[string]map[string]int `json:"video"`
	Music map[int]int               `json:"music"`
}

// Prices 返回价目表副本
func Prices() PriceList {
	pl := PriceList{
		Image: make(map[string]int, len(imagePrices)),
		Video: make(map[string]map[string]int, len(videoPrices)),
		Music: make(map[int]int, len(musicPrices)),
	}
	for k, v := range imagePrices {
		pl.Image[k] = v
	}
	for model, tiers := range videoPrices {
		cp := make(map[string]int, len(tiers))
		for d, c := range tiers {
			cp[d] = c
		}
		pl.Video[model] = cp
	}
	for k, v := range musicPrices {
		pl.Music[k] = v
	}
	return pl
}
