package entity

// GeneratedContent 一次生成的结果，挂到 Turn 后不再修改
type GeneratedContent struct {
	Type             ActionType `json:"type"`
	URLs             []string   `json:"urls"`
	CreditsUsed      int        `json:"credits_used"`
	RemainingCredits *int       `json:"remaining_credits,omitempty"`
}

// Clone 深拷贝
func (g *GeneratedContent) Clone() *GeneratedContent {
	if g == nil {
		return nil
	}
	cp := *g
	cp.URLs = append([]string(nil), g.URLs...)
	if g.RemainingCredits != nil {
		v := *g.RemainingCredits
		cp.RemainingCredits = &v
	}
	return &cp
}
