// Package provider 提供生成服务 HTTP 客户端
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"z-genstudio-api/internal/config"
	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/internal/domain/service"
)

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 64 << 10

// Client 单一类型的生成服务客户端，超时由调用方 context 控制
type Client struct {
	kind       entity.ActionType
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

var _ service.Generator = (*Client)(nil)

type generateRequest struct {
	WalletID        string   `json:"wallet_id"`
	Prompt          string   `json:"prompt"`
	Model           string   `json:"model,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	Duration        any      `json:"duration,omitempty"`
	ReferenceImages []string `json:"reference_images,omitempty"`
}

type generateResponse struct {
	URLs             []string `json:"urls"`
	URL              string   `json:"url"`
	CreditsUsed      int      `json:"credits_used"`
	RemainingCredits *int     `json:"remaining_credits"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewClient httpClient 为空时使用无超时的默认客户端
func NewClient(kind entity.ActionType, cfg config.GenerationEndpointConfig, httpClient *http.Client) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("%s endpoint is empty", kind)
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid %s endpoint: %w", kind, err)
	}
	if cfg.Path != "" {
		u = u.JoinPath(cfg.Path)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		kind:       kind,
		endpoint:   u.String(),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// Generate 网络错误与 5xx 返回普通错误，其余拒绝返回 *service.ProviderError
func (c *Client) Generate(ctx context.Context, req *service.GenerateRequest) (*service.GenerateResult, error) {
	if req == nil || req.Params == nil {
		return nil, fmt.Errorf("generate request is nil")
	}
	if req.Params.Kind() != c.kind {
		return nil, fmt.Errorf("%s client cannot serve %s", c.kind, req.Params.Kind())
	}

	reqBody, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.kind.Short(), err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return nil, fmt.Errorf("%s service unavailable: status=%d", c.kind.Short(), httpResp.StatusCode)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, rejection(httpResp)
	}

	var resp generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &service.ProviderError{
			StatusCode: httpResp.StatusCode,
			Message:    "invalid response from generation service",
		}
	}
	urls := resp.URLs
	if len(urls) == 0 && resp.URL != "" {
		urls = []string{resp.URL}
	}
	return &service.GenerateResult{
		URLs:             urls,
		CreditsUsed:      resp.CreditsUsed,
		RemainingCredits: resp.RemainingCredits,
	}, nil
}

func buildRequest(req *service.GenerateRequest) *generateRequest {
	out := &generateRequest{WalletID: req.WalletID, Prompt: req.Params.PromptText()}
	switch p := req.Params.(type) {
	case entity.ImageParams:
		out.Model, out.AspectRatio, out.ReferenceImages = p.Model, p.AspectRatio, p.ReferenceImages
	case entity.VideoParams:
		out.Model, out.Duration, out.ReferenceImages = p.Model, p.Duration, p.ReferenceImages
	case entity.MusicParams:
		out.Model, out.Duration = p.Model, p.Duration
	}
	return out
}

func rejection(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		if er.Error != "" {
			msg = er.Error
		} else if er.Message != "" {
			msg = er.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &service.ProviderError{
		StatusCode:         resp.StatusCode,
		Message:            msg,
		InsufficientCredit: resp.StatusCode == http.StatusPaymentRequired,
	}
}
