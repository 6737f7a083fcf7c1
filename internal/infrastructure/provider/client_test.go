package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-genstudio-api/internal/config"
	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/internal/domain/service"
)

func newTestClient(t *testing.T, kind entity.ActionType, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(kind, config.GenerationEndpointConfig{
		BaseURL: srv.URL,
		Path:    "/v1/generate/" + kind.Short(),
		APIKey:  "secret",
	}, srv.Client())
	require.NoError(t, err)
	return c
}

func TestGenerate_Success(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, entity.ActionGenerateVideo, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/generate/video", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"url":"https://cdn/v.mp4","credits_used":100,"remaining_credits":400}`))
	})

	res, err := c.Generate(context.Background(), &service.GenerateRequest{
		WalletID: "w1",
		Params:   entity.VideoParams{Prompt: "waves", Model: "veo-3", Duration: "4s"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/v.mp4"}, res.URLs)
	assert.Equal(t, 100, res.CreditsUsed)
	require.NotNil(t, res.RemainingCredits)
	assert.Equal(t, 400, *res.RemainingCredits)
	assert.Equal(t, "w1", got["wallet_id"])
	assert.Equal(t, "4s", got["duration"])
	assert.Equal(t, "veo-3", got["model"])
}

func TestGenerate_RemainingCreditsOmitted(t *testing.T) {
	c := newTestClient(t, entity.ActionGenerateImage, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"urls":["https://cdn/i.png"],"credits_used":2}`))
	})

	res, err := c.Generate(context.Background(), &service.GenerateRequest{
		WalletID: "w1",
		Params:   entity.ImageParams{Prompt: "cat"},
	})
	require.NoError(t, err)
	assert.Nil(t, res.RemainingCredits)
	assert.Equal(t, 2, res.CreditsUsed)
}

func TestGenerate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantProvider bool
		wantMessage  string
		wantCredit   bool
	}{
		{name: "payment required", status: http.StatusPaymentRequired, body: `{"error":"Not enough credits"}`, wantProvider: true, wantMessage: "Not enough credits", wantCredit: true},
		{name: "bad request", status: http.StatusBadRequest, body: `{"message":"prompt rejected by safety filter"}`, wantProvider: true, wantMessage: "prompt rejected by safety filter"},
		{name: "plain text rejection", status: http.StatusUnprocessableEntity, body: "unsupported model", wantProvider: true, wantMessage: "unsupported model"},
		{name: "empty rejection", status: http.StatusForbidden, wantProvider: true, wantMessage: "Forbidden"},
		{name: "server error is transport", status: http.StatusBadGateway, body: "upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, entity.ActionGenerateImage, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Generate(context.Background(), &service.GenerateRequest{
				WalletID: "w1",
				Params:   entity.ImageParams{Prompt: "cat"},
			})
			require.Error(t, err)

			var pe *service.ProviderError
			if !tt.wantProvider {
				assert.False(t, errors.As(err, &pe))
				return
			}
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.wantMessage, pe.Message)
			assert.Equal(t, tt.wantCredit, pe.InsufficientCredit)
		})
	}
}

func TestGenerate_RejectsMismatchedKind(t *testing.T) {
	c := newTestClient(t, entity.ActionGenerateMusic, func(w http.ResponseWriter, r *http.Request) {
		assert.Fail(t, "server must not be called")
	})
	_, err := c.Generate(context.Background(), &service.GenerateRequest{Params: entity.ImageParams{Prompt: "x"}})
	assert.Error(t, err)
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(entity.ActionGenerateImage, config.GenerationEndpointConfig{}, nil)
	assert.Error(t, err)
}
