package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeParams(t *testing.T) {
	testCases := []struct {
		name     string
		typ      ActionType
		raw      map[string]any
		expected Params
	}{
		{
			name: "image with camel case aspect ratio",
			typ:  ActionGenerateImage,
			raw:  map[string]any{"prompt": " a sunset ", "model": "flux-pro", "aspectRatio": "16:9"},
			expected: ImageParams{
				Prompt:      "a sunset",
				Model:       "flux-pro",
				AspectRatio: "16:9",
			},
		},
		{
			name: "image reference urls from loose array",
			typ:  ActionGenerateImage,
			raw:  map[string]any{"prompt": "p", "image_urls": []any{"data:image/png;base64,AA", 3, ""}},
			expected: ImageParams{
				Prompt:          "p",
				ReferenceImages: []string{"data:image/png;base64,AA"},
			},
		},
		{
			name:     "video numeric duration",
			typ:      ActionGenerateVideo,
			raw:      map[string]any{"prompt": "waves", "model": "veo-3", "duration": float64(8)},
			expected: VideoParams{Prompt: "waves", Model: "veo-3", Duration: "8s"},
		},
		{
			name:     "video labelled duration",
			typ:      ActionGenerateVideo,
			raw:      map[string]any{"prompt": "waves", "duration": "6s"},
			expected: VideoParams{Prompt: "waves", Duration: "6s"},
		},
		{
			name:     "music string seconds",
			typ:      ActionGenerateMusic,
			raw:      map[string]any{"prompt": "lofi", "duration_seconds": "120"},
			expected: MusicParams{Prompt: "lofi", Duration: 120},
		},
		{
			name:     "music fractional duration is dropped",
			typ:      ActionGenerateMusic,
			raw:      map[string]any{"prompt": "lofi", "duration": 12.5},
			expected: MusicParams{Prompt: "lofi"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeParams(tc.typ, tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
			assert.Equal(t, tc.typ, got.Kind())
		})
	}
}

func TestDecodeParams_UnknownType(t *testing.T) {
	_, err := DecodeParams("generate_poem", map[string]any{})
	assert.Error(t, err)
}

func TestPendingActionClone_IsDeep(t *testing.T) {
	orig := &PendingAction{
		Type:   ActionGenerateImage,
		Params: ImageParams{Prompt: "p", ReferenceImages: []string{"a"}},
	}
	cp := orig.Clone()
	img := cp.Params.(ImageParams)
	img.ReferenceImages[0] = "b"

	assert.Equal(t, "a", orig.Params.(ImageParams).ReferenceImages[0])
}

func TestTurnTerminalAndRetryable(t *testing.T) {
	turn := NewLoadingTurn("")
	assert.False(t, turn.IsTerminal())

	turn.IsLoading = false
	turn.Error = "connection reset"
	turn.ErrorKind = ErrorKindTransport
	assert.True(t, turn.IsTerminal())
	assert.True(t, turn.Retryable())

	turn.ErrorKind = ErrorKindProvider
	assert.False(t, turn.Retryable())
}

func TestPendingAction_JSONRoundTrip(t *testing.T) {
	actions := []*PendingAction{
		{
			Type:             ActionGenerateImage,
			Description:      "sunset poster",
			Params:           ImageParams{Prompt: "sunset", Model: "flux-dev", AspectRatio: "16:9", ReferenceImages: []string{"data:image/png;base64,AA"}},
			EstimatedCredits: 5,
		},
		{
			Type:             ActionGenerateVideo,
			Params:           VideoParams{Prompt: "waves", Model: "veo-3", Duration: "6s"},
			EstimatedCredits: 150,
		},
		{
			Type:             ActionGenerateMusic,
			Params:           MusicParams{Prompt: "lofi", Model: "stable-audio-2", Duration: 60},
			EstimatedCredits: 18,
		},
	}
	for _, a := range actions {
		t.Run(string(a.Type), func(t *testing.T) {
			data, err := json.Marshal(a)
			require.NoError(t, err)

			var got PendingAction
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, *a, got)
			assert.Equal(t, a.Type, got.Params.Kind())
		})
	}
}

func TestPendingAction_UnmarshalInsideTurn(t *testing.T) {
	data := []byte(`{"id":"t1","role":"assistant","pending_action":{"type":"generate_image","params":{"prompt":"cat"},"estimated_credits":2}}`)

	var turn Turn
	require.NoError(t, json.Unmarshal(data, &turn))
	require.NotNil(t, turn.PendingAction)
	assert.Equal(t, ImageParams{Prompt: "cat"}, turn.PendingAction.Params)
}

func TestPendingAction_UnmarshalErrors(t *testing.T) {
	var a PendingAction
	assert.Error(t, json.Unmarshal([]byte(`{"type":"generate_poem","params":{}}`), &a))
	assert.Error(t, json.Unmarshal([]byte(`{"type":"generate_music","params":{"duration":"long"}}`), &a))

	require.NoError(t, json.Unmarshal([]byte(`{"type":"generate_music"}`), &a))
	assert.Nil(t, a.Params)
}
