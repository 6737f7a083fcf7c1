package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/internal/domain/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeGenerator struct {
	res   *service.GenerateResult
	err   error
	block bool
	got   *service.GenerateRequest
}

func (f *fakeGenerator) Generate(ctx context.Context, req *service.GenerateRequest) (*service.GenerateResult, error) {
	f.got = req
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.res, f.err
}

func TestExecute_DispatchesByType(t *testing.T) {
	img := &fakeGenerator{res: &service.GenerateResult{URLs: []string{"https://cdn/img.png"}, CreditsUsed: 2, RemainingCredits: credits(98)}}
	vid := &fakeGenerator{}
	mus := &fakeGenerator{}
	e := NewExecutor(img, vid, mus, time.Second)

	out, err := e.Execute(context.Background(), "w1", &entity.PendingAction{
		Type:   entity.ActionGenerateImage,
		Params: entity.ImageParams{Prompt: "sunset", Model: "flux-schnell", AspectRatio: "1:1"},
	})
	require.NoError(t, err)

	assert.Equal(t, &entity.GeneratedContent{
		Type:             entity.ActionGenerateImage,
		URLs:             []string{"https://cdn/img.png"},
		CreditsUsed:      2,
		RemainingCredits: credits(98),
	}, out)
	require.NotNil(t, img.got)
	assert.Equal(t, "w1", img.got.WalletID)
	assert.Nil(t, vid.got)
	assert.Nil(t, mus.got)
}

func TestExecute_MusicWithoutAudioURL(t *testing.T) {
	mus := &fakeGenerator{res: &service.GenerateResult{RemainingCredits: credits(40)}}
	e := NewExecutor(nil, nil, mus, 0)

	_, err := e.Execute(context.Background(), "w1", &entity.PendingAction{
		Type:   entity.ActionGenerateMusic,
		Params: entity.MusicParams{Prompt: "lofi", Model: "stable-audio-2", Duration: 30},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoResult)
	assert.Equal(t, "no audio URL returned", Message(err))
	assert.Equal(t, entity.ErrorKindProvider, Classify(err))
}

func TestExecute_TimeoutIsTransport(t *testing.T) {
	vid := &fakeGenerator{block: true}
	e := NewExecutor(nil, vid, nil, 20*time.Millisecond)

	_, err := e.Execute(context.Background(), "w1", &entity.PendingAction{
		Type:   entity.ActionGenerateVideo,
		Params: entity.VideoParams{Prompt: "p", Model: "veo-3", Duration: "4s"},
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, entity.ErrorKindTransport, Classify(err))
	assert.Equal(t, "generation timed out", Message(err))
}

func TestExecute_MissingGenerator(t *testing.T) {
	e := NewExecutor(nil, nil, nil, 0)
	_, err := e.Execute(context.Background(), "w1", &entity.PendingAction{Type: entity.ActionGenerateImage})
	assert.ErrorIs(t, err, ErrNoGenerator)
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected entity.ErrorKind
	}{
		{"nil", nil, entity.ErrorKindNone},
		{"network", errors.New("connection refused"), entity.ErrorKindTransport},
		{"provider rejection", &service.ProviderError{StatusCode: 422, Message: "prompt blocked"}, entity.ErrorKindProvider},
		{"provider credit", &service.ProviderError{StatusCode: 402, Message: "Insufficient credits", InsufficientCredit: true}, entity.ErrorKindInsufficientCredit},
		{"no result", NoResultError{Type: entity.ActionGenerateImage}, entity.ErrorKindProvider},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Classify(tc.err))
		})
	}
}

func TestMessage_ProviderVerbatim(t *testing.T) {
	err := &service.ProviderError{StatusCode: 402, Message: "Insufficient credits", InsufficientCredit: true}
	assert.Equal(t, "Insufficient credits", Message(err))
}

func credits(v int) *int { return &v }
