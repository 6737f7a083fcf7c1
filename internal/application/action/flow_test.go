package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-genstudio-api/internal/application/params"
	"z-genstudio-api/internal/application/pricing"
	"z-genstudio-api/internal/domain/entity"
)

func newVideoFlow(t *testing.T) *Flow {
	t.Helper()
	r := params.NewResolver(params.DefaultCatalog())
	return NewFlow(r, &entity.PendingAction{
		Type:        entity.ActionGenerateVideo,
		Description: "ocean timelapse",
		Params:      entity.VideoParams{Prompt: "ocean timelapse", Model: "veo-3", Duration: "8s"},
	})
}

func TestFlow_HappyPath(t *testing.T) {
	f := newVideoFlow(t)
	assert.Equal(t, entity.ActionStateProposed, f.State())
	assert.Equal(t, 200, f.Cost())

	final, cost, err := f.Confirm(nil)
	require.NoError(t, err)
	assert.Equal(t, 200, cost)
	assert.Equal(t, "8s", final.(entity.VideoParams).Duration)
	assert.Equal(t, entity.ActionStateConfirmed, f.State())

	require.NoError(t, f.Start())
	assert.Equal(t, entity.ActionStateExecuting, f.State())
	require.NoError(t, f.Complete())
	assert.Equal(t, entity.ActionStateComplete, f.State())
}

func TestFlow_SelectThenConfirmChargesFinalCost(t *testing.T) {
	f := newVideoFlow(t)

	require.NoError(t, f.Edit(params.ParamDuration, "4s"))
	assert.Equal(t, entity.ActionStateProposed, f.State())

	final, cost, err := f.Confirm(nil)
	require.NoError(t, err)

	expected, err := pricing.VideoCost("4s", "veo-3")
	require.NoError(t, err)
	assert.Equal(t, expected, cost)
	assert.Equal(t, 100, cost)
	assert.Equal(t, "4s", final.(entity.VideoParams).Duration)
	assert.Equal(t, cost, f.Final().EstimatedCredits)
}

func TestFlow_ConfirmEditsApplyBeforePricing(t *testing.T) {
	f := newVideoFlow(t)

	_, cost, err := f.Confirm(map[string]string{params.ParamModel: "kling-2.1", params.ParamDuration: "6s"})
	require.NoError(t, err)
	assert.Equal(t, 45, cost)
}

func TestFlow_InvalidEditKeepsProposed(t *testing.T) {
	f := newVideoFlow(t)

	_, _, err := f.Confirm(map[string]string{params.ParamDuration: "10s"})
	assert.ErrorIs(t, err, ErrInvalidSelection)
	assert.Equal(t, entity.ActionStateProposed, f.State())
	assert.Equal(t, "8s", f.Selection().(entity.VideoParams).Duration)
	assert.Equal(t, 200, f.Cost())
}

func TestFlow_MissingPromptRejected(t *testing.T) {
	r := params.NewResolver(params.DefaultCatalog())
	f := NewFlow(r, &entity.PendingAction{
		Type:   entity.ActionGenerateMusic,
		Params: entity.MusicParams{Duration: 60},
	})

	_, _, err := f.Confirm(nil)
	assert.ErrorIs(t, err, ErrInvalidSelection)
	assert.Equal(t, entity.ActionStateProposed, f.State())
}

func TestFlow_IllegalTransitions(t *testing.T) {
	f := newVideoFlow(t)

	assert.ErrorIs(t, f.Start(), ErrIllegalTransition)
	assert.ErrorIs(t, f.Complete(), ErrIllegalTransition)

	_, _, err := f.Confirm(nil)
	require.NoError(t, err)

	_, _, err = f.Confirm(nil)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.ErrorIs(t, f.Cancel(), ErrIllegalTransition)
	assert.ErrorIs(t, f.Edit(params.ParamDuration, "4s"), ErrIllegalTransition)

	require.NoError(t, f.Start())
	require.NoError(t, f.Fail())
	assert.ErrorIs(t, f.Complete(), ErrIllegalTransition)
}

func TestFlow_Cancel(t *testing.T) {
	f := newVideoFlow(t)
	require.NoError(t, f.Cancel())
	assert.Equal(t, entity.ActionStateCancelled, f.State())
	assert.True(t, f.State().IsTerminal())

	_, _, err := f.Confirm(nil)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		from, to entity.ActionState
		allowed  bool
	}{
		{entity.ActionStateProposed, entity.ActionStateProposed, true},
		{entity.ActionStateProposed, entity.ActionStateExecuting, false},
		{entity.ActionStateConfirmed, entity.ActionStateCancelled, false},
		{entity.ActionStateExecuting, entity.ActionStateFailed, true},
		{entity.ActionStateComplete, entity.ActionStateExecuting, false},
		{entity.ActionStateCancelled, entity.ActionStateProposed, false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
