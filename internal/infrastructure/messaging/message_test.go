package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoff(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Second, Max: 10 * time.Second, Multiplier: 2}
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{10, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.CalculateBackoff(tt.retry), "retry=%d", tt.retry)
	}
}

func TestMessage_PayloadAndMetadata(t *testing.T) {
	type payload struct {
		Credits int `json:"credits"`
	}
	msg, err := NewMessage("m1", MessageTypeGenerationSettled, "w1", "s1", payload{Credits: 2})
	require.NoError(t, err)

	msg.SetMetadata("trace_id", "")
	msg.SetMetadata("request_id", "r1")
	assert.Equal(t, "", msg.GetMetadata("trace_id"))
	assert.Equal(t, "r1", msg.GetMetadata("request_id"))

	var got payload
	require.NoError(t, msg.UnmarshalPayload(&got))
	assert.Equal(t, 2, got.Credits)
	assert.Equal(t, "dlq:stream:generation:settled", StreamGenerationSettled.DLQStream())
}
