package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitglue/heatmap/pkg/types"
)

func TestNewCloudEvent(t *testing.T) {
	payload := types.RepairResultEvent{UploadID: "u1", Result: "find", BadLines: 3}

	e, err := NewCloudEvent("/heatmap/pipeline", "com.fitglue.repair.result", payload)
	require.NoError(t, err)

	assert.Equal(t, "1.0", e.SpecVersion())
	assert.Equal(t, "com.fitglue.repair.result", e.Type())
	assert.Equal(t, "/heatmap/pipeline", e.Source())
	assert.NotEmpty(t, e.ID())

	var decoded types.RepairResultEvent
	require.NoError(t, e.DataAs(&decoded))
	assert.Equal(t, payload, decoded)
}

func TestLogPublisher(t *testing.T) {
	e, err := NewCloudEvent("src", "type", map[string]string{"k": "v"})
	require.NoError(t, err)

	id, err := (&LogPublisher{}).PublishCloudEvent(context.Background(), "topic", e)
	require.NoError(t, err)
	assert.Equal(t, "mock-msg-id", id)
}
