package sentry

import (
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
)

func TestInit_NoDSN(t *testing.T) {
	assert.NoError(t, Init(Config{}, nil))
}

func TestScrubEvent(t *testing.T) {
	event := &sentry.Event{
		Request: &sentry.Request{
			Headers: map[string]string{"Authorization": "Bearer x", "Cookie": "c", "Accept": "*/*"},
			Data:    `{"file_data":"..."}`,
		},
		Extra: map[string]interface{}{"file_data": "AAAA", "upload_id": "u1"},
	}

	out := scrubEvent(event, nil)

	assert.Equal(t, map[string]string{"Accept": "*/*"}, out.Request.Headers)
	assert.Empty(t, out.Request.Data)
	assert.Equal(t, "[redacted]", out.Extra["file_data"])
	assert.Equal(t, "u1", out.Extra["upload_id"])
}

func TestCaptureStageError_Uninitialized(t *testing.T) {
	// Without a client the SDK drops events; the call must not panic.
	assert.NotPanics(t, func() {
		CaptureStageError(errors.New("decode failed"), "decode", "ride.fit", nil)
		CaptureStageError(nil, "decode", "ride.fit", nil)
	})
}

func TestRecoverAndCapture_RePanics(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		defer RecoverAndCapture(nil)
		panic("boom")
	})
}
