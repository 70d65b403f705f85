package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrubQueryParams(t *testing.T) {
	got := Scrub("GET http://worker-7:8080/status?token=abc123&user=bob")
	assert.NotContains(t, got, "token=abc123")
	assert.Contains(t, got, "[REDACTED]")
}

func TestScrubAPIKey(t *testing.T) {
	got := Scrub("auth failed api_key=sk_live_deadbeefdeadbeef")
	assert.Contains(t, got, "[API_KEY_REDACTED]")
	assert.NotContains(t, got, "sk_live_deadbeefdeadbeef")
}

func TestScrubIDFields(t *testing.T) {
	got := Scrub("worker_id=worker-42 crashed")
	assert.Contains(t, got, "[ID_REDACTED]")
	assert.NotContains(t, got, "worker-42")
}

func TestScrubDevicePath(t *testing.T) {
	got := Scrub("failed to open capture device hw:1,0")
	assert.Contains(t, got, "[DEVICE_REDACTED]")
	assert.NotContains(t, got, "hw:1,0")
}

func TestScrubLeavesPlainTextAlone(t *testing.T) {
	got := Scrub("worker pool drained cleanly")
	assert.Equal(t, "worker pool drained cleanly", got)
}
