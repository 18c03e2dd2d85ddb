package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanErrorMessage(t *testing.T) {
	err := New(ErrorTypeAPI, "get_events", "unifi.example.com", fmt.Errorf("rc=error"))
	assert.Equal(t, "get_events failed on unifi.example.com: rc=error", err.Error())

	err = New(ErrorTypeState, "write_state", "", fmt.Errorf("disk full"))
	assert.Equal(t, "write_state failed: disk full", err.Error())
}

func TestErrorsIsMapping(t *testing.T) {
	assert.ErrorIs(t, New(ErrorTypeAuth, "login", "h", fmt.Errorf("denied")), ErrUnauthorized)
	assert.ErrorIs(t, New(ErrorTypeConnection, "dial", "h", fmt.Errorf("refused")), ErrConnectionFailed)
	assert.ErrorIs(t, New(ErrorTypeDelivery, "send", "", fmt.Errorf("down")), ErrDeliveryFailed)
	assert.NotErrorIs(t, New(ErrorTypeAPI, "get", "h", fmt.Errorf("bad")), ErrUnauthorized)
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := New(ErrorTypeParse, "decode", "", cause)
	assert.ErrorIs(t, wrapped, cause)
}

func TestRetryabilityByType(t *testing.T) {
	assert.True(t, IsRetryableError(New(ErrorTypeConnection, "dial", "h", fmt.Errorf("refused"))))
	assert.True(t, IsRetryableError(New(ErrorTypeTimeout, "get", "h", fmt.Errorf("deadline"))))
	assert.True(t, IsRetryableError(New(ErrorTypeDelivery, "send", "", fmt.Errorf("down"))))
	assert.False(t, IsRetryableError(New(ErrorTypeAuth, "login", "h", fmt.Errorf("denied"))))
	assert.False(t, IsRetryableError(New(ErrorTypeConfig, "load", "", fmt.Errorf("bad"))))
}

func TestWithStatusCodeRefinesRetryability(t *testing.T) {
	assert.True(t, New(ErrorTypeAPI, "get", "h", fmt.Errorf("x")).WithStatusCode(500).Retryable)
	assert.True(t, New(ErrorTypeAPI, "get", "h", fmt.Errorf("x")).WithStatusCode(429).Retryable)
	assert.False(t, New(ErrorTypeAPI, "get", "h", fmt.Errorf("x")).WithStatusCode(404).Retryable)
	// A 400 overrides a normally retryable type.
	assert.False(t, New(ErrorTypeConnection, "get", "h", fmt.Errorf("x")).WithStatusCode(400).Retryable)
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(New(ErrorTypeAuth, "login", "h", fmt.Errorf("denied"))))
	assert.True(t, IsAuthError(New(ErrorTypeAPI, "get", "h", fmt.Errorf("x")).WithStatusCode(403)))
	assert.True(t, IsAuthError(errors.New("server said: unauthorized")))
	assert.False(t, IsAuthError(nil))
	assert.False(t, IsAuthError(errors.New("timeout")))
}

func TestHintExtraction(t *testing.T) {
	err := New(ErrorTypeAuth, "login", "h", fmt.Errorf("denied")).WithHint("use a local account")
	assert.Equal(t, "use a local account", Hint(err))
	assert.Equal(t, "", Hint(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, "use a local account", Hint(wrapped))
}
