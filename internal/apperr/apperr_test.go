package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		code      Code
		retryable bool
	}{
		{"lookup", Lookup("template", errors.New("no rows")), CodeLookup, false},
		{"rejected", Rejected(400, "Template name already exists"), CodeRejected, false},
		{"transport", Transport(503, "service unavailable"), CodeTransport, true},
		{"network", Transport(0, "connection refused"), CodeTransport, true},
		{"data", Data("malformed response", nil), CodeData, false},
		{"internal", Internal(errors.New("boom")), CodeInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.False(t, tt.err.Timestamp.IsZero())
		})
	}
}

func TestWrappedClassification(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := fmt.Errorf("submit template: %w", Transport(0, cause.Error()))

	assert.True(t, IsRetryable(err))
	assert.Equal(t, CodeTransport, CodeOf(err))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestLookupUnwraps(t *testing.T) {
	sentinel := errors.New("not found")
	err := Lookup("provider app", sentinel)

	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "LOOKUP_FAULT")
}

func TestExhausted(t *testing.T) {
	last := Transport(502, "bad gateway")
	final := Exhausted(last, 4)

	assert.False(t, final.Retryable)
	assert.Equal(t, CodeTransport, final.Code)
	assert.Equal(t, 502, final.StatusCode)
	assert.Equal(t, "gave up after 4 attempts", final.Details)
	assert.True(t, last.Retryable, "original must not be modified")
}

func TestAuditPayload(t *testing.T) {
	p := Rejected(400, "Invalid button text").AuditPayload()
	require.Equal(t, "PROVIDER_REJECTED", p["code"])
	assert.Equal(t, "Invalid button text", p["message"])
	assert.Equal(t, 400, p["status_code"])
	assert.NotContains(t, p, "details")
}
