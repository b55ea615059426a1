package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantErr  bool
		wantKind Kind
		known    bool
	}{
		{"status", `{"type":"template-event","payload":{"id":"abc123","type":"status-update","status":"approved"}}`, false, KindStatus, true},
		{"legacy null type", `{"type":"template-event","payload":{"id":"abc123","type":null,"status":"rejected"}}`, false, KindStatus, true},
		{"legacy missing type", `{"type":"template-event","payload":{"id":"abc123","status":"rejected"}}`, false, KindStatus, true},
		{"category", `{"type":"template-event","payload":{"id":"a","type":"category-update","category":{"new":"utility","old":"MARKETING"}}}`, false, KindCategory, true},
		{"unknown kind", `{"type":"template-event","payload":{"id":"a","type":"button-update"}}`, false, Kind("button-update"), false},
		{"missing type", `{"payload":{}}`, true, "", false},
		{"payload not object", `{"type":"template-event","payload":"x"}`, true, "", false},
		{"status not string", `{"type":"template-event","payload":{"status":5}}`, true, "", false},
		{"template event without payload", `{"type":"template-event"}`, true, "", false},
		{"not json", `{`, true, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Parse([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			kind, known := ev.Kind()
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestParse_OtherEnvelope(t *testing.T) {
	ev, err := Parse([]byte(`{"type":"message-event","payload":{"id":"m1"}}`))
	require.NoError(t, err)
	assert.False(t, ev.IsTemplateEvent())
}
