package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 10, 18, 12, 0, 0, 0, time.UTC)

func TestRecordError_ReplacesPerAction(t *testing.T) {
	tpl := New("org", "app", "promo", "en", TypeText)

	tpl.RecordError(ActionSubmit, map[string]any{"message": "first"}, fixedNow)
	tpl.RecordError(ActionSubmit, map[string]any{"message": "second"}, fixedNow.Add(time.Minute))
	tpl.RecordError(ActionDelete, "gone", fixedNow)

	entry, ok := tpl.LastError(ActionSubmit)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"message": "second"}, entry["payload"])
	assert.Equal(t, "2025-10-18T12:01:00Z", entry["ts"])

	_, ok = tpl.LastError(ActionDelete)
	assert.True(t, ok)
	assert.Len(t, tpl.ErrorMeta, 2)
}

func TestClearError(t *testing.T) {
	tpl := New("org", "app", "promo", "en", TypeText)
	tpl.RecordError(ActionUpdate, "bad", fixedNow)

	assert.True(t, tpl.ClearError(ActionUpdate))
	assert.False(t, tpl.ClearError(ActionUpdate))
	_, ok := tpl.LastError(ActionUpdate)
	assert.False(t, ok)
}

func TestClearError_NilMeta(t *testing.T) {
	tpl := &Template{}
	assert.False(t, tpl.ClearError(ActionSubmit))
}

func TestReplaceWebhookEvent(t *testing.T) {
	tpl := New("org", "app", "promo", "en", TypeText)
	first := map[string]any{"status": "approved"}

	tpl.ReplaceWebhookEvent("status-update", first, fixedNow)
	tpl.ReplaceWebhookEvent("quality-update", map[string]any{"quality": "HIGH"}, fixedNow)
	tpl.ReplaceWebhookEvent("status-update", map[string]any{"status": "paused"}, fixedNow.Add(time.Hour))

	entry := tpl.WebhookMeta["status-update"].(map[string]any)
	assert.Equal(t, "paused", entry["status"])
	assert.Equal(t, "2025-10-18T13:00:00Z", entry["ts"])
	assert.Contains(t, tpl.WebhookMeta, "quality-update")

	// The caller's payload is copied, not aliased.
	_, leaked := first["ts"]
	assert.False(t, leaked)
}

func TestMediaHandle(t *testing.T) {
	tpl := &Template{}
	assert.Empty(t, tpl.MediaHandle())

	tpl.SetMediaHandle("4::handle")
	assert.Equal(t, "4::handle", tpl.MediaHandle())
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
		ok   bool
	}{
		{"APPROVED", StatusApproved, true},
		{" pending ", StatusPending, true},
		{"In_Appeal", StatusInAppeal, true},
		{"limbo", Status("limbo"), false},
		{"", Status(""), false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseStatus(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestParseType(t *testing.T) {
	typ, ok := ParseType("image")
	assert.True(t, ok)
	assert.Equal(t, TypeImage, typ)
	assert.True(t, typ.IsMedia())

	typ, ok = ParseType("carousel")
	assert.True(t, ok)
	assert.False(t, typ.IsMedia())

	_, ok = ParseType("LOCATION")
	assert.False(t, ok)
}

func TestClone_IsDeep(t *testing.T) {
	orig := sampleTemplate()
	orig.RecordError(ActionSubmit, "boom", fixedNow)
	orig.Payload["buttons"] = []any{map[string]any{"type": "URL"}}

	c := orig.Clone()
	assert.Equal(t, orig.ComputeHash(), c.ComputeHash())

	c.ContainerMeta["footer"] = "changed"
	c.Payload["buttons"].([]any)[0].(map[string]any)["type"] = "PHONE_NUMBER"
	c.ClearError(ActionSubmit)
	*c.CreatedOn = 1

	assert.Equal(t, "thanks", orig.ContainerMeta["footer"])
	assert.Equal(t, "URL", orig.Payload["buttons"].([]any)[0].(map[string]any)["type"])
	_, ok := orig.LastError(ActionSubmit)
	assert.True(t, ok)
	assert.Equal(t, int64(1760000000000), *orig.CreatedOn)
}
