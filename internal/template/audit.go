package template

import "time"

// Error-audit actions, one entry per action in ErrorMeta.
const (
	ActionSubmit = "submit"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionSync   = "sync"
)

const auditTimestampKey = "ts"

// RecordError stores the latest failure for action, replacing any previous one.
func (t *Template) RecordError(action string, payload any, now time.Time) {
	t.ensureMaps()
	t.ErrorMeta[action] = map[string]any{
		"payload":         payload,
		auditTimestampKey: now.UTC().Format(time.RFC3339Nano),
	}
}

// ClearError drops the failure entry for action. It reports whether one existed.
func (t *Template) ClearError(action string) bool {
	if _, ok := t.ErrorMeta[action]; !ok {
		return false
	}
	delete(t.ErrorMeta, action)
	return true
}

// LastError returns the recorded failure entry for action.
func (t *Template) LastError(action string) (map[string]any, bool) {
	entry, ok := t.ErrorMeta[action].(map[string]any)
	return entry, ok
}

// ReplaceWebhookEvent overwrites the audit entry for eventType with payload plus
// an applied timestamp. Entries for other event types are left as they are.
func (t *Template) ReplaceWebhookEvent(eventType string, payload map[string]any, now time.Time) {
	t.ensureMaps()
	entry := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		entry[k] = v
	}
	entry[auditTimestampKey] = now.UTC().Format(time.RFC3339Nano)
	t.WebhookMeta[eventType] = entry
}
