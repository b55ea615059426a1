// Package jobs defines the units of work the worker pool executes and the
// status documents callers poll while they run.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the operation a job performs.
type Kind string

const (
	KindSubmit  Kind = "submit"
	KindUpdate  Kind = "update"
	KindDelete  Kind = "delete"
	KindSync    Kind = "sync"
	KindWebhook Kind = "webhook"
)

// ParseKind rejects kinds the worker cannot execute.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindSubmit, KindUpdate, KindDelete, KindSync, KindWebhook:
		return k, nil
	default:
		return "", fmt.Errorf("unknown job kind %q", s)
	}
}

// TargetsTemplate reports whether the job operates on a single template.
func (k Kind) TargetsTemplate() bool {
	return k == KindSubmit || k == KindUpdate || k == KindDelete
}

// Job is one unit of work. It carries identifiers only; the worker re-reads
// the template when the job starts.
type Job struct {
	ID         uuid.UUID       `json:"id"`
	Kind       Kind            `json:"kind"`
	TemplateID uuid.UUID       `json:"template_id,omitempty"`
	AppID      string          `json:"app_id,omitempty"`
	OrgID      string          `json:"org_id,omitempty"`
	Event      json.RawMessage `json:"event,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewTemplateJob creates a submit, update or delete job.
func NewTemplateJob(kind Kind, templateID uuid.UUID, appID, orgID string) *Job {
	return &Job{
		ID:         uuid.New(),
		Kind:       kind,
		TemplateID: templateID,
		AppID:      appID,
		OrgID:      orgID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// NewSyncJob creates a full template sync for one provider app.
func NewSyncJob(appID, orgID string) *Job {
	return &Job{
		ID:         uuid.New(),
		Kind:       KindSync,
		AppID:      appID,
		OrgID:      orgID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// NewWebhookJob wraps a raw provider webhook delivery.
func NewWebhookJob(event json.RawMessage) *Job {
	return &Job{
		ID:         uuid.New(),
		Kind:       KindWebhook,
		Event:      event,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Validate checks that the job carries what its kind needs.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return fmt.Errorf("job must have an ID")
	}
	if _, err := ParseKind(string(j.Kind)); err != nil {
		return err
	}
	switch {
	case j.Kind.TargetsTemplate() && (j.TemplateID == uuid.Nil || j.AppID == "" || j.OrgID == ""):
		return fmt.Errorf("%s job needs template, app and org ids", j.Kind)
	case j.Kind == KindSync && (j.AppID == "" || j.OrgID == ""):
		return fmt.Errorf("sync job needs app and org ids")
	case j.Kind == KindWebhook && len(j.Event) == 0:
		return fmt.Errorf("webhook job needs an event")
	}
	return nil
}
