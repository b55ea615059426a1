package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/apperr"
	"github.com/lalithlochan/templar/internal/db"
	"github.com/lalithlochan/templar/internal/metrics"
	"github.com/lalithlochan/templar/internal/template"
)

// Store is the storage the reconciler needs.
type Store interface {
	GetByProviderID(ctx context.Context, providerTemplateID string) (*template.Template, error)
	GetByNameLanguage(ctx context.Context, elementName, languageCode string) (*template.Template, error)
	Mutate(ctx context.Context, id uuid.UUID, fn func(*template.Template) error) (*template.Template, error)
}

// ErrTemplateNotFound means no template matched the event's identifiers.
var ErrTemplateNotFound = errors.New("no template matches webhook event")

// Reconciler applies template events to local state.
type Reconciler struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewReconciler(store Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger, now: time.Now}
}

// Apply locates the event's template and updates the field its kind governs
// together with the kind's audit entry, in one write. It reports false with a
// classified error when nothing was written: unknown kind, no matching
// template, or a payload missing the governed field.
func (r *Reconciler) Apply(ctx context.Context, ev *Event) (bool, error) {
	kind, known := ev.Kind()
	log := r.logger.With(
		zap.String("event_type", string(kind)),
		zap.String("provider_template_id", ev.Payload.String("id")),
	)

	if !ev.IsTemplateEvent() {
		metrics.RecordWebhookEvent(ev.Type, "ignored")
		return false, apperr.Data(fmt.Sprintf("unsupported webhook envelope %q", ev.Type), nil)
	}
	if !known {
		log.Warn("rejecting webhook with unknown event type")
		metrics.RecordWebhookEvent(string(kind), "unknown_type")
		return false, apperr.Data(fmt.Sprintf("unsupported template event type %q", kind), nil)
	}

	mutate, err := r.mutation(kind, ev.Payload)
	if err != nil {
		log.Warn("rejecting malformed webhook payload", zap.Error(err))
		metrics.RecordWebhookEvent(string(kind), "invalid")
		return false, err
	}

	target, err := r.locate(ctx, ev.Payload)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			log.Warn("webhook for unknown template",
				zap.String("element_name", ev.Payload.String("elementName")),
				zap.String("language_code", ev.Payload.String("languageCode")),
			)
			metrics.RecordWebhookEvent(string(kind), "not_found")
			return false, apperr.Lookup("template", err)
		}
		return false, err
	}

	updated, err := r.store.Mutate(ctx, target.ID, mutate)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			metrics.RecordWebhookEvent(string(kind), "not_found")
			return false, apperr.Lookup("template", err)
		}
		metrics.RecordWebhookEvent(string(kind), "error")
		return false, fmt.Errorf("apply %s: %w", kind, err)
	}

	metrics.RecordWebhookEvent(string(kind), "applied")
	log.Info("webhook applied",
		zap.String("template_id", updated.ID.String()),
		zap.String("status", string(updated.Status)),
	)
	return true, nil
}

// locate prefers the provider id and falls back to (elementName, languageCode).
func (r *Reconciler) locate(ctx context.Context, p template.Remote) (*template.Template, error) {
	if pid := p.String("id"); pid != "" {
		t, err := r.store.GetByProviderID(ctx, pid)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("lookup by provider id: %w", err)
		}
	}

	name, lang := p.String("elementName"), p.String("languageCode")
	if name == "" || lang == "" {
		return nil, ErrTemplateNotFound
	}
	t, err := r.store.GetByNameLanguage(ctx, name, lang)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup by name: %w", err)
	}
	return t, nil
}

// mutation builds the write for kind, validating the payload up front so a
// bad event never opens a transaction.
func (r *Reconciler) mutation(kind Kind, p template.Remote) (func(*template.Template) error, error) {
	audit := make(map[string]any, len(p))
	for k, v := range p {
		audit[k] = v
	}
	now := r.now()

	switch kind {
	case KindStatus:
		raw := p.String("status")
		status, ok := template.ParseStatus(raw)
		if !ok {
			audit["unrecognized_status"] = raw
		}
		return func(t *template.Template) error {
			if ok {
				t.Status = status
				if status == template.StatusDeleted {
					t.DeleteState = template.DeleteDeleted
				}
			}
			t.ReplaceWebhookEvent(string(KindStatus), audit, now)
			return nil
		}, nil

	case KindCategory:
		change, _ := p["category"].(map[string]any)
		next := strings.ToUpper(strings.TrimSpace(template.Remote(change).String("new")))
		if next == "" {
			return nil, apperr.Data("category-update without new category", nil)
		}
		old := strings.ToUpper(strings.TrimSpace(template.Remote(change).String("old")))
		return func(t *template.Template) error {
			archived := old
			if archived == "" {
				archived = t.Category
			}
			t.OldCategory = archived
			t.Category = next
			t.ReplaceWebhookEvent(string(KindCategory), audit, now)
			return nil
		}, nil

	case KindQuality:
		quality := strings.TrimSpace(p.String("quality"))
		if quality == "" {
			return nil, apperr.Data("quality-update without quality", nil)
		}
		return func(t *template.Template) error {
			t.Quality = quality
			t.ReplaceWebhookEvent(string(KindQuality), audit, now)
			return nil
		}, nil

	default:
		return nil, apperr.Data(fmt.Sprintf("unsupported template event type %q", kind), nil)
	}
}
