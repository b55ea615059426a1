package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/apperr"
	"github.com/lalithlochan/templar/internal/db"
	"github.com/lalithlochan/templar/internal/jobs"
	"github.com/lalithlochan/templar/internal/metrics"
	"github.com/lalithlochan/templar/internal/observ"
	"github.com/lalithlochan/templar/internal/provider"
	"github.com/lalithlochan/templar/internal/syncer"
	"github.com/lalithlochan/templar/internal/template"
	"github.com/lalithlochan/templar/internal/webhook"
)

// TemplateStore is the template storage the orchestrator needs.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id uuid.UUID, orgID, appID string) (*template.Template, error)
	Mutate(ctx context.Context, id uuid.UUID, fn func(*template.Template) error) (*template.Template, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AppStore resolves provider app instances.
type AppStore interface {
	GetProviderApp(ctx context.Context, appID, orgID string) (*db.ProviderApp, error)
}

// CredentialOpener decrypts a stored provider token.
type CredentialOpener interface {
	Open(appID, stored string) (string, error)
}

// ProviderFactory builds a provider adapter per job.
type ProviderFactory interface {
	New(providerName string, creds provider.Credentials) (provider.Provider, error)
}

// Syncer runs a full template sync.
type Syncer interface {
	SyncAll(ctx context.Context, p provider.Provider, orgID string) (*syncer.Summary, error)
}

// WebhookApplier applies a parsed webhook event.
type WebhookApplier interface {
	Apply(ctx context.Context, ev *webhook.Event) (bool, error)
}

// Deps are the collaborators of an Orchestrator. Notifier may be nil.
type Deps struct {
	Templates TemplateStore
	Apps      AppStore
	Vault     CredentialOpener
	Providers ProviderFactory
	Syncer    Syncer
	Webhooks  WebhookApplier
	Statuses  jobs.StatusStore
	Notifier  Notifier
}

// RetryConfig bounds retries of transient provider failures.
type RetryConfig struct {
	MaxRetries  int           // retries after the first attempt
	BackoffBase time.Duration // delay before retry n is BackoffBase * 2^n
}

// Orchestrator runs one job through lookup, provider call and persist
// phases, reporting status after each one.
type Orchestrator struct {
	deps   Deps
	retry  RetryConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

func NewOrchestrator(deps Deps, retry RetryConfig, logger *zap.Logger) *Orchestrator {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 3
	}
	if retry.BackoffBase == 0 {
		retry.BackoffBase = time.Second
	}
	return &Orchestrator{
		deps:   deps,
		retry:  retry,
		logger: logger,
		sleep:  sleepContext,
		now:    time.Now,
	}
}

const (
	phaseLookup  = 0
	phaseCall    = 1
	phasePersist = 2
)

// run carries per-job state through the phases.
type run struct {
	job    *jobs.Job
	status *jobs.Status
	log    *zap.Logger
	start  time.Time

	template *template.Template
	provider provider.Provider
}

// Run executes job to a terminal state and returns the final status. Provider
// and storage failures become a FAILURE status; a panic is recovered here and
// reported the same way.
func (o *Orchestrator) Run(ctx context.Context, job *jobs.Job) (final *jobs.Status) {
	r := &run{
		job:    job,
		status: jobs.PendingStatus(job),
		log:    observ.JobLogger(o.logger, job),
		start:  o.now(),
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("job panicked", zap.Any("panic", p), zap.Stack("stack"))
			final = o.fail(ctx, r, apperr.Internal(fmt.Errorf("job panicked: %v", p)))
		}
	}()

	r.log.Info("job started")

	switch job.Kind {
	case jobs.KindSubmit, jobs.KindUpdate:
		return o.runPush(ctx, r)
	case jobs.KindDelete:
		return o.runDelete(ctx, r)
	case jobs.KindSync:
		return o.runSync(ctx, r)
	case jobs.KindWebhook:
		return o.runWebhook(ctx, r)
	default:
		return o.fail(ctx, r, apperr.Data(fmt.Sprintf("unknown job kind %q", job.Kind), nil))
	}
}

func action(kind jobs.Kind) string {
	switch kind {
	case jobs.KindSubmit:
		return template.ActionSubmit
	case jobs.KindUpdate:
		return template.ActionUpdate
	case jobs.KindDelete:
		return template.ActionDelete
	default:
		return template.ActionSync
	}
}

// runPush handles submit and update.
func (o *Orchestrator) runPush(ctx context.Context, r *run) *jobs.Status {
	o.progress(ctx, r, phaseLookup, "resolving template and provider app")
	if err := o.lookupTemplate(ctx, r); err != nil {
		return o.fail(ctx, r, err)
	}
	if err := o.lookupProvider(ctx, r); err != nil {
		return o.failTemplate(ctx, r, err)
	}

	o.progress(ctx, r, phaseCall, "calling provider")
	call := r.provider.SubmitTemplate
	if r.job.Kind == jobs.KindUpdate {
		call = r.provider.UpdateTemplate
	}
	tpl := r.template
	res, err := o.callProvider(ctx, r, func(ctx context.Context) (*provider.Result, error) {
		return call(ctx, tpl)
	})
	if err != nil {
		return o.failTemplate(ctx, r, err)
	}

	o.progress(ctx, r, phasePersist, "saving provider response")
	act := action(r.job.Kind)
	saved, err := o.deps.Templates.Mutate(ctx, r.template.ID, func(t *template.Template) error {
		if mergeErr := t.MergeFromRemote(res.Template); mergeErr != nil {
			r.log.Warn("provider response carried malformed containerMeta", zap.Error(mergeErr))
		}
		if _, ok := template.ParseStatus(res.Template.String("status")); !ok || r.job.Kind == jobs.KindUpdate {
			// An edited template goes back to review whatever the response echoes.
			t.Status = template.StatusPending
		}
		if res.MediaHandle != "" {
			t.SetMediaHandle(res.MediaHandle)
		}
		t.ClearError(act)
		return nil
	})
	if err != nil {
		return o.fail(ctx, r, storageFault(err))
	}

	return o.succeed(ctx, r, map[string]any{
		"template_id":          saved.ID.String(),
		"provider_template_id": saved.ProviderTemplateID,
		"status":               string(saved.Status),
	}, string(saved.Status))
}

// runDelete marks the template as being deleted, asks the provider to delete
// it and removes the local row only after the provider confirmed.
func (o *Orchestrator) runDelete(ctx context.Context, r *run) *jobs.Status {
	o.progress(ctx, r, phaseLookup, "resolving template and provider app")
	if err := o.lookupTemplate(ctx, r); err != nil {
		return o.fail(ctx, r, err)
	}

	if err := o.lookupProvider(ctx, r); err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			return o.failTemplate(ctx, r, err)
		}
		r.log.Warn("provider app missing, deleting template locally only")
		if err := o.deps.Templates.Delete(ctx, r.template.ID); err != nil && !errors.Is(err, db.ErrNotFound) {
			return o.fail(ctx, r, storageFault(err))
		}
		return o.succeed(ctx, r, map[string]any{
			"template_id": r.template.ID.String(),
			"local_only":  true,
		}, string(template.StatusDeleted))
	}

	previous := r.template.DeleteState
	if _, err := o.deps.Templates.Mutate(ctx, r.template.ID, func(t *template.Template) error {
		t.DeleteState = template.DeleteProcessing
		return nil
	}); err != nil {
		return o.fail(ctx, r, storageFault(err))
	}

	o.progress(ctx, r, phaseCall, "calling provider")
	tpl := r.template
	_, err := o.callProvider(ctx, r, func(ctx context.Context) (*provider.Result, error) {
		return r.provider.DeleteTemplate(ctx, tpl)
	})

	o.progress(ctx, r, phasePersist, "applying provider result")
	if err != nil {
		e := classify(err)
		if _, mErr := o.deps.Templates.Mutate(ctx, r.template.ID, func(t *template.Template) error {
			t.DeleteState = previous
			t.RecordError(template.ActionDelete, e.AuditPayload(), o.now())
			return nil
		}); mErr != nil {
			r.log.Error("failed to restore template after failed delete", zap.Error(mErr))
		}
		return o.fail(ctx, r, e)
	}

	if err := o.deps.Templates.Delete(ctx, r.template.ID); err != nil && !errors.Is(err, db.ErrNotFound) {
		return o.fail(ctx, r, storageFault(err))
	}
	return o.succeed(ctx, r, map[string]any{
		"template_id": r.template.ID.String(),
	}, string(template.StatusDeleted))
}

func (o *Orchestrator) runSync(ctx context.Context, r *run) *jobs.Status {
	o.progress(ctx, r, phaseLookup, "resolving provider app")
	if err := o.lookupProvider(ctx, r); err != nil {
		return o.fail(ctx, r, err)
	}

	o.progress(ctx, r, phaseCall, "fetching templates")
	var summary *syncer.Summary
	err := o.withRetry(ctx, r, func(ctx context.Context) error {
		s, err := o.deps.Syncer.SyncAll(ctx, r.provider, r.job.OrgID)
		if err != nil {
			return classify(err)
		}
		summary = s
		return nil
	})
	if err != nil {
		return o.fail(ctx, r, err)
	}

	o.progress(ctx, r, phasePersist, "sync committed")
	return o.succeed(ctx, r, map[string]any{
		"synced":  summary.Synced,
		"created": summary.Created,
		"updated": summary.Updated,
		"skipped": summary.Skipped,
		"invalid": summary.Invalid,
	}, "")
}

func (o *Orchestrator) runWebhook(ctx context.Context, r *run) *jobs.Status {
	o.progress(ctx, r, phaseLookup, "parsing event")
	ev, err := webhook.Parse(r.job.Event)
	if err != nil {
		return o.fail(ctx, r, apperr.Data("invalid webhook event", err))
	}

	o.progress(ctx, r, phaseCall, "applying event")
	applied, err := o.deps.Webhooks.Apply(ctx, ev)
	if err != nil {
		return o.fail(ctx, r, classify(err))
	}

	kind, _ := ev.Kind()
	o.progress(ctx, r, phasePersist, "event applied")
	return o.succeed(ctx, r, map[string]any{
		"applied":              applied,
		"event_type":           string(kind),
		"provider_template_id": ev.Payload.String("id"),
	}, ev.Payload.String("status"))
}

// lookupTemplate re-reads the template so the job never acts on stale state.
func (o *Orchestrator) lookupTemplate(ctx context.Context, r *run) error {
	t, err := o.deps.Templates.GetTemplate(ctx, r.job.TemplateID, r.job.OrgID, r.job.AppID)
	if errors.Is(err, db.ErrNotFound) {
		return apperr.Lookup("template", err)
	}
	if err != nil {
		return storageFault(err)
	}
	r.template = t
	return nil
}

// lookupProvider resolves the app, decrypts its token and builds the adapter.
// A missing app is returned wrapping db.ErrNotFound.
func (o *Orchestrator) lookupProvider(ctx context.Context, r *run) error {
	app, err := o.deps.Apps.GetProviderApp(ctx, r.job.AppID, r.job.OrgID)
	if errors.Is(err, db.ErrNotFound) {
		return apperr.Lookup("provider app", err)
	}
	if err != nil {
		return storageFault(err)
	}

	token, err := o.deps.Vault.Open(app.AppID, app.EncryptedToken)
	if err != nil {
		return apperr.Lookup("provider credential", err)
	}

	p, err := o.deps.Providers.New(app.ProviderName, provider.Credentials{AppID: app.AppID, Token: token})
	if err != nil {
		return apperr.Lookup("provider", err)
	}
	r.provider = p
	return nil
}

// callProvider runs one provider operation under the retry policy and
// returns the successful result or the classified failure.
func (o *Orchestrator) callProvider(ctx context.Context, r *run, call func(context.Context) (*provider.Result, error)) (*provider.Result, error) {
	var res *provider.Result
	err := o.withRetry(ctx, r, func(ctx context.Context) error {
		out, err := call(ctx)
		if err != nil {
			return apperr.Internal(err)
		}
		res = out
		return out.Err()
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// withRetry retries retryable failures with exponential backoff. After
// MaxRetries retries the last failure is returned as terminal.
func (o *Orchestrator) withRetry(ctx context.Context, r *run, call func(context.Context) error) error {
	attempts := o.retry.MaxRetries + 1
	for attempt := 0; ; attempt++ {
		err := call(ctx)
		if err == nil {
			return nil
		}

		e := classify(err)
		if !e.Retryable {
			return e
		}
		if attempt+1 >= attempts {
			r.log.Warn("retries exhausted", zap.Int("attempts", attempt+1), zap.Error(e))
			return apperr.Exhausted(e, attempt+1)
		}

		delay := o.retry.BackoffBase * time.Duration(1<<attempt)
		metrics.RecordJobRetry(string(r.job.Kind))
		r.log.Warn("transient provider failure, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(e),
		)
		o.progress(ctx, r, phaseCall, fmt.Sprintf("retrying after transient failure (attempt %d of %d)", attempt+2, attempts))

		if err := o.sleep(ctx, delay); err != nil {
			return apperr.Exhausted(e, attempt+1)
		}
	}
}

// classify returns err as an *apperr.Error, wrapping unclassified errors as internal.
func classify(err error) *apperr.Error {
	if e, ok := apperr.As(err); ok {
		return e
	}
	return apperr.Internal(err)
}

func storageFault(err error) *apperr.Error {
	return apperr.Internal(fmt.Errorf("storage: %w", err))
}

// failTemplate records err on the template's error audit before failing the job.
func (o *Orchestrator) failTemplate(ctx context.Context, r *run, err error) *jobs.Status {
	e := classify(err)
	if _, mErr := o.deps.Templates.Mutate(ctx, r.template.ID, func(t *template.Template) error {
		t.RecordError(action(r.job.Kind), e.AuditPayload(), o.now())
		return nil
	}); mErr != nil {
		r.log.Error("failed to record template error", zap.Error(mErr))
	}
	return o.fail(ctx, r, e)
}

func (o *Orchestrator) progress(ctx context.Context, r *run, phase int, msg string) {
	r.status.State = jobs.StateProgress
	r.status.Meta = jobs.Meta{Current: phase, Total: jobs.PhaseCount, Status: msg}
	o.put(ctx, r)
}

func (o *Orchestrator) succeed(ctx context.Context, r *run, result map[string]any, templateStatus string) *jobs.Status {
	r.status.State = jobs.StateSuccess
	r.status.Meta = jobs.Meta{Current: jobs.PhaseCount, Total: jobs.PhaseCount, Status: "done"}
	r.status.Result = result
	o.put(ctx, r)

	r.log.Info("job succeeded", zap.Duration("duration", o.now().Sub(r.start)))
	o.finish(ctx, r, templateStatus, nil)
	return r.status
}

func (o *Orchestrator) fail(ctx context.Context, r *run, err error) *jobs.Status {
	e := classify(err)
	r.status.State = jobs.StateFailure
	r.status.Meta.Total = jobs.PhaseCount
	r.status.Meta.Status = e.Message
	r.status.Error = e.AuditPayload()
	o.put(ctx, r)

	r.log.Error("job failed",
		zap.String("code", string(e.Code)),
		zap.Int("status_code", e.StatusCode),
		zap.Error(e),
	)
	o.finish(ctx, r, "", e)
	return r.status
}

func (o *Orchestrator) put(ctx context.Context, r *run) {
	r.status.UpdatedAt = o.now().UTC()
	if err := o.deps.Statuses.Put(ctx, r.status); err != nil {
		r.log.Warn("failed to store job status", zap.Error(err))
	}
}

func (o *Orchestrator) finish(ctx context.Context, r *run, templateStatus string, e *apperr.Error) {
	elapsed := o.now().Sub(r.start)
	metrics.RecordJobCompleted(string(r.job.Kind), string(r.status.State), elapsed)

	if o.deps.Notifier == nil {
		return
	}
	out := &Outcome{
		Job:            r.job,
		State:          r.status.State,
		TemplateStatus: templateStatus,
		Result:         r.status.Result,
		Err:            e,
		Duration:       elapsed,
	}
	if !o.deps.Notifier.Wants(out) {
		return
	}
	if err := o.deps.Notifier.Notify(ctx, out); err != nil {
		r.log.Warn("job outcome notification failed", zap.Error(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
