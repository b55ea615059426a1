// Package syncer pulls a provider app's full template list and reconciles it
// into local storage, writing only the records whose fingerprint drifted.
package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/metrics"
	"github.com/lalithlochan/templar/internal/provider"
	"github.com/lalithlochan/templar/internal/template"
)

// Store is the storage the reconciler needs.
type Store interface {
	ListByApp(ctx context.Context, appID string) ([]*template.Template, error)
	ApplySync(ctx context.Context, creates, updates []*template.Template) error
}

// Summary counts what one sync did.
type Summary struct {
	Synced  int `json:"synced"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Invalid int `json:"invalid"`
}

// Reconciler merges remote template lists into local storage.
type Reconciler struct {
	store  Store
	logger *zap.Logger
}

func NewReconciler(store Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// SyncAll fetches every template of the provider's app and merges them.
func (r *Reconciler) SyncAll(ctx context.Context, p provider.Provider, orgID string) (*Summary, error) {
	remotes, err := r.Fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	return r.Merge(ctx, orgID, p.AppID(), remotes)
}

// Fetch lists the provider's templates. A failed provider result is returned
// as a classified error.
func (r *Reconciler) Fetch(ctx context.Context, p provider.Provider) ([]template.Remote, error) {
	res, err := p.GetTemplates(ctx)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, res.Err()
	}
	return res.Templates, nil
}

type nameLang struct {
	name, lang string
}

// Merge stages a create for every remote record with no local match and an
// update for every match whose hash differs, then commits the batch in one
// transaction. Local templates missing from remotes are left alone.
func (r *Reconciler) Merge(ctx context.Context, orgID, appID string, remotes []template.Remote) (*Summary, error) {
	start := time.Now()

	locals, err := r.store.ListByApp(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("list local templates: %w", err)
	}

	byProviderID := make(map[string]*template.Template, len(locals))
	byName := make(map[nameLang]*template.Template, len(locals))
	for _, t := range locals {
		if t.ProviderTemplateID != "" {
			byProviderID[t.ProviderTemplateID] = t
		}
		byName[nameLang{t.ElementName, t.LanguageCode}] = t
	}

	var (
		sum     Summary
		creates []*template.Template
		updates []*template.Template
		claimed = make(map[*template.Template]bool)
	)

	for _, rec := range remotes {
		pid := rec.String("id")
		key := nameLang{rec.String("elementName"), rec.String("languageCode")}
		log := r.logger.With(
			zap.String("app_id", appID),
			zap.String("provider_template_id", pid),
			zap.String("element_name", key.name),
		)

		if key.name == "" {
			log.Warn("skipping remote template without element name")
			sum.Invalid++
			continue
		}

		local := byProviderID[pid]
		if local == nil {
			local = byName[key]
		}

		if local == nil {
			typ, ok := template.ParseType(rec.String("templateType"))
			if !ok {
				log.Warn("skipping remote template with unknown type", zap.String("template_type", rec.String("templateType")))
				sum.Invalid++
				continue
			}
			t := template.New(orgID, appID, key.name, key.lang, typ)
			if err := t.OverwriteFromRemote(rec); err != nil {
				log.Warn("malformed containerMeta, syncing record without it", zap.Error(err))
			}
			t.Rehash()
			creates = append(creates, t)
			claimed[t] = true
			if pid != "" {
				byProviderID[pid] = t
			}
			byName[key] = t
			continue
		}

		if claimed[local] {
			log.Warn("remote list repeats a template, keeping the first record")
			sum.Skipped++
			continue
		}
		claimed[local] = true

		candidate := local.Clone()
		if err := candidate.OverwriteFromRemote(rec); err != nil {
			log.Warn("malformed containerMeta, syncing record without it", zap.Error(err))
		}

		stored := local.Hash
		if stored == "" {
			stored = local.ComputeHash()
		}
		if candidate.ComputeHash() == stored {
			sum.Skipped++
			continue
		}
		candidate.Rehash()
		updates = append(updates, candidate)
	}

	if err := r.store.ApplySync(ctx, creates, updates); err != nil {
		return nil, fmt.Errorf("apply sync batch: %w", err)
	}

	sum.Created = len(creates)
	sum.Updated = len(updates)
	sum.Synced = sum.Created + sum.Updated

	metrics.RecordSyncRecords("created", sum.Created)
	metrics.RecordSyncRecords("updated", sum.Updated)
	metrics.RecordSyncRecords("skipped", sum.Skipped)
	metrics.RecordSyncRecords("invalid", sum.Invalid)

	r.logger.Info("template sync finished",
		zap.String("app_id", appID),
		zap.Int("remote", len(remotes)),
		zap.Int("created", sum.Created),
		zap.Int("updated", sum.Updated),
		zap.Int("skipped", sum.Skipped),
		zap.Int("invalid", sum.Invalid),
		zap.Duration("duration", time.Since(start)),
	)
	return &sum, nil
}
