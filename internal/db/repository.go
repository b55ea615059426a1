package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/template"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const templateColumns = `
	id, org_id, app_id, element_name, language_code, template_type,
	category, old_category, content,
	media_url, vertical, footer, header, example, example_header,
	allow_category_change, enable_sample, example_media, payload, provider_metadata,
	status, provider_template_id, container_meta, button_supported,
	created_on, modified_on, data, external_id, internal_category, internal_type,
	language_policy, meta, namespace, priority, quality, retry, stage, waba_id,
	error_meta, webhook_meta, is_deleted, hash,
	created_at, updated_at`

func scanTemplate(row pgx.Row) (*template.Template, error) {
	var t template.Template
	err := row.Scan(
		&t.ID, &t.OrgID, &t.AppID, &t.ElementName, &t.LanguageCode, &t.Type,
		&t.Category, &t.OldCategory, &t.Content,
		&t.MediaURL, &t.Vertical, &t.Footer, &t.Header, &t.Example, &t.ExampleHeader,
		&t.AllowCategoryChange, &t.EnableSample, &t.ExampleMedia, &t.Payload, &t.ProviderMetadata,
		&t.Status, &t.ProviderTemplateID, &t.ContainerMeta, &t.ButtonSupported,
		&t.CreatedOn, &t.ModifiedOn, &t.Data, &t.ExternalID, &t.InternalCategory, &t.InternalType,
		&t.LanguagePolicy, &t.Meta, &t.Namespace, &t.Priority, &t.Quality, &t.Retry, &t.Stage, &t.WabaID,
		&t.ErrorMeta, &t.WebhookMeta, &t.DeleteState, &t.Hash,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(t.ContainerMeta) == 0 {
		t.ContainerMeta = nil
	}
	return &t, nil
}

// nonNil keeps jsonb columns NOT NULL.
func nonNil(b template.Blob) template.Blob {
	if b == nil {
		return template.Blob{}
	}
	return b
}

// TemplateRepository persists templates. Every write recomputes the hash.
type TemplateRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *DB, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

func (r *TemplateRepository) getOne(ctx context.Context, q querier, where string, args ...any) (*template.Template, error) {
	t, err := scanTemplate(q.QueryRow(ctx, `SELECT `+templateColumns+` FROM templates `+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepository) list(ctx context.Context, q querier, where string, args ...any) ([]*template.Template, error) {
	rows, err := q.Query(ctx, `SELECT `+templateColumns+` FROM templates `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []*template.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// GetTemplate returns the template with id scoped to its organisation and app.
func (r *TemplateRepository) GetTemplate(ctx context.Context, id uuid.UUID, orgID, appID string) (*template.Template, error) {
	return r.getOne(ctx, r.db.Pool(), `WHERE id = $1 AND org_id = $2 AND app_id = $3`, id, orgID, appID)
}

// GetByProviderID finds a template by the provider-assigned id.
func (r *TemplateRepository) GetByProviderID(ctx context.Context, providerTemplateID string) (*template.Template, error) {
	return r.getOne(ctx, r.db.Pool(),
		`WHERE provider_template_id = $1 ORDER BY updated_at DESC LIMIT 1`, providerTemplateID)
}

// GetByNameLanguage finds the most recently updated template with the given
// element name and language.
func (r *TemplateRepository) GetByNameLanguage(ctx context.Context, elementName, languageCode string) (*template.Template, error) {
	return r.getOne(ctx, r.db.Pool(),
		`WHERE element_name = $1 AND language_code = $2 ORDER BY updated_at DESC LIMIT 1`,
		elementName, languageCode)
}

// ListByApp returns every template stored for a provider app.
func (r *TemplateRepository) ListByApp(ctx context.Context, appID string) ([]*template.Template, error) {
	return r.list(ctx, r.db.Pool(), `WHERE app_id = $1 ORDER BY created_at`, appID)
}

func insertTemplate(ctx context.Context, q querier, t *template.Template) error {
	t.Rehash()
	return q.QueryRow(ctx, `
		INSERT INTO templates (`+templateColumns+`)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
			$31, $32, $33, $34, $35, $36, $37, $38, $39, $40, $41, $42, NOW(), NOW()
		)
		RETURNING created_at, updated_at`,
		t.ID, t.OrgID, t.AppID, t.ElementName, t.LanguageCode, t.Type,
		t.Category, t.OldCategory, t.Content,
		t.MediaURL, t.Vertical, t.Footer, t.Header, t.Example, t.ExampleHeader,
		t.AllowCategoryChange, t.EnableSample, t.ExampleMedia, nonNil(t.Payload), nonNil(t.ProviderMetadata),
		t.Status, t.ProviderTemplateID, nonNil(t.ContainerMeta), t.ButtonSupported,
		t.CreatedOn, t.ModifiedOn, t.Data, t.ExternalID, t.InternalCategory, t.InternalType,
		t.LanguagePolicy, t.Meta, t.Namespace, t.Priority, t.Quality, t.Retry, t.Stage, t.WabaID,
		nonNil(t.ErrorMeta), nonNil(t.WebhookMeta), t.DeleteState, t.Hash,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func updateTemplate(ctx context.Context, q querier, t *template.Template) error {
	t.Rehash()
	err := q.QueryRow(ctx, `
		UPDATE templates SET
			element_name = $2, language_code = $3, template_type = $4,
			category = $5, old_category = $6, content = $7,
			media_url = $8, vertical = $9, footer = $10, header = $11, example = $12, example_header = $13,
			allow_category_change = $14, enable_sample = $15, example_media = $16,
			payload = $17, provider_metadata = $18,
			status = $19, provider_template_id = $20, container_meta = $21, button_supported = $22,
			created_on = $23, modified_on = $24, data = $25, external_id = $26,
			internal_category = $27, internal_type = $28, language_policy = $29, meta = $30,
			namespace = $31, priority = $32, quality = $33, retry = $34, stage = $35, waba_id = $36,
			error_meta = $37, webhook_meta = $38, is_deleted = $39, hash = $40,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.ElementName, t.LanguageCode, t.Type,
		t.Category, t.OldCategory, t.Content,
		t.MediaURL, t.Vertical, t.Footer, t.Header, t.Example, t.ExampleHeader,
		t.AllowCategoryChange, t.EnableSample, t.ExampleMedia,
		nonNil(t.Payload), nonNil(t.ProviderMetadata),
		t.Status, t.ProviderTemplateID, nonNil(t.ContainerMeta), t.ButtonSupported,
		t.CreatedOn, t.ModifiedOn, t.Data, t.ExternalID,
		t.InternalCategory, t.InternalType, t.LanguagePolicy, t.Meta,
		t.Namespace, t.Priority, t.Quality, t.Retry, t.Stage, t.WabaID,
		nonNil(t.ErrorMeta), nonNil(t.WebhookMeta), t.DeleteState, t.Hash,
	).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Create inserts a new template.
func (r *TemplateRepository) Create(ctx context.Context, t *template.Template) error {
	if err := insertTemplate(ctx, r.db.Pool(), t); err != nil {
		r.logger.Error("failed to create template",
			zap.Error(err),
			zap.String("template_id", t.ID.String()),
		)
		return fmt.Errorf("insert template: %w", err)
	}

	r.logger.Info("template created",
		zap.String("template_id", t.ID.String()),
		zap.String("app_id", t.AppID),
		zap.String("element_name", t.ElementName),
	)
	return nil
}

// Mutate locks the template row, applies fn to a fresh copy and saves the
// result in the same transaction. An error from fn aborts without writing.
func (r *TemplateRepository) Mutate(ctx context.Context, id uuid.UUID, fn func(*template.Template) error) (*template.Template, error) {
	var out *template.Template
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		t, err := r.getOne(ctx, tx, `WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		if err := updateTemplate(ctx, tx, t); err != nil {
			return fmt.Errorf("update template: %w", err)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplySync writes a sync batch in one transaction. Either every staged
// create and update lands or none does.
func (r *TemplateRepository) ApplySync(ctx context.Context, creates, updates []*template.Template) error {
	if len(creates) == 0 && len(updates) == 0 {
		return nil
	}

	start := time.Now()
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, t := range creates {
			if err := insertTemplate(ctx, tx, t); err != nil {
				return fmt.Errorf("insert template %s: %w", t.ElementName, err)
			}
		}
		for _, t := range updates {
			if err := updateTemplate(ctx, tx, t); err != nil {
				return fmt.Errorf("update template %s: %w", t.ElementName, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("sync batch rolled back",
			zap.Error(err),
			zap.Int("creates", len(creates)),
			zap.Int("updates", len(updates)),
		)
		return err
	}

	r.logger.Info("sync batch committed",
		zap.Int("creates", len(creates)),
		zap.Int("updates", len(updates)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Delete removes the template row.
func (r *TemplateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.logger.Info("template deleted", zap.String("template_id", id.String()))
	return nil
}
