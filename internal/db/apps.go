package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// AppRepository stores organisations and their provider apps.
type AppRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewAppRepository(db *DB, logger *zap.Logger) *AppRepository {
	return &AppRepository{
		db:     db,
		logger: logger,
	}
}

// GetProviderApp returns the app registered for orgID.
func (r *AppRepository) GetProviderApp(ctx context.Context, appID, orgID string) (*ProviderApp, error) {
	query := `
		SELECT app_id, org_id, provider_name, encrypted_token, phone_number, created_at, updated_at
		FROM provider_apps
		WHERE app_id = $1 AND org_id = $2
	`

	var app ProviderApp
	err := r.db.Pool().QueryRow(ctx, query, appID, orgID).Scan(
		&app.AppID,
		&app.OrgID,
		&app.ProviderName,
		&app.EncryptedToken,
		&app.PhoneNumber,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query provider app: %w", err)
	}
	return &app, nil
}

// UpsertOrganisation creates the organisation or renames it.
func (r *AppRepository) UpsertOrganisation(ctx context.Context, org *Organisation) error {
	err := r.db.Pool().QueryRow(ctx, `
		INSERT INTO organisations (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		RETURNING created_at`,
		org.ID, org.Name,
	).Scan(&org.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert organisation: %w", err)
	}
	return nil
}

// UpsertProviderApp registers an app or rotates its token.
func (r *AppRepository) UpsertProviderApp(ctx context.Context, app *ProviderApp) error {
	err := r.db.Pool().QueryRow(ctx, `
		INSERT INTO provider_apps (app_id, org_id, provider_name, encrypted_token, phone_number)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (app_id) DO UPDATE SET
			org_id = EXCLUDED.org_id,
			provider_name = EXCLUDED.provider_name,
			encrypted_token = EXCLUDED.encrypted_token,
			phone_number = EXCLUDED.phone_number,
			updated_at = NOW()
		RETURNING created_at, updated_at`,
		app.AppID, app.OrgID, app.ProviderName, app.EncryptedToken, app.PhoneNumber,
	).Scan(&app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to upsert provider app",
			zap.Error(err),
			zap.String("app_id", app.AppID),
		)
		return fmt.Errorf("upsert provider app: %w", err)
	}

	r.logger.Info("provider app registered",
		zap.String("app_id", app.AppID),
		zap.String("org_id", app.OrgID),
		zap.String("provider", app.ProviderName),
	)
	return nil
}
