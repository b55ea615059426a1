package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/config"
	"github.com/lalithlochan/templar/internal/crypto"
	"github.com/lalithlochan/templar/internal/db"
	"github.com/lalithlochan/templar/internal/observ"
)

type registerOptions struct {
	orgID    string
	orgName  string
	appID    string
	token    string
	phone    string
	provider string
}

func (o registerOptions) validate() error {
	var missing []string
	if o.orgID == "" {
		missing = append(missing, "--org")
	}
	if o.appID == "" {
		missing = append(missing, "--app")
	}
	if o.token == "" {
		missing = append(missing, "--token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	if !strings.EqualFold(o.provider, db.ProviderGupshup) {
		return fmt.Errorf("unsupported provider %q", o.provider)
	}
	return nil
}

func newAppCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Manage provider apps",
	}
	cmd.AddCommand(newAppRegisterCmd())
	return cmd
}

func newAppRegisterCmd() *cobra.Command {
	var opts registerOptions

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a provider app and store its encrypted token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validate(); err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.CredentialSecret == "" {
				return errors.New("CREDENTIAL_SECRET must be set to register apps")
			}

			logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			vault, err := crypto.NewVault(cfg.CredentialSecret)
			if err != nil {
				return err
			}
			sealed, err := vault.Seal(opts.appID, opts.token)
			if err != nil {
				return fmt.Errorf("encrypt token: %w", err)
			}

			ctx := cmd.Context()
			database, err := db.New(ctx, dbConfig(cfg), logger)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close()

			apps := db.NewAppRepository(database, logger)

			orgName := opts.orgName
			if orgName == "" {
				orgName = opts.orgID
			}
			if err := apps.UpsertOrganisation(ctx, &db.Organisation{ID: opts.orgID, Name: orgName}); err != nil {
				return err
			}

			app := &db.ProviderApp{
				AppID:          opts.appID,
				OrgID:          opts.orgID,
				ProviderName:   strings.ToLower(opts.provider),
				EncryptedToken: sealed,
				PhoneNumber:    opts.phone,
			}
			if err := apps.UpsertProviderApp(ctx, app); err != nil {
				return err
			}

			logger.Info("app registered", zap.String("app_id", app.AppID), zap.String("org_id", app.OrgID))
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s app %s for org %s\n", app.ProviderName, app.AppID, app.OrgID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.orgID, "org", "", "organisation id")
	cmd.Flags().StringVar(&opts.orgName, "org-name", "", "organisation display name")
	cmd.Flags().StringVar(&opts.appID, "app", "", "provider app id")
	cmd.Flags().StringVar(&opts.token, "token", "", "provider app token")
	cmd.Flags().StringVar(&opts.phone, "phone", "", "WhatsApp phone number")
	cmd.Flags().StringVar(&opts.provider, "provider", db.ProviderGupshup, "provider name")
	return cmd
}
