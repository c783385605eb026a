package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"schedulease/internal/api"
	"schedulease/internal/audit"
	"schedulease/internal/models"
	"schedulease/internal/sheets"
)

func newExportAuditCommand(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export-audit",
		Short: "Write every stored record to an Excel workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			st, _, err := openStore(cmd.Context(), cfg, &logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if out == "" {
				out = audit.Filename(time.Now())
			} else if filepath.Ext(out) == "" {
				out = filepath.Join(out, audit.Filename(time.Now()))
			}
			n, err := audit.NewExporter(st, &logger).ExportToFile(cmd.Context(), out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file or directory")
	return cmd
}

func newSyncSheetsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-sheets",
		Short: "Rewrite the Google Sheets mirror from the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if !cfg.Sheets.Enabled {
				return fmt.Errorf("sheets.enabled is false")
			}
			st, _, err := openStore(cmd.Context(), cfg, &logger)
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := sheets.NewSheetsService(cmd.Context(), cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, st, &logger)
			if err != nil {
				return err
			}
			n, err := svc.SyncAppointments(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d appointments\n", n)
			return nil
		},
	}
}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var id models.Identity
	var role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			id.Role = models.Role(role)
			switch id.Role {
			case models.RoleAdmin, models.RoleInternal, models.RoleExternal:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.TokenTTL()).Issue(id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id.UserID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleExternal), "admin | internal user | external user")
	cmd.Flags().StringVar(&id.Email, "email", "", "email address")
	cmd.Flags().StringVar(&id.Name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
