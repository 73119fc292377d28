package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"logalert/internal/app"
	"logalert/internal/config"
	"logalert/internal/domain"
	"logalert/internal/logging"
	"logalert/internal/session"
	"logalert/internal/view"

	"github.com/spf13/cobra"
)

// main runs the logalert CLI.
// Params: process arguments.
// Returns: exit code 1 on command failure.
func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile string
	configDir  string
}

func (o *rootOptions) source() (config.ConfigSource, error) {
	return config.FromCLI(o.configFile, o.configDir)
}

func (o *rootOptions) load() (config.Config, error) {
	source, err := o.source()
	if err != nil {
		return config.Config{}, err
	}
	return config.LoadSnapshot(source)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "logalert",
		Short:         "Logging Alert configuration service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config-file", "", "path to one TOML config file")
	root.PersistentFlags().StringVar(&opts.configDir, "config-dir", "", "path to directory with TOML config fragments")

	root.AddCommand(newServeCmd(opts), newValidateCmd(opts), newSettingsCmd(opts))
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP configuration API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			source, err := opts.source()
			if err != nil {
				return err
			}
			service, err := app.NewService(source)
			if err != nil {
				return fmt.Errorf("service init failed: %w", err)
			}
			if err := service.Run(cmd.Context()); err != nil {
				return fmt.Errorf("service run failed: %w", err)
			}
			return nil
		},
	}
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the service config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "config ok: service=%s mode=%s settings_fields=%d notification_fields=%d notifications=%d\n",
				cfg.Service.Name, cfg.Service.Mode, len(cfg.Fields.SettingsSet), len(cfg.Fields.NotifySet), len(cfg.Notifications))
			return err
		},
	}
}

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	settings := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or change stored Logging Alert configuration",
	}
	settings.AddCommand(newSettingsShowCmd(opts), newSettingsSetCmd(opts))
	return settings
}

func newSettingsShowCmd(opts *rootOptions) *cobra.Command {
	var (
		notification string
		details      bool
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print effective settings or one notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(cmd.Context(), opts, func(ctx context.Context, manager *app.Manager) error {
				return showSettings(ctx, cmd.OutOrStdout(), manager, notification, details)
			})
		},
	}
	cmd.Flags().StringVar(&notification, "notification", "", "notification id to show instead of global settings")
	cmd.Flags().BoolVar(&details, "details", false, "show notification details instead of summary")
	return cmd
}

func newSettingsSetCmd(opts *rootOptions) *cobra.Command {
	var (
		notification string
		unset        []string
	)
	cmd := &cobra.Command{
		Use:   "set [field=value...]",
		Short: "Edit and save global settings or one notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(unset) == 0 {
				return fmt.Errorf("nothing to change: pass field=value or --unset field")
			}
			return withManager(cmd.Context(), opts, func(ctx context.Context, manager *app.Manager) error {
				sess := manager.Settings()
				if notification != "" {
					var err error
					if sess, err = manager.NotificationSession(ctx, notification); err != nil {
						return err
					}
				}
				if err := applyEdits(ctx, sess, args, unset); err != nil {
					return err
				}
				return showSettings(ctx, cmd.OutOrStdout(), manager, notification, false)
			})
		},
	}
	cmd.Flags().StringVar(&notification, "notification", "", "notification id to edit instead of global settings")
	cmd.Flags().StringArrayVar(&unset, "unset", nil, "field to revert to its inherited value (repeatable)")
	return cmd
}

func withManager(ctx context.Context, opts *rootOptions, run func(context.Context, *app.Manager) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()
	if cfg.Service.Mode == config.StoreModeMemory {
		logger.Warn("memory store: changes are not kept after this command")
	}

	initCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Service.InitTimeoutSec)*time.Second)
	defer cancel()
	manager, closeStore, err := app.OpenManager(initCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	// Best effort: views fall back to builtin values and raw stream ids.
	_ = manager.Preload(initCtx)
	return run(ctx, manager)
}

// applyEdits opens the session, applies every edit and saves; any failure cancels.
func applyEdits(ctx context.Context, sess *session.Session, assignments, unset []string) error {
	if _, err := sess.Open(session.AllowAll{}); err != nil {
		return err
	}
	if err := editAll(sess, assignments, unset); err != nil {
		_ = sess.Cancel()
		return err
	}
	if err := sess.Save(ctx); err != nil {
		_ = sess.Cancel()
		return err
	}
	return nil
}

func editAll(sess *session.Session, assignments, unset []string) error {
	for _, assignment := range assignments {
		name, raw, ok := strings.Cut(assignment, "=")
		if !ok {
			return fmt.Errorf("expected field=value, got %q", assignment)
		}
		field, err := domain.ParseField(name)
		if err != nil {
			return err
		}
		value, err := domain.ParseValue(field, raw)
		if err != nil {
			return err
		}
		if err := sess.Edit(field, value); err != nil {
			return err
		}
	}
	for _, name := range unset {
		field, err := domain.ParseField(name)
		if err != nil {
			return err
		}
		if err := sess.Unset(field); err != nil {
			return err
		}
	}
	return nil
}

func showSettings(ctx context.Context, out io.Writer, manager *app.Manager, notification string, details bool) error {
	if notification == "" {
		return view.Render(out, manager.SettingsForm())
	}
	if details {
		model, err := manager.NotificationDetails(ctx, notification)
		if err != nil {
			return err
		}
		return view.Render(out, model)
	}
	model, err := manager.NotificationSummary(ctx, notification)
	if err != nil {
		return err
	}
	return view.Render(out, model)
}
