package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"inboxt_server/core/domain"
	"inboxt_server/internal/bootstrap"
)

func newDigestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Build digests from the command line",
	}
	cmd.AddCommand(newDigestRunCmd())
	return cmd
}

func newDigestRunCmd() *cobra.Command {
	var (
		userID  string
		trigger string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build digests for every due user, or for one user with --user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var uid uuid.UUID
			if userID != "" {
				var err error
				if uid, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
			}
			t, err := parseTrigger(trigger)
			if err != nil {
				return err
			}

			cfg, err := loadConfig("inboxt-cli")
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if userID == "" {
				summary, err := deps.DigestRunner.RunDaily(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, summary)
			}

			res := deps.DigestRunner.RunUser(ctx, uid, t)
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if res.Status == domain.RunError {
				return fmt.Errorf("digest run failed: %s", res.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "build only this user's digest")
	cmd.Flags().StringVar(&trigger, "trigger", string(domain.TriggerManual), "trigger for --user: manual or scheduled")
	return cmd
}

func parseTrigger(s string) (domain.DigestTrigger, error) {
	switch t := domain.DigestTrigger(s); t {
	case domain.TriggerManual, domain.TriggerScheduled:
		return t, nil
	default:
		return "", fmt.Errorf("unknown trigger %q (want manual or scheduled)", s)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
