package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mergimg0/ttnts121-sub002/internal/auth"
	"github.com/mergimg0/ttnts121-sub002/internal/config"
	"github.com/mergimg0/ttnts121-sub002/internal/db"
	"github.com/mergimg0/ttnts121-sub002/internal/email"
	"github.com/mergimg0/ttnts121-sub002/internal/refund"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != "postgres" {
				return fmt.Errorf("migrations only apply to the postgres store, STORE_DRIVER is %q", cfg.StoreDriver)
			}

			database, err := db.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

type previewOptions struct {
	amount     int64
	start      string
	now        string
	policyFile string
	asJSON     bool
}

func refundPreviewCmd() *cobra.Command {
	var opts previewOptions

	cmd := &cobra.Command{
		Use:   "refund-preview",
		Short: "Evaluate the refund policy for an amount and session start",
		Long: `Evaluate the refund policy offline.

Examples:
  bookingctl refund-preview --amount 10000 --start 2026-05-01T09:00:00Z
  bookingctl refund-preview --amount 10000 --start 2026-05-01 --policy policy.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefundPreview(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().Int64Var(&opts.amount, "amount", 0, "amount paid, in minor units")
	cmd.Flags().StringVar(&opts.start, "start", "", "session start (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.now, "now", "", "evaluate as of this time instead of the current time")
	cmd.Flags().StringVar(&opts.policyFile, "policy", "", "policy file (YAML or JSON); default policy when empty")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the decision as JSON")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("start")

	return cmd
}

func runRefundPreview(w io.Writer, opts previewOptions) error {
	start, err := parseTime(opts.start)
	if err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	now := time.Now()
	if opts.now != "" {
		if now, err = parseTime(opts.now); err != nil {
			return fmt.Errorf("--now: %w", err)
		}
	}

	policy := refund.DefaultPolicy()
	if opts.policyFile != "" {
		if policy, err = refund.LoadFile(opts.policyFile); err != nil {
			return err
		}
	}

	d, err := refund.Evaluate(opts.amount, start, now, policy)
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}

	fmt.Fprintf(w, "Policy:   %s\n", policy.Name)
	fmt.Fprintf(w, "Days:     %d\n", d.DaysUntilSession)
	fmt.Fprintf(w, "Refund:   %s (%d%%)\n", email.FormatMoney(d.RefundAmount), d.RefundPercentage)
	fmt.Fprintf(w, "Reason:   %s\n", d.Reason)
	return nil
}

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect refund policy files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Check that a policy file loads and is complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := refund.LoadFile(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: ok\n", p.Name)
			for _, r := range p.Sorted() {
				fmt.Fprintf(w, "  %3d+ days  %3d%%\n", r.MinDaysBeforeSession, r.RefundPercentage)
			}
			return nil
		},
	})

	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		mail   string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token signed with JWT_SECRET, for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := auth.GenerateAccessToken(userID, mail, role, cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "local-user", "subject user id")
	cmd.Flags().StringVar(&mail, "email", "", "caller email")
	cmd.Flags().StringVar(&role, "role", auth.RoleParent, "parent or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.AccessTokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse %q as RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}
