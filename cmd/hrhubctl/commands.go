package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/shakil5281/HrHub-sub001/cmd/hrhubctl/cli"
	"github.com/shakil5281/HrHub-sub001/internal/app"
	"github.com/shakil5281/HrHub-sub001/internal/platform/db"
	"github.com/shakil5281/HrHub-sub001/internal/rbac"
	"github.com/shakil5281/HrHub-sub001/internal/users"
	"github.com/shakil5281/HrHub-sub001/jobs"
)

type resolverFlags struct {
	user     string
	code     string
	resource string
	json     bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "hrhubctl",
		Short:         "HrHub permission operator tool",
		Long:          `Inspect effective permissions and manage the audit queue of an HrHub deployment.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
			return exitCode(2)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newCheckCmd())
	root.AddCommand(newEffectiveCmd())
	root.AddCommand(newPruneAuditCmd())
	root.AddCommand(newQueueCmd())
	return root
}

func newCheckCmd() *cobra.Command {
	var f resolverFlags
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Decide one permission for a user",
		Long:  `Prints the decision and exits 0 when allowed, 10 when denied and 1 on error.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPermissionsCLI(cmd, func(ctx context.Context, p *cli.PermissionsCLI) int {
				return p.CheckCommand(ctx, cli.CheckOptions{
					UserID:     f.user,
					Code:       f.code,
					Resource:   f.resource,
					JSONOutput: f.json,
					Stdout:     cmd.OutOrStdout(),
					Stderr:     cmd.ErrOrStderr(),
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.user, "user", "", "user id")
	cmd.Flags().StringVar(&f.code, "code", "", "permission code")
	cmd.Flags().StringVar(&f.resource, "resource", "", "resource qualifier, empty for any")
	cmd.Flags().BoolVar(&f.json, "json", false, "print JSON")
	return cmd
}

func newEffectiveCmd() *cobra.Command {
	var f resolverFlags
	cmd := &cobra.Command{
		Use:   "effective",
		Short: "Print a user's roles, overrides and effective permissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPermissionsCLI(cmd, func(ctx context.Context, p *cli.PermissionsCLI) int {
				return p.SummaryCommand(ctx, cli.SummaryOptions{
					UserID:     f.user,
					JSONOutput: f.json,
					Stdout:     cmd.OutOrStdout(),
					Stderr:     cmd.ErrOrStderr(),
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.user, "user", "", "user id")
	cmd.Flags().BoolVar(&f.json, "json", false, "print JSON")
	return cmd
}

func newPruneAuditCmd() *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "prune-audit",
		Short: "Enqueue an audit retention run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if retention <= 0 {
				retention = cfg.AuditRetention
			}
			jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
			defer jobsCLI.Close()
			info, err := jobsCLI.Trigger(cmd.Context(), jobs.TaskAuditPrune, retention)
			if err != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "prune-audit: %v\n", err)
				return exitCode(1)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "delete audit entries older than this (default AUDIT_RETENTION)")
	return cmd
}

func newQueueCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Print queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
			defer jobsCLI.Close()
			stats, err := jobsCLI.InspectQueue(cmd.Context(), name)
			if err != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "queue: %v\n", err)
				return exitCode(1)
			}
			_ = json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", jobs.QueueAudit, "queue to inspect")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "load config: %v\n", err)
		return nil, exitCode(1)
	}
	slog.SetDefault(app.NewLogger(cfg))
	return cfg, nil
}

func withPermissionsCLI(cmd *cobra.Command, fn func(context.Context, *cli.PermissionsCLI) int) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.New(connectCtx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "connect database: %v\n", err)
		return exitCode(1)
	}
	defer pool.Close()

	directory := users.NewDirectory(users.NewRepository(pool))
	resolver := rbac.NewResolver(rbac.NewRepository(pool, cfg.StoreTimeout), directory, rbac.Config{StoreTimeout: cfg.StoreTimeout})
	permissionsCLI, err := cli.NewPermissionsCLI(resolver)
	if err != nil {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitCode(1)
	}
	if code := fn(ctx, permissionsCLI); code != 0 {
		return exitCode(code)
	}
	return nil
}
