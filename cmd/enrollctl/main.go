package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-sync/internal/cluster"
	"github.com/noah-isme/sma-enrollment-sync/internal/models"
	"github.com/noah-isme/sma-enrollment-sync/internal/replication"
	"github.com/noah-isme/sma-enrollment-sync/internal/repository"
	"github.com/noah-isme/sma-enrollment-sync/internal/service"
	"github.com/noah-isme/sma-enrollment-sync/pkg/config"
	"github.com/noah-isme/sma-enrollment-sync/pkg/logger"
	"github.com/noah-isme/sma-enrollment-sync/pkg/storage"
)

var timeout time.Duration

func main() {
	rootCmd := &cobra.Command{
		Use:           "enrollctl",
		Short:         "Operate the enrollment leaders directly",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall deadline for the command")

	rootCmd.AddCommand(
		leadersCmd(),
		migrateCmd(),
		healCmd(),
		reportCmd(),
		tokenCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	cluster *cluster.Cluster
}

func setup() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	c, err := cluster.New(cfg.Cluster, cfg.Replication, cluster.WithLogger(logger.Component(logr, "cluster")))
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logr, cluster: c}, nil
}

func (r *runtime) close() {
	_ = r.cluster.Close()
	_ = r.logger.Sync()
}

func withRuntime(fn func(ctx context.Context, rt *runtime) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}
		defer rt.close()
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return fn(ctx, rt)
	}
}

func leadersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaders",
		Short: "Check connectivity to every configured leader",
		RunE: withRuntime(func(ctx context.Context, rt *runtime) error {
			statuses := service.NewLeaderService(rt.cluster, rt.logger).Ping(ctx)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LEADER\tLOCAL\tREACHABLE\tLATENCY\tERROR")
			for _, s := range statuses {
				fmt.Fprintf(w, "%s\t%t\t%t\t%s\t%s\n", s.Leader, rt.cluster.IsLocal(s.Leader), s.Reachable, s.Latency.Round(time.Millisecond), s.Error)
			}
			return w.Flush()
		}),
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the enrollment tables on every reachable leader",
		RunE: withRuntime(func(ctx context.Context, rt *runtime) error {
			results := rt.cluster.FanOut(ctx, rt.cluster.IDs(), func(ctx context.Context, _ string, db *sqlx.DB) error {
				return repository.EnsureSchema(ctx, db)
			})
			report := results.Report()
			for _, id := range report.Succeeded {
				fmt.Printf("%s: schema ready\n", id)
			}
			for _, id := range report.Lagging() {
				fmt.Printf("%s: %s\n", id, report.Failed[id])
			}
			if len(report.Succeeded) == 0 {
				return fmt.Errorf("no leader migrated")
			}
			return nil
		}),
	}
}

func healCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heal",
		Short: "Heal the local leaders against every other leader",
		RunE: withRuntime(func(ctx context.Context, rt *runtime) error {
			healer := replication.NewHealer(rt.cluster, nil, logger.Component(rt.logger, "healer"))
			report, err := healer.HealAll(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "REMOTE\tTABLE\tDIRECTION\tIMPORTED\tSKIPPED\tERROR")
			for _, remote := range report.Remotes {
				if remote.Unreachable || remote.Error != "" {
					fmt.Fprintf(w, "%s\t-\t-\t0\t0\t%s\n", remote.Leader, remote.Error)
					continue
				}
				for _, m := range remote.Merges {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", remote.Leader, m.Table, m.Direction, m.Imported, m.Skipped, m.Error)
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("outcome %s, %d rows imported\n", report.Outcome(), report.Imported())
			if report.Outcome() == models.OutcomeFailed {
				return fmt.Errorf("heal failed")
			}
			return nil
		}),
	}
}

func reportCmd() *cobra.Command {
	var (
		format, dir string
		keep        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export the consolidated enrollment report",
		RunE: withRuntime(func(ctx context.Context, rt *runtime) error {
			file, err := service.NewReportService(rt.cluster, rt.logger).Export(ctx, models.ReportFormat(format))
			if err != nil {
				return err
			}
			store, err := storage.NewLocalStorage(dir)
			if err != nil {
				return err
			}
			path, err := store.Save(file.Filename, file.Data)
			if err != nil {
				return err
			}
			fmt.Println(path)
			if keep > 0 {
				pruned, err := store.CleanupOlderThan("enrollments-", keep)
				if err != nil {
					return err
				}
				for _, name := range pruned {
					fmt.Fprintf(os.Stderr, "pruned %s\n", name)
				}
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&format, "format", string(models.ReportFormatCSV), "Report format: json, csv or pdf")
	cmd.Flags().StringVar(&dir, "dir", "./reports", "Directory to write the report into")
	cmd.Flags().DurationVar(&keep, "keep", 0, "Prune earlier reports older than this, 0 keeps everything")
	return cmd
}

func tokenCmd() *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the mutating API routes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			auth := service.NewAuthService(nil, nil, service.AuthConfig{
				AccessTokenSecret: cfg.JWT.Secret,
				AccessTokenExpiry: cfg.JWT.Expiration,
			})
			token, err := auth.IssueToken(models.TokenRequest{Operator: operator})
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", token.TokenType, token.AccessToken)
			fmt.Fprintf(os.Stderr, "expires in %ds\n", token.ExpiresIn)
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "Operator name recorded in the token")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}
