package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"lakedash/pkg/bus"
	"lakedash/services/lakedash/internal/dashboard"
	"lakedash/services/lakedash/internal/reportstore"
	"lakedash/services/lakedash/internal/version"
)

// storeEnv is the subset of configuration the offline report commands need.
type storeEnv struct {
	DBDSN   string `env:"DB_DSN"`
	NATSURL string `env:"NATS_URL"`
}

func loadStoreEnv(ctx context.Context) (storeEnv, error) {
	var env storeEnv
	if err := envconfig.Process(ctx, &env); err != nil {
		return storeEnv{}, fmt.Errorf("process env: %w", err)
	}
	return env, nil
}

func newReportsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect reports registered by the postgres backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newReportsGetCommand())
	cmd.AddCommand(newReportsListCommand())
	cmd.AddCommand(newReportsWatchCommand())
	return cmd
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, store *reportstore.Store) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := loadStoreEnv(ctx)
	if err != nil {
		return err
	}
	if env.DBDSN == "" {
		return errors.New("DB_DSN is required")
	}
	store, err := openReportStore(ctx, env.DBDSN)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func newReportsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <ref-or-name>",
		Short: "Print one report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *reportstore.Store) error {
				rec, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printReport(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func newReportsListCommand() *cobra.Command {
	var (
		workspace string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *reportstore.Store) error {
				recs, err := store.List(ctx, workspace, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, rec := range recs {
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), rec.WorkspaceName, rec.Name, rec.Ref)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", "", "Only list reports of this workspace")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of reports")
	return cmd
}

func newReportsWatchCommand() *cobra.Command {
	var durable string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream report creation events from NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			env, err := loadStoreEnv(ctx)
			if err != nil {
				return err
			}
			if env.NATSURL == "" {
				return errors.New("NATS_URL is required")
			}
			b, err := bus.New(env.NATSURL, nats.Name(version.Name+"-watch"))
			if err != nil {
				return fmt.Errorf("connect nats: %w", err)
			}
			defer b.Close()

			out := cmd.OutOrStdout()
			sub, err := b.Subscribe(ctx, dashboard.ReportsCreatedSubject, durable, func(_ context.Context, data []byte) error {
				var ev dashboard.ReportCreated
				if err := json.Unmarshal(data, &ev); err != nil {
					// Redelivery will not fix a malformed event.
					fmt.Fprintf(cmd.ErrOrStderr(), "skip malformed event: %v\n", err)
					return nil
				}
				_, err := fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", ev.WorkspaceName, ev.InputRef, ev.ReportName, ev.ReportRef)
				return err
			})
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			defer sub.Close()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&durable, "durable", version.Name+"-watch", "Durable consumer name")
	return cmd
}

func printReport(w io.Writer, rec reportstore.Record) error {
	links, err := rec.Links()
	if err != nil {
		return err
	}
	view := struct {
		reportstore.Record
		HTMLLinks []dashboard.HTMLLink `json:"html_links"`
	}{Record: rec, HTMLLinks: links}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
