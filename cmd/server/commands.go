package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/checklist-engine/api"
	"github.com/warp/checklist-engine/assembler"
	"github.com/warp/checklist-engine/checklist"
	"github.com/warp/checklist-engine/recurrence"
)

const shutdownTimeout = 30 * time.Second

// =============================================================================
// SERVE
// =============================================================================

func newServeCommand(opts *options) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		Long: `Run the HTTP API together with the cron jobs.

The auditor persists "missing" for ended instances nobody touched; the
reminder scan notifies assignees of instances starting or ending soon.
An empty cron expression in the config disables the matching job.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApplication(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()
			if listen != "" {
				app.cfg.Listen = listen
			}

			sched := api.NewScheduler(app.assembler, app.auditor, app.cfg.Country)
			sched.AuditSpec = app.cfg.Audit.Cron
			sched.ReminderSpec = app.cfg.Reminders.Cron
			sched.ReminderLead = time.Duration(app.cfg.Reminders.LeadMinutes) * time.Minute
			if err := sched.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			defer sched.Stop()

			server := &http.Server{
				Addr:         app.cfg.Listen,
				Handler:      api.NewRouter(app.handler, app.cfg.CORSOrigins),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				app.logger.WithField("addr", server.Addr).Info("server starting")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-quit:
			}

			app.logger.Info("shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			app.logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	return cmd
}

// =============================================================================
// AUDIT
// =============================================================================

func newAuditCommand(opts *options) *cobra.Command {
	var country string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Record missed instances once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApplication(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()
			if country == "" {
				country = app.cfg.Country
			}

			res, err := app.auditor.Run(cmd.Context(), country)
			if err != nil {
				return fmt.Errorf("audit failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s..%s: %d tasks, %d instances examined, %d missing recorded\n",
				res.Country, res.Period.Start, res.Period.End,
				res.TasksScanned, res.InstancesExamined, res.RecordsWritten)
			return nil
		},
	}
	cmd.Flags().StringVar(&country, "country", "", "country code (default from config)")
	return cmd
}

// =============================================================================
// EXPAND
// =============================================================================

type expandFlags struct {
	from, to string
	task     string
	user     string
	country  string
	past     bool
}

func newExpandCommand(opts *options) *cobra.Command {
	f := &expandFlags{}

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Print the instances of a range as JSON",
		Long: `Print the derived instances of a range, status overlay included.

Future instances are listed unless --past-only is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			period, ok := recurrence.ParseRange(f.from, f.to)
			if !ok {
				return fmt.Errorf("invalid range %q..%q", f.from, f.to)
			}

			app, err := newApplication(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()
			if period.Len() > app.cfg.MaxRangeDays {
				return fmt.Errorf("range spans %d days, limit is %d", period.Len(), app.cfg.MaxRangeDays)
			}
			if f.country == "" {
				f.country = app.cfg.Country
			}

			list, err := app.assembler.List(cmd.Context(), assembler.Query{
				From:          f.from,
				To:            f.to,
				UserID:        checklist.UserID(f.user),
				Country:       f.country,
				IncludeFuture: !f.past,
			})
			if err != nil {
				return err
			}
			if f.task != "" {
				kept := list[:0]
				for _, inst := range list {
					if string(inst.TaskID) == f.task {
						kept = append(kept, inst)
					}
				}
				list = kept
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(api.InstanceDTOs(list))
		},
	}
	cmd.Flags().StringVar(&f.from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.to, "to", "", "last day, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.task, "task", "", "only this task ID")
	cmd.Flags().StringVar(&f.user, "user", "", "only instances visible to this user")
	cmd.Flags().StringVar(&f.country, "country", "", "country code (default from config)")
	cmd.Flags().BoolVar(&f.past, "past-only", false, "hide instances that have not started")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
