/*
main.go - Application entry point

PURPOSE:
  Builds the checklist engine from its configuration and exposes it as a
  small CLI: the HTTP server with its background jobs, a one-shot audit,
  and an offline expansion of the instances of a range.

STARTUP SEQUENCE:
  1. Load config (YAML file, then .env and CHECKLIST_* overrides)
  2. Open the SQLite store and seed the schedule settings on first run
  3. Build calendar, expander, assembler and auditor
  4. Load custom holidays into the calendar
  5. Run the selected command

COMMANDS:
  serve    HTTP API plus audit and reminder cron jobs
  audit    Run the missed-instance auditor once and print the result
  expand   Print the derived instances of a range as JSON

GLOBAL FLAGS:
  --config  YAML config path (default: checklist.yaml, created if missing)
  --db      Overrides db_path (":memory:" for an ephemeral store)

EXAMPLES:
  ./server serve --config=/etc/checklist.yaml
  ./server audit --country=FR
  ./server expand --from=2024-01-01 --to=2024-01-31 --task=backup-check

SEE ALSO:
  - commands.go: Command implementations
  - internal/config/config.go: Configuration fields
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warp/checklist-engine/api"
	"github.com/warp/checklist-engine/assembler"
	"github.com/warp/checklist-engine/auditor"
	"github.com/warp/checklist-engine/calendar"
	"github.com/warp/checklist-engine/internal/config"
	applog "github.com/warp/checklist-engine/internal/log"
	"github.com/warp/checklist-engine/recurrence"
	"github.com/warp/checklist-engine/store/sqlite"
)

// version is set at build time using -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	return newRootCommand().Execute()
}

// options are the global flags shared by every command.
type options struct {
	configPath string
	dbPath     string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "server",
		Short:         "Recurring checklist engine",
		Long:          "Expands recurring operational tasks into dated instances and tracks their status.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "checklist.yaml", "YAML config path")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides config)")

	root.AddCommand(
		newServeCommand(opts),
		newAuditCommand(opts),
		newExpandCommand(opts),
	)
	return root
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// application holds the wired components for one command run.
type application struct {
	cfg       *config.Config
	store     *sqlite.Store
	assembler *assembler.Assembler
	auditor   *auditor.Auditor
	handler   *api.Handler
	logger    logrus.FieldLogger
}

func newApplication(ctx context.Context, opts *options) (*application, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	applog.SetLevel(cfg.LogLevel)
	logger := applog.GetLogger().WithField("country", cfg.Country)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	has, err := store.HasScheduleConfig(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	if !has && (cfg.Schedule.Global != nil || len(cfg.Schedule.PerPeriodicity) > 0) {
		if err := store.SaveScheduleConfig(ctx, cfg.Schedule); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to seed schedule: %w", err)
		}
		logger.Info("seeded schedule settings from config")
	}

	cal := calendar.NewService(nil)
	asm := assembler.New(store, recurrence.New(cal))
	aud := auditor.New(asm, store)
	aud.Log = store
	aud.LookbackDays = cfg.Audit.LookbackDays

	h := api.NewHandler(store, asm, aud, cfg.Country)
	h.MaxRangeDays = cfg.MaxRangeDays
	if err := h.SyncHolidays(ctx); err != nil {
		logger.WithError(err).Warn("failed to load custom holidays")
	}

	return &application{
		cfg:       cfg,
		store:     store,
		assembler: asm,
		auditor:   aud,
		handler:   h,
		logger:    logger,
	}, nil
}

func (a *application) Close() error {
	return a.store.Close()
}
