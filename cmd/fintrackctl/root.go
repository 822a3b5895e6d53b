package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/core"
	applog "fintrack/internal/log"

	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every command.
type options struct {
	owner int64
	today string
	// logOutput receives diagnostics; stdout is reserved for results.
	logOutput io.Writer
}

func newRootCmd() *cobra.Command {
	opts := &options{logOutput: os.Stderr}

	root := &cobra.Command{
		Use:          "fintrackctl",
		Short:        "Personal finance ledger administration and reports",
		Long:         "Run migrations and print net income, graphs, upcoming expenses and budgets against the configured backend.",
		SilenceUsage: true,
	}
	root.PersistentFlags().Int64Var(&opts.owner, "owner", 0, "Owner id the report is for")
	root.PersistentFlags().StringVar(&opts.today, "today", "", "Evaluate as of this date (YYYY-MM-DD); defaults to the current date")

	root.AddCommand(
		newMigrateCmd(opts),
		newOwnersCmd(opts),
		newNetworthCmd(opts),
		newGraphCmd(opts),
		newUpcomingCmd(opts),
		newBudgetCmd(opts),
	)
	return root
}

// session is an opened backend plus the config it came from.
type session struct {
	cfg     *config.Config
	logger  *applog.Logger
	backend *backend.BackendResult
}

func (s *session) Close() {
	if err := s.backend.Cleanup(); err != nil {
		s.logger.Warn("Backend cleanup error", applog.FieldError, err)
	}
}

// open loads configuration and connects to the configured backend. Logs go
// to logOutput at warn level or above unless LOG_LEVEL asks for more.
func (o *options) open(ctx context.Context) (*session, error) {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	level := max(cfg.SlogLevel(), slog.LevelWarn)
	if cfg.SlogLevel() == slog.LevelDebug {
		level = slog.LevelDebug
	}
	logger := applog.New(applog.Config{Level: level, Component: applog.ComponentCLI, Output: o.logOutput})
	applog.SetDefault(logger)

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	be, err := cli.OpenBackend(openCtx, logger, cfg, nil)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, backend: be}, nil
}

func (o *options) ownerID() (int64, error) {
	if o.owner <= 0 {
		return 0, errors.New("--owner is required")
	}
	return o.owner, nil
}

func (o *options) todayDate() (core.Date, error) {
	if o.today == "" {
		return core.DateOf(time.Now()), nil
	}
	d, err := core.ParseDate(o.today)
	if err != nil {
		return core.Date{}, fmt.Errorf("--today: %w", err)
	}
	return d, nil
}
