package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/packing-tracker/internal/async"
	"github.com/joseph-ayodele/packing-tracker/internal/common"
	"github.com/joseph-ayodele/packing-tracker/internal/export"
	"github.com/joseph-ayodele/packing-tracker/internal/feed"
	"github.com/joseph-ayodele/packing-tracker/internal/lifecycle"
	repo "github.com/joseph-ayodele/packing-tracker/internal/repository"
)

// app holds what every subcommand needs. It is built in PersistentPreRunE.
type app struct {
	cfg      *common.Config
	logger   *slog.Logger
	bus      feed.Bus
	store    repo.JobStore
	engine   *lifecycle.Engine
	exporter *export.Service
	out      io.Writer

	actor   string
	verbose bool
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{out: os.Stdout}
	root := newRootCommand(a)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		a.close()
		os.Exit(1)
	}
	a.close()
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "packingctl",
		Short:         "Drive packing jobs through the workflow board",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.actor, "actor", os.Getenv("USER"), "user recorded in the audit trail")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newCreateCommand(a),
		newAdvanceCommand(a),
		newReverseCommand(a),
		newDeleteCommand(a),
		newUpdateCommand(a),
		newProgressCommand(a),
		newCommentCommand(a),
		newGetCommand(a),
		newListCommand(a),
		newAuditCommand(a),
		newExportCommand(a),
		newAttachCommand(a),
		newWatchCommand(a),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	a.cfg = common.LoadConfig()
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	if a.cfg.NATS.URL != "" {
		nc, err := feed.Connect(a.cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		a.bus = feed.NewNATSBus(nc, a.cfg.NATS.SubjectPrefix, true, a.logger)
	} else {
		a.bus = feed.NewLocalBus()
	}

	store, err := repo.Open(ctx, a.cfg, a.bus, a.logger)
	if err != nil {
		return err
	}
	a.store = store
	a.engine = lifecycle.NewEngine(store, a.logger, lifecycle.WithPhaseCap(a.cfg.Sync.PhaseCap))
	a.exporter = export.NewService(a.engine, a.logger)
	return nil
}

func (a *app) close() {
	if a.store != nil {
		repo.Close(a.store, a.logger)
	}
	if a.bus != nil {
		a.bus.Close()
	}
}

func (a *app) requireActor() (string, error) {
	if a.actor == "" {
		return "", common.NewValidationError("--actor is required")
	}
	return a.actor, nil
}

// dispatcher builds the worker pool that runs progress flushes.
func (a *app) dispatcher() *async.Dispatcher {
	return async.NewDispatcher(a.logger,
		async.WithWorkers(a.cfg.Dispatch.Workers),
		async.WithQueueSize(a.cfg.Dispatch.QueueSize),
		async.WithTaskTimeout(a.cfg.Dispatch.Timeout),
	)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
