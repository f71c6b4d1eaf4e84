package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/evolonics/modelprep/internal/artifact"
	"github.com/evolonics/modelprep/internal/config"
	"github.com/evolonics/modelprep/internal/layout"
	"github.com/evolonics/modelprep/internal/logging"
	"github.com/evolonics/modelprep/internal/metrics"
	"github.com/evolonics/modelprep/internal/pipeline"
	"github.com/evolonics/modelprep/internal/schema"
	"github.com/evolonics/modelprep/internal/storage"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "modelprep",
		Short:         "Versioned data preparation pipeline for model training",
		Version:       fmt.Sprintf("%s (%s)", artifact.Version, artifact.GitSHA),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to the YAML configuration file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newIngestCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newTransformCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute all three stages for a new run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			run := layout.NewRun(time.Now())
			runner := pipeline.NewRunner(app.cfg, app.store, run, app.spec)
			return runner.RunAll(cmd.Context())
		},
	}
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run the ingestion stage for a new run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			run := layout.NewRun(time.Now())
			runner := pipeline.NewRunner(app.cfg, app.store, run, app.spec)
			ing, err := runner.RunIngestion(cmd.Context())
			if err != nil {
				return err
			}
			slog.Info("ingestion metadata written",
				"run_id", run.ID,
				"key", run.StageMetadata(layout.StageIngestion),
				"rows", ing.Rows,
			)
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the validation stage against an existing run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			run, err := resolveRun(cmd)
			if err != nil {
				return err
			}
			runner := pipeline.NewRunner(app.cfg, app.store, run, app.spec)
			_, err = runner.RunValidation(cmd.Context(), nil)
			return err
		},
	}
	cmd.Flags().String("run-id", "", "run to validate (required)")
	cmd.MarkFlagRequired("run-id")
	return cmd
}

func newTransformCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Run the transformation stage against an existing run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			run, err := resolveRun(cmd)
			if err != nil {
				return err
			}
			runner := pipeline.NewRunner(app.cfg, app.store, run, app.spec)
			_, err = runner.RunTransformation(cmd.Context(), nil)
			return err
		},
	}
	cmd.Flags().String("run-id", "", "run to transform (required)")
	cmd.MarkFlagRequired("run-id")
	return cmd
}

// app holds the shared process state a command needs.
type app struct {
	cfg   config.Config
	store storage.Store
	spec  *schema.Spec
}

// setup loads configuration, configures logging and metrics, opens the
// artifact store, and loads the schema.
func setup(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logging.Setup(cfg.Logging)
	slog.Info("starting", "version", artifact.Version, "git_sha", artifact.GitSHA)

	if cfg.Metrics.Enabled {
		metrics.Init("")
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	store, err := storage.New(context.Background(), storage.Config{
		Backend:   cfg.Artifacts.Backend,
		LocalDir:  cfg.Artifacts.LocalDir,
		BucketURL: cfg.Artifacts.BucketURL,
		Prefix:    cfg.Artifacts.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	spec, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{cfg: cfg, store: store, spec: spec}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		slog.Error("close artifact store", "error", err)
	}
}

func resolveRun(cmd *cobra.Command) (layout.Run, error) {
	id, _ := cmd.Flags().GetString("run-id")
	if id == "" {
		return layout.Run{}, fmt.Errorf("--run-id is required")
	}
	return layout.FromID(id), nil
}
