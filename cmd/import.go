package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/forumkit/flarum-importer/internal/avatar"
	"github.com/forumkit/flarum-importer/internal/flarum"
	"github.com/forumkit/flarum-importer/internal/importer"
	"github.com/forumkit/flarum-importer/internal/logger"
	"github.com/forumkit/flarum-importer/internal/mapping"
	"github.com/forumkit/flarum-importer/internal/notification"
	"github.com/forumkit/flarum-importer/internal/observability"
	"github.com/forumkit/flarum-importer/internal/target"
	"github.com/forumkit/flarum-importer/internal/telemetry"
)

const notifyTimeout = 30 * time.Second

func importCommand(app *Context) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import users, tags and discussions",
		Long: "Import users, then tags as categories, then discussions and posts. " +
			"Records already imported are skipped, so an interrupted run can simply be started again.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd.Context(), app, force, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&force, "force", false, "Take over a run still marked as running, e.g. after a crash")
	flags.Int("batch-size", 0, "Records per batch")
	flags.Float64("max-batches-per-second", 0, "Pace batches; 0 disables pacing")
	flags.Bool("skip-avatars", false, "Do not import avatars")
	flags.Bool("metrics", false, "Serve /metrics and /progress while importing")
	flags.String("metrics-listen", "", "Listen address of the metrics endpoint")

	for key, name := range map[string]string{
		"import.batchsize":           "batch-size",
		"import.maxbatchespersecond": "max-batches-per-second",
		"import.skipavatars":         "skip-avatars",
		"metrics.enabled":            "metrics",
		"metrics.listen":             "metrics-listen",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("error binding flag %s: %v", name, err))
		}
	}

	return cmd
}

func runImport(ctx context.Context, app *Context, force bool, out io.Writer) error {
	settings := app.Settings
	log := app.Log("cli")

	if _, err := telemetry.Init(&settings.Sentry, app.BuildInfo.GetVersion(), log); err != nil {
		log.Warn("telemetry disabled", logger.Error(err))
	}
	defer telemetry.Shutdown(telemetry.DefaultFlushTimeout)

	notifier, err := notification.New(&settings.Notify, log)
	if err != nil {
		return err
	}

	manager, err := target.NewManager(&settings.Target, app.Log("target"))
	if err != nil {
		return err
	}
	defer closeQuietly(log, "target", manager.Close)
	if err := manager.Initialize(); err != nil {
		return err
	}
	log.Info("target store ready",
		logger.String("dialect", manager.Dialect()),
		logger.String("path", manager.Path()))

	source, err := flarum.Open(ctx, &settings.Source, app.Log("flarum"))
	if err != nil {
		return err
	}
	defer closeQuietly(log, "source", source.Close)

	db := manager.DB()
	mappings := mapping.NewStore(db, settings.Import.MappingCacheTTL, app.Log("mapping"))

	opts := []importer.Option{importer.WithLogger(app.Log("importer"))}

	if !settings.Import.SkipAvatars {
		avatarSource, err := avatar.NewSource(&settings.Avatar, app.Log("avatar"))
		if err != nil {
			return err
		}
		defer closeQuietly(log, "avatar source", avatarSource.Close)
		uploader := avatar.NewUploader(settings.Target.UploadsDir, settings.Avatar.MaxSize)
		opts = append(opts, importer.WithAvatars(importer.NewAvatarImporter(avatarSource, uploader, db)))
	}

	var metrics *observability.Metrics
	if settings.Metrics.Enabled {
		metrics, err = observability.NewMetrics()
		if err != nil {
			return err
		}
		opts = append(opts, importer.WithRecorder(metrics.Import))
	}

	imp := importer.New(importer.ConfigFromSettings(settings, force), source, db, mappings, opts...)

	g, gctx := errgroup.WithContext(ctx)
	endpointCtx, stopEndpoint := context.WithCancel(gctx)
	defer stopEndpoint()

	if metrics != nil {
		endpoint, err := observability.NewEndpoint(&settings.Metrics, metrics, imp.State(), app.Log("metrics"))
		if err != nil {
			return err
		}
		g.Go(func() error {
			return runAuxiliary(endpointCtx, log, "metrics endpoint", endpoint.Run)
		})
	}

	var summary importer.RunSummary
	g.Go(func() error {
		defer stopEndpoint()
		var runErr error
		summary, runErr = imp.Execute(gctx)
		return runErr
	})
	runErr := g.Wait()

	notifyCtx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := notifier.RunFinished(notifyCtx, summary, runErr); err != nil {
		log.Warn("failed to send run notification", logger.Error(err))
	}

	if runErr != nil {
		return runErr
	}
	_, body := notification.FormatRun(summary, nil)
	_, err = fmt.Fprintln(out, body)
	return err
}

// runAuxiliary runs a service that lives next to the import. Its failure is
// logged and never aborts the run.
func runAuxiliary(ctx context.Context, log logger.Logger, what string, run func(context.Context) error) error {
	if err := run(ctx); err != nil {
		log.Warn(what+" stopped, continuing without it", logger.Error(err))
	}
	return nil
}

func closeQuietly(log logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Warn("failed to close "+what, logger.Error(err))
	}
}
