// Package importer runs the Flarum to Discourse pipeline: users, then
// categories, then posts, each read in batches and written through the
// ID mapping store so that a run can be repeated safely.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/forumkit/flarum-importer/internal/conf"
	"github.com/forumkit/flarum-importer/internal/flarum"
	"github.com/forumkit/flarum-importer/internal/logger"
	"github.com/forumkit/flarum-importer/internal/mapping"
	"github.com/forumkit/flarum-importer/internal/target"
	"github.com/forumkit/flarum-importer/internal/target/repository"
)

// Step names a pipeline stage.
type Step string

const (
	StepUsers      Step = "users"
	StepCategories Step = "categories"
	StepPosts      Step = "posts"
)

// Steps returns the pipeline stages in the order they must run. Each stage
// needs the mappings of the ones before it.
func Steps() []Step {
	return []Step{StepUsers, StepCategories, StepPosts}
}

// Batch result labels for metrics.
const (
	BatchWritten = "written"
	BatchGated   = "skipped"
)

// Run status labels for metrics and notifications.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// StepResult summarizes one completed stage.
type StepResult struct {
	Step     Step
	Total    int64
	Batches  int
	Gated    int
	Stats    BatchStats
	Duration time.Duration
}

// RunSummary summarizes a whole run.
type RunSummary struct {
	RunID    string
	Steps    []StepResult
	Duration time.Duration
}

// Totals adds up the record counters of every step.
func (s RunSummary) Totals() BatchStats {
	var total BatchStats
	for _, r := range s.Steps {
		total.add(r.Stats)
	}
	return total
}

// Runner executes a single stage.
type Runner interface {
	Run(ctx context.Context, step Step) (StepResult, error)
}

// Sequence runs steps in order on r and stops at the first error.
func Sequence(ctx context.Context, r Runner, steps ...Step) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := r.Run(ctx, step)
		if err != nil {
			return results, fmt.Errorf("step %s: %w", step, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Reader is the source side of the pipeline.
type Reader interface {
	ReadUsers(ctx context.Context, limit, offset int) ([]flarum.User, error)
	ReadTags(ctx context.Context) ([]flarum.Tag, error)
	ReadPosts(ctx context.Context, limit, offset int) ([]flarum.PostRow, error)
	CountUsers(ctx context.Context) (int64, error)
	CountTags(ctx context.Context) (int64, error)
	CountPosts(ctx context.Context) (int64, error)
}

// Recorder receives pipeline metrics.
type Recorder interface {
	RecordBatch(step, result string, seconds float64)
	RecordRecords(step, outcome string, count int64)
	SetProgress(step string, offset int, total int64)
	RecordRun(status string, seconds float64)
	SetMappingCache(hits, misses int64)
}

type noopRecorder struct{}

func (noopRecorder) RecordBatch(string, string, float64) {}
func (noopRecorder) RecordRecords(string, string, int64) {}
func (noopRecorder) SetProgress(string, int, int64)      {}
func (noopRecorder) RecordRun(string, float64)           {}
func (noopRecorder) SetMappingCache(int64, int64)        {}

// Config controls batching.
type Config struct {
	BatchSize           int
	MaxBatchesPerSecond float64 // 0 disables pacing
	SkipAvatars         bool
	Force               bool          // take over a run left running by a crashed process
	StaleRunAfter       time.Duration // 0 keeps the state manager default, negative disables takeover
}

// ConfigFromSettings builds a Config from loaded settings.
func ConfigFromSettings(settings *conf.Settings, force bool) Config {
	staleAfter := settings.Import.StaleRunAfter
	if staleAfter == 0 {
		staleAfter = -1
	}
	return Config{
		BatchSize:           settings.Import.BatchSize,
		MaxBatchesPerSecond: settings.Import.MaxBatchesPerSecond,
		SkipAvatars:         settings.Import.SkipAvatars,
		Force:               force,
		StaleRunAfter:       staleAfter,
	}
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(imp *Importer) {
		if log != nil {
			imp.log = log.Module("importer")
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(imp *Importer) {
		if r != nil {
			imp.metrics = r
		}
	}
}

// WithAvatars enables avatar import.
func WithAvatars(a *AvatarImporter) Option {
	return func(imp *Importer) {
		imp.avatars = a
	}
}

// Importer runs the pipeline against one source and one target store.
type Importer struct {
	cfg      Config
	source   Reader
	mappings *mapping.Store
	state    *target.StateManager
	gate     *Gate
	writer   *Writer
	avatars  *AvatarImporter
	limiter  *rate.Limiter
	metrics  Recorder
	log      logger.Logger

	users      *UserMapper
	categories *CategoryMapper
	posts      *PostMapper
}

// New creates an importer reading from source and writing to db.
func New(cfg Config, source Reader, db *gorm.DB, mappings *mapping.Store, opts ...Option) *Importer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = conf.DefaultBatchSize
	}

	imp := &Importer{
		cfg:      cfg,
		source:   source,
		mappings: mappings,
		state:    target.NewStateManager(db),
		metrics:  noopRecorder{},
		log:      logger.NewSlogLogger(nil, logger.LogLevelInfo, nil).Module("importer"),
	}
	for _, opt := range opts {
		opt(imp)
	}
	if cfg.StaleRunAfter != 0 {
		imp.state.SetStaleAfter(cfg.StaleRunAfter)
	}

	limit := rate.Inf
	if cfg.MaxBatchesPerSecond > 0 {
		limit = rate.Limit(cfg.MaxBatchesPerSecond)
	}
	imp.limiter = rate.NewLimiter(limit, 1)

	imp.gate = NewGate(mappings, imp.log)
	imp.writer = NewWriter(db, mappings, imp.avatars, imp.log)
	imp.users = NewUserMapper(repository.NewUserRepository(db), cfg.SkipAvatars)
	imp.categories = NewCategoryMapper(mappings)
	imp.posts = NewPostMapper(mappings)
	return imp
}

// State returns the run state manager.
func (imp *Importer) State() *target.StateManager {
	return imp.state
}

// Execute starts a run and sequences every step.
func (imp *Importer) Execute(ctx context.Context) (RunSummary, error) {
	started := time.Now()
	summary := RunSummary{RunID: uuid.NewString()}
	ctx = logger.WithTraceID(ctx, summary.RunID)
	log := imp.log.WithContext(ctx)

	if err := imp.state.StartRun(summary.RunID, imp.cfg.Force); err != nil {
		return summary, err
	}
	log.Info("import run started",
		logger.String("run_id", summary.RunID),
		logger.Int("batch_size", imp.cfg.BatchSize),
		logger.Float64("max_batches_per_second", imp.cfg.MaxBatchesPerSecond))

	results, err := Sequence(ctx, imp, Steps()...)
	summary.Steps = results
	summary.Duration = time.Since(started)
	// Cached lookups are only reused within a run.
	imp.mappings.FlushCache()

	if err != nil {
		imp.metrics.RecordRun(RunFailed, summary.Duration.Seconds())
		if stateErr := imp.state.FailRun(err.Error()); stateErr != nil {
			log.Error("failed to record run failure", logger.Error(stateErr))
		}
		log.Error("import run failed",
			logger.Error(err),
			logger.Duration("elapsed", summary.Duration))
		return summary, err
	}

	imp.metrics.RecordRun(RunCompleted, summary.Duration.Seconds())
	if err := imp.state.CompleteRun(); err != nil {
		return summary, err
	}

	totals := summary.Totals()
	log.Info("import run completed",
		logger.Int64("created", totals.Created),
		logger.Int64("already_mapped", totals.AlreadyMapped),
		logger.Int64("skipped", totals.Skipped),
		logger.Int64("failed", totals.Failed),
		logger.Duration("elapsed", summary.Duration))
	return summary, nil
}

// Run executes one step. A run must have been started.
func (imp *Importer) Run(ctx context.Context, step Step) (StepResult, error) {
	started := time.Now()
	result := StepResult{Step: step}

	var err error
	switch step {
	case StepUsers:
		err = imp.runUsers(ctx, &result)
	case StepCategories:
		err = imp.runCategories(ctx, &result)
	case StepPosts:
		err = imp.runPosts(ctx, &result)
	default:
		return result, fmt.Errorf("unknown step %q", step)
	}
	result.Duration = time.Since(started)
	imp.metrics.SetMappingCache(imp.mappings.CacheStats())
	if err != nil {
		return result, err
	}

	imp.log.WithContext(ctx).Info("step completed",
		logger.String("step", string(step)),
		logger.Int("batches", result.Batches),
		logger.Int("gated", result.Gated),
		logger.Int64("created", result.Stats.Created),
		logger.Int64("already_mapped", result.Stats.AlreadyMapped),
		logger.Int64("skipped", result.Stats.Skipped),
		logger.Int64("failed", result.Stats.Failed),
		logger.Duration("elapsed", result.Duration))
	return result, nil
}

func (imp *Importer) beginStep(ctx context.Context, step Step, count func(context.Context) (int64, error), multiplier int64, result *StepResult) error {
	total, err := count(ctx)
	if err != nil {
		return err
	}
	result.Total = total * multiplier
	return imp.state.BeginStep(string(step), result.Total)
}

func (imp *Importer) runUsers(ctx context.Context, result *StepResult) error {
	if err := imp.beginStep(ctx, StepUsers, imp.source.CountUsers, 1, result); err != nil {
		return err
	}
	return runBatches(ctx, imp, result, batchPlan[flarum.User]{
		kind: mapping.KindUser,
		key:  func(u flarum.User) string { return mapping.Key(u.ID) },
		read: imp.source.ReadUsers,
		write: func(ctx context.Context, p Progress, batch []flarum.User) (BatchStats, error) {
			return imp.writer.CreateUsers(ctx, p, batch, imp.users.Transform)
		},
	})
}

// runCategories makes two passes over the tags: top-level categories
// first, then the child categories that need them as parents.
func (imp *Importer) runCategories(ctx context.Context, result *StepResult) error {
	if err := imp.beginStep(ctx, StepCategories, imp.source.CountTags, 2, result); err != nil {
		return err
	}
	tags, err := imp.source.ReadTags(ctx)
	if err != nil {
		return err
	}
	read := func(_ context.Context, limit, offset int) ([]flarum.Tag, error) {
		if offset >= len(tags) {
			return nil, nil
		}
		return tags[offset:min(offset+limit, len(tags))], nil
	}

	passes := []struct {
		kind      mapping.Kind
		transform Transform[flarum.Tag, CategoryPayload]
	}{
		{mapping.KindCategoryTop, imp.categories.TransformTop},
		{mapping.KindCategoryChild, imp.categories.TransformChild},
	}
	for i, pass := range passes {
		key := categoryKey(pass.kind)
		err := runBatches(ctx, imp, result, batchPlan[flarum.Tag]{
			kind:       pass.kind,
			key:        func(t flarum.Tag) string { return key(t.ID) },
			read:       read,
			offsetBase: i * len(tags),
			write: func(ctx context.Context, p Progress, batch []flarum.Tag) (BatchStats, error) {
				return imp.writer.CreateCategories(ctx, p, pass.kind, batch, pass.transform)
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (imp *Importer) runPosts(ctx context.Context, result *StepResult) error {
	if err := imp.beginStep(ctx, StepPosts, imp.source.CountPosts, 1, result); err != nil {
		return err
	}
	return runBatches(ctx, imp, result, batchPlan[flarum.PostRow]{
		kind: mapping.KindPost,
		key:  func(r flarum.PostRow) string { return mapping.Key(r.ID) },
		read: imp.source.ReadPosts,
		write: func(ctx context.Context, p Progress, batch []flarum.PostRow) (BatchStats, error) {
			return imp.writer.CreatePosts(ctx, p, batch, imp.posts.Transform)
		},
	})
}

// batchPlan wires one record type into the batches loop.
type batchPlan[S any] struct {
	kind       mapping.Kind
	key        func(S) string
	read       func(ctx context.Context, limit, offset int) ([]S, error)
	write      func(ctx context.Context, p Progress, batch []S) (BatchStats, error)
	offsetBase int // added to offsets recorded in the run state
}

// runBatches reads from offset 0 in BatchSize steps until a batch comes
// back empty. Fully mapped batches are skipped without writes.
func runBatches[S any](ctx context.Context, imp *Importer, result *StepResult, plan batchPlan[S]) error {
	step := string(result.Step)
	log := imp.log.WithContext(ctx).With(logger.String("step", step))

	for offset := 0; ; offset += imp.cfg.BatchSize {
		if err := imp.limiter.Wait(ctx); err != nil {
			return err
		}
		started := time.Now()

		batch, err := plan.read(ctx, imp.cfg.BatchSize, offset)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		ids := make([]string, len(batch))
		for i, rec := range batch {
			ids[i] = plan.key(rec)
		}
		gated, err := imp.gate.AllMigrated(ctx, plan.kind, ids)
		if err != nil {
			return err
		}

		var stats BatchStats
		if !gated {
			progress := Progress{Step: result.Step, Offset: offset, Total: result.Total}
			stats, err = plan.write(ctx, progress, batch)
			if err != nil {
				return err
			}
		}

		position := plan.offsetBase + offset + len(batch)
		if err := imp.state.RecordBatch(step, position, gated, stats.counts()); err != nil {
			return err
		}

		result.Batches++
		result.Stats.add(stats)
		label := BatchWritten
		if gated {
			result.Gated++
			label = BatchGated
		}
		imp.metrics.RecordBatch(step, label, time.Since(started).Seconds())
		imp.metrics.RecordRecords(step, "created", stats.Created)
		imp.metrics.RecordRecords(step, "already_mapped", stats.AlreadyMapped)
		imp.metrics.RecordRecords(step, "skipped", stats.Skipped)
		imp.metrics.RecordRecords(step, "failed", stats.Failed)
		imp.metrics.SetProgress(step, position, result.Total)

		log.Info("batch processed",
			logger.String("kind", string(plan.kind)),
			logger.Int("offset", offset),
			logger.Int("records", len(batch)),
			logger.Bool("gated", gated),
			logger.Int64("created", stats.Created),
			logger.Int64("total", result.Total))
	}
}
