package runner

import (
	"context"
	"sync"
	"time"

	"github.com/gridci/gridci/internal/cache"
	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/engine"
	"github.com/gridci/gridci/internal/logger"
	"github.com/gridci/gridci/internal/matrix"
	"github.com/gridci/gridci/internal/model"
	"github.com/gridci/gridci/internal/plugin"
	"github.com/gridci/gridci/internal/provision"
	griderrors "github.com/gridci/gridci/pkg/errors"
)

const defaultStepTimeout = 30 * time.Minute

// Options tunes a run. Zero values fall back to the config's settings
// block and then to defaults.
type Options struct {
	Workdir         string
	DryRun          bool
	ContinueOnError bool
	Parallel        int
	StepTimeout     time.Duration
}

// Events receives run progress for UI consumption. All callbacks are
// optional and may be invoked from concurrent entry goroutines.
type Events struct {
	OnEntryStart  func(entry matrix.Entry)
	OnStepStart   func(version, stepID string)
	OnStepResult  func(version string, result model.StepResult)
	OnEntryResult func(result model.EntryResult)
}

// Runner executes the full build matrix of one configuration.
type Runner struct {
	cfg      *config.Config
	registry *plugin.Registry
	log      *logger.Logger
	opts     Options
	events   Events
}

// New creates a runner. The registry must already hold a plugin for every
// step type the config can produce.
func New(cfg *config.Config, registry *plugin.Registry, log *logger.Logger, opts Options, events Events) *Runner {
	if opts.Parallel <= 0 {
		opts.Parallel = cfg.Settings.Parallel
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 1
	}
	if opts.StepTimeout <= 0 && cfg.Settings.Timeout > 0 {
		opts.StepTimeout = time.Duration(cfg.Settings.Timeout) * time.Second
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = defaultStepTimeout
	}
	if !opts.ContinueOnError {
		opts.ContinueOnError = cfg.Settings.ContinueOnError
	}
	if !opts.DryRun {
		opts.DryRun = cfg.Settings.DryRun
	}

	return &Runner{cfg: cfg, registry: registry, log: log, opts: opts, events: events}
}

// Run expands the matrix and executes every entry, bounded by the
// configured parallelism. It returns the aggregated report; the error is
// reserved for failures to start the run at all, not for entry failures,
// which the report carries.
func (r *Runner) Run(ctx context.Context) (matrix.Report, error) {
	entries, err := matrix.Expand(r.cfg)
	if err != nil {
		return matrix.Report{}, err
	}
	return r.RunEntries(ctx, entries)
}

// RunEntries executes an already-expanded set of entries. Callers that
// surface entries in a UI pass the same slice here so run identifiers
// line up.
func (r *Runner) RunEntries(ctx context.Context, entries []matrix.Entry) (matrix.Report, error) {
	cacheMgr, err := cache.NewManager(r.cfg.Cache, r.opts.Workdir, r.log)
	if err != nil {
		// A broken cache backend degrades to an uncached run.
		r.log.Warn("cache disabled: " + err.Error())
		cacheMgr = nil
	}

	results := make([]model.EntryResult, len(entries))
	slots := make(chan struct{}, r.opts.Parallel)
	var wg sync.WaitGroup

	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry matrix.Entry) {
			defer wg.Done()
			slots <- struct{}{}
			defer func() { <-slots }()
			results[i] = r.runEntry(ctx, entry, cacheMgr)
		}(i, entry)
	}
	wg.Wait()

	report := matrix.Aggregate(results)
	r.log.Infof("run finished: %s", report.Summary())
	return report, nil
}

func (r *Runner) runEntry(ctx context.Context, entry matrix.Entry, cacheMgr *cache.Manager) model.EntryResult {
	started := time.Now()
	log := r.log.WithEntry(entry.Version, entry.RunID)
	log.Info("entry started")
	if r.events.OnEntryStart != nil {
		r.events.OnEntryStart(entry)
	}

	result := model.EntryResult{
		RunID:        entry.RunID,
		Version:      entry.Version,
		AllowFailure: entry.AllowFailure,
		StartedAt:    started,
	}

	finish := func(steps []model.StepResult, runErr error) model.EntryResult {
		result.Steps = steps
		result.Duration = time.Since(started)
		result.Outcome = model.Classify(runErr != nil, entry.AllowFailure)
		if runErr != nil {
			result.Error = griderrors.NewEntryError(entry.Version, runErr)
			log.Error(runErr, "entry failed")
		} else {
			log.Infof("entry finished in %s", result.Duration.Round(time.Millisecond))
		}
		if r.events.OnEntryResult != nil {
			r.events.OnEntryResult(result)
		}
		return result
	}

	cacheKey := "entry-" + entry.Version
	if !r.opts.DryRun {
		cacheMgr.Restore(ctx, cacheKey)
	}

	prov, err := provision.Prepare(r.cfg.Provision, r.cfg.Env, r.opts.Workdir, log)
	if err != nil {
		return finish(nil, err)
	}
	prov.Env.Set("GRIDCI_RUNTIME_VERSION", entry.Version)
	prov.Env.Set("GRIDCI_RUN_ID", entry.RunID)

	steps := synthesizePipeline(r.cfg, entry, prov, r.opts.Workdir)
	graph, err := engine.BuildDAG(steps)
	if err != nil {
		return finish(nil, err)
	}
	plan, err := engine.GeneratePlan(graph)
	if err != nil {
		return finish(nil, err)
	}

	execCtx := &engine.ExecutionContext{
		Steps:           steps,
		Registry:        r.registry,
		DryRun:          r.opts.DryRun,
		ContinueOnError: r.opts.ContinueOnError,
		StepTimeout:     r.opts.StepTimeout,
		WorkerPool:      make(chan struct{}, r.opts.Parallel),
		Results:         make(map[string]*model.StepResult),
		Logger:          log,
		Context:         ctx,
	}
	if r.events.OnStepStart != nil {
		execCtx.OnStepStart = func(stepID string) { r.events.OnStepStart(entry.Version, stepID) }
	}
	if r.events.OnStepResult != nil {
		execCtx.OnStepResult = func(res model.StepResult) { r.events.OnStepResult(entry.Version, res) }
	}

	stepResults, execErr := engine.Execute(execCtx, plan)

	if !r.opts.DryRun && execErr == nil {
		cacheMgr.Save(ctx, cacheKey)
	}

	return finish(stepResults, execErr)
}
