package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/bongard-harvester/pkg/problem"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Fetcher fetches and validates one problem page.
type Fetcher interface {
	Fetch(ctx context.Context, id problem.ID) (*problem.Page, error)
}

// Store persists the assets of a validated page.
type Store interface {
	Persist(ctx context.Context, page *problem.Page) (*problem.Persisted, error)
}

// Index is the append-only record of completed problems.
// It is only used from the goroutine running Run.
type Index interface {
	Append(row problem.Row) error
	Has(id problem.ID) bool
}

// Pacer spaces out consecutive problems handled by one worker.
type Pacer interface {
	Pause(ctx context.Context) error
}

// Deps are the collaborators of a Harvester.
type Deps struct {
	Fetcher Fetcher
	Store   Store
	Index   Index
	Pacer   Pacer
	Logger  zerolog.Logger
}

// Config holds harvester configuration.
type Config struct {
	// Workers is the number of problems processed in parallel.
	Workers int

	// Window bounds how many problems may be dispatched but not yet released
	// to the index. It caps the reorder buffer when an early problem is slow.
	// Default: Workers*4.
	Window int

	// ProgressEvery logs a progress line every N released problems.
	ProgressEvery int

	// RunID tags log lines of the run. A random UUID is used when empty.
	RunID string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Workers:       7,
		ProgressEvery: 50,
	}
}

// Harvester runs crawls. A Harvester runs one crawl at a time.
type Harvester struct {
	deps   Deps
	config Config
	logger zerolog.Logger
}

// New creates a harvester.
func New(deps Deps, config Config) (*Harvester, error) {
	if deps.Fetcher == nil || deps.Store == nil || deps.Index == nil {
		return nil, fmt.Errorf("fetcher, store and index are required")
	}
	if config.Workers <= 0 {
		config.Workers = 7
	}
	if config.Window < config.Workers {
		config.Window = config.Workers * 4
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = 50
	}
	if config.RunID == "" {
		config.RunID = uuid.NewString()
	}

	return &Harvester{
		deps:   deps,
		config: config,
		logger: deps.Logger.With().Str("run_id", config.RunID).Logger(),
	}, nil
}

// RunID returns the ID tagging this harvester's log lines.
func (h *Harvester) RunID() string {
	return h.config.RunID
}

type job struct {
	seq int
	id  problem.ID
}

type outcome struct {
	seq       int
	id        problem.ID
	persisted *problem.Persisted
	err       error
	duration  time.Duration
}

// Run crawls IDs start..end inclusive and appends one index row per completed
// problem in ID order. Failed problems are logged and skipped.
//
// The returned error is non-nil only for invalid arguments or when the index
// cannot be written; the Summary is valid in both cases.
func (h *Harvester) Run(ctx context.Context, start, end problem.ID) (Summary, error) {
	summary := newSummary(h.config.RunID, start, end)
	if start < 1 || end < start {
		return summary, fmt.Errorf("invalid id range [%d, %d]", start, end)
	}
	began := time.Now()

	pending := make([]problem.ID, 0, int(end-start)+1)
	for id := start; id <= end; id++ {
		if h.deps.Index.Has(id) {
			summary.AlreadyIndexed++
			problemsTotal.WithLabelValues("already_indexed").Inc()
			continue
		}
		pending = append(pending, id)
	}

	h.logger.Info().
		Int("start_id", int(start)).
		Int("end_id", int(end)).
		Int("pending", len(pending)).
		Int("already_indexed", summary.AlreadyIndexed).
		Int("workers", h.config.Workers).
		Msg("Starting harvest")

	// dispatchCtx stops handing out work; it ends with the caller's context or
	// when the index fails.
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	// Workers never see the cancellation: an ID once started is finished.
	workCtx := context.WithoutCancel(ctx)

	jobs := make(chan job)
	results := make(chan outcome, h.config.Window)
	window := make(chan struct{}, h.config.Window)
	var dispatched atomic.Int64

	go func() {
		defer close(jobs)
		for seq, id := range pending {
			if dispatchCtx.Err() != nil {
				return
			}
			select {
			case window <- struct{}{}:
			case <-dispatchCtx.Done():
				return
			}
			if dispatchCtx.Err() != nil {
				<-window
				return
			}
			select {
			case jobs <- job{seq: seq, id: id}:
				dispatched.Add(1)
				inFlight.Inc()
			case <-dispatchCtx.Done():
				<-window
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < h.config.Workers; i++ {
		wg.Add(1)
		go h.worker(ctx, workCtx, jobs, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Reorder buffer: release outcomes strictly by sequence number.
	buffered := make(map[int]outcome)
	next := 0
	var indexErr error

	for o := range results {
		buffered[o.seq] = o
		for {
			ready, ok := buffered[next]
			if !ok {
				break
			}
			delete(buffered, next)
			next++
			<-window
			inFlight.Dec()

			if indexErr == nil {
				if err := h.release(ready, &summary); err != nil {
					indexErr = err
					stopDispatch()
				}
			}

			if released := summary.Completed + summary.SkippedTotal(); released > 0 && released%h.config.ProgressEvery == 0 {
				h.logger.Info().
					Int("released", released).
					Int("pending", len(pending)).
					Float64("progress_pct", float64(released)/float64(len(pending))*100).
					Msg("Harvest progress")
			}
		}
		reorderBuffered.Set(float64(len(buffered)))
	}

	summary.Dispatched = int(dispatched.Load())
	summary.Cancelled = ctx.Err() != nil && summary.Dispatched < len(pending)
	summary.Duration = time.Since(began)

	event := h.logger.Info()
	if indexErr != nil {
		event = h.logger.Error().Err(indexErr)
	}
	event.
		Int("completed", summary.Completed).
		Int("skipped", summary.SkippedTotal()).
		Int("partial", summary.Partial).
		Int("already_indexed", summary.AlreadyIndexed).
		Int("dispatched", summary.Dispatched).
		Bool("cancelled", summary.Cancelled).
		Dur("duration", summary.Duration).
		Msg("Harvest finished")

	if indexErr != nil {
		return summary, fmt.Errorf("write index: %w", indexErr)
	}
	return summary, nil
}

// release hands one outcome to the index in submission order.
func (h *Harvester) release(o outcome, summary *Summary) error {
	logger := h.logger.With().Int("problem_id", int(o.id)).Logger()

	if o.err != nil {
		kind := problem.KindOf(o.err)
		summary.Skipped[kind]++
		problemsTotal.WithLabelValues(string(kind)).Inc()

		event := logger.Warn()
		if kind == problem.KindNotFound {
			event = logger.Info()
		}
		event.Err(o.err).Str("kind", string(kind)).Msg("Problem skipped")
		return nil
	}

	if err := h.deps.Index.Append(o.persisted.Row()); err != nil {
		return err
	}

	summary.Completed++
	problemsTotal.WithLabelValues("completed").Inc()

	event := logger.Info()
	if failed := o.persisted.FailedSlots(); len(failed) > 0 {
		summary.Partial++
		problemsTotal.WithLabelValues(string(problem.KindPartialAssets)).Inc()
		event = logger.Warn().Str("kind", string(problem.KindPartialAssets)).Ints("failed_slots", failed)
	}
	event.
		Int("reused", o.persisted.ReusedCount()).
		Dur("duration", o.duration).
		Msg("Problem completed")

	return nil
}

// worker processes problems from the queue. Work runs under workCtx; runCtx
// only shortens the politeness pause once the run is cancelled.
func (h *Harvester) worker(runCtx, workCtx context.Context, jobs <-chan job, results chan<- outcome, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for j := range jobs {
		o := h.process(workCtx, j, workerID)
		problemDuration.Observe(o.duration.Seconds())

		// Results has room for every dispatched job, so this never blocks.
		results <- o
		processed++

		if h.deps.Pacer != nil && reachedOrigin(o.err) {
			if err := h.deps.Pacer.Pause(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				h.logger.Debug().Err(err).Int("worker_id", workerID).Msg("Politeness pause interrupted")
			}
		}
	}

	h.logger.Debug().
		Int("worker_id", workerID).
		Int("problems_processed", processed).
		Msg("Worker completed")
}

func (h *Harvester) process(ctx context.Context, j job, workerID int) outcome {
	start := time.Now()
	o := outcome{seq: j.seq, id: j.id}

	h.logger.Debug().
		Int("problem_id", int(j.id)).
		Int("worker_id", workerID).
		Msg("Processing problem")

	page, err := h.deps.Fetcher.Fetch(ctx, j.id)
	if err == nil {
		o.persisted, err = h.deps.Store.Persist(ctx, page)
	}
	if err != nil {
		var f *problem.Failure
		if !errors.As(err, &f) {
			err = problem.NewFailure(j.id, problem.KindInternal, err)
		}
		o.err = err
	}

	o.duration = time.Since(start)
	return o
}

// reachedOrigin reports whether the problem got an HTTP response from the
// origin, which is when the politeness pause applies. Network failures never
// produced one; internal failures are local.
func reachedOrigin(err error) bool {
	switch problem.KindOf(err) {
	case problem.KindNetwork, problem.KindInternal:
		return false
	}
	return true
}
