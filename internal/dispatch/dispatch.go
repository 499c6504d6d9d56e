package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"vidstyle/internal/cache"
	"vidstyle/internal/fingerprint"
	"vidstyle/internal/frames"
	"vidstyle/internal/logging"
	"vidstyle/internal/schedule"
	"vidstyle/internal/services"
	"vidstyle/internal/services/img2img"
)

// Stylizer is the remote call the dispatcher drives. Implementations
// classify their errors with the services sentinels so the dispatcher
// can tell retryable failures from hopeless ones.
type Stylizer interface {
	Stylize(ctx context.Context, frame []byte, prompt string, strength float64) ([]byte, error)
}

// Outcome records how a frame's result was obtained.
type Outcome string

const (
	// OutcomeFresh means this dispatcher made the remote call.
	OutcomeFresh Outcome = "fresh"
	// OutcomeCached means the result was already in the cache.
	OutcomeCached Outcome = "cached"
	// OutcomeDeduped means another worker held the claim and this
	// dispatcher waited for its result.
	OutcomeDeduped Outcome = "deduped"
	// OutcomeFailed means every attempt was exhausted or the request
	// was rejected permanently.
	OutcomeFailed Outcome = "failed"
)

// Result is the per-frame outcome of a run.
type Result struct {
	FrameIndex  int
	SceneName   string
	Fingerprint fingerprint.Fingerprint
	Outcome     Outcome
	Attempts    int
	Err         error
}

// Summary aggregates a run's results.
type Summary struct {
	Total   int
	Fresh   int
	Cached  int
	Deduped int
	Failed  int
}

// Options tune a dispatcher run.
type Options struct {
	Workers     int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	ClaimPoll   time.Duration

	Model    string
	Steps    int
	Strength float64
	Guidance float64

	ShowProgress bool
}

// Dispatcher runs the stylization pass over a frame sequence.
type Dispatcher struct {
	store    *cache.Store
	frames   *frames.Store
	resolver *schedule.Resolver
	stylizer Stylizer
	opts     Options
	logger   *slog.Logger

	sleeper func(context.Context, time.Duration) error
	jitter  func(time.Duration) time.Duration
}

// Option customizes the dispatcher.
type Option func(*Dispatcher)

// WithSleeper overrides how backoff and poll sleeps are performed
// (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(d *Dispatcher) {
		if sleeper != nil {
			d.sleeper = sleeper
		}
	}
}

// WithJitter overrides the backoff jitter function.
func WithJitter(jitter func(time.Duration) time.Duration) Option {
	return func(d *Dispatcher) {
		if jitter != nil {
			d.jitter = jitter
		}
	}
}

// New constructs a dispatcher over a frame store, schedule resolver,
// cache, and remote client.
func New(store *cache.Store, frameStore *frames.Store, resolver *schedule.Resolver, stylizer Stylizer, opts Options, logger *slog.Logger, dopts ...Option) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.BackoffMax < opts.BackoffBase {
		opts.BackoffMax = opts.BackoffBase
	}
	if opts.ClaimPoll <= 0 {
		opts.ClaimPoll = 500 * time.Millisecond
	}
	d := &Dispatcher{
		store:    store,
		frames:   frameStore,
		resolver: resolver,
		stylizer: stylizer,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "dispatch"),
		sleeper:  sleepContext,
		jitter: func(delay time.Duration) time.Duration {
			if delay <= 0 {
				return 0
			}
			return delay/2 + time.Duration(rand.Int63n(int64(delay)))/2
		},
	}
	for _, opt := range dopts {
		opt(d)
	}
	return d
}

// Fingerprint computes the cache fingerprint for one frame under its
// scene's prompt and effective generation parameters.
func (d *Dispatcher) Fingerprint(index int, scene schedule.Scene) (fingerprint.Fingerprint, error) {
	frameHash, err := d.frames.ContentHash(index)
	if err != nil {
		return "", err
	}
	return fingerprint.Compute(fingerprint.Inputs{
		FrameHash: frameHash,
		Prompt:    scene.Prompt,
		Strength:  d.effectiveStrength(scene),
		Steps:     d.opts.Steps,
		Guidance:  d.opts.Guidance,
		Model:     d.opts.Model,
	})
}

// effectiveStrength is the scene's override when set, otherwise the
// configured default.
func (d *Dispatcher) effectiveStrength(scene schedule.Scene) float64 {
	if scene.Strength > 0 {
		return scene.Strength
	}
	return d.opts.Strength
}

// Run dispatches every frame in index order and returns per-frame
// results plus a summary. Individual frame failures do not abort the
// run; they surface in the results for the assembler's fallback policy.
func (d *Dispatcher) Run(ctx context.Context) ([]Result, Summary, error) {
	if err := d.frames.Validate(); err != nil {
		return nil, Summary{}, services.Wrap(services.ErrValidation, "dispatch", "run", "frame sequence", err)
	}
	indices := d.frames.Indices()
	if len(indices) != d.resolver.TotalFrames() {
		return nil, Summary{}, services.Wrap(services.ErrValidation, "dispatch", "run",
			fmt.Sprintf("schedule covers %d frames but %d exist", d.resolver.TotalFrames(), len(indices)), nil)
	}

	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	d.logger.InfoContext(ctx, "dispatching frames",
		logging.String(logging.FieldRunID, runID),
		logging.Int("frames", len(indices)),
		logging.Int("workers", d.opts.Workers))

	var bar *progressbar.ProgressBar
	if d.opts.ShowProgress {
		bar = progressbar.NewOptions(len(indices),
			progressbar.OptionSetDescription("stylizing"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	results := make([]Result, len(indices))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(d.opts.Workers)
	for pos, index := range indices {
		pos, index := pos, index
		group.Go(func() error {
			result := d.processFrame(gctx, index, runID)
			results[pos] = result
			if bar != nil {
				_ = bar.Add(1)
			}
			if result.Outcome == OutcomeFailed {
				d.logger.WarnContext(gctx, "frame failed",
					logging.Int(logging.FieldFrame, index),
					logging.String(logging.FieldScene, result.SceneName),
					logging.Int(logging.FieldAttempt, result.Attempts),
					logging.Error(result.Err))
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return results, summarize(results), err
	}

	summary := summarize(results)
	d.logger.InfoContext(ctx, "dispatch complete",
		logging.String(logging.FieldRunID, runID),
		logging.Int("fresh", summary.Fresh),
		logging.Int("cached", summary.Cached),
		logging.Int("deduped", summary.Deduped),
		logging.Int("failed", summary.Failed))
	return results, summary, nil
}

func (d *Dispatcher) processFrame(ctx context.Context, index int, runID string) Result {
	result := Result{FrameIndex: index}

	scene, err := d.resolver.Resolve(index)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		return result
	}
	result.SceneName = scene.Name

	fp, err := d.Fingerprint(index, scene)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		return result
	}
	result.Fingerprint = fp
	ctx = services.WithFrameIndex(ctx, index)

	entry, err := d.store.Get(ctx, fp)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		return result
	}
	if entry != nil && entry.Status == cache.StatusReady {
		result.Outcome = OutcomeCached
		return result
	}

	owner := runID + "/" + uuid.NewString()
	for {
		if err := ctx.Err(); err != nil {
			result.Outcome = OutcomeFailed
			result.Err = err
			return result
		}

		claim, err := d.store.Claim(ctx, fp, owner)
		if err != nil {
			result.Outcome = OutcomeFailed
			result.Err = err
			return result
		}
		if claim.Granted {
			attempts, err := d.compute(ctx, index, scene, fp, owner)
			result.Attempts = attempts
			if err != nil {
				result.Outcome = OutcomeFailed
				result.Err = err
				return result
			}
			result.Outcome = OutcomeFresh
			return result
		}

		// Someone else holds the entry. Ready means we were beaten to
		// it; pending means wait for the holder; failed or vanished
		// means the claim is worth another try.
		existing := claim.Existing
		if existing != nil && existing.Status == cache.StatusReady {
			result.Outcome = OutcomeDeduped
			return result
		}
		if existing != nil && existing.Status == cache.StatusPending {
			outcome, err := d.awaitHolder(ctx, fp)
			if err != nil {
				result.Outcome = OutcomeFailed
				result.Err = err
				return result
			}
			if outcome == OutcomeDeduped {
				result.Outcome = OutcomeDeduped
				return result
			}
			// Holder failed, vanished, or is still pending; fall through
			// to Claim, whose stale branch takes over a dead holder.
		}
	}
}

// awaitHolder sleeps one poll interval and checks the in-flight claim.
// Returns OutcomeDeduped when the holder published a result; any other
// state sends the caller back to Claim so a crashed holder's claim is
// taken over once it goes stale.
func (d *Dispatcher) awaitHolder(ctx context.Context, fp fingerprint.Fingerprint) (Outcome, error) {
	if err := d.sleeper(ctx, d.opts.ClaimPoll); err != nil {
		return OutcomeFailed, err
	}
	entry, err := d.store.Get(ctx, fp)
	if err != nil {
		return OutcomeFailed, err
	}
	if entry != nil && entry.Status == cache.StatusReady {
		return OutcomeDeduped, nil
	}
	return OutcomeFailed, nil
}

// compute makes the remote call under a held claim, retrying transient
// failures with exponential backoff until attempts are exhausted.
func (d *Dispatcher) compute(ctx context.Context, index int, scene schedule.Scene, fp fingerprint.Fingerprint, owner string) (int, error) {
	frame, err := d.frames.Read(index)
	if err != nil {
		failErr := d.store.Fail(ctx, fp, owner)
		if failErr != nil {
			d.logger.WarnContext(ctx, "release claim after read error", logging.Error(failErr))
		}
		return 0, err
	}

	var lastErr error
	attempt := 0
	for attempt = 1; attempt <= d.opts.MaxAttempts; attempt++ {
		if err := d.store.IncrementAttempt(ctx, fp, owner); err != nil {
			return attempt - 1, err
		}
		result, err := d.stylizer.Stylize(ctx, frame, scene.Prompt, d.effectiveStrength(scene))
		if err == nil {
			if err := d.store.Put(ctx, fp, owner, result); err != nil {
				return attempt, err
			}
			return attempt, nil
		}
		lastErr = err

		if !services.IsTransient(err) || attempt == d.opts.MaxAttempts {
			break
		}
		delay := d.backoff(attempt)
		if hint := img2img.RetryAfterHint(err); hint > delay {
			delay = hint
			if delay > d.opts.BackoffMax {
				delay = d.opts.BackoffMax
			}
		}
		d.logger.DebugContext(ctx, "retrying frame",
			logging.Int(logging.FieldFrame, index),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
		if err := d.sleeper(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	if err := d.store.Fail(ctx, fp, owner); err != nil {
		d.logger.WarnContext(ctx, "release claim after failure", logging.Error(err))
	}
	if attempt > d.opts.MaxAttempts {
		attempt = d.opts.MaxAttempts
	}
	return attempt, lastErr
}

// backoff returns the delay before the next attempt: base doubled per
// attempt with jitter, capped at the configured maximum.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.opts.BackoffBase
	for i := 1; i < attempt; i++ {
		if delay > d.opts.BackoffMax/2 {
			delay = d.opts.BackoffMax
			break
		}
		delay *= 2
	}
	delay = d.jitter(delay)
	if delay > d.opts.BackoffMax {
		delay = d.opts.BackoffMax
	}
	return delay
}

func summarize(results []Result) Summary {
	summary := Summary{Total: len(results)}
	for _, result := range results {
		switch result.Outcome {
		case OutcomeFresh:
			summary.Fresh++
		case OutcomeCached:
			summary.Cached++
		case OutcomeDeduped:
			summary.Deduped++
		case OutcomeFailed:
			summary.Failed++
		}
	}
	return summary
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
