package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keithlinneman/sitecontent/internal/cryptoutil"
	"github.com/keithlinneman/sitecontent/internal/log"
)

const (
	// DefaultPollInterval is the release pointer poll cadence when none is configured.
	DefaultPollInterval = 30 * time.Second

	// DefaultStaleThreshold is how long pointer reads may fail before content is reported stale.
	DefaultStaleThreshold = 30 * time.Minute

	maxBackoff = 5 * time.Minute
)

type pollResult int

const (
	pollNoChange pollResult = iota
	pollSwapped
	pollSSMError        // release pointer unreadable; Run backs off
	pollLoadError       // download, signature or decode failed
	pollValidationError // bundle decoded but would break resolution
)

func (p pollResult) String() string {
	switch p {
	case pollNoChange:
		return "no_change"
	case pollSwapped:
		return "swapped"
	case pollSSMError:
		return "ssm"
	case pollLoadError:
		return "load"
	case pollValidationError:
		return "validation"
	}
	return fmt.Sprintf("pollResult(%d)", int(p))
}

// BundleFetcher reads the release pointer and loads the bundle it names.
// *Loader satisfies it.
type BundleFetcher interface {
	FetchCurrentBundleHash(ctx context.Context) (string, error)
	LoadHash(ctx context.Context, hash string) (*Snapshot, error)
}

// WatcherMetrics is implemented by the metrics package.
type WatcherMetrics interface {
	IncWatcherPolls()
	IncWatcherSwaps()
	IncWatcherError(errType string)
	ObserveBundleLoadDuration(seconds float64)
	SetWatcherLastSuccess(unixSeconds float64)
	SetWatcherStale(stale bool)
}

type nopWatcherMetrics struct{}

func (nopWatcherMetrics) IncWatcherPolls()                  {}
func (nopWatcherMetrics) IncWatcherSwaps()                  {}
func (nopWatcherMetrics) IncWatcherError(string)            {}
func (nopWatcherMetrics) ObserveBundleLoadDuration(float64) {}
func (nopWatcherMetrics) SetWatcherLastSuccess(float64)     {}
func (nopWatcherMetrics) SetWatcherStale(bool)              {}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Logger       log.Logger
	Loader       BundleFetcher
	Manager      *Manager
	PollInterval time.Duration

	// Validation gates every candidate bundle. nil uses DefaultValidationOptions.
	Validation *ValidationOptions

	// OnSwap runs on the poll goroutine after each swap. A panic in it is
	// logged and does not undo the swap.
	OnSwap func(hash, version string)

	Metrics        WatcherMetrics
	StaleThreshold time.Duration
}

// Watcher keeps a Manager in step with the published release pointer. A
// candidate bundle replaces the active one only when it loads, verifies and
// validates; readers holding the previous snapshot are unaffected.
type Watcher struct {
	fetch      BundleFetcher
	manager    *Manager
	logger     log.Logger
	metrics    WatcherMetrics
	validation ValidationOptions
	onSwap     func(hash, version string)

	interval       time.Duration
	staleThreshold time.Duration

	// poll goroutine state
	activeHash      string
	consecutiveErrs int
	lastPointerRead time.Time
	stale           bool
	polls, swaps    int64
}

// NewWatcher builds a Watcher. The active hash is taken from the manager so a
// bundle loaded at startup is not fetched again on the first poll.
func NewWatcher(opts *WatcherOptions) *Watcher {
	w := &Watcher{
		fetch:           opts.Loader,
		manager:         opts.Manager,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		validation:      DefaultValidationOptions(),
		onSwap:          opts.OnSwap,
		interval:        opts.PollInterval,
		staleThreshold:  opts.StaleThreshold,
		activeHash:      opts.Manager.ContentHash(),
		lastPointerRead: time.Now(),
	}
	if w.logger == nil {
		w.logger = log.Nop()
	}
	if w.metrics == nil {
		w.metrics = nopWatcherMetrics{}
	}
	if opts.Validation != nil {
		w.validation = *opts.Validation
	}
	if w.interval <= 0 {
		w.interval = DefaultPollInterval
	}
	if w.staleThreshold <= 0 {
		w.staleThreshold = DefaultStaleThreshold
	}
	return w
}

// Run polls until ctx is cancelled and returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "content watcher starting",
		"poll_interval", w.interval.String(),
		"active_hash", truncHash(w.activeHash),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "content watcher stopping",
				"reason", ctx.Err(),
				"polls", w.polls,
				"swaps", w.swaps,
			)
			return ctx.Err()
		case <-ticker.C:
			res := w.checkOnce(ctx)
			if next, changed := w.nextInterval(ctx, res); changed {
				ticker.Reset(next)
			}
			w.trackStaleness(ctx, res)
		}
	}
}

// nextInterval applies exponential backoff while the pointer is unreadable
// and restores the configured cadence after the first good read.
func (w *Watcher) nextInterval(ctx context.Context, res pollResult) (time.Duration, bool) {
	if res == pollSSMError {
		w.consecutiveErrs++
		d := w.backoffDuration()
		w.logger.Warn(ctx, "content watcher backing off",
			"consecutive_errors", w.consecutiveErrs,
			"next_poll_in", d.String(),
		)
		return d, true
	}
	if w.consecutiveErrs == 0 {
		return 0, false
	}
	w.logger.Info(ctx, "content watcher recovered", "had_consecutive_errors", w.consecutiveErrs)
	w.consecutiveErrs = 0
	return w.interval, true
}

// trackStaleness reports transitions into and out of the stale state once each.
func (w *Watcher) trackStaleness(ctx context.Context, res pollResult) {
	switch {
	case res != pollSSMError && w.stale:
		w.stale = false
		w.metrics.SetWatcherStale(false)
		w.logger.Info(ctx, "content watcher no longer stale")
	case res == pollSSMError && !w.stale && time.Since(w.lastPointerRead) > w.staleThreshold:
		w.stale = true
		w.metrics.SetWatcherStale(true)
		w.logger.Error(ctx,
			fmt.Errorf("release pointer unread for %s", time.Since(w.lastPointerRead).Truncate(time.Second)),
			"content watcher cannot confirm served content is current",
		)
	}
}

// checkOnce runs one read-compare-swap cycle.
func (w *Watcher) checkOnce(ctx context.Context) pollResult {
	w.polls++
	w.metrics.IncWatcherPolls()

	hash, err := w.fetch.FetchCurrentBundleHash(ctx)
	if err != nil {
		return w.fail(ctx, pollSSMError, err, "content watcher: release pointer read failed")
	}
	w.lastPointerRead = time.Now()
	w.metrics.SetWatcherLastSuccess(float64(w.lastPointerRead.Unix()))

	if cryptoutil.HashEqual(hash, w.activeHash) {
		return pollNoChange
	}

	w.logger.Info(ctx, "content watcher: release pointer moved",
		"from", truncHash(w.activeHash),
		"to", truncHash(hash),
	)

	snap, res, err := w.candidate(ctx, hash)
	if err != nil {
		return w.fail(ctx, res, err, "content watcher: rejected candidate bundle, keeping active content",
			"candidate", truncHash(hash),
			"active", truncHash(w.activeHash),
		)
	}

	w.publish(ctx, hash, snap)
	return pollSwapped
}

// candidate loads and validates the bundle named by hash. On failure the
// returned pollResult classifies the error.
func (w *Watcher) candidate(ctx context.Context, hash string) (*Snapshot, pollResult, error) {
	start := time.Now()
	snap, err := w.fetch.LoadHash(ctx, hash)
	w.metrics.ObserveBundleLoadDuration(time.Since(start).Seconds())
	if err != nil {
		return nil, pollLoadError, err
	}
	if err := ValidateSnapshot(snap, w.validation); err != nil {
		return nil, pollValidationError, err
	}
	return snap, pollSwapped, nil
}

func (w *Watcher) fail(ctx context.Context, res pollResult, err error, msg string, kv ...any) pollResult {
	w.logger.Error(ctx, err, msg, kv...)
	label := res.String()
	if errors.Is(err, ErrSignatureInvalid) {
		label = "signature"
	}
	w.metrics.IncWatcherError(label)
	return res
}

func (w *Watcher) publish(ctx context.Context, hash string, snap *Snapshot) {
	previous := w.activeHash
	w.manager.Set(*snap)
	w.activeHash = hash
	w.swaps++
	w.metrics.IncWatcherSwaps()

	version := w.manager.ContentVersion()
	w.logger.Info(ctx, "content watcher: bundle swapped",
		"previous", truncHash(previous),
		"active", truncHash(hash),
		"version", version,
		"entries", snap.Index.Len(),
		"total_swaps", w.swaps,
	)

	if w.onSwap == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error(ctx, fmt.Errorf("panic: %v", r), "content watcher: OnSwap callback panicked",
				"hash", truncHash(hash),
			)
		}
	}()
	w.onSwap(hash, version)
}

// backoffDuration doubles the interval per consecutive failure, capped at maxBackoff.
func (w *Watcher) backoffDuration() time.Duration {
	d := w.interval
	for i := 0; i < w.consecutiveErrs; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func truncHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
