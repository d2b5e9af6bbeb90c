package site

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/keithlinneman/sitecontent/internal/locale"
	"github.com/keithlinneman/sitecontent/internal/otelx"
	"github.com/keithlinneman/sitecontent/internal/xerrors"
)

// DefaultConcurrency bounds in-flight slot lookups per document.
const DefaultConcurrency = 8

// Resolver is the lookup the aggregator fans out to.
type Resolver interface {
	ResolveWith(ctx context.Context, req locale.Request) (locale.Resolution, error)
}

// Metrics observes aggregation latency and the failing slot.
type Metrics interface {
	ObserveAggregation(d time.Duration, failedSlot string)
}

// SlotError reports the slot that failed an aggregation.
type SlotError struct {
	Slot        string
	ContentType string
	Err         error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("slot %s (%s): %v", e.Slot, e.ContentType, e.Err)
}

func (e *SlotError) Unwrap() error { return e.Err }

// Options configures an Aggregator.
type Options struct {
	Resolver    Resolver
	Table       *SlotTable
	Concurrency int
	Metrics     Metrics
}

// Aggregator builds site documents. It holds no per-request state.
type Aggregator struct {
	resolver Resolver
	table    *SlotTable
	limit    int
	metrics  Metrics
}

// NewAggregator returns an Aggregator over opts.Table. Resolver and Table
// are required; Concurrency defaults to DefaultConcurrency.
func NewAggregator(opts Options) (*Aggregator, error) {
	if opts.Resolver == nil || opts.Table == nil {
		return nil, xerrors.New("aggregator requires a resolver and a slot table")
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Aggregator{resolver: opts.Resolver, table: opts.Table, limit: limit, metrics: opts.Metrics}, nil
}

// Table returns the slot table documents are built from.
func (a *Aggregator) Table() *SlotTable { return a.table }

// Aggregate resolves every slot for loc. Any slot failure fails the whole
// document and is returned as *SlotError; no partial document is returned.
// The reported slot is the failing one earliest in table order. Slots after
// a known failure are skipped, but lookups already running are not
// cancelled, so a slow earlier failure always wins over a fast later one.
// Cancelling ctx abandons the aggregation.
func (a *Aggregator) Aggregate(ctx context.Context, loc string, status locale.Status) (*Document, error) {
	start := time.Now()
	ctx, span := otelx.Tracer().Start(ctx, "site.Aggregate", trace.WithAttributes(
		attribute.String("site.locale", loc),
		attribute.String("site.slot_table_version", a.table.Version()),
		attribute.Int("site.slots", a.table.Len()),
	))
	defer span.End()

	slots := a.table.slots
	results := make([]locale.Resolution, len(slots))
	errs := make([]error, len(slots))

	// lowest failing index so far; len(slots) while none has failed
	var lowest atomic.Int64
	lowest.Store(int64(len(slots)))

	var g errgroup.Group
	g.SetLimit(a.limit)
	for i, s := range slots {
		g.Go(func() error {
			if ctx.Err() != nil || int64(i) > lowest.Load() {
				return nil
			}
			res, err := a.resolver.ResolveWith(ctx, locale.Request{
				ContentType: s.ContentType,
				EntryID:     s.EntryID,
				Locale:      loc,
				Status:      status,
				Rule:        s.Fallback,
			})
			if err != nil {
				errs[i] = err
				for cur := lowest.Load(); int64(i) < cur; cur = lowest.Load() {
					if lowest.CompareAndSwap(cur, int64(i)) {
						break
					}
				}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	if err := a.firstFailure(ctx, slots, errs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregation failed")
		a.observe(start, err)
		return nil, err
	}

	doc := newDocument(a.table.Version(), slots, results)
	if len(results) > 0 {
		doc.Locale = results[0].Requested
	}
	span.SetAttributes(attribute.Int("site.fallbacks", len(doc.Fallbacks)))
	a.observe(start, nil)
	return doc, nil
}

// firstFailure returns the failure of the earliest slot in table order, or
// the caller's cancellation when ctx is done.
func (a *Aggregator) firstFailure(ctx context.Context, slots []Slot, errs []error) error {
	if err := ctx.Err(); err != nil {
		return xerrors.Wrap(err, "aggregation abandoned")
	}
	for i, err := range errs {
		if err != nil {
			return &SlotError{Slot: slots[i].Name, ContentType: slots[i].ContentType, Err: err}
		}
	}
	return nil
}

func (a *Aggregator) observe(start time.Time, err error) {
	if a.metrics == nil {
		return
	}
	failed := ""
	var se *SlotError
	if errors.As(err, &se) {
		failed = se.Slot
	} else if err != nil {
		failed = "_canceled"
	}
	a.metrics.ObserveAggregation(time.Since(start), failed)
}
