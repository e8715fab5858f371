// Package consumer drains the hand-off queue and hands every record to the
// configured reporters.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"firestige.xyz/sourcewatch/internal/core"
	"firestige.xyz/sourcewatch/internal/metrics"
	"firestige.xyz/sourcewatch/internal/reporter"
)

// Source is the consumer side of the hand-off queue.
type Source interface {
	Pop() (core.SourceAddr, bool)
}

// Defaults applied to zero Options fields.
const (
	// DefaultBatchSize is the most records dispatched per iteration.
	DefaultBatchSize = 64
	// DefaultIdleMin is the first wait after the queue runs dry.
	DefaultIdleMin = time.Millisecond
	// DefaultIdleMax caps the idle backoff.
	DefaultIdleMax = 50 * time.Millisecond
)

// Options tunes the loop. Zero values take the defaults.
type Options struct {
	BatchSize int
	IdleMin   time.Duration
	IdleMax   time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.IdleMin <= 0 {
		o.IdleMin = DefaultIdleMin
	}
	if o.IdleMax <= 0 {
		o.IdleMax = DefaultIdleMax
	}
	if o.IdleMax < o.IdleMin {
		o.IdleMax = o.IdleMin
	}
	return o
}

type sink struct {
	r        reporter.Reporter
	reported prometheus.Counter
	errors   prometheus.Counter
}

// Loop is the single consumer of a queue.
type Loop struct {
	src   Source
	sinks []sink
	opts  Options

	consumed atomic.Uint64
}

// New creates a consumer loop over src.
func New(src Source, reporters []reporter.Reporter, opts Options) *Loop {
	sinks := make([]sink, 0, len(reporters))
	for _, r := range reporters {
		sinks = append(sinks, sink{
			r:        r,
			reported: metrics.RecordsReportedTotal.WithLabelValues(r.Name()),
			errors:   metrics.ReporterErrorsTotal.WithLabelValues(r.Name()),
		})
	}
	return &Loop{
		src:   src,
		sinks: sinks,
		opts:  opts.withDefaults(),
	}
}

// Consumed returns the number of records handed to every reporter so far.
func (l *Loop) Consumed() uint64 {
	return l.consumed.Load()
}

// Run polls the source until ctx is done. Records still queued at
// cancellation are left in place. Run always returns nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("consumer started",
		"batch_size", l.opts.BatchSize,
		"idle_min", l.opts.IdleMin,
		"idle_max", l.opts.IdleMax,
		"reporters", len(l.sinks))
	defer func() {
		slog.Info("consumer stopped", "consumed", l.consumed.Load())
	}()

	idle := l.opts.IdleMin
	timer := time.NewTimer(idle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if n := l.drain(ctx); n > 0 {
			idle = l.opts.IdleMin
			continue
		}

		timer.Reset(idle)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		idle *= 2
		if idle > l.opts.IdleMax {
			idle = l.opts.IdleMax
		}
	}
}

// drain pops at most BatchSize records and returns how many it handled.
func (l *Loop) drain(ctx context.Context) int {
	n := 0
	for n < l.opts.BatchSize {
		rec, ok := l.src.Pop()
		if !ok {
			break
		}
		n++
		l.dispatch(ctx, rec)
		l.consumed.Inc()
	}
	return n
}

func (l *Loop) dispatch(ctx context.Context, rec core.SourceAddr) {
	for i := range l.sinks {
		s := &l.sinks[i]
		if err := s.r.Report(ctx, rec); err != nil {
			s.errors.Inc()
			slog.Warn("reporter failed", "reporter", s.r.Name(), "record", rec.String(), "error", err)
			continue
		}
		s.reported.Inc()
	}
}

// FormatRecord renders a record as the consumer log line.
func FormatRecord(rec core.SourceAddr) string {
	return reporter.FormatRecord(rec)
}
