// Package ingest runs the per-lane read, classify and push loops.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"firestige.xyz/sourcewatch/internal/capture"
	"firestige.xyz/sourcewatch/internal/core"
	"firestige.xyz/sourcewatch/internal/core/classifier"
	"firestige.xyz/sourcewatch/internal/metrics"
)

// Sink is the producer side of the hand-off queue.
type Sink interface {
	Push(core.SourceAddr) error
	Name() string
}

// kernelDropper is implemented by live sources that expose ring drops.
type kernelDropper interface {
	KernelDrops() uint64
}

// Stats is a snapshot of a lane's counters.
type Stats struct {
	Packets   uint64
	Emitted   uint64
	Passed    uint64
	Dropped   uint64
	QueueFull uint64
}

// Lane owns one capture source and feeds the queue from it.
type Lane struct {
	id   string
	src  capture.Source
	cls  classifier.Classifier
	sink Sink

	packets   atomic.Uint64
	emitted   atomic.Uint64
	passed    atomic.Uint64
	dropped   atomic.Uint64
	queueFull atomic.Uint64

	// Prometheus children are resolved once so the hot path skips label lookups.
	mPass, mDrop, mEmit                 prometheus.Counter
	mTooShort, mUnsupported, mMalformed prometheus.Counter
	mQueueDrops, mReadErrors            prometheus.Counter
	mKernelDrops                        prometheus.Gauge
}

// NewLane creates a lane. The lane takes ownership of src and closes it
// when Run returns.
func NewLane(id int, src capture.Source, cls classifier.Classifier, sink Sink) *Lane {
	lane := strconv.Itoa(id)
	return &Lane{
		id:   lane,
		src:  src,
		cls:  cls,
		sink: sink,

		mPass:        metrics.PacketsTotal.WithLabelValues(lane, core.VerdictPass.String()),
		mDrop:        metrics.PacketsTotal.WithLabelValues(lane, core.VerdictDrop.String()),
		mEmit:        metrics.PacketsTotal.WithLabelValues(lane, core.VerdictEmit.String()),
		mTooShort:    metrics.ClassifyErrorsTotal.WithLabelValues(lane, "too_short"),
		mUnsupported: metrics.ClassifyErrorsTotal.WithLabelValues(lane, "unsupported_proto"),
		mMalformed:   metrics.ClassifyErrorsTotal.WithLabelValues(lane, "malformed_header"),
		mQueueDrops:  metrics.QueueDropsTotal.WithLabelValues(sink.Name()),
		mReadErrors:  metrics.CaptureReadErrorsTotal.WithLabelValues(lane),
		mKernelDrops: metrics.CaptureKernelDrops.WithLabelValues(lane),
	}
}

// Run reads until ctx is done or the source is exhausted. Read timeouts are
// retried; any other read error ends the lane.
func (l *Lane) Run(ctx context.Context) error {
	defer func() {
		l.sampleKernelDrops()
		if err := l.src.Close(); err != nil {
			slog.Warn("failed to close capture source", "lane", l.id, "error", err)
		}
		s := l.Stats()
		slog.Info("lane stopped",
			"lane", l.id,
			"packets", s.Packets,
			"emitted", s.Emitted,
			"passed", s.Passed,
			"dropped", s.Dropped,
			"queue_full", s.QueueFull)
	}()

	slog.Info("lane started", "lane", l.id)

	for {
		// Check for shutdown before each blocking read.
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		data, _, err := l.src.ReadPacketData()
		if err != nil {
			switch {
			case errors.Is(err, capture.ErrTimeout):
				// The ring is idle, a cheap moment to read socket stats.
				l.sampleKernelDrops()
				continue
			case errors.Is(err, io.EOF):
				return nil
			case ctx.Err() != nil:
				return nil
			}
			l.mReadErrors.Inc()
			return fmt.Errorf("lane %s: %w", l.id, err)
		}

		l.handle(data)
	}
}

// handle classifies one frame. data is only valid for the duration of the call.
func (l *Lane) handle(data []byte) {
	l.packets.Inc()

	out, err := l.cls.Classify(data)
	switch out.Verdict {
	case core.VerdictPass:
		l.passed.Inc()
		l.mPass.Inc()
		return
	case core.VerdictDrop:
		l.dropped.Inc()
		l.mDrop.Inc()
		l.countError(err)
		return
	}

	l.emitted.Inc()
	l.mEmit.Inc()
	if err := l.sink.Push(out.Addr); err != nil {
		// Prefer drop over blocking the read loop.
		l.queueFull.Inc()
		l.mQueueDrops.Inc()
		slog.Debug("queue full, dropping record", "lane", l.id, "queue", l.sink.Name(), "record", out.Addr.String())
	}
}

func (l *Lane) sampleKernelDrops() {
	if kd, ok := l.src.(kernelDropper); ok {
		l.mKernelDrops.Set(float64(kd.KernelDrops()))
	}
}

func (l *Lane) countError(err error) {
	switch err {
	case core.ErrPacketTooShort:
		l.mTooShort.Inc()
	case core.ErrUnsupportedProto:
		l.mUnsupported.Inc()
	case core.ErrMalformedHeader:
		l.mMalformed.Inc()
	}
}

// ID returns the lane label used in logs and metrics.
func (l *Lane) ID() string {
	return l.id
}

// Stats returns a snapshot of the lane counters.
func (l *Lane) Stats() Stats {
	return Stats{
		Packets:   l.packets.Load(),
		Emitted:   l.emitted.Load(),
		Passed:    l.passed.Load(),
		Dropped:   l.dropped.Load(),
		QueueFull: l.queueFull.Load(),
	}
}

// Close releases the source of a lane that will never be run.
func (l *Lane) Close() error {
	return l.src.Close()
}
