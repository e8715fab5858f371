// Package agent wires configuration, capture lanes, the hand-off queue,
// the consumer loop and reporters into one running process.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"firestige.xyz/sourcewatch/internal/capture"
	"firestige.xyz/sourcewatch/internal/config"
	"firestige.xyz/sourcewatch/internal/consumer"
	"firestige.xyz/sourcewatch/internal/core/classifier"
	"firestige.xyz/sourcewatch/internal/ingest"
	logpkg "firestige.xyz/sourcewatch/internal/log"
	"firestige.xyz/sourcewatch/internal/metrics"
	"firestige.xyz/sourcewatch/internal/queue"
	"firestige.xyz/sourcewatch/internal/reporter"
)

const depthSampleInterval = time.Second

// SourceOpener opens the capture source for one lane.
type SourceOpener func(lane int) (capture.Source, error)

// Agent is one sourcewatch process.
type Agent struct {
	config *config.GlobalConfig
	open   SourceOpener
	lanes  int

	queue    *queue.Queue
	group    *ingest.Group
	consumer *consumer.Loop
}

// New creates an agent that reads from lanes sources produced by open.
func New(cfg *config.GlobalConfig, lanes int, open SourceOpener) *Agent {
	if lanes <= 0 {
		lanes = 1
	}
	return &Agent{
		config: cfg,
		open:   open,
		lanes:  lanes,
	}
}

// Run starts every component and blocks until ctx is cancelled or every
// lane has finished. A lane that ends on its own (end of a capture file)
// lets the consumer report what was queued before Run returns.
func (a *Agent) Run(ctx context.Context) error {
	// 1. Initialize logging system
	if err := logpkg.Init(a.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logpkg.Close()

	slog.Info("starting sourcewatch",
		"interface", a.config.Capture.Interface,
		"lanes", a.lanes,
		"queue", a.config.Queue.Name,
		"queue_capacity", a.config.Queue.Capacity)

	// 2. Hand-off queue
	q, err := queue.New(a.config.Queue.Name, a.config.Queue.Capacity)
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}
	a.queue = q
	metrics.QueueCapacity.WithLabelValues(q.Name()).Set(float64(q.Cap()))

	// 3. Reporters
	reporters, err := buildReporters(a.config.Reporters)
	if err != nil {
		return err
	}
	defer closeReporters(reporters)

	// 4. Metrics server
	if a.config.Metrics.Enabled {
		srv := metrics.NewServer(a.config.Metrics.Listen, a.config.Metrics.Path)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := srv.Stop(context.Background()); err != nil {
				slog.Error("error stopping metrics server", "error", err)
			}
		}()
	}

	// 5. Capture lanes. Attach failures are fatal.
	lanes, err := a.openLanes()
	if err != nil {
		return err
	}
	a.group = ingest.NewGroup(lanes...)

	// 6. Consumer
	a.consumer = consumer.New(q, reporters, consumer.Options{
		BatchSize: a.config.Consumer.BatchSize,
		IdleMin:   a.config.Consumer.IdleMinDuration(),
		IdleMax:   a.config.Consumer.IdleMaxDuration(),
	})

	eg, gctx := errgroup.WithContext(ctx)
	consumerCtx, stopConsumer := context.WithCancel(gctx)
	defer stopConsumer()

	eg.Go(func() error {
		defer stopConsumer()
		if err := a.group.Run(gctx); err != nil {
			return err
		}
		a.waitReported(gctx)
		return nil
	})
	eg.Go(func() error {
		return a.consumer.Run(consumerCtx)
	})
	eg.Go(func() error {
		a.sampleDepth(consumerCtx)
		return nil
	})

	slog.Info("sourcewatch started")
	err = eg.Wait()

	s := a.group.Stats()
	slog.Info("sourcewatch stopped",
		"packets", s.Packets,
		"emitted", s.Emitted,
		"passed", s.Passed,
		"dropped", s.Dropped,
		"queue_full", s.QueueFull,
		"reported", a.consumer.Consumed())

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stats returns the summed lane counters. Valid once Run has started the lanes.
func (a *Agent) Stats() ingest.Stats {
	if a.group == nil {
		return ingest.Stats{}
	}
	return a.group.Stats()
}

func (a *Agent) openLanes() ([]*ingest.Lane, error) {
	cls := classifier.New(classifier.Options{VLAN: a.config.Classifier.VLAN})

	lanes := make([]*ingest.Lane, 0, a.lanes)
	for i := 0; i < a.lanes; i++ {
		src, err := a.open(i)
		if err != nil {
			for _, l := range lanes {
				l.Close()
			}
			return nil, fmt.Errorf("failed to attach lane %d: %w", i, err)
		}
		lanes = append(lanes, ingest.NewLane(i, src, cls, a.queue))
	}
	return lanes, nil
}

// waitReported blocks until the consumer has handled every record the
// lanes managed to queue, or ctx is done.
func (a *Agent) waitReported(ctx context.Context) {
	s := a.group.Stats()
	queued := s.Emitted - s.QueueFull

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for a.consumer.Consumed() < queued {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *Agent) sampleDepth(ctx context.Context) {
	depth := metrics.QueueDepth.WithLabelValues(a.queue.Name())
	ticker := time.NewTicker(depthSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			depth.Set(float64(a.queue.Len()))
			return
		case <-ticker.C:
			depth.Set(float64(a.queue.Len()))
		}
	}
}

func buildReporters(cfgs []config.ReporterConfig) ([]reporter.Reporter, error) {
	reporters := make([]reporter.Reporter, 0, len(cfgs))
	for i, rc := range cfgs {
		r, err := reporter.New(rc.Type, rc.Options)
		if err != nil {
			closeReporters(reporters)
			return nil, fmt.Errorf("failed to create reporter[%d] %q: %w", i, rc.Type, err)
		}
		slog.Info("reporter created", "reporter", r.Name())
		reporters = append(reporters, r)
	}
	return reporters, nil
}

func closeReporters(reporters []reporter.Reporter) {
	for _, r := range reporters {
		if err := r.Close(); err != nil {
			slog.Error("error closing reporter", "reporter", r.Name(), "error", err)
		}
	}
}
