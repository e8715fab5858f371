package ingest

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Group runs a set of lanes together.
type Group struct {
	lanes []*Lane
}

// NewGroup creates a group over lanes.
func NewGroup(lanes ...*Lane) *Group {
	return &Group{lanes: lanes}
}

// Run starts every lane and waits for all of them. The first lane error
// cancels the rest and is returned.
func (g *Group) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, l := range g.lanes {
		l := l
		eg.Go(func() error {
			return l.Run(ctx)
		})
	}
	return eg.Wait()
}

// Stats sums the counters of every lane.
func (g *Group) Stats() Stats {
	var total Stats
	for _, l := range g.lanes {
		s := l.Stats()
		total.Packets += s.Packets
		total.Emitted += s.Emitted
		total.Passed += s.Passed
		total.Dropped += s.Dropped
		total.QueueFull += s.QueueFull
	}
	return total
}

// Lanes returns the lanes in the group.
func (g *Group) Lanes() []*Lane {
	return g.lanes
}
