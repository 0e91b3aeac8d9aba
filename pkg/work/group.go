// Package work provides the fixed-size worker group used to distribute
// the tile-level time series computation. Workers are role-aware: rank 0
// is the coordinating leader that runs the serial pipeline stages while
// the remaining workers block at the next collective point. Collective
// operations are a barrier and a scalar broadcast; the first worker
// error aborts the group and releases any peers blocked in a collective.
package work

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"insaraps/pkg/tiles"
)

// ErrAborted is returned from collective operations after another worker
// has failed.
var ErrAborted = errors.New("worker group aborted")

// Group is a fixed-size set of cooperating workers.
type Group struct {
	size int

	bar *barrier

	// broadcast slot, written by the leader between two barriers
	slot int64

	abort     chan struct{}
	abortOnce sync.Once

	errMu sync.Mutex
	err   error
}

// NewGroup creates a worker group of the given size.
func NewGroup(size int) *Group {
	if size < 1 {
		size = 1
	}
	return &Group{
		size:  size,
		bar:   newBarrier(size),
		abort: make(chan struct{}),
	}
}

// Size returns the number of workers in the group.
func (g *Group) Size() int { return g.size }

// Run executes fn once per worker, each on its own goroutine, and waits
// for all of them. The first error aborts the group and is returned;
// secondary ErrAborted results from released peers are discarded.
func (g *Group) Run(fn func(w *Worker) error) error {
	var wg sync.WaitGroup
	for rank := 0; rank < g.size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			if err := fn(&Worker{rank: rank, g: g}); err != nil {
				g.fail(rank, err)
			}
		}(rank)
	}
	wg.Wait()

	g.errMu.Lock()
	defer g.errMu.Unlock()
	return g.err
}

func (g *Group) fail(rank int, err error) {
	if errors.Is(err, ErrAborted) {
		return
	}
	g.errMu.Lock()
	if g.err == nil {
		g.err = err
		log.WithFields(log.Fields{
			"rank":  rank,
			"error": err,
		}).Error("Worker failed, aborting group")
	}
	g.errMu.Unlock()
	g.abortOnce.Do(func() { close(g.abort) })
}

// Worker is one member of a group, identified by its rank.
type Worker struct {
	rank int
	g    *Group
}

// Rank returns the worker's position in the group.
func (w *Worker) Rank() int { return w.rank }

// Size returns the group size.
func (w *Worker) Size() int { return w.g.size }

// IsLeader reports whether this worker is the coordinating leader.
func (w *Worker) IsLeader() bool { return w.rank == 0 }

// Barrier blocks until every worker in the group has reached it, or
// returns ErrAborted if the group has failed.
func (w *Worker) Barrier() error {
	return w.g.bar.wait(w.g.abort)
}

// BroadcastInt publishes the leader's value to every worker. All workers
// must call it; each receives the leader's v. It doubles as a barrier.
func (w *Worker) BroadcastInt(v int) (int, error) {
	if w.IsLeader() {
		w.g.slot = int64(v)
	}
	if err := w.Barrier(); err != nil {
		return 0, err
	}
	out := int(w.g.slot)
	// Second barrier keeps a subsequent broadcast from overwriting the
	// slot before every worker has read it.
	if err := w.Barrier(); err != nil {
		return 0, err
	}
	return out, nil
}

// BroadcastBool publishes the leader's boolean to every worker.
func (w *Worker) BroadcastBool(v bool) (bool, error) {
	iv := 0
	if v {
		iv = 1
	}
	out, err := w.BroadcastInt(iv)
	return out != 0, err
}

// RunOnOne executes fn on the leader only, then synchronizes the group
// so every worker observes its completion.
func (w *Worker) RunOnOne(fn func() error) error {
	if w.IsLeader() {
		if err := fn(); err != nil {
			w.g.fail(w.rank, err)
			return err
		}
	}
	return w.Barrier()
}

// SplitTiles statically assigns a contiguous, disjoint subset of tiles
// to the given rank. Ranks beyond the tile count receive none.
func SplitTiles(ts []tiles.Tile, rank, size int) []tiles.Tile {
	n := len(ts)
	base := n / size
	rem := n % size

	start := rank*base + min(rank, rem)
	count := base
	if rank < rem {
		count++
	}
	return ts[start : start+count]
}

// barrier is a reusable counting barrier. Each generation owns a channel
// closed when the last worker arrives.
type barrier struct {
	mu    sync.Mutex
	n     int
	count int
	gen   chan struct{}
}

func newBarrier(n int) *barrier {
	return &barrier{n: n, gen: make(chan struct{})}
}

func (b *barrier) wait(abort chan struct{}) error {
	b.mu.Lock()
	ch := b.gen
	b.count++
	if b.count == b.n {
		b.count = 0
		b.gen = make(chan struct{})
		close(ch)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-abort:
		return ErrAborted
	}
}
