// Package poller runs the fetch, normalize, hand-off loop for one connection.
package poller

import (
	"context"
	"sync"
	"time"

	"racedirector/pkg/adapter"
	"racedirector/pkg/logging"
	"racedirector/pkg/metrics"
	"racedirector/pkg/model"
	"racedirector/pkg/raw"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval     = 200 * time.Millisecond
	DefaultFetchTimeout = 2 * time.Second
)

// Fetcher retrieves the two raw resources read every tick.
type Fetcher interface {
	FetchSession(ctx context.Context) (raw.Object, error)
	FetchStandings(ctx context.Context) ([]raw.Object, error)
}

type Config struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Fetcher      Fetcher
	Adapter      adapter.Adapter
	// OnSnapshot receives every successfully normalized tick.
	OnSnapshot func(model.Snapshot)
	// OnFailure receives the first failed tick. The poller has already
	// stopped when it is called.
	OnFailure func(error)
	Metrics   *metrics.Manager
}

// Poller ticks on a single goroutine, so ticks never overlap. A tick that runs
// past the interval leaves at most one pending tick behind it.
type Poller struct {
	cfg    Config
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func New(cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Adapter == nil {
		cfg.Adapter, _ = adapter.Lookup(adapter.Default)
	}
	return &Poller{cfg: cfg, done: make(chan struct{})}
}

// Start launches the loop. The first tick fires one interval after Start.
func (p *Poller) Start(ctx context.Context) {
	p.once.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		go p.run(ctx)
	})
}

// Stop cancels the loop and any in-flight fetch without waiting for it.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// Done is closed once the loop goroutine has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	l := logging.With("poller")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			snap, err := p.Tick(ctx)
			if ctx.Err() != nil {
				p.cfg.Metrics.RecordTick(metrics.TickDropped, time.Since(start))
				return
			}
			if err != nil {
				p.cfg.Metrics.RecordTick(metrics.TickFailed, time.Since(start))
				l.Warn().Err(err).Msg("poll tick failed")
				p.Stop()
				if p.cfg.OnFailure != nil {
					p.cfg.OnFailure(err)
				}
				return
			}
			p.cfg.Metrics.RecordTick(metrics.TickOK, time.Since(start))
			if p.cfg.OnSnapshot != nil {
				p.cfg.OnSnapshot(snap)
			}
		}
	}
}

// Tick fetches both resources concurrently and normalizes them.
func (p *Poller) Tick(ctx context.Context) (model.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	var (
		session  raw.Object
		vehicles []raw.Object
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		session, err = p.cfg.Fetcher.FetchSession(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		vehicles, err = p.cfg.Fetcher.FetchStandings(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Snapshot{}, errors.Wrap(err, "poll tick")
	}
	return p.cfg.Adapter.Normalize(session, vehicles), nil
}
