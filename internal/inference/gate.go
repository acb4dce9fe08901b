package inference

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/krushi/krushi-api/internal/config"
	"github.com/krushi/krushi-api/internal/logging"
)

// Prober is the health check the Gate polls.
type Prober interface {
	Probe(ctx context.Context) error
}

// Gate decides whether the service is reachable and waits for it to come
// up. Every caller of Wake polls for itself; readiness observed by one
// request is never assumed by another.
type Gate struct {
	prober   Prober
	sup      *Supervisor
	interval time.Duration
	budget   time.Duration
	log      logging.Logger

	sf singleflight.Group
}

func NewGate(p Prober, sup *Supervisor, cfg config.InferenceConfig, log logging.Logger) *Gate {
	return &Gate{prober: p, sup: sup, interval: cfg.WakeInterval, budget: cfg.WakeBudget, log: log}
}

// Probe runs one health check.
func (g *Gate) Probe(ctx context.Context) error {
	if err := g.prober.Probe(ctx); err != nil {
		return err
	}
	g.sup.MarkRunning()
	return nil
}

// Wake starts the local subprocess when one is configured, then polls the
// health check every interval until it answers or the budget runs out, in
// which case ErrUnavailable is returned.
func (g *Gate) Wake(ctx context.Context) error {
	if err := g.sup.Start(ctx); err != nil {
		g.log.Error(ctx, "inference supervisor start failed", "error", err)
		return err
	}

	started := time.Now()
	b := retry.WithMaxDuration(g.budget, retry.NewConstant(g.interval))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := g.Probe(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		g.log.Warn(ctx, "inference service did not wake", "waited", time.Since(started).Round(time.Millisecond), "error", err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrUnavailable
	}
	g.log.Info(ctx, "inference service awake", "waited", time.Since(started).Round(time.Millisecond))
	return nil
}

// WakeInBackground triggers at most one detached Wake at a time. It returns
// the error of starting the subprocess, if any; polling continues in the
// background.
func (g *Gate) WakeInBackground() error {
	if err := g.sup.Start(context.Background()); err != nil {
		return err
	}
	go func() {
		_, _, _ = g.sf.Do("wake", func() (any, error) {
			return nil, g.Wake(context.Background())
		})
	}()
	return nil
}

// Supervisor returns the local process supervisor (nil when remote).
func (g *Gate) Supervisor() *Supervisor { return g.sup }
