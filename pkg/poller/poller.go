package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cirocosta/purifier-exporter/pkg/collector"
	"github.com/cirocosta/purifier-exporter/pkg/device"
)

const defaultFetchTimeout = 10 * time.Second

// Target is a device to be polled.
//
type Target struct {
	// Name is the configured device name, used as the `name` label.
	//
	Name string

	Client device.Client
}

// target is a Target with its capabilities resolved.
//
type target struct {
	Target

	caps device.Capabilities
}

// Poller periodically fetches a snapshot from every target and writes it to
// the registry.
//
type Poller struct {
	targets  []target
	registry *collector.Registry

	// interval is the time spent idle between the end of a tick and the
	// start of the next one.
	//
	interval time.Duration

	// fetchTimeout bounds how long a single device fetch may take.
	//
	fetchTimeout time.Duration

	now func() time.Time
	log logr.Logger
}

// Option is a type used by functional arguments to mutate the poller to
// override default behavior.
//
type Option func(p *Poller)

// WithFetchTimeout overrides the default per-device fetch timeout.
//
func WithFetchTimeout(v time.Duration) Option {
	return func(p *Poller) {
		p.fetchTimeout = v
	}
}

// WithLogger overrides the default development logger.
//
func WithLogger(v logr.Logger) Option {
	return func(p *Poller) {
		p.log = v
	}
}

// WithClock overrides the function used to tell the current time.
//
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		p.now = now
	}
}

var (
	errNoTargets       = errors.New("at least one target is required")
	errInvalidInterval = errors.New("interval must be positive")
)

// New instantiates a poller. Capabilities of each target are resolved here,
// once.
//
func New(
	registry *collector.Registry,
	interval time.Duration,
	targets []Target,
	opts ...Option,
) (*Poller, error) {
	if len(targets) == 0 {
		return nil, errNoTargets
	}

	if interval <= 0 {
		return nil, errInvalidInterval
	}

	p := &Poller{
		registry:     registry,
		interval:     interval,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.log == nil {
		defaultLogger, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("zap new development: %w", err)
		}

		p.log = zapr.NewLogger(defaultLogger.Named("poller"))
	}

	for _, t := range targets {
		p.targets = append(p.targets, target{
			Target: t,
			caps:   t.Client.Capabilities(),
		})
	}

	return p, nil
}

// Run polls all targets right away and then again every `interval` after the
// previous tick finished, until `ctx` is done.
//
// ps.: this is a BLOCKING method.
//
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("starting",
		"interval", p.interval.String(),
		"targets", len(p.targets))

	for {
		p.Tick(ctx)

		timer := time.NewTimer(p.interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("ctx err: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// Tick attempts every target once, concurrently, returning when all of them
// have either completed or failed.
//
// A failing target never affects the others: its error is logged and
// counted, and its gauges keep their previous values.
//
func (p *Poller) Tick(ctx context.Context) {
	var g errgroup.Group

	for _, t := range p.targets {
		t := t

		g.Go(func() error {
			if err := p.poll(ctx, t); err != nil {
				if ctx.Err() != nil {
					return nil
				}

				reason := device.Reason(err)

				p.log.Error(err, "poll failed",
					"device", t.Name,
					"reason", reason)
			}

			return nil
		})
	}

	_ = g.Wait()
}

func (p *Poller) poll(ctx context.Context, t target) error {
	ctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	start := p.now()

	snapshot, err := t.Client.Fetch(ctx)
	took := p.now().Sub(start)

	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
			err = fmt.Errorf("%v: %w", err, ctx.Err())
		}

		fetchErr := &device.FetchError{Device: t.Name, Err: err}

		if !errors.Is(err, context.Canceled) {
			p.registry.ObserveFailure(t.Name, device.Reason(err), took)
		}

		return fetchErr
	}

	written := p.registry.Update(t.Name, snapshot, t.caps)
	p.registry.ObserveSuccess(t.Name, took, p.now())

	p.log.V(1).Info("polled",
		"device", t.Name,
		"fields", written,
		"took", took.String())

	return nil
}
