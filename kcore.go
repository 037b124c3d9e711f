package kcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hugolhafner/go-kcore/logger"
	"github.com/hugolhafner/go-kcore/scheduler"
	"golang.org/x/sync/errgroup"
)

const Version = "v0.1.0" // x-release-please-version

var (
	ErrAlreadyRunning = errors.New("application is already running")
	ErrClosed         = errors.New("application is closed")
	ErrNothingToRun   = errors.New("application has no consumers")
)

// Closer is a resource released when the application stops, such as a
// producer.Producer.
type Closer interface {
	Close(ctx context.Context) error
}

type Config struct {
	Logger          logger.Logger
	LoopOptions     []scheduler.Option
	ShutdownTimeout time.Duration
}

type ConfigOption func(*Config)

func WithLogger(logger logger.Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithLoopOptions configures the scheduler loop of every consumer.
func WithLoopOptions(opts ...scheduler.Option) ConfigOption {
	return func(c *Config) {
		c.LoopOptions = append(c.LoopOptions, opts...)
	}
}

// WithShutdownTimeout bounds how long closing consumers and producers may
// take once the loops stopped.
func WithShutdownTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		if d > 0 {
			c.ShutdownTimeout = d
		}
	}
}

func defaultConfig() Config {
	return Config{
		Logger:          logger.NewNoopLogger(),
		ShutdownTimeout: 30 * time.Second,
	}
}

// Application runs one scheduler loop per consumer concurrently. When any
// loop fails the others are stopped. On the way out consumers are closed
// first, so their offsets are committed, then producers are flushed.
type Application struct {
	config Config
	logger logger.Logger

	mu        sync.Mutex
	drainers  []scheduler.Drainer
	closers   []Closer
	running   bool
	closeOnce sync.Once
	closedCh  chan struct{}
}

func NewApplication(opts ...ConfigOption) *Application {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &Application{
		config:   config,
		logger:   config.Logger,
		closedCh: make(chan struct{}),
	}
}

// Add registers consumers. Drainers that implement Closer are closed when
// the application stops.
func (a *Application) Add(drainers ...scheduler.Drainer) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.drainers = append(a.drainers, drainers...)
}

// AddCloser registers resources closed after every consumer, in order.
func (a *Application) AddCloser(closers ...Closer) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closers = append(a.closers, closers...)
}

// Run blocks until ctx is cancelled, Close is called or a loop fails. It
// returns the first loop error joined with any shutdown error.
func (a *Application) Run(ctx context.Context) error {
	drainers, err := a.startRunning()
	if err != nil {
		return err
	}
	defer a.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.closedCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	a.logger.Info("Application started", "consumers", len(drainers))

	g, gctx := errgroup.WithContext(runCtx)
	for _, d := range drainers {
		loop := scheduler.New(append([]scheduler.Option{scheduler.WithLogger(a.logger)}, a.config.LoopOptions...)...)
		g.Go(
			func() error {
				if err := loop.Run(gctx, d); err != nil {
					return fmt.Errorf("consumer %q: %w", d.Subscription(), err)
				}
				return nil
			},
		)
	}
	runErr := g.Wait()
	if runErr != nil {
		a.logger.Error("Consumer loop failed, stopping application", "error", runErr)
	}

	return errors.Join(runErr, a.shutdown(drainers))
}

func (a *Application) shutdown(drainers []scheduler.Drainer) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	for _, d := range drainers {
		if c, ok := d.(Closer); ok {
			if err := c.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("close consumer %q: %w", d.Subscription(), err))
			}
		}
	}

	a.mu.Lock()
	closers := append([]Closer(nil), a.closers...)
	a.mu.Unlock()

	for _, c := range closers {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		a.logger.Error("Application stopped with errors", "error", err)
	} else {
		a.logger.Info("Application stopped")
	}
	return err
}

// Close stops a running application. It is safe to call from any goroutine
// and more than once. A closed application cannot be run again.
func (a *Application) Close() {
	a.closeOnce.Do(
		func() {
			a.mu.Lock()
			defer a.mu.Unlock()

			a.running = false
			close(a.closedCh)
		},
	)
}

func (a *Application) startRunning() ([]scheduler.Drainer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return nil, ErrAlreadyRunning
	}

	select {
	case <-a.closedCh:
		return nil, ErrClosed
	default:
	}

	if len(a.drainers) == 0 {
		return nil, ErrNothingToRun
	}

	a.running = true
	return append([]scheduler.Drainer(nil), a.drainers...), nil
}
