// Package readiness provides the one-shot initialization gate for the
// inference backend. Loading is triggered once, runs on its own goroutine,
// and every current or future waiter observes the same outcome.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// State of the gate.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// ErrBackendUnavailable is returned by WaitForInit after a failed load.
var ErrBackendUnavailable = errors.New("backend unavailable")

// backendUnavailableError carries the load failure cause.
type backendUnavailableError struct{ cause error }

func (e *backendUnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", ErrBackendUnavailable, e.cause)
}

func (e *backendUnavailableError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.cause}
}

// IsBackendUnavailable reports whether err indicates a failed backend load.
func IsBackendUnavailable(err error) bool { return errors.Is(err, ErrBackendUnavailable) }

// LoadFunc performs the slow backend initialization.
type LoadFunc func(ctx context.Context) error

// Option configures a Gate.
type Option func(*Gate)

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option { return func(g *Gate) { g.log = l } }

// WithContext sets the base context passed to the load function.
func WithContext(ctx context.Context) Option { return func(g *Gate) { g.baseCtx = ctx } }

var backendReady = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "medqa",
	Subsystem: "backend",
	Name:      "ready",
	Help:      "1 when the inference backend finished loading successfully",
})

func init() {
	prometheus.MustRegister(backendReady)
}

// Gate is a process-wide readiness signal backed by a closed channel.
type Gate struct {
	load    LoadFunc
	log     zerolog.Logger
	baseCtx context.Context

	start   sync.Once
	resolve sync.Once
	done    chan struct{}
	state   atomic.Value // State
	err     error        // written once before done is closed
}

// New returns an idle gate that will run load on the first EnsureInit.
func New(load LoadFunc, opts ...Option) *Gate {
	g := &Gate{
		load:    load,
		log:     zerolog.Nop(),
		baseCtx: context.Background(),
		done:    make(chan struct{}),
	}
	g.state.Store(StateIdle)
	for _, o := range opts {
		o(g)
	}
	return g
}

// EnsureInit starts loading if it has not been started yet. It never blocks.
func (g *Gate) EnsureInit() {
	g.start.Do(func() {
		g.state.Store(StateLoading)
		go g.run()
	})
}

func (g *Gate) run() {
	startTs := time.Now()
	g.log.Info().Str("event", "load_start").Msg("gate")
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("load panic: %v", r)
			}
		}()
		if g.load == nil {
			err = errors.New("no loader configured")
			return
		}
		err = g.load(g.baseCtx)
	}()
	if err != nil {
		g.log.Error().Str("event", "load_failed").Dur("dur", time.Since(startTs)).Err(err).Msg("gate")
	} else {
		g.log.Info().Str("event", "load_ready").Dur("dur", time.Since(startTs)).Msg("gate")
	}
	g.signal(err)
}

// signal resolves the gate. Only the first call has an effect.
func (g *Gate) signal(err error) {
	g.resolve.Do(func() {
		if err != nil {
			g.err = &backendUnavailableError{cause: err}
			g.state.Store(StateFailed)
			backendReady.Set(0)
		} else {
			g.state.Store(StateReady)
			backendReady.Set(1)
		}
		close(g.done)
	})
}

// WaitForInit blocks until loading resolves or ctx is done. It does not start
// loading by itself; callers pair it with EnsureInit.
func (g *Gate) WaitForInit(ctx context.Context) error {
	select {
	case <-g.done:
		return g.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once loading has resolved, successfully or not.
func (g *Gate) Done() <-chan struct{} { return g.done }

// Ready reports whether loading finished successfully.
func (g *Gate) Ready() bool { return g.State() == StateReady }

// State returns the current lifecycle state.
func (g *Gate) State() State { return g.state.Load().(State) }

// Err returns the recorded load failure, or nil.
func (g *Gate) Err() error {
	select {
	case <-g.done:
		return g.err
	default:
		return nil
	}
}
