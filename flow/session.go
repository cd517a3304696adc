// Package flow coordinates two syringe pumps with switching valves into one
// continuous flow stream.
//
// While one syringe delivers at the requested rate, the other refills
// slightly faster from the source, switches back to the delivery line, and
// waits. When the deliverer empties the roles swap, so the output stream
// never pauses beyond a valve switch.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/automatedchemistry/flowchem/device"
	"github.com/automatedchemistry/flowchem/internal/task"
	"github.com/automatedchemistry/flowchem/logger"
)

// refillSpeedDelta makes the refill stroke this many seconds faster than the
// delivery stroke, so the refiller is always ready before the deliverer
// empties.
const refillSpeedDelta = 5

// DefaultReturnSpeed is the plunger speed for non-delivery moves (priming
// and returning to source), in seconds per stroke.
const DefaultReturnSpeed = 60

// idleWaitMargin pads the idle-wait timeout beyond the expected stroke time.
const idleWaitMargin = 10 * time.Second

// ErrUnequalSyringes rejects pump pairs whose syringe volumes differ; the
// half-cycle bookkeeping relies on both strokes moving the same volume.
var ErrUnequalSyringes = errors.New("pump pair has unequal syringe volumes")

// ErrSessionRunning rejects Start on a session that is already running.
var ErrSessionRunning = errors.New("session already running")

// Pair binds one pump to its switching valve and names the two valve ports
// the session uses.
type Pair struct {
	Pump  device.Pump
	Valve device.Valve

	// SourcePort selects the reservoir, DeliveryPort the output stream.
	SourcePort   string
	DeliveryPort string
}

func (p Pair) validate() error {
	if p.Pump == nil || p.Valve == nil {
		return errors.New("pair needs both a pump and a valve")
	}

	for _, port := range []string{p.SourcePort, p.DeliveryPort} {
		if !contains(p.Valve.Ports(), port) {
			return fmt.Errorf("valve has no port %q (ports: %v)", port, p.Valve.Ports())
		}
	}

	return nil
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithReturnSpeed sets the plunger speed for priming and return moves, in
// seconds per stroke.
func WithReturnSpeed(secondsPerStroke int) Option {
	return func(s *Session) { s.returnSpeed = secondsPerStroke }
}

// Session runs the two-pump continuous flow schedule.
type Session struct {
	deliverer Pair
	refiller  Pair

	rate        float64
	totalVolume float64
	speed       int
	refillSpeed int
	returnSpeed int
	volume      float64 // syringe volume, identical on both pumps

	mgr    *task.Manager
	logger logger.Logger

	mu        sync.Mutex
	running   bool
	stopping  bool
	delivered float64
	err       error
}

// NewSession validates the pair against the requested rate and total volume.
// All range errors surface here, before any device I/O.
//
// totalVolumeML bounds the delivered volume; zero means run until Stop.
func NewSession(left, right Pair, rateMLMin, totalVolumeML float64, opts ...Option) (*Session, error) {
	if err := left.validate(); err != nil {
		return nil, fmt.Errorf("left pair: %w", err)
	}
	if err := right.validate(); err != nil {
		return nil, fmt.Errorf("right pair: %w", err)
	}

	leftSyr, rightSyr := left.Pump.Syringe(), right.Pump.Syringe()
	if leftSyr.VolumeML != rightSyr.VolumeML {
		return nil, fmt.Errorf("%w: %v ml vs %v ml", ErrUnequalSyringes, leftSyr.VolumeML, rightSyr.VolumeML)
	}

	if totalVolumeML < 0 {
		return nil, fmt.Errorf("total volume %v ml must not be negative", totalVolumeML)
	}

	speed, err := leftSyr.SecondsPerStroke(rateMLMin)
	if err != nil {
		return nil, err
	}

	refillSpeed := speed - refillSpeedDelta
	if refillSpeed < leftSyr.MinSecondsPerStroke {
		refillSpeed = leftSyr.MinSecondsPerStroke
	}

	s := &Session{
		deliverer:   left,
		refiller:    right,
		rate:        rateMLMin,
		totalVolume: totalVolumeML,
		speed:       speed,
		refillSpeed: refillSpeed,
		returnSpeed: DefaultReturnSpeed,
		volume:      leftSyr.VolumeML,
		logger:      logger.GetLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With("component", "flow-session")

	return s, nil
}

// Start primes the first deliverer and launches the half-cycle loop. It
// returns once the stream is flowing; use Wait to block until completion.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSessionRunning
	}
	s.running = true
	s.stopping = false
	s.delivered = 0
	s.err = nil
	s.mu.Unlock()

	s.mgr = task.NewManager(ctx, s.logger)

	if err := s.prime(ctx); err != nil {
		s.finish(err)
		return err
	}

	s.logger.Info("continuous flow started",
		"rate_ml_min", s.rate, "stroke_s", s.speed, "refill_stroke_s", s.refillSpeed)

	return s.mgr.Start("half-cycle", s.halfCycle)
}

// prime fills the first deliverer from the source and points both valves at
// the delivery line.
func (s *Session) prime(ctx context.Context) error {
	for _, p := range []Pair{s.deliverer, s.refiller} {
		if err := s.refill(ctx, p, s.returnSpeed); err != nil {
			return fmt.Errorf("priming: %w", err)
		}
	}

	return nil
}

// halfCycle runs one delivery stroke and the overlapping refill. Returning
// false ends the loop.
func (s *Session) halfCycle() bool {
	ctx := s.mgr.Context()

	d, r := s.pairs()

	if err := d.Pump.MoveTo(ctx, 0, s.speed); err != nil {
		s.fail(ctx, err)
		return false
	}

	if err := s.refill(ctx, r, s.refillSpeed); err != nil {
		s.fail(ctx, err)
		return false
	}

	if err := d.Pump.WaitUntilIdle(ctx, s.strokeTimeout(s.speed)); err != nil {
		s.fail(ctx, err)
		return false
	}

	s.mu.Lock()
	s.delivered += s.volume
	delivered := s.delivered
	stopping := s.stopping
	s.mu.Unlock()

	s.logger.Debug("half-cycle complete", "delivered_ml", delivered)

	if stopping || (s.totalVolume > 0 && delivered >= s.totalVolume) {
		s.finish(nil)
		return false
	}

	s.mu.Lock()
	s.deliverer, s.refiller = s.refiller, s.deliverer
	s.mu.Unlock()

	return true
}

// pairs returns the current deliverer and refiller. The roles swap every
// half-cycle, so reads outside the cycle goroutine go through here.
func (s *Session) pairs() (deliverer, refiller Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deliverer, s.refiller
}

// refill draws a full syringe from the source at the given speed and
// switches the valve back to the delivery line.
func (s *Session) refill(ctx context.Context, p Pair, speed int) error {
	if err := p.Valve.SetPosition(ctx, p.SourcePort); err != nil {
		return err
	}

	if err := p.Pump.MoveTo(ctx, s.volume, speed); err != nil {
		return err
	}

	if err := p.Pump.WaitUntilIdle(ctx, s.strokeTimeout(speed)); err != nil {
		return err
	}

	return p.Valve.SetPosition(ctx, p.DeliveryPort)
}

// StopAfterCycle requests a cooperative stop at the next half-cycle
// boundary, leaving the stream intact until then.
func (s *Session) StopAfterCycle() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
}

// Stop halts both pumps immediately and cancels the schedule.
func (s *Session) Stop(ctx context.Context) error {
	s.StopAfterCycle()

	if s.mgr != nil {
		s.mgr.Stop()
	}

	d, r := s.pairs()

	err := errors.Join(
		d.Pump.Stop(ctx),
		r.Pump.Stop(ctx),
	)

	s.finish(err)

	return err
}

// Wait blocks until the schedule has ended and returns the first error that
// stopped it, if any.
func (s *Session) Wait() error {
	if s.mgr != nil {
		s.mgr.Wait()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// DeliveredVolume returns the volume pushed into the delivery line so far,
// in ml. It grows by one syringe volume per completed half-cycle.
func (s *Session) DeliveredVolume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.delivered
}

// Running reports whether the schedule is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// ReturnToSource points both valves at the source and empties both syringes
// at the return speed. Call it after the schedule has ended to park the
// assembly clean.
func (s *Session) ReturnToSource(ctx context.Context) error {
	if s.Running() {
		return ErrSessionRunning
	}

	d, r := s.pairs()

	for _, p := range []Pair{d, r} {
		if err := p.Valve.SetPosition(ctx, p.SourcePort); err != nil {
			return err
		}

		if err := p.Pump.MoveTo(ctx, 0, s.returnSpeed); err != nil {
			return err
		}
	}

	for _, p := range []Pair{d, r} {
		if err := p.Pump.WaitUntilIdle(ctx, s.strokeTimeout(s.returnSpeed)); err != nil {
			return err
		}
	}

	return nil
}

// fail stops both pumps best-effort and records the first error.
func (s *Session) fail(ctx context.Context, err error) {
	s.logger.Error("continuous flow failed, stopping pumps", "error", err)

	d, r := s.pairs()

	if stopErr := d.Pump.Stop(ctx); stopErr != nil {
		s.logger.Error("cannot stop deliverer", "error", stopErr)
	}
	if stopErr := r.Pump.Stop(ctx); stopErr != nil {
		s.logger.Error("cannot stop refiller", "error", stopErr)
	}

	s.finish(err)
}

func (s *Session) finish(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.running = false
	s.mu.Unlock()
}

// strokeTimeout bounds an idle wait for a move at the given speed.
func (s *Session) strokeTimeout(secondsPerStroke int) time.Duration {
	return time.Duration(secondsPerStroke)*time.Second + idleWaitMargin
}

func contains(ports []string, port string) bool {
	for _, p := range ports {
		if p == port {
			return true
		}
	}

	return false
}
