package hamilton

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/automatedchemistry/flowchem/device"
	"github.com/automatedchemistry/flowchem/engine"
	"github.com/automatedchemistry/flowchem/logger"
	"github.com/automatedchemistry/flowchem/protocol"
)

// Full-stroke resolution of the ML600 plunger drive, and the default dead
// band above absolute zero.
const (
	FullStrokeSteps    = 48000
	DefaultOffsetSteps = 24

	// Plunger speed limits in seconds per full stroke.
	MinSecondsPerStroke = 2
	MaxSecondsPerStroke = 3692
)

// idlePollInterval paces the WaitUntilIdle status loop.
const idlePollInterval = 100 * time.Millisecond

// NewSyringe returns the syringe geometry for a volumeML syringe mounted on
// an ML600 drive.
func NewSyringe(volumeML float64) device.Syringe {
	return device.Syringe{
		VolumeML:            volumeML,
		FullStrokeSteps:     FullStrokeSteps,
		OffsetSteps:         DefaultOffsetSteps,
		MinSecondsPerStroke: MinSecondsPerStroke,
		MaxSecondsPerStroke: MaxSecondsPerStroke,
	}
}

// ML600 is one pump on a Hamilton chain. Obtain handles through Bus.Pump.
//
// Protocol 1 commands without the execute flag are queued in the pump's
// command buffer; the composite pickup/deliver operations exploit this by
// packing a valve turn and a plunger move into a single executed frame.
type ML600 struct {
	eng    *engine.Engine
	addr   protocol.Address
	syr    device.Syringe
	logger logger.Logger
}

var _ device.Pump = (*ML600)(nil)

func newML600(eng *engine.Engine, addr protocol.Address, syr device.Syringe, l logger.Logger) *ML600 {
	return &ML600{
		eng:    eng,
		addr:   addr,
		syr:    syr,
		logger: l.With("pump", addr.String()),
	}
}

// Address returns the pump's chain address.
func (p *ML600) Address() protocol.Address { return p.addr }

// Syringe returns the mounted syringe geometry.
func (p *ML600) Syringe() device.Syringe { return p.syr }

// Initialize homes the plunger and the valve at the given plunger speed.
func (p *ML600) Initialize(ctx context.Context, secondsPerStroke int) error {
	if err := p.checkSpeed(secondsPerStroke); err != nil {
		return err
	}

	_, err := p.do(ctx, protocol.Command{
		Mnemonic: "X",
		Param:    "S",
		Argument: strconv.Itoa(secondsPerStroke),
		Execute:  true,
	})

	return err
}

// InitializePlunger homes only the plunger drive.
func (p *ML600) InitializePlunger(ctx context.Context, secondsPerStroke int) error {
	if err := p.checkSpeed(secondsPerStroke); err != nil {
		return err
	}

	_, err := p.do(ctx, protocol.Command{
		Mnemonic: "X1",
		Param:    "S",
		Argument: strconv.Itoa(secondsPerStroke),
		Execute:  true,
	})

	return err
}

// InitializeValve homes only the valve rotor.
func (p *ML600) InitializeValve(ctx context.Context) error {
	_, err := p.do(ctx, protocol.Command{Mnemonic: "LX0", Execute: true})
	return err
}

// MoveTo drives the plunger to the absolute target volume.
func (p *ML600) MoveTo(ctx context.Context, volumeML float64, secondsPerStroke int) error {
	if err := p.checkSpeed(secondsPerStroke); err != nil {
		return err
	}

	steps, err := p.syr.VolumeToSteps(volumeML)
	if err != nil {
		return err
	}

	_, err = p.do(ctx, protocol.Command{
		Mnemonic: "M",
		Value:    strconv.Itoa(steps),
		Param:    "S",
		Argument: strconv.Itoa(secondsPerStroke),
		Execute:  true,
	})

	return err
}

// Withdraw aspirates volumeML relative to the current plunger position.
func (p *ML600) Withdraw(ctx context.Context, volumeML float64, secondsPerStroke int) error {
	return p.relativeMove(ctx, "P", volumeML, secondsPerStroke)
}

// Infuse dispenses volumeML relative to the current plunger position.
func (p *ML600) Infuse(ctx context.Context, volumeML float64, secondsPerStroke int) error {
	return p.relativeMove(ctx, "D", volumeML, secondsPerStroke)
}

// Pickup switches the valve to the input port and aspirates volumeML, as a
// single buffered frame.
func (p *ML600) Pickup(ctx context.Context, volumeML float64, secondsPerStroke int) error {
	return p.relativeMove(ctx, "IP", volumeML, secondsPerStroke)
}

// Deliver switches the valve to the output port and dispenses volumeML, as a
// single buffered frame.
func (p *ML600) Deliver(ctx context.Context, volumeML float64, secondsPerStroke int) error {
	return p.relativeMove(ctx, "OD", volumeML, secondsPerStroke)
}

func (p *ML600) relativeMove(ctx context.Context, mnemonic string, volumeML float64, secondsPerStroke int) error {
	if err := p.checkSpeed(secondsPerStroke); err != nil {
		return err
	}

	if volumeML < 0 || volumeML > p.syr.VolumeML {
		return fmt.Errorf("%w: volume %v ml outside [0, %v]", protocol.ErrOutOfRange, volumeML, p.syr.VolumeML)
	}

	steps := int(math.Round(volumeML / p.syr.VolumeML * float64(p.syr.FullStrokeSteps)))

	_, err := p.do(ctx, protocol.Command{
		Mnemonic: mnemonic,
		Value:    strconv.Itoa(steps),
		Param:    "S",
		Argument: strconv.Itoa(secondsPerStroke),
		Execute:  true,
	})

	return err
}

// Volume returns the current plunger position as a volume.
func (p *ML600) Volume(ctx context.Context) (float64, error) {
	steps, err := p.queryInt(ctx, "YQP")
	if err != nil {
		return 0, err
	}

	return p.syr.StepsToVolume(steps), nil
}

// IsBusy reports whether a buffered command is still executing.
func (p *ML600) IsBusy(ctx context.Context) (bool, error) {
	reply, err := p.do(ctx, protocol.Command{Mnemonic: "F", Execute: true})
	if err != nil {
		return false, err
	}

	switch reply.Payload {
	case "Y":
		return false, nil
	case "N", "*":
		return true, nil
	default:
		return false, fmt.Errorf("%w: unexpected status %q", protocol.ErrProtocol, reply.Payload)
	}
}

// WaitUntilIdle polls the pump status until it reports idle or timeout
// elapses.
func (p *ML600) WaitUntilIdle(ctx context.Context, timeout time.Duration) error {
	return engine.Poll(ctx, idlePollInterval, timeout, func(ctx context.Context) (bool, error) {
		busy, err := p.IsBusy(ctx)
		return !busy, err
	})
}

// Pause halts the plunger without discarding the command buffer.
func (p *ML600) Pause(ctx context.Context) error {
	_, err := p.do(ctx, protocol.Command{Mnemonic: "K", Execute: true})
	return err
}

// Resume continues a paused buffer.
func (p *ML600) Resume(ctx context.Context) error {
	_, err := p.do(ctx, protocol.Command{Mnemonic: "$", Execute: true})
	return err
}

// ClearBuffer discards any queued commands.
func (p *ML600) ClearBuffer(ctx context.Context) error {
	_, err := p.do(ctx, protocol.Command{Mnemonic: "V", Execute: true})
	return err
}

// Stop halts the plunger and discards the command buffer.
func (p *ML600) Stop(ctx context.Context) error {
	if err := p.Pause(ctx); err != nil {
		return err
	}

	return p.ClearBuffer(ctx)
}

// Firmware returns the pump's firmware version string.
func (p *ML600) Firmware(ctx context.Context) (string, error) {
	reply, err := p.do(ctx, protocol.Command{Mnemonic: "U", Execute: true})
	if err != nil {
		return "", err
	}

	return reply.Payload, nil
}

// ValveAngle returns the rotor angle in degrees.
func (p *ML600) ValveAngle(ctx context.Context) (int, error) {
	return p.queryInt(ctx, "LQA")
}

// SetValveAngle rotates the valve to the absolute angle, clockwise.
func (p *ML600) SetValveAngle(ctx context.Context, degrees int) error {
	if degrees < 0 || degrees >= 360 {
		return fmt.Errorf("%w: angle %d outside [0, 360)", protocol.ErrInvalidPosition, degrees)
	}

	_, err := p.do(ctx, protocol.Command{
		Mnemonic: "LP0",
		Value:    strconv.Itoa(degrees),
		Execute:  true,
	})

	return err
}

// SetValveSpeed sets the valve rotation speed code.
func (p *ML600) SetValveSpeed(ctx context.Context, speed int) error {
	_, err := p.do(ctx, protocol.Command{
		Mnemonic: "LSF",
		Value:    strconv.Itoa(speed),
		Execute:  true,
	})

	return err
}

// ReturnSteps returns the backlash compensation in steps.
func (p *ML600) ReturnSteps(ctx context.Context) (int, error) {
	return p.queryInt(ctx, "YQN")
}

// SetReturnSteps sets the backlash compensation in steps.
func (p *ML600) SetReturnSteps(ctx context.Context, steps int) error {
	_, err := p.do(ctx, protocol.Command{
		Mnemonic: "YSN",
		Value:    strconv.Itoa(steps),
		Execute:  true,
	})

	return err
}

func (p *ML600) do(ctx context.Context, cmd protocol.Command) (protocol.Reply, error) {
	return p.eng.Do(ctx, cmd.WithAddress(p.addr))
}

func (p *ML600) queryInt(ctx context.Context, mnemonic string) (int, error) {
	reply, err := p.do(ctx, protocol.Command{Mnemonic: mnemonic, Execute: true})
	if err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(reply.Payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %s reply %q is not a number", protocol.ErrProtocol, mnemonic, reply.Payload)
	}

	return n, nil
}

func (p *ML600) checkSpeed(secondsPerStroke int) error {
	if secondsPerStroke < p.syr.MinSecondsPerStroke || secondsPerStroke > p.syr.MaxSecondsPerStroke {
		return fmt.Errorf("%w: %d s/stroke outside [%d, %d]", protocol.ErrOutOfRange,
			secondsPerStroke, p.syr.MinSecondsPerStroke, p.syr.MaxSecondsPerStroke)
	}

	return nil
}
