package huber

import (
	"context"
	"fmt"

	"github.com/automatedchemistry/flowchem/device"
	"github.com/automatedchemistry/flowchem/engine"
	"github.com/automatedchemistry/flowchem/logger"
	"github.com/automatedchemistry/flowchem/protocol"
	"github.com/automatedchemistry/flowchem/transport"
)

// PB variable addresses used by the driver.
const (
	addrSetpoint     = "00"
	addrInternalTemp = "01"
	addrReturnTemp   = "02"
	addrPumpPressure = "03"
	addrPower        = "04"
	addrTempControl  = "14"
	addrCirculation  = "16"
	addrSerialHigh   = "1B"
	addrSerialLow    = "1C"
	addrPumpSpeed    = "26"
	addrMinSetpoint  = "30"
	addrMaxSetpoint  = "31"
	addrProcessTemp  = "3A"
	addrPumpSpeedSet = "48"
	addrRampDuration = "59"
	addrRampTarget   = "5A"
)

// noProbeValue is reported on the process temperature address when no
// external probe is connected.
const noProbeValue = 0x7FFF

// On/off values for boolean variables.
const (
	hexOff = "0000"
	hexOn  = "0001"
)

// targetTolerance is the temperature delta under which the setpoint counts
// as reached.
const targetTolerance = 1.0

// Chiller is a Huber temperature control unit on a point-to-point serial
// line. It regulates toward a setpoint using the process probe when one is
// connected, the internal bath sensor otherwise.
type Chiller struct {
	tr     transport.Transport
	eng    *engine.Engine
	logger logger.Logger
}

var _ device.TemperatureController = (*Chiller)(nil)

// ChillerOption configures a Chiller.
type ChillerOption func(*Chiller)

// WithLogger sets the device logger.
func WithLogger(l logger.Logger) ChillerOption {
	return func(c *Chiller) { c.logger = l }
}

// NewChiller creates a chiller over tr. Call Connect before use.
func NewChiller(tr transport.Transport, opts ...ChillerOption) *Chiller {
	c := &Chiller{
		tr:     tr,
		logger: logger.GetLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("device", "huber-chiller")
	c.eng = engine.New(tr, Codec{}, transport.FixedLength(FrameLen), engine.WithLogger(c.logger))

	return c
}

// Connect opens the channel and confirms a unit answers by reading its
// serial number.
func (c *Chiller) Connect(ctx context.Context) error {
	if err := c.tr.Open(ctx); err != nil {
		return err
	}

	serial, err := c.SerialNumber(ctx)
	if err != nil {
		return err
	}

	c.logger.Info("chiller connected", "serial", serial)

	return nil
}

// SetTemperature programs the setpoint. Values beyond the unit's configured
// limits are clamped to the nearest limit.
func (c *Chiller) SetTemperature(ctx context.Context, celsius float64) error {
	minT, maxT, err := c.TemperatureLimits(ctx)
	if err != nil {
		return err
	}

	if celsius < minT {
		c.logger.Warn("setpoint below limit, clamping", "requested", celsius, "min", minT)
		celsius = minT
	}
	if celsius > maxT {
		c.logger.Warn("setpoint above limit, clamping", "requested", celsius, "max", maxT)
		celsius = maxT
	}

	return c.writeTemp(ctx, addrSetpoint, celsius)
}

// Setpoint returns the programmed setpoint.
func (c *Chiller) Setpoint(ctx context.Context) (float64, error) {
	return c.readTemp(ctx, addrSetpoint)
}

// Temperature returns the controlled temperature: the process probe when
// connected, the internal bath sensor otherwise.
func (c *Chiller) Temperature(ctx context.Context) (float64, error) {
	t, ok, err := c.ProcessTemperature(ctx)
	if err != nil {
		return 0, err
	}
	if ok {
		return t, nil
	}

	return c.InternalTemperature(ctx)
}

// TargetReached reports whether the controlled temperature is within one
// degree of the setpoint.
func (c *Chiller) TargetReached(ctx context.Context) (bool, error) {
	current, err := c.Temperature(ctx)
	if err != nil {
		return false, err
	}

	setpoint, err := c.Setpoint(ctx)
	if err != nil {
		return false, err
	}

	delta := current - setpoint
	if delta < 0 {
		delta = -delta
	}

	return delta < targetTolerance, nil
}

// InternalTemperature returns the bath temperature.
func (c *Chiller) InternalTemperature(ctx context.Context) (float64, error) {
	return c.readTemp(ctx, addrInternalTemp)
}

// ProcessTemperature returns the external probe temperature. ok is false
// when no probe is connected.
func (c *Chiller) ProcessTemperature(ctx context.Context) (float64, bool, error) {
	raw, err := c.readInt(ctx, addrProcessTemp)
	if err != nil {
		return 0, false, err
	}

	if raw == noProbeValue {
		return 0, false, nil
	}

	t, err := HexToTemp(fmt.Sprintf("%04X", raw))
	if err != nil {
		return 0, false, err
	}

	return t, true, nil
}

// ReturnTemperature returns the temperature of the fluid flowing back into
// the unit.
func (c *Chiller) ReturnTemperature(ctx context.Context) (float64, error) {
	return c.readTemp(ctx, addrReturnTemp)
}

// TemperatureLimits returns the configured setpoint range.
func (c *Chiller) TemperatureLimits(ctx context.Context) (minT, maxT float64, err error) {
	minT, err = c.readTemp(ctx, addrMinSetpoint)
	if err != nil {
		return 0, 0, err
	}

	maxT, err = c.readTemp(ctx, addrMaxSetpoint)
	if err != nil {
		return 0, 0, err
	}

	return minT, maxT, nil
}

// PumpPressure returns the circulation pump pressure in mbar.
func (c *Chiller) PumpPressure(ctx context.Context) (int, error) {
	return c.readInt(ctx, addrPumpPressure)
}

// CurrentPower returns the thermal power in watts, negative while cooling.
func (c *Chiller) CurrentPower(ctx context.Context) (int, error) {
	reply, err := c.read(ctx, addrPower)
	if err != nil {
		return 0, err
	}

	return HexToSignedInt(reply)
}

// PowerOn starts temperature control.
func (c *Chiller) PowerOn(ctx context.Context) error {
	return c.write(ctx, addrTempControl, hexOn)
}

// PowerOff stops temperature control.
func (c *Chiller) PowerOff(ctx context.Context) error {
	return c.write(ctx, addrTempControl, hexOff)
}

// IsTemperatureControlActive reports whether the unit is regulating.
func (c *Chiller) IsTemperatureControlActive(ctx context.Context) (bool, error) {
	return c.readBool(ctx, addrTempControl)
}

// StartCirculation starts the circulation pump.
func (c *Chiller) StartCirculation(ctx context.Context) error {
	return c.write(ctx, addrCirculation, hexOn)
}

// StopCirculation stops the circulation pump.
func (c *Chiller) StopCirculation(ctx context.Context) error {
	return c.write(ctx, addrCirculation, hexOff)
}

// IsCirculationActive reports whether the circulation pump runs.
func (c *Chiller) IsCirculationActive(ctx context.Context) (bool, error) {
	return c.readBool(ctx, addrCirculation)
}

// PumpSpeed returns the circulation pump speed in rpm.
func (c *Chiller) PumpSpeed(ctx context.Context) (int, error) {
	return c.readInt(ctx, addrPumpSpeed)
}

// SetPumpSpeed programs the circulation pump speed in rpm.
func (c *Chiller) SetPumpSpeed(ctx context.Context, rpm int) error {
	hex, err := IntToHex(rpm)
	if err != nil {
		return err
	}

	return c.write(ctx, addrPumpSpeedSet, hex)
}

// SetRampDuration programs the duration in seconds of the next temperature
// ramp.
func (c *Chiller) SetRampDuration(ctx context.Context, seconds int) error {
	hex, err := IntToHex(seconds)
	if err != nil {
		return err
	}

	return c.write(ctx, addrRampDuration, hex)
}

// RampToTemperature starts a ramp to the target over the programmed
// duration.
func (c *Chiller) RampToTemperature(ctx context.Context, celsius float64) error {
	return c.writeTemp(ctx, addrRampTarget, celsius)
}

// SerialNumber returns the unit serial number, stored across two registers.
func (c *Chiller) SerialNumber(ctx context.Context) (int, error) {
	high, err := c.read(ctx, addrSerialHigh)
	if err != nil {
		return 0, err
	}

	low, err := c.read(ctx, addrSerialLow)
	if err != nil {
		return 0, err
	}

	var serial int
	if _, err := fmt.Sscanf(high+low, "%08X", &serial); err != nil {
		return 0, fmt.Errorf("%w: serial registers %q %q", protocol.ErrProtocol, high, low)
	}

	return serial, nil
}

// Close releases the channel.
func (c *Chiller) Close() error { return c.tr.Close() }

func (c *Chiller) read(ctx context.Context, addr string) (string, error) {
	reply, err := c.eng.Do(ctx, protocol.Command{Mnemonic: addr})
	if err != nil {
		return "", err
	}

	return reply.Payload, nil
}

func (c *Chiller) write(ctx context.Context, addr, value string) error {
	_, err := c.eng.Do(ctx, protocol.Command{Mnemonic: addr, Value: value})
	return err
}

func (c *Chiller) readTemp(ctx context.Context, addr string) (float64, error) {
	reply, err := c.read(ctx, addr)
	if err != nil {
		return 0, err
	}

	return HexToTemp(reply)
}

func (c *Chiller) writeTemp(ctx context.Context, addr string, celsius float64) error {
	hex, err := TempToHex(celsius)
	if err != nil {
		return err
	}

	return c.write(ctx, addr, hex)
}

func (c *Chiller) readInt(ctx context.Context, addr string) (int, error) {
	reply, err := c.read(ctx, addr)
	if err != nil {
		return 0, err
	}

	return HexToInt(reply)
}

func (c *Chiller) readBool(ctx context.Context, addr string) (bool, error) {
	n, err := c.readInt(ctx, addr)
	if err != nil {
		return false, err
	}

	return n != 0, nil
}
