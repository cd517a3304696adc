package knauer

import (
	"context"
	"fmt"
	"math"

	"github.com/automatedchemistry/flowchem/device"
	"github.com/automatedchemistry/flowchem/engine"
	"github.com/automatedchemistry/flowchem/logger"
	"github.com/automatedchemistry/flowchem/protocol"
	"github.com/automatedchemistry/flowchem/transport"
)

// asErrorCodes maps the autosampler's error register to its meaning.
var asErrorCodes = map[int]string{
	0:   "no error",
	280: "EEPROM write error",
	282: "EEPROM error in settings",
	283: "EEPROM error in adjustments",
	284: "EEPROM error in log counter",
	290: "error during initialization, the unit cannot start",
	294: "home sensor not reached",
	295: "deviation of more than +/- 2 mm towards home",
	296: "home sensor not de-activated",
	297: "home sensor activated when not expected",
	298: "tray position is unknown",
	303: "horizontal: needle position is unknown",
	304: "horizontal: home sensor not reached",
	306: "horizontal: home sensor not de-activated",
	307: "horizontal: home sensor activated when not expected",
	312: "vertical: needle position is unknown",
	313: "vertical: home sensor not reached",
	315: "vertical: home sensor not de-activated",
	317: "vertical: stripper did not detect plate or wash/waste",
	318: "vertical: stripper stuck",
	319: "vertical: sample needle arm at an invalid position",
	324: "syringe valve did not find destination position",
	330: "syringe home sensor not reached",
	331: "syringe home sensor not de-activated",
	334: "syringe position is unknown",
	335: "syringe rotation error",
	340: "destination position not reached",
	341: "wear-out limit reached",
	342: "illegal sensor readout",
	347: "temperature above 48 degC at cooling ON",
}

// ASErrorDescription returns the meaning of an autosampler error code.
func ASErrorDescription(code int) string {
	if desc, ok := asErrorCodes[code]; ok {
		return desc
	}

	return fmt.Sprintf("unknown error code %d", code)
}

// Needle and valve positions. The wire value is the position's index.
var (
	syringeValvePorts   = []string{"NEEDLE", "WASH", "WASTE"}
	injectorValvePorts  = []string{"LOAD", "INJECT"}
	needleVerticalPos   = []string{"UP", "DOWN"}
	needleHorizontalPos = []string{"WASTE", "WASH", "WASH_2", "PLATE"}
)

// SyringeSpeed values accepted by SetSyringeSpeed. Not supported on all
// firmware revisions.
const (
	SyringeSpeedLow    = 0
	SyringeSpeedNormal = 1
	SyringeSpeedHigh   = 2
)

// Autosampler is a Knauer AS 6.1L (Spark Holland family) autosampler.
//
// Setting commands are acknowledged with a single control byte while query
// replies come back framed, so the driver runs two engines with different
// read rules over the same exclusive transport.
type Autosampler struct {
	tr     transport.Transport
	setEng *engine.Engine
	qryEng *engine.Engine
	logger logger.Logger

	id int
}

// NewAutosampler creates an autosampler handle over tr. Call Connect before
// use.
func NewAutosampler(tr transport.Transport, opts ...Option) *Autosampler {
	cfg := newOptions(opts...)

	a := &Autosampler{
		tr:     tr,
		logger: cfg.logger.With("device", "autosampler", "id", cfg.asID),
		id:     cfg.asID,
	}

	codec := ASCodec{ID: cfg.asID}
	a.setEng = engine.New(tr, codec, transport.FixedLength(1), engine.WithLogger(a.logger))
	a.qryEng = engine.New(tr, codec, transport.UntilTerminator(ASReplyTerminator...), engine.WithLogger(a.logger))

	return a
}

// Connect opens the channel, clears pending errors and drives needle and
// valves to their resting positions.
func (a *Autosampler) Connect(ctx context.Context) error {
	if err := a.tr.Open(ctx); err != nil {
		return err
	}

	code, err := a.Errors(ctx)
	if err != nil {
		return err
	}

	if code != 0 {
		a.logger.Info("error present on connect", "code", code, "meaning", ASErrorDescription(code))
	}

	if err := a.ResetErrors(ctx); err != nil {
		return err
	}

	if err := a.MoveNeedleVertical(ctx, "UP"); err != nil {
		return err
	}
	if err := a.MoveNeedleHorizontal(ctx, "WASTE"); err != nil {
		return err
	}
	if err := a.SyringeValve().SetPosition(ctx, "WASTE"); err != nil {
		return err
	}
	if err := a.InjectorValve().SetPosition(ctx, "LOAD"); err != nil {
		return err
	}

	a.logger.Info("autosampler initialized")

	return nil
}

// Status returns the instrument status register.
func (a *Autosampler) Status(ctx context.Context) (int, error) {
	return a.queryActual(ctx, pfcStatus)
}

// Errors returns the current error code; 0 means no error.
func (a *Autosampler) Errors(ctx context.Context) (int, error) {
	return a.queryActual(ctx, pfcErrors)
}

// ResetErrors clears the error register.
func (a *Autosampler) ResetErrors(ctx context.Context) error {
	return a.set(ctx, pfcResetErrors, 0)
}

// TrayTemperature returns the measured tray temperature in degC.
func (a *Autosampler) TrayTemperature(ctx context.Context) (int, error) {
	return a.queryActual(ctx, pfcTrayTemperature)
}

// ProgrammedTrayTemperature returns the tray temperature setpoint in degC.
func (a *Autosampler) ProgrammedTrayTemperature(ctx context.Context) (int, error) {
	return a.queryProgrammed(ctx, pfcTrayTemperature)
}

// SetTrayTemperature programs the tray temperature setpoint in degC.
func (a *Autosampler) SetTrayTemperature(ctx context.Context, celsius int) error {
	return a.set(ctx, pfcTrayTemperature, celsius)
}

// SetTrayCooling switches the tray cooling on or off.
func (a *Autosampler) SetTrayCooling(ctx context.Context, on bool) error {
	return a.set(ctx, pfcTrayCooling, boolToInt(on))
}

// SyringeVolume returns the configured syringe volume in ul.
func (a *Autosampler) SyringeVolume(ctx context.Context) (int, error) {
	return a.queryProgrammed(ctx, pfcSyringeVolume)
}

// SetSyringeVolume configures the mounted syringe volume in ul.
func (a *Autosampler) SetSyringeVolume(ctx context.Context, ul int) error {
	return a.set(ctx, pfcSyringeVolume, ul)
}

// SetSyringeSpeed selects the plunger speed class.
func (a *Autosampler) SetSyringeSpeed(ctx context.Context, speed int) error {
	if speed < SyringeSpeedLow || speed > SyringeSpeedHigh {
		return fmt.Errorf("%w: syringe speed %d", protocol.ErrInvalidCommand, speed)
	}

	return a.set(ctx, pfcSyringeSpeed, speed)
}

// Aspirate draws volumeML with the built-in syringe.
func (a *Autosampler) Aspirate(ctx context.Context, volumeML float64) error {
	ul, err := volumeToUL(volumeML)
	if err != nil {
		return err
	}

	return a.set(ctx, pfcAspirate, ul)
}

// Dispense pushes volumeML out with the built-in syringe.
func (a *Autosampler) Dispense(ctx context.Context, volumeML float64) error {
	ul, err := volumeToUL(volumeML)
	if err != nil {
		return err
	}

	return a.set(ctx, pfcDispense, ul)
}

// MoveNeedleVertical drives the needle to "UP" or "DOWN".
func (a *Autosampler) MoveNeedleVertical(ctx context.Context, position string) error {
	idx, err := positionIndex(needleVerticalPos, position)
	if err != nil {
		return err
	}

	return a.set(ctx, pfcNeedleVertical, idx)
}

// MoveNeedleHorizontal drives the needle arm to one of WASTE, WASH, WASH_2
// or PLATE.
func (a *Autosampler) MoveNeedleHorizontal(ctx context.Context, position string) error {
	idx, err := positionIndex(needleHorizontalPos, position)
	if err != nil {
		return err
	}

	return a.set(ctx, pfcNeedleHorizontal, idx)
}

// SetCompressor switches the tray compressor on or off.
func (a *Autosampler) SetCompressor(ctx context.Context, on bool) error {
	return a.set(ctx, pfcCompressor, boolToInt(on))
}

// InjectionVolume returns the programmed injection volume in ul.
func (a *Autosampler) InjectionVolume(ctx context.Context) (int, error) {
	return a.queryProgrammed(ctx, pfcInjectionVolume)
}

// SetInjectionVolume programs the injection volume in ul.
func (a *Autosampler) SetInjectionVolume(ctx context.Context, ul int) error {
	return a.set(ctx, pfcInjectionVolume, ul)
}

// SyringeValve exposes the syringe valve (NEEDLE/WASH/WASTE).
func (a *Autosampler) SyringeValve() device.Valve {
	return &asValve{as: a, pfc: pfcSyringeValve, ports: syringeValvePorts}
}

// InjectorValve exposes the injector valve (LOAD/INJECT).
func (a *Autosampler) InjectorValve() device.Valve {
	return &asValve{as: a, pfc: pfcInjectorValve, ports: injectorValvePorts}
}

// TrayCooler exposes the cooled tray as a temperature controller.
func (a *Autosampler) TrayCooler() device.TemperatureController {
	return trayCooler{as: a}
}

// Close releases the channel.
func (a *Autosampler) Close() error { return a.tr.Close() }

func (a *Autosampler) set(ctx context.Context, pfc string, value int) error {
	_, err := a.setEng.Do(ctx, protocol.Command{Mnemonic: pfc, Value: setBody(value)})
	return err
}

func (a *Autosampler) queryActual(ctx context.Context, pfc string) (int, error) {
	return a.query(ctx, pfc, asReadActual)
}

func (a *Autosampler) queryProgrammed(ctx context.Context, pfc string) (int, error) {
	return a.query(ctx, pfc, asReadProgrammed)
}

func (a *Autosampler) query(ctx context.Context, pfc, modus string) (int, error) {
	reply, err := a.qryEng.Do(ctx, protocol.Command{Mnemonic: pfc, Value: modus})
	if err != nil {
		return 0, err
	}

	var n int
	if _, err := fmt.Sscanf(reply.Payload, "%d", &n); err != nil {
		return 0, fmt.Errorf("%w: query %s reply %q is not a number", protocol.ErrProtocol, pfc, reply.Payload)
	}

	return n, nil
}

// asValve adapts one of the autosampler's internal valves to the common
// valve interface.
type asValve struct {
	as    *Autosampler
	pfc   string
	ports []string
}

var _ device.Valve = (*asValve)(nil)

func (v *asValve) Ports() []string {
	out := make([]string, len(v.ports))
	copy(out, v.ports)

	return out
}

func (v *asValve) Position(ctx context.Context) (string, error) {
	idx, err := v.as.queryActual(ctx, v.pfc)
	if err != nil {
		return "", err
	}

	if idx < 0 || idx >= len(v.ports) {
		return "", fmt.Errorf("%w: valve reports position %d", protocol.ErrProtocol, idx)
	}

	return v.ports[idx], nil
}

func (v *asValve) SetPosition(ctx context.Context, port string) error {
	idx, err := positionIndex(v.ports, port)
	if err != nil {
		return err
	}

	return v.as.set(ctx, v.pfc, idx)
}

// trayCooler adapts the cooled sample tray to the temperature controller
// interface. Tolerance is one degree, matching the instrument's integer
// temperature resolution.
type trayCooler struct {
	as *Autosampler
}

var _ device.TemperatureController = trayCooler{}

func (t trayCooler) SetTemperature(ctx context.Context, celsius float64) error {
	if err := t.as.SetTrayTemperature(ctx, int(math.Round(celsius))); err != nil {
		return err
	}

	return t.as.SetTrayCooling(ctx, true)
}

func (t trayCooler) Temperature(ctx context.Context) (float64, error) {
	c, err := t.as.TrayTemperature(ctx)
	return float64(c), err
}

func (t trayCooler) TargetReached(ctx context.Context) (bool, error) {
	actual, err := t.as.TrayTemperature(ctx)
	if err != nil {
		return false, err
	}

	programmed, err := t.as.ProgrammedTrayTemperature(ctx)
	if err != nil {
		return false, err
	}

	diff := actual - programmed
	if diff < 0 {
		diff = -diff
	}

	return diff <= 1, nil
}

func positionIndex(ports []string, port string) (int, error) {
	for i, p := range ports {
		if p == port {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: %q not in %v", protocol.ErrInvalidPosition, port, ports)
}

func volumeToUL(volumeML float64) (int, error) {
	if volumeML < 0 {
		return 0, fmt.Errorf("%w: volume %v ml must not be negative", protocol.ErrOutOfRange, volumeML)
	}

	return int(math.Round(volumeML * 1000)), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
