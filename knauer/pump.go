package knauer

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/automatedchemistry/flowchem/device"
	"github.com/automatedchemistry/flowchem/engine"
	"github.com/automatedchemistry/flowchem/logger"
	"github.com/automatedchemistry/flowchem/protocol"
	"github.com/automatedchemistry/flowchem/transport"
)

// PumpHead is the mounted pump head, named after its maximum flow rate in
// ml/min.
type PumpHead int

const (
	Head10 PumpHead = 10
	Head50 PumpHead = 50
)

// maxFlowULMin returns the head's flow rate ceiling in ul/min.
func (h PumpHead) maxFlowULMin() int {
	return int(h) * 1000
}

// maxPressureBar returns the head's pressure ceiling. The instrument counts
// pressure in 0.1 MPa units, which is exactly one bar.
func (h PumpHead) maxPressureBar() int {
	if h == Head10 {
		return 400
	}

	return 150
}

// AzuraCompact is a Knauer AZURA Compact HPLC pump. Flow rates are set in
// ul/min on the wire; the API works in ml/min.
type AzuraCompact struct {
	tr     transport.Transport
	eng    *engine.Engine
	logger logger.Logger

	head PumpHead
}

// NewAzuraCompact creates a pump over tr. Call Connect before use.
func NewAzuraCompact(tr transport.Transport, opts ...Option) *AzuraCompact {
	cfg := newOptions(opts...)

	p := &AzuraCompact{
		tr:     tr,
		logger: cfg.logger.With("device", "azura-compact"),
	}

	p.eng = engine.New(tr, LineCodec{EOL: PumpEOL}, transport.UntilTerminator(ReplyTerminator...),
		engine.WithLogger(p.logger),
		engine.WithBusyRetryInterval(lineBusyRetryInterval),
		engine.WithBusyBudget(lineBusyBudget),
	)

	return p
}

// Connect opens the channel, puts the pump under remote control and detects
// the mounted head.
func (p *AzuraCompact) Connect(ctx context.Context) error {
	if err := p.tr.Open(ctx); err != nil {
		return err
	}

	if _, err := p.eng.Do(ctx, protocol.Command{Mnemonic: "REMOTE"}); err != nil {
		return err
	}

	head, err := p.HeadType(ctx)
	if err != nil {
		return err
	}

	p.head = head
	p.logger.Info("pump connected", "head", int(head))

	return nil
}

// Head returns the head detected at Connect time.
func (p *AzuraCompact) Head() PumpHead { return p.head }

// HeadType queries the mounted pump head.
func (p *AzuraCompact) HeadType(ctx context.Context) (PumpHead, error) {
	n, err := p.queryInt(ctx, "HEADTYPE?")
	if err != nil {
		return 0, err
	}

	switch PumpHead(n) {
	case Head10, Head50:
		return PumpHead(n), nil
	default:
		return 0, fmt.Errorf("%w: unknown pump head %d", protocol.ErrProtocol, n)
	}
}

// SetHeadType configures the mounted pump head.
func (p *AzuraCompact) SetHeadType(ctx context.Context, head PumpHead) error {
	if head != Head10 && head != Head50 {
		return fmt.Errorf("%w: unknown pump head %d", protocol.ErrInvalidCommand, head)
	}

	if _, err := p.eng.Do(ctx, protocol.Command{Mnemonic: "HEADTYPE", Value: strconv.Itoa(int(head))}); err != nil {
		return err
	}

	p.head = head

	return nil
}

// SetFlowRate programs the flow rate in ml/min. The rate must fit the
// mounted head.
func (p *AzuraCompact) SetFlowRate(ctx context.Context, mlMin float64) error {
	ulMin := int(math.Round(mlMin * 1000))

	if ulMin < 0 || ulMin > p.head.maxFlowULMin() {
		return fmt.Errorf("%w: flow %v ml/min outside [0, %d] for the %d ml head",
			protocol.ErrOutOfRange, mlMin, p.head.maxFlowULMin()/1000, int(p.head))
	}

	_, err := p.eng.Do(ctx, protocol.Command{Mnemonic: "FLOW", Value: strconv.Itoa(ulMin)})

	return err
}

// FlowRate returns the programmed flow rate in ml/min.
func (p *AzuraCompact) FlowRate(ctx context.Context) (float64, error) {
	ulMin, err := p.queryInt(ctx, "FLOW?")
	if err != nil {
		return 0, err
	}

	return float64(ulMin) / 1000, nil
}

// Start starts the flow at the programmed rate.
func (p *AzuraCompact) Start(ctx context.Context) error {
	_, err := p.eng.Do(ctx, protocol.Command{Mnemonic: "ON"})
	return err
}

// Stop stops the flow.
func (p *AzuraCompact) Stop(ctx context.Context) error {
	_, err := p.eng.Do(ctx, protocol.Command{Mnemonic: "OFF"})
	return err
}

// Pressure reads the current head pressure in bar.
func (p *AzuraCompact) Pressure(ctx context.Context) (float64, error) {
	n, err := p.queryInt(ctx, "PRESSURE?")
	if err != nil {
		return 0, err
	}

	return float64(n), nil
}

// SetMinPressure sets the dry-running protection threshold in bar.
func (p *AzuraCompact) SetMinPressure(ctx context.Context, bar int) error {
	return p.setPressureLimit(ctx, "PMIN", bar)
}

// SetMaxPressure sets the overpressure threshold in bar.
func (p *AzuraCompact) SetMaxPressure(ctx context.Context, bar int) error {
	return p.setPressureLimit(ctx, "PMAX", bar)
}

func (p *AzuraCompact) setPressureLimit(ctx context.Context, prefix string, bar int) error {
	if bar < 0 || bar > p.head.maxPressureBar() {
		return fmt.Errorf("%w: pressure %d bar outside [0, %d] for the %d ml head",
			protocol.ErrOutOfRange, bar, p.head.maxPressureBar(), int(p.head))
	}

	// The limit commands are head specific: PMIN10/PMAX10 or PMIN50/PMAX50.
	mnemonic := fmt.Sprintf("%s%d", prefix, int(p.head))

	_, err := p.eng.Do(ctx, protocol.Command{Mnemonic: mnemonic, Value: strconv.Itoa(bar)})

	return err
}

// MotorCurrent reads the relative motor current (0-100).
func (p *AzuraCompact) MotorCurrent(ctx context.Context) (int, error) {
	return p.queryInt(ctx, "IMOTOR?")
}

// Errors returns the instrument's last five error codes.
func (p *AzuraCompact) Errors(ctx context.Context) (string, error) {
	reply, err := p.eng.Do(ctx, protocol.Command{Mnemonic: "ERRORS?"})
	if err != nil {
		return "", err
	}

	return payloadValue(reply.Payload), nil
}

// SetLocal releases the pump to front-panel control.
func (p *AzuraCompact) SetLocal(ctx context.Context) error {
	_, err := p.eng.Do(ctx, protocol.Command{Mnemonic: "LOCAL"})
	return err
}

// Close stops remote control and releases the channel.
func (p *AzuraCompact) Close() error {
	return p.tr.Close()
}

// PressureSensor exposes the head pressure as a scalar sensor.
func (p *AzuraCompact) PressureSensor() device.Sensor {
	return pressureSensor{pump: p}
}

type pressureSensor struct {
	pump *AzuraCompact
}

func (s pressureSensor) Read(ctx context.Context) (float64, error) {
	return s.pump.Pressure(ctx)
}

func (p *AzuraCompact) queryInt(ctx context.Context, mnemonic string) (int, error) {
	reply, err := p.eng.Do(ctx, protocol.Command{Mnemonic: mnemonic})
	if err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(payloadValue(reply.Payload))
	if err != nil {
		return 0, fmt.Errorf("%w: %s reply %q is not a number", protocol.ErrProtocol, mnemonic, reply.Payload)
	}

	return n, nil
}

// payloadValue strips the echoed mnemonic from a "CMD:value" reply.
func payloadValue(payload string) string {
	if idx := strings.LastIndex(payload, ":"); idx >= 0 {
		return payload[idx+1:]
	}

	return payload
}
