// Package device defines the vendor-neutral device abstractions. Vendor
// packages (hamilton, knauer, huber) provide the implementations; the flow
// scheduler and any orchestration code depend only on these interfaces.
package device

import (
	"context"
	"time"
)

// Pump is a syringe pump. Volumes are milliliters, plunger speeds are
// seconds per full stroke (the vendor-native unit; Syringe converts from
// flow rates).
type Pump interface {
	// Syringe returns the mounted syringe geometry.
	Syringe() Syringe

	// MoveTo drives the plunger to the absolute target volume.
	MoveTo(ctx context.Context, volumeML float64, secondsPerStroke int) error

	// Withdraw aspirates volumeML relative to the current position.
	Withdraw(ctx context.Context, volumeML float64, secondsPerStroke int) error

	// Infuse dispenses volumeML relative to the current position.
	Infuse(ctx context.Context, volumeML float64, secondsPerStroke int) error

	// Volume returns the current plunger position as a volume.
	Volume(ctx context.Context) (float64, error)

	// IsBusy reports whether a plunger move is still in progress.
	IsBusy(ctx context.Context) (bool, error)

	// WaitUntilIdle polls until the pump reports idle or timeout elapses.
	WaitUntilIdle(ctx context.Context, timeout time.Duration) error

	// Stop halts the plunger immediately.
	Stop(ctx context.Context) error
}

// Valve is a multi-port rotary valve. Ports are named; routing a flow path
// means selecting the port name, so a position fully determines the
// connection.
type Valve interface {
	// Ports returns the selectable port names in rotor order.
	Ports() []string

	// Position returns the currently selected port.
	Position(ctx context.Context) (string, error)

	// SetPosition rotates the valve to the named port. Selecting the current
	// port is a no-op unless the connection was re-established since the
	// position was last confirmed.
	SetPosition(ctx context.Context, port string) error
}

// TemperatureController is a device regulating a temperature toward a
// setpoint (e.g. a recirculating chiller).
type TemperatureController interface {
	SetTemperature(ctx context.Context, celsius float64) error

	// Temperature returns the controlled (internal) temperature.
	Temperature(ctx context.Context) (float64, error)

	// TargetReached reports whether the controlled temperature is within
	// tolerance of the setpoint.
	TargetReached(ctx context.Context) (bool, error)
}

// Sensor is a single scalar readout, such as a pump head pressure or a
// process thermocouple.
type Sensor interface {
	Read(ctx context.Context) (float64, error)
}
