package device

import (
	"fmt"
	"math"

	"github.com/automatedchemistry/flowchem/protocol"
)

// Syringe describes the geometry of a mounted syringe and the plunger drive
// behind it. All volume/step and rate/speed conversions live here so the
// vendor drivers never touch raw step math.
//
// OffsetSteps is the dead band at the bottom of the stroke: step 0 of the
// logical volume scale sits OffsetSteps above the drive's absolute zero.
type Syringe struct {
	// VolumeML is the nominal syringe volume in milliliters.
	VolumeML float64

	// FullStrokeSteps is the drive resolution over one full stroke.
	FullStrokeSteps int

	// OffsetSteps is added to every absolute step target.
	OffsetSteps int

	// MinSecondsPerStroke and MaxSecondsPerStroke bound the plunger speed
	// the drive accepts.
	MinSecondsPerStroke int
	MaxSecondsPerStroke int
}

// Validate reports whether the geometry is usable.
func (s Syringe) Validate() error {
	if s.VolumeML <= 0 {
		return fmt.Errorf("syringe: volume %v ml must be positive", s.VolumeML)
	}
	if s.FullStrokeSteps <= 0 {
		return fmt.Errorf("syringe: full stroke %d steps must be positive", s.FullStrokeSteps)
	}
	if s.OffsetSteps < 0 {
		return fmt.Errorf("syringe: offset %d steps must not be negative", s.OffsetSteps)
	}
	if s.MinSecondsPerStroke <= 0 || s.MaxSecondsPerStroke < s.MinSecondsPerStroke {
		return fmt.Errorf("syringe: speed range [%d, %d] s/stroke invalid",
			s.MinSecondsPerStroke, s.MaxSecondsPerStroke)
	}

	return nil
}

// VolumeToSteps converts a target volume to an absolute step position,
// including the offset. Volumes outside [0, VolumeML] fail with
// protocol.ErrOutOfRange before any I/O happens.
func (s Syringe) VolumeToSteps(volumeML float64) (int, error) {
	if volumeML < 0 || volumeML > s.VolumeML {
		return 0, fmt.Errorf("%w: volume %v ml outside [0, %v]",
			protocol.ErrOutOfRange, volumeML, s.VolumeML)
	}

	steps := int(math.Round(volumeML / s.VolumeML * float64(s.FullStrokeSteps)))

	return steps + s.OffsetSteps, nil
}

// StepsToVolume converts an absolute step position back to a volume.
// StepsToVolume(VolumeToSteps(v)) differs from v by at most one step's worth
// of volume.
func (s Syringe) StepsToVolume(steps int) float64 {
	return float64(steps-s.OffsetSteps) / float64(s.FullStrokeSteps) * s.VolumeML
}

// SecondsPerStroke converts a flow rate in ml/min to the drive's plunger
// speed unit. Rates whose stroke time falls outside the drive's accepted
// range fail with protocol.ErrOutOfRange before any I/O happens.
func (s Syringe) SecondsPerStroke(rateMLMin float64) (int, error) {
	if rateMLMin <= 0 {
		return 0, fmt.Errorf("%w: flow rate %v ml/min must be positive",
			protocol.ErrOutOfRange, rateMLMin)
	}

	sps := int(math.Round(s.VolumeML / rateMLMin * 60))
	if sps < s.MinSecondsPerStroke || sps > s.MaxSecondsPerStroke {
		return 0, fmt.Errorf("%w: rate %v ml/min needs %d s/stroke, drive accepts [%d, %d]",
			protocol.ErrOutOfRange, rateMLMin, sps, s.MinSecondsPerStroke, s.MaxSecondsPerStroke)
	}

	return sps, nil
}

// Rate converts a plunger speed back to a flow rate in ml/min.
func (s Syringe) Rate(secondsPerStroke int) float64 {
	return s.VolumeML / float64(secondsPerStroke) * 60
}
