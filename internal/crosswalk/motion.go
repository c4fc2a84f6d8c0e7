package crosswalk

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultMovementThreshold is the centroid displacement, in pixels at the
// 640x384 processing resolution, above which a vehicle counts as moving.
// The comparison is exclusive: a displacement equal to the threshold is
// stationary.
const DefaultMovementThreshold = 10.0

// VehiclePosition is a vehicle centroid and the box it came from.
type VehiclePosition struct {
	CX  float64 `json:"cx"`
	CY  float64 `json:"cy"`
	Box Box     `json:"box"`
}

// NewVehiclePosition derives a position from a box.
func NewVehiclePosition(b Box) VehiclePosition {
	cx, cy := b.Center()
	return VehiclePosition{CX: cx, CY: cy, Box: b}
}

func (p VehiclePosition) vec() []float64 { return []float64{p.CX, p.CY} }

// VehicleMotion is the association of one current vehicle with its nearest
// previous centroid. Matched is false on the first frame or when the
// previous frame had no vehicles.
type VehicleMotion struct {
	Position     VehiclePosition  `json:"position"`
	Previous     *VehiclePosition `json:"previous,omitempty"`
	Displacement float64          `json:"displacement"`
	Matched      bool             `json:"matched"`
	Moving       bool             `json:"moving"`
}

// MotionResult is the Motion Tracker output for one frame. Positions become
// the next frame's previous positions.
type MotionResult struct {
	Positions       []VehiclePosition `json:"-"`
	Vehicles        []VehicleMotion   `json:"vehicles"`
	Moving          bool              `json:"moving"`
	VehicleCount    int               `json:"vehicle_count"`
	MaxDisplacement float64           `json:"max_displacement"`
}

// MotionTracker flags motion by nearest-centroid association between
// consecutive frames. Association is purely positional: several current
// vehicles may match the same previous centroid, and no identity survives
// between frames.
type MotionTracker struct {
	Threshold float64
}

// Track associates the current vehicle boxes with prev. It is
// O(len(prev) * len(current)).
func (t MotionTracker) Track(prev []VehiclePosition, current []Box) MotionResult {
	res := MotionResult{
		Positions:    make([]VehiclePosition, 0, len(current)),
		Vehicles:     make([]VehicleMotion, 0, len(current)),
		VehicleCount: len(current),
	}

	for _, b := range current {
		pos := NewVehiclePosition(b)
		res.Positions = append(res.Positions, pos)

		vm := VehicleMotion{Position: pos}
		if nearest, dist, ok := nearestPosition(pos, prev); ok {
			p := nearest
			vm.Previous = &p
			vm.Displacement = dist
			vm.Matched = true
			vm.Moving = dist > t.Threshold
		}
		if vm.Moving {
			res.Moving = true
		}
		if vm.Displacement > res.MaxDisplacement {
			res.MaxDisplacement = vm.Displacement
		}
		res.Vehicles = append(res.Vehicles, vm)
	}

	return res
}

func nearestPosition(pos VehiclePosition, prev []VehiclePosition) (VehiclePosition, float64, bool) {
	best := math.Inf(1)
	var found VehiclePosition
	for _, p := range prev {
		d := floats.Distance(pos.vec(), p.vec(), 2)
		if d < best {
			best = d
			found = p
		}
	}
	if math.IsInf(best, 1) {
		return VehiclePosition{}, 0, false
	}
	return found, best, true
}
