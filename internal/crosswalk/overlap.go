package crosswalk

import "math"

// IntersectionArea returns the area shared by two axis-aligned boxes, or 0
// when they do not overlap. Touching edges have zero area.
func IntersectionArea(a, b Box) float64 {
	iw := math.Max(0, math.Min(a.XMax, b.XMax)-math.Max(a.XMin, b.XMin))
	ih := math.Max(0, math.Min(a.YMax, b.YMax)-math.Max(a.YMin, b.YMin))
	return iw * ih
}

// Overlaps reports whether two boxes share a positive area.
func Overlaps(a, b Box) bool {
	return IntersectionArea(a, b) > 0
}

// CrosswalkOccupied reports whether any occupant box overlaps any crosswalk
// marking box. It stops at the first overlapping pair. With no crosswalk
// boxes the result is false; whether a crosswalk exists at all is decided
// separately by the safety rules.
func CrosswalkOccupied(occupants, crosswalks []Box) bool {
	for _, o := range occupants {
		for _, c := range crosswalks {
			if Overlaps(o, c) {
				return true
			}
		}
	}
	return false
}

// Occupancy splits crosswalk occupancy by what is standing on it.
type Occupancy struct {
	Vehicle    bool `json:"vehicle"`
	Pedestrian bool `json:"pedestrian"`
}

// Occupied reports whether anything is on the crosswalk.
func (o Occupancy) Occupied() bool { return o.Vehicle || o.Pedestrian }
