package crosswalk

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Class is a canonical detector label.
type Class string

const (
	ClassCar        Class = "car"
	ClassBus        Class = "bus"
	ClassTruck      Class = "truck"
	ClassMotorcycle Class = "motorcycle"
	ClassBicycle    Class = "bicycle"
	ClassPedestrian Class = "pedestrian"
	ClassCrosswalk  Class = "pedestrian crossing"
)

// Validation errors reported in Rejection.Err.
var (
	ErrInvalidBox        = errors.New("invalid bounding box")
	ErrUnknownClass      = errors.New("label not in class taxonomy")
	ErrInvalidConfidence = errors.New("confidence outside [0,1]")
	ErrMissingConfidence = errors.New("confidence missing")
	ErrLowConfidence     = errors.New("confidence below minimum")
)

// Taxonomy maps normalised detector labels (lower case, trimmed) to classes.
type Taxonomy map[string]Class

// DefaultTaxonomy returns the label set of the crosswalk detector, including
// the title-case aliases it emits ("Pedestrian Crossing", "Car").
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		"car":                 ClassCar,
		"bus":                 ClassBus,
		"truck":               ClassTruck,
		"motorcycle":          ClassMotorcycle,
		"motorbike":           ClassMotorcycle,
		"bicycle":             ClassBicycle,
		"person":              ClassPedestrian,
		"pedestrian":          ClassPedestrian,
		"pedestrian crossing": ClassCrosswalk,
		"crosswalk":           ClassCrosswalk,
		"zebra crossing":      ClassCrosswalk,
	}
}

// Lookup returns the class for a raw detector label.
func (t Taxonomy) Lookup(label string) (Class, bool) {
	c, ok := t[normaliseLabel(label)]
	return c, ok
}

func normaliseLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Box is an axis-aligned bounding box in frame pixel space.
type Box struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

// Center returns the box centroid.
func (b Box) Center() (cx, cy float64) {
	return (b.XMin + b.XMax) / 2, (b.YMin + b.YMax) / 2
}

func (b Box) Width() float64  { return b.XMax - b.XMin }
func (b Box) Height() float64 { return b.YMax - b.YMin }

// Detection is one object reported by the detector for a frame. After
// Validate, Label holds the canonical class name.
type Detection struct {
	Box
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`

	// noConfidence is set when decoded JSON omitted the confidence field.
	noConfidence bool
}

// UnmarshalJSON records whether confidence was present so that a missing
// score is rejected instead of read as zero.
func (d *Detection) UnmarshalJSON(b []byte) error {
	type plain Detection
	aux := struct {
		*plain
		Confidence *float64 `json:"confidence"`
	}{plain: (*plain)(d)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	d.noConfidence = aux.Confidence == nil
	if aux.Confidence != nil {
		d.Confidence = *aux.Confidence
	}
	return nil
}

// Class returns the canonical class of a validated detection.
func (d Detection) Class() Class { return Class(d.Label) }

// Frame is the detector output for one captured image.
type Frame struct {
	Index      int64       `json:"index"`
	Timestamp  time.Time   `json:"timestamp,omitempty"`
	Width      float64     `json:"width,omitempty"`
	Height     float64     `json:"height,omitempty"`
	Detections []Detection `json:"detections"`
}

// Rejection records a detection dropped at the input boundary.
type Rejection struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	// Class is set when the label is in the taxonomy.
	Class  Class  `json:"class,omitempty"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func (r Rejection) String() string {
	return fmt.Sprintf("detection %d (%q): %v", r.Index, r.Label, r.Err)
}

// ValidateDetections canonicalises labels, clamps boxes to the frame and
// drops anything that cannot be trusted in area or distance arithmetic.
// Boxes with NaN/Inf coordinates or inverted extents are rejected rather than
// repaired; negative or out-of-frame coordinates are clamped. A box that has
// no area left after clamping is rejected.
func ValidateDetections(dets []Detection, width, height, minConfidence float64, tax Taxonomy) ([]Detection, []Rejection) {
	valid := make([]Detection, 0, len(dets))
	var rejected []Rejection

	for i, d := range dets {
		class, ok := tax.Lookup(d.Label)
		reject := func(err error) {
			rejected = append(rejected, Rejection{Index: i, Label: d.Label, Class: class, Reason: err.Error(), Err: err})
		}

		if !ok {
			reject(ErrUnknownClass)
			continue
		}
		if d.noConfidence {
			reject(ErrMissingConfidence)
			continue
		}
		if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
			reject(fmt.Errorf("%w: %v", ErrInvalidConfidence, d.Confidence))
			continue
		}
		if d.Confidence < minConfidence {
			reject(fmt.Errorf("%w: %.2f < %.2f", ErrLowConfidence, d.Confidence, minConfidence))
			continue
		}

		box, err := clampBox(d.Box, width, height)
		if err != nil {
			reject(err)
			continue
		}

		valid = append(valid, Detection{Box: box, Label: string(class), Confidence: d.Confidence})
	}

	return valid, rejected
}

func clampBox(b Box, width, height float64) (Box, error) {
	for _, v := range [...]float64{b.XMin, b.YMin, b.XMax, b.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Box{}, fmt.Errorf("%w: non-finite coordinate", ErrInvalidBox)
		}
	}
	if b.XMax < b.XMin || b.YMax < b.YMin {
		return Box{}, fmt.Errorf("%w: inverted extents (%.1f,%.1f)-(%.1f,%.1f)", ErrInvalidBox, b.XMin, b.YMin, b.XMax, b.YMax)
	}

	b.XMin = math.Max(b.XMin, 0)
	b.YMin = math.Max(b.YMin, 0)
	if width > 0 {
		b.XMin = math.Min(b.XMin, width)
		b.XMax = math.Min(b.XMax, width)
	}
	if height > 0 {
		b.YMin = math.Min(b.YMin, height)
		b.YMax = math.Min(b.YMax, height)
	}
	b.XMax = math.Max(b.XMax, 0)
	b.YMax = math.Max(b.YMax, 0)

	if b.Width() <= 0 || b.Height() <= 0 {
		return Box{}, fmt.Errorf("%w: no area inside frame", ErrInvalidBox)
	}
	return b, nil
}
