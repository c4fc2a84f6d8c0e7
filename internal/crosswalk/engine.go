package crosswalk

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Config is the explicit configuration of an Engine.
type Config struct {
	Language          Language
	MovementThreshold float64
	AlertCooldown     time.Duration
	FrameWidth        float64
	FrameHeight       float64
	MinConfidence     float64
	CrosswalkRule     CrosswalkRule
	BicycleIsVehicle  bool
	Taxonomy          Taxonomy
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Language:          DefaultLang,
		MovementThreshold: DefaultMovementThreshold,
		AlertCooldown:     DefaultAlertCooldown,
		FrameWidth:        640,
		FrameHeight:       384,
		MinConfidence:     0.25,
		CrosswalkRule:     CrosswalkInCenter,
		BicycleIsVehicle:  true,
		Taxonomy:          DefaultTaxonomy(),
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if _, err := ParseLanguage(string(c.Language)); err != nil {
		errs = append(errs, err)
	}
	if c.MovementThreshold <= 0 || math.IsNaN(c.MovementThreshold) || math.IsInf(c.MovementThreshold, 0) {
		errs = append(errs, fmt.Errorf("movement threshold must be a positive number, got %v", c.MovementThreshold))
	}
	if c.AlertCooldown <= 0 {
		errs = append(errs, fmt.Errorf("alert cooldown must be positive, got %v", c.AlertCooldown))
	}
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		errs = append(errs, fmt.Errorf("frame size must be positive, got %vx%v", c.FrameWidth, c.FrameHeight))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("min confidence must be in [0,1], got %v", c.MinConfidence))
	}
	switch c.CrosswalkRule {
	case CrosswalkInCenter, CrosswalkAnywhere:
	default:
		errs = append(errs, fmt.Errorf("unknown crosswalk rule %q", c.CrosswalkRule))
	}
	if len(c.Taxonomy) == 0 {
		errs = append(errs, errors.New("taxonomy is empty"))
	}
	return errors.Join(errs...)
}

// SessionState is the cross-frame state of one pedestrian's session. It is
// owned by the caller and threaded through Engine.Step.
type SessionState struct {
	PreviousVehicles []VehiclePosition `json:"previous_vehicles"`
	Alert            AlertState        `json:"alert"`
	Frames           int64             `json:"frames"`
}

// FrameResult is everything the engine derived from one frame.
type FrameResult struct {
	Index      int64         `json:"index"`
	Timestamp  time.Time     `json:"timestamp"`
	Zones      ZonePartition `json:"zones"`
	Occupancy  Occupancy     `json:"occupancy"`
	Motion     MotionResult  `json:"motion"`
	Verdict    Verdict       `json:"verdict"`
	Message    string        `json:"message"`
	Alert      *AlertEvent   `json:"alert,omitempty"`
	Rejections []Rejection   `json:"rejections,omitempty"`
}

// Engine runs the per-frame pipeline. It holds no mutable state and is safe
// for concurrent use across sessions.
type Engine struct {
	cfg     Config
	tracker MotionTracker
	policy  DecisionPolicy
	alerts  AlertPolicy
}

// NewEngine validates cfg and builds an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	return &Engine{
		cfg:     cfg,
		tracker: MotionTracker{Threshold: cfg.MovementThreshold},
		policy: DecisionPolicy{
			CrosswalkRule: cfg.CrosswalkRule,
			Dangerous:     DangerousClasses(cfg.BicycleIsVehicle),
		},
		alerts: AlertPolicy{Cooldown: cfg.AlertCooldown},
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Evaluate runs validation, zoning, overlap, motion and the safety rules for
// one frame against the previous frame's vehicle positions. It does not
// touch alert state.
func (e *Engine) Evaluate(prev []VehiclePosition, frame Frame) FrameResult {
	width, height := frame.Width, frame.Height
	if width <= 0 {
		width = e.cfg.FrameWidth
	}
	if height <= 0 {
		height = e.cfg.FrameHeight
	}

	dets, rejected := ValidateDetections(frame.Detections, width, height, e.cfg.MinConfidence, e.cfg.Taxonomy)

	var vehicles, pedestrians, crosswalks []Box
	for _, d := range dets {
		switch c := d.Class(); {
		case e.policy.Dangerous[c]:
			vehicles = append(vehicles, d.Box)
		case c == ClassPedestrian:
			pedestrians = append(pedestrians, d.Box)
		case c == ClassCrosswalk:
			crosswalks = append(crosswalks, d.Box)
		}
	}

	zones := PartitionZones(dets, width)
	occ := Occupancy{
		Vehicle:    CrosswalkOccupied(vehicles, crosswalks),
		Pedestrian: CrosswalkOccupied(pedestrians, crosswalks),
	}
	motion := e.tracker.Track(prev, vehicles)

	verdict := e.policy.Decide(DecisionInput{
		Zones:     zones,
		Occupancy: occ,
		Moving:    motion.Moving,
		Vehicles:  motion.Vehicles,
	})
	verdict = e.distrustRejections(verdict, rejected)

	return FrameResult{
		Index:      frame.Index,
		Timestamp:  frame.Timestamp,
		Zones:      zones,
		Occupancy:  occ,
		Motion:     motion,
		Verdict:    verdict,
		Message:    Message(e.cfg.Language, verdict),
		Rejections: rejected,
	}
}

// distrustRejections downgrades a safe verdict to undetermined when a vehicle
// or crosswalk detection was dropped at validation. The dropped vehicle may be
// the one that makes the crossing unsafe.
func (e *Engine) distrustRejections(v Verdict, rejected []Rejection) Verdict {
	if !v.Safe() {
		return v
	}
	for _, r := range rejected {
		if e.policy.Dangerous[r.Class] || r.Class == ClassCrosswalk {
			return Verdict{Status: StatusUndetermined, Rule: RuleFailClosed, VehicleCount: v.VehicleCount}
		}
	}
	return v
}

// Step evaluates one frame and advances the session state. busy reports
// whether the narrator is still speaking the previous alert. The returned
// state replaces st; st itself is not modified.
func (e *Engine) Step(st SessionState, frame Frame, now time.Time, busy bool) (SessionState, FrameResult) {
	res := e.Evaluate(st.PreviousVehicles, frame)

	next := SessionState{
		PreviousVehicles: res.Motion.Positions,
		Frames:           st.Frames + 1,
	}
	next.Alert, res.Alert = e.alerts.Next(st.Alert, res.Verdict, e.cfg.Language, res.Message, frame.Index, now, busy)
	return next, res
}
