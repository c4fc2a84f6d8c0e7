package crosswalk

// Status is the outcome of the safety rules for one frame.
type Status string

const (
	StatusClear        Status = "clear"
	StatusStopped      Status = "stopped"
	StatusMoving       Status = "moving"
	StatusNoCrosswalk  Status = "no_crosswalk"
	StatusUndetermined Status = "undetermined"
)

// Rule identifies which safety rule produced a verdict.
type Rule int

const (
	RuleNoCrosswalk Rule = iota + 1
	RuleCrosswalkOccupied
	RuleCrosswalkClear
	RuleFailClosed
)

func (r Rule) String() string {
	switch r {
	case RuleNoCrosswalk:
		return "no-crosswalk"
	case RuleCrosswalkOccupied:
		return "crosswalk-occupied"
	case RuleCrosswalkClear:
		return "crosswalk-clear"
	case RuleFailClosed:
		return "fail-closed"
	}
	return "unknown"
}

// Verdict is the safety decision for one frame.
type Verdict struct {
	Status       Status `json:"status"`
	Rule         Rule   `json:"rule"`
	VehicleCount int    `json:"vehicle_count"`
}

// Safe is true only for a positive safety determination.
func (v Verdict) Safe() bool {
	return v.Status == StatusClear || v.Status == StatusStopped
}

// Summary is the short on-screen text for the verdict.
func (v Verdict) Summary() string {
	if v.Safe() {
		return "Safe to Cross"
	}
	return "Do Not Cross"
}

// CrosswalkRule selects where a crosswalk marking must be seen before any
// safe verdict is possible.
type CrosswalkRule string

const (
	// CrosswalkInCenter requires the marking in the center zone, in front of
	// the user.
	CrosswalkInCenter CrosswalkRule = "center"
	// CrosswalkAnywhere accepts a marking in any zone.
	CrosswalkAnywhere CrosswalkRule = "anywhere"
)

// DecisionInput is everything the safety rules look at.
type DecisionInput struct {
	Zones     ZonePartition
	Occupancy Occupancy
	Moving    bool
	Vehicles  []VehicleMotion
}

func (in DecisionInput) anyMoving() bool {
	if in.Moving {
		return true
	}
	for _, v := range in.Vehicles {
		if v.Moving {
			return true
		}
	}
	return false
}

// DecisionPolicy holds the rule parameters.
type DecisionPolicy struct {
	CrosswalkRule CrosswalkRule
	Dangerous     map[Class]bool
}

// DangerousClasses returns the vehicle classes that make a crossing unsafe
// when moving.
func DangerousClasses(includeBicycle bool) map[Class]bool {
	set := map[Class]bool{
		ClassCar:        true,
		ClassBus:        true,
		ClassTruck:      true,
		ClassMotorcycle: true,
	}
	if includeBicycle {
		set[ClassBicycle] = true
	}
	return set
}

// Decide applies the safety rules in order. Anything not positively matched
// as safe is unsafe.
func (p DecisionPolicy) Decide(in DecisionInput) Verdict {
	marking := string(ClassCrosswalk)
	established := in.Zones.Contains(ZoneCenter, marking)
	if p.CrosswalkRule == CrosswalkAnywhere {
		established = in.Zones.ContainsAnywhere(marking)
	}
	if !established {
		return Verdict{Status: StatusNoCrosswalk, Rule: RuleNoCrosswalk}
	}

	moving := in.anyMoving()
	count := in.Zones.Count(p.Dangerous)

	if in.Occupancy.Occupied() {
		if moving {
			return Verdict{Status: StatusMoving, Rule: RuleCrosswalkOccupied, VehicleCount: count}
		}
		if count > 0 {
			return Verdict{Status: StatusStopped, Rule: RuleCrosswalkOccupied, VehicleCount: count}
		}
		return Verdict{Status: StatusClear, Rule: RuleCrosswalkOccupied}
	}

	switch {
	case count > 0 && moving:
		return Verdict{Status: StatusMoving, Rule: RuleCrosswalkClear, VehicleCount: count}
	case count > 0:
		return Verdict{Status: StatusStopped, Rule: RuleCrosswalkClear, VehicleCount: count}
	case !moving:
		return Verdict{Status: StatusClear, Rule: RuleCrosswalkClear}
	}

	return Verdict{Status: StatusUndetermined, Rule: RuleFailClosed, VehicleCount: count}
}
