// Package crosswalk owns the crosswalk safety decision core.
//
// Responsibilities: detection validation against a closed class taxonomy,
// left/center/right zone partitioning, crosswalk occupancy by box overlap,
// nearest-centroid vehicle motion, the ordered safety rules, and alert
// hysteresis.
// Key types: Detection, ZonePartition, VehiclePosition, Verdict,
// AlertEvent, SessionState, Engine.
//
// The package performs no I/O and holds no package-level state. Cross-frame
// state lives in SessionState, which callers pass into Engine.Step and
// replace with the returned value.
package crosswalk
