package crosswalk

// Zone is one horizontal third of the frame.
type Zone string

const (
	ZoneLeft   Zone = "left"
	ZoneCenter Zone = "center"
	ZoneRight  Zone = "right"
)

// ZonePartition lists detection labels per zone in detection order.
// Duplicates are kept.
type ZonePartition struct {
	Left   []string `json:"left"`
	Center []string `json:"center"`
	Right  []string `json:"right"`
}

// ClassifyZone places a horizontal centroid into a third of a frame of the
// given width. Boundaries belong to the zone on their right.
func ClassifyZone(xCenter, width float64) Zone {
	switch {
	case xCenter < width/3:
		return ZoneLeft
	case xCenter < 2*width/3:
		return ZoneCenter
	default:
		return ZoneRight
	}
}

// PartitionZones assigns every detection label to exactly one zone.
func PartitionZones(dets []Detection, width float64) ZonePartition {
	z := ZonePartition{
		Left:   []string{},
		Center: []string{},
		Right:  []string{},
	}
	for _, d := range dets {
		cx, _ := d.Center()
		switch ClassifyZone(cx, width) {
		case ZoneLeft:
			z.Left = append(z.Left, d.Label)
		case ZoneCenter:
			z.Center = append(z.Center, d.Label)
		default:
			z.Right = append(z.Right, d.Label)
		}
	}
	return z
}

// Labels returns the labels of one zone.
func (z ZonePartition) Labels(zone Zone) []string {
	switch zone {
	case ZoneLeft:
		return z.Left
	case ZoneCenter:
		return z.Center
	case ZoneRight:
		return z.Right
	}
	return nil
}

// Contains reports whether label appears in the zone.
func (z ZonePartition) Contains(zone Zone, label string) bool {
	for _, l := range z.Labels(zone) {
		if l == label {
			return true
		}
	}
	return false
}

// ContainsAnywhere reports whether label appears in any zone.
func (z ZonePartition) ContainsAnywhere(label string) bool {
	return z.Contains(ZoneLeft, label) || z.Contains(ZoneCenter, label) || z.Contains(ZoneRight, label)
}

// Count returns how many labels across all zones are in the set.
func (z ZonePartition) Count(set map[Class]bool) int {
	n := 0
	for _, zone := range [...]Zone{ZoneLeft, ZoneCenter, ZoneRight} {
		for _, l := range z.Labels(zone) {
			if set[Class(l)] {
				n++
			}
		}
	}
	return n
}

// Total is the number of labels in the partition.
func (z ZonePartition) Total() int {
	return len(z.Left) + len(z.Center) + len(z.Right)
}
