// Package layout partitions one day's events into side-by-side columns and
// turns the result into view records for a renderer.
package layout

import (
	"sort"

	"daycal/internal/model"
	"daycal/internal/timemath"
)

// Placement is an instance with its column assignment. Columns is the
// number of columns opened by the overlap cluster the instance belongs to.
type Placement struct {
	Instance model.Instance
	Column   int
	Columns  int
	Cluster  int
}

// Overlaps reports whether two half-open minute intervals intersect.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// Layout assigns columns by greedy interval partitioning. Events are sorted by
// start, then end, then id; each goes into the first column whose last end is
// at or before its start. Column counts are computed per connected cluster of
// overlapping events, so an isolated event always gets the full width.
func Layout(instances []model.Instance) []Placement {
	if len(instances) == 0 {
		return []Placement{}
	}

	sorted := make([]model.Instance, len(instances))
	copy(sorted, instances)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.StartMinute != b.StartMinute {
			return a.StartMinute < b.StartMinute
		}
		if a.EndMinute != b.EndMinute {
			return a.EndMinute < b.EndMinute
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.InstanceKey < b.InstanceKey
	})

	out := make([]Placement, 0, len(sorted))

	cluster := 0
	clusterStart := 0 // index into out where the current cluster begins
	clusterEnd := -1  // max end minute seen in the current cluster
	var columnEnds []int

	closeCluster := func() {
		for i := clusterStart; i < len(out); i++ {
			out[i].Columns = len(columnEnds)
		}
	}

	for _, inst := range sorted {
		if len(out) > 0 && inst.StartMinute >= clusterEnd {
			closeCluster()
			cluster++
			clusterStart = len(out)
			columnEnds = columnEnds[:0]
			clusterEnd = -1
		}

		col := -1
		for i, end := range columnEnds {
			if end <= inst.StartMinute {
				col = i
				break
			}
		}
		if col == -1 {
			columnEnds = append(columnEnds, inst.EndMinute)
			col = len(columnEnds) - 1
		} else {
			columnEnds[col] = inst.EndMinute
		}

		if inst.EndMinute > clusterEnd {
			clusterEnd = inst.EndMinute
		}

		out = append(out, Placement{Instance: inst, Column: col, Cluster: cluster})
	}
	closeCluster()

	return out
}

// Geometry describes the grid a day is drawn on.
type Geometry struct {
	// HourHeight is the pixel height of one hour row.
	HourHeight float64
	// GutterPercent is subtracted from each column's width.
	GutterPercent float64
}

// ViewRecord is what a renderer needs to draw one event.
type ViewRecord struct {
	Event        model.Instance `json:"event"`
	Color        model.Color    `json:"color"`
	StartTime    string         `json:"start_time"`
	EndTime      string         `json:"end_time"`
	TopOffset    float64        `json:"top_offset"`
	Height       float64        `json:"height"`
	LeftPercent  float64        `json:"left_percent"`
	WidthPercent float64        `json:"width_percent"`
	Column       int            `json:"column"`
	Columns      int            `json:"columns"`
}

// Views converts placements into view records in placement order.
func Views(placements []Placement, g Geometry) []ViewRecord {
	ppm := timemath.PxPerMinute(g.HourHeight)
	out := make([]ViewRecord, 0, len(placements))
	for _, p := range placements {
		cols := p.Columns
		if cols < 1 {
			cols = 1
		}
		share := 100.0 / float64(cols)
		width := share - g.GutterPercent
		if width < 0 {
			width = 0
		}
		color, _ := model.ColorByID(p.Instance.ColorID)

		out = append(out, ViewRecord{
			Event:        p.Instance,
			Color:        color,
			StartTime:    timemath.ToTimeString(p.Instance.StartMinute),
			EndTime:      endLabel(p.Instance.EndMinute),
			TopOffset:    timemath.MinutesToPixels(float64(p.Instance.StartMinute), ppm),
			Height:       timemath.MinutesToPixels(float64(p.Instance.Duration()), ppm),
			LeftPercent:  float64(p.Column) * share,
			WidthPercent: width,
			Column:       p.Column,
			Columns:      cols,
		})
	}
	return out
}

// endLabel shows midnight as 24:00 rather than clamping it to 23:59.
func endLabel(minutes int) string {
	if minutes >= timemath.MinutesPerDay {
		return "24:00"
	}
	return timemath.ToTimeString(minutes)
}

// Day lays out and converts one day's instances in a single step.
func Day(instances []model.Instance, g Geometry) []ViewRecord {
	return Views(Layout(instances), g)
}
