package layout

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daycal/internal/model"
)

func inst(id string, start, end int) model.Instance {
	return model.Instance{
		Event:       model.Event{ID: id, Date: "2024-01-01", StartMinute: start, EndMinute: end},
		InstanceKey: model.InstanceKey(id, "2024-01-01"),
	}
}

func byID(ps []Placement) map[string]Placement {
	out := make(map[string]Placement, len(ps))
	for _, p := range ps {
		out[p.Instance.ID] = p
	}
	return out
}

func TestLayout_Empty(t *testing.T) {
	assert.Empty(t, Layout(nil))
	assert.Empty(t, Day(nil, Geometry{HourHeight: 60}))
}

func TestLayout_PerClusterColumns(t *testing.T) {
	ps := byID(Layout([]model.Instance{
		inst("a", 540, 600), // 09:00-10:00
		inst("b", 570, 630), // 09:30-10:30
		inst("c", 600, 660), // 10:00-11:00, reuses a's column
		inst("d", 780, 840), // 13:00-14:00, alone
	}))

	assert.Equal(t, 0, ps["a"].Column)
	assert.Equal(t, 1, ps["b"].Column)
	assert.Equal(t, 0, ps["c"].Column)
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, 2, ps[id].Columns, id)
	}
	assert.Equal(t, 0, ps["d"].Column)
	assert.Equal(t, 1, ps["d"].Columns, "isolated event keeps full width")
	assert.NotEqual(t, ps["a"].Cluster, ps["d"].Cluster)
}

func TestLayout_TouchingEventsDoNotOverlap(t *testing.T) {
	ps := byID(Layout([]model.Instance{inst("a", 540, 600), inst("b", 600, 660)}))
	assert.Equal(t, 0, ps["b"].Column)
	assert.Equal(t, 1, ps["b"].Columns)
}

func TestLayout_DeterministicTies(t *testing.T) {
	in := []model.Instance{inst("z", 540, 600), inst("y", 540, 600), inst("x", 540, 570)}
	first := Layout(in)
	second := Layout([]model.Instance{in[1], in[2], in[0]})
	assert.Equal(t, first, second)
	assert.Equal(t, "x", first[0].Instance.ID)
	assert.Equal(t, "y", first[1].Instance.ID)
}

func TestLayout_NoOverlappingEventsShareColumn(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		n := rng.Intn(12)
		in := make([]model.Instance, 0, n)
		for i := 0; i < n; i++ {
			start := rng.Intn(90) * 15
			end := start + (1+rng.Intn(8))*15
			if end > 1440 {
				end = 1440
			}
			in = append(in, inst(fmt.Sprintf("e%d", i), start, end))
		}

		ps := Layout(in)
		require.Len(t, ps, n)
		for i := range ps {
			for j := i + 1; j < len(ps); j++ {
				a, b := ps[i].Instance, ps[j].Instance
				if Overlaps(a.StartMinute, a.EndMinute, b.StartMinute, b.EndMinute) {
					require.NotEqual(t, ps[i].Column, ps[j].Column, "round %d: %s and %s", round, a.ID, b.ID)
					require.Equal(t, ps[i].Cluster, ps[j].Cluster)
				}
			}
			require.Less(t, ps[i].Column, ps[i].Columns)
		}
	}
}

func TestViews_Geometry(t *testing.T) {
	ps := Layout([]model.Instance{inst("a", 540, 600), inst("b", 570, 1440)})
	views := Views(ps, Geometry{HourHeight: 120, GutterPercent: 1})

	require.Len(t, views, 2)
	a, b := views[0], views[1]

	assert.InDelta(t, 1080.0, a.TopOffset, 1e-9)
	assert.InDelta(t, 120.0, a.Height, 1e-9)
	assert.InDelta(t, 0.0, a.LeftPercent, 1e-9)
	assert.InDelta(t, 49.0, a.WidthPercent, 1e-9)
	assert.Equal(t, "09:00", a.StartTime)
	assert.Equal(t, "10:00", a.EndTime)
	assert.Equal(t, "Flamingo", a.Color.Name)

	assert.InDelta(t, 50.0, b.LeftPercent, 1e-9)
	assert.Equal(t, "24:00", b.EndTime)
	assert.Equal(t, 2, b.Columns)
}

func TestViews_GutterNeverNegative(t *testing.T) {
	views := Views([]Placement{{Instance: inst("a", 0, 15), Column: 0, Columns: 1}}, Geometry{HourHeight: 60, GutterPercent: 150})
	assert.Zero(t, views[0].WidthPercent)
}
