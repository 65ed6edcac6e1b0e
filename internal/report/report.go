// Package report renders the move history as an HTML motion report.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/rumble/internal/db"
	"github.com/banshee-data/rumble/internal/motor"
)

// Point is one calibrated position sample.
type Point struct {
	Time     time.Time
	Position float64
}

// Series holds one axis's samples in chronological order.
type Series struct {
	Axis   string
	Units  string
	Points []Point
}

// FromMoves groups move history rows into one series per axis. Rows
// arrive newest first from the database; points come out oldest first.
// Axes from known are seeded so a quiet axis still gets an empty chart
// with its configured units.
func FromMoves(moves []db.MoveRecord, known []motor.Status) []Series {
	byAxis := make(map[string]*Series)
	var order []string

	for _, st := range known {
		byAxis[st.Name] = &Series{Axis: st.Name, Units: st.Units}
		order = append(order, st.Name)
	}

	for i := len(moves) - 1; i >= 0; i-- {
		rec := moves[i]
		s, ok := byAxis[rec.Axis]
		if !ok {
			s = &Series{Axis: rec.Axis, Units: rec.Units}
			byAxis[rec.Axis] = s
			order = append(order, rec.Axis)
		}
		if s.Units == "" {
			s.Units = rec.Units
		}
		s.Points = append(s.Points, Point{Time: rec.CreatedAt, Position: rec.EndPos})
	}

	sort.Strings(order)
	out := make([]Series, 0, len(order))
	for _, axis := range order {
		out = append(out, *byAxis[axis])
	}
	return out
}

// Render writes the HTML motion report to w, one line chart per axis.
// An empty history still renders the page.
func Render(w io.Writer, series []Series) error {
	page := components.NewPage()

	for _, s := range series {
		data := make([]opts.LineData, 0, len(s.Points))
		for _, p := range s.Points {
			data = append(data, opts.LineData{
				Value: []interface{}{p.Time.Format("2006-01-02 15:04:05"), p.Position},
			})
		}

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{PageTitle: "Rumble Motion Report", Theme: "dark", Width: "1200px", Height: "420px"}),
			charts.WithTitleOpts(opts.Title{
				Title:    fmt.Sprintf("%s position (%s)", s.Axis, s.Units),
				Subtitle: fmt.Sprintf("%d moves", len(s.Points)),
			}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			charts.WithXAxisOpts(opts.XAxis{Type: "time", Name: "time"}),
			charts.WithYAxisOpts(opts.YAxis{Name: s.Units, Scale: opts.Bool(true)}),
		)
		line.AddSeries(s.Axis, data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true), SymbolSize: 6}),
		)
		page.AddCharts(line)
	}

	return page.Render(w)
}
