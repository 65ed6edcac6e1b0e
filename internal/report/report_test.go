package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rumble/internal/db"
	"github.com/banshee-data/rumble/internal/motor"
)

func TestFromMovesGroupsAndOrders(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	// newest first, the way ListMoves returns rows
	moves := []db.MoveRecord{
		{Axis: "mono", Units: "nm", EndPos: 5, CreatedAt: base.Add(2 * time.Minute)},
		{Axis: "polar", Units: "deg", EndPos: 90, CreatedAt: base.Add(time.Minute)},
		{Axis: "mono", Units: "nm", EndPos: 2.5, CreatedAt: base},
	}

	series := FromMoves(moves, nil)
	require.Len(t, series, 2)

	assert.Equal(t, "mono", series[0].Axis)
	assert.Equal(t, "nm", series[0].Units)
	require.Len(t, series[0].Points, 2)
	assert.Equal(t, 2.5, series[0].Points[0].Position)
	assert.Equal(t, 5.0, series[0].Points[1].Position)
	assert.True(t, series[0].Points[0].Time.Before(series[0].Points[1].Time))

	assert.Equal(t, "polar", series[1].Axis)
	require.Len(t, series[1].Points, 1)
}

func TestFromMovesSeedsKnownAxes(t *testing.T) {
	known := []motor.Status{
		{Name: "mono", Units: "nm"},
		{Name: "polar", Units: "deg"},
	}

	series := FromMoves(nil, known)
	require.Len(t, series, 2)
	assert.Equal(t, "mono", series[0].Axis)
	assert.Equal(t, "nm", series[0].Units)
	assert.Empty(t, series[0].Points)
	assert.Equal(t, "polar", series[1].Axis)
	assert.Equal(t, "deg", series[1].Units)
}

func TestFromMovesKeepsConfiguredUnits(t *testing.T) {
	known := []motor.Status{{Name: "mono", Units: "nm"}}
	moves := []db.MoveRecord{
		{Axis: "mono", Units: "counts", EndPos: 1, CreatedAt: time.Now()},
	}

	series := FromMoves(moves, known)
	require.Len(t, series, 1)
	assert.Equal(t, "nm", series[0].Units)
}

func TestRenderChartPerAxis(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	series := []Series{
		{Axis: "mono", Units: "nm", Points: []Point{
			{Time: base, Position: 2.5},
			{Time: base.Add(time.Minute), Position: 5},
		}},
		{Axis: "polar", Units: "deg", Points: []Point{
			{Time: base, Position: 45},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, series))

	html := buf.String()
	assert.Contains(t, html, "mono position (nm)")
	assert.Contains(t, html, "polar position (deg)")
	assert.Contains(t, html, "2024-03-01 10:00:00")
}

func TestRenderEmptyHistory(t *testing.T) {
	known := []motor.Status{
		{Name: "mono", Units: "nm"},
		{Name: "polar", Units: "deg"},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FromMoves(nil, known)))

	html := buf.String()
	assert.Contains(t, html, "mono position (nm)")
	assert.Contains(t, html, "polar position (deg)")
	assert.True(t, strings.Contains(html, "<html"))
}
