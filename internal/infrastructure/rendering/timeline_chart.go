package rendering

import (
	"fmt"
	"io"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/AtRiskMedia/storykeep-go/internal/domain/analytics"
)

// ChartOptions controls the timeline chart size.
type ChartOptions struct {
	Width  int
	Height int
}

// DefaultChartOptions returns the console's standard chart size.
func DefaultChartOptions() ChartOptions {
	return ChartOptions{Width: 960, Height: 320}
}

var (
	activeBar = chart.Style{FillColor: drawing.ColorFromHex("0891b2"), StrokeColor: drawing.ColorFromHex("0e7490"), StrokeWidth: 1}
	futureBar = chart.Style{FillColor: drawing.ColorFromHex("e5e7eb"), StrokeColor: drawing.ColorFromHex("e5e7eb"), StrokeWidth: 1}
	emptyBar  = chart.Style{FillColor: drawing.ColorFromHex("f3f4f6"), StrokeColor: drawing.ColorFromHex("f3f4f6"), StrokeWidth: 1}
)

// HourlyTotals expands a timeline into 24 per-hour totals.
func HourlyTotals(tl analytics.Timeline) [24]int {
	var totals [24]int
	for _, h := range tl.Hours {
		if a, ok := h.(analytics.ActiveHour); ok && a.Hour >= 0 && a.Hour < 24 {
			totals[a.Hour] += a.HourlyTotal
		}
	}
	return totals
}

// RenderTimelineChart writes a PNG bar chart of one day's hourly event totals.
func RenderTimelineChart(w io.Writer, tl analytics.Timeline, opts ChartOptions) error {
	totals := HourlyTotals(tl)

	future := make(map[int]bool)
	for _, h := range tl.Hours {
		if e, ok := h.(analytics.EmptyRange); ok && e.IsFuture {
			for hour := e.StartHour; hour <= e.EndHour; hour++ {
				future[hour] = true
			}
		}
	}

	bars := make([]chart.Value, 24)
	for hour, total := range totals {
		style := emptyBar
		switch {
		case total > 0:
			style = activeBar
		case future[hour]:
			style = futureBar
		}
		bars[hour] = chart.Value{Value: float64(total), Label: fmt.Sprintf("%02d", hour), Style: style}
	}

	bc := chart.BarChart{
		Title:      fmt.Sprintf("%s · %d events, %d visitors", tl.Day, tl.DailyTotal, tl.DailyVisitors),
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		Width:      opts.Width,
		Height:     opts.Height,
		BarWidth:   max(opts.Width/24-12, 4),
		BarSpacing: 8,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: float64(max(1, tl.MaxHourlyTotal))},
		},
		Bars: bars,
	}
	if err := bc.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render timeline chart: %w", err)
	}
	return nil
}
