package render

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/KaramelBytes/vizloom/internal/executor"
)

// Default canvas size when the caller passes zero.
const (
	DefaultWidth  = 800
	DefaultHeight = 480
)

// ErrEmptyChart is returned for a chart without plottable values.
var ErrEmptyChart = errors.New("chart has no plottable values")

// ErrNonFinite is returned for a chart holding NaN or infinite values; the
// rasterizer does not terminate on them.
var ErrNonFinite = errors.New("chart has non-finite values")

// ChartPNG renders a script chart to PNG bytes. Histograms are drawn as bars.
func ChartPNG(c *executor.Chart, width, height int) ([]byte, error) {
	if c == nil || len(c.Y) == 0 {
		return nil, ErrEmptyChart
	}
	for _, vs := range [][]float64{c.X, c.Y} {
		for _, v := range vs {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, ErrNonFinite
			}
		}
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	var buf bytes.Buffer
	var err error
	switch c.Kind {
	case executor.ChartBar, executor.ChartHist:
		err = barChart(c, width, height).Render(chart.PNG, &buf)
	case executor.ChartPie:
		var pc *chart.PieChart
		pc, err = pieChart(c, width, height)
		if err == nil {
			err = pc.Render(chart.PNG, &buf)
		}
	case executor.ChartLine, executor.ChartScatter:
		ch := xyChart(c, width, height)
		err = ch.Render(chart.PNG, &buf)
	default:
		return nil, fmt.Errorf("render: unsupported chart kind %q", c.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("render %s chart: %w", c.Kind, err)
	}
	return buf.Bytes(), nil
}

func labelAt(c *executor.Chart, i int) string {
	if i < len(c.Labels) {
		return c.Labels[i]
	}
	if i < len(c.X) {
		return strconv.FormatFloat(c.X[i], 'g', 6, 64)
	}
	return strconv.Itoa(i + 1)
}

func barChart(c *executor.Chart, width, height int) *chart.BarChart {
	bars := make([]chart.Value, 0, len(c.Y))
	lo, hi := 0.0, 0.0
	for i, y := range c.Y {
		bars = append(bars, chart.Value{Label: labelAt(c, i), Value: y})
		lo = math.Min(lo, y)
		hi = math.Max(hi, y)
	}
	if hi == lo {
		hi = lo + 1
	}
	// widen the canvas so labels of long category lists stay readable
	barWidth := 40
	if need := len(bars)*(barWidth+10) + 120; need > width {
		width = need
	}
	return &chart.BarChart{
		Title:      c.Title,
		Width:      width,
		Height:     height,
		BarWidth:   barWidth,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.Style{FontSize: 9},
		YAxis: chart.YAxis{
			Name:  c.YLabel,
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
		},
		Bars: bars,
	}
}

func pieChart(c *executor.Chart, width, height int) (*chart.PieChart, error) {
	vals := make([]chart.Value, 0, len(c.Y))
	for i, y := range c.Y {
		if y <= 0 || math.IsNaN(y) {
			continue
		}
		vals = append(vals, chart.Value{Label: labelAt(c, i), Value: y})
	}
	if len(vals) == 0 {
		return nil, ErrEmptyChart
	}
	return &chart.PieChart{
		Title:  c.Title,
		Width:  width,
		Height: height,
		Values: vals,
	}, nil
}

// pointStyle draws markers without connecting lines.
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    4,
		DotColor:    col,
	}
}

func xyChart(c *executor.Chart, width, height int) chart.Chart {
	n := len(c.Y)
	xs := make([]float64, n)
	for i := range xs {
		if i < len(c.X) {
			xs[i] = c.X[i]
		} else {
			xs[i] = float64(i + 1)
		}
	}
	ys := append([]float64(nil), c.Y...)
	st := chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 2}
	if c.Kind == executor.ChartScatter {
		st = pointStyle(chart.ColorBlue)
	}

	ch := chart.Chart{
		Title:      c.Title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Name: c.XLabel, Range: paddedRange(xs)},
		YAxis:      chart.YAxis{Name: c.YLabel, Range: paddedRange(ys)},
		Series: []chart.Series{
			chart.ContinuousSeries{Name: c.YLabel, XValues: xs, YValues: ys, Style: st},
		},
	}
	// categorical x values keep their labels on the axis
	if len(c.Labels) == n && len(c.X) == 0 {
		ticks := make([]chart.Tick, n)
		for i := range ticks {
			ticks[i] = chart.Tick{Value: xs[i], Label: c.Labels[i]}
		}
		ch.XAxis.Ticks = ticks
	}
	return ch
}

// paddedRange returns an explicit range for the values; go-chart refuses
// zero-width ranges, which a single point or a flat series would produce.
func paddedRange(vals []float64) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return &chart.ContinuousRange{Min: 0, Max: 1}
	}
	if lo == hi {
		pad := math.Max(math.Abs(lo)*0.1, 1)
		return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
	}
	return &chart.ContinuousRange{Min: lo, Max: hi}
}
