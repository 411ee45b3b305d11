package pipeline

import "math"

// Chart is the normalized view of a reading that the presentation layer
// draws as a radar chart. Temperatures and FRP are divided by 1000 and the
// pixel sizes by 10; every value is capped at 1.
type Chart struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

var chartAxes = []struct {
	label string
	scale float64
	value func(Reading) float64
}{
	{"Brightness", 1000, func(r Reading) float64 { return r.Brightness }},
	{"Brightness T31", 1000, func(r Reading) float64 { return r.BrightT31 }},
	{"FRP", 1000, func(r Reading) float64 { return r.FRP }},
	{"Scan", 10, func(r Reading) float64 { return r.Scan }},
	{"Track", 10, func(r Reading) float64 { return r.Track }},
}

// ChartFor normalizes reading for display. Confidence is not plotted.
func ChartFor(reading Reading) Chart {
	chart := Chart{
		Labels: make([]string, len(chartAxes)),
		Values: make([]float64, len(chartAxes)),
	}
	for i, axis := range chartAxes {
		chart.Labels[i] = axis.label
		chart.Values[i] = math.Min(axis.value(reading)/axis.scale, 1)
	}
	return chart
}
