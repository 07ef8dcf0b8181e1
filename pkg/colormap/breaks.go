package colormap

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"strings"
)

// Classification selects which break a value falls into.
type Classification int

const (
	// LessThanOrEqualTo assigns a value the color of the first break >= value.
	LessThanOrEqualTo Classification = iota
	// GreaterThanOrEqualTo assigns a value the color of the last break <= value.
	GreaterThanOrEqualTo
	// Exact only colors values equal to a break.
	Exact
)

// ParseClassification accepts "le", "ge" and "exact" and their long
// forms. Empty means LessThanOrEqualTo.
func ParseClassification(s string) (Classification, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "le", "lessthanorequalto":
		return LessThanOrEqualTo, nil
	case "ge", "greaterthanorequalto":
		return GreaterThanOrEqualTo, nil
	case "exact":
		return Exact, nil
	}
	return 0, fmt.Errorf("unknown classification %q", s)
}

// Options tunes a ColorMap.
type Options struct {
	Classification Classification
	// NoDataColor is used for no-data cells. Zero value is transparent.
	NoDataColor color.RGBA
	// FallbackColor is used for values outside every break.
	FallbackColor color.RGBA
	// Clip extends the first and last colors beyond the break range
	// instead of using FallbackColor.
	Clip bool
}

// ColorMap maps cell values to colors through sorted breaks.
type ColorMap struct {
	breaks []float64
	colors []color.RGBA
	opts   Options
}

// FromBreaks builds a ColorMap. breaks and colors pair up by index; breaks
// are sorted together with their colors.
func FromBreaks(breaks []float64, colors []color.RGBA, opts Options) (*ColorMap, error) {
	if len(breaks) == 0 {
		return nil, fmt.Errorf("color map needs at least one break")
	}
	if len(breaks) != len(colors) {
		return nil, fmt.Errorf("color map has %d breaks but %d colors", len(breaks), len(colors))
	}
	idx := make([]int, len(breaks))
	for i := range idx {
		if math.IsNaN(breaks[i]) {
			return nil, fmt.Errorf("break %d is NaN", i)
		}
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return breaks[idx[a]] < breaks[idx[b]] })

	cm := &ColorMap{
		breaks: make([]float64, len(breaks)),
		colors: make([]color.RGBA, len(colors)),
		opts:   opts,
	}
	for i, j := range idx {
		cm.breaks[i] = breaks[j]
		cm.colors[i] = colors[j]
	}
	return cm, nil
}

// FromRamp spreads n colors of the named ramp over evenly spaced breaks
// from minV to maxV. n <= 0 uses the ramp's own stops.
func FromRamp(name string, minV, maxV float64, n int) (*ColorMap, error) {
	colors, err := Colors(name, n)
	if err != nil {
		return nil, err
	}
	if maxV < minV {
		minV, maxV = maxV, minV
	}
	breaks := make([]float64, len(colors))
	for i := range breaks {
		if len(breaks) == 1 {
			breaks[i] = maxV
			continue
		}
		breaks[i] = minV + (maxV-minV)*float64(i)/float64(len(breaks)-1)
	}
	return FromBreaks(breaks, colors, Options{Clip: true})
}

// Breaks returns a copy of the sorted breaks.
func (m *ColorMap) Breaks() []float64 {
	return append([]float64(nil), m.breaks...)
}

// NoData returns the color used for no-data cells.
func (m *ColorMap) NoData() color.RGBA {
	return m.opts.NoDataColor
}

// Map returns the color for v.
func (m *ColorMap) Map(v float64) color.RGBA {
	if math.IsNaN(v) {
		return m.opts.NoDataColor
	}
	n := len(m.breaks)
	switch m.opts.Classification {
	case Exact:
		i := sort.SearchFloat64s(m.breaks, v)
		if i < n && m.breaks[i] == v {
			return m.colors[i]
		}
		return m.opts.FallbackColor
	case GreaterThanOrEqualTo:
		// index of first break > v, minus one
		i := sort.Search(n, func(i int) bool { return m.breaks[i] > v }) - 1
		if i < 0 {
			if m.opts.Clip {
				return m.colors[0]
			}
			return m.opts.FallbackColor
		}
		return m.colors[i]
	default:
		i := sort.SearchFloat64s(m.breaks, v)
		if i >= n {
			if m.opts.Clip {
				return m.colors[n-1]
			}
			return m.opts.FallbackColor
		}
		return m.colors[i]
	}
}

// FromQuantileBreaks places n colors of the named ramp at quantiles of
// values, so each color covers roughly the same number of cells. NaN
// values are ignored. Duplicate quantiles collapse into one break.
func FromQuantileBreaks(name string, values []float64, n int) (*ColorMap, error) {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return FromRamp(name, 0, 1, n)
	}
	sort.Float64s(sorted)

	colors, err := Colors(name, n)
	if err != nil {
		return nil, err
	}
	breaks := make([]float64, 0, len(colors))
	picked := make([]color.RGBA, 0, len(colors))
	for i, c := range colors {
		q := 1.0
		if len(colors) > 1 {
			q = float64(i) / float64(len(colors)-1)
		}
		b := sorted[int(math.Round(q*float64(len(sorted)-1)))]
		if len(breaks) > 0 && breaks[len(breaks)-1] == b {
			picked[len(picked)-1] = c
			continue
		}
		breaks = append(breaks, b)
		picked = append(picked, c)
	}
	return FromBreaks(breaks, picked, Options{Clip: true})
}
