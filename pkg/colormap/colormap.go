// Package colormap provides named color ramps and value-to-color maps for
// rendering raster cells.
package colormap

import (
	"fmt"
	"image/color"
	"sort"
	"strconv"
	"strings"
)

// Ramp maps normalized values [0, 1] to colors.
type Ramp interface {
	At(t float64) color.Color
	AtIndex(i int) color.Color
	Stops() []color.RGBA
}

// LinearRamp is a linear interpolation ramp.
type LinearRamp struct {
	colors []color.RGBA
}

// At returns the color at position t (0-1).
func (c LinearRamp) At(t float64) color.Color {
	if t <= 0 {
		return c.colors[0]
	}
	if t >= 1 {
		return c.colors[len(c.colors)-1]
	}

	idx := t * float64(len(c.colors)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(c.colors) {
		upper = len(c.colors) - 1
	}

	frac := idx - float64(lower)
	return interpolate(c.colors[lower], c.colors[upper], frac)
}

// AtIndex returns color at index i (wraps around).
func (c LinearRamp) AtIndex(i int) color.Color {
	return c.colors[i%len(c.colors)]
}

// Stops returns the ramp's defining colors.
func (c LinearRamp) Stops() []color.RGBA {
	return append([]color.RGBA(nil), c.colors...)
}

func interpolate(c1, c2 color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c1.R) + t*(float64(c2.R)-float64(c1.R))),
		G: uint8(float64(c1.G) + t*(float64(c2.G)-float64(c1.G))),
		B: uint8(float64(c1.B) + t*(float64(c2.B)-float64(c1.B))),
		A: uint8(float64(c1.A) + t*(float64(c2.A)-float64(c1.A))),
	}
}

// CategoricalRamp provides distinct colors for categories.
type CategoricalRamp struct {
	colors []color.RGBA
}

// At returns color at position t.
func (c CategoricalRamp) At(t float64) color.Color {
	idx := int(t * float64(len(c.colors)))
	if idx >= len(c.colors) {
		idx = len(c.colors) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return c.colors[idx]
}

// AtIndex returns color at index.
func (c CategoricalRamp) AtIndex(i int) color.Color {
	return c.colors[i%len(c.colors)]
}

// Stops returns the category colors.
func (c CategoricalRamp) Stops() []color.RGBA {
	return append([]color.RGBA(nil), c.colors...)
}

// hex builds a linear ramp from packed 0xRRGGBBAA values.
func hex(packed ...uint32) LinearRamp {
	colors := make([]color.RGBA, len(packed))
	for i, p := range packed {
		colors[i] = Unpack(p)
	}
	return LinearRamp{colors: colors}
}

// Pack returns c as 0xRRGGBBAA.
func Pack(c color.Color) uint32 {
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	return uint32(rgba.R)<<24 | uint32(rgba.G)<<16 | uint32(rgba.B)<<8 | uint32(rgba.A)
}

// Unpack is the inverse of Pack.
func Unpack(p uint32) color.RGBA {
	return color.RGBA{R: uint8(p >> 24), G: uint8(p >> 16), B: uint8(p >> 8), A: uint8(p)}
}

// Hex formats c as #rrggbbaa.
func Hex(c color.Color) string {
	return fmt.Sprintf("#%08x", Pack(c))
}

// ParseHex accepts #rrggbb or #rrggbbaa, with or without the leading #.
func ParseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	p, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return Unpack(uint32(p)), nil
}

var registry = map[string]Ramp{}
var registryNames []string

func register(name string, r Ramp) {
	registry[strings.ToLower(name)] = r
	registryNames = append(registryNames, name)
}

func init() {
	register("viridis", Viridis)
	register("plasma", Plasma)
	register("inferno", Inferno)
	register("magma", Magma)
	register("categorical", Categorical)
	register("hot", Hot)
	register("coolwarm", CoolWarm)
	register("BlueToOrange", BlueToOrange)
	register("LightYellowToOrange", LightYellowToOrange)
	register("BlueToRed", BlueToRed)
	register("GreenToRedOrange", GreenToRedOrange)
	register("LightToDarkSunset", LightToDarkSunset)
	register("LightToDarkGreen", LightToDarkGreen)
	register("HeatmapYellowToRed", HeatmapYellowToRed)
	register("HeatmapBlueToYellowToRedSpectrum", HeatmapBlueToYellowToRedSpectrum)
	register("HeatmapDarkRedToYellowWhite", HeatmapDarkRedToYellowWhite)
	register("HeatmapLightPurpleToDarkPurpleToWhite", HeatmapLightPurpleToDarkPurpleToWhite)
	register("ClassificationBoldLandUse", ClassificationBoldLandUse)
	register("ClassificationMutedTerrain", ClassificationMutedTerrain)
}

// Names lists the registered ramps, sorted case-insensitively.
func Names() []string {
	names := append([]string(nil), registryNames...)
	sort.Slice(names, func(i, j int) bool { return strings.ToLower(names[i]) < strings.ToLower(names[j]) })
	return names
}

// Lookup returns the ramp registered under name (case-insensitive).
func Lookup(name string) (Ramp, error) {
	r, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown color ramp %q", name)
	}
	return r, nil
}

// Colors returns n colors sampled along the named ramp. n <= 0 returns the
// ramp's own stops. Categorical ramps cycle through their colors.
func Colors(name string, n int) ([]color.RGBA, error) {
	r, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return r.Stops(), nil
	}
	out := make([]color.RGBA, n)
	_, categorical := r.(CategoricalRamp)
	for i := range out {
		var c color.Color
		switch {
		case categorical:
			c = r.AtIndex(i)
		case n == 1:
			c = r.At(0)
		default:
			c = r.At(float64(i) / float64(n-1))
		}
		out[i] = color.RGBAModel.Convert(c).(color.RGBA)
	}
	return out, nil
}

// Get returns the named ramp as packed 0xRRGGBBAA integers.
func Get(name string, n int) ([]uint32, error) {
	colors, err := Colors(name, n)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(colors))
	for i, c := range colors {
		out[i] = Pack(c)
	}
	return out, nil
}

// GetHex returns the named ramp as #rrggbbaa strings.
func GetHex(name string, n int) ([]string, error) {
	colors, err := Colors(name, n)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(colors))
	for i, c := range colors {
		out[i] = Hex(c)
	}
	return out, nil
}
