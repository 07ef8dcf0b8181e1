package colormap

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViridisEndpoints(t *testing.T) {
	t.Parallel()

	c0, ok := Viridis.At(0).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=0")
	}
	if c0 != (color.RGBA{R: 68, G: 1, B: 84, A: 255}) {
		t.Fatalf("unexpected Viridis.At(0): %#v", c0)
	}

	c1, ok := Viridis.At(1).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=1")
	}
	if c1 != (color.RGBA{R: 253, G: 231, B: 37, A: 255}) {
		t.Fatalf("unexpected Viridis.At(1): %#v", c1)
	}
}

func TestGetNativeStops(t *testing.T) {
	got, err := Get("hot", 0)
	require.NoError(t, err)
	assert.Len(t, got, 11)
	assert.Equal(t, uint32(0x0b0000ff), got[0])
	assert.Equal(t, uint32(0xffffffff), got[len(got)-1])
}

func TestGetInterpolatesCount(t *testing.T) {
	got, err := Get("viridis", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Pack(color.RGBA{68, 1, 84, 255}), got[0])
	assert.Equal(t, Pack(color.RGBA{253, 231, 37, 255}), got[2])

	one, err := Get("viridis", 1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{got[0]}, one)
}

func TestGetCaseInsensitive(t *testing.T) {
	a, err := GetHex("BlueToOrange", 0)
	require.NoError(t, err)
	b, err := GetHex("bluetoorange", 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "#2586abff", a[0])
}

func TestGetUnknownRamp(t *testing.T) {
	_, err := Get("no-such-ramp", 4)
	assert.Error(t, err)
}

func TestCategoricalCycles(t *testing.T) {
	got, err := Colors("ClassificationMutedTerrain", 13)
	require.NoError(t, err)
	assert.Equal(t, got[0], got[11])
	assert.Equal(t, got[1], got[12])
}

func TestNamesIncludesAllRamps(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "viridis")
	assert.Contains(t, names, "ClassificationBoldLandUse")
	for _, n := range names {
		_, err := Lookup(n)
		assert.NoError(t, err, n)
	}
}

func TestPackUnpack(t *testing.T) {
	c := color.RGBA{R: 1, G: 2, B: 3, A: 4}
	assert.Equal(t, uint32(0x01020304), Pack(c))
	assert.Equal(t, c, Unpack(0x01020304))
	assert.Equal(t, "#01020304", Hex(c))
}

func TestColorMapLessThanOrEqual(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	green := color.RGBA{0, 255, 0, 255}
	blue := color.RGBA{0, 0, 255, 255}
	fallback := color.RGBA{9, 9, 9, 255}

	cm, err := FromBreaks([]float64{10, 0, 5}, []color.RGBA{blue, red, green}, Options{FallbackColor: fallback})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 5, 10}, cm.Breaks())

	assert.Equal(t, red, cm.Map(-3))
	assert.Equal(t, red, cm.Map(0))
	assert.Equal(t, green, cm.Map(0.5))
	assert.Equal(t, green, cm.Map(5))
	assert.Equal(t, blue, cm.Map(7))
	assert.Equal(t, fallback, cm.Map(11))
	assert.Equal(t, color.RGBA{}, cm.Map(math.NaN()))
}

func TestColorMapGreaterThanOrEqual(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	green := color.RGBA{0, 255, 0, 255}

	cm, err := FromBreaks([]float64{0, 5}, []color.RGBA{red, green}, Options{Classification: GreaterThanOrEqualTo})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{}, cm.Map(-1))
	assert.Equal(t, red, cm.Map(0))
	assert.Equal(t, red, cm.Map(4.9))
	assert.Equal(t, green, cm.Map(5))
	assert.Equal(t, green, cm.Map(500))
}

func TestColorMapExact(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	cm, err := FromBreaks([]float64{3}, []color.RGBA{red}, Options{Classification: Exact})
	require.NoError(t, err)
	assert.Equal(t, red, cm.Map(3))
	assert.Equal(t, color.RGBA{}, cm.Map(3.5))
}

func TestFromBreaksValidation(t *testing.T) {
	_, err := FromBreaks(nil, nil, Options{})
	assert.Error(t, err)
	_, err = FromBreaks([]float64{1, 2}, []color.RGBA{{}}, Options{})
	assert.Error(t, err)
	_, err = FromBreaks([]float64{math.NaN()}, []color.RGBA{{}}, Options{})
	assert.Error(t, err)
}

func TestFromRampClips(t *testing.T) {
	cm, err := FromRamp("viridis", 0, 100, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 25, 50, 75, 100}, cm.Breaks())
	assert.Equal(t, cm.Map(100), cm.Map(1000))
	assert.Equal(t, cm.Map(0), cm.Map(-5))
}

func TestFromQuantileBreaks(t *testing.T) {
	values := make([]float64, 0, 101)
	for i := 1; i <= 100; i++ {
		values = append(values, float64(i))
	}
	values = append(values, math.NaN())

	cm, err := FromQuantileBreaks("viridis", values, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 51, 100}, cm.Breaks())

	flat, err := FromQuantileBreaks("viridis", []float64{7, 7, 7}, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{7}, flat.Breaks())
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#ff8000")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{255, 128, 0, 255}, c)

	c, err = ParseHex("01020304")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{1, 2, 3, 4}, c)

	_, err = ParseHex("#12345")
	assert.Error(t, err)
	_, err = ParseHex("#zzzzzz")
	assert.Error(t, err)
}

func TestParseClassification(t *testing.T) {
	for in, want := range map[string]Classification{"": LessThanOrEqualTo, "GE": GreaterThanOrEqualTo, "exact": Exact} {
		got, err := ParseClassification(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseClassification("nearest")
	assert.Error(t, err)
}
