package pyramid

import (
	"math"
	"sort"
	"strings"

	"github.com/geotms/server/internal/tmserr"
)

// ResampleMethod selects how four child cells fold into one parent cell.
type ResampleMethod string

const (
	NearestNeighbor  ResampleMethod = "nearest"
	Bilinear         ResampleMethod = "bilinear"
	CubicConvolution ResampleMethod = "cubicconvolution"
	CubicSpline      ResampleMethod = "cubicspline"
	Lanczos          ResampleMethod = "lanczos"
	Average          ResampleMethod = "average"
	Mode             ResampleMethod = "mode"
	Median           ResampleMethod = "median"
	Max              ResampleMethod = "max"
	Min              ResampleMethod = "min"
)

var resampleMethods = map[string]ResampleMethod{
	"nearest":          NearestNeighbor,
	"nearestneighbor":  NearestNeighbor,
	"bilinear":         Bilinear,
	"cubicconvolution": CubicConvolution,
	"cubicspline":      CubicSpline,
	"lanczos":          Lanczos,
	"average":          Average,
	"mode":             Mode,
	"median":           Median,
	"max":              Max,
	"min":              Min,
}

// ParseResampleMethod accepts the method names above and the
// NearestNeighbor-style constant spellings, case-insensitively.
func ParseResampleMethod(s string) (ResampleMethod, error) {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.TrimSpace(s)))
	m, ok := resampleMethods[key]
	if !ok {
		return "", tmserr.Configf("%q is not a known resample method", s)
	}
	return m, nil
}

// Valid reports whether m is one of the recognized methods.
func (m ResampleMethod) Valid() bool {
	_, ok := resampleMethods[string(m)]
	return ok && resampleMethods[string(m)] == m
}

// kernel weights for the 4-tap filters, sampled at distances 1.5, 0.5, 0.5
// and 1.5 from the parent cell center.
var kernels = map[ResampleMethod][4]float64{
	CubicConvolution: {-0.0625, 0.5625, 0.5625, -0.0625},
	CubicSpline:      {1.0 / 48, 23.0 / 48, 23.0 / 48, 1.0 / 48},
	Lanczos:          {-0.0636844, 0.5731591, 0.5731591, -0.0636844},
}

// usesKernel reports whether m samples a 4x4 window instead of 2x2.
func (m ResampleMethod) usesKernel() bool {
	_, ok := kernels[m]
	return ok
}

// reduce2x2 folds the valid samples of a 2x2 window. vals holds
// top-left, top-right, bottom-left, bottom-right; ok flags validity.
func (m ResampleMethod) reduce2x2(vals [4]float64, ok [4]bool) (float64, bool) {
	valid := make([]float64, 0, 4)
	for i, v := range vals {
		if ok[i] {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return 0, false
	}

	switch m {
	case NearestNeighbor:
		return valid[0], true
	case Bilinear, Average:
		sum := 0.0
		for _, v := range valid {
			sum += v
		}
		return sum / float64(len(valid)), true
	case Max:
		out := valid[0]
		for _, v := range valid[1:] {
			out = math.Max(out, v)
		}
		return out, true
	case Min:
		out := valid[0]
		for _, v := range valid[1:] {
			out = math.Min(out, v)
		}
		return out, true
	case Median:
		sort.Float64s(valid)
		n := len(valid)
		if n%2 == 1 {
			return valid[n/2], true
		}
		return (valid[n/2-1] + valid[n/2]) / 2, true
	case Mode:
		sort.Float64s(valid)
		best, bestCount := valid[0], 0
		for i := 0; i < len(valid); {
			j := i
			for j < len(valid) && valid[j] == valid[i] {
				j++
			}
			if j-i > bestCount {
				best, bestCount = valid[i], j-i
			}
			i = j
		}
		return best, true
	}
	return valid[0], true
}

// reduceKernel applies the separable 4-tap filter over a 4x4 window given
// row-major. Weights of invalid samples are dropped and the rest
// renormalized.
func (m ResampleMethod) reduceKernel(vals [16]float64, ok [16]bool) (float64, bool) {
	w := kernels[m]
	sum, norm := 0.0, 0.0
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			i := y*4 + x
			if !ok[i] {
				continue
			}
			weight := w[x] * w[y]
			sum += weight * vals[i]
			norm += weight
		}
	}
	if norm == 0 {
		return 0, false
	}
	return sum / norm, true
}
