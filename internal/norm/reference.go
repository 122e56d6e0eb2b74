package norm

import (
	"math"

	"github.com/samcharles93/normkit/internal/tensor"
)

// Reference computes kind over src sequentially on the host with float64
// accumulation and returns the packed result. It accepts any strides and is
// the oracle the kernels are checked against.
func Reference(kind Kind, src *tensor.Tensor, p Params) []float32 {
	switch kind {
	case KindNorm:
		return referenceRows(src, func(row []float64, out []float32) {
			n := float64(len(row))
			var sum, sumsq float64
			for _, v := range row {
				sum += v
				sumsq += v * v
			}
			mean := sum / n
			inv := 1 / math.Sqrt(sumsq/n-mean*mean+float64(p.Eps))
			for i, v := range row {
				out[i] = float32((v - mean) * inv)
			}
		})
	case KindRMSNorm:
		return referenceRows(src, func(row []float64, out []float32) {
			var sumsq float64
			for _, v := range row {
				sumsq += v * v
			}
			scale := 1 / math.Sqrt(sumsq/float64(len(row))+float64(p.Eps))
			for i, v := range row {
				out[i] = float32(v * scale)
			}
		})
	case KindL2Norm:
		return referenceRows(src, func(row []float64, out []float32) {
			var sumsq float64
			for _, v := range row {
				sumsq += v * v
			}
			eps := float64(p.Eps)
			scale := 1 / math.Sqrt(math.Max(sumsq, eps*eps))
			for i, v := range row {
				out[i] = float32(v * scale)
			}
		})
	case KindGroupNorm:
		return referenceGroupNorm(src, p)
	default:
		Assert(false, "unknown operation %q", kind)
		return nil
	}
}

func referenceRows(src *tensor.Tensor, fn func(row []float64, out []float32)) []float32 {
	ne := src.Ne
	out := make([]float32, src.NElements())
	row := make([]float64, ne[0])
	i := int64(0)
	for i3 := range ne[3] {
		for i2 := range ne[2] {
			for i1 := range ne[1] {
				for i0 := range ne[0] {
					row[i0] = float64(src.At(i0, i1, i2, i3))
				}
				fn(row, out[i:i+ne[0]])
				i += ne[0]
			}
		}
	}
	return out
}

func referenceGroupNorm(src *tensor.Tensor, p Params) []float32 {
	packed := src.Packed()
	ne := src.Ne
	perSample := ne[0] * ne[1] * ne[2]
	groupSize := ne[0] * ne[1] * ((ne[2] + int64(p.NumGroups) - 1) / int64(p.NumGroups))
	out := make([]float32, len(packed))

	for s := range ne[3] {
		base := s * perSample
		for start := int64(0); start < perSample; start += groupSize {
			end := min(start+groupSize, perSample)
			n := float64(groupSize)
			var sum float64
			for j := start; j < end; j++ {
				sum += float64(packed[base+j])
			}
			mean := sum / n
			var sumsq float64
			for j := start; j < end; j++ {
				d := float64(packed[base+j]) - mean
				sumsq += d * d
			}
			scale := 1 / math.Sqrt(sumsq/n+float64(p.Eps))
			for j := start; j < end; j++ {
				out[base+j] = float32((float64(packed[base+j]) - mean) * scale)
			}
		}
	}
	return out
}
