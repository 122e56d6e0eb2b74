package norm

import (
	"fmt"
	"strings"

	"github.com/samcharles93/normkit/internal/device"
	"github.com/samcharles93/normkit/internal/tensor"
)

// Operation parameter slots. Layer, RMS and L2 norm keep eps in slot 0; group
// norm keeps the group count in slot 0 and eps in slot 1.
const (
	paramEps       = 0
	paramNumGroups = 0
	paramGroupEps  = 1
)

// OpNorm normalizes every row of dst.Src[0] to zero mean and unit variance.
// The work is queued on ctx's stream; synchronize the queue before reading
// dst.
func OpNorm(ctx *device.Context, dst *tensor.Tensor) {
	src := unarySource(dst)

	eps := dst.OpParamF32(paramEps)
	Assert(eps >= 0, "norm: eps must be non-negative, got %v", eps)

	s01, s02, s03 := elementStrides(src)
	normF32(ctx, src.Data, dst.Data,
		int(src.Ne[0]), int(src.Ne[1]), int(src.Ne[2]), int(src.Ne[3]),
		s01, s02, s03, eps)
}

// OpGroupNorm normalizes dst.Src[0] over groups of channels.
func OpGroupNorm(ctx *device.Context, dst *tensor.Tensor) {
	src := unarySource(dst)
	Assert(src.IsContiguous(), "group_norm: source %s must be contiguous", src.Name)

	numGroups := int(dst.OpParamI32(paramNumGroups))
	Assert(numGroups > 0, "group_norm: num_groups must be positive, got %d", numGroups)
	eps := dst.OpParamF32(paramGroupEps)

	ne0, ne1, ne2 := int(src.Ne[0]), int(src.Ne[1]), int(src.Ne[2])
	groupSize := ne0 * ne1 * ((ne2 + numGroups - 1) / numGroups)
	groupNormF32(ctx, src.Data, dst.Data, numGroups, eps, groupSize, ne0*ne1*ne2, int(src.Ne[3]))
}

// OpRMSNorm scales every row of dst.Src[0] to unit root mean square.
func OpRMSNorm(ctx *device.Context, dst *tensor.Tensor) {
	src := unarySource(dst)
	eps := dst.OpParamF32(paramEps)

	s01, s02, s03 := elementStrides(src)
	rmsNormF32(ctx, src.Data, dst.Data,
		int(src.Ne[0]), int(src.Ne[1]), int(src.Ne[2]), int(src.Ne[3]),
		s01, s02, s03, eps)
}

// OpL2Norm scales every row of dst.Src[0] to unit L2 norm.
func OpL2Norm(ctx *device.Context, dst *tensor.Tensor) {
	src := unarySource(dst)
	eps := dst.OpParamF32(paramEps)

	s01, s02, s03 := elementStrides(src)
	l2NormF32(ctx, src.Data, dst.Data,
		int(src.Ne[0]), int(src.Ne[1]), int(src.Ne[2]), int(src.Ne[3]),
		s01, s02, s03, eps)
}

func unarySource(dst *tensor.Tensor) *tensor.Tensor {
	Assert(dst != nil, "nil destination tensor")
	src := dst.Src[0]
	Assert(src != nil, "%s: missing source tensor", dst.Name)
	Assert(src.Type == tensor.F32, "%s: source type %s, want f32", dst.Name, src.Type)
	Assert(dst.Type == tensor.F32, "%s: destination type %s, want f32", dst.Name, dst.Type)
	Assert(dst.Ne == src.Ne, "%s: destination shape %v does not match source %v", dst.Name, dst.Ne, src.Ne)
	Assert(dst.IsContiguous(), "%s: destination must be packed", dst.Name)
	Assert(int64(len(dst.Data)) >= dst.NElements(), "%s: destination holds %d of %d elements", dst.Name, len(dst.Data), dst.NElements())
	return src
}

// elementStrides converts the outer byte strides of t to element strides.
// The innermost dimension must be contiguous.
func elementStrides(t *tensor.Tensor) (s01, s02, s03 int) {
	ts := t.Type.Size()
	Assert(t.Nb[0] == ts, "%s: innermost stride %d bytes, want %d", t.Name, t.Nb[0], ts)
	return int(t.Nb[1] / ts), int(t.Nb[2] / ts), int(t.Nb[3] / ts)
}

// Kind names one of the four operations.
type Kind string

const (
	KindNorm      Kind = "norm"
	KindGroupNorm Kind = "group_norm"
	KindRMSNorm   Kind = "rms_norm"
	KindL2Norm    Kind = "l2_norm"
)

// Kinds lists every operation.
func Kinds() []Kind {
	return []Kind{KindNorm, KindGroupNorm, KindRMSNorm, KindL2Norm}
}

// ParseKind accepts the operation names with '-' or '_' separators.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch k {
	case KindNorm, KindGroupNorm, KindRMSNorm, KindL2Norm:
		return k, nil
	case "layer_norm":
		return KindNorm, nil
	default:
		return "", fmt.Errorf("unknown operation %q (expected norm, group_norm, rms_norm, or l2_norm)", s)
	}
}

// Params are the operation parameters carried in the destination tensor.
type Params struct {
	Eps       float32
	NumGroups int
}

// Build creates the packed destination tensor of kind over src, with the
// parameter block filled in.
func Build(kind Kind, src *tensor.Tensor, p Params) *tensor.Tensor {
	dst := tensor.New(string(kind)+"("+src.Name+")", tensor.F32, src.Ne[0], src.Ne[1], src.Ne[2], src.Ne[3])
	dst.Src[0] = src
	switch kind {
	case KindGroupNorm:
		dst.SetOpParamI32(paramNumGroups, int32(p.NumGroups))
		dst.SetOpParamF32(paramGroupEps, p.Eps)
	default:
		dst.SetOpParamF32(paramEps, p.Eps)
	}
	return dst
}

// Compute queues the operation of kind for dst.
func Compute(ctx *device.Context, kind Kind, dst *tensor.Tensor) {
	switch kind {
	case KindNorm:
		OpNorm(ctx, dst)
	case KindGroupNorm:
		OpGroupNorm(ctx, dst)
	case KindRMSNorm:
		OpRMSNorm(ctx, dst)
	case KindL2Norm:
		OpL2Norm(ctx, dst)
	default:
		Assert(false, "unknown operation %q", kind)
	}
}

// Run builds, queues and waits for one operation. Assertion failures are
// returned as errors so hosts that accept untrusted shapes can report them.
func Run(ctx *device.Context, kind Kind, src *tensor.Tensor, p Params) (dst *tensor.Tensor, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ae, ok := rec.(*AssertionError)
			if !ok {
				panic(rec)
			}
			dst, err = nil, ae
		}
	}()
	dst = Build(kind, src, p)
	Compute(ctx, kind, dst)
	if err := ctx.Stream().Synchronize(); err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	return dst, nil
}
