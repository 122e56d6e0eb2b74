package norm

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/samcharles93/normkit/internal/device"
	"github.com/samcharles93/normkit/internal/logger"
	"github.com/samcharles93/normkit/internal/tensor"
)

func newTestContext(t testing.TB, maxWorkGroup int) *device.Context {
	t.Helper()
	ctx := device.NewContext(0, device.Capabilities{Name: "test", MaxWorkGroupSize: maxWorkGroup, ComputeUnits: 4}, logger.Discard())
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx
}

func randomTensor(seed uint64, ne0, ne1, ne2, ne3 int64) *tensor.Tensor {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	x := tensor.New("x", tensor.F32, ne0, ne1, ne2, ne3)
	for i := range x.Data {
		x.Data[i] = float32(r.NormFloat64()*2 + 0.5)
	}
	return x
}

func mustRun(t *testing.T, ctx *device.Context, kind Kind, src *tensor.Tensor, p Params) []float32 {
	t.Helper()
	dst, err := Run(ctx, kind, src, p)
	if err != nil {
		t.Fatalf("%s: %v", kind, err)
	}
	return dst.Data
}

func rowStats(row []float32) (mean, variance, meanSquare float64) {
	n := float64(len(row))
	var sum, sumsq float64
	for _, v := range row {
		sum += float64(v)
		sumsq += float64(v) * float64(v)
	}
	mean = sum / n
	return mean, sumsq/n - mean*mean, sumsq / n
}

func expectPanic(t *testing.T, fn func()) *AssertionError {
	t.Helper()
	var got *AssertionError
	func() {
		defer func() {
			rec := recover()
			ae, ok := rec.(*AssertionError)
			if !ok {
				t.Fatalf("expected *AssertionError panic, got %v", rec)
			}
			got = ae
		}()
		fn()
	}()
	return got
}

func within(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

func TestNormConcreteRow(t *testing.T) {
	t.Parallel()
	ctx := newTestContext(t, 1024)

	// [1 2 3 4] repeated to a full warp keeps mean 2.5 and variance 1.25.
	x := tensor.New("x", tensor.F32, device.WarpSize, 1, 1, 1)
	for i := range x.Data {
		x.Data[i] = float32(i%4 + 1)
	}
	out := mustRun(t, ctx, KindNorm, x, Params{Eps: 1e-5})
	want := []float64{-1.3416, -0.4472, 0.4472, 1.3416}
	for i, v := range out {
		if !within(float64(v), want[i%4], 1e-4) {
			t.Fatalf("out[%d]=%v want %v", i, v, want[i%4])
		}
	}
}

func TestNormZeroMeanUnitVariance(t *testing.T) {
	t.Parallel()

	for _, ncols := range []int64{64, 992, 1024, 2048} {
		ctx := newTestContext(t, 1024)
		x := randomTensor(uint64(ncols), ncols, 3, 2, 2)
		out := mustRun(t, ctx, KindNorm, x, Params{Eps: 1e-6})
		for r := range int(x.NRows()) {
			mean, variance, _ := rowStats(out[r*int(ncols) : (r+1)*int(ncols)])
			if !within(mean, 0, 1e-4) || !within(variance, 1, 2e-3) {
				t.Fatalf("ncols=%d row %d: mean=%v var=%v", ncols, r, mean, variance)
			}
		}
	}
}

func TestNormConstantRowIsZero(t *testing.T) {
	t.Parallel()
	ctx := newTestContext(t, 1024)
	x := tensor.New("x", tensor.F32, 128, 2, 1, 1)
	for i := range x.Data {
		x.Data[i] = 3.25
	}
	out := mustRun(t, ctx, KindNorm, x, Params{Eps: 1e-5})
	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d]=%v want 0", i, v)
		}
	}
}

func TestNormTwiceIsNearIdentity(t *testing.T) {
	t.Parallel()
	ctx := newTestContext(t, 1024)
	x := randomTensor(7, 256, 4, 1, 1)
	once := mustRun(t, ctx, KindNorm, x, Params{Eps: 1e-6})
	twice := mustRun(t, ctx, KindNorm, tensor.FromData("once", once, 256, 4, 1, 1), Params{Eps: 1e-6})
	for i := range once {
		if !within(float64(twice[i]), float64(once[i]), 1e-3) {
			t.Fatalf("element %d: %v after second pass, %v after first", i, twice[i], once[i])
		}
	}
}

func TestRMSNormUnitMeanSquare(t *testing.T) {
	t.Parallel()

	for _, ncols := range []int64{32, 4096} {
		ctx := newTestContext(t, 1024)
		x := randomTensor(11, ncols, 2, 3, 1)
		out := mustRun(t, ctx, KindRMSNorm, x, Params{Eps: 1e-6})
		for r := range int(x.NRows()) {
			_, _, ms := rowStats(out[r*int(ncols) : (r+1)*int(ncols)])
			if !within(ms, 1, 1e-3) {
				t.Fatalf("ncols=%d row %d: mean square %v", ncols, r, ms)
			}
		}
	}
}

func TestL2NormConcreteRow(t *testing.T) {
	t.Parallel()
	ctx := newTestContext(t, 1024)
	x := tensor.New("x", tensor.F32, device.WarpSize, 1, 1, 1)
	x.Data[0], x.Data[1] = 3, 4
	out := mustRun(t, ctx, KindL2Norm, x, Params{Eps: 0})
	if !within(float64(out[0]), 0.6, 1e-6) || !within(float64(out[1]), 0.8, 1e-6) {
		t.Fatalf("got %v,%v want 0.6,0.8", out[0], out[1])
	}
	for i := 2; i < len(out); i++ {
		if out[i] != 0 {
			t.Fatalf("padding element %d: %v", i, out[i])
		}
	}
}

func TestL2NormUnitNormAndEpsFloor(t *testing.T) {
	t.Parallel()

	for _, ncols := range []int64{96, 2048} {
		ctx := newTestContext(t, 1024)
		x := randomTensor(3, ncols, 2, 2, 2)
		// The last row is tiny: its squared norm sits below eps².
		last := x.Data[len(x.Data)-int(ncols):]
		for i := range last {
			last[i] = 1e-6
		}
		const eps = 1e-2
		out := mustRun(t, ctx, KindL2Norm, x, Params{Eps: eps})

		nrows := int(x.NRows())
		for r := range nrows - 1 {
			_, _, ms := rowStats(out[r*int(ncols) : (r+1)*int(ncols)])
			if norm := math.Sqrt(ms * float64(ncols)); !within(norm, 1, 1e-4) {
				t.Fatalf("ncols=%d row %d: norm %v", ncols, r, norm)
			}
		}
		for i, v := range out[(nrows-1)*int(ncols):] {
			if !within(float64(v), 1e-6/eps, 1e-9) {
				t.Fatalf("ncols=%d tiny row element %d: got %v want %v", ncols, i, v, 1e-6/eps)
			}
		}
	}
}

func TestGroupNormSingleGroupMatchesFlatNorm(t *testing.T) {
	t.Parallel()
	ctx := newTestContext(t, 1024)

	x := randomTensor(5, 16, 8, 6, 1) // 768 elements, single-warp path
	grouped := mustRun(t, ctx, KindGroupNorm, x, Params{Eps: 1e-5, NumGroups: 1})
	flat := mustRun(t, ctx, KindNorm, tensor.FromData("flat", x.Data, 768, 1, 1, 1), Params{Eps: 1e-5})
	for i := range flat {
		if !within(float64(grouped[i]), float64(flat[i]), 1e-4) {
			t.Fatalf("element %d: group_norm %v norm %v", i, grouped[i], flat[i])
		}
	}
}

func TestGroupNormMatchesReference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ne     [4]int64
		groups int
	}{
		{"even split", [4]int64{8, 4, 8, 1}, 4},
		{"short last group", [4]int64{8, 4, 5, 1}, 2},
		{"more groups than channels fit", [4]int64{4, 4, 5, 2}, 4},
		{"multi-warp groups", [4]int64{32, 16, 8, 2}, 2},
	}
	for _, tc := range tests {
		ctx := newTestContext(t, 1024)
		x := randomTensor(9, tc.ne[0], tc.ne[1], tc.ne[2], tc.ne[3])
		p := Params{Eps: 1e-5, NumGroups: tc.groups}
		got := mustRun(t, ctx, KindGroupNorm, x, p)
		want := Reference(KindGroupNorm, x, p)
		for i := range want {
			if !within(float64(got[i]), float64(want[i]), 2e-4) {
				t.Fatalf("%s: element %d got %v want %v", tc.name, i, got[i], want[i])
			}
		}
	}
}

func TestGroupNormShortLastGroup(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t, 1024)
	// Three channels in two groups: group_size is 2 and the last group holds
	// only the 10. Both groups divide by 2.
	x := tensor.FromData("x", []float32{1, 2, 10}, 1, 1, 3, 1)
	p := Params{Eps: 0, NumGroups: 2}
	got := mustRun(t, ctx, KindGroupNorm, x, p)
	want := []float64{-1, 1, math.Sqrt2}
	for i := range want {
		if !within(float64(got[i]), want[i], 1e-5) {
			t.Fatalf("element %d: got %v want %v", i, got[i], want[i])
		}
	}
	ref := Reference(KindGroupNorm, x, p)
	for i := range want {
		if !within(float64(ref[i]), want[i], 1e-6) {
			t.Fatalf("reference element %d: got %v want %v", i, ref[i], want[i])
		}
	}
}

func TestKernelsMatchReference(t *testing.T) {
	t.Parallel()

	shapes := [][4]int64{
		{32, 1, 1, 1},
		{160, 5, 3, 2},
		{1024, 2, 2, 1},
		{3072, 3, 1, 1},
	}
	for _, kind := range []Kind{KindNorm, KindRMSNorm, KindL2Norm} {
		for _, ne := range shapes {
			ctx := newTestContext(t, 1024)
			x := randomTensor(uint64(ne[0]), ne[0], ne[1], ne[2], ne[3])
			p := Params{Eps: 1e-5}
			got := mustRun(t, ctx, kind, x, p)
			want := Reference(kind, x, p)
			for i := range want {
				if !within(float64(got[i]), float64(want[i]), 5e-4) {
					t.Fatalf("%s %v: element %d got %v want %v", kind, ne, i, got[i], want[i])
				}
			}
		}
	}
}

func TestStridedInputMatchesPackedBitForBit(t *testing.T) {
	t.Parallel()

	for _, kind := range []Kind{KindNorm, KindRMSNorm, KindL2Norm} {
		for _, ncols := range []int64{64, 2048} {
			ctx := newTestContext(t, 1024)

			base := randomTensor(21, ncols, 3, 4, 2)
			permuted := base.Permute([tensor.MaxDims]int{0, 2, 1, 3}) // rows <-> channels
			padded := tensor.NewPadded("padded", 32, ncols, 3, 4, 2)
			padded.Fill(base.At)

			p := Params{Eps: 1e-5}
			for _, strided := range []*tensor.Tensor{permuted, padded} {
				packed := strided.Contiguous("packed")
				got := mustRun(t, ctx, kind, strided, p)
				want := mustRun(t, ctx, kind, packed, p)
				for i := range want {
					if math.Float32bits(got[i]) != math.Float32bits(want[i]) {
						t.Fatalf("%s ncols=%d %s: element %d strided %v packed %v", kind, ncols, strided.Name, i, got[i], want[i])
					}
				}
			}
		}
	}
}

func TestSmallDeviceUsesFullWorkGroup(t *testing.T) {
	t.Parallel()
	// A 1024-lane limit with 4096 columns makes every lane stride four times.
	ctx := newTestContext(t, device.WarpSize*device.WarpSize)
	x := randomTensor(33, 4096, 2, 1, 1)
	got := mustRun(t, ctx, KindNorm, x, Params{Eps: 1e-5})
	want := Reference(KindNorm, x, Params{Eps: 1e-5})
	for i := range want {
		if !within(float64(got[i]), float64(want[i]), 5e-4) {
			t.Fatalf("element %d got %v want %v", i, got[i], want[i])
		}
	}
}

func TestArcProfileWideWorkGroups(t *testing.T) {
	t.Parallel()

	caps, err := device.ProfileByName(device.ProfileArc)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	ctx := device.NewContext(0, caps, logger.Discard())
	t.Cleanup(func() { _ = ctx.Close() })

	// 2048-lane groups hold 64 warps, two scratch slots per lane in the
	// second stage.
	x := randomTensor(41, 4096, 2, 1, 1)
	for _, kind := range Kinds() {
		p := Params{Eps: 1e-5, NumGroups: 1}
		got := mustRun(t, ctx, kind, x, p)
		want := Reference(kind, x, p)
		for i := range want {
			if !within(float64(got[i]), float64(want[i]), 5e-4) {
				t.Fatalf("%s: element %d got %v want %v", kind, i, got[i], want[i])
			}
		}
	}
}

func TestSelectBlock(t *testing.T) {
	t.Parallel()
	caps := device.Capabilities{MaxWorkGroupSize: 2048}

	tests := []struct {
		n       int
		pairs   bool
		size    int
		scratch int
	}{
		{32, false, 32, 0},
		{1023, true, 32, 0},
		{1024, false, 2048, 64},
		{1024, true, 2048, 128},
		{65536, false, 2048, 64},
	}
	for _, tc := range tests {
		b := selectBlock(tc.n, caps, tc.pairs)
		if b.size != tc.size || b.scratchWords != tc.scratch {
			t.Errorf("selectBlock(%d,%v): got %+v want size=%d scratch=%d", tc.n, tc.pairs, b, tc.size, tc.scratch)
		}
	}
}

func TestAssertions(t *testing.T) {
	t.Parallel()
	ctx := newTestContext(t, 1024)

	t.Run("source type", func(t *testing.T) {
		x := tensor.New("x", tensor.F16, 32, 1, 1, 1)
		expectPanic(t, func() { OpNorm(ctx, Build(KindNorm, x, Params{})) })
	})
	t.Run("destination type", func(t *testing.T) {
		x := tensor.New("x", tensor.F32, 32, 1, 1, 1)
		dst := Build(KindRMSNorm, x, Params{})
		dst.Type = tensor.I32
		expectPanic(t, func() { OpRMSNorm(ctx, dst) })
	})
	t.Run("negative eps", func(t *testing.T) {
		x := tensor.New("x", tensor.F32, 32, 1, 1, 1)
		ae := expectPanic(t, func() { OpNorm(ctx, Build(KindNorm, x, Params{Eps: -1})) })
		if ae.Msg == "" {
			t.Fatal("expected assertion message")
		}
	})
	t.Run("innermost stride", func(t *testing.T) {
		x := tensor.New("x", tensor.F32, 32, 32, 1, 1).Permute([tensor.MaxDims]int{1, 0, 2, 3})
		expectPanic(t, func() { OpL2Norm(ctx, Build(KindL2Norm, x, Params{})) })
	})
	t.Run("ncols not warp multiple", func(t *testing.T) {
		x := tensor.New("x", tensor.F32, 48, 1, 1, 1)
		expectPanic(t, func() { OpRMSNorm(ctx, Build(KindRMSNorm, x, Params{})) })
	})
	t.Run("group norm needs groups", func(t *testing.T) {
		x := tensor.New("x", tensor.F32, 4, 4, 4, 1)
		expectPanic(t, func() { OpGroupNorm(ctx, Build(KindGroupNorm, x, Params{NumGroups: 0})) })
	})
	t.Run("device width", func(t *testing.T) {
		odd := newTestContext(t, 1536)
		x := tensor.New("x", tensor.F32, 1024, 1, 1, 1)
		expectPanic(t, func() { OpNorm(odd, Build(KindNorm, x, Params{})) })
	})
}

func TestRunReturnsAssertionError(t *testing.T) {
	t.Parallel()
	ctx := newTestContext(t, 1024)
	x := tensor.New("x", tensor.F32, 33, 1, 1, 1)
	_, err := Run(ctx, KindNorm, x, Params{Eps: 1e-5})
	var ae *AssertionError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AssertionError, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  Kind
		ok    bool
	}{
		{"norm", KindNorm, true},
		{"layer-norm", KindNorm, true},
		{"Group-Norm", KindGroupNorm, true},
		{"rms_norm", KindRMSNorm, true},
		{" l2_norm ", KindL2Norm, true},
		{"batch_norm", "", false},
	}
	for _, tc := range tests {
		got, err := ParseKind(tc.input)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("ParseKind(%q): got %q, %v", tc.input, got, err)
		}
	}
}

func BenchmarkNorm(b *testing.B)      { benchKind(b, KindNorm, 4096) }
func BenchmarkRMSNorm(b *testing.B)   { benchKind(b, KindRMSNorm, 4096) }
func BenchmarkL2Norm(b *testing.B)    { benchKind(b, KindL2Norm, 4096) }
func BenchmarkGroupNorm(b *testing.B) { benchKind(b, KindGroupNorm, 4096) }

func benchKind(b *testing.B, kind Kind, ncols int64) {
	ctx := newTestContext(b, 1024)
	x := randomTensor(1, ncols, 8, 1, 1)
	dst := Build(kind, x, Params{Eps: 1e-5, NumGroups: 4})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Compute(ctx, kind, dst)
		if err := ctx.Stream().Synchronize(); err != nil {
			b.Fatal(err)
		}
	}
}
