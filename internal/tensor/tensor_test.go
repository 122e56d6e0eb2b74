package tensor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewPackedStrides(t *testing.T) {
	t.Parallel()
	x := New("x", F32, 8, 3, 2, 1)
	want := [MaxDims]int64{4, 32, 96, 192}
	if x.Nb != want {
		t.Fatalf("strides: got %v want %v", x.Nb, want)
	}
	if !x.IsContiguous() {
		t.Fatal("expected packed tensor to be contiguous")
	}
	if x.NElements() != 48 || x.NRows() != 6 {
		t.Fatalf("counts: elements=%d rows=%d", x.NElements(), x.NRows())
	}
	h := New("h", F16, 8, 1, 1, 1)
	if h.Nb[0] != 2 || h.Nb[1] != 16 {
		t.Fatalf("f16 strides: %v", h.Nb)
	}
}

func TestFromDataLengthMismatchPanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on length mismatch")
		}
	}()
	FromData("x", make([]float32, 5), 2, 2, 1, 1)
}

func TestPermuteSharesStorage(t *testing.T) {
	t.Parallel()
	x := New("x", F32, 4, 3, 2, 1)
	x.Fill(func(i0, i1, i2, _ int64) float32 { return float32(100*i2 + 10*i1 + i0) })

	// swap channel and row axes
	p := x.Permute([MaxDims]int{0, 2, 1, 3})
	if p.Ne != [MaxDims]int64{4, 2, 3, 1} {
		t.Fatalf("permuted shape: %v", p.Ne)
	}
	if p.IsContiguous() {
		t.Fatal("permuted view should not be contiguous")
	}
	if got := p.At(1, 1, 2, 0); got != 121 {
		t.Fatalf("permuted element: got %v want 121", got)
	}

	c := p.Contiguous("c")
	if !c.IsContiguous() {
		t.Fatal("copy should be contiguous")
	}
	for i2 := range int64(3) {
		for i1 := range int64(2) {
			for i0 := range int64(4) {
				if c.At(i0, i1, i2, 0) != p.At(i0, i1, i2, 0) {
					t.Fatalf("copy differs at %d,%d,%d", i0, i1, i2)
				}
			}
		}
	}
}

func TestPermuteRejectsDuplicateAxes(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New("x", F32, 1, 1, 1, 1).Permute([MaxDims]int{0, 0, 1, 2})
}

func TestPaddedTensor(t *testing.T) {
	t.Parallel()
	x := NewPadded("x", 3, 5, 2, 2, 1)
	if x.Nb[1] != 32 || x.Nb[2] != 64 {
		t.Fatalf("padded strides: %v", x.Nb)
	}
	x.Fill(func(i0, i1, i2, _ int64) float32 { return float32(i0 + 5*i1 + 10*i2) })
	packed := x.Packed()
	for i, v := range packed {
		if v != float32(i) {
			t.Fatalf("packed[%d]=%v", i, v)
		}
	}
}

func TestOpParams(t *testing.T) {
	t.Parallel()
	x := New("x", F32, 1, 1, 1, 1)
	x.SetOpParamI32(0, 32)
	x.SetOpParamF32(1, 1e-5)
	if x.OpParamI32(0) != 32 {
		t.Fatalf("int slot: %d", x.OpParamI32(0))
	}
	if x.OpParamF32(1) != 1e-5 {
		t.Fatalf("float slot: %v", x.OpParamF32(1))
	}
}

func TestViewAddressing(t *testing.T) {
	t.Parallel()
	data := make([]float32, 64)
	for i := range data {
		data[i] = float32(i)
	}
	v := View{Data: data, Cols: 2, Rows: 2, Channels: 2, Samples: 2, StrideRow: 4, StrideChannel: 8, StrideSample: 32}
	if got := v.ElementAt(1, 1, 1, 1); got != 45 {
		t.Fatalf("ElementAt: got %v want 45", got)
	}
	row := v.Row(0, 1, 0)
	if len(row) != 2 || row[0] != 8 || row[1] != 9 {
		t.Fatalf("Row: %v", row)
	}

	p := PackedView(data, 2, 2, 2, 2)
	if p.RowOffset(1, 1, 1) != 14 {
		t.Fatalf("packed offset: %d", p.RowOffset(1, 1, 1))
	}
	for i := range p.NRows() {
		s, c, r := p.SplitRow(i)
		if p.RowOffset(s, c, r) != i*2 {
			t.Fatalf("SplitRow(%d)=%d,%d,%d", i, s, c, r)
		}
	}
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "x.f32")
	want := []float32{1, -2.5, 3e-7, 0}
	if err := WriteFile(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	x, err := ReadTensor(path, "x", 2, 2, 1, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i, v := range want {
		if x.Data[i] != v {
			t.Fatalf("element %d: got %v want %v", i, x.Data[i], v)
		}
	}

	if _, err := ReadTensor(path, "x", 3, 1, 1, 1); !errors.Is(err, ErrBadFile) {
		t.Fatalf("expected ErrBadFile for shape mismatch, got %v", err)
	}
	odd := filepath.Join(dir, "odd.f32")
	if err := os.WriteFile(odd, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(odd); !errors.Is(err, ErrBadFile) {
		t.Fatalf("expected ErrBadFile for truncated file, got %v", err)
	}
}
