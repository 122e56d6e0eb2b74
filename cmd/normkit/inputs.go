package main

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/samcharles93/normkit/internal/tensor"
)

// inputSpec describes how to materialize a source tensor.
type inputSpec struct {
	shape [tensor.MaxDims]int64
	// pad adds unused elements after every row of the base layout.
	pad int64
	// axes, when set, stores the data permuted so the logical view is
	// non-contiguous.
	axes  *[tensor.MaxDims]int
	input string
	seed  uint64
}

func parseShape(s string) ([tensor.MaxDims]int64, error) {
	shape := [tensor.MaxDims]int64{1, 1, 1, 1}
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) == 0 || len(parts) > tensor.MaxDims || parts[0] == "" {
		return shape, fmt.Errorf("invalid shape %q (expected 1 to 4 comma separated sizes)", s)
	}
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || n <= 0 {
			return shape, fmt.Errorf("invalid shape %q: dimension %d must be a positive integer", s, i)
		}
		shape[i] = n
	}
	return shape, nil
}

func parseAxes(s string) (*[tensor.MaxDims]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != tensor.MaxDims {
		return nil, fmt.Errorf("invalid permutation %q (expected 4 axes)", s)
	}
	var axes [tensor.MaxDims]int
	var seen [tensor.MaxDims]bool
	for i, p := range parts {
		a, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || a < 0 || a >= tensor.MaxDims || seen[a] {
			return nil, fmt.Errorf("invalid permutation %q", s)
		}
		seen[a] = true
		axes[i] = a
	}
	if axes[0] != 0 {
		return nil, fmt.Errorf("invalid permutation %q: axis 0 must stay innermost", s)
	}
	return &axes, nil
}

// layout allocates a zeroed tensor with the logical shape of spec and the
// storage layout its pad and axes ask for.
func layout(spec inputSpec) *tensor.Tensor {
	ne := spec.shape
	if spec.axes == nil {
		if spec.pad > 0 {
			return tensor.NewPadded("input", spec.pad, ne[0], ne[1], ne[2], ne[3])
		}
		return tensor.New("input", tensor.F32, ne[0], ne[1], ne[2], ne[3])
	}
	// Permute moves base axis i to axes[i]; pick the base shape so the view
	// ends up with the requested one.
	var base [tensor.MaxDims]int64
	for i, a := range spec.axes {
		base[i] = ne[a]
	}
	var t *tensor.Tensor
	if spec.pad > 0 {
		t = tensor.NewPadded("input", spec.pad, base[0], base[1], base[2], base[3])
	} else {
		t = tensor.New("input", tensor.F32, base[0], base[1], base[2], base[3])
	}
	return t.Permute(*spec.axes)
}

// makeInput fills the layout of spec from the input file, or with seeded
// random values when no file is given.
func makeInput(spec inputSpec) (*tensor.Tensor, error) {
	t := layout(spec)
	if spec.input != "" {
		ne := spec.shape
		src, err := tensor.ReadTensor(spec.input, "file", ne[0], ne[1], ne[2], ne[3])
		if err != nil {
			return nil, err
		}
		t.Fill(src.At)
		return t, nil
	}

	rng := rand.New(rand.NewPCG(spec.seed, spec.seed^0x9e3779b97f4a7c15))
	t.Fill(func(_, _, _, _ int64) float32 {
		// Offset and scale so normalization has something to remove.
		return 3 + 4*(rng.Float32()*2-1)
	})
	return t, nil
}
