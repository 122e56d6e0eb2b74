package api

import (
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/normkit/internal/device"
	"github.com/samcharles93/normkit/internal/norm"
	"github.com/samcharles93/normkit/internal/tensor"
)

const defaultEps = 1e-5

// DefaultMaxElements caps the declared element count of a request whose data
// is smaller than the shape (zero or overlapping strides).
const DefaultMaxElements = 1 << 24

func writeBadRequest(c *echo.Context, msg, param string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, param)
}

func writeError(c *echo.Context, status int, errType, msg, param string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Param:   param,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// buildInput validates req for kind and wraps its data as a tensor. Everything
// the kernels would assert on is rejected here.
// The destination is always packed, so the element count is capped at
// max(len(data), maxElements).
func buildInput(kind norm.Kind, req NormRequest, maxElements int64) (*tensor.Tensor, norm.Params, error) {
	var p norm.Params
	if len(req.Shape) == 0 || len(req.Shape) > tensor.MaxDims {
		return nil, p, newInvalidRequest("shape must have 1 to 4 dimensions")
	}
	ne := [tensor.MaxDims]int64{1, 1, 1, 1}
	for i, n := range req.Shape {
		if n <= 0 {
			return nil, p, newInvalidRequest(fmt.Sprintf("shape[%d] must be positive", i))
		}
		ne[i] = n
	}
	limit := max(int64(len(req.Data)), maxElements)
	total := int64(1)
	for _, n := range ne {
		// Checked per dimension so the product cannot overflow.
		if n > limit/total {
			return nil, p, newInvalidRequest(fmt.Sprintf("shape %v exceeds the limit of %d elements", req.Shape, limit))
		}
		total *= n
	}

	p.Eps = defaultEps
	if req.Eps != nil {
		p.Eps = *req.Eps
	}
	if !(p.Eps >= 0) || math.IsInf(float64(p.Eps), 0) {
		return nil, p, newInvalidRequest("eps must be a finite non-negative number")
	}

	if kind == norm.KindGroupNorm {
		if req.NumGroups <= 0 {
			return nil, p, newInvalidRequest("num_groups must be positive for group_norm")
		}
		p.NumGroups = req.NumGroups
	} else if ne[0]%device.WarpSize != 0 {
		return nil, p, newInvalidRequest(fmt.Sprintf("shape[0] must be a multiple of %d for %s", device.WarpSize, kind))
	}

	packed := [3]int64{ne[0], ne[0] * ne[1], ne[0] * ne[1] * ne[2]}
	strides := packed
	if len(req.Strides) > 0 {
		if len(req.Strides) != 3 {
			return nil, p, newInvalidRequest("strides must list the row, channel and sample strides")
		}
		for i, s := range req.Strides {
			if s < 0 {
				return nil, p, newInvalidRequest(fmt.Sprintf("strides[%d] must be non-negative", i))
			}
			if ne[i+1] > 1 && s > int64(len(req.Data)) {
				return nil, p, newInvalidRequest(fmt.Sprintf("strides[%d] reaches past the data", i))
			}
			strides[i] = s
		}
		if kind == norm.KindGroupNorm && strides != packed {
			return nil, p, newInvalidRequest("group_norm requires packed data")
		}
	}

	last := (ne[1]-1)*strides[0] + (ne[2]-1)*strides[1] + (ne[3]-1)*strides[2] + ne[0]
	if int64(len(req.Data)) < last {
		return nil, p, newInvalidRequest(fmt.Sprintf("data holds %d elements, shape and strides need %d", len(req.Data), last))
	}
	if strides == packed && int64(len(req.Data)) != last {
		return nil, p, newInvalidRequest(fmt.Sprintf("data holds %d elements, shape needs %d", len(req.Data), last))
	}

	t := &tensor.Tensor{
		Name: "input",
		Type: tensor.F32,
		Ne:   ne,
		Nb:   [tensor.MaxDims]int64{4, strides[0] * 4, strides[1] * 4, strides[2] * 4},
		Data: req.Data,
	}
	return t, p, nil
}

func allFinite(xs []float32) bool {
	for _, v := range xs {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}
