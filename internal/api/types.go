package api

// NormRequest is the body of POST /v1/norm/:op.
type NormRequest struct {
	// Shape is ne0..ne3, innermost first. Missing trailing dimensions are 1.
	Shape []int64 `json:"shape"`
	// Strides are the row, channel and sample strides in elements. When
	// omitted the data is packed.
	Strides   []int64   `json:"strides,omitempty"`
	Data      []float32 `json:"data"`
	Eps       *float32  `json:"eps,omitempty"`
	NumGroups int       `json:"num_groups,omitempty"`
}

// NormResponse carries the packed output of one operation.
type NormResponse struct {
	ID         string    `json:"id"`
	Object     string    `json:"object"`
	Op         string    `json:"op"`
	Shape      [4]int64  `json:"shape"`
	Output     []float32 `json:"output"`
	DurationUS int64     `json:"duration_us"`
}

// DeviceResponse describes the device requests run on.
type DeviceResponse struct {
	Object           string   `json:"object"`
	ID               int      `json:"id"`
	Name             string   `json:"name"`
	WarpSize         int      `json:"warp_size"`
	MaxWorkGroupSize int      `json:"max_work_group_size"`
	ComputeUnits     int      `json:"compute_units"`
	HostFeatures     []string `json:"host_features"`
}

// ResponseError is the error payload.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
}
