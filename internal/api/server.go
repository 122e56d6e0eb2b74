// Package api serves the normalization operations over HTTP.
package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/normkit/internal/device"
	"github.com/samcharles93/normkit/internal/logger"
	"github.com/samcharles93/normkit/internal/norm"
)

// Server runs requests on one device context. Requests are serialized so a
// queue failure is always reported to the request that caused it.
type Server struct {
	ctx         *device.Context
	log         logger.Logger
	maxElements int64
	mu          sync.Mutex
}

// NewServer creates a Server bound to ctx.
func NewServer(ctx *device.Context, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{ctx: ctx, log: log, maxElements: DefaultMaxElements}
}

// SetMaxElements changes the element cap applied to requests whose shape is
// larger than their data. Non-positive values restore the default.
func (s *Server) SetMaxElements(n int64) {
	if n <= 0 {
		n = DefaultMaxElements
	}
	s.maxElements = n
}

// Register mounts the routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/device", s.handleDevice)
	e.POST("/v1/norm/:op", s.handleNorm)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleDevice(c *echo.Context) error {
	dev := s.ctx.Device
	return c.JSON(http.StatusOK, DeviceResponse{
		Object:           "device",
		ID:               dev.ID,
		Name:             dev.Caps.Name,
		WarpSize:         device.WarpSize,
		MaxWorkGroupSize: dev.Caps.MaxWorkGroupSize,
		ComputeUnits:     dev.Caps.ComputeUnits,
		HostFeatures:     device.HostFeatures(),
	})
}

func (s *Server) handleNorm(c *echo.Context) error {
	kind, err := norm.ParseKind(c.Param("op"))
	if err != nil {
		return writeError(c, http.StatusNotFound, "not_found_error", err.Error(), "op")
	}
	req, err := decodeJSON[NormRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error(), "")
	}
	src, params, err := buildInput(kind, req, s.maxElements)
	if err != nil {
		return writeBadRequest(c, err.Error(), "")
	}

	start := time.Now()
	s.mu.Lock()
	dst, err := norm.Run(s.ctx, kind, src, params)
	s.mu.Unlock()
	elapsed := time.Since(start)
	if err != nil {
		var ae *norm.AssertionError
		if errors.As(err, &ae) {
			return writeBadRequest(c, ae.Msg, "")
		}
		s.log.Error("normalization failed", "op", kind, "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
	}
	if !allFinite(dst.Data) {
		return writeError(c, http.StatusUnprocessableEntity, "numeric_error", "output contains NaN or Inf; raise eps", "eps")
	}

	id := "norm_" + uuid.NewString()
	s.log.Debug("normalized", "id", id, "op", kind, "shape", src.Ne, "elapsed", elapsed)
	return c.JSON(http.StatusOK, NormResponse{
		ID:         id,
		Object:     "normalization",
		Op:         string(kind),
		Shape:      src.Ne,
		Output:     dst.Data,
		DurationUS: elapsed.Microseconds(),
	})
}
