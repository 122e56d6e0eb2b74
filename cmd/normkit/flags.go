package main

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/normkit/internal/device"
	"github.com/samcharles93/normkit/internal/logger"
)

var (
	deviceProfile    string
	maxWorkGroupSize int64
	computeUnits     int64
	logLevel         string
	logFormat        string
	debug            bool
)

func deviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "device",
			Aliases:     []string{"d"},
			Usage:       "device profile (cpu, arc, cuda, small)",
			Value:       device.ProfileCPU,
			Destination: &deviceProfile,
		},
		&cli.Int64Flag{
			Name:        "max-work-group-size",
			Usage:       "override the profile's maximum work-group size (multiple of 1024)",
			Destination: &maxWorkGroupSize,
		},
		&cli.Int64Flag{
			Name:        "compute-units",
			Usage:       "override the number of concurrently executing work-groups",
			Destination: &computeUnits,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// deviceCaps resolves the selected profile with flag overrides applied.
func deviceCaps() (device.Capabilities, error) {
	caps, err := device.ProfileByName(deviceProfile)
	if err != nil {
		return device.Capabilities{}, err
	}
	if maxWorkGroupSize > 0 {
		caps.MaxWorkGroupSize = int(maxWorkGroupSize)
	}
	if computeUnits > 0 {
		caps.ComputeUnits = int(computeUnits)
	}
	if w := device.WarpSize * device.WarpSize; caps.MaxWorkGroupSize%w != 0 {
		return device.Capabilities{}, fmt.Errorf("max work-group size %d is not a multiple of %d", caps.MaxWorkGroupSize, w)
	}
	return caps, nil
}

func openDevice(log logger.Logger) (*device.Context, error) {
	caps, err := deviceCaps()
	if err != nil {
		return nil, err
	}
	return device.NewContext(0, caps, log), nil
}
