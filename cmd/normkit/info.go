package main

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/normkit/internal/device"
)

func infoCmd() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the selected device profile and host CPU features",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			caps, err := deviceCaps()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			fmt.Printf("device:              %s\n", caps.Name)
			fmt.Printf("warp size:           %d\n", device.WarpSize)
			fmt.Printf("max work-group size: %d\n", caps.MaxWorkGroupSize)
			fmt.Printf("compute units:       %d\n", caps.ComputeUnits)
			fmt.Printf("profiles:            %s\n", strings.Join(device.Profiles(), ", "))
			fmt.Printf("host:                %s/%s, GOMAXPROCS=%d\n", runtime.GOOS, runtime.GOARCH, runtime.GOMAXPROCS(0))
			features := device.HostFeatures()
			if len(features) == 0 {
				features = []string{"none detected"}
			}
			fmt.Printf("host features:       %s\n", strings.Join(features, " "))
			return nil
		},
	}
}
