package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/normkit/internal/device"
	"github.com/samcharles93/normkit/internal/logger"
	"github.com/samcharles93/normkit/internal/norm"
	"github.com/samcharles93/normkit/internal/version"
)

type benchResult struct {
	Op       norm.Kind `json:"op"`
	Shape    [4]int64  `json:"shape"`
	Runs     int       `json:"runs"`
	MeanUS   float64   `json:"mean_us"`
	MinUS    float64   `json:"min_us"`
	MaxUS    float64   `json:"max_us"`
	GBPerSec float64   `json:"gb_per_sec"`
}

type benchReport struct {
	RunID        string              `json:"run_id"`
	Version      string              `json:"version"`
	Timestamp    time.Time           `json:"timestamp"`
	Device       device.Capabilities `json:"device"`
	GOMAXPROCS   int                 `json:"gomaxprocs"`
	HostFeatures []string            `json:"host_features"`
	Results      []benchResult       `json:"results"`
}

func benchCmd() *cli.Command {
	var (
		op         string
		shape      string
		numGroups  int64
		warmupRuns int64
		benchRuns  int64
		asJSON     bool
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Time the operations on the selected device",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "op",
				Usage:       "operation to time (default: all)",
				Destination: &op,
			},
			&cli.StringFlag{
				Name:        "shape",
				Aliases:     []string{"s"},
				Usage:       "tensor shape ne0,ne1,ne2,ne3",
				Value:       "4096,32",
				Destination: &shape,
			},
			&cli.Int64Flag{
				Name:        "groups",
				Usage:       "number of groups for group_norm",
				Value:       8,
				Destination: &numGroups,
			},
			&cli.Int64Flag{
				Name:        "warmup",
				Usage:       "number of warmup runs",
				Value:       2,
				Destination: &warmupRuns,
			},
			&cli.Int64Flag{
				Name:        "runs",
				Usage:       "number of timed runs",
				Value:       10,
				Destination: &benchRuns,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print a JSON report",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			ne, err := parseShape(shape)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if benchRuns < 1 {
				return cli.Exit("error: --runs must be at least 1", 1)
			}
			kinds := norm.Kinds()
			if op != "" {
				kind, err := norm.ParseKind(op)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				kinds = []norm.Kind{kind}
			}

			devCtx, err := openDevice(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = devCtx.Close() }()

			src, err := makeInput(inputSpec{shape: ne, seed: 1})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			report := benchReport{
				RunID:        uuid.NewString(),
				Version:      version.String(),
				Timestamp:    time.Now().UTC(),
				Device:       devCtx.Device.Caps,
				GOMAXPROCS:   runtime.GOMAXPROCS(0),
				HostFeatures: device.HostFeatures(),
			}
			p := norm.Params{Eps: 1e-5, NumGroups: int(numGroups)}
			for _, kind := range kinds {
				log.Info("benchmarking", "op", kind, "shape", ne, "runs", benchRuns)
				for range warmupRuns {
					if _, err := norm.Run(devCtx, kind, src, p); err != nil {
						return cli.Exit(fmt.Sprintf("error: %s: %v", kind, err), 1)
					}
				}
				durations := make([]time.Duration, 0, benchRuns)
				for range benchRuns {
					start := time.Now()
					if _, err := norm.Run(devCtx, kind, src, p); err != nil {
						return cli.Exit(fmt.Sprintf("error: %s: %v", kind, err), 1)
					}
					durations = append(durations, time.Since(start))
				}
				report.Results = append(report.Results, summarize(kind, ne, durations))
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return cli.Exit(fmt.Sprintf("error: encode report: %v", err), 1)
				}
				return nil
			}
			printBenchTable(report)
			return nil
		},
	}
}

func summarize(kind norm.Kind, ne [4]int64, durations []time.Duration) benchResult {
	res := benchResult{Op: kind, Shape: ne, Runs: len(durations)}
	if len(durations) == 0 {
		return res
	}
	var total time.Duration
	minD, maxD := durations[0], durations[0]
	for _, d := range durations {
		total += d
		minD = min(minD, d)
		maxD = max(maxD, d)
	}
	mean := total / time.Duration(len(durations))
	res.MeanUS = float64(mean.Nanoseconds()) / 1e3
	res.MinUS = float64(minD.Nanoseconds()) / 1e3
	res.MaxUS = float64(maxD.Nanoseconds()) / 1e3
	if mean > 0 {
		// One read and one write of every f32 element.
		bytes := float64(2 * 4 * ne[0] * ne[1] * ne[2] * ne[3])
		res.GBPerSec = bytes / mean.Seconds() / 1e9
	}
	return res
}

func printBenchTable(report benchReport) {
	fmt.Printf("run %s  device %s (max work-group %d, %d units)\n",
		report.RunID, report.Device.Name, report.Device.MaxWorkGroupSize, report.Device.ComputeUnits)
	fmt.Printf("%-11s %-20s %6s %12s %12s %12s %10s\n", "op", "shape", "runs", "mean_us", "min_us", "max_us", "GB/s")
	for _, r := range report.Results {
		fmt.Printf("%-11s %-20s %6d %12.1f %12.1f %12.1f %10.3f\n",
			r.Op, fmt.Sprint(r.Shape), r.Runs, r.MeanUS, r.MinUS, r.MaxUS, r.GBPerSec)
	}
}
