package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/normkit/internal/logger"
	"github.com/samcharles93/normkit/internal/norm"
	"github.com/samcharles93/normkit/internal/tensor"
)

func runCmd() *cli.Command {
	var (
		op        string
		shape     string
		eps       float64
		numGroups int64
		input     string
		output    string
		permute   string
		pad       int64
		seed      int64
		rows      int64
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Run one normalization over a generated or .f32 input",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "op",
				Usage:       "operation (norm, group_norm, rms_norm, l2_norm)",
				Value:       string(norm.KindNorm),
				Destination: &op,
			},
			&cli.StringFlag{
				Name:        "shape",
				Aliases:     []string{"s"},
				Usage:       "tensor shape ne0,ne1,ne2,ne3 (innermost first)",
				Value:       "4096,4",
				Destination: &shape,
			},
			&cli.Float64Flag{
				Name:        "eps",
				Usage:       "epsilon",
				Value:       1e-5,
				Destination: &eps,
			},
			&cli.Int64Flag{
				Name:        "groups",
				Aliases:     []string{"num-groups"},
				Usage:       "number of groups for group_norm",
				Value:       32,
				Destination: &numGroups,
			},
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "read the input from a raw little-endian .f32 file",
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "write the packed output to a raw .f32 file",
				Destination: &output,
			},
			&cli.StringFlag{
				Name:        "permute",
				Usage:       "store the input permuted by these 4 axes (strided input)",
				Destination: &permute,
			},
			&cli.Int64Flag{
				Name:        "pad",
				Usage:       "unused elements after every stored row (strided input)",
				Destination: &pad,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "random seed for generated input",
				Value:       1,
				Destination: &seed,
			},
			&cli.Int64Flag{
				Name:        "rows",
				Usage:       "number of output rows to summarize",
				Value:       4,
				Destination: &rows,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			kind, err := norm.ParseKind(op)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			ne, err := parseShape(shape)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			axes, err := parseAxes(permute)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if pad < 0 {
				return cli.Exit("error: --pad must not be negative", 1)
			}
			src, err := makeInput(inputSpec{shape: ne, pad: pad, axes: axes, input: input, seed: uint64(seed)})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load input: %v", err), 1)
			}

			devCtx, err := openDevice(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = devCtx.Close() }()

			log.Info("running", "op", kind, "input", src.String(), "device", devCtx.Device.Caps.Name)
			start := time.Now()
			dst, err := norm.Run(devCtx, kind, src, norm.Params{Eps: float32(eps), NumGroups: int(numGroups)})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %s: %v", kind, err), 1)
			}
			elapsed := time.Since(start)

			printRowStats(dst, int(rows))
			fmt.Printf("%s %v in %s\n", kind, dst.Ne, elapsed.Round(time.Microsecond))

			if output != "" {
				if err := tensor.WriteFile(output, dst.Data); err != nil {
					return cli.Exit(fmt.Sprintf("error: write output: %v", err), 1)
				}
				log.Info("wrote output", "path", output, "elements", len(dst.Data))
			}
			return nil
		},
	}
}

type rowStats struct {
	mean, std, rms, l2 float64
}

func statsOf(row []float32) rowStats {
	var sum, sumsq float64
	for _, v := range row {
		sum += float64(v)
		sumsq += float64(v) * float64(v)
	}
	n := float64(len(row))
	mean := sum / n
	return rowStats{
		mean: mean,
		std:  math.Sqrt(math.Max(sumsq/n-mean*mean, 0)),
		rms:  math.Sqrt(sumsq / n),
		l2:   math.Sqrt(sumsq),
	}
}

func printRowStats(dst *tensor.Tensor, limit int) {
	ncols := int(dst.Ne[0])
	nrows := int(dst.NRows())
	if limit > nrows {
		limit = nrows
	}
	fmt.Printf("%-6s %12s %12s %12s %12s\n", "row", "mean", "std", "rms", "l2")
	for r := range limit {
		s := statsOf(dst.Data[r*ncols : (r+1)*ncols])
		fmt.Printf("%-6d %12.6f %12.6f %12.6f %12.6f\n", r, s.mean, s.std, s.rms, s.l2)
	}
	if nrows > limit {
		fmt.Printf("... %d more rows\n", nrows-limit)
	}
}
