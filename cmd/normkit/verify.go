package main

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/normkit/internal/device"
	"github.com/samcharles93/normkit/internal/logger"
	"github.com/samcharles93/normkit/internal/norm"
	"github.com/samcharles93/normkit/internal/tensor"
)

type verifyCase struct {
	Op        norm.Kind             `json:"op"`
	Shape     [tensor.MaxDims]int64 `json:"shape"`
	Pad       int64                 `json:"pad,omitempty"`
	Axes      *[tensor.MaxDims]int  `json:"axes,omitempty"`
	NumGroups int                   `json:"num_groups,omitempty"`
	Eps       float32               `json:"eps"`
}

type verifyResult struct {
	verifyCase
	Strides   [tensor.MaxDims]int64 `json:"strides"`
	MaxAbsErr float64               `json:"max_abs_err"`
	OK        bool                  `json:"ok"`
	Error     string                `json:"error,omitempty"`
}

type verifyReport struct {
	RunID   string         `json:"run_id"`
	Device  string         `json:"device"`
	Tol     float64        `json:"tolerance"`
	Passed  int            `json:"passed"`
	Failed  int            `json:"failed"`
	Results []verifyResult `json:"results"`
}

// defaultVerifyCases covers the single-warp and multi-warp paths of every
// operation, plus padded and permuted inputs for the row kernels.
func defaultVerifyCases() []verifyCase {
	swap12 := [tensor.MaxDims]int{0, 2, 1, 3}
	swap13 := [tensor.MaxDims]int{0, 3, 2, 1}
	rowShapes := [][tensor.MaxDims]int64{
		{32, 1, 1, 1},
		{96, 3, 2, 1},
		{992, 2, 1, 1},
		{1024, 2, 1, 1},
		{4096, 3, 2, 2},
	}

	var cases []verifyCase
	for _, kind := range []norm.Kind{norm.KindNorm, norm.KindRMSNorm, norm.KindL2Norm} {
		for _, ne := range rowShapes {
			cases = append(cases, verifyCase{Op: kind, Shape: ne, Eps: 1e-5})
		}
		cases = append(cases,
			verifyCase{Op: kind, Shape: [tensor.MaxDims]int64{64, 4, 3, 2}, Pad: 32, Eps: 1e-5},
			verifyCase{Op: kind, Shape: [tensor.MaxDims]int64{64, 4, 3, 2}, Axes: &swap12, Eps: 1e-5},
			verifyCase{Op: kind, Shape: [tensor.MaxDims]int64{2048, 3, 1, 2}, Axes: &swap13, Pad: 64, Eps: 1e-5},
		)
	}
	cases = append(cases,
		verifyCase{Op: norm.KindGroupNorm, Shape: [tensor.MaxDims]int64{3, 3, 3, 1}, NumGroups: 3, Eps: 1e-5},
		verifyCase{Op: norm.KindGroupNorm, Shape: [tensor.MaxDims]int64{7, 5, 6, 2}, NumGroups: 4, Eps: 1e-5},
		verifyCase{Op: norm.KindGroupNorm, Shape: [tensor.MaxDims]int64{16, 16, 10, 1}, NumGroups: 3, Eps: 1e-5},
		verifyCase{Op: norm.KindGroupNorm, Shape: [tensor.MaxDims]int64{64, 64, 32, 1}, NumGroups: 8, Eps: 1e-6},
	)
	return cases
}

// runVerify executes every case and compares it against the host reference.
func runVerify(devCtx *device.Context, cases []verifyCase, tol float64, seed uint64) []verifyResult {
	results := make([]verifyResult, 0, len(cases))
	for i, vc := range cases {
		res := verifyResult{verifyCase: vc}
		src, err := makeInput(inputSpec{shape: vc.Shape, pad: vc.Pad, axes: vc.Axes, seed: seed + uint64(i)})
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}
		res.Strides = src.Nb

		p := norm.Params{Eps: vc.Eps, NumGroups: vc.NumGroups}
		dst, err := norm.Run(devCtx, vc.Op, src, p)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			continue
		}
		want := norm.Reference(vc.Op, src, p)
		res.MaxAbsErr = maxAbsErr(dst.Data, want)
		res.OK = res.MaxAbsErr <= tol
		results = append(results, res)
	}
	return results
}

func maxAbsErr(got, want []float32) float64 {
	if len(got) != len(want) {
		return math.Inf(1)
	}
	var worst float64
	for i := range got {
		d := math.Abs(float64(got[i]) - float64(want[i]))
		if math.IsNaN(d) {
			return math.Inf(1)
		}
		worst = max(worst, d)
	}
	return worst
}

func verifyCmd() *cli.Command {
	var (
		tol     float64
		seed    int64
		asJSON  bool
		opsOnly string
	)

	return &cli.Command{
		Name:  "verify",
		Usage: "Check every operation against the host reference",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:        "tol",
				Usage:       "maximum absolute error",
				Value:       1e-4,
				Destination: &tol,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "random seed for generated inputs",
				Value:       1,
				Destination: &seed,
			},
			&cli.StringFlag{
				Name:        "op",
				Usage:       "only verify this operation",
				Destination: &opsOnly,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print a JSON report",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			cases := defaultVerifyCases()
			if opsOnly != "" {
				kind, err := norm.ParseKind(opsOnly)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				filtered := cases[:0]
				for _, c := range cases {
					if c.Op == kind {
						filtered = append(filtered, c)
					}
				}
				cases = filtered
			}

			devCtx, err := openDevice(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = devCtx.Close() }()

			report := verifyReport{
				RunID:   uuid.NewString(),
				Device:  devCtx.Device.Caps.Name,
				Tol:     tol,
				Results: runVerify(devCtx, cases, tol, uint64(seed)),
			}
			for _, r := range report.Results {
				if r.OK {
					report.Passed++
				} else {
					report.Failed++
				}
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return cli.Exit(fmt.Sprintf("error: encode report: %v", err), 1)
				}
			} else {
				printVerifyTable(report)
			}

			if report.Failed > 0 {
				return cli.Exit(fmt.Sprintf("verify: %d of %d cases failed", report.Failed, len(report.Results)), 1)
			}
			log.Info("verify passed", "cases", report.Passed, "run_id", report.RunID)
			return nil
		},
	}
}

func printVerifyTable(report verifyReport) {
	fmt.Printf("%-11s %-22s %-26s %12s  %s\n", "op", "shape", "strides", "max_abs_err", "status")
	for _, r := range report.Results {
		status := "ok"
		if !r.OK {
			status = "FAIL"
			if r.Error != "" {
				status += ": " + r.Error
			}
		}
		fmt.Printf("%-11s %-22s %-26s %12.3e  %s\n", r.Op, fmt.Sprint(r.Shape), fmt.Sprint(r.Strides), r.MaxAbsErr, status)
	}
	fmt.Printf("%d passed, %d failed (tolerance %.1e)\n", report.Passed, report.Failed, report.Tol)
}
