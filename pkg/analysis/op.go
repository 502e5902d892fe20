package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/edp1096/circuit-engine/pkg/circuit"
	"github.com/edp1096/circuit-engine/pkg/config"
	"github.com/edp1096/circuit-engine/pkg/device"
	"github.com/edp1096/circuit-engine/pkg/simerr"
)

// Gmin stepping ladder tried when plain Newton fails to converge.
var gminSteps = []float64{1e-2, 1e-3, 1e-4, 1e-5, 1e-6, 1e-7, 1e-8, 1e-9, 1e-10, 1e-11, 1e-12}

type OperatingPoint struct{ BaseAnalysis }

func NewOP(cfg config.Config, opts ...Option) *OperatingPoint {
	return &OperatingPoint{BaseAnalysis: NewBaseAnalysis(cfg, opts...)}
}

func (op *OperatingPoint) Run(ctx context.Context, g *circuit.Graph) (res *Result, err error) {
	ctx, done := startRun(ctx, KindDC, g)
	defer func() { done(err) }()

	asm, err := circuit.NewAssembler(g)
	if err != nil {
		return nil, err
	}
	dc, _, err := op.solve(ctx, asm)
	if err != nil {
		return nil, err
	}
	return &Result{Kind: KindDC, DC: dc}, nil
}

// solve returns the operating point and its raw solution vector.
func (op *OperatingPoint) solve(ctx context.Context, asm *circuit.Assembler) (*OperatingPointResult, []float64, error) {
	m, err := asm.NewMatrix(device.OperatingPoint, op.matrixOpts)
	if err != nil {
		return nil, nil, err
	}
	defer m.Destroy()

	st := &device.Status{
		Mode:     device.OperatingPoint,
		Junction: make([]float64, asm.NumJunctions()),
	}
	sol := make([]float64, asm.Size(device.OperatingPoint)+1)

	iters, err := op.newton(ctx, asm, m, st, sol, 0)
	stepped := false
	if err != nil {
		if !errors.Is(err, simerr.ErrConvergence) {
			return nil, nil, fmt.Errorf("operating point: %w", err)
		}
		op.log.Info("newton failed, trying gmin stepping", slog.Int("iterations", iters))

		clear(sol)
		clear(st.Junction)
		for _, gmin := range gminSteps {
			if _, err := op.newton(ctx, asm, m, st, sol, gmin); err != nil {
				return nil, nil, fmt.Errorf("operating point: gmin stepping at %g: %w", gmin, err)
			}
		}
		n, err := op.newton(ctx, asm, m, st, sol, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("operating point: final solve after gmin stepping: %w", err)
		}
		iters += n
		stepped = true
	}

	currents, power := asm.Measure(sol, st)
	res := &OperatingPointResult{
		NodeVoltages:   asm.NodeVoltages(sol),
		BranchCurrents: currents,
		Power:          power,
		Iterations:     iters,
		GminStepping:   stepped,
	}
	op.log.Debug("operating point solved", slog.Int("iterations", iters), slog.Bool("gmin_stepping", stepped))
	return res, sol, nil
}
