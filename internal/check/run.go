package check

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/born-ml/convprobe/internal/autodiff"
	"github.com/born-ml/convprobe/internal/backend/cpu"
	"github.com/born-ml/convprobe/internal/nn"
	"github.com/born-ml/convprobe/internal/parallel"
	"github.com/born-ml/convprobe/internal/tensor"
)

type backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

// Run executes the equivalence check under the given scenario name.
//
// Steps:
//  1. Build a grouped Conv3D and a random input (N(0,1) * InputScale) that requires grad
//  2. Forward, then backward seeded with a random output gradient of the output's shape
//  3. Split the module into one ungrouped Conv3D per group (weight/bias slice copies)
//  4. Split the detached input and the output gradient along channels, then
//     run forward/backward per group on its input slice with its gradient slice
//  5. Compare the grouped output and gradients with the concatenated split results
//
// Backend panics are returned as ErrBackendFailure. ctx is checked between
// phases. A nil logger discards log output.
func Run(ctx context.Context, name string, cfg Config, logger *slog.Logger) (report *Report, err error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Device != tensor.CPU {
		return nil, fmt.Errorf("%w: %s (only CPU is available)", ErrDeviceUnavailable, cfg.Device)
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = fmt.Errorf("%w: %v", ErrBackendFailure, r)
		}
	}()

	logger = logger.With("scenario", name)
	logger.Info("running equivalence check",
		"dtype", cfg.DType, "input", cfg.InputShape(), "groups", cfg.Groups, "seed", cfg.Seed)

	start := time.Now()
	report, err = runners[cfg.DType](ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	report.Scenario = name
	report.Elapsed = time.Since(start)
	logger.Info("equivalence check finished",
		"pass", report.Pass(),
		"output_max_abs_diff", report.Output.MaxAbsDiff,
		"input_grad_max_abs_diff", report.InputGrad.MaxAbsDiff,
		"elapsed", report.Elapsed)
	return report, nil
}

// runners holds the typed check for each supported dtype.
var runners = map[tensor.DataType]func(context.Context, Config, *slog.Logger) (*Report, error){
	tensor.Float32: run[float32],
	tensor.Float64: run[float64],
}

func newBackend(workers int) backend {
	pcfg := parallel.DefaultConfig()
	pcfg.MinChunkSize = 1
	if workers > 0 {
		pcfg.NumWorkers = workers
		pcfg.Enabled = workers > 1
	}
	return autodiff.New(cpu.NewWithConfig(pcfg))
}

func run[T tensor.DType](ctx context.Context, cfg Config, logger *slog.Logger) (*Report, error) {
	b := newBackend(cfg.Workers)
	tape := b.Tape()
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // G404: reproducible sampling, not security

	conv := nn.NewConv3D[T](cfg.InChannels, cfg.OutChannels, cfg.Kernel, cfg.ConvConfig(), cfg.Bias, rng, b)
	outShape, err := conv.OutputShape(cfg.InputShape())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	input := tensor.RandnWith[T](cfg.InputShape(), rng, b).MulScalar(cfg.InputScale).RequireGrad()
	gradOut := tensor.RandnWith[T](outShape, rng, b).MulScalar(cfg.InputScale)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Grouped pass.
	tape.StartRecording()
	output := conv.Forward(input)
	grads := autodiff.BackwardWithGrad(output, gradOut, b)
	tape.StopRecording()
	tape.Clear()
	autodiff.AssignGrads(grads, append(nn.Tensors(conv.Parameters()), input)...)
	logger.Debug("grouped pass done", "module", conv.String(), "output", output.Shape())

	// Split reference.
	parts := nn.SplitGroups(conv)
	inputs := input.Detach().Split(cfg.InChannels/cfg.Groups, 1)
	seeds := gradOut.Split(cfg.OutChannels/cfg.Groups, 1)
	outs := make([]*tensor.Tensor[T, backend], len(parts))
	inGrads := make([]*tensor.Tensor[T, backend], len(parts))
	for g, part := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		x := inputs[g].RequireGrad()
		seed := seeds[g]

		tape.StartRecording()
		out := part.Forward(x)
		partGrads := autodiff.BackwardWithGrad(out, seed, b)
		tape.StopRecording()
		tape.Clear()
		autodiff.AssignGrads(partGrads, append(nn.Tensors(part.Parameters()), x)...)

		outs[g] = out
		inGrads[g] = x.Grad()
		logger.Debug("split pass done", "group", g, "output", out.Shape())
	}

	reference := tensor.Cat(outs, 1)
	referenceGrad := tensor.Cat(inGrads, 1)

	report := &Report{
		DType:             cfg.DType.String(),
		Device:            cfg.Device.String(),
		Seed:              cfg.Seed,
		Module:            conv.String(),
		OutputSize:        output.Shape(),
		ReferenceSize:     reference.Shape(),
		OutputGradSize:    input.Grad().Shape(),
		ReferenceGradSize: referenceGrad.Shape(),
		AbsTol:            cfg.AbsTol,
		RelTol:            cfg.RelTol,
		Tensors: map[string]*tensor.RawTensor{
			"grouped.output":     output.Raw(),
			"split.output":       reference.Raw(),
			"grouped.input_grad": input.Grad().Raw(),
			"split.input_grad":   referenceGrad.Raw(),
			"grouped.weight":     conv.Weight().Tensor().Raw(),
		},
	}
	if err := report.checkShapes(); err != nil {
		return report, err
	}

	report.Output = compare("output", output.Raw().Float64s(), reference.Raw().Float64s(), cfg.AbsTol, cfg.RelTol)
	report.InputGrad = compare("input_grad", input.Grad().Raw().Float64s(), referenceGrad.Raw().Float64s(), cfg.AbsTol, cfg.RelTol)

	weightGrads := make([]float64, 0, conv.Weight().Tensor().NumElements())
	var biasGrads []float64
	for _, part := range parts {
		weightGrads = append(weightGrads, part.Weight().Grad().Raw().Float64s()...)
		if part.HasBias() {
			biasGrads = append(biasGrads, part.Bias().Grad().Raw().Float64s()...)
		}
	}
	report.Tensors["grouped.weight_grad"] = conv.Weight().Grad().Raw()
	report.WeightGrad = compare("weight_grad", conv.Weight().Grad().Raw().Float64s(), weightGrads, cfg.AbsTol, cfg.RelTol)
	if conv.HasBias() {
		c := compare("bias_grad", conv.Bias().Grad().Raw().Float64s(), biasGrads, cfg.AbsTol, cfg.RelTol)
		report.BiasGrad = &c
	}

	return report, nil
}
