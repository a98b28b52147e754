// Package compiler sequences the full pipeline from an operator graph
// to an in-memory command stream: lowering (A1), plan generation (C5),
// combining (C6) and cascade emission (C8). It does not encode the
// stream into the binary container (C7). It is the one place that owns
// the order those components run in; each component package stays
// usable on its own for testing.
package compiler

import (
	"fmt"

	"github.com/ethosn/cascadec/internal/combiner"
	"github.com/ethosn/cascadec/internal/config"
	"github.com/ethosn/cascadec/internal/emitter"
	"github.com/ethosn/cascadec/internal/frontend"
	"github.com/ethosn/cascadec/internal/hwcaps"
	"github.com/ethosn/cascadec/internal/logger"
	"github.com/ethosn/cascadec/internal/planner"
	"github.com/ethosn/cascadec/pkg/ncf"
	"github.com/ethosn/cascadec/pkg/npu"
)

// Result bundles the command stream Compile produced along with the
// intermediate-DRAM glue lifetimes the caller needs to size its scratch
// buffers (§4.7's "intermediate-DRAM lifetime" output).
type Result struct {
	Stream    *ncf.CommandStream
	Lifetimes []emitter.Lifetime
}

// Options bundles everything Compile needs beyond the operator graph
// itself: the target's hardware capabilities, compilation options, and
// whether unsupported operators should be lowered to KindEstimateOnly
// placeholders instead of failing (§4.4/§7).
type Options struct {
	Caps           hwcaps.Caps
	Compilation    config.CompilationOptions
	EstimationMode bool
	Log            logger.Logger

	// RequestedVersion is the command-stream version the caller built
	// its driver against. The zero Version skips the check: callers
	// compiling and loading in the same process (the CLI, the test
	// suite) have no separate "found" version to compare against.
	RequestedVersion npu.Version
}

// Compile runs the full pipeline. On any failure it returns a nil
// Result and a typed *npu.* error — never a partial command stream —
// per §7's "no partial output" failure semantics:
//   - an unsupported operator/attribute combination (EstimationMode
//     off): wrapped frontend.Lower error
//   - no plan fits the SRAM budget for some part: npu.SramOverflowError
//   - the chosen plans cannot be bound into a cascade (glue-insertion
//     failure): wrapped combiner error
//   - agent or command emission fails: wrapped emitter error
//   - a non-zero opts.RequestedVersion falls outside the target
//     capabilities' [MinVersion, MaxVersion] range:
//     npu.VersionMismatchError
func Compile(og *frontend.OperatorGraph, opts Options) (*Result, error) {
	log := opts.Log
	if log == nil {
		log = logger.Default()
	}

	minVersion := npu.Version(opts.Caps.MinVersion)
	maxVersion := npu.Version(opts.Caps.MaxVersion)

	var zeroVersion npu.Version
	if opts.RequestedVersion != zeroVersion && !opts.RequestedVersion.InRange(minVersion, maxVersion) {
		return nil, &npu.VersionMismatchError{Found: opts.RequestedVersion, Min: minVersion, Max: maxVersion}
	}

	log.WithPhase(logger.PhaseLowering).Info("lowering operator graph", "estimation_mode", opts.EstimationMode)
	gop, err := frontend.Lower(og, opts.Caps, opts.EstimationMode)
	if err != nil {
		return nil, fmt.Errorf("compiler: lower: %w", err)
	}
	log.WithPhase(logger.PhaseLowering).Info("lowered operator graph", "parts", gop.NumParts())

	cache := planner.NewPlanCache()

	// A caller that never populated Compilation at all (rather than one
	// who built config.DefaultOptions() and then explicitly disabled
	// strategies) gets the "nothing restricted" default: real configs
	// always start from AllStripeConfig(), whose Splits map is never nil.
	compilation := opts.Compilation
	if compilation.StrategiesEnabled.Splits == nil {
		compilation = config.DefaultOptions()
	}

	log.WithPhase(logger.PhaseCombining).Info("combining parts into a cascade")
	comb, err := combiner.Combine(gop, opts.Caps, cache, compilation.ToRestriction())
	if err != nil {
		return nil, fmt.Errorf("compiler: combine: %w", err)
	}
	log.WithPhase(logger.PhaseCombining).Info("combined parts", "plans", len(comb.Plans), "glues", len(comb.Glues), "cost", comb.Cost.Total())

	log.WithPhase(logger.PhaseEmitting).Info("emitting cascade agents and commands")
	stream, lifetimes, err := emitter.Emit(gop, comb, opts.Caps)
	if err != nil {
		return nil, fmt.Errorf("compiler: emit: %w", err)
	}
	log.WithPhase(logger.PhaseEmitting).Info("emitted cascade", "agents", len(stream.Agents))

	log.WithPhase(logger.PhaseEncoding).Info("command stream ready for encoding", "agents", len(stream.Agents))

	return &Result{Stream: stream, Lifetimes: lifetimes}, nil
}
