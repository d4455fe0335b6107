package driver

import (
	"github.com/smetzlaff/isptap-sub001/internal/cfg"
	"github.com/smetzlaff/isptap-sub001/internal/core"
)

// SizeStep is one point of the memory-size stepper: the configured
// scratchpad size and the resulting report.
type SizeStep struct {
	Size   uint32
	Report *Report
}

// Step runs the whole Run pipeline once per entry in sizes, on a fresh clone
// of baseline with Memory forced to StaticMemory, so that one size's
// allocation never leaks into the next. Each step repeats enrichment, the
// baseline cost calculation and the baseline IPET solve; no baseline timing
// is carried over from one step to the next.
func Step(baseline *cfg.Graph, root core.NodeID, callGraph []cfg.CallGraphEdge, sizes []uint32, c Config) ([]SizeStep, error) {
	out := make([]SizeStep, 0, len(sizes))
	for _, size := range sizes {
		stepCfg := c
		stepCfg.Memory = StaticMemory
		stepCfg.ScratchpadSize = size

		report, err := Run(baseline.Clone(), root, callGraph, stepCfg)
		if err != nil {
			return out, err
		}
		out = append(out, SizeStep{Size: size, Report: report})
	}
	return out, nil
}
