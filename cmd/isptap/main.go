// Command isptap is the CLI front-end for the WCET analysis pipeline: it
// wires a disassembly-parsed CFG (supplied as pre-parsed fixtures; the
// actual disassembly parser is an external collaborator, §1) through flow-
// fact enrichment, cost calculation, the optional cache/DISP/SISP round, and
// the IPET solve, emitting one report line per configured memory size.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/smetzlaff/isptap-sub001/internal/arch"
	"github.com/smetzlaff/isptap-sub001/internal/cache"
	"github.com/smetzlaff/isptap-sub001/internal/disp"
	"github.com/smetzlaff/isptap-sub001/internal/driver"
	"github.com/smetzlaff/isptap-sub001/internal/ilp"
	"github.com/smetzlaff/isptap-sub001/internal/sisp"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		isaName        string
		metricName     string
		memoryName     string
		sispName       string
		sizes          []int
		solverPath     string
		verbose        bool
		scratchpadSize int
		budgetLines    int
		budgetLineSize int
	)

	cmd := &cobra.Command{
		Use:   "isptap",
		Short: "WCET analysis for CarCore/ARMv6-M programs over static and dynamic memories",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
			if len(args) == 0 {
				return fmt.Errorf("isptap: a CFG fixture path is required")
			}

			a, err := resolveArch(isaName)
			if err != nil {
				return err
			}
			metric, err := resolveMetric(metricName)
			if err != nil {
				return err
			}
			memory, err := resolveMemory(memoryName)
			if err != nil {
				return err
			}
			mode, err := resolveSISPMode(sispName)
			if err != nil {
				return err
			}

			return runAnalysis(analysisRequest{
				fixturePath:    args[0],
				arch:           a,
				metric:         metric,
				memory:         memory,
				sispMode:       mode,
				sizes:          sizes,
				solverPath:     solverPath,
				scratchpadSize: resolveScratchpadSize(scratchpadSize, budgetLines, budgetLineSize),
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&isaName, "isa", "carcore", "target ISA: carcore or armv6m")
	flags.StringVar(&metricName, "metric", "wcet", "objective metric: wcet, mdic or mpl")
	flags.StringVar(&memoryName, "memory", "static", "target memory kind: static, cache or disp")
	flags.StringVar(&sispName, "sisp-mode", "bbsisp", "static allocator: bbsisp, bbsisp-jp, bbsisp-wcp, bbsisp-jp-wcp, fsisp, fsisp-wcp, fsisp-old")
	flags.IntSliceVar(&sizes, "sizes", nil, "memory-size stepper sequence, in bytes")
	flags.StringVar(&solverPath, "solver", "lp_solve", "path to the external lp_solve binary")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.IntVar(&scratchpadSize, "scratchpad-size", 0, "static scratchpad size in bytes, for a single (non-stepped) allocation run")
	flags.IntVar(&budgetLines, "budget-lines", 0, "derive --scratchpad-size from a line count instead, paired with --budget-line-size")
	flags.IntVar(&budgetLineSize, "budget-line-size", 16, "line size in bytes used by --budget-lines")

	return cmd
}

func resolveArch(name string) (arch.Config, error) {
	switch name {
	case "carcore":
		return arch.DefaultCarCoreConfig(), nil
	case "armv6m":
		return arch.DefaultARMv6MConfig(), nil
	default:
		return arch.Config{}, fmt.Errorf("isptap: unknown ISA %q", name)
	}
}

func resolveMetric(name string) (ilp.Metric, error) {
	switch name {
	case "wcet":
		return ilp.WCET, nil
	case "mdic":
		return ilp.MDIC, nil
	case "mpl":
		return ilp.MPL, nil
	default:
		return 0, fmt.Errorf("isptap: unknown metric %q", name)
	}
}

func resolveMemory(name string) (driver.MemoryKind, error) {
	switch name {
	case "static":
		return driver.StaticMemory, nil
	case "cache":
		return driver.DynamicCache, nil
	case "disp":
		return driver.DynamicDISP, nil
	default:
		return 0, fmt.Errorf("isptap: unknown memory kind %q", name)
	}
}

func resolveSISPMode(name string) (sisp.Mode, error) {
	switch name {
	case "bbsisp":
		return sisp.BBSISP, nil
	case "bbsisp-jp":
		return sisp.BBSISPJP, nil
	case "bbsisp-wcp":
		return sisp.BBSISPWCP, nil
	case "bbsisp-jp-wcp":
		return sisp.BBSISPJPWCP, nil
	case "fsisp":
		return sisp.FSISP, nil
	case "fsisp-wcp":
		return sisp.FSISPWCP, nil
	case "fsisp-old":
		return sisp.FSISPOLD, nil
	default:
		return 0, fmt.Errorf("isptap: unknown sisp mode %q", name)
	}
}

// analysisRequest collects the resolved CLI flags runAnalysis needs.
type analysisRequest struct {
	fixturePath    string
	arch           arch.Config
	metric         ilp.Metric
	memory         driver.MemoryKind
	sispMode       sisp.Mode
	sizes          []int
	solverPath     string
	scratchpadSize uint32
}

// resolveScratchpadSize implements the original's memory-budget-derived
// sizing (memory_budget_calculator, supplementing spec.md): an explicit
// --scratchpad-size wins, otherwise a line-count budget is expanded into a
// byte size.
func resolveScratchpadSize(explicit, budgetLines, budgetLineSize int) uint32 {
	if explicit > 0 {
		return uint32(explicit)
	}
	if budgetLines > 0 {
		return uint32(budgetLines * budgetLineSize)
	}
	return 0
}

// runAnalysis loads the fixture, builds the driver configuration, and runs
// either a single pass (no --sizes) or the memory-size stepper, printing one
// report line per size.
func runAnalysis(req analysisRequest) error {
	ld, err := loadFixture(req.fixturePath)
	if err != nil {
		return err
	}

	cfgBase := driver.Config{
		Arch:           req.arch,
		Decoder:        arch.NewDecoder(req.arch.ISA),
		FlowFacts:      ld.FlowFacts,
		FuncLabels:     ld.FuncLabels,
		Metric:         req.metric,
		Memory:         req.memory,
		CacheCfg:       defaultCacheConfig(),
		DispCfg:        defaultDispConfig(),
		SISPMode:       req.sispMode,
		Solver:         newExecSolver(req.solverPath),
		ScratchpadSize: req.scratchpadSize,
	}

	if len(req.sizes) == 0 {
		report, err := driver.Run(ld.Graph, ld.Root, ld.CallGraph, cfgBase)
		if err != nil {
			return err
		}
		printReport(0, report)
		return nil
	}

	sizes := make([]uint32, len(req.sizes))
	for i, s := range req.sizes {
		sizes[i] = uint32(s)
	}
	steps, err := driver.Step(ld.Graph, ld.Root, ld.CallGraph, sizes, cfgBase)
	if err != nil {
		return err
	}
	for _, step := range steps {
		printReport(step.Size, step.Report)
	}
	return nil
}

func printReport(size uint32, r *driver.Report) {
	if size > 0 {
		fmt.Printf("size=%d wcet=%d status=%s used=%d\n", size, r.WCET, r.Status, r.UsedSize)
		return
	}
	fmt.Printf("wcet=%d status=%s\n", r.WCET, r.Status)
}

// defaultCacheConfig is a small LRU cache good enough to exercise the
// --memory=cache path without exposing every cache.Config knob as a flag.
func defaultCacheConfig() cache.Config {
	return cache.Config{
		Policy:        cache.LRU,
		LineSize:      16,
		Associativity: 2,
		MissLatency:   10,
	}
}

func defaultDispConfig() disp.Config {
	return disp.Config{
		Policy:              disp.FIFODisp,
		Size:                256,
		BlockSize:           16,
		BlockLoadCycles:     10,
		HitCtrlCycles:       1,
		MissCtrlCycles:      2,
		CallPipelineLatency: 3,
	}
}
