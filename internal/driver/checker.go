package driver

import "fmt"

// Expectation is a per-configuration expected value the result checker
// compares a Report against (§4.9's "result checker").
type Expectation struct {
	Label           string
	ExpectedWCET    uint64 // 0 means "no expectation supplied"
	SimulatedTime   uint64 // 0 means "no simulated baseline supplied"
}

// CheckResult is one checker line: PASS/FAIL plus, when a simulated
// execution time was supplied, the overestimation percentage of the
// computed WCET relative to it.
type CheckResult struct {
	Label              string
	Pass               bool
	Computed           uint64
	Expected           uint64
	OverestimationPct   float64
	HasOverestimation  bool
}

// Check compares report against exp and formats a PASS/FAIL verdict. A
// missing expectation (ExpectedWCET == 0) always passes - there is nothing
// to disagree with - matching the spec's "compares against a per-configuration
// expected value (when present)".
func Check(exp Expectation, report *Report) CheckResult {
	res := CheckResult{Label: exp.Label, Computed: report.WCET, Expected: exp.ExpectedWCET}

	if exp.ExpectedWCET == 0 {
		res.Pass = true
	} else {
		res.Pass = report.WCET == exp.ExpectedWCET
	}

	if exp.SimulatedTime > 0 {
		res.HasOverestimation = true
		res.OverestimationPct = (float64(report.WCET) - float64(exp.SimulatedTime)) / float64(exp.SimulatedTime) * 100
	}

	return res
}

// String renders one report line, per §4.9's "one line per size step in
// stepping mode, otherwise one report".
func (r CheckResult) String() string {
	verdict := "FAIL"
	if r.Pass {
		verdict = "PASS"
	}
	if r.HasOverestimation {
		return fmt.Sprintf("%s: %s wcet=%d expected=%d overestimation=%.2f%%", verdict, r.Label, r.Computed, r.Expected, r.OverestimationPct)
	}
	return fmt.Sprintf("%s: %s wcet=%d expected=%d", verdict, r.Label, r.Computed, r.Expected)
}
