// Package arch describes the two supported in-order pipeline targets
// (CarCore, ARMv6-M) that the cost calculator (C3) and the jump-penalty
// aware scratchpad allocators (C8) need: per-architecture cycle costs and
// the (connection, displacement) jump-penalty table.
//
// The disassembly dump parser and its per-ISA instruction decoder are
// external collaborators (§1); this package only fixes the interface a
// decoder must satisfy (DisplacementDecoder) and ships minimal concrete
// decoders good enough to drive tests and the bundled CLI against small
// hand-written dumps.
package arch

// ISA names a supported instruction set.
type ISA int

const (
	CarCore ISA = iota
	ARMv6M
)

func (i ISA) String() string {
	if i == CarCore {
		return "CARCORE"
	}
	return "ARMV6M"
}

// Connection categorizes how control flow reaches a basic block's
// successor, for the jump-penalty accounting of BBSISP-JP (§4.8 mode 2).
type Connection int

const (
	ContinuousAddressing Connection = iota
	ConnJump
	ConnCall
	ConnReturn
)

// Displacement categorizes the encoded branch displacement width of a
// block's terminating instruction.
type Displacement int

const (
	NoDisplacement Displacement = iota
	Disp4
	Disp8
	Disp11
	Disp15
	Disp24
	DispIndirect
)

// ConnDisp is the (connection, displacement) key of the jump-penalty table.
type ConnDisp struct {
	Conn Connection
	Disp Displacement
}

// DisplacementDecoder recovers the (connection, displacement) pair encoded
// in a basic block's terminating instruction. A BB that does not end in a
// branch (falls through) reports (ContinuousAddressing, NoDisplacement).
type DisplacementDecoder interface {
	Decode(code string) (Connection, Displacement)
}

// Config is the architecture descriptor consumed by the cost calculator
// (C3): pipeline timing constants plus the jump-penalty table.
type Config struct {
	ISA ISA

	// FetchWidth is the number of bytes fetched per cycle when resident
	// on-chip.
	FetchWidth uint32

	// CycleTime-independent stall/hit-handling costs, all in cycles.
	CacheHitCycles         uint64
	CacheMissLatency       uint64
	DispHitCtrlCycles      uint64
	DispMissCtrlCycles     uint64
	CallPipelineLatency    uint64
	ReturnPipelineLatency  uint64
	DispBlockLoadCycles    uint64
	DispBlockSize          uint32
	OffChipAccessStall     uint64 // extra stall cycles per access when a block is off-chip
	FetchMemIndependent    bool   // whether DISP loads overlap the call-pipeline latency

	JumpPenalties map[ConnDisp]uint64
}

// PenaltyFor looks up the jump-penalty table, defaulting to 0 for any
// (connection, displacement) the table does not mention.
func (c Config) PenaltyFor(conn Connection, disp Displacement) uint64 {
	return c.JumpPenalties[ConnDisp{conn, disp}]
}

// DefaultCarCoreConfig returns a representative CarCore architecture
// descriptor, with a jump-penalty table covering every Connection paired
// with the displacement widths the ISA actually encodes.
func DefaultCarCoreConfig() Config {
	return Config{
		ISA:                   CarCore,
		FetchWidth:            4,
		CacheHitCycles:        1,
		CacheMissLatency:      10,
		DispHitCtrlCycles:     1,
		DispMissCtrlCycles:    2,
		CallPipelineLatency:   2,
		ReturnPipelineLatency: 2,
		DispBlockLoadCycles:   1,
		DispBlockSize:         16,
		OffChipAccessStall:    4,
		FetchMemIndependent:   true,
		JumpPenalties: map[ConnDisp]uint64{
			{ContinuousAddressing, NoDisplacement}: 0,
			{ConnJump, Disp8}:                      1,
			{ConnJump, Disp15}:                     1,
			{ConnJump, Disp24}:                     2,
			{ConnJump, DispIndirect}:                3,
			{ConnCall, Disp8}:                      2,
			{ConnCall, Disp24}:                      3,
			{ConnCall, DispIndirect}:                4,
			{ConnReturn, NoDisplacement}:            2,
		},
	}
}

// DefaultARMv6MConfig returns a representative ARMv6-M architecture
// descriptor.
func DefaultARMv6MConfig() Config {
	return Config{
		ISA:                   ARMv6M,
		FetchWidth:            2,
		CacheHitCycles:        1,
		CacheMissLatency:      8,
		DispHitCtrlCycles:     1,
		DispMissCtrlCycles:    2,
		CallPipelineLatency:   2,
		ReturnPipelineLatency: 2,
		DispBlockLoadCycles:   1,
		DispBlockSize:         16,
		OffChipAccessStall:    3,
		FetchMemIndependent:   false,
		JumpPenalties: map[ConnDisp]uint64{
			{ContinuousAddressing, NoDisplacement}: 0,
			{ConnJump, Disp8}:                      1,
			{ConnJump, Disp11}:                      1,
			{ConnJump, DispIndirect}:                2,
			{ConnCall, Disp24}:                      2,
			{ConnCall, DispIndirect}:                3,
			{ConnReturn, NoDisplacement}:            1,
		},
	}
}
