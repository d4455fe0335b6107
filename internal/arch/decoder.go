package arch

import "strings"

// textDecoder recognizes a handful of mnemonic prefixes in a block's
// disassembled text. Real dumps are produced by the external per-ISA
// disassembler; this is a deliberately small stand-in used by the cost
// calculator's tests and the bundled CLI when fed hand-written dumps.
type textDecoder struct {
	isa ISA
}

// NewDecoder returns the DisplacementDecoder for the given ISA.
func NewDecoder(isa ISA) DisplacementDecoder {
	return textDecoder{isa: isa}
}

// Decode inspects the last non-empty line of code (one instruction per
// line is assumed) and classifies its mnemonic.
func (d textDecoder) Decode(code string) (Connection, Displacement) {
	line := lastLine(code)
	if line == "" {
		return ContinuousAddressing, NoDisplacement
	}
	mnemonic := strings.ToLower(strings.Fields(line)[0])

	switch {
	case strings.HasPrefix(mnemonic, "call"):
		return ConnCall, d.callDisplacement(line)
	case strings.HasPrefix(mnemonic, "ret"):
		return ConnReturn, NoDisplacement
	case strings.HasPrefix(mnemonic, "j"), strings.HasPrefix(mnemonic, "b"):
		if strings.Contains(line, "[") || strings.Contains(mnemonic, "r") {
			return ConnJump, DispIndirect
		}
		return ConnJump, d.jumpDisplacement(line)
	default:
		return ContinuousAddressing, NoDisplacement
	}
}

func (d textDecoder) jumpDisplacement(line string) Displacement {
	switch d.isa {
	case ARMv6M:
		if strings.Contains(line, "cc") {
			return Disp8
		}
		return Disp11
	default: // CarCore
		switch {
		case strings.Contains(line, "8"):
			return Disp8
		case strings.Contains(line, "15"):
			return Disp15
		default:
			return Disp24
		}
	}
}

func (d textDecoder) callDisplacement(line string) Displacement {
	if strings.Contains(line, "[") {
		return DispIndirect
	}
	if d.isa == ARMv6M {
		return Disp24
	}
	if strings.Contains(line, "8") {
		return Disp8
	}
	return Disp24
}

func lastLine(code string) string {
	lines := strings.Split(strings.TrimRight(code, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}
