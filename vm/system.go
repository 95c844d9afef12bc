package vm

// execSystem implements ECALL, EBREAK, MRET, WFI, and the six Zicsr
// variants. It returns whether it already updated PC (true for ECALL,
// whose PC advance happens inside Trap/the syscall handler path, and for
// MRET, which sets PC to mepc) so the caller's default +4 is skipped.
func (m *Machine) execSystem(op Op, w Word) (bool, error) {
	switch op {
	case OpECALL:
		cause := uint64(CauseECallUMode)
		if m.CPU.Priv == PrivMachine {
			cause = CauseECallMMode
		}
		return true, m.Trap(cause, 0, false)

	case OpEBREAK:
		return true, m.Trap(CauseBreakpoint, m.CPU.PC, false)

	case OpMRET:
		m.MRET()
		return true, nil

	case OpWFI:
		m.CPU.WFI = true
		return false, nil

	default:
		return false, m.execCSR(op, w)
	}
}

// execCSR implements CSRRW/CSRRS/CSRRC and their immediate forms. The
// architectural read-old-value-then-write ordering is preserved even when
// source and destination name the same register: the destination write
// happens last, using a value captured before any CSR mutation.
func (m *Machine) execCSR(op Op, w Word) error {
	index := w.CSRIndex()

	if !Known(uint16(index)) {
		return m.Trap(CauseIllegalInstruction, uint64(w), false)
	}

	var source uint64
	var sourceIsZero bool
	switch op {
	case OpCSRRW, OpCSRRS, OpCSRRC:
		source = m.CPU.Get(w.Rs1())
		sourceIsZero = w.Rs1() == 0
	case OpCSRRWI, OpCSRRSI, OpCSRRCI:
		source = w.Zimm()
		sourceIsZero = w.Zimm() == 0
	}

	willWrite := true
	switch op {
	case OpCSRRS, OpCSRRC, OpCSRRSI, OpCSRRCI:
		willWrite = !sourceIsZero
	}

	// Read-only region (top two bits 11) rejects any instruction that
	// would write it.
	if index&0xC00 == 0xC00 && willWrite {
		return m.Trap(CauseIllegalInstruction, uint64(w), false)
	}

	old := m.CSR.Read(index)

	if willWrite {
		var next uint64
		switch op {
		case OpCSRRW, OpCSRRWI:
			next = source
		case OpCSRRS, OpCSRRSI:
			next = old | source
		case OpCSRRC, OpCSRRCI:
			next = old &^ source
		}
		m.CSR.Write(index, next)
	}

	m.CPU.Set(w.Rd(), old)
	return nil
}
