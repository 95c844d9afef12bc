package vm

// FatalTrap reports an unrecoverable host-level condition: the guest
// trapped but mtvec was never configured, so the core has nowhere to send
// control. The host is expected to stop simulating on receipt of this
// error; guest state afterward is undefined.
type FatalTrap struct {
	Cause uint64
	Value uint64
}

func (e *FatalTrap) Error() string {
	return "runaway trap: mtvec is zero, no trap vector configured"
}

// Trap performs the single atomic trap-entry sequence of §4.D for an
// exception or interrupt identified by cause (without the interrupt bit
// set; Trap sets it itself when isInterrupt is true) and an auxiliary
// value destined for mtval.
//
// ECALL causes are special-cased first: if a syscall handler is
// registered for the number in a7, it runs inline and the trap vector is
// never consulted.
func (m *Machine) Trap(cause uint64, value uint64, isInterrupt bool) error {
	if !isInterrupt && (cause == CauseECallUMode || cause == CauseECallMMode) {
		if handler, ok := m.Syscalls[m.CPU.Get(RegA7)]; ok {
			handler(m)
			m.CPU.PC += 4
			return nil
		}
	}

	fullCause := cause
	if isInterrupt {
		fullCause |= CauseInterruptBit
	}

	fromPriv := m.CPU.Priv

	// An environment call that falls through to the trap vector saves the
	// address of the following instruction, so a handler that only
	// executes MRET resumes after the ECALL.
	epc := m.CPU.PC
	if !isInterrupt && (cause == CauseECallUMode || cause == CauseECallMMode) {
		epc += 4
	}
	m.CSR.regs[CSRMepc] = epc
	m.CSR.regs[CSRMcause] = fullCause
	m.CSR.regs[CSRMtval] = value

	m.CSR.setMstatusMPP(m.CPU.Priv)
	m.CSR.setMstatusMPIE(m.CSR.mstatusMIE())
	m.CSR.setMstatusMIE(false)

	m.CPU.Priv = PrivMachine

	if m.TrapTrace != nil {
		m.TrapTrace.record(m, fullCause, value, fromPriv, PrivMachine, isInterrupt)
	}

	tvec := m.CSR.Read(CSRMtvec)
	base := tvec &^ 0x3
	mode := tvec & 0x3

	var next uint64
	if mode == 1 && isInterrupt {
		next = base + 4*cause
	} else {
		next = base
	}

	if next == 0 {
		return &FatalTrap{Cause: fullCause, Value: value}
	}
	m.CPU.PC = next
	return nil
}

// MRET restores privilege and interrupt-enable state saved by the most
// recent trap entry and resumes at mepc.
func (m *Machine) MRET() {
	fromPriv := m.CPU.Priv
	m.CPU.PC = m.CSR.Read(CSRMepc)
	m.CPU.Priv = m.CSR.mstatusMPP()
	m.CSR.setMstatusMIE(m.CSR.mstatusMPIE())
	m.CSR.setMstatusMPIE(true)
	m.CSR.setMstatusMPP(PrivUser)

	if m.TrapTrace != nil {
		m.TrapTrace.recordReturn(m, fromPriv, m.CPU.Priv)
	}
}

// pollInterrupts implements §4.D's priority order: external, then
// software, then timer. It returns the interrupt code to take, or -1 if
// none is both pending and currently enabled.
func (m *Machine) pollInterrupts() int {
	pending := m.CSR.Read(CSRMip) & m.CSR.Read(CSRMie)
	if pending == 0 {
		return -1
	}

	m.CPU.WFI = false

	enabled := m.CPU.Priv < PrivMachine || (m.CPU.Priv == PrivMachine && m.CSR.mstatusMIE())
	if !enabled {
		return -1
	}

	for _, code := range [3]int{InterruptExternal, InterruptSoftware, InterruptTimer} {
		if pending&(uint64(1)<<code) != 0 {
			return code
		}
	}
	return -1
}
