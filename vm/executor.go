package vm

import (
	"fmt"
	"io"
	"os"
)

// SyscallHandler services an environment call. It receives the whole
// machine by reference and is expected to read arguments from a0-a6 and
// place a return value in a0. The execution engine advances PC by 4 after
// the handler returns.
type SyscallHandler func(m *Machine)

// ExecutionState is a coarse, debugger-facing summary of what a Machine
// is currently doing. Run sets StateRunning, StateHalted, and (when Step
// returns an error) StateError; Step itself sets none of them.
// StateBreakpoint is set by callers such as a debugger pausing the
// machine.
type ExecutionState int

const (
	StateRunning ExecutionState = iota
	StateHalted
	StateBreakpoint
	StateError
	StateWaitingForInput
)

func (s ExecutionState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	case StateBreakpoint:
		return "breakpoint"
	case StateError:
		return "error"
	case StateWaitingForInput:
		return "waiting_for_input"
	default:
		return "unknown"
	}
}

// Machine ties together the register file, CSR file, memory subsystem,
// and syscall table into a runnable RV64IMA core.
type Machine struct {
	CPU    *CPU
	Memory *Memory
	CSR    *CSRFile

	Syscalls map[uint64]SyscallHandler

	// OutputWriter is where the write syscall handler sends fd 1/2 output.
	// Defaults to os.Stdout; a debugger front end repoints it at its own
	// console so guest output lands in the right pane instead of the
	// host terminal.
	OutputWriter io.Writer

	// Running is cleared by a syscall handler to request that Run stop
	// at the next instruction boundary.
	Running bool

	// State mirrors Running/Halted as a coarse status a debugger front
	// end can display and branch on: StateRunning while Run is looping,
	// StateHalted after exit/exit_group, StateBreakpoint when a debugger
	// pauses execution between steps, StateError after a FatalTrap.
	State    ExecutionState
	ExitCode int32

	// MaxSteps bounds a single Run invocation; zero means unbounded.
	MaxSteps uint64

	// resetSP is the stack pointer value Reset restores, captured once
	// at NewMachine time (ramSize-8).
	resetSP uint64

	// LastTrapErr records the most recent host-level error (ELF load
	// failure is reported by the loader directly; this field holds the
	// error a Step returned mid-run, normally a FatalTrap. Illegal CSR
	// accesses are architectural traps and never land here).
	LastTrapErr error

	// Instrumentation taps, all nil by default. Step, execLoad/execStore,
	// execBranch, and Trap/MRET check these and record through them
	// without changing architectural behavior.
	ExecutionTrace *ExecutionTrace
	MemoryTrace    *MemoryTrace
	RegisterTrace  *RegisterTrace
	TrapTrace      *TrapTrace
	Statistics     *Statistics
}

// NewMachine allocates a machine with ramSize bytes of RAM mapped
// starting at address 0, readable and writable but not executable until
// the loader marks the code segments executable. Register 2 (sp) is
// initialized to ramSize-8 and privilege begins at user mode, per §3's
// lifecycle description; the ELF loader is expected to overwrite PC with
// the entry point.
func NewMachine(ramSize uint64) *Machine {
	m := &Machine{
		CPU:          NewCPU(),
		Memory:       NewMemory(),
		CSR:          NewCSRFile(),
		Syscalls:     make(map[uint64]SyscallHandler),
		State:        StateRunning,
		OutputWriter: os.Stdout,
	}
	m.Memory.AddRange(0, ramSize, PermRead|PermWrite)
	m.CPU.Set(RegSP, ramSize-8)
	m.CPU.Priv = PrivUser
	m.resetSP = ramSize - 8
	return m
}

// Reset clears the register file and restores the initial stack pointer
// and user privilege, leaving memory contents and the syscall table
// untouched. A debugger front end calling Reset is expected to reload
// the guest image and re-point PC at the entry address afterward.
func (m *Machine) Reset() {
	m.CPU.Reset()
	m.CPU.Set(RegSP, m.resetSP)
	m.CPU.Priv = PrivUser
	m.Running = false
	m.State = StateRunning
	m.ExitCode = 0
	m.LastTrapErr = nil
}

// RegisterSyscall installs handler as the responder for environment
// calls naming number in a7. Registering a second handler for the same
// number replaces the first, per §3's "only one handler per number".
func (m *Machine) RegisterSyscall(number uint64, handler SyscallHandler) {
	m.Syscalls[number] = handler
}

// Step executes exactly one instruction, or performs the interrupt-poll
// and WFI bookkeeping that substitutes for one when fetch is suspended.
// It returns a non-nil error only for a FatalTrap (mtvec never
// configured); architectural traps are handled internally and never
// surface here.
func (m *Machine) Step() error {
	if code := m.pollInterrupts(); code >= 0 {
		return m.Trap(uint64(code), 0, true)
	}

	if m.CPU.WFI {
		// Nothing pending: fetch stays suspended until an interrupt
		// arrives, so this step makes no progress.
		return nil
	}

	if m.CPU.PC%4 != 0 {
		if err := m.Trap(CauseInstructionAddrMisaligned, m.CPU.PC, false); err != nil {
			return err
		}
		return nil
	}

	raw, err := m.Memory.Fetch32(m.CPU.PC)
	if err != nil {
		if err := m.Trap(CauseInstructionAccessFault, m.CPU.PC, false); err != nil {
			return err
		}
		return nil
	}

	m.CPU.ForceZero()

	word := Word(raw)
	op := Decode(word)
	if op == OpInvalid {
		if err := m.Trap(CauseIllegalInstruction, uint64(raw), false); err != nil {
			return err
		}
		return nil
	}

	pc := m.CPU.PC
	if err := m.execute(op, word); err != nil {
		return err
	}

	m.CPU.ForceZero()
	m.CPU.Cycles++

	if m.ExecutionTrace != nil {
		m.ExecutionTrace.record(m, pc, raw)
	}
	if m.RegisterTrace != nil {
		m.RegisterTrace.record(m, pc)
	}
	if m.Statistics != nil {
		m.Statistics.recordInstruction(op, pc)
	}
	return nil
}

// Run steps the machine until WFI suspends fetch with nothing pending,
// Running is cleared by a handler, the step budget (if non-zero) is
// exhausted, or a FatalTrap occurs.
func (m *Machine) Run(steps uint64) error {
	m.Running = true
	m.State = StateRunning
	var n uint64
	for m.Running {
		if steps > 0 && n >= steps {
			return nil
		}
		if m.CPU.WFI && m.pollInterrupts() < 0 {
			return nil // suspension point: WFI with nothing pending
		}
		if err := m.Step(); err != nil {
			m.LastTrapErr = err
			m.Running = false
			m.State = StateError
			return err
		}
		n++
	}
	if m.State == StateRunning {
		m.State = StateHalted
	}
	return nil
}

// execute dispatches a decoded operation to its implementation. The
// default PC advance of +4 is applied by the caller's convention: each
// handler either sets CPU.PC itself (branches, jumps, traps) or leaves it
// alone and execute advances it afterward.
func (m *Machine) execute(op Op, w Word) error {
	pc := m.CPU.PC
	advancesPC, err := m.dispatch(op, w)
	if err != nil {
		return err
	}
	if !advancesPC && m.CPU.PC == pc {
		m.CPU.PC += 4
	}
	return nil
}

// dispatch runs the operation and reports whether it already updated PC
// itself (true) or wants the default +4 advance (false).
func (m *Machine) dispatch(op Op, w Word) (bool, error) {
	switch {
	case op == OpLUIOp || op == OpAUIPCOp:
		return false, m.execUType(op, w)
	case op == OpJALOp || op == OpJALROp:
		return true, m.execJump(op, w)
	case isBranchOp(op):
		return true, m.execBranch(op, w)
	case isLoadOp(op):
		return false, m.execLoad(op, w)
	case isStoreOp(op):
		return false, m.execStore(op, w)
	case isALUImmOp(op):
		return false, m.execALUImm(op, w)
	case isALURegOp(op):
		return false, m.execALUReg(op, w)
	case op == OpFENCE:
		return false, nil
	case isSystemOp(op):
		return m.execSystem(op, w)
	case isMulDivOp(op):
		return false, m.execMulDiv(op, w)
	case isAMOOp(op):
		return false, m.execAMO(op, w)
	default:
		return false, fmt.Errorf("vm: unhandled op %v", op)
	}
}
