package service

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rv64ima/emulator/debugger"
	"github.com/rv64ima/emulator/loader"
	sys "github.com/rv64ima/emulator/syscall"
	"github.com/rv64ima/emulator/vm"
)

const (
	// Validator limits for API safety
	maxDisassemblyCount = 1000   // Maximum number of instructions to disassemble
	maxStackCount       = 1000   // Maximum number of stack entries to return
	maxStackOffset      = 100000 // Maximum stack offset (in doublewords) to prevent wraparound
	stepsBeforeYield    = 1000   // Yield every N steps during a run, to let a poller see state mid-flight
)

var serviceLog *log.Logger

func init() {
	if os.Getenv("RV64IMA_DEBUG") != "" {
		logPath := filepath.Join(os.TempDir(), "rv64ima-service-debug.log")
		f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600) // #nosec G304 -- fixed filename in temp dir
		if err != nil {
			serviceLog = log.New(os.Stderr, "SERVICE: ", log.Ltime|log.Lmicroseconds|log.Lshortfile)
		} else {
			serviceLog = log.New(f, "SERVICE: ", log.Ltime|log.Lmicroseconds|log.Lshortfile)
		}
	} else {
		serviceLog = log.New(io.Discard, "", 0)
	}
}

// DebuggerService provides a thread-safe interface to debugger functionality.
// This service is shared by the TUI, the embedded GUI, and the HTTP API.
//
// Lock ordering: the service uses its own sync.RWMutex (s.mu) to protect
// all field access, including access to the debugger. Any Debugger method
// with its own internal state is only ever called while holding s.mu, so
// the order is always s.mu -> (no nested lock).
type DebuggerService struct {
	mu       sync.RWMutex
	vm       *vm.Machine
	debugger *debugger.Debugger

	ramSize    uint64
	elfPath    string
	fsRoot     string
	loadResult *loader.LoadResult
	symbols    map[string]uint64 // name -> address

	outputWriter *EventEmittingWriter
}

// NewDebuggerService creates a new debugger service around an already
// constructed machine. The machine carries no loaded program until
// LoadProgram is called.
func NewDebuggerService(machine *vm.Machine, ramSize uint64) *DebuggerService {
	return &DebuggerService{
		vm:       machine,
		debugger: debugger.NewDebugger(machine),
		ramSize:  ramSize,
		symbols:  make(map[string]uint64),
	}
}

// GetVM returns the underlying machine (for testing).
func (s *DebuggerService) GetVM() *vm.Machine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vm
}

// LoadProgram maps an ELF64 RISC-V executable at path into the machine,
// installs the default syscall table sandboxed under fsRoot, and arms
// the debugger with the binary's symbol table. A reload (calling this
// twice) re-maps the binary from scratch and replaces the syscall
// table's heap boundary and open-file state, which is the only way to
// get a clean restart since guest memory writes persist across Reset.
func (s *DebuggerService) LoadProgram(path string, fsRoot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := loader.Load(path, s.vm, s.ramSize)
	if err != nil {
		return err
	}

	sys.Install(s.vm, sys.Config{FSRoot: fsRoot, HeapStart: res.HeapBase})

	s.symbols = make(map[string]uint64, len(res.Symbols))
	for addr, name := range res.Symbols {
		s.symbols[name] = addr
	}
	s.debugger.LoadSymbols(s.symbols)

	if s.vm.OutputWriter == nil || s.vm.OutputWriter == os.Stdout {
		s.outputWriter = NewEventEmittingWriter(&bytes.Buffer{})
		s.vm.OutputWriter = s.outputWriter
	}

	s.elfPath = path
	s.fsRoot = fsRoot
	s.loadResult = res

	s.vm.State = vm.StateHalted
	s.debugger.Running = false
	s.debugger.Breakpoints.Clear()
	s.debugger.Watchpoints.Clear()

	return nil
}

// GetRegisterState returns current register state (thread-safe).
func (s *DebuggerService) GetRegisterState() RegisterState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var regs [vm.RegisterCount]uint64
	for i := range regs {
		regs[i] = s.vm.CPU.Get(i)
	}

	return RegisterState{
		X:       regs,
		PC:      s.vm.CPU.PC,
		Priv:    s.vm.CPU.Priv,
		Mstatus: s.vm.CSR.Read(vm.CSRMstatus),
		Mcause:  s.vm.CSR.Read(vm.CSRMcause),
		Cycles:  s.vm.CPU.Cycles,
	}
}

// Step executes a single instruction.
func (s *DebuggerService) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vm.Step()
}

// Continue arms the debugger to run until breakpoint or halt; the
// caller drives the actual loop via RunUntilHalt.
func (s *DebuggerService) Continue() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.debugger.Running = true
	s.debugger.StepMode = debugger.StepNone
	return nil
}

// Pause stops execution and marks the machine halted.
func (s *DebuggerService) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugger.Running = false
	s.vm.State = vm.StateHalted
}

// Reset clears the register file and PC, forgets the loaded program's
// path, symbols and load result, and clears all breakpoints/watchpoints.
// Guest memory, CSRs and the installed syscall table are left as they
// are. Use ResetToEntryPoint to restart the current binary instead.
func (s *DebuggerService) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vm.Reset()
	s.elfPath = ""
	s.fsRoot = ""
	s.loadResult = nil
	s.symbols = make(map[string]uint64)
	s.debugger.Breakpoints.Clear()
	s.debugger.Watchpoints.Clear()
	s.debugger.Running = false
	s.vm.State = vm.StateHalted

	return nil
}

// ResetToEntryPoint restarts the currently loaded binary from scratch:
// Reset only clears registers, not memory, so a clean restart re-maps
// the ELF image rather than trusting leftover guest memory state.
func (s *DebuggerService) ResetToEntryPoint() error {
	s.mu.Lock()
	path, fsRoot := s.elfPath, s.fsRoot
	s.mu.Unlock()

	if path == "" {
		s.mu.Lock()
		s.vm.Reset()
		s.vm.State = vm.StateHalted
		s.debugger.Running = false
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	s.vm.Reset()
	s.mu.Unlock()

	return s.LoadProgram(path, fsRoot)
}

// GetExecutionState returns current execution state.
func (s *DebuggerService) GetExecutionState() ExecutionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return VMStateToExecution(s.vm.State)
}

// AddBreakpoint adds a breakpoint at the specified address.
func (s *DebuggerService) AddBreakpoint(address uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugger.Breakpoints.AddBreakpoint(address, false, "")
	return nil
}

// RemoveBreakpoint removes a breakpoint.
func (s *DebuggerService) RemoveBreakpoint(address uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debugger.Breakpoints.DeleteBreakpointAt(address)
}

// GetBreakpoints returns all breakpoints.
func (s *DebuggerService) GetBreakpoints() []BreakpointInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bps := s.debugger.Breakpoints.GetAllBreakpoints()
	result := make([]BreakpointInfo, len(bps))
	for i, bp := range bps {
		result[i] = BreakpointInfo{
			ID:        bp.ID,
			Address:   bp.Address,
			Enabled:   bp.Enabled,
			Temporary: bp.Temporary,
			Condition: bp.Condition,
			HitCount:  bp.HitCount,
		}
	}
	return result
}

// ClearAllBreakpoints removes all breakpoints.
func (s *DebuggerService) ClearAllBreakpoints() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugger.Breakpoints.Clear()
}

// GetMemory returns memory contents for a region. Unreadable bytes
// (unmapped, or lacking read permission) read back as zero rather than
// failing the whole request, so a memory view can show partial results
// at segment boundaries.
func (s *DebuggerService) GetMemory(address uint64, size uint64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	serviceLog.Printf("GetMemory: address=0x%016X, size=%d", address, size)
	data := make([]byte, size)
	for i := uint64(0); i < size; i++ {
		b, err := s.vm.Memory.Load(address+i, 1)
		if err != nil {
			data[i] = 0
			continue
		}
		data[i] = byte(b)
	}
	return data, nil
}

// GetSymbols returns all known symbols (name -> address).
func (s *DebuggerService) GetSymbols() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make(map[string]uint64, len(s.symbols))
	for k, v := range s.symbols {
		symbols[k] = v
	}
	return symbols
}

// GetSymbolForAddress resolves an address to a symbol name, if any.
func (s *DebuggerService) GetSymbolForAddress(addr uint64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSymbolForAddressUnsafe(addr)
}

// RunUntilHalt runs the program until halt or breakpoint. If Running is
// already false (e.g. Pause raced Continue before this started), it
// returns immediately.
func (s *DebuggerService) RunUntilHalt() error {
	serviceLog.Println("RunUntilHalt() called")
	s.mu.Lock()
	if !s.debugger.Running {
		s.mu.Unlock()
		return nil
	}
	s.vm.State = vm.StateRunning
	s.mu.Unlock()

	stepCount := 0
	for {
		s.mu.Lock()
		if !s.debugger.Running || s.vm.State != vm.StateRunning {
			s.mu.Unlock()
			break
		}

		if shouldBreak, _ := s.debugger.ShouldBreak(); shouldBreak {
			s.debugger.Running = false
			s.vm.State = vm.StateBreakpoint
			s.mu.Unlock()
			break
		}

		err := s.vm.Step()
		halted := s.vm.State != vm.StateRunning
		s.mu.Unlock()

		if err != nil {
			s.mu.Lock()
			s.debugger.Running = false
			s.mu.Unlock()
			return err
		}
		if halted {
			s.mu.Lock()
			s.debugger.Running = false
			s.mu.Unlock()
			break
		}

		stepCount++
		if stepCount >= stepsBeforeYield {
			stepCount = 0
			time.Sleep(time.Millisecond)
		}
	}

	serviceLog.Println("RunUntilHalt() completed")
	return nil
}

// IsRunning returns whether execution is in progress.
func (s *DebuggerService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.debugger.Running
}

// SetRunning sets the running state synchronously, for use by an async
// caller before launching the goroutine that drives RunUntilHalt.
func (s *DebuggerService) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugger.Running = running
	if running {
		s.vm.State = vm.StateRunning
	} else if s.vm.State == vm.StateRunning {
		s.vm.State = vm.StateHalted
	}
}

// GetExitCode returns the program exit code.
func (s *DebuggerService) GetExitCode() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vm.ExitCode
}

// GetOutput returns captured program output and clears the buffer. It
// is empty until a program has been loaded, since the output writer is
// only installed at LoadProgram time.
func (s *DebuggerService) GetOutput() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outputWriter == nil {
		return ""
	}
	return s.outputWriter.GetBufferAndClear()
}

// GetDisassembly returns raw fetched instruction words starting at
// startAddr, truncating early on a memory read failure. There is no
// mnemonic formatter in this core; a caller renders the text itself
// from the opcode word if it wants one.
func (s *DebuggerService) GetDisassembly(startAddr uint64, count int) []DisassemblyLine {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if count <= 0 || count > maxDisassemblyCount || startAddr%4 != 0 {
		return []DisassemblyLine{}
	}

	lines := make([]DisassemblyLine, 0, count)
	addr := startAddr
	for i := 0; i < count; i++ {
		opcode, err := s.vm.Memory.Fetch32(addr)
		if err != nil {
			break
		}
		lines = append(lines, DisassemblyLine{
			Address: addr,
			Opcode:  opcode,
			Symbol:  s.getSymbolForAddressUnsafe(addr),
		})
		addr += 4
	}
	return lines
}

// GetStack returns stack contents from sp+offset, offset and count both
// counted in 8-byte doublewords. Safe arithmetic guards against
// wraparound on an adversarial offset.
func (s *DebuggerService) GetStack(offset int, count int) []StackEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if count <= 0 || count > maxStackCount {
		return []StackEntry{}
	}
	if offset < -maxStackOffset || offset > maxStackOffset {
		return []StackEntry{}
	}

	sp := s.vm.CPU.Get(vm.RegSP)
	startAddr := int64(sp) + int64(offset)*8
	if startAddr < 0 {
		return []StackEntry{}
	}

	entries := make([]StackEntry, 0, count)
	for i := 0; i < count; i++ {
		addr := uint64(startAddr) + uint64(i)*8
		value, err := s.vm.Memory.Load(addr, 8)
		if err != nil {
			break
		}
		entries = append(entries, StackEntry{
			Address: addr,
			Value:   value,
			Symbol:  s.getSymbolForAddressUnsafe(value),
		})
	}
	return entries
}

func (s *DebuggerService) getSymbolForAddressUnsafe(addr uint64) string {
	for name, symbolAddr := range s.symbols {
		if symbolAddr == addr {
			return name
		}
	}
	return ""
}

// StepOver executes one instruction, stepping over call instructions.
func (s *DebuggerService) StepOver() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.elfPath == "" {
		return fmt.Errorf("no program loaded")
	}

	s.debugger.SetStepOver()
	for s.debugger.Running {
		if s.debugger.StepMode != debugger.StepSingle {
			if shouldBreak, _ := s.debugger.ShouldBreak(); shouldBreak {
				s.debugger.Running = false
				break
			}
		}

		err := s.vm.Step()
		if err != nil {
			s.debugger.Running = false
			return err
		}

		if s.debugger.StepMode == debugger.StepSingle {
			if shouldBreak, _ := s.debugger.ShouldBreak(); shouldBreak {
				s.debugger.Running = false
				break
			}
		}
	}
	return nil
}

// StepOut puts the debugger in step-out mode. The caller drives the
// actual loop via RunUntilHalt, same as Continue; the return from the
// current function is not detected, so that run stops only where a
// Continue would.
func (s *DebuggerService) StepOut() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.elfPath == "" {
		return fmt.Errorf("no program loaded")
	}
	s.debugger.SetStepOut()
	return nil
}

// AddWatchpoint adds a memory watchpoint at the specified address.
func (s *DebuggerService) AddWatchpoint(address uint64, watchType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wpType debugger.WatchType
	switch watchType {
	case "read":
		wpType = debugger.WatchRead
	case "write":
		wpType = debugger.WatchWrite
	case "readwrite":
		wpType = debugger.WatchReadWrite
	default:
		return fmt.Errorf("invalid watchpoint type: %s", watchType)
	}

	expression := fmt.Sprintf("[0x%016X]", address)
	wp := s.debugger.Watchpoints.AddWatchpoint(wpType, expression, address, false, 0)
	return s.debugger.Watchpoints.InitializeWatchpoint(wp.ID, s.vm)
}

// RemoveWatchpoint removes a watchpoint by ID.
func (s *DebuggerService) RemoveWatchpoint(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debugger.Watchpoints.DeleteWatchpoint(id)
}

// GetWatchpoints returns all watchpoints.
func (s *DebuggerService) GetWatchpoints() []WatchpointInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wps := s.debugger.Watchpoints.GetAllWatchpoints()
	result := make([]WatchpointInfo, len(wps))
	for i, wp := range wps {
		var wpType string
		switch wp.Type {
		case debugger.WatchRead:
			wpType = "read"
		case debugger.WatchWrite:
			wpType = "write"
		case debugger.WatchReadWrite:
			wpType = "readwrite"
		}
		result[i] = WatchpointInfo{
			ID:         wp.ID,
			Address:    wp.Address,
			Type:       wpType,
			IsRegister: wp.IsRegister,
			Register:   wp.Register,
			Enabled:    wp.Enabled,
			HitCount:   wp.HitCount,
		}
	}
	return result
}

// ExecuteCommand executes a debugger command and returns its output.
func (s *DebuggerService) ExecuteCommand(command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.debugger.ExecuteCommand(command)
	return s.debugger.GetOutput(), err
}

// EvaluateExpression evaluates an expression against current machine
// state and the loaded symbol table.
func (s *DebuggerService) EvaluateExpression(expr string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debugger.Evaluator == nil {
		return 0, fmt.Errorf("no program loaded")
	}
	return s.debugger.Evaluator.EvaluateExpression(expr, s.vm, s.symbols)
}

// SendInput is not supported: the installed syscall table's read
// handler reads directly from the host process's stdin, which has no
// per-session redirection hook. A hosted session cannot accept
// interactive guest input; callers wanting this should run the CLI
// directly against a terminal instead.
func (s *DebuggerService) SendInput(input string) error {
	return fmt.Errorf("interactive stdin is not supported for hosted sessions")
}

// EnableExecutionTrace enables execution tracing.
func (s *DebuggerService) EnableExecutionTrace() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vm.ExecutionTrace == nil {
		s.vm.ExecutionTrace = vm.NewExecutionTrace(io.Discard)
		if len(s.symbols) > 0 {
			inv := make(map[uint64]string, len(s.symbols))
			for name, addr := range s.symbols {
				inv[addr] = name
			}
			s.vm.ExecutionTrace.LoadSymbols(inv)
		}
	}
	s.vm.ExecutionTrace.Enabled = true
	s.vm.ExecutionTrace.Start()
	return nil
}

// DisableExecutionTrace disables execution tracing.
func (s *DebuggerService) DisableExecutionTrace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vm.ExecutionTrace != nil {
		s.vm.ExecutionTrace.Enabled = false
	}
}

// GetExecutionTraceData returns execution trace entries.
func (s *DebuggerService) GetExecutionTraceData() ([]vm.TraceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.vm.ExecutionTrace == nil {
		return []vm.TraceEntry{}, nil
	}
	return s.vm.ExecutionTrace.GetEntries(), nil
}

// ClearExecutionTrace clears execution trace entries by restarting the
// trace's recording window; there is no narrower clear in the tracer.
func (s *DebuggerService) ClearExecutionTrace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vm.ExecutionTrace != nil {
		s.vm.ExecutionTrace.Start()
	}
}

// EnableStatistics enables performance statistics collection.
func (s *DebuggerService) EnableStatistics() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vm.Statistics == nil {
		s.vm.Statistics = vm.NewPerformanceStatistics()
	}
	s.vm.Statistics.Enabled = true
	s.vm.Statistics.Start()
	return nil
}

// DisableStatistics disables performance statistics collection.
func (s *DebuggerService) DisableStatistics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vm.Statistics != nil {
		s.vm.Statistics.Enabled = false
	}
}

// GetStatistics returns the performance statistics collector. Its
// String/ExportJSON/ExportCSV/ExportHTML methods finalize the derived
// fields (execution time, instructions/sec) internally, so no separate
// finalize step is needed here.
func (s *DebuggerService) GetStatistics() (*vm.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.vm.Statistics == nil {
		return nil, fmt.Errorf("statistics not enabled")
	}
	return s.vm.Statistics, nil
}
