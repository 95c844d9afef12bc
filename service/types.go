package service

import "github.com/rv64ima/emulator/vm"

// RegisterState represents a snapshot of the integer register file plus
// the privilege and trap-status CSRs a front end cares about. There is
// no flags register in this architecture; callers after condition-code
// style state should look at Mstatus/Mcause instead.
type RegisterState struct {
	X       [vm.RegisterCount]uint64
	PC      uint64
	Priv    int
	Mstatus uint64
	Mcause  uint64
	Cycles  uint64
}

// BreakpointInfo represents a breakpoint for UI display.
type BreakpointInfo struct {
	ID        int    `json:"id"`
	Address   uint64 `json:"address"`
	Enabled   bool   `json:"enabled"`
	Temporary bool   `json:"temporary"`
	Condition string `json:"condition"` // Expression that must evaluate to true
	HitCount  int    `json:"hitCount"`
}

// WatchpointInfo represents a watchpoint for UI display.
type WatchpointInfo struct {
	ID         int    `json:"id"`
	Address    uint64 `json:"address"`
	Type       string `json:"type"` // "read", "write", "readwrite"
	IsRegister bool   `json:"isRegister"`
	Register   int    `json:"register"`
	Enabled    bool   `json:"enabled"`
	HitCount   int    `json:"hitCount"`
}

// MemoryRegion represents a contiguous memory region.
type MemoryRegion struct {
	Address uint64
	Data    []byte
	Size    uint64
}

// ExecutionState represents the current state of execution, mirrored
// from vm.ExecutionState into a string a JSON client can switch on
// without importing the vm package.
type ExecutionState string

const (
	StateRunning         ExecutionState = "running"
	StateHalted          ExecutionState = "halted"
	StateBreakpoint      ExecutionState = "breakpoint"
	StateError           ExecutionState = "error"
	StateWaitingForInput ExecutionState = "waiting_for_input"
)

// VMStateToExecution converts vm.ExecutionState to service.ExecutionState.
func VMStateToExecution(state vm.ExecutionState) ExecutionState {
	switch state {
	case vm.StateRunning:
		return StateRunning
	case vm.StateHalted:
		return StateHalted
	case vm.StateBreakpoint:
		return StateBreakpoint
	case vm.StateError:
		return StateError
	case vm.StateWaitingForInput:
		return StateWaitingForInput
	default:
		return StateHalted
	}
}

// DisassemblyLine represents a single fetched instruction. There is no
// mnemonic formatter in this core, so a line carries the raw opcode word
// and whatever symbol covers its address; a client renders the mnemonic
// itself if it wants one.
type DisassemblyLine struct {
	Address uint64 `json:"address"`
	Opcode  uint32 `json:"opcode"`
	Symbol  string `json:"symbol"` // Symbol at this address, if any
}

// StackEntry represents a single stack location.
type StackEntry struct {
	Address uint64 `json:"address"`
	Value   uint64 `json:"value"`
	Symbol  string `json:"symbol"` // If value points to a symbol
}
