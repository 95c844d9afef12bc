package api

import (
	"time"

	"github.com/rv64ima/emulator/service"
)

// SessionCreateRequest represents a request to create a new session
type SessionCreateRequest struct {
	RAMSize uint64 `json:"ramSize,omitempty"` // Guest RAM size in bytes (default: 16MB)
	FSRoot  string `json:"fsRoot,omitempty"`   // Filesystem root directory for the guest syscall table
}

// SessionCreateResponse represents the response from creating a session
type SessionCreateResponse struct {
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionStatusResponse represents the current status of a session
type SessionStatusResponse struct {
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
	PC        uint64 `json:"pc"`
	Cycles    uint64 `json:"cycles"`
	ExitCode  int32  `json:"exitCode"`
}

// LoadProgramRequest represents a request to load a program. Binary is
// the raw bytes of an ELF64 RISC-V executable, base64-encoded by the
// JSON layer (Go's encoding/json does this automatically for []byte).
type LoadProgramRequest struct {
	Binary []byte `json:"binary"`
	FSRoot string `json:"fsRoot,omitempty"`
}

// LoadProgramResponse represents the response from loading a program
type LoadProgramResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
	Entry   uint64            `json:"entry"`
	Symbols map[string]uint64 `json:"symbols,omitempty"`
}

// RegistersResponse represents the current register state
type RegistersResponse struct {
	X       [32]uint64 `json:"x"`
	PC      uint64     `json:"pc"`
	Priv    int        `json:"priv"`
	Mstatus uint64     `json:"mstatus"`
	Mcause  uint64     `json:"mcause"`
	Cycles  uint64     `json:"cycles"`
}

// MemoryRequest represents a request for memory data
type MemoryRequest struct {
	Address uint64 `json:"address"`
	Length  uint64 `json:"length"`
}

// MemoryResponse represents memory data
type MemoryResponse struct {
	Address uint64 `json:"address"`
	Data    []byte `json:"data"`
	Length  uint64 `json:"length"`
}

// DisassemblyRequest represents a request for disassembly
type DisassemblyRequest struct {
	Address uint64 `json:"address"`
	Count   uint64 `json:"count"`
}

// DisassemblyResponse represents disassembled instructions
type DisassemblyResponse struct {
	Instructions []InstructionInfo `json:"instructions"`
}

// InstructionInfo represents a single fetched instruction word
type InstructionInfo struct {
	Address uint64 `json:"address"`
	Opcode  uint32 `json:"opcode"`
	Symbol  string `json:"symbol,omitempty"`
}

// BreakpointRequest represents a request to add/remove a breakpoint
type BreakpointRequest struct {
	Address uint64 `json:"address"`
}

// BreakpointsResponse represents a list of breakpoints
type BreakpointsResponse struct {
	Breakpoints []service.BreakpointInfo `json:"breakpoints"`
}

// WatchpointRequest represents a request to add a watchpoint
type WatchpointRequest struct {
	Address uint64 `json:"address"`
	Type    string `json:"type"` // "read", "write", "readwrite"
}

// WatchpointResponse represents a single created watchpoint
type WatchpointResponse struct {
	ID      int    `json:"id"`
	Address uint64 `json:"address"`
	Type    string `json:"type"`
}

// WatchpointsResponse represents a list of watchpoints
type WatchpointsResponse struct {
	Watchpoints []service.WatchpointInfo `json:"watchpoints"`
}

// StdinRequest represents a request to send stdin data
type StdinRequest struct {
	Data string `json:"data"`
}

// EvaluateRequest represents a request to evaluate a debugger expression
type EvaluateRequest struct {
	Expression string `json:"expression"`
}

// EvaluateResponse represents the result of evaluating an expression
type EvaluateResponse struct {
	Value uint64 `json:"value"`
}

// CommandRequest represents a request to run a debugger command line
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandResponse represents the output of a debugger command
type CommandResponse struct {
	Output string `json:"output"`
}

// ConsoleOutputResponse represents accumulated guest program output
type ConsoleOutputResponse struct {
	Output string `json:"output"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// SuccessResponse represents a simple success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Event represents a WebSocket event
type Event struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// OutputEvent represents console output
type OutputEvent struct {
	Stream  string `json:"stream"` // "stdout" or "stderr"
	Content string `json:"content"`
}

// ExecutionEvent represents execution events like breakpoints
type ExecutionEvent struct {
	Event   string `json:"event"` // "breakpoint_hit", "error", "halted"
	Address uint64 `json:"address,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
	Message string `json:"message,omitempty"`
}

// TraceEntryInfo is the API projection of vm.TraceEntry.
type TraceEntryInfo struct {
	Sequence        uint64            `json:"sequence"`
	PC              uint64            `json:"pc"`
	Opcode          uint32            `json:"opcode"`
	RegisterChanges map[string]uint64 `json:"registerChanges"`
	DurationNs      int64             `json:"durationNs"`
}

// TraceDataResponse represents a batch of execution trace entries
type TraceDataResponse struct {
	Entries []TraceEntryInfo `json:"entries"`
	Count   int              `json:"count"`
}

// StatisticsResponse is the API projection of vm.Statistics.
type StatisticsResponse struct {
	TotalInstructions  uint64            `json:"totalInstructions"`
	TotalCycles        uint64            `json:"totalCycles"`
	ExecutionTimeMs    int64             `json:"executionTimeMs"`
	InstructionsPerSec float64           `json:"instructionsPerSec"`
	ClassCounts        map[string]uint64 `json:"classCounts"`
	BranchCount        uint64            `json:"branchCount"`
	BranchTakenCount   uint64            `json:"branchTakenCount"`
	BranchMissedCount  uint64            `json:"branchMissedCount"`
	MemoryReads        uint64            `json:"memoryReads"`
	MemoryWrites       uint64            `json:"memoryWrites"`
	BytesRead          uint64            `json:"bytesRead"`
	BytesWritten       uint64            `json:"bytesWritten"`
}

// ExecutionConfig holds execution-related defaults
type ExecutionConfig struct {
	MaxSteps    uint64 `json:"maxSteps"`
	RAMSize     uint64 `json:"ramSize"`
	EnableTrace bool   `json:"enableTrace"`
	EnableStats bool   `json:"enableStats"`
}

// DebuggerConfig holds debugger-related defaults
type DebuggerConfig struct {
	HistorySize    int  `json:"historySize"`
	AutoSaveBreaks bool `json:"autoSaveBreaks"`
	ShowRegisters  bool `json:"showRegisters"`
}

// DisplayConfig holds display-formatting defaults
type DisplayConfig struct {
	ColorOutput   bool   `json:"colorOutput"`
	BytesPerLine  int    `json:"bytesPerLine"`
	DisasmContext int    `json:"disasmContext"`
	NumberFormat  string `json:"numberFormat"`
}

// TraceConfig holds execution-trace defaults
type TraceConfig struct {
	FilterRegs string `json:"filterRegs"`
	MaxEntries int     `json:"maxEntries"`
}

// StatisticsConfig holds statistics-collection defaults
type StatisticsConfig struct {
	Format         string `json:"format"`
	CollectHotPath bool   `json:"collectHotPath"`
}

// ConfigResponse represents server configuration
type ConfigResponse struct {
	Execution  ExecutionConfig  `json:"execution"`
	Debugger   DebuggerConfig   `json:"debugger"`
	Display    DisplayConfig    `json:"display"`
	Trace      TraceConfig      `json:"trace"`
	Statistics StatisticsConfig `json:"statistics"`
}

// ExampleInfo describes one bundled example binary
type ExampleInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ExamplesResponse lists the bundled example binaries
type ExamplesResponse struct {
	Examples []ExampleInfo `json:"examples"`
	Count    int           `json:"count"`
}

// ExampleContentResponse carries the raw bytes of one bundled example
type ExampleContentResponse struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
	Size    int64  `json:"size"`
}

// ToRegisterResponse converts service.RegisterState to API response
func ToRegisterResponse(regs *service.RegisterState) *RegistersResponse {
	return &RegistersResponse{
		X:       regs.X,
		PC:      regs.PC,
		Priv:    regs.Priv,
		Mstatus: regs.Mstatus,
		Mcause:  regs.Mcause,
		Cycles:  regs.Cycles,
	}
}

// ToInstructionInfo converts service.DisassemblyLine to API response
func ToInstructionInfo(line *service.DisassemblyLine) InstructionInfo {
	return InstructionInfo{
		Address: line.Address,
		Opcode:  line.Opcode,
		Symbol:  line.Symbol,
	}
}

// ToTraceEntryInfo converts vm.TraceEntry to API response
func ToTraceEntryInfo(seq uint64, pc uint64, raw uint32, changes map[string]uint64, durationNs int64) TraceEntryInfo {
	return TraceEntryInfo{
		Sequence:        seq,
		PC:              pc,
		Opcode:          raw,
		RegisterChanges: changes,
		DurationNs:      durationNs,
	}
}
