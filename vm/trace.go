package vm

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"
	"time"
)

// regName returns the conventional ABI name for integer register reg
// (0-31), used by the trace filter and by trace output lines.
func regName(reg int) string {
	names := [32]string{
		"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
		"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
		"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
		"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
	}
	return names[reg&0x1F]
}

func symbolFor(symbols map[uint64]string, addr uint64) string {
	if symbols == nil {
		return ""
	}
	return symbols[addr]
}

// TraceEntry is one retired-instruction record kept by ExecutionTrace.
type TraceEntry struct {
	Sequence        uint64
	PC              uint64
	Raw             uint32
	RegisterChanges map[string]uint64
	Duration        time.Duration
}

// ExecutionTrace records PC/opcode/register-change history for every
// retired instruction, per component I.
type ExecutionTrace struct {
	Enabled    bool
	Writer     io.Writer
	FilterRegs map[string]bool
	MaxEntries int

	entries      []TraceEntry
	startTime    time.Time
	lastSnapshot [32]uint64
	haveSnapshot bool
	symbols      map[uint64]string
}

func NewExecutionTrace(writer io.Writer) *ExecutionTrace {
	return &ExecutionTrace{
		Enabled:    true,
		Writer:     writer,
		FilterRegs: make(map[string]bool),
		MaxEntries: 100000,
		entries:    make([]TraceEntry, 0, 1000),
		symbols:    make(map[uint64]string),
	}
}

// SetFilterRegisters restricts the recorded register changes to the
// named ABI registers (e.g. "a0", "sp", "ra"); empty clears the filter.
func (t *ExecutionTrace) SetFilterRegisters(regs []string) {
	t.FilterRegs = make(map[string]bool)
	for _, r := range regs {
		t.FilterRegs[strings.ToLower(strings.TrimSpace(r))] = true
	}
}

func (t *ExecutionTrace) LoadSymbols(symbols map[uint64]string) {
	t.symbols = symbols
}

func (t *ExecutionTrace) Start() {
	t.startTime = time.Now()
	t.entries = t.entries[:0]
	t.haveSnapshot = false
}

func (t *ExecutionTrace) record(m *Machine, pc uint64, raw uint32) {
	if !t.Enabled || (t.MaxEntries > 0 && len(t.entries) >= t.MaxEntries) {
		return
	}

	entry := TraceEntry{
		Sequence:        m.CPU.Cycles,
		PC:              pc,
		Raw:             raw,
		RegisterChanges: make(map[string]uint64),
		Duration:        time.Since(t.startTime),
	}

	for reg := 0; reg < 32; reg++ {
		name := regName(reg)
		if len(t.FilterRegs) > 0 && !t.FilterRegs[name] {
			continue
		}
		v := m.CPU.Get(reg)
		if !t.haveSnapshot || t.lastSnapshot[reg] != v {
			entry.RegisterChanges[name] = v
		}
	}
	copy(t.lastSnapshot[:], m.CPU.X[:])
	t.haveSnapshot = true

	t.entries = append(t.entries, entry)
}

func (t *ExecutionTrace) Flush() error {
	if t.Writer == nil {
		return nil
	}
	for _, e := range t.entries {
		if err := t.writeEntry(e); err != nil {
			return err
		}
	}
	return nil
}

func (t *ExecutionTrace) writeEntry(e TraceEntry) error {
	line := fmt.Sprintf("[%06d] pc=%#016x raw=%#010x", e.Sequence, e.PC, e.Raw)
	if name := symbolFor(t.symbols, e.PC); name != "" {
		line += " <" + name + ">"
	}
	if len(e.RegisterChanges) > 0 {
		changes := make([]string, 0, len(e.RegisterChanges))
		for name, v := range e.RegisterChanges {
			changes = append(changes, fmt.Sprintf("%s=%#x", name, v))
		}
		sort.Strings(changes)
		line += " | " + strings.Join(changes, " ")
	}
	line += fmt.Sprintf(" | %v\n", e.Duration)
	_, err := t.Writer.Write([]byte(line))
	return err
}

func (t *ExecutionTrace) GetEntries() []TraceEntry { return t.entries }

// MemoryAccessEntry is one recorded load or store.
type MemoryAccessEntry struct {
	Sequence  uint64
	PC        uint64
	Address   uint64
	Size      int
	Value     uint64
	IsWrite   bool
	Timestamp time.Duration
}

// MemoryTrace records every guest load and store, per component I.
type MemoryTrace struct {
	Enabled    bool
	Writer     io.Writer
	MaxEntries int

	entries   []MemoryAccessEntry
	startTime time.Time
	symbols   map[uint64]string
}

func NewMemoryTrace(writer io.Writer) *MemoryTrace {
	return &MemoryTrace{
		Enabled:    true,
		Writer:     writer,
		MaxEntries: 100000,
		entries:    make([]MemoryAccessEntry, 0, 1000),
		symbols:    make(map[uint64]string),
	}
}

func (t *MemoryTrace) LoadSymbols(symbols map[uint64]string) { t.symbols = symbols }

func (t *MemoryTrace) Start() {
	t.startTime = time.Now()
	t.entries = t.entries[:0]
}

func (t *MemoryTrace) recordRead(m *Machine, addr uint64, size int, value uint64) {
	t.recordAccess(m, addr, size, value, false)
}

func (t *MemoryTrace) recordWrite(m *Machine, addr uint64, size int, value uint64) {
	t.recordAccess(m, addr, size, value, true)
}

func (t *MemoryTrace) recordAccess(m *Machine, addr uint64, size int, value uint64, isWrite bool) {
	if !t.Enabled || (t.MaxEntries > 0 && len(t.entries) >= t.MaxEntries) {
		return
	}
	t.entries = append(t.entries, MemoryAccessEntry{
		Sequence:  m.CPU.Cycles,
		PC:        m.CPU.PC,
		Address:   addr,
		Size:      size,
		Value:     value,
		IsWrite:   isWrite,
		Timestamp: time.Since(t.startTime),
	})
}

func (t *MemoryTrace) Flush() error {
	if t.Writer == nil {
		return nil
	}
	for _, e := range t.entries {
		dir := "<-"
		kind := "READ"
		if e.IsWrite {
			dir = "->"
			kind = "WRITE"
		}
		line := fmt.Sprintf("[%06d] [%-5s] pc=%#016x %s [%#016x] = %#x (%d bytes)\n",
			e.Sequence, kind, e.PC, dir, e.Address, e.Value, e.Size)
		if _, err := t.Writer.Write([]byte(line)); err != nil {
			return err
		}
	}
	return nil
}

func (t *MemoryTrace) GetEntries() []MemoryAccessEntry { return t.entries }

// RegisterAccessEntry records a single register write observed between
// two instructions.
type RegisterAccessEntry struct {
	Sequence uint64
	PC       uint64
	Reg      string
	Old, New uint64
}

// RegisterTrace is a narrower view of ExecutionTrace's register-change
// tracking, kept as its own sink so a caller can enable it without
// paying for full instruction trace entries.
type RegisterTrace struct {
	Enabled bool
	Writer  io.Writer

	entries  []RegisterAccessEntry
	snapshot [32]uint64
	have     bool
	symbols  map[uint64]string
}

func NewRegisterTrace(writer io.Writer) *RegisterTrace {
	return &RegisterTrace{Enabled: true, Writer: writer, symbols: make(map[uint64]string)}
}

func (t *RegisterTrace) LoadSymbols(symbols map[uint64]string) { t.symbols = symbols }

func (t *RegisterTrace) Start() {
	t.entries = t.entries[:0]
	t.have = false
}

func (t *RegisterTrace) record(m *Machine, pc uint64) {
	if !t.Enabled {
		return
	}
	if t.have {
		for reg := 1; reg < 32; reg++ {
			v := m.CPU.Get(reg)
			if t.snapshot[reg] != v {
				t.entries = append(t.entries, RegisterAccessEntry{
					Sequence: m.CPU.Cycles,
					PC:       pc,
					Reg:      regName(reg),
					Old:      t.snapshot[reg],
					New:      v,
				})
			}
		}
	}
	copy(t.snapshot[:], m.CPU.X[:])
	t.have = true
}

func (t *RegisterTrace) Flush() error {
	if t.Writer == nil {
		return nil
	}
	for _, e := range t.entries {
		line := fmt.Sprintf("[%06d] pc=%#016x %s: %#x -> %#x\n", e.Sequence, e.PC, e.Reg, e.Old, e.New)
		if _, err := t.Writer.Write([]byte(line)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RegisterTrace) GetEntries() []RegisterAccessEntry { return t.entries }

// TrapTraceEntry records one trap entry or MRET return.
type TrapTraceEntry struct {
	Sequence    uint64
	Cause       uint64
	Value       uint64
	FromPriv    int
	ToPriv      int
	IsInterrupt bool
	IsReturn    bool
}

// TrapTrace records every trap entry that goes through the trap vector,
// and every MRET. An ECALL serviced by a registered syscall handler takes
// no trap entry and is not recorded.
type TrapTrace struct {
	Enabled bool
	Writer  io.Writer

	entries []TrapTraceEntry
}

func NewTrapTrace(writer io.Writer) *TrapTrace {
	return &TrapTrace{Enabled: true, Writer: writer}
}

func (t *TrapTrace) Start() { t.entries = t.entries[:0] }

func (t *TrapTrace) record(m *Machine, cause, value uint64, fromPriv, toPriv int, isInterrupt bool) {
	if !t.Enabled {
		return
	}
	t.entries = append(t.entries, TrapTraceEntry{
		Sequence: m.CPU.Cycles, Cause: cause, Value: value,
		FromPriv: fromPriv, ToPriv: toPriv, IsInterrupt: isInterrupt,
	})
}

func (t *TrapTrace) recordReturn(m *Machine, fromPriv, toPriv int) {
	if !t.Enabled {
		return
	}
	t.entries = append(t.entries, TrapTraceEntry{
		Sequence: m.CPU.Cycles, FromPriv: fromPriv, ToPriv: toPriv, IsReturn: true,
	})
}

func (t *TrapTrace) Flush() error {
	if t.Writer == nil {
		return nil
	}
	for _, e := range t.entries {
		var line string
		if e.IsReturn {
			line = fmt.Sprintf("[%06d] mret priv %d -> %d\n", e.Sequence, e.FromPriv, e.ToPriv)
		} else {
			kind := "exception"
			if e.IsInterrupt {
				kind = "interrupt"
			}
			line = fmt.Sprintf("[%06d] trap %s cause=%#x value=%#x priv %d -> %d\n",
				e.Sequence, kind, e.Cause, e.Value, e.FromPriv, e.ToPriv)
		}
		if _, err := t.Writer.Write([]byte(line)); err != nil {
			return err
		}
	}
	return nil
}

func (t *TrapTrace) GetEntries() []TrapTraceEntry { return t.entries }

// InstructionStats is a per-class instruction count used by Statistics'
// top-N reports.
type InstructionStats struct {
	Class string
	Count uint64
}

// HotPathEntry is a frequently-retired PC.
type HotPathEntry struct {
	Address uint64
	Count   uint64
}

// Statistics tracks cycle and instruction-class counts across a run,
// exportable as JSON, CSV, or a small HTML report.
type Statistics struct {
	Enabled bool

	TotalInstructions  uint64
	TotalCycles        uint64
	ExecutionTime      time.Duration
	InstructionsPerSec float64

	ClassCounts map[string]uint64
	HotPath     map[uint64]uint64

	BranchCount       uint64
	BranchTakenCount  uint64
	BranchMissedCount uint64

	MemoryReads  uint64
	MemoryWrites uint64
	BytesRead    uint64
	BytesWritten uint64

	startTime time.Time
}

func NewPerformanceStatistics() *Statistics {
	return &Statistics{
		Enabled:     true,
		ClassCounts: make(map[string]uint64),
		HotPath:     make(map[uint64]uint64),
	}
}

func (s *Statistics) Start() {
	s.startTime = time.Now()
	s.TotalInstructions = 0
	s.TotalCycles = 0
	s.ClassCounts = make(map[string]uint64)
	s.HotPath = make(map[uint64]uint64)
	s.BranchCount, s.BranchTakenCount, s.BranchMissedCount = 0, 0, 0
	s.MemoryReads, s.MemoryWrites, s.BytesRead, s.BytesWritten = 0, 0, 0, 0
}

func (s *Statistics) recordInstruction(op Op, pc uint64) {
	if !s.Enabled {
		return
	}
	s.TotalInstructions++
	s.TotalCycles++
	s.ClassCounts[opClass(op)]++
	s.HotPath[pc]++
}

func (s *Statistics) recordBranch(taken bool) {
	if !s.Enabled {
		return
	}
	s.BranchCount++
	if taken {
		s.BranchTakenCount++
	} else {
		s.BranchMissedCount++
	}
}

func (s *Statistics) recordMemoryRead(bytes uint64) {
	if !s.Enabled {
		return
	}
	s.MemoryReads++
	s.BytesRead += bytes
}

func (s *Statistics) recordMemoryWrite(bytes uint64) {
	if !s.Enabled {
		return
	}
	s.MemoryWrites++
	s.BytesWritten += bytes
}

// opClass buckets an Op into the class names component I reports
// statistics by: branch/load/store/alu/system/mul-div/amo/jump/other.
func opClass(op Op) string {
	switch {
	case op == OpJALOp || op == OpJALROp:
		return "jump"
	case op == OpBEQ || op == OpBNE || op == OpBLT || op == OpBGE || op == OpBLTU || op == OpBGEU:
		return "branch"
	case op >= OpLB && op <= OpLWU:
		return "load"
	case op >= OpSB && op <= OpSD:
		return "store"
	case op >= OpADDI && op <= OpSRAW:
		return "alu"
	case op == OpFENCE || op == OpECALL || op == OpEBREAK || op == OpMRET || op == OpWFI ||
		(op >= OpCSRRW && op <= OpCSRRCI):
		return "system"
	case op >= OpMUL && op <= OpREMUW:
		return "mul-div"
	case op >= OpLRW && op <= OpAMOMAXUD:
		return "amo"
	default:
		return "other"
	}
}

func (s *Statistics) finalize() {
	s.ExecutionTime = time.Since(s.startTime)
	if s.ExecutionTime.Seconds() > 0 {
		s.InstructionsPerSec = float64(s.TotalInstructions) / s.ExecutionTime.Seconds()
	}
}

func (s *Statistics) topClasses(n int) []InstructionStats {
	stats := make([]InstructionStats, 0, len(s.ClassCounts))
	for class, count := range s.ClassCounts {
		stats = append(stats, InstructionStats{Class: class, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Count > stats[j].Count })
	if n > 0 && n < len(stats) {
		return stats[:n]
	}
	return stats
}

func (s *Statistics) topHotPath(n int) []HotPathEntry {
	entries := make([]HotPathEntry, 0, len(s.HotPath))
	for addr, count := range s.HotPath {
		entries = append(entries, HotPathEntry{Address: addr, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Count > entries[j].Count })
	if n > 0 && n < len(entries) {
		return entries[:n]
	}
	return entries
}

func (s *Statistics) ExportJSON(w io.Writer) error {
	s.finalize()
	data := map[string]interface{}{
		"total_instructions":   s.TotalInstructions,
		"total_cycles":         s.TotalCycles,
		"execution_time_ms":    s.ExecutionTime.Milliseconds(),
		"instructions_per_sec": s.InstructionsPerSec,
		"branch_count":         s.BranchCount,
		"branch_taken":         s.BranchTakenCount,
		"branch_missed":        s.BranchMissedCount,
		"memory_reads":         s.MemoryReads,
		"memory_writes":        s.MemoryWrites,
		"bytes_read":           s.BytesRead,
		"bytes_written":        s.BytesWritten,
		"class_counts":         s.topClasses(0),
		"hot_path":             s.topHotPath(20),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (s *Statistics) ExportCSV(w io.Writer) error {
	s.finalize()
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Metric", "Value"}); err != nil {
		return err
	}
	rows := [][]string{
		{"Total Instructions", fmt.Sprintf("%d", s.TotalInstructions)},
		{"Total Cycles", fmt.Sprintf("%d", s.TotalCycles)},
		{"Execution Time (ms)", fmt.Sprintf("%d", s.ExecutionTime.Milliseconds())},
		{"Instructions/Sec", fmt.Sprintf("%.2f", s.InstructionsPerSec)},
		{"Branch Count", fmt.Sprintf("%d", s.BranchCount)},
		{"Branch Taken", fmt.Sprintf("%d", s.BranchTakenCount)},
		{"Branch Missed", fmt.Sprintf("%d", s.BranchMissedCount)},
		{"Memory Reads", fmt.Sprintf("%d", s.MemoryReads)},
		{"Memory Writes", fmt.Sprintf("%d", s.MemoryWrites)},
		{"Bytes Read", fmt.Sprintf("%d", s.BytesRead)},
		{"Bytes Written", fmt.Sprintf("%d", s.BytesWritten)},
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{}); err != nil {
		return err
	}
	if err := writer.Write([]string{"Class", "Count"}); err != nil {
		return err
	}
	for _, stat := range s.topClasses(0) {
		if err := writer.Write([]string{stat.Class, fmt.Sprintf("%d", stat.Count)}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Statistics) ExportHTML(w io.Writer) error {
	s.finalize()
	tmpl := template.Must(template.New("stats").Parse(`
<!DOCTYPE html>
<html>
<head>
    <title>RV64IMA Execution Statistics</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        h1 { color: #333; }
        h2 { color: #666; margin-top: 30px; }
        table { border-collapse: collapse; margin: 10px 0; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #4CAF50; color: white; }
        tr:nth-child(even) { background-color: #f2f2f2; }
        .metric { font-weight: bold; }
    </style>
</head>
<body>
    <h1>RV64IMA Execution Statistics</h1>
    <h2>Execution Summary</h2>
    <table>
        <tr><td class="metric">Total Instructions</td><td>{{.TotalInstructions}}</td></tr>
        <tr><td class="metric">Total Cycles</td><td>{{.TotalCycles}}</td></tr>
        <tr><td class="metric">Execution Time</td><td>{{.ExecutionTime}}</td></tr>
        <tr><td class="metric">Instructions/Second</td><td>{{printf "%.2f" .InstructionsPerSec}}</td></tr>
    </table>
    <h2>Branch Statistics</h2>
    <table>
        <tr><td class="metric">Total Branches</td><td>{{.BranchCount}}</td></tr>
        <tr><td class="metric">Branches Taken</td><td>{{.BranchTakenCount}}</td></tr>
        <tr><td class="metric">Branches Not Taken</td><td>{{.BranchMissedCount}}</td></tr>
    </table>
    <h2>Memory Access Statistics</h2>
    <table>
        <tr><td class="metric">Memory Reads</td><td>{{.MemoryReads}}</td></tr>
        <tr><td class="metric">Memory Writes</td><td>{{.MemoryWrites}}</td></tr>
        <tr><td class="metric">Bytes Read</td><td>{{.BytesRead}}</td></tr>
        <tr><td class="metric">Bytes Written</td><td>{{.BytesWritten}}</td></tr>
    </table>
    <h2>Instruction Classes</h2>
    <table>
        <tr><th>Class</th><th>Count</th></tr>
        {{range .ClassCounts}}
        <tr><td>{{.Class}}</td><td>{{.Count}}</td></tr>
        {{end}}
    </table>
    <h2>Hot Path (most executed addresses)</h2>
    <table>
        <tr><th>Address</th><th>Executions</th></tr>
        {{range .HotPath}}
        <tr><td>{{printf "%#016x" .Address}}</td><td>{{.Count}}</td></tr>
        {{end}}
    </table>
</body>
</html>
`))

	data := struct {
		TotalInstructions  uint64
		TotalCycles        uint64
		ExecutionTime      time.Duration
		InstructionsPerSec float64
		BranchCount        uint64
		BranchTakenCount   uint64
		BranchMissedCount  uint64
		MemoryReads        uint64
		MemoryWrites       uint64
		BytesRead          uint64
		BytesWritten       uint64
		ClassCounts        []InstructionStats
		HotPath            []HotPathEntry
	}{
		TotalInstructions:  s.TotalInstructions,
		TotalCycles:        s.TotalCycles,
		ExecutionTime:      s.ExecutionTime,
		InstructionsPerSec: s.InstructionsPerSec,
		BranchCount:        s.BranchCount,
		BranchTakenCount:   s.BranchTakenCount,
		BranchMissedCount:  s.BranchMissedCount,
		MemoryReads:        s.MemoryReads,
		MemoryWrites:       s.MemoryWrites,
		BytesRead:          s.BytesRead,
		BytesWritten:       s.BytesWritten,
		ClassCounts:        s.topClasses(0),
		HotPath:            s.topHotPath(20),
	}
	return tmpl.Execute(w, data)
}

func (s *Statistics) String() string {
	s.finalize()
	var sb strings.Builder
	sb.WriteString("Execution Statistics\n")
	sb.WriteString("=====================\n\n")
	sb.WriteString(fmt.Sprintf("Total Instructions:  %d\n", s.TotalInstructions))
	sb.WriteString(fmt.Sprintf("Total Cycles:        %d\n", s.TotalCycles))
	sb.WriteString(fmt.Sprintf("Execution Time:      %v\n", s.ExecutionTime))
	sb.WriteString(fmt.Sprintf("Instructions/Sec:    %.2f\n\n", s.InstructionsPerSec))
	sb.WriteString(fmt.Sprintf("Branch Count:        %d\n", s.BranchCount))
	sb.WriteString(fmt.Sprintf("Branches Taken:      %d\n", s.BranchTakenCount))
	sb.WriteString(fmt.Sprintf("Branches Not Taken:  %d\n\n", s.BranchMissedCount))
	sb.WriteString(fmt.Sprintf("Memory Reads:        %d (%d bytes)\n", s.MemoryReads, s.BytesRead))
	sb.WriteString(fmt.Sprintf("Memory Writes:       %d (%d bytes)\n\n", s.MemoryWrites, s.BytesWritten))
	sb.WriteString("Instruction classes:\n")
	for _, stat := range s.topClasses(0) {
		pct := float64(stat.Count) / float64(s.TotalInstructions) * 100
		sb.WriteString(fmt.Sprintf("  %-8s %8d (%.1f%%)\n", stat.Class, stat.Count, pct))
	}
	return sb.String()
}
