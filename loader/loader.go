// Package loader maps a statically-linked ELF64 executable into a
// vm.Machine's address space.
package loader

import (
	"debug/elf"
	"fmt"

	"github.com/rv64ima/emulator/vm"
)

// DefaultStackSlack is added past the highest mapped address when no _end
// symbol is present to fall back on for the initial heap boundary.
const DefaultStackSlack = 0x1000

// LoadResult carries the bookkeeping the CLI and debugger need after a
// successful load: the entry point actually used and the initial heap
// boundary.
type LoadResult struct {
	Entry    uint64
	HeapBase uint64
	Symbols  map[uint64]string
}

// Load reads path as an ELF64 RISC-V executable, maps every PT_LOAD
// segment into m's memory, and primes the CPU for execution: PC at the
// entry point, sp at ramSize-8, privilege at user mode.
//
// A load failure here is a host-level error (§7): it never produces a
// partially-initialized machine the caller might go on to run.
func Load(path string, m *vm.Machine, ramSize uint64) (*LoadResult, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %s: %w", path, err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("loader: %s is not a 64-bit ELF", path)
	}
	if f.Type != elf.ET_EXEC {
		return nil, fmt.Errorf("loader: %s is not a statically-linked executable (type %s)", path, f.Type)
	}
	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("loader: %s is not a RISC-V binary (machine %s)", path, f.Machine)
	}

	var highest uint64
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if err := mapSegment(m, prog); err != nil {
			return nil, fmt.Errorf("loader: %s: %w", path, err)
		}
		if end := prog.Vaddr + prog.Memsz; end > highest {
			highest = end
		}
	}

	heapBase := highest + DefaultStackSlack
	symbols := make(map[uint64]string)
	if syms, err := f.Symbols(); err == nil {
		for _, sym := range syms {
			if sym.Name == "" {
				continue
			}
			symbols[sym.Value] = sym.Name
			if sym.Name == "_end" {
				heapBase = sym.Value
			}
		}
	}

	m.CPU.PC = f.Entry
	m.CPU.Set(vm.RegSP, ramSize-8)
	m.CPU.Priv = vm.PrivUser

	return &LoadResult{Entry: f.Entry, HeapBase: heapBase, Symbols: symbols}, nil
}

// mapSegment copies a PT_LOAD segment's file contents into guest memory,
// zero-fills the remainder, and installs a range with the segment's
// protection. It is the only caller of the memory subsystem's
// protection-bypassing bulk helpers, per §4.F.
func mapSegment(m *vm.Machine, prog *elf.Prog) error {
	data := make([]byte, prog.Filesz)
	if _, err := prog.ReadAt(data, 0); err != nil {
		return fmt.Errorf("read segment at %#x: %w", prog.Vaddr, err)
	}

	perm := segmentPermission(prog.Flags)
	m.Memory.AddRange(prog.Vaddr, prog.Memsz, perm)
	m.Memory.MemcpyIn(prog.Vaddr, data)
	if pad := prog.Memsz - prog.Filesz; pad > 0 {
		m.Memory.Memset(prog.Vaddr+prog.Filesz, 0, int(pad))
	}
	return nil
}

func segmentPermission(flags elf.ProgFlag) vm.Permission {
	var perm vm.Permission
	if flags&elf.PF_R != 0 {
		perm |= vm.PermRead
	}
	if flags&elf.PF_W != 0 {
		perm |= vm.PermWrite
	}
	if flags&elf.PF_X != 0 {
		perm |= vm.PermExecute
	}
	return perm
}
