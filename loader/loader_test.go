package loader

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/rv64ima/emulator/vm"
)

// buildMinimalELF writes a tiny ELF64 RISC-V executable with a single
// PT_LOAD segment containing code, to ehdrSize+phdrSize-aligned offsets a
// real linker would also produce.
func buildMinimalELF(t *testing.T, vaddr uint64, code []byte) string {
	t.Helper()

	const ehdrSize = 64
	const phdrSize = 56
	dataOff := uint64(ehdrSize + phdrSize)

	buf := make([]byte, dataOff+uint64(len(code)))

	// e_ident
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // little-endian
	buf[6] = 1 // EV_CURRENT
	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)      // e_type = ET_EXEC
	le.PutUint16(buf[18:], 0xf3)   // e_machine = EM_RISCV
	le.PutUint32(buf[20:], 1)      // e_version
	le.PutUint64(buf[24:], vaddr)  // e_entry
	le.PutUint64(buf[32:], ehdrSize) // e_phoff
	le.PutUint16(buf[52:], ehdrSize) // e_ehsize
	le.PutUint16(buf[54:], phdrSize) // e_phentsize
	le.PutUint16(buf[56:], 1)        // e_phnum

	ph := buf[ehdrSize:]
	le.PutUint32(ph[0:], 1)       // p_type = PT_LOAD
	le.PutUint32(ph[4:], 5)       // p_flags = R+X
	le.PutUint64(ph[8:], dataOff) // p_offset
	le.PutUint64(ph[16:], vaddr)  // p_vaddr
	le.PutUint64(ph[24:], vaddr)  // p_paddr
	le.PutUint64(ph[32:], uint64(len(code))) // p_filesz
	le.PutUint64(ph[40:], uint64(len(code))+16) // p_memsz (extra zero-fill)
	le.PutUint64(ph[48:], 0x1000) // p_align

	copy(buf[dataOff:], code)

	path := filepath.Join(t.TempDir(), "prog.elf")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write elf: %v", err)
	}
	return path
}

func TestLoadMapsSegmentAndPrimesCPU(t *testing.T) {
	vaddr := uint64(0x80000000)
	code := []byte{0x73, 0x00, 0x00, 0x00} // ecall
	path := buildMinimalELF(t, vaddr, code)

	m := vm.NewMachine(1 << 20)
	res, err := Load(path, m, 1<<20)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if m.CPU.PC != vaddr {
		t.Errorf("PC = %#x, want %#x", m.CPU.PC, vaddr)
	}
	if m.CPU.Priv != vm.PrivUser {
		t.Errorf("Priv = %d, want user", m.CPU.Priv)
	}
	if got := m.CPU.Get(vm.RegSP); got != (1<<20)-8 {
		t.Errorf("sp = %#x, want %#x", got, (1<<20)-8)
	}
	if res.Entry != vaddr {
		t.Errorf("Entry = %#x, want %#x", res.Entry, vaddr)
	}

	raw, err := m.Memory.Fetch32(vaddr)
	if err != nil {
		t.Fatalf("fetch mapped code: %v", err)
	}
	if raw != 0x00000073 {
		t.Errorf("fetched word = %#x, want 0x00000073", raw)
	}

	// zero-fill past filesz must read back as zero.
	zv, err := m.Memory.Load(vaddr+uint64(len(code)), 1)
	if err != nil {
		t.Fatalf("fetch zero-filled tail: %v", err)
	}
	if zv != 0 {
		t.Errorf("zero-filled tail byte = %#x, want 0", zv)
	}
}

func TestLoadRejectsNonELF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-an-elf")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := vm.NewMachine(1 << 20)
	if _, err := Load(path, m, 1<<20); err == nil {
		t.Error("Load of a non-ELF file should fail")
	}
}
