package vm

import "testing"

func loadProgram(t *testing.T, m *Machine, words []uint32) {
	t.Helper()
	for i, w := range words {
		if err := m.Memory.Store(uint64(i*4), 4, uint64(w)); err != nil {
			t.Fatalf("store instruction %d: %v", i, err)
		}
	}
}

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	m := NewMachine(1 << 20)
	// re-map the code region executable; AddRange replaces in the overlap.
	m.Memory.AddRange(0, 4096, PermRead|PermWrite|PermExecute)
	m.CPU.PC = 0
	exited := false
	m.RegisterSyscall(93, func(mm *Machine) {
		exited = true
		mm.Running = false
	})
	t.Cleanup(func() {
		if !exited {
			t.Log("program never reached ecall 93")
		}
	})
	return m
}

func runToExit(t *testing.T, m *Machine, maxSteps uint64) {
	t.Helper()
	if err := m.Run(maxSteps); err != nil {
		t.Fatalf("run: %v", err)
	}
}

// Scenario 1: immediate arithmetic.
func TestImmediateArithmetic(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(t, m, []uint32{
		0x00500093, // addi x1,x0,5
		0x00700113, // addi x2,x0,7
		0x002081b3, // add x3,x1,x2
		0x05d00893, // addi x17,x0,93
		0x00000073, // ecall
	})
	runToExit(t, m, 100)
	if got := m.CPU.Get(3); got != 12 {
		t.Errorf("x3 = %d, want 12", got)
	}
	if got := m.CPU.Get(17); got != 93 {
		t.Errorf("x17 = %d, want 93", got)
	}
}

// Scenario 2: signed vs unsigned compare.
func TestSignedUnsignedCompare(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(t, m, []uint32{
		0xfff00093, // addi x1,x0,-1
		0x00100113, // addi x2,x0,1
		0x0020a1b3, // slt x3,x1,x2
		0x0020b233, // sltu x4,x1,x2
		0x05d00893, // addi x17,x0,93
		0x00000073, // ecall
	})
	runToExit(t, m, 100)
	if got := m.CPU.Get(3); got != 1 {
		t.Errorf("x3 (slt) = %d, want 1", got)
	}
	if got := m.CPU.Get(4); got != 0 {
		t.Errorf("x4 (sltu) = %d, want 0", got)
	}
}

// Scenario 3: divide by zero.
func TestDivideByZero(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(t, m, []uint32{
		0x02a00093, // addi x1,x0,42
		0x0200c1b3, // div x3,x1,x0
		0x0200e233, // rem x4,x1,x0
		0x05d00893, // addi x17,x0,93
		0x00000073, // ecall
	})
	runToExit(t, m, 100)
	if got := m.CPU.Get(3); got != ^uint64(0) {
		t.Errorf("x3 (div by zero) = %#x, want all-ones", got)
	}
	if got := m.CPU.Get(4); got != 42 {
		t.Errorf("x4 (rem by zero) = %d, want 42", got)
	}
}

// Scenario 4: signed division overflow.
func TestDivideOverflow(t *testing.T) {
	m := newTestMachine(t)
	m.CPU.Set(1, 0x8000000000000000)
	m.CPU.Set(2, ^uint64(0)) // -1
	loadProgram(t, m, []uint32{
		0x0220c1b3, // div x3,x1,x2
		0x0220e233, // rem x4,x1,x2
		0x05d00893, // addi x17,x0,93
		0x00000073, // ecall
	})
	runToExit(t, m, 100)
	if got := m.CPU.Get(3); got != 0x8000000000000000 {
		t.Errorf("x3 (div overflow) = %#x, want 0x8000000000000000", got)
	}
	if got := m.CPU.Get(4); got != 0 {
		t.Errorf("x4 (rem overflow) = %d, want 0", got)
	}
}

// Scenario 5: branch/jump alignment fault.
func TestJumpAlignmentFault(t *testing.T) {
	m := NewMachine(1 << 20)
	m.Memory.AddRange(0, 4096, PermRead|PermWrite|PermExecute)
	m.Memory.AddRange(0x1000, 4096, PermRead|PermWrite)
	m.CSR.Write(CSRMtvec, 0x1000)
	loadProgram(t, m, []uint32{
		0x0020006f, // jal x0,2
	})
	if err := m.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := m.CSR.Read(CSRMcause); got != CauseInstructionAddrMisaligned {
		t.Errorf("mcause = %d, want %d", got, CauseInstructionAddrMisaligned)
	}
	if got := m.CSR.Read(CSRMtval); got != 2 {
		t.Errorf("mtval = %#x, want 0x2", got)
	}
}

// Scenario 6: ecall dispatch iterating a byte string from a0.
func TestECallDispatchByteString(t *testing.T) {
	m := NewMachine(1 << 20)
	m.Memory.AddRange(0, 4096, PermRead|PermWrite|PermExecute)

	var buf []byte
	m.RegisterSyscall(1000, func(mm *Machine) {
		addr := mm.CPU.Get(RegA0)
		for {
			v, err := mm.Memory.Load(addr, 1)
			if err != nil || v == 0 {
				break
			}
			buf = append(buf, byte(v))
			addr++
		}
	})
	exited := false
	m.RegisterSyscall(93, func(mm *Machine) {
		exited = true
		mm.Running = false
	})

	strAddr := uint64(0x800)
	m.Memory.MemcpyIn(strAddr, []byte("hi\x00"))

	m.CPU.Set(RegA7, 1000)
	m.CPU.Set(RegA0, strAddr)
	loadProgram(t, m, []uint32{
		0x00000073, // ecall (1000)
		0x05d00893, // addi x17,x0,93
		0x00000073, // ecall (93)
	})
	runToExit(t, m, 100)

	if !exited {
		t.Fatal("program never exited")
	}
	if string(buf) != "hi" {
		t.Errorf("host buffer = %q, want %q", buf, "hi")
	}
}

func TestRegisterZeroAlwaysReadsZero(t *testing.T) {
	m := NewMachine(1 << 20)
	m.CPU.Set(0, 0xdeadbeef)
	if got := m.CPU.Get(0); got != 0 {
		t.Errorf("x0 = %#x, want 0", got)
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	mem := NewMemory()
	mem.AddRange(0, 4096, PermRead|PermWrite)
	for _, size := range []int{1, 2, 4, 8} {
		addr := uint64(size * 8)
		var v uint64 = 0x1122334455667788
		if err := mem.Store(addr, size, v); err != nil {
			t.Fatalf("store size %d: %v", size, err)
		}
		got, err := mem.Load(addr, size)
		if err != nil {
			t.Fatalf("load size %d: %v", size, err)
		}
		mask := uint64(1)<<(8*size) - 1
		if size == 8 {
			mask = ^uint64(0)
		}
		if got != v&mask {
			t.Errorf("size %d: got %#x, want %#x", size, got, v&mask)
		}
	}
}

func TestMRETIdempotenceAfterSelfTrap(t *testing.T) {
	m := NewMachine(1 << 20)
	m.Memory.AddRange(0, 4096, PermRead|PermWrite|PermExecute)
	m.Memory.AddRange(0x2000, 4096, PermRead|PermWrite|PermExecute)

	// Trap vector at 0x2000: just MRET back.
	if err := m.Memory.Store(0x2000, 4, 0x30200073); err != nil { // mret
		t.Fatal(err)
	}
	m.CSR.Write(CSRMtvec, 0x2000)
	m.CSR.setMstatusMIE(true)

	loadProgram(t, m, []uint32{
		0x00000073, // ecall, at 0x0
	})
	m.CPU.Priv = PrivUser

	if err := m.Step(); err != nil { // executes ecall -> trap -> vector
		t.Fatalf("step into trap: %v", err)
	}
	if m.CPU.Priv != PrivMachine {
		t.Fatalf("priv after trap = %d, want machine", m.CPU.Priv)
	}
	if err := m.Step(); err != nil { // executes mret
		t.Fatalf("step mret: %v", err)
	}
	if m.CPU.Priv != PrivUser {
		t.Errorf("priv after mret = %d, want user", m.CPU.Priv)
	}
	if got := m.CPU.PC; got != 4 {
		t.Errorf("PC after mret = %#x, want 0x4 (instruction after ecall)", got)
	}
	if !m.CSR.mstatusMIE() {
		t.Errorf("MIE not restored after mret")
	}
	if m.CSR.mstatusMPP() != PrivUser {
		t.Errorf("MPP after mret = %d, want user (0)", m.CSR.mstatusMPP())
	}
}

func TestSCSemantics(t *testing.T) {
	m := NewMachine(1 << 20)
	addr := uint64(0x100)

	m.CPU.Set(10, addr) // a0 = address
	m.CPU.Set(11, 0x42) // a1 = value to conditionally store

	// lr.w a2, (a0) ; sc.w a3, a1, (a0)
	const lrw = 0x1005262f   // lr.w x12, (x10)
	const scw = 0x18b526af   // sc.w x13, x11, (x10)
	m.Memory.AddRange(0, 4096, PermRead|PermWrite|PermExecute)
	loadProgram(t, m, []uint32{lrw, scw})

	if err := m.Step(); err != nil {
		t.Fatalf("lr.w: %v", err)
	}
	if !m.CPU.Reservation.Valid || m.CPU.Reservation.Addr != addr {
		t.Fatalf("reservation not set correctly: %+v", m.CPU.Reservation)
	}
	if err := m.Step(); err != nil {
		t.Fatalf("sc.w: %v", err)
	}
	if got := m.CPU.Get(13); got != 0 {
		t.Errorf("sc.w result = %d, want 0 (success)", got)
	}
	v, err := m.Memory.Load(addr, 4)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x42 {
		t.Errorf("memory after sc.w = %#x, want 0x42", v)
	}

	// a second sc.w without an intervening lr.w must fail.
	m.CPU.PC = 4
	if err := m.Step(); err != nil {
		t.Fatalf("second sc.w: %v", err)
	}
	if got := m.CPU.Get(13); got != 1 {
		t.Errorf("second sc.w result = %d, want 1 (failure)", got)
	}
}
