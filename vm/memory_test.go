package vm

import "testing"

func TestRangeOverlapSplitWinsMostRecent(t *testing.T) {
	m := NewMemory()
	m.AddRange(0, 0x1000, PermRead|PermWrite)
	if err := m.Store(0x10, 1, 0xAB); err != nil {
		t.Fatal(err)
	}
	// overlapping insert covering [0x800, 0x1800): should win that region.
	m.AddRange(0x800, 0x1000, PermRead|PermWrite|PermExecute)

	// byte before the overlap survives untouched.
	v, err := m.Load(0x10, 1)
	if err != nil || v != 0xAB {
		t.Errorf("byte outside overlap: got %#x, err %v", v, err)
	}
	// region in the overlap now has execute permission from the new range.
	if _, err := m.Fetch32(0x900); err != nil {
		t.Errorf("fetch in overlapped region should succeed with execute perm: %v", err)
	}
	// original range's part before the overlap should not have execute permission.
	if _, err := m.Fetch32(0x100); err == nil {
		t.Errorf("fetch outside the newly granted execute region should fault")
	}
}

func TestLoadFaultsOnUnmapped(t *testing.T) {
	m := NewMemory()
	m.AddRange(0, 0x100, PermRead|PermWrite)
	if _, err := m.Load(0x200, 4); err == nil {
		t.Error("load at unmapped address should fault")
	}
}

func TestLoadFaultsOnMisalignment(t *testing.T) {
	m := NewMemory()
	m.AddRange(0, 0x100, PermRead|PermWrite)
	if _, err := m.Load(1, 4); err == nil {
		t.Error("misaligned 4-byte load should fault")
	}
	if _, err := m.Load(1, 1); err != nil {
		t.Errorf("1-byte load can never misalign, got %v", err)
	}
}

func TestMMIORoutesLoadStore(t *testing.T) {
	m := NewMemory()
	var lastStore uint64
	m.AddMMIORange(0x10000, 0x10, PermRead|PermWrite,
		func(addr uint64, size int) uint64 { return 0x42 },
		func(addr uint64, size int, value uint64) { lastStore = value })

	v, err := m.Load(0x10000, 4)
	if err != nil || v != 0x42 {
		t.Errorf("mmio load: got %#x, err %v", v, err)
	}
	if err := m.Store(0x10000, 4, 0x99); err != nil {
		t.Fatal(err)
	}
	if lastStore != 0x99 {
		t.Errorf("mmio store callback saw %#x, want 0x99", lastStore)
	}
}

func TestMemcpyBulkHelpersBypassProtection(t *testing.T) {
	m := NewMemory()
	m.AddRange(0, 0x100, PermNone) // no permissions at all
	m.MemcpyIn(0x10, []byte{1, 2, 3, 4})
	got := m.MemcpyOut(0x10, 4)
	for i, b := range []byte{1, 2, 3, 4} {
		if got[i] != b {
			t.Errorf("byte %d = %d, want %d", i, got[i], b)
		}
	}
	// the protected path still rejects this range.
	if _, err := m.Load(0x10, 1); err == nil {
		t.Error("protected load should still fault despite PermNone range")
	}
}
