package vm

// execLoad implements LB/LH/LW/LD/LBU/LHU/LWU. Sign-extending variants
// reinterpret the loaded bits through their signed width before widening
// to 64 bits; unsigned variants zero-extend directly.
func (m *Machine) execLoad(op Op, w Word) error {
	addr := m.CPU.Get(w.Rs1()) + uint64(w.ImmI())

	size, signed := loadShape(op)
	v, err := m.Memory.Load(addr, size)
	if err != nil {
		return m.memFault(err, addr, true)
	}
	if m.MemoryTrace != nil {
		m.MemoryTrace.recordRead(m, addr, size, v)
	}
	if m.Statistics != nil {
		m.Statistics.recordMemoryRead(uint64(size))
	}

	if signed {
		switch size {
		case 1:
			v = uint64(int64(int8(v)))
		case 2:
			v = uint64(int64(int16(v)))
		case 4:
			v = uint64(int64(int32(v)))
		}
	}
	m.CPU.Set(w.Rd(), v)
	return nil
}

func loadShape(op Op) (size int, signed bool) {
	switch op {
	case OpLB:
		return 1, true
	case OpLH:
		return 2, true
	case OpLW:
		return 4, true
	case OpLD:
		return 8, false
	case OpLBU:
		return 1, false
	case OpLHU:
		return 2, false
	case OpLWU:
		return 4, false
	default:
		panic("vm: unreachable load shape")
	}
}

// execStore implements SB/SH/SW/SD.
func (m *Machine) execStore(op Op, w Word) error {
	addr := m.CPU.Get(w.Rs1()) + uint64(w.ImmS())
	size := storeSize(op)
	value := m.CPU.Get(w.Rs2())
	if err := m.Memory.Store(addr, size, value); err != nil {
		return m.memFault(err, addr, false)
	}
	if m.MemoryTrace != nil {
		m.MemoryTrace.recordWrite(m, addr, size, value)
	}
	if m.Statistics != nil {
		m.Statistics.recordMemoryWrite(uint64(size))
	}
	return nil
}

func storeSize(op Op) int {
	switch op {
	case OpSB:
		return 1
	case OpSH:
		return 2
	case OpSW:
		return 4
	case OpSD:
		return 8
	default:
		panic("vm: unreachable store size")
	}
}

// memFault translates a *MemError from the memory subsystem into the
// matching architectural trap for a load or store access.
func (m *Machine) memFault(err error, addr uint64, isLoad bool) error {
	me, ok := err.(*MemError)
	if !ok {
		return err
	}
	var cause uint64
	switch {
	case isLoad && me.Kind == FaultMisaligned:
		cause = CauseLoadAddrMisaligned
	case isLoad:
		cause = CauseLoadAccessFault
	case me.Kind == FaultMisaligned:
		cause = CauseStoreAddrMisaligned
	default:
		cause = CauseStoreAccessFault
	}
	return m.Trap(cause, addr, false)
}
