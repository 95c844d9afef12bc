package vm

// execAMO implements LR/SC and the AMO* read-modify-write operations of
// the A extension. Because this is a strictly single-hart, single-
// threaded model, atomicity across the implied read-modify-write is free:
// the core only needs to avoid interleaving a trap between the read and
// the write, which the synchronous engine guarantees by construction.
func (m *Machine) execAMO(op Op, w Word) error {
	size := 4
	if isDoubleAMO(op) {
		size = 8
	}
	addr := m.CPU.Get(w.Rs1())

	switch op {
	case OpLRW, OpLRD:
		v, err := m.Memory.Load(addr, size)
		if err != nil {
			return m.memFault(err, addr, false)
		}
		m.CPU.Reservation.Addr = addr
		m.CPU.Reservation.Valid = true
		m.CPU.Set(w.Rd(), signExtendAMO(v, size))
		return nil

	case OpSCW, OpSCD:
		ok := m.CPU.Reservation.Valid && m.CPU.Reservation.Addr == addr
		m.CPU.ClearReservation()
		if !ok {
			m.CPU.Set(w.Rd(), 1)
			return nil
		}
		if err := m.Memory.Store(addr, size, m.CPU.Get(w.Rs2())); err != nil {
			return m.memFault(err, addr, false)
		}
		m.CPU.Set(w.Rd(), 0)
		return nil
	}

	// AMO read-modify-writes are classified as Store/AMO faults on both
	// the read and write phase, per the base ISA's exception taxonomy.
	old, err := m.Memory.Load(addr, size)
	if err != nil {
		return m.memFault(err, addr, false)
	}
	m.CPU.ClearReservation()

	rs2 := m.CPU.Get(w.Rs2())
	result := amoCombine(op, old, rs2, size)

	if err := m.Memory.Store(addr, size, result); err != nil {
		return m.memFault(err, addr, false)
	}
	m.CPU.Set(w.Rd(), signExtendAMO(old, size))
	return nil
}

func isDoubleAMO(op Op) bool {
	switch op {
	case OpLRD, OpSCD, OpAMOSWAPD, OpAMOADDD, OpAMOXORD, OpAMOANDD, OpAMOORD,
		OpAMOMIND, OpAMOMAXD, OpAMOMINUD, OpAMOMAXUD:
		return true
	default:
		return false
	}
}

// signExtendAMO sign-extends a 4-byte AMO result to 64 bits; 8-byte
// results are already full-width.
func signExtendAMO(v uint64, size int) uint64 {
	if size == 4 {
		return uint64(int64(int32(v)))
	}
	return v
}

// amoCombine applies the per-opcode combiner to the old memory value and
// the register operand, working in the operation's native width.
func amoCombine(op Op, old, rs2 uint64, size int) uint64 {
	if size == 4 {
		o, r := uint32(old), uint32(rs2)
		switch op {
		case OpAMOSWAPW:
			return uint64(r)
		case OpAMOADDW:
			return uint64(o + r)
		case OpAMOXORW:
			return uint64(o ^ r)
		case OpAMOANDW:
			return uint64(o & r)
		case OpAMOORW:
			return uint64(o | r)
		case OpAMOMINW:
			if int32(o) < int32(r) {
				return uint64(o)
			}
			return uint64(r)
		case OpAMOMAXW:
			if int32(o) > int32(r) {
				return uint64(o)
			}
			return uint64(r)
		case OpAMOMINUW:
			if o < r {
				return uint64(o)
			}
			return uint64(r)
		case OpAMOMAXUW:
			if o > r {
				return uint64(o)
			}
			return uint64(r)
		}
	}

	switch op {
	case OpAMOSWAPD:
		return rs2
	case OpAMOADDD:
		return old + rs2
	case OpAMOXORD:
		return old ^ rs2
	case OpAMOANDD:
		return old & rs2
	case OpAMOORD:
		return old | rs2
	case OpAMOMIND:
		if int64(old) < int64(rs2) {
			return old
		}
		return rs2
	case OpAMOMAXD:
		if int64(old) > int64(rs2) {
			return old
		}
		return rs2
	case OpAMOMINUD:
		if old < rs2 {
			return old
		}
		return rs2
	case OpAMOMAXUD:
		if old > rs2 {
			return old
		}
		return rs2
	}
	return old
}
