package vm

// execJump implements JAL and JALR. Both write PC+4 into rd and set PC to
// the computed target, after checking the target's alignment.
func (m *Machine) execJump(op Op, w Word) error {
	var target uint64
	switch op {
	case OpJALOp:
		target = uint64(int64(m.CPU.PC) + w.ImmJ())
	case OpJALROp:
		target = (m.CPU.Get(w.Rs1()) + uint64(w.ImmI())) &^ 1
	}

	if target%4 != 0 {
		return m.Trap(CauseInstructionAddrMisaligned, target, false)
	}

	link := m.CPU.PC + 4
	m.CPU.PC = target
	m.CPU.Set(w.Rd(), link)
	return nil
}

// execBranch implements the six conditional branches. On a taken branch
// the target's alignment is checked before PC is updated; on an untaken
// branch PC simply advances by 4 as the default.
func (m *Machine) execBranch(op Op, w Word) error {
	rs1 := m.CPU.Get(w.Rs1())
	rs2 := m.CPU.Get(w.Rs2())

	var taken bool
	switch op {
	case OpBEQ:
		taken = rs1 == rs2
	case OpBNE:
		taken = rs1 != rs2
	case OpBLT:
		taken = int64(rs1) < int64(rs2)
	case OpBGE:
		taken = int64(rs1) >= int64(rs2)
	case OpBLTU:
		taken = rs1 < rs2
	case OpBGEU:
		taken = rs1 >= rs2
	}

	if m.Statistics != nil {
		m.Statistics.recordBranch(taken)
	}

	if !taken {
		m.CPU.PC += 4
		return nil
	}

	target := uint64(int64(m.CPU.PC) + w.ImmB())
	if target%4 != 0 {
		return m.Trap(CauseInstructionAddrMisaligned, target, false)
	}
	m.CPU.PC = target
	return nil
}
