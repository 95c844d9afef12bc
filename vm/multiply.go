package vm

import "math/bits"

// execMulDiv implements the M extension: MUL/MULH*/DIV*/REM* and their
// -W word-width variants.
func (m *Machine) execMulDiv(op Op, w Word) error {
	rs1 := m.CPU.Get(w.Rs1())
	rs2 := m.CPU.Get(w.Rs2())

	var result uint64
	switch op {
	case OpMUL:
		result = rs1 * rs2
	case OpMULH:
		result = mulhSigned(int64(rs1), int64(rs2))
	case OpMULHSU:
		result = mulhSignedUnsigned(int64(rs1), rs2)
	case OpMULHU:
		hi, _ := bits.Mul64(rs1, rs2)
		result = hi
	case OpDIV:
		result = divSigned(int64(rs1), int64(rs2))
	case OpDIVU:
		result = divUnsigned(rs1, rs2)
	case OpREM:
		result = remSigned(int64(rs1), int64(rs2))
	case OpREMU:
		result = remUnsigned(rs1, rs2)
	case OpMULW:
		result = signExtendWord(uint32(rs1) * uint32(rs2))
	case OpDIVW:
		result = uint64(divSignedW(int32(rs1), int32(rs2)))
	case OpDIVUW:
		result = signExtendWord(divUnsignedW(uint32(rs1), uint32(rs2)))
	case OpREMW:
		result = uint64(remSignedW(int32(rs1), int32(rs2)))
	case OpREMUW:
		result = signExtendWord(remUnsignedW(uint32(rs1), uint32(rs2)))
	}
	m.CPU.Set(w.Rd(), result)
	return nil
}

// mulhSigned computes the high 64 bits of the signed 128-bit product.
func mulhSigned(a, b int64) uint64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	hi -= uint64(((a >> 63) & 1)) * uint64(b)
	hi -= uint64(((b >> 63) & 1)) * uint64(a)
	_ = lo
	return hi
}

// mulhSignedUnsigned computes the high 64 bits of a*b where a is signed
// and b is unsigned.
func mulhSignedUnsigned(a int64, b uint64) uint64 {
	hi, _ := bits.Mul64(uint64(a), b)
	hi -= uint64((a >> 63) & 1) * b
	return hi
}

// divSigned implements RISC-V signed division: division by zero yields
// all-ones, and overflow (MinInt64 / -1) yields the dividend.
func divSigned(a, b int64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	if a == minInt64 && b == -1 {
		return uint64(a)
	}
	return uint64(a / b)
}

// divUnsigned: division by zero yields all-ones.
func divUnsigned(a, b uint64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	return a / b
}

// remSigned: division by zero yields the dividend; overflow yields zero.
func remSigned(a, b int64) uint64 {
	if b == 0 {
		return uint64(a)
	}
	if a == minInt64 && b == -1 {
		return 0
	}
	return uint64(a % b)
}

// remUnsigned: division by zero yields the dividend.
func remUnsigned(a, b uint64) uint64 {
	if b == 0 {
		return a
	}
	return a % b
}

const minInt64 = -9223372036854775808
const minInt32 = -2147483648

func divSignedW(a, b int32) int32 {
	if b == 0 {
		return -1
	}
	if a == minInt32 && b == -1 {
		return a
	}
	return a / b
}

func divUnsignedW(a, b uint32) uint32 {
	if b == 0 {
		return ^uint32(0)
	}
	return a / b
}

func remSignedW(a, b int32) int32 {
	if b == 0 {
		return a
	}
	if a == minInt32 && b == -1 {
		return 0
	}
	return a % b
}

func remUnsignedW(a, b uint32) uint32 {
	if b == 0 {
		return a
	}
	return a % b
}
