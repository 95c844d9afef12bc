package vm

// ============================================================================
// RV64IMA Architecture Constants
// ============================================================================
// These values are defined by the RISC-V base integer, multiply/divide, and
// atomic specifications and should not be modified.

const (
	// Register file
	RegisterCount = 32 // x0-x31
	RegZero       = 0
	RegRA         = 1  // return address (ra)
	RegSP         = 2  // stack pointer (sp)
	RegA0         = 10 // first argument / return value
	RegA7         = 17 // syscall number

	// Instruction encoding
	InstructionSize = 4 // bytes, RV64IMA has no compressed instructions
)

// Opcode field values (bits 6:0)
const (
	OpLoad     = 0x03
	OpMiscMem  = 0x0F
	OpImm      = 0x13
	OpAUIPC    = 0x17
	OpImm32    = 0x1B
	OpStore    = 0x23
	OpAMO      = 0x2F
	OpOp       = 0x33
	OpLUI      = 0x37
	OpOp32     = 0x3B
	OpBranch   = 0x63
	OpJALR     = 0x67
	OpJAL      = 0x6F
	OpSystem   = 0x73
)

// funct3 values, shared across several opcodes where distinct meanings apply
const (
	Funct3JALR = 0x0

	// Branches
	Funct3BEQ  = 0x0
	Funct3BNE  = 0x1
	Funct3BLT  = 0x4
	Funct3BGE  = 0x5
	Funct3BLTU = 0x6
	Funct3BGEU = 0x7

	// Loads
	Funct3LB  = 0x0
	Funct3LH  = 0x1
	Funct3LW  = 0x2
	Funct3LD  = 0x3
	Funct3LBU = 0x4
	Funct3LHU = 0x5
	Funct3LWU = 0x6

	// Stores
	Funct3SB = 0x0
	Funct3SH = 0x1
	Funct3SW = 0x2
	Funct3SD = 0x3

	// ALU (OP-IMM / OP / OP-IMM-32 / OP-32)
	Funct3ADD  = 0x0 // also SUB, ADDW, SUBW, MUL, MULW
	Funct3SLL  = 0x1 // also MULH
	Funct3SLT  = 0x2 // also MULHSU
	Funct3SLTU = 0x3 // also MULHU
	Funct3XOR  = 0x4 // also DIV
	Funct3SRL  = 0x5 // also SRA, DIVU
	Funct3OR   = 0x6 // also REM
	Funct3AND  = 0x7 // also REMU

	// SYSTEM
	Funct3PRIV   = 0x0
	Funct3CSRRW  = 0x1
	Funct3CSRRS  = 0x2
	Funct3CSRRC  = 0x3
	Funct3CSRRWI = 0x5
	Funct3CSRRSI = 0x6
	Funct3CSRRCI = 0x7
)

// funct7 values for R-type ALU ops
const (
	Funct7Base = 0x00
	Funct7Sub  = 0x20 // SUB, SRA, SUBW, SRAW
	Funct7MulDiv = 0x01
)

// SYSTEM imm[11:0] values identifying PRIV instructions (rs1=rd=0, funct3=0)
const (
	SystemECALL  = 0x000
	SystemEBREAK = 0x001
	SystemMRET   = 0x302
	SystemWFI    = 0x105
)

// funct5 values for AMO (bits 31:27), funct3 is always 2 (.W) or 3 (.D)
const (
	AMOAdd  = 0x00
	AMOSwap = 0x01
	AMOLR   = 0x02
	AMOSC   = 0x03
	AMOXor  = 0x04
	AMOOr   = 0x08
	AMOAnd  = 0x0C
	AMOMin  = 0x10
	AMOMax  = 0x14
	AMOMinu = 0x18
	AMOMaxu = 0x1C
)

// Privilege levels
const (
	PrivUser    = 0
	PrivMachine = 3
)

// CSR indices recognized by the CSR file (see §3 of the specification)
const (
	CSRMstatus  = 0x300
	CSRMedeleg  = 0x302
	CSRMideleg  = 0x303
	CSRMie      = 0x304
	CSRMtvec    = 0x305
	CSRMepc     = 0x341
	CSRMcause   = 0x342
	CSRMtval    = 0x343
	CSRMip      = 0x344
	CSRMhartid  = 0xF14
	CSRMnstatus = 0x744
	CSRSatp     = 0x180
	CSRPmpcfg0  = 0x3A0
	CSRPmpaddr0 = 0x3B0
)

// mstatus bit positions
const (
	MstatusMIEBit  = 3
	MstatusMPIEBit = 7
	MstatusMPPLow  = 11
	MstatusMPPMask = uint64(0x3) << MstatusMPPLow
)

// mip/mie bit positions for the three machine-mode interrupt sources
const (
	InterruptSoftware = 3
	InterruptTimer    = 7
	InterruptExternal = 11
)

// Trap cause codes (exceptions; high bit is reserved for interrupts and is
// set by the trap unit, never stored here)
const (
	CauseInstructionAddrMisaligned = 0
	CauseInstructionAccessFault    = 1
	CauseIllegalInstruction        = 2
	CauseBreakpoint                = 3
	CauseLoadAddrMisaligned        = 4
	CauseLoadAccessFault           = 5
	CauseStoreAddrMisaligned       = 6
	CauseStoreAccessFault          = 7
	CauseECallUMode                = 8
	CauseECallMMode                = 11
)

// CauseInterruptBit is set in mcause for interrupts.
const CauseInterruptBit = uint64(1) << 63

// Default execution limits
const (
	DefaultMaxSteps = 0 // 0 means unbounded (run until halted or trapped away)
)
