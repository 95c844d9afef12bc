package vm

// CPU represents the RV64IMA integer execution state: the general purpose
// register file, the program counter, the current privilege mode, the
// load-reserved token, and the wait-for-interrupt flag. The CSR file lives
// alongside it on the Machine, not here, since CSR write semantics are
// independent of register-file semantics.
type CPU struct {
	// X holds the 32 integer registers. X[0] is architecturally wired to
	// zero; Set discards writes to it, and the execution engine also
	// calls ForceZero around each instruction to re-zero it in case X
	// was written directly.
	X [RegisterCount]uint64

	PC uint64

	// Priv is the current privilege mode: PrivUser or PrivMachine.
	Priv int

	// Reservation backs LR/SC. Valid is cleared by any AMO, including a
	// failed SC, and by any non-matching address.
	Reservation struct {
		Addr  uint64
		Valid bool
	}

	// WFI suspends fetch until an interrupt becomes pending.
	WFI bool

	// Cycles counts retired instructions, for statistics and step budgets.
	Cycles uint64
}

// NewCPU returns a CPU with all registers zeroed, at user privilege.
func NewCPU() *CPU {
	return &CPU{Priv: PrivUser}
}

// Reset clears the register file, PC, and transient execution flags. The
// caller is responsible for re-establishing a stack pointer and entry PC.
func (c *CPU) Reset() {
	for i := range c.X {
		c.X[i] = 0
	}
	c.PC = 0
	c.Priv = PrivUser
	c.Reservation.Valid = false
	c.WFI = false
	c.Cycles = 0
}

// Get returns the value of register reg (0-31).
func (c *CPU) Get(reg int) uint64 {
	return c.X[reg&0x1F]
}

// Set writes value to register reg, except reg 0 which silently discards
// the write per the architectural wiring of x0.
func (c *CPU) Set(reg int, value uint64) {
	reg &= 0x1F
	if reg == RegZero {
		return
	}
	c.X[reg] = value
}

// ForceZero re-establishes the x0-reads-as-zero invariant. Equivalent to
// guarding every write, and cheaper to call once per instruction.
func (c *CPU) ForceZero() {
	c.X[RegZero] = 0
}

// ClearReservation drops any outstanding LR reservation. Called by every
// AMO (including SC, successful or not) and is harmless when no
// reservation was held.
func (c *CPU) ClearReservation() {
	c.Reservation.Valid = false
}
