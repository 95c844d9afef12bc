package vm

func isBranchOp(op Op) bool {
	switch op {
	case OpBEQ, OpBNE, OpBLT, OpBGE, OpBLTU, OpBGEU:
		return true
	default:
		return false
	}
}

func isLoadOp(op Op) bool {
	switch op {
	case OpLB, OpLH, OpLW, OpLD, OpLBU, OpLHU, OpLWU:
		return true
	default:
		return false
	}
}

func isStoreOp(op Op) bool {
	switch op {
	case OpSB, OpSH, OpSW, OpSD:
		return true
	default:
		return false
	}
}

func isALUImmOp(op Op) bool {
	switch op {
	case OpADDI, OpSLTI, OpSLTIU, OpXORI, OpORI, OpANDI, OpSLLI, OpSRLI, OpSRAI,
		OpADDIW, OpSLLIW, OpSRLIW, OpSRAIW:
		return true
	default:
		return false
	}
}

func isALURegOp(op Op) bool {
	switch op {
	case OpADD, OpSUB, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpSRA, OpOR, OpAND,
		OpADDW, OpSUBW, OpSLLW, OpSRLW, OpSRAW:
		return true
	default:
		return false
	}
}

func isSystemOp(op Op) bool {
	switch op {
	case OpECALL, OpEBREAK, OpMRET, OpWFI,
		OpCSRRW, OpCSRRS, OpCSRRC, OpCSRRWI, OpCSRRSI, OpCSRRCI:
		return true
	default:
		return false
	}
}

func isMulDivOp(op Op) bool {
	switch op {
	case OpMUL, OpMULH, OpMULHSU, OpMULHU, OpDIV, OpDIVU, OpREM, OpREMU,
		OpMULW, OpDIVW, OpDIVUW, OpREMW, OpREMUW:
		return true
	default:
		return false
	}
}

func isAMOOp(op Op) bool {
	switch op {
	case OpLRW, OpLRD, OpSCW, OpSCD,
		OpAMOSWAPW, OpAMOADDW, OpAMOXORW, OpAMOANDW, OpAMOORW, OpAMOMINW, OpAMOMAXW, OpAMOMINUW, OpAMOMAXUW,
		OpAMOSWAPD, OpAMOADDD, OpAMOXORD, OpAMOANDD, OpAMOORD, OpAMOMIND, OpAMOMAXD, OpAMOMINUD, OpAMOMAXUD:
		return true
	default:
		return false
	}
}
