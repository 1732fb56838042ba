package cpu

import (
	"fmt"

	"github.com/dschmidt6502/relocate6502/bus"
	"github.com/dschmidt6502/relocate6502/opcode"
)

// loadInstruction resolves the current instruction's operand (through
// immediate addressing or resolveAddr) and, once available, hands it to fn.
func (c *Chip) loadInstruction(fn func(uint8) error) (bool, error) {
	if c.entry.Mode == opcode.ModeImmediate {
		return true, fn(c.opVal)
	}
	done, err := c.resolveAddr(modeLoad)
	if err != nil || !done {
		return done, err
	}
	return true, fn(c.opVal)
}

// storeInstruction resolves the current instruction's effective address and
// writes val to it.
func (c *Chip) storeInstruction(val uint8) (bool, error) {
	done, err := c.resolveAddr(modeStore)
	if err != nil || !done {
		return done, err
	}
	c.b.Trace(bus.KindExecuteWrite)
	c.b.Write(c.opAddr, val)
	return true, nil
}

// rmwInstruction applies fn to the operand once resolveAddr's read phase
// completes (accumulator mode applies fn directly, with no bus traffic
// beyond the generic opcode/operand fetch).
func (c *Chip) rmwInstruction(fn func(uint8) uint8) (bool, error) {
	if c.entry.Mode == opcode.ModeAccumulator {
		c.A = fn(c.A)
		return true, nil
	}
	wasRead := c.rmwRead
	done, err := c.resolveAddr(modeRMW)
	if err != nil {
		return true, err
	}
	if !wasRead && c.rmwRead {
		c.opVal = fn(c.opVal)
	}
	return done, nil
}

// performBranch implements the 2/3/4 cycle branch timing: not taken is 2
// cycles, taken-same-page is 3, taken-crossing-page is 4.
func (c *Chip) performBranch(taken bool) (bool, error) {
	switch c.opTick {
	case 2:
		if !taken {
			return true, nil
		}
		offset := int8(c.opVal)
		base := c.PC
		c.opAddr = uint16(int32(base) + int32(offset))
		c.addrDone = (base & 0xFF00) == (c.opAddr & 0xFF00)
		return false, nil
	case 3:
		c.b.Trace(bus.KindDummyRead)
		_ = c.b.Read((c.opAddr & 0xFF00) | (c.PC & 0x00FF))
		if c.addrDone {
			c.PC = c.opAddr
			return true, nil
		}
		return false, nil
	case 4:
		c.b.Trace(bus.KindDummyRead)
		_ = c.b.Read(c.opAddr)
		c.PC = c.opAddr
		return true, nil
	}
	return true, InvalidState{fmt.Sprintf("performBranch: bad opTick %d", c.opTick)}
}

// execute dispatches the current decoded instruction by mnemonic, not by
// raw opcode byte: opcode.Table has already folded addressing mode and
// cycle count into c.entry, so this switch only ever needs to know what
// operation to run.
func (c *Chip) execute() (bool, error) {
	switch c.entry.Mnemonic {
	case opcode.ADC:
		return c.loadInstruction(c.iADC)
	case opcode.AND:
		return c.loadInstruction(c.iAND)
	case opcode.ASL:
		return c.rmwInstruction(c.aslOp)
	case opcode.BCC:
		return c.performBranch(c.P&FlagCarry == 0)
	case opcode.BCS:
		return c.performBranch(c.P&FlagCarry != 0)
	case opcode.BEQ:
		return c.performBranch(c.P&FlagZero != 0)
	case opcode.BIT:
		return c.loadInstruction(c.iBIT)
	case opcode.BMI:
		return c.performBranch(c.P&FlagNegative != 0)
	case opcode.BNE:
		return c.performBranch(c.P&FlagZero == 0)
	case opcode.BPL:
		return c.performBranch(c.P&FlagNegative == 0)
	case opcode.BRK:
		return c.iBRK()
	case opcode.BVC:
		return c.performBranch(c.P&FlagOverflow == 0)
	case opcode.BVS:
		return c.performBranch(c.P&FlagOverflow != 0)
	case opcode.CLC:
		c.P &^= FlagCarry
		return true, nil
	case opcode.CLD:
		c.P &^= FlagDecimal
		return true, nil
	case opcode.CLI:
		c.P &^= FlagInterrupt
		c.skipInterrupt = true
		return true, nil
	case opcode.CLV:
		c.P &^= FlagOverflow
		return true, nil
	case opcode.CMP:
		return c.loadInstruction(func(v uint8) error { c.compare(c.A, v); return nil })
	case opcode.CPX:
		return c.loadInstruction(func(v uint8) error { c.compare(c.X, v); return nil })
	case opcode.CPY:
		return c.loadInstruction(func(v uint8) error { c.compare(c.Y, v); return nil })
	case opcode.DEC:
		return c.rmwInstruction(c.decOp)
	case opcode.DEX:
		c.X--
		c.zeroCheck(c.X)
		c.negativeCheck(c.X)
		return true, nil
	case opcode.DEY:
		c.Y--
		c.zeroCheck(c.Y)
		c.negativeCheck(c.Y)
		return true, nil
	case opcode.EOR:
		return c.loadInstruction(c.iEOR)
	case opcode.INC:
		return c.rmwInstruction(c.incOp)
	case opcode.INX:
		c.X++
		c.zeroCheck(c.X)
		c.negativeCheck(c.X)
		return true, nil
	case opcode.INY:
		c.Y++
		c.zeroCheck(c.Y)
		c.negativeCheck(c.Y)
		return true, nil
	case opcode.JMP:
		return c.iJMP()
	case opcode.JSR:
		return c.iJSR()
	case opcode.LDA:
		return c.loadInstruction(func(v uint8) error { c.A = v; c.zeroCheck(v); c.negativeCheck(v); return nil })
	case opcode.LDX:
		return c.loadInstruction(func(v uint8) error { c.X = v; c.zeroCheck(v); c.negativeCheck(v); return nil })
	case opcode.LDY:
		return c.loadInstruction(func(v uint8) error { c.Y = v; c.zeroCheck(v); c.negativeCheck(v); return nil })
	case opcode.LSR:
		return c.rmwInstruction(c.lsrOp)
	case opcode.NOP:
		if opcode.OperandSize(c.entry.Mode) > 0 {
			return c.loadInstruction(func(uint8) error { return nil })
		}
		return true, nil
	case opcode.ORA:
		return c.loadInstruction(c.iORA)
	case opcode.PHA:
		return c.iPHA()
	case opcode.PHP:
		return c.iPHP()
	case opcode.PLA:
		return c.iPLA()
	case opcode.PLP:
		return c.iPLP()
	case opcode.ROL:
		return c.rmwInstruction(c.rolOp)
	case opcode.ROR:
		return c.rmwInstruction(c.rorOp)
	case opcode.RTI:
		return c.iRTI()
	case opcode.RTS:
		return c.iRTS()
	case opcode.SBC:
		return c.loadInstruction(c.iSBC)
	case opcode.SEC:
		c.P |= FlagCarry
		return true, nil
	case opcode.SED:
		c.P |= FlagDecimal
		return true, nil
	case opcode.SEI:
		c.P |= FlagInterrupt
		c.skipInterrupt = true
		return true, nil
	case opcode.STA:
		return c.storeInstruction(c.A)
	case opcode.STX:
		return c.storeInstruction(c.X)
	case opcode.STY:
		return c.storeInstruction(c.Y)
	case opcode.TAX:
		c.X = c.A
		c.zeroCheck(c.X)
		c.negativeCheck(c.X)
		return true, nil
	case opcode.TAY:
		c.Y = c.A
		c.zeroCheck(c.Y)
		c.negativeCheck(c.Y)
		return true, nil
	case opcode.TSX:
		c.X = c.S
		c.zeroCheck(c.X)
		c.negativeCheck(c.X)
		return true, nil
	case opcode.TXA:
		c.A = c.X
		c.zeroCheck(c.A)
		c.negativeCheck(c.A)
		return true, nil
	case opcode.TXS:
		c.S = c.X
		return true, nil
	case opcode.TYA:
		c.A = c.Y
		c.zeroCheck(c.A)
		c.negativeCheck(c.A)
		return true, nil

	// Undocumented 6510 opcodes (C5). Only reachable when variant is
	// NMOS6510; opcode.NewTable(NMOS6502) never decodes to these mnemonics.
	case opcode.ALR:
		return c.loadInstruction(c.iALR)
	case opcode.ANC:
		return c.loadInstruction(c.iANC)
	case opcode.ANE:
		return c.loadInstruction(c.iANE)
	case opcode.ARR:
		return c.loadInstruction(c.iARR)
	case opcode.DCP:
		return c.rmwInstruction(c.dcpOp)
	case opcode.ISC:
		return c.rmwInstruction(c.iscOp)
	case opcode.JAM:
		c.jammed = true
		return true, nil
	case opcode.LAS:
		return c.loadInstruction(c.iLAS)
	case opcode.LAX:
		return c.loadInstruction(c.iLAX)
	case opcode.LXA:
		return c.loadInstruction(c.iLXA)
	case opcode.RLA:
		return c.rmwInstruction(c.rlaOp)
	case opcode.RRA:
		return c.rmwInstruction(c.rraOp)
	case opcode.SAX:
		return c.storeInstruction(c.A & c.X)
	case opcode.SBX:
		return c.loadInstruction(c.iSBX)
	case opcode.SHA:
		return c.iSHA()
	case opcode.SHX:
		return c.iSHX()
	case opcode.SHY:
		return c.iSHY()
	case opcode.SLO:
		return c.rmwInstruction(c.sloOp)
	case opcode.SRE:
		return c.rmwInstruction(c.sreOp)
	case opcode.TAS:
		return c.iTAS()
	case opcode.USBC:
		return c.loadInstruction(c.iSBC)
	}
	return true, UnsupportedOpcode{c.PC, c.op}
}

// compare implements CMP/CPX/CPY: a same-width subtraction that only ever
// touches N, Z and C.
func (c *Chip) compare(reg, val uint8) {
	res := uint16(reg) - uint16(val)
	c.P &^= FlagCarry
	if reg >= val {
		c.P |= FlagCarry
	}
	c.zeroCheck(uint8(res))
	c.negativeCheck(uint8(res))
}

func (c *Chip) addWithCarry(val uint8) {
	carryIn := uint16(0)
	if c.P&FlagCarry != 0 {
		carryIn = 1
	}
	if c.P&FlagDecimal != 0 {
		c.bcdAdd(val, carryIn)
		return
	}
	res := uint16(c.A) + uint16(val) + carryIn
	c.overflowCheck(c.A, val, uint8(res))
	c.carryCheck(res)
	c.A = uint8(res)
	c.zeroCheck(c.A)
	c.negativeCheck(c.A)
}

// bcdAdd implements decimal-mode ADC per the 6502.org correction algorithm:
// fix up each nibble independently, with V/Z computed from the uncorrected
// binary sum (matching real NMOS silicon), N from the high nibble after the
// low-nibble correction but before the high-nibble correction, and C from
// the corrected result.
func (c *Chip) bcdAdd(val uint8, carryIn uint16) {
	binRes := uint16(c.A) + uint16(val) + carryIn
	c.overflowCheck(c.A, val, uint8(binRes))
	lo := (c.A & 0x0F) + (val & 0x0F) + uint8(carryIn)
	var carryLo uint8
	if lo > 9 {
		lo += 6
		carryLo = 1
	}
	hi := (c.A >> 4) + (val >> 4) + carryLo
	c.zeroCheck(uint8(binRes))
	c.negativeCheck(uint8(hi << 4))
	c.P &^= FlagCarry
	if hi > 9 {
		hi += 6
		c.P |= FlagCarry
	}
	c.A = (hi << 4) | (lo & 0x0F)
}

func (c *Chip) subtractWithCarry(val uint8) {
	if c.P&FlagDecimal != 0 {
		c.bcdSub(val)
		return
	}
	c.addWithCarry(val ^ 0xFF)
}

// bcdSub mirrors bcdAdd's nibble correction for decimal-mode SBC.
func (c *Chip) bcdSub(val uint8) {
	borrowIn := uint16(0)
	if c.P&FlagCarry == 0 {
		borrowIn = 1
	}
	binRes := int16(c.A) - int16(val) - int16(borrowIn)
	c.overflowCheck(c.A, val^0xFF, uint8(binRes))
	c.P &^= FlagCarry
	if binRes >= 0 {
		c.P |= FlagCarry
	}
	c.zeroCheck(uint8(binRes))
	c.negativeCheck(uint8(binRes))

	lo := int16(c.A&0x0F) - int16(val&0x0F) - int16(borrowIn)
	var borrowLo int16
	if lo < 0 {
		lo -= 6
		borrowLo = 1
	}
	hi := int16(c.A>>4) - int16(val>>4) - borrowLo
	if hi < 0 {
		hi -= 6
	}
	c.A = uint8(hi<<4) | (uint8(lo) & 0x0F)
}

func (c *Chip) iADC(val uint8) error { c.addWithCarry(val); return nil }
func (c *Chip) iSBC(val uint8) error { c.subtractWithCarry(val); return nil }

func (c *Chip) iAND(val uint8) error {
	c.A &= val
	c.zeroCheck(c.A)
	c.negativeCheck(c.A)
	return nil
}

func (c *Chip) iORA(val uint8) error {
	c.A |= val
	c.zeroCheck(c.A)
	c.negativeCheck(c.A)
	return nil
}

func (c *Chip) iEOR(val uint8) error {
	c.A ^= val
	c.zeroCheck(c.A)
	c.negativeCheck(c.A)
	return nil
}

func (c *Chip) iBIT(val uint8) error {
	c.P &^= FlagZero | FlagOverflow | FlagNegative
	if c.A&val == 0 {
		c.P |= FlagZero
	}
	c.P |= val & (FlagOverflow | FlagNegative)
	return nil
}

func (c *Chip) aslOp(v uint8) uint8 {
	c.carryCheck(uint16(v) << 1)
	res := v << 1
	c.zeroCheck(res)
	c.negativeCheck(res)
	return res
}

func (c *Chip) lsrOp(v uint8) uint8 {
	c.P &^= FlagCarry
	if v&0x01 != 0 {
		c.P |= FlagCarry
	}
	res := v >> 1
	c.zeroCheck(res)
	c.negativeCheck(res)
	return res
}

func (c *Chip) rolOp(v uint8) uint8 {
	oldCarry := c.P & FlagCarry
	c.carryCheck(uint16(v) << 1)
	res := (v << 1) | oldCarry
	c.zeroCheck(res)
	c.negativeCheck(res)
	return res
}

func (c *Chip) rorOp(v uint8) uint8 {
	oldCarry := c.P & FlagCarry
	c.P &^= FlagCarry
	if v&0x01 != 0 {
		c.P |= FlagCarry
	}
	res := (v >> 1) | (oldCarry << 7)
	c.zeroCheck(res)
	c.negativeCheck(res)
	return res
}

func (c *Chip) incOp(v uint8) uint8 {
	res := v + 1
	c.zeroCheck(res)
	c.negativeCheck(res)
	return res
}

func (c *Chip) decOp(v uint8) uint8 {
	res := v - 1
	c.zeroCheck(res)
	c.negativeCheck(res)
	return res
}

func (c *Chip) iJMP() (bool, error) {
	if c.entry.Mode == opcode.ModeIndirect {
		return c.addrIndirect(modeLoad)
	}
	if _, err := c.addrAbsolute(modeStore); err != nil {
		return true, err
	}
	if c.opTick < 3 {
		return false, nil
	}
	c.PC = c.opAddr
	return true, nil
}

// iJSR pushes the return address (the address of JSR's last operand byte)
// with the well-known interleaving: an internal cycle happens between the
// low-byte fetch and the two pushes, and the high byte is fetched last.
func (c *Chip) iJSR() (bool, error) {
	switch c.opTick {
	case 2:
		// Low address byte already fetched by the generic opTick==2 read.
		return false, nil
	case 3:
		c.b.Trace(bus.KindDummyRead)
		_ = c.b.Read(0x0100 + uint16(c.S))
		return false, nil
	case 4:
		c.pushStack(uint8(c.PC>>8), bus.KindStackPushPCHigh)
		return false, nil
	case 5:
		c.pushStack(uint8(c.PC), bus.KindStackPushPCLow)
		return false, nil
	case 6:
		c.b.Trace(bus.KindOperandJsrAbsoluteHigh)
		hi := c.b.Read(c.PC)
		c.PC = (uint16(hi) << 8) + uint16(c.opVal)
		return true, nil
	}
	return true, InvalidState{fmt.Sprintf("iJSR: bad opTick %d", c.opTick)}
}

func (c *Chip) iRTS() (bool, error) {
	switch c.opTick {
	case 2:
		// Implied-mode throwaway read already done generically.
		return false, nil
	case 3:
		c.b.Trace(bus.KindDummyRead)
		_ = c.b.Read(0x0100 + uint16(c.S))
		return false, nil
	case 4:
		c.opVal = c.popStack(bus.KindStackPopPCLow)
		return false, nil
	case 5:
		c.opVal2 = c.popStack(bus.KindStackPopPCHigh)
		return false, nil
	case 6:
		c.b.Trace(bus.KindDummyRead)
		_ = c.b.Read(c.PC)
		c.PC = (uint16(c.opVal2)<<8 + uint16(c.opVal)) + 1
		return true, nil
	}
	return true, InvalidState{fmt.Sprintf("iRTS: bad opTick %d", c.opTick)}
}

func (c *Chip) iRTI() (bool, error) {
	switch c.opTick {
	case 2:
		// Implied-mode throwaway read already done generically.
		return false, nil
	case 3:
		c.b.Trace(bus.KindDummyRead)
		_ = c.b.Read(0x0100 + uint16(c.S))
		return false, nil
	case 4:
		c.P = (c.popStack(bus.KindStackPopP) &^ FlagBreak) | FlagS1
		return false, nil
	case 5:
		c.opVal = c.popStack(bus.KindStackPopPCLow)
		return false, nil
	case 6:
		c.opVal2 = c.popStack(bus.KindStackPopPCHigh)
		c.PC = uint16(c.opVal2)<<8 + uint16(c.opVal)
		return true, nil
	}
	return true, InvalidState{fmt.Sprintf("iRTI: bad opTick %d", c.opTick)}
}

func (c *Chip) iBRK() (bool, error) {
	switch c.opTick {
	case 2:
		c.PC++
		return false, nil
	}
	return c.runInterrupt(IRQVector, true)
}

func (c *Chip) iPHA() (bool, error) {
	switch c.opTick {
	case 2:
		// Implied-mode throwaway read already done generically.
		return false, nil
	case 3:
		c.pushStack(c.A, bus.KindStackPushA)
		return true, nil
	}
	return true, InvalidState{fmt.Sprintf("iPHA: bad opTick %d", c.opTick)}
}

func (c *Chip) iPHP() (bool, error) {
	switch c.opTick {
	case 2:
		// Implied-mode throwaway read already done generically.
		return false, nil
	case 3:
		c.pushStack(c.P|FlagS1|FlagBreak, bus.KindStackPushP)
		return true, nil
	}
	return true, InvalidState{fmt.Sprintf("iPHP: bad opTick %d", c.opTick)}
}

func (c *Chip) iPLA() (bool, error) {
	switch c.opTick {
	case 2:
		// Implied-mode throwaway read already done generically.
		return false, nil
	case 3:
		c.b.Trace(bus.KindDummyRead)
		_ = c.b.Read(0x0100 + uint16(c.S))
		return false, nil
	case 4:
		c.A = c.popStack(bus.KindStackPopA)
		c.zeroCheck(c.A)
		c.negativeCheck(c.A)
		return true, nil
	}
	return true, InvalidState{fmt.Sprintf("iPLA: bad opTick %d", c.opTick)}
}

func (c *Chip) iPLP() (bool, error) {
	switch c.opTick {
	case 2:
		// Implied-mode throwaway read already done generically.
		return false, nil
	case 3:
		c.b.Trace(bus.KindDummyRead)
		_ = c.b.Read(0x0100 + uint16(c.S))
		return false, nil
	case 4:
		c.P = (c.popStack(bus.KindStackPopP) &^ FlagBreak) | FlagS1
		c.skipInterrupt = true
		return true, nil
	}
	return true, InvalidState{fmt.Sprintf("iPLP: bad opTick %d", c.opTick)}
}

// Undocumented 6510 opcodes (C5). Grounded on the teacher's
// iALR/iANC/iARR/iAXS/iLAX/iDCP/iISC/iSLO/iRLA/iSRE/iRRA/iXAA/iOAL/iAHX/
// iSHY/iSHX/iTAS/iLAS implementations, adapted to the curried
// loadInstruction/rmwInstruction dispatch shape used throughout this file.

func (c *Chip) iALR(val uint8) error {
	c.A &= val
	c.A = c.lsrOp(c.A)
	return nil
}

func (c *Chip) iANC(val uint8) error {
	c.A &= val
	c.zeroCheck(c.A)
	c.negativeCheck(c.A)
	c.P &^= FlagCarry
	if c.A&FlagNegative != 0 {
		c.P |= FlagCarry
	}
	return nil
}

func (c *Chip) iARR(val uint8) error {
	c.A &= val
	c.A = c.rorOp(c.A)
	c.P &^= FlagCarry | FlagOverflow
	if c.A&0x40 != 0 {
		c.P |= FlagCarry
	}
	if (c.A>>6)^(c.A>>5)&0x01 != 0 {
		c.P |= FlagOverflow
	}
	return nil
}

// iANE (ANE/XAA) is documented as unstable on real silicon: which bits of
// an internal bus latch get ANDed in varies by chip batch and temperature.
// This emulator picks the commonly-cited 0xEE "magic constant" deterministic
// model rather than randomizing, since the relocator's analysis must be
// reproducible run to run.
func (c *Chip) iANE(val uint8) error {
	const magic = 0xEE
	c.A = (c.A | magic) & c.X & val
	c.zeroCheck(c.A)
	c.negativeCheck(c.A)
	return nil
}

// iLXA (LXA/LAX immediate/OAL) has the same unstable-magic-constant
// character as iANE; resolved the same way for determinism.
func (c *Chip) iLXA(val uint8) error {
	const magic = 0xEE
	c.A = (c.A | magic) & val
	c.X = c.A
	c.zeroCheck(c.A)
	c.negativeCheck(c.A)
	return nil
}

func (c *Chip) iLAX(val uint8) error {
	c.A = val
	c.X = val
	c.zeroCheck(val)
	c.negativeCheck(val)
	return nil
}

func (c *Chip) iSBX(val uint8) error {
	res := uint16(c.A&c.X) - uint16(val)
	c.P &^= FlagCarry
	if c.A&c.X >= val {
		c.P |= FlagCarry
	}
	c.X = uint8(res)
	c.zeroCheck(c.X)
	c.negativeCheck(c.X)
	return nil
}

func (c *Chip) iLAS(val uint8) error {
	res := val & c.S
	c.A, c.X, c.S = res, res, res
	c.zeroCheck(res)
	c.negativeCheck(res)
	return nil
}

func (c *Chip) sloOp(v uint8) uint8 {
	res := c.aslOp(v)
	c.A |= res
	c.zeroCheck(c.A)
	c.negativeCheck(c.A)
	return res
}

func (c *Chip) rlaOp(v uint8) uint8 {
	res := c.rolOp(v)
	c.A &= res
	c.zeroCheck(c.A)
	c.negativeCheck(c.A)
	return res
}

func (c *Chip) sreOp(v uint8) uint8 {
	res := c.lsrOp(v)
	c.A ^= res
	c.zeroCheck(c.A)
	c.negativeCheck(c.A)
	return res
}

func (c *Chip) rraOp(v uint8) uint8 {
	res := c.rorOp(v)
	c.addWithCarry(res)
	return res
}

func (c *Chip) dcpOp(v uint8) uint8 {
	res := c.decOp(v)
	c.compare(c.A, res)
	return res
}

func (c *Chip) iscOp(v uint8) uint8 {
	res := c.incOp(v)
	c.subtractWithCarry(res)
	return res
}

// iSHA/iSHX/iSHY/iTAS (SHA/SHX/SHY/TAS) all AND a register (or register
// pair) with the high byte of the unindexed base address plus one; the result
// is unreliable once indexing crosses a page on real silicon, but this
// emulator always applies the documented AND-with-high-byte-plus-one rule,
// matching the interpretation the Harte test suite grades against.
func (c *Chip) shaLikeWrite(val uint8) (bool, error) {
	done, err := c.resolveAddr(modeStore)
	if err != nil || !done {
		return done, err
	}
	addr := c.opAddr
	hiPlusOne := c.baseHi + 1
	result := val & hiPlusOne
	if !c.addrDone {
		// Page crossed: the corrupted address bus drops the carried high
		// byte and substitutes reg AND base_hi instead (spec.md 4.4).
		addr = (uint16(val&c.baseHi) << 8) | (addr & 0x00FF)
	}
	c.b.Trace(bus.KindExecuteWrite)
	c.b.Write(addr, result)
	return true, nil
}

func (c *Chip) iSHA() (bool, error) { return c.shaLikeWrite(c.A & c.X) }
func (c *Chip) iSHX() (bool, error) { return c.shaLikeWrite(c.X) }
func (c *Chip) iSHY() (bool, error) { return c.shaLikeWrite(c.Y) }

func (c *Chip) iTAS() (bool, error) {
	c.S = c.A & c.X
	return c.shaLikeWrite(c.S)
}
