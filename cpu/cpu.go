// Package cpu implements a cycle-accurate MOS 6502/6510 emulator: the
// fetch/load/execute micro-state machine, every documented addressing mode,
// and (via Variant) the full set of undocumented 6510 opcodes.
//
// Grounded on cpu/cpu.go in the teacher repo (github.com/jmchacon/6502):
// same three-state Tick() design, same curried addressing-mode/instruction
// function shapes, same flag-check helpers. Adapted to decode through an
// opcode.Table instead of a giant opcode-byte switch (spec's no-branching
// decode requirement), to read/write through a bus.Bus so every access can
// be classified via Trace, and trimmed of the teacher's real-time clock
// throttling and RDY line (out of this spec's scope).
package cpu

import (
	"fmt"

	"github.com/dschmidt6502/relocate6502/bus"
	"github.com/dschmidt6502/relocate6502/irq"
	"github.com/dschmidt6502/relocate6502/opcode"
)

// Variant selects which CPU personality a Chip emulates.
type Variant int

const (
	// NMOS6502 executes only the 151 documented opcodes; any other opcode
	// byte is a fatal UnsupportedOpcode.
	NMOS6502 Variant = iota
	// NMOS6510 additionally executes all undocumented opcodes (C5).
	NMOS6510
)

// Status register bits.
const (
	FlagNegative  = uint8(0x80)
	FlagOverflow  = uint8(0x40)
	FlagS1        = uint8(0x20) // unused bit, always read as 1
	FlagBreak     = uint8(0x10)
	FlagDecimal   = uint8(0x08)
	FlagInterrupt = uint8(0x04)
	FlagZero      = uint8(0x02)
	FlagCarry     = uint8(0x01)
)

// Vector addresses (spec.md 4.3).
const (
	NMIVector   = uint16(0xFFFA)
	ResetVector = uint16(0xFFFC)
	IRQVector   = uint16(0xFFFE)
)

type pendingIRQ int

const (
	irqNone pendingIRQ = iota
	irqIRQ
	irqNMI
)

// UnsupportedOpcode is returned when the decoder yields opcode.MnemonicUnknown.
type UnsupportedOpcode struct {
	PC     uint16
	Opcode uint8
}

func (e UnsupportedOpcode) Error() string {
	return fmt.Sprintf("unsupported opcode 0x%.2X at PC 0x%.4X", e.Opcode, e.PC)
}

// InvalidState represents an internal precondition failure (a bug in the
// state machine rather than an unsupported program).
type InvalidState struct {
	Reason string
}

func (e InvalidState) Error() string {
	return fmt.Sprintf("invalid CPU state: %s", e.Reason)
}

// Jammed is returned on every Tick once a JAM opcode has halted the CPU.
type Jammed struct {
	Opcode uint8
}

func (e Jammed) Error() string {
	return fmt.Sprintf("CPU jammed on opcode 0x%.2X", e.Opcode)
}

// instructionMode distinguishes how an addressing-mode helper should behave
// at the end of its sequence: load instructions stop after the data read,
// RMW instructions continue for the dummy+final write, store instructions
// stop as soon as the address is resolved.
type instructionMode int

const (
	modeLoad instructionMode = iota
	modeRMW
	modeStore
)

// Chip is a single MOS 6502/6510 CPU core.
type Chip struct {
	A, X, Y uint8
	S       uint8
	P       uint8
	PC      uint16

	Cycles uint64 // monotonically increasing global cycle timestamp

	variant Variant
	table   *opcode.Table
	b       bus.Bus
	irqLine irq.Sender
	nmiLine irq.Sender

	op       uint8
	entry    opcode.Entry
	opVal    uint8
	opVal2   uint8
	opAddr   uint16
	opTick   int
	addrDone bool
	baseHi   uint8 // high byte of the unindexed base address, latched for the SHA/SHX/SHY/TAS page-cross quirk

	lastInstructionCycles int

	skipInterrupt    bool
	pendingIRQ       pendingIRQ
	runningInterrupt bool
	coldBoot         bool

	jammed    bool
	jamOpcode uint8

	rmwRead  bool // RMW addressing has completed its read phase this instruction
	rmwWrote bool // RMW addressing has completed its dummy-write phase
}

// Config describes how to construct a Chip.
type Config struct {
	Variant Variant
	Bus     bus.Bus
	IRQ     irq.Sender
	NMI     irq.Sender
}

// New constructs a powered-on Chip. If cfg.Bus is nil the CPU reads bus.NOP()
// (always 0xEA) as a safe default, per spec.md C3.
func New(cfg Config) *Chip {
	b := cfg.Bus
	if b == nil {
		b = bus.NOP()
	}
	var variant opcode.Variant
	if cfg.Variant == NMOS6510 {
		variant = opcode.NMOS6510
	}
	c := &Chip{
		variant:  cfg.Variant,
		table:    opcode.NewTable(variant),
		b:        b,
		irqLine:  cfg.IRQ,
		nmiLine:  cfg.NMI,
		coldBoot: true,
	}
	c.PowerOn()
	return c
}

// PowerOn resets register state to a deterministic baseline (this emulator
// doesn't model the random garbage real silicon has at cold boot, since that
// would make relocator analysis non-reproducible) and runs the 6-cycle Reset
// sequence to completion.
func (c *Chip) PowerOn() {
	c.A, c.X, c.Y = 0, 0, 0
	c.S = 0x00
	c.P = FlagS1
	c.coldBoot = true
	for {
		done, err := c.Reset()
		if err != nil {
			panic(err) // Reset() only errors on an internal opTick bug.
		}
		if done {
			break
		}
	}
}

// Reset runs one tick of the 6-cycle reset sequence. Call repeatedly until
// it returns true. S is decremented 3 times during the sequence regardless
// of cold-boot state; starting S at 0 in PowerOn means it lands on the
// documented 0xFD post-reset value.
func (c *Chip) Reset() (bool, error) {
	if c.opTick == 0 {
		c.opTick = 1
	} else {
		c.opTick++
	}
	switch {
	case c.opTick < 1 || c.opTick > 6:
		return true, InvalidState{fmt.Sprintf("Reset: bad opTick %d", c.opTick)}
	case c.opTick == 1:
		c.b.Trace(bus.KindDummyRead)
		_ = c.b.Read(c.PC)
		c.P |= FlagInterrupt | FlagS1
		c.jammed = false
		c.jamOpcode = 0
		c.pendingIRQ = irqNone
		return false, nil
	case c.opTick >= 2 && c.opTick <= 4:
		c.S--
		return false, nil
	case c.opTick == 5:
		c.b.Trace(bus.KindInterruptVectorLow)
		c.opVal = c.b.Read(ResetVector)
		return false, nil
	}
	c.b.Trace(bus.KindInterruptVectorHigh)
	hi := c.b.Read(ResetVector + 1)
	c.PC = (uint16(hi) << 8) + uint16(c.opVal)
	c.opTick = 0
	c.coldBoot = false
	return true, nil
}

// CurrentEntry returns the decode of the most recently fetched opcode. Valid
// from the tick that completes Fetch through the tick that completes the
// instruction; callers that want it after Step returns (to interpret the
// instruction that just ran) can rely on it not changing until the next
// Fetch.
func (c *Chip) CurrentEntry() opcode.Entry { return c.entry }

// EffectiveAddr returns the address resolved by the current/most recent
// instruction's addressing mode, valid under the same conditions as
// CurrentEntry. Meaningless for Implied/Accumulator/Immediate modes.
func (c *Chip) EffectiveAddr() uint16 { return c.opAddr }

// LastInstructionCycles returns the total cycle count (base + any
// page-crossing/branch-taken adjustment) of the most recently completed
// instruction.
func (c *Chip) LastInstructionCycles() int { return c.lastInstructionCycles }

// Jammed reports whether a JAM opcode has halted the CPU. Only Reset clears it.
func (c *Chip) Jammed() bool { return c.jammed }

// Step runs ticks until the current instruction completes (or the CPU
// jams/errors), returning the number of cycles consumed. This is the
// "Instruction" stepping granularity from spec.md §5.
func (c *Chip) Step() (int, error) {
	cycles := 0
	for {
		done, err := c.Tick()
		cycles++
		if err != nil {
			return cycles, err
		}
		if done {
			return cycles, nil
		}
	}
}

// Tick advances the micro-state machine by exactly one bus transaction (the
// "Cycle" stepping granularity). Returns true when the current instruction
// (or interrupt sequence) has completed.
func (c *Chip) Tick() (bool, error) {
	c.Cycles++

	if c.jammed {
		c.b.Trace(bus.KindInterruptVectorLow)
		_ = c.b.Read(IRQVector)
		return true, Jammed{c.jamOpcode}
	}

	c.opTick++

	if c.irqLine != nil && c.irqLine.Raised() && c.pendingIRQ == irqNone && c.P&FlagInterrupt == 0 {
		c.pendingIRQ = irqIRQ
	}
	if c.nmiLine != nil && c.nmiLine.Raised() {
		c.pendingIRQ = irqNMI
	}

	if c.opTick == 1 {
		c.b.Trace(bus.KindOpFetch)
		c.op = c.b.Read(c.PC)
		c.entry = c.table.Decode(c.op)
		c.addrDone = false
		c.rmwRead = false
		c.rmwWrote = false
		if c.pendingIRQ == irqNone || c.skipInterrupt {
			c.PC++
			c.runningInterrupt = false
		}
		if c.pendingIRQ != irqNone && !c.skipInterrupt {
			c.runningInterrupt = true
		}
		return false, nil
	}

	if c.opTick == 2 && !c.runningInterrupt {
		c.b.Trace(c.operandKindForTick2())
		v := c.b.Read(c.PC)
		if c.entry.Mode == opcode.ModeImplied || c.entry.Mode == opcode.ModeAccumulator {
			// No operand byte for these modes: this is the real 6502's
			// "read next instruction byte and throw it away" cycle, and PC
			// does not move until the next opcode fetch reads this same
			// byte.
			_ = v
		} else {
			c.opVal = v
			c.PC++
		}
		c.skipInterrupt = false
	}

	var done bool
	var err error
	if c.runningInterrupt {
		vec := IRQVector
		if c.pendingIRQ == irqNMI {
			vec = NMIVector
		}
		done, err = c.runInterrupt(vec, false)
	} else {
		done, err = c.execute()
	}

	if c.jammed {
		c.jamOpcode = c.op
	}
	if err != nil {
		c.jammed = true
		c.jamOpcode = c.op
		return true, err
	}
	if done {
		if c.runningInterrupt {
			c.pendingIRQ = irqNone
		}
		c.runningInterrupt = false
		c.lastInstructionCycles = c.opTick
		c.opTick = 0
	}
	return done, nil
}

// operandKindForTick2 picks the Trace kind for the single byte read that
// every instruction performs right after the opcode fetch, based on the
// already-decoded addressing mode.
func (c *Chip) operandKindForTick2() bus.Kind {
	switch c.entry.Mode {
	case opcode.ModeImmediate:
		return bus.KindOperandImmediate
	case opcode.ModeZeroPage:
		return bus.KindOperandZeroPage
	case opcode.ModeZeroPageX:
		return bus.KindOperandZeroPageX
	case opcode.ModeZeroPageY:
		return bus.KindOperandZeroPageY
	case opcode.ModeIndirectX:
		return bus.KindOperandIndirectXResolveLow
	case opcode.ModeIndirectY:
		return bus.KindOperandIndirectY
	case opcode.ModeAbsolute, opcode.ModeIndirect:
		return bus.KindOperandAbsoluteLow
	case opcode.ModeAbsoluteX:
		return bus.KindOperandAbsoluteXLow
	case opcode.ModeAbsoluteY:
		return bus.KindOperandAbsoluteYLow
	case opcode.ModeRelative:
		return bus.KindOperandImmediate
	default:
		return bus.KindDummyRead
	}
}

func (c *Chip) zeroCheck(v uint8) {
	c.P &^= FlagZero
	if v == 0 {
		c.P |= FlagZero
	}
}

func (c *Chip) negativeCheck(v uint8) {
	c.P &^= FlagNegative
	if v&FlagNegative != 0 {
		c.P |= FlagNegative
	}
}

func (c *Chip) carryCheck(res uint16) {
	c.P &^= FlagCarry
	if res >= 0x100 {
		c.P |= FlagCarry
	}
}

// overflowCheck implements http://www.righto.com/2012/12/the-6502-overflow-flag-explained.html
func (c *Chip) overflowCheck(reg, arg, res uint8) {
	c.P &^= FlagOverflow
	if (reg^res)&(arg^res)&0x80 != 0 {
		c.P |= FlagOverflow
	}
}

func (c *Chip) pushStack(val uint8, kind bus.Kind) {
	c.b.Trace(kind)
	c.b.Write(0x0100+uint16(c.S), val)
	c.S--
}

func (c *Chip) popStack(kind bus.Kind) uint8 {
	c.S++
	c.b.Trace(kind)
	return c.b.Read(0x0100 + uint16(c.S))
}

// runInterrupt drives the 7-cycle BRK/IRQ/NMI push sequence starting at
// opTick 2 (opTick 1 was the opcode fetch of whatever instruction the
// interrupt preempted; that fetched byte is discarded). brkFlag controls
// whether the pushed P has FlagBreak set: true for a software BRK, false for
// a hardware IRQ/NMI, per spec.md's B-flag semantics.
func (c *Chip) runInterrupt(vector uint16, brkFlag bool) (bool, error) {
	switch c.opTick {
	case 2:
		c.b.Trace(bus.KindDummyRead)
		_ = c.b.Read(c.PC)
		return false, nil
	case 3:
		c.pushStack(uint8(c.PC>>8), bus.KindStackPushPCHigh)
		return false, nil
	case 4:
		c.pushStack(uint8(c.PC), bus.KindStackPushPCLow)
		return false, nil
	case 5:
		p := c.P | FlagS1
		if brkFlag {
			p |= FlagBreak
		} else {
			p &^= FlagBreak
		}
		c.pushStack(p, bus.KindStackPushP)
		return false, nil
	case 6:
		c.b.Trace(bus.KindInterruptVectorLow)
		c.opVal = c.b.Read(vector)
		c.P |= FlagInterrupt
		return false, nil
	case 7:
		c.b.Trace(bus.KindInterruptVectorHigh)
		hi := c.b.Read(vector + 1)
		c.PC = (uint16(hi) << 8) + uint16(c.opVal)
		return true, nil
	}
	return true, InvalidState{fmt.Sprintf("runInterrupt: bad opTick %d", c.opTick)}
}

// Addressing helpers resolve the effective address (for store/RMW) and/or
// the loaded operand byte (for load), and return (done, error); done means
// the effective operand/address is ready in c.opVal/c.opAddr and execute()
// may perform the instruction's actual operation on this same tick
// (load/most RMW-dummy-read ticks) or a following tick (RMW final write).

// Implied/Accumulator instructions act on tick 2 directly; no helper is
// needed beyond the generic dummy-operand read already done at opTick==2.

// addrZeroPage resolves a single-byte zero-page address. c.opVal holds the
// address byte from the generic opTick==2 fetch; tick 2 itself does nothing
// further (the address byte fetch IS cycle 2), and finishAddr only starts
// on tick 3.
func (c *Chip) addrZeroPage(mode instructionMode) (bool, error) {
	switch c.opTick {
	case 2:
		c.opAddr = uint16(c.opVal)
		return false, nil
	}
	return c.finishAddr(mode)
}

// addrZeroPageIndexed resolves zero-page,X or zero-page,Y with the
// mandatory dummy read of the unindexed address on tick 3.
func (c *Chip) addrZeroPageIndexed(mode instructionMode, index uint8) (bool, error) {
	switch c.opTick {
	case 2:
		return false, nil
	case 3:
		c.b.Trace(bus.KindDummyRead)
		_ = c.b.Read(uint16(c.opVal))
		c.opAddr = uint16(c.opVal + index)
		return false, nil
	}
	return c.finishAddr(mode)
}

func (c *Chip) addrZeroPageX(mode instructionMode) (bool, error) {
	return c.addrZeroPageIndexed(mode, c.X)
}

func (c *Chip) addrZeroPageY(mode instructionMode) (bool, error) {
	return c.addrZeroPageIndexed(mode, c.Y)
}

// addrAbsolute resolves a 2-byte absolute address.
func (c *Chip) addrAbsolute(mode instructionMode) (bool, error) {
	switch c.opTick {
	case 2:
		return false, nil
	case 3:
		c.b.Trace(bus.KindOperandAbsoluteHigh)
		hi := c.b.Read(c.PC)
		c.PC++
		c.opAddr = (uint16(hi) << 8) + uint16(c.opVal)
		return false, nil
	}
	return c.finishAddr(mode)
}

// addrAbsoluteIndexed resolves absolute,X or absolute,Y. A load pays the
// extra dummy-read cycle only when indexing crosses a page; store and RMW
// always pay it (the dummy read of the unfixed-up address is mandatory
// regardless of crossing).
func (c *Chip) addrAbsoluteIndexed(mode instructionMode, index uint8, hiKind bus.Kind) (bool, error) {
	switch c.opTick {
	case 2:
		return false, nil
	case 3:
		c.b.Trace(hiKind)
		hi := c.b.Read(c.PC)
		c.PC++
		base := (uint16(hi) << 8) + uint16(c.opVal)
		c.opAddr = base + uint16(index)
		c.addrDone = (base & 0xFF00) == (c.opAddr & 0xFF00) // true: page not crossed
		c.baseHi = uint8(base >> 8)
		return false, nil
	case 4:
		if mode != modeLoad || !c.addrDone {
			// Page crossed (or store/RMW, which always pay it): re-read with the
			// uncarried high byte before settling on the real address.
			wrong := c.opAddr
			if !c.addrDone {
				wrong -= 0x100
			}
			c.b.Trace(bus.KindDummyRead)
			_ = c.b.Read(wrong)
			return false, nil
		}
		return c.finishAddr(mode)
	}
	return c.finishAddr(mode)
}

func (c *Chip) addrAbsoluteX(mode instructionMode) (bool, error) {
	return c.addrAbsoluteIndexed(mode, c.X, bus.KindOperandAbsoluteXHigh)
}

func (c *Chip) addrAbsoluteY(mode instructionMode) (bool, error) {
	return c.addrAbsoluteIndexed(mode, c.Y, bus.KindOperandAbsoluteYHigh)
}

// addrIndirectX resolves (zp,X): a zero-page pointer indexed by X before
// dereferencing, all within page zero (the add wraps).
func (c *Chip) addrIndirectX(mode instructionMode) (bool, error) {
	switch c.opTick {
	case 2:
		return false, nil
	case 3:
		c.b.Trace(bus.KindDummyRead)
		_ = c.b.Read(uint16(c.opVal))
		return false, nil
	case 4:
		ptr := c.opVal + c.X
		c.b.Trace(bus.KindOperandIndirectXResolveLow)
		c.opVal2 = c.b.Read(uint16(ptr))
		c.opAddr = uint16(ptr) // stash low pointer addr for next tick
		return false, nil
	case 5:
		ptr := uint8(c.opAddr) + 1
		c.b.Trace(bus.KindOperandIndirectXResolveHigh)
		hi := c.b.Read(uint16(ptr))
		c.opAddr = (uint16(hi) << 8) + uint16(c.opVal2)
		return false, nil
	}
	return c.finishAddr(mode)
}

// addrIndirectY resolves (zp),Y: dereference a zero-page pointer, then add Y
// with the same page-crossing dummy-read rule as absolute,Y.
func (c *Chip) addrIndirectY(mode instructionMode) (bool, error) {
	switch c.opTick {
	case 2:
		return false, nil
	case 3:
		c.b.Trace(bus.KindOperandIndirectY)
		c.opVal2 = c.b.Read(uint16(c.opVal))
		return false, nil
	case 4:
		ptr := c.opVal + 1
		c.b.Trace(bus.KindOperandIndirectY2)
		hi := c.b.Read(uint16(ptr))
		base := (uint16(hi) << 8) + uint16(c.opVal2)
		c.opAddr = base + uint16(c.Y)
		c.addrDone = (base & 0xFF00) == (c.opAddr & 0xFF00)
		c.baseHi = uint8(base >> 8)
		return false, nil
	case 5:
		if mode != modeLoad || !c.addrDone {
			wrong := c.opAddr
			if !c.addrDone {
				wrong -= 0x100
			}
			c.b.Trace(bus.KindDummyRead)
			_ = c.b.Read(wrong)
			return false, nil
		}
		return c.finishAddr(mode)
	}
	return c.finishAddr(mode)
}

// addrIndirect resolves JMP (abs), including the NMOS page-wrap bug where
// the high-byte fetch doesn't carry into the page when the low pointer byte
// is 0xFF.
func (c *Chip) addrIndirect(mode instructionMode) (bool, error) {
	switch c.opTick {
	case 2:
		return false, nil
	case 3:
		c.b.Trace(bus.KindOperandAbsoluteHigh)
		hi := c.b.Read(c.PC)
		c.PC++
		c.opAddr = (uint16(hi) << 8) + uint16(c.opVal)
		return false, nil
	case 4:
		c.b.Trace(bus.KindOperandIndirectResolveLow)
		c.opVal2 = c.b.Read(c.opAddr)
		return false, nil
	case 5:
		hiAddr := (c.opAddr & 0xFF00) | uint16(uint8(c.opAddr)+1)
		c.b.Trace(bus.KindOperandIndirectResolveHigh)
		hi := c.b.Read(hiAddr)
		c.PC = (uint16(hi) << 8) + uint16(c.opVal2)
		return true, nil
	}
	return true, InvalidState{fmt.Sprintf("addrIndirect: bad opTick %d", c.opTick)}
}

// finishAddr performs the final load/dummy-read/write ticks common to every
// addressing mode once the effective address is known, matching the
// generic load/RMW/store dispatch the teacher's loadInstruction,
// rmwInstruction and storeInstruction helpers implement.
func (c *Chip) finishAddr(mode instructionMode) (bool, error) {
	switch mode {
	case modeLoad:
		c.b.Trace(bus.KindExecuteRead)
		c.opVal = c.b.Read(c.opAddr)
		return true, nil
	case modeStore:
		return true, nil
	case modeRMW:
		if !c.rmwRead {
			c.b.Trace(bus.KindExecuteRead)
			c.opVal = c.b.Read(c.opAddr)
			c.rmwRead = true
			return false, nil
		}
		if !c.rmwWrote {
			c.b.Trace(bus.KindDummyWrite)
			c.b.Write(c.opAddr, c.opVal)
			c.rmwWrote = true
			return false, nil
		}
		c.b.Trace(bus.KindExecuteWrite)
		c.b.Write(c.opAddr, c.opVal)
		return true, nil
	}
	return true, InvalidState{"finishAddr: unknown instructionMode"}
}

// resolveAddr dispatches to the addressing-mode helper for the current
// decoded instruction, given the semantic mode (load/rmw/store) the
// mnemonic requires.
func (c *Chip) resolveAddr(mode instructionMode) (bool, error) {
	switch c.entry.Mode {
	case opcode.ModeZeroPage:
		return c.addrZeroPage(mode)
	case opcode.ModeZeroPageX:
		return c.addrZeroPageX(mode)
	case opcode.ModeZeroPageY:
		return c.addrZeroPageY(mode)
	case opcode.ModeAbsolute:
		return c.addrAbsolute(mode)
	case opcode.ModeAbsoluteX:
		return c.addrAbsoluteX(mode)
	case opcode.ModeAbsoluteY:
		return c.addrAbsoluteY(mode)
	case opcode.ModeIndirectX:
		return c.addrIndirectX(mode)
	case opcode.ModeIndirectY:
		return c.addrIndirectY(mode)
	case opcode.ModeIndirect:
		return c.addrIndirect(mode)
	}
	return true, InvalidState{fmt.Sprintf("resolveAddr: mode %s has no addressing helper", c.entry.Mode)}
}
