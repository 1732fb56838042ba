package relocate

import (
	"github.com/dschmidt6502/relocate6502/bus"
	"github.com/dschmidt6502/relocate6502/cpu"
	"github.com/dschmidt6502/relocate6502/diag"
	"github.com/dschmidt6502/relocate6502/opcode"
)

// findEvent returns the first recorded event of any of the given kinds.
func findEvent(events []accessEvent, kinds ...bus.Kind) (accessEvent, bool) {
	for _, e := range events {
		for _, k := range kinds {
			if e.kind == k {
				return e, true
			}
		}
	}
	return accessEvent{}, false
}

// findLastEvent returns the last recorded event of any of the given kinds.
// (zp,X) and (zp),Y both reuse their resolve kind for the generic tick-2
// zero-page-pointer-byte fetch (a code literal) before the mode-specific
// handler reuses the same kind for the actual pointer-table read from RAM;
// the real resolve is always the later one.
func findLastEvent(events []accessEvent, kinds ...bus.Kind) (accessEvent, bool) {
	var last accessEvent
	found := false
	for _, e := range events {
		for _, k := range kinds {
			if e.kind == k {
				last, found = e, true
			}
		}
	}
	return last, found
}

// afterInstruction interprets the just-completed instruction's recorded bus
// events, updating register/cell provenance and emitting constraints. This
// runs once per instruction (spec.md section 2's C7 share is explicitly
// "per-instruction"), not once per cycle: the CPU core already produced a
// cycle-accurate trace of access kinds, and the taint tracker only needs
// the instruction's final semantic shape to interpret it.
func (a *Analyzer) afterInstruction() {
	entry := a.chip.CurrentEntry()
	events := a.bus.events

	a.pointerFormation(entry, events)
	a.applyMnemonic(entry, events)
}

// --- pointer formation (range check trigger) -------------------------------

// pointerFormation runs the section 4.6 range check for every 2-byte or
// zero-page addressing-mode resolution the instruction performed.
func (a *Analyzer) pointerFormation(entry opcode.Entry, events []accessEvent) {
	switch entry.Mode {
	case opcode.ModeAbsolute:
		lo, loOK := findEvent(events, bus.KindOperandAbsoluteLow)
		hi, hiOK := findEvent(events, bus.KindOperandAbsoluteHigh, bus.KindOperandJsrAbsoluteHigh)
		if loOK && hiOK {
			a.checkLiteralPair(lo, hi)
		}
	case opcode.ModeAbsoluteX:
		lo, loOK := findEvent(events, bus.KindOperandAbsoluteXLow)
		hi, hiOK := findEvent(events, bus.KindOperandAbsoluteXHigh)
		if loOK && hiOK {
			a.checkLiteralPairIndexed(lo, hi, a.chip.X, a.srcX)
		}
	case opcode.ModeAbsoluteY:
		lo, loOK := findEvent(events, bus.KindOperandAbsoluteYLow)
		hi, hiOK := findEvent(events, bus.KindOperandAbsoluteYHigh)
		if loOK && hiOK {
			a.checkLiteralPairIndexed(lo, hi, a.chip.Y, a.srcY)
		}
	case opcode.ModeIndirect:
		// First formation: the pointer address itself, fetched as literal
		// code bytes (same kinds as plain Absolute).
		lo, loOK := findEvent(events, bus.KindOperandAbsoluteLow)
		hi, hiOK := findEvent(events, bus.KindOperandAbsoluteHigh)
		if loOK && hiOK {
			a.checkLiteralPair(lo, hi)
		}
		// Second formation: the dereferenced target, read from RAM.
		lo2, lo2OK := findEvent(events, bus.KindOperandIndirectResolveLow)
		hi2, hi2OK := findEvent(events, bus.KindOperandIndirectResolveHigh)
		if lo2OK && hi2OK {
			a.checkCellPair(lo2.addr, hi2.addr)
		}
	case opcode.ModeIndirectX:
		// The tick-2 generic fetch reuses this same kind for the zero-page
		// pointer operand (a code literal); findLastEvent skips past it to
		// the actual pointer-table read from RAM.
		lo, loOK := findLastEvent(events, bus.KindOperandIndirectXResolveLow)
		hi, hiOK := findEvent(events, bus.KindOperandIndirectXResolveHigh)
		if loOK && hiOK {
			a.checkCellPair(lo.addr, hi.addr)
		}
	case opcode.ModeIndirectY:
		lo, loOK := findLastEvent(events, bus.KindOperandIndirectY)
		hi, hiOK := findEvent(events, bus.KindOperandIndirectY2)
		if loOK && hiOK {
			a.checkCellPairIndexed(lo.addr, hi.addr, a.chip.Y, a.srcY)
		}
	case opcode.ModeZeroPage:
		e, ok := findEvent(events, bus.KindOperandZeroPage)
		if ok {
			a.checkZeroPageOnly(e)
		}
	case opcode.ModeZeroPageX:
		e, ok := findEvent(events, bus.KindOperandZeroPageX)
		if ok {
			a.checkZeroPageOnly(e)
		}
	case opcode.ModeZeroPageY:
		e, ok := findEvent(events, bus.KindOperandZeroPageY)
		if ok {
			a.checkZeroPageOnly(e)
		}
	}
}

// checkLiteralPair handles unindexed Absolute/JSR/the first half of
// Indirect: low and high are the literal code bytes encoding the address.
func (a *Analyzer) checkLiteralPair(lo, hi accessEvent) {
	final := (uint16(hi.val) << 8) | uint16(lo.val)
	lsb1 := a.literalChain(lo.addr)
	msb := a.literalChain(hi.addr)
	a.markReadOf(lo.addr)
	a.markReadOf(hi.addr)
	a.rangeCheck(final, lsb1, chainNil, false, msb, true)
}

// checkLiteralPairIndexed handles AbsoluteX/AbsoluteY: same as
// checkLiteralPair, plus the named index register's current value and
// provenance chain folded into the final address and the LSB side of the
// range check.
func (a *Analyzer) checkLiteralPairIndexed(lo, hi accessEvent, index uint8, idxChain chainRef) {
	base := (uint16(hi.val) << 8) | uint16(lo.val)
	final := base + uint16(index)
	lsb1 := a.literalChain(lo.addr)
	msb := a.literalChain(hi.addr)
	a.markReadOf(lo.addr)
	a.markReadOf(hi.addr)
	a.rangeCheck(final, lsb1, idxChain, true, msb, true)
}

// checkCellPair handles IndirectX/the second half of Indirect: low and high
// are pointer-table bytes read from RAM, so their provenance comes from
// whatever last wrote those cells.
func (a *Analyzer) checkCellPair(loAddr, hiAddr uint16) {
	final := (uint16(a.cellVal(hiAddr)) << 8) | uint16(a.cellVal(loAddr))
	lsb1 := a.cellChain(loAddr)
	msb := a.cellChain(hiAddr)
	a.rangeCheck(final, lsb1, chainNil, false, msb, true)
}

// checkCellPairIndexed handles IndirectY: same as checkCellPair, plus the Y
// register folded into the final address and the range check's LSB side.
func (a *Analyzer) checkCellPairIndexed(loAddr, hiAddr uint16, index uint8, idxChain chainRef) {
	base := (uint16(a.cellVal(hiAddr)) << 8) | uint16(a.cellVal(loAddr))
	final := base + uint16(index)
	lsb1 := a.cellChain(loAddr)
	msb := a.cellChain(hiAddr)
	a.rangeCheck(final, lsb1, idxChain, true, msb, true)
}

// checkZeroPageOnly handles ZeroPage/ZeroPageX/ZeroPageY: the single
// operand byte IS the (pre-index) address and is always below 0x100, so
// there's no MSB and no range-above-analysis case to consider; the
// "contributes to this ZP address" linkage is still recorded.
func (a *Analyzer) checkZeroPageOnly(op accessEvent) {
	a.markReadOf(op.addr)
	lsb1 := a.literalChain(op.addr)
	a.markUsedInZP(a.arena.offsets(lsb1), op.val)
	if a.cfg.ZPRelocationEnabled {
		a.store.addExactlyOne(a.arena.offsets(lsb1))
	}
}

func (a *Analyzer) cellVal(addr uint16) uint8 { return a.bus.ram[addr] }

// rangeCheck implements spec.md section 4.6's three-way classification of a
// resolved address.
func (a *Analyzer) rangeCheck(addr uint16, lsb1, lsb2 chainRef, hasLsb2 bool, msb chainRef, hasMsb bool) {
	switch {
	case addr >= a.cfg.AnalysisStart && addr <= a.cfg.AnalysisEnd:
		a.markNoReloc(lsb1)
		if hasLsb2 {
			a.markNoReloc(lsb2)
		}
		if hasMsb {
			offs := a.arena.offsets(msb)
			a.markUsedInMSB(offs)
			a.store.addExactlyOne(offs)
		}
	case addr < 0x100:
		if hasMsb {
			a.markNoReloc(msb)
		}
		combined := lsb1
		if hasLsb2 {
			res := a.arena.union(combined, lsb2)
			combined = res.chain
			a.reportDuplicates(res.duplicates)
		}
		offs := a.arena.offsets(combined)
		a.markUsedInZP(offs, uint8(addr))
		if a.cfg.ZPRelocationEnabled {
			a.store.addExactlyOne(offs)
		}
	default:
		a.markNoReloc(lsb1)
		if hasLsb2 {
			a.markNoReloc(lsb2)
		}
		if hasMsb {
			a.markNoReloc(msb)
		}
	}
}

func (a *Analyzer) markNoReloc(chain chainRef) {
	for _, o := range a.arena.offsets(chain) {
		a.flags[o] |= FlagNoReloc
	}
}

func (a *Analyzer) markUsedInMSB(offsets []uint16) {
	for _, o := range offsets {
		a.flags[o] |= FlagUsedInMSB
	}
}

func (a *Analyzer) markUsedInZP(offsets []uint16, zpAddr uint8) {
	a.zpUsed[zpAddr] = true
	for _, o := range offsets {
		a.flags[o] |= FlagUsedInZP
		bm := a.zpBitmaps[o]
		bm.set(zpAddr)
		a.zpBitmaps[o] = bm
	}
}

func (a *Analyzer) markReadOf(addr uint16) {
	if off, ok := a.progOffset(addr); ok {
		a.flags[off] |= FlagRead
	}
}

func (a *Analyzer) reportDuplicates(dups []uint16) {
	for _, o := range dups {
		a.flags[o] |= FlagNoReloc
		if a.diagBag != nil {
			a.diagBag.Record(diag.CR400, "program byte offset %d contributes twice to one sum; not relocated", o)
		}
	}
}

// --- per-mnemonic register/cell provenance ---------------------------------

// applyMnemonic updates srcA/srcX/srcY and any written memory cell's
// provenance according to what the instruction actually does, per spec.md
// section 4.6's register-transfer/arithmetic/load/store rules.
func (a *Analyzer) applyMnemonic(entry opcode.Entry, events []accessEvent) {
	switch entry.Mnemonic {
	case opcode.TAX:
		a.srcX = a.srcA
	case opcode.LAX:
		op := a.operandChain(entry, events)
		a.srcA, a.srcX = op, op
	case opcode.TAY:
		a.srcY = a.srcA
	case opcode.TXA:
		a.srcA = a.srcX
	case opcode.TYA:
		a.srcA = a.srcY
	case opcode.TSX:
		a.srcX = chainNil
	case opcode.TXS:
		a.markNoReloc(a.srcX)

	case opcode.ADC:
		op := a.operandChain(entry, events)
		if a.chip.P&cpu.FlagDecimal != 0 {
			a.srcA = chainNil
		} else {
			res := a.arena.union(a.srcA, op)
			a.srcA = res.chain
			a.reportDuplicates(res.duplicates)
		}
	case opcode.SBC, opcode.USBC:
		a.srcA = chainNil
	case opcode.AND, opcode.EOR, opcode.ORA:
		a.srcA = chainNil
	case opcode.ASL, opcode.LSR, opcode.ROL, opcode.ROR:
		if entry.Mode == opcode.ModeAccumulator {
			a.srcA = chainNil
			return
		}
		if e, ok := findEvent(events, bus.KindExecuteWrite); ok {
			a.setCell(e.addr, chainNil)
		}
	case opcode.INC, opcode.DEC:
		if e, ok := findEvent(events, bus.KindExecuteWrite); ok {
			a.setCell(e.addr, chainNil)
		}

	case opcode.CMP:
		a.compareTaint(a.chip.A, a.srcA, entry, events)
	case opcode.CPX:
		a.compareTaint(a.chip.X, a.srcX, entry, events)
	case opcode.CPY:
		a.compareTaint(a.chip.Y, a.srcY, entry, events)

	case opcode.LDA:
		a.srcA = a.operandChain(entry, events)
	case opcode.LDX:
		a.srcX = a.operandChain(entry, events)
	case opcode.LDY:
		a.srcY = a.operandChain(entry, events)

	case opcode.STA:
		a.storeTo(events, a.srcA)
	case opcode.STX:
		a.storeTo(events, a.srcX)
	case opcode.STY:
		a.storeTo(events, a.srcY)
	case opcode.SAX:
		res := a.arena.union(a.srcA, a.srcX)
		a.reportDuplicates(res.duplicates)
		a.storeTo(events, res.chain)

	case opcode.PHA:
		if e, ok := findEvent(events, bus.KindStackPushA); ok {
			a.setCell(e.addr, a.srcA)
		}
	case opcode.PLA:
		if e, ok := findEvent(events, bus.KindStackPopA); ok {
			a.srcA = a.cellChain(e.addr)
		}

	// Undocumented RMW-combined-with-A ops (C5): treat the memory cell as
	// erased (same as documented RMW) and A as erased too, since all of
	// DCP/ISC/SLO/RLA/SRE/RRA fold an ALU step into the read-modify-write.
	case opcode.DCP, opcode.ISC, opcode.SLO, opcode.RLA, opcode.SRE, opcode.RRA:
		if e, ok := findEvent(events, bus.KindExecuteWrite); ok {
			a.setCell(e.addr, chainNil)
		}
		a.srcA = chainNil

	case opcode.ALR, opcode.ANC, opcode.ARR, opcode.ANE, opcode.LXA:
		a.srcA = chainNil
	case opcode.LAS:
		a.srcA, a.srcX = chainNil, chainNil
	case opcode.SBX:
		a.srcX = chainNil
	case opcode.SHA:
		a.storeTo(events, a.arena.union(a.srcA, a.srcX).chain)
	case opcode.SHX:
		a.storeTo(events, a.srcX)
	case opcode.SHY:
		a.storeTo(events, a.srcY)
	case opcode.TAS:
		a.storeTo(events, a.arena.union(a.srcA, a.srcX).chain)
	}
}

// compareTaint implements the CMP/CPX/CPY Alike rule: only emitted when
// both the register's current value and the operand byte fall within the
// analysis range's high-byte span.
func (a *Analyzer) compareTaint(regVal uint8, regChain chainRef, entry opcode.Entry, events []accessEvent) {
	op := a.operandChain(entry, events)
	opVal, ok := a.operandValue(entry, events)
	if !ok {
		return
	}
	loHi := uint8(a.cfg.AnalysisStart >> 8)
	hiHi := uint8(a.cfg.AnalysisEnd >> 8)
	if regVal < loHi || regVal > hiHi || opVal < loHi || opVal > hiHi {
		return
	}
	a.store.addAlike(a.arena.offsets(regChain), a.arena.offsets(op))
}

// operandChain resolves the provenance chain an instruction's operand
// contributes, dispatching on addressing mode the same way cpu.Chip's
// loadInstruction does.
func (a *Analyzer) operandChain(entry opcode.Entry, events []accessEvent) chainRef {
	if entry.Mode == opcode.ModeImmediate {
		if e, ok := findEvent(events, bus.KindOperandImmediate); ok {
			return a.literalChain(e.addr)
		}
		return chainNil
	}
	if e, ok := findEvent(events, bus.KindExecuteRead); ok {
		return a.cellChain(e.addr)
	}
	return chainNil
}

// operandValue returns the raw byte value of the operand, for the
// comparison-range check.
func (a *Analyzer) operandValue(entry opcode.Entry, events []accessEvent) (uint8, bool) {
	if entry.Mode == opcode.ModeImmediate {
		if e, ok := findEvent(events, bus.KindOperandImmediate); ok {
			return e.val, true
		}
		return 0, false
	}
	if e, ok := findEvent(events, bus.KindExecuteRead); ok {
		return e.val, true
	}
	return 0, false
}

// storeTo writes a clone of chain into whichever cell the instruction's
// ExecuteWrite event targeted, so the register keeps tracking its own
// lineage independently after the store.
func (a *Analyzer) storeTo(events []accessEvent, chain chainRef) {
	if e, ok := findEvent(events, bus.KindExecuteWrite); ok {
		a.setCell(e.addr, a.arena.clone(chain))
		if off, ok := a.progOffset(e.addr); ok {
			a.flags[off] |= FlagWrite
		}
	}
}

func (a *Analyzer) setCell(addr uint16, chain chainRef) {
	a.ramProv[addr] = chain
}

func (a *Analyzer) cellChain(addr uint16) chainRef {
	return a.ramProv[addr]
}

func (a *Analyzer) literalChain(addr uint16) chainRef {
	off, ok := a.progOffset(addr)
	if !ok {
		return chainNil
	}
	return a.arena.single(off)
}

func (a *Analyzer) progOffset(addr uint16) (uint16, bool) {
	if addr >= a.cfg.Origin && int(addr) < int(a.cfg.Origin)+len(a.origBytes) {
		return addr - a.cfg.Origin, true
	}
	return 0, false
}
