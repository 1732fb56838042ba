// Package relocate implements the analytical code relocator: C6 (a shadow
// RAM bus that tracks per-byte provenance), C7 (the taint tracker that
// interprets each instruction's bus accesses), C8 (the constraint
// propagation/backtracking solver) and C9 (the zero-page allocator), all
// driven by a cpu.Chip running the program under analysis.
//
// There is no teacher or pack prior art for a constraint solver; this
// package is built in the teacher's iterative, no-recursion-on-the-hot-path
// idiom (cf. cpu.Chip.Tick's explicit state machine) applied to a novel
// problem, and reuses the bus.Bus contract so the relocator's shadow RAM
// plugs into cpu.Chip exactly like any other bus implementation.
package relocate

import (
	"fmt"

	"github.com/dschmidt6502/relocate6502/diag"
)

// AccessFlags records which kinds of access a program byte or RAM cell has
// seen, per spec.md's data model.
type AccessFlags uint8

const (
	AccessRead AccessFlags = 1 << iota
	AccessWrite
)

// SafeRange is a contiguous range of RAM the analyzed program may legitimately
// touch beyond its own image, per spec.md section 6. Start/End are both
// inclusive.
type SafeRange struct {
	Start, End uint16
	Flags      AccessFlags
}

// Contains reports whether addr falls within the range and the access kind
// (read or write) is permitted by Flags.
func (s SafeRange) Contains(addr uint16, write bool) bool {
	if addr < s.Start || addr > s.End {
		return false
	}
	if write {
		return s.Flags&AccessWrite != 0
	}
	return s.Flags&AccessRead != 0
}

// ByteFlags is the per-program-byte state spec.md's shadow state describes:
// whether the byte must be relocated, and what kind of relocation it needs.
type ByteFlags uint8

const (
	FlagReloc ByteFlags = 1 << iota
	FlagNoReloc
	FlagUsedInZP
	FlagUsedInMSB
	FlagRead
	FlagWrite
)

// Decided reports whether the byte's Reloc/NoReloc state has been settled.
func (f ByteFlags) Decided() bool {
	return f&(FlagReloc|FlagNoReloc) != 0
}

// String renders the set bits for diagnostic messages.
func (f ByteFlags) String() string {
	if f&FlagReloc != 0 {
		return "Reloc"
	}
	if f&FlagNoReloc != 0 {
		return "NoReloc"
	}
	return "undecided"
}

// UnsupportedOpcode mirrors cpu.UnsupportedOpcode at the relocator boundary:
// the subroutine under analysis executed a byte the active cpu.Variant
// can't decode.
type UnsupportedOpcode struct {
	PC     uint16
	Opcode uint8
}

func (e UnsupportedOpcode) Error() string {
	return fmt.Sprintf("unsupported opcode 0x%.2X at PC 0x%.4X", e.Opcode, e.PC)
}

// ReachedLimit describes max_cycles being hit before the subroutine
// returned. RunSubroutineAt does not return it: it reports a hit limit
// through its bool result, with a nil error.
type ReachedLimit struct {
	Cycles int
}

func (e ReachedLimit) Error() string {
	return fmt.Sprintf("reached cycle limit (%d cycles) before subroutine returned", e.Cycles)
}

// Jammed is returned when the CPU executed a JAM opcode during the run.
type Jammed struct {
	Opcode uint8
}

func (e Jammed) Error() string {
	return fmt.Sprintf("CPU jammed on opcode 0x%.2X during analysis run", e.Opcode)
}

// RelocationPrecondition reports a violated precondition of Relocate, per
// spec.md section 6.
type RelocationPrecondition struct {
	Reason string
}

func (e RelocationPrecondition) Error() string {
	return fmt.Sprintf("relocation precondition violated: %s", e.Reason)
}

// SolverInconsistency is returned when the constraint solver proves the
// accumulated constraints unsatisfiable (CR502).
type SolverInconsistency struct {
	Reason string
}

func (e SolverInconsistency) Error() string {
	return fmt.Sprintf("relocation inconsistency: %s", e.Reason)
}

// NoSolution is returned when the solver exhausts its search without
// finding any satisfying assignment (CR501).
type NoSolution struct{}

func (e NoSolution) Error() string { return "no solution found for relocation constraints" }

// ZeroPageExhausted is returned when C9 cannot fit every used zero-page
// class into the requested destination range.
type ZeroPageExhausted struct {
	Needed, Available int
}

func (e ZeroPageExhausted) Error() string {
	return fmt.Sprintf("cannot fit zero page allocation: need %d distinct bytes, have %d available", e.Needed, e.Available)
}

// diagRecorder is satisfied by *diag.Bag; a tiny interface so internal
// helpers don't need to import diag directly in every file's signature list
// beyond this one alias.
type diagRecorder interface {
	Record(id diag.ID, format string, args ...interface{})
}
