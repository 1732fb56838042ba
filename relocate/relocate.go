package relocate

import (
	"github.com/dschmidt6502/relocate6502/cpu"
	"github.com/dschmidt6502/relocate6502/diag"
)

// Config is the relocator input spec.md section 6 describes: the program
// under analysis, its load address, the RAM regions it may legitimately
// touch beyond its own image, and the address window within which an
// effective address is considered "internal to the analyzed system".
type Config struct {
	Variant cpu.Variant
	Origin  uint16
	Bytes   []uint8

	// AnalysisStart/AnalysisEnd bound the "inside the system" address window
	// (spec.md section 4.6's first range check). Both inclusive. When both
	// are zero, NewAnalyzer sets the window to the program's own image.
	AnalysisStart, AnalysisEnd uint16

	// ZPRelocationEnabled turns on ExactlyOne constraint emission for
	// zero-page-address formation; when false, zero page addresses are
	// tracked for diagnostics only and Relocate always uses the identity
	// zero-page remap.
	ZPRelocationEnabled bool

	SafeRanges []SafeRange

	// DiagMinLevel filters the diagnostic bag; defaults to diag.Trace (report
	// everything) via NewAnalyzer.
	DiagMinLevel diag.Level
}

// ZPRange is a destination zero-page window for Relocate, inclusive on both
// ends.
type ZPRange struct {
	Start, End uint16
}

// Analyzer drives a cpu.Chip over a shadowBus to build up per-byte
// relocation provenance (C6/C7), then answers Relocate calls by solving the
// accumulated constraints (C8) and packing zero-page classes (C9).
type Analyzer struct {
	cfg Config

	chip *cpu.Chip
	bus  *shadowBus

	arena   *provArena
	store   *constraintStore
	diagBag *diag.Bag

	flags     []ByteFlags
	zpBitmaps map[uint16]zpBitmap
	zpUsed    map[uint8]bool

	srcA, srcX, srcY chainRef
	ramProv          [65536]chainRef

	origBytes []uint8

	solved    bool
	solveErr  error
}

// NewAnalyzer constructs an Analyzer over cfg. The program is loaded into
// shadow RAM immediately; callers drive analysis with RunSubroutineAt.
func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.AnalysisEnd == 0 && cfg.AnalysisStart == 0 {
		cfg.AnalysisStart = cfg.Origin
		cfg.AnalysisEnd = cfg.Origin + uint16(len(cfg.Bytes)) - 1
	}
	diagBag := diag.NewBag(cfg.DiagMinLevel)

	a := &Analyzer{
		cfg:       cfg,
		bus:       newShadowBus(),
		arena:     newProvArena(),
		diagBag:   diagBag,
		flags:     make([]ByteFlags, len(cfg.Bytes)),
		zpBitmaps: make(map[uint16]zpBitmap),
		zpUsed:    make(map[uint8]bool),
		origBytes: append([]uint8(nil), cfg.Bytes...),
	}
	for i := range a.ramProv {
		a.ramProv[i] = chainNil
	}
	a.store = newConstraintStore(diagBag)
	a.bus.rec = diagBag
	a.bus.safe = cfg.SafeRanges
	a.bus.load(cfg.Origin, cfg.Bytes)

	a.chip = cpu.New(cpu.Config{Variant: cfg.Variant, Bus: a.bus})
	return a
}

// Diagnostics returns every diagnostic recorded so far, oldest first.
func (a *Analyzer) Diagnostics() []diag.Entry {
	return a.diagBag.Entries()
}

// Reset restores the Analyzer to a freshly-constructed state so the same
// program image can be re-run from scratch: shadow RAM is reloaded with the
// original bytes, every live provenance chain is released back to the
// arena's free list (spec.md section 2: "provenance cells are pooled ...
// released back to the pool on reset"), and accumulated flags/zero-page
// bookkeeping/constraints are cleared.
func (a *Analyzer) Reset() {
	a.bus.ram = [65536]uint8{}
	a.bus.load(a.cfg.Origin, a.origBytes)
	a.bus.events = nil
	a.bus.touchedAny = false

	a.arena.release(a.srcA)
	a.arena.release(a.srcX)
	a.arena.release(a.srcY)
	for _, chain := range a.ramProv {
		a.arena.release(chain)
	}
	a.srcA, a.srcX, a.srcY = chainNil, chainNil, chainNil
	for i := range a.ramProv {
		a.ramProv[i] = chainNil
	}

	a.flags = make([]ByteFlags, len(a.origBytes))
	a.zpBitmaps = make(map[uint16]zpBitmap)
	a.zpUsed = make(map[uint8]bool)

	a.store = newConstraintStore(a.diagBag)
	a.solved = false
	a.solveErr = nil
}

// RunSubroutineAt executes the program starting at addr as a callable
// subroutine: the stack pointer is primed so a matching RTS (or RTI, if
// expectRTI) returning to an empty stack signals completion, per spec.md
// section 6. It returns reachedLimit=true if maxCycles elapsed first, and a
// non-nil error only for a fatal condition (an unsupported opcode, a JAM).
//
// cycleByCycle only changes how the run is pumped internally (Tick-by-Tick
// rather than Step-by-Step); since taint analysis runs once per completed
// instruction either way, it has no effect on the resulting provenance.
func (a *Analyzer) RunSubroutineAt(addr uint16, maxCycles int, enableAnalysis, expectRTI, cycleByCycle bool) (bool, error) {
	defer a.bus.flushSafeRangeDiagnostic()
	a.bus.analyze = enableAnalysis
	for sp := uint16(0x0100); sp <= 0x01FF; sp++ {
		a.bus.ram[sp] = 0
	}
	delta := uint8(2)
	if expectRTI {
		delta = 3
	}
	a.chip.PC = addr
	a.chip.S = 0xFD - delta

	cycles := 0
	for {
		a.bus.startInstruction()
		n, err := a.runOneInstruction(cycleByCycle)
		cycles += n
		if enableAnalysis {
			a.afterInstruction()
		}
		if err != nil {
			switch e := err.(type) {
			case cpu.Jammed:
				return false, Jammed{Opcode: e.Opcode}
			case cpu.UnsupportedOpcode:
				return false, UnsupportedOpcode{PC: e.PC, Opcode: e.Opcode}
			default:
				return false, err
			}
		}
		if a.chip.S == 0xFD {
			return false, nil
		}
		if cycles >= maxCycles {
			return true, nil
		}
	}
}

func (a *Analyzer) runOneInstruction(cycleByCycle bool) (int, error) {
	if !cycleByCycle {
		return a.chip.Step()
	}
	cycles := 0
	for {
		done, err := a.chip.Tick()
		cycles++
		if err != nil || done {
			return cycles, err
		}
	}
}

// Relocate rewrites the analyzed program for a new load address targetAddr
// and (if targetZP is non-nil) a new zero-page destination window,
// returning the relocated bytes. The first call solves the accumulated
// constraints; later calls with different targetAddr/targetZP reuse that
// solution and only redo the byte patching and zero-page packing (spec.md
// section 6: "idempotent on the analysis result").
func (a *Analyzer) Relocate(targetAddr uint16, targetZP *ZPRange) ([]uint8, error) {
	if targetAddr&0xFF != a.cfg.Origin&0xFF {
		return nil, RelocationPrecondition{Reason: "target address low byte must equal the origin's low byte"}
	}
	if targetAddr < 0x0200 {
		return nil, RelocationPrecondition{Reason: "target address must be >= 0x0200"}
	}
	if int(targetAddr)+len(a.origBytes) > 0x10000 {
		return nil, RelocationPrecondition{Reason: "target address plus program length exceeds the 64KiB address space"}
	}
	if targetZP != nil && targetZP.End < targetZP.Start {
		return nil, RelocationPrecondition{Reason: "target zero page range must be non-empty"}
	}

	if err := a.solveOnce(); err != nil {
		return nil, err
	}

	var remap map[uint8]uint8
	if !a.cfg.ZPRelocationEnabled {
		// A disabled ZP-relocation mode fixes identity on all ZP addresses
		// regardless of what the caller passed for targetZP (spec.md section
		// 6): zero page addresses are tracked for diagnostics only.
		remap = identityZP(a.zpUsed)
	} else {
		if targetZP == nil {
			return nil, RelocationPrecondition{Reason: "zero page relocation is enabled but no target zero page range was supplied"}
		}
		classes := buildZPClasses(a.zpBitmaps, a.zpUsed)
		var err error
		remap, err = allocateZP(classes, targetZP.Start, targetZP.End)
		if err != nil {
			return nil, err
		}
	}

	out := append([]uint8(nil), a.origBytes...)
	hiDelta := int16(targetAddr>>8) - int16(a.cfg.Origin>>8)
	for off, f := range a.flags {
		if f&FlagReloc == 0 {
			continue
		}
		switch {
		case f&FlagUsedInMSB != 0:
			out[off] = uint8(int16(out[off]) + hiDelta)
		case f&FlagUsedInZP != 0:
			bits := a.zpBitmaps[uint16(off)].bits()
			if len(bits) > 0 {
				out[off] = remap[bits[0]]
			}
		}
	}
	return out, nil
}

// solveOnce runs the trivial-inconsistency precheck (spec.md section 4.7:
// a byte that's both UsedInZp and UsedInMsb is forced NoReloc before search)
// followed by the constraint solver, caching the result for subsequent
// Relocate calls.
func (a *Analyzer) solveOnce() error {
	if a.solved {
		return a.solveErr
	}
	a.solved = true
	for off := range a.flags {
		if a.flags[off]&FlagUsedInZP != 0 && a.flags[off]&FlagUsedInMSB != 0 {
			a.flags[off] |= FlagNoReloc
		}
		if a.flags[off]&FlagReloc != 0 && a.flags[off]&FlagNoReloc != 0 {
			a.solveErr = SolverInconsistency{Reason: "a byte is forced both relocatable and non-relocatable"}
			return a.solveErr
		}
	}
	s := newSolver(a.store, a.flags, a.diagBag)
	a.solveErr = s.solve()
	return a.solveErr
}
