package relocate

import (
	"github.com/dschmidt6502/relocate6502/bus"
	"github.com/dschmidt6502/relocate6502/diag"
)

// accessEvent is one bus transaction recorded during the instruction
// currently executing. Dummy reads/writes are recorded too, but the taint
// tracker skips them, per spec.md's GLOSSARY entry for dummy accesses.
type accessEvent struct {
	kind  bus.Kind
	addr  uint16
	val   uint8
	write bool
}

// shadowBus is C6: a 64KiB RAM shadow that classifies every access via the
// CPU's Trace calls and records a per-instruction event log for the taint
// tracker (C7) to interpret once the instruction completes. Grounded on
// bus.Flat for the raw RAM storage; the provenance/flags arrays live on
// Analyzer.
type shadowBus struct {
	ram [65536]uint8

	// analyze gates whether accesses get logged at all (RunSubroutineAt's
	// enable_analysis flag, spec.md section 6).
	analyze bool

	lastKind bus.Kind
	events   []accessEvent

	safe    []SafeRange
	origin  uint16
	progLen int

	touchedStart, touchedEnd uint16
	touchedAny               bool

	rec diagRecorder
}

func newShadowBus() *shadowBus {
	return &shadowBus{}
}

// Trace implements bus.Bus: it's called immediately before the read/write
// it describes, within the same cycle (spec.md section 5's ordering
// guarantee).
func (b *shadowBus) Trace(kind bus.Kind) {
	b.lastKind = kind
}

// Read implements bus.Bus.
func (b *shadowBus) Read(addr uint16) uint8 {
	val := b.ram[addr]
	b.record(addr, val, false)
	return val
}

// Write implements bus.Bus.
func (b *shadowBus) Write(addr uint16, val uint8) {
	b.ram[addr] = val
	b.record(addr, val, true)
	if b.lastKind != bus.KindDummyWrite {
		b.checkSafeRange(addr, true)
	}
}

func (b *shadowBus) record(addr uint16, val uint8, write bool) {
	if !b.analyze {
		return
	}
	b.events = append(b.events, accessEvent{kind: b.lastKind, addr: addr, val: val, write: write})
}

// inImage reports whether addr falls within the loaded program's own byte
// range [origin, origin+progLen).
func (b *shadowBus) inImage(addr uint16) bool {
	return addr >= b.origin && int(addr) < int(b.origin)+b.progLen
}

// checkSafeRange records a non-dummy write that lands outside both the
// program's own image and every registered SafeRange by folding its address
// into the touched span; it does not emit a diagnostic itself
// (flushSafeRangeDiagnostic does that once per run, per spec.md section 6
// scenario 6: "one diagnostic ... spanning the contiguous touched region").
func (b *shadowBus) checkSafeRange(addr uint16, write bool) {
	if b.inImage(addr) {
		return
	}
	if addr >= 0x0100 && addr <= 0x01FF {
		return // stack; always implicitly safe
	}
	for _, r := range b.safe {
		if r.Contains(addr, write) {
			return
		}
	}
	if !b.touchedAny {
		b.touchedStart, b.touchedEnd = addr, addr
		b.touchedAny = true
	} else {
		if addr < b.touchedStart {
			b.touchedStart = addr
		}
		if addr > b.touchedEnd {
			b.touchedEnd = addr
		}
	}
}

// flushSafeRangeDiagnostic emits a single consolidated CR401 spanning every
// out-of-range write recorded since the last flush, then clears the span.
// Call once at the end of a run (RunSubroutineAt defers this).
func (b *shadowBus) flushSafeRangeDiagnostic() {
	if !b.touchedAny {
		return
	}
	if b.rec != nil {
		b.rec.Record(diag.CR401, "writes outside any registered safe RAM range touched 0x%.4X-0x%.4X", b.touchedStart, b.touchedEnd)
	}
	b.touchedAny = false
}

// startInstruction clears the per-instruction event log; call before each
// cpu.Chip.Step().
func (b *shadowBus) startInstruction() {
	b.events = b.events[:0]
}

// load copies bytes into shadow RAM at origin, also recording the program's
// own image bounds for inImage.
func (b *shadowBus) load(origin uint16, data []uint8) {
	b.origin = origin
	b.progLen = len(data)
	for i, v := range data {
		b.ram[int(origin)+i] = v
	}
}
