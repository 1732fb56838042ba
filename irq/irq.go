// Package irq defines the basic interfaces for working with a 6502 family
// interrupt line. A receiver of interrupts (IRQ/NMI) implements this
// interface to allow other components to raise state without cross-coupling
// component logic; cpu.Chip polls both lines once per Tick per spec.md
// section 4.3's Reset > NMI > IRQ(if I=0) priority.
// NOTE: chips distinguish level- and edge-triggered interrupts; this
//       interface doesn't care and assumes implementors account for that
//       distinction in their own clock-cycle management.
package irq

// Sender defines the interface for an IRQ or NMI source. cpu.Chip holds one
// of each (Config.IRQ, Config.NMI); either may be nil, in which case that
// line is simply never raised.
type Sender interface {
	// Raised indicates whether the interrupt is currently held high.
	Raised() bool
}

// Level is a trivial Sender backed by a bool a caller flips directly, useful
// for tests and for simple hosts that don't model a dedicated interrupt
// controller chip.
type Level bool

// Raised implements Sender.
func (l Level) Raised() bool { return bool(l) }

// LevelLine is a settable Sender for callers that need to toggle the line
// after construction (a *Level value can't be reassigned through the Sender
// interface since Raised has a value, not pointer, receiver above).
type LevelLine struct {
	raised bool
}

// Set raises or lowers the line.
func (l *LevelLine) Set(raised bool) { l.raised = raised }

// Raised implements Sender.
func (l *LevelLine) Raised() bool { return l.raised }
