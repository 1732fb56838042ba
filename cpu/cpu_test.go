package cpu

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	deep "github.com/go-test/deep"

	"github.com/dschmidt6502/relocate6502/bus"
)

// flatMemory is a simple 64KiB RAM bus for tests, grounded on the teacher's
// flatMemory test helper in cpu/cpu_test.go.
type flatMemory struct {
	addr [65536]uint8
}

func (r *flatMemory) Read(addr uint16) uint8     { return r.addr[addr] }
func (r *flatMemory) Write(addr uint16, v uint8) { r.addr[addr] = v }
func (r *flatMemory) Trace(bus.Kind)              {}

func newChip(t *testing.T, variant Variant, program map[uint16]uint8) (*Chip, *flatMemory) {
	t.Helper()
	r := &flatMemory{}
	for i := range r.addr {
		r.addr[i] = 0xEA // fill with NOP so stray fetches don't wander off
	}
	r.addr[ResetVector] = 0x00
	r.addr[ResetVector+1] = 0xC0 // reset at 0xC000
	for addr, v := range program {
		r.addr[addr] = v
	}
	c := New(Config{Variant: variant, Bus: r})
	if c.PC != 0xC000 {
		t.Fatalf("after PowerOn, PC = 0x%.4X, want 0xC000", c.PC)
	}
	return c, r
}

func TestPowerOnResetState(t *testing.T) {
	c, _ := newChip(t, NMOS6510, nil)
	if got, want := c.S, uint8(0xFD); got != want {
		t.Errorf("S after PowerOn = 0x%.2X, want 0x%.2X\n%s", got, want, spew.Sdump(c))
	}
	if c.P&FlagInterrupt == 0 || c.P&FlagS1 == 0 {
		t.Errorf("P after PowerOn = 0x%.2X, want I and unused-bit set", c.P)
	}
	if c.Jammed() {
		t.Error("Jammed() true immediately after PowerOn")
	}
}

// TestScenario1 is spec.md section 8 scenario 1: LDA #$05 ; STA $1000
// assembled at origin 0xC000.
func TestScenario1(t *testing.T) {
	c, r := newChip(t, NMOS6510, map[uint16]uint8{
		0xC000: 0xA9, 0xC001: 0x05, // LDA #$05
		0xC002: 0x8D, 0xC003: 0x00, 0xC004: 0x10, // STA $1000
	})
	cycles, err := c.Step()
	if err != nil {
		t.Fatalf("Step 1: %v", err)
	}
	if got, want := c.A, uint8(0x05); got != want {
		t.Errorf("A = 0x%.2X, want 0x%.2X", got, want)
	}
	if got, want := c.PC, uint16(0xC002); got != want {
		t.Errorf("PC = 0x%.4X, want 0x%.4X", got, want)
	}
	if got, want := cycles, 2; got != want {
		t.Errorf("cycles = %d, want %d", got, want)
	}

	cycles2, err := c.Step()
	if err != nil {
		t.Fatalf("Step 2: %v", err)
	}
	if got, want := r.addr[0x1000], uint8(0x05); got != want {
		t.Errorf("mem[0x1000] = 0x%.2X, want 0x%.2X", got, want)
	}
	if got, want := c.PC, uint16(0xC005); got != want {
		t.Errorf("PC = 0x%.4X, want 0x%.4X", got, want)
	}
	if got, want := cycles+cycles2, 6; got != want {
		t.Errorf("total cycles = %d, want %d", got, want)
	}
}

// TestScenario2 is spec.md section 8 scenario 2: a branch taken across a
// page boundary costs one extra cycle beyond taken-same-page. BEQ at 0xC0FE
// leaves PC at 0xC100 after the 2-byte fetch; operand 0xF0 (-16) targets
// 0xC0F0, which differs from 0xC100 in the high byte, so the taken case
// genuinely crosses a page.
func TestScenario2(t *testing.T) {
	tests := []struct {
		name       string
		zFlag      bool
		wantPC     uint16
		wantCycles int
	}{
		{name: "taken, page cross", zFlag: true, wantPC: 0xC0F0, wantCycles: 4},
		{name: "not taken", zFlag: false, wantPC: 0xC0FE + 2, wantCycles: 2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, _ := newChip(t, NMOS6510, map[uint16]uint8{
				0xC0FE: 0xF0, 0xC0FF: 0xF0, // BEQ -16
			})
			c.PC = 0xC0FE
			if test.zFlag {
				c.P |= FlagZero
			} else {
				c.P &^= FlagZero
			}
			cycles, err := c.Step()
			if err != nil {
				t.Fatalf("Step: %v", err)
			}
			if got, want := c.PC, test.wantPC; got != want {
				t.Errorf("PC = 0x%.4X, want 0x%.4X", got, want)
			}
			if got, want := cycles, test.wantCycles; got != want {
				t.Errorf("cycles = %d, want %d", got, want)
			}
		})
	}
}

// TestScenario3 is spec.md section 8 scenario 3: decimal-mode ADC.
func TestScenario3(t *testing.T) {
	tests := []struct {
		name        string
		a, operand  uint8
		carryIn     bool
		wantA       uint8
		wantCarry   bool
	}{
		{name: "0x15+0x27", a: 0x15, operand: 0x27, carryIn: false, wantA: 0x42, wantCarry: false},
		{name: "0x81+0x92", a: 0x81, operand: 0x92, carryIn: false, wantA: 0x73, wantCarry: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, _ := newChip(t, NMOS6510, map[uint16]uint8{
				0xC000: 0x69, 0xC001: test.operand, // ADC #operand
			})
			c.P |= FlagDecimal
			if test.carryIn {
				c.P |= FlagCarry
			} else {
				c.P &^= FlagCarry
			}
			c.A = test.a
			if _, err := c.Step(); err != nil {
				t.Fatalf("Step: %v", err)
			}
			if got, want := c.A, test.wantA; got != want {
				t.Errorf("A = 0x%.2X, want 0x%.2X\n%s", got, want, spew.Sdump(c))
			}
			if got, want := c.P&FlagCarry != 0, test.wantCarry; got != want {
				t.Errorf("carry = %v, want %v", got, want)
			}
		})
	}
}

// TestScenario4 is spec.md section 8 scenario 4: INC $1234,X with X=0x10
// (no page cross) takes 7 cycles.
func TestScenario4(t *testing.T) {
	c, r := newChip(t, NMOS6510, map[uint16]uint8{
		0xC000: 0xFE, 0xC001: 0x34, 0xC002: 0x12, // INC $1234,X
	})
	c.X = 0x10
	r.addr[0x1244] = 0x41
	cycles, err := c.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if got, want := cycles, 7; got != want {
		t.Errorf("cycles = %d, want %d", got, want)
	}
	if got, want := r.addr[0x1244], uint8(0x42); got != want {
		t.Errorf("mem[0x1244] = 0x%.2X, want 0x%.2X", got, want)
	}
}

func TestJSRRTS(t *testing.T) {
	c, _ := newChip(t, NMOS6510, map[uint16]uint8{
		0xC000: 0x20, 0xC001: 0x00, 0xC002: 0xD0, // JSR $D000
		0xD000: 0x60, // RTS
	})
	if _, err := c.Step(); err != nil {
		t.Fatalf("JSR: %v", err)
	}
	if got, want := c.PC, uint16(0xD000); got != want {
		t.Errorf("PC after JSR = 0x%.4X, want 0x%.4X", got, want)
	}
	if got, want := c.S, uint8(0xFB); got != want {
		t.Errorf("S after JSR = 0x%.2X, want 0x%.2X", got, want)
	}
	if _, err := c.Step(); err != nil {
		t.Fatalf("RTS: %v", err)
	}
	if got, want := c.PC, uint16(0xC003); got != want {
		t.Errorf("PC after RTS = 0x%.4X, want 0x%.4X (return address)", got, want)
	}
	if got, want := c.S, uint8(0xFD); got != want {
		t.Errorf("S after RTS = 0x%.2X, want 0x%.2X", got, want)
	}
}

func TestBRKRTI(t *testing.T) {
	c, _ := newChip(t, NMOS6510, map[uint16]uint8{
		0xC000: 0x00, 0xC001: 0x00, // BRK
		0xFFFE: 0x00, 0xFFFF: 0xD0,
		0xD000: 0x40, // RTI
	})
	wantP := c.P
	if _, err := c.Step(); err != nil {
		t.Fatalf("BRK: %v", err)
	}
	if got, want := c.PC, uint16(0xD000); got != want {
		t.Errorf("PC after BRK = 0x%.4X, want 0x%.4X", got, want)
	}
	if c.P&FlagInterrupt == 0 {
		t.Error("I flag not set after BRK")
	}
	if _, err := c.Step(); err != nil {
		t.Fatalf("RTI: %v", err)
	}
	if got, want := c.PC, uint16(0xC002); got != want {
		t.Errorf("PC after RTI = 0x%.4X, want 0x%.4X", got, want)
	}
	if diff := deep.Equal(c.P, wantP); diff != nil {
		t.Errorf("P not restored by RTI: %v", diff)
	}
}

func TestIllegalOpcodes(t *testing.T) {
	t.Run("LAX loads A and X together", func(t *testing.T) {
		c, _ := newChip(t, NMOS6510, map[uint16]uint8{
			0xC000: 0xA7, 0xC001: 0x80, // LAX $80
			0x0080: 0x77,
		})
		if _, err := c.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
		if c.A != 0x77 || c.X != 0x77 {
			t.Errorf("A=0x%.2X X=0x%.2X, want both 0x77", c.A, c.X)
		}
	})
	t.Run("SAX stores A AND X", func(t *testing.T) {
		c, r := newChip(t, NMOS6510, map[uint16]uint8{
			0xC000: 0x87, 0xC001: 0x80, // SAX $80
		})
		c.A, c.X = 0xF0, 0x3C
		if _, err := c.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
		if got, want := r.addr[0x0080], uint8(0x30); got != want {
			t.Errorf("mem[0x80] = 0x%.2X, want 0x%.2X", got, want)
		}
	})
	t.Run("JAM halts the CPU until Reset", func(t *testing.T) {
		c, _ := newChip(t, NMOS6510, map[uint16]uint8{0xC000: 0x02})
		if _, err := c.Step(); err != nil {
			t.Fatalf("executing JAM itself should not error: %v", err)
		}
		if !c.Jammed() {
			t.Fatal("Jammed() false after executing JAM opcode")
		}
		if _, err := c.Tick(); err == nil {
			t.Error("Tick after JAM should keep returning an error")
		}
		c.PowerOn()
		if c.Jammed() {
			t.Error("Jammed() still true after PowerOn")
		}
	})
}

func TestUnsupportedOpcodeOnNMOS6502(t *testing.T) {
	c, _ := newChip(t, NMOS6502, map[uint16]uint8{0xC000: 0x02}) // JAM is 6510-only
	_, err := c.Step()
	if _, ok := err.(UnsupportedOpcode); !ok {
		t.Fatalf("Step() err = %v (%T), want UnsupportedOpcode", err, err)
	}
}

func TestDefaultBusReadsNOP(t *testing.T) {
	c := New(Config{Variant: NMOS6510})
	if _, err := c.Step(); err != nil {
		t.Fatalf("Step against nil bus: %v", err)
	}
	if got, want := c.LastInstructionCycles(), 2; got != want {
		t.Errorf("cycles = %d, want %d (bare NOP)", got, want)
	}
}
