package opcode

import "testing"

func TestBitExactAnchors(t *testing.T) {
	tests := []struct {
		op   uint8
		mn   Mnemonic
		mode Mode
	}{
		{0x00, BRK, ModeImplied},
		{0xEA, NOP, ModeImplied},
		{0x20, JSR, ModeAbsolute},
		{0x4C, JMP, ModeAbsolute},
		{0x6C, JMP, ModeIndirect},
	}
	tbl := NewTable(NMOS6510)
	for _, test := range tests {
		e := tbl.Decode(test.op)
		if e.Mnemonic != test.mn || e.Mode != test.mode {
			t.Errorf("Decode(0x%.2X) = %s %s, want %s %s", test.op, e.Mnemonic, e.Mode, test.mn, test.mode)
		}
	}
}

func Test6502ExcludesUndocumented(t *testing.T) {
	tbl := NewTable(NMOS6502)
	for op := range undocumented {
		if e := tbl.Decode(op); e.Mnemonic != MnemonicUnknown {
			t.Errorf("NMOS6502 Decode(0x%.2X) = %s, want Unknown", op, e.Mnemonic)
		}
	}
}

func Test6510CoversAll256(t *testing.T) {
	tbl := NewTable(NMOS6510)
	for op := 0; op < 256; op++ {
		if e := tbl.Decode(uint8(op)); e.Mnemonic == MnemonicUnknown {
			t.Errorf("NMOS6510 Decode(0x%.2X) = Unknown, want a defined mnemonic", op)
		}
	}
}

func TestOperandSizeByMode(t *testing.T) {
	tests := []struct {
		mode Mode
		want uint8
	}{
		{ModeImplied, 0},
		{ModeAccumulator, 0},
		{ModeImmediate, 1},
		{ModeRelative, 1},
		{ModeZeroPage, 1},
		{ModeIndirectX, 1},
		{ModeIndirectY, 1},
		{ModeAbsolute, 2},
		{ModeAbsoluteX, 2},
		{ModeIndirect, 2},
	}
	for _, test := range tests {
		if got := OperandSize(test.mode); got != test.want {
			t.Errorf("OperandSize(%s) = %d, want %d", test.mode, got, test.want)
		}
	}
}
