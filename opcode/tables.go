package opcode

// spec is the ordered, 256-entry description of every opcode byte for the
// 6510 (NMOS + undocumented) variant. Cycle counts are base cycles only;
// page-crossing and branch-taken adjustments are applied by cpu.Chip at
// runtime, not baked in here.
//
// Bit-exact anchors (spec.md EXTERNAL INTERFACES): 0x00=BRK, 0xEA=NOP,
// 0x20=JSR Absolute, 0x4C=JMP Absolute, 0x6C=JMP Indirect.
var spec = [256]Entry{
	0x00: {BRK, ModeImplied, 7}, 0x01: {ORA, ModeIndirectX, 6}, 0x02: {JAM, ModeImplied, 2}, 0x03: {SLO, ModeIndirectX, 8},
	0x04: {NOP, ModeZeroPage, 3}, 0x05: {ORA, ModeZeroPage, 3}, 0x06: {ASL, ModeZeroPage, 5}, 0x07: {SLO, ModeZeroPage, 5},
	0x08: {PHP, ModeImplied, 3}, 0x09: {ORA, ModeImmediate, 2}, 0x0A: {ASL, ModeAccumulator, 2}, 0x0B: {ANC, ModeImmediate, 2},
	0x0C: {NOP, ModeAbsolute, 4}, 0x0D: {ORA, ModeAbsolute, 4}, 0x0E: {ASL, ModeAbsolute, 6}, 0x0F: {SLO, ModeAbsolute, 6},

	0x10: {BPL, ModeRelative, 2}, 0x11: {ORA, ModeIndirectY, 5}, 0x12: {JAM, ModeImplied, 2}, 0x13: {SLO, ModeIndirectY, 8},
	0x14: {NOP, ModeZeroPageX, 4}, 0x15: {ORA, ModeZeroPageX, 4}, 0x16: {ASL, ModeZeroPageX, 6}, 0x17: {SLO, ModeZeroPageX, 6},
	0x18: {CLC, ModeImplied, 2}, 0x19: {ORA, ModeAbsoluteY, 4}, 0x1A: {NOP, ModeImplied, 2}, 0x1B: {SLO, ModeAbsoluteY, 7},
	0x1C: {NOP, ModeAbsoluteX, 4}, 0x1D: {ORA, ModeAbsoluteX, 4}, 0x1E: {ASL, ModeAbsoluteX, 7}, 0x1F: {SLO, ModeAbsoluteX, 7},

	0x20: {JSR, ModeAbsolute, 6}, 0x21: {AND, ModeIndirectX, 6}, 0x22: {JAM, ModeImplied, 2}, 0x23: {RLA, ModeIndirectX, 8},
	0x24: {BIT, ModeZeroPage, 3}, 0x25: {AND, ModeZeroPage, 3}, 0x26: {ROL, ModeZeroPage, 5}, 0x27: {RLA, ModeZeroPage, 5},
	0x28: {PLP, ModeImplied, 4}, 0x29: {AND, ModeImmediate, 2}, 0x2A: {ROL, ModeAccumulator, 2}, 0x2B: {ANC, ModeImmediate, 2},
	0x2C: {BIT, ModeAbsolute, 4}, 0x2D: {AND, ModeAbsolute, 4}, 0x2E: {ROL, ModeAbsolute, 6}, 0x2F: {RLA, ModeAbsolute, 6},

	0x30: {BMI, ModeRelative, 2}, 0x31: {AND, ModeIndirectY, 5}, 0x32: {JAM, ModeImplied, 2}, 0x33: {RLA, ModeIndirectY, 8},
	0x34: {NOP, ModeZeroPageX, 4}, 0x35: {AND, ModeZeroPageX, 4}, 0x36: {ROL, ModeZeroPageX, 6}, 0x37: {RLA, ModeZeroPageX, 6},
	0x38: {SEC, ModeImplied, 2}, 0x39: {AND, ModeAbsoluteY, 4}, 0x3A: {NOP, ModeImplied, 2}, 0x3B: {RLA, ModeAbsoluteY, 7},
	0x3C: {NOP, ModeAbsoluteX, 4}, 0x3D: {AND, ModeAbsoluteX, 4}, 0x3E: {ROL, ModeAbsoluteX, 7}, 0x3F: {RLA, ModeAbsoluteX, 7},

	0x40: {RTI, ModeImplied, 6}, 0x41: {EOR, ModeIndirectX, 6}, 0x42: {JAM, ModeImplied, 2}, 0x43: {SRE, ModeIndirectX, 8},
	0x44: {NOP, ModeZeroPage, 3}, 0x45: {EOR, ModeZeroPage, 3}, 0x46: {LSR, ModeZeroPage, 5}, 0x47: {SRE, ModeZeroPage, 5},
	0x48: {PHA, ModeImplied, 3}, 0x49: {EOR, ModeImmediate, 2}, 0x4A: {LSR, ModeAccumulator, 2}, 0x4B: {ALR, ModeImmediate, 2},
	0x4C: {JMP, ModeAbsolute, 3}, 0x4D: {EOR, ModeAbsolute, 4}, 0x4E: {LSR, ModeAbsolute, 6}, 0x4F: {SRE, ModeAbsolute, 6},

	0x50: {BVC, ModeRelative, 2}, 0x51: {EOR, ModeIndirectY, 5}, 0x52: {JAM, ModeImplied, 2}, 0x53: {SRE, ModeIndirectY, 8},
	0x54: {NOP, ModeZeroPageX, 4}, 0x55: {EOR, ModeZeroPageX, 4}, 0x56: {LSR, ModeZeroPageX, 6}, 0x57: {SRE, ModeZeroPageX, 6},
	0x58: {CLI, ModeImplied, 2}, 0x59: {EOR, ModeAbsoluteY, 4}, 0x5A: {NOP, ModeImplied, 2}, 0x5B: {SRE, ModeAbsoluteY, 7},
	0x5C: {NOP, ModeAbsoluteX, 4}, 0x5D: {EOR, ModeAbsoluteX, 4}, 0x5E: {LSR, ModeAbsoluteX, 7}, 0x5F: {SRE, ModeAbsoluteX, 7},

	0x60: {RTS, ModeImplied, 6}, 0x61: {ADC, ModeIndirectX, 6}, 0x62: {JAM, ModeImplied, 2}, 0x63: {RRA, ModeIndirectX, 8},
	0x64: {NOP, ModeZeroPage, 3}, 0x65: {ADC, ModeZeroPage, 3}, 0x66: {ROR, ModeZeroPage, 5}, 0x67: {RRA, ModeZeroPage, 5},
	0x68: {PLA, ModeImplied, 4}, 0x69: {ADC, ModeImmediate, 2}, 0x6A: {ROR, ModeAccumulator, 2}, 0x6B: {ARR, ModeImmediate, 2},
	0x6C: {JMP, ModeIndirect, 5}, 0x6D: {ADC, ModeAbsolute, 4}, 0x6E: {ROR, ModeAbsolute, 6}, 0x6F: {RRA, ModeAbsolute, 6},

	0x70: {BVS, ModeRelative, 2}, 0x71: {ADC, ModeIndirectY, 5}, 0x72: {JAM, ModeImplied, 2}, 0x73: {RRA, ModeIndirectY, 8},
	0x74: {NOP, ModeZeroPageX, 4}, 0x75: {ADC, ModeZeroPageX, 4}, 0x76: {ROR, ModeZeroPageX, 6}, 0x77: {RRA, ModeZeroPageX, 6},
	0x78: {SEI, ModeImplied, 2}, 0x79: {ADC, ModeAbsoluteY, 4}, 0x7A: {NOP, ModeImplied, 2}, 0x7B: {RRA, ModeAbsoluteY, 7},
	0x7C: {NOP, ModeAbsoluteX, 4}, 0x7D: {ADC, ModeAbsoluteX, 4}, 0x7E: {ROR, ModeAbsoluteX, 7}, 0x7F: {RRA, ModeAbsoluteX, 7},

	0x80: {NOP, ModeImmediate, 2}, 0x81: {STA, ModeIndirectX, 6}, 0x82: {NOP, ModeImmediate, 2}, 0x83: {SAX, ModeIndirectX, 6},
	0x84: {STY, ModeZeroPage, 3}, 0x85: {STA, ModeZeroPage, 3}, 0x86: {STX, ModeZeroPage, 3}, 0x87: {SAX, ModeZeroPage, 3},
	0x88: {DEY, ModeImplied, 2}, 0x89: {NOP, ModeImmediate, 2}, 0x8A: {TXA, ModeImplied, 2}, 0x8B: {ANE, ModeImmediate, 2},
	0x8C: {STY, ModeAbsolute, 4}, 0x8D: {STA, ModeAbsolute, 4}, 0x8E: {STX, ModeAbsolute, 4}, 0x8F: {SAX, ModeAbsolute, 4},

	0x90: {BCC, ModeRelative, 2}, 0x91: {STA, ModeIndirectY, 6}, 0x92: {JAM, ModeImplied, 2}, 0x93: {SHA, ModeIndirectY, 6},
	0x94: {STY, ModeZeroPageX, 4}, 0x95: {STA, ModeZeroPageX, 4}, 0x96: {STX, ModeZeroPageY, 4}, 0x97: {SAX, ModeZeroPageY, 4},
	0x98: {TYA, ModeImplied, 2}, 0x99: {STA, ModeAbsoluteY, 5}, 0x9A: {TXS, ModeImplied, 2}, 0x9B: {TAS, ModeAbsoluteY, 5},
	0x9C: {SHY, ModeAbsoluteX, 5}, 0x9D: {STA, ModeAbsoluteX, 5}, 0x9E: {SHX, ModeAbsoluteY, 5}, 0x9F: {SHA, ModeAbsoluteY, 5},

	0xA0: {LDY, ModeImmediate, 2}, 0xA1: {LDA, ModeIndirectX, 6}, 0xA2: {LDX, ModeImmediate, 2}, 0xA3: {LAX, ModeIndirectX, 6},
	0xA4: {LDY, ModeZeroPage, 3}, 0xA5: {LDA, ModeZeroPage, 3}, 0xA6: {LDX, ModeZeroPage, 3}, 0xA7: {LAX, ModeZeroPage, 3},
	0xA8: {TAY, ModeImplied, 2}, 0xA9: {LDA, ModeImmediate, 2}, 0xAA: {TAX, ModeImplied, 2}, 0xAB: {LXA, ModeImmediate, 2},
	0xAC: {LDY, ModeAbsolute, 4}, 0xAD: {LDA, ModeAbsolute, 4}, 0xAE: {LDX, ModeAbsolute, 4}, 0xAF: {LAX, ModeAbsolute, 4},

	0xB0: {BCS, ModeRelative, 2}, 0xB1: {LDA, ModeIndirectY, 5}, 0xB2: {JAM, ModeImplied, 2}, 0xB3: {LAX, ModeIndirectY, 5},
	0xB4: {LDY, ModeZeroPageX, 4}, 0xB5: {LDA, ModeZeroPageX, 4}, 0xB6: {LDX, ModeZeroPageY, 4}, 0xB7: {LAX, ModeZeroPageY, 4},
	0xB8: {CLV, ModeImplied, 2}, 0xB9: {LDA, ModeAbsoluteY, 4}, 0xBA: {TSX, ModeImplied, 2}, 0xBB: {LAS, ModeAbsoluteY, 4},
	0xBC: {LDY, ModeAbsoluteX, 4}, 0xBD: {LDA, ModeAbsoluteX, 4}, 0xBE: {LDX, ModeAbsoluteY, 4}, 0xBF: {LAX, ModeAbsoluteY, 4},

	0xC0: {CPY, ModeImmediate, 2}, 0xC1: {CMP, ModeIndirectX, 6}, 0xC2: {NOP, ModeImmediate, 2}, 0xC3: {DCP, ModeIndirectX, 8},
	0xC4: {CPY, ModeZeroPage, 3}, 0xC5: {CMP, ModeZeroPage, 3}, 0xC6: {DEC, ModeZeroPage, 5}, 0xC7: {DCP, ModeZeroPage, 5},
	0xC8: {INY, ModeImplied, 2}, 0xC9: {CMP, ModeImmediate, 2}, 0xCA: {DEX, ModeImplied, 2}, 0xCB: {SBX, ModeImmediate, 2},
	0xCC: {CPY, ModeAbsolute, 4}, 0xCD: {CMP, ModeAbsolute, 4}, 0xCE: {DEC, ModeAbsolute, 6}, 0xCF: {DCP, ModeAbsolute, 6},

	0xD0: {BNE, ModeRelative, 2}, 0xD1: {CMP, ModeIndirectY, 5}, 0xD2: {JAM, ModeImplied, 2}, 0xD3: {DCP, ModeIndirectY, 8},
	0xD4: {NOP, ModeZeroPageX, 4}, 0xD5: {CMP, ModeZeroPageX, 4}, 0xD6: {DEC, ModeZeroPageX, 6}, 0xD7: {DCP, ModeZeroPageX, 6},
	0xD8: {CLD, ModeImplied, 2}, 0xD9: {CMP, ModeAbsoluteY, 4}, 0xDA: {NOP, ModeImplied, 2}, 0xDB: {DCP, ModeAbsoluteY, 7},
	0xDC: {NOP, ModeAbsoluteX, 4}, 0xDD: {CMP, ModeAbsoluteX, 4}, 0xDE: {DEC, ModeAbsoluteX, 7}, 0xDF: {DCP, ModeAbsoluteX, 7},

	0xE0: {CPX, ModeImmediate, 2}, 0xE1: {SBC, ModeIndirectX, 6}, 0xE2: {NOP, ModeImmediate, 2}, 0xE3: {ISC, ModeIndirectX, 8},
	0xE4: {CPX, ModeZeroPage, 3}, 0xE5: {SBC, ModeZeroPage, 3}, 0xE6: {INC, ModeZeroPage, 5}, 0xE7: {ISC, ModeZeroPage, 5},
	0xE8: {INX, ModeImplied, 2}, 0xE9: {SBC, ModeImmediate, 2}, 0xEA: {NOP, ModeImplied, 2}, 0xEB: {USBC, ModeImmediate, 2},
	0xEC: {CPX, ModeAbsolute, 4}, 0xED: {SBC, ModeAbsolute, 4}, 0xEE: {INC, ModeAbsolute, 6}, 0xEF: {ISC, ModeAbsolute, 6},

	0xF0: {BEQ, ModeRelative, 2}, 0xF1: {SBC, ModeIndirectY, 5}, 0xF2: {JAM, ModeImplied, 2}, 0xF3: {ISC, ModeIndirectY, 8},
	0xF4: {NOP, ModeZeroPageX, 4}, 0xF5: {SBC, ModeZeroPageX, 4}, 0xF6: {INC, ModeZeroPageX, 6}, 0xF7: {ISC, ModeZeroPageX, 6},
	0xF8: {SED, ModeImplied, 2}, 0xF9: {SBC, ModeAbsoluteY, 4}, 0xFA: {NOP, ModeImplied, 2}, 0xFB: {ISC, ModeAbsoluteY, 7},
	0xFC: {NOP, ModeAbsoluteX, 4}, 0xFD: {SBC, ModeAbsoluteX, 4}, 0xFE: {INC, ModeAbsoluteX, 7}, 0xFF: {ISC, ModeAbsoluteX, 7},
}

// undocumented marks which opcode bytes are 6510-only (not part of the
// documented 151-opcode NMOS 6502 subset).
var undocumented = map[uint8]bool{
	0x02: true, 0x03: true, 0x04: true, 0x07: true, 0x0B: true, 0x0C: true,
	0x0F: true, 0x12: true, 0x13: true, 0x14: true, 0x17: true, 0x1A: true,
	0x1B: true, 0x1C: true, 0x1F: true, 0x22: true, 0x23: true, 0x27: true,
	0x2B: true, 0x2F: true, 0x32: true, 0x33: true, 0x34: true, 0x37: true, 0x3A: true,
	0x3B: true, 0x3C: true, 0x3F: true, 0x42: true, 0x43: true, 0x44: true,
	0x47: true, 0x4B: true, 0x4F: true, 0x52: true, 0x53: true, 0x54: true, 0x57: true,
	0x5A: true, 0x5B: true, 0x5C: true, 0x5F: true, 0x62: true, 0x63: true,
	0x64: true, 0x67: true, 0x6B: true, 0x6F: true, 0x72: true, 0x73: true, 0x74: true,
	0x77: true, 0x7A: true, 0x7B: true, 0x7C: true, 0x7F: true, 0x80: true,
	0x82: true, 0x83: true, 0x87: true, 0x89: true, 0x8B: true, 0x8F: true,
	0x92: true, 0x93: true, 0x97: true, 0x9B: true, 0x9C: true, 0x9E: true,
	0x9F: true, 0xA3: true, 0xA7: true, 0xAB: true, 0xAF: true, 0xB2: true,
	0xB3: true, 0xB7: true, 0xBB: true, 0xBF: true, 0xC2: true, 0xC3: true,
	0xC7: true, 0xCB: true, 0xCF: true, 0xD2: true, 0xD3: true, 0xD4: true,
	0xD7: true, 0xDA: true, 0xDB: true, 0xDC: true, 0xDF: true, 0xE2: true,
	0xE3: true, 0xE7: true, 0xEB: true, 0xEF: true, 0xF2: true, 0xF3: true,
	0xF4: true, 0xF7: true, 0xFA: true, 0xFB: true, 0xFC: true, 0xFF: true,
}

var nmos6510Entries = spec

var nmos6502Entries = func() [256]Entry {
	var t [256]Entry
	for i := 0; i < 256; i++ {
		op := uint8(i)
		if undocumented[op] {
			continue // leave as the zero Entry: {MnemonicUnknown, ModeUnknown, 0}
		}
		t[i] = spec[i]
	}
	return t
}()
