package relocate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dschmidt6502/relocate6502/cpu"
	"github.com/dschmidt6502/relocate6502/diag"
)

// trivialProgram is LDA #$2A ; RTS, assembled at origin.
func trivialProgram(origin uint16) []uint8 {
	return []uint8{0xA9, 0x2A, 0x60}
}

func TestRunSubroutineAtTrivial(t *testing.T) {
	origin := uint16(0xC000)
	cfg := Config{
		Variant: cpu.NMOS6510,
		Origin:  origin,
		Bytes:   trivialProgram(origin),
	}
	a := NewAnalyzer(cfg)
	reached, err := a.RunSubroutineAt(origin, 1000, true, false, false)
	require.NoError(t, err)
	require.False(t, reached, "trivial subroutine should return well within the cycle budget")
}

func TestRunSubroutineAtUnsupportedOpcode(t *testing.T) {
	origin := uint16(0xC000)
	cfg := Config{
		Variant: cpu.NMOS6502, // JAM is 6510-only
		Origin:  origin,
		Bytes:   []uint8{0x02},
	}
	a := NewAnalyzer(cfg)
	_, err := a.RunSubroutineAt(origin, 1000, true, false, false)
	require.Error(t, err)
	_, ok := err.(UnsupportedOpcode)
	require.True(t, ok, "want relocate.UnsupportedOpcode, got %T", err)
}

func TestRelocatePreconditions(t *testing.T) {
	origin := uint16(0xC000)
	cfg := Config{
		Variant: cpu.NMOS6510,
		Origin:  origin,
		Bytes:   trivialProgram(origin),
	}

	t.Run("mismatched low byte", func(t *testing.T) {
		a := NewAnalyzer(cfg)
		_, err := a.RunSubroutineAt(origin, 1000, true, false, false)
		require.NoError(t, err)
		_, err = a.Relocate(0xD001, nil)
		require.Error(t, err)
		_, ok := err.(RelocationPrecondition)
		require.True(t, ok, "want RelocationPrecondition, got %T", err)
	})

	t.Run("target below 0x0200", func(t *testing.T) {
		a := NewAnalyzer(cfg)
		_, err := a.RunSubroutineAt(origin, 1000, true, false, false)
		require.NoError(t, err)
		_, err = a.Relocate(0x0000, nil)
		require.Error(t, err)
	})

	t.Run("target overruns 64KiB", func(t *testing.T) {
		// 0xFFFE shares origin 0xC0FE's low byte, and 0xFFFE+3 passes 0x10000.
		hiCfg := cfg
		hiCfg.Origin = 0xC0FE
		hiCfg.Bytes = trivialProgram(0xC0FE)
		a := NewAnalyzer(hiCfg)
		_, err := a.RunSubroutineAt(0xC0FE, 1000, true, false, false)
		require.NoError(t, err)
		_, err = a.Relocate(0xFFFE, nil)
		require.Error(t, err)
	})

	t.Run("empty target zero page range", func(t *testing.T) {
		a := NewAnalyzer(cfg)
		_, err := a.RunSubroutineAt(origin, 1000, true, false, false)
		require.NoError(t, err)
		_, err = a.Relocate(0xD000, &ZPRange{Start: 0x90, End: 0x80})
		require.Error(t, err)
	})
}

func TestRelocateTrivialProgramIsUnchanged(t *testing.T) {
	// A program that touches no zero page and forms no pointers into its own
	// image has nothing to relocate: every byte passes through untouched.
	origin := uint16(0xC000)
	prog := trivialProgram(origin)
	cfg := Config{
		Variant: cpu.NMOS6510,
		Origin:  origin,
		Bytes:   prog,
	}
	a := NewAnalyzer(cfg)
	_, err := a.RunSubroutineAt(origin, 1000, true, false, false)
	require.NoError(t, err)

	out, err := a.Relocate(0xD000, nil)
	require.NoError(t, err)
	require.Equal(t, prog, out, "no zero-page or self-referential bytes, relocation should be a pure copy")
}

func TestRelocateIsIdempotentAcrossTargets(t *testing.T) {
	origin := uint16(0xC000)
	cfg := Config{
		Variant: cpu.NMOS6510,
		Origin:  origin,
		Bytes:   trivialProgram(origin),
	}
	a := NewAnalyzer(cfg)
	_, err := a.RunSubroutineAt(origin, 1000, true, false, false)
	require.NoError(t, err)

	out1, err := a.Relocate(0xD000, nil)
	require.NoError(t, err)
	out2, err := a.Relocate(0xE000, nil)
	require.NoError(t, err)
	require.Equal(t, out1, out2, "a program with nothing address-dependent relocates identically regardless of target")
}

// pointerFormationProgram builds spec.md section 8 scenario 5: a 16-bit
// pointer to target is formed in zero page $FB/$FC via two immediate loads
// and stores, then dereferenced with JMP ($00FB). target must live inside
// origin+len(program) so the resolved address falls within the analysis
// window; the byte at that offset is an RTS so RunSubroutineAt's stack
// bookkeeping sees a clean return.
func pointerFormationProgram(origin, target uint16) []uint8 {
	targetOffset := int(target - origin)
	prog := make([]uint8, targetOffset+1)
	for i := range prog {
		prog[i] = 0xEA // NOP filler between the pointer-forming code and target
	}
	prog[0], prog[1] = 0xA9, uint8(target)       // LDA #<target
	prog[2], prog[3] = 0x85, 0xFB                // STA $FB
	prog[4], prog[5] = 0xA9, uint8(target >> 8)   // LDA #>target
	prog[6], prog[7] = 0x85, 0xFC                 // STA $FC
	prog[8], prog[9], prog[10] = 0x6C, 0xFB, 0x00 // JMP ($00FB)
	prog[targetOffset] = 0x60                     // RTS
	return prog
}

// TestRelocatePointerFormationThroughZeroPage is spec.md section 8 scenario
// 5: a program forms a pointer into its own image in zero page and
// dereferences it with JMP (ind). The pointer's high byte (a direct
// provenance chain of length one) is forced Reloc and carries the load
// address's high-byte delta. The low byte is NoReloc because the address it
// helps form lies inside the analysis window; the JMP's operand low byte
// forms a zero-page address and, with zero-page relocation off, is never
// marked Reloc; the operand high byte is NoReloc.
func TestRelocatePointerFormationThroughZeroPage(t *testing.T) {
	origin := uint16(0xC000)
	target := uint16(0xC080)
	prog := pointerFormationProgram(origin, target)
	cfg := Config{
		Variant: cpu.NMOS6510,
		Origin:  origin,
		Bytes:   prog,
	}
	a := NewAnalyzer(cfg)
	reached, err := a.RunSubroutineAt(origin, 10000, true, false, false)
	require.NoError(t, err)
	require.False(t, reached, "pointer-formation subroutine should return well within the cycle budget")

	out, err := a.Relocate(0xE000, nil)
	require.NoError(t, err)

	require.Equal(t, uint8(target), out[1], "low-byte immediate is unchanged by relocation")
	require.Equal(t, uint8(0xE0), out[5], "high-byte immediate picks up the load address's high-byte delta")
	require.Equal(t, uint8(0x6C), out[8], "JMP (ind) opcode itself is untouched")
	require.Equal(t, uint8(0xFB), out[9], "JMP operand low byte is unchanged: it forms a zero-page address and zero-page relocation is off")
	require.Equal(t, uint8(0x00), out[10], "JMP operand high byte stays NoReloc: it forms a zero-page address")
}

// zeroPageStoreProgram is LDA #imm ; STA zp ; RTS.
func zeroPageStoreProgram(imm, zp uint8) []uint8 {
	return []uint8{0xA9, imm, 0x85, zp, 0x60}
}

func TestRelocateZPEnabledRequiresTargetRange(t *testing.T) {
	// spec.md section 6: if ZP relocation is enabled, the supplied range
	// must be non-empty; a nil targetZP is itself a precondition failure,
	// not a silent identity fallback.
	origin := uint16(0xC000)
	cfg := Config{
		Variant:             cpu.NMOS6510,
		Origin:              origin,
		Bytes:               zeroPageStoreProgram(0x42, 0x80),
		ZPRelocationEnabled: true,
	}
	a := NewAnalyzer(cfg)
	_, err := a.RunSubroutineAt(origin, 1000, true, false, false)
	require.NoError(t, err)

	_, err = a.Relocate(0xD000, nil)
	require.Error(t, err)
	_, ok := err.(RelocationPrecondition)
	require.True(t, ok, "want RelocationPrecondition, got %T", err)
}

func TestRelocateZPEnabledRemapsIntoTargetRange(t *testing.T) {
	origin := uint16(0xC000)
	cfg := Config{
		Variant:             cpu.NMOS6510,
		Origin:              origin,
		Bytes:               zeroPageStoreProgram(0x42, 0x80),
		ZPRelocationEnabled: true,
	}
	a := NewAnalyzer(cfg)
	_, err := a.RunSubroutineAt(origin, 1000, true, false, false)
	require.NoError(t, err)

	out, err := a.Relocate(0xD000, &ZPRange{Start: 0x90, End: 0x9F})
	require.NoError(t, err)
	require.Equal(t, uint8(0x90), out[3], "the zero-page operand byte is remapped into the requested range")
}

func TestRelocateZPDisabledIgnoresTargetRangeAndFixesIdentity(t *testing.T) {
	// spec.md section 6: a disabled ZP-relocation mode fixes identity on
	// every ZP address even if the caller still passes a targetZP.
	origin := uint16(0xC000)
	cfg := Config{
		Variant: cpu.NMOS6510,
		Origin:  origin,
		Bytes:   zeroPageStoreProgram(0x42, 0x80),
	}
	a := NewAnalyzer(cfg)
	_, err := a.RunSubroutineAt(origin, 1000, true, false, false)
	require.NoError(t, err)

	out, err := a.Relocate(0xD000, &ZPRange{Start: 0x90, End: 0x9F})
	require.NoError(t, err)
	require.Equal(t, uint8(0x80), out[3], "ZP relocation disabled: the operand byte is untouched regardless of targetZP")
}

func TestAnalyzerResetReleasesChainsAndReloadsImage(t *testing.T) {
	origin := uint16(0xC000)
	prog := zeroPageStoreProgram(0x42, 0x80)
	cfg := Config{
		Variant:             cpu.NMOS6510,
		Origin:              origin,
		Bytes:               prog,
		ZPRelocationEnabled: true,
	}
	a := NewAnalyzer(cfg)
	_, err := a.RunSubroutineAt(origin, 1000, true, false, false)
	require.NoError(t, err)
	require.True(t, a.flags[3]&FlagUsedInZP != 0, "precondition: analysis recorded the store before Reset")

	a.Reset()

	require.Equal(t, make([]ByteFlags, len(prog)), a.flags, "Reset clears accumulated per-byte flags")
	require.False(t, a.solved, "Reset clears the cached solve result")
	require.Equal(t, uint8(0x42), a.bus.ram[origin+1], "Reset reloads the original program bytes into shadow RAM")
	for _, addr := range []uint16{0, 1, 2} {
		require.Equal(t, chainNil, a.ramProv[addr], "Reset clears RAM provenance")
	}

	// The analyzer is usable again after Reset, and the same byte is
	// re-flagged identically on a second run.
	_, err = a.RunSubroutineAt(origin, 1000, true, false, false)
	require.NoError(t, err)
	require.True(t, a.flags[3]&FlagUsedInZP != 0, "analysis works again after Reset")
}

func TestSafeRangeViolationEmitsOneConsolidatedDiagnostic(t *testing.T) {
	// spec.md section 8 scenario 6: a program writing to 0xD400 without
	// registering it as a safe range emits one CR401 spanning the
	// contiguous touched region, not one per write.
	origin := uint16(0xC000)
	prog := []uint8{
		0xA9, 0x7A, // LDA #$7A
		0x8D, 0x00, 0xD4, // STA $D400
		0x8D, 0x05, 0xD4, // STA $D405
		0x60, // RTS
	}
	cfg := Config{
		Variant: cpu.NMOS6510,
		Origin:  origin,
		Bytes:   prog,
	}
	a := NewAnalyzer(cfg)
	_, err := a.RunSubroutineAt(origin, 1000, true, false, false)
	require.NoError(t, err)

	var cr401 []diag.Entry
	for _, e := range a.Diagnostics() {
		if e.ID == diag.CR401 {
			cr401 = append(cr401, e)
		}
	}
	require.Len(t, cr401, 1, "exactly one consolidated CR401 for the whole run, not one per write")
	require.Contains(t, cr401[0].Message, "0xD400")
	require.Contains(t, cr401[0].Message, "0xD405")
}

func TestSafeRangeRegisteredSuppressesDiagnostic(t *testing.T) {
	origin := uint16(0xC000)
	prog := []uint8{
		0xA9, 0x7A, // LDA #$7A
		0x8D, 0x00, 0xD4, // STA $D400
		0x60, // RTS
	}
	cfg := Config{
		Variant: cpu.NMOS6510,
		Origin:  origin,
		Bytes:   prog,
		SafeRanges: []SafeRange{
			{Start: 0xD400, End: 0xD41F, Flags: AccessWrite},
		},
	}
	a := NewAnalyzer(cfg)
	_, err := a.RunSubroutineAt(origin, 1000, true, false, false)
	require.NoError(t, err)

	for _, e := range a.Diagnostics() {
		require.NotEqual(t, diag.CR401, e.ID, "write inside a registered safe range must not be flagged")
	}
}

func TestDiagnosticsAccessorReturnsRecordedEntries(t *testing.T) {
	origin := uint16(0xC000)
	cfg := Config{
		Variant: cpu.NMOS6510,
		Origin:  origin,
		Bytes:   trivialProgram(origin),
	}
	a := NewAnalyzer(cfg)
	_, err := a.RunSubroutineAt(origin, 1000, true, false, false)
	require.NoError(t, err)
	// Diagnostics must be readable even when nothing went wrong; a trivial
	// run with no zero-page or pointer activity may legitimately be empty.
	require.NotNil(t, a.Diagnostics())
}
