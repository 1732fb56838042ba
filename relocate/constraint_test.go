package relocate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dschmidt6502/relocate6502/diag"
)

func TestConstraintStoreDedupes(t *testing.T) {
	store := newConstraintStore(nil)
	store.addExactlyOne([]uint16{3, 7})
	store.addExactlyOne([]uint16{7, 3}) // same set, different order: same key
	require.Len(t, store.all, 1, "identical ExactlyOne constraints must dedupe by member set")

	store.addAlike([]uint16{1}, []uint16{2})
	require.Len(t, store.all, 2)
}

func TestPropagateExactlyOneForcesTheOtherSide(t *testing.T) {
	flags := make([]ByteFlags, 4)
	flags[0] = FlagReloc // forced externally, e.g. by a taint rule
	store := newConstraintStore(nil)
	store.addExactlyOne([]uint16{0, 1})

	s := newSolver(store, flags, nil)
	require.NoError(t, s.propagate())
	require.NotZero(t, flags[1]&FlagNoReloc, "the undecided member of a satisfied ExactlyOne must be forced NoReloc")
}

func TestPropagateExactlyOneInconsistency(t *testing.T) {
	flags := make([]ByteFlags, 2)
	flags[0] = FlagReloc
	flags[1] = FlagReloc
	store := newConstraintStore(nil)
	store.addExactlyOne([]uint16{0, 1})

	s := newSolver(store, flags, nil)
	err := s.propagate()
	require.Error(t, err)
	_, ok := err.(SolverInconsistency)
	require.True(t, ok, "want SolverInconsistency, got %T", err)
}

func TestPropagateAlikeMirrorsDecidedSide(t *testing.T) {
	flags := make([]ByteFlags, 4)
	flags[0] = FlagNoReloc
	store := newConstraintStore(nil)
	store.addAlike([]uint16{0}, []uint16{1})

	s := newSolver(store, flags, nil)
	require.NoError(t, s.propagate())
	require.NotZero(t, flags[1]&FlagNoReloc, "Alike must mirror a fully-decided side onto the other")
}

func TestSolveWithNoExternalHintsPicksAConsistentAssignment(t *testing.T) {
	flags := make([]ByteFlags, 2)
	store := newConstraintStore(nil)
	store.addExactlyOne([]uint16{0, 1})

	s := newSolver(store, flags, nil)
	require.NoError(t, s.solve())
	relocCount := 0
	for _, f := range flags {
		if f&FlagReloc != 0 {
			relocCount++
		}
	}
	require.Equal(t, 1, relocCount, "ExactlyOne over two fully-undecided bytes must settle on exactly one Reloc")
}

func TestSolveRecordsDiagnostics(t *testing.T) {
	flags := make([]ByteFlags, 2)
	bag := diag.NewBag(diag.Trace)
	store := newConstraintStore(bag)
	store.addExactlyOne([]uint16{0, 1})

	s := newSolver(store, flags, bag)
	require.NoError(t, s.solve())
	require.NotEmpty(t, bag.Entries(), "solving should leave a trail of CR10x diagnostics")
}
