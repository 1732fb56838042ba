package relocate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dschmidt6502/relocate6502/diag"
)

type constraintKind int

const (
	kindExactlyOne constraintKind = iota
	kindAlike
)

// constraint is one entry of spec.md's constraint store: either
// ExactlyOne(members) or Alike(members[:split], members[split:]).
type constraint struct {
	id      int
	kind    constraintKind
	members []uint16
	split   int // only meaningful for kindAlike
	recheck bool
}

func (c *constraint) side1() []uint16 { return c.members[:c.split] }
func (c *constraint) side2() []uint16 { return c.members[c.split:] }

// key returns a hash-dedup key: two constraints naming the same offsets
// (same kind, same grouping) are the same constraint per spec.md section 3.
func (c *constraint) key() string {
	var sb strings.Builder
	if c.kind == kindExactlyOne {
		sb.WriteString("E:")
		sb.WriteString(sortedKey(c.members))
		return sb.String()
	}
	sb.WriteString("A:")
	sb.WriteString(sortedKey(c.side1()))
	sb.WriteString("|")
	sb.WriteString(sortedKey(c.side2()))
	return sb.String()
}

func sortedKey(offsets []uint16) string {
	cp := append([]uint16(nil), offsets...)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	var sb strings.Builder
	for _, o := range cp {
		fmt.Fprintf(&sb, "%d,", o)
	}
	return sb.String()
}

// constraintStore is the hash-deduplicated collection of constraints plus
// the back-link from every referenced program byte to the constraints it
// participates in (spec.md section 3/4.7).
type constraintStore struct {
	byKey   map[string]*constraint
	all     []*constraint
	links   map[uint16][]*constraint
	nextID  int
	diagBag *diag.Bag
}

func newConstraintStore(bag *diag.Bag) *constraintStore {
	return &constraintStore{
		byKey:   make(map[string]*constraint),
		links:   make(map[uint16][]*constraint),
		diagBag: bag,
	}
}

func (s *constraintStore) addLinks(c *constraint) {
	for _, o := range c.members {
		s.links[o] = append(s.links[o], c)
	}
}

// addExactlyOne records ExactlyOne(offsets), deduplicated against any
// existing identical constraint. offsets with fewer than one member are not
// meaningful and are dropped silently (can't happen from well-formed taint
// analysis, but keeps the store defensive).
func (s *constraintStore) addExactlyOne(offsets []uint16) {
	if len(offsets) == 0 {
		return
	}
	c := &constraint{kind: kindExactlyOne, members: append([]uint16(nil), offsets...), recheck: true}
	s.add(c)
}

// addAlike records Alike(s1, s2), deduplicated the same way.
func (s *constraintStore) addAlike(s1, s2 []uint16) {
	if len(s1) == 0 && len(s2) == 0 {
		return
	}
	members := make([]uint16, 0, len(s1)+len(s2))
	members = append(members, s1...)
	members = append(members, s2...)
	c := &constraint{kind: kindAlike, members: members, split: len(s1), recheck: true}
	s.add(c)
}

func (s *constraintStore) add(c *constraint) {
	key := c.key()
	if _, ok := s.byKey[key]; ok {
		return
	}
	c.id = s.nextID
	s.nextID++
	s.byKey[key] = c
	s.all = append(s.all, c)
	s.addLinks(c)
	if s.diagBag != nil {
		s.diagBag.Record(diag.CR101, "constraint %d added: %s", c.id, key)
	}
}

// countState classifies offsets against flags into (relocCount, noRelocCount, undecided).
func countState(flags []ByteFlags, offsets []uint16) (reloc, noReloc int, undecided []uint16) {
	for _, o := range offsets {
		f := flags[o]
		switch {
		case f&FlagReloc != 0:
			reloc++
		case f&FlagNoReloc != 0:
			noReloc++
		default:
			undecided = append(undecided, o)
		}
	}
	return
}

// solver runs the propagation + backtracking search of spec.md section 4.7
// over a shared ByteFlags slice (indexed by program-byte offset) and a
// constraintStore's back-linked constraints.
type solver struct {
	store   *constraintStore
	flags   []ByteFlags
	diagBag *diag.Bag
	pool    [][]ByteFlags // recycled snapshot buffers for backtracking
}

func newSolver(store *constraintStore, flags []ByteFlags, bag *diag.Bag) *solver {
	return &solver{store: store, flags: flags, diagBag: bag}
}

// set marks offset Reloc or NoReloc, raising the recheck bit on every
// constraint that references it. Returns false if offset was already
// decided to the opposite state (a fatal inconsistency).
func (s *solver) set(offset uint16, reloc bool) bool {
	cur := s.flags[offset]
	want := FlagNoReloc
	id := diag.CR103
	if reloc {
		want = FlagReloc
		id = diag.CR102
	}
	if cur&FlagReloc != 0 && !reloc {
		return false
	}
	if cur&FlagNoReloc != 0 && reloc {
		return false
	}
	if cur&want != 0 {
		return true // already set
	}
	s.flags[offset] |= want
	if s.diagBag != nil {
		s.diagBag.Record(id, "byte offset %d set %s", offset, want)
	}
	for _, c := range s.store.links[offset] {
		c.recheck = true
	}
	return true
}

// propagate iterates every constraint with its recheck bit set to fixpoint,
// returning an error on the first detected inconsistency.
func (s *solver) propagate() error {
	for {
		progressed := false
		for _, c := range s.store.all {
			if !c.recheck {
				continue
			}
			c.recheck = false
			changed, err := s.propagateOne(c)
			if err != nil {
				return err
			}
			if changed {
				progressed = true
			}
		}
		if !progressed {
			return nil
		}
	}
}

func (s *solver) propagateOne(c *constraint) (bool, error) {
	if c.kind == kindExactlyOne {
		return s.propagateExactlyOne(c)
	}
	return s.propagateAlike(c)
}

func (s *solver) propagateExactlyOne(c *constraint) (bool, error) {
	reloc, noReloc, undecided := countState(s.flags, c.members)
	changed := false
	switch {
	case reloc > 1:
		return false, SolverInconsistency{fmt.Sprintf("ExactlyOne constraint %d has %d Reloc members, want exactly 1", c.id, reloc)}
	case reloc == 1:
		for _, o := range undecided {
			if !s.set(o, false) {
				return false, SolverInconsistency{fmt.Sprintf("byte %d forced both Reloc and NoReloc", o)}
			}
			changed = true
		}
	case reloc == 0:
		if len(undecided) == 0 {
			return false, SolverInconsistency{fmt.Sprintf("ExactlyOne constraint %d has no Reloc member and none undecided", c.id)}
		}
		if len(undecided) == 1 {
			if !s.set(undecided[0], true) {
				return false, SolverInconsistency{fmt.Sprintf("byte %d forced both Reloc and NoReloc", undecided[0])}
			}
			changed = true
		}
	}
	_ = noReloc
	return changed, nil
}

func (s *solver) propagateAlike(c *constraint) (bool, error) {
	s1, s2 := c.side1(), c.side2()
	r1, _, u1 := countState(s.flags, s1)
	r2, _, u2 := countState(s.flags, s2)
	if r1 > 1 || r2 > 1 {
		return false, SolverInconsistency{fmt.Sprintf("Alike constraint %d has a side with >1 Reloc member", c.id)}
	}
	changed := false
	closed1, closed2 := len(u1) == 0, len(u2) == 0
	switch {
	case closed1 && closed2:
		if r1 != r2 {
			return false, SolverInconsistency{fmt.Sprintf("Alike constraint %d: %d Reloc vs %d Reloc, both sides fully decided and unequal", c.id, r1, r2)}
		}
	case closed1:
		changed = s.forceAlikeTarget(r1, u2)
	case closed2:
		changed = s.forceAlikeTarget(r2, u1)
	}
	return changed, nil
}

// forceAlikeTarget applies the Alike propagation rule to one still-open
// side given the other side's settled Reloc count (target).
func (s *solver) forceAlikeTarget(target int, undecided []uint16) bool {
	changed := false
	switch target {
	case 0:
		for _, o := range undecided {
			if s.set(o, false) {
				changed = true
			}
		}
	case 1:
		if len(undecided) == 1 {
			if s.set(undecided[0], true) {
				changed = true
			}
		}
	}
	return changed
}

// searchFrame is one level of the explicit backtracking stack: the offset
// being tried, and a saved copy of flags to restore on failure.
type searchFrame struct {
	offset uint16
	saved  []ByteFlags
	triedNoReloc bool
}

func (s *solver) snapshot() []ByteFlags {
	var buf []ByteFlags
	if n := len(s.pool); n > 0 {
		buf = s.pool[n-1]
		s.pool = s.pool[:n-1]
	} else {
		buf = make([]ByteFlags, len(s.flags))
	}
	copy(buf, s.flags)
	return buf
}

func (s *solver) release(buf []ByteFlags) {
	s.pool = append(s.pool, buf)
}

func (s *solver) restore(buf []ByteFlags) {
	copy(s.flags, buf)
}

// undecidedInConstraint returns one undecided offset that still participates
// in some constraint, or ok=false if none remain (the solver is done).
func (s *solver) undecidedInConstraint() (uint16, bool) {
	for offset, cs := range s.store.links {
		if len(cs) == 0 {
			continue
		}
		if !s.flags[offset].Decided() {
			return offset, true
		}
	}
	return 0, false
}

// solve runs propagation to fixpoint, then an explicit-stack backtracking
// search over any remaining undecided bytes (spec.md section 4.7). The
// stack is explicit rather than recursive because programs of 8-32 KiB
// routinely produce recursion depths that would overflow a native stack.
func (s *solver) solve() error {
	if err := s.propagate(); err != nil {
		return err
	}
	var stack []*searchFrame
	for {
		offset, ok := s.undecidedInConstraint()
		if !ok {
			for _, f := range stack {
				s.release(f.saved)
			}
			return nil
		}
		frame := &searchFrame{offset: offset, saved: s.snapshot()}
		stack = append(stack, frame)
		if !s.tryAssign(offset, false) {
			if !s.backtrack(&stack) {
				return NoSolution{}
			}
			continue
		}
		if err := s.propagate(); err != nil {
			if !s.backtrack(&stack) {
				return s.classifyFailure(err)
			}
			continue
		}
	}
}

// tryAssign assigns offset's state directly (bypassing the usual
// already-decided guard since this is the search's own hypothesis).
func (s *solver) tryAssign(offset uint16, reloc bool) bool {
	want := FlagNoReloc
	id := diag.CR103
	if reloc {
		want = FlagReloc
		id = diag.CR102
	}
	s.flags[offset] |= want
	if s.diagBag != nil {
		s.diagBag.Record(id, "search assigns offset %d %s", offset, want)
	}
	for _, c := range s.store.links[offset] {
		c.recheck = true
	}
	return true
}

// backtrack restores the most recent frame's snapshot and flips its
// hypothesis from NoReloc to Reloc; if that frame already tried both, it is
// popped and its parent is retried instead. Returns false when the stack is
// exhausted.
func (s *solver) backtrack(stack *[]*searchFrame) bool {
	for {
		n := len(*stack)
		if n == 0 {
			return false
		}
		top := (*stack)[n-1]
		s.restore(top.saved)
		if !top.triedNoReloc {
			top.triedNoReloc = true
			s.release(top.saved)
			top.saved = s.snapshot()
			if s.diagBag != nil {
				s.diagBag.Record(diag.CR100, "solver backtracked on offset %d, trying Reloc", top.offset)
			}
			s.tryAssign(top.offset, true)
			if err := s.propagate(); err != nil {
				continue // both hypotheses failed; pop and retry parent
			}
			return true
		}
		s.release(top.saved)
		*stack = (*stack)[:n-1]
	}
}

func (s *solver) classifyFailure(err error) error {
	if _, ok := err.(SolverInconsistency); ok {
		return NoSolution{}
	}
	return err
}
