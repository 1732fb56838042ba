package relocate

// chainRef is an index into an arena's node slice, or chainNil for an empty
// chain. Using an index rather than a pointer lets nodes live in a flat
// slice and be recycled through a free list (spec.md section 9: "an arena
// of provenance nodes with free-list recycling beats heap allocation").
type chainRef int32

const chainNil chainRef = -1

// provNode is one link of a provenance chain: the program-byte offset it
// names, and the next node in the chain (chainNil terminates).
type provNode struct {
	offset uint16
	next   chainRef
}

// provArena is the pool every provenance chain in one Analyzer is allocated
// from. Chains are singly linked lists of provNode; duplicates are rejected
// at merge time rather than the arena's insertion time.
type provArena struct {
	nodes []provNode
	free  []chainRef
}

func newProvArena() *provArena {
	return &provArena{}
}

func (a *provArena) alloc(offset uint16, next chainRef) chainRef {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.nodes[idx] = provNode{offset: offset, next: next}
		return idx
	}
	a.nodes = append(a.nodes, provNode{offset: offset, next: next})
	return chainRef(len(a.nodes) - 1)
}

// single returns a new one-element chain naming offset.
func (a *provArena) single(offset uint16) chainRef {
	return a.alloc(offset, chainNil)
}

// contains reports whether offset already appears in chain.
func (a *provArena) contains(chain chainRef, offset uint16) bool {
	for n := chain; n != chainNil; n = a.nodes[n].next {
		if a.nodes[n].offset == offset {
			return true
		}
	}
	return false
}

// offsets returns every program-byte offset named by chain, in chain order.
func (a *provArena) offsets(chain chainRef) []uint16 {
	var out []uint16
	for n := chain; n != chainNil; n = a.nodes[n].next {
		out = append(out, a.nodes[n].offset)
	}
	return out
}

// release returns every node of chain to the free list. Call when a chain is
// no longer referenced by any register or RAM cell (on Analyzer.Reset).
func (a *provArena) release(chain chainRef) {
	for n := chain; n != chainNil; {
		next := a.nodes[n].next
		a.free = append(a.free, n)
		n = next
	}
}

// appendUnique prepends offset to chain unless it's already present,
// returning the (possibly unchanged) chain and whether offset was a
// duplicate.
func (a *provArena) appendUnique(chain chainRef, offset uint16) (chainRef, bool) {
	if a.contains(chain, offset) {
		return chain, true
	}
	return a.alloc(offset, chain), false
}

// mergeResult is what union returns: the merged chain plus any offsets that
// appeared in both inputs (spec.md section 4.6's "duplicate inside a
// provenance chain" case — a single byte contributing twice to a sum).
type mergeResult struct {
	chain      chainRef
	duplicates []uint16
}

// union builds the chain containing every offset in base or other exactly
// once, reporting duplicates so the caller can mark them NoReloc with a
// warning. other's offsets are copied into new nodes prepended to base;
// base's nodes are not modified and form the tail of the result.
func (a *provArena) union(base, other chainRef) mergeResult {
	res := mergeResult{chain: base}
	for n := other; n != chainNil; n = a.nodes[n].next {
		off := a.nodes[n].offset
		if a.contains(res.chain, off) {
			res.duplicates = append(res.duplicates, off)
			continue
		}
		res.chain = a.alloc(off, res.chain)
	}
	return res
}

// clone makes an independent copy of chain (new nodes, same offsets and
// order). Needed before a register's chain is handed to a memory cell: the
// register keeps tracking its own lineage after the store.
func (a *provArena) clone(chain chainRef) chainRef {
	var offs []uint16
	for n := chain; n != chainNil; n = a.nodes[n].next {
		offs = append(offs, a.nodes[n].offset)
	}
	out := chainNil
	for i := len(offs) - 1; i >= 0; i-- {
		out = a.alloc(offs[i], out)
	}
	return out
}
