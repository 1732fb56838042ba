package relocate

import "sort"

// zpBitmap is the 256-bit "zero page addresses this program byte
// contributes to" bitmap from spec.md's shadow state.
type zpBitmap [4]uint64

func (b *zpBitmap) set(addr uint8) {
	b[addr/64] |= 1 << uint(addr%64)
}

func (b zpBitmap) bits() []uint8 {
	var out []uint8
	for w := 0; w < 4; w++ {
		word := b[w]
		for word != 0 {
			bit := word & (-word) // lowest set bit
			idx := 0
			for x := bit; x > 1; x >>= 1 {
				idx++
			}
			out = append(out, uint8(w*64+idx))
			word &^= bit
		}
	}
	return out
}

// zpUnionFind computes the equivalence classes spec.md section 4.8
// describes: two zero-page addresses are linked if a single program byte
// contributes to both.
type zpUnionFind struct {
	parent [256]int
	rank   [256]int
}

func newZPUnionFind() *zpUnionFind {
	u := &zpUnionFind{}
	for i := range u.parent {
		u.parent[i] = i
	}
	return u
}

func (u *zpUnionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *zpUnionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		ra, rb = rb, ra
	case u.rank[ra] == u.rank[rb]:
		u.rank[ra]++
	}
	u.parent[rb] = ra
}

// zpClass is one equivalence class of linked zero-page addresses, members
// sorted ascending.
type zpClass struct {
	members []uint8
}

// min returns the class's lowest member, its representative per spec.md.
func (c zpClass) min() uint8 { return c.members[0] }

// buildZPClasses runs the union-find over every program byte's zero-page
// contribution bitmap and returns the resulting classes, sorted by their
// minimum representative ascending.
func buildZPClasses(bitmaps map[uint16]zpBitmap, used map[uint8]bool) []zpClass {
	uf := newZPUnionFind()
	for _, bm := range bitmaps {
		addrs := bm.bits()
		for i := 1; i < len(addrs); i++ {
			uf.union(int(addrs[0]), int(addrs[i]))
		}
	}
	byRoot := make(map[int][]uint8)
	for addr := range used {
		root := uf.find(int(addr))
		byRoot[root] = append(byRoot[root], addr)
	}
	classes := make([]zpClass, 0, len(byRoot))
	for _, members := range byRoot {
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		classes = append(classes, zpClass{members: members})
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].min() < classes[j].min() })
	return classes
}

// allocateZP places each class at the lowest starting offset within
// [destStart, destEnd] (inclusive) such that every member lands on a still
// free destination byte, preserving each member's offset-from-minimum
// within its class (spec.md section 4.8: "a contiguous run of offsets
// starting at its minimum representative"). Returns the old->new byte
// remap, or ZeroPageExhausted if some class cannot fit.
func allocateZP(classes []zpClass, destStart, destEnd uint16) (map[uint8]uint8, error) {
	remap := make(map[uint8]uint8)
	taken := make(map[uint8]bool)
	for _, c := range classes {
		base := c.min()
		placed := false
		for start := int(destStart); start <= int(destEnd); start++ {
			span := int(c.members[len(c.members)-1]-base) + 1
			if start+span-1 > int(destEnd) {
				break
			}
			ok := true
			for _, m := range c.members {
				dst := start + int(m-base)
				if dst > 0xFF || taken[uint8(dst)] {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			for _, m := range c.members {
				dst := uint8(start + int(m-base))
				remap[m] = dst
				taken[dst] = true
			}
			placed = true
			break
		}
		if !placed {
			needed := 0
			for _, c2 := range classes {
				needed += len(c2.members)
			}
			return nil, ZeroPageExhausted{Needed: needed, Available: int(destEnd-destStart) + 1}
		}
	}
	return remap, nil
}

// identityZP returns the identity remap over every used address, for the
// disabled-ZP-relocation mode (spec.md section 4.8).
func identityZP(used map[uint8]bool) map[uint8]uint8 {
	remap := make(map[uint8]uint8, len(used))
	for a := range used {
		remap[a] = a
	}
	return remap
}
