package relocate

import "testing"

func TestZPBitmapSetAndBits(t *testing.T) {
	var b zpBitmap
	b.set(0x00)
	b.set(0x3F)
	b.set(0x40)
	b.set(0xFF)
	got := b.bits()
	want := []uint8{0x00, 0x3F, 0x40, 0xFF}
	if len(got) != len(want) {
		t.Fatalf("bits() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bits()[%d] = 0x%.2X, want 0x%.2X", i, got[i], want[i])
		}
	}
}

func TestZPUnionFind(t *testing.T) {
	uf := newZPUnionFind()
	uf.union(0x80, 0x81)
	uf.union(0x81, 0x82)
	if uf.find(0x80) != uf.find(0x82) {
		t.Error("0x80 and 0x82 should be in the same class after chained union")
	}
	if uf.find(0x80) == uf.find(0x90) {
		t.Error("unrelated addresses ended up in the same class")
	}
}

func TestBuildZPClassesLinksSharedContributors(t *testing.T) {
	bitmaps := map[uint16]zpBitmap{}
	var bm zpBitmap
	bm.set(0x80)
	bm.set(0x81)
	bitmaps[0xC003] = bm
	used := map[uint8]bool{0x80: true, 0x81: true, 0x90: true}

	classes := buildZPClasses(bitmaps, used)
	if len(classes) != 2 {
		t.Fatalf("len(classes) = %d, want 2 (one linked pair, one singleton)", len(classes))
	}
	if classes[0].members[0] != 0x80 || len(classes[0].members) != 2 {
		t.Errorf("first class = %v, want [0x80 0x81]", classes[0].members)
	}
	if classes[1].members[0] != 0x90 {
		t.Errorf("second class = %v, want [0x90]", classes[1].members)
	}
}

func TestAllocateZPPreservesClassSpacing(t *testing.T) {
	classes := []zpClass{{members: []uint8{0x80, 0x81}}}
	remap, err := allocateZP(classes, 0x90, 0x9F)
	if err != nil {
		t.Fatalf("allocateZP: %v", err)
	}
	if got, want := remap[0x80], uint8(0x90); got != want {
		t.Errorf("remap[0x80] = 0x%.2X, want 0x%.2X", got, want)
	}
	if got, want := remap[0x81], uint8(0x91); got != want {
		t.Errorf("remap[0x81] = 0x%.2X, want 0x%.2X", got, want)
	}
}

func TestAllocateZPExhausted(t *testing.T) {
	classes := []zpClass{{members: []uint8{0x80, 0x81, 0x82}}}
	_, err := allocateZP(classes, 0x90, 0x91) // only 2 bytes for a 3-byte class
	if err == nil {
		t.Fatal("expected ZeroPageExhausted, got nil")
	}
	if _, ok := err.(ZeroPageExhausted); !ok {
		t.Fatalf("err = %T, want ZeroPageExhausted", err)
	}
}

func TestIdentityZP(t *testing.T) {
	used := map[uint8]bool{0x10: true, 0x20: true}
	remap := identityZP(used)
	if remap[0x10] != 0x10 || remap[0x20] != 0x20 {
		t.Errorf("identityZP(%v) = %v, want identity", used, remap)
	}
}
