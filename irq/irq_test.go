package irq

import "testing"

func TestLevelRaised(t *testing.T) {
	var l Level
	if l.Raised() {
		t.Error("zero-value Level.Raised() = true, want false")
	}
	l = true
	if !l.Raised() {
		t.Error("Level(true).Raised() = false, want true")
	}
}

func TestLevelLineSet(t *testing.T) {
	var line LevelLine
	if line.Raised() {
		t.Error("zero-value LevelLine.Raised() = true, want false")
	}
	line.Set(true)
	if !line.Raised() {
		t.Error("after Set(true), Raised() = false, want true")
	}
	line.Set(false)
	if line.Raised() {
		t.Error("after Set(false), Raised() = true, want false")
	}
}

func TestSenderInterfaceSatisfied(t *testing.T) {
	var _ Sender = Level(false)
	var _ Sender = &LevelLine{}
}
