package seed

import "testing"

func TestCombineIsDeterministicAndOrderSensitive(t *testing.T) {
	a := CombineAll(12345, 10, 20)
	b := CombineAll(12345, 10, 20)
	c := CombineAll(12345, 20, 10)
	if a != b {
		t.Fatalf("combine not deterministic: %d != %d", a, b)
	}
	if a == c {
		t.Fatalf("combine should depend on value order")
	}
	if Combine(12345, 67890) == 12345 {
		t.Fatalf("combine should change the seed")
	}
}

func TestPositionAndCellKeys(t *testing.T) {
	if Position(7, 10.5, -3.25) != Position(7, 10.5, -3.25) {
		t.Fatalf("position key not deterministic")
	}
	if Position(7, 10.5, -3.25) == Position(7, 10.5, -3.5) {
		t.Fatalf("distinct positions should not share a key")
	}
	if Position(7, 1, 2) == Position(8, 1, 2) {
		t.Fatalf("distinct seeds should not share a key")
	}
	if Cell(1, 3, 4) == Cell(1, 4, 3) {
		t.Fatalf("cell key should distinguish axes")
	}
	if Lane(99, 1) == Lane(99, 2) {
		t.Fatalf("lanes should be independent")
	}
}

func TestUnitRange(t *testing.T) {
	for i := uint64(0); i < 10_000; i++ {
		v := UnitAt(42, i)
		if v < 0 || v >= 1 {
			t.Fatalf("UnitAt(42, %d) = %f outside [0,1)", i, v)
		}
	}
	if Unit(^uint64(0)) >= 1 {
		t.Fatalf("Unit(max) must stay below 1")
	}
}
