package scope

import "testing"

func TestShadowing(t *testing.T) {
	s := New[string, int]()
	s.Insert("x", 1)
	s.Enter()
	s.Insert("x", 2)
	if v := s.Find("x"); v == nil || *v != 2 {
		t.Fatalf("inner binding not found: %v", v)
	}
	s.Leave()
	if v := s.Find("x"); v == nil || *v != 1 {
		t.Fatalf("outer binding not restored: %v", v)
	}
}

func TestSiblingScopesAreInvisible(t *testing.T) {
	s := New[string, int]()
	s.Enter()
	s.Insert("i", 1)
	s.Leave()

	// the first loop's 'i' must not leak into a later sibling scope
	s.Enter()
	if v := s.Find("i"); v != nil {
		t.Fatalf("stale sibling entry visible: %d", *v)
	}
	if !s.CanInsert("i") {
		t.Fatal("fresh generation should allow re-inserting the name")
	}
	s.Insert("i", 2)
	if v := s.Find("i"); v == nil || *v != 2 {
		t.Fatalf("new generation binding not found: %v", v)
	}
	s.Leave()
}

func TestStaleDeeperEntryHiddenAtOuterLevel(t *testing.T) {
	s := New[string, int]()
	s.Enter()
	s.Insert("y", 7)
	s.Leave()
	if v := s.Find("y"); v != nil {
		t.Fatalf("entry from a left scope visible at outer level: %d", *v)
	}
}

func TestRedefinition(t *testing.T) {
	s := New[string, int]()
	if _, ok := s.Insert("a", 1); !ok {
		t.Fatal("first insert failed")
	}
	if s.CanInsert("a") {
		t.Error("CanInsert should fail for a bound name at the same level")
	}
	if _, ok := s.Insert("a", 2); ok {
		t.Error("second insert at same level should fail")
	}
	s.Enter()
	if !s.CanInsert("a") {
		t.Error("shadowing in a nested scope must be allowed")
	}
	s.Leave()
}

func TestIsTopLevel(t *testing.T) {
	s := New[string, int]()
	if !s.IsTopLevel() {
		t.Error("fresh scope should be top level")
	}
	s.Enter()
	if s.IsTopLevel() {
		t.Error("entered scope should not be top level")
	}
	s.Leave()
	if !s.IsTopLevel() {
		t.Error("scope should be back at top level")
	}
}

func TestLeaveRootPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on leaving the root scope")
		}
	}()
	New[string, int]().Leave()
}
