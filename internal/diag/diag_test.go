package diag

import (
	"strings"
	"testing"
)

func TestSrcLocUnion(t *testing.T) {
	tests := []struct {
		name string
		a, b SrcLoc
		want SrcLoc
	}{
		{"adjacent", Loc(0, 3), Loc(3, 2), Loc(0, 5)},
		{"overlapping", Loc(2, 4), Loc(4, 4), Loc(2, 6)},
		{"contained", Loc(0, 10), Loc(3, 2), Loc(0, 10)},
		{"reversed", Loc(8, 2), Loc(0, 2), Loc(0, 10)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Union(tc.b); got != tc.want {
				t.Errorf("Union(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			if got := tc.b.Union(tc.a); got != tc.want {
				t.Errorf("Union is not commutative: %v", got)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	l := Loc(7, 5)
	if got := l.Truncate(0); got != Loc(7, 0) {
		t.Errorf("Truncate(0) = %v", got)
	}
	if got := l.Truncate(9); got != l {
		t.Errorf("Truncate beyond length changed the loc: %v", got)
	}
}

func TestEmptyIgnoresWarnings(t *testing.T) {
	tr := NewTracker("int x;\n", "t.c")
	tr.Warnf(Loc(0, 3), "just a warning")
	tr.Notef(Loc(0, 3), "just a note")
	if !tr.Empty() {
		t.Error("warnings and notes should not make the tracker non-empty")
	}
	tr.Errorf(Loc(4, 1), "boom")
	if tr.Empty() {
		t.Error("error not recorded")
	}
}

func TestSilence(t *testing.T) {
	tr := NewTracker("x\n", "t.c")
	tr.Silence()
	tr.Errorf(Loc(0, 1), "dropped")
	tr.Unsilence()
	tr.Errorf(Loc(0, 1), "kept")
	if n := len(tr.Messages()); n != 1 {
		t.Fatalf("got %d messages, want 1", n)
	}
	if tr.Messages()[0].Text != "kept" {
		t.Errorf("silenced message survived: %q", tr.Messages()[0].Text)
	}
}

func TestRender(t *testing.T) {
	src := "int main() {\n  return x;\n}\n"
	tr := NewTracker(src, "main.c")
	for i, c := range src {
		if c == '\n' {
			tr.RegisterLineBreak(uint64(i))
		}
	}
	tr.Errorf(Loc(22, 1), "use of undeclared identifier 'x'")

	var sb strings.Builder
	tr.Render(&sb)
	out := sb.String()
	if !strings.Contains(out, "main.c:2:10: error: use of undeclared identifier 'x'") {
		t.Errorf("unexpected header:\n%s", out)
	}
	if !strings.Contains(out, "  return x;\n         ^") {
		t.Errorf("caret misplaced:\n%s", out)
	}

	// rendering twice must not change the output
	var sb2 strings.Builder
	tr.Render(&sb2)
	if sb2.String() != out {
		t.Error("Render is not idempotent")
	}
}

func TestLineMarkerRemapping(t *testing.T) {
	// two physical lines, the second claimed to be line 40 of other.h
	src := "int a;\nint b!\n"
	tr := NewTracker(src, "in.c")
	tr.RegisterLineBreak(6)
	tr.RegisterLineBreak(13)
	tr.RegisterFileMapping(7, 40, "other.h")
	tr.Errorf(Loc(12, 1), "expected ';'")

	var sb strings.Builder
	tr.Render(&sb)
	if !strings.Contains(sb.String(), "other.h:40:6: error") {
		t.Errorf("line marker not applied:\n%s", sb.String())
	}
}
