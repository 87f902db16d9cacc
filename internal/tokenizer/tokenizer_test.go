package tokenizer

import (
	"strings"
	"testing"

	"github.com/funvibe/qcp/internal/diag"
	"github.com/funvibe/qcp/internal/token"
)

func lexAll(t *testing.T, src string) ([]token.Token, *diag.Tracker) {
	t.Helper()
	tr := diag.NewTracker(src, "test.c")
	tz := New(src, tr)
	var toks []token.Token
	for {
		tok := tz.Next()
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks, tr
		}
		if len(toks) > 10000 {
			t.Fatal("tokenizer did not terminate")
		}
	}
}

func kinds(toks []token.Token) []token.Kind {
	ks := make([]token.Kind, len(toks))
	for i, t := range toks {
		ks[i] = t.Kind
	}
	return ks
}

func expectKinds(t *testing.T, src string, want ...token.Kind) {
	t.Helper()
	toks, tr := lexAll(t, src)
	if !tr.Empty() {
		t.Fatalf("unexpected diagnostics for %q", src)
	}
	got := kinds(toks[:len(toks)-1]) // strip EOF
	if len(got) != len(want) {
		t.Fatalf("%q: got %v, want %v", src, got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("%q token %d: got %v, want %v", src, i, got[i], want[i])
		}
	}
}

func TestPunctuators(t *testing.T) {
	expectKinds(t, "a >>= b <<= c", token.Ident, token.ShrAssign, token.Ident, token.ShlAssign, token.Ident)
	expectKinds(t, "p->x . y", token.Ident, token.Arrow, token.Ident, token.Period, token.Ident)
	expectKinds(t, "x++ + ++y", token.Ident, token.Inc, token.Plus, token.Inc, token.Ident)
	expectKinds(t, "f(a, ...)", token.Ident, token.LParen, token.Ident, token.Comma, token.Ellipsis, token.RParen)
	expectKinds(t, "a<b>c", token.Ident, token.Lt, token.Ident, token.Gt, token.Ident)
	expectKinds(t, "a&&b||c", token.Ident, token.LAnd, token.Ident, token.LOr, token.Ident)
}

func TestKeywordsAndIdents(t *testing.T) {
	toks, _ := lexAll(t, "int foo; while _Bool bool")
	want := []token.Kind{token.Int, token.Ident, token.Semi, token.While, token.Bool, token.Bool, token.EOF}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d: got %v, want %v", i, toks[i].Kind, k)
		}
	}
	if toks[1].Ident.String() != "foo" {
		t.Errorf("identifier payload: got %q", toks[1].Ident.String())
	}
}

func TestIntegerConstants(t *testing.T) {
	tests := []struct {
		src  string
		kind token.Kind
		val  uint64
	}{
		{"0", token.IConst, 0},
		{"42", token.IConst, 42},
		{"42u", token.UConst, 42},
		{"42l", token.LConst, 42},
		{"42ul", token.ULConst, 42},
		{"42ll", token.LLConst, 42},
		{"42ull", token.ULLConst, 42},
		{"42LLU", token.ULLConst, 42},
		{"0x2a", token.IConst, 42},
		{"0X2A", token.IConst, 42},
		{"052", token.IConst, 42},
		{"0b101010", token.IConst, 42},
		{"1'000'000", token.IConst, 1000000},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			toks, tr := lexAll(t, tc.src)
			if !tr.Empty() {
				t.Fatalf("diagnostics for %q", tc.src)
			}
			if toks[0].Kind != tc.kind || toks[0].IVal != tc.val {
				t.Errorf("got (%v, %d), want (%v, %d)", toks[0].Kind, toks[0].IVal, tc.kind, tc.val)
			}
		})
	}
}

func TestFloatingConstants(t *testing.T) {
	tests := []struct {
		src  string
		kind token.Kind
		val  float64
	}{
		{"1.5", token.DConst, 1.5},
		{"1.5f", token.FConst, 1.5},
		{"1.5l", token.LDConst, 1.5},
		{".5", token.DConst, 0.5},
		{"2e3", token.DConst, 2000},
		{"2.5e-1", token.DConst, 0.25},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			toks, tr := lexAll(t, tc.src)
			if !tr.Empty() {
				t.Fatalf("diagnostics for %q", tc.src)
			}
			if toks[0].Kind != tc.kind || toks[0].FVal != tc.val {
				t.Errorf("got (%v, %g), want (%v, %g)", toks[0].Kind, toks[0].FVal, tc.kind, tc.val)
			}
		})
	}
}

func TestStringAndCharLiterals(t *testing.T) {
	toks, tr := lexAll(t, `"hi\n" 'a' '\0' "\t\\"`)
	if !tr.Empty() {
		t.Fatal("unexpected diagnostics")
	}
	if toks[0].Kind != token.StrLit || toks[0].SVal != "hi\n" {
		t.Errorf("string literal: got %q", toks[0].SVal)
	}
	if toks[1].Kind != token.CharLit || toks[1].SVal != "a" {
		t.Errorf("char literal: got %q", toks[1].SVal)
	}
	if toks[2].SVal != "\x00" {
		t.Errorf("octal escape: got %q", toks[2].SVal)
	}
	if toks[3].SVal != "\t\\" {
		t.Errorf("escapes: got %q", toks[3].SVal)
	}
}

func TestUnterminatedString(t *testing.T) {
	_, tr := lexAll(t, "\"abc\nint x;")
	if tr.Empty() {
		t.Error("unterminated string should diagnose")
	}
}

func TestLineMarker(t *testing.T) {
	src := "# 3 \"foo.h\"\nint x;\n"
	toks, tr := lexAll(t, src)
	if !tr.Empty() {
		t.Fatal("unexpected diagnostics")
	}
	want := []token.Kind{token.PPStart, token.IConst, token.StrLit, token.PPEnd, token.Int, token.Ident, token.Semi}
	got := kinds(toks[:len(toks)-1])
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
	if toks[1].IVal != 3 || toks[2].SVal != "foo.h" {
		t.Errorf("line marker payload: %d %q", toks[1].IVal, toks[2].SVal)
	}
}

func TestComments(t *testing.T) {
	expectKinds(t, "a /* b */ c // d\n e", token.Ident, token.Ident, token.Ident)
}

func TestLineBreaksRegistered(t *testing.T) {
	src := "a\nb\nc"
	tr := diag.NewTracker(src, "t.c")
	tz := New(src, tr)
	for tz.Next().Kind != token.EOF {
	}
	tr.Errorf(diag.Loc(4, 1), "probe")
	var sb strings.Builder
	tr.Render(&sb)
	if !strings.Contains(sb.String(), "t.c:3:1") {
		t.Errorf("newlines not registered:\n%s", sb.String())
	}
}
