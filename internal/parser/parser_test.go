package parser_test

import (
	"strings"
	"testing"

	"github.com/funvibe/qcp/internal/diag"
	"github.com/funvibe/qcp/internal/ir"
	"github.com/funvibe/qcp/internal/parser"
	"github.com/funvibe/qcp/internal/tokenizer"
	"github.com/funvibe/qcp/internal/types"
)

func compile(t *testing.T, src string) (*ir.Emitter, *diag.Tracker) {
	t.Helper()
	tr := diag.NewTracker(src, "test.c")
	backend := ir.New(types.DefaultTarget)
	stream := tokenizer.NewTokenStream(tokenizer.New(src, tr))
	p := parser.New(stream, tr, backend)
	p.Parse()
	return backend, tr
}

func compileOK(t *testing.T, src string) *ir.Emitter {
	t.Helper()
	backend, tr := compile(t, src)
	if !tr.Empty() {
		var sb strings.Builder
		tr.Render(&sb)
		t.Fatalf("unexpected diagnostics:\n%s", sb.String())
	}
	return backend
}

func errorMessages(tr *diag.Tracker) []string {
	var msgs []string
	for _, m := range tr.Messages() {
		if m.Severity == diag.SevError {
			msgs = append(msgs, m.Text)
		}
	}
	return msgs
}

func hasError(tr *diag.Tracker, substr string) bool {
	for _, m := range errorMessages(tr) {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func hasNote(tr *diag.Tracker, substr string) bool {
	for _, m := range tr.Messages() {
		if m.Severity == diag.SevNote && strings.Contains(m.Text, substr) {
			return true
		}
	}
	return false
}

func countInstrs(f *ir.Func, op ir.Op) int {
	n := 0
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Op == op {
				n++
			}
		}
	}
	return n
}

func countTerminators(f *ir.Func, op ir.Op) int {
	n := 0
	for _, b := range f.Blocks {
		if b.Term != nil && b.Term.Op == op {
			n++
		}
	}
	return n
}

// every block of a finished function has exactly one terminator
func assertWellFormedCFG(t *testing.T, f *ir.Func) {
	t.Helper()
	for _, b := range f.Blocks {
		if b.Term == nil {
			t.Errorf("function %s: block %d has no terminator", f.Name, b.ID)
		}
		for _, in := range b.Instrs {
			switch in.Op {
			case ir.OpJump, ir.OpBranch, ir.OpRet, ir.OpSwitch:
				t.Errorf("function %s: terminator %s in instruction list of block %d", f.Name, in.Op, b.ID)
			}
		}
	}
}

func TestAddFunction(t *testing.T) {
	// S1
	backend := compileOK(t, "int f(int a, int b){ return a+b; }")
	f := backend.Mod.FuncByName("f")
	if f == nil {
		t.Fatal("function f not emitted")
	}
	assertWellFormedCFG(t, f)

	if got := countInstrs(f, ir.OpAlloca); got != 2 {
		t.Errorf("allocas: got %d, want 2", got)
	}
	if got := countInstrs(f, ir.OpLoad); got != 2 {
		t.Errorf("loads: got %d, want 2", got)
	}
	if got := countInstrs(f, ir.OpBin); got != 1 {
		t.Errorf("binary ops: got %d, want 1", got)
	}
	if got := countTerminators(f, ir.OpRet); got != 1 {
		t.Errorf("rets: got %d, want 1", got)
	}
	if len(f.Ty.Params()) != 2 || f.Ty.Elem().Kind() != types.Int {
		t.Errorf("function type: got %v", f.Ty)
	}
}

func TestForLoopCFG(t *testing.T) {
	// S2
	backend := compileOK(t, "int g(int n){ int s=0; for(int i=0;i<n;i++) s+=i; return s; }")
	g := backend.Mod.FuncByName("g")
	if g == nil {
		t.Fatal("function g not emitted")
	}
	assertWellFormedCFG(t, g)

	// entry, header, update, body, continuation
	if len(g.Blocks) < 5 {
		t.Errorf("blocks: got %d, want at least 5", len(g.Blocks))
	}
	if got := countTerminators(g, ir.OpRet); got != 1 {
		t.Errorf("rets: got %d, want exactly 1", got)
	}
	if got := countTerminators(g, ir.OpBranch); got != 1 {
		t.Errorf("conditional branches: got %d, want 1", got)
	}
}

func TestDuplicateCaseValue(t *testing.T) {
	// S3
	backend, tr := compile(t, "int h(int x){ switch(x){ case 1: return 1; case 1: return 2; default: return 0; } }")
	if !hasError(tr, "duplicate case value") {
		t.Errorf("missing duplicate-case diagnostic: %v", errorMessages(tr))
	}
	if !hasNote(tr, "previous case") {
		t.Error("missing note at the first case")
	}
	h := backend.Mod.FuncByName("h")
	if h == nil {
		t.Fatal("function h not emitted")
	}
	if got := countTerminators(h, ir.OpSwitch); got != 1 {
		t.Errorf("switch terminators: got %d, want 1", got)
	}
}

func TestTooManyArguments(t *testing.T) {
	// S4
	backend, tr := compile(t, "void v(void); int main(){ v(1); return 0; }")
	if !hasError(tr, "too many arguments") {
		t.Errorf("missing too-many-arguments diagnostic: %v", errorMessages(tr))
	}
	m := backend.Mod.FuncByName("main")
	if m == nil {
		t.Fatal("function main not emitted")
	}
	assertWellFormedCFG(t, m)
}

func TestStructCompletion(t *testing.T) {
	// S5
	backend := compileOK(t, "struct S; struct S *p; struct S { int x; }; int k(struct S *q){ return q->x; }")
	k := backend.Mod.FuncByName("k")
	if k == nil {
		t.Fatal("function k not emitted")
	}
	assertWellFormedCFG(t, k)

	var gep *ir.Instr
	for _, b := range k.Blocks {
		for _, in := range b.Instrs {
			if in.Op == ir.OpGEP && len(in.Indices) > 0 {
				gep = in
			}
		}
	}
	if gep == nil {
		t.Fatal("member access did not emit a static GEP")
	}
	if len(gep.Indices) != 2 || gep.Indices[0] != 0 || gep.Indices[1] != 0 {
		t.Errorf("GEP indices: got %v, want [0 0]", gep.Indices)
	}
}

func TestInitializerListGuard(t *testing.T) {
	// S6 (initializer lists are deliberately unimplemented)
	_, tr := compile(t, "int a[3] = {1,2,3}; int r(){ return a[2]; }")
	msgs := errorMessages(tr)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "initializer lists are not supported") {
		t.Errorf("want exactly one initializer-list diagnostic, got %v", msgs)
	}
}

func TestTentativeDefinitions(t *testing.T) {
	backend := compileOK(t, "int x; int x = 1;")
	g := backend.Mod.GlobalByName("x")
	if g == nil {
		t.Fatal("global x not emitted")
	}
	if g.Init == nil || g.Init.I != 1 {
		t.Errorf("later defining declaration must supersede the tentative one: %+v", g)
	}

	_, tr := compile(t, "int y = 1; int y = 2;")
	if !hasError(tr, "redefinition of 'y'") {
		t.Errorf("double definition not diagnosed: %v", errorMessages(tr))
	}
}

func TestTentativeZeroInit(t *testing.T) {
	backend := compileOK(t, "int x; double d; int arr[2];")
	for _, name := range []string{"x", "d", "arr"} {
		g := backend.Mod.GlobalByName(name)
		if g == nil {
			t.Fatalf("global %s not emitted", name)
		}
		if g.Init == nil {
			t.Errorf("tentative %s not zero-initialized at end of translation unit", name)
		}
	}
}

func TestArraySizeDiagnostics(t *testing.T) {
	_, tr := compile(t, "int x[0];")
	if !hasError(tr, "zero size") {
		t.Errorf("zero-size array not diagnosed: %v", errorMessages(tr))
	}
	_, tr = compile(t, "int x[-1];")
	if !hasError(tr, "negative size") {
		t.Errorf("negative-size array not diagnosed: %v", errorMessages(tr))
	}
}

func TestJumpStatementDiagnostics(t *testing.T) {
	tests := []struct {
		name, src, want string
	}{
		{"break outside", "void f(){ break; }", "'break' statement not in loop or switch"},
		{"continue outside", "void f(){ continue; }", "'continue' statement not in loop"},
		{"case outside", "void f(){ case 1: ; }", "'case' statement not in switch"},
		{"default outside", "void f(){ default: ; }", "'default' statement not in switch"},
		{"undeclared label", "void f(){ goto L; }", "use of undeclared label 'L'"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, tr := compile(t, tc.src)
			if !hasError(tr, tc.want) {
				t.Errorf("missing %q in %v", tc.want, errorMessages(tr))
			}
		})
	}
}

func TestGotoForwardAndBackward(t *testing.T) {
	backend := compileOK(t, `
void f(int n){
	int i = 0;
L:
	i++;
	if (i < n) goto L;
	goto end;
	i = 99;
end:
	return;
}`)
	f := backend.Mod.FuncByName("f")
	if f == nil {
		t.Fatal("function f not emitted")
	}
}

func TestDuplicateDefault(t *testing.T) {
	_, tr := compile(t, "int f(int x){ switch(x){ default: return 1; default: return 2; } }")
	if !hasError(tr, "multiple default labels") {
		t.Errorf("duplicate default not diagnosed: %v", errorMessages(tr))
	}
	if !hasNote(tr, "previous default") {
		t.Error("missing note at first default")
	}
}

func TestDuplicateEnumerator(t *testing.T) {
	_, tr := compile(t, "enum E { A, A };")
	if !hasError(tr, "redefinition of enumerator 'A'") {
		t.Errorf("duplicate enumerator not diagnosed: %v", errorMessages(tr))
	}
	if !hasNote(tr, "previous definition") {
		t.Error("missing note at first enumerator")
	}
}

func TestEnumConstantFolding(t *testing.T) {
	backend := compileOK(t, "enum E { A, B = 5, C }; int f(void){ return C; }")
	f := backend.Mod.FuncByName("f")
	if f == nil {
		t.Fatal("function f not emitted")
	}
	var ret *ir.Instr
	for _, b := range f.Blocks {
		if b.Term != nil && b.Term.Op == ir.OpRet {
			ret = b.Term
		}
	}
	if ret == nil || len(ret.Args) != 1 {
		t.Fatal("no valued ret emitted")
	}
	c, ok := ret.Args[0].(*ir.Const)
	if !ok || c.I != 6 {
		t.Errorf("enumerator C should fold to 6, got %v", ret.Args[0])
	}
}

func TestMissingReturn(t *testing.T) {
	_, tr := compile(t, "int f(void){ }")
	if !hasError(tr, "missing return statement") {
		t.Errorf("missing-return not diagnosed: %v", errorMessages(tr))
	}

	backend := compileOK(t, "void g(void){ }")
	g := backend.Mod.FuncByName("g")
	if countTerminators(g, ir.OpRet) != 1 {
		t.Error("void function should get an implicit return")
	}
}

func TestMultipleReturnsShareOneRet(t *testing.T) {
	backend := compileOK(t, "int f(int x){ if (x) return 1; return 2; }")
	f := backend.Mod.FuncByName("f")
	assertWellFormedCFG(t, f)
	if got := countTerminators(f, ir.OpRet); got != 1 {
		t.Errorf("rets: got %d, want exactly one materialized ret", got)
	}
	// the return slot alloca plus no other stray allocas
	if got := countInstrs(f, ir.OpAlloca); got != 2 {
		t.Errorf("allocas: got %d, want 2 (parameter + return slot)", got)
	}
}

func TestShortCircuitCreatesBlocks(t *testing.T) {
	backend := compileOK(t, "int f(int a, int b){ return a && b; }")
	f := backend.Mod.FuncByName("f")
	assertWellFormedCFG(t, f)
	if len(f.Blocks) < 3 {
		t.Errorf("short-circuit && should create blocks, got %d", len(f.Blocks))
	}
	if countInstrs(f, ir.OpPhi) != 1 {
		t.Error("consumed && result should merge through a phi")
	}
}

func TestTernary(t *testing.T) {
	backend := compileOK(t, "int f(int a){ return a ? 2 : 3; }")
	f := backend.Mod.FuncByName("f")
	assertWellFormedCFG(t, f)
	if countInstrs(f, ir.OpPhi) != 1 {
		t.Error("conditional operator should merge through a phi")
	}
}

func TestConstAssignment(t *testing.T) {
	_, tr := compile(t, "void f(void){ const int x = 1; x = 2; }")
	if !hasError(tr, "cannot assign to variable 'x' with const-qualified type") {
		t.Errorf("const assignment not diagnosed: %v", errorMessages(tr))
	}
	if !hasNote(tr, "declared const here") {
		t.Error("missing note at the const declaration")
	}
}

func TestUndeclaredIdentifier(t *testing.T) {
	_, tr := compile(t, "int f(void){ return z; }")
	if !hasError(tr, "use of undeclared identifier 'z'") {
		t.Errorf("undeclared identifier not diagnosed: %v", errorMessages(tr))
	}
}

func TestExpressionTypeErrors(t *testing.T) {
	tests := []struct {
		name, src, want string
	}{
		{"subscript non-pointer", "int f(int x){ return x[0]; }", "subscripted value is not a pointer"},
		{"deref non-pointer", "int f(int x){ return *x; }", "indirection requires pointer operand"},
		{"bitand floats", "int f(double d){ return d & 1.5; }", "invalid operands to binary expression"},
		{"call non-function", "int f(int x){ return x(); }", "called object is not a function"},
		{"member of scalar", "int f(int x){ return x.y; }", "not a structure or union"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, tr := compile(t, tc.src)
			if !hasError(tr, tc.want) {
				t.Errorf("missing %q in %v", tc.want, errorMessages(tr))
			}
		})
	}
}

func TestRedefinitionInBlockScope(t *testing.T) {
	_, tr := compile(t, "void f(void){ int a; int a; }")
	if !hasError(tr, "redefinition of 'a'") {
		t.Errorf("local redefinition not diagnosed: %v", errorMessages(tr))
	}
	if !hasNote(tr, "previous definition") {
		t.Error("missing note at first definition")
	}
}

func TestShadowingIsAllowed(t *testing.T) {
	compileOK(t, "void f(void){ int a = 1; { int a = 2; a = 3; } a = 4; }")
}

func TestSiblingScopesReuseNames(t *testing.T) {
	compileOK(t, `
void f(int n){
	for (int i = 0; i < n; i++) { }
	for (int i = 0; i < n; i++) { }
}`)
}

func TestFuncNameLiteral(t *testing.T) {
	backend := compileOK(t, "void f(void){ const char *n = __func__; }")
	if backend.Mod.GlobalByName("__func__.f") == nil {
		t.Error("__func__ global not materialized")
	}
}

func TestSizeof(t *testing.T) {
	backend := compileOK(t, "int f(void){ return sizeof(int); }")
	f := backend.Mod.FuncByName("f")
	var ret *ir.Instr
	for _, b := range f.Blocks {
		if b.Term != nil && b.Term.Op == ir.OpRet {
			ret = b.Term
		}
	}
	if ret == nil {
		t.Fatal("no ret")
	}
	// sizeof folds to a constant; a cast of the constant is also acceptable
	switch v := ret.Args[0].(type) {
	case *ir.Const:
		if v.I != 4 {
			t.Errorf("sizeof(int) = %d, want 4", v.I)
		}
	case *ir.Instr:
		if v.Op != ir.OpCast {
			t.Errorf("expected folded constant or cast, got %s", v.Op)
		}
	}
}

func TestStringLiteral(t *testing.T) {
	backend := compileOK(t, `const char *s = "hi";`)
	g := backend.Mod.GlobalByName("s")
	if g == nil {
		t.Fatal("global s not emitted")
	}
}

func TestDoWhile(t *testing.T) {
	backend := compileOK(t, "int f(int n){ int i = 0; do { i++; } while (i < n); return i; }")
	f := backend.Mod.FuncByName("f")
	assertWellFormedCFG(t, f)
	if countTerminators(f, ir.OpBranch) != 1 {
		t.Error("do-while should emit one conditional branch")
	}
}

func TestWhileWithBreakContinue(t *testing.T) {
	backend := compileOK(t, `
int f(int n){
	int s = 0;
	while (n > 0) {
		n--;
		if (n == 3) continue;
		if (n == 1) break;
		s += n;
	}
	return s;
}`)
	f := backend.Mod.FuncByName("f")
	assertWellFormedCFG(t, f)
}

func TestSwitchFallthroughAndBreak(t *testing.T) {
	backend := compileOK(t, `
int f(int x){
	int r = 0;
	switch (x) {
	case 0:
	case 1:
		r = 1;
		break;
	case 2:
		r = 2;
		break;
	default:
		r = 3;
	}
	return r;
}`)
	f := backend.Mod.FuncByName("f")
	assertWellFormedCFG(t, f)
	var sw *ir.Instr
	for _, b := range f.Blocks {
		if b.Term != nil && b.Term.Op == ir.OpSwitch {
			sw = b.Term
		}
	}
	if sw == nil {
		t.Fatal("no switch terminator")
	}
	if len(sw.Cases) != 3 {
		t.Errorf("cases: got %d, want 3", len(sw.Cases))
	}
	if sw.DefaultBB == nil {
		t.Error("default edge missing")
	}
}

func TestSwitchWithoutDefaultRoutesToContinuation(t *testing.T) {
	backend := compileOK(t, "int f(int x){ int r = 0; switch (x) { case 1: r = 1; } return r; }")
	f := backend.Mod.FuncByName("f")
	var sw *ir.Instr
	for _, b := range f.Blocks {
		if b.Term != nil && b.Term.Op == ir.OpSwitch {
			sw = b.Term
		}
	}
	if sw == nil || sw.DefaultBB == nil {
		t.Fatal("switch without default must route default to the continuation")
	}
}

func TestNonConstantGlobalInit(t *testing.T) {
	_, tr := compile(t, "int f(void); int x = f();")
	if !hasError(tr, "initializer element is not a compile-time constant") {
		t.Errorf("non-constant global init not diagnosed: %v", errorMessages(tr))
	}
}

func TestConflictingTypes(t *testing.T) {
	_, tr := compile(t, "int x; double x;")
	if !hasError(tr, "conflicting types for 'x'") {
		t.Errorf("conflicting types not diagnosed: %v", errorMessages(tr))
	}
}

func TestVoidParameterRules(t *testing.T) {
	_, tr := compile(t, "void f(void, int);")
	if !hasError(tr, "'void' must be the first and only parameter") {
		t.Errorf("void-parameter rule not diagnosed: %v", errorMessages(tr))
	}
}

func TestDuplicateMember(t *testing.T) {
	_, tr := compile(t, "struct S { int x; int x; };")
	if !hasError(tr, "duplicate member 'x'") {
		t.Errorf("duplicate member not diagnosed: %v", errorMessages(tr))
	}
}

func TestDuplicateParameter(t *testing.T) {
	_, tr := compile(t, "int f(int a, int a);")
	if !hasError(tr, "redefinition of parameter 'a'") {
		t.Errorf("duplicate parameter not diagnosed: %v", errorMessages(tr))
	}
}

func TestPointerDeclaratorShapes(t *testing.T) {
	backend := compileOK(t, `
int *p;
int **pp;
int (*pa)[3];
int *(*fp)(int, char);
`)
	for _, name := range []string{"p", "pp", "pa", "fp"} {
		if backend.Mod.GlobalByName(name) == nil {
			t.Errorf("global %s not emitted", name)
		}
	}
	pa := backend.Mod.GlobalByName("pa")
	if pa.Ty.Kind() != types.Ptr || pa.Ty.Elem().Kind() != types.Array || pa.Ty.Elem().ArrayLen() != 3 {
		t.Errorf("pa should be pointer to int[3], got %v", pa.Ty)
	}
	fp := backend.Mod.GlobalByName("fp")
	if fp.Ty.Kind() != types.Ptr || fp.Ty.Elem().Kind() != types.Fn {
		t.Errorf("fp should be pointer to function, got %v", fp.Ty)
	}
}

func TestLineMarkerChangesDiagnosticFile(t *testing.T) {
	src := "# 10 \"inc.h\"\nint bad = ;\n"
	_, tr := compile(t, src)
	var sb strings.Builder
	tr.Render(&sb)
	if !strings.Contains(sb.String(), "inc.h:10:") {
		t.Errorf("line marker not applied to diagnostics:\n%s", sb.String())
	}
}

func TestCharLiteralAndCast(t *testing.T) {
	backend := compileOK(t, "int f(void){ return (int)'A'; }")
	f := backend.Mod.FuncByName("f")
	var ret *ir.Instr
	for _, b := range f.Blocks {
		if b.Term != nil && b.Term.Op == ir.OpRet {
			ret = b.Term
		}
	}
	c, ok := ret.Args[0].(*ir.Const)
	if !ok || c.I != 65 {
		t.Errorf("'A' should fold to 65, got %v", ret.Args[0])
	}
}

func TestConstantFoldingInReturn(t *testing.T) {
	backend := compileOK(t, "int f(void){ return 2 * 3 + 4; }")
	f := backend.Mod.FuncByName("f")
	if countInstrs(f, ir.OpBin) != 0 {
		t.Error("constant expression should fold, not emit instructions")
	}
	var ret *ir.Instr
	for _, b := range f.Blocks {
		if b.Term != nil && b.Term.Op == ir.OpRet {
			ret = b.Term
		}
	}
	c, ok := ret.Args[0].(*ir.Const)
	if !ok || c.I != 10 {
		t.Errorf("2*3+4 should fold to 10, got %v", ret.Args[0])
	}
}

func TestStaticAssert(t *testing.T) {
	compileOK(t, `static_assert(sizeof(int) == 4, "int is 32 bit");`)
	_, tr := compile(t, `static_assert(0, "boom");`)
	if !hasError(tr, "static assertion failed: boom") {
		t.Errorf("failed static assertion not diagnosed: %v", errorMessages(tr))
	}
}

func TestExternAndTentative(t *testing.T) {
	backend := compileOK(t, "extern int e; int t;")
	e := backend.Mod.GlobalByName("e")
	if e == nil {
		t.Fatal("extern global not emitted")
	}
	if e.Init != nil || e.Zero {
		t.Error("extern declaration must not be initialized")
	}
	tGlob := backend.Mod.GlobalByName("t")
	if tGlob == nil || tGlob.Init == nil {
		t.Error("tentative definition must be zero-initialized at end of TU")
	}
}

func TestIncompleteLocalVariable(t *testing.T) {
	_, tr := compile(t, "struct S; void f(void){ struct S s; }")
	if !hasError(tr, "incomplete type") {
		t.Errorf("incomplete local not diagnosed: %v", errorMessages(tr))
	}
}

func TestFunctionRedefinition(t *testing.T) {
	_, tr := compile(t, "int f(void){ return 0; } int f(void){ return 1; }")
	if !hasError(tr, "redefinition of 'f'") {
		t.Errorf("function redefinition not diagnosed: %v", errorMessages(tr))
	}
}

func TestPrototypeThenDefinition(t *testing.T) {
	backend := compileOK(t, "int f(int); int f(int x){ return x; }")
	n := 0
	for _, fn := range backend.Mod.Funcs {
		if fn.Name.String() == "f" {
			n++
			if fn.Proto {
				t.Error("definition should complete the prototype")
			}
		}
	}
	if n != 1 {
		t.Errorf("prototype and definition should share one function, got %d", n)
	}
}

func TestIndirectCall(t *testing.T) {
	backend := compileOK(t, "int apply(int (*fn)(int), int x){ return fn(x); }")
	f := backend.Mod.FuncByName("apply")
	assertWellFormedCFG(t, f)
	if countInstrs(f, ir.OpCall) != 1 {
		t.Error("indirect call not emitted")
	}
}

func TestUnionMemberAccess(t *testing.T) {
	backend := compileOK(t, "union U { int i; double d; }; int f(union U *u){ return u->i; }")
	f := backend.Mod.FuncByName("f")
	// union member access reuses the pointer: no static-index GEP
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Op == ir.OpGEP && len(in.Indices) == 2 {
				t.Error("union member access should not emit a struct GEP")
			}
		}
	}
}
