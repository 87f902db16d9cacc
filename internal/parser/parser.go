// Package parser is the single-pass C parser, typechecker and IR lowerer.
// It consumes the token stream and drives an emitter.Emitter directly; there
// is no retained AST. Errors never abort the parse: they are recorded on the
// diagnostic tracker and the affected value falls back to undef types and
// poison values.
package parser

import (
	"fmt"
	"io"

	"github.com/funvibe/qcp/internal/diag"
	"github.com/funvibe/qcp/internal/emitter"
	"github.com/funvibe/qcp/internal/op"
	"github.com/funvibe/qcp/internal/pipeline"
	"github.com/funvibe/qcp/internal/scope"
	"github.com/funvibe/qcp/internal/strpool"
	"github.com/funvibe/qcp/internal/token"
	"github.com/funvibe/qcp/internal/types"
)

// ScopeInfo is what the ordinary-identifier scope stores per name.
type ScopeInfo struct {
	Ty           types.Type
	Loc          diag.SrcLoc
	Val          emitter.Value // SSA pointer, function, or enum constant
	HasDefOrInit bool
}

// TagInfo is what the tag scope stores per struct/union/enum tag.
type TagInfo struct {
	Loc diag.SrcLoc
	Ty  types.Type
}

type locatedBlock struct {
	bb  emitter.Block
	loc diag.SrcLoc
}

type outstandingReturn struct {
	bb emitter.Block
	v  emitter.Value
}

// switchState tracks one enclosing switch statement.
type switchState struct {
	sw         emitter.Switch
	values     []uint64
	locs       []diag.SrcLoc
	blocks     []emitter.Block
	hasDefault bool
	defaultLoc diag.SrcLoc
}

// fnState is the per-function-definition parser state.
type fnState struct {
	fnName strpool.Ident
	fn     emitter.Value
	entry  emitter.Block
	bb     emitter.Block
	retTy  types.Type

	funcVar         emitter.Value // lazily created __func__ global
	unsealed        []locatedBlock
	labels          map[strpool.Ident]emitter.Block
	pendingGotos    map[strpool.Ident][]locatedBlock
	returns         []outstandingReturn
	missingBreaks   [][]emitter.Block
	continueTargets []emitter.Block
	switches        []*switchState
}

func newFnState() fnState {
	return fnState{
		labels:       make(map[strpool.Ident]emitter.Block),
		pendingGotos: make(map[strpool.Ident][]locatedBlock),
	}
}

// Parser holds the state of the single-pass front-end.
type Parser struct {
	stream pipeline.TokenStream
	cur    token.Token
	peek   token.Token

	diags   *diag.Tracker
	em      emitter.Emitter
	factory *types.Factory
	trace   io.Writer

	varScope *scope.Scope[strpool.Ident, ScopeInfo]
	tagScope *scope.Scope[strpool.Ident, TagInfo]

	state fnState

	externDecls []*ScopeInfo
	missingInit []*ScopeInfo

	funcIdent      strpool.Ident // "__func__"
	attributeIdent strpool.Ident // "__attribute__"
}

func New(stream pipeline.TokenStream, diags *diag.Tracker, em emitter.Emitter) *Parser {
	p := &Parser{
		stream:         stream,
		diags:          diags,
		em:             em,
		factory:        types.NewFactory(em, types.DefaultTarget),
		varScope:       scope.New[strpool.Ident, ScopeInfo](),
		tagScope:       scope.New[strpool.Ident, TagInfo](),
		state:          newFnState(),
		funcIdent:      strpool.Intern("__func__"),
		attributeIdent: strpool.Intern("__attribute__"),
	}
	p.next()
	p.next()
	return p
}

// SetTrace directs the production trace to w.
func (p *Parser) SetTrace(w io.Writer) {
	p.trace = w
}

func (p *Parser) enter(production string) {
	if p.trace != nil {
		fmt.Fprintf(p.trace, "enter %s\n", production)
	}
}

func (p *Parser) exit(production string) {
	if p.trace != nil {
		fmt.Fprintf(p.trace, "exit %s\n", production)
	}
}

// Factory exposes the type table, mainly for tests.
func (p *Parser) Factory() *types.Factory {
	return p.factory
}

// token cursor

func (p *Parser) next() {
	p.cur = p.peek
	if toks := p.stream.Peek(1); len(toks) > 0 {
		p.peek = toks[0]
	} else {
		p.peek = token.Token{Kind: token.EOF}
	}
	p.stream.Next()
}

func (p *Parser) curIs(k token.Kind) bool  { return p.cur.Kind == k }
func (p *Parser) peekIs(k token.Kind) bool { return p.peek.Kind == k }

// consumeAnyOf consumes and returns the current token when its kind is one
// of the given kinds; otherwise it returns an invalid token.
func (p *Parser) consumeAnyOf(kinds ...token.Kind) token.Token {
	for _, k := range kinds {
		if p.cur.Kind == k {
			t := p.cur
			p.next()
			return t
		}
	}
	return token.Token{}
}

func (p *Parser) consumeOpt(k token.Kind) bool {
	if p.cur.Kind == k {
		p.next()
		return true
	}
	return false
}

// expect consumes a token of the given kind or diagnoses. When the actual
// token is one the caller's next production likely consumes, the cursor
// stays put; otherwise it advances one token.
func (p *Parser) expect(k token.Kind, where string, likelyNext ...token.Kind) token.Token {
	if p.cur.Kind == k {
		t := p.cur
		p.next()
		return t
	}

	loc := p.cur.Loc.Truncate(0)
	if where != "" {
		p.diags.Errorf(loc, "expected %s %s but got %s", k, where, p.cur.Kind)
	} else {
		p.diags.Errorf(loc, "expected %s but got %s", k, p.cur.Kind)
	}
	for _, n := range likelyNext {
		if p.cur.Kind == n {
			return token.Token{}
		}
	}
	if p.cur.Kind != token.EOF {
		p.next()
	}
	return token.Token{}
}

// token classification

func isTypeQualifier(k token.Kind) bool {
	switch k {
	case token.Const, token.Restrict, token.Volatile, token.Atomic:
		return true
	}
	return false
}

func isStorageClassSpecifier(k token.Kind) bool {
	switch k {
	case token.Auto, token.Constexpr, token.Extern, token.Register,
		token.Static, token.ThreadLocal, token.Typedef:
		return true
	}
	return false
}

func isFunctionSpecifier(k token.Kind) bool {
	return k == token.Inline || k == token.Noreturn
}

func isTypeSpecifierQualifier(k token.Kind) bool {
	if k >= token.Bool && k <= token.Complex {
		return true
	}
	switch k {
	case token.Void, token.Struct, token.Union, token.Enum,
		token.Typeof, token.TypeofUnqual, token.Alignas, token.BitInt, token.Imaginary:
		return true
	}
	return isTypeQualifier(k)
}

func isDeclarationSpecifier(k token.Kind) bool {
	return isTypeSpecifierQualifier(k) || isStorageClassSpecifier(k) || isFunctionSpecifier(k)
}

func isDeclarationStart(k token.Kind) bool {
	return isDeclarationSpecifier(k) || k == token.StaticAssert
}

func isAbstractDeclaratorStart(k token.Kind) bool {
	return k == token.Mul || k == token.LParen || k == token.LBrack
}

func isDeclaratorStart(k token.Kind) bool {
	return k == token.Ident || isAbstractDeclaratorStart(k)
}

func isSelectionStmtStart(k token.Kind) bool {
	return k == token.If || k == token.Switch
}

func isIterationStmtStart(k token.Kind) bool {
	return k == token.While || k == token.Do || k == token.For
}

func isJumpStmtStart(k token.Kind) bool {
	return k == token.Goto || k == token.Continue || k == token.Break || k == token.Return
}

func isLabelStmtStart(first, second token.Kind) bool {
	return first == token.Ident && second == token.Colon ||
		first == token.Case || first == token.Default
}

func isPostfixExprStart(k token.Kind) bool {
	switch k {
	case token.Inc, token.Dec, token.LBrack, token.LParen, token.Arrow, token.Period:
		return true
	}
	return false
}

// control flow bookkeeping

// newBB creates a block and tracks it as unsealed together with the source
// location that caused it.
func (p *Parser) newBB() emitter.Block {
	bb := p.em.EmitBB(p.state.fn, nil, 0)
	if n := len(p.state.unsealed); n > 0 {
		p.state.unsealed[n-1].loc = p.state.unsealed[n-1].loc.Union(p.cur.Loc)
	}
	p.state.unsealed = append(p.state.unsealed, locatedBlock{bb: bb, loc: p.cur.Loc})
	return bb
}

func (p *Parser) markSealed(bb emitter.Block) {
	kept := p.state.unsealed[:0]
	for _, lb := range p.state.unsealed {
		if lb.bb != bb {
			kept = append(kept, lb)
		}
	}
	p.state.unsealed = kept
}

func (p *Parser) isSealed(bb emitter.Block) bool {
	if bb == nil {
		return true
	}
	for _, lb := range p.state.unsealed {
		if lb.bb == bb {
			return false
		}
	}
	return true
}

func (p *Parser) emitJump(from, to emitter.Block) {
	p.em.EmitJump(from, to)
	p.markSealed(from)
}

func (p *Parser) emitBranch(from, trueBB, falseBB emitter.Block, cond emitter.Value) {
	p.em.EmitBranch(from, trueBB, falseBB, cond)
	p.markSealed(from)
}

func (p *Parser) emitJumpIfNotSealed(from, to emitter.Block) {
	if p.isSealed(from) {
		return
	}
	p.emitJump(from, to)
}

// completeBreaks jumps every pending break of the innermost breakable
// construct to target and pops the list.
func (p *Parser) completeBreaks(target emitter.Block) {
	n := len(p.state.missingBreaks) - 1
	for _, bb := range p.state.missingBreaks[n] {
		p.em.EmitJump(bb, target)
	}
	p.state.missingBreaks = p.state.missingBreaks[:n]
}

// diagnostics helpers

func (p *Parser) notePrevWhatHere(what string, loc diag.SrcLoc) {
	p.diags.Notef(loc.Truncate(0), "previous %s is here", what)
}

func (p *Parser) notePrevDeclHere(info *ScopeInfo) {
	p.notePrevWhatHere("declaration", info.Loc)
}

func (p *Parser) notePrevDefHere(loc diag.SrcLoc) {
	p.notePrevWhatHere("definition", loc)
}

func (p *Parser) noteForwardDeclHere(loc diag.SrcLoc, ty types.Type) {
	p.diags.Notef(loc.Truncate(0), "forward declaration of '%s'", ty)
}

func (p *Parser) errorVarIncompleteType(loc diag.SrcLoc, ty types.Type) {
	loc = loc.Truncate(0)
	if ty.IsArray() {
		p.diags.Errorf(loc, "definition of variable with array type needs an explicit size or an initializer")
	} else {
		p.diags.Errorf(loc, "variable has incomplete type '%s'", ty)
	}
}

func (p *Parser) errorAssignToConst(loc diag.SrcLoc, ty types.Type, ident strpool.Ident) {
	if !ident.IsEmpty() {
		p.diags.Errorf(loc, "cannot assign to variable '%s' with const-qualified type '%s'", ident, ty)
	} else {
		p.diags.Errorf(loc, "cannot assign to variable with const-qualified type '%s'", ty)
	}
}

func (p *Parser) noteConstDeclHere(loc diag.SrcLoc, ident strpool.Ident) {
	p.diags.Notef(loc.Truncate(0), "variable '%s' declared const here", ident)
}

func (p *Parser) errorRedef(loc diag.SrcLoc, ident strpool.Ident, aTy, bTy types.Type) {
	if !aTy.IsNil() && !bTy.IsNil() && aTy != bTy {
		p.diags.Errorf(loc.Truncate(0), "redefinition of '%s' with a different type ('%s' vs '%s')", ident, aTy, bTy)
		return
	}
	p.diags.Errorf(loc.Truncate(0), "redefinition of '%s'", ident)
}

// Parse drives the whole translation unit.
func (p *Parser) Parse() {
	for !p.curIs(token.EOF) {
		p.diags.Unsilence()

		if p.consumeOpt(token.PPStart) {
			p.parseLineMarker()
			continue
		}

		p.parseOptAttributeSpecifierSequence()
		p.state = newFnState()
		p.parseDeclStmt()
		p.finishFunction()
	}

	// translation unit end: tentative definitions become zero initialized
	for _, info := range p.missingInit {
		if !info.Ty.IsComplete() {
			p.errorVarIncompleteType(info.Loc, info.Ty)
			continue
		}
		p.em.SetGlobalInit(info.Val, p.defaultValue(info.Ty))
	}
}

// parseLineMarker absorbs `# line "file" flags…` up to PPEnd, remapping
// subsequent diagnostics.
func (p *Parser) parseLineMarker() {
	p.enter("parseLineMarker")
	lineNo := p.consumeAnyOf(token.IConst, token.LConst, token.LLConst)
	file := p.consumeAnyOf(token.StrLit)
	for !p.curIs(token.EOF) && !p.curIs(token.PPEnd) {
		p.next()
	}
	end := p.cur.Loc.End()
	p.consumeOpt(token.PPEnd)
	if lineNo.Valid() && file.Valid() {
		p.diags.RegisterFileMapping(end, int(lineNo.IVal), file.SVal)
	}
	p.exit("parseLineMarker")
}

// finishFunction resolves pending gotos, materializes the function's single
// return, and deals with fall-through blocks.
func (p *Parser) finishFunction() {
	for lbl, gotos := range p.state.pendingGotos {
		for _, lb := range gotos {
			if target, ok := p.state.labels[lbl]; ok {
				p.em.EmitJump(lb.bb, target)
			} else {
				p.diags.Errorf(lb.loc.Truncate(0), "use of undeclared label '%s'", lbl)
			}
		}
	}
	if p.state.fn.IsZero() || p.state.entry == nil {
		return
	}

	if len(p.state.returns) == 1 {
		r := p.state.returns[0]
		p.em.EmitRet(r.bb, r.v)
	} else if len(p.state.returns) > 1 {
		retVar := p.em.EmitLocalVar(p.state.fn, p.state.entry, p.state.retTy, strpool.Intern("__retVar"), true)
		retBB := p.em.EmitBB(p.state.fn, nil, strpool.Intern("__retBB"))
		for _, r := range p.state.returns {
			p.em.EmitStore(r.bb, p.state.retTy, r.v, retVar)
			p.em.EmitJump(r.bb, retBB)
		}
		retVal := p.em.EmitLoad(retBB, p.state.retTy, retVar, strpool.Intern("__retVar"))
		p.em.EmitRet(retBB, retVal)
	}

	for _, lb := range p.state.unsealed {
		if p.state.retTy.Kind() == types.Void {
			p.em.EmitRet(lb.bb, emitter.Value{})
		} else {
			p.diags.Errorf(lb.loc, "missing return statement in function returning non-void")
		}
	}
}

// Processor is the parser pipeline stage.
type Processor struct{}

func (Processor) Process(ctx *pipeline.Context) *pipeline.Context {
	p := New(ctx.Tokens, ctx.Diags, ctx.Emitter)
	if ctx.Trace != nil {
		p.SetTrace(ctx.Trace)
	}
	p.Parse()
	return ctx
}

// binOps maps binary-operator tokens to operator kinds.
var binOps = map[token.Kind]op.Kind{
	token.Mul: op.Mul, token.Div: op.Div, token.Mod: op.Rem,
	token.Plus: op.Add, token.Minus: op.Sub,
	token.Shl: op.Shl, token.Shr: op.Shr,
	token.Lt: op.Lt, token.Le: op.Le, token.Gt: op.Gt, token.Ge: op.Ge,
	token.EqEq: op.Eq, token.Ne: op.Ne,
	token.Amp: op.BWAnd, token.Caret: op.BWXor, token.Pipe: op.BWOr,
	token.LAnd: op.LAnd, token.LOr: op.LOr,
	token.Question: op.Cond,
	token.Assign:   op.Assign, token.AddAssign: op.AddAssign, token.SubAssign: op.SubAssign,
	token.MulAssign: op.MulAssign, token.DivAssign: op.DivAssign, token.ModAssign: op.RemAssign,
	token.ShlAssign: op.ShlAssign, token.ShrAssign: op.ShrAssign,
	token.AndAssign: op.BWAndAssign, token.XorAssign: op.BWXorAssign, token.OrAssign: op.BWOrAssign,
	token.Comma: op.Comma,
}
