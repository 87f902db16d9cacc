package parser

import (
	"github.com/funvibe/qcp/internal/diag"
	"github.com/funvibe/qcp/internal/emitter"
	"github.com/funvibe/qcp/internal/op"
	"github.com/funvibe/qcp/internal/strpool"
	"github.com/funvibe/qcp/internal/token"
	"github.com/funvibe/qcp/internal/types"
)

// expr is the transient result of expression parsing: a typed emitter value
// plus the bookkeeping diagnostics need. Expression trees are consumed as
// they are built; nothing survives the statement.
type expr struct {
	op        op.Kind
	ty        types.Type
	val       emitter.Value
	loc       diag.SrcLoc
	ident     strpool.Ident
	mayBeLval bool
}

// value plumbing

// asRVal reads the expression as a value: loads through lvalues, decays
// arrays, passes everything else through.
func (p *Parser) asRVal(e *expr) emitter.Value {
	if e.ty.IsNil() {
		return p.em.EmitPoison()
	}
	if e.ty.IsArray() {
		return p.arrToPtrDecayValue(e)
	}
	if e.mayBeLval && e.ty.Kind() != types.Fn {
		if p.isSealed(p.state.bb) {
			return p.em.EmitPoison()
		}
		return p.em.EmitLoad(p.state.bb, e.ty, e.val, e.ident)
	}
	return e.val
}

// arrToPtrDecayValue produces a pointer to the first array element. String
// literal constants are materialized as globals first.
func (p *Parser) arrToPtrDecayValue(e *expr) emitter.Value {
	val := e.val
	var ptr emitter.Value
	if val.Kind == emitter.ConstValue {
		ptr = p.em.EmitGlobalVar(e.ty, 0)
		p.em.SetGlobalInit(ptr, val)
	} else {
		ptr = val
	}
	return p.em.EmitGEP(p.state.bb, e.ty, ptr, []uint32{0, 0})
}

func (p *Parser) arrToPtrDecayType(ty types.Type) types.Type {
	if ty.IsArray() {
		ptr := p.factory.PtrTo(ty.Elem())
		return p.factory.Harden(ptr, nil)
	}
	return ty
}

// optArrToPtrDecay applies array-to-pointer decay in place when e has array
// type.
func (p *Parser) optArrToPtrDecay(e *expr) {
	if e.ty.IsNil() || !e.ty.IsArray() {
		return
	}
	e.val = p.arrToPtrDecayValue(e)
	e.ty = p.arrToPtrDecayType(e.ty)
	e.mayBeLval = false
}

// castValue picks a cast kind from the type pair and emits it. Invalid
// combinations diagnose and yield poison.
func (p *Parser) castValue(loc diag.SrcLoc, from, to types.Type, value emitter.Value, explicit bool) emitter.Value {
	if from.Unqualified() == to.Unqualified() {
		return value
	}
	if to.IsVoid() {
		return p.em.EmitPoison()
	}

	fromE, toE := from, to
	if fromE.Kind() == types.Enum {
		fromE = fromE.Elem()
	}
	if toE.Kind() == types.Enum {
		toE = toE.Elem()
	}

	var kind types.Cast
	switch {
	case fromE.IsNil():
		kind = types.Bitcast
	case fromE.IsInteger() && toE.IsInteger():
		switch {
		case fromE.Rank() > toE.Rank():
			kind = types.Trunc
		case fromE.Rank() < toE.Rank():
			if fromE.IsSigned() {
				kind = types.Sext
			} else {
				kind = types.Zext
			}
		default:
			return value
		}
	case fromE.IsInteger() && toE.IsFloating():
		if fromE.IsSigned() {
			kind = types.SIToFP
		} else {
			kind = types.UIToFP
		}
	case fromE.IsFloating() && toE.IsInteger():
		if toE.IsSigned() {
			kind = types.FPToSI
		} else {
			kind = types.FPToUI
		}
	case fromE.IsFloating() && toE.IsFloating():
		if fromE.Rank() > toE.Rank() {
			kind = types.FPTrunc
		} else {
			kind = types.FPExt
		}
	case fromE.IsPointer() && toE.IsInteger():
		kind = types.PtrToInt
		if !explicit {
			p.diags.Errorf(loc, "incompatible pointer to integer conversion from '%s' to '%s'", from, to)
		}
	case fromE.IsInteger() && toE.IsPointer():
		value = p.castValue(loc, fromE, p.factory.UintptrTy(), value, explicit)
		kind = types.IntToPtr
		if !explicit {
			p.diags.Errorf(loc, "incompatible integer to pointer conversion from '%s' to '%s'", from, to)
		}
	case (fromE.IsPointer() || fromE.IsArray()) && toE.IsPointer():
		return value
	default:
		p.diags.Errorf(loc, "invalid cast from '%s' to '%s'", from, to)
		return p.em.EmitPoison()
	}

	return p.emitCast(from, value, to, kind)
}

// castExpr reads e as an rvalue and converts it to the target type.
func (p *Parser) castExpr(e *expr, to types.Type, explicit bool) emitter.Value {
	return p.castValue(e.loc, e.ty, to, p.asRVal(e), explicit)
}

// asBoolByComparison compares e against the appropriately typed zero.
func (p *Parser) asBoolByComparison(e *expr, kind op.Kind) emitter.Value {
	var zero emitter.Value
	if e.ty.IsFloating() {
		zero = p.em.EmitFPConst(e.ty, 0)
	} else {
		zero = p.em.EmitIConst(e.ty, 0)
	}
	value := p.asRVal(e)
	if value.IsSSA() {
		if p.isSealed(p.state.bb) {
			return p.em.EmitPoison()
		}
		return p.em.EmitBinOp(p.state.bb, e.ty, kind, value, zero, emitter.Value{})
	}
	return p.em.EmitConstBinOp(e.ty, kind, value, zero)
}

// isTruthy coerces e to a boolean value.
func (p *Parser) isTruthy(e *expr) emitter.Value {
	if e.ty.IsNil() {
		return p.em.EmitPoison()
	}
	if e.ty.IsBool() {
		return p.asRVal(e)
	}
	if e.ty.IsPointer() {
		v := p.asRVal(e)
		null := p.em.EmitNullPtr(e.ty)
		if v.IsSSA() {
			return p.em.EmitBinOp(p.state.bb, e.ty, op.Ne, v, null, emitter.Value{})
		}
		return p.em.EmitConstBinOp(e.ty, op.Ne, v, null)
	}
	return p.asBoolByComparison(e, op.Ne)
}

// unary emit helpers: fold constants, otherwise emit instructions

func (p *Parser) emitNeg(ty types.Type, v emitter.Value) emitter.Value {
	if v.IsSSA() {
		if p.state.bb == nil {
			p.diags.Errorf(p.cur.Loc, "cannot emit instruction outside of function")
			return p.em.EmitPoison()
		}
		return p.em.EmitNeg(p.state.bb, ty, v)
	}
	return p.em.EmitConstNeg(ty, v)
}

func (p *Parser) emitBWNeg(ty types.Type, v emitter.Value) emitter.Value {
	if v.IsSSA() {
		if p.state.bb == nil {
			p.diags.Errorf(p.cur.Loc, "cannot emit instruction outside of function")
			return p.em.EmitPoison()
		}
		return p.em.EmitBWNeg(p.state.bb, ty, v)
	}
	return p.em.EmitConstBWNeg(ty, v)
}

func (p *Parser) emitCast(from types.Type, v emitter.Value, to types.Type, cast types.Cast) emitter.Value {
	if v.IsSSA() {
		if p.state.bb == nil {
			p.diags.Errorf(p.cur.Loc, "cannot emit instruction outside of function")
			return p.em.EmitPoison()
		}
		return p.em.EmitCast(p.state.bb, from, v, to, cast)
	}
	return p.em.EmitConstCast(from, v, to, cast)
}

func (p *Parser) emitBinValue(ty types.Type, kind op.Kind, lhs, rhs emitter.Value, dest emitter.Value) emitter.Value {
	if lhs.IsSSA() || rhs.IsSSA() || !dest.IsZero() {
		if p.state.bb == nil {
			p.diags.Errorf(p.cur.Loc, "cannot emit instruction outside of function")
			return p.em.EmitPoison()
		}
		return p.em.EmitBinOp(p.state.bb, ty, kind, lhs, rhs, dest)
	}
	return p.em.EmitConstBinOp(ty, kind, lhs, rhs)
}

// expression entry points

// parseConditionExpr parses an expression and coerces its value to boolean.
func (p *Parser) parseConditionExpr() *expr {
	cond := p.parseExpr(0)
	p.optArrToPtrDecay(cond)
	cond.val = p.isTruthy(cond)
	return cond
}

// parseAssignmentExpr parses everything below the comma operator.
func (p *Parser) parseAssignmentExpr() *expr {
	return p.parseExpr(15)
}

// parseConditionalExpr additionally excludes assignments.
func (p *Parser) parseConditionalExpr() *expr {
	return p.parseExpr(14)
}

func (p *Parser) parseUnaryExpr() *expr {
	return p.parseExpr(2)
}

// parseExpr is the precedence-climbing core: parse a primary, then keep
// extending while the next operator binds strictly tighter than minPrec,
// i.e. its precedence number is smaller (0 disables the bound).
func (p *Parser) parseExpr(minPrec int8) *expr {
	lhs := p.parsePrimaryExpr()

	for !p.curIs(token.EOF) {
		if isPostfixExprStart(p.cur.Kind) {
			lhs = p.parsePostfixExpr(lhs)
			continue
		}

		kind, ok := binOps[p.cur.Kind]
		if !ok {
			break
		}
		spec := kind.Spec()
		if minPrec != 0 && spec.Prec >= minPrec {
			break
		}
		opLoc := p.cur.Loc
		p.next()

		switch {
		case kind == op.Cond:
			lhs = p.parseTernary(lhs, opLoc)
		case kind == op.Comma:
			p.asRVal(lhs) // evaluate for side effects
			lhs = p.parseExpr(spec.Prec)
		case kind == op.LAnd || kind == op.LOr:
			lhs = p.parseShortCircuit(kind, lhs, spec, opLoc)
		case kind.IsAssign():
			lhs = p.parseAssignment(kind, lhs, spec, opLoc)
		default:
			lhs = p.parseArithBinary(kind, lhs, spec, opLoc)
		}
	}
	return lhs
}

// parseArithBinary handles the plain binary operators: usual arithmetic
// conversions, constant folding versus instruction emission, bool results
// for comparisons.
func (p *Parser) parseArithBinary(kind op.Kind, lhs *expr, spec op.Spec, opLoc diag.SrcLoc) *expr {
	p.optArrToPtrDecay(lhs)
	rhs := p.parseExpr(spec.Prec + boolToPrec(!spec.LeftAssoc))
	p.optArrToPtrDecay(rhs)

	resTy := p.factory.UndefTy()
	var result emitter.Value

	switch {
	case lhs.ty.IsNil() || rhs.ty.IsNil() || lhs.ty.IsVoid() || rhs.ty.IsVoid():
		p.diags.Errorf(opLoc, "invalid operands to binary expression ('%s' and '%s')", lhs.ty, rhs.ty)
		result = p.em.EmitPoison()

	case lhs.ty.IsPointer() || rhs.ty.IsPointer():
		resTy, result = p.pointerBinary(kind, lhs, rhs, opLoc)

	default:
		resTy = p.factory.CommonRealType(lhs.ty, rhs.ty)
		if resTy.IsNil() {
			p.diags.Errorf(opLoc, "invalid operands to binary expression ('%s' and '%s')", lhs.ty, rhs.ty)
			result = p.em.EmitPoison()
			break
		}
		if resTy.IsFloating() && kind.IsBitwise() {
			p.diags.Errorf(opLoc, "invalid operands to binary expression ('%s' and '%s')", lhs.ty, rhs.ty)
			resTy = p.factory.UndefTy()
			result = p.em.EmitPoison()
			break
		}
		lv := p.castExpr(lhs, resTy, false)
		rv := p.castExpr(rhs, resTy, false)
		result = p.emitBinValue(resTy, kind, lv, rv, emitter.Value{})
		if kind.IsComparison() {
			resTy = p.factory.BoolTy()
		}
	}

	return &expr{op: kind, ty: resTy, val: result, loc: lhs.loc.Union(rhs.loc)}
}

// pointerBinary types pointer arithmetic and pointer comparisons.
func (p *Parser) pointerBinary(kind op.Kind, lhs, rhs *expr, opLoc diag.SrcLoc) (types.Type, emitter.Value) {
	switch {
	case kind.IsComparison() && lhs.ty.IsPointer() && rhs.ty.IsPointer():
		result := p.emitBinValue(lhs.ty, kind, p.asRVal(lhs), p.asRVal(rhs), emitter.Value{})
		return p.factory.BoolTy(), result

	case (kind == op.Add || kind == op.Sub) && lhs.ty.IsPointer() && rhs.ty.IsInteger():
		if !lhs.ty.Elem().IsComplete() {
			p.diags.Errorf(opLoc, "arithmetic on a pointer to incomplete type '%s'", lhs.ty.Elem())
			return p.factory.UndefTy(), p.em.EmitPoison()
		}
		idx := p.asRVal(rhs)
		if kind == op.Sub {
			idx = p.emitNeg(rhs.ty, idx)
		}
		result := p.em.EmitGEPDyn(p.state.bb, lhs.ty.Elem(), p.asRVal(lhs), idx)
		return lhs.ty, result

	case kind == op.Add && rhs.ty.IsPointer() && lhs.ty.IsInteger():
		return p.pointerBinary(kind, rhs, lhs, opLoc)

	case kind == op.Sub && lhs.ty.IsPointer() && rhs.ty.IsPointer():
		result := p.emitBinValue(p.factory.SizeTy(), kind, p.asRVal(lhs), p.asRVal(rhs), emitter.Value{})
		return p.factory.SizeTy(), result
	}
	p.diags.Errorf(opLoc, "invalid operands to binary expression ('%s' and '%s')", lhs.ty, rhs.ty)
	return p.factory.UndefTy(), p.em.EmitPoison()
}

// parseAssignment handles `=` and the compound assignments. The left side
// must be a modifiable lvalue; compound forms compute in the promoted type
// and cast back before the store.
func (p *Parser) parseAssignment(kind op.Kind, lhs *expr, spec op.Spec, opLoc diag.SrcLoc) *expr {
	rhs := p.parseExpr(spec.Prec + 1) // right-associative
	p.optArrToPtrDecay(rhs)

	if lhs.ty.IsNil() || rhs.ty.IsNil() {
		p.diags.Errorf(opLoc, "invalid operands to binary expression ('%s' and '%s')", lhs.ty, rhs.ty)
		return &expr{op: kind, ty: p.factory.UndefTy(), val: p.em.EmitPoison(), loc: lhs.loc.Union(rhs.loc)}
	}

	if !lhs.mayBeLval || !lhs.val.IsSSA() {
		p.diags.Errorf(opLoc, "lvalue required as left operand of assignment")
		return &expr{op: kind, ty: p.factory.UndefTy(), val: p.em.EmitPoison(), loc: lhs.loc.Union(rhs.loc)}
	}
	if lhs.ty.Qual.Const {
		p.errorAssignToConst(opLoc, lhs.ty, lhs.ident)
		if !lhs.ident.IsEmpty() {
			if info := p.varScope.Find(lhs.ident); info != nil {
				p.noteConstDeclHere(info.Loc, lhs.ident)
			}
		}
		return &expr{op: kind, ty: p.factory.UndefTy(), val: p.em.EmitPoison(), loc: lhs.loc.Union(rhs.loc)}
	}

	var stored emitter.Value
	if kind == op.Assign {
		stored = p.emitAssignment(opLoc, lhs.ty, lhs.val, rhs)
	} else {
		resTy := p.factory.CommonRealType(lhs.ty, rhs.ty)
		if resTy.IsNil() || (resTy.IsFloating() && kind.IsBitwise()) {
			p.diags.Errorf(opLoc, "invalid operands to binary expression ('%s' and '%s')", lhs.ty, rhs.ty)
			return &expr{op: kind, ty: p.factory.UndefTy(), val: p.em.EmitPoison(), loc: lhs.loc.Union(rhs.loc)}
		}
		lv := p.castExpr(lhs, resTy, false)
		rv := p.castExpr(rhs, resTy, false)
		computed := p.emitBinValue(resTy, kind.Binary(), lv, rv, emitter.Value{})
		stored = p.castValue(opLoc, resTy, lhs.ty, computed, false)
		if p.state.bb != nil && !p.isSealed(p.state.bb) {
			p.em.EmitStore(p.state.bb, lhs.ty, stored, lhs.val)
		}
	}

	return &expr{op: kind, ty: lhs.ty, val: stored, loc: lhs.loc.Union(rhs.loc)}
}

// emitAssignment stores rhs into an lvalue slot, with the arithmetic and
// pointer compatibility checks of simple assignment.
func (p *Parser) emitAssignment(opLoc diag.SrcLoc, lTy types.Type, lValue emitter.Value, rhs *expr) emitter.Value {
	rTy := rhs.ty
	sealed := p.state.bb == nil || p.isSealed(p.state.bb)
	switch {
	case lTy.IsNil() || rTy.IsNil():
		p.diags.Errorf(opLoc, "invalid operands to binary expression ('%s' and '%s')", lTy, rTy)
	case (lTy.IsArithmetic() || lTy.IsEnum()) && (rTy.IsArithmetic() || rTy.IsEnum()):
		v := p.castExpr(rhs, lTy, false)
		if !sealed {
			p.em.EmitStore(p.state.bb, lTy, v, lValue)
		}
		return v
	case lTy.IsPointer() && rTy.IsPointer():
		lPointee, rPointee := lTy.Elem(), rTy.Elem()
		if !lPointee.IsCompatibleWith(rPointee) && !rPointee.IsVoid() && !lPointee.IsVoid() {
			p.diags.Errorf(opLoc, "incompatible pointer types assigning to '%s' from '%s'", lTy, rTy)
		} else if !lPointee.Qual.Covers(rPointee.Qual) {
			p.diags.Errorf(opLoc, "assigning to '%s' from '%s' discards qualifiers from pointer target type", lTy, rTy)
		} else {
			v := p.asRVal(rhs)
			if !sealed {
				p.em.EmitStore(p.state.bb, lTy, v, lValue)
			}
			return v
		}
	case lTy.IsPointer() && rTy.IsInteger():
		// allows null pointer constants; other integers diagnose via cast
		v := p.castExpr(rhs, lTy, rhs.val.IsIConst() && p.em.UIntegerValue(rhs.val) == 0)
		if !sealed {
			p.em.EmitStore(p.state.bb, lTy, v, lValue)
		}
		return v
	case lTy.IsBool() && rTy.IsPointer():
		v := p.asRVal(rhs)
		if !sealed {
			p.em.EmitStore(p.state.bb, lTy, v, lValue)
		}
		return v
	default:
		p.diags.Errorf(opLoc, "invalid operands to binary expression ('%s' and '%s')", lTy, rTy)
	}
	return p.em.EmitPoison()
}

// parseShortCircuit lowers && and || into control flow. The right operand
// evaluates in its own block; when the combined value is consumed, a phi
// merges the skipped side's constant with the evaluated side.
func (p *Parser) parseShortCircuit(kind op.Kind, lhs *expr, spec op.Spec, opLoc diag.SrcLoc) *expr {
	p.optArrToPtrDecay(lhs)
	boolTy := p.factory.BoolTy()
	lv := p.isTruthy(lhs)

	if p.state.bb == nil {
		// constant context
		rhs := p.parseExpr(spec.Prec)
		p.optArrToPtrDecay(rhs)
		rv := p.isTruthy(rhs)
		if lv.IsConst() && rv.IsConst() {
			l, r := p.em.UIntegerValue(lv), p.em.UIntegerValue(rv)
			var res uint64
			if kind == op.LAnd {
				if l != 0 && r != 0 {
					res = 1
				}
			} else if l != 0 || r != 0 {
				res = 1
			}
			return &expr{op: kind, ty: boolTy, val: p.em.EmitIConst(boolTy, res), loc: lhs.loc.Union(rhs.loc)}
		}
		return &expr{op: kind, ty: boolTy, val: p.em.EmitPoison(), loc: lhs.loc.Union(rhs.loc)}
	}

	fromBB := p.state.bb
	rhsBB := p.newBB()
	p.state.bb = rhsBB

	rhs := p.parseExpr(spec.Prec)
	p.optArrToPtrDecay(rhs)
	rv := p.isTruthy(rhs)
	rhsEnd := p.state.bb

	cont := p.newBB()
	var skipped uint64
	if kind == op.LAnd {
		p.emitBranch(fromBB, rhsBB, cont, lv)
	} else {
		skipped = 1
		p.emitBranch(fromBB, cont, rhsBB, lv)
	}
	p.emitJumpIfNotSealed(rhsEnd, cont)
	p.state.bb = cont

	result := p.em.EmitPhi(cont, boolTy, []emitter.PhiIncoming{
		{V: p.em.EmitIConst(boolTy, skipped), BB: fromBB},
		{V: rv, BB: rhsEnd},
	})
	return &expr{op: kind, ty: boolTy, val: result, loc: lhs.loc.Union(rhs.loc)}
}

// parseTernary lowers c ? a : b with a block per arm and a merging phi.
func (p *Parser) parseTernary(cond *expr, opLoc diag.SrcLoc) *expr {
	p.optArrToPtrDecay(cond)
	cv := p.isTruthy(cond)

	if p.state.bb == nil {
		// constant context: fold on the condition
		thenE := p.parseExpr(0)
		p.expect(token.Colon, "in conditional expression")
		elseE := p.parseExpr(14)
		resTy := p.factory.CommonRealType(thenE.ty, elseE.ty)
		if !cv.IsConst() {
			return &expr{op: op.Cond, ty: resTy, val: p.em.EmitPoison(), loc: cond.loc.Union(elseE.loc)}
		}
		pick := thenE
		if p.em.UIntegerValue(cv) == 0 {
			pick = elseE
		}
		return &expr{op: op.Cond, ty: resTy, val: p.castExpr(pick, resTy, false), loc: cond.loc.Union(elseE.loc)}
	}

	fromBB := p.state.bb
	thenBB := p.newBB()
	p.state.bb = thenBB
	thenE := p.parseExpr(0)
	p.optArrToPtrDecay(thenE)
	thenEnd := p.state.bb

	p.expect(token.Colon, "in conditional expression")

	elseBB := p.newBB()
	p.state.bb = elseBB
	elseE := p.parseExpr(14)
	p.optArrToPtrDecay(elseE)
	elseEnd := p.state.bb

	resTy := p.factory.CommonRealType(thenE.ty, elseE.ty)
	if resTy.IsNil() && thenE.ty.IsPointer() && thenE.ty.Unqualified() == elseE.ty.Unqualified() {
		resTy = thenE.ty
	}
	if resTy.IsNil() {
		p.diags.Errorf(opLoc, "incompatible operand types ('%s' and '%s')", thenE.ty, elseE.ty)
		resTy = p.factory.UndefTy()
	}

	p.state.bb = thenEnd
	tv := p.castExpr(thenE, resTy, false)
	p.state.bb = elseEnd
	ev := p.castExpr(elseE, resTy, false)

	cont := p.newBB()
	p.emitBranch(fromBB, thenBB, elseBB, cv)
	p.emitJumpIfNotSealed(thenEnd, cont)
	p.emitJumpIfNotSealed(elseEnd, cont)
	p.state.bb = cont

	result := p.em.EmitPhi(cont, resTy, []emitter.PhiIncoming{
		{V: tv, BB: thenEnd},
		{V: ev, BB: elseEnd},
	})
	return &expr{op: op.Cond, ty: resTy, val: result, loc: cond.loc.Union(elseE.loc)}
}

func boolToPrec(b bool) int8 {
	if b {
		return 1
	}
	return 0
}

// parsePostfixExpr applies one postfix production to lhs.
func (p *Parser) parsePostfixExpr(lhs *expr) *expr {
	kind := p.cur.Kind
	opLoc := p.cur.Loc

	if t := p.consumeAnyOf(token.Inc, token.Dec); t.Valid() {
		k := op.PostInc
		if kind == token.Dec {
			k = op.PostDec
		}
		if !lhs.mayBeLval || !lhs.val.IsSSA() {
			p.diags.Errorf(opLoc, "lvalue required as increment/decrement operand")
			return lhs
		}
		if lhs.ty.Qual.Const {
			p.errorAssignToConst(opLoc, lhs.ty, lhs.ident)
			return lhs
		}
		result := p.em.EmitIncDec(p.state.bb, lhs.ty, k, lhs.val)
		return &expr{op: k, ty: lhs.ty, val: result, loc: lhs.loc.Union(opLoc)}
	}

	switch kind {
	case token.LBrack:
		return p.parseSubscript(lhs, opLoc)
	case token.LParen:
		return p.parseCall(lhs, opLoc)
	}
	return p.parseMemberAccess(lhs, kind, opLoc)
}

func (p *Parser) parseSubscript(lhs *expr, opLoc diag.SrcLoc) *expr {
	p.expect(token.LBrack, "")
	p.optArrToPtrDecay(lhs)
	subscript := p.parseExpr(0)
	p.optArrToPtrDecay(subscript)
	closeLoc := p.cur.Loc
	p.expect(token.RBrack, "after array subscript")

	var elemTy types.Type
	var result emitter.Value
	switch {
	case lhs.ty.IsNil() || !lhs.ty.IsPointer():
		p.diags.Errorf(lhs.loc, "subscripted value is not a pointer ('%s' invalid)", lhs.ty)
		result = p.em.EmitPoison()
		elemTy = p.factory.UndefTy()
	case subscript.ty.IsNil() || !subscript.ty.IsInteger():
		p.diags.Errorf(opLoc.Union(subscript.loc), "array subscript is not an integer")
		result = p.em.EmitPoison()
		elemTy = p.factory.UndefTy()
	default:
		elemTy = lhs.ty.Elem()
		if !elemTy.IsComplete() {
			p.diags.Errorf(lhs.loc, "subscript of pointer to incomplete type '%s'", elemTy)
			result = p.em.EmitPoison()
			elemTy = p.factory.UndefTy()
			break
		}
		result = p.em.EmitGEPDyn(p.state.bb, elemTy, p.asRVal(lhs), p.asRVal(subscript))
	}

	return &expr{op: op.Subscript, ty: elemTy, val: result, loc: lhs.loc.Union(closeLoc), mayBeLval: true}
}

func (p *Parser) parseCall(lhs *expr, opLoc diag.SrcLoc) *expr {
	p.expect(token.LParen, "")
	var fnTy types.Type
	switch {
	case lhs.ty.IsFn():
		fnTy = lhs.ty
	case lhs.ty.IsPointer() && lhs.ty.Elem().IsFn():
		fnTy = lhs.ty.Elem()
		lhs.val = p.asRVal(lhs)
		lhs.mayBeLval = false
	default:
		p.diags.Errorf(lhs.loc, "called object is not a function or function pointer ('%s' invalid)", lhs.ty)
	}

	var args []emitter.Value
	for !p.curIs(token.RParen) && !p.curIs(token.EOF) {
		if len(args) > 0 {
			p.expect(token.Comma, "in argument list", token.RParen)
			if p.curIs(token.RParen) {
				break
			}
		}
		arg := p.parseAssignmentExpr()
		p.optArrToPtrDecay(arg)
		var v emitter.Value
		switch {
		case !fnTy.IsNil() && len(args) < len(fnTy.Params()):
			v = p.castExpr(arg, fnTy.Params()[len(args)], false)
		case !fnTy.IsNil() && fnTy.IsVarArg():
			v = p.castExpr(arg, p.defaultArgumentPromotion(arg.ty), false)
		default:
			if !fnTy.IsNil() {
				p.diags.Errorf(arg.loc, "too many arguments to function call, expected %d", len(fnTy.Params()))
			}
			v = p.em.EmitPoison()
		}
		args = append(args, v)
	}
	closeLoc := p.cur.Loc
	p.expect(token.RParen, "to end argument list")

	if !fnTy.IsNil() && len(args) < len(fnTy.Params()) {
		p.diags.Errorf(closeLoc, "too few arguments to function call, expected %d, have %d", len(fnTy.Params()), len(args))
		for len(args) < len(fnTy.Params()) {
			args = append(args, p.em.EmitPoison())
		}
	}

	retTy := p.factory.UndefTy()
	var result emitter.Value
	switch {
	case !fnTy.IsNil() && lhs.val.IsFn():
		retTy = fnTy.Elem()
		result = p.em.EmitCall(p.state.bb, lhs.val, args)
	case !fnTy.IsNil():
		retTy = fnTy.Elem()
		result = p.em.EmitCallPtr(p.state.bb, fnTy, lhs.val, args)
	default:
		result = p.em.EmitPoison()
	}

	return &expr{op: op.Call, ty: retTy, val: result, loc: lhs.loc.Union(closeLoc)}
}

// defaultArgumentPromotion applies the C default promotions to a vararg:
// integer promotion plus float to double.
func (p *Parser) defaultArgumentPromotion(ty types.Type) types.Type {
	if ty.Kind() == types.Float {
		return p.factory.Harden(p.factory.RealTy(types.Double), nil)
	}
	return p.factory.Promote(ty)
}

func (p *Parser) parseMemberAccess(lhs *expr, kind token.Kind, opLoc diag.SrcLoc) *expr {
	p.consumeAnyOf(token.Arrow, token.Period)
	memberTok := p.expect(token.Ident, "after member access operator")
	member := memberTok.Ident

	ptr := lhs.val
	ty := lhs.ty
	if kind == token.Arrow {
		if !ty.IsPointer() {
			p.diags.Errorf(lhs.loc, "member reference type '%s' is not a pointer", ty)
			ptr = p.em.EmitPoison()
			ty = p.factory.UndefTy()
		} else {
			ty = ty.Elem()
			ptr = p.asRVal(lhs)
		}
	}

	var result emitter.Value
	switch ty.Kind() {
	case types.Struct, types.Union:
		idx := ty.MemberIndex(member)
		switch {
		case idx < 0:
			p.diags.Errorf(memberTok.Loc, "no member named '%s' in '%s'", member, ty)
			result = p.em.EmitPoison()
			ty = p.factory.UndefTy()
		case p.state.bb == nil:
			p.diags.Errorf(memberTok.Loc, "member access in constant expression")
			result = p.em.EmitPoison()
			ty = p.factory.UndefTy()
		default:
			if ty.Kind() == types.Struct {
				result = p.em.EmitGEP(p.state.bb, ty, ptr, []uint32{0, uint32(idx)})
			} else {
				result = ptr
			}
			ty = ty.Members()[idx].Ty
		}
	default:
		p.diags.Errorf(lhs.loc, "member reference base type '%s' is not a structure or union", lhs.ty)
		result = p.em.EmitPoison()
		ty = p.factory.UndefTy()
	}
	return &expr{op: op.Member, ty: ty, val: result, loc: lhs.loc.Union(memberTok.Loc), mayBeLval: true}
}

// parsePrimaryExpr parses constants, identifiers, parenthesized expressions
// and casts, sizeof, and the unary prefix operators.
func (p *Parser) parsePrimaryExpr() *expr {
	t := p.cur

	switch {
	case t.IsConst():
		p.next()
		ty := p.factory.FromConstToken(t)
		var value emitter.Value
		if t.Kind >= token.FConst {
			value = p.em.EmitFPConst(ty, t.FVal)
		} else {
			value = p.em.EmitIConst(ty, t.IVal)
		}
		return &expr{ty: ty, val: value, loc: t.Loc}

	case t.Kind == token.StrLit:
		p.next()
		lit := p.em.EmitStringLiteral(t.SVal)
		ty := p.factory.ArrayOf(p.factory.CharTy(), uint64(len(t.SVal))+1)
		ty = p.factory.Harden(ty, nil)
		return &expr{ty: ty, val: lit, loc: t.Loc}

	case t.Kind == token.CharLit:
		p.next()
		if len(t.SVal) > 1 {
			p.diags.Warnf(t.Loc, "multi-character character constant")
		}
		var value int
		for _, c := range []byte(t.SVal) {
			value = value<<8 | int(c)
		}
		ty := p.factory.IntTy(false)
		return &expr{ty: ty, val: p.em.EmitIConst(ty, uint64(int64(value))), loc: t.Loc}

	case t.Kind == token.True, t.Kind == token.False:
		p.next()
		var v uint64
		if t.Kind == token.True {
			v = 1
		}
		return &expr{ty: p.factory.BoolTy(), val: p.em.EmitIConst(p.factory.BoolTy(), v), loc: t.Loc}

	case t.Kind == token.Nullptr:
		p.next()
		return &expr{ty: p.factory.VoidPtrTy(), val: p.em.EmitNullPtr(p.factory.VoidPtrTy()), loc: t.Loc}

	case t.Kind == token.Ident:
		return p.parseIdentExpr()

	case t.Kind == token.LParen:
		p.next()
		if isTypeSpecifierQualifier(p.cur.Kind) {
			// type cast
			loc := p.cur.Loc
			ty := p.parseTypeName()
			p.expect(token.RParen, "to end type cast")
			if p.curIs(token.LBrace) {
				p.diags.Errorf(p.cur.Loc, "compound literals are not supported")
				p.skipBalancedBraces()
				return &expr{ty: p.factory.UndefTy(), val: p.em.EmitPoison(), loc: loc}
			}
			operand := p.parseExpr(2)
			p.optArrToPtrDecay(operand)
			value := p.castExpr(operand, ty, true)
			return &expr{op: op.Cast, ty: ty, val: value, loc: loc.Union(operand.loc)}
		}
		e := p.parseExpr(0)
		p.expect(token.RParen, "to close parenthesized expression")
		return e

	case t.Kind == token.Sizeof:
		p.next()
		paren := p.consumeOpt(token.LParen)
		var ty types.Type
		loc := t.Loc
		if paren && isTypeSpecifierQualifier(p.cur.Kind) {
			ty = p.parseTypeName()
		} else {
			operand := p.parseUnaryExpr()
			ty = operand.ty
			loc = loc.Union(operand.loc)
		}
		if paren {
			loc = loc.Union(p.cur.Loc)
			p.expect(token.RParen, "to end sizeof")
		}
		if !ty.IsNil() && !ty.IsComplete() {
			p.diags.Errorf(loc, "invalid application of 'sizeof' to an incomplete type '%s'", ty)
			return &expr{op: op.SizeOf, ty: p.factory.SizeTy(), val: p.em.EmitPoison(), loc: loc}
		}
		return &expr{op: op.SizeOf, ty: p.factory.SizeTy(), val: p.em.SizeOf(ty), loc: loc}

	case t.Kind == token.Generic:
		p.next()
		p.diags.Errorf(t.Loc, "generic selection is not supported")
		p.skipBalancedParens()
		return &expr{ty: p.factory.UndefTy(), val: p.em.EmitPoison(), loc: t.Loc}
	}

	return p.parseUnaryPrefix(t)
}

// parseIdentExpr resolves an identifier against the ordinary scope, with
// the lazily materialized __func__ special case.
func (p *Parser) parseIdentExpr() *expr {
	t := p.cur
	p.next()
	name := t.Ident

	if info := p.varScope.Find(name); info != nil {
		mayBeLval := info.Val.IsSSA()
		return &expr{ty: info.Ty, val: info.Val, loc: t.Loc, ident: name, mayBeLval: mayBeLval}
	}

	if name == p.funcIdent {
		if p.state.fnName.IsEmpty() {
			p.diags.Errorf(t.Loc, "'__func__' is only allowed inside a function")
			return &expr{ty: p.factory.UndefTy(), val: p.em.EmitPoison(), loc: t.Loc}
		}
		fnName := p.state.fnName.String()
		ty := p.factory.Harden(p.factory.ArrayOf(p.factory.CharTy(), uint64(len(fnName))+1), nil)
		if p.state.funcVar.IsZero() {
			lit := p.em.EmitStringLiteral(fnName)
			p.state.funcVar = p.em.EmitGlobalVar(ty, strpool.Intern("__func__."+fnName))
			p.em.SetGlobalInit(p.state.funcVar, lit)
		}
		return &expr{ty: ty, val: p.state.funcVar, loc: t.Loc, ident: name, mayBeLval: true}
	}

	p.diags.Errorf(t.Loc.Truncate(0), "use of undeclared identifier '%s'", name)
	return &expr{ty: p.factory.UndefTy(), val: p.em.EmitPoison(), loc: t.Loc, ident: name}
}

// parseUnaryPrefix handles the prefix operators; t is the operator token,
// still current.
func (p *Parser) parseUnaryPrefix(t token.Token) *expr {
	switch t.Kind {
	case token.Inc, token.Dec, token.Plus, token.Minus, token.Not, token.Tilde, token.Mul, token.Amp:
	default:
		p.diags.Errorf(t.Loc, "expected expression")
		// leave tokens the enclosing production will consume in place
		switch t.Kind {
		case token.Semi, token.RParen, token.RBrace, token.RBrack, token.Comma, token.Colon, token.EOF:
		default:
			p.next()
		}
		return &expr{ty: p.factory.UndefTy(), val: p.em.EmitPoison(), loc: t.Loc}
	}
	p.next()
	operand := p.parseExpr(2)
	if t.Kind != token.Amp {
		p.optArrToPtrDecay(operand)
	}

	var kind op.Kind
	var ty types.Type
	var value emitter.Value

	switch t.Kind {
	case token.Inc, token.Dec:
		kind = op.PreInc
		if t.Kind == token.Dec {
			kind = op.PreDec
		}
		switch {
		case operand.ty.Qual.Const:
			p.errorAssignToConst(operand.loc, operand.ty, operand.ident)
			value = p.em.EmitPoison()
			ty = p.factory.UndefTy()
		case !operand.mayBeLval || !operand.val.IsSSA():
			p.diags.Errorf(operand.loc, "lvalue required as increment/decrement operand")
			value = p.em.EmitPoison()
			ty = p.factory.UndefTy()
		default:
			value = p.em.EmitIncDec(p.state.bb, operand.ty, kind, operand.val)
			ty = operand.ty
		}

	case token.Plus:
		kind = op.UnaryPlus
		ty = p.factory.Promote(operand.ty)
		value = p.castExpr(operand, ty, false)

	case token.Minus:
		kind = op.UnaryMinus
		ty = p.factory.Promote(operand.ty)
		value = p.castExpr(operand, ty, false)
		value = p.emitNeg(ty, value)

	case token.Not:
		kind = op.LNot
		ty = p.factory.BoolTy()
		value = p.isTruthy(operand)
		value = p.emitBinValue(ty, op.Eq, value, p.em.EmitIConst(ty, 0), emitter.Value{})

	case token.Tilde:
		kind = op.BWNot
		if !operand.ty.IsNil() && operand.ty.IsFloating() {
			p.diags.Errorf(t.Loc.Union(operand.loc), "invalid argument type '%s' to unary expression", operand.ty)
			ty = p.factory.UndefTy()
			value = p.em.EmitPoison()
			break
		}
		ty = p.factory.Promote(operand.ty)
		value = p.castExpr(operand, ty, false)
		value = p.emitBWNeg(ty, value)

	case token.Mul:
		kind = op.Deref
		if operand.ty.IsPointer() {
			pointee := operand.ty.Elem()
			if !pointee.IsComplete() && !pointee.IsFn() {
				p.diags.Errorf(operand.loc, "indirection on pointer to incomplete type '%s'", pointee)
				value = p.em.EmitPoison()
			} else {
				value = p.asRVal(operand)
			}
			ty = pointee
		} else {
			value = p.em.EmitPoison()
			ty = p.factory.UndefTy()
			p.diags.Errorf(t.Loc.Union(operand.loc), "indirection requires pointer operand ('%s' invalid)", operand.ty)
		}

	case token.Amp:
		kind = op.AddrOf
		if operand.mayBeLval {
			value = operand.val
			ty = p.factory.PtrTo(operand.ty)
			ty = p.factory.Harden(ty, nil)
			p.factory.ClearFragments()
		} else {
			value = p.em.EmitPoison()
			ty = p.factory.UndefTy()
			p.diags.Errorf(operand.loc, "cannot take the address of an rvalue")
		}
	}

	e := &expr{op: kind, ty: ty, val: value, loc: t.Loc.Union(operand.loc)}
	if kind == op.Deref {
		e.mayBeLval = true
	}
	return e
}

// skipBalancedBraces consumes a brace-balanced token run, recovering from
// unsupported constructs.
func (p *Parser) skipBalancedBraces() {
	p.skipBalanced(token.LBrace, token.RBrace)
}

func (p *Parser) skipBalancedParens() {
	p.skipBalanced(token.LParen, token.RParen)
}

func (p *Parser) skipBalanced(open, close token.Kind) {
	if !p.curIs(open) {
		return
	}
	depth := 0
	for !p.curIs(token.EOF) {
		switch p.cur.Kind {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				p.next()
				return
			}
		}
		p.next()
	}
}
