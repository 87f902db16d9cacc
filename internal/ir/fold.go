package ir

import (
	"math"

	"github.com/funvibe/qcp/internal/emitter"
	"github.com/funvibe/qcp/internal/op"
	"github.com/funvibe/qcp/internal/types"
)

// EmitConstBinOp folds a binary operation over two constants. Comparison
// results are produced as i1 integer constants. Integer division or
// remainder by a zero constant yields poison; floating operands fold with
// Go float semantics.
func (e *Emitter) EmitConstBinOp(ty types.Type, kind op.Kind, lhs, rhs emitter.Value) emitter.Value {
	a, b := constOf(lhs), constOf(rhs)
	if a == nil || b == nil || a.Kind == ConstPoison || b.Kind == ConstPoison {
		return e.EmitPoison()
	}

	if a.Kind == ConstFloat || b.Kind == ConstFloat {
		return e.foldFloat(ty, kind, a, b)
	}
	return e.foldInt(ty, kind, a, b)
}

func boolConst(v bool) *Const {
	c := &Const{Kind: ConstInt}
	if v {
		c.I = 1
	}
	return c
}

func (e *Emitter) foldInt(ty types.Type, kind op.Kind, a, b *Const) emitter.Value {
	x, y := a.I, b.I
	signed := !ty.IsNil() && ty.IsSigned()
	sx, sy := e.signExtend(orTy(a.Ty, ty), x), e.signExtend(orTy(b.Ty, ty), y)

	var r uint64
	switch kind.Binary() {
	case op.Add:
		r = x + y
	case op.Sub:
		r = x - y
	case op.Mul:
		r = x * y
	case op.Div:
		if y == 0 {
			return e.EmitPoison()
		}
		if signed {
			r = uint64(sx / sy)
		} else {
			r = x / y
		}
	case op.Rem:
		if y == 0 {
			return e.EmitPoison()
		}
		if signed {
			r = uint64(sx % sy)
		} else {
			r = x % y
		}
	case op.Shl:
		r = x << (y & 63)
	case op.Shr:
		if signed {
			r = uint64(sx >> (y & 63))
		} else {
			r = x >> (y & 63)
		}
	case op.BWAnd:
		r = x & y
	case op.BWXor:
		r = x ^ y
	case op.BWOr:
		r = x | y
	case op.Lt, op.Le, op.Gt, op.Ge, op.Eq, op.Ne:
		var res bool
		switch kind {
		case op.Eq:
			res = x == y
		case op.Ne:
			res = x != y
		case op.Lt:
			res = lt(signed, sx, sy, x, y)
		case op.Gt:
			res = lt(signed, sy, sx, y, x)
		case op.Le:
			res = !lt(signed, sy, sx, y, x)
		case op.Ge:
			res = !lt(signed, sx, sy, x, y)
		}
		return emitter.IConst(boolConst(res))
	default:
		return e.EmitPoison()
	}
	return e.EmitIConst(ty, r)
}

func lt(signed bool, sx, sy int64, x, y uint64) bool {
	if signed {
		return sx < sy
	}
	return x < y
}

func orTy(a, b types.Type) types.Type {
	if a.IsNil() {
		return b
	}
	return a
}

func (e *Emitter) foldFloat(ty types.Type, kind op.Kind, a, b *Const) emitter.Value {
	x, y := a.asFloat(e), b.asFloat(e)
	var r float64
	switch kind.Binary() {
	case op.Add:
		r = x + y
	case op.Sub:
		r = x - y
	case op.Mul:
		r = x * y
	case op.Div:
		r = x / y
	case op.Rem:
		r = math.Mod(x, y)
	case op.Lt, op.Le, op.Gt, op.Ge, op.Eq, op.Ne:
		var res bool
		switch kind {
		case op.Eq:
			res = x == y
		case op.Ne:
			res = x != y
		case op.Lt:
			res = x < y
		case op.Le:
			res = x <= y
		case op.Gt:
			res = x > y
		case op.Ge:
			res = x >= y
		}
		return emitter.IConst(boolConst(res))
	default:
		return e.EmitPoison()
	}
	return e.EmitFPConst(ty, r)
}

func (c *Const) asFloat(e *Emitter) float64 {
	if c.Kind == ConstFloat {
		return c.F
	}
	if !c.Ty.IsNil() && c.Ty.IsSigned() {
		return float64(e.signExtend(c.Ty, c.I))
	}
	return float64(c.I)
}

func (e *Emitter) EmitConstNeg(ty types.Type, v emitter.Value) emitter.Value {
	c := constOf(v)
	if c == nil || c.Kind == ConstPoison {
		return e.EmitPoison()
	}
	if c.Kind == ConstFloat {
		return e.EmitFPConst(ty, -c.F)
	}
	return e.EmitIConst(ty, -c.I)
}

func (e *Emitter) EmitConstBWNeg(ty types.Type, v emitter.Value) emitter.Value {
	c := constOf(v)
	if c == nil || c.Kind != ConstInt {
		return e.EmitPoison()
	}
	return e.EmitIConst(ty, ^c.I)
}

// EmitConstCast converts a constant between arithmetic and pointer types.
func (e *Emitter) EmitConstCast(from types.Type, v emitter.Value, to types.Type, cast types.Cast) emitter.Value {
	c := constOf(v)
	if c == nil || c.Kind == ConstPoison {
		return e.EmitPoison()
	}
	switch cast {
	case types.Trunc, types.Zext:
		return e.EmitIConst(to, c.I)
	case types.Sext:
		return e.EmitIConst(to, uint64(e.signExtend(from, c.I)))
	case types.SIToFP:
		return e.EmitFPConst(to, float64(e.signExtend(from, c.I)))
	case types.UIToFP:
		return e.EmitFPConst(to, float64(c.I))
	case types.FPToSI:
		return e.EmitIConst(to, uint64(int64(c.F)))
	case types.FPToUI:
		return e.EmitIConst(to, uint64(c.F))
	case types.FPTrunc, types.FPExt:
		return e.EmitFPConst(to, c.F)
	case types.IntToPtr:
		if c.I == 0 {
			return e.EmitNullPtr(to)
		}
		return emitter.Const(&Const{Kind: ConstInt, Ty: to, I: c.I})
	case types.PtrToInt:
		return e.EmitIConst(to, c.I)
	case types.Bitcast:
		return v
	}
	return e.EmitPoison()
}
