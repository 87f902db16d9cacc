// Package emitter defines the abstract IR contract the parser lowers
// through. A backend maps these operations onto its own representation; the
// reference backend lives in internal/ir.
package emitter

import (
	"github.com/funvibe/qcp/internal/op"
	"github.com/funvibe/qcp/internal/strpool"
	"github.com/funvibe/qcp/internal/types"
)

// Block and Switch are opaque backend handles.
type (
	Block  interface{}
	Switch interface{}
)

// ValueKind discriminates the value variant the parser computes with:
// runtime SSA values, folded constants (integer constants kept separate so
// case labels and array sizes can read them back), and function references.
type ValueKind int

const (
	NoValue ValueKind = iota
	SSAValue
	ConstValue
	IConstValue
	FnValue
)

// Value is a tagged reference to a backend value.
type Value struct {
	Kind ValueKind
	Ref  any
}

func SSA(ref any) Value    { return Value{Kind: SSAValue, Ref: ref} }
func Const(ref any) Value  { return Value{Kind: ConstValue, Ref: ref} }
func IConst(ref any) Value { return Value{Kind: IConstValue, Ref: ref} }
func Fn(ref any) Value     { return Value{Kind: FnValue, Ref: ref} }

func (v Value) IsZero() bool { return v.Kind == NoValue }
func (v Value) IsSSA() bool  { return v.Kind == SSAValue }
func (v Value) IsFn() bool   { return v.Kind == FnValue }

// IsConst reports whether v is a folded constant of either flavour.
func (v Value) IsConst() bool {
	return v.Kind == ConstValue || v.Kind == IConstValue
}

func (v Value) IsIConst() bool { return v.Kind == IConstValue }

// PhiIncoming pairs a value with its predecessor block.
type PhiIncoming struct {
	V  Value
	BB Block
}

// Emitter is everything the parser asks of a backend. Type lowering is the
// embedded types.TypeBackend slice; the rest creates constants, globals,
// functions, blocks, instructions and terminators.
//
// Poison is the error sentinel: the parser requests it whenever it must
// produce a value after a diagnosed error so the emitted IR stays
// well-formed.
type Emitter interface {
	types.TypeBackend

	// constants
	EmitIConst(ty types.Type, v uint64) Value
	EmitFPConst(ty types.Type, v float64) Value
	EmitNullPtr(ty types.Type) Value
	EmitZeroConst(ty types.Type) Value
	EmitArrayConst(ty types.Type, elems []Value) Value
	EmitArrayConstSplat(ty types.Type, elem Value) Value
	EmitStructConst(ty types.Type, elems []Value) Value
	EmitStringLiteral(s string) Value
	UIntegerValue(c Value) uint64
	IntegerValue(c Value) int64

	// globals and functions
	EmitGlobalVar(ty types.Type, name strpool.Ident) Value
	SetGlobalInit(gv Value, init Value)
	ZeroInitGlobal(ty types.Type, gv Value)
	EmitFnProto(fnTy types.Type, inline, noreturn bool, name strpool.Ident) Value
	EmitFn(proto Value) Block
	IsFnProto(fn Value) bool
	Param(fn Value, i int) Value

	// blocks and locals
	EmitBB(fn Value, insertBefore Block, name strpool.Ident) Block
	EmitLocalVar(fn Value, entry Block, ty types.Type, name strpool.Ident, atBegin bool) Value
	EmitLoad(bb Block, ty types.Type, ptr Value, name strpool.Ident) Value
	EmitStore(bb Block, ty types.Type, v Value, ptr Value)

	// terminators
	EmitJump(bb, target Block)
	EmitBranch(bb Block, trueBB, falseBB Block, cond Value)
	EmitRet(bb Block, v Value)
	EmitSwitch(bb Block, v Value) Switch
	AddSwitchCase(sw Switch, c Value, target Block)
	AddSwitchDefault(sw Switch, target Block)

	// computation
	EmitPhi(bb Block, ty types.Type, incoming []PhiIncoming) Value
	EmitBinOp(bb Block, ty types.Type, kind op.Kind, lhs, rhs Value, dest Value) Value
	EmitConstBinOp(ty types.Type, kind op.Kind, lhs, rhs Value) Value
	EmitIncDec(bb Block, ty types.Type, kind op.Kind, ptr Value) Value
	EmitNeg(bb Block, ty types.Type, v Value) Value
	EmitConstNeg(ty types.Type, v Value) Value
	EmitBWNeg(bb Block, ty types.Type, v Value) Value
	EmitConstBWNeg(ty types.Type, v Value) Value
	EmitCast(bb Block, from types.Type, v Value, to types.Type, cast types.Cast) Value
	EmitConstCast(from types.Type, v Value, to types.Type, cast types.Cast) Value
	EmitGEP(bb Block, ty types.Type, ptr Value, indices []uint32) Value
	EmitGEPDyn(bb Block, ty types.Type, ptr Value, idx Value) Value
	EmitCall(bb Block, fn Value, args []Value) Value
	EmitCallPtr(bb Block, fnTy types.Type, fnPtr Value, args []Value) Value
	SizeOf(ty types.Type) Value

	// sentinels
	EmitUndef() Value
	EmitPoison() Value
}
