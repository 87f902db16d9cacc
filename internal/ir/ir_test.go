package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/qcp/internal/emitter"
	"github.com/funvibe/qcp/internal/op"
	"github.com/funvibe/qcp/internal/strpool"
	"github.com/funvibe/qcp/internal/types"
)

func setup() (*Emitter, *types.Factory) {
	e := New(types.DefaultTarget)
	f := types.NewFactory(e, types.DefaultTarget)
	return e, f
}

func TestConstBinOpFolding(t *testing.T) {
	e, f := setup()
	intTy := f.IntTy(false)
	uintTy := f.IntTy(true)

	tests := []struct {
		name string
		ty   types.Type
		kind op.Kind
		a, b uint64
		want uint64
	}{
		{"add", intTy, op.Add, 2, 3, 5},
		{"sub wraps", intTy, op.Sub, 2, 3, 0xffffffff},
		{"mul", intTy, op.Mul, 6, 7, 42},
		{"sdiv", intTy, op.Div, 0xfffffffa, 2, 0xfffffffd}, // -6 / 2 == -3
		{"udiv", uintTy, op.Div, 0xfffffffa, 2, 0x7ffffffd},
		{"rem", intTy, op.Rem, 7, 3, 1},
		{"shl", intTy, op.Shl, 1, 4, 16},
		{"and", intTy, op.BWAnd, 0b1100, 0b1010, 0b1000},
		{"or", intTy, op.BWOr, 0b1100, 0b1010, 0b1110},
		{"xor", intTy, op.BWXor, 0b1100, 0b1010, 0b0110},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := e.EmitConstBinOp(tc.ty, tc.kind,
				e.EmitIConst(tc.ty, tc.a), e.EmitIConst(tc.ty, tc.b))
			require.True(t, got.IsIConst())
			assert.Equal(t, tc.want, e.UIntegerValue(got))
		})
	}
}

func TestConstComparisons(t *testing.T) {
	e, f := setup()
	intTy := f.IntTy(false)
	minusOne := e.EmitIConst(intTy, 0xffffffff)
	two := e.EmitIConst(intTy, 2)

	lt := e.EmitConstBinOp(intTy, op.Lt, minusOne, two)
	require.True(t, lt.IsIConst())
	assert.Equal(t, uint64(1), e.UIntegerValue(lt), "-1 < 2 must hold for signed int")

	ult := e.EmitConstBinOp(f.IntTy(true), op.Lt, minusOne, two)
	assert.Equal(t, uint64(0), e.UIntegerValue(ult), "0xffffffff < 2 must not hold unsigned")
}

func TestDivByZeroConstIsPoison(t *testing.T) {
	e, f := setup()
	intTy := f.IntTy(false)
	got := e.EmitConstBinOp(intTy, op.Div, e.EmitIConst(intTy, 1), e.EmitIConst(intTy, 0))
	c := constOf(got)
	require.NotNil(t, c)
	assert.Equal(t, ConstPoison, c.Kind)
}

func TestConstCast(t *testing.T) {
	e, f := setup()
	charTy := f.CharTy()
	intTy := f.IntTy(false)
	doubleTy := f.Harden(f.RealTy(types.Double), nil)
	f.ClearFragments()

	// sext a negative char
	v := e.EmitConstCast(charTy, e.EmitIConst(charTy, 0xff), intTy, types.Sext)
	assert.Equal(t, int64(-1), e.IntegerValue(v))

	// zext
	v = e.EmitConstCast(charTy, e.EmitIConst(charTy, 0xff), intTy, types.Zext)
	assert.Equal(t, uint64(0xff), e.UIntegerValue(v))

	// int -> double -> int
	d := e.EmitConstCast(intTy, e.EmitIConst(intTy, 41), doubleTy, types.SIToFP)
	back := e.EmitConstCast(doubleTy, d, intTy, types.FPToSI)
	assert.Equal(t, uint64(41), e.UIntegerValue(back))
}

func TestFoldEqualsEmittedInstruction(t *testing.T) {
	// folding a constant op must agree with emitting the instruction and
	// reading back its operand semantics
	e, f := setup()
	intTy := f.IntTy(false)

	folded := e.EmitConstBinOp(intTy, op.Add, e.EmitIConst(intTy, 40), e.EmitIConst(intTy, 2))

	fnTy := f.Harden(f.Function(intTy, nil, false), nil)
	f.ClearFragments()
	proto := e.EmitFnProto(fnTy, false, false, strpool.Intern("t"))
	bb := e.EmitFn(proto)
	inst := e.EmitBinOp(bb, intTy, op.Add, e.EmitIConst(intTy, 40), e.EmitIConst(intTy, 2), emitter.Value{})

	in := inst.Ref.(*Instr)
	a := in.Args[0].(*Const)
	b := in.Args[1].(*Const)
	assert.Equal(t, e.UIntegerValue(folded), a.I+b.I)
}

func TestBlockKeepsFirstTerminator(t *testing.T) {
	e, f := setup()
	intTy := f.IntTy(false)
	fnTy := f.Harden(f.Function(intTy, nil, false), nil)
	f.ClearFragments()

	proto := e.EmitFnProto(fnTy, false, false, strpool.Intern("g"))
	entry := e.EmitFn(proto)
	other := e.EmitBB(proto, nil, 0)

	e.EmitRet(entry, e.EmitIConst(intTy, 1))
	e.EmitJump(entry, other) // must not replace the ret

	b := entry.(*Block)
	require.NotNil(t, b.Term)
	assert.Equal(t, OpRet, b.Term.Op)
}

func TestIncDecReturnsOldValueForPostfix(t *testing.T) {
	e, f := setup()
	intTy := f.IntTy(false)
	fnTy := f.Harden(f.Function(intTy, nil, false), nil)
	f.ClearFragments()

	proto := e.EmitFnProto(fnTy, false, false, strpool.Intern("h"))
	entry := e.EmitFn(proto)
	v := e.EmitLocalVar(proto, entry, intTy, strpool.Intern("x"), false)

	old := e.EmitIncDec(entry, intTy, op.PostInc, v)
	require.True(t, old.IsSSA())
	assert.Equal(t, OpLoad, old.Ref.(*Instr).Op, "postfix ++ must yield the pre-increment value")

	upd := e.EmitIncDec(entry, intTy, op.PreDec, v)
	assert.Equal(t, OpBin, upd.Ref.(*Instr).Op, "prefix -- must yield the updated value")
}

func TestDump(t *testing.T) {
	e, f := setup()
	intTy := f.IntTy(false)
	fnTy := f.Harden(f.Function(intTy, nil, false), nil)
	f.ClearFragments()

	proto := e.EmitFnProto(fnTy, false, false, strpool.Intern("answer"))
	entry := e.EmitFn(proto)
	e.EmitRet(entry, e.EmitIConst(intTy, 42))

	out := e.Mod.String()
	assert.Contains(t, out, "define int () @answer {")
	assert.Contains(t, out, "ret 42")
}
