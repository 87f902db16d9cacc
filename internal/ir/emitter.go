package ir

import (
	"github.com/funvibe/qcp/internal/emitter"
	"github.com/funvibe/qcp/internal/op"
	"github.com/funvibe/qcp/internal/strpool"
	"github.com/funvibe/qcp/internal/types"
)

// Emitter builds a Module in memory. It implements emitter.Emitter.
type Emitter struct {
	Target types.Target
	Mod    *Module

	undef  *Const
	poison *Const
	// poisonInstr stands in for calls requested without a block, so the
	// parser can tell "runtime value in constant context" apart from a
	// folded poison constant. Other blockless requests return the poison
	// constant.
	poisonInstr *Instr
}

func New(target types.Target) *Emitter {
	return &Emitter{
		Target:      target,
		Mod:         &Module{},
		undef:       &Const{Kind: ConstUndef},
		poison:      &Const{Kind: ConstPoison},
		poisonInstr: &Instr{Op: "poison"},
	}
}

var _ emitter.Emitter = (*Emitter)(nil)

// type lowering (types.TypeBackend)

func (e *Emitter) IntTy(bits uint, unsigned bool) types.BackendType {
	return &Ty{Kind: TyInt, Bits: bits, Unsigned: unsigned}
}

func (e *Emitter) FloatTy(kind types.Kind) types.BackendType {
	bits := uint(64)
	switch kind {
	case types.Float, types.Decimal32:
		bits = 32
	case types.LongDouble, types.Decimal128:
		bits = 128
	}
	return &Ty{Kind: TyFloat, Bits: bits}
}

func (e *Emitter) VoidTy() types.BackendType {
	return &Ty{Kind: TyVoid}
}

func (e *Emitter) PtrTy(elem types.BackendType) types.BackendType {
	t, _ := elem.(*Ty)
	return &Ty{Kind: TyPtr, Elem: t}
}

func (e *Emitter) ArrayTy(elem types.BackendType, n uint64) types.BackendType {
	t, _ := elem.(*Ty)
	return &Ty{Kind: TyArray, Elem: t, N: n}
}

func (e *Emitter) StructTy(fields []types.BackendType, incomplete bool, name strpool.Ident) types.BackendType {
	tys := make([]*Ty, len(fields))
	for i, f := range fields {
		tys[i], _ = f.(*Ty)
	}
	return &Ty{Kind: TyStruct, Fields: tys, Incomplete: incomplete, Name: name}
}

func (e *Emitter) FnTy(ret types.BackendType, params []types.BackendType, varargs bool) types.BackendType {
	r, _ := ret.(*Ty)
	tys := make([]*Ty, len(params))
	for i, p := range params {
		tys[i], _ = p.(*Ty)
	}
	return &Ty{Kind: TyFn, Ret: r, Params: tys, VarArgs: varargs}
}

// constants

func (e *Emitter) bits(ty types.Type) uint {
	switch ty.Kind() {
	case types.Bool:
		return 1
	case types.Char:
		return e.Target.CharBits
	case types.Short:
		return e.Target.ShortBits
	case types.Int:
		return e.Target.IntBits
	case types.Long:
		return e.Target.LongBits
	case types.LongLong:
		return e.Target.LongLongBits
	case types.Enum:
		if u := ty.Elem(); !u.IsNil() {
			return e.bits(u)
		}
		return e.Target.IntBits
	}
	return 64
}

// truncate masks v to the bit width of ty.
func (e *Emitter) truncate(ty types.Type, v uint64) uint64 {
	bits := e.bits(ty)
	if bits >= 64 {
		return v
	}
	return v & (1<<bits - 1)
}

// signExtend reinterprets the raw bits of v at ty's width as a signed value.
func (e *Emitter) signExtend(ty types.Type, v uint64) int64 {
	bits := e.bits(ty)
	if bits >= 64 {
		return int64(v)
	}
	shift := 64 - bits
	return int64(v<<shift) >> shift
}

func (e *Emitter) EmitIConst(ty types.Type, v uint64) emitter.Value {
	return emitter.IConst(&Const{Kind: ConstInt, Ty: ty, I: e.truncate(ty, v)})
}

func (e *Emitter) EmitFPConst(ty types.Type, v float64) emitter.Value {
	return emitter.Const(&Const{Kind: ConstFloat, Ty: ty, F: v})
}

func (e *Emitter) EmitNullPtr(ty types.Type) emitter.Value {
	return emitter.Const(&Const{Kind: ConstNull, Ty: ty})
}

func (e *Emitter) EmitZeroConst(ty types.Type) emitter.Value {
	if ty.IsInteger() {
		return e.EmitIConst(ty, 0)
	}
	if ty.IsFloating() {
		return e.EmitFPConst(ty, 0)
	}
	return emitter.Const(&Const{Kind: ConstZero, Ty: ty})
}

func constOf(v emitter.Value) *Const {
	c, _ := v.Ref.(*Const)
	return c
}

func (e *Emitter) EmitArrayConst(ty types.Type, elems []emitter.Value) emitter.Value {
	cs := make([]*Const, len(elems))
	for i, v := range elems {
		cs[i] = constOf(v)
	}
	return emitter.Const(&Const{Kind: ConstArray, Ty: ty, Elems: cs})
}

func (e *Emitter) EmitArrayConstSplat(ty types.Type, elem emitter.Value) emitter.Value {
	n := ty.ArrayLen()
	cs := make([]*Const, n)
	for i := range cs {
		cs[i] = constOf(elem)
	}
	return emitter.Const(&Const{Kind: ConstArray, Ty: ty, Elems: cs})
}

func (e *Emitter) EmitStructConst(ty types.Type, elems []emitter.Value) emitter.Value {
	cs := make([]*Const, len(elems))
	for i, v := range elems {
		cs[i] = constOf(v)
	}
	return emitter.Const(&Const{Kind: ConstStruct, Ty: ty, Elems: cs})
}

func (e *Emitter) EmitStringLiteral(s string) emitter.Value {
	return emitter.Const(&Const{Kind: ConstStr, Str: s})
}

func (e *Emitter) UIntegerValue(v emitter.Value) uint64 {
	if c := constOf(v); c != nil {
		return c.I
	}
	return 0
}

func (e *Emitter) IntegerValue(v emitter.Value) int64 {
	if c := constOf(v); c != nil {
		if c.Ty.IsNil() {
			return int64(c.I)
		}
		return e.signExtend(c.Ty, c.I)
	}
	return 0
}

// globals and functions

func (e *Emitter) EmitGlobalVar(ty types.Type, name strpool.Ident) emitter.Value {
	g := &Global{Name: name, Ty: ty}
	e.Mod.Globals = append(e.Mod.Globals, g)
	return emitter.SSA(g)
}

func (e *Emitter) SetGlobalInit(gv emitter.Value, init emitter.Value) {
	if g, ok := gv.Ref.(*Global); ok {
		g.Init = constOf(init)
		g.Zero = false
	}
}

func (e *Emitter) ZeroInitGlobal(ty types.Type, gv emitter.Value) {
	if g, ok := gv.Ref.(*Global); ok {
		g.Zero = true
	}
}

func (e *Emitter) EmitFnProto(fnTy types.Type, inline, noreturn bool, name strpool.Ident) emitter.Value {
	f := &Func{Name: name, Ty: fnTy, Proto: true, Inline: inline, Noreturn: noreturn}
	e.Mod.Funcs = append(e.Mod.Funcs, f)
	return emitter.Fn(f)
}

func (e *Emitter) EmitFn(proto emitter.Value) emitter.Block {
	f, ok := proto.Ref.(*Func)
	if !ok {
		return nil
	}
	f.Proto = false
	for i := range f.Ty.Params() {
		f.Params = append(f.Params, &Instr{Op: OpParam, ID: i, Ty: f.Ty.Params()[i]})
	}
	return e.EmitBB(proto, nil, strpool.Intern("entry"))
}

func (e *Emitter) IsFnProto(fn emitter.Value) bool {
	f, ok := fn.Ref.(*Func)
	return ok && f.Proto
}

func (e *Emitter) Param(fn emitter.Value, i int) emitter.Value {
	f, ok := fn.Ref.(*Func)
	if !ok || i >= len(f.Params) {
		return e.EmitPoison()
	}
	return emitter.SSA(f.Params[i])
}

// blocks and locals

func blockOf(bb emitter.Block) *Block {
	b, _ := bb.(*Block)
	return b
}

func (e *Emitter) EmitBB(fn emitter.Value, insertBefore emitter.Block, name strpool.Ident) emitter.Block {
	f, ok := fn.Ref.(*Func)
	if !ok {
		return nil
	}
	b := &Block{Fn: f, ID: f.nextID, Name: name}
	f.nextID++
	if before := blockOf(insertBefore); before != nil {
		for i, x := range f.Blocks {
			if x == before {
				f.Blocks = append(f.Blocks[:i], append([]*Block{b}, f.Blocks[i:]...)...)
				return b
			}
		}
	}
	f.Blocks = append(f.Blocks, b)
	return b
}

func (e *Emitter) newInstr(f *Func, o Op) *Instr {
	in := &Instr{Op: o, ID: f.nextID}
	f.nextID++
	return in
}

func (e *Emitter) EmitLocalVar(fn emitter.Value, entry emitter.Block, ty types.Type, name strpool.Ident, atBegin bool) emitter.Value {
	f, ok := fn.Ref.(*Func)
	b := blockOf(entry)
	if !ok || b == nil {
		return e.EmitPoison()
	}
	in := e.newInstr(f, OpAlloca)
	in.Ty = ty
	in.Name = name
	if atBegin {
		b.Instrs = append([]*Instr{in}, b.Instrs...)
	} else {
		b.append(in)
	}
	return emitter.SSA(in)
}

func (e *Emitter) EmitLoad(bb emitter.Block, ty types.Type, ptr emitter.Value, name strpool.Ident) emitter.Value {
	b := blockOf(bb)
	if b == nil {
		return e.EmitPoison()
	}
	in := e.newInstr(b.Fn, OpLoad)
	in.Ty = ty
	in.Name = name
	in.Args = []any{ptr.Ref}
	b.append(in)
	return emitter.SSA(in)
}

func (e *Emitter) EmitStore(bb emitter.Block, ty types.Type, v emitter.Value, ptr emitter.Value) {
	b := blockOf(bb)
	if b == nil {
		return
	}
	in := e.newInstr(b.Fn, OpStore)
	in.Ty = ty
	in.Args = []any{v.Ref, ptr.Ref}
	b.append(in)
}

// terminators

func (e *Emitter) EmitJump(bb, target emitter.Block) {
	b, t := blockOf(bb), blockOf(target)
	if b == nil || t == nil {
		return
	}
	in := e.newInstr(b.Fn, OpJump)
	in.Targets = []*Block{t}
	b.terminate(in)
}

func (e *Emitter) EmitBranch(bb emitter.Block, trueBB, falseBB emitter.Block, cond emitter.Value) {
	b := blockOf(bb)
	if b == nil {
		return
	}
	in := e.newInstr(b.Fn, OpBranch)
	in.Args = []any{cond.Ref}
	in.Targets = []*Block{blockOf(trueBB), blockOf(falseBB)}
	b.terminate(in)
}

func (e *Emitter) EmitRet(bb emitter.Block, v emitter.Value) {
	b := blockOf(bb)
	if b == nil {
		return
	}
	in := e.newInstr(b.Fn, OpRet)
	if !v.IsZero() {
		in.Args = []any{v.Ref}
	}
	b.terminate(in)
}

func (e *Emitter) EmitSwitch(bb emitter.Block, v emitter.Value) emitter.Switch {
	b := blockOf(bb)
	if b == nil {
		return nil
	}
	in := e.newInstr(b.Fn, OpSwitch)
	in.Args = []any{v.Ref}
	b.terminate(in)
	return in
}

func (e *Emitter) AddSwitchCase(sw emitter.Switch, c emitter.Value, target emitter.Block) {
	in, ok := sw.(*Instr)
	if !ok {
		return
	}
	in.Cases = append(in.Cases, SwitchCase{Value: constOf(c), Target: blockOf(target)})
}

func (e *Emitter) AddSwitchDefault(sw emitter.Switch, target emitter.Block) {
	in, ok := sw.(*Instr)
	if !ok || in.DefaultBB != nil {
		return
	}
	in.DefaultBB = blockOf(target)
}

// computation

func (e *Emitter) EmitPhi(bb emitter.Block, ty types.Type, incoming []emitter.PhiIncoming) emitter.Value {
	b := blockOf(bb)
	if b == nil {
		return e.EmitPoison()
	}
	in := e.newInstr(b.Fn, OpPhi)
	in.Ty = ty
	for _, inc := range incoming {
		in.Args = append(in.Args, inc.V.Ref)
		in.Incoming = append(in.Incoming, blockOf(inc.BB))
	}
	// phis go before ordinary instructions
	b.Instrs = append([]*Instr{in}, b.Instrs...)
	return emitter.SSA(in)
}

func (e *Emitter) EmitBinOp(bb emitter.Block, ty types.Type, kind op.Kind, lhs, rhs emitter.Value, dest emitter.Value) emitter.Value {
	b := blockOf(bb)
	if b == nil {
		return e.EmitPoison()
	}
	in := e.newInstr(b.Fn, OpBin)
	in.Ty = ty
	in.BinOp = int(kind)
	in.Args = []any{lhs.Ref, rhs.Ref}
	b.append(in)
	if !dest.IsZero() {
		e.EmitStore(bb, ty, emitter.SSA(in), dest)
	}
	return emitter.SSA(in)
}

func (e *Emitter) EmitIncDec(bb emitter.Block, ty types.Type, kind op.Kind, ptr emitter.Value) emitter.Value {
	b := blockOf(bb)
	if b == nil {
		return e.EmitPoison()
	}
	old := e.EmitLoad(bb, ty, ptr, 0)
	one := e.EmitIConst(ty, 1)
	binKind := op.Add
	if kind == op.PreDec || kind == op.PostDec {
		binKind = op.Sub
	}
	updated := e.EmitBinOp(bb, ty, binKind, old, one, emitter.Value{})
	e.EmitStore(bb, ty, updated, ptr)
	if kind == op.PreInc || kind == op.PreDec {
		return updated
	}
	return old
}

func (e *Emitter) EmitNeg(bb emitter.Block, ty types.Type, v emitter.Value) emitter.Value {
	return e.unop(bb, OpNeg, ty, v)
}

func (e *Emitter) EmitBWNeg(bb emitter.Block, ty types.Type, v emitter.Value) emitter.Value {
	return e.unop(bb, OpBWNeg, ty, v)
}

func (e *Emitter) unop(bb emitter.Block, o Op, ty types.Type, v emitter.Value) emitter.Value {
	b := blockOf(bb)
	if b == nil {
		return e.EmitPoison()
	}
	in := e.newInstr(b.Fn, o)
	in.Ty = ty
	in.Args = []any{v.Ref}
	b.append(in)
	return emitter.SSA(in)
}

func (e *Emitter) EmitCast(bb emitter.Block, from types.Type, v emitter.Value, to types.Type, cast types.Cast) emitter.Value {
	b := blockOf(bb)
	if b == nil {
		return e.EmitPoison()
	}
	in := e.newInstr(b.Fn, OpCast)
	in.Ty = to
	in.Cast = cast
	in.Args = []any{v.Ref}
	b.append(in)
	return emitter.SSA(in)
}

func (e *Emitter) EmitGEP(bb emitter.Block, ty types.Type, ptr emitter.Value, indices []uint32) emitter.Value {
	b := blockOf(bb)
	if b == nil {
		return e.EmitPoison()
	}
	in := e.newInstr(b.Fn, OpGEP)
	in.Ty = ty
	in.Args = []any{ptr.Ref}
	in.Indices = append([]uint32(nil), indices...)
	b.append(in)
	return emitter.SSA(in)
}

func (e *Emitter) EmitGEPDyn(bb emitter.Block, ty types.Type, ptr emitter.Value, idx emitter.Value) emitter.Value {
	b := blockOf(bb)
	if b == nil {
		return e.EmitPoison()
	}
	in := e.newInstr(b.Fn, OpGEP)
	in.Ty = ty
	in.Args = []any{ptr.Ref, idx.Ref}
	b.append(in)
	return emitter.SSA(in)
}

func (e *Emitter) EmitCall(bb emitter.Block, fn emitter.Value, args []emitter.Value) emitter.Value {
	return e.call(bb, fn, args)
}

func (e *Emitter) EmitCallPtr(bb emitter.Block, fnTy types.Type, fnPtr emitter.Value, args []emitter.Value) emitter.Value {
	v := e.call(bb, fnPtr, args)
	if in, ok := v.Ref.(*Instr); ok {
		in.Ty = fnTy
	}
	return v
}

func (e *Emitter) call(bb emitter.Block, fn emitter.Value, args []emitter.Value) emitter.Value {
	b := blockOf(bb)
	if b == nil {
		return emitter.SSA(e.poisonInstr)
	}
	in := e.newInstr(b.Fn, OpCall)
	in.Args = []any{fn.Ref}
	for _, a := range args {
		in.Args = append(in.Args, a.Ref)
	}
	b.append(in)
	return emitter.SSA(in)
}

// SizeOf computes the byte size of a complete type; the reference backend
// uses natural sizes without struct padding.
func (e *Emitter) SizeOf(ty types.Type) emitter.Value {
	return emitter.IConst(&Const{Kind: ConstInt, I: e.sizeOf(ty)})
}

func (e *Emitter) sizeOf(ty types.Type) uint64 {
	switch ty.Kind() {
	case types.Ptr:
		return 8
	case types.Array:
		return ty.ArrayLen() * e.sizeOf(ty.Elem())
	case types.Struct:
		var n uint64
		for _, m := range ty.Members() {
			n += e.sizeOf(m.Ty)
		}
		return n
	case types.Union:
		var n uint64
		for _, m := range ty.Members() {
			n = max(n, e.sizeOf(m.Ty))
		}
		return n
	case types.Float, types.Decimal32:
		return 4
	case types.Double, types.Decimal64:
		return 8
	case types.LongDouble, types.Decimal128:
		return 16
	case types.Bool:
		return 1
	}
	bits := e.bits(ty)
	if bits < 8 {
		return 1
	}
	return uint64(bits / 8)
}

// sentinels

func (e *Emitter) EmitUndef() emitter.Value {
	return emitter.Const(e.undef)
}

func (e *Emitter) EmitPoison() emitter.Value {
	return emitter.Const(e.poison)
}
