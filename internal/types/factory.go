package types

import (
	"github.com/funvibe/qcp/internal/strpool"
	"github.com/funvibe/qcp/internal/token"
)

// Well-known hardened indices. Index 0 is the canonical undef node.
const (
	idxUndef = iota
	idxVoid
	idxBool
	idxChar
	idxInt
	idxUInt
	idxSize
	idxVoidPtr
)

// Factory owns the two node arenas and performs interning.
type Factory struct {
	backend   TypeBackend
	target    Target
	hardened  []*Base
	fragments []*Base
	anonSeq   uint32
}

func NewFactory(backend TypeBackend, target Target) *Factory {
	f := &Factory{
		backend:   backend,
		target:    target,
		fragments: []*Base{{kind: Undef}},
	}
	f.hardened = []*Base{
		{kind: Undef},
		{kind: Void},
		{kind: Bool},
		{kind: Char, unsigned: !target.CharSigned},
		{kind: Int},
		{kind: Int, unsigned: true},
		{kind: LongLong, unsigned: true},
	}
	f.hardened = append(f.hardened, &Base{kind: Ptr, elem: f.VoidTy()})
	for _, b := range f.hardened[1:] {
		f.populate(b)
	}
	return f
}

func (f *Factory) hardenedTy(idx int) Type {
	return Type{f: f, arena: hardenedArena, index: idx}
}

func (f *Factory) UndefTy() Type   { return f.hardenedTy(idxUndef) }
func (f *Factory) VoidTy() Type    { return f.hardenedTy(idxVoid) }
func (f *Factory) BoolTy() Type    { return f.hardenedTy(idxBool) }
func (f *Factory) CharTy() Type    { return f.hardenedTy(idxChar) }
func (f *Factory) SizeTy() Type    { return f.hardenedTy(idxSize) }
func (f *Factory) UintptrTy() Type { return f.SizeTy() }
func (f *Factory) VoidPtrTy() Type { return f.hardenedTy(idxVoidPtr) }

func (f *Factory) IntTy(unsigned bool) Type {
	if unsigned {
		return f.hardenedTy(idxUInt)
	}
	return f.hardenedTy(idxInt)
}

// construct interns or stages a node: a structurally equal hardened node is
// reused; otherwise the node lands in the fragment arena.
func (f *Factory) construct(b *Base) Type {
	for i, h := range f.hardened {
		if h.equal(b) {
			return f.hardenedTy(i)
		}
	}
	f.fragments = append(f.fragments, b)
	return Type{f: f, arena: fragmentArena, index: len(f.fragments) - 1}
}

// IntegralTy returns the integer type of the given kind and signedness.
func (f *Factory) IntegralTy(kind Kind, unsigned bool) Type {
	return f.construct(&Base{kind: kind, unsigned: unsigned})
}

// RealTy returns the floating (or bool/void-like single-token) type.
func (f *Factory) RealTy(kind Kind) Type {
	return f.construct(&Base{kind: kind})
}

func (f *Factory) PtrTo(ty Type) Type {
	return f.construct(&Base{kind: Ptr, elem: ty})
}

// ArrayOfUnspec stages `T[]`, or `T[*]` when star is set.
func (f *Factory) ArrayOfUnspec(elem Type, star bool) Type {
	k := SizeUnspec
	if star {
		k = SizeUnspecVLA
	}
	return f.construct(&Base{kind: Array, elem: elem, sizeKind: k})
}

// ArrayOf stages a fixed-size array type.
func (f *Factory) ArrayOf(elem Type, n uint64) Type {
	return f.construct(&Base{kind: Array, elem: elem, sizeKind: SizeFixed, size: n})
}

// ArrayOfVLA stages a variable-length array whose size is a backend SSA
// value.
func (f *Factory) ArrayOfVLA(elem Type, size any) Type {
	return f.construct(&Base{kind: Array, elem: elem, sizeKind: SizeRuntime, sizeVal: size})
}

func (f *Factory) Function(ret Type, params []Type, varargs bool) Type {
	return f.construct(&Base{kind: Fn, elem: ret, params: params, varargs: varargs})
}

// StructOrUnion stages an aggregate node. Anonymous aggregates get a fresh
// serial so they are never unified with one another.
func (f *Factory) StructOrUnion(tk token.Kind, members []Member, incomplete bool, tag strpool.Ident) Type {
	kind := Struct
	if tk == token.Union {
		kind = Union
	}
	b := &Base{kind: kind, members: members, incomplete: incomplete, tag: tag}
	if tag.IsEmpty() {
		f.anonSeq++
		b.anonID = f.anonSeq
	}
	return f.construct(b)
}

func (f *Factory) EnumTy(underlying Type, fixed bool, tag strpool.Ident) Type {
	b := &Base{kind: Enum, elem: underlying, fixedUnderlying: fixed, incomplete: underlying.IsNil()}
	b.tag = tag
	if tag.IsEmpty() {
		f.anonSeq++
		b.anonID = f.anonSeq
	}
	return f.construct(b)
}

// FromConstToken maps a constant token kind to its C type, hardened.
func (f *Factory) FromConstToken(t token.Token) Type {
	var ty Type
	switch t.Kind {
	case token.IConst:
		ty = f.IntTy(false)
	case token.UConst:
		ty = f.IntTy(true)
	case token.LConst:
		ty = f.IntegralTy(Long, false)
	case token.ULConst:
		ty = f.IntegralTy(Long, true)
	case token.LLConst:
		ty = f.IntegralTy(LongLong, false)
	case token.ULLConst:
		ty = f.IntegralTy(LongLong, true)
	case token.FConst:
		ty = f.RealTy(Float)
	case token.DConst:
		ty = f.RealTy(Double)
	case token.LDConst:
		ty = f.RealTy(LongDouble)
	default:
		return Type{}
	}
	return f.Harden(ty, nil)
}

// BaseChainRef points at the open hole at the tip of a fragment chain.
type BaseChainRef struct {
	ty Type
}

func (r BaseChainRef) valid() bool {
	return r.ty.f != nil && r.ty.base().derivedFrom() != nil
}

// Valid reports whether the ref points at an open hole.
func (r BaseChainRef) Valid() bool { return r.valid() }

// Deref exposes the hole for writing. Panics when the tip has no hole; the
// parser only derefs refs it has chained.
func (r BaseChainRef) Deref() *Type {
	d := r.ty.base().derivedFrom()
	if d == nil {
		panic("types: base-chain ref does not point at a derived type")
	}
	return d
}

// Chain fills the current hole with ty and advances the ref to ty's own
// hole. On an empty ref it simply starts the chain at ty.
func (r *BaseChainRef) Chain(ty Type) {
	if r.valid() {
		*r.Deref() = ty
	}
	r.ty = ty
}

// Ref builds a chain ref rooted at an existing fragment.
func Ref(ty Type) BaseChainRef {
	return BaseChainRef{ty: ty}
}

// Harden interns ty. Sub-derivations are hardened depth-first, then the node
// is either unified with a structurally equal hardened node or appended.
//
// completes, when non-nil, must be a hardened handle of a forward-declared
// aggregate: the fragment is moved into that slot, completing the tag in
// place so every outstanding handle sees the completed type.
func (f *Factory) Harden(ty Type, completes *Type) Type {
	if ty.f == nil || ty.arena == hardenedArena {
		return ty
	}

	b := ty.base()
	if d := b.derivedFrom(); d != nil && d.f != nil {
		*d = f.Harden(*d, nil)
	}
	for i := range b.params {
		b.params[i] = f.Harden(b.params[i], nil)
	}
	for i := range b.members {
		b.members[i].Ty = f.Harden(b.members[i].Ty, nil)
	}

	for i, h := range f.hardened {
		if h.equal(b) {
			return Type{f: f, arena: hardenedArena, index: i, Qual: ty.Qual}
		}
	}

	if completes != nil && completes.arena == hardenedArena {
		slot := f.hardened[completes.index]
		*slot = *b
		slot.ref = nil
		f.populate(slot)
		return Type{f: f, arena: hardenedArena, index: completes.index, Qual: ty.Qual}
	}

	f.hardened = append(f.hardened, b)
	f.populate(b)
	return Type{f: f, arena: hardenedArena, index: len(f.hardened) - 1, Qual: ty.Qual}
}

// ClearFragments reclaims the scratch arena. Called at every declarator
// boundary, whether or not the declarator succeeded.
func (f *Factory) ClearFragments() {
	f.fragments = f.fragments[:1]
}

// FragmentCount reports how many staged nodes are outstanding (the undef
// sentinel excluded).
func (f *Factory) FragmentCount() int {
	return len(f.fragments) - 1
}

// populate lowers a freshly hardened node through the backend.
func (f *Factory) populate(b *Base) {
	if f.backend == nil || b.ref != nil {
		return
	}
	switch b.kind {
	case Void, NullptrT, Undef:
		b.ref = f.backend.VoidTy()
	case Bool:
		b.ref = f.backend.IntTy(1, true)
	case Char:
		b.ref = f.backend.IntTy(f.target.CharBits, b.unsigned)
	case Short:
		b.ref = f.backend.IntTy(f.target.ShortBits, b.unsigned)
	case Int:
		b.ref = f.backend.IntTy(f.target.IntBits, b.unsigned)
	case Long:
		b.ref = f.backend.IntTy(f.target.LongBits, b.unsigned)
	case LongLong:
		b.ref = f.backend.IntTy(f.target.LongLongBits, b.unsigned)
	case Float, Double, LongDouble, Decimal32, Decimal64, Decimal128:
		b.ref = f.backend.FloatTy(b.kind)
	case Ptr:
		b.ref = f.backend.PtrTy(b.elem.EmitterType())
	case Array:
		b.ref = f.backend.ArrayTy(b.elem.EmitterType(), b.size)
	case Struct, Union:
		fields := make([]BackendType, len(b.members))
		for i, m := range b.members {
			fields[i] = m.Ty.EmitterType()
		}
		b.ref = f.backend.StructTy(fields, b.incomplete, b.tag)
	case Enum:
		if !b.elem.IsNil() {
			b.ref = b.elem.EmitterType()
		} else {
			b.ref = f.backend.IntTy(f.target.IntBits, false)
		}
	case Fn:
		params := make([]BackendType, len(b.params))
		for i, p := range b.params {
			params[i] = p.EmitterType()
		}
		b.ref = f.backend.FnTy(b.elem.EmitterType(), params, b.varargs)
	}
}

// Promote applies C integer promotion: arithmetic types ranking below int
// become int of their signedness.
func (f *Factory) Promote(ty Type) Type {
	if !ty.IsNil() && ty.IsArithmetic() && ty.Rank() < int(Int) {
		return f.IntTy(!ty.IsSigned())
	}
	return ty
}

// CommonRealType implements the usual arithmetic conversions.
func (f *Factory) CommonRealType(lhs, rhs Type) Type {
	if lhs.IsNil() {
		return rhs
	}
	if rhs.IsNil() {
		return lhs
	}
	if !lhs.IsBasic() || !rhs.IsBasic() {
		return Type{}
	}

	if lhs.Kind() == Enum {
		lhs = lhs.Elem()
		if lhs.IsNil() {
			lhs = f.IntTy(false)
		}
	}
	if rhs.Kind() == Enum {
		rhs = rhs.Elem()
		if rhs.IsNil() {
			rhs = f.IntTy(false)
		}
	}

	higher := lhs
	if rhs.Rank() > lhs.Rank() {
		higher = rhs
	}
	if higher.Kind() >= Float {
		return higher
	}

	lhs = f.Promote(lhs)
	rhs = f.Promote(rhs)

	switch {
	case lhs.Unqualified() == rhs.Unqualified():
		return lhs
	case lhs.IsSigned() == rhs.IsSigned():
		if lhs.Rank() >= rhs.Rank() {
			return lhs
		}
		return rhs
	}

	// mixed signedness: unsigned wins at equal or higher rank, otherwise the
	// signed side keeps its rank but turns unsigned when it cannot represent
	// the unsigned operand.
	u, s := lhs, rhs
	if lhs.IsSigned() {
		u, s = rhs, lhs
	}
	if u.Rank() >= s.Rank() {
		return u
	}
	if f.signedRepresentsUnsigned(s, u) {
		return s
	}
	return f.Harden(f.IntegralTy(s.Kind(), true), nil)
}

// signedRepresentsUnsigned reports whether the signed type's value range
// contains every value of the unsigned type, judged by target bit widths.
func (f *Factory) signedRepresentsUnsigned(s, u Type) bool {
	return f.bits(s.Kind()) > f.bits(u.Kind())
}

func (f *Factory) bits(k Kind) uint {
	switch k {
	case Bool:
		return 1
	case Char:
		return f.target.CharBits
	case Short:
		return f.target.ShortBits
	case Int:
		return f.target.IntBits
	case Long:
		return f.target.LongBits
	case LongLong:
		return f.target.LongLongBits
	}
	return 0
}
