// Package types implements the hash-consed C type table.
//
// Types are built in two phases: derivations are first staged as mutable
// "fragment" nodes while a declarator is being parsed, then "hardened" into
// the immutable interned arena once the declarator completes. Handles are
// (arena, index) pairs plus a qualifier set; all structural sharing happens
// through indices, which lets self-referential aggregates resolve without
// cyclic ownership.
package types

import (
	"fmt"
	"strings"

	"github.com/funvibe/qcp/internal/strpool"
)

type Kind int

const (
	Bool Kind = iota
	Char
	Short
	Int
	Long
	LongLong

	Float
	Double
	LongDouble

	Decimal32
	Decimal64
	Decimal128

	NullptrT
	Void

	Ptr
	Array
	Struct
	Enum
	Union
	Fn

	Undef
)

var kindNames = [...]string{
	Bool: "bool", Char: "char", Short: "short", Int: "int", Long: "long",
	LongLong: "long long", Float: "float", Double: "double",
	LongDouble: "long double", Decimal32: "_Decimal32", Decimal64: "_Decimal64",
	Decimal128: "_Decimal128", NullptrT: "nullptr_t", Void: "void",
	Ptr: "pointer", Array: "array", Struct: "struct", Enum: "enum",
	Union: "union", Fn: "function", Undef: "undef",
}

func (k Kind) String() string { return kindNames[k] }

// Cast enumerates the cast operations the parser can request from a backend.
type Cast int

const (
	Bitcast Cast = iota
	Trunc
	Zext
	Sext
	SIToFP
	UIToFP
	FPToSI
	FPToUI
	FPTrunc
	FPExt
	IntToPtr
	PtrToInt
)

var castNames = [...]string{
	Bitcast: "bitcast", Trunc: "trunc", Zext: "zext", Sext: "sext",
	SIToFP: "sitofp", UIToFP: "uitofp", FPToSI: "fptosi", FPToUI: "fptoui",
	FPTrunc: "fptrunc", FPExt: "fpext", IntToPtr: "inttoptr", PtrToInt: "ptrtoint",
}

func (c Cast) String() string { return castNames[c] }

// Qualifiers is the const/restrict/volatile flag set carried on a handle.
type Qualifiers struct {
	Const    bool
	Restrict bool
	Volatile bool
}

// Covers reports whether q includes every qualifier of other. Assigning a
// pointer whose target qualifiers are not covered discards qualifiers.
func (q Qualifiers) Covers(other Qualifiers) bool {
	return (q.Const || !other.Const) && (q.Restrict || !other.Restrict) && (q.Volatile || !other.Volatile)
}

func (q Qualifiers) prefix() string {
	var sb strings.Builder
	if q.Const {
		sb.WriteString("const ")
	}
	if q.Restrict {
		sb.WriteString("restrict ")
	}
	if q.Volatile {
		sb.WriteString("volatile ")
	}
	return sb.String()
}

type arenaTag uint8

const (
	hardenedArena arenaTag = iota
	fragmentArena
)

// Type is a handle to an interned or fragment base node. The zero Type is
// the null handle used as the error sentinel: every operation on it yields
// another null handle and never panics.
type Type struct {
	f     *Factory
	arena arenaTag
	index int
	Qual  Qualifiers
}

// IsNil reports whether the handle is null or refers to the undef node.
func (t Type) IsNil() bool {
	return t.f == nil || (t.arena == hardenedArena && t.index == 0)
}

func (t Type) base() *Base {
	if t.f == nil {
		return &undefBase
	}
	if t.arena == hardenedArena {
		return t.f.hardened[t.index]
	}
	return t.f.fragments[t.index]
}

var undefBase = Base{kind: Undef}

// ArraySizeKind discriminates the four C array size forms.
type ArraySizeKind int

const (
	SizeFixed     ArraySizeKind = iota // T[N]
	SizeRuntime                        // T[n], variable length
	SizeUnspec                         // T[]
	SizeUnspecVLA                      // T[*]
)

// Member is a named aggregate member.
type Member struct {
	Name strpool.Ident
	Ty   Type
}

// Base is one type node. Hardened nodes are immutable; fragment nodes are
// mutated through the base-chain reference while a declarator is built.
type Base struct {
	kind     Kind
	unsigned bool

	// elem is the single derivation hole: pointer target, array element,
	// function return, or enum underlying type.
	elem Type

	sizeKind ArraySizeKind
	size     uint64
	sizeVal  any // backend SSA value for VLA sizes

	params  []Type
	varargs bool

	members    []Member
	incomplete bool
	tag        strpool.Ident
	anonID     uint32 // non-zero for anonymous aggregates; keeps them nominally fresh

	fixedUnderlying bool // enum with explicit `: type`

	ref BackendType // populated by the backend when the node hardens
}

func (b *Base) Kind() Kind { return b.kind }

// derivedFrom returns the hole of a derived node, or nil for leaves.
func (b *Base) derivedFrom() *Type {
	switch b.kind {
	case Ptr, Array, Fn, Enum:
		return &b.elem
	}
	return nil
}

func (b *Base) equal(other *Base) bool {
	if b.kind != other.kind {
		return false
	}
	switch b.kind {
	case Bool, NullptrT, Void, Undef:
		return true
	case Char, Short, Int, Long, LongLong, Float, Double, LongDouble,
		Decimal32, Decimal64, Decimal128:
		return b.unsigned == other.unsigned
	case Ptr:
		return b.elem == other.elem
	case Array:
		return b.elem == other.elem && b.sizeKind == other.sizeKind &&
			b.size == other.size && b.sizeVal == other.sizeVal
	case Fn:
		if b.elem != other.elem || b.varargs != other.varargs || len(b.params) != len(other.params) {
			return false
		}
		for i := range b.params {
			if b.params[i] != other.params[i] {
				return false
			}
		}
		return true
	case Struct, Union:
		if b.tag != other.tag || b.anonID != other.anonID || b.incomplete != other.incomplete {
			return false
		}
		if b.incomplete {
			return true
		}
		if len(b.members) != len(other.members) {
			return false
		}
		for i := range b.members {
			if b.members[i] != other.members[i] {
				return false
			}
		}
		return true
	case Enum:
		return b.tag == other.tag && b.anonID == other.anonID &&
			b.incomplete == other.incomplete && b.elem == other.elem
	}
	return false
}

// rank is the arithmetic conversion rank; enums rank as their underlying
// type; non-arithmetic kinds have no rank.
func (b *Base) rank() int {
	if b.kind == Enum {
		if b.elem.IsNil() {
			return int(Int)
		}
		return b.elem.base().rank()
	}
	if b.kind == Undef {
		return -1
	}
	return int(b.kind)
}

// BackendType is an opaque handle to the backend's lowered representation of
// a hardened type node.
type BackendType any

// TypeBackend is the slice of the emitter contract the type table needs to
// populate backend types when nodes harden.
type TypeBackend interface {
	IntTy(bits uint, unsigned bool) BackendType
	FloatTy(kind Kind) BackendType
	VoidTy() BackendType
	PtrTy(elem BackendType) BackendType
	ArrayTy(elem BackendType, n uint64) BackendType
	StructTy(fields []BackendType, incomplete bool, name strpool.Ident) BackendType
	FnTy(ret BackendType, params []BackendType, varargs bool) BackendType
}

// Target carries the integer widths the type table lowers with.
type Target struct {
	CharBits     uint
	ShortBits    uint
	IntBits      uint
	LongBits     uint
	LongLongBits uint
	CharSigned   bool
}

// DefaultTarget matches a typical LP64 platform.
var DefaultTarget = Target{
	CharBits:     8,
	ShortBits:    16,
	IntBits:      32,
	LongBits:     64,
	LongLongBits: 64,
	CharSigned:   true,
}

// handle accessors

func (t Type) Kind() Kind {
	return t.base().kind
}

func (t Type) IsVoid() bool    { return t.Kind() == Void }
func (t Type) IsBool() bool    { return t.Kind() == Bool }
func (t Type) IsPointer() bool { return t.Kind() == Ptr }
func (t Type) IsArray() bool   { return t.Kind() == Array }
func (t Type) IsFn() bool      { return t.Kind() == Fn }
func (t Type) IsEnum() bool    { return t.Kind() == Enum }

func (t Type) IsInteger() bool {
	k := t.Kind()
	return k >= Bool && k <= LongLong
}

func (t Type) IsFloating() bool {
	k := t.Kind()
	return k >= Float && k <= Decimal128
}

// IsArithmetic reports whether t participates in the usual arithmetic
// conversions.
func (t Type) IsArithmetic() bool {
	k := t.Kind()
	return k <= Decimal128
}

// IsBasic additionally admits enums, which convert through their underlying
// type.
func (t Type) IsBasic() bool {
	return t.IsArithmetic() || t.Kind() == Enum
}

func (t Type) IsScalar() bool {
	return t.IsArithmetic() || t.IsPointer() || t.Kind() == Enum
}

func (t Type) IsAggregate() bool {
	k := t.Kind()
	return k == Struct || k == Union
}

func (t Type) IsSigned() bool {
	b := t.base()
	if b.kind == Enum && !b.elem.IsNil() {
		return b.elem.IsSigned()
	}
	return !b.unsigned
}

func (t Type) Rank() int {
	return t.base().rank()
}

// IsComplete reports whether objects of t have a known size.
func (t Type) IsComplete() bool {
	b := t.base()
	switch b.kind {
	case Void, Undef:
		return false
	case Struct, Union, Enum:
		return !b.incomplete
	case Array:
		return (b.sizeKind == SizeFixed || b.sizeKind == SizeRuntime) && b.elem.IsComplete()
	}
	return true
}

// Elem returns the pointee, array element, function return, or enum
// underlying type.
func (t Type) Elem() Type {
	if d := t.base().derivedFrom(); d != nil {
		return *d
	}
	return Type{}
}

func (t Type) Params() []Type { return t.base().params }
func (t Type) IsVarArg() bool { return t.base().varargs }
func (t Type) Members() []Member {
	return t.base().members
}

func (t Type) Tag() strpool.Ident { return t.base().tag }

func (t Type) ArraySizeKind() ArraySizeKind { return t.base().sizeKind }
func (t Type) ArrayLen() uint64             { return t.base().size }
func (t Type) VLASize() any                 { return t.base().sizeVal }

// MemberIndex returns the position of the named member, or -1.
func (t Type) MemberIndex(name strpool.Ident) int {
	for i, m := range t.base().members {
		if m.Name == name {
			return i
		}
	}
	return -1
}

// EmitterType returns the backend handle populated at harden time.
func (t Type) EmitterType() BackendType {
	return t.base().ref
}

// Unqualified strips the qualifier set from the handle.
func (t Type) Unqualified() Type {
	t.Qual = Qualifiers{}
	return t
}

// Qualified returns t with the given qualifier added.
func (t Type) Qualified(q Qualifiers) Type {
	t.Qual.Const = t.Qual.Const || q.Const
	t.Qual.Restrict = t.Qual.Restrict || q.Restrict
	t.Qual.Volatile = t.Qual.Volatile || q.Volatile
	return t
}

// IsCompatibleWith compares unqualified base identity; the caller decides
// what qualifier mismatches mean.
func (t Type) IsCompatibleWith(other Type) bool {
	return t.Unqualified() == other.Unqualified()
}

// String renders the type in C-flavoured syntax for diagnostics.
func (t Type) String() string {
	var sb strings.Builder
	sb.WriteString(t.Qual.prefix())
	b := t.base()
	switch b.kind {
	case Ptr:
		sb.WriteString(b.elem.String())
		sb.WriteString(" *")
	case Array:
		sb.WriteString(b.elem.String())
		switch b.sizeKind {
		case SizeFixed:
			fmt.Fprintf(&sb, " [%d]", b.size)
		case SizeRuntime:
			sb.WriteString(" [n]")
		case SizeUnspecVLA:
			sb.WriteString(" [*]")
		default:
			sb.WriteString(" []")
		}
	case Fn:
		sb.WriteString(b.elem.String())
		sb.WriteString(" (")
		for i, p := range b.params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.String())
		}
		if b.varargs {
			if len(b.params) > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("...")
		}
		sb.WriteString(")")
	case Struct, Union:
		sb.WriteString(kindNames[b.kind])
		if !b.tag.IsEmpty() {
			sb.WriteString(" ")
			sb.WriteString(b.tag.String())
		} else {
			sb.WriteString(" { ")
			for _, m := range b.members {
				sb.WriteString(m.Ty.String())
				sb.WriteString("; ")
			}
			sb.WriteString("}")
		}
	case Enum:
		sb.WriteString("enum")
		if !b.tag.IsEmpty() {
			sb.WriteString(" ")
			sb.WriteString(b.tag.String())
		}
	default:
		if b.unsigned && b.kind != Bool {
			sb.WriteString("unsigned ")
		}
		sb.WriteString(kindNames[b.kind])
	}
	return sb.String()
}
