// Package ir is the reference backend behind the emitter contract: an
// in-memory IR with functions, basic blocks, instructions and constants.
// Constant operations are evaluated immediately, which is what lets the
// parser fold expressions without a separate interpreter.
package ir

import (
	"fmt"

	"github.com/funvibe/qcp/internal/strpool"
	"github.com/funvibe/qcp/internal/types"
)

// TyKind discriminates lowered backend types.
type TyKind int

const (
	TyVoid TyKind = iota
	TyInt
	TyFloat
	TyPtr
	TyArray
	TyStruct
	TyFn
)

// Ty is the backend representation of a hardened type node.
type Ty struct {
	Kind       TyKind
	Bits       uint
	Unsigned   bool
	Elem       *Ty
	N          uint64
	Fields     []*Ty
	Ret        *Ty
	Params     []*Ty
	VarArgs    bool
	Incomplete bool
	Name       strpool.Ident
}

func (t *Ty) String() string {
	switch t.Kind {
	case TyVoid:
		return "void"
	case TyInt:
		return fmt.Sprintf("i%d", t.Bits)
	case TyFloat:
		return fmt.Sprintf("f%d", t.Bits)
	case TyPtr:
		return "ptr"
	case TyArray:
		return fmt.Sprintf("[%d x %s]", t.N, t.Elem)
	case TyStruct:
		if !t.Name.IsEmpty() {
			return "%" + t.Name.String()
		}
		return "%struct.anon"
	case TyFn:
		return "fn"
	}
	return "?"
}

// ConstKind discriminates constant values.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstNull
	ConstZero
	ConstArray
	ConstStruct
	ConstStr
	ConstUndef
	ConstPoison
)

// Const is an immutable value. Integer payloads are kept as raw bits in I;
// signedness lives in the type.
type Const struct {
	Kind  ConstKind
	Ty    types.Type
	I     uint64
	F     float64
	Elems []*Const
	Str   string
}

func (c *Const) String() string {
	switch c.Kind {
	case ConstInt:
		return fmt.Sprintf("%d", c.I)
	case ConstFloat:
		return fmt.Sprintf("%g", c.F)
	case ConstNull:
		return "null"
	case ConstZero:
		return "zeroinitializer"
	case ConstArray, ConstStruct:
		s := "["
		for i, e := range c.Elems {
			if i > 0 {
				s += ", "
			}
			s += e.String()
		}
		return s + "]"
	case ConstStr:
		return fmt.Sprintf("c%q", c.Str+"\x00")
	case ConstUndef:
		return "undef"
	case ConstPoison:
		return "poison"
	}
	return "?"
}

// Op names the instruction forms the backend records.
type Op string

const (
	OpAlloca Op = "alloca"
	OpLoad   Op = "load"
	OpStore  Op = "store"
	OpBin    Op = "bin"
	OpNeg    Op = "neg"
	OpBWNeg  Op = "bwneg"
	OpIncDec Op = "incdec"
	OpCast   Op = "cast"
	OpGEP    Op = "gep"
	OpCall   Op = "call"
	OpPhi    Op = "phi"
	OpParam  Op = "param"

	OpJump   Op = "br"
	OpBranch Op = "condbr"
	OpRet    Op = "ret"
	OpSwitch Op = "switch"
)

// Instr is one instruction. Terminators are stored in their block's Term
// slot, never in the instruction list.
type Instr struct {
	Op      Op
	ID      int
	Ty      types.Type
	Name    strpool.Ident
	BinOp   int // op.Kind for bin/incdec
	Cast    types.Cast
	Args    []any // *Instr, *Const, *Func, *Global operands
	Indices []uint32

	// terminator targets
	Targets   []*Block
	Cases     []SwitchCase
	DefaultBB *Block

	// phi incoming blocks, parallel to Args
	Incoming []*Block
}

// SwitchCase is one case edge of a switch terminator.
type SwitchCase struct {
	Value  *Const
	Target *Block
}

// Block is a basic block. A block is well-formed once Term is set; further
// terminators are ignored so the first one sticks.
type Block struct {
	Fn     *Func
	ID     int
	Name   strpool.Ident
	Instrs []*Instr
	Term   *Instr
}

// Terminated reports whether the block already carries its terminator.
func (b *Block) Terminated() bool { return b.Term != nil }

// append drops instructions aimed at a terminated block: the parser only
// requests them for diagnosed-unreachable code, and a block must never carry
// anything after its terminator.
func (b *Block) append(in *Instr) {
	if b.Term != nil {
		return
	}
	b.Instrs = append(b.Instrs, in)
}

func (b *Block) terminate(in *Instr) {
	if b.Term != nil {
		return
	}
	b.Term = in
}

// Func is a function. Proto functions have no blocks until EmitFn defines
// them.
type Func struct {
	Name     strpool.Ident
	Ty       types.Type
	Proto    bool
	Inline   bool
	Noreturn bool
	Blocks   []*Block
	Params   []*Instr
	nextID   int
}

// Global is a module-level variable.
type Global struct {
	Name strpool.Ident
	Ty   types.Type
	Init *Const
	Zero bool
}

// Module is the compilation result.
type Module struct {
	Globals []*Global
	Funcs   []*Func
}

// FuncByName returns the function with the given name, or nil.
func (m *Module) FuncByName(name string) *Func {
	for _, f := range m.Funcs {
		if f.Name.String() == name {
			return f
		}
	}
	return nil
}

// GlobalByName returns the module-level variable with the given name, or nil.
func (m *Module) GlobalByName(name string) *Global {
	for _, g := range m.Globals {
		if g.Name.String() == name {
			return g
		}
	}
	return nil
}
