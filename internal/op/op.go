// Package op enumerates C operators together with their precedence and
// associativity, sorted by precedence group.
package op

type Kind int

const (
	PostInc Kind = iota
	PostDec
	Call
	Subscript
	Member
	MemberDeref
	CompoundLiteral

	PreInc
	PreDec
	UnaryPlus
	UnaryMinus
	LNot
	BWNot
	Cast
	Deref
	AddrOf
	SizeOf
	AlignOf

	Mul
	Div
	Rem

	Add
	Sub

	Shl
	Shr

	Lt
	Le
	Gt
	Ge

	Eq
	Ne

	BWAnd
	BWXor
	BWOr
	LAnd
	LOr

	Cond

	Assign
	AddAssign
	SubAssign
	MulAssign
	DivAssign
	RemAssign
	ShlAssign
	ShrAssign
	BWAndAssign
	BWXorAssign
	BWOrAssign

	Comma
)

// Spec is the precedence (1 binds tightest) and associativity of an operator.
type Spec struct {
	Prec      int8
	LeftAssoc bool
}

var specs = [...]Spec{
	PostInc: {1, true}, PostDec: {1, true}, Call: {1, true}, Subscript: {1, true},
	Member: {1, true}, MemberDeref: {1, true}, CompoundLiteral: {1, true},

	PreInc: {2, false}, PreDec: {2, false}, UnaryPlus: {2, false}, UnaryMinus: {2, false},
	LNot: {2, false}, BWNot: {2, false}, Cast: {2, false}, Deref: {2, false},
	AddrOf: {2, false}, SizeOf: {2, false}, AlignOf: {2, false},

	Mul: {3, true}, Div: {3, true}, Rem: {3, true},
	Add: {4, true}, Sub: {4, true},
	Shl: {5, true}, Shr: {5, true},
	Lt: {6, true}, Le: {6, true}, Gt: {6, true}, Ge: {6, true},
	Eq: {7, true}, Ne: {7, true},
	BWAnd: {8, true},
	BWXor: {9, true},
	BWOr:  {10, true},
	LAnd:  {11, true},
	LOr:   {12, true},

	Cond: {13, false},

	Assign: {14, false}, AddAssign: {14, false}, SubAssign: {14, false},
	MulAssign: {14, false}, DivAssign: {14, false}, RemAssign: {14, false},
	ShlAssign: {14, false}, ShrAssign: {14, false}, BWAndAssign: {14, false},
	BWXorAssign: {14, false}, BWOrAssign: {14, false},

	Comma: {15, true},
}

func (k Kind) Spec() Spec {
	return specs[k]
}

var names = [...]string{
	PostInc: "post++", PostDec: "post--", Call: "()", Subscript: "[]",
	Member: ".", MemberDeref: "->", CompoundLiteral: "compound-literal",
	PreInc: "++", PreDec: "--", UnaryPlus: "unary+", UnaryMinus: "unary-",
	LNot: "!", BWNot: "~", Cast: "cast", Deref: "unary*", AddrOf: "unary&",
	SizeOf: "sizeof", AlignOf: "alignof",
	Mul: "*", Div: "/", Rem: "%",
	Add: "+", Sub: "-",
	Shl: "<<", Shr: ">>",
	Lt: "<", Le: "<=", Gt: ">", Ge: ">=",
	Eq: "==", Ne: "!=",
	BWAnd: "&", BWXor: "^", BWOr: "|", LAnd: "&&", LOr: "||",
	Cond:   "?:",
	Assign: "=", AddAssign: "+=", SubAssign: "-=", MulAssign: "*=",
	DivAssign: "/=", RemAssign: "%=", ShlAssign: "<<=", ShrAssign: ">>=",
	BWAndAssign: "&=", BWXorAssign: "^=", BWOrAssign: "|=",
	Comma: ",",
}

func (k Kind) String() string {
	return names[k]
}

// IsComparison reports whether k yields a boolean result.
func (k Kind) IsComparison() bool {
	return k >= Lt && k <= Ne
}

// IsBitwise reports whether k is invalid over floating operands.
func (k Kind) IsBitwise() bool {
	return k == BWAnd || k == BWXor || k == BWOr || k == Shl || k == Shr ||
		k == ShlAssign || k == ShrAssign || k == BWAndAssign || k == BWXorAssign || k == BWOrAssign
}

// IsAssign reports whether k is `=` or a compound assignment.
func (k Kind) IsAssign() bool {
	return k >= Assign && k <= BWOrAssign
}

// IsIncDec reports whether k is one of the four increment/decrement forms.
func (k Kind) IsIncDec() bool {
	return k == PreInc || k == PreDec || k == PostInc || k == PostDec
}

// Binary strips the compound-assignment wrapping: AddAssign.Binary() == Add.
// For plain Assign and non-assignments it returns k unchanged.
func (k Kind) Binary() Kind {
	switch k {
	case AddAssign:
		return Add
	case SubAssign:
		return Sub
	case MulAssign:
		return Mul
	case DivAssign:
		return Div
	case RemAssign:
		return Rem
	case ShlAssign:
		return Shl
	case ShrAssign:
		return Shr
	case BWAndAssign:
		return BWAnd
	case BWXorAssign:
		return BWXor
	case BWOrAssign:
		return BWOr
	}
	return k
}
