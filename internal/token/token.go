package token

import (
	"fmt"

	"github.com/funvibe/qcp/internal/diag"
	"github.com/funvibe/qcp/internal/strpool"
)

type Kind int

const (
	Unknown Kind = iota
	EOF

	// preprocessor line-marker brackets
	PPStart
	PPEnd

	Ident

	// integer constants; the kind encodes C's width/signedness suffixes
	IConst
	UConst
	LConst
	ULConst
	LLConst
	ULLConst

	// floating constants
	FConst
	DConst
	LDConst

	StrLit
	CharLit

	// punctuators
	LBrack   // [
	RBrack   // ]
	LParen   // (
	RParen   // )
	LBrace   // {
	RBrace   // }
	Period   // .
	Arrow    // ->
	Inc      // ++
	Dec      // --
	Tilde    // ~
	Not      // !
	Mul      // *
	Div      // /
	Mod      // %
	Plus     // +
	Minus    // -
	Shl      // <<
	Shr      // >>
	Lt       // <
	Le       // <=
	Gt       // >
	Ge       // >=
	EqEq     // ==
	Ne       // !=
	Amp      // &
	Caret    // ^
	Pipe     // |
	LAnd     // &&
	LOr      // ||
	Question // ?
	Colon    // :
	DColon   // ::
	Semi     // ;
	Ellipsis // ...
	Assign   // =
	MulAssign
	DivAssign
	ModAssign
	AddAssign
	SubAssign
	ShlAssign
	ShrAssign
	AndAssign
	XorAssign
	OrAssign
	Comma // ,

	// keywords
	Alignas
	Alignof
	Auto
	Break
	Case
	Const
	Constexpr
	Continue
	Default
	Do
	Else
	Enum
	Extern
	False
	For
	Goto
	If
	Inline
	Noreturn
	Nullptr
	Register
	Restrict
	Return
	Sizeof
	Static
	StaticAssert
	Struct
	Switch
	ThreadLocal
	True
	Typedef
	Typeof
	TypeofUnqual
	Union
	Volatile
	While
	Atomic
	Generic
	BitInt
	Imaginary

	// type-specifier keywords counted by the declaration-specifier parser;
	// Bool..Complex must stay contiguous.
	Bool
	Char
	Short
	Int
	Long
	Signed
	Unsigned
	Float
	Double
	Decimal32
	Decimal64
	Decimal128
	Complex

	Void
)

var kindNames = map[Kind]string{
	Unknown: "unknown", EOF: "end of file",
	PPStart: "'#'", PPEnd: "end of preprocessor directive",
	Ident:  "identifier",
	IConst: "integer constant", UConst: "integer constant", LConst: "integer constant",
	ULConst: "integer constant", LLConst: "integer constant", ULLConst: "integer constant",
	FConst: "floating constant", DConst: "floating constant", LDConst: "floating constant",
	StrLit: "string literal", CharLit: "character constant",
	LBrack: "'['", RBrack: "']'", LParen: "'('", RParen: "')'",
	LBrace: "'{'", RBrace: "'}'", Period: "'.'", Arrow: "'->'",
	Inc: "'++'", Dec: "'--'", Tilde: "'~'", Not: "'!'",
	Mul: "'*'", Div: "'/'", Mod: "'%'", Plus: "'+'", Minus: "'-'",
	Shl: "'<<'", Shr: "'>>'", Lt: "'<'", Le: "'<='", Gt: "'>'", Ge: "'>='",
	EqEq: "'=='", Ne: "'!='", Amp: "'&'", Caret: "'^'", Pipe: "'|'",
	LAnd: "'&&'", LOr: "'||'", Question: "'?'", Colon: "':'", DColon: "'::'",
	Semi: "';'", Ellipsis: "'...'", Assign: "'='",
	MulAssign: "'*='", DivAssign: "'/='", ModAssign: "'%='",
	AddAssign: "'+='", SubAssign: "'-='", ShlAssign: "'<<='", ShrAssign: "'>>='",
	AndAssign: "'&='", XorAssign: "'^='", OrAssign: "'|='", Comma: "','",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	if s, ok := keywordNames[k]; ok {
		return "'" + s + "'"
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is one lexical token. Payload fields are valid depending on Kind:
// Ident for identifiers, IVal for integer constants, FVal for floating
// constants, SVal for string literals and the bytes of character constants.
type Token struct {
	Kind  Kind
	Loc   diag.SrcLoc
	Ident strpool.Ident
	IVal  uint64
	FVal  float64
	SVal  string
}

// IsConst reports whether the token is an arithmetic constant.
func (t Token) IsConst() bool {
	return t.Kind >= IConst && t.Kind <= LDConst
}

// IsIntConst reports whether the token is an integer constant.
func (t Token) IsIntConst() bool {
	return t.Kind >= IConst && t.Kind <= ULLConst
}

// Valid reports whether the token carries a kind; a failed consume returns
// an invalid token.
func (t Token) Valid() bool {
	return t.Kind != Unknown
}

var keywords = map[string]Kind{
	"alignas": Alignas, "_Alignas": Alignas,
	"alignof": Alignof, "_Alignof": Alignof,
	"auto": Auto,
	"bool": Bool, "_Bool": Bool,
	"break": Break, "case": Case, "char": Char,
	"const": Const, "constexpr": Constexpr, "continue": Continue,
	"default": Default, "do": Do, "double": Double, "else": Else,
	"enum": Enum, "extern": Extern, "false": False, "float": Float,
	"for": For, "goto": Goto, "if": If, "inline": Inline,
	"int": Int, "long": Long, "nullptr": Nullptr, "register": Register,
	"restrict": Restrict, "return": Return, "short": Short,
	"signed": Signed, "sizeof": Sizeof, "static": Static,
	"static_assert": StaticAssert, "_Static_assert": StaticAssert,
	"struct": Struct, "switch": Switch,
	"thread_local": ThreadLocal, "_Thread_local": ThreadLocal,
	"true": True, "typedef": Typedef,
	"typeof": Typeof, "typeof_unqual": TypeofUnqual,
	"union": Union, "unsigned": Unsigned, "void": Void,
	"volatile": Volatile, "while": While,
	"_Atomic": Atomic, "_BitInt": BitInt, "_Complex": Complex,
	"_Decimal128": Decimal128, "_Decimal32": Decimal32, "_Decimal64": Decimal64,
	"_Generic": Generic, "_Imaginary": Imaginary, "_Noreturn": Noreturn,
}

var keywordNames = func() map[Kind]string {
	m := make(map[Kind]string, len(keywords))
	for s, k := range keywords {
		// prefer the unprefixed spelling for rendering
		if prev, ok := m[k]; !ok || len(s) < len(prev) {
			m[k] = s
		}
	}
	return m
}()

// Lookup resolves an identifier spelling to its keyword kind, or Ident.
func Lookup(spelling string) Kind {
	if k, ok := keywords[spelling]; ok {
		return k
	}
	return Ident
}
