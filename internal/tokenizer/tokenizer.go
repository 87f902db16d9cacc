// Package tokenizer turns preprocessed C source text into the token stream
// the parser consumes. Preprocessor line markers survive as bracketed
// PPStart … PPEnd subsequences; everything else about `#` lines is absorbed
// by the parser.
package tokenizer

import (
	"strconv"
	"strings"

	"github.com/funvibe/qcp/internal/diag"
	"github.com/funvibe/qcp/internal/strpool"
	"github.com/funvibe/qcp/internal/token"
)

type Tokenizer struct {
	input    string
	position int  // offset of ch
	readPos  int  // offset after ch
	ch       byte // current byte, 0 at end of input
	diags    *diag.Tracker
	inPP     bool
}

func New(input string, diags *diag.Tracker) *Tokenizer {
	t := &Tokenizer{input: input, diags: diags}
	t.readChar()
	return t
}

func (t *Tokenizer) readChar() {
	if t.readPos >= len(t.input) {
		t.ch = 0
	} else {
		t.ch = t.input[t.readPos]
	}
	t.position = t.readPos
	t.readPos++
}

func (t *Tokenizer) peekChar() byte {
	if t.readPos >= len(t.input) {
		return 0
	}
	return t.input[t.readPos]
}

func isIdentStart(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c == '_'
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func isOctalDigit(c byte) bool {
	return c >= '0' && c <= '7'
}

func isBinaryDigit(c byte) bool {
	return c == '0' || c == '1'
}

// skipSpace advances over whitespace and comments. Inside a preprocessor
// directive the terminating newline produces PPEnd instead of being skipped,
// returned to Next via the ok flag.
func (t *Tokenizer) skipSpace() (token.Token, bool) {
	for {
		switch t.ch {
		case ' ', '\t', '\r':
			t.readChar()
		case '\n':
			t.diags.RegisterLineBreak(uint64(t.position))
			if t.inPP {
				t.inPP = false
				tok := token.Token{Kind: token.PPEnd, Loc: diag.Loc(uint64(t.position), 1)}
				t.readChar()
				return tok, true
			}
			t.readChar()
		case '/':
			switch t.peekChar() {
			case '/':
				for t.ch != '\n' && t.ch != 0 {
					t.readChar()
				}
			case '*':
				t.readChar()
				t.readChar()
				for t.ch != 0 && !(t.ch == '*' && t.peekChar() == '/') {
					if t.ch == '\n' {
						t.diags.RegisterLineBreak(uint64(t.position))
					}
					t.readChar()
				}
				if t.ch == 0 {
					t.diags.Errorf(diag.Loc(uint64(t.position), 0), "unterminated comment")
				}
				t.readChar()
				t.readChar()
			default:
				return token.Token{}, false
			}
		default:
			return token.Token{}, false
		}
	}
}

// Next returns the next token; past the end it keeps returning EOF.
func (t *Tokenizer) Next() token.Token {
	if tok, ok := t.skipSpace(); ok {
		return tok
	}

	start := uint64(t.position)
	loc := func() diag.SrcLoc {
		return diag.Span(start, uint64(t.position))
	}

	switch {
	case t.ch == 0:
		if t.inPP {
			t.inPP = false
			return token.Token{Kind: token.PPEnd, Loc: diag.Loc(start, 0)}
		}
		return token.Token{Kind: token.EOF, Loc: diag.Loc(start, 0)}

	case isIdentStart(t.ch):
		for isIdentCont(t.ch) {
			t.readChar()
		}
		spelling := t.input[start:t.position]
		kind := token.Lookup(spelling)
		tok := token.Token{Kind: kind, Loc: loc()}
		if kind == token.Ident {
			tok.Ident = strpool.Intern(spelling)
		}
		return tok

	case isDigit(t.ch) || t.ch == '.' && isDigit(t.peekChar()):
		return t.readNumber()

	case t.ch == '"':
		return t.readString()

	case t.ch == '\'':
		return t.readCharConst()

	case t.ch == '#':
		t.readChar()
		t.inPP = true
		return token.Token{Kind: token.PPStart, Loc: loc()}
	}

	kind := t.readPunctuator()
	if kind == token.Unknown {
		t.diags.Errorf(diag.Loc(start, 1), "unexpected character %q", rune(t.ch))
		t.readChar()
	}
	return token.Token{Kind: kind, Loc: loc()}
}

// readPunctuator consumes the longest matching punctuator, or nothing when
// the byte starts none.
func (t *Tokenizer) readPunctuator() token.Kind {
	two := func(next byte, both, single token.Kind) token.Kind {
		t.readChar()
		if t.ch == next {
			t.readChar()
			return both
		}
		return single
	}

	switch t.ch {
	case '[':
		t.readChar()
		return token.LBrack
	case ']':
		t.readChar()
		return token.RBrack
	case '(':
		t.readChar()
		return token.LParen
	case ')':
		t.readChar()
		return token.RParen
	case '{':
		t.readChar()
		return token.LBrace
	case '}':
		t.readChar()
		return token.RBrace
	case ';':
		t.readChar()
		return token.Semi
	case ',':
		t.readChar()
		return token.Comma
	case '~':
		t.readChar()
		return token.Tilde
	case '?':
		t.readChar()
		return token.Question
	case ':':
		return two(':', token.DColon, token.Colon)
	case '.':
		t.readChar()
		if t.ch == '.' && t.peekChar() == '.' {
			t.readChar()
			t.readChar()
			return token.Ellipsis
		}
		return token.Period
	case '+':
		t.readChar()
		switch t.ch {
		case '+':
			t.readChar()
			return token.Inc
		case '=':
			t.readChar()
			return token.AddAssign
		}
		return token.Plus
	case '-':
		t.readChar()
		switch t.ch {
		case '-':
			t.readChar()
			return token.Dec
		case '=':
			t.readChar()
			return token.SubAssign
		case '>':
			t.readChar()
			return token.Arrow
		}
		return token.Minus
	case '*':
		return two('=', token.MulAssign, token.Mul)
	case '/':
		return two('=', token.DivAssign, token.Div)
	case '%':
		return two('=', token.ModAssign, token.Mod)
	case '^':
		return two('=', token.XorAssign, token.Caret)
	case '!':
		return two('=', token.Ne, token.Not)
	case '=':
		return two('=', token.EqEq, token.Assign)
	case '&':
		t.readChar()
		switch t.ch {
		case '&':
			t.readChar()
			return token.LAnd
		case '=':
			t.readChar()
			return token.AndAssign
		}
		return token.Amp
	case '|':
		t.readChar()
		switch t.ch {
		case '|':
			t.readChar()
			return token.LOr
		case '=':
			t.readChar()
			return token.OrAssign
		}
		return token.Pipe
	case '<':
		t.readChar()
		switch t.ch {
		case '<':
			return two('=', token.ShlAssign, token.Shl)
		case '=':
			t.readChar()
			return token.Le
		}
		return token.Lt
	case '>':
		t.readChar()
		switch t.ch {
		case '>':
			return two('=', token.ShrAssign, token.Shr)
		case '=':
			t.readChar()
			return token.Ge
		}
		return token.Gt
	}
	return token.Unknown
}

// readDigits consumes digits matched by pred, allowing C23 ' separators
// between digits.
func (t *Tokenizer) readDigits(pred func(byte) bool) {
	for {
		for pred(t.ch) {
			t.readChar()
		}
		if t.ch == '\'' && pred(t.peekChar()) {
			t.readChar()
			continue
		}
		if t.ch == '\'' {
			t.diags.Errorf(diag.Loc(uint64(t.position), 1), "digit separator must sit between digits")
			t.readChar()
		}
		return
	}
}

func (t *Tokenizer) readNumber() token.Token {
	start := t.position
	isFloat := false
	base := 10

	if t.ch == '0' {
		switch t.peekChar() {
		case 'x', 'X':
			base = 16
			t.readChar()
			t.readChar()
			t.readDigits(isHexDigit)
		case 'b', 'B':
			base = 2
			t.readChar()
			t.readChar()
			t.readDigits(isBinaryDigit)
		default:
			base = 8
			t.readDigits(isOctalDigit)
		}
	} else {
		t.readDigits(isDigit)
	}

	if base == 10 || base == 8 {
		if t.ch == '.' {
			isFloat = true
			base = 10
			t.readChar()
			t.readDigits(isDigit)
		}
		if t.ch == 'e' || t.ch == 'E' {
			isFloat = true
			base = 10
			t.readChar()
			if t.ch == '+' || t.ch == '-' {
				t.readChar()
			}
			t.readDigits(isDigit)
		}
	} else if base == 16 && (t.ch == '.' || t.ch == 'p' || t.ch == 'P') {
		// hexadecimal floating constant
		isFloat = true
		if t.ch == '.' {
			t.readChar()
			t.readDigits(isHexDigit)
		}
		if t.ch == 'p' || t.ch == 'P' {
			t.readChar()
			if t.ch == '+' || t.ch == '-' {
				t.readChar()
			}
			t.readDigits(isDigit)
		}
	}

	digits := t.input[start:t.position]

	suffixStart := t.position
	for isIdentCont(t.ch) {
		t.readChar()
	}
	suffix := strings.ToLower(t.input[suffixStart:t.position])
	tokenLoc := diag.Span(uint64(start), uint64(t.position))

	clean := strings.ReplaceAll(digits, "'", "")

	if isFloat {
		v, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			t.diags.Errorf(tokenLoc, "invalid floating constant '%s'", digits)
		}
		kind := token.DConst
		switch suffix {
		case "":
		case "f":
			kind = token.FConst
		case "l":
			kind = token.LDConst
		default:
			t.diags.Errorf(tokenLoc, "invalid suffix '%s' on floating constant", suffix)
		}
		return token.Token{Kind: kind, Loc: tokenLoc, FVal: v}
	}

	numeric := clean
	switch base {
	case 16:
		numeric = clean[2:]
	case 2:
		numeric = clean[2:]
	case 8:
		if len(clean) > 1 {
			numeric = clean[1:]
		}
	}
	v, err := strconv.ParseUint(numeric, base, 64)
	if err != nil {
		t.diags.Errorf(tokenLoc, "integer constant '%s' is too large", digits)
	}

	var kind token.Kind
	switch suffix {
	case "":
		kind = token.IConst
	case "u":
		kind = token.UConst
	case "l":
		kind = token.LConst
	case "ul", "lu":
		kind = token.ULConst
	case "ll":
		kind = token.LLConst
	case "ull", "llu":
		kind = token.ULLConst
	default:
		t.diags.Errorf(tokenLoc, "invalid suffix '%s' on integer constant", suffix)
		kind = token.IConst
	}
	return token.Token{Kind: kind, Loc: tokenLoc, IVal: v}
}

// readEscape decodes one escape sequence after the backslash has been seen.
func (t *Tokenizer) readEscape() byte {
	c := t.ch
	t.readChar()
	switch c {
	case 'a':
		return 7
	case 'b':
		return 8
	case 'f':
		return 12
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'v':
		return 11
	case '\'', '"', '?', '\\':
		return c
	case 'x':
		var v int
		for isHexDigit(t.ch) {
			d, _ := strconv.ParseUint(string(t.ch), 16, 8)
			v = v<<4 | int(d)
			t.readChar()
		}
		return byte(v)
	}
	if isOctalDigit(c) {
		v := int(c - '0')
		for i := 0; i < 2 && isOctalDigit(t.ch); i++ {
			v = v<<3 | int(t.ch-'0')
			t.readChar()
		}
		return byte(v)
	}
	t.diags.Errorf(diag.Loc(uint64(t.position)-1, 2), "unknown escape sequence '\\%c'", c)
	return c
}

// readCharSeq consumes the body of a quoted literal up to quote, decoding
// escapes.
func (t *Tokenizer) readCharSeq(quote byte) string {
	var sb strings.Builder
	t.readChar() // opening quote
	for t.ch != quote {
		if t.ch == 0 || t.ch == '\n' {
			t.diags.Errorf(diag.Loc(uint64(t.position), 0), "unterminated character sequence")
			return sb.String()
		}
		if t.ch == '\\' {
			t.readChar()
			sb.WriteByte(t.readEscape())
			continue
		}
		sb.WriteByte(t.ch)
		t.readChar()
	}
	t.readChar() // closing quote
	return sb.String()
}

func (t *Tokenizer) readString() token.Token {
	start := uint64(t.position)
	s := t.readCharSeq('"')
	return token.Token{Kind: token.StrLit, Loc: diag.Span(start, uint64(t.position)), SVal: s}
}

func (t *Tokenizer) readCharConst() token.Token {
	start := uint64(t.position)
	s := t.readCharSeq('\'')
	if s == "" {
		t.diags.Errorf(diag.Span(start, uint64(t.position)), "empty character constant")
	}
	return token.Token{Kind: token.CharLit, Loc: diag.Span(start, uint64(t.position)), SVal: s}
}
