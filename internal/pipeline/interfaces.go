package pipeline

import (
	"github.com/funvibe/qcp/internal/token"
)

// Processor is any component that can process a Context and return a
// modified context.
type Processor interface {
	Process(ctx *Context) *Context
}

// TokenStream is the contract between the tokenizer and the parser.
type TokenStream interface {
	// Next consumes and returns the next token. Past the end it keeps
	// returning the EOF token.
	Next() token.Token

	// Peek returns the next n tokens without consuming them; fewer are
	// returned when the stream ends early.
	Peek(n int) []token.Token
}
