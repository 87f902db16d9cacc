package tokenizer

import (
	"github.com/funvibe/qcp/internal/pipeline"
	"github.com/funvibe/qcp/internal/token"
)

const lookaheadBufferSize = 8

// bufferedStream adapts the tokenizer to pipeline.TokenStream with a small
// lookahead buffer.
type bufferedStream struct {
	t      *Tokenizer
	buffer []token.Token
	pos    int
}

func NewTokenStream(t *Tokenizer) pipeline.TokenStream {
	return &bufferedStream{t: t}
}

func (bs *bufferedStream) Next() token.Token {
	if bs.pos < len(bs.buffer) {
		tok := bs.buffer[bs.pos]
		bs.pos++
		return tok
	}
	return bs.t.Next()
}

func (bs *bufferedStream) Peek(n int) []token.Token {
	for len(bs.buffer)-bs.pos < n {
		tok := bs.t.Next()
		bs.buffer = append(bs.buffer, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	if bs.pos > lookaheadBufferSize {
		bs.buffer = bs.buffer[bs.pos:]
		bs.pos = 0
	}
	end := bs.pos + n
	if end > len(bs.buffer) {
		end = len(bs.buffer)
	}
	return bs.buffer[bs.pos:end]
}

// Processor is the tokenizer pipeline stage.
type Processor struct{}

func (p *Processor) Process(ctx *pipeline.Context) *pipeline.Context {
	ctx.Tokens = NewTokenStream(New(ctx.Source, ctx.Diags))
	return ctx
}
