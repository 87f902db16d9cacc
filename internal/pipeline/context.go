package pipeline

import (
	"io"

	"github.com/funvibe/qcp/internal/diag"
	"github.com/funvibe/qcp/internal/emitter"
)

// Context carries the data passed between pipeline stages.
type Context struct {
	Source   string
	FilePath string
	Tokens   TokenStream
	Diags    *diag.Tracker
	Emitter  emitter.Emitter

	// Trace receives the parser's production trace; nil disables tracing.
	Trace io.Writer
}

func NewContext(source, filePath string) *Context {
	return &Context{
		Source:   source,
		FilePath: filePath,
		Diags:    diag.NewTracker(source, filePath),
	}
}
