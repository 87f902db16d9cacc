package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/funvibe/qcp/internal/buildcache"
	"github.com/funvibe/qcp/internal/diag"
	"github.com/funvibe/qcp/internal/ir"
	"github.com/funvibe/qcp/internal/parser"
	"github.com/funvibe/qcp/internal/pipeline"
	"github.com/funvibe/qcp/internal/tokenizer"
	"github.com/funvibe/qcp/internal/types"
)

var (
	emitIR    = flag.Bool("emit-ir", false, "dump the textual IR of the translation unit to stdout")
	traceFlag = flag.Bool("trace", false, "write the parser production trace to stderr")
	cachePath = flag.String("cache", "", "record the compile in the given sqlite build cache")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <input.c>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %s\n", err)
		os.Exit(1)
	}

	start := time.Now()

	backend := ir.New(types.DefaultTarget)
	ctx := pipeline.NewContext(string(source), path)
	ctx.Emitter = backend
	if *traceFlag {
		ctx.Trace = os.Stderr
	}

	processingPipeline := pipeline.New(
		&tokenizer.Processor{},
		parser.Processor{},
	)
	ctx = processingPipeline.Run(ctx)

	ctx.Diags.Render(os.Stderr)

	if *cachePath != "" {
		recordCompile(ctx, time.Since(start))
	}

	if *emitIR {
		backend.Mod.Dump(os.Stdout)
	}

	if !ctx.Diags.Empty() {
		os.Exit(1)
	}
}

func recordCompile(ctx *pipeline.Context, elapsed time.Duration) {
	cache, err := buildcache.Open(*cachePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", err)
		return
	}
	defer cache.Close()

	errors, warnings := 0, 0
	for _, m := range ctx.Diags.Messages() {
		switch m.Severity {
		case diag.SevError:
			errors++
		case diag.SevWarning:
			warnings++
		}
	}
	hash := buildcache.HashSource(ctx.Source)
	if err := cache.Put(ctx.FilePath, hash, errors, warnings, elapsed); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", err)
	}
}
