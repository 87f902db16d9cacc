package ir

import (
	"fmt"
	"io"
	"strings"

	"github.com/funvibe/qcp/internal/op"
)

// Dump writes the module in a readable LLVM-flavoured syntax.
func (m *Module) Dump(w io.Writer) {
	for _, g := range m.Globals {
		name := g.Name.String()
		if name == "" {
			name = "anon"
		}
		fmt.Fprintf(w, "@%s = global %s", name, g.Ty)
		switch {
		case g.Init != nil:
			fmt.Fprintf(w, " %s", g.Init)
		case g.Zero:
			fmt.Fprint(w, " zeroinitializer")
		}
		fmt.Fprintln(w)
	}
	for _, f := range m.Funcs {
		if f.Proto {
			fmt.Fprintf(w, "declare %s @%s\n", f.Ty, f.Name)
			continue
		}
		fmt.Fprintf(w, "define %s @%s {\n", f.Ty, f.Name)
		for _, b := range f.Blocks {
			fmt.Fprintf(w, "%s:\n", blockLabel(b))
			for _, in := range b.Instrs {
				fmt.Fprintf(w, "  %s\n", in.render())
			}
			if b.Term != nil {
				fmt.Fprintf(w, "  %s\n", b.Term.render())
			}
		}
		fmt.Fprintln(w, "}")
	}
}

func (m *Module) String() string {
	var sb strings.Builder
	m.Dump(&sb)
	return sb.String()
}

func blockLabel(b *Block) string {
	if b == nil {
		return "<nil>"
	}
	if !b.Name.IsEmpty() {
		return fmt.Sprintf("%s.%d", b.Name, b.ID)
	}
	return fmt.Sprintf("bb.%d", b.ID)
}

func operand(a any) string {
	switch v := a.(type) {
	case *Instr:
		return fmt.Sprintf("%%%d", v.ID)
	case *Const:
		return v.String()
	case *Func:
		return "@" + v.Name.String()
	case *Global:
		return "@" + v.Name.String()
	case nil:
		return "<nil>"
	}
	return "?"
}

func (in *Instr) operands() string {
	parts := make([]string, len(in.Args))
	for i, a := range in.Args {
		parts[i] = operand(a)
	}
	return strings.Join(parts, ", ")
}

func (in *Instr) render() string {
	switch in.Op {
	case OpAlloca:
		return fmt.Sprintf("%%%d = alloca %s ; %s", in.ID, in.Ty, in.Name)
	case OpLoad:
		return fmt.Sprintf("%%%d = load %s, %s", in.ID, in.Ty, in.operands())
	case OpStore:
		return fmt.Sprintf("store %s %s", in.Ty, in.operands())
	case OpBin:
		return fmt.Sprintf("%%%d = %s %s %s", in.ID, op.Kind(in.BinOp), in.Ty, in.operands())
	case OpNeg:
		return fmt.Sprintf("%%%d = neg %s %s", in.ID, in.Ty, in.operands())
	case OpBWNeg:
		return fmt.Sprintf("%%%d = not %s %s", in.ID, in.Ty, in.operands())
	case OpCast:
		return fmt.Sprintf("%%%d = %s %s to %s", in.ID, in.Cast, in.operands(), in.Ty)
	case OpGEP:
		s := fmt.Sprintf("%%%d = gep %s, %s", in.ID, in.Ty, in.operands())
		for _, idx := range in.Indices {
			s += fmt.Sprintf(", %d", idx)
		}
		return s
	case OpCall:
		return fmt.Sprintf("%%%d = call %s", in.ID, in.operands())
	case OpPhi:
		var parts []string
		for i, a := range in.Args {
			parts = append(parts, fmt.Sprintf("[%s, %s]", operand(a), blockLabel(in.Incoming[i])))
		}
		return fmt.Sprintf("%%%d = phi %s %s", in.ID, in.Ty, strings.Join(parts, ", "))
	case OpJump:
		return fmt.Sprintf("br %s", blockLabel(in.Targets[0]))
	case OpBranch:
		return fmt.Sprintf("br %s, %s, %s", in.operands(), blockLabel(in.Targets[0]), blockLabel(in.Targets[1]))
	case OpRet:
		if len(in.Args) == 0 {
			return "ret void"
		}
		return fmt.Sprintf("ret %s", in.operands())
	case OpSwitch:
		var sb strings.Builder
		fmt.Fprintf(&sb, "switch %s, default %s [", in.operands(), blockLabel(in.DefaultBB))
		for _, c := range in.Cases {
			fmt.Fprintf(&sb, " %s: %s", c.Value, blockLabel(c.Target))
		}
		sb.WriteString(" ]")
		return sb.String()
	}
	return string(in.Op)
}
