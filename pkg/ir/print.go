package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Dump renders the method as a readable listing: one section per block in
// emission order, phis first.
func (f *Func) Dump() string {
	var out strings.Builder
	fmt.Fprintf(&out, "method %s->%s%s\n", f.Class, f.Name, f.Proto)

	for _, id := range f.MoveParams {
		in := f.Instrs[id]
		fmt.Fprintf(&out, "\t%s = param %s\n", f.formatValue(in.Result), f.Values[in.Result].Type)
	}

	blocks := append([]*Block(nil), f.Blocks...)
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Num < blocks[j].Num })
	for _, b := range blocks {
		f.dumpBlock(&out, b)
	}

	for _, lp := range f.Graph.LandingPads {
		fmt.Fprintf(&out, "@EX_LandingPad_%d\n", f.Blocks[lp.Node].Num)
		for _, h := range lp.Handlers {
			fmt.Fprintf(&out, "\tcatch %s -> @L%d\n", h.Type, f.Blocks[h.Target].Num)
		}
	}
	return out.String()
}

func (f *Func) dumpBlock(out *strings.Builder, b *Block) {
	fmt.Fprintf(out, "@L%d", b.Num)
	if b.InCatch { out.WriteString(" in-catch") }
	if b.CatchType != "" { fmt.Fprintf(out, " catch(%s)", b.CatchType) }
	if lp := f.Graph.LandingPadFor(b.ID); lp != nil { fmt.Fprintf(out, " pad(EX_LandingPad_%d)", f.Blocks[lp.Node].Num) }
	out.WriteString("\n")

	for _, id := range b.Phis {
		phi := f.Values[id]
		fmt.Fprintf(out, "\t%s =%s phi", f.formatValue(id), formatType(phi.Type))
		for i, op := range phi.Operands {
			fmt.Fprintf(out, " @L%d %s", f.Blocks[op.Pred].Num, f.formatValue(op.Value))
			if i < len(phi.Operands)-1 { out.WriteString(",") }
		}
		out.WriteString("\n")
	}
	for _, id := range b.Instrs {
		out.WriteString("\t")
		out.WriteString(f.FormatInstr(f.Instrs[id]))
		out.WriteString("\n")
	}
}

func formatType(t string) string {
	if t == "" { return "" }
	return ":" + t
}

func (f *Func) formatValue(id ValueID) string {
	if id == NoValue { return "" }
	return f.Values[id].String()
}

// FormatInstr renders one instruction on a single line.
func (f *Func) FormatInstr(in *Instruction) string {
	var sb strings.Builder
	if in.Result != NoValue {
		fmt.Fprintf(&sb, "%s =%s ", f.formatValue(in.Result), formatType(f.Values[in.Result].Type))
	}
	sb.WriteString(in.Op.String())
	switch in.Op {
	case OpBinary, OpCompare, OpUnary: fmt.Fprintf(&sb, ".%s", in.Arith)
	case OpIf, OpIfZ: fmt.Fprintf(&sb, ".%s", in.Cond)
	case OpInvoke: fmt.Fprintf(&sb, "-%s %s", in.Invoke, in.Method)
	case OpGetField, OpGetStatic, OpPutField, OpPutStatic: fmt.Fprintf(&sb, " %s", in.Field)
	case OpNewInstance, OpNewArray, OpFilledNewArray, OpCheckCast, OpInstanceOf: fmt.Fprintf(&sb, " %s", in.Type)
	case OpCast: fmt.Fprintf(&sb, " %s->%s", in.SrcType, in.Type)
	}
	for i, a := range in.Args {
		if i == 0 { sb.WriteString(" ") } else { sb.WriteString(", ") }
		sb.WriteString(f.formatValue(a))
	}
	switch in.Op {
	case OpGoto, OpIf, OpIfZ: fmt.Fprintf(&sb, " -> %x", in.Target)
	case OpSwitch:
		for _, c := range in.Cases {
			fmt.Fprintf(&sb, " %d:%x", c.Key, c.Target)
		}
	}
	return sb.String()
}
