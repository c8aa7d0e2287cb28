package dex

import (
	"sort"

	"github.com/pkg/errors"
)

func isGoto(op Opcode) bool   { return op >= OpGoto && op <= OpGoto32 }
func isIf(op Opcode) bool     { return op >= OpIfEq && op <= OpIfLez }
func isSwitch(op Opcode) bool { return op == OpPackedSwitch || op == OpSparseSwitch }
func isExit(op Opcode) bool   { return (op >= OpReturnVoid && op <= OpReturnObject) || op == OpThrow }

// endsBlock reports whether control never simply falls into the next
// instruction, or may leave for somewhere else.
func endsBlock(op Opcode) bool { return isGoto(op) || isIf(op) || isSwitch(op) || isExit(op) }

// SplitBlocks partitions the method's code into basic blocks, wires normal
// successors (fall-through first, then branch targets in order) and attaches
// the try item covering each block. The entry block is Blocks[0].
func SplitBlocks(m *Method) error {
	if len(m.Code) == 0 {
		m.Blocks = nil
		return nil
	}
	at := make(map[int]int, len(m.Code))
	for i, ins := range m.Code {
		at[ins.Offset] = i
	}
	end := m.Code[len(m.Code)-1].NextOffset()
	leaders := map[int]bool{0: true}
	mark := func(off int, what string) error {
		if off == end { return nil }
		if _, ok := at[off]; !ok { return errors.Errorf("%s %#x is not an instruction boundary", what, off) }
		leaders[off] = true
		return nil
	}

	for _, ins := range m.Code {
		op := ins.Op
		switch {
		case isGoto(op), isIf(op):
			if err := mark(ins.Offset+ins.Target, "branch target"); err != nil { return err }
		case isSwitch(op):
			for _, t := range ins.Switch.Targets {
				if err := mark(ins.Offset+t, "switch target"); err != nil { return err }
			}
		}
		if endsBlock(op) {
			if err := mark(ins.NextOffset(), "fall-through"); err != nil { return err }
		}
	}
	for _, try := range m.Tries {
		if err := mark(try.Start, "try start"); err != nil { return err }
		if err := mark(try.End, "try end"); err != nil { return err }
		for _, h := range try.Handlers {
			if err := mark(h.Target, "handler"); err != nil { return err }
		}
	}

	starts := make([]int, 0, len(leaders))
	for off := range leaders {
		starts = append(starts, off)
	}
	sort.Ints(starts)

	byStart := make(map[int]*Block, len(starts))
	m.Blocks = m.Blocks[:0]
	for i, s := range starts {
		stop := end
		if i+1 < len(starts) { stop = starts[i+1] }
		b := &Block{Start: s, End: stop}
		for j := at[s]; j < len(m.Code) && m.Code[j].Offset < stop; j++ {
			b.Instructions = append(b.Instructions, m.Code[j])
		}
		for _, try := range m.Tries {
			if s >= try.Start && s < try.End {
				b.Exception = try
				break
			}
		}
		byStart[s] = b
		m.Blocks = append(m.Blocks, b)
	}

	for _, try := range m.Tries {
		for i := range try.Handlers {
			try.Handlers[i].Block = byStart[try.Handlers[i].Target]
		}
	}

	for _, b := range m.Blocks {
		last := b.Last()
		var targets []int
		switch op := last.Op; {
		case isGoto(op):
			targets = []int{last.Offset + last.Target}
		case isIf(op):
			targets = []int{b.End, last.Offset + last.Target}
		case isSwitch(op):
			targets = append(targets, b.End)
			for _, t := range last.Switch.Targets {
				targets = append(targets, last.Offset+t)
			}
		case isExit(op):
		default:
			targets = []int{b.End}
		}
		seen := make(map[*Block]bool)
		for _, t := range targets {
			succ := byStart[t]
			if succ == nil {
				if t == end { return errors.Errorf("%s falls off the end of the method", b) }
				continue
			}
			if !seen[succ] {
				seen[succ] = true
				b.Succs = append(b.Succs, succ)
			}
		}
	}
	return nil
}
