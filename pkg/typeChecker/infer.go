// Package typeChecker assigns every SSA value of a method a concrete Dalvik
// type descriptor so the emitter can choose native storage and JNI calls.
package typeChecker

import (
	"math"

	"github.com/pkg/errors"

	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/ir"
	"github.com/xplshn/dcc/pkg/util"
)

const DefaultMaxIterations = 500

type Options struct {
	// MaxIterations bounds the fixpoint; zero means DefaultMaxIterations.
	MaxIterations int
	// SplitConstants gives every consumer of an untyped literal its own
	// copy before inference, so a 0 may serve as null and as int at once.
	SplitConstants bool
}

func DefaultOptions() Options {
	return Options{MaxIterations: DefaultMaxIterations, SplitConstants: true}
}

type TypeChecker struct {
	f    *ir.Func
	opts Options
	log  *util.Logger
}

func NewTypeChecker(f *ir.Func, opts Options, log *util.Logger) *TypeChecker {
	if opts.MaxIterations <= 0 { opts.MaxIterations = DefaultMaxIterations }
	return &TypeChecker{f: f, opts: opts, log: log}
}

// Infer types f in place and collects what the emitter has to declare.
func Infer(f *ir.Func, opts Options, log *util.Logger) error {
	return NewTypeChecker(f, opts, log).Check()
}

func (tc *TypeChecker) Check() error {
	if tc.opts.SplitConstants { tc.SplitConstants() }
	if err := tc.fixpoint(); err != nil { return err }
	if tc.defaultConstants() {
		if err := tc.fixpoint(); err != nil { return err }
	}
	if err := tc.verifyResults(); err != nil { return err }
	if err := tc.verifyPhis(); err != nil { return err }
	tc.collectDecls()
	return nil
}

func (tc *TypeChecker) blocks() []*ir.Block {
	out := make([]*ir.Block, 0, len(tc.f.Graph.Order))
	for _, id := range tc.f.Graph.Order {
		out = append(out, tc.f.Blocks[id])
	}
	return out
}

// SplitConstants replaces every untyped constant load with one fresh load
// per consumer, placed where the original was.
func (tc *TypeChecker) SplitConstants() {
	f := tc.f
	var todo []*ir.Instruction
	for _, b := range tc.blocks() {
		for _, id := range b.Instrs {
			if in := f.Instrs[id]; in.Op == ir.OpLoadConst && f.Values[in.Result].Type == "" { todo = append(todo, in) }
		}
	}
	for _, in := range todo {
		old := f.Values[in.Result]
		b := f.Blocks[in.Block]
		for _, u := range f.Uses(old.ID) {
			v := f.NewVariable(old.Register)
			v.IsConst = true
			load := f.NewInstr(ir.OpLoadConst, v.ID, in.Args[0])
			load.Offset, load.NextOffset, load.Source = in.Offset, in.NextOffset, in.Source
			f.InsertBefore(b, in.ID, load)
			f.ReplaceUse(u, old.ID, v.ID)
		}
		f.Remove(in)
	}
}

func (tc *TypeChecker) fixpoint() error {
	f := tc.f
	blocks := tc.blocks()
	for iter := 0; ; iter++ {
		if iter >= tc.opts.MaxIterations { return errors.Wrapf(ir.ErrDiverged, "no fixpoint after %d passes", iter) }
		r := &resolver{f: f}
		for _, b := range blocks {
			for _, p := range b.Phis {
				r.phi(f.Values[p])
			}
			for _, id := range b.Instrs {
				r.instr(f.Instrs[id])
			}
			if r.err != nil { return r.err }
		}
		if !r.changed { return nil }
	}
}

// defaultConstants types every literal load left open by inference: int if
// the literal fits 32 bits, long otherwise.
func (tc *TypeChecker) defaultConstants() bool {
	f := tc.f
	changed := false
	for _, id := range f.Graph.RPO {
		for _, iid := range f.Blocks[id].Instrs {
			in := f.Instrs[iid]
			if in.Op != ir.OpLoadConst || f.Values[in.Result].Type != "" { continue }
			n := f.Values[in.Args[0]].Int
			if n >= math.MinInt32 && n <= math.MaxInt32 {
				tc.log.Debugf("Set constant type to int: %s", f.FormatInstr(in))
				SetType(f.Values[in.Result], "I")
			} else {
				tc.log.Debugf("Set constant type to long: %s", f.FormatInstr(in))
				SetType(f.Values[in.Result], "J")
			}
			changed = true
		}
	}
	return changed
}

func (tc *TypeChecker) verifyResults() error {
	f := tc.f
	for _, b := range tc.blocks() {
		for _, id := range b.Instrs {
			in := f.Instrs[id]
			if in.Result != ir.NoValue && f.Values[in.Result].Type == "" {
				return ir.Typef("unknown type of %s", f.Values[in.Result])
			}
		}
	}
	return nil
}

func (tc *TypeChecker) verifyPhis() error {
	f := tc.f
	for _, id := range f.Graph.RPO {
		for _, p := range f.Blocks[id].Phis {
			phi := f.Values[p]
			for _, op := range phi.Operands {
				t := f.Values[op.Value].Type
				if !dex.SameFamily(phi.Type, t) {
					return ir.Typef("inconsistent phi operand type %s %s %s", phi, phi.Type, t)
				}
			}
		}
	}
	return nil
}

// collectDecls lists, in emission order, every value the function body
// defines and every class, field and method it resolves through JNI.
func (tc *TypeChecker) collectDecls() {
	f := tc.f
	seen := make(map[string]bool)
	add := func(list *[]string, kind, name string) {
		if name == "" || seen[kind+name] { return }
		seen[kind+name] = true
		*list = append(*list, name)
	}
	for _, b := range tc.blocks() {
		for _, p := range b.Phis {
			f.Vars = append(f.Vars, p)
		}
		for _, id := range b.Instrs {
			in := f.Instrs[id]
			if in.Result != ir.NoValue { f.Vars = append(f.Vars, in.Result) }
			add(&f.Classes, "c", f.ClassOf(in))
			add(&f.Fields, "f", f.FieldOf(in))
			add(&f.Methods, "m", f.MethodOf(in))
		}
	}
}
