// Package compiler runs the per-method pipeline (CFG, SSA, type inference,
// emission) with failure isolation, and translates batches in parallel.
package compiler

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xplshn/dcc/pkg/cfg"
	"github.com/xplshn/dcc/pkg/codegen"
	"github.com/xplshn/dcc/pkg/config"
	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/filter"
	"github.com/xplshn/dcc/pkg/ir"
	"github.com/xplshn/dcc/pkg/ssa"
	"github.com/xplshn/dcc/pkg/typeChecker"
	"github.com/xplshn/dcc/pkg/util"
)

// MethodError records why one method was not translated. Kind is one of the
// ir failure sentinels.
type MethodError struct {
	Method *dex.Method
	Kind   error
	Err    error
}

func (e *MethodError) Error() string { return fmt.Sprintf("%s: %v", e.Method.FullName(), e.Err) }
func (e *MethodError) Unwrap() error { return e.Err }

type Compiler struct {
	Config  *config.Config
	Backend codegen.Backend
	log     *util.Logger
}

func New(conf *config.Config, log *util.Logger) *Compiler {
	return &Compiler{Config: conf, Backend: codegen.NewJNIBackend(log), log: log}
}

func (c *Compiler) fail(m *dex.Method, err error) *MethodError {
	return &MethodError{Method: m, Kind: ir.Kind(err), Err: err}
}

// Lower runs every stage up to and including type inference.
func (c *Compiler) Lower(m *dex.Method) (f *ir.Func, err error) {
	defer func() {
		if r := recover(); r != nil {
			f, err = nil, c.fail(m, ir.Structuref("internal fault: %v", r))
		}
	}()
	f = ir.NewFunc(m)
	if err := cfg.Build(f); err != nil { return nil, c.fail(m, errors.Wrap(err, "cfg")) }
	if err := ssa.Build(f, c.log); err != nil { return nil, c.fail(m, errors.Wrap(err, "ssa")) }
	if c.Config.IsFeatureEnabled(config.FeatVerifySSA) {
		if err := cfg.VerifySSA(f); err != nil { return nil, c.fail(m, errors.Wrap(err, "verify")) }
	}
	opts := typeChecker.Options{
		MaxIterations:  c.Config.MaxInferIterations,
		SplitConstants: c.Config.IsFeatureEnabled(config.FeatPolymorphicConst),
	}
	if err := typeChecker.Infer(f, opts, c.log); err != nil { return nil, c.fail(m, errors.Wrap(err, "infer")) }
	return f, nil
}

// CompileMethod translates m. Any failure, including a panic in a stage, is
// returned as a *MethodError and never escapes.
func (c *Compiler) CompileMethod(m *dex.Method) (u *codegen.Unit, err error) {
	f, err := c.Lower(m)
	if err != nil { return nil, err }
	defer func() {
		if r := recover(); r != nil {
			u, err = nil, c.fail(m, ir.Structuref("internal fault: %v", r))
		}
	}()
	u, err = c.Backend.Generate(f, c.Config)
	if err != nil { return nil, c.fail(m, errors.Wrap(err, "emit")) }
	return u, nil
}

// Compiled pairs a method with its translation.
type Compiled struct {
	Method *dex.Method
	Unit   *codegen.Unit
}

type Batch struct {
	Compiled []Compiled
	Failed   []*MethodError
}

// CompileAll translates methods on up to Config.Jobs goroutines. Results keep
// the order of methods. done, if set, is called once per finished method and
// must be safe for concurrent use. The error is non-nil only if ctx ends
// before every method was scheduled.
func (c *Compiler) CompileAll(ctx context.Context, methods []*dex.Method, done func(*dex.Method)) (*Batch, error) {
	units := make([]*codegen.Unit, len(methods))
	errs := make([]error, len(methods))

	g, gctx := errgroup.WithContext(ctx)
	jobs := c.Config.Jobs
	if jobs <= 0 { jobs = 1 }
	g.SetLimit(jobs)
	for i, m := range methods {
		if gctx.Err() != nil { break }
		g.Go(func() error {
			c.log.Debugf("compiling %s", m.FullName())
			units[i], errs[i] = c.CompileMethod(m)
			if done != nil { done(m) }
			return nil
		})
	}
	if err := g.Wait(); err != nil { return nil, err }
	if err := ctx.Err(); err != nil { return nil, err }

	batch := &Batch{}
	for i, m := range methods {
		if errs[i] != nil {
			var me *MethodError
			if !errors.As(errs[i], &me) { me = c.fail(m, errs[i]) }
			batch.Failed = append(batch.Failed, me)
			continue
		}
		batch.Compiled = append(batch.Compiled, Compiled{Method: m, Unit: units[i]})
	}
	return batch, nil
}

// Select returns the methods of file that pass flt and whose long JNI name
// fits within Config.MaxJNINameLength.
func (c *Compiler) Select(file *dex.File, flt *filter.Filter) []*dex.Method {
	var out []*dex.Method
	for _, m := range file.Methods() {
		if name := m.JniName(); len(name) > c.Config.MaxJNINameLength {
			util.Warn(c.log, c.Config, config.WarnLongName, m.FullName(), "JNI name is %d characters long (limit %d), skipped", len(name), c.Config.MaxJNINameLength)
			continue
		}
		ok, why := flt.Check(m)
		if !ok {
			if why != filter.ReasonNoRule {
				util.Warn(c.log, c.Config, config.WarnFilter, m.FullName(), "skipped: %s", why)
			}
			continue
		}
		out = append(out, m)
	}
	return out
}
