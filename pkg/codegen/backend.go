package codegen

import (
	"github.com/xplshn/dcc/pkg/config"
	"github.com/xplshn/dcc/pkg/ir"
)

// Unit is the native source generated for one method.
type Unit struct {
	// Name is the exported JNI symbol, the long form with the mangled
	// parameter signature.
	Name   string
	Source string
	// Prototype is the C declaration of the function; it is only set when
	// dynamic registration is enabled.
	Prototype string
}

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// Generate takes a typed IR function and a configuration, and produces
	// the native source of that one method.
	Generate(f *ir.Func, cfg *config.Config) (*Unit, error)
}
