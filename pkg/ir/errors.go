package ir

import "github.com/pkg/errors"

// Failure kinds. Stage errors wrap one of these; errors.Cause recovers it.
var (
	ErrUnsupported = errors.New("unsupported input")
	ErrStructure   = errors.New("structural inconsistency")
	ErrType        = errors.New("type inconsistency")
	ErrDiverged    = errors.New("type inference did not converge")
)

func Unsupportedf(format string, args ...any) error { return errors.Wrapf(ErrUnsupported, format, args...) }
func Structuref(format string, args ...any) error   { return errors.Wrapf(ErrStructure, format, args...) }
func Typef(format string, args ...any) error        { return errors.Wrapf(ErrType, format, args...) }

// Kind classifies err by its root sentinel; unknown causes count as
// structural faults.
func Kind(err error) error {
	switch cause := errors.Cause(err); cause {
	case ErrUnsupported, ErrStructure, ErrType, ErrDiverged:
		return cause
	}
	return ErrStructure
}
