// Package filter decides which methods of a loaded file are translated to
// native code.
package filter

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/xplshn/dcc/pkg/dex"
)

// AnnotationSuffix marks a method, or every method of a class, for
// translation regardless of the rule file.
const AnnotationSuffix = "Dex2C;"

// ReasonNoRule is the reason Check gives for a method no rule selected.
const ReasonNoRule = "no rule matches"

// Rules is a parsed rule file. Patterns are matched against the full name
// (class + name + prototype) of a method.
type Rules struct {
	Compile []*regexp.Regexp
	Keep    []*regexp.Regexp
	Exact   mapset.Set[string]
}

func NewRules() *Rules { return &Rules{Exact: mapset.NewThreadUnsafeSet[string]()} }

// ParseRules reads one rule per line:
//
//	regex       translate methods matching regex
//	!regex      never translate methods matching regex
//	=full-name  translate exactly this method
//	# comment
func ParseRules(r io.Reader) (*Rules, error) {
	rules := NewRules()
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' { continue }
		switch line[0] {
		case '=':
			rules.Exact.Add(strings.TrimSpace(line[1:]))
		case '!':
			re, err := regexp.Compile(strings.TrimSpace(line[1:]))
			if err != nil { return nil, errors.Wrapf(err, "line %d", n) }
			rules.Keep = append(rules.Keep, re)
		default:
			re, err := regexp.Compile(line)
			if err != nil { return nil, errors.Wrapf(err, "line %d", n) }
			rules.Compile = append(rules.Compile, re)
		}
	}
	return rules, errors.Wrap(sc.Err(), "read rules")
}

// LoadRules parses the rule file at path. A missing file yields empty rules,
// so only annotated methods are selected.
func LoadRules(path string) (*Rules, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) { return NewRules(), nil }
	if err != nil { return nil, errors.Wrap(err, "open filter") }
	defer f.Close()
	rules, err := ParseRules(f)
	if err != nil { return nil, errors.Wrapf(err, "%s", path) }
	return rules, nil
}

type nameKey struct{ class, name string }

// Filter combines the rules with facts gathered over every method of a file.
type Filter struct {
	rules     *Rules
	conflicts mapset.Set[*dex.Method]
	natives   mapset.Set[nameKey]
	annotated mapset.Set[*dex.Method]
}

// New scans the classes of file once. Methods that share class, name and
// parameters but differ in return type conflict with each other, and any
// native method blocks every method of the same class and name.
func New(rules *Rules, file *dex.File) *Filter {
	if rules == nil { rules = NewRules() }
	f := &Filter{
		rules:     rules,
		conflicts: mapset.NewThreadUnsafeSet[*dex.Method](),
		natives:   mapset.NewThreadUnsafeSet[nameKey](),
		annotated: mapset.NewThreadUnsafeSet[*dex.Method](),
	}
	seen := map[string]*dex.Method{}
	for _, cls := range file.Classes {
		classMarked := hasMarker(cls.Annotations)
		for _, m := range cls.Methods {
			sig := m.Signature()
			if prev, ok := seen[sig]; ok {
				f.conflicts.Add(prev)
				f.conflicts.Add(m)
			} else {
				seen[sig] = m
			}
			if m.IsNative() { f.natives.Add(nameKey{cls.Name, m.Name}) }
			if (classMarked || hasMarker(m.Annotations)) && !m.IsSynthetic() && !m.IsNative() {
				f.annotated.Add(m)
			}
		}
	}
	return f
}

func hasMarker(annotations []string) bool {
	for _, a := range annotations {
		if strings.HasSuffix(a, AnnotationSuffix) { return true }
	}
	return false
}

// Check reports whether m should be translated, and if not, why.
func (f *Filter) Check(m *dex.Method) (bool, string) {
	switch {
	case f.conflicts.Contains(m):
		return false, "overload differs only in return type"
	case m.IsSynthetic():
		return false, "synthetic"
	case m.IsNative():
		return false, "native"
	case !m.HasCode():
		return false, "no code"
	case f.natives.Contains(nameKey{m.Class.Name, m.Name}):
		return false, "shares its name with a native method"
	}
	full := m.FullName()
	for _, re := range f.rules.Keep {
		if re.MatchString(full) { return false, "kept by " + re.String() }
	}
	if f.rules.Exact.Contains(full) || f.annotated.Contains(m) { return true, "" }
	for _, re := range f.rules.Compile {
		if re.MatchString(full) { return true, "" }
	}
	return false, ReasonNoRule
}

func (f *Filter) ShouldCompile(m *dex.Method) bool {
	ok, _ := f.Check(m)
	return ok
}
