// Package cli parses dcc's command line: long and short options, the
// -W/-F switch groups, and the help page listing both.
package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

type Value interface {
	String() string
	Set(string) error
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil { return errors.Errorf("invalid boolean value '%s'", s) }
	*v.p = b
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }

type intValue struct{ p *int }

func (v *intValue) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil { return errors.Errorf("invalid integer value '%s'", s) }
	*v.p = n
	return nil
}
func (v *intValue) String() string { return strconv.Itoa(*v.p) }

// Flag is one --name / -n option. Placeholder names the argument in the
// help page; boolean flags take none.
type Flag struct {
	Name        string
	Shorthand   string
	Usage       string
	Placeholder string
	DefValue    string
	Value       Value
}

func (fl *Flag) isBool() bool { _, ok := fl.Value.(*boolValue); return ok }

// Switch is one -<prefix><name> / -<prefix>no-<name> pair of a Group. Set
// records whether the command line named it at all, and Value holds the
// last state it was given.
type Switch struct {
	Name    string
	Usage   string
	Default bool
	Value   bool
	Set     bool
}

func (s *Switch) On() bool {
	if s.Set { return s.Value }
	return s.Default
}

// Group is a family of switches sharing a one-letter prefix, such as the
// warnings behind -W.
type Group struct {
	Title    string
	Kind     string
	Prefix   string
	Switches []*Switch
}

func (g *Group) set(name string) error {
	on := !strings.HasPrefix(name, "no-")
	name = strings.TrimPrefix(name, "no-")
	for _, s := range g.Switches {
		if s.Name == name {
			s.Value, s.Set = on, true
			return nil
		}
	}
	return errors.Errorf("unknown %s: -%s%s", g.Kind, g.Prefix, name)
}

type FlagSet struct {
	flags      map[string]*Flag
	shorthands map[string]*Flag
	groups     []*Group
	args       []string
}

func NewFlagSet() *FlagSet {
	return &FlagSet{flags: make(map[string]*Flag), shorthands: make(map[string]*Flag)}
}

// Args returns the operands left after Parse.
func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, placeholder string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, placeholder)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) Int(p *int, name, shorthand string, value int, usage, placeholder string) {
	*p = value
	f.Var(&intValue{p}, name, shorthand, usage, strconv.Itoa(value), placeholder)
}

func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, placeholder string) {
	if name == "" { panic("flag name cannot be empty") }
	if _, ok := f.flags[name]; ok { panic(fmt.Sprintf("flag redefined: %s", name)) }
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Placeholder: placeholder, DefValue: defValue, Value: value}
	f.flags[name] = flag
	if shorthand == "" { return }
	if _, ok := f.shorthands[shorthand]; ok { panic(fmt.Sprintf("shorthand flag redefined: %s", shorthand)) }
	f.shorthands[shorthand] = flag
}

// AddGroup registers switches answering to -<prefix><name> and
// -<prefix>no-<name>. Plain flags win over a group when both match.
func (f *FlagSet) AddGroup(title, kind, prefix string, switches []*Switch) {
	f.groups = append(f.groups, &Group{Title: title, Kind: kind, Prefix: prefix, Switches: switches})
}

func (f *FlagSet) groupFor(name string) *Group {
	for _, g := range f.groups {
		if len(name) > len(g.Prefix) && strings.HasPrefix(name, g.Prefix) { return g }
	}
	return nil
}

// Parse accepts --name[=value], -name[=value] for multi-letter flags,
// -n[value] for shorthands and -<prefix>[no-]<name> for group switches.
// Everything else, and anything after "--", is an operand.
func (f *FlagSet) Parse(arguments []string) error {
	f.args = []string{}
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		switch {
		case arg == "--":
			f.args = append(f.args, arguments[i+1:]...)
			return nil
		case len(arg) < 2 || arg[0] != '-':
			f.args = append(f.args, arg)
		case strings.HasPrefix(arg, "--"):
			name, value, explicit := strings.Cut(arg[2:], "=")
			if name == "" { return errors.New("empty flag name") }
			flag, ok := f.flags[name]
			if !ok { return errors.Errorf("unknown flag: --%s", name) }
			if err := f.set(flag, "--"+name, value, explicit, arguments, &i); err != nil { return err }
		default:
			name, value, explicit := strings.Cut(arg[1:], "=")
			if flag, ok := f.flags[name]; ok {
				if err := f.set(flag, "-"+name, value, explicit, arguments, &i); err != nil { return err }
				continue
			}
			if g := f.groupFor(arg[1:]); g != nil {
				if err := g.set(arg[1+len(g.Prefix):]); err != nil { return err }
				continue
			}
			flag, ok := f.shorthands[arg[1:2]]
			if !ok { return errors.Errorf("unknown shorthand flag: -%s", arg[1:2]) }
			if err := f.set(flag, arg[:2], arg[2:], len(arg) > 2, arguments, &i); err != nil { return err }
		}
	}
	return nil
}

// set assigns value to flag, or takes the next argument when none was
// attached. Boolean flags never consume the next argument.
func (f *FlagSet) set(flag *Flag, display, value string, attached bool, arguments []string, i *int) error {
	if !attached && !flag.isBool() {
		if *i+1 >= len(arguments) { return errors.Errorf("flag needs an argument: %s", display) }
		*i++
		value = arguments[*i]
	}
	return errors.Wrap(flag.Value.Set(value), display)
}

type App struct {
	Name        string
	Version     string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	FlagSet     *FlagSet
	Action      func(args []string) error
}

func NewApp(name string) *App { return &App{Name: name, FlagSet: NewFlagSet()} }

func (a *App) Run(arguments []string) error {
	help, version := false, false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")
	if a.Version != "" { a.FlagSet.Bool(&version, "version", "V", false, "Print the version and exit") }

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", a.Name, err)
		fmt.Fprintf(os.Stderr, "Usage: %s %s\nRun '%s --help' for all available options.\n", a.Name, a.Synopsis, a.Name)
		return err
	}
	switch {
	case help:
		a.WriteHelp(os.Stdout, terminalWidth())
		return nil
	case version:
		fmt.Printf("%s %s\n", a.Name, a.Version)
		return nil
	case a.Action != nil:
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

// WriteHelp renders the options and every switch group, wrapping usage
// text to fit width columns.
func (a *App) WriteHelp(w io.Writer, width int) {
	fmt.Fprintf(w, "Usage: %s %s\n", a.Name, a.Synopsis)
	if a.Description != "" { fmt.Fprintf(w, "\n    %s\n", a.Description) }

	flags := make([]*Flag, 0, len(a.FlagSet.flags))
	for _, fl := range a.FlagSet.flags {
		flags = append(flags, fl)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })
	rows := make([][]string, 0, len(flags))
	for _, fl := range flags {
		def := ""
		if !fl.isBool() && fl.DefValue != "" && fl.DefValue != "0" { def = "|" + fl.DefValue + "|" }
		rows = append(rows, []string{flagLabel(fl), fl.Usage, def})
	}
	fmt.Fprint(w, "\nOptions\n")
	writeRows(w, width, rows)

	for _, g := range a.FlagSet.groups {
		fmt.Fprintf(w, "\n%s\n", g.Title)
		rows := [][]string{
			{fmt.Sprintf("-%s<%s>", g.Prefix, g.Kind), "Enable a specific " + g.Kind, ""},
			{fmt.Sprintf("-%sno-<%s>", g.Prefix, g.Kind), "Disable a specific " + g.Kind, ""},
		}
		switches := append([]*Switch(nil), g.Switches...)
		sort.Slice(switches, func(i, j int) bool { return switches[i].Name < switches[j].Name })
		for _, s := range switches {
			state := "|-|"
			if s.On() { state = "|x|" }
			rows = append(rows, []string{s.Name, s.Usage, state})
		}
		writeRows(w, width, rows)
	}

	if len(a.Authors) > 0 { fmt.Fprintf(w, "\n    Copyright (c) %s and contributors\n", strings.Join(a.Authors, ", ")) }
	if a.Repository != "" { fmt.Fprintf(w, "    For more details refer to %s\n", a.Repository) }
}

func flagLabel(fl *Flag) string {
	long := "--" + fl.Name
	if !fl.isBool() && fl.Placeholder != "" { long += " <" + fl.Placeholder + ">" }
	if fl.Shorthand == "" { return long }
	return "-" + fl.Shorthand + ", " + long
}

func writeRows(w io.Writer, width int, rows [][]string) {
	t := tablewriter.NewWriter(w)
	t.SetBorder(false)
	t.SetHeaderLine(false)
	t.SetColumnSeparator("")
	t.SetCenterSeparator("")
	t.SetNoWhiteSpace(true)
	t.SetTablePadding("  ")
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetAutoWrapText(true)
	t.SetColWidth(width / 2)
	t.AppendBulk(rows)
	t.Render()
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil { return 80 }
	if width < 40 { return 40 }
	return width
}
