package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/xplshn/dcc/pkg/cli"
)

type Feature int

const (
	FeatTrace Feature = iota
	FeatDynamicRegister
	FeatVerifySSA
	FeatPolymorphicConst
	FeatLocalRefGC
	FeatCount
)

type Warning int

const (
	WarnLongName Warning = iota
	WarnFailedMethod
	WarnOverwrite
	WarnFilter
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

const (
	DefaultMaxInferIterations = 500
	DefaultMaxJNINameLength   = 220
)

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning

	Jobs               int
	MaxInferIterations int
	MaxJNINameLength   int
	OutputDir          string
	FilterFile         string
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),

		Jobs:               runtime.NumCPU(),
		MaxInferIterations: DefaultMaxInferIterations,
		MaxJNINameLength:   DefaultMaxJNINameLength,
		OutputDir:          "jni/nc",
	}

	features := map[Feature]Info{
		FeatTrace:            {"trace", true, "Emit a LOGD trace line before every translated instruction."},
		FeatDynamicRegister:  {"dynamic-register", false, "Emit non-exported functions and collect their prototypes for RegisterNatives."},
		FeatVerifySSA:        {"verify-ssa", true, "Check that every SSA definition dominates its uses."},
		FeatPolymorphicConst: {"polymorphic-const", true, "Give each consumer of an untyped literal its own copy before type inference."},
		FeatLocalRefGC:       {"local-ref-gc", true, "Delete dead temporary local references right after their last use."},
	}

	warnings := map[Warning]Info{
		WarnLongName:     {"long-name", true, "Warn when a method is skipped because its JNI name is too long."},
		WarnFailedMethod: {"failed-method", true, "Warn for every method that could not be translated."},
		WarnOverwrite:    {"overwrite", true, "Warn when an existing source file with different content is replaced."},
		WarnFilter:       {"filter", false, "Warn for every method the filter rejects."},
		WarnExtra:        {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// FlagEntries holds the -W/-F switches registered by SetupFlagGroups,
// indexed by Warning and Feature.
type FlagEntries []*cli.Switch

// SetupFlagGroups registers -W<name>/-Wno-<name> and -F<name>/-Fno-<name>
// for every known warning and feature.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warnings, features FlagEntries) {
	warnings = make(FlagEntries, WarnCount)
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		warnings[i] = &cli.Switch{Name: info.Name, Usage: info.Description, Default: info.Enabled}
	}
	features = make(FlagEntries, FeatCount)
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		features[i] = &cli.Switch{Name: info.Name, Usage: info.Description, Default: info.Enabled}
	}
	fs.AddGroup("Warning Flags", "warning", "W", warnings)
	fs.AddGroup("Feature Flags", "feature", "F", features)
	return warnings, features
}

// ApplyFlagGroups copies the switches the user actually passed onto c.
func (c *Config) ApplyFlagGroups(warnings, features FlagEntries) {
	for i, s := range warnings {
		if s.Set { c.SetWarning(Warning(i), s.Value) }
	}
	for i, s := range features {
		if s.Set { c.SetFeature(Feature(i), s.Value) }
	}
}

func (c *Config) SetAllWarnings(enabled bool) {
	for i := Warning(0); i < WarnCount; i++ {
		c.SetWarning(i, enabled)
	}
}

// ApplyFlag understands -W<name>, -Wno-<name>, -F<name>, -Fno-<name> and
// -Wall; unknown names are reported.
func (c *Config) ApplyFlag(flag string) error {
	trimmed := strings.TrimPrefix(flag, "-")
	if len(trimmed) < 2 { return fmt.Errorf("malformed flag %q", flag) }
	kind, name := trimmed[0], trimmed[1:]
	enable := !strings.HasPrefix(name, "no-")
	name = strings.TrimPrefix(name, "no-")

	switch kind {
	case 'W':
		if name == "all" {
			c.SetAllWarnings(enable)
			return nil
		}
		w, ok := c.WarningMap[name]
		if !ok { return fmt.Errorf("unknown warning %q", name) }
		c.SetWarning(w, enable)
	case 'F':
		f, ok := c.FeatureMap[name]
		if !ok { return fmt.Errorf("unknown feature %q", name) }
		c.SetFeature(f, enable)
	default:
		return fmt.Errorf("malformed flag %q", flag)
	}
	return nil
}

// File is the on-disk form of a configuration.
type File struct {
	Jobs               int             `yaml:"jobs"`
	Output             string          `yaml:"output"`
	Filter             string          `yaml:"filter"`
	MaxInferIterations int             `yaml:"max_infer_iterations"`
	MaxJNINameLength   int             `yaml:"max_jni_name_length"`
	Features           map[string]bool `yaml:"features"`
	Warnings           map[string]bool `yaml:"warnings"`
	// Flags are command-line spellings such as -Wall or -Fno-trace, applied
	// after the maps.
	Flags []string `yaml:"flags"`
}

// LoadFile applies a YAML configuration file to c. Zero values leave the
// current setting alone.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil { return errors.Wrap(err, "reading config") }
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil { return errors.Wrapf(err, "parsing %s", path) }
	return c.Apply(&f)
}

func (c *Config) Apply(f *File) error {
	if f.Jobs > 0 { c.Jobs = f.Jobs }
	if f.Output != "" { c.OutputDir = f.Output }
	if f.Filter != "" { c.FilterFile = f.Filter }
	if f.MaxInferIterations > 0 { c.MaxInferIterations = f.MaxInferIterations }
	if f.MaxJNINameLength > 0 { c.MaxJNINameLength = f.MaxJNINameLength }
	for name, on := range f.Features {
		ft, ok := c.FeatureMap[name]
		if !ok { return errors.Errorf("unknown feature %q", name) }
		c.SetFeature(ft, on)
	}
	for name, on := range f.Warnings {
		wt, ok := c.WarningMap[name]
		if !ok { return errors.Errorf("unknown warning %q", name) }
		c.SetWarning(wt, on)
	}
	for _, flag := range f.Flags {
		if err := c.ApplyFlag(flag); err != nil { return err }
	}
	return nil
}
