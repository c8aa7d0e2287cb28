package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	fs := NewFlagSet()
	var (
		out     string
		jobs    int
		verbose bool
		wall    bool
	)
	fs.String(&out, "output", "o", "jni/nc", "Output directory", "dir")
	fs.Int(&jobs, "jobs", "j", 1, "Parallel jobs", "n")
	fs.Bool(&verbose, "verbose", "v", false, "Verbose output")
	fs.Bool(&wall, "Wall", "", false, "Enable all warnings")

	require.NoError(t, fs.Parse([]string{"-o", "out", "--jobs=4", "-v", "-Wall", "a.yaml", "--", "-b.yaml"}))
	require.Equal(t, "out", out)
	require.Equal(t, 4, jobs)
	require.True(t, verbose)
	require.True(t, wall)
	require.Equal(t, []string{"a.yaml", "-b.yaml"}, fs.Args())

	require.NoError(t, fs.Parse([]string{"-j8", "--verbose=false"}))
	require.Equal(t, 8, jobs)
	require.False(t, verbose)

	require.Error(t, fs.Parse([]string{"--jobs", "many"}))
	require.Error(t, fs.Parse([]string{"--nope"}))
	require.Error(t, fs.Parse([]string{"-x"}))
	require.Error(t, fs.Parse([]string{"-j"}))
}

func TestGroupSwitches(t *testing.T) {
	fs := NewFlagSet()
	var wall bool
	fs.Bool(&wall, "Wall", "", false, "Enable all warnings")
	trace := &Switch{Name: "trace", Default: true}
	gc := &Switch{Name: "local-ref-gc", Default: true}
	fs.AddGroup("Feature Flags", "feature", "F", []*Switch{trace, gc})
	filter := &Switch{Name: "filter"}
	fs.AddGroup("Warning Flags", "warning", "W", []*Switch{filter})

	require.NoError(t, fs.Parse([]string{"-Ftrace", "-Fno-trace", "-Wfilter", "-Wall", "in.yaml"}))
	require.True(t, trace.Set)
	require.False(t, trace.On(), "the last switch wins")
	require.False(t, gc.Set)
	require.True(t, gc.On())
	require.True(t, filter.On())
	require.True(t, wall, "a plain flag takes precedence over the group prefix")
	require.Equal(t, []string{"in.yaml"}, fs.Args())

	err := fs.Parse([]string{"-Fturbo"})
	require.EqualError(t, err, "unknown feature: -Fturbo")
}

func TestWriteHelp(t *testing.T) {
	app := NewApp("dcc")
	app.Synopsis = "[options] <input.yaml> ..."
	app.Authors = []string{"xplshn"}
	var jobs int
	app.FlagSet.Int(&jobs, "jobs", "j", 4, "Translate up to <n> methods at once", "n")
	app.FlagSet.AddGroup("Feature Flags", "feature", "F", []*Switch{
		{Name: "trace", Usage: "Log every instruction", Default: true},
		{Name: "dynamic-register", Usage: "Register natives at load time"},
	})

	var out bytes.Buffer
	app.WriteHelp(&out, 100)
	help := out.String()
	require.True(t, strings.HasPrefix(help, "Usage: dcc [options] <input.yaml> ...\n"), help)
	require.Contains(t, help, "-j, --jobs <n>")
	require.Contains(t, help, "|4|")
	require.Contains(t, help, "-F<feature>")
	require.Contains(t, help, "-Fno-<feature>")
	require.Regexp(t, `trace\s+Log every instruction\s+\|x\|`, help)
	require.Regexp(t, `dynamic-register\s+Register natives at load time\s+\|-\|`, help)
	require.Less(t, strings.Index(help, "dynamic-register"), strings.Index(help, "trace "))
	require.Contains(t, help, "Copyright (c) xplshn and contributors")
}
