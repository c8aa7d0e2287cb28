package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xplshn/dcc/pkg/cli"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	require.True(t, cfg.IsFeatureEnabled(FeatTrace))
	require.True(t, cfg.IsFeatureEnabled(FeatPolymorphicConst))
	require.False(t, cfg.IsFeatureEnabled(FeatDynamicRegister))
	require.False(t, cfg.IsWarningEnabled(WarnFilter))
	require.Equal(t, DefaultMaxInferIterations, cfg.MaxInferIterations)
	require.Equal(t, DefaultMaxJNINameLength, cfg.MaxJNINameLength)
	require.Positive(t, cfg.Jobs)
	require.Len(t, cfg.Features, int(FeatCount))
	require.Len(t, cfg.Warnings, int(WarnCount))
}

func TestApplyFlag(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.ApplyFlag("-Fno-trace"))
	require.False(t, cfg.IsFeatureEnabled(FeatTrace))
	require.NoError(t, cfg.ApplyFlag("-Fdynamic-register"))
	require.True(t, cfg.IsFeatureEnabled(FeatDynamicRegister))
	require.NoError(t, cfg.ApplyFlag("-Wall"))
	require.True(t, cfg.IsWarningEnabled(WarnFilter))
	require.NoError(t, cfg.ApplyFlag("-Wno-overwrite"))
	require.False(t, cfg.IsWarningEnabled(WarnOverwrite))

	require.Error(t, cfg.ApplyFlag("-Fbogus"))
	require.Error(t, cfg.ApplyFlag("-Xtrace"))
}

func TestFlagGroups(t *testing.T) {
	cfg := NewConfig()
	fs := cli.NewFlagSet()
	warnings, features := cfg.SetupFlagGroups(fs)
	require.NoError(t, fs.Parse([]string{"-Fno-verify-ssa", "-Wfilter", "in.yaml"}))
	cfg.ApplyFlagGroups(warnings, features)

	require.False(t, cfg.IsFeatureEnabled(FeatVerifySSA))
	require.True(t, cfg.IsWarningEnabled(WarnFilter))
	require.True(t, cfg.IsFeatureEnabled(FeatTrace), "untouched flags keep their default")
	require.Equal(t, []string{"in.yaml"}, fs.Args())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dcc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jobs: 3
output: out/src
filter: filter.txt
max_infer_iterations: 40
features:
  trace: false
  dynamic-register: true
warnings:
  long-name: false
flags: [-Wall, -Wno-extra]
`), 0o644))

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFile(path))
	require.Equal(t, 3, cfg.Jobs)
	require.Equal(t, "out/src", cfg.OutputDir)
	require.Equal(t, "filter.txt", cfg.FilterFile)
	require.Equal(t, 40, cfg.MaxInferIterations)
	require.Equal(t, DefaultMaxJNINameLength, cfg.MaxJNINameLength)
	require.False(t, cfg.IsFeatureEnabled(FeatTrace))
	require.True(t, cfg.IsFeatureEnabled(FeatDynamicRegister))
	require.True(t, cfg.IsWarningEnabled(WarnLongName), "flags apply after the maps")
	require.True(t, cfg.IsWarningEnabled(WarnFilter))
	require.False(t, cfg.IsWarningEnabled(WarnExtra))
}

func TestLoadFileRejectsUnknownNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dcc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("features:\n  turbo: true\n"), 0o644))
	require.Error(t, NewConfig().LoadFile(path))
	require.Error(t, NewConfig().LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
}
