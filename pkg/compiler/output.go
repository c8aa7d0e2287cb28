package compiler

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/xplshn/dcc/pkg/config"
	"github.com/xplshn/dcc/pkg/util"
)

const (
	SourceHeader   = "#include \"Dex2C.h\"\n"
	ManifestName   = "compiled_methods.txt"
	PrototypesName = "prototypes.h"
)

// WriteStats counts what Write did with each translated method.
type WriteStats struct {
	Written, Unchanged int
}

// Write stores every translated method of b in dir as <JNI long name>.cpp,
// followed by the manifest and, with dynamic registration, the prototype
// header. Files whose content would not change are left alone.
func Write(dir string, b *Batch, conf *config.Config, log *util.Logger) (WriteStats, error) {
	var stats WriteStats
	if err := os.MkdirAll(dir, 0o755); err != nil { return stats, errors.Wrap(err, "create output dir") }

	var names, protos []string
	for _, c := range b.Compiled {
		path := filepath.Join(dir, c.Unit.Name+".cpp")
		changed, err := writeIfChanged(path, []byte(SourceHeader+c.Unit.Source), func() {
			util.Warn(log, conf, config.WarnOverwrite, path, "overwriting file for %s", c.Method.FullName())
		})
		if err != nil { return stats, err }
		if changed { stats.Written++ } else { stats.Unchanged++ }
		names = append(names, c.Method.FullName())
		if c.Unit.Prototype != "" { protos = append(protos, c.Unit.Prototype+";\n") }
	}

	sort.Strings(names)
	if _, err := writeIfChanged(filepath.Join(dir, ManifestName), []byte(strings.Join(names, "\n")), nil); err != nil {
		return stats, err
	}
	if conf.IsFeatureEnabled(config.FeatDynamicRegister) {
		sort.Strings(protos)
		if _, err := writeIfChanged(filepath.Join(dir, PrototypesName), []byte(strings.Join(protos, "")), nil); err != nil {
			return stats, err
		}
	}
	log.Infof("%d sources written, %d unchanged in %s", stats.Written, stats.Unchanged, dir)
	return stats, nil
}

// writeIfChanged compares content with the file at path by xxhash and writes
// only on a difference. overwrite runs before an existing file is replaced.
func writeIfChanged(path string, content []byte, overwrite func()) (bool, error) {
	old, err := os.ReadFile(path)
	switch {
	case err == nil:
		if xxhash.Sum64(old) == xxhash.Sum64(content) { return false, nil }
		if overwrite != nil { overwrite() }
	case !os.IsNotExist(err):
		return false, errors.Wrapf(err, "read %s", path)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil { return false, errors.Wrapf(err, "write %s", path) }
	return true, nil
}
