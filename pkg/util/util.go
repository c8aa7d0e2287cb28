package util

import (
	"fmt"
	"io"
	"os"

	"github.com/xplshn/dcc/pkg/config"
)

// Error prints a formatted error about loc and exits the program.
func Error(log *Logger, loc string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if loc != "" { msg = loc + ": " + msg }
	if log == nil {
		fmt.Fprintf(os.Stderr, "dcc: error: %s\n", msg)
	} else {
		log.Errorf("%s", msg)
	}
	os.Exit(1)
}

// Warn prints a formatted warning about loc if wt is enabled in cfg. The
// warning's flag name is appended so it can be silenced.
func Warn(log *Logger, cfg *config.Config, wt config.Warning, loc string, format string, args ...any) {
	if !cfg.IsWarningEnabled(wt) { return }
	msg := fmt.Sprintf(format, args...)
	if loc != "" { msg = loc + ": " + msg }
	log.Warnf("%s [-W%s]", msg, cfg.Warnings[wt].Name)
}

// PrintFeatures prints the current status of all features.
func PrintFeatures(w io.Writer, cfg *config.Config) {
	for i := config.Feature(0); i < config.FeatCount; i++ {
		info := cfg.Features[i]
		fmt.Fprintf(w, "  - %-20s: %v (%s)\n", info.Name, info.Enabled, info.Description)
	}
}

// PrintWarnings prints the current status of all warnings.
func PrintWarnings(w io.Writer, cfg *config.Config) {
	for i := config.Warning(0); i < config.WarnCount; i++ {
		info := cfg.Warnings[i]
		fmt.Fprintf(w, "  - %-20s: %v (%s)\n", info.Name, info.Enabled, info.Description)
	}
}
