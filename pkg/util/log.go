package util

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"debug", "info", "warning", "error"}

func (l Level) String() string { return levelNames[l] }

// Logger is the diagnostics sink handed to every stage. A nil *Logger
// discards everything, so stages can run without one.
type Logger struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
	tags  [len(levelNames)]*color.Color
}

// NewLogger writes lines at or above level to w. Level tags are coloured
// only when w is a terminal.
func NewLogger(w io.Writer, level Level) *Logger {
	l := &Logger{w: w, level: level}
	l.tags = [...]*color.Color{
		color.New(color.FgCyan),
		color.New(color.FgGreen),
		color.New(color.FgYellow, color.Bold),
		color.New(color.FgRed, color.Bold),
	}
	tty := false
	if f, ok := w.(*os.File); ok { tty = term.IsTerminal(int(f.Fd())) }
	for _, c := range l.tags {
		if tty { c.EnableColor() } else { c.DisableColor() }
	}
	return l
}

func (l *Logger) SetLevel(level Level) {
	if l != nil { l.level = level }
}

func (l *Logger) Enabled(level Level) bool { return l != nil && level >= l.level }

func (l *Logger) logf(level Level, format string, args ...any) {
	if !l.Enabled(level) { return }
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "dcc: %s: %s\n", l.tags[level].Sprint(level.String()), strings.TrimRight(msg, "\n"))
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }
