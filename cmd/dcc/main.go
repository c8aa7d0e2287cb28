package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"

	"github.com/xplshn/dcc/pkg/cli"
	"github.com/xplshn/dcc/pkg/compiler"
	"github.com/xplshn/dcc/pkg/config"
	"github.com/xplshn/dcc/pkg/dex"
	"github.com/xplshn/dcc/pkg/filter"
	"github.com/xplshn/dcc/pkg/util"
)

const defaultFilterFile = "filter.txt"

func main() {
	app := cli.NewApp("dcc")
	app.Version = "0.1.0"
	app.Synopsis = "[options] <input.yaml> ..."
	app.Description = "Translates Dalvik method bodies into C++ functions that run through JNI."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/dcc>"

	var (
		outDir     string
		filterFile string
		configFile string
		jobs       int
		dumpIR     bool
		verbose    bool
		noProgress bool
		wall       bool
		list       bool
	)

	fs := app.FlagSet
	fs.String(&outDir, "output", "o", "", "Write the generated sources into <dir> (default jni/nc).", "dir")
	fs.String(&filterFile, "filter", "", "", "Read method selection rules from <file> (default filter.txt).", "file")
	fs.String(&configFile, "config", "", "", "Load settings from a YAML file; flags override it.", "file")
	fs.Int(&jobs, "jobs", "j", 0, "Translate up to <n> methods at once (default: number of CPUs).", "n")
	fs.Bool(&dumpIR, "dump-ir", "d", false, "Dump the typed SSA form of every selected method and exit.")
	fs.Bool(&verbose, "verbose", "v", false, "Print debug diagnostics.")
	fs.Bool(&noProgress, "no-progress", "", false, "Do not draw a progress bar.")
	fs.Bool(&wall, "Wall", "", false, "Enable all warnings.")
	fs.Bool(&list, "list", "", false, "Print the state of every feature and warning and exit.")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		log := util.NewLogger(os.Stderr, util.LevelInfo)
		if verbose { log.SetLevel(util.LevelDebug) }

		// The config file first, then anything given on the command line.
		if configFile != "" {
			if err := cfg.LoadFile(configFile); err != nil { util.Error(log, configFile, "%v", err) }
		}
		if wall { cfg.SetAllWarnings(true) }
		cfg.ApplyFlagGroups(warningFlags, featureFlags)
		if outDir != "" { cfg.OutputDir = outDir }
		if filterFile != "" { cfg.FilterFile = filterFile }
		if cfg.FilterFile == "" { cfg.FilterFile = defaultFilterFile }
		if jobs > 0 { cfg.Jobs = jobs }

		if list {
			fmt.Println("Features:")
			util.PrintFeatures(os.Stdout, cfg)
			fmt.Println("Warnings:")
			util.PrintWarnings(os.Stdout, cfg)
			return nil
		}
		if len(inputFiles) == 0 { util.Error(log, "", "no input files specified") }

		file := &dex.File{}
		for _, in := range inputFiles {
			f, err := dex.LoadFile(in)
			if err != nil { util.Error(log, in, "%v", err) }
			if len(f.Classes) == 0 { util.Warn(log, cfg, config.WarnExtra, in, "no classes") }
			file.Classes = append(file.Classes, f.Classes...)
		}

		rules, err := filter.LoadRules(cfg.FilterFile)
		if err != nil { util.Error(log, cfg.FilterFile, "%v", err) }

		c := compiler.New(cfg, log)
		methods := c.Select(file, filter.New(rules, file))
		log.Infof("%d of %d methods selected", len(methods), len(file.Methods()))

		if dumpIR {
			for _, m := range methods {
				f, err := c.Lower(m)
				if err != nil {
					log.Warnf("%v", err)
					continue
				}
				fmt.Print(f.Dump())
			}
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var done func(*dex.Method)
		if !noProgress && len(methods) > 0 {
			bar := progressbar.Default(int64(len(methods)), "translating")
			defer bar.Close()
			done = func(*dex.Method) { bar.Add(1) }
		}
		batch, err := c.CompileAll(ctx, methods, done)
		if err != nil { util.Error(log, "", "interrupted: %v", err) }

		for _, me := range batch.Failed {
			util.Warn(log, cfg, config.WarnFailedMethod, me.Method.FullName(), "compile method failed: %v", me.Err)
		}
		if len(batch.Failed) > 0 { printFailures(batch.Failed) }

		if len(batch.Compiled) == 0 {
			log.Infof("no compiled methods")
			return nil
		}
		if _, err := compiler.Write(cfg.OutputDir, batch, cfg, log); err != nil { util.Error(log, cfg.OutputDir, "%v", err) }
		log.Infof("%d methods translated, %d failed", len(batch.Compiled), len(batch.Failed))
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func printFailures(failed []*compiler.MethodError) {
	table := tablewriter.NewWriter(os.Stderr)
	table.SetHeader([]string{"Method", "Kind", "Error"})
	table.SetAutoWrapText(false)
	for _, me := range failed {
		table.Append([]string{me.Method.FullName(), me.Kind.Error(), me.Err.Error()})
	}
	table.Render()
}
