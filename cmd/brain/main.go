// Brain CLI - compiles tile brains, disassembles them and runs them
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/brain/brain"
)

var log = commonlog.GetLogger("brain.cmd")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("brain", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ticks := fs.Int("ticks", -1, "Ticks to run (default from brain.toml, 0 compiles only)")
	disasm := fs.Bool("disasm", false, "Print the compiled program")
	output := fs.String("o", "", "Write the compiled program to a .bbc file")
	watchMode := fs.Bool("watch", false, "Run in real time and reload when project files change")
	config := fs.String("config", "", "Directory holding brain.toml (default: search upward)")
	verbosity := fs.Int("v", 0, "Log verbosity: 0 warnings, 1 notices, 2 info, 3 debug")
	logFile := fs.String("log", "", "Log to this file instead of stderr")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: brain [options] [project-dir | brain.yaml | program.bbc]\n\n")
		fmt.Fprintf(stderr, "Compiles a tile brain and runs it for a number of ticks.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  brain -ticks 0 -disasm           # Compile ./brain.toml, print bytecode\n")
		fmt.Fprintf(stderr, "  brain -ticks 100 patrol.yaml     # Run a bare definition for 100 ticks\n")
		fmt.Fprintf(stderr, "  brain -o patrol.bbc ./patrol     # Compile a project to a program file\n")
		fmt.Fprintf(stderr, "  brain -watch ./patrol            # Run live, reloading on edits\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return 2
	}

	var logPath *string
	if *logFile != "" {
		logPath = logFile
	}
	commonlog.Configure(*verbosity-1, logPath)

	p, err := openProject(fs.Arg(0), *config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	prog, svc, diags, err := p.build()
	printDiagnostics(stderr, diags)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *disasm {
		fmt.Fprint(stdout, prog.Disassemble(svc.Functions))
	}
	out := *output
	if out == "" && p.progPath == "" {
		out = p.output()
	}
	if out != "" {
		if err := writeProgram(out, prog); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		log.Infof("wrote %s", out)
	}

	n := *ticks
	if n < 0 {
		n = p.ticks()
	}
	if n == 0 && !*watchMode {
		return 0
	}

	b, err := brain.New(prog, svc, brain.Options{Limits: p.limits()})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer b.Stop()

	if *watchMode {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		err = watch(ctx, p, b, n, stderr)
	} else {
		err = runTicks(b, n, p.tickInterval())
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	report(stdout, b)
	return 0
}
