package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/chazu/brain/brain"
	"github.com/chazu/brain/compiler"
	"github.com/chazu/brain/manifest"
	"github.com/chazu/brain/vm"
)

// runTicks thinks n times with a fixed tick length, as fast as possible.
func runTicks(b *brain.Brain, n int, dt time.Duration) error {
	for i := 0; i < n; i++ {
		if err := b.Think(dt); err != nil {
			return err
		}
	}
	return nil
}

// watch runs b in real time until ctx is done or limit ticks have passed
// (0 for no limit), rebuilding and reloading it when project files change.
func watch(ctx context.Context, p *project, b *brain.Brain, limit int, stderr io.Writer) error {
	w, err := manifest.NewWatcher(p.watchDirs()...)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()

	ticker := time.NewTicker(p.tickInterval())
	defer ticker.Stop()

	for n := 0; limit == 0 || n < limit; {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := b.Think(p.tickInterval()); err != nil {
				return err
			}
			n++
		case path, ok := <-w.Events:
			if !ok {
				return nil
			}
			log.Infof("%s changed, rebuilding", path)
			if err := rebuild(p, b, stderr); err != nil {
				fmt.Fprintf(stderr, "reload failed: %v\n", err)
				continue
			}
			ticker.Reset(p.tickInterval())
		case err, ok := <-w.Errors:
			if ok {
				log.Warningf("watch: %v", err)
			}
		}
	}
	return nil
}

func rebuild(p *project, b *brain.Brain, stderr io.Writer) error {
	if err := p.reload(); err != nil {
		return err
	}
	prog, svc, diags, err := p.build()
	printDiagnostics(stderr, diags)
	if err != nil {
		return err
	}
	return b.Reload(prog, svc)
}

// report prints the brain's state after a run.
func report(out io.Writer, b *brain.Brain) {
	page := "-"
	if ap := b.ActivePage(); ap != nil {
		page = ap.Meta.Name
	}
	clock := b.Clock()
	fmt.Fprintf(out, "brain %s: tick %d, %.3fs elapsed, page %s\n", b.ID(), clock.Tick, clock.Elapsed.Seconds(), page)

	globals := b.Globals()
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  $%s = %v\n", name, globals[name])
	}

	for _, f := range b.Faults() {
		fmt.Fprintf(out, "  fault: %s\n", f)
	}
}

func printDiagnostics(w io.Writer, diags compiler.Diagnostics) {
	if s := diags.String(); s != "" {
		fmt.Fprintln(w, s)
	}
}

// writeProgram encodes prog to path.
func writeProgram(path string, prog *vm.BrainProgram) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := vm.WriteProgram(f, prog); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
