// Package command implements the bulk operation drivers behind each CLI
// subcommand. Commands stream results to their sinks as they arrive and
// follow one failure policy: setup errors are returned (fatal), per-item
// errors inside a batch are logged as warnings and counted.
package command

import (
	"fmt"
	"io"
)

// Summary counts the per-item outcomes of a batch command.
type Summary struct {
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
}

// progress prints an "N / total" counter after each processed item.
type progress struct {
	w     io.Writer
	total int
	n     int
}

func newProgress(w io.Writer, total int) *progress {
	if w == nil {
		w = io.Discard
	}
	return &progress{w: w, total: total}
}

func (p *progress) step() {
	p.n++
	fmt.Fprintf(p.w, "\r%d / %d", p.n, p.total)
}

func (p *progress) done() {
	if p.n > 0 {
		fmt.Fprintln(p.w)
	}
}
