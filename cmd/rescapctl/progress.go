package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// progressFunc returns a trial/delay counter drawn in place on out, or nil
// when out is not an interactive terminal.
func progressFunc(out *os.File) func(done, total int) {
	fd := out.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return nil
	}
	return progressWriter(out)
}

func progressWriter(w io.Writer) func(done, total int) {
	return func(done, total int) {
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(done) / float64(total)
		}
		fmt.Fprintf(w, "\rstep %d/%d (%.0f%%)", done, total, pct)
		if done >= total {
			fmt.Fprintln(w)
		}
	}
}
