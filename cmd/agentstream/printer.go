package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/fwojciec/agentstream"
	bt "github.com/fwojciec/agentstream/bubbletea"
	"github.com/rivo/uniseg"
)

// printer writes a streamed answer to a terminal: content as it arrives,
// errors in red and a green summary on completion.
type printer struct {
	out    io.Writer
	errOut io.Writer
	errors int
}

func newPrinter(out, errOut io.Writer) *printer {
	return &printer{out: out, errOut: errOut}
}

func (p *printer) Sinks() agentstream.Sinks {
	return agentstream.Sinks{
		OnInterval: func(r agentstream.Result) {
			fmt.Fprint(p.out, r.Segment)
		},
		OnError: func(err error) {
			p.errors++
			fmt.Fprintln(p.errOut, color.RedString("error: %s", bt.ErrorMessage(err)))
		},
		OnComplete: func(r agentstream.Result) {
			if r.Full != "" {
				fmt.Fprintln(p.out)
			}
			n := uniseg.GraphemeClusterCount(r.Full)
			if p.errors > 0 {
				fmt.Fprintln(p.errOut, color.YellowString("✗ %d chars, %d errors", n, p.errors))
				return
			}
			fmt.Fprintln(p.errOut, color.GreenString("✓ %d chars", n))
		},
	}
}
