package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/sadam-codes/smart-pdf-summarizer/internal/render"
	"github.com/sadam-codes/smart-pdf-summarizer/internal/speech"
)

// terminal prints status messages to one stream and the summary to another.
type terminal struct {
	out    io.Writer
	status io.Writer

	mu     sync.Mutex
	next   int
	marked *color.Color
	info   *color.Color
	ok     *color.Color
	fail   *color.Color
}

func newTerminal(out, status io.Writer) *terminal {
	return &terminal{
		out:    out,
		status: status,
		marked: color.New(color.BgBlack, color.FgHiWhite, color.Bold),
		info:   color.New(color.FgCyan),
		ok:     color.New(color.FgGreen),
		fail:   color.New(color.FgRed),
	}
}

func (t *terminal) Info(msg string)    { t.info.Fprintln(t.status, msg) }
func (t *terminal) Success(msg string) { t.ok.Fprintln(t.status, msg) }
func (t *terminal) Error(msg string)   { t.fail.Fprintln(t.status, msg) }

func (t *terminal) PrintSummary(summary string) {
	fmt.Fprintln(t.out, summary)
}

// Highlighter returns a narrator callback that writes each spoken word as it
// is reached, the current one highlighted.
func (t *terminal) Highlighter(summary string) func(speech.State) {
	words := render.Words(summary)
	t.mu.Lock()
	t.next = 0
	t.mu.Unlock()

	return func(s speech.State) {
		if !s.Speaking || s.Word == render.NoHighlight || s.Word >= len(words) {
			return
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		// words skipped by the synthesizer are printed plain
		for ; t.next < s.Word; t.next++ {
			fmt.Fprint(t.out, words[t.next], " ")
		}
		if t.next == s.Word {
			t.marked.Fprint(t.out, words[s.Word])
			fmt.Fprint(t.out, " ")
			t.next++
		}
	}
}

func (t *terminal) EndNarration() {
	fmt.Fprintln(t.out)
}
