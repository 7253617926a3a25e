// Package speech reads a summary aloud and reports which word is being
// spoken so callers can highlight it.
package speech

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sadam-codes/smart-pdf-summarizer/internal/render"
)

// DefaultWPM is the pace used when a synthesizer is built with no rate.
const DefaultWPM = 180

// Synthesizer speaks text and reports the byte offset of each word as it
// starts. Speak blocks until the text is finished or ctx is cancelled.
type Synthesizer interface {
	Speak(ctx context.Context, text string, rate float64, onBoundary func(charIndex int)) error
}

// State is a snapshot of the narrator. Word is render.NoHighlight when
// nothing is being spoken.
type State struct {
	Speaking bool
	Word     int
}

// Narrator drives a Synthesizer for one summary at a time. onChange runs on
// the narration goroutine and must not call Cancel.
type Narrator struct {
	synth    Synthesizer
	rate     float64
	onChange func(State)
	log      logrus.FieldLogger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	gen    uint64
	done   chan struct{}
}

// NewNarrator returns an idle narrator. onChange may be nil.
func NewNarrator(synth Synthesizer, rate float64, onChange func(State), log logrus.FieldLogger) *Narrator {
	if rate <= 0 {
		rate = 1
	}
	if onChange == nil {
		onChange = func(State) {}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Narrator{
		synth:    synth,
		rate:     rate,
		onChange: onChange,
		log:      log,
		state:    State{Word: render.NoHighlight},
	}
}

// State returns a snapshot of the narration state.
func (n *Narrator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// SetRate changes the rate used by the next Start.
func (n *Narrator) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	n.mu.Lock()
	n.rate = rate
	n.mu.Unlock()
}

// Toggle stops narration when speaking and starts it otherwise. An empty
// summary does nothing.
func (n *Narrator) Toggle(ctx context.Context, summary string) {
	if n.State().Speaking {
		n.Cancel()
		return
	}
	n.Start(ctx, summary)
}

// Start begins reading summary. Any narration already running is cancelled
// first.
func (n *Narrator) Start(ctx context.Context, summary string) {
	if summary == "" {
		return
	}
	n.Cancel()

	n.mu.Lock()
	ctx, cancel := context.WithCancel(ctx)
	n.gen++
	gen := n.gen
	n.cancel = cancel
	done := make(chan struct{})
	n.done = done
	rate := n.rate
	n.state = State{Speaking: true, Word: render.NoHighlight}
	snapshot := n.state
	n.mu.Unlock()
	n.onChange(snapshot)

	go func() {
		defer close(done)
		err := n.synth.Speak(ctx, summary, rate, func(charIndex int) {
			n.update(gen, State{Speaking: true, Word: render.WordIndexAt(summary, charIndex)})
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			n.log.WithError(err).Warn("read aloud failed")
		}
		n.update(gen, State{Word: render.NoHighlight})
	}()
}

// Cancel stops narration and resets the speaking flag and highlight.
func (n *Narrator) Cancel() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	wasSpeaking := n.state.Speaking
	n.gen++
	n.state = State{Word: render.NoHighlight}
	snapshot := n.state
	n.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	if wasSpeaking {
		n.onChange(snapshot)
	}
}

// Wait blocks until the current narration ends.
func (n *Narrator) Wait() {
	n.mu.Lock()
	done := n.done
	n.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (n *Narrator) update(gen uint64, s State) {
	n.mu.Lock()
	if gen != n.gen {
		n.mu.Unlock()
		return
	}
	changed := n.state != s
	n.state = s
	n.mu.Unlock()
	if changed {
		n.onChange(s)
	}
}

// PacedSynthesizer walks the text at a fixed words-per-minute pace without
// producing sound. The CLI pairs it with terminal highlighting.
type PacedSynthesizer struct {
	WPM int
}

func (p PacedSynthesizer) Speak(ctx context.Context, text string, rate float64, onBoundary func(charIndex int)) error {
	wpm := p.WPM
	if wpm <= 0 {
		wpm = DefaultWPM
	}
	if rate <= 0 {
		rate = 1
	}
	perWord := time.Duration(float64(time.Minute) / (float64(wpm) * rate))

	offset := 0
	for _, word := range render.Words(text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if word != "" && onBoundary != nil {
			onBoundary(offset)
		}
		offset += len(word) + 1

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(perWord):
		}
	}
	return nil
}
