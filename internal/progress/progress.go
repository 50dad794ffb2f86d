// Package progress overlays a terminal activity indicator on long running operations.
package progress

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/metalagman/anvil/internal/logging"
	"github.com/rs/zerolog/log"
)

const clearLine = "\r\033[K"

// Hammer is the default frame set: a hammer striking with rotating sparks.
var Hammer = spinner.Spinner{
	Frames: []string{"🔨 ✨", "⚒️ 💥", "🔨 ⭐", "⚒️ 🌟"},
	FPS:    300 * time.Millisecond,
}

var styles = map[string]spinner.Spinner{
	"hammer": Hammer,
	"dots":   spinner.Dot,
	"line":   spinner.Line,
}

var frameStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F4D03F"))

// Indicator renders an animation while a wrapped operation runs.
type Indicator struct {
	out      io.Writer
	frames   []string
	interval time.Duration
	fixed    bool
	animate  bool
	active   atomic.Bool
	stops    atomic.Int32
}

// Option configures an Indicator.
type Option func(*Indicator)

// WithInterval overrides the frame interval, also the one of a style selected by WithStyle.
// A non-positive d is ignored.
func WithInterval(d time.Duration) Option {
	return func(i *Indicator) {
		if d > 0 {
			i.interval = d
			i.fixed = true
		}
	}
}

// WithStyle selects a named frame set and its frame rate. "none" disables the animation.
func WithStyle(name string) Option {
	return func(i *Indicator) {
		if name == "none" {
			i.animate = false
			return
		}
		if s, ok := styles[name]; ok {
			i.frames = s.Frames
			if !i.fixed {
				i.interval = s.FPS
			}
		}
	}
}

// WithAnimation forces the animation on or off regardless of the output type.
func WithAnimation(enabled bool) Option {
	return func(i *Indicator) {
		i.animate = enabled
	}
}

// New creates an indicator writing to out. Animation is enabled only for terminals.
func New(out io.Writer, opts ...Option) *Indicator {
	ind := &Indicator{
		out:      out,
		frames:   Hammer.Frames,
		interval: Hammer.FPS,
		animate:  logging.IsTerminal(out),
	}
	for _, opt := range opts {
		opt(ind)
	}
	return ind
}

// Run executes op while the indicator animates label. The indicator is stopped and its line
// cleared before Run returns, whatever op returns. Nested calls run op without a second
// indicator.
func Run[T any](ctx context.Context, ind *Indicator, label string, op func(context.Context) (T, error)) (T, error) {
	if ind == nil || !ind.active.CompareAndSwap(false, true) {
		return op(ctx)
	}
	stop := ind.start(label)
	defer func() {
		stop()
		ind.active.Store(false)
	}()
	return op(ctx)
}

// Do is Run for operations without a result value.
func Do(ctx context.Context, ind *Indicator, label string, op func(context.Context) error) error {
	_, err := Run(ctx, ind, label, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func (i *Indicator) start(label string) func() {
	if !i.animate {
		return func() { i.stops.Add(1) }
	}

	var running atomic.Bool
	running.Store(true)
	wake := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(i.interval)
		defer ticker.Stop()

		for frame := 0; running.Load(); frame++ {
			text := frameStyle.Render(i.frames[frame%len(i.frames)])
			if _, err := fmt.Fprintf(i.out, "\r%s Smashing through the code... %s", text, label); err != nil {
				log.Debug().Err(err).Msg("progress: write frame")
				return
			}
			select {
			case <-wake:
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			running.Store(false)
			close(wake)
			<-done
			_, _ = io.WriteString(i.out, clearLine)
			i.stops.Add(1)
		})
	}
}
