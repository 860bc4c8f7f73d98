package engine

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/silver2dream/ai-implement-kit/internal/trace"
)

// InterruptGuard is constructed per run and registered around the task
// loop. On SIGINT/SIGTERM it saves the workflow state, prints a resume
// hint, and cancels the run context. There is no process-wide signal
// state; Close unregisters on every exit path.
type InterruptGuard struct {
	ch   chan os.Signal
	done chan struct{}
	once sync.Once
}

// NewInterruptGuard registers the handler. cancel aborts the run
// context; the session's state is saved before cancellation.
func NewInterruptGuard(s *Session, cancel context.CancelFunc) *InterruptGuard {
	g := &InterruptGuard{
		ch:   make(chan os.Signal, 1),
		done: make(chan struct{}),
	}
	signal.Notify(g.ch, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-g.ch:
			if s.State != nil {
				if err := s.State.Save(); err != nil {
					fmt.Fprintf(os.Stderr, "warning: could not save state on interrupt: %v\n", err)
				}
			}
			s.emit(trace.ComponentEngine, trace.TypeInterrupt, trace.LevelWarn,
				trace.WithData(map[string]any{"signal": sig.String()}))
			fmt.Fprintf(os.Stderr, "\nInterrupted (%v). Progress saved; re-run `implkit run --idea %s` to resume.\n",
				sig, s.IdeaDir)
			cancel()
		case <-g.done:
		}
	}()

	return g
}

// Close unregisters the handler. Safe to call more than once.
func (g *InterruptGuard) Close() {
	g.once.Do(func() {
		signal.Stop(g.ch)
		close(g.done)
	})
}
