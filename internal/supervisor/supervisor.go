// Package supervisor groups a process's long-running goroutines (on a match
// engine: the actor loop, the market-data loop, the HTTP and metrics
// servers; on the exchange: the HTTP and metrics servers) under a single
// gopkg.in/tomb.v2 tomb, so one failing goroutine triggers an orderly
// shutdown of the rest instead of leaking them.
package supervisor

import (
	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"
)

// Supervisor owns a tomb.Tomb and a logger for the goroutines registered
// against it.
type Supervisor struct {
	t   tomb.Tomb
	log zerolog.Logger
}

// New creates a Supervisor.
func New(log zerolog.Logger) *Supervisor {
	return &Supervisor{log: log}
}

// Go registers fn to run under the tomb. If fn returns a non-nil error,
// the tomb is killed with it and every other registered goroutine is
// expected to observe Dying() and unwind.
func (s *Supervisor) Go(name string, fn func() error) {
	s.t.Go(func() error {
		err := fn()
		if err != nil {
			s.log.Error().Err(err).Str("goroutine", name).Msg("supervised goroutine exited with error")
		} else {
			s.log.Info().Str("goroutine", name).Msg("supervised goroutine exited")
		}
		return err
	})
}

// Dying returns a channel closed when the supervisor starts shutting down —
// long-running loops should select on this alongside their own work.
func (s *Supervisor) Dying() <-chan struct{} {
	return s.t.Dying()
}

// Kill requests shutdown of every registered goroutine.
func (s *Supervisor) Kill(err error) {
	s.t.Kill(err)
}

// Wait blocks until every registered goroutine has exited, returning the
// first non-nil error any of them returned.
func (s *Supervisor) Wait() error {
	return s.t.Wait()
}
