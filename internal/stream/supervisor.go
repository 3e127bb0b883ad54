package stream

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Supervisor tracks every live session so shutdown can cancel them and
// wait for each to reach Closed before the process exits.
type Supervisor struct {
	mu       sync.Mutex
	sessions map[*Session]context.CancelFunc
	wg       sync.WaitGroup
	closed   bool
	log      zerolog.Logger
}

func NewSupervisor(logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		sessions: make(map[*Session]context.CancelFunc),
		log:      logger.With().Str("component", "supervisor").Logger(),
	}
}

// Serve runs the session to completion and removes it from the registry
// when it terminates. Sessions arriving after Shutdown began are closed
// immediately.
func (sv *Supervisor) Serve(s *Session) error {
	sv.mu.Lock()
	if sv.closed {
		sv.mu.Unlock()
		s.close()
		return ErrShuttingDown
	}
	ctx, cancel := context.WithCancel(context.Background())
	sv.sessions[s] = cancel
	sv.wg.Add(1)
	sv.mu.Unlock()

	defer func() {
		cancel()
		sv.mu.Lock()
		delete(sv.sessions, s)
		sv.mu.Unlock()
		sv.wg.Done()
	}()

	return s.Run(ctx)
}

// Count returns the number of live sessions.
func (sv *Supervisor) Count() int {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return len(sv.sessions)
}

// Shutdown cancels all live sessions and waits for them to close,
// bounded by ctx. Canceling one session never touches another; each
// releases its own subscription and connection on the way out.
func (sv *Supervisor) Shutdown(ctx context.Context) error {
	sv.mu.Lock()
	sv.closed = true
	n := len(sv.sessions)
	for _, cancel := range sv.sessions {
		cancel()
	}
	sv.mu.Unlock()

	if n > 0 {
		sv.log.Info().Int("sessions", n).Msg("draining stream sessions")
	}

	done := make(chan struct{})
	go func() {
		sv.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
