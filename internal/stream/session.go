// Package stream turns websocket connections into live, ordered counter
// feeds: a handshake, one snapshot frame per configured item, then a push
// for every item that changes.
package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/tallyboard/backend/internal/config"
	"github.com/tallyboard/backend/internal/counter"
	"github.com/tallyboard/backend/internal/notify"
	"github.com/tallyboard/backend/internal/wire"
)

// Session owns one client connection and its notifier subscription.
// All frames are written from the Run goroutine; a side goroutine drains
// client messages purely to detect disconnects.
type Session struct {
	id       string
	conn     *websocket.Conn
	store    *counter.Store
	notifier *notify.Notifier

	handshakeTimeout time.Duration
	writeTimeout     time.Duration

	log       zerolog.Logger
	state     atomic.Int32
	closeOnce sync.Once
	sub       *notify.Subscription
}

func NewSession(conn *websocket.Conn, store *counter.Store, notifier *notify.Notifier, cfg config.StreamConfig, logger zerolog.Logger) *Session {
	id := ulid.Make().String()
	return &Session{
		id:               id,
		conn:             conn,
		store:            store,
		notifier:         notifier,
		handshakeTimeout: cfg.HandshakeTimeout,
		writeTimeout:     cfg.WriteTimeout,
		log:              logger.With().Str("session", id).Logger(),
	}
}

func (s *Session) ID() string { return s.id }

// State reports the session's current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
	s.log.Debug().Stringer("state", st).Msg("session state")
}

// Run drives the session to completion: handshake, subscribe, initial
// sync, live loop. It returns when the client disconnects, violates the
// protocol, falls too far behind, or ctx is canceled. Resources are
// released exactly once on the way out.
func (s *Session) Run(ctx context.Context) error {
	defer s.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Cancellation closes the connection so a session blocked on a read
	// or a slow write unblocks immediately instead of riding out its
	// deadline.
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	if err := s.awaitHandshake(); err != nil {
		return err
	}

	// Subscribe before the first snapshot read. An increment landing
	// between the two is then delivered as a change event rather than
	// silently missed.
	s.sub = s.notifier.Subscribe()
	defer s.sub.Cancel()

	go s.readUntilClosed(cancel)

	s.setState(StateInitialSync)
	for _, it := range s.store.Items() {
		if err := s.push(ctx, it.ID); err != nil {
			return err
		}
	}

	s.setState(StateStreaming)
	return s.stream(ctx)
}

// awaitHandshake reads the init message under a deadline. A timeout,
// malformed message, or wrong type rejects the connection.
func (s *Session) awaitHandshake() error {
	s.conn.SetReadDeadline(time.Now().Add(s.handshakeTimeout))

	var h Handshake
	if err := s.conn.ReadJSON(&h); err != nil {
		return fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	if h.Type != HandshakeInit {
		return fmt.Errorf("%w: type %q", ErrBadHandshake, h.Type)
	}

	s.conn.SetReadDeadline(time.Time{})
	return nil
}

// readUntilClosed discards anything the client sends after the handshake
// and cancels the session when the read side fails, which is how a
// disconnect surfaces.
func (s *Session) readUntilClosed(cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Session) stream(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-s.sub.Events():
			if !ok {
				if s.sub.Dropped() {
					return ErrLagging
				}
				return nil
			}
			for _, it := range s.coalesce(item) {
				if err := s.push(ctx, it); err != nil {
					return err
				}
			}
		}
	}
}

// coalesce drains whatever change events are already queued and collapses
// duplicates, so a burst of increments to one item costs a single
// snapshot push. Counts only grow, so re-reading the latest state loses
// nothing.
func (s *Session) coalesce(first int) []int {
	items := []int{first}
	seen := map[int]bool{first: true}
	for {
		select {
		case item, ok := <-s.sub.Events():
			if !ok {
				return items
			}
			if !seen[item] {
				seen[item] = true
				items = append(items, item)
			}
		default:
			return items
		}
	}
}

// push snapshots one item, encodes it, and writes the frame.
func (s *Session) push(ctx context.Context, item int) error {
	counts, err := s.store.Snapshot(ctx, item)
	if err != nil {
		return err
	}
	frame := wire.Encode(uint16(item), counts)

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("stream: push item %d: %w", item, err)
	}
	return nil
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		s.conn.Close()
	})
}
