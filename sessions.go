package main

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"
)

// outboundQueue is the per-session unbounded FIFO of marshaled frames.
// Enqueuing never blocks, so the tick loop never waits on a slow session.
type outboundQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames [][]byte
	closed bool
}

func newOutboundQueue() *outboundQueue {
	q := &outboundQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a frame. Returns false once the queue is closed; the caller
// treats that session as terminated.
func (q *outboundQueue) Push(frame []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.frames = append(q.frames, frame)
	q.cond.Signal()
	return true
}

// Pop blocks until a frame is available or the queue is closed and drained.
func (q *outboundQueue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames = q.frames[1:]
	return frame, true
}

func (q *outboundQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Session is one connected transport: the websocket plus the dedicated task
// draining its outbound queue.
type Session struct {
	PlayerID uuid.UUID

	conn  *websocket.Conn
	queue *outboundQueue
	log   zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewSession(playerID uuid.UUID, conn *websocket.Conn, log zerolog.Logger) *Session {
	return &Session{
		PlayerID: playerID,
		conn:     conn,
		queue:    newOutboundQueue(),
		log:      log.With().Str("player", playerID.String()).Logger(),
		done:     make(chan struct{}),
	}
}

// RunWriter drains the outbound queue onto the wire until the queue closes
// or a write fails.
func (s *Session) RunWriter() {
	for {
		frame, ok := s.queue.Pop()
		if !ok {
			return
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			s.log.Warn().Err(err).Msg("outbound write failed, terminating session")
			s.Terminate()
			return
		}
	}
}

// Send marshals and enqueues a frame. A drop is never silent: marshal errors
// and closed-queue sends are logged, and a closed queue marks the session
// as terminating.
func (s *Session) Send(frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.log.Error().Err(err).Msg("dropping unmarshalable outbound frame")
		return
	}
	if !s.queue.Push(data) {
		s.log.Debug().Msg("send on closed session queue")
	}
}

// Terminate closes the producer side of the queue; the writer drains what is
// left and exits.
func (s *Session) Terminate() {
	s.closeOnce.Do(func() {
		s.queue.Close()
		close(s.done)
	})
}

// Done is closed once the session has been terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// SessionRegistry is the concurrent set of connected sessions and the
// broadcast primitives over it.
type SessionRegistry struct {
	sessions *xsync.Map[uuid.UUID, *Session]
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: xsync.NewMap[uuid.UUID, *Session]()}
}

func (r *SessionRegistry) Add(s *Session)                     { r.sessions.Store(s.PlayerID, s) }
func (r *SessionRegistry) Get(id uuid.UUID) (*Session, bool)  { return r.sessions.Load(id) }
func (r *SessionRegistry) Size() int                          { return r.sessions.Size() }

func (r *SessionRegistry) Remove(id uuid.UUID) {
	if s, ok := r.sessions.LoadAndDelete(id); ok {
		s.Terminate()
	}
}

func (r *SessionRegistry) Range(f func(*Session) bool) {
	r.sessions.Range(func(_ uuid.UUID, s *Session) bool { return f(s) })
}

// SendTo enqueues a frame for one session, if it is still registered.
func (r *SessionRegistry) SendTo(id uuid.UUID, frame any) {
	if s, ok := r.sessions.Load(id); ok {
		s.Send(frame)
	}
}

// BroadcastToAll fans a frame out to every session.
func (r *SessionRegistry) BroadcastToAll(frame any) {
	r.sessions.Range(func(_ uuid.UUID, s *Session) bool {
		s.Send(frame)
		return true
	})
}

// BroadcastExcept fans a frame out to every session but one.
func (r *SessionRegistry) BroadcastExcept(exclude uuid.UUID, frame any) {
	r.sessions.Range(func(id uuid.UUID, s *Session) bool {
		if id != exclude {
			s.Send(frame)
		}
		return true
	})
}

// BroadcastBuilt builds a frame per receiver (so positions can be translated
// into each receiver's anchor) and fans the results out. A nil build result
// skips that receiver. exclude may be uuid.Nil.
func (r *SessionRegistry) BroadcastBuilt(exclude uuid.UUID, build func(*Session) any) {
	r.sessions.Range(func(id uuid.UUID, s *Session) bool {
		if id == exclude {
			return true
		}
		if frame := build(s); frame != nil {
			s.Send(frame)
		}
		return true
	})
}
