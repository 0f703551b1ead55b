package room

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Conn is the transport endpoint of one live session. Implementations must
// tolerate Close being called more than once.
type Conn interface {
	Send(data []byte) error
	Open() bool
	Close() error
}

// Session is one live connected client within a room. Owned exclusively by
// its actor and destroyed on disconnect, protocol-level transport failure,
// or a failed send.
type Session struct {
	ID        string
	Conn      Conn
	CreatedAt time.Time
}

// Actor owns the live session set for one room. A single goroutine executes
// every operation, entered through one channel, so operations against the
// session set never interleave. All public methods block until the actor has
// processed them.
type Actor struct {
	key      string
	ops      chan func()
	sessions map[string]*Session
	clock    func() time.Time
	nextID   func() string
	logger   *zap.Logger
}

func newActor(key string, clock func() time.Time, nextID func() string, logger *zap.Logger) *Actor {
	actor := &Actor{
		key:      key,
		ops:      make(chan func()),
		sessions: make(map[string]*Session),
		clock:    clock,
		nextID:   nextID,
		logger:   logger.With(zap.String("room", key)),
	}
	go actor.run()
	return actor
}

func (a *Actor) run() {
	for op := range a.ops {
		op()
	}
}

func (a *Actor) do(fn func()) {
	done := make(chan struct{})
	a.ops <- func() {
		fn()
		close(done)
	}
	<-done
}

// Key returns the room key this actor serves.
func (a *Actor) Key() string {
	return a.key
}

// Connect registers a new session for the connection and immediately sends
// it a connected frame. A well-formed connection is never rejected.
func (a *Actor) Connect(conn Conn) *Session {
	var session *Session
	a.do(func() {
		session = &Session{
			ID:        a.nextID(),
			Conn:      conn,
			CreatedAt: a.clock(),
		}
		a.sessions[session.ID] = session
		if err := conn.Send(connectedFrame(session.ID, a.clock().UnixMilli())); err != nil {
			a.dropSession(session.ID)
		}
	})
	return session
}

// HandleFrame processes one inbound text frame from the session. Malformed
// JSON earns the sender an error frame and nothing else; the connection
// stays open. A ping is answered with a pong to the sender only. Anything
// else is stamped with the sender's session id and the current time, then
// relayed to every other session in the room.
func (a *Actor) HandleFrame(session *Session, rawText []byte) {
	a.do(func() {
		var payload map[string]any
		if err := json.Unmarshal(rawText, &payload); err != nil {
			a.sendTo(session, errorFrame(malformedFrameError))
			return
		}

		if payload["type"] == frameTypePing {
			a.sendTo(session, pongFrame(a.clock().UnixMilli()))
			return
		}

		payload["sessionId"] = session.ID
		payload["timestamp"] = a.clock().UnixMilli()
		relayed, err := json.Marshal(payload)
		if err != nil {
			a.sendTo(session, errorFrame(malformedFrameError))
			return
		}
		a.broadcast(relayed, session.ID)
	})
}

// Disconnect unregisters the session. Safe to call more than once.
func (a *Actor) Disconnect(session *Session) {
	a.do(func() {
		a.dropSession(session.ID)
	})
}

// BroadcastEvent fans a server-built event payload out to every session in
// the room with no exclusion.
func (a *Actor) BroadcastEvent(event map[string]any) {
	frame, err := json.Marshal(event)
	if err != nil {
		a.logger.Warn("unserializable room event", zap.Error(err))
		return
	}
	a.do(func() {
		a.broadcast(frame, "")
	})
}

// SessionCount reports the number of live sessions.
func (a *Actor) SessionCount() int {
	var count int
	a.do(func() {
		count = len(a.sessions)
	})
	return count
}

// broadcast delivers a frame to every open session except excludeID. Failed
// recipients are collected during iteration and dropped afterwards; there is
// no retry and no backpressure.
func (a *Actor) broadcast(frame []byte, excludeID string) {
	var failed []string
	for id, session := range a.sessions {
		if id == excludeID || !session.Conn.Open() {
			continue
		}
		if err := session.Conn.Send(frame); err != nil {
			failed = append(failed, id)
		}
	}
	for _, id := range failed {
		a.logger.Debug("dropping unreachable session", zap.String("session", id))
		a.dropSession(id)
	}
}

// sendTo delivers a frame to one session, dropping it on failure.
func (a *Actor) sendTo(session *Session, frame []byte) {
	if !session.Conn.Open() {
		return
	}
	if err := session.Conn.Send(frame); err != nil {
		a.dropSession(session.ID)
	}
}

func (a *Actor) dropSession(sessionID string) {
	session, ok := a.sessions[sessionID]
	if !ok {
		return
	}
	delete(a.sessions, sessionID)
	_ = session.Conn.Close()
}
