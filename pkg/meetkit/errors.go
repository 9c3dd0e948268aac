package meetkit

import (
	"errors"
	"fmt"
)

type ErrorKind = string

const (
	// KindAuthRejected is a bad, expired or mismatched grant. Fatal; the
	// participant must come back through the lobby.
	KindAuthRejected = ErrorKind("AuthRejected")
	// KindBookingUnresolved is a failed or empty backend lookup. Fatal for
	// this load, retryable by reloading.
	KindBookingUnresolved = ErrorKind("BookingUnresolved")
	// KindTransportDegraded is a lost socket or media path. Recoverable.
	KindTransportDegraded = ErrorKind("TransportDegraded")
	// KindProtocolAnomaly is an unrecognised message. Swallowed.
	KindProtocolAnomaly = ErrorKind("ProtocolAnomaly")
	// KindTimingExpired is a session past its grace period. Fatal.
	KindTimingExpired = ErrorKind("TimingExpired")
	// KindRoomFull is the relay refusing a connection at capacity.
	KindRoomFull = ErrorKind("RoomFull")
)

var (
	ErrNotJoined     = errors.New("participant has not joined from the lobby")
	ErrNotJoinable   = errors.New("session is not open for joining")
	ErrGateClosed    = errors.New("gate is in a terminal state")
	ErrChannelClosed = errors.New("channel is closed")
)

type SessionError struct {
	Kind ErrorKind
	Err  error
}

func (v *SessionError) Error() string {
	if v.Err == nil {
		return v.Kind
	}
	return fmt.Sprintf("%s: %v", v.Kind, v.Err)
}

func (v *SessionError) Unwrap() error { return v.Err }

// Is lets errors.Is match on kind alone, e.g. errors.Is(err, &SessionError{Kind: KindAuthRejected}).
func (v *SessionError) Is(target error) bool {
	other, ok := target.(*SessionError)
	return ok && other.Err == nil && other.Kind == v.Kind
}

// Fatal reports whether the error ends the page load.
func (v *SessionError) Fatal() bool {
	switch v.Kind {
	case KindTransportDegraded, KindProtocolAnomaly:
		return false
	default:
		return true
	}
}

func newSessionError(kind ErrorKind, err error) *SessionError {
	return &SessionError{Kind: kind, Err: err}
}

// KindOf returns the session error kind of err, or an empty string.
func KindOf(err error) ErrorKind {
	var session *SessionError
	if errors.As(err, &session) {
		return session.Kind
	}
	return ""
}
