package core

import "stereocast/internal/domain"

// Frame is a raw signaling payload.
type Frame []byte

// SessionID identifies one transport connection. It doubles as the
// participant id once the connection registers.
type SessionID string

// SignalConnection abstracts the per-participant messaging transport.
// Owned by the adapter; the adapter must Close() it. TrySend never
// blocks: a full outbound queue is reported as an error and the frame
// is dropped.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// ParticipantView is a read-only roster entry (no transport fields).
type ParticipantView struct {
	ID           domain.ParticipantID `json:"id"`
	Name         string               `json:"name"`
	Role         domain.Role          `json:"role"`
	Channel      domain.Channel       `json:"channel,omitempty"`
	Volume       int                  `json:"volume"`
	ServerVolume int                  `json:"serverVolume"`
}
