// Package domain contains session entities without transport logic, just meta-data.
package domain

import (
	"errors"
	"time"
)

const (
	MaxNameLen = 64

	MinVolume = 0
	MaxVolume = 100

	// DefaultServerVolume is the source-controlled gain a listener starts with.
	DefaultServerVolume = 100
)

var (
	ErrNameEmpty   = errors.New("display name empty")
	ErrNameTooLong = errors.New("display name too long")

	ErrDuplicateID    = errors.New("participant id already registered")
	ErrNotFound       = errors.New("participant not found")
	ErrInvalidChannel = errors.New("invalid channel")
	ErrInvalidMode    = errors.New("invalid audio mode")

	// ErrSourcePresent rejects a second source while one is live.
	ErrSourcePresent = errors.New("a source is already registered")
	// ErrNotSource rejects source-only operations from other participants.
	ErrNotSource = errors.New("operation allowed for the source only")
	// ErrNotListener rejects listener-only operations from the source.
	ErrNotListener = errors.New("operation allowed for listeners only")
	// ErrChannelLockedInMono rejects manual channel changes while the
	// session runs in mono mode (channel is server-controlled there).
	ErrChannelLockedInMono = errors.New("channel is server-controlled in mono mode")
)

// ParticipantID is the transport-assigned connection id, opaque to the core.
type ParticipantID string

type Role string

const (
	RoleSource   Role = "source"
	RoleListener Role = "listener"
)

// Channel is the stereo component a listener hears.
type Channel string

const (
	ChannelLeft  Channel = "left"
	ChannelRight Channel = "right"
	ChannelBoth  Channel = "both"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelLeft, ChannelRight, ChannelBoth:
		return true
	}
	return false
}

// AudioMode is the session-wide assignment policy.
type AudioMode string

const (
	ModeStereo AudioMode = "stereo"
	ModeMono   AudioMode = "mono"
)

func (m AudioMode) Valid() bool {
	return m == ModeStereo || m == ModeMono
}

// ClampVolume keeps volumes inside [MinVolume, MaxVolume].
func ClampVolume(v int) int {
	if v < MinVolume {
		return MinVolume
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}

// Participant is a live session member. Channel is meaningful for
// listeners only; JoinedAt is used for ordering, never persisted.
type Participant struct {
	ID           ParticipantID
	Role         Role
	Name         string
	Channel      Channel
	Volume       int
	ServerVolume int
	JoinedAt     time.Time
}

func validateName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	return nil
}

// NewListener builds a listener entity. The channel is assigned by the
// coordinator before registration, so it starts empty here.
func NewListener(id ParticipantID, name string, volume int) (*Participant, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &Participant{
		ID:           id,
		Role:         RoleListener,
		Name:         name,
		Volume:       ClampVolume(volume),
		ServerVolume: DefaultServerVolume,
		JoinedAt:     time.Now(),
	}, nil
}

// NewSource builds the publishing participant. Sources carry no channel
// assignment and no playback volume of their own.
func NewSource(id ParticipantID, name string) (*Participant, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &Participant{
		ID:       id,
		Role:     RoleSource,
		Name:     name,
		JoinedAt: time.Now(),
	}, nil
}
