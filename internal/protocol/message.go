// Package protocol defines the signaling message schema exchanged over
// the per-participant websocket. Every message is a flat JSON object
// with a "type" discriminator; negotiation payloads are typed with
// pion structures but relayed opaquely by the coordinator.
package protocol

import (
	"github.com/pion/webrtc/v4"

	"stereocast/internal/core"
	"stereocast/internal/domain"
)

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	// Inbound (participant -> coordinator).
	TypeRegister        MessageType = "register"
	TypeRegisterSource  MessageType = "register-source"
	TypeChangeChannel   MessageType = "change-channel"
	TypeSetAudioMode    MessageType = "set-audio-mode"
	TypeVolumeChange    MessageType = "volume-change"
	TypeSetClientVolume MessageType = "set-client-volume"
	TypePing            MessageType = "ping"

	// Outbound (coordinator -> participant).
	TypeRegistered           MessageType = "registered"
	TypeChannelAssigned      MessageType = "channel-assigned"
	TypeClientsUpdate        MessageType = "clients-update"
	TypeClientReady          MessageType = "client-ready"
	TypeClientChannelChanged MessageType = "client-channel-changed"
	TypeAudioModeChanged     MessageType = "audio-mode-changed"
	TypeServerVolumeChange   MessageType = "server-volume-change"
	TypePong                 MessageType = "pong"
	TypeError                MessageType = "error"

	// Negotiation relay (either direction).
	TypeOffer     MessageType = "offer"
	TypeAnswer    MessageType = "answer"
	TypeCandidate MessageType = "candidate"
)

// Envelope is the minimal decode used to dispatch on message type.
type Envelope struct {
	Type MessageType `json:"type"`
}

type Register struct {
	Type MessageType `json:"type"`
	Name string      `json:"name"`
	// Volume is optional; absent means the default listener volume.
	Volume *int `json:"volume,omitempty"`
}

type RegisterSource struct {
	Type MessageType `json:"type"`
	Name string      `json:"name"`
}

type Registered struct {
	Type MessageType          `json:"type"`
	ID   domain.ParticipantID `json:"id"`
	Role domain.Role          `json:"role"`
}

type ChannelAssigned struct {
	Type    MessageType      `json:"type"`
	Channel domain.Channel   `json:"channel"`
	Mode    domain.AudioMode `json:"mode"`
}

type ClientsUpdate struct {
	Type    MessageType            `json:"type"`
	Clients []core.ParticipantView `json:"clients"`
	Mode    domain.AudioMode       `json:"mode"`
}

type ClientReady struct {
	Type     MessageType          `json:"type"`
	ClientID domain.ParticipantID `json:"clientId"`
	Name     string               `json:"name"`
	Channel  domain.Channel       `json:"channel"`
}

type ClientChannelChanged struct {
	Type     MessageType          `json:"type"`
	ClientID domain.ParticipantID `json:"clientId"`
	Channel  domain.Channel       `json:"channel"`
}

type ChangeChannel struct {
	Type    MessageType    `json:"type"`
	Channel domain.Channel `json:"channel"`
}

type SetAudioMode struct {
	Type MessageType      `json:"type"`
	Mode domain.AudioMode `json:"mode"`
}

type AudioModeChanged struct {
	Type MessageType      `json:"type"`
	Mode domain.AudioMode `json:"mode"`
}

type VolumeChange struct {
	Type   MessageType `json:"type"`
	Volume int         `json:"volume"`
}

type SetClientVolume struct {
	Type     MessageType          `json:"type"`
	ClientID domain.ParticipantID `json:"clientId"`
	Volume   int                  `json:"volume"`
}

type ServerVolumeChange struct {
	Type   MessageType `json:"type"`
	Volume int         `json:"volume"`
}

// Offer carries the source's session description. SenderID is stamped
// by the coordinator; Channel is stamped per recipient so the client
// can configure its audio graph without a second round trip.
type Offer struct {
	Type     MessageType               `json:"type"`
	SDP      webrtc.SessionDescription `json:"sdp"`
	TargetID domain.ParticipantID      `json:"targetId,omitempty"`
	SenderID domain.ParticipantID      `json:"senderId,omitempty"`
	Channel  domain.Channel            `json:"channel,omitempty"`
}

type Answer struct {
	Type     MessageType               `json:"type"`
	SDP      webrtc.SessionDescription `json:"sdp"`
	TargetID domain.ParticipantID      `json:"targetId,omitempty"`
	SenderID domain.ParticipantID      `json:"senderId,omitempty"`
}

type Candidate struct {
	Type      MessageType             `json:"type"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	TargetID  domain.ParticipantID    `json:"targetId,omitempty"`
	SenderID  domain.ParticipantID    `json:"senderId,omitempty"`
}

type Ping struct {
	Type MessageType `json:"type"`
}

type Pong struct {
	Type MessageType `json:"type"`
}

type ErrorReply struct {
	Type  MessageType `json:"type"`
	Error string      `json:"error"`
}
