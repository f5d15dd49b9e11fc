package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"stereocast/internal/core"
	"stereocast/internal/domain"
	"stereocast/internal/protocol"
)

// Router delivers signaling messages to participant connections.
// Delivery is fire-and-forget: no retries, no persistence, and a
// vanished target drops the message without blocking the sender.
type Router struct {
	Conns    *ConnTable
	Registry *core.Registry
}

func NewRouter(conns *ConnTable, registry *core.Registry) *Router {
	return &Router{Conns: conns, Registry: registry}
}

// Send marshals v and queues it on one session's outbound channel.
func (r *Router) Send(sid core.SessionID, v any) error {
	conn, ok := r.Conns.Get(sid)
	if !ok {
		log.Debug().Str("module", "app.router").Str("sid", string(sid)).Msg("send: unknown target, dropped")
		return domain.ErrNotFound
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("send marshal")
		return err
	}
	if err := conn.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "app.router").Str("sid", string(sid)).Msg("send dropped")
		return err
	}
	return nil
}

// Broadcast queues v on every bound connection, registered or not.
func (r *Router) Broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("broadcast marshal")
		return
	}
	for _, snap := range r.Conns.All() {
		if err := snap.Conn.TrySend(b); err != nil {
			log.Warn().Err(err).Str("module", "app.router").Str("sid", string(snap.SID)).Msg("broadcast dropped")
		}
	}
}

// BroadcastExcept queues v on every bound connection but the sender's.
func (r *Router) BroadcastExcept(sender core.SessionID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("broadcast marshal")
		return
	}
	for _, snap := range r.Conns.All() {
		if snap.SID == sender {
			continue
		}
		if err := snap.Conn.TrySend(b); err != nil {
			log.Warn().Err(err).Str("module", "app.router").Str("sid", string(snap.SID)).Msg("broadcast dropped")
		}
	}
}

// targetAlive checks the routing target is a registered participant.
// An unknown target is dropped silently; the collaborator-level
// negotiation timeout is the sender's natural signal.
func (r *Router) targetAlive(kind protocol.MessageType, target domain.ParticipantID) bool {
	if _, err := r.Registry.Get(core.SessionID(target)); err != nil {
		log.Debug().Str("module", "app.router").Str("kind", string(kind)).
			Str("target", string(target)).Msg("relay: unknown target, dropped")
		return false
	}
	return true
}

// RelayOffer routes an offer, stamping the sender id and the
// recipient's current channel so clients configure their audio graph
// in one round trip.
func (r *Router) RelayOffer(sender core.SessionID, msg protocol.Offer) {
	msg.Type = protocol.TypeOffer
	msg.SenderID = domain.ParticipantID(sender)

	if msg.TargetID != "" {
		if !r.targetAlive(protocol.TypeOffer, msg.TargetID) {
			return
		}
		msg.Channel = r.channelOf(msg.TargetID)
		_ = r.Send(core.SessionID(msg.TargetID), msg)
		return
	}

	// Legacy single-target-omitted flow: fan out, stamping each
	// recipient's own channel.
	for _, snap := range r.Conns.All() {
		if snap.SID == sender {
			continue
		}
		msg.Channel = r.channelOf(domain.ParticipantID(snap.SID))
		b, err := json.Marshal(msg)
		if err != nil {
			log.Error().Err(err).Str("module", "app.router").Msg("offer marshal")
			return
		}
		if err := snap.Conn.TrySend(b); err != nil {
			log.Warn().Err(err).Str("module", "app.router").Str("sid", string(snap.SID)).Msg("offer dropped")
		}
	}
}

func (r *Router) RelayAnswer(sender core.SessionID, msg protocol.Answer) {
	msg.Type = protocol.TypeAnswer
	msg.SenderID = domain.ParticipantID(sender)
	if msg.TargetID == "" {
		r.BroadcastExcept(sender, msg)
		return
	}
	if !r.targetAlive(protocol.TypeAnswer, msg.TargetID) {
		return
	}
	_ = r.Send(core.SessionID(msg.TargetID), msg)
}

func (r *Router) RelayCandidate(sender core.SessionID, msg protocol.Candidate) {
	msg.Type = protocol.TypeCandidate
	msg.SenderID = domain.ParticipantID(sender)
	if msg.TargetID == "" {
		r.BroadcastExcept(sender, msg)
		return
	}
	if !r.targetAlive(protocol.TypeCandidate, msg.TargetID) {
		return
	}
	_ = r.Send(core.SessionID(msg.TargetID), msg)
}

func (r *Router) channelOf(id domain.ParticipantID) domain.Channel {
	p, err := r.Registry.Get(core.SessionID(id))
	if err != nil || p.Role != domain.RoleListener {
		return ""
	}
	return p.Channel
}
