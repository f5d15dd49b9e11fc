package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"stereocast/internal/core"
	"stereocast/internal/protocol"
)

// Negotiation messages are relayed opaquely: the adapter decodes only
// enough to route them, the SDP/candidate payloads are never inspected.

func (ctl *SignalWSController) handleOffer(
	sid core.SessionID,
	_ *WsSignalConn,
	data []byte,
) {
	var p protocol.Offer
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		return
	}
	log.Debug().Str("module", "signal").Str("from", string(sid)).
		Str("target", string(p.TargetID)).Msg("relay offer")
	ctl.Coord.RelayOffer(sid, p)
}

func (ctl *SignalWSController) handleAnswer(
	sid core.SessionID,
	_ *WsSignalConn,
	data []byte,
) {
	var p protocol.Answer
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad answer payload")
		return
	}
	log.Debug().Str("module", "signal").Str("from", string(sid)).
		Str("target", string(p.TargetID)).Msg("relay answer")
	ctl.Coord.RelayAnswer(sid, p)
}

func (ctl *SignalWSController) handleCandidate(
	sid core.SessionID,
	_ *WsSignalConn,
	data []byte,
) {
	var p protocol.Candidate
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}
	ctl.Coord.RelayCandidate(sid, p)
}
