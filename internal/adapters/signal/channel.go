package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"stereocast/internal/core"
	"stereocast/internal/protocol"
)

var errTooManyRequests = errors.New("too_many_requests")

func (ctl *SignalWSController) handleChangeChannel(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	if !ctl.limiter.Allow(sid) {
		ctl.sendError(conn, errTooManyRequests)
		return
	}

	var p protocol.ChangeChannel
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad change-channel payload")
		ctl.sendError(conn, errors.New("bad_payload"))
		return
	}

	if err := ctl.Coord.ChangeChannel(sid, p.Channel); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).
			Str("channel", string(p.Channel)).Msg("change-channel rejected")
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleSetAudioMode(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	if !ctl.limiter.Allow(sid) {
		ctl.sendError(conn, errTooManyRequests)
		return
	}

	var p protocol.SetAudioMode
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad set-audio-mode payload")
		ctl.sendError(conn, errors.New("bad_payload"))
		return
	}

	if err := ctl.Coord.SetMode(sid, p.Mode); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).
			Str("mode", string(p.Mode)).Msg("set-audio-mode rejected")
		ctl.sendError(conn, err)
	}
}
