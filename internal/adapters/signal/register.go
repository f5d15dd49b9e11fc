package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"stereocast/internal/core"
	"stereocast/internal/domain"
	"stereocast/internal/protocol"
)

func (ctl *SignalWSController) handleRegister(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.Register
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad register payload")
		ctl.sendError(conn, errors.New("bad_payload"))
		return
	}

	volume := domain.MaxVolume
	if p.Volume != nil {
		volume = *p.Volume
	}

	participant, err := ctl.Coord.RegisterListener(sid, p.Name, volume)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("register rejected")
		ctl.sendError(conn, err)
		return
	}

	ctl.sendJSON(conn, protocol.Registered{
		Type: protocol.TypeRegistered,
		ID:   participant.ID,
		Role: participant.Role,
	})
}

func (ctl *SignalWSController) handleRegisterSource(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.RegisterSource
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad register-source payload")
		ctl.sendError(conn, errors.New("bad_payload"))
		return
	}

	participant, err := ctl.Coord.RegisterSource(sid, p.Name)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("register-source rejected")
		ctl.sendError(conn, err)
		return
	}

	ctl.sendJSON(conn, protocol.Registered{
		Type: protocol.TypeRegistered,
		ID:   participant.ID,
		Role: participant.Role,
	})
}

func (ctl *SignalWSController) handleVolume(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.VolumeChange
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad volume payload")
		ctl.sendError(conn, errors.New("bad_payload"))
		return
	}

	if err := ctl.Coord.SetVolume(sid, p.Volume); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleSetClientVolume(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.SetClientVolume
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad set-client-volume payload")
		ctl.sendError(conn, errors.New("bad_payload"))
		return
	}

	if err := ctl.Coord.SetListenerVolume(sid, p.ClientID, p.Volume); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).
			Str("target", string(p.ClientID)).Msg("set-client-volume rejected")
		ctl.sendError(conn, err)
	}
}
