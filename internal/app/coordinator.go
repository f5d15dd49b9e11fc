package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"stereocast/internal/core"
	"stereocast/internal/domain"
	"stereocast/internal/protocol"
)

// Coordinator drives the session: it owns the audio mode, funnels every
// registry mutation through one mutex so concurrent joins never observe
// stale channel counts, and emits the roster and assignment
// notifications other participants must receive. Notification delivery
// happens outside the lock, on committed snapshots.
type Coordinator struct {
	mu       sync.Mutex
	mode     domain.AudioMode
	Registry *core.Registry
	Conns    *ConnTable
	Router   *Router
	Policy   BalancePolicy
}

func NewCoordinator(registry *core.Registry, conns *ConnTable, router *Router) *Coordinator {
	return &Coordinator{
		mode:     domain.ModeStereo,
		Registry: registry,
		Conns:    conns,
		Router:   router,
	}
}

func (c *Coordinator) Mode() domain.AudioMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Connect binds a freshly accepted transport connection. The session is
// anonymous until it registers.
func (c *Coordinator) Connect(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	c.Conns.Bind(sid, conn, cancel)
}

// RegisterListener admits a listener, assigns its channel via the
// balance policy, and notifies the roster plus the source (if any) that
// a new listener is ready for negotiation.
func (c *Coordinator) RegisterListener(sid core.SessionID, name string, volume int) (domain.Participant, error) {
	c.mu.Lock()
	p, err := domain.NewListener(domain.ParticipantID(sid), name, volume)
	if err != nil {
		c.mu.Unlock()
		return domain.Participant{}, err
	}
	p.Channel = c.Policy.AssignNew(c.Registry.All(), c.mode)
	if err := c.Registry.Register(sid, p); err != nil {
		c.mu.Unlock()
		return domain.Participant{}, err
	}
	mode := c.mode
	c.mu.Unlock()

	log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).
		Str("name", p.Name).Str("channel", string(p.Channel)).Msg("listener registered")

	_ = c.Router.Send(sid, protocol.ChannelAssigned{
		Type:    protocol.TypeChannelAssigned,
		Channel: p.Channel,
		Mode:    mode,
	})
	c.broadcastRoster()

	if src, ok := c.Registry.Source(); ok {
		_ = c.Router.Send(src, protocol.ClientReady{
			Type:     protocol.TypeClientReady,
			ClientID: p.ID,
			Name:     p.Name,
			Channel:  p.Channel,
		})
	}
	return *p, nil
}

// RegisterSource admits the publishing participant. Only one source may
// be live at a time; a second registration is rejected and the first
// entry kept.
func (c *Coordinator) RegisterSource(sid core.SessionID, name string) (domain.Participant, error) {
	c.mu.Lock()
	if _, ok := c.Registry.Source(); ok {
		c.mu.Unlock()
		return domain.Participant{}, domain.ErrSourcePresent
	}
	p, err := domain.NewSource(domain.ParticipantID(sid), name)
	if err != nil {
		c.mu.Unlock()
		return domain.Participant{}, err
	}
	if err := c.Registry.Register(sid, p); err != nil {
		c.mu.Unlock()
		return domain.Participant{}, err
	}
	c.mu.Unlock()

	log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).
		Str("name", p.Name).Msg("source registered")
	c.broadcastRoster()
	return *p, nil
}

// SetVolume stores a listener's self-reported playback volume and
// refreshes the roster so the source's monitoring view reflects it.
func (c *Coordinator) SetVolume(sid core.SessionID, volume int) error {
	c.mu.Lock()
	err := c.Registry.SetVolume(sid, volume)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.broadcastRoster()
	return nil
}

// SetListenerVolume lets the source adjust one listener's gain. The
// affected listener is told the new value directly.
func (c *Coordinator) SetListenerVolume(caller core.SessionID, target domain.ParticipantID, volume int) error {
	c.mu.Lock()
	p, err := c.Registry.Get(caller)
	if err != nil || p.Role != domain.RoleSource {
		c.mu.Unlock()
		return domain.ErrNotSource
	}
	err = c.Registry.SetServerVolume(core.SessionID(target), volume)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	_ = c.Router.Send(core.SessionID(target), protocol.ServerVolumeChange{
		Type:   protocol.TypeServerVolumeChange,
		Volume: domain.ClampVolume(volume),
	})
	c.broadcastRoster()
	return nil
}

// ChangeChannel handles a listener's self-service channel switch.
// Allowed in stereo mode only; mono assignments are server-controlled.
// The source is notified so it can tear down and restart the
// negotiation with the new channel.
func (c *Coordinator) ChangeChannel(sid core.SessionID, ch domain.Channel) error {
	c.mu.Lock()
	if c.mode == domain.ModeMono {
		c.mu.Unlock()
		return domain.ErrChannelLockedInMono
	}
	p, err := c.Registry.Get(sid)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if p.Role != domain.RoleListener {
		c.mu.Unlock()
		return domain.ErrNotListener
	}
	if err := c.Registry.SetChannel(sid, ch); err != nil {
		c.mu.Unlock()
		return err
	}
	mode := c.mode
	c.mu.Unlock()

	log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).
		Str("channel", string(ch)).Msg("channel changed")

	_ = c.Router.Send(sid, protocol.ChannelAssigned{
		Type:    protocol.TypeChannelAssigned,
		Channel: ch,
		Mode:    mode,
	})
	c.broadcastRoster()

	if src, ok := c.Registry.Source(); ok {
		_ = c.Router.Send(src, protocol.ClientChannelChanged{
			Type:     protocol.TypeClientChannelChanged,
			ClientID: domain.ParticipantID(sid),
			Channel:  ch,
		})
	}
	return nil
}

// SetMode switches the session between stereo and mono and reassigns
// every listener. The source receives a channel-changed notification
// for each listener whose assignment actually moved, so established
// negotiations are restarted rather than left on a stale channel.
func (c *Coordinator) SetMode(caller core.SessionID, mode domain.AudioMode) error {
	if !mode.Valid() {
		return domain.ErrInvalidMode
	}

	c.mu.Lock()
	p, err := c.Registry.Get(caller)
	if err != nil || p.Role != domain.RoleSource {
		c.mu.Unlock()
		return domain.ErrNotSource
	}
	if c.mode == mode {
		c.mu.Unlock()
		return nil
	}
	c.mode = mode

	before := c.Registry.All()
	mapping := c.Policy.ReassignAll(before, mode)
	var changed []domain.ParticipantID
	for _, prev := range before {
		ch, ok := mapping[prev.ID]
		if !ok {
			continue
		}
		if err := c.Registry.SetChannel(core.SessionID(prev.ID), ch); err != nil {
			// Listener left mid-switch; nothing to update.
			continue
		}
		if prev.Channel != ch {
			changed = append(changed, prev.ID)
		}
	}
	c.mu.Unlock()

	log.Info().Str("module", "app.coordinator").Str("mode", string(mode)).
		Int("listeners", len(mapping)).Int("changed", len(changed)).Msg("audio mode changed")

	// Ordered by join time via the snapshot, so delivery is deterministic.
	for _, prev := range before {
		ch, ok := mapping[prev.ID]
		if !ok {
			continue
		}
		_ = c.Router.Send(core.SessionID(prev.ID), protocol.ChannelAssigned{
			Type:    protocol.TypeChannelAssigned,
			Channel: ch,
			Mode:    mode,
		})
	}
	c.Router.Broadcast(protocol.AudioModeChanged{Type: protocol.TypeAudioModeChanged, Mode: mode})
	c.broadcastRoster()

	if src, ok := c.Registry.Source(); ok {
		for _, id := range changed {
			_ = c.Router.Send(src, protocol.ClientChannelChanged{
				Type:     protocol.TypeClientChannelChanged,
				ClientID: id,
				Channel:  mapping[id],
			})
		}
	}
	return nil
}

// Disconnect finalizes a closed connection: it cancels the session's
// pump context and unbinds it before touching the registry. The conn
// argument guards against stale teardown, a socket that was superseded
// by a rebind of the same id releases nothing. Unknown ids are a no-op
// so transport failure and explicit-leave cleanup may race safely.
func (c *Coordinator) Disconnect(sid core.SessionID, conn core.SignalConnection) {
	if !c.Conns.Release(sid, conn) {
		return
	}
	c.mu.Lock()
	_, err := c.Registry.Get(sid)
	c.Registry.Remove(sid)
	c.mu.Unlock()

	// Only a registered participant's departure alters the roster.
	if err == nil {
		log.Info().Str("module", "app.coordinator").Str("sid", string(sid)).Msg("participant disconnected")
		c.broadcastRoster()
	}
}

// Negotiation relay: the coordinator stamps nothing itself, it hands
// the message to the router which stamps sender and channel metadata.

func (c *Coordinator) RelayOffer(sid core.SessionID, msg protocol.Offer) {
	c.Router.RelayOffer(sid, msg)
}

func (c *Coordinator) RelayAnswer(sid core.SessionID, msg protocol.Answer) {
	c.Router.RelayAnswer(sid, msg)
}

func (c *Coordinator) RelayCandidate(sid core.SessionID, msg protocol.Candidate) {
	c.Router.RelayCandidate(sid, msg)
}

func (c *Coordinator) broadcastRoster() {
	c.Router.Broadcast(protocol.ClientsUpdate{
		Type:    protocol.TypeClientsUpdate,
		Clients: c.Registry.Snapshot(),
		Mode:    c.Mode(),
	})
}
