package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"stereocast/internal/core"
	"stereocast/internal/domain"
	"stereocast/internal/protocol"
)

// fakeConn captures every frame queued for one session.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {}

// last unmarshals the most recent frame of the given type into out.
func (f *fakeConn) last(t *testing.T, typ protocol.MessageType, out any) bool {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(f.frames[i], &env))
		if env.Type == typ {
			require.NoError(t, json.Unmarshal(f.frames[i], out))
			return true
		}
	}
	return false
}

func (f *fakeConn) count(t *testing.T, typ protocol.MessageType) int {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fr := range f.frames {
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(fr, &env))
		if env.Type == typ {
			n++
		}
	}
	return n
}

type session struct {
	coord *Coordinator
	conns map[core.SessionID]*fakeConn
}

func newSession(t *testing.T) *session {
	t.Helper()
	registry := core.NewRegistry()
	conns := NewConnTable()
	return &session{
		coord: NewCoordinator(registry, conns, NewRouter(conns, registry)),
		conns: make(map[core.SessionID]*fakeConn),
	}
}

func (s *session) connect(sid string) *fakeConn {
	fc := &fakeConn{}
	s.coord.Connect(core.SessionID(sid), fc, nil)
	s.conns[core.SessionID(sid)] = fc
	return fc
}

func (s *session) addListener(t *testing.T, sid string) domain.Participant {
	t.Helper()
	s.connect(sid)
	p, err := s.coord.RegisterListener(core.SessionID(sid), "device-"+sid, 80)
	require.NoError(t, err)
	return p
}

func (s *session) addSource(t *testing.T, sid string) domain.Participant {
	t.Helper()
	s.connect(sid)
	p, err := s.coord.RegisterSource(core.SessionID(sid), "desk-"+sid)
	require.NoError(t, err)
	return p
}

func TestCoordinator_ThreeJoinsSplitLeftRightLeft(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	a := s.addListener(t, "a")
	b := s.addListener(t, "b")
	c := s.addListener(t, "c")

	req.Equal(domain.ChannelLeft, a.Channel)
	req.Equal(domain.ChannelRight, b.Channel)
	req.Equal(domain.ChannelLeft, c.Channel)

	// Every registered listener got its assignment pushed.
	var assigned protocol.ChannelAssigned
	req.True(s.conns["c"].last(t, protocol.TypeChannelAssigned, &assigned))
	req.Equal(domain.ChannelLeft, assigned.Channel)
	req.Equal(domain.ModeStereo, assigned.Mode)
}

func TestCoordinator_RegisterBroadcastsRosterAndNotifiesSource(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	srcConn := s.connect("src")
	_, err := s.coord.RegisterSource("src", "desk")
	req.NoError(err)

	listener := s.addListener(t, "a")

	var ready protocol.ClientReady
	req.True(srcConn.last(t, protocol.TypeClientReady, &ready))
	req.Equal(listener.ID, ready.ClientID)
	req.Equal("device-a", ready.Name)
	req.Equal(domain.ChannelLeft, ready.Channel)

	var roster protocol.ClientsUpdate
	req.True(srcConn.last(t, protocol.TypeClientsUpdate, &roster))
	req.Len(roster.Clients, 2)
	req.Equal(domain.ModeStereo, roster.Mode)
}

func TestCoordinator_SecondSourceRejected(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	s.addSource(t, "src1")
	s.connect("src2")

	_, err := s.coord.RegisterSource("src2", "desk-2")
	req.ErrorIs(err, domain.ErrSourcePresent)

	sid, ok := s.coord.Registry.Source()
	req.True(ok)
	req.Equal(core.SessionID("src1"), sid)
}

func TestCoordinator_DuplicateRegisterKeepsOriginal(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	s.addListener(t, "a")
	_, err := s.coord.RegisterListener("a", "impostor", 10)
	req.ErrorIs(err, domain.ErrDuplicateID)

	p, err := s.coord.Registry.Get("a")
	req.NoError(err)
	req.Equal("device-a", p.Name)
}

func TestCoordinator_MonoForcesBothAndRenegotiates(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	s.addSource(t, "src")
	srcConn := s.conns["src"]

	a := s.addListener(t, "a")
	b := s.addListener(t, "b")
	req.Equal(domain.ChannelLeft, a.Channel)
	req.Equal(domain.ChannelRight, b.Channel)

	req.NoError(s.coord.SetMode("src", domain.ModeMono))

	for _, sid := range []core.SessionID{"a", "b"} {
		p, err := s.coord.Registry.Get(sid)
		req.NoError(err)
		req.Equal(domain.ChannelBoth, p.Channel)
	}

	var roster protocol.ClientsUpdate
	req.True(srcConn.last(t, protocol.TypeClientsUpdate, &roster))
	req.Equal(domain.ModeMono, roster.Mode)
	for _, cl := range roster.Clients {
		if cl.Role == domain.RoleListener {
			req.Equal(domain.ChannelBoth, cl.Channel)
		}
	}

	// Both listeners changed channel, so the source is told to restart
	// both negotiations.
	req.Equal(2, srcConn.count(t, protocol.TypeClientChannelChanged))

	var mode protocol.AudioModeChanged
	req.True(s.conns["a"].last(t, protocol.TypeAudioModeChanged, &mode))
	req.Equal(domain.ModeMono, mode.Mode)
}

func TestCoordinator_BackToStereoRebalances(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	s.addSource(t, "src")
	s.addListener(t, "a")
	s.addListener(t, "b")
	s.addListener(t, "c")

	req.NoError(s.coord.SetMode("src", domain.ModeMono))
	req.NoError(s.coord.SetMode("src", domain.ModeStereo))

	left, right := 0, 0
	for _, p := range s.coord.Registry.All() {
		if p.Role != domain.RoleListener {
			continue
		}
		switch p.Channel {
		case domain.ChannelLeft:
			left++
		case domain.ChannelRight:
			right++
		default:
			t.Fatalf("listener %s still on %s after stereo switch", p.ID, p.Channel)
		}
	}
	req.LessOrEqual(abs(left-right), 1)
}

func TestCoordinator_SetModeIdempotentAndSourceOnly(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	s.addSource(t, "src")
	s.addListener(t, "a")
	aConn := s.conns["a"]

	req.ErrorIs(s.coord.SetMode("a", domain.ModeMono), domain.ErrNotSource)
	req.ErrorIs(s.coord.SetMode("ghost", domain.ModeMono), domain.ErrNotSource)
	req.ErrorIs(s.coord.SetMode("src", "quad"), domain.ErrInvalidMode)

	// Re-setting the current mode changes nothing and stays silent.
	before := aConn.count(t, protocol.TypeAudioModeChanged)
	req.NoError(s.coord.SetMode("src", domain.ModeStereo))
	req.Equal(before, aConn.count(t, protocol.TypeAudioModeChanged))
}

func TestCoordinator_ChangeChannel(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	srcConn := s.connect("src")
	_, err := s.coord.RegisterSource("src", "desk")
	req.NoError(err)
	s.addListener(t, "a")

	req.NoError(s.coord.ChangeChannel("a", domain.ChannelRight))

	var assigned protocol.ChannelAssigned
	req.True(s.conns["a"].last(t, protocol.TypeChannelAssigned, &assigned))
	req.Equal(domain.ChannelRight, assigned.Channel)

	var changed protocol.ClientChannelChanged
	req.True(srcConn.last(t, protocol.TypeClientChannelChanged, &changed))
	req.Equal(domain.ParticipantID("a"), changed.ClientID)
	req.Equal(domain.ChannelRight, changed.Channel)
}

func TestCoordinator_ChangeChannelRejectedInMono(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	s.addSource(t, "src")
	s.addListener(t, "a")
	req.NoError(s.coord.SetMode("src", domain.ModeMono))

	req.ErrorIs(s.coord.ChangeChannel("a", domain.ChannelLeft), domain.ErrChannelLockedInMono)

	p, err := s.coord.Registry.Get("a")
	req.NoError(err)
	req.Equal(domain.ChannelBoth, p.Channel)
}

func TestCoordinator_ChangeChannelValidation(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	s.addSource(t, "src")
	s.addListener(t, "a")

	req.ErrorIs(s.coord.ChangeChannel("ghost", domain.ChannelLeft), domain.ErrNotFound)
	req.ErrorIs(s.coord.ChangeChannel("src", domain.ChannelLeft), domain.ErrNotListener)
	req.ErrorIs(s.coord.ChangeChannel("a", "center"), domain.ErrInvalidChannel)
}

func TestCoordinator_VolumeClampsAndShowsInRoster(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	aConn := s.connect("a")
	_, err := s.coord.RegisterListener("a", "device-a", 80)
	req.NoError(err)

	req.NoError(s.coord.SetVolume("a", 150))

	var roster protocol.ClientsUpdate
	req.True(aConn.last(t, protocol.TypeClientsUpdate, &roster))
	req.Equal(100, roster.Clients[0].Volume)

	req.ErrorIs(s.coord.SetVolume("ghost", 10), domain.ErrNotFound)
}

func TestCoordinator_SourceSetsListenerVolume(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	s.addSource(t, "src")
	aConn := s.connect("a")
	_, err := s.coord.RegisterListener("a", "device-a", 80)
	req.NoError(err)

	req.NoError(s.coord.SetListenerVolume("src", "a", 130))

	var sv protocol.ServerVolumeChange
	req.True(aConn.last(t, protocol.TypeServerVolumeChange, &sv))
	req.Equal(100, sv.Volume)

	p, err := s.coord.Registry.Get("a")
	req.NoError(err)
	req.Equal(100, p.ServerVolume)

	// Only the source may drive listener gain; unknown targets surface
	// to the source only.
	req.ErrorIs(s.coord.SetListenerVolume("a", "a", 50), domain.ErrNotSource)
	req.ErrorIs(s.coord.SetListenerVolume("src", "ghost", 50), domain.ErrNotFound)
}

func TestCoordinator_DisconnectUnknownIsNoop(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	aConn := s.connect("a")
	_, err := s.coord.RegisterListener("a", "device-a", 80)
	req.NoError(err)

	rostersBefore := aConn.count(t, protocol.TypeClientsUpdate)
	s.coord.Disconnect("ghost", nil)
	req.Equal(rostersBefore, aConn.count(t, protocol.TypeClientsUpdate))
	req.Equal(1, s.coord.Registry.Len())
}

func TestCoordinator_DisconnectRemovesAndBroadcasts(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	s.addListener(t, "a")
	bConn := s.connect("b")
	_, err := s.coord.RegisterListener("b", "device-b", 80)
	req.NoError(err)

	s.coord.Disconnect("a", s.conns["a"])

	var roster protocol.ClientsUpdate
	req.True(bConn.last(t, protocol.TypeClientsUpdate, &roster))
	req.Len(roster.Clients, 1)
	req.Equal(domain.ParticipantID("b"), roster.Clients[0].ID)
}

func TestCoordinator_DisconnectCancelsPumpContext(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	fc := &fakeConn{}
	s.coord.Connect("a", fc, cancel)
	_, err := s.coord.RegisterListener("a", "device-a", 80)
	req.NoError(err)

	s.coord.Disconnect("a", fc)

	req.Error(ctx.Err())
	req.Equal(0, s.coord.Registry.Len())
	_, ok := s.coord.Conns.Get("a")
	req.False(ok)
}

func TestCoordinator_DisconnectOfSupersededConnKeepsRegistration(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	old := &fakeConn{}
	s.coord.Connect("a", old, nil)
	_, err := s.coord.RegisterListener("a", "device-a", 80)
	req.NoError(err)

	// Same session id rebinds, as when a lingering socket is replaced.
	fresh := &fakeConn{}
	s.coord.Connect("a", fresh, nil)

	// The old socket's teardown fires late; the live registration stays.
	s.coord.Disconnect("a", old)
	req.Equal(1, s.coord.Registry.Len())
	got, ok := s.coord.Conns.Get("a")
	req.True(ok)
	req.Same(fresh, got.(*fakeConn))

	s.coord.Disconnect("a", fresh)
	req.Equal(0, s.coord.Registry.Len())
}

func TestCoordinator_OfferRelayStampsSenderAndChannel(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	s.addSource(t, "src")
	aConn := s.connect("a")
	_, err := s.coord.RegisterListener("a", "device-a", 80)
	req.NoError(err)

	s.coord.RelayOffer("src", protocol.Offer{
		SDP:      webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
		TargetID: "a",
	})

	var offer protocol.Offer
	req.True(aConn.last(t, protocol.TypeOffer, &offer))
	req.Equal(domain.ParticipantID("src"), offer.SenderID)
	req.Equal(domain.ChannelLeft, offer.Channel)
	req.Equal("v=0", offer.SDP.SDP)
}

func TestCoordinator_OfferToUnknownTargetDroppedSilently(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	srcConn := s.connect("src")
	_, err := s.coord.RegisterSource("src", "desk")
	req.NoError(err)

	s.coord.RelayOffer("src", protocol.Offer{
		SDP:      webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
		TargetID: "ghost",
	})

	// No error reaches the sender and the roster is untouched.
	req.Zero(srcConn.count(t, protocol.TypeError))
	var roster protocol.ClientsUpdate
	req.True(srcConn.last(t, protocol.TypeClientsUpdate, &roster))
	for _, cl := range roster.Clients {
		req.NotEqual(domain.ParticipantID("ghost"), cl.ID)
	}
}

func TestCoordinator_AnswerAndCandidateRelay(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	srcConn := s.connect("src")
	_, err := s.coord.RegisterSource("src", "desk")
	req.NoError(err)
	s.addListener(t, "a")

	s.coord.RelayAnswer("a", protocol.Answer{
		SDP:      webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"},
		TargetID: "src",
	})

	var answer protocol.Answer
	req.True(srcConn.last(t, protocol.TypeAnswer, &answer))
	req.Equal(domain.ParticipantID("a"), answer.SenderID)

	mid := "0"
	s.coord.RelayCandidate("a", protocol.Candidate{
		Candidate: webrtc.ICECandidateInit{Candidate: "candidate:1", SDPMid: &mid},
		TargetID:  "src",
	})

	var cand protocol.Candidate
	req.True(srcConn.last(t, protocol.TypeCandidate, &cand))
	req.Equal(domain.ParticipantID("a"), cand.SenderID)
	req.Equal("candidate:1", cand.Candidate.Candidate)
}

func TestCoordinator_BroadcastOfferStampsPerRecipientChannel(t *testing.T) {
	req := require.New(t)
	s := newSession(t)

	s.addSource(t, "src")
	s.addListener(t, "a")
	s.addListener(t, "b")

	s.coord.RelayOffer("src", protocol.Offer{
		SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	})

	var toA, toB protocol.Offer
	req.True(s.conns["a"].last(t, protocol.TypeOffer, &toA))
	req.True(s.conns["b"].last(t, protocol.TypeOffer, &toB))
	req.Equal(domain.ChannelLeft, toA.Channel)
	req.Equal(domain.ChannelRight, toB.Channel)
}
