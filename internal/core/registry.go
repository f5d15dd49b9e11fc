package core

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"stereocast/internal/domain"
)

// Registry is the threadsafe in-memory participant set. It owns entity
// state only and never touches transport resources.
type Registry struct {
	mu           sync.RWMutex
	participants map[SessionID]*domain.Participant
}

func NewRegistry() *Registry {
	return &Registry{participants: make(map[SessionID]*domain.Participant)}
}

// Register inserts a new participant. The transport layer guarantees
// unique connection ids, but a duplicate is still rejected and the
// prior entry kept unchanged.
func (r *Registry) Register(sid SessionID, p *domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[sid]; ok {
		return domain.ErrDuplicateID
	}
	r.participants[sid] = p
	log.Info().Str("module", "core.registry").Str("sid", string(sid)).
		Str("role", string(p.Role)).Str("name", p.Name).Msg("participant registered")
	return nil
}

// Remove deletes a participant. Absent ids are a no-op: disconnect
// events may race with other cleanup.
func (r *Registry) Remove(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[sid]; !ok {
		return
	}
	delete(r.participants, sid)
	log.Info().Str("module", "core.registry").Str("sid", string(sid)).Msg("participant removed")
}

// Get returns a copy of the participant's current state.
func (r *Registry) Get(sid SessionID) (domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[sid]
	if !ok {
		return domain.Participant{}, domain.ErrNotFound
	}
	return *p, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// SetVolume stores the listener-local playback volume, clamped to the
// valid range.
func (r *Registry) SetVolume(sid SessionID, v int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[sid]
	if !ok {
		return domain.ErrNotFound
	}
	p.Volume = domain.ClampVolume(v)
	return nil
}

// SetServerVolume stores the source-controlled gain for a listener,
// clamped to the valid range.
func (r *Registry) SetServerVolume(sid SessionID, v int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[sid]
	if !ok {
		return domain.ErrNotFound
	}
	p.ServerVolume = domain.ClampVolume(v)
	return nil
}

func (r *Registry) SetChannel(sid SessionID, ch domain.Channel) error {
	if !ch.Valid() {
		return domain.ErrInvalidChannel
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[sid]
	if !ok {
		return domain.ErrNotFound
	}
	p.Channel = ch
	return nil
}

// Source reports the live source participant, if any.
func (r *Registry) Source() (SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sid, p := range r.participants {
		if p.Role == domain.RoleSource {
			return sid, true
		}
	}
	return "", false
}

// All returns a copied snapshot of every participant ordered by join
// time (id tie-break), safe to iterate while mutations continue.
func (r *Registry) All() []domain.Participant {
	r.mu.RLock()
	out := make([]domain.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Snapshot renders the ordered roster as read-only views so listeners
// get a stable, non-flickering list.
func (r *Registry) Snapshot() []ParticipantView {
	all := r.All()
	out := make([]ParticipantView, 0, len(all))
	for _, p := range all {
		out = append(out, ParticipantView{
			ID:           p.ID,
			Name:         p.Name,
			Role:         p.Role,
			Channel:      p.Channel,
			Volume:       p.Volume,
			ServerVolume: p.ServerVolume,
		})
	}
	return out
}
