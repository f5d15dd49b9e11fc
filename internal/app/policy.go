package app

import (
	"sort"

	"stereocast/internal/domain"
)

// BalancePolicy decides which stereo channel a listener receives.
// Pure decision logic over registry snapshots, no I/O.
type BalancePolicy struct{}

// AssignNew picks the channel for a joining listener. Mono mode always
// yields Both. Stereo mode balances the left/right split: the side with
// fewer listeners wins, ties go Left. Non-listeners and Both-channel
// entries are ignored, so a mixed set never skews the counts.
func (BalancePolicy) AssignNew(participants []domain.Participant, mode domain.AudioMode) domain.Channel {
	if mode == domain.ModeMono {
		return domain.ChannelBoth
	}
	left, right := countSides(participants)
	if left <= right {
		return domain.ChannelLeft
	}
	return domain.ChannelRight
}

// ReassignAll recomputes every listener's channel for a mode switch.
// Mono maps everyone to Both. Stereo walks listeners in ascending join
// order (id tie-break) and applies the same running-balance rule as
// AssignNew, so the final split differs by at most one.
func (BalancePolicy) ReassignAll(participants []domain.Participant, mode domain.AudioMode) map[domain.ParticipantID]domain.Channel {
	out := make(map[domain.ParticipantID]domain.Channel)

	listeners := make([]domain.Participant, 0, len(participants))
	for _, p := range participants {
		if p.Role == domain.RoleListener {
			listeners = append(listeners, p)
		}
	}

	if mode == domain.ModeMono {
		for _, p := range listeners {
			out[p.ID] = domain.ChannelBoth
		}
		return out
	}

	sort.Slice(listeners, func(i, j int) bool {
		if listeners[i].JoinedAt.Equal(listeners[j].JoinedAt) {
			return listeners[i].ID < listeners[j].ID
		}
		return listeners[i].JoinedAt.Before(listeners[j].JoinedAt)
	})

	left, right := 0, 0
	for _, p := range listeners {
		if left <= right {
			out[p.ID] = domain.ChannelLeft
			left++
		} else {
			out[p.ID] = domain.ChannelRight
			right++
		}
	}
	return out
}

func countSides(participants []domain.Participant) (left, right int) {
	for _, p := range participants {
		if p.Role != domain.RoleListener {
			continue
		}
		switch p.Channel {
		case domain.ChannelLeft:
			left++
		case domain.ChannelRight:
			right++
		}
	}
	return left, right
}
