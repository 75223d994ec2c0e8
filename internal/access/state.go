package access

import "backend-tripjournal/internal/trip"

type Level string

const (
	LevelRead  Level = "read"
	LevelWrite Level = "write"
)

func (l Level) Valid() bool {
	return l == LevelRead || l == LevelWrite
}

// State is the membership of one identity on one trip. Each identity is in
// exactly one state; the four non-none states map one-to-one onto the
// trip's access sets.
type State int

const (
	StateNone State = iota
	StateInvitedRead
	StateInvitedWrite
	StateActiveRead
	StateActiveWrite
)

func stateFor(pending bool, level Level) State {
	if pending {
		if level == LevelWrite {
			return StateInvitedWrite
		}
		return StateInvitedRead
	}
	if level == LevelWrite {
		return StateActiveWrite
	}
	return StateActiveRead
}

func (s State) Pending() bool {
	return s == StateInvitedRead || s == StateInvitedWrite
}

func (s State) Active() bool {
	return s == StateActiveRead || s == StateActiveWrite
}

func (s State) Level() Level {
	switch s {
	case StateInvitedWrite, StateActiveWrite:
		return LevelWrite
	case StateInvitedRead, StateActiveRead:
		return LevelRead
	}
	return ""
}

// field names the document field backing the state's access set.
func (s State) field() string {
	switch s {
	case StateInvitedRead:
		return "invitRead"
	case StateInvitedWrite:
		return "invitWrite"
	case StateActiveRead:
		return "canRead"
	case StateActiveWrite:
		return "canWrite"
	}
	return ""
}

func setOf(t trip.Trip, s State) []string {
	switch s {
	case StateInvitedRead:
		return t.InvitRead
	case StateInvitedWrite:
		return t.InvitWrite
	case StateActiveRead:
		return t.CanRead
	case StateActiveWrite:
		return t.CanWrite
	}
	return nil
}

// StateOf derives the membership state from set membership. Sets are
// checked in a fixed order so a record that transiently violates the
// one-set invariant still resolves deterministically.
func StateOf(t trip.Trip, uid string) State {
	for _, s := range []State{StateActiveWrite, StateActiveRead, StateInvitedWrite, StateInvitedRead} {
		if contains(setOf(t, s), uid) {
			return s
		}
	}
	return StateNone
}

func contains(set []string, uid string) bool {
	for _, member := range set {
		if member == uid {
			return true
		}
	}
	return false
}

func withMember(set []string, uid string) []string {
	if contains(set, uid) {
		return append([]string(nil), set...)
	}
	out := make([]string, 0, len(set)+1)
	out = append(out, set...)
	return append(out, uid)
}

func withoutMember(set []string, uid string) []string {
	out := make([]string, 0, len(set))
	for _, member := range set {
		if member != uid {
			out = append(out, member)
		}
	}
	return out
}
