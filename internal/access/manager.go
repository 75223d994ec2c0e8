package access

import (
	"context"
	"errors"

	"backend-tripjournal/internal/directory"
	"backend-tripjournal/internal/store"
	"backend-tripjournal/internal/trip"
)

var (
	ErrNotFound         = errors.New("no such trip or member")
	ErrInvalidCode      = errors.New("invalid trip code")
	ErrAlreadyMember    = errors.New("already a member")
	ErrSelfInvite       = errors.New("cannot invite yourself")
	ErrPermissionDenied = errors.New("permission denied")
)

// Directory resolves usernames to identities; satisfied by
// directory.Service.
type Directory interface {
	UIDForUsername(ctx context.Context, username string) (string, error)
}

// Policy caps what a non-owner editor may invite at. An empty level
// restricts inviting to the owner.
type Policy struct {
	EditorInviteLevel Level
}

// Manager owns the invitation lifecycle. Every mutation is a minimal merge
// write against the trip document; nothing is changed locally until the
// store acknowledges, and readers observe the result through the change
// stream.
type Manager struct {
	store  store.Store
	dir    Directory
	policy Policy
}

func NewManager(st store.Store, dir Directory, policy Policy) *Manager {
	return &Manager{store: st, dir: dir, policy: policy}
}

func (m *Manager) load(ctx context.Context, code string) (trip.Trip, error) {
	doc, err := m.store.Get(ctx, trip.Collection, trip.NormalizeCode(code))
	if err != nil {
		return trip.Trip{}, ErrNotFound
	}
	return trip.FromDocument(doc), nil
}

// move is the single transition function: a paired removal from the source
// set and addition to the destination set. The removal is written first so
// an interrupted pair leaves the identity in at most one set; the failure
// mode is a transient loss of access, never a duplicate membership.
func (m *Manager) move(ctx context.Context, t trip.Trip, uid string, from, to State) error {
	if from == to {
		return nil
	}
	if from != StateNone {
		fields := store.Fields{from.field(): withoutMember(setOf(t, from), uid)}
		if err := m.store.Set(ctx, trip.Collection, t.ID, fields, true); err != nil {
			return err
		}
	}
	if to != StateNone {
		fields := store.Fields{to.field(): withMember(setOf(t, to), uid)}
		if err := m.store.Set(ctx, trip.Collection, t.ID, fields, true); err != nil {
			return err
		}
	}
	return nil
}

// Invite offers username a pending grant at the given level. The owner may
// invite at any level; an active editor is capped by policy.
func (m *Manager) Invite(ctx context.Context, callerUID, tripID, username string, level Level) error {
	uid, err := m.dir.UIDForUsername(ctx, username)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if uid == callerUID {
		return ErrSelfInvite
	}

	t, err := m.load(ctx, tripID)
	if err != nil {
		return err
	}
	if callerUID != t.OwnerUID {
		caller := StateOf(t, callerUID)
		if caller != StateActiveWrite || !m.policy.allows(level) {
			return ErrPermissionDenied
		}
	}
	if uid == t.OwnerUID || StateOf(t, uid) != StateNone {
		return ErrAlreadyMember
	}
	return m.move(ctx, t, uid, StateNone, stateFor(true, level))
}

// Accept promotes the caller's pending invitation to an active grant at
// the invited level.
func (m *Manager) Accept(ctx context.Context, callerUID, tripID string) error {
	t, err := m.load(ctx, tripID)
	if err != nil {
		return err
	}
	st := StateOf(t, callerUID)
	if !st.Pending() {
		return ErrNotFound
	}
	return m.move(ctx, t, callerUID, st, stateFor(false, st.Level()))
}

// Decline drops the caller's pending invitation. Declining twice is a
// no-op.
func (m *Manager) Decline(ctx context.Context, callerUID, tripID string) error {
	t, err := m.load(ctx, tripID)
	if err != nil {
		return err
	}
	st := StateOf(t, callerUID)
	if !st.Pending() {
		return nil
	}
	return m.move(ctx, t, callerUID, st, StateNone)
}

// ChangePermission moves a member between read and write at their current
// pending status. Owner only. Requesting the level the member already
// holds is a no-op.
func (m *Manager) ChangePermission(ctx context.Context, callerUID, tripID, uid string, pending bool, level Level) error {
	t, err := m.load(ctx, tripID)
	if err != nil {
		return err
	}
	if callerUID != t.OwnerUID {
		return ErrPermissionDenied
	}
	st := StateOf(t, uid)
	if st == stateFor(pending, level) {
		return nil
	}
	if st == StateNone || st.Pending() != pending {
		return ErrNotFound
	}
	return m.move(ctx, t, uid, st, stateFor(pending, level))
}

// RemoveMember revokes whatever membership uid currently holds, pending or
// active. The owner may remove anyone; members may remove themselves.
// Removing an absent member is a no-op.
func (m *Manager) RemoveMember(ctx context.Context, callerUID, tripID, uid string) error {
	t, err := m.load(ctx, tripID)
	if err != nil {
		return err
	}
	if callerUID != t.OwnerUID && callerUID != uid {
		return ErrPermissionDenied
	}
	st := StateOf(t, uid)
	if st == StateNone {
		return nil
	}
	return m.move(ctx, t, uid, st, StateNone)
}

// ToggleShared flips public joinability. Enabling it revokes all individual
// read grants in the same write; holders must re-join by code.
func (m *Manager) ToggleShared(ctx context.Context, callerUID, tripID string) (trip.Trip, error) {
	t, err := m.load(ctx, tripID)
	if err != nil {
		return trip.Trip{}, err
	}
	if callerUID != t.OwnerUID {
		return trip.Trip{}, ErrPermissionDenied
	}

	fields := store.Fields{"shared": !t.Shared}
	if !t.Shared {
		fields["canRead"] = []string{}
		t.CanRead = []string{}
	}
	if err := m.store.Set(ctx, trip.Collection, t.ID, fields, true); err != nil {
		return trip.Trip{}, err
	}
	t.Shared = !t.Shared
	return t, nil
}

// Join applies a self-service join by share code. The code is the trip id,
// canonicalized to lowercase. Joining twice has no additional effect; a
// pending invitee joining by code accepts at the invited level instead of
// gaining a second membership.
func (m *Manager) Join(ctx context.Context, callerUID, code string) (trip.Trip, error) {
	doc, err := m.store.Get(ctx, trip.Collection, trip.NormalizeCode(code))
	if err != nil {
		return trip.Trip{}, ErrInvalidCode
	}
	t := trip.FromDocument(doc)
	if !t.Shared {
		return trip.Trip{}, ErrInvalidCode
	}
	if callerUID == t.OwnerUID {
		return t, nil
	}

	switch st := StateOf(t, callerUID); {
	case st == StateNone:
		if err := m.move(ctx, t, callerUID, StateNone, StateActiveRead); err != nil {
			return trip.Trip{}, err
		}
		t.CanRead = withMember(t.CanRead, callerUID)
	case st.Pending():
		if err := m.move(ctx, t, callerUID, st, stateFor(false, st.Level())); err != nil {
			return trip.Trip{}, err
		}
	}
	return t, nil
}

func (p Policy) allows(level Level) bool {
	if p.EditorInviteLevel == "" {
		return false
	}
	if level == LevelWrite {
		return p.EditorInviteLevel == LevelWrite
	}
	return true
}
