package feed

import (
	"context"
	"sort"

	"backend-tripjournal/internal/access"
	"backend-tripjournal/internal/trip"
)

// NameResolver turns an identity into a display name; satisfied by
// directory.Service.
type NameResolver interface {
	DisplayName(ctx context.Context, uid string) string
}

type Member struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	Pending  bool   `json:"pending"`
	CanWrite bool   `json:"canWrite"`
}

type Entry struct {
	Trip         trip.Trip `json:"trip"`
	OwnerLabel   string    `json:"ownerLabel"`
	IsInvitation bool      `json:"isInvitation"`
	Members      []Member  `json:"members"`
}

// Build produces the discover listing from the invited and shared
// snapshots. It is a pure function of its inputs and the resolver's
// current answers: unchanged inputs yield an identical ordered list.
//
// Trips the viewer can fully write are routed out of the listing (they are
// shown under "my trips" instead); each group is stable-sorted descending
// by start date at seconds granularity; invitations come first; a trip
// present in both groups appears once, sourced from the shared group.
func Build(ctx context.Context, viewerUID string, invited, shared []trip.Trip, names NameResolver) []Entry {
	inv := append([]trip.Trip(nil), invited...)

	sh := make([]trip.Trip, 0, len(shared))
	for _, t := range shared {
		if t.Writable(viewerUID) {
			continue
		}
		sh = append(sh, t)
	}

	sortByStartDesc(inv)
	sortByStartDesc(sh)

	inShared := make(map[string]struct{}, len(sh))
	for _, t := range sh {
		inShared[t.ID] = struct{}{}
	}

	cache := map[string]string{}
	resolve := func(uid string) string {
		if name, ok := cache[uid]; ok {
			return name
		}
		name := names.DisplayName(ctx, uid)
		cache[uid] = name
		return name
	}

	entries := make([]Entry, 0, len(inv)+len(sh))
	for _, t := range inv {
		if _, dup := inShared[t.ID]; dup {
			continue
		}
		entries = append(entries, buildEntry(t, viewerUID, resolve))
	}
	for _, t := range sh {
		entries = append(entries, buildEntry(t, viewerUID, resolve))
	}
	return entries
}

func buildEntry(t trip.Trip, viewerUID string, resolve func(string) string) Entry {
	return Entry{
		Trip:         t,
		OwnerLabel:   ownerLabel(t, viewerUID, resolve),
		IsInvitation: access.StateOf(t, viewerUID).Pending(),
		Members:      members(t, resolve),
	}
}

func ownerLabel(t trip.Trip, viewerUID string, resolve func(string) string) string {
	if t.OwnerUID != viewerUID {
		return "Trip shared by " + resolve(t.OwnerUID)
	}
	if len(t.CanRead)+len(t.CanWrite)+len(t.InvitRead)+len(t.InvitWrite) > 0 {
		return "My trip (shared)"
	}
	return "My trip"
}

func members(t trip.Trip, resolve func(string) string) []Member {
	var out []Member
	add := func(uids []string, pending, canWrite bool) {
		for _, uid := range uids {
			out = append(out, Member{UID: uid, Name: resolve(uid), Pending: pending, CanWrite: canWrite})
		}
	}
	add(t.CanRead, false, false)
	add(t.CanWrite, false, true)
	add(t.InvitRead, true, false)
	add(t.InvitWrite, true, true)
	return out
}

func sortByStartDesc(trips []trip.Trip) {
	sort.SliceStable(trips, func(i, j int) bool {
		return trips[i].StartDate.Unix() > trips[j].StartDate.Unix()
	})
}
