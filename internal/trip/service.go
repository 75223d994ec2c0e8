package trip

import (
	"context"
	"errors"
	"log"
	"sort"

	"backend-tripjournal/internal/store"
)

var (
	ErrNotFound  = errors.New("trip not found")
	ErrCodeTaken = errors.New("trip code already in use")
	ErrForbidden = errors.New("not allowed")
)

// BlobRemover deletes an attached media object; satisfied by blob.Service.
type BlobRemover interface {
	Delete(ctx context.Context, ref string) error
}

type Service struct {
	store store.Store
	blobs BlobRemover
}

func NewService(st store.Store, blobs BlobRemover) *Service {
	return &Service{store: st, blobs: blobs}
}

func (s *Service) Create(ctx context.Context, input Trip) (Trip, error) {
	input.ID = NormalizeCode(input.ID)
	if input.ID == "" {
		input.ID = NewCode()
	}
	if _, err := s.store.Get(ctx, Collection, input.ID); err == nil {
		return Trip{}, ErrCodeTaken
	}

	input.Shared = false
	input.CanRead = []string{}
	input.CanWrite = []string{}
	input.InvitRead = []string{}
	input.InvitWrite = []string{}

	if err := s.store.Set(ctx, Collection, input.ID, input.Document(), false); err != nil {
		return Trip{}, err
	}
	return input, nil
}

func (s *Service) Get(ctx context.Context, callerUID, id string) (Trip, error) {
	id = NormalizeCode(id)
	doc, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		return Trip{}, ErrNotFound
	}
	t := FromDocument(doc)
	if !t.Readable(callerUID) {
		return Trip{}, ErrForbidden
	}
	return t, nil
}

// Update patches descriptive fields only; access sets and the shared flag
// are owned by the access manager. The write touches just the fields that
// changed so it cannot race with concurrent access-set mutations.
func (s *Service) Update(ctx context.Context, callerUID, id string, patch Trip) (Trip, error) {
	id = NormalizeCode(id)
	doc, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		return Trip{}, ErrNotFound
	}
	t := FromDocument(doc)
	if !t.Writable(callerUID) {
		return Trip{}, ErrForbidden
	}

	fields := store.Fields{}
	if patch.Title != "" && patch.Title != t.Title {
		t.Title = patch.Title
		fields["title"] = patch.Title
	}
	if patch.Comment != "" && patch.Comment != t.Comment {
		t.Comment = patch.Comment
		fields["comment"] = patch.Comment
	}
	if patch.Image != "" && patch.Image != t.Image {
		t.Image = patch.Image
		fields["image"] = patch.Image
	}
	if !patch.StartDate.IsZero() {
		t.StartDate = patch.StartDate
		fields["startDate"] = patch.StartDate.Unix()
	}
	if !patch.EndDate.IsZero() {
		t.EndDate = patch.EndDate
		fields["endDate"] = patch.EndDate.Unix()
	}
	if len(fields) == 0 {
		return t, nil
	}

	if err := s.store.Set(ctx, Collection, id, fields, true); err != nil {
		return Trip{}, err
	}
	return t, nil
}

// Delete removes a trip and cascades to its attached media blob.
func (s *Service) Delete(ctx context.Context, callerUID, id string) error {
	id = NormalizeCode(id)
	doc, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		return ErrNotFound
	}
	t := FromDocument(doc)
	if t.OwnerUID != callerUID {
		return ErrForbidden
	}

	if t.Image != "" && s.blobs != nil {
		if err := s.blobs.Delete(ctx, t.Image); err != nil {
			log.Printf("blob cascade delete failed for %s: %v", t.Image, err)
		}
	}
	return s.store.Delete(ctx, Collection, id)
}

// Mine lists fully writable trips: owned ones plus trips with an active
// write grant. The discover feed routes these out of its own listing.
func (s *Service) Mine(ctx context.Context, uid string) ([]Trip, error) {
	owned, err := s.store.List(ctx, store.Query{
		Collection: Collection,
		Where:      []store.Cond{store.Eq("ownerUid", uid)},
	})
	if err != nil {
		return nil, err
	}
	writable, err := s.store.List(ctx, store.Query{
		Collection: Collection,
		Where:      []store.Cond{store.Contains("canWrite", uid)},
	})
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	var trips []Trip
	for _, doc := range append(owned, writable...) {
		t := FromDocument(doc)
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		trips = append(trips, t)
	}
	sort.SliceStable(trips, func(i, j int) bool {
		return trips[i].StartDate.Unix() > trips[j].StartDate.Unix()
	})
	return trips, nil
}

// Readable reports whether uid may load the trip: the owner, anyone in an
// access or invitation set, or anyone at all once the trip is public.
func (t Trip) Readable(uid string) bool {
	if t.Shared || t.OwnerUID == uid {
		return true
	}
	for _, set := range [][]string{t.CanRead, t.CanWrite, t.InvitRead, t.InvitWrite} {
		for _, member := range set {
			if member == uid {
				return true
			}
		}
	}
	return false
}

func (t Trip) Writable(uid string) bool {
	if t.OwnerUID == uid {
		return true
	}
	for _, member := range t.CanWrite {
		if member == uid {
			return true
		}
	}
	return false
}
