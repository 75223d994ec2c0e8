package trip

import (
	"math/rand"
	"strings"
	"time"

	"backend-tripjournal/internal/store"
)

// Collection is the document collection holding trips.
const Collection = "trips"

// Trip is a journal shared between users. The trip id doubles as the
// human-enterable share code; its canonical form is lowercase. An identity
// appears in at most one of the four access sets; the owner in none.
type Trip struct {
	ID         string    `json:"id"`
	OwnerUID   string    `json:"ownerUid"`
	Title      string    `json:"title"`
	Comment    string    `json:"comment"`
	Image      string    `json:"image"`
	StartDate  time.Time `json:"startDate"`
	EndDate    time.Time `json:"endDate"`
	Shared     bool      `json:"shared"`
	CanRead    []string  `json:"canRead"`
	CanWrite   []string  `json:"canWrite"`
	InvitRead  []string  `json:"invitRead"`
	InvitWrite []string  `json:"invitWrite"`
}

const codeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func NewCode() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Document renders the full trip as store fields. Dates are stored as unix
// seconds; the feed sorts at that granularity.
func (t Trip) Document() store.Fields {
	return store.Fields{
		"id":         t.ID,
		"ownerUid":   t.OwnerUID,
		"title":      t.Title,
		"comment":    t.Comment,
		"image":      t.Image,
		"startDate":  t.StartDate.Unix(),
		"endDate":    t.EndDate.Unix(),
		"shared":     t.Shared,
		"canRead":    emptyIfNil(t.CanRead),
		"canWrite":   emptyIfNil(t.CanWrite),
		"invitRead":  emptyIfNil(t.InvitRead),
		"invitWrite": emptyIfNil(t.InvitWrite),
	}
}

// FromDocument decodes a stored trip, tolerating the type widening a JSON
// round trip introduces ([]any slices, float64 numbers).
func FromDocument(doc store.Document) Trip {
	return Trip{
		ID:         asString(doc["id"]),
		OwnerUID:   asString(doc["ownerUid"]),
		Title:      asString(doc["title"]),
		Comment:    asString(doc["comment"]),
		Image:      asString(doc["image"]),
		StartDate:  timeFromUnix(doc["startDate"]),
		EndDate:    timeFromUnix(doc["endDate"]),
		Shared:     doc["shared"] == true,
		CanRead:    asStrings(doc["canRead"]),
		CanWrite:   asStrings(doc["canWrite"]),
		InvitRead:  asStrings(doc["invitRead"]),
		InvitWrite: asStrings(doc["invitWrite"]),
	}
}

func emptyIfNil(set []string) []string {
	if set == nil {
		return []string{}
	}
	return set
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func timeFromUnix(v any) time.Time {
	switch n := v.(type) {
	case int64:
		return time.Unix(n, 0).UTC()
	case float64:
		return time.Unix(int64(n), 0).UTC()
	}
	return time.Time{}
}
